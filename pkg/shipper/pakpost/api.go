package pakpost

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

// APIClient defines the interface for Pakistan Post API operations.
// This abstraction allows for mock implementations during testing
// and real implementations in production.
type APIClient interface {
	// GetToken exchanges the client credentials for an access token
	GetToken(ctx context.Context) (*TokenResponse, error)

	// CreateTransaction books a VPP article
	CreateTransaction(ctx context.Context, token string, req *TransactionRequest) (*TransactionResponse, error)

	// GetTariff returns the delivery charge for a weight
	GetTariff(ctx context.Context, token string, req *TariffRequest) (*TariffResponse, error)

	// GetTracking returns the raw tracking document of an article
	GetTracking(ctx context.Context, token string, articleNo string) (json.RawMessage, error)
}

// ============================================================================
// API Request/Response Types (match Pakistan Post JSON API structure)
// ============================================================================

// TokenRequest is the body of POST /Token.
type TokenRequest struct {
	ClientID        string `json:"ClientId"`
	ClientSecretKey string `json:"ClientSecretKey"`
}

// TokenResponse is the response of POST /Token.
type TokenResponse struct {
	Content          TokenContent `json:"Content"`
	Message          string       `json:"Message,omitempty"`
	ExceptionMessage string       `json:"ExceptionMessage,omitempty"`
}

// TokenContent wraps the issued token.
type TokenContent struct {
	Token TokenDetails `json:"Token"`
}

// TokenDetails is the issued token. ExpiresIn is in seconds when present.
type TokenDetails struct {
	AccessToken string `json:"AccessToken"`
	ExpiresIn   int    `json:"ExpiresIn,omitempty"`
}

// TransactionRequest is the body of POST /Transaction.
type TransactionRequest struct {
	Name            string `json:"Name"`
	Address         string `json:"Address"`
	City            string `json:"City"`
	Contact         string `json:"Contact"`
	TransactionID   string `json:"TransactionID"`
	TransactionDate string `json:"TransactionDate"`
	CourierService  string `json:"CourierService"`
	DeliveryService string `json:"DeliveryService"`
	WeightInGrams   int    `json:"Weight,omitempty"`
	Amount          string `json:"Amount,omitempty"`
}

// TransactionResponse is the response of POST /Transaction. A 2xx response
// with Status other than 200 is a rejected booking.
type TransactionResponse struct {
	Status            int                `json:"status"`
	Message           string             `json:"message,omitempty"`
	OrderID           shipper.FlexString `json:"orderId"`
	ArticleTrackingNo string             `json:"articleTrackingNo"`
	TrackingNumber    string             `json:"trackingNumber,omitempty"`
}

// TrackingNo returns whichever article number field the API filled in.
func (r *TransactionResponse) TrackingNo() string {
	if r.ArticleTrackingNo != "" {
		return r.ArticleTrackingNo
	}
	return r.TrackingNumber
}

// TariffRequest is the body of POST /GetTariff.
type TariffRequest struct {
	WeightInGrams int `json:"weightingrams"`
}

// TariffResponse is the response of POST /GetTariff.
type TariffResponse struct {
	Status       int             `json:"status"`
	Message      string          `json:"message,omitempty"`
	TotalCharges decimal.Decimal `json:"totalCharges"`
}

// TrackingResponse is the document returned by GET /GetTracking/{article}.
type TrackingResponse struct {
	Status            int             `json:"status"`
	Message           string          `json:"message,omitempty"`
	ArticleTrackingNo string          `json:"articleTrackingNo"`
	CurrentStatus     string          `json:"currentStatus,omitempty"`
	BookingDate       string          `json:"bookingDate,omitempty"`
	DeliveryDate      string          `json:"deliveryDate,omitempty"`
	TrackingDetails   []TrackingEvent `json:"trackingDetails"`
}

// TrackingEvent is a single article scan.
type TrackingEvent struct {
	Date     string `json:"date"`
	Location string `json:"location"`
	Status   string `json:"status"`
	Remarks  string `json:"remarks,omitempty"`
}
