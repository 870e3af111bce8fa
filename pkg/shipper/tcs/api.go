package tcs

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

// APIClient defines the interface for TCS API operations.
type APIClient interface {
	// GetAccessToken exchanges the account credentials for a body access token
	GetAccessToken(ctx context.Context) (*TokenResponse, error)

	// CreateBooking books a consignment
	CreateBooking(ctx context.Context, req *BookingRequest) (*BookingResponse, error)

	// SimulateFee prices a consignment without booking it
	SimulateFee(ctx context.Context, req *BookingRequest) (*BookingResponse, error)

	// GetTracking returns the raw tracking document of a consignment
	GetTracking(ctx context.Context, consignmentNo string) (json.RawMessage, error)
}

// ============================================================================
// API Request/Response Types (match TCS ecom JSON API structure)
// ============================================================================

// TokenResponse is the response of GET /ecom/api/authentication/token.
type TokenResponse struct {
	AccessToken string `json:"accesstoken"`
	Expiry      string `json:"expiry,omitempty"`
	Message     string `json:"message,omitempty"`
}

// BookingRequest is the body of the booking and fee simulation calls.
type BookingRequest struct {
	AccessToken   string        `json:"accesstoken"`
	ShipperInfo   ShipperInfo   `json:"shipperinfo"`
	VendorInfo    VendorInfo    `json:"vendorinfo"`
	ConsigneeInfo ConsigneeInfo `json:"consigneeinfo"`
	ShipmentInfo  ShipmentInfo  `json:"shipmentinfo"`
}

// ShipperInfo identifies the TCS account holder.
type ShipperInfo struct {
	TCSAccount  string `json:"tcsaccount"`
	ShipperName string `json:"shippername"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2,omitempty"`
	Address3    string `json:"address3,omitempty"`
	Zip         string `json:"zip,omitempty"`
	CountryCode string `json:"countrycode"`
	CountryName string `json:"countryname"`
	CityName    string `json:"cityname"`
	Mobile      string `json:"mobile"`
}

// VendorInfo is the pickup vendor.
type VendorInfo struct {
	Name     string `json:"name"`
	Address1 string `json:"address1"`
	Address2 string `json:"address2,omitempty"`
	Address3 string `json:"address3,omitempty"`
	CityName string `json:"cityname"`
	Mobile   string `json:"mobile"`
}

// ConsigneeInfo is the receiving party.
type ConsigneeInfo struct {
	FirstName   string `json:"firstname"`
	MiddleName  string `json:"middlename,omitempty"`
	LastName    string `json:"lastname"`
	Address1    string `json:"address1"`
	CountryCode string `json:"countrycode"`
	CountryName string `json:"countryname"`
	CityName    string `json:"cityname"`
	Mobile      string `json:"mobile"`
	Email       string `json:"email,omitempty"`
}

// ShipmentInfo describes the parcel.
type ShipmentInfo struct {
	CostCenterCode string          `json:"costcentercode"`
	ReferenceNo    string          `json:"referenceno"`
	ContentDesc    string          `json:"contentdesc"`
	ServiceCode    string          `json:"servicecode"`
	ParameterType  string          `json:"parametertype"`
	ShipmentDate   string          `json:"shipmentdate"`
	Currency       string          `json:"currency"`
	CODAmount      decimal.Decimal `json:"codamount"`
	DeclaredValue  decimal.Decimal `json:"declaredvalue"`
	InsuredValue   decimal.Decimal `json:"insuredvalue"`
	WeightInKG     string          `json:"weightinkg"`
	Pieces         int             `json:"pieces"`
	Fragile        bool            `json:"fragile"`
	Remarks        string          `json:"remarks,omitempty"`
	SKUs           []SKU           `json:"skus"`
	PieceDetail    []PieceDetail   `json:"piecedetail,omitempty"`
}

// SKU is a line of parcel contents.
type SKU struct {
	Description   string          `json:"description"`
	Quantity      int             `json:"quantity"`
	Weight        string          `json:"weight"`
	UOM           string          `json:"uom"`
	UnitPrice     decimal.Decimal `json:"unitprice"`
	DeclaredValue decimal.Decimal `json:"declaredvalue"`
	InsuredValue  decimal.Decimal `json:"insuredvalue"`
	HSCode        string          `json:"hscode,omitempty"`
}

// PieceDetail holds piece dimensions in centimetres.
type PieceDetail struct {
	Length int `json:"length"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// BookingResponse is returned by booking and fee simulation. A 2xx response
// whose Message is not "success" is a rejection.
type BookingResponse struct {
	Message       string             `json:"message"`
	ConsignmentNo shipper.FlexString `json:"consignmentNo"`
	TraceID       shipper.FlexString `json:"traceid"`
	DeliveryInfo  []ChargeInfo       `json:"deliveryinfo,omitempty"`
	ShipmentInfo  *ChargeSummary     `json:"shipmentinfo,omitempty"`
}

// ChargeInfo is a priced delivery line.
type ChargeInfo struct {
	ChargeAmount decimal.NullDecimal `json:"chargeamount"`
}

// ChargeSummary carries the consignment total.
type ChargeSummary struct {
	TotalCharges decimal.NullDecimal `json:"totalcharges"`
}

// TrackingResponse is the document returned by GetDynamicTrackDetail.
type TrackingResponse struct {
	Message         string              `json:"message"`
	ShipmentInfo    []TrackShipmentInfo `json:"shipmentinfo"`
	DeliveryInfo    []TrackEvent        `json:"deliveryinfo"`
	Checkpoints     []TrackEvent        `json:"checkpoints"`
	ShipmentSummary string              `json:"shipmentsummary"`
}

// TrackShipmentInfo is the consignment header.
type TrackShipmentInfo struct {
	ConsignmentNo    shipper.FlexString `json:"consignmentno"`
	Origin           string             `json:"origin"`
	Destination      string             `json:"destination"`
	BookingDate      string             `json:"bookingdate"`
	ExpectedDelivery string             `json:"expecteddelivery,omitempty"`
}

// TrackEvent is a checkpoint or delivery attempt.
type TrackEvent struct {
	DateTime   string `json:"datetime"`
	Status     string `json:"status"`
	ReceivedBy string `json:"recievedby,omitempty"`
	Location   string `json:"location,omitempty"`
}
