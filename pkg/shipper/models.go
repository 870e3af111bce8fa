package shipper

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is the currency every supported carrier quotes in.
const DefaultCurrency = "PKR"

// Money represents a monetary amount with currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// PKR builds a Money value in the default currency.
func PKR(amount decimal.Decimal) Money {
	return Money{Amount: amount, Currency: DefaultCurrency}
}

// FeeRequest asks a carrier for the delivery fee of one parcel.
type FeeRequest struct {
	City        string `json:"city"`
	WeightGrams int    `json:"weightGrams"`
}

// Fee is a carrier delivery fee quote.
type Fee struct {
	Carrier string          `json:"carrier"`
	City    string          `json:"city,omitempty"`
	Total   Money           `json:"total"`
	Raw     json.RawMessage `json:"-"`
}

// Consignee is the receiving party of a shipment.
type Consignee struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
}

// ShipmentRequest is the input to a carrier booking.
type ShipmentRequest struct {
	// Reference is the caller's transaction id; carriers echo it back and it
	// doubles as the idempotency reference for reconciliation.
	Reference     string          `json:"reference"`
	Consignee     Consignee       `json:"consignee"`
	WeightGrams   int             `json:"weightGrams"`
	DeclaredValue decimal.Decimal `json:"declaredValue"`
	CODAmount     decimal.Decimal `json:"codAmount"`
	Items         []Item          `json:"items,omitempty"`
	BookedAt      time.Time       `json:"bookedAt"`
}

// Item describes a product in the parcel for carriers that list contents.
type Item struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// Booking is the carrier's acceptance of a shipment.
type Booking struct {
	Carrier    string          `json:"carrier"`
	BookingID  string          `json:"bookingId"`
	TrackingID string          `json:"trackingId"`
	Reference  string          `json:"reference"`
	Charges    *Money          `json:"charges,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

// RawTracking is an unparsed carrier tracking payload.
type RawTracking struct {
	Carrier    string          `json:"carrier"`
	TrackingID string          `json:"trackingId"`
	StatusCode int             `json:"statusCode"`
	Body       json.RawMessage `json:"body"`
}

// TrackingStatus is the canonical shipment status.
type TrackingStatus string

const (
	TrackingNotFound       TrackingStatus = "not_found"
	TrackingBooked         TrackingStatus = "booked"
	TrackingInTransit      TrackingStatus = "in_transit"
	TrackingOutForDelivery TrackingStatus = "out_for_delivery"
	TrackingDelivered      TrackingStatus = "delivered"
	TrackingReturned       TrackingStatus = "returned"
	TrackingException      TrackingStatus = "exception"
)

// Checkpoint is a single scan event.
type Checkpoint struct {
	Time        time.Time `json:"time"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description"`
}

// Tracking is the carrier-independent tracking model.
type Tracking struct {
	Carrier        string         `json:"carrier"`
	TrackingID     string         `json:"trackingId"`
	Status         TrackingStatus `json:"status"`
	LastCheckpoint *Checkpoint    `json:"lastCheckpoint,omitempty"`
	// Delivery is the actual delivery time when DeliveryActual is set,
	// otherwise the carrier's estimate if it gave one.
	Delivery       *time.Time     `json:"delivery,omitempty"`
	DeliveryActual bool           `json:"deliveryActual"`
	Checkpoints    []Checkpoint   `json:"checkpoints"`
}

// NotFoundTracking is the canonical answer for an unknown tracking id.
func NotFoundTracking(carrier, trackingID string) *Tracking {
	return &Tracking{
		Carrier:     carrier,
		TrackingID:  trackingID,
		Status:      TrackingNotFound,
		Checkpoints: []Checkpoint{},
	}
}
