// Package domain holds the storefront's order, shipment, account and city types.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidTransition is returned when an order status change is not allowed.
var ErrInvalidTransition = errors.New("invalid order status transition")

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "Pending"
	StatusProcessing OrderStatus = "Processing"
	StatusShipped    OrderStatus = "Shipped"
	StatusDelivered  OrderStatus = "Delivered"
	StatusCancelled  OrderStatus = "Cancelled"
)

var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
}

// ParseOrderStatus matches a status name case-insensitively.
func ParseOrderStatus(s string) (OrderStatus, error) {
	for _, st := range []OrderStatus{StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled} {
		if strings.EqualFold(string(st), strings.TrimSpace(s)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// Terminal reports whether no further transitions are possible.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransitionTo reports whether s may move to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentMethod is recorded on the order; it is never charged here.
type PaymentMethod string

const (
	PaymentCOD  PaymentMethod = "cod"
	PaymentCard PaymentMethod = "card"
)

// Valid reports whether p is a known payment method.
func (p PaymentMethod) Valid() bool {
	return p == PaymentCOD || p == PaymentCard
}

// Carrier identifiers used as order shipping methods.
const (
	CarrierPakPost = "pakpost"
	CarrierTCS     = "tcs"
)

var shippingAliases = map[string]string{
	"pakpost":         CarrierPakPost,
	"postoffice":      CarrierPakPost,
	"post office":     CarrierPakPost,
	"pakistan post":   CarrierPakPost,
	"national-postal": CarrierPakPost,
	"tcs":             CarrierTCS,
}

// NormalizeShippingMethod maps a checkout shipping method onto a carrier
// identifier. Unknown values are returned lower-cased so the registry lookup
// reports them.
func NormalizeShippingMethod(method string) string {
	key := strings.ToLower(strings.TrimSpace(method))
	if carrier, ok := shippingAliases[key]; ok {
		return carrier
	}
	return key
}

// LineItem is one product reference on an order.
type LineItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Order is a committed customer order.
type Order struct {
	ID             uuid.UUID       `json:"id"`
	AccountID      *uuid.UUID      `json:"account_id,omitempty"`
	Email          string          `json:"email"`
	FullName       string          `json:"full_name"`
	Address        string          `json:"address"`
	City           string          `json:"city"`
	Phone          string          `json:"phone"`
	Items          []LineItem      `json:"items"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	WeightGrams    int             `json:"weight_grams"`
	ShippingFee    decimal.Decimal `json:"shipping_fee"`
	ShippingMethod string          `json:"shipping_method"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	Status         OrderStatus     `json:"status"`
	TransactionRef string          `json:"transaction_ref"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TransitionTo moves the order to next, enforcing the status table.
// hasShipment must be true for any state beyond Pending.
func (o *Order) TransitionTo(next OrderStatus, hasShipment bool) error {
	if o.Status == next {
		return nil
	}
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	if next != StatusCancelled && !hasShipment {
		return fmt.Errorf("%w: order %s has no shipment", ErrInvalidTransition, o.ID)
	}
	o.Status = next
	return nil
}

// Shipment is the carrier booking linked one-to-one to an order.
type Shipment struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	Carrier     string          `json:"carrier"`
	WeightGrams int             `json:"weight_grams"`
	Charges     decimal.Decimal `json:"charges"`
	BookingID   string          `json:"booking_id"`
	TrackingID  string          `json:"tracking_id"`
	CreatedAt   time.Time       `json:"created_at"`
}
