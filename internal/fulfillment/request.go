package fulfillment

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/tournevent/fulfillment/internal/domain"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

// CheckoutItem is one product line of a checkout.
type CheckoutItem struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

// CheckoutRequest is the storefront checkout payload. Weight is the parcel
// weight in grams and may arrive as a JSON number or string.
type CheckoutRequest struct {
	Email          string             `json:"email" validate:"required,email"`
	FullName       string             `json:"fullName" validate:"required"`
	Address        string             `json:"address" validate:"required"`
	City           string             `json:"city" validate:"required"`
	Phone          string             `json:"phone" validate:"required"`
	ShippingMethod string             `json:"shippingMethod" validate:"required"`
	PaymentMethod  string             `json:"paymentMethod" validate:"required"`
	Products       []CheckoutItem     `json:"products" validate:"required,min=1,dive"`
	TotalAmount    decimal.Decimal    `json:"totalAmount"`
	Weight         shipper.FlexString `json:"weight" validate:"required"`
	ShippingFee    decimal.Decimal    `json:"shippingFee"`
}

// MaxWeightGrams is the heaviest parcel a checkout or quote may declare.
const MaxWeightGrams = 1_000_000

var checkoutValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// checkout is a validated request with its derived values.
type checkout struct {
	req         *CheckoutRequest
	carrierName string
	payment     domain.PaymentMethod
	weightGrams int
}

func (r *CheckoutRequest) validate() (*checkout, error) {
	if err := checkoutValidator.Struct(r); err != nil {
		return nil, describeValidation(err)
	}

	weight, err := decimal.NewFromString(strings.TrimSpace(string(r.Weight)))
	if err != nil {
		return nil, validationf("weight must be numeric")
	}
	if !weight.IsPositive() {
		return nil, validationf("weight must be positive")
	}
	if weight.GreaterThan(decimal.NewFromInt(MaxWeightGrams)) {
		return nil, validationf("weight must not exceed %d grams", MaxWeightGrams)
	}
	if r.TotalAmount.IsNegative() {
		return nil, validationf("totalAmount must not be negative")
	}
	if r.ShippingFee.IsNegative() {
		return nil, validationf("shippingFee must not be negative")
	}

	payment := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(r.PaymentMethod)))
	if !payment.Valid() {
		return nil, validationf("paymentMethod %q is not supported", r.PaymentMethod)
	}

	return &checkout{
		req:         r,
		carrierName: domain.NormalizeShippingMethod(r.ShippingMethod),
		payment:     payment,
		weightGrams: int(weight.Ceil().IntPart()),
	}, nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return validationf("%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeField(fe))
	}
	return validationf("%s", strings.Join(msgs, "; "))
}

func describeField(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min":
		if fe.Kind() == reflect.Slice {
			return field + " must contain at least " + fe.Param() + " item"
		}
		return field + " must be at least " + fe.Param()
	default:
		return field + " is invalid"
	}
}

func (c *checkout) order(ref string) *domain.Order {
	items := make([]domain.LineItem, len(c.req.Products))
	for i, p := range c.req.Products {
		items[i] = domain.LineItem{ProductID: p.ProductID, Quantity: p.Quantity}
	}
	return &domain.Order{
		Email:          strings.ToLower(strings.TrimSpace(c.req.Email)),
		FullName:       strings.TrimSpace(c.req.FullName),
		Address:        strings.TrimSpace(c.req.Address),
		City:           strings.TrimSpace(c.req.City),
		Phone:          strings.TrimSpace(c.req.Phone),
		Items:          items,
		TotalAmount:    c.req.TotalAmount,
		WeightGrams:    c.weightGrams,
		ShippingFee:    c.req.ShippingFee,
		ShippingMethod: c.carrierName,
		PaymentMethod:  c.payment,
		Status:         domain.StatusPending,
		TransactionRef: ref,
	}
}

func shipmentRequest(order *domain.Order) *shipper.ShipmentRequest {
	items := make([]shipper.Item, len(order.Items))
	for i, it := range order.Items {
		items[i] = shipper.Item{SKU: it.ProductID, Quantity: it.Quantity}
	}
	req := &shipper.ShipmentRequest{
		Reference: order.TransactionRef,
		Consignee: shipper.Consignee{
			Name:    order.FullName,
			Address: order.Address,
			City:    order.City,
			Phone:   order.Phone,
			Email:   order.Email,
		},
		WeightGrams:   order.WeightGrams,
		DeclaredValue: order.TotalAmount,
		Items:         items,
	}
	if order.PaymentMethod == domain.PaymentCOD {
		req.CODAmount = order.TotalAmount
	}
	return req
}
