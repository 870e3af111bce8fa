package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tournevent/fulfillment/internal/domain"
	"github.com/tournevent/fulfillment/internal/store"
	"github.com/tournevent/fulfillment/pkg/shipper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OrderView is an order with its shipment, if it has one.
type OrderView struct {
	Order    *domain.Order    `json:"order"`
	Shipment *domain.Shipment `json:"shipment,omitempty"`
}

// OrderTracking is the tracking of a stored order.
type OrderTracking struct {
	Order    *domain.Order     `json:"order"`
	Tracking *shipper.Tracking `json:"tracking"`
}

// Quotes is the result of quoting every carrier. Carriers that failed are
// listed in Errors.
type Quotes struct {
	Fees   []*shipper.Fee `json:"fees"`
	Errors []string       `json:"errors,omitempty"`
}

// GetOrder returns an order with its shipment.
func (o *Orchestrator) GetOrder(ctx context.Context, id uuid.UUID) (*OrderView, error) {
	order, err := o.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	shipment, err := o.shipments.FindByOrderID(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return &OrderView{Order: order, Shipment: shipment}, nil
}

// UpdateStatus moves an order to status. Any state beyond Pending requires
// the order to hold its shipment.
func (o *Orchestrator) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*domain.Order, error) {
	next, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	order, err := o.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	hasShipment := true
	if _, err := o.shipments.FindByOrderID(ctx, id); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		hasShipment = false
	}

	from := order.Status
	if err := order.TransitionTo(next, hasShipment); err != nil {
		return nil, err
	}
	if from == next {
		return order, nil
	}
	if err := o.orders.UpdateStatus(ctx, id, from, next); err != nil {
		return nil, err
	}

	o.logger.Ctx(ctx).Info("Order status updated",
		zap.String("order_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(next)),
	)
	return order, nil
}

// TrackByOrder tracks the shipment of the order with transaction reference
// orderRef. trackingID must be the shipment's tracking or booking id.
func (o *Orchestrator) TrackByOrder(ctx context.Context, orderRef, trackingID string) (*OrderTracking, error) {
	order, err := o.orders.FindByTransactionRef(ctx, strings.TrimSpace(orderRef))
	if err != nil {
		return nil, err
	}
	shipment, err := o.shipments.FindByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	trackingID = strings.TrimSpace(trackingID)
	if trackingID != shipment.TrackingID && trackingID != shipment.BookingID {
		return nil, fmt.Errorf("%w: %s", ErrTrackingMismatch, trackingID)
	}

	tracking, err := o.track(ctx, shipment.Carrier, shipment.TrackingID)
	if err != nil {
		return nil, err
	}
	return &OrderTracking{Order: order, Tracking: tracking}, nil
}

// TrackByNumber tracks a carrier tracking id. The carrier of a stored
// shipment with that id wins over carrierHint; without either the default
// carrier is used.
func (o *Orchestrator) TrackByNumber(ctx context.Context, trackingID, carrierHint string) (*shipper.Tracking, error) {
	trackingID = strings.TrimSpace(trackingID)
	if trackingID == "" {
		return nil, fmt.Errorf("%w: %w", ErrValidation, shipper.ErrInvalidTrackingID)
	}

	carrier := domain.NormalizeShippingMethod(carrierHint)
	shipment, err := o.shipments.FindByTrackingID(ctx, trackingID)
	switch {
	case err == nil:
		carrier = shipment.Carrier
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	if carrier == "" {
		carrier = o.cfg.DefaultCarrier
	}
	return o.track(ctx, carrier, trackingID)
}

// TrackWith tracks trackingID at the named carrier, without consulting
// stored shipments.
func (o *Orchestrator) TrackWith(ctx context.Context, carrier, trackingID string) (*shipper.Tracking, error) {
	trackingID = strings.TrimSpace(trackingID)
	if trackingID == "" {
		return nil, fmt.Errorf("%w: %w", ErrValidation, shipper.ErrInvalidTrackingID)
	}
	return o.track(ctx, domain.NormalizeShippingMethod(carrier), trackingID)
}

func (o *Orchestrator) track(ctx context.Context, carrier, trackingID string) (tracking *shipper.Tracking, err error) {
	ctx, span := o.tracer.Start(ctx, "fulfillment.Track",
		trace.WithAttributes(attribute.String("carrier", carrier)))
	defer func() { shipper.EndSpan(span, err) }()

	s, err := o.registry.Get(carrier)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	tracking, err = shipper.Track(ctx, s, trackingID)
	o.recordCarrierCall("track", carrier, start, err)
	return tracking, err
}

// QuoteFee asks one carrier for the delivery fee of a parcel.
func (o *Orchestrator) QuoteFee(ctx context.Context, carrier, city string, weightGrams int) (*shipper.Fee, error) {
	req, err := feeRequest(city, weightGrams)
	if err != nil {
		return nil, err
	}
	name := domain.NormalizeShippingMethod(carrier)
	s, err := o.registry.Get(name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	fee, err := s.QuoteFee(ctx, req)
	o.recordCarrierCall("quote", name, start, err)
	return fee, err
}

// QuoteAll quotes every registered carrier in parallel.
func (o *Orchestrator) QuoteAll(ctx context.Context, city string, weightGrams int) (*Quotes, error) {
	req, err := feeRequest(city, weightGrams)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	fees, errs := o.registry.QuoteAll(ctx, req)
	o.metrics.RecordRequest("quote_all", "all", "success", time.Since(start).Seconds())

	quotes := &Quotes{Fees: fees}
	if quotes.Fees == nil {
		quotes.Fees = []*shipper.Fee{}
	}
	for _, e := range errs {
		quotes.Errors = append(quotes.Errors, e.Error())
	}
	return quotes, nil
}

func feeRequest(city string, weightGrams int) (*shipper.FeeRequest, error) {
	if weightGrams <= 0 {
		return nil, validationf("weight must be positive")
	}
	return &shipper.FeeRequest{City: strings.TrimSpace(city), WeightGrams: weightGrams}, nil
}
