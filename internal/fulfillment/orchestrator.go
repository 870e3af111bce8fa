// Package fulfillment runs the checkout saga: account provisioning, carrier
// booking, order persistence and notification.
package fulfillment

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/tournevent/fulfillment/internal/account"
	"github.com/tournevent/fulfillment/internal/domain"
	"github.com/tournevent/fulfillment/internal/notify"
	"github.com/tournevent/fulfillment/internal/telemetry"
	"github.com/tournevent/fulfillment/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Reconciliation reasons.
const (
	ReasonOrphanedBooking = "orphaned_booking"
	ReasonBookingUnknown  = "booking_outcome_unknown"
	ReasonOrphanedRecord  = "orphaned_record"
)

// Orders is the order storage the orchestrator needs.
type Orders interface {
	Create(ctx context.Context, order *domain.Order) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByTransactionRef(ctx context.Context, ref string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) error
}

// Shipments is the shipment storage the orchestrator needs.
type Shipments interface {
	Create(ctx context.Context, shipment *domain.Shipment) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Shipment, error)
	FindByTrackingID(ctx context.Context, trackingID string) (*domain.Shipment, error)
}

// Products resolves product names for confirmation emails.
type Products interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

// Accounts provisions the account behind a checkout email.
type Accounts interface {
	Provision(ctx context.Context, email, fullName string) (*account.Result, error)
}

// Notifier delivers checkout emails and events.
type Notifier interface {
	Welcome(ctx context.Context, email, credential string) error
	Confirmation(ctx context.Context, data notify.ConfirmationData) error
	AdminAlert(ctx context.Context, data notify.ConfirmationData) error
	OrderCreated(ctx context.Context, event notify.OrderCreated) error
	Reconciliation(ctx context.Context, alert notify.ReconciliationAlert) error
}

// Config configures the Orchestrator.
type Config struct {
	StoreName string
	// DefaultCarrier tracks numbers that match no stored shipment and come
	// without a carrier hint.
	DefaultCarrier string
	// NotifyTimeout bounds post-commit notifications, which outlive the
	// caller's context.
	NotifyTimeout time.Duration
}

// Deps are the collaborators of the Orchestrator.
type Deps struct {
	Registry  *shipper.Registry
	Accounts  Accounts
	Orders    Orders
	Shipments Shipments
	Products  Products
	Notifier  Notifier
	Metrics   *telemetry.Metrics
	Logger    *otelzap.Logger
	Tracer    trace.Tracer
}

// Orchestrator runs checkouts and the order/tracking queries around them.
type Orchestrator struct {
	cfg       Config
	registry  *shipper.Registry
	accounts  Accounts
	orders    Orders
	shipments Shipments
	products  Products
	notifier  Notifier
	metrics   *telemetry.Metrics
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates an Orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.DefaultCarrier == "" {
		cfg.DefaultCarrier = domain.CarrierPakPost
	}
	if cfg.NotifyTimeout == 0 {
		cfg.NotifyTimeout = 30 * time.Second
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/tournevent/fulfillment/internal/fulfillment")
	}
	return &Orchestrator{
		cfg:       cfg,
		registry:  deps.Registry,
		accounts:  deps.Accounts,
		orders:    deps.Orders,
		shipments: deps.Shipments,
		products:  deps.Products,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		tracer:    tracer,
	}
}

// CheckoutResult is a committed checkout.
type CheckoutResult struct {
	Order          *domain.Order    `json:"order"`
	Shipment       *domain.Shipment `json:"shipment"`
	AccountCreated bool             `json:"account_created"`
	Booking        *shipper.Booking `json:"-"`
}

// run holds the state one checkout accumulates as its steps complete.
type run struct {
	*checkout
	ref      string
	carrier  shipper.Shipper
	account  *account.Result
	order    *domain.Order
	booking  *shipper.Booking
	shipment *domain.Shipment
}

// Checkout validates req, provisions the customer account, books the parcel
// with the requested carrier and stores the order with its shipment. Either
// both records are stored or neither is. Notifications are sent after the
// records are committed and never fail the checkout.
func (o *Orchestrator) Checkout(ctx context.Context, req *CheckoutRequest) (result *CheckoutResult, err error) {
	ctx, span := o.tracer.Start(ctx, "fulfillment.Checkout")
	defer func() { shipper.EndSpan(span, err) }()

	start := time.Now()
	r := &run{}

	steps := []step{
		{name: StepValidate, action: func(ctx context.Context) error { return o.validate(ctx, r, req) }},
		{name: StepProvision, action: func(ctx context.Context) error { return o.provision(ctx, r) }},
		{name: StepBook, action: func(ctx context.Context) error { return o.book(ctx, r) },
			compensate: func(ctx context.Context, cause error) error { return o.reportOrphanedBooking(ctx, r, cause) }},
		{name: StepPersistOrder, action: func(ctx context.Context) error { return o.persistOrder(ctx, r) },
			compensate: func(ctx context.Context, _ error) error { return o.orders.Delete(ctx, r.order.ID) }},
		{name: StepPersistShipment, action: func(ctx context.Context) error { return o.persistShipment(ctx, r) }},
	}

	if err := o.runSteps(ctx, r, steps); err != nil {
		return nil, err
	}

	o.metrics.RecordCheckout("success", "commit")
	o.logger.Ctx(ctx).Info("Checkout committed",
		zap.String("order_id", r.order.ID.String()),
		zap.String("transaction_ref", r.ref),
		zap.String("carrier", r.carrier.Name()),
		zap.String("tracking_id", r.booking.TrackingID),
		zap.Bool("account_created", r.account.Created),
		zap.Duration("duration", time.Since(start)),
	)

	o.notify(ctx, r)

	return &CheckoutResult{
		Order:          r.order,
		Shipment:       r.shipment,
		AccountCreated: r.account.Created,
		Booking:        r.booking,
	}, nil
}

func (o *Orchestrator) validate(ctx context.Context, r *run, req *CheckoutRequest) error {
	if req == nil {
		return validationf("request body is required")
	}
	c, err := req.validate()
	if err != nil {
		return err
	}
	carrier, err := o.registry.Get(c.carrierName)
	if err != nil {
		return fmt.Errorf("%w: shippingMethod %q: %w", ErrValidation, req.ShippingMethod, err)
	}
	ref, err := newTransactionRef()
	if err != nil {
		return fmt.Errorf("generating transaction reference: %w", err)
	}
	r.checkout, r.carrier, r.ref = c, carrier, ref
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("carrier", carrier.Name()),
		attribute.String("transaction_ref", ref),
	)
	return nil
}

func (o *Orchestrator) provision(ctx context.Context, r *run) error {
	res, err := o.accounts.Provision(ctx, r.req.Email, r.req.FullName)
	if err != nil {
		return fmt.Errorf("provisioning account: %w", err)
	}
	r.account = res
	r.order = r.checkout.order(r.ref)
	r.order.AccountID = &res.Account.ID
	return nil
}

// book is the only step with an external side effect that cannot be undone.
// It is never retried: a timeout or transport failure leaves the outcome
// unknown and is raised for reconciliation instead.
func (o *Orchestrator) book(ctx context.Context, r *run) error {
	req := shipmentRequest(r.order)
	req.BookedAt = time.Now()

	start := time.Now()
	booking, err := r.carrier.BookShipment(ctx, req)
	o.recordCarrierCall("book", r.carrier.Name(), start, err)
	if err != nil {
		if shipper.IsOutcomeUnknown(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			o.reconcile(ctx, notify.ReconciliationAlert{
				Reason:         ReasonBookingUnknown,
				Step:           StepBook,
				Carrier:        r.carrier.Name(),
				TransactionRef: r.ref,
				Error:          err.Error(),
			})
			return &Error{Step: StepBook, Err: err, Reconcile: true}
		}
		return err
	}

	r.booking = booking
	r.shipment = &domain.Shipment{
		Carrier:     r.carrier.Name(),
		WeightGrams: r.weightGrams,
		Charges:     r.req.ShippingFee,
		BookingID:   booking.BookingID,
		TrackingID:  booking.TrackingID,
	}
	if r.shipment.Charges.IsZero() && booking.Charges != nil {
		r.shipment.Charges = booking.Charges.Amount
	}
	return nil
}

func (o *Orchestrator) persistOrder(ctx context.Context, r *run) error {
	if err := o.orders.Create(ctx, r.order); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

func (o *Orchestrator) persistShipment(ctx context.Context, r *run) error {
	r.shipment.OrderID = r.order.ID
	if err := o.shipments.Create(ctx, r.shipment); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// reportOrphanedBooking compensates a booking whose order could not be
// stored. Carrier cancellation is not available, so an operator is alerted.
func (o *Orchestrator) reportOrphanedBooking(ctx context.Context, r *run, cause error) error {
	o.reconcile(ctx, notify.ReconciliationAlert{
		Reason:         ReasonOrphanedBooking,
		Step:           StepBook,
		Carrier:        r.carrier.Name(),
		TransactionRef: r.ref,
		BookingID:      r.booking.BookingID,
		TrackingID:     r.booking.TrackingID,
		Error:          cause.Error(),
	})
	return nil
}

// reconcile logs, counts and publishes an alert. Publishing is best effort;
// the log line is the record of last resort.
func (o *Orchestrator) reconcile(ctx context.Context, alert notify.ReconciliationAlert) {
	alert.RaisedAt = time.Now().UTC()
	o.metrics.RecordReconciliation(alert.Reason)
	o.logger.Ctx(ctx).Error("Manual reconciliation required",
		zap.String("reason", alert.Reason),
		zap.String("step", alert.Step),
		zap.String("carrier", alert.Carrier),
		zap.String("transaction_ref", alert.TransactionRef),
		zap.String("booking_id", alert.BookingID),
		zap.String("tracking_id", alert.TrackingID),
		zap.String("order_id", alert.OrderID),
		zap.String("error", alert.Error),
	)
	if err := o.notifier.Reconciliation(ctx, alert); err != nil {
		o.metrics.RecordNotificationFailure("reconciliation")
		o.logger.Ctx(ctx).Warn("Failed to publish reconciliation alert",
			zap.String("transaction_ref", alert.TransactionRef),
			zap.Error(fmt.Errorf("%w: %w", ErrNotification, err)),
		)
	}
}

// notify sends the post-commit notifications. Failures are logged and
// counted only.
func (o *Orchestrator) notify(ctx context.Context, r *run) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.NotifyTimeout)
	defer cancel()

	failed := func(kind string, err error) {
		o.metrics.RecordNotificationFailure(kind)
		o.logger.Ctx(ctx).Warn("Checkout notification failed",
			zap.String("kind", kind),
			zap.String("order_id", r.order.ID.String()),
			zap.Error(fmt.Errorf("%w: %w", ErrNotification, err)),
		)
	}

	if r.account.Created {
		if err := o.notifier.Welcome(ctx, r.account.Account.Email, r.account.Credential); err != nil {
			failed("welcome", err)
		}
	}

	catalog, err := o.products.FindByIDs(ctx, productIDs(r.order))
	if err != nil {
		o.logger.Ctx(ctx).Warn("Failed to load products for confirmation", zap.Error(err))
		catalog = nil
	}
	data := notify.NewConfirmationData(o.cfg.StoreName, r.order, r.shipment, catalog)

	if err := o.notifier.Confirmation(ctx, data); err != nil {
		failed("confirmation", err)
	}
	if err := o.notifier.AdminAlert(ctx, data); err != nil {
		failed("admin_alert", err)
	}

	event := notify.OrderCreated{
		OrderID:        r.order.ID.String(),
		TransactionRef: r.ref,
		Email:          r.order.Email,
		Carrier:        r.shipment.Carrier,
		TrackingID:     r.shipment.TrackingID,
		TotalAmount:    r.order.TotalAmount,
		AccountCreated: r.account.Created,
		CreatedAt:      r.order.CreatedAt,
	}
	if err := o.notifier.OrderCreated(ctx, event); err != nil {
		failed("order_created", err)
	}
}

func (o *Orchestrator) recordCarrierCall(operation, carrier string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		o.metrics.RecordError(carrier, errorType(err))
	}
	o.metrics.RecordRequest(operation, carrier, status, time.Since(start).Seconds())
}

func errorType(err error) string {
	var se *shipper.ShipperError
	if errors.As(err, &se) {
		return se.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "TIMEOUT"
	}
	return "UNKNOWN"
}

func productIDs(order *domain.Order) []string {
	ids := make([]string, 0, len(order.Items))
	for _, it := range order.Items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

// newTransactionRef returns a random 10-digit numeric reference. Carriers
// echo it back and it is unique per order.
func newTransactionRef() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9_000_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+1_000_000_000), nil
}
