package fulfillment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/fulfillment/internal/account"
	"github.com/tournevent/fulfillment/internal/domain"
	"github.com/tournevent/fulfillment/internal/fulfillment"
	"github.com/tournevent/fulfillment/internal/notify"
	"github.com/tournevent/fulfillment/internal/store"
	"github.com/tournevent/fulfillment/internal/store/storetest"
	"github.com/tournevent/fulfillment/internal/telemetry"
	"github.com/tournevent/fulfillment/pkg/shipper"
	"github.com/tournevent/fulfillment/pkg/shipper/mock"
	"github.com/tournevent/fulfillment/pkg/shipper/pakpost"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	welcomes        []string
	confirmations   []notify.ConfirmationData
	adminAlerts     int
	events          []notify.OrderCreated
	reconciliations []notify.ReconciliationAlert
	failConfirm     error
}

func (n *recordingNotifier) Welcome(ctx context.Context, email, credential string) error {
	n.welcomes = append(n.welcomes, email)
	return nil
}

func (n *recordingNotifier) Confirmation(ctx context.Context, data notify.ConfirmationData) error {
	if n.failConfirm != nil {
		return n.failConfirm
	}
	n.confirmations = append(n.confirmations, data)
	return nil
}

func (n *recordingNotifier) AdminAlert(ctx context.Context, data notify.ConfirmationData) error {
	n.adminAlerts++
	return nil
}

func (n *recordingNotifier) OrderCreated(ctx context.Context, event notify.OrderCreated) error {
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) Reconciliation(ctx context.Context, alert notify.ReconciliationAlert) error {
	n.reconciliations = append(n.reconciliations, alert)
	return nil
}

type failingOrders struct {
	*store.OrderRepository
	createErr error
	deleteErr error
}

func (f *failingOrders) Create(ctx context.Context, order *domain.Order) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.OrderRepository.Create(ctx, order)
}

func (f *failingOrders) Delete(ctx context.Context, id uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.OrderRepository.Delete(ctx, id)
}

type failingShipments struct {
	*store.ShipmentRepository
	createErr error
}

func (f *failingShipments) Create(ctx context.Context, shipment *domain.Shipment) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.ShipmentRepository.Create(ctx, shipment)
}

type harness struct {
	db         *gorm.DB
	orch       *fulfillment.Orchestrator
	notifier   *recordingNotifier
	pakpostAPI *pakpost.MockAPIClient
	tcs        *mock.Client
	orders     *failingOrders
	shipments  *failingShipments
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := storetest.New(t)
	logger := otelzap.New(zap.NewNop())

	pakpostAPI := pakpost.NewMockAPIClient()
	registry := shipper.NewRegistry()
	registry.Register(pakpost.NewWithAPIClient(
		pakpost.Config{Retry: shipper.RetryPolicy{MaxAttempts: 1, InitialInterval: time.Millisecond}},
		pakpostAPI, logger, nil,
	))
	tcs := mock.New(domain.CarrierTCS)
	registry.Register(tcs)

	h := &harness{
		db:         db,
		notifier:   &recordingNotifier{},
		pakpostAPI: pakpostAPI,
		tcs:        tcs,
		orders:     &failingOrders{OrderRepository: store.NewOrderRepository(db)},
		shipments:  &failingShipments{ShipmentRepository: store.NewShipmentRepository(db)},
	}
	h.orch = fulfillment.New(fulfillment.Config{StoreName: "Raasid"}, fulfillment.Deps{
		Registry:  registry,
		Accounts:  account.NewProvisioner(store.NewAccountRepository(db), logger, account.WithHashCost(bcrypt.MinCost)),
		Orders:    h.orders,
		Shipments: h.shipments,
		Products:  store.NewProductRepository(db),
		Notifier:  h.notifier,
		Metrics:   telemetry.NewMetrics(prometheus.NewRegistry()),
		Logger:    logger,
	})
	return h
}

func (h *harness) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(model).Count(&n).Error)
	return n
}

func lahoreCheckout() *fulfillment.CheckoutRequest {
	return &fulfillment.CheckoutRequest{
		Email:          "Ayesha@Example.com",
		FullName:       "Ayesha Khan",
		Address:        "12 Mall Road",
		City:           "Lahore",
		Phone:          "03001234567",
		ShippingMethod: "PostOffice",
		PaymentMethod:  "cod",
		Products:       []fulfillment.CheckoutItem{{ProductID: "shawl-01", Quantity: 2}},
		TotalAmount:    decimal.NewFromInt(2500),
		Weight:         "500",
		ShippingFee:    decimal.NewFromInt(150),
	}
}

func TestCheckout_PakPostLahore(t *testing.T) {
	h := newHarness(t)
	var booked *pakpost.TransactionRequest
	h.pakpostAPI.OnCreateTransaction = func(ctx context.Context, token string, req *pakpost.TransactionRequest) (*pakpost.TransactionResponse, error) {
		booked = req
		return &pakpost.TransactionResponse{Status: 200, OrderID: "PP7781", ArticleTrackingNo: "VPL26030001"}, nil
	}

	res, err := h.orch.Checkout(context.Background(), lahoreCheckout())

	require.NoError(t, err)
	assert.True(t, res.AccountCreated)
	assert.Equal(t, domain.StatusPending, res.Order.Status)
	assert.Equal(t, domain.CarrierPakPost, res.Order.ShippingMethod)
	assert.Equal(t, "ayesha@example.com", res.Order.Email)
	require.NotNil(t, res.Order.AccountID)
	assert.Len(t, res.Order.TransactionRef, 10)

	assert.Equal(t, res.Order.ID, res.Shipment.OrderID)
	assert.Equal(t, "PP7781", res.Shipment.BookingID)
	assert.Equal(t, "VPL26030001", res.Shipment.TrackingID)
	assert.Equal(t, 500, res.Shipment.WeightGrams)
	assert.True(t, decimal.NewFromInt(150).Equal(res.Shipment.Charges))

	require.NotNil(t, booked)
	assert.Equal(t, res.Order.TransactionRef, booked.TransactionID)
	assert.Equal(t, 500, booked.WeightInGrams)
	assert.Equal(t, "2500.00", booked.Amount)

	assert.Equal(t, int64(1), h.count(t, &store.OrderModel{}))
	assert.Equal(t, int64(1), h.count(t, &store.ShipmentModel{}))

	view, err := h.orch.GetOrder(context.Background(), res.Order.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Shipment)
	assert.Equal(t, "VPL26030001", view.Shipment.TrackingID)

	assert.Equal(t, []string{"ayesha@example.com"}, h.notifier.welcomes)
	require.Len(t, h.notifier.confirmations, 1)
	assert.Equal(t, "Pakistan Post Article Number", h.notifier.confirmations[0].TrackingLabel)
	assert.Equal(t, "Unnamed Product", h.notifier.confirmations[0].Products[0].Name)
	assert.Equal(t, 1, h.notifier.adminAlerts)
	require.Len(t, h.notifier.events, 1)
	assert.Equal(t, "VPL26030001", h.notifier.events[0].TrackingID)
	assert.Empty(t, h.notifier.reconciliations)
}

func TestCheckout_ReusesAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.orch.Checkout(ctx, lahoreCheckout())
	require.NoError(t, err)
	second, err := h.orch.Checkout(ctx, lahoreCheckout())
	require.NoError(t, err)

	assert.True(t, first.AccountCreated)
	assert.False(t, second.AccountCreated)
	assert.Equal(t, *first.Order.AccountID, *second.Order.AccountID)
	assert.NotEqual(t, first.Order.TransactionRef, second.Order.TransactionRef)
	assert.Len(t, h.notifier.welcomes, 1)
	assert.Len(t, h.notifier.confirmations, 2)
	assert.Equal(t, int64(1), h.count(t, &store.AccountModel{}))
}

func TestCheckout_ProductNamesInConfirmation(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, store.NewProductRepository(h.db).Save(context.Background(),
		domain.Product{ID: "shawl-01", Name: "Kashmiri Shawl", Price: decimal.NewFromInt(1250)}))

	_, err := h.orch.Checkout(context.Background(), lahoreCheckout())

	require.NoError(t, err)
	require.Len(t, h.notifier.confirmations, 1)
	assert.Equal(t, "Kashmiri Shawl", h.notifier.confirmations[0].Products[0].Name)
}

func TestCheckout_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *fulfillment.CheckoutRequest)
		msg    string
	}{
		{"missing email", func(r *fulfillment.CheckoutRequest) { r.Email = "" }, "email is required"},
		{"bad email", func(r *fulfillment.CheckoutRequest) { r.Email = "not-an-email" }, "email must be a valid email"},
		{"missing address", func(r *fulfillment.CheckoutRequest) { r.Address = "" }, "address is required"},
		{"no products", func(r *fulfillment.CheckoutRequest) { r.Products = nil }, "products is required"},
		{"empty products", func(r *fulfillment.CheckoutRequest) { r.Products = []fulfillment.CheckoutItem{} }, "products must contain at least 1 item"},
		{"zero quantity", func(r *fulfillment.CheckoutRequest) { r.Products[0].Quantity = 0 }, "products[0].quantity must be at least 1"},
		{"missing weight", func(r *fulfillment.CheckoutRequest) { r.Weight = "" }, "weight is required"},
		{"non-numeric weight", func(r *fulfillment.CheckoutRequest) { r.Weight = "heavy" }, "weight must be numeric"},
		{"negative weight", func(r *fulfillment.CheckoutRequest) { r.Weight = "-5" }, "weight must be positive"},
		{"weight past int64", func(r *fulfillment.CheckoutRequest) { r.Weight = "18446744073709551616" }, "weight must not exceed"},
		{"weight in exponent form", func(r *fulfillment.CheckoutRequest) { r.Weight = "1e19" }, "weight must not exceed"},
		{"huge weight", func(r *fulfillment.CheckoutRequest) { r.Weight = "1e30" }, "weight must not exceed"},
		{"just over the limit", func(r *fulfillment.CheckoutRequest) { r.Weight = "1000000.5" }, "weight must not exceed"},
		{"unknown payment", func(r *fulfillment.CheckoutRequest) { r.PaymentMethod = "bitcoin" }, "paymentMethod"},
		{"unknown carrier", func(r *fulfillment.CheckoutRequest) { r.ShippingMethod = "Leopards" }, "shippingMethod"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			req := lahoreCheckout()
			tt.mutate(req)

			_, err := h.orch.Checkout(context.Background(), req)

			require.Error(t, err)
			assert.ErrorIs(t, err, fulfillment.ErrValidation)
			assert.Contains(t, err.Error(), tt.msg)
			var stepErr *fulfillment.Error
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, fulfillment.StepValidate, stepErr.Step)
			assert.Equal(t, 0, h.tcs.Bookings())
			assert.Equal(t, int64(0), h.count(t, &store.AccountModel{}))
		})
	}
}

func TestCheckout_UnknownCarrierIsNotFound(t *testing.T) {
	h := newHarness(t)
	req := lahoreCheckout()
	req.ShippingMethod = "M&P"

	_, err := h.orch.Checkout(context.Background(), req)

	assert.ErrorIs(t, err, shipper.ErrCarrierNotFound)
}

func TestCheckout_BookingRejected(t *testing.T) {
	h := newHarness(t)
	h.pakpostAPI.OnCreateTransaction = func(ctx context.Context, token string, req *pakpost.TransactionRequest) (*pakpost.TransactionResponse, error) {
		return &pakpost.TransactionResponse{Status: 400, Message: "Invalid city"}, nil
	}

	res, err := h.orch.Checkout(context.Background(), lahoreCheckout())

	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, shipper.ErrBookingFailed)
	var stepErr *fulfillment.Error
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, fulfillment.StepBook, stepErr.Step)
	assert.False(t, stepErr.Reconcile)

	assert.Equal(t, int64(0), h.count(t, &store.OrderModel{}))
	assert.Equal(t, int64(0), h.count(t, &store.ShipmentModel{}))
	// The account stays: provisioning is not compensated.
	assert.Equal(t, int64(1), h.count(t, &store.AccountModel{}))
	assert.Empty(t, h.notifier.confirmations)
	assert.Empty(t, h.notifier.reconciliations)
}

func TestCheckout_BookingOutcomeUnknown(t *testing.T) {
	h := newHarness(t)
	req := lahoreCheckout()
	req.ShippingMethod = "TCS"
	h.tcs.OnBookShipment = func(ctx context.Context, r *shipper.ShipmentRequest) (*shipper.Booking, error) {
		return nil, shipper.NewShipperError("tcs", shipper.ErrBookingFailed, "OUTCOME_UNKNOWN",
			"connection reset").WithOutcomeUnknown()
	}

	_, err := h.orch.Checkout(context.Background(), req)

	require.Error(t, err)
	var stepErr *fulfillment.Error
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, fulfillment.StepBook, stepErr.Step)
	assert.True(t, stepErr.Reconcile)
	assert.Equal(t, 1, h.tcs.Bookings())

	require.Len(t, h.notifier.reconciliations, 1)
	alert := h.notifier.reconciliations[0]
	assert.Equal(t, fulfillment.ReasonBookingUnknown, alert.Reason)
	assert.Equal(t, "tcs", alert.Carrier)
	assert.Equal(t, h.tcs.BookedRequests()[0].Reference, alert.TransactionRef)
	assert.Equal(t, int64(0), h.count(t, &store.OrderModel{}))
}

func TestCheckout_OrderPersistenceFails(t *testing.T) {
	h := newHarness(t)
	h.orders.createErr = errors.New("connection refused")

	_, err := h.orch.Checkout(context.Background(), lahoreCheckout())

	require.Error(t, err)
	assert.ErrorIs(t, err, fulfillment.ErrPersistence)
	var stepErr *fulfillment.Error
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, fulfillment.StepPersistOrder, stepErr.Step)
	assert.True(t, stepErr.Reconcile)

	require.Len(t, h.notifier.reconciliations, 1)
	alert := h.notifier.reconciliations[0]
	assert.Equal(t, fulfillment.ReasonOrphanedBooking, alert.Reason)
	assert.Equal(t, "pakpost", alert.Carrier)
	assert.NotEmpty(t, alert.TrackingID)
	assert.Contains(t, alert.Error, "connection refused")
	assert.Empty(t, h.notifier.confirmations)
}

func TestCheckout_ShipmentPersistenceFailsDeletesOrder(t *testing.T) {
	h := newHarness(t)
	h.shipments.createErr = store.ErrDuplicate

	_, err := h.orch.Checkout(context.Background(), lahoreCheckout())

	require.Error(t, err)
	assert.ErrorIs(t, err, fulfillment.ErrPersistence)
	assert.ErrorIs(t, err, store.ErrDuplicate)
	var stepErr *fulfillment.Error
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, fulfillment.StepPersistShipment, stepErr.Step)
	assert.True(t, stepErr.Reconcile)

	assert.Equal(t, int64(0), h.count(t, &store.OrderModel{}))
	assert.Equal(t, int64(0), h.count(t, &store.ShipmentModel{}))
	require.Len(t, h.notifier.reconciliations, 1)
	assert.Equal(t, fulfillment.ReasonOrphanedBooking, h.notifier.reconciliations[0].Reason)
}

func TestCheckout_FailedCompensationIsReported(t *testing.T) {
	h := newHarness(t)
	h.shipments.createErr = errors.New("disk full")
	h.orders.deleteErr = errors.New("connection lost")

	_, err := h.orch.Checkout(context.Background(), lahoreCheckout())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	require.Len(t, h.notifier.reconciliations, 2)
	assert.Equal(t, fulfillment.ReasonOrphanedRecord, h.notifier.reconciliations[0].Reason)
	assert.Equal(t, fulfillment.StepPersistOrder, h.notifier.reconciliations[0].Step)
	assert.NotEmpty(t, h.notifier.reconciliations[0].OrderID)
	assert.Equal(t, fulfillment.ReasonOrphanedBooking, h.notifier.reconciliations[1].Reason)
}

func TestCheckout_NotificationFailureKeepsOrder(t *testing.T) {
	h := newHarness(t)
	h.notifier.failConfirm = errors.New("smtp: 421 service not available")

	res, err := h.orch.Checkout(context.Background(), lahoreCheckout())

	require.NoError(t, err)
	assert.NotNil(t, res.Order)
	assert.Equal(t, int64(1), h.count(t, &store.OrderModel{}))
	assert.Equal(t, 1, h.notifier.adminAlerts)
	assert.Len(t, h.notifier.events, 1)
}

func TestCheckout_CarrierCharges(t *testing.T) {
	h := newHarness(t)
	req := lahoreCheckout()
	req.ShippingMethod = "tcs"
	req.ShippingFee = decimal.Zero
	h.tcs.OnBookShipment = func(ctx context.Context, r *shipper.ShipmentRequest) (*shipper.Booking, error) {
		charges := shipper.PKR(decimal.NewFromInt(310))
		return &shipper.Booking{Carrier: "tcs", BookingID: "T-1", TrackingID: "779900112233", Charges: &charges}, nil
	}

	res, err := h.orch.Checkout(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(310).Equal(res.Shipment.Charges))
	assert.Equal(t, "Consignment Number", h.notifier.confirmations[0].TrackingLabel)
	booked := h.tcs.BookedRequests()[0]
	assert.Equal(t, "Ayesha Khan", booked.Consignee.Name)
	assert.True(t, decimal.NewFromInt(2500).Equal(booked.CODAmount))
}

func TestCheckout_CardPaymentHasNoCOD(t *testing.T) {
	h := newHarness(t)
	req := lahoreCheckout()
	req.ShippingMethod = "tcs"
	req.PaymentMethod = "Card"

	res, err := h.orch.Checkout(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCard, res.Order.PaymentMethod)
	assert.True(t, h.tcs.BookedRequests()[0].CODAmount.IsZero())
}
