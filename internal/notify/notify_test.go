package notify_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/fulfillment/internal/domain"
	"github.com/tournevent/fulfillment/internal/notify"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (m *recordingMailer) Send(ctx context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func sampleOrder() (*domain.Order, *domain.Shipment) {
	order := &domain.Order{
		Email:          "ayesha@example.com",
		FullName:       "Ayesha Khan",
		Address:        "12 Mall Road",
		City:           "Lahore",
		Phone:          "03001234567",
		Items:          []domain.LineItem{{ProductID: "p-1", Quantity: 2}, {ProductID: "gone", Quantity: 1}},
		TotalAmount:    decimal.NewFromInt(2500),
		ShippingMethod: domain.CarrierPakPost,
		PaymentMethod:  domain.PaymentCOD,
		TransactionRef: "482913",
	}
	shipment := &domain.Shipment{Carrier: domain.CarrierPakPost, BookingID: "77881", TrackingID: "VPL26030001"}
	return order, shipment
}

func TestRenderConfirmation(t *testing.T) {
	order, shipment := sampleOrder()
	data := notify.NewConfirmationData("Raasid", order, shipment, map[string]domain.Product{
		"p-1": {ID: "p-1", Name: "Peshawari <Chappal>"},
	})

	html, err := notify.RenderConfirmation(data)

	require.NoError(t, err)
	assert.Contains(t, html, "Thank you for your order at <strong>Raasid</strong>")
	assert.Contains(t, html, "Peshawari &lt;Chappal&gt;")
	assert.Contains(t, html, "Unnamed Product")
	assert.Contains(t, html, "2500.00 PKR")
	assert.Contains(t, html, "Pakistan Post Article Number:</strong> VPL26030001")
	assert.Contains(t, html, "12 Mall Road, Lahore")
}

func TestRenderAdminAlert_TCSLabel(t *testing.T) {
	order, shipment := sampleOrder()
	shipment.Carrier = domain.CarrierTCS
	shipment.TrackingID = "779900112233"

	html, err := notify.RenderAdminAlert(notify.NewConfirmationData("Raasid", order, shipment, nil))

	require.NoError(t, err)
	assert.Contains(t, html, "New order placed by Ayesha Khan")
	assert.Contains(t, html, "Consignment Number:</strong> 779900112233")
}

func TestNotifier_Emails(t *testing.T) {
	mailer := &recordingMailer{}
	n := notify.NewNotifier(notify.Config{
		From:       "orders@raasid.pk",
		AdminEmail: "ops@raasid.pk",
		StoreName:  "Raasid",
		LoginURL:   "https://raasid.pk/login",
	}, mailer, notify.NewLogPublisher(otelzap.New(zap.NewNop())))
	ctx := context.Background()

	require.NoError(t, n.Welcome(ctx, "ayesha@example.com", "s3cretPass"))
	order, shipment := sampleOrder()
	data := notify.NewConfirmationData("Raasid", order, shipment, nil)
	require.NoError(t, n.Confirmation(ctx, data))
	require.NoError(t, n.AdminAlert(ctx, data))

	require.Len(t, mailer.sent, 3)
	assert.Equal(t, []string{"ayesha@example.com"}, mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].HTML, "s3cretPass")
	assert.Contains(t, mailer.sent[0].HTML, "https://raasid.pk/login")
	assert.Equal(t, `"Raasid" <orders@raasid.pk>`, mailer.sent[0].From)
	assert.Equal(t, "Your Raasid Order Confirmation", mailer.sent[1].Subject)
	assert.Equal(t, []string{"ops@raasid.pk"}, mailer.sent[2].To)
}

func TestNotifier_AdminAlertWithoutAddress(t *testing.T) {
	mailer := &recordingMailer{}
	n := notify.NewNotifier(notify.Config{From: "orders@raasid.pk"}, mailer, nil)
	order, shipment := sampleOrder()

	require.NoError(t, n.AdminAlert(context.Background(), notify.NewConfirmationData("", order, shipment, nil)))
	assert.Empty(t, mailer.sent)
}

func TestFormatMessage(t *testing.T) {
	raw := string(notify.FormatMessage(notify.Message{
		From:    `"Raasid" <orders@raasid.pk>`,
		To:      []string{"a@example.com", "b@example.com"},
		Subject: "Order 482913",
		HTML:    "<p>line one</p>\n<p>line two</p>",
	}))

	assert.True(t, strings.HasPrefix(raw, "From: \"Raasid\" <orders@raasid.pk>\r\n"))
	assert.Contains(t, raw, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, raw, "Subject: Order 482913\r\n")
	assert.Contains(t, raw, "Content-Type: text/html; charset=UTF-8\r\n")
	assert.Contains(t, raw, "\r\n\r\n<p>line one</p>\r\n<p>line two</p>")
}

func TestNATSPublisher(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync(notify.SubjectReconciliation)
	require.NoError(t, err)

	n := notify.NewNotifier(notify.Config{}, &recordingMailer{}, notify.NewNATSPublisher(nc))
	err = n.Reconciliation(context.Background(), notify.ReconciliationAlert{
		Reason:     "orphaned_booking",
		Step:       "persist-order",
		Carrier:    "pakpost",
		TrackingID: "VPL1",
		Error:      "db down",
	})
	require.NoError(t, err)

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)

	var alert notify.ReconciliationAlert
	require.NoError(t, json.Unmarshal(msg.Data, &alert))
	assert.Equal(t, "orphaned_booking", alert.Reason)
	assert.Equal(t, "VPL1", alert.TrackingID)
}

func TestNATSPublisher_ClosedConnection(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	nc.Close()

	err = notify.NewNATSPublisher(nc).Publish(context.Background(), notify.SubjectOrderCreated, notify.OrderCreated{OrderID: "x"})
	assert.Error(t, err)
}
