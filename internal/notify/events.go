package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Event subjects.
const (
	SubjectOrderCreated   = "orders.created"
	SubjectReconciliation = "orders.reconciliation"
)

// FlushWithContext refuses contexts without a deadline.
const flushTimeout = 2 * time.Second

// OrderCreated is published after a checkout commits.
type OrderCreated struct {
	OrderID        string          `json:"order_id"`
	TransactionRef string          `json:"transaction_ref"`
	Email          string          `json:"email"`
	Carrier        string          `json:"carrier"`
	TrackingID     string          `json:"tracking_id"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	AccountCreated bool            `json:"account_created"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ReconciliationAlert reports a carrier booking or stored record that the
// checkout could not account for and that an operator must resolve.
type ReconciliationAlert struct {
	Reason         string    `json:"reason"`
	Step           string    `json:"step"`
	Carrier        string    `json:"carrier,omitempty"`
	TransactionRef string    `json:"transaction_ref,omitempty"`
	BookingID      string    `json:"booking_id,omitempty"`
	TrackingID     string    `json:"tracking_id,omitempty"`
	OrderID        string    `json:"order_id,omitempty"`
	Error          string    `json:"error"`
	RaisedAt       time.Time `json:"raised_at"`
}

// Publisher publishes JSON events.
type Publisher interface {
	Publish(ctx context.Context, subject string, event any) error
}

// NATSPublisher publishes events on a NATS connection.
type NATSPublisher struct {
	nc *nats.Conn
}

// NewNATSPublisher creates a NATSPublisher.
func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

// Connect dials NATS with reconnects enabled.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("storefront-fulfillment"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// Publish marshals event and publishes it on subject. The call is flushed so
// a dead connection surfaces as an error.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s event: %w", subject, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s event: %w", subject, err)
	}
	return nil
}

// LogPublisher logs events instead of publishing them.
type LogPublisher struct {
	logger *otelzap.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger *otelzap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the subject of event.
func (p *LogPublisher) Publish(ctx context.Context, subject string, event any) error {
	p.logger.Ctx(ctx).Info("Event not published, no NATS connection", zap.String("subject", subject))
	return nil
}

var (
	_ Publisher = (*NATSPublisher)(nil)
	_ Publisher = (*LogPublisher)(nil)
)
