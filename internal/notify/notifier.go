package notify

import (
	"context"
	"fmt"
)

// Config holds the sender identity and links printed in emails.
type Config struct {
	From       string
	AdminEmail string
	StoreName  string
	LoginURL   string
}

// Notifier renders and sends the checkout notifications.
type Notifier struct {
	cfg    Config
	mailer Mailer
	events Publisher
}

// NewNotifier creates a Notifier.
func NewNotifier(cfg Config, mailer Mailer, events Publisher) *Notifier {
	return &Notifier{cfg: cfg, mailer: mailer, events: events}
}

func (n *Notifier) from() string {
	if n.cfg.StoreName == "" {
		return n.cfg.From
	}
	return fmt.Sprintf("%q <%s>", n.cfg.StoreName, n.cfg.From)
}

// Welcome sends the generated credential to a newly provisioned account.
func (n *Notifier) Welcome(ctx context.Context, email, credential string) error {
	html, err := RenderWelcome(WelcomeData{
		StoreName:  n.cfg.StoreName,
		Email:      email,
		Credential: credential,
		LoginURL:   n.cfg.LoginURL,
	})
	if err != nil {
		return err
	}
	return n.mailer.Send(ctx, Message{
		From:    n.from(),
		To:      []string{email},
		Subject: fmt.Sprintf("Welcome to %s - Your Account Details", n.cfg.StoreName),
		HTML:    html,
	})
}

// Confirmation sends the order confirmation to the customer.
func (n *Notifier) Confirmation(ctx context.Context, data ConfirmationData) error {
	html, err := RenderConfirmation(data)
	if err != nil {
		return err
	}
	return n.mailer.Send(ctx, Message{
		From:    n.from(),
		To:      []string{data.Order.Email},
		Subject: fmt.Sprintf("Your %s Order Confirmation", n.cfg.StoreName),
		HTML:    html,
	})
}

// AdminAlert sends the operations copy of a new order. It is a no-op when
// no admin address is configured.
func (n *Notifier) AdminAlert(ctx context.Context, data ConfirmationData) error {
	if n.cfg.AdminEmail == "" {
		return nil
	}
	html, err := RenderAdminAlert(data)
	if err != nil {
		return err
	}
	return n.mailer.Send(ctx, Message{
		From:    n.from(),
		To:      []string{n.cfg.AdminEmail},
		Subject: fmt.Sprintf("New Order Received - %s", n.cfg.StoreName),
		HTML:    html,
	})
}

// OrderCreated publishes the orders.created event.
func (n *Notifier) OrderCreated(ctx context.Context, event OrderCreated) error {
	return n.events.Publish(ctx, SubjectOrderCreated, event)
}

// Reconciliation publishes an orders.reconciliation alert.
func (n *Notifier) Reconciliation(ctx context.Context, alert ReconciliationAlert) error {
	return n.events.Publish(ctx, SubjectReconciliation, alert)
}
