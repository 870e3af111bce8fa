package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"
	"github.com/tournevent/fulfillment/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
}).ParseFS(templateFS, "templates/*.html"))

// WelcomeData fills the welcome email.
type WelcomeData struct {
	StoreName  string
	Email      string
	Credential string
	LoginURL   string
}

// ProductLine is one rendered order line.
type ProductLine struct {
	Name     string
	Quantity int
}

// ConfirmationData fills the order confirmation and operations alert emails.
type ConfirmationData struct {
	StoreName     string
	Order         *domain.Order
	Shipment      *domain.Shipment
	Products      []ProductLine
	TrackingLabel string
	TrackingValue string
}

// NewConfirmationData builds the confirmation view. Products missing from
// the catalog render as "Unnamed Product".
func NewConfirmationData(storeName string, order *domain.Order, shipment *domain.Shipment, catalog map[string]domain.Product) ConfirmationData {
	lines := make([]ProductLine, 0, len(order.Items))
	for _, item := range order.Items {
		name := "Unnamed Product"
		if p, ok := catalog[item.ProductID]; ok && p.Name != "" {
			name = p.Name
		}
		lines = append(lines, ProductLine{Name: name, Quantity: item.Quantity})
	}

	label, value := "Tracking Number", shipment.TrackingID
	switch shipment.Carrier {
	case domain.CarrierTCS:
		label = "Consignment Number"
	case domain.CarrierPakPost:
		label = "Pakistan Post Article Number"
	}

	return ConfirmationData{
		StoreName:     storeName,
		Order:         order,
		Shipment:      shipment,
		Products:      lines,
		TrackingLabel: label,
		TrackingValue: value,
	}
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}

// RenderWelcome renders the new-account email.
func RenderWelcome(data WelcomeData) (string, error) {
	return render("welcome.html", data)
}

// RenderConfirmation renders the customer order confirmation.
func RenderConfirmation(data ConfirmationData) (string, error) {
	return render("confirmation.html", data)
}

// RenderAdminAlert renders the operations copy of a new order.
func RenderAdminAlert(data ConfirmationData) (string, error) {
	return render("admin_alert.html", data)
}
