// Package mock provides a mock shipper implementation for testing.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

// Client is a mock shipper for testing. Hooks override the default
// behavior of each operation.
type Client struct {
	name string

	OnQuoteFee      func(ctx context.Context, req *shipper.FeeRequest) (*shipper.Fee, error)
	OnBookShipment  func(ctx context.Context, req *shipper.ShipmentRequest) (*shipper.Booking, error)
	OnTrackShipment func(ctx context.Context, trackingID string) (*shipper.RawTracking, error)
	OnNormalize     func(raw *shipper.RawTracking) (*shipper.Tracking, error)

	bookings atomic.Int64
	mu       sync.Mutex
	booked   []*shipper.ShipmentRequest
}

// New creates a new mock shipper.
func New(name string) *Client {
	return &Client{name: name}
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return c.name
}

// Bookings returns the number of BookShipment calls.
func (c *Client) Bookings() int {
	return int(c.bookings.Load())
}

// BookedRequests returns every booking request received.
func (c *Client) BookedRequests() []*shipper.ShipmentRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*shipper.ShipmentRequest(nil), c.booked...)
}

// QuoteFee returns a flat mock fee.
func (c *Client) QuoteFee(ctx context.Context, req *shipper.FeeRequest) (*shipper.Fee, error) {
	if c.OnQuoteFee != nil {
		return c.OnQuoteFee(ctx, req)
	}
	return &shipper.Fee{
		Carrier: c.name,
		City:    req.City,
		Total:   shipper.PKR(decimal.NewFromInt(250)),
	}, nil
}

// BookShipment creates a mock booking.
func (c *Client) BookShipment(ctx context.Context, req *shipper.ShipmentRequest) (*shipper.Booking, error) {
	c.bookings.Add(1)
	c.mu.Lock()
	c.booked = append(c.booked, req)
	c.mu.Unlock()

	if c.OnBookShipment != nil {
		return c.OnBookShipment(ctx, req)
	}

	now := time.Now()
	return &shipper.Booking{
		Carrier:    c.name,
		BookingID:  fmt.Sprintf("%s-booking-%d", c.name, now.UnixNano()),
		TrackingID: fmt.Sprintf("%s%d", "TRK", now.UnixNano()%1000000000),
		Reference:  req.Reference,
	}, nil
}

// TrackShipment returns a mock raw payload.
func (c *Client) TrackShipment(ctx context.Context, trackingID string) (*shipper.RawTracking, error) {
	if c.OnTrackShipment != nil {
		return c.OnTrackShipment(ctx, trackingID)
	}
	body, _ := json.Marshal(map[string]string{"status": "in transit"})
	return &shipper.RawTracking{
		Carrier:    c.name,
		TrackingID: trackingID,
		StatusCode: 200,
		Body:       body,
	}, nil
}

// Normalize maps the mock payload to an in-transit tracking.
func (c *Client) Normalize(raw *shipper.RawTracking) (*shipper.Tracking, error) {
	if c.OnNormalize != nil {
		return c.OnNormalize(raw)
	}
	cp := shipper.Checkpoint{Time: time.Now().Add(-time.Hour), Location: "Hub", Description: "In transit"}
	return &shipper.Tracking{
		Carrier:        c.name,
		TrackingID:     raw.TrackingID,
		Status:         shipper.TrackingInTransit,
		LastCheckpoint: &cp,
		Checkpoints:    []shipper.Checkpoint{cp},
	}, nil
}

var _ shipper.Shipper = (*Client)(nil)
