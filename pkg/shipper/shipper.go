// Package shipper provides an abstraction layer for shipping carriers.
package shipper

import (
	"context"
)

// Shipper defines the interface that all shipping carriers must implement.
// Token acquisition is internal to each implementation.
type Shipper interface {
	// Name returns the carrier identifier (e.g., "pakpost", "tcs").
	Name() string

	// QuoteFee returns the delivery fee for a parcel to a destination city.
	QuoteFee(ctx context.Context, req *FeeRequest) (*Fee, error)

	// BookShipment books a shipment with the carrier. It is never retried.
	BookShipment(ctx context.Context, req *ShipmentRequest) (*Booking, error)

	// TrackShipment returns the carrier's raw tracking payload.
	TrackShipment(ctx context.Context, trackingID string) (*RawTracking, error)

	// Normalize maps a raw tracking payload from this carrier onto the
	// canonical tracking model.
	Normalize(raw *RawTracking) (*Tracking, error)
}
