package shipper

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Track queries a carrier for a tracking id and normalizes the answer.
// An id unknown to the carrier yields a not_found Tracking rather than an
// error, so callers can tell it apart from a booked parcel with no scans.
func Track(ctx context.Context, s Shipper, trackingID string) (*Tracking, error) {
	trackingID = strings.TrimSpace(trackingID)
	if trackingID == "" {
		return nil, fmt.Errorf("%w: tracking id is required", ErrInvalidTrackingID)
	}

	raw, err := s.TrackShipment(ctx, trackingID)
	if errors.Is(err, ErrTrackingNotFound) {
		return NotFoundTracking(s.Name(), trackingID), nil
	}
	if err != nil {
		return nil, err
	}

	tracking, err := s.Normalize(raw)
	if err != nil {
		return nil, err
	}
	if tracking.Checkpoints == nil {
		tracking.Checkpoints = []Checkpoint{}
	}
	return tracking, nil
}

// LatestCheckpoint returns the most recent checkpoint, or nil.
func LatestCheckpoint(checkpoints []Checkpoint) *Checkpoint {
	if len(checkpoints) == 0 {
		return nil
	}
	latest := checkpoints[0]
	for _, cp := range checkpoints[1:] {
		if cp.Time.After(latest.Time) {
			latest = cp
		}
	}
	return &latest
}

// ClassifyScan maps free-text scan descriptions onto canonical statuses.
// Carriers that only report prose share this keyword table.
func ClassifyScan(text string) TrackingStatus {
	s := strings.ToLower(text)
	switch {
	case strings.Contains(s, "out for delivery"):
		return TrackingOutForDelivery
	case strings.Contains(s, "return"):
		return TrackingReturned
	case strings.Contains(s, "delivered") && !strings.Contains(s, "undelivered") && !strings.Contains(s, "not delivered"):
		return TrackingDelivered
	case strings.Contains(s, "undelivered"), strings.Contains(s, "not delivered"),
		strings.Contains(s, "refused"), strings.Contains(s, "held"), strings.Contains(s, "exception"):
		return TrackingException
	case strings.Contains(s, "booked"), strings.Contains(s, "booking"), strings.Contains(s, "received at origin"),
		strings.Contains(s, "accepted"):
		return TrackingBooked
	default:
		return TrackingInTransit
	}
}
