package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tournevent/fulfillment/internal/domain"
	"github.com/tournevent/fulfillment/internal/fulfillment"
	"github.com/tournevent/fulfillment/internal/store"
	"github.com/tournevent/fulfillment/internal/zone"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, fulfillment.ErrValidation),
		errors.Is(err, zone.ErrInvalidInput),
		errors.Is(err, shipper.ErrUnsupportedDestination),
		errors.Is(err, shipper.ErrCarrierNotFound),
		errors.Is(err, shipper.ErrInvalidTrackingID),
		errors.Is(err, shipper.ErrInvalidPackage):
		return http.StatusBadRequest
	case errors.Is(err, fulfillment.ErrPersistence):
		return http.StatusInternalServerError
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, shipper.ErrTrackingNotFound),
		errors.Is(err, fulfillment.ErrTrackingMismatch):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, shipper.ErrAuthenticationFailed),
		errors.Is(err, shipper.ErrBookingFailed),
		errors.Is(err, shipper.ErrProviderProtocol),
		errors.Is(err, shipper.ErrServiceUnavailable),
		errors.Is(err, shipper.ErrRateLimitExceeded):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the message shown to API callers. Carrier errors are
// reduced to carrier and message so provider payloads never leak.
func publicMessage(err error, status int) string {
	var fe *fulfillment.Error
	reconcile := errors.As(err, &fe) && fe.Reconcile

	var se *shipper.ShipperError
	switch {
	case errors.As(err, &se) && status >= 500:
		msg := fmt.Sprintf("%s: %s", se.Carrier, se.Message)
		if reconcile {
			msg += "; the booking has been flagged for reconciliation"
		}
		return msg
	case status == http.StatusGatewayTimeout:
		if reconcile {
			return "carrier did not answer in time; the booking has been flagged for reconciliation"
		}
		return "carrier did not answer in time"
	case errors.Is(err, fulfillment.ErrPersistence):
		if reconcile {
			return "order could not be saved; the booking has been flagged for reconciliation"
		}
		return "order could not be saved"
	case status >= 500:
		return "internal error"
	default:
		return err.Error()
	}
}
