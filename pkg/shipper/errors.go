package shipper

import (
	"errors"
	"fmt"
	"net/http"
)

// ShipperError represents an error from a shipping carrier.
type ShipperError struct {
	Carrier    string
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
	// OutcomeUnknown is set when a booking request may have reached the
	// carrier but no usable answer came back.
	OutcomeUnknown bool
	Kind           error
	Cause          error
}

// Error implements the error interface.
func (e *ShipperError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error (%s): %s: %v", e.Carrier, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Carrier, e.Code, e.Message)
}

// Unwrap exposes both the taxonomy kind and the underlying cause.
func (e *ShipperError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Is implements errors.Is for ShipperError.
func (e *ShipperError) Is(target error) bool {
	t, ok := target.(*ShipperError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewShipperError creates a new ShipperError of the given kind.
func NewShipperError(carrier string, kind error, code, message string) *ShipperError {
	return &ShipperError{
		Carrier: carrier,
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// WithCause adds a cause to the error.
func (e *ShipperError) WithCause(err error) *ShipperError {
	e.Cause = err
	return e
}

// WithStatusCode adds an HTTP status code to the error.
func (e *ShipperError) WithStatusCode(code int) *ShipperError {
	e.StatusCode = code
	return e
}

// WithRetryable marks the error as retryable.
func (e *ShipperError) WithRetryable(retryable bool) *ShipperError {
	e.Retryable = retryable
	return e
}

// WithOutcomeUnknown marks a booking whose result could not be determined.
func (e *ShipperError) WithOutcomeUnknown() *ShipperError {
	e.OutcomeUnknown = true
	return e
}

// Sentinel errors for the carrier error taxonomy.
var (
	// ErrUnsupportedDestination indicates the carrier cannot serve the destination city.
	ErrUnsupportedDestination = errors.New("unsupported destination")

	// ErrAuthenticationFailed indicates the token could not be obtained or was rejected.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrBookingFailed indicates the carrier rejected or failed the booking.
	ErrBookingFailed = errors.New("booking failed")

	// ErrProviderProtocol indicates a malformed or unexpected carrier response.
	ErrProviderProtocol = errors.New("provider protocol error")

	// ErrTrackingNotFound indicates the carrier does not know the tracking id.
	ErrTrackingNotFound = errors.New("tracking not found")

	// ErrServiceUnavailable indicates the carrier service is temporarily unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrRateLimitExceeded indicates the carrier rate limit was exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidPackage indicates the parcel weight is invalid.
	ErrInvalidPackage = errors.New("invalid package")

	// ErrInvalidTrackingID indicates an empty or malformed tracking id.
	ErrInvalidTrackingID = errors.New("invalid tracking id")

	// ErrCarrierNotFound indicates the requested carrier is not registered.
	ErrCarrierNotFound = errors.New("carrier not found")
)

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var shipperErr *ShipperError
	if errors.As(err, &shipperErr) {
		return shipperErr.Retryable
	}
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrRateLimitExceeded)
}

// IsOutcomeUnknown reports whether err describes a booking that may or may
// not exist at the carrier.
func IsOutcomeUnknown(err error) bool {
	var shipperErr *ShipperError
	return errors.As(err, &shipperErr) && shipperErr.OutcomeUnknown
}

// HTTPStatusError classifies a non-2xx carrier response into the taxonomy.
// fallback is the kind used for statuses that carry no special meaning.
// With ErrTrackingNotFound as fallback only a 404 maps to not-found.
func HTTPStatusError(carrier string, status int, fallback error, message string) *ShipperError {
	code := fmt.Sprintf("HTTP_%d", status)
	kind := fallback
	if fallback == ErrTrackingNotFound && status != http.StatusNotFound {
		kind = ErrProviderProtocol
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewShipperError(carrier, ErrAuthenticationFailed, code, message).WithStatusCode(status)
	case status == http.StatusTooManyRequests:
		return NewShipperError(carrier, errors.Join(kind, ErrRateLimitExceeded), code, message).
			WithStatusCode(status).WithRetryable(true)
	case status >= 500:
		return NewShipperError(carrier, errors.Join(kind, ErrServiceUnavailable), code, message).
			WithStatusCode(status).WithRetryable(true)
	default:
		return NewShipperError(carrier, kind, code, message).WithStatusCode(status)
	}
}
