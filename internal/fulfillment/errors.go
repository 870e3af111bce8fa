package fulfillment

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("invalid request")
	ErrPersistence      = errors.New("order could not be saved")
	ErrNotification     = errors.New("notification failed")
	ErrTrackingMismatch = errors.New("tracking id does not belong to order")
)

// Checkout steps, in execution order.
const (
	StepValidate        = "validate"
	StepProvision       = "provision"
	StepBook            = "book"
	StepPersistOrder    = "persist-order"
	StepPersistShipment = "persist-shipment"
)

// Error reports the checkout step that failed. Reconcile is set when a
// carrier booking or stored record was left behind and an operator has been
// alerted to resolve it.
type Error struct {
	Step      string
	Err       error
	Reconcile bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("checkout failed at %s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
