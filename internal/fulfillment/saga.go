package fulfillment

import (
	"context"
	"errors"

	"github.com/tournevent/fulfillment/internal/notify"
	"github.com/tournevent/fulfillment/pkg/shipper"
	"go.uber.org/zap"
)

// step is one commit point of a checkout. compensate undoes a completed
// action when a later step fails; it receives the error of that step.
type step struct {
	name       string
	action     func(ctx context.Context) error
	compensate func(ctx context.Context, cause error) error
}

// runSteps executes steps in order. On the first failure the compensations
// of the completed steps run in reverse and the failure is returned as an
// *Error naming the step.
func (o *Orchestrator) runSteps(ctx context.Context, r *run, steps []step) error {
	done := make([]step, 0, len(steps))
	for _, s := range steps {
		stepCtx, span := o.tracer.Start(ctx, "fulfillment.step."+s.name)
		err := s.action(stepCtx)
		shipper.EndSpan(span, err)
		if err == nil {
			done = append(done, s)
			continue
		}

		var stepErr *Error
		if !errors.As(err, &stepErr) {
			stepErr = &Error{Step: s.name, Err: err}
		}
		o.metrics.RecordCheckout("failed", s.name)
		o.logger.Ctx(ctx).Warn("Checkout step failed",
			zap.String("step", s.name),
			zap.String("transaction_ref", r.ref),
			zap.Error(err),
		)

		if o.compensate(ctx, r, done, err) {
			stepErr.Reconcile = true
		}
		return stepErr
	}
	return nil
}

// compensate unwinds completed steps in reverse. The caller may have given
// up on the request, so compensations run on a context that is not
// cancelled with it. It reports whether anything was left for an operator.
func (o *Orchestrator) compensate(ctx context.Context, r *run, done []step, cause error) bool {
	ctx = context.WithoutCancel(ctx)
	reconcile := false
	for i := len(done) - 1; i >= 0; i-- {
		s := done[i]
		if s.compensate == nil {
			continue
		}
		if s.name == StepBook {
			reconcile = true
		}
		if err := s.compensate(ctx, cause); err != nil {
			reconcile = true
			alert := notify.ReconciliationAlert{
				Reason:         ReasonOrphanedRecord,
				Step:           s.name,
				TransactionRef: r.ref,
				Error:          err.Error(),
			}
			if r.order != nil {
				alert.OrderID = r.order.ID.String()
			}
			if r.carrier != nil {
				alert.Carrier = r.carrier.Name()
			}
			o.reconcile(ctx, alert)
			continue
		}
		o.logger.Ctx(ctx).Info("Compensated checkout step",
			zap.String("step", s.name),
			zap.String("transaction_ref", r.ref),
		)
	}
	return reconcile
}
