package lifecycle

import (
	"fmt"

	"github.com/vaidashi/fulfillment-tracker/internal/models"
	apperrors "github.com/vaidashi/fulfillment-tracker/pkg/errors"
)

// TransitionError reports an operation whose precondition does not hold
// for the order's current status
type TransitionError struct {
	Operation string
	Status    models.OrderStatus
	Reason    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s order in status %s: %s", e.Operation, e.Status, e.Reason)
}

func (e *TransitionError) Unwrap() error { return apperrors.ErrInvalidTransition }

func invalid(op string, status models.OrderStatus, reason string) *TransitionError {
	return &TransitionError{Operation: op, Status: status, Reason: reason}
}
