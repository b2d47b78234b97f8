package trip

import (
	"errors"
	"fmt"
)

var (
	ErrTripNotFound         = errors.New("trip not found")
	ErrInvalidTransition    = errors.New("invalid trip status transition")
	ErrCancelReasonRequired = errors.New("cancellation reason required")
	ErrMissingTripTotals    = errors.New("final distance and duration required")
	ErrSOSNotInProgress     = errors.New("sos can only be triggered on a started trip")
)

// transitionErr wraps ErrInvalidTransition with the attempted edge so
// callers can errors.Is against the sentinel while logs stay useful.
func transitionErr(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
