package diagnostics

import (
	"context"
	"errors"
)

// ErrCancelled is returned when resolution is aborted through its context.
// It is the only error that unwinds a resolution; everything else is
// reported as a diagnostic.
var ErrCancelled = errors.New("resolution cancelled")

type cancelledError struct {
	cause error
}

func (e *cancelledError) Error() string {
	return ErrCancelled.Error() + ": " + e.cause.Error()
}

func (e *cancelledError) Is(target error) bool {
	return target == ErrCancelled
}

func (e *cancelledError) Unwrap() error {
	return e.cause
}

// CheckCancelled returns a cancellation error wrapping ctx.Err() once the
// context is done, and nil otherwise.
func CheckCancelled(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &cancelledError{cause: err}
	}
	return nil
}

func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
