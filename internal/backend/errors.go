package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrUnavailable covers transport failures and non-2xx backend statuses.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrTimeout is returned when the call outlives its deadline.
	ErrTimeout = errors.New("backend timeout")
)

// DecodeError reports a single stream line that could not be decoded.
type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("backend: decode stream line %d: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err is a per-line decode failure.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// classify converts a transport level error into the package taxonomy.
// Cancellation by the caller is passed through untouched.
func classify(parent context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(parent.Err(), context.Canceled) {
		return parent.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// Outcome names an error for metrics labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unavailable"
	}
}
