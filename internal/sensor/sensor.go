// Package sensor provides location fixes for the foreground bridge.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/marcus/arcsync/internal/models"
)

// Code classifies a sensor failure.
type Code int

const (
	PermissionDenied Code = iota + 1
	PositionUnavailable
	Timeout
)

func (c Code) String() string {
	switch c {
	case PermissionDenied:
		return "permission denied"
	case PositionUnavailable:
		return "position unavailable"
	case Timeout:
		return "timeout"
	default:
		return fmt.Sprintf("code %d", int(c))
	}
}

// Error is a classified sensor failure.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sensor: %s: %v", e.Code, e.Err)
	}
	return "sensor: " + e.Code.String()
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the Code of err, or PositionUnavailable for unclassified errors.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return PositionUnavailable
}

// Sensor yields location samples.
type Sensor interface {
	// Current returns one fix.
	Current(ctx context.Context) (models.LocationSample, error)
	// Watch delivers samples until stop is called or ctx is done. onError
	// is called at most once, after which the watch has ended.
	Watch(ctx context.Context, onSample func(models.LocationSample), onError func(error)) (stop func())
}

// classify maps low-level errors to sensor codes.
func classify(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return &Error{Code: Timeout, Err: err}
	case errors.As(err, &ne) && ne.Timeout():
		return &Error{Code: Timeout, Err: err}
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return &Error{Code: PermissionDenied, Err: err}
	default:
		return &Error{Code: PositionUnavailable, Err: err}
	}
}
