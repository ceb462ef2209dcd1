package plug

import (
	"errors"
	"fmt"
)

// Domain errors.
var (
	// ErrMalformedStatus matches every *ParseError.
	ErrMalformedStatus = errors.New("plug: malformed controller status")

	// ErrControlFailed matches every *ControlError.
	ErrControlFailed = errors.New("plug: control operation failed")

	// ErrStatusUnknown is returned by Toggle when no live reading is available.
	ErrStatusUnknown = errors.New("plug: current power state unknown")

	// ErrMissingDependency is returned by NewGateway for incomplete options.
	ErrMissingDependency = errors.New("plug: missing dependency")
)

// ParseError reports controller output that does not describe a status.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse status: %s: %v", e.Reason, e.Err)
	}
	return "parse status: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is reports whether target is ErrMalformedStatus.
func (e *ParseError) Is(target error) bool { return target == ErrMalformedStatus }

// ControlError reports a power operation the controller did not complete.
type ControlError struct {
	Action Action
	Err    error
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("plug %s: %v", e.Action, e.Err)
}

func (e *ControlError) Unwrap() error { return e.Err }

// Is reports whether target is ErrControlFailed.
func (e *ControlError) Is(target error) bool { return target == ErrControlFailed }
