package controller

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAction is returned when an action outside on/off/status is requested.
	ErrInvalidAction = errors.New("controller: invalid action")

	// ErrTimeout is returned when the controller exceeds its timeout and is killed.
	ErrTimeout = errors.New("controller: invocation timed out")

	// ErrNonZeroExit is returned when the controller exits with a non-zero status.
	ErrNonZeroExit = errors.New("controller: non-zero exit")
)

// InvocationError describes a failed controller invocation.
//
// Use errors.As to inspect it:
//
//	var invErr *controller.InvocationError
//	if errors.As(err, &invErr) {
//	    log.Warn("controller failed", "exit_code", invErr.ExitCode)
//	}
type InvocationError struct {
	// Action is the action that was requested.
	Action Action

	// ExitCode is the process exit status, or -1 when the process
	// never started or was killed by a signal.
	ExitCode int

	// Stderr is the trimmed diagnostic output, if any.
	Stderr string

	// Err is the underlying cause.
	Err error
}

func (e *InvocationError) Error() string {
	msg := fmt.Sprintf("controller %s failed", e.Action)
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}
