// Package controller runs the external control program that talks to the plug.
//
// plugd never speaks the device protocol itself. Every power change or
// status query launches the configured controller once with the action as
// its final argument:
//
//	tapo-control on
//	python3 /opt/tapo/tapo_control.py status
//
// An invocation fails only when the program cannot be launched, exits
// non-zero, or exceeds its timeout. Output on stderr is logged and returned
// but is not a failure by itself.
//
// Invocations are detached from caller cancellation: once launched, the
// controller runs until it exits or the timeout kills its process group.
// A half-finished power change is worse than a slow HTTP response.
//
// Example usage:
//
//	inv := controller.NewInvoker(controller.Config{
//	    Binary:  "/usr/bin/python3",
//	    Args:    []string{"/opt/tapo/tapo_control.py"},
//	    Timeout: 15 * time.Second,
//	})
//	res, err := inv.Invoke(ctx, controller.ActionStatus)
package controller
