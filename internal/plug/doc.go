// Package plug implements the device state gateway for a single smart plug.
//
// The gateway owns three collaborators:
//
//   - an Invoker that runs the external controller program (see package
//     controller) once per operation
//   - a Parser that turns the controller's status output into a DeviceStatus
//   - a StateCache holding the last good reading and the last power state
//     this process set
//
// Power changes surface controller failures as *ControlError. Status reads
// never fail: when the controller cannot be reached or prints something the
// parser rejects, the gateway answers from the cache and marks the result's
// Source and Method accordingly.
//
// Usage:
//
//	gw, err := plug.NewGateway(plug.Options{
//	    Identity: plug.Identity{DeviceID: "plug-001", Model: "P100"},
//	    Invoker:  inv,
//	    Cache:    plug.NewStateCache(),
//	})
//	if err != nil {
//	    return err
//	}
//	gw.AddRecorder(history)
//
//	res, err := gw.PowerOn(ctx)
//	status := gw.GetStatus(ctx)
//
// Recorders observe every operation after the cache has been updated. They
// run synchronously and cannot fail the operation.
package plug
