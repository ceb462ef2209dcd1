// Package bridge exposes the plug gateway over MQTT.
//
// Inbound, it subscribes to {prefix}/command/{device_id} and executes
// on, off, toggle, and status commands against the gateway, replying on
// {prefix}/ack/{device_id}. Outbound, it implements plug.Recorder: every
// operation is published on {prefix}/event/{action}, and whenever the power
// state is established the full state is published retained on
// {prefix}/state/{device_id}.
//
// Commands run on their own goroutine so a slow controller never stalls
// the MQTT client's delivery loop. Stop waits for in-flight commands.
package bridge
