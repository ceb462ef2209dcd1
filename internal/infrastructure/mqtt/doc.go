// Package mqtt connects plugd to an MQTT broker.
//
// It wraps paho.mqtt.golang with:
//   - connection setup from config (auth, TLS, auto-reconnect with backoff)
//   - a retained Last Will on {prefix}/system/status so subscribers can
//     tell a crash from a clean shutdown
//   - publish and subscribe helpers that validate QoS and topic
//   - subscription tracking so handlers survive reconnects
//   - panic recovery around message handlers
//
// Topic layout (prefix defaults to "plugd"):
//
//	plugd/state/{device_id}     retained latest status
//	plugd/event/{action}        one message per gateway operation
//	plugd/command/{device_id}   inbound commands
//	plugd/ack/{device_id}       command replies
//	plugd/system/status         online/offline (retained, LWT)
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.Command(deviceID), 1, handler)
package mqtt
