package mqtt

import "strings"

// DefaultTopicPrefix is the root of every plugd topic.
const DefaultTopicPrefix = "plugd"

// Topics builds plugd topic names under Prefix.
//
//	topics := mqtt.Topics{Prefix: "plugd"}
//	topics.State("plug-001") // "plugd/state/plug-001"
type Topics struct {
	Prefix string
}

func (t Topics) join(parts ...string) string {
	prefix := strings.TrimSuffix(t.Prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "/" + strings.Join(parts, "/")
}

// State is the retained status topic for a device.
func (t Topics) State(deviceID string) string {
	return t.join("state", deviceID)
}

// Event is the topic for gateway operation events.
func (t Topics) Event(action string) string {
	return t.join("event", action)
}

// Command is the inbound command topic for a device.
func (t Topics) Command(deviceID string) string {
	return t.join("command", deviceID)
}

// Ack is the command reply topic for a device.
func (t Topics) Ack(deviceID string) string {
	return t.join("ack", deviceID)
}

// SystemStatus carries online/offline presence, including the LWT.
func (t Topics) SystemStatus() string {
	return t.join("system", "status")
}
