package bridge

import (
	"time"

	"github.com/nerrad567/gray-logic-plug/internal/plug"
)

// Command names accepted on the command topic.
const (
	CommandOn     = "on"
	CommandOff    = "off"
	CommandToggle = "toggle"
	CommandStatus = "status"
)

// CommandMessage is received on {prefix}/command/{device_id}.
type CommandMessage struct {
	// ID correlates the command with its acknowledgement.
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp,omitempty"`

	// DeviceID is optional; when set it must match the bridged plug.
	DeviceID string `json:"device_id,omitempty"`
	Command  string `json:"command"`

	// Source names the originator, e.g. "automation" or "plugctl".
	Source string `json:"source,omitempty"`
}

// AckStatus is the outcome of a command.
type AckStatus string

const (
	AckAccepted AckStatus = "accepted"
	AckFailed   AckStatus = "failed"
)

// Error codes carried in AckError.
const (
	ErrCodeInvalidPayload = "INVALID_PAYLOAD"
	ErrCodeInvalidCommand = "INVALID_COMMAND"
	ErrCodeWrongDevice    = "WRONG_DEVICE"
	ErrCodeControlFailed  = "CONTROL_FAILED"
	ErrCodeStatusUnknown  = "STATUS_UNKNOWN"
)

// AckMessage is published on {prefix}/ack/{device_id}.
type AckMessage struct {
	CommandID string       `json:"command_id"`
	Timestamp time.Time    `json:"timestamp"`
	DeviceID  string       `json:"device_id"`
	Command   string       `json:"command,omitempty"`
	Status    AckStatus    `json:"status"`
	Result    *plug.Result `json:"result,omitempty"`
	Error     *AckError    `json:"error,omitempty"`
}

// AckError describes a failed command.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StateMessage is published retained on {prefix}/state/{device_id}.
type StateMessage struct {
	DeviceID  string             `json:"device_id"`
	Timestamp time.Time          `json:"timestamp"`
	IsOn      bool               `json:"is_on"`
	Method    plug.Method        `json:"method"`
	Status    *plug.DeviceStatus `json:"status,omitempty"`
}

// EventMessage is published on {prefix}/event/{action}.
type EventMessage struct {
	DeviceID  string      `json:"device_id"`
	Action    plug.Action `json:"action"`
	Method    plug.Method `json:"method,omitempty"`
	IsOn      bool        `json:"is_on"`
	Source    plug.Source `json:"source,omitempty"`
	Error     string      `json:"error,omitempty"`
	ElapsedMS int64       `json:"elapsed_ms"`
	Timestamp time.Time   `json:"timestamp"`
}

func newEventMessage(ev plug.Event, now time.Time) EventMessage {
	msg := EventMessage{
		DeviceID:  ev.DeviceID,
		Action:    ev.Action,
		Method:    ev.Result.Method,
		IsOn:      ev.Result.IsOn,
		ElapsedMS: ev.Elapsed.Milliseconds(),
		Timestamp: ev.Result.Timestamp,
	}
	if ev.Result.Status != nil {
		msg.Source = ev.Result.Status.Source
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	return msg
}
