package plug

import (
	"context"
	"maps"
	"time"

	"github.com/nerrad567/gray-logic-plug/internal/controller"
)

// Action names an operation on the plug.
type Action = controller.Action

// Actions accepted by the gateway. Toggle is resolved into on or off before
// the controller is invoked.
const (
	ActionOn     = controller.ActionOn
	ActionOff    = controller.ActionOff
	ActionStatus = controller.ActionStatus
	ActionToggle Action = "toggle"
)

// Source records how a DeviceStatus value was obtained.
type Source string

const (
	// SourceLive is a reading parsed from the controller during this request.
	SourceLive Source = "live"
	// SourceCached is a previously observed or derived value.
	SourceCached Source = "cached"
	// SourceErrorDefault is a placeholder built from static identity only.
	SourceErrorDefault Source = "error-default"
)

// Method describes how a Result was produced.
type Method string

const (
	// MethodExternal means the controller performed a power change.
	MethodExternal Method = "external"
	// MethodLive means the status came from a fresh, valid reading.
	MethodLive Method = "live"
	// MethodCached means the controller ran but its output was rejected.
	MethodCached Method = "cached"
	// MethodError means the controller could not be invoked successfully.
	MethodError Method = "error"
)

// PowerState is the gateway's view of the plug's relay.
type PowerState string

const (
	PowerUnknown PowerState = "unknown"
	PowerOn      PowerState = "on"
	PowerOff     PowerState = "off"
)

// Identity is the static description of the managed plug, taken from
// configuration. It fills any identity field the controller omits.
type Identity struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name,omitempty"`
	Model    string `json:"model"`
	MAC      string `json:"mac"`
}

// DeviceStatus is one observation of the plug.
type DeviceStatus struct {
	DeviceID string `json:"device_id"`
	Model    string `json:"model"`
	MAC      string `json:"mac"`
	IsOn     bool   `json:"device_on"`

	// Raw carries vendor fields exactly as the controller printed them.
	Raw map[string]any `json:"raw,omitempty"`

	Source     Source    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`

	// Diagnostic explains why a degraded value was returned.
	Diagnostic string `json:"error,omitempty"`
}

// Clone returns a copy whose Raw map is not shared with s.
func (s DeviceStatus) Clone() DeviceStatus {
	out := s
	if s.Raw != nil {
		out.Raw = maps.Clone(s.Raw)
	}
	return out
}

// Result is the outcome of a gateway operation.
type Result struct {
	Action    Action        `json:"action"`
	Method    Method        `json:"method"`
	IsOn      bool          `json:"is_on"`
	Status    *DeviceStatus `json:"status,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Event is passed to recorders after each operation. Err is set when the
// operation failed or was served degraded; Result is zero for failed power
// changes.
type Event struct {
	DeviceID string
	Action   Action
	Result   Result
	Err      error
	Elapsed  time.Duration
}

// KnownPower reports the plug's power state when the event establishes it:
// a successful power change or a live status reading.
func (ev Event) KnownPower() (on, ok bool) {
	if ev.Err != nil {
		return false, false
	}
	switch ev.Result.Method {
	case MethodExternal, MethodLive:
		return ev.Result.IsOn, true
	}
	return false, false
}

// Recorder observes gateway operations. Implementations must not block for
// long and must handle their own errors.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(ctx context.Context, ev Event)

// Record calls f(ctx, ev).
func (f RecorderFunc) Record(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// Logger is the logging interface used by the gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
