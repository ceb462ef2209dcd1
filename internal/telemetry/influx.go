package telemetry

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-plug/internal/plug"
)

// Influx measurement names.
const (
	measurementOperation = "plug_operation"
	measurementState     = "plug_state"
)

// PointWriter queues a time-series point. *influxdb.Client satisfies it.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}

// InfluxRecorder writes gateway events as InfluxDB points.
type InfluxRecorder struct {
	w   PointWriter
	now func() time.Time
}

// NewInfluxRecorder returns a recorder writing through w.
func NewInfluxRecorder(w PointWriter) *InfluxRecorder {
	return &InfluxRecorder{w: w, now: time.Now}
}

// Record implements plug.Recorder.
func (r *InfluxRecorder) Record(_ context.Context, ev plug.Event) {
	ts := ev.Result.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}

	tags := map[string]string{
		"device_id": ev.DeviceID,
		"action":    string(ev.Action),
		"outcome":   outcome(ev),
	}
	if ev.Result.Method != "" {
		tags["method"] = string(ev.Result.Method)
	}
	fields := map[string]any{
		"elapsed_ms": ev.Elapsed.Milliseconds(),
	}
	if ev.Err != nil {
		fields["error"] = ev.Err.Error()
	}
	r.w.WritePoint(measurementOperation, tags, fields, ts)

	if on, ok := ev.KnownPower(); ok {
		r.w.WritePoint(measurementState,
			map[string]string{"device_id": ev.DeviceID},
			map[string]any{"on": on},
			ts)
	}
}
