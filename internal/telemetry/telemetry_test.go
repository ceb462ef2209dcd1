package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/gray-logic-plug/internal/plug"
)

var at = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func liveStatus(on bool) plug.Event {
	return plug.Event{
		DeviceID: "plug-001",
		Action:   plug.ActionStatus,
		Result: plug.Result{
			Action:    plug.ActionStatus,
			Method:    plug.MethodLive,
			IsOn:      on,
			Status:    &plug.DeviceStatus{IsOn: on, Source: plug.SourceLive},
			Timestamp: at,
		},
		Elapsed: 300 * time.Millisecond,
	}
}

func degradedStatus() plug.Event {
	return plug.Event{
		DeviceID: "plug-001",
		Action:   plug.ActionStatus,
		Result: plug.Result{
			Action:    plug.ActionStatus,
			Method:    plug.MethodError,
			Status:    &plug.DeviceStatus{Source: plug.SourceErrorDefault},
			Timestamp: at,
		},
		Err: errors.New("controller status failed (exit 1)"),
	}
}

func failedPower() plug.Event {
	return plug.Event{
		DeviceID: "plug-001",
		Action:   plug.ActionOn,
		Err:      &plug.ControlError{Action: plug.ActionOn, Err: errors.New("timeout")},
		Elapsed:  15 * time.Second,
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		ev   plug.Event
		want string
	}{
		{"live", liveStatus(true), outcomeOK},
		{"degraded", degradedStatus(), outcomeDegraded},
		{"failed power", failedPower(), outcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := outcome(tt.ev); got != tt.want {
				t.Errorf("outcome() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()
	ctx := context.Background()

	m.Record(ctx, liveStatus(true))
	m.Record(ctx, degradedStatus())
	m.Record(ctx, failedPower())
	m.Record(ctx, plug.Event{
		DeviceID: "plug-001",
		Action:   plug.ActionOff,
		Result:   plug.Result{Action: plug.ActionOff, Method: plug.MethodExternal, IsOn: false, Timestamp: at},
	})

	if got := testutil.ToFloat64(m.operations.WithLabelValues("status", outcomeOK)); got != 1 {
		t.Errorf("status ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("status", outcomeDegraded)); got != 1 {
		t.Errorf("status degraded = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("on", outcomeFailed)); got != 1 {
		t.Errorf("on failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.powerOn.WithLabelValues("plug-001")); got != 0 {
		t.Errorf("plug_on = %v, want 0 after off", got)
	}
	if got := testutil.ToFloat64(m.lastLive.WithLabelValues("plug-001")); got != float64(at.Unix()) {
		t.Errorf("last_live = %v, want %v", got, at.Unix())
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.Record(context.Background(), liveStatus(true))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`plugd_operations_total{action="status",outcome="ok"} 1`,
		`plugd_plug_on{device_id="plug-001"} 1`,
		"plugd_controller_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

// pointSink collects written points.
type pointSink struct {
	mu     sync.Mutex
	points []point
}

type point struct {
	measurement string
	tags        map[string]string
	fields      map[string]any
	ts          time.Time
}

func (s *pointSink) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, point{measurement, tags, fields, ts})
}

func TestInfluxRecorder(t *testing.T) {
	sink := &pointSink{}
	r := NewInfluxRecorder(sink)
	r.now = func() time.Time { return at.Add(time.Hour) }
	ctx := context.Background()

	r.Record(ctx, liveStatus(true))
	if len(sink.points) != 2 {
		t.Fatalf("points = %d, want operation + state", len(sink.points))
	}
	op, state := sink.points[0], sink.points[1]
	if op.measurement != measurementOperation || op.tags["method"] != "live" || op.fields["elapsed_ms"] != int64(300) {
		t.Errorf("operation point = %+v", op)
	}
	if state.measurement != measurementState || state.fields["on"] != true || !state.ts.Equal(at) {
		t.Errorf("state point = %+v", state)
	}

	sink.points = nil
	r.Record(ctx, degradedStatus())
	if len(sink.points) != 1 {
		t.Fatalf("degraded points = %d, want 1 (no state)", len(sink.points))
	}
	if sink.points[0].tags["outcome"] != outcomeDegraded || sink.points[0].fields["error"] == nil {
		t.Errorf("degraded point = %+v", sink.points[0])
	}

	sink.points = nil
	r.Record(ctx, failedPower())
	if len(sink.points) != 1 {
		t.Fatalf("failed points = %d, want 1", len(sink.points))
	}
	if _, ok := sink.points[0].tags["method"]; ok {
		t.Error("failed power change should carry no method tag")
	}
	if !sink.points[0].ts.Equal(at.Add(time.Hour)) {
		t.Errorf("ts = %v, want recorder clock", sink.points[0].ts)
	}
}
