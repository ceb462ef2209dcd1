package telemetry

import "github.com/nerrad567/gray-logic-plug/internal/plug"

// Operation outcomes used as metric labels.
const (
	outcomeOK       = "ok"
	outcomeDegraded = "degraded"
	outcomeFailed   = "failed"
)

// outcome classifies an event. Status reads served from the cache are
// degraded; failed power changes are failed.
func outcome(ev plug.Event) string {
	switch {
	case ev.Err == nil:
		return outcomeOK
	case ev.Result.Status != nil:
		return outcomeDegraded
	default:
		return outcomeFailed
	}
}
