package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-plug/internal/bridge"
	"github.com/nerrad567/gray-logic-plug/internal/controller"
	"github.com/nerrad567/gray-logic-plug/internal/plug"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	Plug          PlugMetrics       `json:"plug"`
	Controller    *controller.Stats `json:"controller,omitempty"`
	WebSocket     WSMetrics         `json:"websocket"`
	MQTT          MQTTMetrics       `json:"mqtt"`
	Bridge        *bridge.Stats     `json:"bridge,omitempty"`
	Database      *DatabaseMetrics  `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// PlugMetrics is the gateway's view of the plug without a controller call.
type PlugMetrics struct {
	DeviceID   string          `json:"device_id"`
	Power      plug.PowerState `json:"power"`
	LastLiveAt *time.Time      `json:"last_live_at,omitempty"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedFrames    uint64 `json:"dropped_frames"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns system metrics as JSON. Prometheus scrapes /metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Plug: PlugMetrics{
			DeviceID: s.gateway.Identity().DeviceID,
			Power:    s.gateway.Power(),
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			DroppedFrames:    s.hub.Dropped(),
		},
	}

	if last, ok := s.gateway.Cached(); ok {
		at := last.ObservedAt
		metrics.Plug.LastLiveAt = &at
	}

	if s.controller != nil {
		stats := s.controller.Stats()
		metrics.Controller = &stats
	}

	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{
			Enabled:   true,
			Connected: s.mqtt.IsConnected(),
		}
	}

	if s.bridge != nil {
		stats := s.bridge.Stats()
		metrics.Bridge = &stats
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
