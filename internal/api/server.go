// Package api provides the HTTP REST API and WebSocket server for plugd.
//
// It exposes the plug gateway's power and status operations, the legacy
// /turnOn, /turnOff and /status routes used by the web page, the
// observation history, system metrics, and real-time state events.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-plug/internal/bridge"
	"github.com/nerrad567/gray-logic-plug/internal/controller"
	"github.com/nerrad567/gray-logic-plug/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-plug/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-plug/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-plug/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-plug/internal/plug"
	"github.com/nerrad567/gray-logic-plug/internal/telemetry"
)

// gracefulShutdownTimeout is the minimum time Close waits for in-flight
// requests. Deps.ShutdownTimeout raises it.
const gracefulShutdownTimeout = 10 * time.Second

// healthCheckTimeout bounds each dependency check in /api/v1/health.
const healthCheckTimeout = 2 * time.Second

// PlugGateway is the subset of plug.Gateway the handlers use.
type PlugGateway interface {
	Identity() plug.Identity
	Power() plug.PowerState
	Cached() (plug.DeviceStatus, bool)
	PowerOn(ctx context.Context) (plug.Result, error)
	PowerOff(ctx context.Context) (plug.Result, error)
	Toggle(ctx context.Context) (plug.Result, error)
	GetStatus(ctx context.Context) plug.Result
}

// ControllerStatsProvider reports invoker counters for /api/v1/metrics.
type ControllerStatsProvider interface {
	Stats() controller.Stats
}

// BridgeStatsProvider reports MQTT bridge counters for /api/v1/metrics.
type BridgeStatsProvider interface {
	Stats() bridge.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Gateway    PlugGateway
	Controller ControllerStatsProvider // optional
	History    plug.HistoryRepository  // optional: history routes answer 503 without it
	DB         *database.DB            // optional
	MQTT       *mqtt.Client            // optional
	Bridge     BridgeStatsProvider     // optional
	Metrics    *telemetry.Metrics      // optional: /metrics is not mounted without it
	Hub        *Hub                    // If set, the server uses this hub instead of creating its own
	Version    string

	// ShutdownTimeout is how long Close waits for in-flight requests; it
	// should exceed the controller timeout. Values below
	// gracefulShutdownTimeout are raised.
	ShutdownTimeout time.Duration
}

// Server is the HTTP API server for plugd.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	gateway    PlugGateway
	controller ControllerStatsProvider
	history    plug.HistoryRepository
	db         *database.DB
	mqtt       *mqtt.Client
	bridge     BridgeStatsProvider
	metrics    *telemetry.Metrics
	version    string
	grace      time.Duration
	startTime  time.Time
	server     *http.Server
	hub        *Hub
	cancel     context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called. The WebSocket hub is
// created here so it can be registered as a gateway recorder before the
// listener starts.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("plug gateway is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		gateway:    deps.Gateway,
		controller: deps.Controller,
		history:    deps.History,
		db:         deps.DB,
		mqtt:       deps.MQTT,
		bridge:     deps.Bridge,
		metrics:    deps.Metrics,
		version:    deps.Version,
		grace:      max(deps.ShutdownTimeout, gracefulShutdownTimeout),
		startTime:  time.Now(),
		hub:        deps.Hub,
	}
	if s.hub == nil {
		s.hub = NewHub(deps.Logger)
	}

	return s, nil
}

// Hub returns the WebSocket hub. Register it with the gateway to push
// plug.state_changed events to clients.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the fully wired router. Start uses it; tests can mount it
// on httptest.Server directly.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and launches the HTTP listener in a
// background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to the shutdown grace period for in-flight requests to
// complete, then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.grace)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// handleHealth reports the gateway and its optional dependencies. The
// gateway itself stays usable without MQTT or the history database, so a
// failed dependency marks the response degraded but still answers 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	components := map[string]string{}
	status := "ok"

	if s.db != nil {
		components["database"] = "ok"
		if err := s.db.HealthCheck(ctx); err != nil {
			components["database"] = err.Error()
			status = "degraded"
		}
	}
	if s.mqtt != nil {
		components["mqtt"] = "ok"
		if err := s.mqtt.HealthCheck(ctx); err != nil {
			components["mqtt"] = err.Error()
			status = "degraded"
		}
	}

	identity := s.gateway.Identity()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    s.version,
		"device_id":  identity.DeviceID,
		"power":      s.gateway.Power(),
		"components": components,
	})
}
