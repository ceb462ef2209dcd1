// plugd - Smart Plug Device State Gateway
//
// plugd exposes a smart plug over HTTP, WebSocket and MQTT. It switches the
// plug and reads its status by running an external controller program, and
// answers status requests from a local cache whenever that program fails.
//
// Configuration is read from PLUGD_CONFIG (default configs/config.yaml).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-plug/migrations"

	"github.com/nerrad567/gray-logic-plug/internal/api"
	"github.com/nerrad567/gray-logic-plug/internal/bridge"
	"github.com/nerrad567/gray-logic-plug/internal/controller"
	"github.com/nerrad567/gray-logic-plug/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-plug/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-plug/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-plug/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-plug/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-plug/internal/plug"
	"github.com/nerrad567/gray-logic-plug/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// pruneInterval is how often expired history rows are deleted.
const pruneInterval = time.Hour

// shutdownMargin is added to the controller timeout when draining requests.
const shutdownMargin = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // Linear startup sequence with deferred teardown
	log := logging.Default()
	log.Info("starting plugd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Controller and gateway
	invoker := controller.NewInvoker(controller.Config{
		Binary:  cfg.Controller.Binary,
		Args:    cfg.Controller.Args,
		Env:     cfg.Controller.Env,
		WorkDir: cfg.Controller.WorkDir,
		Timeout: cfg.Controller.Timeout,
	})
	invoker.SetLogger(log.With("component", "controller"))

	identity := plug.Identity{
		DeviceID: cfg.Device.ID,
		Name:     cfg.Device.Name,
		Model:    cfg.Device.Model,
		MAC:      cfg.Device.MAC,
	}
	parser := plug.NewParser(identity, cfg.Controller.PowerField)
	gateway, err := plug.NewGateway(plug.Options{
		Identity:      identity,
		Invoker:       invoker,
		Cache:         plug.NewStateCache(),
		Parser:        parser,
		MaxConcurrent: cfg.Controller.MaxConcurrent,
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	gateway.SetLogger(log.With("component", "gateway"))
	log.Info("gateway initialised",
		"device_id", identity.DeviceID,
		"controller", cfg.Controller.Binary,
		"timeout", invoker.Timeout(),
		"power_field", parser.PowerField(),
		"max_concurrent", cfg.Controller.MaxConcurrent,
	)

	metrics := telemetry.NewMetrics()
	gateway.AddRecorder(metrics)

	// Observation history (optional)
	var db *database.DB
	var history plug.HistoryRepository
	if cfg.Database.Enabled {
		db, err = database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.Database.Path)

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		repo := plug.NewSQLiteHistoryRepository(db.DB)
		history = repo
		gateway.AddRecorder(plug.NewHistoryRecorder(repo, log.With("component", "history")))

		if cfg.Database.RetentionDays > 0 {
			retention := time.Duration(cfg.Database.RetentionDays) * 24 * time.Hour
			go pruneHistory(ctx, repo, retention, pruneInterval, log)
		}
	} else {
		log.Info("history database disabled")
	}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		gateway.AddRecorder(telemetry.NewInfluxRecorder(influxClient))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT (optional)
	var mqttClient *mqtt.Client
	var mqttBridge *bridge.Bridge
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttBridge, err = bridge.NewBridge(bridge.Options{
			MQTT:           mqttClient,
			Gateway:        gateway,
			DeviceID:       identity.DeviceID,
			Topics:         mqttClient.Topics(),
			QoS:            mqttClient.QoS(),
			CommandTimeout: 2 * invoker.Timeout(),
			Logger:         log.With("component", "bridge"),
		})
		if err != nil {
			return fmt.Errorf("creating MQTT bridge: %w", err)
		}
		if err := mqttBridge.Start(ctx); err != nil {
			return fmt.Errorf("starting MQTT bridge: %w", err)
		}
		defer mqttBridge.Stop()
		gateway.AddRecorder(mqttBridge)
	} else {
		log.Info("MQTT disabled")
	}

	// HTTP API
	deps := api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log.With("component", "api"),
		Gateway:    gateway,
		Controller: invoker,
		History:    history,
		DB:         db,
		MQTT:       mqttClient,
		Metrics:    metrics,
		Version:    version,

		ShutdownTimeout: shutdownGrace(invoker.Timeout()),
	}
	if mqttBridge != nil {
		deps.Bridge = mqttBridge
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	gateway.AddRecorder(server.Hub())

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, MQTT bridge, MQTT, InfluxDB, database. Recorders outlive
	// every caller that can still reach the gateway.

	log.Info("plugd stopped")
	return nil
}

// shutdownGrace is how long the API server drains on shutdown: long enough
// for an invocation that has just started to time out and be recorded.
func shutdownGrace(controllerTimeout time.Duration) time.Duration {
	return controllerTimeout + shutdownMargin
}

// getConfigPath returns the configuration file path.
// Uses PLUGD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PLUGD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the optional infrastructure connections. Nil
// components are disabled and skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	return nil
}

// historyPruner is the part of the history repository used for retention.
type historyPruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// pruneHistory deletes history older than retention once at start and then
// every interval until ctx ends.
func pruneHistory(ctx context.Context, repo historyPruner, retention, interval time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := repo.Prune(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("history prune failed", "error", err)
		case n > 0:
			log.Info("history pruned", "deleted", n, "retention", retention)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
