package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/module-manager/internal/api"
	"github.com/nerrad567/module-manager/internal/audit"
	"github.com/nerrad567/module-manager/internal/auth"
	"github.com/nerrad567/module-manager/internal/devicesync"
	"github.com/nerrad567/module-manager/internal/infrastructure/config"
	"github.com/nerrad567/module-manager/internal/infrastructure/database"
	"github.com/nerrad567/module-manager/internal/infrastructure/influxdb"
	"github.com/nerrad567/module-manager/internal/infrastructure/logging"
	"github.com/nerrad567/module-manager/internal/infrastructure/mqtt"
	"github.com/nerrad567/module-manager/internal/module"
	_ "github.com/nerrad567/module-manager/migrations"
)

const (
	// eventBufferSize bounds queued event log writes.
	eventBufferSize = 256

	healthCheckTimeout = 10 * time.Second
)

// serve runs the service until ctx is cancelled.
//
// Startup order is database, telemetry, background workers, MQTT, device
// sync, auth, web API. Shutdown runs in reverse through the defers, so the
// event log drains only after the broker connection has stopped delivering.
func serve(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("Service Starting",
		"description", "module manager starting",
		"version", version, "commit", commit, "build_date", date)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // Best-effort flush on exit
	log.Info("Configuration Loaded",
		"description", fmt.Sprintf("configuration read from %s", configPath),
		"path", configPath, "level", cfg.Logging.Level, "format", cfg.Logging.Format)

	authLog := log.Category(logging.CategoryAuth)
	apiLog := log.Category(logging.CategoryAPI)
	mcLog := log.Category(logging.CategoryMicrocontrollers)

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("Database Close Error", "description", "error closing database", "error", closeErr)
		}
	}()

	// Telemetry (optional)
	var (
		influxClient *influxdb.Client
		telemetry    *influxdb.Telemetry
	)
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("InfluxDB Close Error", "description", "error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB Write Error", "description", "telemetry batch rejected", "error", err)
		})
		telemetry = influxdb.NewTelemetry(influxClient)
		log.Info("InfluxDB Connected",
			"description", "liveness telemetry enabled",
			"url", cfg.InfluxDB.URL, "org", cfg.InfluxDB.Org, "bucket", cfg.InfluxDB.Bucket)
	}

	// Event log, WebSocket hub and session purge run until shutdown.
	events := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(events, eventBufferSize, log)
	hub := api.NewHub(cfg.WebSocket, apiLog)

	sessions := auth.NewSQLiteSessionStore(db.DB)
	directory, err := auth.NewStaticDirectory(cfg.Security.Users, cfg.Security.AllowedGroup)
	if err != nil {
		return fmt.Errorf("loading user directory: %w", err)
	}
	manager, err := auth.NewManager(auth.ManagerOptions{
		Directory: directory,
		Sessions:  sessions,
		Secret:    cfg.Security.JWT.Secret,
		TTL:       cfg.GetSessionTTL(),
		Logger:    authLog,
	})
	if err != nil {
		return fmt.Errorf("creating auth manager: %w", err)
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	var workers conc.WaitGroup
	workers.Go(func() { recorder.Run(bgCtx) })
	workers.Go(func() { hub.Run(bgCtx) })
	workers.Go(func() { manager.RunPurge(bgCtx, purgeInterval(cfg.Security.Session)) })
	defer func() {
		stopBackground()
		workers.Wait()
		if n := recorder.Dropped(); n > 0 {
			log.Warn("Event Log Incomplete",
				"description", fmt.Sprintf("%d module events were dropped", n), "dropped", n)
		}
	}()

	observers := module.Observers{recorder, hub}
	var pushRecorder devicesync.PushRecorder
	if telemetry != nil {
		observers = append(observers, telemetry)
		pushRecorder = telemetry
	}

	mqttClient, err := connectMQTT(cfg.MQTT, mcLog)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("MQTT Close Error", "description", "error disconnecting from broker", "error", closeErr)
		}
	}()

	publisher := devicesync.NewPublisher(devicesync.PublisherOptions{
		Transport: mqttClient,
		Retain:    cfg.MQTT.RetainUpdates,
		Logger:    mcLog,
		Recorder:  pushRecorder,
	})

	store := module.NewSQLiteStore(db.DB)
	service := module.NewService(store, publisher)
	service.SetLogger(apiLog)
	service.SetObserver(observers)

	lifecycle, err := devicesync.NewLifecycleHandler(store, publisher)
	if err != nil {
		return fmt.Errorf("creating lifecycle handler: %w", err)
	}
	lifecycle.SetLogger(mcLog)
	lifecycle.SetObserver(observers)

	gateway, err := devicesync.NewGateway(devicesync.GatewayOptions{
		Client:    mqttClient,
		Lifecycle: lifecycle,
		QoS:       byte(cfg.MQTT.QoS), // #nosec G115 -- validated to 0-2
		Logger:    mcLog,
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	if err := gateway.Start(); err != nil {
		return fmt.Errorf("subscribing to device topics: %w", err)
	}
	defer gateway.Stop()

	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Session: cfg.Security.Session,
		Logger:  apiLog,
		Modules: service,
		Auth:    manager,
		Events:  events,
		Hub:     hub,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("API Server Close Error", "description", "error stopping HTTP listener", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("Service Ready",
		"description", "all health checks passed, waiting for devices",
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	<-ctx.Done()

	log.Info("Service Stopping", "description", "shutdown signal received, cleaning up")
	return nil
}

// openDatabase opens SQLite and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("Database Ready",
		"description", "database opened and migrated", "path", cfg.Database.Path)
	return db, nil
}

// connectMQTT connects to the broker. Bad credentials stop startup.
func connectMQTT(cfg config.MQTTConfig, mcLog *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg, mqtt.WithLogger(mcLog))
	if err != nil {
		if errors.Is(err, mqtt.ErrAuthFailed) {
			mcLog.Error("MQTT Authentication Failed",
				"description", "broker rejected the configured credentials",
				"username", cfg.Auth.Username)
		}
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	return client, nil
}

// purgeInterval returns the session purge period, defaulting to 15 minutes.
func purgeInterval(cfg config.SessionConfig) time.Duration {
	if cfg.PurgeInterval <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(cfg.PurgeInterval) * time.Minute
}

// healthCheck verifies every connection in parallel.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - influxClient: May be nil if telemetry is disabled
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := db.HealthCheck(gctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := mqttClient.HealthCheck(gctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		return nil
	})
	if influxClient != nil {
		g.Go(func() error {
			if err := influxClient.HealthCheck(gctx); err != nil {
				return fmt.Errorf("influxdb: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}
