// DTI - Dome/Telescope Interface
//
// This is the main entry point of the DTI. It sits between the observation
// scheduler and the observatory hardware: scheduler messages arrive over a
// persistent TCP link, run through the device pipelines, and come back with
// an observation status. Device state, alerts and run outcomes go out over
// MQTT and InfluxDB; operator actions come in over MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/dti-core/internal/capability"
	"github.com/nerrad567/dti-core/internal/infrastructure/config"
	"github.com/nerrad567/dti-core/internal/infrastructure/database"
	"github.com/nerrad567/dti-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/dti-core/internal/infrastructure/logging"
	"github.com/nerrad567/dti-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/dti-core/internal/journal"
	"github.com/nerrad567/dti-core/internal/pipeline"
	"github.com/nerrad567/dti-core/internal/protocol"
	"github.com/nerrad567/dti-core/internal/reactor"
	"github.com/nerrad567/dti-core/internal/telemetry"
	"github.com/nerrad567/dti-core/internal/transport"
	"github.com/nerrad567/dti-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/dti.yaml"

	// pruneInterval is how often old journal rows are deleted.
	pruneInterval = 6 * time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting DTI",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// A missing .env file is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // nothing left to log to
	log.Info("configuration loaded",
		"path", configPath,
		"site", cfg.Site.ID,
		"hardware_mode", cfg.Hardware.Mode,
	)

	caps := capability.Default()
	if cfg.CapabilitiesFile != "" {
		if caps, err = capability.Load(cfg.CapabilitiesFile); err != nil {
			return fmt.Errorf("loading capabilities: %w", err)
		}
		log.Info("capabilities loaded", "path", cfg.CapabilitiesFile, "filters", len(caps.Filters))
	}

	// Database and journal
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: time.Duration(cfg.Database.BusyTimeout) * time.Second,
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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	store := journal.NewStore(db.DB)

	unsafe, unsafeReason, err := store.LoadUnsafe(ctx)
	if err != nil {
		return fmt.Errorf("loading unsafe latch: %w", err)
	}
	if unsafe {
		log.Warn("observatory latched unsafe from a previous run", "reason", unsafeReason)
	}

	// Status bus
	recorderOpts := []telemetry.Option{telemetry.WithJournal(store), telemetry.WithLogger(log)}

	var mqttClient *mqtt.Client
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
		mqttClient.SetLogger(log)
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		recorderOpts = append(recorderOpts, telemetry.WithPublisher(mqttClient))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled, operator actions unavailable")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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
		recorderOpts = append(recorderOpts, telemetry.WithMetrics(influxClient))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	recorder := telemetry.New(recorderOpts...)

	// Reactor, hardware and scheduler link
	loop := reactor.New(reactor.WithLogger(log))
	defer loop.Close()

	drivers, err := openDrivers(ctx, cfg, loop, log)
	if err != nil {
		return err
	}
	defer drivers.Close()

	link, err := transport.Connect(ctx, transport.Config{
		Address:              cfg.Scheduler.Address(),
		ConnectTimeout:       cfg.Scheduler.ConnectTimeout,
		ReconnectInterval:    cfg.Scheduler.ReconnectInterval,
		MaxReconnectInterval: cfg.Scheduler.MaxReconnectInterval,
		QueueSize:            cfg.Scheduler.QueueSize,
	})
	if err != nil {
		return fmt.Errorf("connecting to scheduler: %w", err)
	}
	defer func() {
		log.Info("closing scheduler link")
		if closeErr := link.Close(); closeErr != nil {
			log.Error("error closing scheduler link", "error", closeErr)
		}
	}()
	link.SetLogger(log)
	log.Info("scheduler connected", "address", cfg.Scheduler.Address())

	// Orchestrator
	opts := []pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithResponder(link),
		pipeline.WithHooks(recorder),
	}
	if unsafe {
		opts = append(opts, pipeline.WithUnsafe(unsafeReason))
	}
	orch, err := pipeline.New(loop, drivers.dome, drivers.telescope, cfg.DeviceConfig(caps), opts...)
	if err != nil {
		return fmt.Errorf("building orchestrator: %w", err)
	}

	drivers.route(loop, orch)
	wireScheduler(link, loop, orch, log)

	if mqttClient != nil {
		err = mqttClient.Subscribe(mqtt.Topics{}.AllOperatorActions(), byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2
			telemetry.OperatorHandler(loop, orch, log))
		if err != nil {
			return fmt.Errorf("subscribing to operator actions: %w", err)
		}
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := loop.Run(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("reactor: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return recorder.Run(gctx)
	})
	g.Go(func() error {
		pruneJournal(gctx, store, time.Duration(cfg.Database.RetentionDays)*24*time.Hour, log)
		return nil
	})

	err = g.Wait()
	log.Info("shutdown signal received, cleaning up",
		"telemetry_dropped", recorder.Stats().Dropped,
		"scheduler_rx", link.Stats().RecordsRx,
	)

	// Deferred Close() calls run in reverse order: scheduler link, hardware
	// drivers, reactor, InfluxDB, MQTT, database, logger.
	log.Info("DTI stopped")
	return err
}

// wireScheduler connects the scheduler link to the reactor.
//
// Incoming messages are submitted on the reactor goroutine. After every
// reconnect the scheduler gets a fresh status report, since it may have
// missed a push while the link was down.
func wireScheduler(link *transport.Link, loop *reactor.Loop, orch *pipeline.Orchestrator, log *logging.Logger) {
	link.SetOnMessage(func(msg *protocol.Message) {
		if !loop.Post(func() { orch.Submit(msg) }) {
			log.Warn("scheduler message dropped, reactor stopped", "kind", msg.Kind().String())
		}
	})
	link.SetOnConnect(func() {
		loop.Post(func() {
			msg := protocol.New(orch.Report())
			msg.Status = protocol.StatusGood
			if err := link.Send(msg); err != nil {
				log.Warn("status push after reconnect failed", "error", err)
			}
		})
	})
}

// pruneJournal deletes journal rows older than retention until ctx ends.
func pruneJournal(ctx context.Context, store *journal.Store, retention time.Duration, log *logging.Logger) {
	if retention <= 0 {
		return
	}

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		n, err := store.Prune(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Error("journal prune failed", "error", err)
		case n > 0:
			log.Info("journal pruned", "rows", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses DTI_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DTI_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (nil if disabled)
//   - influxClient: InfluxDB client to check (nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
