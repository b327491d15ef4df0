// Gray Logic Matrix - HDMI matrix bridge
//
// This is the main entry point for the matrix bridge daemon. It keeps one
// session to an HDMI matrix switch, polls its power, routing and link state,
// and exposes it on the Gray Logic MQTT bus:
//   - State published retained on graylogic/state/matrix/{id}
//   - Commands accepted on graylogic/command/matrix/{id}
//   - Health on graylogic/health/matrix/{id}
//
// For the console tool, see cmd/matrixctl.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-matrix/internal/audit"
	bridge "github.com/nerrad567/gray-logic-matrix/internal/bridges/matrix"
	"github.com/nerrad567/gray-logic-matrix/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-matrix/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-matrix/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-matrix/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-matrix/internal/infrastructure/mqtt"
	hdmi "github.com/nerrad567/gray-logic-matrix/internal/matrix"
	"github.com/nerrad567/gray-logic-matrix/internal/wiretrace"
	"github.com/nerrad567/gray-logic-matrix/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// pruneInterval is how often old audit entries are removed.
const pruneInterval = 24 * time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the daemon, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Matrix bridge",
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

	// Open database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", db.Path())

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	var auditRepo *audit.SQLiteRepository
	if cfg.Audit.Enabled {
		auditRepo = audit.NewSQLiteRepository(db.DB)
		if cfg.Audit.RetentionDays > 0 {
			go pruneAudit(ctx, auditRepo, cfg.Audit.RetentionDays, log.Component("audit"))
		}
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
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

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	matrixBridge, closeChannel, err := startBridge(ctx, cfg, mqttClient, auditRepo, influxClient, log)
	if err != nil {
		return fmt.Errorf("starting matrix bridge: %w", err)
	}
	defer closeChannel()
	defer func() {
		log.Info("stopping matrix bridge")
		matrixBridge.Stop()
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// startBridge builds the matrix client and starts the bridge. The returned
// cleanup closes the channel and the wire trace.
func startBridge(
	ctx context.Context,
	cfg *config.Config,
	mqttClient *mqtt.Client,
	auditRepo *audit.SQLiteRepository,
	influxClient *influxdb.Client,
	log *logging.Logger,
) (*bridge.Bridge, func(), error) {
	channel, err := hdmi.NewChannel(channelConfig(cfg.Matrix))
	if err != nil {
		return nil, nil, fmt.Errorf("creating matrix channel: %w", err)
	}
	matrixLog := log.Component("matrix")
	channel.SetLogger(matrixLog)

	var recorder *wiretrace.Recorder
	if cfg.Matrix.TraceFile != "" {
		recorder, err = wiretrace.NewRecorder(cfg.Matrix.TraceFile, channel.Endpoint())
		if err != nil {
			return nil, nil, fmt.Errorf("opening wire trace: %w", err)
		}
		channel.SetTracer(recorder)
		log.Info("wire trace enabled", "path", cfg.Matrix.TraceFile, "run_id", recorder.RunID())
	}

	cleanup := func() {
		if closeErr := channel.Close(); closeErr != nil {
			log.Debug("error closing matrix channel", "error", closeErr)
		}
		if recorder != nil {
			written, dropped := recorder.Counts()
			if closeErr := recorder.Close(); closeErr != nil {
				log.Error("error closing wire trace", "error", closeErr)
			}
			log.Info("wire trace closed", "written", written, "dropped", dropped)
		}
	}

	policy, _ := hdmi.ParseParsePolicy(cfg.Matrix.BulkParsePolicy)
	client := hdmi.New(channel, policy)
	client.SetLogger(matrixLog)

	opts := bridge.Options{
		Config:  cfg.Matrix,
		Version: version,
		MQTT:    &mqttBridgeAdapter{client: mqttClient},
		Matrix:  client,
		Channel: channel,
		Logger:  log.Component("bridge"),
	}
	// Typed nils must not reach the optional interfaces.
	if auditRepo != nil {
		opts.Audit = auditRepo
	}
	if influxClient != nil {
		opts.Metrics = influxClient
	}

	b, err := bridge.NewBridge(opts)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := b.Start(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	log.Info("matrix bridge started",
		"matrix_id", cfg.Matrix.ID,
		"endpoint", channel.Endpoint(),
		"parse_policy", policy,
		"subscriptions", mqttClient.SubscriptionCount(),
	)
	return b, cleanup, nil
}

func channelConfig(m config.MatrixConfig) hdmi.Config {
	return hdmi.Config{
		Connection:       m.Connection,
		ConnectTimeout:   m.ConnectTimeout,
		IdleTimeout:      m.IdleTimeout,
		WriteTimeout:     m.WriteTimeout,
		MaxResponseBytes: m.MaxResponseBytes,
	}
}

// pruneAudit removes entries older than the retention period at startup
// and then once a day.
func pruneAudit(ctx context.Context, repo audit.Repository, days int, log *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		before := time.Now().AddDate(0, 0, -days)
		n, err := repo.Prune(ctx, before)
		if err != nil {
			log.Warn("audit prune failed", "error", err)
		} else if n > 0 {
			log.Info("audit entries pruned", "removed", n, "before", before.Format(time.RFC3339))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	// The matrix itself is not checked here: the bridge starts degraded and
	// recovers on the next poll once the device answers.
	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. Bridge handlers do not return errors.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

func (a *mqttBridgeAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}

func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
