package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-matrix/internal/audit"
	"github.com/nerrad567/gray-logic-matrix/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-matrix/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-matrix/internal/infrastructure/mqtt"
	hdmi "github.com/nerrad567/gray-logic-matrix/internal/matrix"
)

const (
	// queueSize bounds commands and requests waiting for the device.
	queueSize = 32

	defaultCommandTimeout = 15 * time.Second
	auditTimeout          = 5 * time.Second
)

// Logger is the structured logger used by the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the MQTT surface the bridge needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// StatsProvider reports command channel statistics. *hdmi.Channel implements it.
type StatsProvider interface {
	Stats() hdmi.Stats
	Endpoint() string
}

// AuditRecorder stores audit entries. audit.Repository implements it.
type AuditRecorder interface {
	Create(ctx context.Context, entry *audit.Entry) error
}

// MetricsWriter receives telemetry. *influxdb.Client implements it.
type MetricsWriter interface {
	WritePower(matrixID string, on bool)
	WriteRoute(matrixID string, output, input int)
	WriteLink(matrixID, direction string, port int, state string, linked bool)
	WriteClientCounters(matrixID string, counters influxdb.ClientCounters)
	WriteCommand(matrixID, command string, duration time.Duration, ok bool)
}

// Options holds what NewBridge needs. Audit and Metrics are optional.
type Options struct {
	Config  config.MatrixConfig
	Version string

	MQTT    MQTTClient
	Matrix  MatrixClient
	Channel StatsProvider

	Audit   AuditRecorder
	Metrics MetricsWriter
	Logger  Logger
}

// Bridge connects one matrix to MQTT.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg     config.MatrixConfig
	mqtt    MQTTClient
	matrix  MatrixClient
	channel StatsProvider
	audit   AuditRecorder
	metrics MetricsWriter

	coordinator *Coordinator
	health      *HealthReporter
	topics      mqtt.Topics

	queue chan func(ctx context.Context)

	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger Logger
}

// NewBridge creates a bridge. Call Start to begin operation.
//
// Parameters:
//   - opts: MQTT client, matrix client and config are required; audit,
//     metrics and channel statistics are optional
//
// Returns:
//   - *Bridge: Bridge ready to Start
//   - error: If a required option is missing
func NewBridge(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, errors.New("MQTT client is required")
	}
	if opts.Matrix == nil {
		return nil, errors.New("matrix client is required")
	}
	if opts.Config.ID == "" {
		return nil, errors.New("matrix id is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		cfg:       opts.Config,
		mqtt:      opts.MQTT,
		matrix:    opts.Matrix,
		channel:   opts.Channel,
		audit:     opts.Audit,
		metrics:   opts.Metrics,
		queue:     make(chan func(ctx context.Context), queueSize),
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: cancel,
		logger:    opts.Logger,
	}

	b.coordinator = NewCoordinator(CoordinatorConfig{
		Client:   opts.Matrix,
		Interval: opts.Config.PollInterval,
		Timeout:  b.commandTimeout(),
		OnUpdate: b.handleUpdate,
	})
	b.health = NewHealthReporter(HealthReporterConfig{
		MatrixID:    opts.Config.ID,
		Version:     opts.Version,
		Interval:    opts.Config.HealthInterval,
		Publisher:   opts.MQTT,
		Channel:     opts.Channel,
		Coordinator: b.coordinator,
		Metrics:     opts.Metrics,
	})
	if opts.Logger != nil {
		b.coordinator.SetLogger(opts.Logger)
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start subscribes to command and request topics and starts polling and
// health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	commandTopic := b.topics.MatrixCommand(b.cfg.ID)
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleCommandMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	requestTopic := b.topics.MatrixRequests(b.cfg.ID)
	if err := b.mqtt.Subscribe(requestTopic, 1, b.handleRequestMessage); err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	b.logInfo("subscribed", "commands", commandTopic, "requests", requestTopic)

	b.wg.Add(1)
	go b.worker()

	b.coordinator.Start(ctx)
	b.health.Start(ctx)

	b.logInfo("matrix bridge started", "matrix_id", b.cfg.ID, "poll_interval", b.coordinator.interval)
	return nil
}

// Stop releases the bridge's subscriptions, cancels in-flight work, drops
// queued work and publishes a final "stopping" health message. Safe to
// call twice.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if b.mqtt.IsConnected() {
			for _, topic := range []string{b.topics.MatrixCommand(b.cfg.ID), b.topics.MatrixRequests(b.cfg.ID)} {
				if err := b.mqtt.Unsubscribe(topic); err != nil {
					b.logError("failed to unsubscribe", err)
				}
			}
		}
		close(b.done)
		b.ctxCancel()
		b.coordinator.Stop()
		b.wg.Wait()
		b.health.Stop()
		b.matrix.Disconnect()
		b.logInfo("matrix bridge stopped")
	})
}

// Coordinator exposes the poller, mainly for status queries.
func (b *Bridge) Coordinator() *Coordinator {
	return b.coordinator
}

// worker runs queued commands and requests one at a time.
func (b *Bridge) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case job := <-b.queue:
			ctx, cancel := context.WithTimeout(b.ctx, b.commandTimeout())
			job(ctx)
			cancel()
		}
	}
}

func (b *Bridge) enqueue(job func(ctx context.Context)) error {
	select {
	case <-b.done:
		return context.Canceled
	default:
	}
	select {
	case b.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (b *Bridge) commandTimeout() time.Duration {
	if b.cfg.CommandTimeout > 0 {
		return b.cfg.CommandTimeout
	}
	return defaultCommandTimeout
}

// handleCommandMessage decodes a command and queues it.
func (b *Bridge) handleCommandMessage(_ string, payload []byte) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		b.publishAck(NewAckError(b.cfg.ID, cmd, fmt.Errorf("%w: %w", ErrInvalidParameters, err)))
		return
	}
	b.logInfo("received command", "command_id", cmd.ID, "command", cmd.Command, "source", cmd.Source)

	if err := b.enqueue(func(ctx context.Context) { b.runCommand(ctx, cmd) }); err != nil {
		b.publishAck(NewAckError(b.cfg.ID, cmd, err))
	}
}

// handleRequestMessage decodes a request and queues it.
func (b *Bridge) handleRequestMessage(topic string, payload []byte) {
	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		b.logError("failed to parse request", err, "topic", topic)
		return
	}
	if req.RequestID == "" {
		id, ok := b.topics.RequestID(topic)
		if !ok {
			b.logError("request without id", errors.New("no request id"), "topic", topic)
			return
		}
		req.RequestID = id
	}

	if err := b.enqueue(func(ctx context.Context) { b.runRequest(ctx, req) }); err != nil {
		b.publishResponse(newResponse(b.cfg.ID, req.RequestID, nil, err))
	}
}

// runCommand executes one command, acks it, and records it.
func (b *Bridge) runCommand(ctx context.Context, cmd CommandMessage) {
	started := time.Now()
	err := b.executeCommand(ctx, cmd)
	elapsed := time.Since(started)

	if err != nil {
		b.logWarn("command failed", "command_id", cmd.ID, "command", cmd.Command, "error", err)
		b.publishAck(NewAckError(b.cfg.ID, cmd, err))
	} else {
		b.publishAck(NewAckMessage(b.cfg.ID, cmd))
		if cmd.Command != CommandRefresh {
			b.coordinator.RequestRefresh()
		}
	}

	if b.metrics != nil {
		b.metrics.WriteCommand(b.cfg.ID, cmd.Command, elapsed, err == nil)
	}
	b.recordAudit(audit.ActionCommand, cmd.Source, cmd.UserID, commandDetails(cmd, elapsed, err))
}

func commandDetails(cmd CommandMessage, elapsed time.Duration, err error) map[string]any {
	details := map[string]any{
		"command_id":  cmd.ID,
		"command":     cmd.Command,
		"success":     err == nil,
		"duration_ms": elapsed.Milliseconds(),
	}
	if len(cmd.Parameters) > 0 {
		details["parameters"] = cmd.Parameters
	}
	if err != nil {
		details["error"] = err.Error()
		details["error_code"] = errorCode(err)
	}
	return details
}

func (b *Bridge) recordAudit(action, source, userID string, details map[string]any) {
	if b.audit == nil {
		return
	}
	if source == "" {
		source = "mqtt"
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()

	entry := &audit.Entry{
		Action:     action,
		EntityType: audit.EntityMatrix,
		EntityID:   b.cfg.ID,
		UserID:     userID,
		Source:     source,
		Details:    details,
	}
	if err := b.audit.Create(ctx, entry); err != nil {
		b.logError("failed to write audit entry", err)
	}
}

// handleUpdate publishes changed state and writes metrics for every refresh.
func (b *Bridge) handleUpdate(snap Snapshot, changed bool) {
	if changed {
		b.publishJSON(b.topics.MatrixState(b.cfg.ID), NewStateMessage(b.cfg, snap), true)
		b.logDebug("matrix state published", "power", snap.Power, "outputs", len(snap.Outputs))
	}
	if b.metrics == nil {
		return
	}
	b.metrics.WritePower(b.cfg.ID, snap.Power)
	for out, in := range snap.Outputs {
		b.metrics.WriteRoute(b.cfg.ID, out, in)
	}
	for port, linked := range snap.InputLinks {
		b.metrics.WriteLink(b.cfg.ID, "in", port, linkLabel(linked), linked)
	}
	for port, linked := range snap.OutputLinks {
		b.metrics.WriteLink(b.cfg.ID, "out", port, linkLabel(linked), linked)
	}
}

func linkLabel(linked bool) string {
	if linked {
		return "connected"
	}
	return string(hdmi.LinkDisconnect)
}

func (b *Bridge) publishAck(ack AckMessage) {
	b.publishJSON(b.topics.MatrixAck(b.cfg.ID), ack, false)
}

func (b *Bridge) publishResponse(resp ResponseMessage) {
	b.publishJSON(b.topics.MatrixResponse(resp.RequestID), resp, false)
}

func (b *Bridge) publishJSON(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logError("failed to marshal message", err, "topic", topic)
		return
	}
	if err := b.mqtt.Publish(topic, payload, 1, retained); err != nil {
		b.logError("failed to publish", err, "topic", topic)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
