package matrix

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-matrix/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-matrix/internal/infrastructure/mqtt"
	hdmi "github.com/nerrad567/gray-logic-matrix/internal/matrix"
)

const defaultHealthInterval = 30 * time.Second

// HealthPublisher publishes health messages.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporter publishes bridge health on a fixed interval and writes
// client counters to metrics on each tick.
type HealthReporter struct {
	matrixID    string
	version     string
	startTime   time.Time
	interval    time.Duration
	publisher   HealthPublisher
	channel     StatsProvider
	coordinator *Coordinator
	metrics     MetricsWriter

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// HealthReporterConfig configures a HealthReporter. Channel, Coordinator
// and Metrics may be nil.
type HealthReporterConfig struct {
	MatrixID    string
	Version     string
	Interval    time.Duration // default 30s
	Publisher   HealthPublisher
	Channel     StatsProvider
	Coordinator *Coordinator
	Metrics     MetricsWriter
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthReporter{
		matrixID:    cfg.MatrixID,
		version:     cfg.Version,
		startTime:   time.Now(),
		interval:    interval,
		publisher:   cfg.Publisher,
		channel:     cfg.Channel,
		coordinator: cfg.Coordinator,
		metrics:     cfg.Metrics,
		done:        make(chan struct{}),
	}
}

// SetLogger sets the logger.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// Start begins periodic reporting.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		//nolint:errcheck // best effort during shutdown
		h.publishStatus(HealthStopping, "bridge stopping")
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
			h.writeMetrics()
		}
	}
}

// determineStatus is degraded while MQTT is down or the last poll failed.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.coordinator != nil && !h.coordinator.Healthy() {
		reason := "matrix not yet polled"
		if last := h.coordinator.Stats().LastError; last != "" {
			reason = "matrix unreachable: " + last
		}
		return HealthDegraded, reason
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) stats() (hdmi.Stats, string) {
	if h.channel == nil {
		return hdmi.Stats{}, ""
	}
	return h.channel.Stats(), h.channel.Endpoint()
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	stats, address := h.stats()
	var polls PollStats
	if h.coordinator != nil {
		polls = h.coordinator.Stats()
	}

	msg := NewHealthMessage(h.matrixID, h.version, address, status, stats, polls, h.startTime)
	msg.Reason = reason

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(mqtt.Topics{}.MatrixHealth(h.matrixID), payload, 1, true)
}

func (h *HealthReporter) writeMetrics() {
	if h.metrics == nil || h.channel == nil {
		return
	}
	s := h.channel.Stats()
	h.metrics.WriteClientCounters(h.matrixID, influxdb.ClientCounters{
		Commands:  s.Commands,
		Errors:    s.Errors,
		Connects:  s.Connects,
		Resets:    s.Resets,
		Connected: s.Connected,
	})
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
