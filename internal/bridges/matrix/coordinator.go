package matrix

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	hdmi "github.com/nerrad567/gray-logic-matrix/internal/matrix"
)

const defaultPollInterval = 30 * time.Second

// MatrixClient is the subset of *hdmi.Matrix the bridge drives.
type MatrixClient interface {
	Type(ctx context.Context) (string, error)
	Status(ctx context.Context) (hdmi.Status, error)
	Power(ctx context.Context) (bool, error)
	SetPower(ctx context.Context, on bool) error
	OutputSource(ctx context.Context, output int) (int, bool, error)
	OutputSources(ctx context.Context) (map[int]int, error)
	InLinks(ctx context.Context) (map[int]bool, error)
	OutLinks(ctx context.Context) (map[int]bool, error)
	SetOutputSource(ctx context.Context, input, output int) error
	SetCECIn(ctx context.Context, input int, action hdmi.CECAction) error
	SetCECOut(ctx context.Context, output int, action hdmi.CECAction) error
	SetOutputActive(ctx context.Context, output int) error
	Disconnect()
}

// Snapshot is the last known state of the matrix. Maps are keyed by the
// 1-based port number.
type Snapshot struct {
	Model       string       `json:"model"`
	Power       bool         `json:"power"`
	Outputs     map[int]int  `json:"outputs"`
	InputLinks  map[int]bool `json:"input_links"`
	OutputLinks map[int]bool `json:"output_links"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// sameState compares everything but UpdatedAt.
func (s Snapshot) sameState(o Snapshot) bool {
	return s.Model == o.Model &&
		s.Power == o.Power &&
		maps.Equal(s.Outputs, o.Outputs) &&
		maps.Equal(s.InputLinks, o.InputLinks) &&
		maps.Equal(s.OutputLinks, o.OutputLinks)
}

func (s Snapshot) clone() Snapshot {
	s.Outputs = maps.Clone(s.Outputs)
	s.InputLinks = maps.Clone(s.InputLinks)
	s.OutputLinks = maps.Clone(s.OutputLinks)
	return s
}

// PollStats counts refresh attempts.
type PollStats struct {
	Polls     uint64
	Errors    uint64
	LastError string
	LastPoll  time.Time
}

// UpdateFunc receives each successful refresh. changed is false when the
// state equals the previous snapshot.
type UpdateFunc func(snap Snapshot, changed bool)

// Coordinator polls the matrix and keeps the latest snapshot.
//
// A failed refresh is logged and leaves the previous snapshot in place.
// On-demand refreshes coalesce: requests made while one is pending
// collapse into a single refresh.
type Coordinator struct {
	client   MatrixClient
	interval time.Duration
	timeout  time.Duration
	onUpdate UpdateFunc

	refresh chan struct{}

	mu       sync.RWMutex
	snapshot Snapshot
	ready    bool
	lastErr  error
	lastPoll time.Time

	// refreshMu keeps refreshes from overlapping.
	refreshMu sync.Mutex

	polls      atomic.Uint64
	pollErrors atomic.Uint64

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	Client MatrixClient

	// Interval between polls. Default: 30s.
	Interval time.Duration

	// Timeout bounds one refresh. Default: the interval.
	Timeout time.Duration

	OnUpdate UpdateFunc
}

// NewCoordinator creates a coordinator. Call Start to begin polling.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = interval
	}
	return &Coordinator{
		client:   cfg.Client,
		interval: interval,
		timeout:  timeout,
		onUpdate: cfg.OnUpdate,
		refresh:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// SetLogger sets the logger.
func (c *Coordinator) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// Start reads the model once and then polls every interval until ctx is
// cancelled or Stop is called. The first refresh runs immediately.
func (c *Coordinator) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.loop(ctx)
}

// Stop ends polling and waits for an in-flight refresh. Safe to call twice.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
	})
}

// RequestRefresh schedules a refresh without waiting for it.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.refresh <- struct{}{}:
	default:
		// One is already pending.
	}
}

// Snapshot returns a copy of the latest snapshot and whether one exists.
func (c *Coordinator) Snapshot() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.clone(), c.ready
}

// Stats returns poll counters.
func (c *Coordinator) Stats() PollStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := PollStats{
		Polls:    c.polls.Load(),
		Errors:   c.pollErrors.Load(),
		LastPoll: c.lastPoll,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

// Healthy reports whether the last refresh succeeded.
func (c *Coordinator) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready && c.lastErr == nil
}

func (c *Coordinator) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.poll(ctx)
		case <-c.refresh:
			c.poll(ctx)
		}
	}
}

func (c *Coordinator) poll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.Refresh(ctx); err != nil {
		c.logWarn("matrix refresh failed, keeping previous state", "error", err)
	}
}

// Refresh queries power, routing and link state and replaces the snapshot.
// The model is read on the first refresh and retried until it succeeds.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.polls.Add(1)
	next, err := c.query(ctx)

	c.mu.Lock()
	c.lastPoll = time.Now()
	c.lastErr = err
	if err != nil {
		c.mu.Unlock()
		c.pollErrors.Add(1)
		return err
	}
	changed := !c.ready || !c.snapshot.sameState(next)
	c.snapshot = next
	c.ready = true
	c.mu.Unlock()

	if c.onUpdate != nil {
		c.onUpdate(next.clone(), changed)
	}
	return nil
}

func (c *Coordinator) query(ctx context.Context) (Snapshot, error) {
	c.mu.RLock()
	model := c.snapshot.Model
	c.mu.RUnlock()

	var err error
	if model == "" {
		if model, err = c.client.Type(ctx); err != nil {
			return Snapshot{}, fmt.Errorf("reading model: %w", err)
		}
	}

	snap := Snapshot{Model: model}
	if snap.Power, err = c.client.Power(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("reading power: %w", err)
	}
	if snap.Outputs, err = c.client.OutputSources(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("reading output sources: %w", err)
	}
	if snap.InputLinks, err = c.client.InLinks(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("reading input links: %w", err)
	}
	if snap.OutputLinks, err = c.client.OutLinks(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("reading output links: %w", err)
	}
	snap.UpdatedAt = time.Now().UTC()
	return snap, nil
}

func (c *Coordinator) logWarn(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
