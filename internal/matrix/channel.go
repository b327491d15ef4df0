package matrix

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Channel defaults.
const (
	// DefaultConnectTimeout bounds session establishment.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultWriteTimeout bounds writing one command.
	DefaultWriteTimeout = 5 * time.Second

	// commandTerminator ends every command on the wire.
	commandTerminator = "\r\n"
)

// Config holds channel settings.
type Config struct {
	// Connection is the matrix connection URL. See ParseEndpoint.
	Connection string

	// ConnectTimeout bounds dialing. Default: 5 seconds.
	ConnectTimeout time.Duration

	// IdleTimeout is the quiet period that ends a reply. Default: 300ms.
	IdleTimeout time.Duration

	// WriteTimeout bounds writing a command. Default: 5 seconds.
	WriteTimeout time.Duration

	// MaxResponseBytes caps one reply. Default: 64 KiB.
	MaxResponseBytes int

	// Framer replaces the idle framer when set.
	Framer Framer
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if c.Framer == nil {
		c.Framer = IdleFramer{Idle: c.IdleTimeout, MaxBytes: c.MaxResponseBytes}
	}
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Exchange is one command and its reply, as handed to a Tracer.
type Exchange struct {
	Command  string
	Raw      []byte
	Lines    []string
	Started  time.Time
	Duration time.Duration
	Err      error
}

// Tracer receives every exchange after it completes. Trace is called with
// the command gate held and must not call back into the Channel.
type Tracer interface {
	Trace(ex Exchange)
}

// Stats holds channel statistics.
type Stats struct {
	Commands     uint64
	Errors       uint64
	Connects     uint64
	Resets       uint64 // Sessions torn down after a failure
	LastActivity time.Time
	Connected    bool
}

// Executor runs commands against the matrix. Channel implements it; tests
// substitute a scripted fake.
type Executor interface {
	Connect(ctx context.Context) error
	Disconnect()
	Execute(ctx context.Context, command string) ([]string, error)
	ExecuteLine(ctx context.Context, command string) (string, error)
}

var _ Executor = (*Channel)(nil)

// Channel is the single session to one matrix.
//
// Thread Safety:
//   - Execute and ExecuteLine hold the command gate for the whole
//     write/read cycle, so replies are never mixed.
//   - Connect, Disconnect and Stats may be called at any time.
type Channel struct {
	cfg    Config
	dialer Dialer

	// gate serialises commands.
	gate sync.Mutex

	// connMu guards conn.
	connMu sync.Mutex
	conn   Conn

	closed atomic.Bool

	logger   Logger
	tracer   Tracer
	loggerMu sync.RWMutex

	commands     atomic.Uint64
	errorsTotal  atomic.Uint64
	connects     atomic.Uint64
	resets       atomic.Uint64
	lastActivity atomic.Int64
}

// NewChannel creates a channel for cfg.Connection. No connection is made
// until the first command or an explicit Connect.
//
// Parameters:
//   - cfg: Connection URL and timeouts; zero values take the defaults
//
// Returns:
//   - *Channel: Idle channel, safe for concurrent use
//   - error: ErrUnsupportedScheme or ErrInvalidArgument for a bad URL
func NewChannel(cfg Config) (*Channel, error) {
	ep, err := ParseEndpoint(cfg.Connection)
	if err != nil {
		return nil, err
	}
	dialer, err := NewDialer(ep)
	if err != nil {
		return nil, err
	}
	return NewChannelWithDialer(dialer, cfg), nil
}

// NewChannelWithDialer creates a channel that opens sessions with dialer.
func NewChannelWithDialer(dialer Dialer, cfg Config) *Channel {
	cfg.applyDefaults()
	return &Channel{cfg: cfg, dialer: dialer}
}

// SetLogger sets the logger for this channel.
func (c *Channel) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// SetTracer installs a tracer. Pass nil to disable tracing.
func (c *Channel) SetTracer(tracer Tracer) {
	c.loggerMu.Lock()
	c.tracer = tracer
	c.loggerMu.Unlock()
}

// Execute sends command and returns the clean reply lines.
//
// A reply with no usable lines is not an error. On any failure the session
// is closed and the error returned; the command is not retried and the next
// call dials again.
//
// Parameters:
//   - ctx: Bounds the dial, the write and the reply
//   - command: Wire command including its trailing '!'
//
// Returns:
//   - []string: Reply lines with echo, banners and prompts removed
//   - error: ErrNetwork, ErrConnectTimeout, ErrResponseTooLarge or ErrClosed
func (c *Channel) Execute(ctx context.Context, command string) ([]string, error) {
	c.gate.Lock()
	defer c.gate.Unlock()

	if c.closed.Load() {
		return nil, ErrClosed
	}

	started := time.Now()
	c.commands.Add(1)

	raw, peerClosed, err := c.roundTrip(ctx, command)
	if err != nil {
		c.errorsTotal.Add(1)
		c.logWarn("matrix command failed, resetting session", "command", command, "error", err)
		c.reset()
		c.trace(Exchange{Command: command, Raw: raw, Started: started, Duration: time.Since(started), Err: err})
		return nil, err
	}

	c.lastActivity.Store(time.Now().Unix())

	lines := sanitize(raw, command, func(line string) {
		c.logDebug("skipping line", "command", command, "line", line)
	})
	if len(raw) == 0 {
		c.logWarn("no response received", "command", command)
	}
	c.logDebug("matrix response", "command", command, "lines", lines)

	if peerClosed {
		c.logInfo("matrix closed the session", "command", command)
		c.reset()
	}

	c.trace(Exchange{Command: command, Raw: raw, Lines: lines, Started: started, Duration: time.Since(started)})
	return lines, nil
}

// ExecuteLine sends command and returns the last clean line, or "" when the
// reply had none. Later lines supersede earlier ones when the device repeats
// itself across packets.
func (c *Channel) ExecuteLine(ctx context.Context, command string) (string, error) {
	lines, err := c.Execute(ctx, command)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", nil
	}
	return lines[len(lines)-1], nil
}

// roundTrip writes one command and frames its reply. peerClosed reports that
// the device closed the stream after replying.
func (c *Channel) roundTrip(ctx context.Context, command string) (raw []byte, peerClosed bool, err error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, false, err
	}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return nil, false, ErrNotConnected
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return nil, false, fmt.Errorf("%w: set deadline: %w", ErrNetwork, err)
	}

	c.logDebug("sending command", "command", command)
	if _, err := conn.Write([]byte(command + commandTerminator)); err != nil {
		return nil, false, fmt.Errorf("%w: write: %w", ErrNetwork, err)
	}

	raw, err = c.cfg.Framer.ReadResponse(ctx, conn)
	switch {
	case err == nil:
		return raw, false, nil
	case errors.Is(err, io.EOF):
		if len(raw) == 0 {
			return nil, false, fmt.Errorf("%w: connection closed by device", ErrNetwork)
		}
		return raw, true, nil
	case errors.Is(err, ErrResponseTooLarge):
		return nil, false, err
	case ctx.Err() != nil:
		return nil, false, fmt.Errorf("%w: read: %w", ErrNetwork, ctx.Err())
	default:
		return nil, false, fmt.Errorf("%w: read: %w", ErrNetwork, err)
	}
}

// Stats returns current statistics.
func (c *Channel) Stats() Stats {
	var last time.Time
	if ts := c.lastActivity.Load(); ts > 0 {
		last = time.Unix(ts, 0)
	}
	return Stats{
		Commands:     c.commands.Load(),
		Errors:       c.errorsTotal.Load(),
		Connects:     c.connects.Load(),
		Resets:       c.resets.Load(),
		LastActivity: last,
		Connected:    c.IsConnected(),
	}
}

// Endpoint returns a printable description of the session target.
func (c *Channel) Endpoint() string {
	return c.cfg.Connection
}

func (c *Channel) trace(ex Exchange) {
	c.loggerMu.RLock()
	tracer := c.tracer
	c.loggerMu.RUnlock()

	if tracer != nil {
		tracer.Trace(ex)
	}
}

func (c *Channel) loggerOrNil() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Channel) logDebug(msg string, keysAndValues ...any) {
	if l := c.loggerOrNil(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (c *Channel) logInfo(msg string, keysAndValues ...any) {
	if l := c.loggerOrNil(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (c *Channel) logWarn(msg string, keysAndValues ...any) {
	if l := c.loggerOrNil(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}
