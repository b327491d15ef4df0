package matrix

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Connect opens the session if there is none. It is a no-op when already
// connected. The dial is bounded by the connect timeout and by ctx.
//
// Parameters:
//   - ctx: Context for cancellation of the dial
//
// Returns:
//   - error: ErrConnectTimeout when the deadline expires, ErrNetwork for
//     every other dial failure, ErrClosed after Close
func (c *Channel) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, err := c.dialer.Dial(dialCtx)
	if err != nil {
		if isTimeout(err) || errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s after %s: %w", ErrConnectTimeout, c.cfg.Connection, c.cfg.ConnectTimeout, err)
		}
		return fmt.Errorf("%w: dial %s: %w", ErrNetwork, c.cfg.Connection, err)
	}

	c.conn = conn
	c.connects.Add(1)
	c.lastActivity.Store(time.Now().Unix())
	c.logDebug("connected to matrix", "endpoint", c.cfg.Connection)
	return nil
}

// Disconnect closes the session. It never fails and may be called any number
// of times. A command in flight on another goroutine fails with ErrNetwork.
func (c *Channel) Disconnect() {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		c.logDebug("closing matrix session", "error", err)
	}
	c.logDebug("disconnected from matrix", "endpoint", c.cfg.Connection)
}

// Close disconnects and makes every further call return ErrClosed.
func (c *Channel) Close() error {
	c.closed.Store(true)
	c.Disconnect()
	return nil
}

// IsConnected reports whether a session is open.
func (c *Channel) IsConnected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn != nil
}

func (c *Channel) ensureConnected(ctx context.Context) error {
	return c.Connect(ctx)
}

// reset drops the session after a failure so the next command redials.
func (c *Channel) reset() {
	if c.IsConnected() {
		c.resets.Add(1)
	}
	c.Disconnect()
}
