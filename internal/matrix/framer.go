package matrix

import (
	"context"
	"errors"
	"io"
	"time"
)

// Framing defaults.
const (
	// DefaultIdleTimeout is how long the line must stay quiet before a reply
	// is considered complete.
	DefaultIdleTimeout = 300 * time.Millisecond

	// DefaultMaxResponseBytes caps one reply. A full status dump of a 16x16
	// unit is a few kilobytes.
	DefaultMaxResponseBytes = 64 * 1024

	readChunkSize = 1024
)

// Framer decides where one reply ends.
//
// ReadResponse is called after a command has been written. It returns the
// raw reply bytes. If the peer closed the stream after sending data, the
// data is returned together with io.EOF.
type Framer interface {
	ReadResponse(ctx context.Context, conn Conn) ([]byte, error)
}

// IdleFramer ends a reply when no byte arrives within Idle.
//
// The device streams its reply in one burst and then goes silent, and the
// protocol has no terminator. A read that times out is therefore the normal
// end of a reply, even when nothing was received.
type IdleFramer struct {
	// Idle is the quiet period that ends a reply. Default: 300ms.
	Idle time.Duration

	// MaxBytes aborts the read with ErrResponseTooLarge. Default: 64 KiB.
	MaxBytes int
}

// ReadResponse implements Framer.
func (f IdleFramer) ReadResponse(ctx context.Context, conn Conn) ([]byte, error) {
	idle := f.Idle
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxResponseBytes
	}

	var buf []byte
	chunk := make([]byte, readChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		deadline := time.Now().Add(idle)
		callerDeadline := false
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
			callerDeadline = true
		}
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}

		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if len(buf) > limit {
				return nil, ErrResponseTooLarge
			}
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			return buf, io.EOF
		case isTimeout(err):
			// The caller's deadline may be what expired, possibly before
			// the context timer has fired.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if callerDeadline {
				return nil, context.DeadlineExceeded
			}
			return buf, nil
		default:
			return nil, err
		}
	}
}
