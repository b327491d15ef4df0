package matrix

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ziutek/telnet"
	"go.bug.st/serial"
)

// Connection defaults.
const (
	// DefaultPort is the telnet console port of the matrix.
	DefaultPort = 23

	// DefaultBaudRate is used for serial:// URLs without a baud parameter.
	DefaultBaudRate = 9600
)

// Conn is a byte stream to the matrix with read and write deadlines.
// net.Conn satisfies it directly.
type Conn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Dialer opens a new Conn. The context carries the connect deadline.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// Endpoint is a parsed connection URL.
type Endpoint struct {
	// Scheme is "tcp", "telnet" or "serial".
	Scheme string

	// Address is host:port for network schemes and the device path for serial.
	Address string

	// BaudRate applies to serial endpoints only.
	BaudRate int
}

// String returns the endpoint in URL form.
func (e Endpoint) String() string {
	if e.Scheme == "serial" {
		return fmt.Sprintf("serial://%s?baud=%d", e.Address, e.BaudRate)
	}
	return e.Scheme + "://" + e.Address
}

// ParseEndpoint parses a connection URL.
//
// Supported formats:
//   - "tcp://host[:port]"
//   - "telnet://host[:port]"
//   - "serial:///dev/ttyUSB0?baud=9600"
//   - "host[:port]" (treated as tcp)
//
// Parameters:
//   - raw: Connection URL from configuration or the command line
//
// Returns:
//   - Endpoint: Scheme and address with the default port (23) or baud
//     rate (9600) filled in
//   - error: ErrUnsupportedScheme or ErrInvalidArgument
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("%w: empty connection URL", ErrInvalidArgument)
	}
	if !strings.Contains(raw, "://") {
		raw = "tcp://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: invalid URL: %w", ErrInvalidArgument, err)
	}

	switch u.Scheme {
	case "tcp", "telnet":
		host := u.Hostname()
		if host == "" {
			return Endpoint{}, fmt.Errorf("%w: missing host in %q", ErrInvalidArgument, raw)
		}
		port := u.Port()
		if port == "" {
			port = strconv.Itoa(DefaultPort)
		}
		return Endpoint{Scheme: u.Scheme, Address: net.JoinHostPort(host, port)}, nil
	case "serial":
		path := u.Path
		if path == "" {
			return Endpoint{}, fmt.Errorf("%w: missing device path in %q", ErrInvalidArgument, raw)
		}
		baud := DefaultBaudRate
		if v := u.Query().Get("baud"); v != "" {
			baud, err = strconv.Atoi(v)
			if err != nil || baud <= 0 {
				return Endpoint{}, fmt.Errorf("%w: invalid baud rate %q", ErrInvalidArgument, v)
			}
		}
		return Endpoint{Scheme: "serial", Address: path, BaudRate: baud}, nil
	default:
		return Endpoint{}, fmt.Errorf("%w: %q (use tcp, telnet or serial)", ErrUnsupportedScheme, u.Scheme)
	}
}

// NewDialer returns the Dialer for an endpoint.
func NewDialer(ep Endpoint) (Dialer, error) {
	switch ep.Scheme {
	case "tcp":
		return &tcpDialer{address: ep.Address}, nil
	case "telnet":
		return &tcpDialer{address: ep.Address, negotiate: true}, nil
	case "serial":
		return &serialDialer{path: ep.Address, baud: ep.BaudRate}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, ep.Scheme)
	}
}

// tcpDialer dials the telnet console port. With negotiate set the stream is
// wrapped so IAC option requests from the device are answered and stripped.
type tcpDialer struct {
	address   string
	negotiate bool
}

func (d *tcpDialer) Dial(ctx context.Context) (Conn, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", d.address)
	if err != nil {
		return nil, err
	}
	if !d.negotiate {
		return conn, nil
	}

	tc, err := telnet.NewConn(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("telnet: %w", err)
	}
	return tc, nil
}

// serialDialer opens an RS-232 port. The matrix console runs 8N1.
type serialDialer struct {
	path string
	baud int
}

func (d *serialDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	port, err := serial.Open(d.path, &serial.Mode{
		BaudRate: d.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		var portErr *serial.PortError
		if errors.As(err, &portErr) {
			return nil, fmt.Errorf("open %s: %s", d.path, portErr.EncodedErrorString())
		}
		return nil, fmt.Errorf("open %s: %w", d.path, err)
	}

	// Discard anything the device sent before we were listening.
	_ = port.ResetInputBuffer()

	return &serialConn{port: port}, nil
}

// serialConn maps read deadlines onto the port read timeout. A read that
// times out returns os.ErrDeadlineExceeded, the same error a net.Conn gives.
type serialConn struct {
	port serial.Port
}

func (s *serialConn) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if n == 0 && err == nil {
		return 0, os.ErrDeadlineExceeded
	}
	return n, err
}

func (s *serialConn) Write(p []byte) (int, error) {
	n, err := s.port.Write(p)
	if err != nil {
		return n, err
	}
	return n, s.port.Drain()
}

func (s *serialConn) Close() error {
	return s.port.Close()
}

func (s *serialConn) SetReadDeadline(t time.Time) error {
	if t.IsZero() {
		return s.port.SetReadTimeout(serial.NoTimeout)
	}
	d := time.Until(t)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return s.port.SetReadTimeout(d)
}

// SetWriteDeadline is a no-op. Serial writes complete once the bytes are
// queued to the UART.
func (s *serialConn) SetWriteDeadline(time.Time) error {
	return nil
}

// isTimeout reports whether err is a deadline expiry.
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
