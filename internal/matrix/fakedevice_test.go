package matrix

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeDevice is an in-process matrix console. It greets each session with a
// banner, echoes every command and answers from a reply table followed by a
// prompt, the way the real unit does.
type fakeDevice struct {
	t  *testing.T
	ln net.Listener

	mu       sync.Mutex
	replies  map[string]string
	received []string
	conns    []net.Conn

	// negotiated collects telnet option replies (IAC WILL/WONT/DO/DONT).
	negotiated [][]byte

	// closeAfter lists commands after which the device hangs up.
	closeAfter map[string]bool

	// delay is applied before each reply.
	delay time.Duration

	accepted atomic.Int32
	wg       sync.WaitGroup
}

func newFakeDevice(t *testing.T, replies map[string]string) *fakeDevice {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	d := &fakeDevice{
		t:          t,
		ln:         ln,
		replies:    replies,
		closeAfter: make(map[string]bool),
	}

	d.wg.Add(1)
	go d.acceptLoop()

	t.Cleanup(d.close)
	return d
}

func (d *fakeDevice) URL() string {
	return "tcp://" + d.ln.Addr().String()
}

func (d *fakeDevice) acceptLoop() {
	defer d.wg.Done()
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		d.accepted.Add(1)
		d.mu.Lock()
		d.conns = append(d.conns, conn)
		d.mu.Unlock()

		d.wg.Add(1)
		go d.serve(conn)
	}
}

func (d *fakeDevice) serve(conn net.Conn) {
	defer d.wg.Done()
	defer conn.Close()

	_, _ = conn.Write([]byte("\xff\xfd\x18Welcome to HDMI Matrix\r\n********************\r\nFW Version: 1.00.05\r\n>"))

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd, opts := splitTelnet(strings.TrimRight(line, "\r\n"))

		d.mu.Lock()
		d.negotiated = append(d.negotiated, opts...)
		d.received = append(d.received, cmd)
		reply, ok := d.replies[cmd]
		delay := d.delay
		hangup := d.closeAfter[cmd]
		d.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}

		out := cmd + "\r\n"
		if ok {
			out += reply + "\r\n"
		}
		out += ">"
		if _, err := conn.Write([]byte(out)); err != nil {
			return
		}
		if hangup {
			return
		}
	}
}

// splitTelnet removes three-byte option negotiations from a command line
// and returns them separately.
func splitTelnet(line string) (string, [][]byte) {
	var (
		out  []byte
		opts [][]byte
	)
	for i := 0; i < len(line); i++ {
		if line[i] == 0xff && i+2 < len(line) && line[i+1] >= 0xfb && line[i+1] <= 0xfe {
			opts = append(opts, []byte(line[i:i+3]))
			i += 2
			continue
		}
		out = append(out, line[i])
	}
	return string(out), opts
}

func (d *fakeDevice) negotiations() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.negotiated...)
}

// dropAll closes every session from the device side.
func (d *fakeDevice) dropAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.conns {
		c.Close()
	}
	d.conns = nil
}

func (d *fakeDevice) commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.received...)
}

func (d *fakeDevice) close() {
	d.ln.Close()
	d.dropAll()
	d.wg.Wait()
}

// newTestChannel returns a channel with a short idle window.
func newTestChannel(t *testing.T, url string) *Channel {
	t.Helper()
	ch, err := NewChannel(Config{
		Connection:     url,
		ConnectTimeout: time.Second,
		IdleTimeout:    50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewChannel(%q): %v", url, err)
	}
	t.Cleanup(func() { ch.Close() })
	return ch
}
