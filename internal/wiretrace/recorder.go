package wiretrace

import (
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-matrix/internal/matrix"
)

// Recorder appends exchanges to a trace file. It implements matrix.Tracer.
// It is safe for concurrent use.
type Recorder struct {
	file     *os.File
	encoder  *cbor.Encoder
	runID    string
	endpoint string

	mu      sync.Mutex
	closed  bool
	written uint64
	failed  uint64
}

var _ matrix.Tracer = (*Recorder)(nil)

// NewRecorder opens path for appending, creating it with mode 0644 if needed.
// endpoint is stored in every record.
func NewRecorder(path, endpoint string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Recorder{
		file:     f,
		encoder:  newEncoder(f),
		runID:    uuid.NewString(),
		endpoint: endpoint,
	}, nil
}

// Trace writes one exchange. Encoding errors are counted, not returned;
// tracing never interferes with the command path.
func (r *Recorder) Trace(ex matrix.Exchange) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if err := r.encoder.Encode(fromExchange(r.runID, r.endpoint, ex)); err != nil {
		r.failed++
		return
	}
	r.written++
}

// RunID returns the identifier stamped on records from this recorder.
func (r *Recorder) RunID() string {
	return r.runID
}

// Counts returns the number of records written and dropped.
func (r *Recorder) Counts() (written, dropped uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written, r.failed
}

// Close closes the trace file. Later Trace calls are ignored. Safe to call
// more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}
