package wiretrace

import (
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/nerrad567/gray-logic-matrix/internal/matrix"
)

// Record is one command exchange. CBOR encoding uses integer keys.
type Record struct {
	// Timestamp is when the command was issued.
	Timestamp time.Time `cbor:"1,keyasint"`

	// RunID identifies the process that wrote the record.
	RunID string `cbor:"2,keyasint"`

	// Endpoint is the matrix connection URL.
	Endpoint string `cbor:"3,keyasint,omitempty"`

	Command  string        `cbor:"4,keyasint"`
	Raw      []byte        `cbor:"5,keyasint,omitempty"`
	Lines    []string      `cbor:"6,keyasint,omitempty"`
	Duration time.Duration `cbor:"7,keyasint"`

	// Error is the failure text, empty on success.
	Error string `cbor:"8,keyasint,omitempty"`
}

// Failed reports whether the exchange ended in an error.
func (r Record) Failed() bool {
	return r.Error != ""
}

// fromExchange converts a channel exchange.
func fromExchange(runID, endpoint string, ex matrix.Exchange) Record {
	rec := Record{
		Timestamp: ex.Started,
		RunID:     runID,
		Endpoint:  endpoint,
		Command:   ex.Command,
		Raw:       ex.Raw,
		Lines:     ex.Lines,
		Duration:  ex.Duration,
	}
	if ex.Err != nil {
		rec.Error = ex.Err.Error()
	}
	return rec
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("wiretrace: encoder mode: %v", err))
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wiretrace: decoder mode: %v", err))
	}
}

// Encode returns the CBOR form of a record.
func Encode(rec Record) ([]byte, error) {
	return encMode.Marshal(rec)
}

// Decode parses one CBOR record.
func Decode(data []byte) (Record, error) {
	var rec Record
	if err := decMode.Unmarshal(data, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func newEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

func newDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}
