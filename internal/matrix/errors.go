package matrix

import "errors"

// Sentinel errors for matrix protocol operations.
var (
	// ErrConnectTimeout means no session could be established within the
	// connect timeout.
	ErrConnectTimeout = errors.New("matrix: connect timed out")

	// ErrNetwork covers refused, reset and unreachable connections as well as
	// read and write failures on an established session.
	ErrNetwork = errors.New("matrix: network error")

	// ErrNotConnected is returned when a command reaches the wire layer
	// without a session. It indicates the session was torn down concurrently.
	ErrNotConnected = errors.New("matrix: not connected")

	// ErrParseFailure means a bulk query returned a line whose numeric field
	// could not be parsed. No partial result is returned.
	ErrParseFailure = errors.New("matrix: malformed numeric field")

	// ErrInvalidResponse means the model identifier reply was empty, echoed
	// the query, or was too short to be a model name.
	ErrInvalidResponse = errors.New("matrix: invalid response")

	// ErrResponseTooLarge means a reply exceeded the framer size limit.
	ErrResponseTooLarge = errors.New("matrix: response too large")

	// ErrInvalidArgument is returned for port ids below 1 and unknown CEC
	// actions. Nothing is sent to the device.
	ErrInvalidArgument = errors.New("matrix: invalid argument")

	// ErrUnsupportedScheme is returned for connection URLs with an unknown
	// scheme.
	ErrUnsupportedScheme = errors.New("matrix: unsupported connection scheme")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("matrix: client closed")
)
