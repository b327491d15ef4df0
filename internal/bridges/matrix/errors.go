package matrix

import (
	"context"
	"errors"

	hdmi "github.com/nerrad567/gray-logic-matrix/internal/matrix"
)

// Bridge-level errors.
var (
	// ErrUnknownCommand is returned for a command name the bridge does not handle.
	ErrUnknownCommand = errors.New("matrix bridge: unknown command")

	// ErrInvalidParameters is returned when command parameters are missing or malformed.
	ErrInvalidParameters = errors.New("matrix bridge: invalid parameters")

	// ErrDeviceOff is returned for routing and CEC commands while the matrix is off.
	ErrDeviceOff = errors.New("matrix bridge: matrix is powered off")

	// ErrQueueFull is returned when the work queue cannot accept a message.
	ErrQueueFull = errors.New("matrix bridge: work queue full")
)

// Error codes carried in acks and responses.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeProtocolError     = "PROTOCOL_ERROR"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeDeviceOff         = "DEVICE_OFF"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// errorCode maps an operation error onto an ack error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, hdmi.ErrConnectTimeout):
		return ErrCodeTimeout
	case errors.Is(err, ErrDeviceOff):
		return ErrCodeDeviceOff
	case errors.Is(err, ErrUnknownCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrInvalidParameters), errors.Is(err, hdmi.ErrInvalidArgument):
		return ErrCodeInvalidParameters
	case errors.Is(err, hdmi.ErrNetwork), errors.Is(err, hdmi.ErrNotConnected), errors.Is(err, hdmi.ErrClosed):
		return ErrCodeDeviceUnreachable
	case errors.Is(err, hdmi.ErrParseFailure), errors.Is(err, hdmi.ErrInvalidResponse), errors.Is(err, hdmi.ErrResponseTooLarge):
		return ErrCodeProtocolError
	default:
		return ErrCodeBridgeError
	}
}
