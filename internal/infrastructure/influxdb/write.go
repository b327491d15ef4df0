package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementPower   = "matrix_power"
	MeasurementRoute   = "matrix_route"
	MeasurementLink    = "matrix_link"
	MeasurementClient  = "matrix_client"
	MeasurementCommand = "matrix_command"
)

// ClientCounters mirrors the command channel statistics.
type ClientCounters struct {
	Commands  uint64
	Errors    uint64
	Connects  uint64
	Resets    uint64
	Connected bool
}

// WritePower records the matrix power state.
func (c *Client) WritePower(matrixID string, on bool) {
	c.writePoint(write.NewPoint(MeasurementPower,
		map[string]string{"matrix_id": matrixID},
		map[string]any{"on": on},
		c.now()))
}

// WriteRoute records which input feeds an output.
func (c *Client) WriteRoute(matrixID string, output, input int) {
	c.writePoint(write.NewPoint(MeasurementRoute,
		map[string]string{"matrix_id": matrixID, "output": strconv.Itoa(output)},
		map[string]any{"input": int64(input)},
		c.now()))
}

// WriteLink records the HDBT link state of a port. direction is "in" or "out".
func (c *Client) WriteLink(matrixID, direction string, port int, state string, linked bool) {
	c.writePoint(write.NewPoint(MeasurementLink,
		map[string]string{"matrix_id": matrixID, "direction": direction, "port": strconv.Itoa(port)},
		map[string]any{"state": state, "linked": linked},
		c.now()))
}

// WriteClientCounters records command channel statistics.
func (c *Client) WriteClientCounters(matrixID string, counters ClientCounters) {
	c.writePoint(write.NewPoint(MeasurementClient,
		map[string]string{"matrix_id": matrixID},
		map[string]any{
			"commands":  int64(counters.Commands),
			"errors":    int64(counters.Errors),
			"connects":  int64(counters.Connects),
			"resets":    int64(counters.Resets),
			"connected": counters.Connected,
		},
		c.now()))
}

// WriteCommand records the outcome of one bridge command.
func (c *Client) WriteCommand(matrixID, command string, duration time.Duration, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	c.writePoint(write.NewPoint(MeasurementCommand,
		map[string]string{"matrix_id": matrixID, "command": command, "result": result},
		map[string]any{"duration_ms": float64(duration.Microseconds()) / 1000},
		c.now()))
}
