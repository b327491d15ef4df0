package matrix

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/nerrad567/gray-logic-matrix/internal/infrastructure/config"
	hdmi "github.com/nerrad567/gray-logic-matrix/internal/matrix"
)

// Protocol is the protocol identifier carried in messages.
const Protocol = "matrix"

// CommandMessage asks the bridge to act on the matrix.
// Topic: graylogic/command/matrix/{id}
type CommandMessage struct {
	// ID correlates the command with its ack.
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Command is one of the names listed in the package documentation.
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source is where the command came from ("api", "automation", "scene").
	Source string `json:"source"`
	UserID string `json:"user_id,omitempty"`
}

// UnmarshalJSON accepts an absent or RFC 3339 timestamp.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type alias CommandMessage
	aux := &struct {
		*alias
		Timestamp string `json:"timestamp"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}

// AckStatus is the outcome of a command.
type AckStatus string

const (
	AckAccepted AckStatus = "accepted"
	AckFailed   AckStatus = "failed"
	AckTimeout  AckStatus = "timeout"
)

// AckMessage answers a CommandMessage.
// Topic: graylogic/ack/matrix/{id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	MatrixID  string    `json:"matrix_id"`
	Command   string    `json:"command"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError describes a failed command.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAckMessage builds an accepted ack.
func NewAckMessage(matrixID string, cmd CommandMessage) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		MatrixID:  matrixID,
		Command:   cmd.Command,
		Status:    AckAccepted,
		Protocol:  Protocol,
	}
}

// NewAckError builds a failed ack. Timeouts get AckTimeout.
func NewAckError(matrixID string, cmd CommandMessage, err error) AckMessage {
	ack := NewAckMessage(matrixID, cmd)
	code := errorCode(err)
	ack.Status = AckFailed
	if code == ErrCodeTimeout {
		ack.Status = AckTimeout
	}
	ack.Error = &AckError{Code: code, Message: err.Error()}
	return ack
}

// StateMessage carries the current snapshot.
// Topic: graylogic/state/matrix/{id}, QoS 1, retained.
type StateMessage struct {
	MatrixID  string    `json:"matrix_id"`
	Name      string    `json:"name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Protocol  string    `json:"protocol"`
	State     Snapshot  `json:"state"`

	// SourceList holds the input names in port order. Every output picks
	// its source from this list.
	SourceList []string      `json:"source_list"`
	Outputs    []OutputState `json:"outputs"`
}

// OutputState is one output with its current source by name.
type OutputState struct {
	Output     int    `json:"output"`
	Name       string `json:"name"`
	Source     int    `json:"source,omitempty"`
	SourceName string `json:"source_name,omitempty"`
}

// NewStateMessage wraps a snapshot for publication. Ports without a
// configured name are called "Input N" and "Output N".
func NewStateMessage(cfg config.MatrixConfig, snap Snapshot) StateMessage {
	msg := StateMessage{
		MatrixID:  cfg.ID,
		Name:      cfg.Name,
		Timestamp: time.Now().UTC(),
		Protocol:  Protocol,
		State:     snap,
	}

	inputs := len(cfg.Inputs)
	for port := range snap.InputLinks {
		inputs = max(inputs, port)
	}
	for _, in := range snap.Outputs {
		inputs = max(inputs, in)
	}
	msg.SourceList = make([]string, 0, inputs)
	for n := 1; n <= inputs; n++ {
		msg.SourceList = append(msg.SourceList, cfg.InputName(n))
	}

	outputs := make(map[int]bool)
	for n := 1; n <= len(cfg.Outputs); n++ {
		outputs[n] = true
	}
	for port := range snap.Outputs {
		outputs[port] = true
	}
	for port := range snap.OutputLinks {
		outputs[port] = true
	}
	msg.Outputs = make([]OutputState, 0, len(outputs))
	for _, port := range slices.Sorted(maps.Keys(outputs)) {
		out := OutputState{Output: port, Name: cfg.OutputName(port)}
		if in, ok := snap.Outputs[port]; ok {
			out.Source = in
			out.SourceName = cfg.InputName(in)
		}
		msg.Outputs = append(msg.Outputs, out)
	}
	return msg
}

// RequestMessage is a query.
// Topic: graylogic/request/matrix/{id}/{request_id}
type RequestMessage struct {
	// RequestID defaults to the last topic segment when omitted.
	RequestID  string         `json:"request_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Request actions.
const (
	ActionReadStatus   = "read_status"
	ActionReadType     = "read_type"
	ActionReadSnapshot = "read_snapshot"
)

// ResponseMessage answers a RequestMessage.
// Topic: graylogic/response/matrix/{request_id}
type ResponseMessage struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	MatrixID  string         `json:"matrix_id"`
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     *AckError      `json:"error,omitempty"`
}

func newResponse(matrixID, requestID string, data map[string]any, err error) ResponseMessage {
	resp := ResponseMessage{
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		MatrixID:  matrixID,
		Success:   err == nil,
		Data:      data,
	}
	if err != nil {
		resp.Data = nil
		resp.Error = &AckError{Code: errorCode(err), Message: err.Error()}
	}
	return resp
}

// HealthStatus is the operational state of the bridge.
type HealthStatus string

const (
	HealthStarting HealthStatus = "starting"
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge health.
// Topic: graylogic/health/matrix/{id}, QoS 1, retained.
type HealthMessage struct {
	Bridge        string            `json:"bridge"`
	MatrixID      string            `json:"matrix_id"`
	Timestamp     time.Time         `json:"timestamp"`
	Status        HealthStatus      `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Connection    *ConnectionStatus `json:"connection,omitempty"`
	Statistics    *BridgeStatistics `json:"statistics,omitempty"`
	Reason        string            `json:"reason,omitempty"`
}

// ConnectionStatus describes the device session.
type ConnectionStatus struct {
	Status       string     `json:"status"`
	Address      string     `json:"address"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// BridgeStatistics are the counters reported with health.
type BridgeStatistics struct {
	Commands   uint64 `json:"commands"`
	Errors     uint64 `json:"errors"`
	Connects   uint64 `json:"connects"`
	Resets     uint64 `json:"resets"`
	Polls      uint64 `json:"polls"`
	PollErrors uint64 `json:"poll_errors"`
}

// NewHealthMessage builds a health report from client and poll statistics.
func NewHealthMessage(matrixID, version, address string, status HealthStatus, stats hdmi.Stats, polls PollStats, started time.Time) HealthMessage {
	msg := HealthMessage{
		Bridge:        Protocol,
		MatrixID:      matrixID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(started).Seconds()),
		Connection:    &ConnectionStatus{Status: "disconnected", Address: address},
		Statistics: &BridgeStatistics{
			Commands:   stats.Commands,
			Errors:     stats.Errors,
			Connects:   stats.Connects,
			Resets:     stats.Resets,
			Polls:      polls.Polls,
			PollErrors: polls.Errors,
		},
	}
	if stats.Connected {
		msg.Connection.Status = "connected"
	}
	if !stats.LastActivity.IsZero() {
		last := stats.LastActivity.UTC()
		msg.Connection.LastActivity = &last
	}
	return msg
}
