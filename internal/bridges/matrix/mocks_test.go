package matrix

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-matrix/internal/audit"
	"github.com/nerrad567/gray-logic-matrix/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-matrix/internal/infrastructure/influxdb"
	hdmi "github.com/nerrad567/gray-logic-matrix/internal/matrix"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu        sync.Mutex
	published []mockPublish
	handlers  map[string]func(topic string, payload []byte)
	connected bool
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{connected: true, handlers: make(map[string]func(string, []byte))}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	return nil
}

func (m *MockMQTTClient) subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.handlers))
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) setConnected(c bool) {
	m.mu.Lock()
	m.connected = c
	m.mu.Unlock()
}

func (m *MockMQTTClient) publishedTo(topic string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// SimulateMessage delivers payload to the handler subscribed on pattern.
func (m *MockMQTTClient) SimulateMessage(pattern, topic string, payload []byte) {
	m.mu.Lock()
	handler, ok := m.handlers[pattern]
	m.mu.Unlock()
	if ok {
		handler(topic, payload)
	}
}

// mockMatrix implements MatrixClient with in-memory device state.
type mockMatrix struct {
	mu       sync.Mutex
	model    string
	power    bool
	sources  map[int]int
	inLinks  map[int]bool
	outLinks map[int]bool
	status   hdmi.Status

	// err fails every call; failOn fails calls whose log entry starts with the key.
	err    error
	failOn map[string]error
	calls  []string
}

func newMockMatrix() *mockMatrix {
	return &mockMatrix{
		model:    "MX-44",
		power:    true,
		sources:  map[int]int{1: 1, 2: 3},
		inLinks:  map[int]bool{1: true, 2: false, 3: true, 4: false},
		outLinks: map[int]bool{1: true, 2: true},
		failOn:   make(map[string]error),
	}
}

func (m *mockMatrix) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	if m.err != nil {
		return m.err
	}
	for prefix, err := range m.failOn {
		if len(call) >= len(prefix) && call[:len(prefix)] == prefix {
			return err
		}
	}
	return nil
}

func (m *mockMatrix) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockMatrix) reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

func (m *mockMatrix) Type(context.Context) (string, error) {
	if err := m.record("type"); err != nil {
		return "", err
	}
	return m.model, nil
}

func (m *mockMatrix) Status(context.Context) (hdmi.Status, error) {
	if err := m.record("status"); err != nil {
		return hdmi.Status{}, err
	}
	return m.status, nil
}

func (m *mockMatrix) Power(context.Context) (bool, error) {
	if err := m.record("power?"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.power, nil
}

func (m *mockMatrix) SetPower(_ context.Context, on bool) error {
	if err := m.record(fmt.Sprintf("power %v", on)); err != nil {
		return err
	}
	m.mu.Lock()
	m.power = on
	m.mu.Unlock()
	return nil
}

func (m *mockMatrix) OutputSource(_ context.Context, output int) (int, bool, error) {
	if err := m.record(fmt.Sprintf("source? %d", output)); err != nil {
		return 0, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.sources[output]
	return in, ok, nil
}

func (m *mockMatrix) OutputSources(context.Context) (map[int]int, error) {
	if err := m.record("sources?"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.sources), nil
}

func (m *mockMatrix) InLinks(context.Context) (map[int]bool, error) {
	if err := m.record("inlinks?"); err != nil {
		return nil, err
	}
	return maps.Clone(m.inLinks), nil
}

func (m *mockMatrix) OutLinks(context.Context) (map[int]bool, error) {
	if err := m.record("outlinks?"); err != nil {
		return nil, err
	}
	return maps.Clone(m.outLinks), nil
}

func (m *mockMatrix) SetOutputSource(_ context.Context, input, output int) error {
	if err := m.record(fmt.Sprintf("route %d %d", input, output)); err != nil {
		return err
	}
	m.mu.Lock()
	m.sources[output] = input
	m.mu.Unlock()
	return nil
}

func (m *mockMatrix) SetCECIn(_ context.Context, input int, action hdmi.CECAction) error {
	return m.record(fmt.Sprintf("cec_in %d %s", input, action))
}

func (m *mockMatrix) SetCECOut(_ context.Context, output int, action hdmi.CECAction) error {
	return m.record(fmt.Sprintf("cec_out %d %s", output, action))
}

func (m *mockMatrix) SetOutputActive(_ context.Context, output int) error {
	return m.record(fmt.Sprintf("active %d", output))
}

func (m *mockMatrix) Disconnect() {}

type mockStats struct {
	stats hdmi.Stats
}

func (s *mockStats) Stats() hdmi.Stats { return s.stats }
func (s *mockStats) Endpoint() string  { return "tcp://10.0.0.5:23" }

type mockAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *mockAudit) Create(_ context.Context, e *audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, *e)
	return nil
}

func (a *mockAudit) all() []audit.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audit.Entry(nil), a.entries...)
}

type mockMetrics struct {
	mu       sync.Mutex
	power    []bool
	routes   map[int]int
	links    int
	counters []influxdb.ClientCounters
	commands []string
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{routes: make(map[int]int)}
}

func (m *mockMetrics) WritePower(_ string, on bool) {
	m.mu.Lock()
	m.power = append(m.power, on)
	m.mu.Unlock()
}

func (m *mockMetrics) WriteRoute(_ string, output, input int) {
	m.mu.Lock()
	m.routes[output] = input
	m.mu.Unlock()
}

func (m *mockMetrics) WriteLink(string, string, int, string, bool) {
	m.mu.Lock()
	m.links++
	m.mu.Unlock()
}

func (m *mockMetrics) WriteClientCounters(_ string, c influxdb.ClientCounters) {
	m.mu.Lock()
	m.counters = append(m.counters, c)
	m.mu.Unlock()
}

func (m *mockMetrics) WriteCommand(_, command string, _ time.Duration, ok bool) {
	m.mu.Lock()
	m.commands = append(m.commands, fmt.Sprintf("%s:%v", command, ok))
	m.mu.Unlock()
}

type testBridge struct {
	*Bridge
	mqtt    *MockMQTTClient
	matrix  *mockMatrix
	audit   *mockAudit
	metrics *mockMetrics
}

func testMatrixConfig() config.MatrixConfig {
	return config.MatrixConfig{
		ID:             "lounge",
		Name:           "Lounge Matrix",
		PollInterval:   time.Hour,
		HealthInterval: time.Hour,
		CommandTimeout: 2 * time.Second,
		Inputs:         []string{"Sky", "Apple TV", "PS5", "Chromecast"},
		Outputs:        []string{"TV", "Projector"},
	}
}

func newTestBridge(t *testing.T) *testBridge {
	t.Helper()
	tb := &testBridge{
		mqtt:    NewMockMQTTClient(),
		matrix:  newMockMatrix(),
		audit:   &mockAudit{},
		metrics: newMockMetrics(),
	}
	b, err := NewBridge(Options{
		Config:  testMatrixConfig(),
		Version: "test",
		MQTT:    tb.mqtt,
		Matrix:  tb.matrix,
		Channel: &mockStats{stats: hdmi.Stats{Commands: 3, Connected: true}},
		Audit:   tb.audit,
		Metrics: tb.metrics,
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	tb.Bridge = b
	return tb
}
