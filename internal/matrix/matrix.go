package matrix

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Matrix exposes the device as typed operations.
//
// Every method issues one or more commands through the Executor and parses
// the reply. Errors from the Executor are returned unchanged so callers can
// test them with errors.Is.
type Matrix struct {
	exec   Executor
	policy ParsePolicy

	logger   Logger
	loggerMu sync.RWMutex
}

// New returns a Matrix that runs commands through exec. policy governs the
// bulk queries OutputSources, InLinks and OutLinks.
func New(exec Executor, policy ParsePolicy) *Matrix {
	return &Matrix{exec: exec, policy: policy}
}

// SetLogger sets the logger for parse warnings.
func (m *Matrix) SetLogger(logger Logger) {
	m.loggerMu.Lock()
	m.logger = logger
	m.loggerMu.Unlock()
}

// Connect opens the session explicitly. Commands connect on demand, so this
// is only needed to validate a device up front.
func (m *Matrix) Connect(ctx context.Context) error {
	return m.exec.Connect(ctx)
}

// Disconnect closes the session. Safe to call repeatedly.
func (m *Matrix) Disconnect() {
	m.exec.Disconnect()
}

// Type returns the model name. A garbled reply yields DefaultModel.
func (m *Matrix) Type(ctx context.Context) (string, error) {
	line, err := m.exec.ExecuteLine(ctx, cmdType)
	if err != nil {
		return "", err
	}
	model, err := ParseType(line)
	if err != nil {
		m.logWarn("invalid type response, using default", "response", line, "default", DefaultModel)
		return DefaultModel, nil
	}
	return model, nil
}

// Status returns the full status dump.
func (m *Matrix) Status(ctx context.Context) (Status, error) {
	lines, err := m.exec.Execute(ctx, cmdStatus)
	if err != nil {
		return Status{}, err
	}
	return ParseStatus(lines), nil
}

// Power reports whether the matrix is switched on.
func (m *Matrix) Power(ctx context.Context) (bool, error) {
	line, err := m.exec.ExecuteLine(ctx, cmdPower)
	if err != nil {
		return false, err
	}
	return ParsePower(line), nil
}

// SetPower switches the matrix on or off.
func (m *Matrix) SetPower(ctx context.Context, on bool) error {
	_, err := m.exec.ExecuteLine(ctx, cmdSetPower(on))
	return err
}

// OutputSource returns the input shown on output. found is false when the
// reply did not name an input.
func (m *Matrix) OutputSource(ctx context.Context, output int) (input int, found bool, err error) {
	if err := checkPort("output", output); err != nil {
		return 0, false, err
	}
	line, err := m.exec.ExecuteLine(ctx, cmdOutputSource(output))
	if err != nil {
		return 0, false, err
	}
	input, found, err = ParseOutputSource(line)
	if err != nil {
		m.logWarn("could not parse output source", "output", output, "response", line, "error", err)
		return 0, false, nil
	}
	return input, found, nil
}

// OutputSources returns the routing of every output as output → input.
func (m *Matrix) OutputSources(ctx context.Context) (map[int]int, error) {
	lines, err := m.exec.Execute(ctx, cmdAllSources)
	if err != nil {
		return nil, err
	}
	routes, err := ParseOutputSources(lines, m.policy)
	if err != nil {
		m.logWarn("could not parse output sources", "error", err)
		return nil, err
	}
	return routes, nil
}

// InLink reports whether input has a source attached.
func (m *Matrix) InLink(ctx context.Context, input int) (bool, error) {
	if err := checkPort("input", input); err != nil {
		return false, err
	}
	line, err := m.exec.ExecuteLine(ctx, cmdInLink(input))
	if err != nil {
		return false, err
	}
	return ParseLink(line), nil
}

// InLinks returns the link state of every input.
func (m *Matrix) InLinks(ctx context.Context) (map[int]bool, error) {
	lines, err := m.exec.Execute(ctx, cmdAllInLinks)
	if err != nil {
		return nil, err
	}
	links, err := ParseInLinks(lines, m.policy)
	if err != nil {
		m.logWarn("could not parse input links", "error", err)
		return nil, err
	}
	return links, nil
}

// OutLink reports whether output has a sink attached.
func (m *Matrix) OutLink(ctx context.Context, output int) (bool, error) {
	if err := checkPort("output", output); err != nil {
		return false, err
	}
	line, err := m.exec.ExecuteLine(ctx, cmdOutLink(output))
	if err != nil {
		return false, err
	}
	return ParseLink(line), nil
}

// OutLinks returns the link state of every output.
func (m *Matrix) OutLinks(ctx context.Context) (map[int]bool, error) {
	lines, err := m.exec.Execute(ctx, cmdAllOutLink)
	if err != nil {
		return nil, err
	}
	links, err := ParseOutLinks(lines, m.policy)
	if err != nil {
		m.logWarn("could not parse output links", "error", err)
		return nil, err
	}
	return links, nil
}

// SetCECIn sends a CEC power command to the source on input.
func (m *Matrix) SetCECIn(ctx context.Context, input int, action CECAction) error {
	if err := checkPort("input", input); err != nil {
		return err
	}
	if err := checkAction(action); err != nil {
		return err
	}
	_, err := m.exec.ExecuteLine(ctx, cmdCECIn(input, string(action)))
	return err
}

// SetCECOut sends a CEC power command to the display on output, first over
// HDMI and then over HDBaseT. If the HDMI command fails the HDBaseT command
// is not sent.
func (m *Matrix) SetCECOut(ctx context.Context, output int, action CECAction) error {
	if err := checkPort("output", output); err != nil {
		return err
	}
	if err := checkAction(action); err != nil {
		return err
	}
	return m.fanOut(ctx, cmdCECOut(output, string(action)))
}

// SetOutputActive makes the matrix the active source on the display attached
// to output, over HDMI and then HDBaseT.
func (m *Matrix) SetOutputActive(ctx context.Context, output int) error {
	if err := checkPort("output", output); err != nil {
		return err
	}
	return m.fanOut(ctx, cmdCECOut(output, cecActive))
}

// SetOutputSource routes input to output.
func (m *Matrix) SetOutputSource(ctx context.Context, input, output int) error {
	if err := checkPort("input", input); err != nil {
		return err
	}
	if err := checkPort("output", output); err != nil {
		return err
	}
	_, err := m.exec.ExecuteLine(ctx, cmdRoute(input, output))
	return err
}

// Raw sends an arbitrary console command and returns the clean lines. A
// missing trailing '!' is added.
func (m *Matrix) Raw(ctx context.Context, command string) ([]string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, fmt.Errorf("%w: empty command", ErrInvalidArgument)
	}
	if !strings.HasSuffix(command, "!") {
		command += "!"
	}
	return m.exec.Execute(ctx, command)
}

// Probe validates a device: it connects, reads the model and the status dump,
// and disconnects again. Unlike Type it fails with ErrInvalidResponse when
// the model reply is unusable.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - ProbeResult: Model, power state and the port counts from the dump
//   - error: Connection failure or ErrInvalidResponse
func (m *Matrix) Probe(ctx context.Context) (ProbeResult, error) {
	if err := m.exec.Connect(ctx); err != nil {
		return ProbeResult{}, err
	}
	defer m.exec.Disconnect()

	line, err := m.exec.ExecuteLine(ctx, cmdType)
	if err != nil {
		return ProbeResult{}, err
	}
	model, err := ParseType(line)
	if err != nil {
		return ProbeResult{}, err
	}

	lines, err := m.exec.Execute(ctx, cmdStatus)
	if err != nil {
		return ProbeResult{}, err
	}
	st := ParseStatus(lines)

	return ProbeResult{
		Model:       model,
		InputCount:  st.InputCount,
		OutputCount: st.OutputCount,
		Power:       st.Power,
	}, nil
}

func (m *Matrix) fanOut(ctx context.Context, commands [2]string) error {
	for _, cmd := range commands {
		if _, err := m.exec.ExecuteLine(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (m *Matrix) logWarn(msg string, keysAndValues ...any) {
	m.loggerMu.RLock()
	logger := m.logger
	m.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func checkPort(kind string, id int) error {
	if id < 1 {
		return fmt.Errorf("%w: %s %d (ports start at 1)", ErrInvalidArgument, kind, id)
	}
	return nil
}

func checkAction(action CECAction) error {
	if action != CECOn && action != CECOff {
		return fmt.Errorf("%w: CEC action %q", ErrInvalidArgument, action)
	}
	return nil
}
