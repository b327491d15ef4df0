package matrix

import (
	"context"
	"fmt"
	"math"
	"strconv"

	hdmi "github.com/nerrad567/gray-logic-matrix/internal/matrix"
)

// Command names.
const (
	CommandPowerOn      = "power_on"
	CommandPowerOff     = "power_off"
	CommandRoute        = "route"
	CommandSelectSource = "select_source"
	CommandNextSource   = "next_source"
	CommandCECIn        = "cec_in"
	CommandCECOut       = "cec_out"
	CommandSetActive    = "set_active"
	CommandRefresh      = "refresh"
)

// needsPower lists commands refused while the matrix is off.
var needsPower = map[string]bool{
	CommandRoute:        true,
	CommandSelectSource: true,
	CommandNextSource:   true,
	CommandCECIn:        true,
	CommandCECOut:       true,
	CommandSetActive:    true,
}

// executeCommand runs cmd against the device.
func (b *Bridge) executeCommand(ctx context.Context, cmd CommandMessage) error {
	if needsPower[cmd.Command] {
		if snap, ok := b.coordinator.Snapshot(); ok && !snap.Power {
			return ErrDeviceOff
		}
	}

	p := params(cmd.Parameters)

	switch cmd.Command {
	case CommandPowerOn:
		return b.matrix.SetPower(ctx, true)
	case CommandPowerOff:
		return b.matrix.SetPower(ctx, false)

	case CommandRoute:
		input, err := p.port("input")
		if err != nil {
			return err
		}
		output, err := p.port("output")
		if err != nil {
			return err
		}
		return b.matrix.SetOutputSource(ctx, input, output)

	case CommandSelectSource:
		output, err := p.port("output")
		if err != nil {
			return err
		}
		name, err := p.str("source")
		if err != nil {
			return err
		}
		input, ok := b.cfg.InputByName(name)
		if !ok {
			return fmt.Errorf("%w: unknown source %q", ErrInvalidParameters, name)
		}
		return b.matrix.SetOutputSource(ctx, input, output)

	case CommandNextSource:
		output, err := p.port("output")
		if err != nil {
			return err
		}
		return b.nextSource(ctx, output)

	case CommandCECIn:
		input, err := p.port("input")
		if err != nil {
			return err
		}
		action, err := p.action()
		if err != nil {
			return err
		}
		return b.matrix.SetCECIn(ctx, input, action)

	case CommandCECOut:
		output, err := p.port("output")
		if err != nil {
			return err
		}
		action, err := p.action()
		if err != nil {
			return err
		}
		if err := b.matrix.SetCECOut(ctx, output, action); err != nil {
			return err
		}
		if action == hdmi.CECOn {
			return b.matrix.SetOutputActive(ctx, output)
		}
		return nil

	case CommandSetActive:
		output, err := p.port("output")
		if err != nil {
			return err
		}
		return b.matrix.SetOutputActive(ctx, output)

	case CommandRefresh:
		return b.coordinator.Refresh(ctx)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
}

// nextSource advances an output to the following input, wrapping from the
// last input to the first.
func (b *Bridge) nextSource(ctx context.Context, output int) error {
	inputs := b.inputCount()
	if inputs == 0 {
		return fmt.Errorf("%w: input count unknown, configure inputs or wait for a refresh", ErrInvalidParameters)
	}

	current, found := 0, false
	if snap, ok := b.coordinator.Snapshot(); ok {
		current, found = snap.Outputs[output]
	}
	if !found {
		var err error
		if current, found, err = b.matrix.OutputSource(ctx, output); err != nil {
			return err
		}
	}
	if !found {
		current = 0
	}

	return b.matrix.SetOutputSource(ctx, (current%inputs)+1, output)
}

// inputCount prefers configured input names and falls back to the
// highest input seen in the link table.
func (b *Bridge) inputCount() int {
	if n := len(b.cfg.Inputs); n > 0 {
		return n
	}
	snap, _ := b.coordinator.Snapshot()
	highest := 0
	for port := range snap.InputLinks {
		highest = max(highest, port)
	}
	return highest
}

// params reads typed values out of a decoded JSON parameter map.
type params map[string]any

// port returns a positive integer parameter. JSON numbers and numeric
// strings are accepted.
func (p params) port(key string) (int, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrInvalidParameters, key)
	}

	var n int
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("%w: %q must be a whole number", ErrInvalidParameters, key)
		}
		n = int(x)
	case int:
		n = x
	case string:
		parsed, err := strconv.Atoi(x)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %w", ErrInvalidParameters, key, err)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("%w: %q has type %T", ErrInvalidParameters, key, v)
	}

	if n < 1 {
		return 0, fmt.Errorf("%w: %q must be at least 1", ErrInvalidParameters, key)
	}
	return n, nil
}

func (p params) str(key string) (string, error) {
	s, ok := p[key].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: missing %q", ErrInvalidParameters, key)
	}
	return s, nil
}

func (p params) action() (hdmi.CECAction, error) {
	s, err := p.str("action")
	if err != nil {
		return "", err
	}
	action, ok := hdmi.ParseCECAction(s)
	if !ok {
		return "", fmt.Errorf("%w: action %q (use on or off)", ErrInvalidParameters, s)
	}
	return action, nil
}
