package matrix

import "strings"

// DefaultModel is reported when the device does not return a usable model
// name.
const DefaultModel = "HDMI Matrix"

// LinkState is the signal state of a port.
type LinkState string

// Link states reported by the device.
const (
	LinkSync       LinkState = "sync"       // active signal
	LinkConnect    LinkState = "connect"    // cable present, no signal
	LinkDisconnect LinkState = "disconnect" // nothing attached
	LinkUnknown    LinkState = "unknown"
)

// parseLinkState classifies a free-form state text. Anything that does not
// mention "disconnect" counts as linked.
func parseLinkState(text string) LinkState {
	text = strings.ToLower(text)
	switch {
	case strings.Contains(text, "disconnect"):
		return LinkDisconnect
	case strings.Contains(text, "sync"):
		return LinkSync
	case strings.Contains(text, "connect"):
		return LinkConnect
	default:
		return LinkUnknown
	}
}

// Linked reports whether the state counts as connected.
func (s LinkState) Linked() bool {
	return s != LinkDisconnect
}

// PortStatus is one port line of a status dump.
type PortStatus struct {
	Connected bool      `json:"connected"`
	Link      LinkState `json:"link"`
}

// Status is the parsed reply to "r status!".
//
// Inputs and Outputs are keyed by the 1-based port number. Routing maps an
// output to the input it shows. InputCount and OutputCount are the highest
// port numbers seen.
type Status struct {
	Power       bool               `json:"power"`
	InputCount  int                `json:"input_count"`
	OutputCount int                `json:"output_count"`
	Inputs      map[int]PortStatus `json:"inputs"`
	Outputs     map[int]PortStatus `json:"outputs"`
	Routing     map[int]int        `json:"routing"`
}

func newStatus() Status {
	return Status{
		Inputs:  make(map[int]PortStatus),
		Outputs: make(map[int]PortStatus),
		Routing: make(map[int]int),
	}
}

// ParsePolicy decides what a bulk query does with a line whose numeric
// field does not parse.
type ParsePolicy int

const (
	// PolicyStrict fails the whole query with ErrParseFailure, so a partial
	// map is never mistaken for a complete one.
	PolicyStrict ParsePolicy = iota

	// PolicyLenient skips the offending line.
	PolicyLenient
)

// ParseParsePolicy converts "strict" or "lenient". Empty means strict.
func ParseParsePolicy(s string) (ParsePolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return PolicyStrict, true
	case "lenient":
		return PolicyLenient, true
	default:
		return PolicyStrict, false
	}
}

// String returns the config spelling of the policy.
func (p ParsePolicy) String() string {
	if p == PolicyLenient {
		return "lenient"
	}
	return "strict"
}

// CECAction is a CEC command accepted by SetCECIn and SetCECOut.
type CECAction string

// CEC actions.
const (
	CECOn  CECAction = "on"
	CECOff CECAction = "off"
)

// ParseCECAction accepts "on" and "off" in any case.
func ParseCECAction(s string) (CECAction, bool) {
	switch CECAction(strings.ToLower(strings.TrimSpace(s))) {
	case CECOn:
		return CECOn, true
	case CECOff:
		return CECOff, true
	default:
		return "", false
	}
}

// ProbeResult is what Probe learns about a device.
type ProbeResult struct {
	Model       string `json:"model"`
	InputCount  int    `json:"input_count"`
	OutputCount int    `json:"output_count"`
	Power       bool   `json:"power"`
}
