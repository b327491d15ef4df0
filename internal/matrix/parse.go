package matrix

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// minModelLength is the shortest reply accepted as a model name.
const minModelLength = 3

// ParseType validates the reply to "r type!". Empty replies, replies that
// still contain the word "type" (an echo of the query) and replies shorter
// than three characters are rejected with ErrInvalidResponse.
func ParseType(line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.Contains(strings.ToLower(line), "type") || len(line) < minModelLength {
		return "", fmt.Errorf("%w: model %q", ErrInvalidResponse, line)
	}
	return line, nil
}

// ParsePower reports whether the reply to "r power!" says the unit is on.
func ParsePower(line string) bool {
	return strings.Contains(strings.ToLower(line), "on")
}

// ParseLink reports whether a single link reply shows a linked port.
// Anything that does not mention "disconnect" is linked.
func ParseLink(line string) bool {
	return !strings.Contains(strings.ToLower(line), "disconnect")
}

// ParseStatus parses a full status dump. It never fails: each line is
// checked against every rule and a rule whose number does not parse is
// skipped for that line only.
//
// Recognised lines, case-insensitively:
//
//	power on
//	hdmi input 1: sync
//	hdmi output 2: disconnect
//	hdbt output 2: connect
//	input 1 -> output 2
func ParseStatus(lines []string) Status {
	st := newStatus()

	for _, line := range lines {
		lower := strings.ToLower(line)

		if strings.Contains(lower, "power on") {
			st.Power = true
		}

		if strings.Contains(lower, "hdmi input") && strings.Contains(lower, ":") {
			if n, port, ok := parsePortLine(lower); ok {
				st.InputCount = max(st.InputCount, n)
				st.Inputs[n] = port
			}
		}

		isOutput := strings.Contains(lower, "hdmi output") || strings.Contains(lower, "hdbt output")
		if isOutput && strings.Contains(lower, ":") {
			if n, port, ok := parsePortLine(lower); ok {
				st.OutputCount = max(st.OutputCount, n)
				st.Outputs[n] = port
			}
		}

		if strings.Contains(lower, "->") && strings.Contains(lower, "input") && strings.Contains(lower, "output") {
			if in, out, ok := parseRouteLine(lower); ok {
				st.Routing[out] = in
			}
		}
	}

	return st
}

// parsePortLine parses "<kind> <n>: <state>".
func parsePortLine(lower string) (int, PortStatus, bool) {
	parts := strings.Split(lower, ":")
	fields := strings.Fields(parts[0])
	if len(fields) == 0 {
		return 0, PortStatus{}, false
	}
	n, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return 0, PortStatus{}, false
	}
	link := parseLinkState(strings.TrimSpace(parts[1]))
	return n, PortStatus{Connected: link.Linked(), Link: link}, true
}

// parseRouteLine parses "input <i> -> output <o>".
func parseRouteLine(lower string) (in, out int, ok bool) {
	tokens := strings.Fields(strings.ReplaceAll(lower, "->", " -> "))
	in, ok = tokenAfter(tokens, "input")
	if !ok {
		return 0, 0, false
	}
	out, ok = tokenAfter(tokens, "output")
	if !ok {
		return 0, 0, false
	}
	return in, out, true
}

// tokenAfter parses the token following the first occurrence of key.
func tokenAfter(tokens []string, key string) (int, bool) {
	for i, tok := range tokens {
		if tok != key {
			continue
		}
		if i+1 >= len(tokens) {
			return 0, false
		}
		n, err := strconv.Atoi(tokens[i+1])
		return n, err == nil
	}
	return 0, false
}

// ParseOutputSource parses the reply to "r av out N!" and returns the input
// shown on that output. The last "input"/"in" token wins. found is false when
// the reply names no input. A non-numeric id yields ErrParseFailure.
func ParseOutputSource(line string) (input int, found bool, err error) {
	return scanPort(routeTokens(line), "input", "in")
}

// ParseOutputSources parses the reply to "r av out 0!" into output → input.
// Lines that name no output or no input are ignored. A non-numeric id fails
// the whole call under PolicyStrict and skips the line under PolicyLenient.
func ParseOutputSources(lines []string, policy ParsePolicy) (map[int]int, error) {
	routes := make(map[int]int, len(lines))
	for _, line := range lines {
		tokens := routeTokens(line)
		out, hasOut, err := scanPort(tokens, "output", "out")
		in, hasIn, inErr := scanPort(tokens, "input", "in")
		if err == nil {
			err = inErr
		}
		if err != nil {
			if policy == PolicyStrict {
				return nil, fmt.Errorf("%w: line %q", err, line)
			}
			continue
		}
		if hasOut && hasIn {
			routes[out] = in
		}
	}
	return routes, nil
}

// ParseInLinks parses the reply to "r link in 0!" into input → linked.
func ParseInLinks(lines []string, policy ParsePolicy) (map[int]bool, error) {
	return parseLinks(lines, policy, "input", "in")
}

// ParseOutLinks parses the reply to "r link out 0!" into output → linked.
func ParseOutLinks(lines []string, policy ParsePolicy) (map[int]bool, error) {
	return parseLinks(lines, policy, "output", "out")
}

func parseLinks(lines []string, policy ParsePolicy, keys ...string) (map[int]bool, error) {
	links := make(map[int]bool, len(lines))
	for _, line := range lines {
		lower := strings.ToLower(line)
		id, found, err := scanPort(strings.Fields(strings.ReplaceAll(lower, ":", " ")), keys...)
		if err != nil {
			if policy == PolicyStrict {
				return nil, fmt.Errorf("%w: line %q", err, line)
			}
			continue
		}
		if found {
			links[id] = !strings.Contains(lower, "disconnect")
		}
	}
	return links, nil
}

// routeTokens lower-cases a routing reply and splits it so that "->" and
// ":" never stick to a number.
func routeTokens(line string) []string {
	line = strings.ToLower(line)
	line = strings.ReplaceAll(line, "->", " -> ")
	line = strings.ReplaceAll(line, ":", " ")
	return strings.Fields(line)
}

// scanPort returns the integer after the last token matching any key.
func scanPort(tokens []string, keys ...string) (n int, found bool, err error) {
	for i := 0; i+1 < len(tokens); i++ {
		if !slices.Contains(keys, tokens[i]) {
			continue
		}
		v, convErr := strconv.Atoi(tokens[i+1])
		if convErr != nil {
			return 0, false, fmt.Errorf("%w: %q after %q", ErrParseFailure, tokens[i+1], tokens[i])
		}
		n, found = v, true
	}
	return n, found, nil
}
