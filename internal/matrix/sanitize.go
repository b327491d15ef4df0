package matrix

import "strings"

// Lines the console prints outside of any reply.
var bannerPrefixes = []string{"********", "FW Version"}

// Sanitize converts a raw reply into clean lines.
//
// Bytes with the high bit set are dropped and the rest is read as ASCII.
// Each line is trimmed and empty lines are removed. A line is discarded when
// it is the echoed command (with or without its trailing '!'), a banner or
// firmware line, a bare '>' prompt, or a greeting containing "Welcome".
// Prompt characters around surviving lines are removed.
//
// Sanitize never fails; garbage input yields no lines.
func Sanitize(raw []byte, command string) []string {
	return sanitize(raw, command, nil)
}

// sanitize is Sanitize with a hook for lines that were skipped.
func sanitize(raw []byte, command string, skipped func(line string)) []string {
	ascii := make([]byte, 0, len(raw))
	for _, b := range raw {
		if b < 0x80 {
			ascii = append(ascii, b)
		}
	}

	bare := strings.TrimSuffix(command, "!")

	var lines []string
	for _, line := range strings.FieldsFunc(string(ascii), isLineBreak) {
		line = strings.TrimFunc(line, isASCIISpace)
		if line == "" {
			continue
		}
		// The prompt has no newline, so the next echo arrives glued to it.
		clean := strings.TrimFunc(line, isPromptOrSpace)
		if clean == "" || isNoise(clean, command, bare) {
			if skipped != nil {
				skipped(line)
			}
			continue
		}
		lines = append(lines, clean)
	}
	return lines
}

func isNoise(line, command, bare string) bool {
	if line == command || line == bare {
		return true
	}
	for _, p := range bannerPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return strings.Contains(line, "Welcome")
}

func isPromptOrSpace(r rune) bool {
	return r == '>' || isASCIISpace(r)
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', 0x1c, 0x1d, 0x1e:
		return true
	}
	return false
}

func isASCIISpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f', 0x1c, 0x1d, 0x1e, 0x1f:
		return true
	}
	return false
}
