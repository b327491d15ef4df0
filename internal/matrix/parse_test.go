package matrix

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		line    string
		want    string
		wantErr bool
	}{
		{line: "HDP-MXB44", want: "HDP-MXB44"},
		{line: "  UHD88  ", want: "UHD88"},
		{line: "", wantErr: true},
		{line: "r type", wantErr: true},
		{line: "Matrix TYPE unknown", wantErr: true},
		{line: "ab", wantErr: true},
		{line: "abc", want: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseType(tt.line)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidResponse) {
					t.Fatalf("ParseType(%q) error = %v, want ErrInvalidResponse", tt.line, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseType(%q) unexpected error: %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("ParseType(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestParsePowerAndLink(t *testing.T) {
	if !ParsePower("Power ON") {
		t.Error("ParsePower(Power ON) = false")
	}
	if ParsePower("power off") {
		t.Error("ParsePower(power off) = true")
	}
	if ParsePower("") {
		t.Error("ParsePower(\"\") = true")
	}

	if ParseLink("input 1: Disconnect") {
		t.Error("ParseLink(disconnect) = true")
	}
	if !ParseLink("input 1: sync") {
		t.Error("ParseLink(sync) = false")
	}
	if !ParseLink("") {
		t.Error("ParseLink(\"\") = false, empty reply counts as linked")
	}
}

func TestParseStatus(t *testing.T) {
	lines := Sanitize([]byte("HDMI INPUT 1: Sync\nHDMI OUTPUT 2: Disconnect\nInput 1 -> Output 2\n"), "r status!")
	st := ParseStatus(lines)

	if st.InputCount != 1 {
		t.Errorf("InputCount = %d, want 1", st.InputCount)
	}
	if st.OutputCount != 2 {
		t.Errorf("OutputCount = %d, want 2", st.OutputCount)
	}
	if !st.Inputs[1].Connected {
		t.Error("Inputs[1].Connected = false, want true")
	}
	if st.Inputs[1].Link != LinkSync {
		t.Errorf("Inputs[1].Link = %q, want sync", st.Inputs[1].Link)
	}
	if st.Outputs[2].Connected {
		t.Error("Outputs[2].Connected = true, want false")
	}
	if st.Routing[2] != 1 {
		t.Errorf("Routing[2] = %d, want 1", st.Routing[2])
	}
	if st.Power {
		t.Error("Power = true without a power line")
	}
}

func TestParseStatusFullDump(t *testing.T) {
	dump := []string{
		"Power ON",
		"hdmi input 1: sync",
		"hdmi input 2: connect",
		"hdmi input 4: disconnect",
		"hdmi output 1: sync",
		"hdbt output 3: connect",
		"input 4 -> output 1",
		"input 2 -> output 3",
	}
	st := ParseStatus(dump)

	want := Status{
		Power:       true,
		InputCount:  4,
		OutputCount: 3,
		Inputs: map[int]PortStatus{
			1: {Connected: true, Link: LinkSync},
			2: {Connected: true, Link: LinkConnect},
			4: {Connected: false, Link: LinkDisconnect},
		},
		Outputs: map[int]PortStatus{
			1: {Connected: true, Link: LinkSync},
			3: {Connected: true, Link: LinkConnect},
		},
		Routing: map[int]int{1: 4, 3: 2},
	}
	if !reflect.DeepEqual(st, want) {
		t.Errorf("ParseStatus() =\n%+v\nwant\n%+v", st, want)
	}
}

func TestParseStatusSkipsBadRuleOnly(t *testing.T) {
	st := ParseStatus([]string{
		"hdmi input x: sync",
		"hdmi output 2: sync",
		"input one -> output 2",
		"input 3 -> output",
		"input 3 -> output 4",
	})

	if st.InputCount != 0 || len(st.Inputs) != 0 {
		t.Errorf("bad input line recorded: count=%d inputs=%v", st.InputCount, st.Inputs)
	}
	if st.OutputCount != 2 {
		t.Errorf("OutputCount = %d, want 2", st.OutputCount)
	}
	if !reflect.DeepEqual(st.Routing, map[int]int{4: 3}) {
		t.Errorf("Routing = %v, want map[4:3]", st.Routing)
	}
}

func TestParseOutputSource(t *testing.T) {
	tests := []struct {
		line      string
		want      int
		wantFound bool
		wantErr   bool
	}{
		{line: "input 3 -> output 1", want: 3, wantFound: true},
		{line: "Output 1: Input 2", want: 2, wantFound: true},
		{line: "in 1->out 2", want: 1, wantFound: true},
		{line: "in 1 in 4", want: 4, wantFound: true},
		{line: "output 1", wantFound: false},
		{line: "", wantFound: false},
		{line: "input x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, found, err := ParseOutputSource(tt.line)
			if tt.wantErr {
				if !errors.Is(err, ErrParseFailure) {
					t.Fatalf("error = %v, want ErrParseFailure", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if found != tt.wantFound || got != tt.want {
				t.Errorf("ParseOutputSource(%q) = (%d, %v), want (%d, %v)", tt.line, got, found, tt.want, tt.wantFound)
			}
		})
	}
}

func TestParseOutputSources(t *testing.T) {
	got, err := ParseOutputSources([]string{"out 1 in 3"}, PolicyStrict)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, map[int]int{1: 3}) {
		t.Errorf("got %v, want map[1:3]", got)
	}

	got, err = ParseOutputSources([]string{
		"input 2 -> output 1",
		"Output 2: Input 4",
		"out 3 in 1",
		"no routing here",
	}, PolicyStrict)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, map[int]int{1: 2, 2: 4, 3: 1}) {
		t.Errorf("got %v", got)
	}
}

func TestParseOutputSourcesPolicy(t *testing.T) {
	lines := []string{"out 1 in 3", "out two in 1", "out 3 in x", "out 4 in 2"}

	got, err := ParseOutputSources(lines, PolicyStrict)
	if !errors.Is(err, ErrParseFailure) {
		t.Fatalf("strict error = %v, want ErrParseFailure", err)
	}
	if got != nil {
		t.Errorf("strict returned partial map %v", got)
	}

	got, err = ParseOutputSources(lines, PolicyLenient)
	if err != nil {
		t.Fatalf("lenient error = %v", err)
	}
	if !reflect.DeepEqual(got, map[int]int{1: 3, 4: 2}) {
		t.Errorf("lenient got %v, want map[1:3 4:2]", got)
	}
}

func TestParseLinks(t *testing.T) {
	in, err := ParseInLinks([]string{
		"input 1: sync",
		"Input 2: Disconnect",
		"in 3 connect",
		"garbage",
	}, PolicyStrict)
	if err != nil {
		t.Fatalf("ParseInLinks error: %v", err)
	}
	if !reflect.DeepEqual(in, map[int]bool{1: true, 2: false, 3: true}) {
		t.Errorf("in links = %v", in)
	}

	out, err := ParseOutLinks([]string{"output 1: disconnect", "out 2: sync"}, PolicyStrict)
	if err != nil {
		t.Fatalf("ParseOutLinks error: %v", err)
	}
	if !reflect.DeepEqual(out, map[int]bool{1: false, 2: true}) {
		t.Errorf("out links = %v", out)
	}

	_, err = ParseOutLinks([]string{"output 1: sync", "output ?: sync"}, PolicyStrict)
	if !errors.Is(err, ErrParseFailure) {
		t.Errorf("strict bad line error = %v, want ErrParseFailure", err)
	}

	out, err = ParseOutLinks([]string{"output 1: sync", "output ?: sync"}, PolicyLenient)
	if err != nil || !reflect.DeepEqual(out, map[int]bool{1: true}) {
		t.Errorf("lenient = %v, %v", out, err)
	}
}

func TestParsePolicyStrings(t *testing.T) {
	for _, s := range []string{"", "strict", "STRICT"} {
		if p, ok := ParseParsePolicy(s); !ok || p != PolicyStrict {
			t.Errorf("ParseParsePolicy(%q) = %v, %v", s, p, ok)
		}
	}
	if p, ok := ParseParsePolicy("lenient"); !ok || p != PolicyLenient {
		t.Errorf("ParseParsePolicy(lenient) = %v, %v", p, ok)
	}
	if _, ok := ParseParsePolicy("sloppy"); ok {
		t.Error("ParseParsePolicy(sloppy) accepted")
	}
	if !strings.EqualFold(PolicyLenient.String(), "lenient") {
		t.Errorf("PolicyLenient.String() = %q", PolicyLenient.String())
	}
}
