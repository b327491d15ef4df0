package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	hdmi "github.com/nerrad567/gray-logic-matrix/internal/matrix"
)

// errUsage marks bad command lines.
var errUsage = errors.New("usage")

// console runs one verb against the matrix and prints the result.
type console struct {
	client  *hdmi.Matrix
	out     io.Writer
	timeout time.Duration
	json    bool
}

func (c *console) execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	verb, args := strings.ToLower(args[0]), args[1:]
	switch verb {
	case "probe":
		res, err := c.client.Probe(ctx)
		if err != nil {
			return err
		}
		return c.emit(res, func(w io.Writer) {
			fmt.Fprintf(w, "model:\t%s\ninputs:\t%d\noutputs:\t%d\npower:\t%s\n",
				res.Model, res.InputCount, res.OutputCount, onOff(res.Power))
		})

	case "type":
		model, err := c.client.Type(ctx)
		if err != nil {
			return err
		}
		return c.emit(map[string]string{"model": model}, func(w io.Writer) { fmt.Fprintln(w, model) })

	case "status":
		st, err := c.client.Status(ctx)
		if err != nil {
			return err
		}
		return c.emit(st, func(w io.Writer) { printStatus(w, st) })

	case "power":
		return c.power(ctx, args)

	case "route":
		ports, err := portArgs(args, 2, "route IN OUT")
		if err != nil {
			return err
		}
		if err := c.client.SetOutputSource(ctx, ports[0], ports[1]); err != nil {
			return err
		}
		return c.ok(fmt.Sprintf("input %d -> output %d", ports[0], ports[1]))

	case "source":
		ports, err := portArgs(args, 1, "source OUT")
		if err != nil {
			return err
		}
		in, found, err := c.client.OutputSource(ctx, ports[0])
		if err != nil {
			return err
		}
		return c.emit(map[string]any{"output": ports[0], "input": in, "found": found}, func(w io.Writer) {
			if !found {
				fmt.Fprintf(w, "output %d: no input reported\n", ports[0])
				return
			}
			fmt.Fprintf(w, "output %d: input %d\n", ports[0], in)
		})

	case "sources":
		routes, err := c.client.OutputSources(ctx)
		if err != nil {
			return err
		}
		return c.emit(routes, func(w io.Writer) {
			for _, out := range slices.Sorted(maps.Keys(routes)) {
				fmt.Fprintf(w, "output %d:\tinput %d\n", out, routes[out])
			}
		})

	case "links":
		return c.links(ctx, args)

	case "cec":
		return c.cec(ctx, args)

	case "active":
		ports, err := portArgs(args, 1, "active OUT")
		if err != nil {
			return err
		}
		if err := c.client.SetOutputActive(ctx, ports[0]); err != nil {
			return err
		}
		return c.ok(fmt.Sprintf("output %d active", ports[0]))

	case "raw":
		if len(args) == 0 {
			return fmt.Errorf("%w: raw COMMAND", errUsage)
		}
		lines, err := c.client.Raw(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		return c.emit(lines, func(w io.Writer) {
			for _, l := range lines {
				fmt.Fprintln(w, l)
			}
		})

	case "help":
		printUsage(c.out)
		return nil

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, verb)
	}
}

func (c *console) power(ctx context.Context, args []string) error {
	if len(args) == 0 {
		on, err := c.client.Power(ctx)
		if err != nil {
			return err
		}
		return c.emit(map[string]bool{"power": on}, func(w io.Writer) { fmt.Fprintf(w, "power %s\n", onOff(on)) })
	}

	action, ok := hdmi.ParseCECAction(args[0])
	if !ok || len(args) > 1 {
		return fmt.Errorf("%w: power [on|off]", errUsage)
	}
	on := action == hdmi.CECOn
	if err := c.client.SetPower(ctx, on); err != nil {
		return err
	}
	return c.ok("power " + onOff(on))
}

func (c *console) links(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: links in|out [ID]", errUsage)
	}
	dir := strings.ToLower(args[0])
	if dir != "in" && dir != "out" {
		return fmt.Errorf("%w: links in|out [ID]", errUsage)
	}

	if len(args) == 2 {
		ports, err := portArgs(args[1:], 1, "links in|out [ID]")
		if err != nil {
			return err
		}
		var linked bool
		if dir == "in" {
			linked, err = c.client.InLink(ctx, ports[0])
		} else {
			linked, err = c.client.OutLink(ctx, ports[0])
		}
		if err != nil {
			return err
		}
		return c.emit(map[int]bool{ports[0]: linked}, func(w io.Writer) {
			fmt.Fprintf(w, "%s %d: %s\n", dir, ports[0], linkText(linked))
		})
	}

	var links map[int]bool
	var err error
	if dir == "in" {
		links, err = c.client.InLinks(ctx)
	} else {
		links, err = c.client.OutLinks(ctx)
	}
	if err != nil {
		return err
	}
	return c.emit(links, func(w io.Writer) {
		for _, port := range slices.Sorted(maps.Keys(links)) {
			fmt.Fprintf(w, "%s %d:\t%s\n", dir, port, linkText(links[port]))
		}
	})
}

func (c *console) cec(ctx context.Context, args []string) error {
	const usage = "cec in|out ID on|off"
	if len(args) != 3 {
		return fmt.Errorf("%w: %s", errUsage, usage)
	}
	ports, err := portArgs(args[1:2], 1, usage)
	if err != nil {
		return err
	}
	action, ok := hdmi.ParseCECAction(args[2])
	if !ok {
		return fmt.Errorf("%w: %s", errUsage, usage)
	}

	switch strings.ToLower(args[0]) {
	case "in":
		err = c.client.SetCECIn(ctx, ports[0], action)
	case "out":
		err = c.client.SetCECOut(ctx, ports[0], action)
	default:
		return fmt.Errorf("%w: %s", errUsage, usage)
	}
	if err != nil {
		return err
	}
	return c.ok(fmt.Sprintf("cec %s %d %s", strings.ToLower(args[0]), ports[0], action))
}

// emit prints v as JSON with -json, otherwise through text.
func (c *console) emit(v any, text func(w io.Writer)) error {
	if c.json {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	text(tw)
	return tw.Flush()
}

func (c *console) ok(msg string) error {
	return c.emit(map[string]string{"result": "ok", "detail": msg}, func(w io.Writer) { fmt.Fprintln(w, msg) })
}

// portArgs parses exactly n port numbers.
func portArgs(args []string, n int, usage string) ([]int, error) {
	if len(args) != n {
		return nil, fmt.Errorf("%w: %s", errUsage, usage)
	}
	ports := make([]int, n)
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %q is not a port number", errUsage, usage, a)
		}
		ports[i] = v
	}
	return ports, nil
}

func printStatus(w io.Writer, st hdmi.Status) {
	fmt.Fprintf(w, "power:\t%s\n", onOff(st.Power))
	fmt.Fprintf(w, "inputs:\t%d\n", st.InputCount)
	for _, n := range slices.Sorted(maps.Keys(st.Inputs)) {
		fmt.Fprintf(w, "  input %d:\t%s\n", n, st.Inputs[n].Link)
	}
	fmt.Fprintf(w, "outputs:\t%d\n", st.OutputCount)
	for _, n := range slices.Sorted(maps.Keys(st.Outputs)) {
		fmt.Fprintf(w, "  output %d:\t%s\n", n, st.Outputs[n].Link)
	}
	for _, out := range slices.Sorted(maps.Keys(st.Routing)) {
		fmt.Fprintf(w, "  route:\tinput %d -> output %d\n", st.Routing[out], out)
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func linkText(linked bool) string {
	if linked {
		return "linked"
	}
	return "disconnected"
}
