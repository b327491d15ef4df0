package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nerrad567/gray-logic-matrix/internal/wiretrace"
)

// runTrace prints the records of a wire trace file, oldest first.
func runTrace(args []string, out io.Writer, asJSON bool) error {
	var filter wiretrace.Filter
	var since time.Duration
	fs := flag.NewFlagSet("trace", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&filter.Command, "command", "", "Only records whose command contains this text")
	fs.BoolVar(&filter.FailedOnly, "failed", false, "Only failed exchanges")
	fs.DurationVar(&since, "since", 0, "Only records newer than this age")

	// Allow the file before or after the flags.
	var path string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		path, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if path == "" && fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if path == "" {
		return fmt.Errorf("%w: trace FILE [-failed] [-command TEXT] [-since AGE]", errUsage)
	}
	if since > 0 {
		filter.Since = time.Now().Add(-since)
	}

	r, err := wiretrace.NewReader(path, filter)
	if err != nil {
		return fmt.Errorf("opening trace: %w", err)
	}
	defer r.Close()

	var enc *json.Encoder
	var tw *tabwriter.Writer
	if asJSON {
		enc = json.NewEncoder(out)
	} else {
		tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		defer tw.Flush()
	}

	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading trace: %w", err)
		}
		if enc != nil {
			if err := enc.Encode(rec); err != nil {
				return err
			}
			continue
		}
		printRecord(tw, rec)
	}
}

func printRecord(w io.Writer, rec wiretrace.Record) {
	result := "ok"
	if rec.Failed() {
		result = "error: " + rec.Error
	}
	fmt.Fprintf(w, "%s\t%s\t%q\t%s\n",
		rec.Timestamp.Local().Format("2006-01-02 15:04:05.000"),
		rec.Duration.Round(time.Millisecond),
		rec.Command,
		result,
	)
	for _, line := range rec.Lines {
		fmt.Fprintf(w, "\t\t  %s\n", line)
	}
}
