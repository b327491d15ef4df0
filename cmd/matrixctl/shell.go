package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
)

const historyFileName = ".matrixctl_history"

// shellCompleter offers the console verbs and their fixed arguments.
var shellCompleter = readline.NewPrefixCompleter(
	readline.PcItem("probe"),
	readline.PcItem("type"),
	readline.PcItem("status"),
	readline.PcItem("power", readline.PcItem("on"), readline.PcItem("off")),
	readline.PcItem("route"),
	readline.PcItem("source"),
	readline.PcItem("sources"),
	readline.PcItem("links", readline.PcItem("in"), readline.PcItem("out")),
	readline.PcItem("cec", readline.PcItem("in"), readline.PcItem("out")),
	readline.PcItem("active"),
	readline.PcItem("raw"),
	readline.PcItem("help"),
	readline.PcItem("exit"),
)

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, historyFileName)
}

// runShell reads console verbs until exit, EOF or ctx is cancelled. The
// matrix session stays open between commands.
func runShell(ctx context.Context, con *console) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "matrix> ",
		HistoryFile:     historyFile(),
		AutoComplete:    shellCompleter,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	con.out = rl.Stdout()
	fmt.Fprintln(rl.Stdout(), "Type 'help' for commands, 'exit' to leave.")
	return shellLoop(ctx, rl, con, rl.Stderr())
}

// lineReader is the part of readline the loop needs.
type lineReader interface {
	Readline() (string, error)
}

func shellLoop(ctx context.Context, in lineReader, con *console, errOut io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := in.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			// EOF
			return nil
		}

		fields := splitArgs(line)
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "exit", "quit", "q":
			return nil
		case "shell", "trace":
			fmt.Fprintf(errOut, "%s is not available inside the shell\n", fields[0])
			continue
		}

		if err := con.execute(ctx, fields); err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
		}
	}
}

// splitArgs splits a shell line on spaces, keeping double-quoted text
// together so `raw "r status!"` works the same as on the command line.
func splitArgs(line string) []string {
	var (
		args    []string
		cur     strings.Builder
		quoted  bool
		pending bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			pending = true
		case (r == ' ' || r == '\t') && !quoted:
			if pending {
				args = append(args, cur.String())
				cur.Reset()
				pending = false
			}
		default:
			cur.WriteRune(r)
			pending = true
		}
	}
	if pending {
		args = append(args, cur.String())
	}
	return args
}
