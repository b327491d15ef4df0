// Command matrixctl is the operator console for an HDMI matrix switch.
//
// It drives the same client the bridge uses, one command per invocation
// or interactively:
//
//	matrixctl [flags] <command> [args]
//
// Commands:
//
//	probe                    connect, read model and status, disconnect
//	type                     model identifier
//	status                   full status dump
//	power [on|off]           read or set power
//	route IN OUT             show input IN on output OUT
//	source OUT               input shown on output OUT
//	sources                  input shown on every output
//	links in|out [ID]        link state of one or all ports
//	cec in|out ID on|off     CEC power control
//	active OUT               make output OUT the active CEC source
//	raw "r status!"          send a console command as-is
//	shell                    interactive prompt with history
//	trace FILE               print a recorded wire trace
//
// Flags:
//
//	-connection string  Matrix URL (tcp://, telnet:// or serial://)
//	-config string      Config file to read the connection from
//	-timeout duration   Per-command timeout (default 10s)
//	-policy string      Bulk parse policy: strict or lenient
//	-record string      Append every exchange to a wire trace file
//	-json               Print results as JSON
//	-v                  Debug logging to stderr
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-matrix/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-matrix/internal/infrastructure/logging"
	hdmi "github.com/nerrad567/gray-logic-matrix/internal/matrix"
	"github.com/nerrad567/gray-logic-matrix/internal/wiretrace"
)

var version = "dev"

const (
	defaultConfigPath = "configs/config.yaml"
	defaultTimeout    = 10 * time.Second
)

// options are the parsed command-line flags.
type options struct {
	connection string
	configPath string
	timeout    time.Duration
	policy     string
	record     string
	json       bool
	verbose    bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, rest, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return fmt.Errorf("%w: no command given (try 'help')", errUsage)
	}

	switch rest[0] {
	case "help":
		printUsage(stdout)
		return nil
	case "trace":
		return runTrace(rest[1:], stdout, opts.json)
	}

	client, cleanup, err := newClient(opts, stderr)
	if err != nil {
		return err
	}
	defer cleanup()

	con := &console{client: client, out: stdout, timeout: opts.timeout, json: opts.json}
	if rest[0] == "shell" {
		return runShell(ctx, con)
	}
	return con.execute(ctx, rest)
}

func parseFlags(args []string, stderr io.Writer) (options, []string, error) {
	var opts options
	fs := flag.NewFlagSet("matrixctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.connection, "connection", "", "Matrix URL (tcp://, telnet:// or serial://)")
	fs.StringVar(&opts.configPath, "config", "", "Config file to read the connection from")
	fs.DurationVar(&opts.timeout, "timeout", defaultTimeout, "Per-command timeout")
	fs.StringVar(&opts.policy, "policy", "", "Bulk parse policy: strict or lenient")
	fs.StringVar(&opts.record, "record", "", "Append every exchange to a wire trace file")
	fs.BoolVar(&opts.json, "json", false, "Print results as JSON")
	fs.BoolVar(&opts.verbose, "v", false, "Debug logging to stderr")

	if err := fs.Parse(args); err != nil {
		return options{}, nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	if opts.timeout <= 0 {
		return options{}, nil, fmt.Errorf("%w: -timeout must be positive", errUsage)
	}
	return opts, fs.Args(), nil
}

// resolve fills in the channel settings. An explicit -connection wins, then
// GRAYLOGIC_MATRIX_CONNECTION, then the config file.
func resolve(opts options) (hdmi.Config, string, error) {
	policy := opts.policy
	if conn := firstNonEmpty(opts.connection, os.Getenv("GRAYLOGIC_MATRIX_CONNECTION")); conn != "" && opts.configPath == "" {
		return hdmi.Config{Connection: conn}, policy, nil
	}

	path := firstNonEmpty(opts.configPath, os.Getenv("GRAYLOGIC_CONFIG"), defaultConfigPath)
	cfg, err := config.Load(path)
	if err != nil {
		return hdmi.Config{}, "", fmt.Errorf("no -connection given and %w", err)
	}

	m := cfg.Matrix
	if opts.connection != "" {
		m.Connection = opts.connection
	}
	if policy == "" {
		policy = m.BulkParsePolicy
	}
	return hdmi.Config{
		Connection:       m.Connection,
		ConnectTimeout:   m.ConnectTimeout,
		IdleTimeout:      m.IdleTimeout,
		WriteTimeout:     m.WriteTimeout,
		MaxResponseBytes: m.MaxResponseBytes,
	}, policy, nil
}

func newClient(opts options, stderr io.Writer) (*hdmi.Matrix, func(), error) {
	chCfg, policyName, err := resolve(opts)
	if err != nil {
		return nil, nil, err
	}
	policy := hdmi.PolicyStrict
	if policyName != "" {
		var ok bool
		if policy, ok = hdmi.ParseParsePolicy(policyName); !ok {
			return nil, nil, fmt.Errorf("%w: unknown parse policy %q", errUsage, policyName)
		}
	}

	channel, err := hdmi.NewChannel(chCfg)
	if err != nil {
		return nil, nil, err
	}

	client := hdmi.New(channel, policy)
	if opts.verbose {
		log := logging.NewWithWriter(config.LoggingConfig{Level: "debug", Format: "text"}, version, stderr)
		channel.SetLogger(log)
		client.SetLogger(log)
	}

	var recorder *wiretrace.Recorder
	if opts.record != "" {
		if recorder, err = wiretrace.NewRecorder(opts.record, channel.Endpoint()); err != nil {
			return nil, nil, fmt.Errorf("opening wire trace: %w", err)
		}
		channel.SetTracer(recorder)
	}

	cleanup := func() {
		_ = channel.Close()
		if recorder != nil {
			if err := recorder.Close(); err != nil {
				fmt.Fprintf(stderr, "closing wire trace: %v\n", err)
			}
		}
	}
	return client, cleanup, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: matrixctl [flags] <command> [args]

Commands:
  probe                    connect, read model and status, disconnect
  type                     model identifier
  status                   full status dump
  power [on|off]           read or set power
  route IN OUT             show input IN on output OUT
  source OUT               input shown on output OUT
  sources                  input shown on every output
  links in|out [ID]        link state of one or all ports
  cec in|out ID on|off     CEC power control
  active OUT               make output OUT the active CEC source
  raw "r status!"          send a console command as-is
  shell                    interactive prompt with history
  trace FILE [-failed] [-command TEXT]
                           print a recorded wire trace

Run 'matrixctl -h' for flags.
`)
}
