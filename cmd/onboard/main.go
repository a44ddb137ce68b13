// Command onboard previews data sources and onboards them as canvas
// artifacts.
//
// It drives the same session state machine an interactive front end uses:
//
//   - preview: decode, sniff, parse and infer a file, URL or stdin, and print
//     the preview without committing anything.
//   - import:  preview, optionally retype columns, and commit a dataset
//     import artifact to the configured artifact store.
//   - link:    parse and edit a database connection link, optionally ping
//     it, and commit a connection artifact.
//   - list / show: inspect committed artifacts.
//
// # Configuration
//
// Settings are layered with strict precedence: defaults, then the config
// file (-config, YAML or JSON), then environment variables (ONBOARD_*,
// METRICS_*), then command-line flags.
//
// # Exit codes
//
//	0  success
//	1  runtime failure (parse error, unreachable database, store failure)
//	2  usage or configuration error
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/rodrigobaldaia/data-onboarding/internal/config"
	"github.com/rodrigobaldaia/data-onboarding/internal/metrics/datadog"
	"github.com/rodrigobaldaia/data-onboarding/internal/storage"
	_ "github.com/rodrigobaldaia/data-onboarding/internal/storage/all"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr, os.LookupEnv)
	stop()
	os.Exit(code)
}

// run executes the app and maps its error to an exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, lookup func(string) (string, bool)) int {
	app := newApp(&env{stdin: stdin, stdout: stdout, stderr: stderr, lookup: lookup})
	err := app.RunContext(ctx, args)
	if err == nil {
		return 0
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		if msg := ec.Error(); msg != "" {
			fmt.Fprintln(stderr, "onboard:", msg)
		}
		return ec.ExitCode()
	}
	fmt.Fprintln(stderr, "onboard:", err)
	return 1
}

// env is the process surroundings shared by every command.
type env struct {
	stdin          io.Reader
	stdout, stderr io.Writer
	lookup         func(string) (string, bool)

	// Set by the app's Before hook.
	cfg    *config.Config
	logger *log.Logger
}

func newApp(e *env) *cli.App {
	app := &cli.App{
		Name:      "onboard",
		Usage:     "Preview data sources and onboard them as canvas artifacts",
		Version:   Version,
		Reader:    e.stdin,
		Writer:    e.stdout,
		ErrWriter: e.stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, EnvVars: []string{"ONBOARD_CONFIG"}, Usage: "Path to a YAML or JSON config file"},
			&cli.BoolFlag{Name: "verbose", Usage: "Log session transitions and pipeline stats to stderr"},
			&cli.StringFlag{Name: "storage-kind", Usage: "Artifact store kind (overrides config)"},
			&cli.StringFlag{Name: "storage-dsn", Usage: "Artifact store DSN (overrides config)"},
			&cli.StringFlag{Name: "metrics", Usage: "Metrics backend: none|datadog (overrides config)"},
			&cli.StringFlag{Name: "metrics-tags", Usage: "Comma-separated extra metric tags"},
		},
		Before: e.setup,
		Commands: []*cli.Command{
			previewCmd(e),
			importCmd(e),
			linkCmd(e),
			listCmd(e),
			showCmd(e),
		},
		OnUsageError: usageError,
	}
	// Errors are reported by run so tests observe them.
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// setup loads configuration and builds the logger.
func (e *env) setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	cfg.ApplyEnv(e.lookup)

	if v := c.String("storage-kind"); v != "" {
		cfg.Storage.Kind = v
	}
	if v := c.String("storage-dsn"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := c.String("metrics"); v != "" {
		cfg.Metrics.Backend = v
	}
	if c.IsSet("metrics-tags") {
		cfg.Metrics.Tags = datadog.ParseTagsCSV(c.String("metrics-tags"))
	}

	issues := cfg.Validate(storage.Kinds())
	for _, iss := range issues {
		fmt.Fprintln(e.stderr, iss.String())
	}
	if config.HasErrors(issues) {
		return cli.Exit("invalid configuration", 2)
	}

	e.cfg = cfg
	e.logger = log.New(io.Discard, "", 0)
	if c.Bool("verbose") {
		e.logger = log.New(e.stderr, "onboard ", log.LstdFlags|log.Lmsgprefix)
	}
	return nil
}

func usageError(_ *cli.Context, err error, _ bool) error {
	return cli.Exit(err.Error(), 2)
}

// usagef reports a usage error (exit 2).
func usagef(format string, args ...any) error {
	return cli.Exit(fmt.Sprintf(format, args...), 2)
}

// failure reports a runtime error (exit 1).
func failure(err error) error {
	return cli.Exit(err.Error(), 1)
}
