package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/rodrigobaldaia/data-onboarding/internal/canvas"
	"github.com/rodrigobaldaia/data-onboarding/internal/config"
	"github.com/rodrigobaldaia/data-onboarding/internal/connect"
	"github.com/rodrigobaldaia/data-onboarding/internal/connstr"
	"github.com/rodrigobaldaia/data-onboarding/internal/dataset"
	"github.com/rodrigobaldaia/data-onboarding/internal/fetch"
	"github.com/rodrigobaldaia/data-onboarding/internal/metrics"
	"github.com/rodrigobaldaia/data-onboarding/internal/metrics/datadog"
	"github.com/rodrigobaldaia/data-onboarding/internal/pipeline"
	"github.com/rodrigobaldaia/data-onboarding/internal/session"
	"github.com/rodrigobaldaia/data-onboarding/internal/storage"
)

const (
	defaultMaxBytes  = 64 << 20
	fetchTimeout     = 30 * time.Second
	defaultShowRows  = 20
	defaultListLimit = 100
)

func sourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "encoding", Usage: "Charset label or auto (overrides config)"},
		&cli.StringFlag{Name: "delimiter", Usage: "auto, a single character, or \\t (overrides config)"},
		&cli.BoolFlag{Name: "no-header", Usage: "Treat the first row as data"},
		&cli.IntFlag{Name: "limit", Usage: "Preview row limit (overrides config)"},
		&cli.IntFlag{Name: "sample-size", Usage: "Values per column examined by inference"},
		&cli.IntFlag{Name: "max-scan-rows", Usage: "Stop parsing delimited input after N rows"},
		&cli.BoolFlag{Name: "trim-space", Usage: "Trim delimited cells"},
		&cli.StringFlag{Name: "record-tag", Usage: "XML element that holds one record"},
		&cli.StringFlag{Name: "table", Usage: "CSS selector of the HTML table to read"},
		&cli.Int64Flag{Name: "max-bytes", Value: defaultMaxBytes, Usage: "Refuse sources larger than this"},
		&cli.BoolFlag{Name: "json", Usage: "Print JSON instead of a table"},
	}
}

// settingsFrom layers command flags over the configured session settings.
func settingsFrom(c *cli.Context, sc config.SessionConfig) (pipeline.Settings, error) {
	if c.IsSet("encoding") {
		sc.Encoding = c.String("encoding")
	}
	if c.IsSet("delimiter") {
		sc.Delimiter = c.String("delimiter")
	}
	if c.Bool("no-header") {
		sc.HeaderPolicy = dataset.NoHeader.String()
	}
	if c.IsSet("limit") {
		sc.PreviewRowLimit = c.Int("limit")
	}
	if c.IsSet("sample-size") {
		sc.SampleSize = c.Int("sample-size")
	}
	if c.IsSet("max-scan-rows") {
		sc.MaxScanRows = c.Int("max-scan-rows")
	}
	if c.Bool("trim-space") {
		sc.TrimSpace = true
	}
	s, err := sc.Settings()
	if err != nil {
		return pipeline.Settings{}, err
	}
	s.RecordTag = c.String("record-tag")
	s.TableSelector = c.String("table")
	return s, nil
}

// loadSource reads the command's first argument (path, URL, or - for stdin).
func (e *env) loadSource(c *cli.Context) (fetch.Source, error) {
	if c.NArg() > 1 {
		return fetch.Source{}, usagef("expected one source, got %d", c.NArg())
	}
	l := fetch.NewLoader(&http.Client{}, fetchTimeout, c.Int64("max-bytes"))
	src, err := l.Load(c.Context, fetch.Input{Location: c.Args().First(), Stdin: e.stdin})
	if err != nil {
		return fetch.Source{}, failure(err)
	}
	e.logger.Printf("source name=%q bytes=%d charset=%q", src.Name, len(src.Bytes), src.Charset)
	return src, nil
}

// openMetrics builds the configured backend. The returned func flushes and
// stops it.
func (e *env) openMetrics(ctx context.Context) (metrics.Backend, func(), error) {
	switch e.cfg.Metrics.Backend {
	case "datadog":
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    e.cfg.Metrics.JobName,
			Tags:       e.cfg.Metrics.Tags,
			FlushEvery: e.cfg.Metrics.FlushEvery(),
		})
		if err != nil {
			return nil, nil, err
		}
		return b, func() {
			if err := b.Close(); err != nil {
				e.logger.Printf("metrics flush error=%q", err)
			}
		}, nil
	default:
		return metrics.Nop{}, func() {}, nil
	}
}

func (e *env) openStore(ctx context.Context) (storage.ArtifactStore, error) {
	if e.cfg.Storage.Kind == "" {
		return nil, usagef("no artifact store: set storage.kind, %s or --storage-kind", config.EnvStorageKind)
	}
	s, err := storage.New(ctx, storage.Config{Kind: e.cfg.Storage.Kind, DSN: e.cfg.Storage.DSN})
	if err != nil {
		return nil, failure(fmt.Errorf("open %s store: %w", e.cfg.Storage.Kind, err))
	}
	return s, nil
}

// newSession wires a session to the command's collaborators.
func (e *env) newSession(settings *pipeline.Settings, sink canvas.Sink, m metrics.Backend) (*session.Session, error) {
	s := session.New(session.Options{
		Settings: settings,
		Sink:     sink,
		Metrics:  m,
		Logger:   e.logger,
	})
	if err := s.Open(); err != nil {
		return nil, failure(err)
	}
	return s, nil
}

func (e *env) printJSON(v any) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// jsonSink prints every committed artifact to w.
func jsonSink(w io.Writer) canvas.Sink {
	return canvas.SinkFunc(func(_ context.Context, a canvas.Artifact) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	})
}

//
// preview
//

func previewCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:         "preview",
		Usage:        "Preview a file, URL or stdin without committing",
		ArgsUsage:    "[path|url|-]",
		Flags:        sourceFlags(),
		OnUsageError: usageError,
		Action: func(c *cli.Context) error {
			settings, err := settingsFrom(c, e.cfg.Session)
			if err != nil {
				return usagef("%v", err)
			}
			src, err := e.loadSource(c)
			if err != nil {
				return err
			}
			m, closeMetrics, err := e.openMetrics(c.Context)
			if err != nil {
				return failure(err)
			}
			defer closeMetrics()

			s, err := e.newSession(&settings, nil, m)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.SubmitFile(c.Context, src.Name, src.Bytes, src.Charset); err != nil {
				return failure(err)
			}

			p := s.Snapshot().Preview
			if c.Bool("json") {
				return e.printJSON(p)
			}
			return renderPreview(e.stdout, src.Name, p, defaultShowRows)
		},
	}
}

//
// import
//

func importCmd(e *env) *cli.Command {
	flags := append(sourceFlags(),
		&cli.StringSliceFlag{Name: "type", Usage: "Override a column type: name=integer|float|boolean|date|text (repeatable)"},
	)
	return &cli.Command{
		Name:         "import",
		Usage:        "Preview a source and commit it as a dataset import",
		ArgsUsage:    "[path|url|-]",
		Flags:        flags,
		OnUsageError: usageError,
		Action: func(c *cli.Context) error {
			settings, err := settingsFrom(c, e.cfg.Session)
			if err != nil {
				return usagef("%v", err)
			}
			overrides, err := parseTypeOverrides(c.StringSlice("type"))
			if err != nil {
				return usagef("%v", err)
			}

			store, err := e.openStore(c.Context)
			if err != nil {
				return err
			}
			defer store.Close()

			src, err := e.loadSource(c)
			if err != nil {
				return err
			}
			m, closeMetrics, err := e.openMetrics(c.Context)
			if err != nil {
				return failure(err)
			}
			defer closeMetrics()

			sink := canvas.MultiSink{storage.SinkFor(store, e.cfg.Storage.SavePasswords)}
			if c.Bool("json") {
				sink = append(sink, jsonSink(e.stdout))
			}
			s, err := e.newSession(&settings, sink, m)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.SubmitFile(c.Context, src.Name, src.Bytes, src.Charset); err != nil {
				return failure(err)
			}
			names := s.Snapshot().Preview.ColumnNames()
			for _, o := range overrides {
				i := indexOf(names, o.column)
				if i < 0 {
					return usagef("--type: no column named %q", o.column)
				}
				if err := s.OverrideColumnType(i, o.typ); err != nil {
					return failure(fmt.Errorf("column %q: %w", o.column, err))
				}
			}

			a, err := s.Commit(c.Context)
			if err != nil {
				return failure(err)
			}
			if !c.Bool("json") {
				fmt.Fprintf(e.stdout, "committed %s %s\n", a.Kind(), a.ArtifactID())
			}
			return nil
		},
	}
}

type typeOverride struct {
	column string
	typ    dataset.ColumnType
}

func parseTypeOverrides(raw []string) ([]typeOverride, error) {
	out := make([]typeOverride, 0, len(raw))
	for _, r := range raw {
		k, v, err := parseAssignment(r)
		if err != nil {
			return nil, fmt.Errorf("--type: %w", err)
		}
		t, err := dataset.ParseColumnType(v)
		if err != nil {
			return nil, fmt.Errorf("--type %s: %w", k, err)
		}
		out = append(out, typeOverride{column: k, typ: t})
	}
	return out, nil
}

func indexOf(xs []string, v string) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}

//
// link
//

func linkCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "link",
		Usage:     "Parse a connection link, edit it, and optionally ping or commit it",
		ArgsUsage: "[link]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "set", Usage: "Replace a field: scheme|host|port|database|username|password=value (repeatable)"},
			&cli.BoolFlag{Name: "ping", Usage: "Open a connection and ping it"},
			&cli.BoolFlag{Name: "commit", Usage: "Commit the connection to the artifact store"},
			&cli.BoolFlag{Name: "json", Usage: "Print the descriptor as JSON"},
		},
		OnUsageError: usageError,
		Action: func(c *cli.Context) error {
			if c.NArg() > 1 {
				return usagef("expected one link, got %d", c.NArg())
			}
			link, err := resolveLink(c.Args().First(), e.lookup)
			if err != nil {
				return usagef("%v", err)
			}

			var sink canvas.Sink
			if c.Bool("commit") {
				store, err := e.openStore(c.Context)
				if err != nil {
					return err
				}
				defer store.Close()
				sink = storage.SinkFor(store, e.cfg.Storage.SavePasswords)
			}
			m, closeMetrics, err := e.openMetrics(c.Context)
			if err != nil {
				return failure(err)
			}
			defer closeMetrics()

			s, err := e.newSession(nil, sink, m)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.SubmitLink(link); err != nil {
				return failure(err)
			}
			for _, kv := range c.StringSlice("set") {
				k, v, err := parseAssignment(kv)
				if err != nil {
					return usagef("--set: %v", err)
				}
				f, err := connstr.ParseField(k)
				if err != nil {
					return usagef("--set: %v", err)
				}
				if err := s.EditConnection(f, v); err != nil {
					return failure(err)
				}
			}
			d := *s.Snapshot().Descriptor

			if c.Bool("ping") {
				err := connect.Default(e.cfg.Connect.Timeout()).Check(c.Context, d)
				if errors.Is(err, connect.ErrNoChecker) {
					return usagef("--ping: %v", err)
				}
				if err != nil {
					return failure(err)
				}
				fmt.Fprintf(e.stderr, "ping %s: ok\n", d.Address())
			}

			if c.Bool("json") {
				if err := e.printJSON(d); err != nil {
					return failure(err)
				}
			} else {
				fmt.Fprintln(e.stdout, d.Redacted())
			}

			if c.Bool("commit") {
				a, err := s.Commit(c.Context)
				if err != nil {
					return failure(err)
				}
				fmt.Fprintf(e.stderr, "committed %s %s\n", a.Kind(), a.ArtifactID())
			}
			return nil
		},
	}
}

//
// list / show
//

func listCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List committed artifacts",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Usage: "Only artifacts of this kind: dataset_import|connection"},
			&cli.IntFlag{Name: "limit", Value: defaultListLimit, Usage: "Maximum artifacts to list (0 for all)"},
		},
		OnUsageError: usageError,
		Action: func(c *cli.Context) error {
			kind := canvas.Kind(c.String("kind"))
			switch kind {
			case "", canvas.KindDatasetImport, canvas.KindConnection:
			default:
				return usagef("unknown artifact kind %q", kind)
			}
			store, err := e.openStore(c.Context)
			if err != nil {
				return err
			}
			defer store.Close()

			recs, err := store.List(c.Context, storage.ListOptions{Kind: kind, Limit: c.Int("limit")})
			if err != nil {
				return failure(err)
			}
			return renderRecords(e.stdout, recs)
		},
	}
}

func showCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:         "show",
		Usage:        "Print one committed artifact as JSON",
		ArgsUsage:    "<id>",
		OnUsageError: usageError,
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return usagef("show needs exactly one artifact id")
			}
			store, err := e.openStore(c.Context)
			if err != nil {
				return err
			}
			defer store.Close()

			r, err := store.Get(c.Context, c.Args().First())
			if err != nil {
				return failure(err)
			}
			a, err := r.Artifact()
			if err != nil {
				return failure(err)
			}
			return e.printJSON(a)
		},
	}
}
