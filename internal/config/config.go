// Package config loads onboarding configuration: defaults, then a YAML or
// JSON file, then environment overrides. Command-line flags are applied by
// the caller on top.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/rodrigobaldaia/data-onboarding/internal/dataset"
	"github.com/rodrigobaldaia/data-onboarding/internal/decode"
	"github.com/rodrigobaldaia/data-onboarding/internal/pipeline"
)

// Config is the full onboarding configuration.
type Config struct {
	Session SessionConfig `yaml:"session" json:"session"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Connect ConnectConfig `yaml:"connect" json:"connect"`
}

// SessionConfig holds the pipeline settings a session starts with.
type SessionConfig struct {
	// HeaderPolicy is "first_row" or "none".
	HeaderPolicy string `yaml:"header_policy" json:"header_policy"`
	// Encoding is "auto" or a charset label.
	Encoding string `yaml:"encoding" json:"encoding"`
	// Delimiter is "auto", a single character, or "\t"/"tab".
	Delimiter       string `yaml:"delimiter" json:"delimiter"`
	SampleSize      int    `yaml:"sample_size" json:"sample_size"`
	PreviewRowLimit int    `yaml:"preview_row_limit" json:"preview_row_limit"`
	// MaxScanRows bounds delimited parsing; 0 scans everything.
	MaxScanRows int  `yaml:"max_scan_rows" json:"max_scan_rows"`
	TrimSpace   bool `yaml:"trim_space" json:"trim_space"`
}

// StorageConfig selects the artifact store.
type StorageConfig struct {
	// Kind is a registered storage kind: sqlite, postgres, mssql, minio.
	// Empty disables persistence.
	Kind string `yaml:"kind" json:"kind"`
	DSN  string `yaml:"dsn" json:"dsn"`
	// SavePasswords persists connection passwords in cleartext.
	SavePasswords bool `yaml:"save_passwords" json:"save_passwords"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	// Backend is "none" or "datadog".
	Backend      string   `yaml:"backend" json:"backend"`
	JobName      string   `yaml:"job_name" json:"job_name"`
	Tags         []string `yaml:"tags" json:"tags"`
	FlushSeconds int      `yaml:"flush_seconds" json:"flush_seconds"`
}

// ConnectConfig controls liveness checks run by the CLI.
type ConnectConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			HeaderPolicy:    dataset.FirstRowIsHeader.String(),
			Encoding:        "auto",
			Delimiter:       "auto",
			SampleSize:      1000,
			PreviewRowLimit: 1000,
		},
		Metrics: MetricsConfig{Backend: "none", JobName: "onboard", FlushSeconds: 60},
		Connect: ConnectConfig{TimeoutSeconds: 5},
	}
}

// Load reads path over the defaults. A missing file yields the defaults; a
// ".json" extension selects JSON, anything else YAML.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Environment variables read by ApplyEnv.
const (
	EnvStorageKind  = "ONBOARD_STORAGE_KIND"
	EnvStorageDSN   = "ONBOARD_STORAGE_DSN"
	EnvMetrics      = "METRICS_BACKEND"
	EnvMetricsTags  = "METRICS_TAGS"
	EnvEncoding     = "ONBOARD_ENCODING"
	EnvDelimiter    = "ONBOARD_DELIMITER"
	EnvHeaderPolicy = "ONBOARD_HEADER_POLICY"
)

// ApplyEnv overrides fields from the environment. lookup is os.LookupEnv in
// production. Set-but-empty variables are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get(EnvStorageKind); ok {
		c.Storage.Kind = strings.ToLower(v)
	}
	if v, ok := get(EnvStorageDSN); ok {
		c.Storage.DSN = v
	}
	if v, ok := get(EnvMetrics); ok {
		c.Metrics.Backend = strings.ToLower(v)
	}
	if v, ok := get(EnvMetricsTags); ok {
		c.Metrics.Tags = splitCSV(v)
	}
	if v, ok := get(EnvEncoding); ok {
		c.Session.Encoding = v
	}
	if v, ok := lookup(EnvDelimiter); ok && v != "" {
		// Not trimmed: a literal tab is a valid value.
		c.Session.Delimiter = v
	}
	if v, ok := get(EnvHeaderPolicy); ok {
		c.Session.HeaderPolicy = v
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseDelimiter parses a delimiter setting. "auto" and "" mean sniff (0).
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return 0, nil
	case `\t`, "tab", "\t":
		return '\t', nil
	case "comma":
		return ',', nil
	case "semicolon":
		return ';', nil
	case "pipe":
		return '|', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("delimiter %q must be a single character", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("delimiter %q is not allowed", s)
	}
	return r, nil
}

// Settings converts the session section into pipeline settings.
func (s SessionConfig) Settings() (pipeline.Settings, error) {
	out := pipeline.DefaultSettings()

	hp, err := dataset.ParseHeaderPolicy(s.HeaderPolicy)
	if err != nil {
		return out, err
	}
	out.HeaderPolicy = hp

	d, err := ParseDelimiter(s.Delimiter)
	if err != nil {
		return out, err
	}
	out.Delimiter = d

	if s.Encoding != "" {
		out.Encoding = s.Encoding
	}
	if s.SampleSize > 0 {
		out.SampleSize = s.SampleSize
	}
	if s.PreviewRowLimit != 0 {
		out.PreviewRowLimit = s.PreviewRowLimit
	}
	out.MaxScanRows = s.MaxScanRows
	out.TrimSpace = s.TrimSpace
	return out, nil
}

// FlushEvery returns the metrics flush interval.
func (m MetricsConfig) FlushEvery() time.Duration {
	return time.Duration(m.FlushSeconds) * time.Second
}

// Timeout returns the liveness check timeout, defaulting to 5s.
func (c ConnectConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is the dotted config key.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks c and returns every issue found, errors first in field
// order. Storage kinds are checked against known, which callers fill from
// the storage registry.
func (c *Config) Validate(known []string) []Issue {
	var issues []Issue
	add := func(sev Severity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if _, err := dataset.ParseHeaderPolicy(c.Session.HeaderPolicy); err != nil {
		add(SeverityError, "session.header_policy", "%v", err)
	}
	if !decode.Auto(c.Session.Encoding) {
		if _, _, err := decode.Lookup(c.Session.Encoding); err != nil {
			add(SeverityError, "session.encoding", "unknown encoding %q", c.Session.Encoding)
		}
	}
	if _, err := ParseDelimiter(c.Session.Delimiter); err != nil {
		add(SeverityError, "session.delimiter", "%v", err)
	}
	if c.Session.SampleSize < 0 {
		add(SeverityError, "session.sample_size", "must be positive, got %d", c.Session.SampleSize)
	} else if c.Session.SampleSize > 100000 {
		add(SeverityWarning, "session.sample_size", "%d values per column makes inference slow", c.Session.SampleSize)
	}
	if c.Session.MaxScanRows < 0 {
		add(SeverityError, "session.max_scan_rows", "must not be negative")
	}
	if c.Session.PreviewRowLimit < 0 {
		add(SeverityWarning, "session.preview_row_limit", "negative limit keeps every row in memory")
	}

	if c.Storage.Kind != "" {
		if !contains(known, c.Storage.Kind) {
			add(SeverityError, "storage.kind", "unknown storage kind %q (known: %s)", c.Storage.Kind, strings.Join(known, ", "))
		}
		if c.Storage.DSN == "" && c.Storage.Kind != "sqlite" {
			add(SeverityError, "storage.dsn", "required for storage kind %q", c.Storage.Kind)
		}
	}
	if c.Storage.SavePasswords {
		add(SeverityWarning, "storage.save_passwords", "connection passwords will be stored in cleartext")
	}

	switch c.Metrics.Backend {
	case "", "none", "datadog":
	default:
		add(SeverityError, "metrics.backend", "unknown metrics backend %q", c.Metrics.Backend)
	}
	if c.Metrics.Backend == "datadog" && os.Getenv("DD_API_KEY") == "" {
		add(SeverityWarning, "metrics.backend", "DD_API_KEY is not set; submissions will be rejected")
	}
	if c.Metrics.FlushSeconds < 0 {
		add(SeverityError, "metrics.flush_seconds", "must not be negative")
	}
	if c.Connect.TimeoutSeconds < 0 {
		add(SeverityError, "connect.timeout_seconds", "must not be negative")
	}

	// Errors before warnings, keeping field order within each group.
	out := make([]Issue, 0, len(issues))
	for _, sev := range []Severity{SeverityError, SeverityWarning} {
		for _, iss := range issues {
			if iss.Severity == sev {
				out = append(out, iss)
			}
		}
	}
	return out
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// String renders an issue as "severity: path: message".
func (i Issue) String() string {
	return string(i.Severity) + ": " + i.Path + ": " + i.Message
}
