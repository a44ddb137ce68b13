// Package pipeline runs decode, sniff, parse and infer over one captured
// input and produces an immutable dataset.Preview.
//
// Run is a pure function of (RawInput, Settings). Analyze is the re-run
// entry point used when only sniff/parse/infer settings change and the
// decoded text can be reused.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rodrigobaldaia/data-onboarding/internal/dataset"
	"github.com/rodrigobaldaia/data-onboarding/internal/decode"
	"github.com/rodrigobaldaia/data-onboarding/internal/infer"
	csvparser "github.com/rodrigobaldaia/data-onboarding/internal/parser/csv"
	htmlparser "github.com/rodrigobaldaia/data-onboarding/internal/parser/html"
	jsonparser "github.com/rodrigobaldaia/data-onboarding/internal/parser/json"
	parquetparser "github.com/rodrigobaldaia/data-onboarding/internal/parser/parquet"
	xmlparser "github.com/rodrigobaldaia/data-onboarding/internal/parser/xml"
	"github.com/rodrigobaldaia/data-onboarding/internal/sniff"
)

// RawInput is captured upload content. Use Capture to build one; the bytes
// must not be modified afterwards.
type RawInput struct {
	Bytes            []byte
	DeclaredEncoding string
	SourceName       string
}

// Capture copies b so later writes by the caller cannot reach the input.
func Capture(b []byte, declaredEncoding, sourceName string) RawInput {
	return RawInput{
		Bytes:            bytes.Clone(b),
		DeclaredEncoding: declaredEncoding,
		SourceName:       sourceName,
	}
}

// Settings are the user-editable knobs of a run.
type Settings struct {
	HeaderPolicy dataset.HeaderPolicy
	// Encoding is "auto" or a charset label. A non-auto value overrides the
	// RawInput's declared encoding.
	Encoding string
	// Delimiter forces the delimiter of delimited text; 0 sniffs it.
	Delimiter rune
	// SampleSize bounds the values examined per column by inference.
	SampleSize int
	// PreviewRowLimit caps the materialized rows; negative means no cap.
	PreviewRowLimit int
	// MaxScanRows stops delimited parsing early and marks the row count as
	// a lower bound. Zero scans everything.
	MaxScanRows int
	// TrimSpace trims delimited cells before the null check.
	TrimSpace bool
	// RecordTag forces the XML record element.
	RecordTag string
	// TableSelector picks the HTML table.
	TableSelector string
	// Workers bounds concurrent column inference; 0 means GOMAXPROCS.
	Workers int
}

// DefaultSettings mirrors the documented configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		HeaderPolicy:    dataset.FirstRowIsHeader,
		Encoding:        "auto",
		SampleSize:      infer.DefaultSampleSize,
		PreviewRowLimit: csvparser.DefaultPreviewRowLimit,
	}
}

// Result is the outcome of a run. Decoded is retained by callers that want
// to re-run Analyze without decoding again; it is zero for binary inputs.
type Result struct {
	Preview *dataset.Preview
	Decoded decode.Text
	Guess   sniff.Guess
}

// Run decodes raw and analyzes it.
func Run(ctx context.Context, raw RawInput, s Settings) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if g, ok := sniff.SniffBytes(raw.Bytes, raw.SourceName); ok {
		return runBinary(ctx, raw, g, s)
	}

	enc := raw.DeclaredEncoding
	if !decode.Auto(s.Encoding) {
		enc = s.Encoding
	}
	return Analyze(ctx, decode.Decode(raw.Bytes, enc), raw.SourceName, s)
}

// Analyze sniffs, parses and infers already decoded text.
func Analyze(ctx context.Context, text decode.Text, sourceName string, s Settings) (Result, error) {
	g, err := sniff.Sniff(text.Text, sourceName)
	if err != nil {
		return Result{}, err
	}

	var tbl dataset.Table
	switch g.Format {
	case dataset.FormatDelimited:
		if s.Delimiter != 0 {
			g.Delimiter = sniff.DelimiterGuess{Delimiter: s.Delimiter, Confidence: 1}
			g.Confidence = 1
		}
		tbl, err = csvparser.ParseReader(ctx, strings.NewReader(text.Text), csvparser.Options{
			Delimiter:       g.Delimiter.Delimiter,
			Header:          s.HeaderPolicy,
			PreviewRowLimit: s.PreviewRowLimit,
			MaxScanRows:     s.MaxScanRows,
			TrimSpace:       s.TrimSpace,
		})
	case dataset.FormatJSON:
		tbl, err = jsonparser.Parse(ctx, strings.NewReader(text.Text), jsonparser.Options{
			PreviewRowLimit: s.PreviewRowLimit,
		})
	case dataset.FormatXML:
		tbl, err = xmlparser.Parse(ctx, strings.NewReader(text.Text), xmlparser.Options{
			RecordTag:       s.RecordTag,
			PreviewRowLimit: s.PreviewRowLimit,
		})
	case dataset.FormatHTML:
		tbl, err = htmlparser.Parse(strings.NewReader(text.Text), htmlparser.Options{
			Selector:        s.TableSelector,
			Header:          s.HeaderPolicy,
			PreviewRowLimit: s.PreviewRowLimit,
		})
	default:
		return Result{}, fmt.Errorf("%w: %s", sniff.ErrUnrecognizedFormat, g.Format)
	}
	if err != nil {
		return Result{}, fmt.Errorf("parse %s: %w", g.Format, err)
	}

	p, err := build(ctx, tbl, g, s)
	if err != nil {
		return Result{}, err
	}
	p.Encoding = text.EncodingUsed
	p.Warnings.ReplacementChars = text.HadReplacementChars
	return Result{Preview: p, Decoded: text, Guess: g}, nil
}

func runBinary(ctx context.Context, raw RawInput, g sniff.Guess, s Settings) (Result, error) {
	if g.Binary != sniff.BinaryParquet {
		return Result{}, fmt.Errorf("%w: %s", sniff.ErrUnsupportedFormat, g.Binary)
	}
	tbl, err := parquetparser.Parse(ctx, raw.Bytes, parquetparser.Options{
		PreviewRowLimit: s.PreviewRowLimit,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("parse %s: %w", g.Binary, err)
	}
	p, err := build(ctx, tbl, g, s)
	if err != nil {
		return Result{}, err
	}
	return Result{Preview: p, Guess: g}, nil
}

func build(ctx context.Context, tbl dataset.Table, g sniff.Guess, s Settings) (*dataset.Preview, error) {
	cols, err := infer.Columns(ctx, tbl, infer.Options{SampleSize: s.SampleSize, Workers: s.Workers})
	if err != nil {
		return nil, fmt.Errorf("infer columns: %w", err)
	}
	p := &dataset.Preview{
		Columns:               cols,
		Rows:                  tbl.Rows,
		TotalRowCountEstimate: tbl.TotalRows,
		RowCountIsLowerBound:  tbl.RowCountIsLowerBound,
		HeaderRowUsed:         tbl.HeaderRowUsed,
		Format:                g.Format,
		Warnings:              tbl.Warnings,
	}
	if g.Format == dataset.FormatDelimited {
		p.Delimiter = g.Delimiter.Delimiter
	}
	if p.Rows == nil {
		p.Rows = [][]*string{}
	}
	return p, nil
}
