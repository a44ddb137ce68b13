// Package csv parses delimited text into a dataset.Table.
//
// Parsing is best-effort: ragged rows are padded or truncated to the column
// count and counted in the table warnings, and records the reader cannot make
// sense of are skipped and counted. Only I/O errors and cancellation abort.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rodrigobaldaia/data-onboarding/internal/dataset"
)

// DefaultPreviewRowLimit is used when Options.PreviewRowLimit is zero.
const DefaultPreviewRowLimit = 1000

// Options control a single parse.
type Options struct {
	// Delimiter defaults to ','.
	Delimiter rune
	Header    dataset.HeaderPolicy
	// PreviewRowLimit caps materialized rows. Negative means no cap.
	PreviewRowLimit int
	// MaxScanRows stops ParseReader after this many data rows and marks the
	// row count as a lower bound. Zero means scan everything.
	MaxScanRows int
	// TrimSpace trims cells before the empty check.
	TrimSpace bool
	// OnError observes skipped records.
	OnError func(line int, err error)
}

func (o Options) comma() rune {
	if o.Delimiter == 0 {
		return ','
	}
	return o.Delimiter
}

func (o Options) previewLimit() int {
	if o.PreviewRowLimit == 0 {
		return DefaultPreviewRowLimit
	}
	return o.PreviewRowLimit
}

// Parse parses fully materialized text. The row count is exact.
func Parse(text string, opt Options) (dataset.Table, error) {
	opt.MaxScanRows = 0
	return ParseReader(context.Background(), strings.NewReader(text), opt)
}

// ParseReader parses r. When MaxScanRows stops the scan early the table's
// TotalRows is the number of rows scanned and RowCountIsLowerBound is set.
func ParseReader(ctx context.Context, r io.Reader, opt Options) (dataset.Table, error) {
	var t dataset.Table

	cr := csv.NewReader(r)
	cr.Comma = opt.comma()
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	readRec := func() ([]string, error) {
		for {
			rec, err := cr.Read()
			if err == nil || err == io.EOF {
				return rec, err
			}
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, fmt.Errorf("csv read: %w", err)
			}
			t.Warnings.SkippedRowCount++
			t.Warnings.MalformedRowCount++
			if opt.OnError != nil {
				opt.OnError(pe.Line, err)
			}
		}
	}

	width := -1
	if opt.Header == dataset.FirstRowIsHeader {
		hdr, err := readRec()
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			return t, fmt.Errorf("read header: %w", err)
		}
		if len(hdr) > 0 {
			hdr[0] = strings.TrimPrefix(hdr[0], "\uFEFF")
		}
		t.Header = dataset.ColumnNames(hdr, len(hdr))
		t.HeaderRowUsed = true
		width = len(hdr)
	}

	limit := opt.previewLimit()
	// Field-count histogram of every scanned row, used to size NoHeader
	// tables and count padding for rows past the preview limit.
	widths := map[int]int{}

	for {
		select {
		case <-ctx.Done():
			return dataset.Table{}, ctx.Err()
		default:
		}

		if opt.MaxScanRows > 0 && t.TotalRows >= opt.MaxScanRows {
			if _, err := readRec(); err != io.EOF {
				t.RowCountIsLowerBound = true
			}
			break
		}

		rec, err := readRec()
		if err == io.EOF {
			break
		}
		if err != nil {
			return dataset.Table{}, err
		}
		t.TotalRows++
		if width >= 0 {
			switch {
			case len(rec) < width:
				t.Warnings.PaddedRowCount++
				t.Warnings.MalformedRowCount++
			case len(rec) > width:
				t.Warnings.TruncatedRowCount++
				t.Warnings.MalformedRowCount++
			}
		} else {
			widths[len(rec)]++
		}

		if limit >= 0 && len(t.Rows) >= limit {
			t.Warnings.TruncatedPreview = true
			continue
		}
		t.Rows = append(t.Rows, cells(rec, opt.TrimSpace))
	}

	if width < 0 {
		width = 0
		for w := range widths {
			if w > width {
				width = w
			}
		}
		for w, n := range widths {
			if w < width {
				t.Warnings.PaddedRowCount += n
				t.Warnings.MalformedRowCount += n
			}
		}
		t.Header = dataset.GeneratedNames(width)
	}

	for i, row := range t.Rows {
		t.Rows[i] = fit(row, width)
	}
	return t, nil
}

func cells(rec []string, trim bool) []*string {
	out := make([]*string, len(rec))
	for i, v := range rec {
		if trim {
			v = strings.TrimSpace(v)
		}
		if v == "" {
			continue
		}
		s := v
		out[i] = &s
	}
	return out
}

// fit pads row with nulls or truncates it to width.
func fit(row []*string, width int) []*string {
	switch {
	case len(row) == width:
		return row
	case len(row) > width:
		return row[:width:width]
	default:
		out := make([]*string, width)
		copy(out, row)
		return out
	}
}
