// Package parquet reads the leading rows of a Parquet file into a
// dataset.Table. Leaf columns become columns; nested leaves are named by
// their dotted path. Values of repeated fields are joined with ",".
package parquet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"

	"github.com/rodrigobaldaia/data-onboarding/internal/dataset"
)

// Options control a read.
type Options struct {
	// PreviewRowLimit caps materialized rows; zero means 1000, negative no cap.
	PreviewRowLimit int
	// Parallelism is the reader goroutine count passed to parquet-go.
	Parallelism int64
}

// Parse reads b as a Parquet file. The total row count comes from the file
// footer and is exact.
func Parse(ctx context.Context, b []byte, opt Options) (t dataset.Table, err error) {
	np := opt.Parallelism
	if np <= 0 {
		np = 1
	}

	pf := newBytesFile(b)
	defer pf.Close()

	// parquet-go panics on some corrupt footers.
	defer func() {
		if r := recover(); r != nil {
			t = dataset.Table{}
			err = fmt.Errorf("parquet: corrupt file: %v", r)
		}
	}()

	pr, err := reader.NewParquetColumnReader(pf, np)
	if err != nil {
		return t, fmt.Errorf("parquet: read footer: %w", err)
	}
	defer pr.ReadStop()

	total := pr.GetNumRows()
	t.TotalRows = int(total)

	limit := int64(opt.PreviewRowLimit)
	if limit == 0 {
		limit = 1000
	}
	n := total
	if limit >= 0 && n > limit {
		n = limit
		t.Warnings.TruncatedPreview = true
	}

	leaves := pr.SchemaHandler.ValueColumns
	names := make([]string, len(leaves))
	for i, in := range leaves {
		names[i] = columnName(pr.SchemaHandler.InPathToExPath[in], in)
	}
	t.Header = dataset.ColumnNames(names, len(names))

	t.Rows = make([][]*string, n)
	for i := range t.Rows {
		t.Rows[i] = make([]*string, len(leaves))
	}

	for c := range leaves {
		if err := ctx.Err(); err != nil {
			return dataset.Table{}, err
		}
		if n == 0 {
			break
		}
		vals, rls, _, err := pr.ReadColumnByIndex(int64(c), n)
		if err != nil {
			return dataset.Table{}, fmt.Errorf("parquet: read column %s: %w", t.Header[c], err)
		}
		row := -1
		for i, v := range vals {
			if i >= len(rls) || rls[i] == 0 {
				row++
			}
			if row >= int(n) {
				break
			}
			if v == nil {
				continue
			}
			s := formatValue(v)
			if prev := t.Rows[row][c]; prev != nil {
				s = *prev + "," + s
			}
			t.Rows[row][c] = &s
		}
	}
	return t, nil
}

// columnName strips the schema root from a parquet path and joins the rest
// with dots.
func columnName(exPath, inPath string) string {
	p := exPath
	if p == "" {
		p = inPath
	}
	parts := strings.Split(p, common.PAR_GO_PATH_DELIMITER)
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return strings.Join(parts, ".")
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

var errReadOnly = errors.New("parquet: read-only source")

// bytesFile serves an in-memory upload to parquet-go. Open hands out an
// independent cursor because the reader opens one handle per column.
type bytesFile struct {
	*bytes.Reader
	data []byte
}

func newBytesFile(b []byte) *bytesFile {
	return &bytesFile{Reader: bytes.NewReader(b), data: b}
}

func (f *bytesFile) Open(string) (source.ParquetFile, error) { return newBytesFile(f.data), nil }

func (f *bytesFile) Create(string) (source.ParquetFile, error) { return nil, errReadOnly }

func (f *bytesFile) Write([]byte) (int, error) { return 0, errReadOnly }

func (f *bytesFile) Close() error { return nil }
