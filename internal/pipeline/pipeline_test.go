package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rodrigobaldaia/data-onboarding/internal/dataset"
	"github.com/rodrigobaldaia/data-onboarding/internal/sniff"
)

func cells(row []*string) []any {
	out := make([]any, len(row))
	for i, v := range row {
		if v != nil {
			out[i] = *v
		}
	}
	return out
}

func types(p *dataset.Preview) []dataset.ColumnType {
	out := make([]dataset.ColumnType, len(p.Columns))
	for i, c := range p.Columns {
		out[i] = c.InferredType
	}
	return out
}

//
// Run
//

func TestRunSemicolonScenario(t *testing.T) {
	t.Parallel()

	res, err := Run(context.Background(), Capture([]byte("a;b;c\n1;2;3\n4;5;6\n"), "", "data.csv"), DefaultSettings())
	require.NoError(t, err)

	p := res.Preview
	require.Equal(t, []string{"a", "b", "c"}, p.ColumnNames())
	require.Equal(t, []dataset.ColumnType{dataset.Integer, dataset.Integer, dataset.Integer}, types(p))
	require.Equal(t, 2, p.TotalRowCountEstimate)
	require.Equal(t, ';', p.Delimiter)
	require.True(t, p.HeaderRowUsed)
	require.Equal(t, dataset.FormatDelimited, p.Format)
	require.Equal(t, "UTF-8", p.Encoding)
	require.True(t, p.Warnings.Empty())
}

func TestRunRaggedRows(t *testing.T) {
	t.Parallel()

	res, err := Run(context.Background(), Capture([]byte("a,b\n1,2,3\n4\n"), "", "ragged.csv"), DefaultSettings())
	require.NoError(t, err)

	p := res.Preview
	require.Equal(t, []string{"a", "b"}, p.ColumnNames())
	require.Len(t, p.Rows, 2)
	require.Equal(t, []any{"1", "2"}, cells(p.Rows[0]))
	require.Equal(t, []any{"4", nil}, cells(p.Rows[1]))
	require.Equal(t, 2, p.Warnings.MalformedRowCount)
	require.Equal(t, 1, p.Warnings.TruncatedRowCount)
	require.Equal(t, 1, p.Warnings.PaddedRowCount)
	for i, row := range p.Rows {
		if len(row) != len(p.Columns) {
			t.Fatalf("row %d has %d cells, want %d", i, len(row), len(p.Columns))
		}
	}
}

func TestRunIdempotent(t *testing.T) {
	t.Parallel()

	raw := Capture([]byte("id,name,joined,active\n1,Ana,2024-01-02,yes\n2,,2024-02-03,no\n3,Rui,,yes\n"), "", "people.csv")
	first, err := Run(context.Background(), raw, DefaultSettings())
	require.NoError(t, err)
	second, err := Run(context.Background(), raw, DefaultSettings())
	require.NoError(t, err)
	require.Equal(t, first.Preview.Fingerprint(), second.Preview.Fingerprint())

	again, err := Analyze(context.Background(), first.Decoded, raw.SourceName, DefaultSettings())
	require.NoError(t, err)
	require.Equal(t, first.Preview.Fingerprint(), again.Preview.Fingerprint())
	require.True(t, reflect.DeepEqual(first.Preview, again.Preview))

	require.Equal(t,
		[]dataset.ColumnType{dataset.Integer, dataset.Text, dataset.Date, dataset.Boolean},
		types(first.Preview))
}

func TestRunEmptyInput(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   \n\t\n"} {
		_, err := Run(context.Background(), Capture([]byte(in), "", "empty.csv"), DefaultSettings())
		if !errors.Is(err, sniff.ErrUnrecognizedFormat) {
			t.Fatalf("Run(%q) err = %v, want ErrUnrecognizedFormat", in, err)
		}
	}
}

func TestRunLatin1Fallback(t *testing.T) {
	t.Parallel()

	res, err := Run(context.Background(), Capture([]byte("city\ncaf\xe9\n"), "", "cities.csv"), DefaultSettings())
	require.NoError(t, err)
	require.Equal(t, "ISO-8859-1", res.Preview.Encoding)
	require.Equal(t, []any{"café"}, cells(res.Preview.Rows[0]))
	require.False(t, res.Preview.Warnings.ReplacementChars)
}

func TestRunDeclaredEncodingFailure(t *testing.T) {
	t.Parallel()

	res, err := Run(context.Background(), Capture([]byte("a\n\xff\xfe\xfd\n"), "us-ascii", "bad.csv"), DefaultSettings())
	require.NoError(t, err)
	require.True(t, res.Preview.Warnings.ReplacementChars)
	require.Error(t, res.Decoded.Err)
}

func TestRunSettings(t *testing.T) {
	t.Parallel()

	raw := Capture([]byte("1|2\n3|4\n"), "", "nums.txt")

	s := DefaultSettings()
	s.HeaderPolicy = dataset.NoHeader
	res, err := Run(context.Background(), raw, s)
	require.NoError(t, err)
	require.Equal(t, []string{"Column_1", "Column_2"}, res.Preview.ColumnNames())
	require.Equal(t, 2, res.Preview.TotalRowCountEstimate)
	require.False(t, res.Preview.HeaderRowUsed)

	s.Delimiter = ','
	res, err = Run(context.Background(), raw, s)
	require.NoError(t, err)
	require.Equal(t, ',', res.Preview.Delimiter)
	require.Equal(t, []string{"Column_1"}, res.Preview.ColumnNames())
	require.Equal(t, []any{"1|2"}, cells(res.Preview.Rows[0]))
}

func TestRunPreviewLimitAndScanBound(t *testing.T) {
	t.Parallel()

	raw := Capture([]byte("n\n1\n2\n3\n4\n5\n"), "", "n.csv")
	s := DefaultSettings()
	s.PreviewRowLimit = 2
	res, err := Run(context.Background(), raw, s)
	require.NoError(t, err)
	require.Len(t, res.Preview.Rows, 2)
	require.Equal(t, 5, res.Preview.TotalRowCountEstimate)
	require.True(t, res.Preview.Warnings.TruncatedPreview)
	require.False(t, res.Preview.RowCountIsLowerBound)

	s.MaxScanRows = 3
	res, err = Run(context.Background(), raw, s)
	require.NoError(t, err)
	require.Equal(t, 3, res.Preview.TotalRowCountEstimate)
	require.True(t, res.Preview.RowCountIsLowerBound)
}

func TestRunOtherFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		source  string
		in      string
		format  dataset.Format
		columns []string
		types   []dataset.ColumnType
	}{
		{
			name:    "json",
			source:  "rows.json",
			in:      `[{"id":1,"ok":true,"price":"2.5"},{"id":2,"ok":false,"price":"3"}]`,
			format:  dataset.FormatJSON,
			columns: []string{"id", "ok", "price"},
			types:   []dataset.ColumnType{dataset.Integer, dataset.Boolean, dataset.Float},
		},
		{
			name:    "xml",
			source:  "rows.xml",
			in:      `<rows><row id="1"><when>2024-05-01</when></row><row id="2"><when>2024-05-02</when></row></rows>`,
			format:  dataset.FormatXML,
			columns: []string{"@id", "when"},
			types:   []dataset.ColumnType{dataset.Integer, dataset.Date},
		},
		{
			name:    "html",
			source:  "page.html",
			in:      `<html><body><table><tr><th>k</th><th>v</th></tr><tr><td>a</td><td>1.5</td></tr></table></body></html>`,
			format:  dataset.FormatHTML,
			columns: []string{"k", "v"},
			types:   []dataset.ColumnType{dataset.Text, dataset.Float},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := Run(context.Background(), Capture([]byte(tt.in), "", tt.source), DefaultSettings())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Preview.Format != tt.format {
				t.Fatalf("Format = %v, want %v", res.Preview.Format, tt.format)
			}
			if got := res.Preview.ColumnNames(); !reflect.DeepEqual(got, tt.columns) {
				t.Fatalf("columns = %q, want %q", got, tt.columns)
			}
			if got := types(res.Preview); !reflect.DeepEqual(got, tt.types) {
				t.Fatalf("types = %v, want %v", got, tt.types)
			}
			if res.Preview.Delimiter != 0 {
				t.Fatalf("Delimiter = %q, want none", res.Preview.Delimiter)
			}
		})
	}
}

// TestRunAngleBracketCSV verifies a delimited file whose first header cell
// starts with '<' still previews as delimited.
func TestRunAngleBracketCSV(t *testing.T) {
	t.Parallel()

	for _, source := range []string{"people.csv", ""} {
		res, err := Run(context.Background(), Capture([]byte("<id>,name\n1,ann\n2,bob\n"), "", source), DefaultSettings())
		require.NoError(t, err, source)
		require.Equal(t, dataset.FormatDelimited, res.Preview.Format, source)
		require.Equal(t, []string{"<id>", "name"}, res.Preview.ColumnNames(), source)
		require.Len(t, res.Preview.Rows, 2, source)
	}
}

func TestRunUnsupportedBinary(t *testing.T) {
	t.Parallel()

	for _, in := range [][]byte{
		[]byte("PK\x03\x04\x14\x00\x00\x00"),
		{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0x00},
		[]byte("a,b\n\x00\x01\n"),
	} {
		_, err := Run(context.Background(), Capture(in, "", "upload"), DefaultSettings())
		if !errors.Is(err, sniff.ErrUnsupportedFormat) {
			t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
		}
	}
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, Capture([]byte("a\n1\n"), "", "a.csv"), DefaultSettings())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestCaptureCopies(t *testing.T) {
	t.Parallel()

	b := []byte("a\n1\n")
	raw := Capture(b, "", "a.csv")
	b[2] = '9'
	if string(raw.Bytes) != "a\n1\n" {
		t.Fatalf("captured bytes changed: %q", raw.Bytes)
	}
}
