// Package dataset defines the shared, immutable shapes produced by the
// onboarding pipeline: inferred columns, parsed tables and previews.
//
// Values of these types are built once by the pipeline and then only read.
// Callers that need to change a preview build a new one.
package dataset

import (
	"fmt"
	"strings"
)

// ColumnType is the inferred logical type of a column.
type ColumnType int

const (
	Text ColumnType = iota
	Integer
	Float
	Boolean
	Date
	// Null marks a column with no non-null sample values.
	Null
)

var columnTypeNames = [...]string{
	Text:    "text",
	Integer: "integer",
	Float:   "float",
	Boolean: "boolean",
	Date:    "date",
	Null:    "null",
}

func (t ColumnType) String() string {
	if t < 0 || int(t) >= len(columnTypeNames) {
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
	return columnTypeNames[t]
}

// Coercion returns the type downstream coercion should use. A Null column
// has nothing to coerce and is treated as Text.
func (t ColumnType) Coercion() ColumnType {
	if t == Null {
		return Text
	}
	return t
}

// ParseColumnType accepts the lowercase names produced by String plus a few
// common aliases ("int", "bool", "string", ...).
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "string", "varchar":
		return Text, nil
	case "integer", "int", "bigint":
		return Integer, nil
	case "float", "double", "numeric", "decimal":
		return Float, nil
	case "boolean", "bool":
		return Boolean, nil
	case "date", "timestamp", "datetime":
		return Date, nil
	case "null":
		return Null, nil
	default:
		return Text, fmt.Errorf("unknown column type %q", s)
	}
}

func (t ColumnType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *ColumnType) UnmarshalText(b []byte) error {
	v, err := ParseColumnType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// HeaderPolicy says whether the first row of a tabular source names columns.
type HeaderPolicy int

const (
	FirstRowIsHeader HeaderPolicy = iota
	NoHeader
)

func (h HeaderPolicy) String() string {
	if h == NoHeader {
		return "none"
	}
	return "first_row"
}

// ParseHeaderPolicy accepts "first_row" (also "header", "true", "") and
// "none" (also "no_header", "false").
func ParseHeaderPolicy(s string) (HeaderPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first_row", "first-row", "header", "true", "yes":
		return FirstRowIsHeader, nil
	case "none", "no_header", "no-header", "false", "no":
		return NoHeader, nil
	default:
		return FirstRowIsHeader, fmt.Errorf("unknown header policy %q", s)
	}
}

func (h HeaderPolicy) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *HeaderPolicy) UnmarshalText(b []byte) error {
	v, err := ParseHeaderPolicy(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// Format is the structural shape of a source as classified by the sniffer.
type Format int

const (
	FormatUnknown Format = iota
	FormatDelimited
	FormatJSON
	FormatXML
	FormatHTML
	FormatTabularBinary
)

func (f Format) String() string {
	switch f {
	case FormatDelimited:
		return "delimited"
	case FormatJSON:
		return "json"
	case FormatXML:
		return "xml"
	case FormatHTML:
		return "html"
	case FormatTabularBinary:
		return "tabular-binary"
	default:
		return "unknown"
	}
}

func (f Format) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// ParseFormat is the inverse of Format.String. Unknown names map to
// FormatUnknown.
func ParseFormat(s string) Format {
	for f := FormatDelimited; f <= FormatTabularBinary; f++ {
		if f.String() == s {
			return f
		}
	}
	return FormatUnknown
}

func (f *Format) UnmarshalText(b []byte) error {
	*f = ParseFormat(string(b))
	return nil
}

// Column describes one column of a preview.
type Column struct {
	Name string `json:"name"`
	// Key is a lowercase identifier derived from Name, safe for SQL.
	Key            string     `json:"key"`
	Index          int        `json:"index"`
	InferredType   ColumnType `json:"type"`
	SampleNullRate float64    `json:"sample_null_rate"`
	// DateLayout is the Go layout that matched every sampled value of a Date column.
	DateLayout string `json:"date_layout,omitempty"`
}

// Warnings collects per-row and per-input anomalies. None of them fail a parse.
type Warnings struct {
	MalformedRowCount int  `json:"malformed_row_count"`
	PaddedRowCount    int  `json:"padded_row_count"`
	TruncatedRowCount int  `json:"truncated_row_count"`
	SkippedRowCount   int  `json:"skipped_row_count"`
	ReplacementChars  bool `json:"replacement_chars"`
	TruncatedPreview  bool `json:"truncated_preview"`
}

// Empty reports whether no anomaly was recorded.
func (w Warnings) Empty() bool { return w == Warnings{} }

// Table is the raw output of a parser: header names plus rows of nullable
// cells. Every row has exactly len(Header) cells.
type Table struct {
	Header        []string
	HeaderRowUsed bool
	Rows          [][]*string
	// TotalRows counts data rows seen, including rows beyond the preview limit.
	TotalRows            int
	RowCountIsLowerBound bool
	Warnings             Warnings
}

// ColumnValues returns a view of column i across all rows.
func (t Table) ColumnValues(i int) []*string {
	out := make([]*string, len(t.Rows))
	for r, row := range t.Rows {
		if i < len(row) {
			out[r] = row[i]
		}
	}
	return out
}

// Preview is the immutable, inferred view of a tabular source.
type Preview struct {
	Columns               []Column    `json:"columns"`
	Rows                  [][]*string `json:"rows"`
	TotalRowCountEstimate int         `json:"total_row_count_estimate"`
	RowCountIsLowerBound  bool        `json:"row_count_is_lower_bound"`
	HeaderRowUsed         bool        `json:"header_row_used"`
	Format                Format      `json:"format"`
	Delimiter             rune        `json:"delimiter,omitempty"`
	Encoding              string      `json:"encoding"`
	Warnings              Warnings    `json:"warnings"`
}

// ColumnNames returns the column names in order.
func (p *Preview) ColumnNames() []string {
	out := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		out[i] = c.Name
	}
	return out
}

// WithColumnType returns a copy of p with column i retyped. Rows are shared.
func (p *Preview) WithColumnType(i int, t ColumnType) (*Preview, error) {
	if i < 0 || i >= len(p.Columns) {
		return nil, fmt.Errorf("column index %d out of range [0,%d)", i, len(p.Columns))
	}
	cp := *p
	cp.Columns = append([]Column(nil), p.Columns...)
	cp.Columns[i].InferredType = t
	if t != Date {
		cp.Columns[i].DateLayout = ""
	}
	return &cp, nil
}

// Cell is a convenience for building nullable cells.
func Cell(s string) *string { return &s }
