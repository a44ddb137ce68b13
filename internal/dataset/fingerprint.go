package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Fingerprint returns a stable SHA-256 hex digest of everything observable in
// a preview: columns with their inferred types, every cell, row counts,
// format, delimiter, encoding and warnings. Two runs of the pipeline over the
// same input and settings produce the same fingerprint.
//
// Canonical form:
//   - components are separated by ASCII Unit Separator (0x1f)
//   - rows are separated by ASCII Record Separator (0x1e)
//   - a null cell is a single NUL byte so null differs from ""
func (p *Preview) Fingerprint() string {
	if p == nil {
		return ""
	}
	const (
		sep    = '\x1f'
		rowSep = '\x1e'
	)

	var b strings.Builder
	b.Grow(64 + len(p.Columns)*24 + len(p.Rows)*len(p.Columns)*8)

	b.WriteString(p.Format.String())
	b.WriteByte(sep)
	b.WriteString(strconv.QuoteRune(p.Delimiter))
	b.WriteByte(sep)
	b.WriteString(p.Encoding)
	b.WriteByte(sep)
	b.WriteString(strconv.FormatBool(p.HeaderRowUsed))
	b.WriteByte(sep)
	b.WriteString(strconv.Itoa(p.TotalRowCountEstimate))
	b.WriteByte(sep)
	b.WriteString(strconv.FormatBool(p.RowCountIsLowerBound))
	b.WriteByte(rowSep)

	for _, c := range p.Columns {
		b.WriteString(c.Name)
		b.WriteByte('=')
		b.WriteString(c.InferredType.String())
		b.WriteByte('/')
		b.WriteString(strconv.FormatFloat(c.SampleNullRate, 'g', -1, 64))
		b.WriteByte('/')
		b.WriteString(c.DateLayout)
		b.WriteByte(sep)
	}
	b.WriteByte(rowSep)

	for _, row := range p.Rows {
		for i, v := range row {
			if i > 0 {
				b.WriteByte(sep)
			}
			if v == nil {
				b.WriteByte('\x00')
				continue
			}
			b.WriteString(*v)
		}
		b.WriteByte(rowSep)
	}

	w := p.Warnings
	for _, n := range []int{w.MalformedRowCount, w.PaddedRowCount, w.TruncatedRowCount, w.SkippedRowCount} {
		b.WriteString(strconv.Itoa(n))
		b.WriteByte(sep)
	}
	b.WriteString(strconv.FormatBool(w.ReplacementChars))
	b.WriteString(strconv.FormatBool(w.TruncatedPreview))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
