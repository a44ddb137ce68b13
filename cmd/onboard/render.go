package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rodrigobaldaia/data-onboarding/internal/dataset"
	"github.com/rodrigobaldaia/data-onboarding/internal/storage"
)

const nullCell = "NULL"

// renderPreview prints a summary line, the warnings, and up to maxRows rows
// as an aligned table.
func renderPreview(w io.Writer, name string, p *dataset.Preview, maxRows int) error {
	rows := strconv.Itoa(p.TotalRowCountEstimate)
	if p.RowCountIsLowerBound {
		rows = ">=" + rows
	}
	fmt.Fprintf(w, "%s: format=%s encoding=%s", name, p.Format, p.Encoding)
	if p.Format == dataset.FormatDelimited {
		fmt.Fprintf(w, " delimiter=%s", strconv.QuoteRune(p.Delimiter))
	}
	fmt.Fprintf(w, " header=%t rows=%s\n", p.HeaderRowUsed, rows)

	if warn := warningText(p.Warnings); warn != "" {
		fmt.Fprintf(w, "warnings: %s\n", warn)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	head := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		head[i] = fmt.Sprintf("%s (%s)", c.Name, c.InferredType)
	}
	fmt.Fprintln(tw, strings.Join(head, "\t"))

	for r, row := range p.Rows {
		if r == maxRows {
			break
		}
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = nullCell
				continue
			}
			cells[i] = strings.NewReplacer("\t", " ", "\n", " ").Replace(*v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(p.Rows) > maxRows {
		fmt.Fprintf(w, "... %d more rows in preview\n", len(p.Rows)-maxRows)
	}
	return nil
}

func warningText(w dataset.Warnings) string {
	var parts []string
	add := func(n int, what string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, what))
		}
	}
	add(w.MalformedRowCount, "malformed rows")
	add(w.PaddedRowCount, "padded")
	add(w.TruncatedRowCount, "truncated")
	add(w.SkippedRowCount, "skipped")
	if w.ReplacementChars {
		parts = append(parts, "undecodable bytes replaced")
	}
	if w.TruncatedPreview {
		parts = append(parts, "preview truncated")
	}
	return strings.Join(parts, ", ")
}

func renderRecords(w io.Writer, recs []storage.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tCREATED\tSOURCE")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Kind, r.CreatedAt.Format(time.RFC3339), r.SourceName)
	}
	return tw.Flush()
}
