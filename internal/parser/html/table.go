// Package html extracts a <table> from an HTML page into a dataset.Table.
package html

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rodrigobaldaia/data-onboarding/internal/dataset"
)

// ErrNoTable is returned when the selector matches no table.
var ErrNoTable = errors.New("html: no table found")

// maxColspan bounds colspan expansion of a single cell.
const maxColspan = 1000

// Options control table extraction.
type Options struct {
	// Selector picks the table; the first match is used. Defaults to "table".
	Selector string
	Header   dataset.HeaderPolicy
	// PreviewRowLimit caps materialized rows; zero means 1000, negative no cap.
	PreviewRowLimit int
}

// Parse extracts the first table matching opt.Selector. Rows are aligned the
// same way the delimited parser aligns them: short rows are padded, long rows
// truncated, and both are counted.
func Parse(r io.Reader, opt Options) (dataset.Table, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return dataset.Table{}, fmt.Errorf("parse html: %w", err)
	}

	sel := opt.Selector
	if strings.TrimSpace(sel) == "" {
		sel = "table"
	}
	table := doc.Find(sel).First()
	if table.Length() == 0 {
		return dataset.Table{}, ErrNoTable
	}

	var raw [][]string
	// Nested tables belong to their own cells, so only direct rows count.
	table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.Closest("table").IsSelection(table)
	}).Each(func(_ int, tr *goquery.Selection) {
		var rec []string
		tr.ChildrenFiltered("th,td").Each(func(_ int, cell *goquery.Selection) {
			text := strings.Join(strings.Fields(cell.Text()), " ")
			span := 1
			if v, ok := cell.Attr("colspan"); ok {
				if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 1 {
					span = n
				}
			}
			if span > maxColspan {
				span = maxColspan
			}
			for i := 0; i < span; i++ {
				rec = append(rec, text)
			}
		})
		if len(rec) > 0 {
			raw = append(raw, rec)
		}
	})

	return align(raw, opt), nil
}

func align(raw [][]string, opt Options) dataset.Table {
	var t dataset.Table
	if len(raw) == 0 {
		return t
	}

	width := 0
	body := raw
	if opt.Header == dataset.FirstRowIsHeader {
		t.Header = dataset.ColumnNames(raw[0], len(raw[0]))
		t.HeaderRowUsed = true
		width = len(raw[0])
		body = raw[1:]
	} else {
		for _, r := range raw {
			if len(r) > width {
				width = len(r)
			}
		}
		t.Header = dataset.GeneratedNames(width)
	}

	limit := opt.PreviewRowLimit
	if limit == 0 {
		limit = 1000
	}
	for _, rec := range body {
		t.TotalRows++
		switch {
		case len(rec) < width:
			t.Warnings.PaddedRowCount++
			t.Warnings.MalformedRowCount++
		case len(rec) > width:
			t.Warnings.TruncatedRowCount++
			t.Warnings.MalformedRowCount++
		}
		if limit >= 0 && len(t.Rows) >= limit {
			t.Warnings.TruncatedPreview = true
			continue
		}
		row := make([]*string, width)
		for i := 0; i < width && i < len(rec); i++ {
			if rec[i] != "" {
				v := rec[i]
				row[i] = &v
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
