// Package xml turns a record-oriented XML document into a dataset.Table.
//
// The record element is guessed: starting at the root, the most repeated
// child element name is taken, descending through single wrapper elements
// (<export><orders><order/>...</orders></export>). Each record's attributes
// become "@name" columns and its child elements become columns, nested
// children flattened as "parent.child".
package xml

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rodrigobaldaia/data-onboarding/internal/dataset"
)

// ErrNoRecords is returned when the document has no element children.
var ErrNoRecords = errors.New("xml: no record elements")

// Options control a parse.
type Options struct {
	// RecordTag forces the record element name instead of guessing.
	RecordTag string
	// PreviewRowLimit caps materialized rows; zero means 1000, negative no cap.
	PreviewRowLimit int
}

type node struct {
	name     string
	attrs    []xml.Attr
	children []*node
	text     strings.Builder
}

const maxDepth = 64

// Parse reads an XML document from r.
func Parse(ctx context.Context, r io.Reader, opt Options) (dataset.Table, error) {
	root, err := readTree(ctx, r)
	if err != nil {
		return dataset.Table{}, err
	}
	if root == nil {
		return dataset.Table{}, nil
	}

	var records []*node
	if opt.RecordTag != "" {
		records = findAll(root, opt.RecordTag)
	} else {
		records = guessRecords(root)
	}
	if len(records) == 0 {
		return dataset.Table{}, ErrNoRecords
	}

	limit := opt.PreviewRowLimit
	if limit == 0 {
		limit = 1000
	}

	var (
		t       dataset.Table
		columns []string
		index   = map[string]int{}
		rows    []map[string]*string
	)
	for _, rec := range records {
		t.TotalRows++
		fields := map[string]*string{}
		var order []string
		collect("", rec, fields, &order)
		for _, k := range order {
			if _, ok := index[k]; !ok {
				index[k] = len(columns)
				columns = append(columns, k)
			}
		}
		if limit >= 0 && len(rows) >= limit {
			t.Warnings.TruncatedPreview = true
			continue
		}
		rows = append(rows, fields)
	}

	t.Header = dataset.ColumnNames(columns, len(columns))
	t.Rows = make([][]*string, len(rows))
	for i, f := range rows {
		row := make([]*string, len(columns))
		for k, v := range f {
			row[index[k]] = v
		}
		t.Rows[i] = row
	}
	return t, nil
}

func readTree(ctx context.Context, r io.Reader) (*node, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	var (
		root     *node
		stack    []*node
		fragment bool
		n        int
	)
	for {
		n++
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			if root != nil && len(stack) == 0 {
				break
			}
			return nil, fmt.Errorf("xml: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if len(stack) >= maxDepth {
				return nil, fmt.Errorf("xml: nesting deeper than %d", maxDepth)
			}
			nd := &node{name: el.Name.Local, attrs: el.Attr}
			if len(stack) == 0 {
				switch {
				case root == nil:
					root = nd
				case fragment:
					root.children = append(root.children, nd)
				default:
					// A second top-level element: wrap the fragments.
					root = &node{children: []*node{root, nd}}
					fragment = true
				}
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, nd)
			}
			stack = append(stack, nd)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(el)
			}
		}
	}
	return root, nil
}

// guessRecords picks the most repeated child name, descending through
// elements that wrap a single child.
func guessRecords(root *node) []*node {
	cur := root
	for depth := 0; depth < maxDepth; depth++ {
		if len(cur.children) == 0 {
			return nil
		}
		counts := map[string]int{}
		var order []string
		for _, c := range cur.children {
			if counts[c.name] == 0 {
				order = append(order, c.name)
			}
			counts[c.name]++
		}
		best := order[0]
		for _, name := range order[1:] {
			if counts[name] > counts[best] {
				best = name
			}
		}
		picked := make([]*node, 0, counts[best])
		for _, c := range cur.children {
			if c.name == best {
				picked = append(picked, c)
			}
		}
		if len(picked) == 1 && len(picked[0].children) > 0 && hasRepeatedChild(picked[0]) {
			cur = picked[0]
			continue
		}
		return picked
	}
	return nil
}

func hasRepeatedChild(n *node) bool {
	seen := map[string]bool{}
	for _, c := range n.children {
		if seen[c.name] {
			return true
		}
		seen[c.name] = true
	}
	return false
}

func findAll(n *node, name string) []*node {
	var out []*node
	var walk func(*node)
	walk = func(x *node) {
		if x.name == name {
			out = append(out, x)
			return
		}
		for _, c := range x.children {
			walk(c)
		}
	}
	walk(n)
	return out
}

// collect flattens a record into fields; repeated leaves are joined with ",".
func collect(prefix string, n *node, fields map[string]*string, order *[]string) {
	put := func(k, v string) {
		if old, ok := fields[k]; ok {
			if old == nil {
				if v != "" {
					fields[k] = &v
				}
				return
			}
			joined := *old + "," + v
			fields[k] = &joined
			return
		}
		*order = append(*order, k)
		if v == "" {
			fields[k] = nil
			return
		}
		fields[k] = &v
	}
	join := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "." + k
	}

	for _, a := range n.attrs {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		put(join("@"+a.Name.Local), a.Value)
	}
	if prefix == "" && len(n.children) == 0 {
		put("#text", strings.TrimSpace(n.text.String()))
		return
	}
	for _, c := range n.children {
		if len(c.children) == 0 && len(c.attrs) == 0 {
			put(join(c.name), strings.TrimSpace(c.text.String()))
			continue
		}
		if len(c.children) == 0 {
			if txt := strings.TrimSpace(c.text.String()); txt != "" {
				put(join(c.name), txt)
			}
		}
		collect(join(c.name), c, fields, order)
	}
}
