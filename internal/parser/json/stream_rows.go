// Package json turns a JSON document into a dataset.Table.
//
// Accepted shapes:
//   - a root array of objects, streamed element by element
//   - a root object holding an array-of-objects field (envelope); the first
//     such field supplies the records
//   - a single root object, which becomes one record
//   - newline-delimited objects, alone or trailing any of the above
//
// Nested objects are flattened with "." separated keys. Arrays of scalars are
// joined with Options.ArraySeparator. Columns appear in first-seen key order.
package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rodrigobaldaia/data-onboarding/internal/dataset"
)

// Options control a parse.
type Options struct {
	// PreviewRowLimit caps materialized rows; zero means 1000, negative no cap.
	PreviewRowLimit int
	// ArraySeparator joins arrays of scalars. Defaults to ",".
	ArraySeparator string
}

// object is a decoded JSON object that remembers key order.
type object struct {
	keys []string
	vals map[string]any
}

func (o *object) set(k string, v any) {
	if _, ok := o.vals[k]; !ok {
		o.keys = append(o.keys, k)
	}
	o.vals[k] = v
}

func newObject() *object { return &object{vals: map[string]any{}} }

type builder struct {
	opt     Options
	limit   int
	columns []string
	seen    map[string]int
	rows    []*object
	t       dataset.Table
}

func (b *builder) emit(o *object) {
	b.t.TotalRows++
	flat := newObject()
	flatten("", o, flat, b.opt.ArraySeparator)
	for _, k := range flat.keys {
		if _, ok := b.seen[k]; !ok {
			b.seen[k] = len(b.columns)
			b.columns = append(b.columns, k)
		}
	}
	if b.limit >= 0 && len(b.rows) >= b.limit {
		b.t.Warnings.TruncatedPreview = true
		return
	}
	b.rows = append(b.rows, flat)
}

func (b *builder) skip() {
	b.t.Warnings.SkippedRowCount++
	b.t.Warnings.MalformedRowCount++
}

func (b *builder) table() dataset.Table {
	b.t.Header = dataset.ColumnNames(b.columns, len(b.columns))
	b.t.Rows = make([][]*string, len(b.rows))
	for i, o := range b.rows {
		row := make([]*string, len(b.columns))
		for _, k := range o.keys {
			if s, ok := o.vals[k].(*string); ok {
				row[b.seen[k]] = s
			}
		}
		b.t.Rows[i] = row
	}
	return b.t
}

// Parse reads a JSON document from r.
func Parse(ctx context.Context, r io.Reader, opt Options) (dataset.Table, error) {
	if opt.ArraySeparator == "" {
		opt.ArraySeparator = ","
	}
	b := &builder{opt: opt, limit: opt.PreviewRowLimit, seen: map[string]int{}}
	if b.limit == 0 {
		b.limit = 1000
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err == io.EOF {
		return b.table(), nil
	}
	if err != nil {
		return dataset.Table{}, fmt.Errorf("json: read first token: %w", err)
	}

	switch tok {
	case json.Delim('['):
		if err := streamArrayOfObjects(ctx, dec, b); err != nil {
			return dataset.Table{}, err
		}
		if err := expectDelim(dec, ']'); err != nil {
			return dataset.Table{}, err
		}
	case json.Delim('{'):
		root, err := materializeObject(dec)
		if err != nil {
			return dataset.Table{}, err
		}
		if recs, ok := envelopeRecords(root); ok {
			for _, rec := range recs {
				if err := ctx.Err(); err != nil {
					return dataset.Table{}, err
				}
				if rec == nil {
					b.skip()
					continue
				}
				b.emit(rec)
			}
		} else {
			b.emit(root)
		}
	default:
		return dataset.Table{}, fmt.Errorf("json: unsupported root token %v (want object or array)", tok)
	}

	if err := streamTrailingObjects(ctx, dec, b); err != nil {
		return dataset.Table{}, err
	}
	return b.table(), nil
}

// streamArrayOfObjects consumes elements of an array whose '[' was already
// read. Non-object elements are skipped and counted.
func streamArrayOfObjects(ctx context.Context, dec *json.Decoder, b *builder) error {
	for dec.More() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("json: decode array element: %w", err)
		}
		if tok == json.Delim('{') {
			o, err := materializeObject(dec)
			if err != nil {
				return err
			}
			b.emit(o)
			continue
		}
		if err := skipValueFromFirstToken(dec, tok); err != nil {
			return err
		}
		if tok != nil {
			b.skip()
		}
	}
	return nil
}

func streamTrailingObjects(ctx context.Context, dec *json.Decoder, b *builder) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("json: decode trailing object: %w", err)
		}
		if tok != json.Delim('{') {
			if err := skipValueFromFirstToken(dec, tok); err != nil {
				return err
			}
			b.skip()
			continue
		}
		o, err := materializeObject(dec)
		if err != nil {
			return err
		}
		b.emit(o)
	}
}

// envelopeRecords returns the first non-empty field of root whose value is
// an array of objects. Null elements are kept as nil entries.
func envelopeRecords(root *object) ([]*object, bool) {
	for _, k := range root.keys {
		arr, ok := root.vals[k].([]any)
		if !ok || len(arr) == 0 {
			continue
		}
		recs := make([]*object, 0, len(arr))
		objects := 0
		for _, it := range arr {
			if it == nil {
				recs = append(recs, nil)
				continue
			}
			o, ok := it.(*object)
			if !ok {
				break
			}
			recs = append(recs, o)
			objects++
		}
		if objects > 0 && len(recs) == len(arr) {
			return recs, true
		}
	}
	return nil, false
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	end, err := dec.Token()
	if err != nil {
		return fmt.Errorf("json: read %q: %w", want, err)
	}
	if end != want {
		return fmt.Errorf("json: expected %q, got %v", want, end)
	}
	return nil
}

// materializeObject reads an object whose '{' was already consumed.
func materializeObject(dec *json.Decoder) (*object, error) {
	o := newObject()
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("json: read object key: %w", err)
		}
		k, ok := kt.(string)
		if !ok {
			return nil, fmt.Errorf("json: object key not string (got %T)", kt)
		}
		vt, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("json: read object value token: %w", err)
		}
		v, err := materializeValueFromFirstToken(dec, vt)
		if err != nil {
			return nil, err
		}
		o.set(k, v)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return o, nil
}

// materializeValueFromFirstToken builds a value given its first token.
// Objects become *object, arrays []any, scalars stay as decoded.
func materializeValueFromFirstToken(dec *json.Decoder, tok json.Token) (any, error) {
	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch d {
	case '{':
		return materializeObject(dec)
	case '[':
		arr := []any{}
		for dec.More() {
			vt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read array value token: %w", err)
			}
			v, err := materializeValueFromFirstToken(dec, vt)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if err := expectDelim(dec, ']'); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("json: unexpected delimiter %q", d)
	}
}

func skipValueFromFirstToken(dec *json.Decoder, tok json.Token) error {
	_, err := materializeValueFromFirstToken(dec, tok)
	return err
}

// flatten writes o into out as "a.b" keyed *string cells (nil for null).
func flatten(prefix string, o *object, out *object, sep string) {
	for _, k := range o.keys {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch v := o.vals[k].(type) {
		case *object:
			if len(v.keys) == 0 {
				out.set(key, (*string)(nil))
				continue
			}
			flatten(key, v, out, sep)
		default:
			out.set(key, scalarCell(v, sep))
		}
	}
}

var errNotScalar = errors.New("not scalar")

// scalarCell renders a JSON value as a preview cell.
func scalarCell(v any, sep string) *string {
	if v == nil {
		return nil
	}
	if s, err := scalarString(v); err == nil {
		return &s
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	parts := make([]string, 0, len(arr))
	for _, it := range arr {
		if it == nil {
			continue
		}
		s, err := scalarString(it)
		if err != nil {
			// Arrays holding objects or arrays keep their JSON text.
			b, merr := json.Marshal(plain(v))
			if merr != nil {
				return nil
			}
			js := string(b)
			return &js
		}
		parts = append(parts, s)
	}
	s := strings.Join(parts, sep)
	return &s
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		if t {
			return "true", nil
		}
		return "false", nil
	default:
		return "", errNotScalar
	}
}

// plain converts ordered objects back to maps for re-encoding.
func plain(v any) any {
	switch t := v.(type) {
	case *object:
		m := make(map[string]any, len(t.keys))
		for _, k := range t.keys {
			m[k] = plain(t.vals[k])
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, it := range t {
			out[i] = plain(it)
		}
		return out
	default:
		return v
	}
}
