// Package infer assigns a logical type to a column from a bounded sample of
// its raw cell values.
//
// Inference is a pure function of the sampled values. The precedence is
// Boolean, Integer, Float, Date, Text: the first type every sampled value
// satisfies wins. A column with no non-null sample is Null.
package infer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rodrigobaldaia/data-onboarding/internal/dataset"
)

// DefaultSampleSize is the number of non-null values examined per column.
const DefaultSampleSize = 1000

// ErrTypeMismatch is returned by Coerce when a value does not fit a type.
var ErrTypeMismatch = errors.New("type mismatch")

// Options tune inference.
type Options struct {
	// SampleSize caps non-null values examined per column.
	SampleSize int
	// Workers bounds concurrent column inference. Zero means GOMAXPROCS.
	Workers int
}

func (o Options) sampleSize() int {
	if o.SampleSize <= 0 {
		return DefaultSampleSize
	}
	return o.SampleSize
}

// Result is the inference outcome for one column.
type Result struct {
	Type dataset.ColumnType
	// SampleSize counts values examined, nulls included.
	SampleSize     int
	Nulls          int
	SampleNullRate float64
	DateLayout     string
}

var (
	reInteger = regexp.MustCompile(`^-?\d+$`)
	reFloat   = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)
)

// DateLayouts are tried in order; a Date column must match one layout for
// every sampled value.
var DateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02",
	"02.01.2006",
	"02.01.2006 15:04:05",
	"02/01/2006",
	"01/02/2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"Jan 2, 2006",
	time.RFC1123,
}

// Infer infers the type of one column. Values are examined in order until
// SampleSize non-null values have been seen; nil and whitespace-only cells
// count as null.
func Infer(values []*string, opt Options) Result {
	limit := opt.sampleSize()

	var (
		res     Result
		nonNull int

		allBool  = true
		allInt   = true
		allFloat = true
		// layouts still matching every value seen so far
		layouts = append([]string(nil), DateLayouts...)
	)

	for _, p := range values {
		if nonNull >= limit {
			break
		}
		res.SampleSize++
		if p == nil {
			res.Nulls++
			continue
		}
		v := strings.TrimSpace(*p)
		if v == "" {
			res.Nulls++
			continue
		}
		nonNull++

		if allBool {
			if _, ok := ParseBool(v); !ok {
				allBool = false
			}
		}
		if allInt && !reInteger.MatchString(v) {
			allInt = false
		}
		if allFloat && !reFloat.MatchString(v) {
			allFloat = false
		}
		if len(layouts) > 0 {
			layouts = matchingLayouts(layouts, v)
		}
	}

	if res.SampleSize > 0 {
		res.SampleNullRate = float64(res.Nulls) / float64(res.SampleSize)
	}

	switch {
	case nonNull == 0:
		res.Type = dataset.Null
	case allBool:
		res.Type = dataset.Boolean
	case allInt:
		res.Type = dataset.Integer
	case allFloat:
		res.Type = dataset.Float
	case len(layouts) > 0:
		res.Type = dataset.Date
		res.DateLayout = layouts[0]
	default:
		res.Type = dataset.Text
	}
	return res
}

// matchingLayouts filters in place, keeping the layouts that parse v.
func matchingLayouts(layouts []string, v string) []string {
	out := layouts[:0]
	for _, lay := range layouts {
		if _, err := time.Parse(lay, v); err == nil {
			out = append(out, lay)
		}
	}
	return out
}

// ParseBool accepts true/false, yes/no and 1/0, case-insensitively.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		return true, true
	case "false", "no", "0":
		return false, true
	default:
		return false, false
	}
}

// ParseDate tries layout first (when set) and then DateLayouts.
func ParseDate(s, layout string) (time.Time, string, bool) {
	s = strings.TrimSpace(s)
	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t, layout, true
		}
	}
	for _, lay := range DateLayouts {
		if t, err := time.Parse(lay, s); err == nil {
			return t, lay, true
		}
	}
	return time.Time{}, "", false
}

// Coerce converts a raw value to the Go value for t: bool, int64, float64,
// time.Time or string. Null coerces as Text.
func Coerce(value string, t dataset.ColumnType, dateLayout string) (any, error) {
	v := strings.TrimSpace(value)
	switch t.Coercion() {
	case dataset.Boolean:
		if b, ok := ParseBool(v); ok {
			return b, nil
		}
	case dataset.Integer:
		if reInteger.MatchString(v) {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q overflows integer", ErrTypeMismatch, value)
			}
			return n, nil
		}
	case dataset.Float:
		if reFloat.MatchString(v) {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrTypeMismatch, value, err)
			}
			return f, nil
		}
	case dataset.Date:
		if tm, _, ok := ParseDate(v, dateLayout); ok {
			return tm, nil
		}
	default:
		return value, nil
	}
	return nil, fmt.Errorf("%w: %q is not %s", ErrTypeMismatch, value, t)
}

// Validate reports whether value coerces to t.
func Validate(value string, t dataset.ColumnType) bool {
	_, err := Coerce(value, t, "")
	return err == nil
}

// Check validates a user-chosen type against a column's first SampleSize
// non-null values. For Date it returns the first layout every value
// parses with. Null is accepted only for a column without values.
func Check(values []*string, t dataset.ColumnType, opt Options) (string, error) {
	limit := opt.sampleSize()
	var sample []string
	for _, p := range values {
		if len(sample) >= limit {
			break
		}
		if p == nil || strings.TrimSpace(*p) == "" {
			continue
		}
		sample = append(sample, *p)
	}

	switch t {
	case dataset.Null:
		if len(sample) > 0 {
			return "", fmt.Errorf("%w: column has values", ErrTypeMismatch)
		}
		return "", nil
	case dataset.Date:
		layouts := append([]string(nil), DateLayouts...)
		for _, v := range sample {
			if layouts = matchingLayouts(layouts, strings.TrimSpace(v)); len(layouts) == 0 {
				return "", fmt.Errorf("%w: %q is not a date in a shared layout", ErrTypeMismatch, v)
			}
		}
		if len(sample) == 0 {
			return DateLayouts[0], nil
		}
		return layouts[0], nil
	}
	for _, v := range sample {
		if _, err := Coerce(v, t, ""); err != nil {
			return "", err
		}
	}
	return "", nil
}

// Columns infers every column of tbl concurrently. The result is in column
// order and carries normalized keys.
func Columns(ctx context.Context, tbl dataset.Table, opt Options) ([]dataset.Column, error) {
	cols := make([]dataset.Column, len(tbl.Header))
	keys := dataset.Keys(tbl.Header)

	workers := opt.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range tbl.Header {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := Infer(tbl.ColumnValues(i), opt)
			cols[i] = dataset.Column{
				Name:           tbl.Header[i],
				Key:            keys[i],
				Index:          i,
				InferredType:   r.Type,
				SampleNullRate: r.SampleNullRate,
				DateLayout:     r.DateLayout,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cols, nil
}
