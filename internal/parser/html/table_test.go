package html

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/rodrigobaldaia/data-onboarding/internal/dataset"
)

func values(row []*string) []any {
	out := make([]any, len(row))
	for i, v := range row {
		if v != nil {
			out[i] = *v
		}
	}
	return out
}

const page = `<!doctype html><html><body>
<p>intro</p>
<table id="prices">
  <thead><tr><th>Item</th><th>Price</th><th>Notes</th></tr></thead>
  <tbody>
    <tr><td>Tea</td><td>2.50</td><td>  hot
        drink </td></tr>
    <tr><td colspan="2">Coffee</td><td></td></tr>
    <tr><td>Water</td></tr>
    <tr><td>Cake</td><td>3</td><td>x</td><td>extra</td></tr>
    <tr><td>Box</td><td><table><tr><td>inner</td></tr></table></td><td>y</td></tr>
  </tbody>
</table>
</body></html>`

func TestParseTable(t *testing.T) {
	t.Parallel()

	tbl, err := Parse(strings.NewReader(page), Options{Selector: "#prices"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(tbl.Header, []string{"Item", "Price", "Notes"}) {
		t.Fatalf("Header = %q", tbl.Header)
	}
	want := [][]any{
		{"Tea", "2.50", "hot drink"},
		{"Coffee", "Coffee", nil},
		{"Water", nil, nil},
		{"Cake", "3", "x"},
		{"Box", "inner", "y"},
	}
	if len(tbl.Rows) != len(want) {
		t.Fatalf("rows = %d, want %d", len(tbl.Rows), len(want))
	}
	for i, w := range want {
		if got := values(tbl.Rows[i]); !reflect.DeepEqual(got, w) {
			t.Fatalf("row %d = %v, want %v", i, got, w)
		}
	}
	w := tbl.Warnings
	if w.PaddedRowCount != 1 || w.TruncatedRowCount != 1 || w.MalformedRowCount != 2 {
		t.Fatalf("warnings = %+v", w)
	}
}

func TestParseTableNoHeader(t *testing.T) {
	t.Parallel()

	tbl, err := Parse(strings.NewReader(`<table><tr><td>1</td></tr><tr><td>2</td><td>3</td></tr></table>`),
		Options{Header: dataset.NoHeader})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(tbl.Header, []string{"Column_1", "Column_2"}) || tbl.HeaderRowUsed {
		t.Fatalf("Header = %q used = %v", tbl.Header, tbl.HeaderRowUsed)
	}
	if tbl.TotalRows != 2 {
		t.Fatalf("TotalRows = %d", tbl.TotalRows)
	}
}

func TestParseNoTable(t *testing.T) {
	t.Parallel()

	_, err := Parse(strings.NewReader(`<p>nothing here</p>`), Options{})
	if !errors.Is(err, ErrNoTable) {
		t.Fatalf("err = %v, want ErrNoTable", err)
	}
}
