package parquet

import (
	"bytes"
	"context"
	"reflect"
	"testing"

	"github.com/xitongsys/parquet-go-source/writerfile"
	pq "github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

const schema = `{
  "Tag": "name=parquet_go_root, repetitiontype=REQUIRED",
  "Fields": [
    {"Tag": "name=name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"},
    {"Tag": "name=age, type=INT64, repetitiontype=OPTIONAL"},
    {"Tag": "name=score, type=DOUBLE, repetitiontype=OPTIONAL"}
  ]
}`

func fixture(t *testing.T, rows []string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewJSONWriter(schema, pfw, 1)
	if err != nil {
		t.Fatalf("NewJSONWriter: %v", err)
	}
	pw.CompressionType = pq.CompressionCodec_SNAPPY
	for _, r := range rows {
		if err := pw.Write(r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		t.Fatalf("WriteStop: %v", err)
	}
	_ = pfw.Close()
	return buf.Bytes()
}

func values(row []*string) []any {
	out := make([]any, len(row))
	for i, v := range row {
		if v != nil {
			out[i] = *v
		}
	}
	return out
}

//
// Parse
//

func TestParseColumnsAndNulls(t *testing.T) {
	t.Parallel()

	b := fixture(t, []string{
		`{"name":"Ana","age":31,"score":1.5}`,
		`{"name":"Rui","age":40,"score":null}`,
		`{"name":null,"age":22,"score":2}`,
	})
	tbl, err := Parse(context.Background(), b, Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(tbl.Header, []string{"name", "age", "score"}) {
		t.Fatalf("Header = %q", tbl.Header)
	}
	want := [][]any{
		{"Ana", "31", "1.5"},
		{"Rui", "40", nil},
		{nil, "22", "2"},
	}
	if len(tbl.Rows) != len(want) {
		t.Fatalf("rows = %d, want %d", len(tbl.Rows), len(want))
	}
	for i, w := range want {
		if got := values(tbl.Rows[i]); !reflect.DeepEqual(got, w) {
			t.Fatalf("row %d = %v, want %v", i, got, w)
		}
	}
	if tbl.TotalRows != 3 || tbl.RowCountIsLowerBound {
		t.Fatalf("TotalRows = %d lowerBound = %v", tbl.TotalRows, tbl.RowCountIsLowerBound)
	}
}

func TestParsePreviewLimit(t *testing.T) {
	t.Parallel()

	rows := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		rows = append(rows, `{"name":"x","age":1,"score":0.5}`)
	}
	tbl, err := Parse(context.Background(), fixture(t, rows), Options{PreviewRowLimit: 2})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tbl.Rows) != 2 || tbl.TotalRows != 5 || !tbl.Warnings.TruncatedPreview {
		t.Fatalf("rows = %d total = %d warnings = %+v", len(tbl.Rows), tbl.TotalRows, tbl.Warnings)
	}
}

func TestParseCorrupt(t *testing.T) {
	t.Parallel()

	if _, err := Parse(context.Background(), []byte("PAR1 not really parquet PAR1"), Options{}); err == nil {
		t.Fatalf("expected error for corrupt input")
	}
}
