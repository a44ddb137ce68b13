package sniff

import (
	"errors"
	"strings"
	"testing"

	"github.com/rodrigobaldaia/data-onboarding/internal/dataset"
)

//
// Sniff
//

// TestSniffFormat verifies structural classification with and without an
// extension hint.
//
// A hint is only trusted when the first non-space character agrees with it,
// so a mislabeled CSV named .json still comes back as delimited text.
func TestSniffFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		ext  string
		want dataset.Format
		conf float64
	}{
		{"json hint array", `[{"a":1}]`, ".json", dataset.FormatJSON, 1},
		{"json hint from filename", "\n  {\"a\":1}", "orders.JSON", dataset.FormatJSON, 1},
		{"json hint mismatched opener", "a,b\n1,2\n", ".json", dataset.FormatDelimited, 1},
		{"xml hint", `<?xml version="1.0"?><rows/>`, ".xml", dataset.FormatXML, 1},
		{"html hint", `<table><tr><td>1</td></tr></table>`, "page.html", dataset.FormatHTML, 1},
		{"json by content", `{"items":[{"a":1}]}`, "", dataset.FormatJSON, 0.9},
		{"ndjson by content", "{\"a\":1}\n{\"a\":2}\n", "", dataset.FormatJSON, 0.9},
		{"bracket but not json", "[draft] notes,x\n[final] notes,y\n", "", dataset.FormatDelimited, 1},
		{"xml by content", `<rows><row/></rows>`, "", dataset.FormatXML, 0.8},
		{"html by content", `<!DOCTYPE html><html></html>`, "", dataset.FormatHTML, 0.8},
		{"csv", "a,b\n1,2\n", "data.csv", dataset.FormatDelimited, 1},
		{"csv hint beats angle bracket", "<id>,name\n1,ann\n2,bob\n", "people.csv", dataset.FormatDelimited, 1},
		{"csv hint beats json opener", "[a],b\n[c],d\n", "tags.csv", dataset.FormatDelimited, 1},
		{"txt hint beats valid json", "[1,2]\n", "notes.txt", dataset.FormatDelimited, 1},
		{"malformed xml without hint", "<id>,name\n1,ann\n2,bob\n", "", dataset.FormatDelimited, 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g, err := Sniff(tt.in, tt.ext)
			if err != nil {
				t.Fatalf("Sniff: %v", err)
			}
			if g.Format != tt.want {
				t.Fatalf("Format = %v, want %v", g.Format, tt.want)
			}
			if g.Confidence != tt.conf {
				t.Fatalf("Confidence = %v, want %v", g.Confidence, tt.conf)
			}
		})
	}
}

// TestSniffEmptyInput verifies empty input is an explicit error, not a guess.
func TestSniffEmptyInput(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "\n\r\n\t", "\uFEFF"} {
		g, err := Sniff(in, ".csv")
		if !errors.Is(err, ErrUnrecognizedFormat) {
			t.Fatalf("Sniff(%q) err = %v, want ErrUnrecognizedFormat", in, err)
		}
		if g != (Guess{}) {
			t.Fatalf("Sniff(%q) returned a guess %+v", in, g)
		}
	}
}

func TestSniffTSVHintPrefersTab(t *testing.T) {
	t.Parallel()

	// Tabs and commas are equally consistent; the hint breaks the tie.
	in := "a\tb,c\n1\t2,3\n"
	g, err := Sniff(in, "x.tsv")
	if err != nil {
		t.Fatalf("Sniff: %v", err)
	}
	if g.Delimiter.Delimiter != '\t' {
		t.Fatalf("Delimiter = %q, want tab", g.Delimiter.Delimiter)
	}
	g, _ = Sniff(in, "")
	if g.Delimiter.Delimiter != ',' {
		t.Fatalf("Delimiter without hint = %q, want ','", g.Delimiter.Delimiter)
	}
}

//
// Delimiter
//

// TestDelimiter covers the consistency rule, the 80% presence threshold and
// the tie-break order.
func TestDelimiter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       string
		want     rune
		zeroConf bool
	}{
		{"semicolon", "a;b;c\n1;2;3\n4;5;6\n", ';', false},
		{"comma", "a,b\n1,2\n", ',', false},
		{"tab", "a\tb\n1\t2\n", '\t', false},
		{"pipe", "a|b|c\n1|2|3\n", '|', false},
		{"commas inside text column", "id;note\n1;hello, world\n2;plain\n3;x\n", ';', false},
		{"quoted delimiters ignored", "a,b\n\"x;y;z\",2\n\"p;q\",3\n", ',', false},
		{"tie prefers comma", "a,b;c\n1,2;3\n", ',', false},
		{"tie prefers semicolon over tab", "a;b\tc\n1;2\t3\n", ';', false},
		{"tie prefers tab over pipe", "a\tb|c\n1\t2|3\n", '\t', false},
		{"lower variance wins", "a;b,c\n1;2,3,4\n5;6,7\n", ';', false},
		{"single column falls back", "name\nalice\nbob\n", ',', true},
		{"below threshold falls back", "a;b\nx\ny\nz\nw\n", ',', true},
		{"header only", "a|b|c", '|', false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Delimiter(tt.in)
			if got.Delimiter != tt.want {
				t.Fatalf("Delimiter(%q) = %q, want %q", tt.in, got.Delimiter, tt.want)
			}
			if tt.zeroConf && got.Confidence != 0 {
				t.Fatalf("Confidence = %v, want 0", got.Confidence)
			}
			if !tt.zeroConf && (got.Confidence <= 0 || got.Confidence > 1) {
				t.Fatalf("Confidence = %v, want (0,1]", got.Confidence)
			}
		})
	}
}

func TestDelimiterSamplesOnlyFirstLines(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; i < SampleLines; i++ {
		b.WriteString("a;b\n")
	}
	// Everything after the window is pipe-delimited and must not be seen.
	for i := 0; i < 500; i++ {
		b.WriteString("a|b|c|d\n")
	}
	got := Delimiter(b.String())
	if got.Delimiter != ';' || got.Confidence != 1 {
		t.Fatalf("got %+v, want ';' with confidence 1", got)
	}
}

func TestSampleLinesKeepsQuotedNewlines(t *testing.T) {
	t.Parallel()

	lines := sampleLines("a,b\n\"multi\nline\",2\r\n\n3,4", 10)
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), lines)
	}
	if lines[1] != "\"multi\nline\",2" {
		t.Fatalf("lines[1] = %q", lines[1])
	}
}

//
// SniffBytes
//

func TestSniffBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     []byte
		ext    string
		want   Binary
		binary bool
	}{
		{"parquet", []byte("PAR1\x15\x04"), "", BinaryParquet, true},
		{"xlsx", []byte("PK\x03\x04\x14\x00"), "book.xlsx", BinarySpreadsheet, true},
		{"xls", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0}, "", BinaryLegacySpreadsheet, true},
		{"nul bytes", []byte("abc\x00def"), "", BinaryUnknown, true},
		{"parquet ext without magic", []byte("not really"), ".parquet", BinaryUnknown, true},
		{"utf-16 text", []byte{0xFF, 0xFE, 'a', 0}, "", NotBinary, false},
		{"csv", []byte("a,b\n"), "a.csv", NotBinary, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g, ok := SniffBytes(tt.in, tt.ext)
			if ok != tt.binary || g.Binary != tt.want {
				t.Fatalf("SniffBytes = %+v, %v; want %v, %v", g, ok, tt.want, tt.binary)
			}
			if ok && g.Format != dataset.FormatTabularBinary {
				t.Fatalf("Format = %v", g.Format)
			}
		})
	}
}
