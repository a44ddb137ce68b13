// Package sniff classifies an input as delimited text, JSON, XML, HTML or a
// tabular binary container, and infers the delimiter of delimited text.
//
// Sniffing is bounded: only the first SampleLines logical lines of text and
// the first binaryHeadLen bytes of raw input are ever examined.
package sniff

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/rodrigobaldaia/data-onboarding/internal/dataset"
)

var (
	// ErrUnrecognizedFormat is returned for empty or whitespace-only input.
	ErrUnrecognizedFormat = errors.New("unrecognized format")
	// ErrUnsupportedFormat is returned for recognized containers that cannot
	// be previewed (legacy spreadsheets, unknown binaries).
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// Guess is the sniffer's classification of an input.
type Guess struct {
	Format     dataset.Format
	Binary     Binary
	Delimiter  DelimiterGuess
	Confidence float64
}

// Sniff classifies decoded text. extHint may be an extension (".json") or a
// file name ("orders.json"). Delimited hints (.csv, .tsv, .tab, .txt) are
// always trusted; structured hints only when the first non-space character
// agrees. Without a hint, content must parse as JSON or XML to be classified
// as such; anything else is delimited.
func Sniff(text, extHint string) (Guess, error) {
	i := strings.IndexFunc(text, func(r rune) bool { return !unicode.IsSpace(r) && r != '\uFEFF' })
	if i < 0 {
		return Guess{}, ErrUnrecognizedFormat
	}
	first := text[i]
	ext := normalizeExt(extHint)

	switch ext {
	case ".csv", ".tsv", ".tab", ".txt":
		return delimited(text, ext), nil
	case ".json", ".ndjson", ".jsonl", ".geojson":
		if first == '{' || first == '[' {
			return Guess{Format: dataset.FormatJSON, Confidence: 1}, nil
		}
	case ".xml", ".rss", ".atom":
		if first == '<' {
			return Guess{Format: dataset.FormatXML, Confidence: 1}, nil
		}
	case ".html", ".htm", ".xhtml":
		if first == '<' {
			return Guess{Format: dataset.FormatHTML, Confidence: 1}, nil
		}
	}

	switch first {
	case '{', '[':
		if looksJSON(text[i:]) {
			return Guess{Format: dataset.FormatJSON, Confidence: 0.9}, nil
		}
	case '<':
		if looksHTML(text[i:]) {
			return Guess{Format: dataset.FormatHTML, Confidence: 0.8}, nil
		}
		if looksXML(text[i:]) {
			return Guess{Format: dataset.FormatXML, Confidence: 0.8}, nil
		}
	}
	return delimited(text, ext), nil
}

func delimited(text, ext string) Guess {
	dg := Delimiter(text)
	if ext == ".tsv" || ext == ".tab" {
		if tab := score(sampleLines(text, SampleLines), '\t'); tab.ok {
			dg = DelimiterGuess{Delimiter: '\t', Confidence: tab.confidence}
		}
	}
	return Guess{Format: dataset.FormatDelimited, Delimiter: dg, Confidence: dg.Confidence}
}

func normalizeExt(hint string) string {
	h := strings.ToLower(strings.TrimSpace(hint))
	if h == "" {
		return ""
	}
	if strings.HasPrefix(h, ".") && !strings.Contains(h[1:], ".") {
		return h
	}
	if e := filepath.Ext(h); e != "" {
		return e
	}
	return "." + h
}

// looksJSON accepts a full JSON document or NDJSON whose first line is a
// complete value.
func looksJSON(s string) bool {
	if json.Valid([]byte(s)) {
		return true
	}
	line := s
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		line = s[:nl]
	}
	return json.Valid([]byte(strings.TrimSpace(line)))
}

// looksXML accepts a well-formed document with at least one element.
func looksXML(s string) bool {
	d := xml.NewDecoder(strings.NewReader(s))
	elements := 0
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return elements > 0
		}
		if err != nil {
			return false
		}
		if _, ok := tok.(xml.StartElement); ok {
			elements++
		}
	}
}

func looksHTML(s string) bool {
	head := s
	if len(head) > 512 {
		head = head[:512]
	}
	head = strings.ToLower(head)
	for _, p := range []string{"<!doctype html", "<html", "<table", "<head", "<body"} {
		if strings.HasPrefix(head, p) {
			return true
		}
	}
	return false
}

// Binary identifies a tabular binary container by its magic bytes.
type Binary int

const (
	NotBinary Binary = iota
	BinaryParquet
	// BinarySpreadsheet is a zip container (xlsx, ods).
	BinarySpreadsheet
	// BinaryLegacySpreadsheet is an OLE2 compound document (xls).
	BinaryLegacySpreadsheet
	BinaryUnknown
)

func (b Binary) String() string {
	switch b {
	case BinaryParquet:
		return "parquet"
	case BinarySpreadsheet:
		return "spreadsheet"
	case BinaryLegacySpreadsheet:
		return "legacy-spreadsheet"
	case BinaryUnknown:
		return "binary"
	default:
		return "text"
	}
}

const binaryHeadLen = 8 << 10

var (
	magicParquet = []byte("PAR1")
	magicZip     = []byte("PK\x03\x04")
	magicOLE2    = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// SniffBytes inspects raw bytes before decoding. It reports ok=false for
// anything that should go through the text path.
func SniffBytes(b []byte, extHint string) (Guess, bool) {
	kind := binaryKind(b, normalizeExt(extHint))
	if kind == NotBinary {
		return Guess{}, false
	}
	return Guess{Format: dataset.FormatTabularBinary, Binary: kind, Confidence: 1}, true
}

func binaryKind(b []byte, ext string) Binary {
	switch {
	case bytes.HasPrefix(b, magicParquet):
		return BinaryParquet
	case bytes.HasPrefix(b, magicZip):
		return BinarySpreadsheet
	case bytes.HasPrefix(b, magicOLE2):
		return BinaryLegacySpreadsheet
	}
	switch ext {
	case ".parquet", ".xlsx", ".xls", ".ods":
		if len(b) > 0 {
			return BinaryUnknown
		}
	}

	head := b
	if len(head) > binaryHeadLen {
		head = head[:binaryHeadLen]
	}
	// UTF-16 text is full of NULs; leave it to the decoder.
	if bytes.HasPrefix(head, []byte{0xFF, 0xFE}) || bytes.HasPrefix(head, []byte{0xFE, 0xFF}) {
		return NotBinary
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return BinaryUnknown
	}
	return NotBinary
}
