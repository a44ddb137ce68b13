// Package decode turns raw uploaded bytes into text.
//
// Decode never fails: an unknown or unusable declared charset falls back to
// best-effort UTF-8 with U+FFFD substitutions, and undeclared input that is
// not valid UTF-8 is read as ISO-8859-1, which maps every byte.
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// Canonical names reported in Text.EncodingUsed.
const (
	UTF8    = "UTF-8"
	UTF16LE = "UTF-16LE"
	UTF16BE = "UTF-16BE"
	ASCII   = "US-ASCII"
	Latin1  = "ISO-8859-1"
)

// ErrDecode marks a fallback taken while decoding. It is recorded in
// Text.Err and never returned as a failure.
var ErrDecode = errors.New("decode")

// Text is decoded input.
type Text struct {
	Text                string
	EncodingUsed        string
	HadReplacementChars bool
	// Err is non-nil (wrapping ErrDecode) when the declared encoding could
	// not be honored and a fallback was used.
	Err error
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Auto reports whether name asks for detection rather than a fixed charset.
func Auto(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	return n == "" || n == "auto" || n == "auto-detect"
}

// Decode decodes b. An empty or "auto" declared encoding detects from the
// BOM, then tries UTF-8, then ISO-8859-1.
func Decode(b []byte, declared string) Text {
	if Auto(declared) {
		return detect(b)
	}

	name, enc, err := Lookup(declared)
	if err != nil {
		out := bestEffortUTF8(b)
		out.Err = err
		return out
	}

	out, ok := decodeWith(b, name, enc)
	if !ok {
		fb := bestEffortUTF8(b)
		fb.HadReplacementChars = true
		fb.Err = fmt.Errorf("%w: input is not valid %s", ErrDecode, name)
		return fb
	}
	return out
}

func detect(b []byte) Text {
	switch {
	case bytes.HasPrefix(b, bomUTF8):
		return bestEffortUTF8(b[len(bomUTF8):])
	case bytes.HasPrefix(b, bomUTF16LE):
		if t, ok := decodeWith(b, UTF16LE, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)); ok {
			return t
		}
	case bytes.HasPrefix(b, bomUTF16BE):
		if t, ok := decodeWith(b, UTF16BE, unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)); ok {
			return t
		}
	}

	if utf8.Valid(b) {
		return Text{Text: string(b), EncodingUsed: UTF8}
	}

	s, _ := charmap.ISO8859_1.NewDecoder().Bytes(b)
	return Text{Text: string(s), EncodingUsed: Latin1}
}

// Lookup resolves a charset label to a canonical name and an encoding.
// ASCII resolves to a nil encoding and is decoded strictly.
func Lookup(label string) (string, encoding.Encoding, error) {
	l := strings.ToLower(strings.TrimSpace(label))
	switch l {
	case "utf-8", "utf8":
		return UTF8, unicode.UTF8, nil
	case "ascii", "us-ascii", "ansi_x3.4-1968":
		return ASCII, nil, nil
	case "iso-8859-1", "iso8859-1", "latin1", "latin-1", "l1":
		return Latin1, charmap.ISO8859_1, nil
	case "utf-16le", "utf16le":
		return UTF16LE, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	case "utf-16be", "utf16be", "utf-16":
		return UTF16BE, unicode.UTF16(unicode.BigEndian, unicode.UseBOM), nil
	}

	if enc, err := ianaindex.IANA.Encoding(label); err == nil && enc != nil {
		name, nerr := ianaindex.IANA.Name(enc)
		if nerr != nil {
			name = label
		}
		return name, enc, nil
	}
	if enc, err := htmlindex.Get(label); err == nil {
		name, nerr := htmlindex.Name(enc)
		if nerr != nil {
			name = label
		}
		return name, enc, nil
	}
	return "", nil, fmt.Errorf("%w: unknown encoding %q", ErrDecode, label)
}

// tolerance is the number of replacement runes accepted from a declared
// decoder before the result is rejected: 1% of runes, at least one.
func tolerance(n int) int {
	if t := n / 100; t > 1 {
		return t
	}
	return 1
}

func decodeWith(b []byte, name string, enc encoding.Encoding) (Text, bool) {
	if enc == nil {
		return decodeASCII(b)
	}

	if name == UTF8 {
		b = bytes.TrimPrefix(b, bomUTF8)
		if utf8.Valid(b) {
			return Text{Text: string(b), EncodingUsed: UTF8}, true
		}
		return bestEffortUTF8(b), invalidUTF8Bytes(b) <= tolerance(len(b))
	}

	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return Text{}, false
	}
	s := strings.TrimPrefix(string(out), "\uFEFF")
	repl := strings.Count(s, "\uFFFD")
	if repl > tolerance(utf8.RuneCountInString(s)) {
		return Text{}, false
	}
	return Text{Text: s, EncodingUsed: name, HadReplacementChars: repl > 0}, true
}

func decodeASCII(b []byte) (Text, bool) {
	var sb strings.Builder
	sb.Grow(len(b))
	bad := 0
	for _, c := range b {
		if c < utf8.RuneSelf {
			sb.WriteByte(c)
			continue
		}
		bad++
		sb.WriteRune(utf8.RuneError)
	}
	if bad > tolerance(len(b)) {
		return Text{}, false
	}
	return Text{Text: sb.String(), EncodingUsed: ASCII, HadReplacementChars: bad > 0}, true
}

func invalidUTF8Bytes(b []byte) int {
	n := 0
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			n++
		}
		b = b[size:]
	}
	return n
}

func bestEffortUTF8(b []byte) Text {
	if utf8.Valid(b) {
		return Text{Text: string(b), EncodingUsed: UTF8}
	}
	return Text{
		Text:                strings.ToValidUTF8(string(b), "\uFFFD"),
		EncodingUsed:        UTF8,
		HadReplacementChars: true,
	}
}
