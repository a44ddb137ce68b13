package dataset

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxKeyLen is the Postgres identifier limit; MSSQL and SQLite accept more.
const maxKeyLen = 63

// ColumnNames turns raw header cells into unique display names for a table
// of the given width. Blank cells become Column_N (1-based). A repeated name
// gets a _2, _3, ... suffix, skipping suffixes that are already taken.
// When raw is shorter than width the remaining columns are Column_N.
func ColumnNames(raw []string, width int) []string {
	if width < len(raw) {
		width = len(raw)
	}
	out := make([]string, width)
	taken := make(map[string]bool, width)

	// First pass reserves the explicit names so a later "Column_3" header
	// does not collide with a generated one.
	for i := 0; i < width; i++ {
		if i < len(raw) {
			if n := strings.TrimSpace(raw[i]); n != "" {
				out[i] = n
			}
		}
	}
	for i := range out {
		if out[i] == "" {
			out[i] = "Column_" + strconv.Itoa(i+1)
		}
	}
	for i, n := range out {
		if !taken[n] {
			taken[n] = true
			continue
		}
		for k := 2; ; k++ {
			cand := n + "_" + strconv.Itoa(k)
			if !taken[cand] && !contains(out[i+1:], cand) {
				out[i] = cand
				taken[cand] = true
				break
			}
		}
	}
	return out
}

// GeneratedNames returns Column_1..Column_n.
func GeneratedNames(n int) []string {
	return ColumnNames(nil, n)
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

// NormalizeKey converts an arbitrary column name into a lowercase identifier
// ([a-z0-9_]) capped at 63 bytes.
func NormalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))

	lastUnderscore := false
	for _, r := range s {
		switch {
		case r == ' ' || r == '-' || r == '.' || r == '/' || r == '\\' || r == ':' || r == ';' || r == '\t':
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		}
	}
	return truncateKey(strings.Trim(b.String(), "_"))
}

// Keys derives unique normalized keys for names. Names that normalize to
// nothing fall back to col_N. A repeated key gets a _2, _3, ... suffix,
// skipping suffixes that are already taken, as ColumnNames does.
func Keys(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		k := NormalizeKey(n)
		if k == "" {
			k = "col_" + strconv.Itoa(i+1)
		}
		out[i] = k
	}

	taken := make(map[string]bool, len(out))
	for i, k := range out {
		if !taken[k] {
			taken[k] = true
			continue
		}
		for n := 2; ; n++ {
			cand := suffixKey(k, n)
			if !taken[cand] && !contains(out[i+1:], cand) {
				out[i] = cand
				taken[cand] = true
				break
			}
		}
	}
	return out
}

// suffixKey appends _n to k, shortening k so the suffix survives the length
// cap. Keys are ASCII, so any byte offset is a valid cut.
func suffixKey(k string, n int) string {
	suffix := "_" + strconv.Itoa(n)
	if limit := maxKeyLen - len(suffix); len(k) > limit {
		k = k[:limit]
	}
	return k + suffix
}

func truncateKey(s string) string {
	if len(s) <= maxKeyLen {
		return s
	}
	cut := maxKeyLen
	for cut > 0 && !utf8.ValidString(s[:cut]) {
		cut--
	}
	return s[:cut]
}
