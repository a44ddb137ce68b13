package sniff

import "strings"

// SampleLines is the number of non-empty logical lines examined when
// inferring a delimiter.
const SampleLines = 50

// presenceThreshold is the share of sampled lines a candidate must appear in.
const presenceThreshold = 0.8

// maxSampleBytes caps the scan when a stray quote swallows the rest of the input.
const maxSampleBytes = 1 << 20

// Candidates lists the delimiters considered, in tie-break order.
var Candidates = []rune{',', ';', '\t', '|'}

// DelimiterGuess is an inferred delimiter with a confidence in [0,1].
type DelimiterGuess struct {
	Delimiter  rune
	Confidence float64
}

// Delimiter picks the candidate whose per-line counts vary least across the
// first SampleLines non-empty lines, among candidates present in at least 80%
// of them. Ties go to the earlier entry of Candidates. With no qualifying
// candidate it returns ',' with confidence 0.
func Delimiter(text string) DelimiterGuess {
	lines := sampleLines(text, SampleLines)
	if len(lines) == 0 {
		return DelimiterGuess{Delimiter: ','}
	}

	best := DelimiterGuess{Delimiter: ','}
	bestVar := -1.0
	for _, c := range Candidates {
		s := score(lines, c)
		if !s.ok {
			continue
		}
		if bestVar < 0 || s.variance < bestVar {
			best = DelimiterGuess{Delimiter: c, Confidence: s.confidence}
			bestVar = s.variance
		}
	}
	return best
}

type candidateScore struct {
	ok         bool
	variance   float64
	confidence float64
}

func score(lines []string, delim rune) candidateScore {
	if len(lines) == 0 {
		return candidateScore{}
	}
	counts := make([]float64, len(lines))
	present := 0
	for i, l := range lines {
		n := countOutsideQuotes(l, delim)
		counts[i] = float64(n)
		if n > 0 {
			present++
		}
	}
	coverage := float64(present) / float64(len(lines))
	if coverage < presenceThreshold {
		return candidateScore{}
	}

	var mean float64
	for _, c := range counts {
		mean += c
	}
	mean /= float64(len(counts))
	var v float64
	for _, c := range counts {
		d := c - mean
		v += d * d
	}
	v /= float64(len(counts))

	return candidateScore{ok: true, variance: v, confidence: coverage / (1 + v)}
}

func countOutsideQuotes(line string, delim rune) int {
	n := 0
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			n++
		}
	}
	return n
}

// sampleLines splits text into logical lines, keeping newlines inside double
// quotes within a line, and returns at most max non-empty ones.
func sampleLines(text string, max int) []string {
	out := make([]string, 0, max)
	inQuotes := false
	start := 0
	emit := func(end int) {
		l := strings.TrimRight(text[start:end], "\r")
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	limit := len(text)
	if limit > maxSampleBytes {
		limit = maxSampleBytes
	}
	for i := 0; i < limit && len(out) < max; i++ {
		switch text[i] {
		case '"':
			inQuotes = !inQuotes
		case '\n':
			if inQuotes {
				continue
			}
			emit(i)
			start = i + 1
		}
	}
	if len(out) < max && start < limit {
		emit(limit)
	}
	return out
}
