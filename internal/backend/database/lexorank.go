package database

import "strings"

const (
	// Rank alphabet is ASCII '0'..'z'
	minChar = '0'
	maxChar = 'z'
	midChar = 'U'

	alphabetSize = maxChar - minChar + 1

	// ranks longer than this trigger a rebalance of the whole list
	maxRankLength = 24
)

// After returns a rank that sorts after prev
func After(prev string) string {
	if prev == "" {
		return string(midChar)
	}
	return prev + string(midChar)
}

// Before returns a rank that sorts before next. An empty next yields the
// canonical first rank.
func Before(next string) string {
	if next == "" {
		return string(midChar)
	}
	return Between("", next)
}

// IsBetween reports whether rank lies strictly between prev and next.
// Empty bounds are open; with both empty it returns false.
func IsBetween(prev, rank, next string) bool {
	if prev == "" && next == "" {
		return false
	}
	if prev != "" && strings.Compare(prev, rank) >= 0 {
		return false
	}
	return next == "" || strings.Compare(rank, next) < 0
}

// Between computes a rank strictly between prev and next using a
// variable-length scheme. An empty next means unbounded above.
//
// Generated ranks never end in minChar, which keeps room below every rank.
func Between(prev, next string) string {
	if next == "" {
		return After(prev)
	}

	p := []rune(prev)
	n := []rune(next)

	var out []rune
	for i := 0; ; i++ {
		lo := rune(minChar)
		if i < len(p) {
			lo = p[i]
		}
		hi := rune(maxChar)
		if i < len(n) {
			hi = n[i]
		}

		if lo+1 < hi {
			out = append(out, lo+(hi-lo)/2)
			return string(out)
		}
		out = append(out, lo)
		if lo != hi {
			// next no longer bounds us once we took a smaller character
			return string(out) + After(string(p[min(i+1, len(p)):]))
		}
	}
}

// Spread returns n ascending ranks evenly spaced over the alphabet, used
// to rebalance after many head insertions grew the ranks.
func Spread(n int) []string {
	if n <= 0 {
		return nil
	}
	width, space := 1, int(alphabetSize)
	for space < 4*(n+1) {
		width++
		space *= alphabetSize
	}

	ranks := make([]string, n)
	buf := make([]byte, width)
	for i := range n {
		v := (i + 1) * space / (n + 1)
		for j := width - 1; j >= 0; j-- {
			buf[j] = byte(minChar + v%alphabetSize)
			v /= alphabetSize
		}
		ranks[i] = string(buf) + string(midChar)
	}
	return ranks
}
