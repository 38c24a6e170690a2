package zerowidth

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"golang.org/x/text/unicode/runenames"
)

// #region finding
// Finding is one invisible code point found in a text. Offset counts runes
// from the start of the scanned text.
type Finding struct {
	Offset    int    `json:"offset"`
	CodePoint rune   `json:"code_point"`
	Name      string `json:"name"`
}

// String renders the finding as "Position 12: U+200B ZERO WIDTH SPACE".
func (f Finding) String() string {
	return fmt.Sprintf("Position %d: U+%04X %s", f.Offset, f.CodePoint, f.Name)
}

// Classify returns the Unicode character name of r.
func Classify(r rune) string {
	if name := runenames.Name(r); name != "" {
		return name
	}
	return fmt.Sprintf("U+%04X", r)
}

// #endregion finding

// #region scan
// Scan reports every occurrence of an alphabet member in text order.
func (a Alphabet) Scan(text string) []Finding {
	var findings []Finding
	offset := 0
	for _, r := range text {
		if a.Contains(r) {
			findings = append(findings, Finding{
				Offset:    offset,
				CodePoint: r,
				Name:      Classify(r),
			})
		}
		offset++
	}
	return findings
}

// Scan reports findings for the default alphabet.
func Scan(text string) []Finding {
	return DefaultAlphabet().Scan(text)
}

// #endregion scan

// #region insert
// Insert places one code point drawn uniformly from the alphabet before the
// rune at each offset. Offsets refer to the original text and may equal its
// rune length to append. The output is built in one forward pass over the
// sorted offsets, so earlier insertions never shift later ones.
func (a Alphabet) Insert(text string, positions []int, rng *rand.Rand) (string, error) {
	if a.Len() == 0 {
		return "", ErrEmptyAlphabet
	}
	runes := []rune(text)

	sorted := make([]int, len(positions))
	copy(sorted, positions)
	sort.Ints(sorted)
	for i, p := range sorted {
		if p < 0 || p > len(runes) {
			return "", fmt.Errorf("%w: %d not in [0, %d]", ErrPositionRange, p, len(runes))
		}
		if i > 0 && sorted[i-1] == p {
			return "", fmt.Errorf("%w: %d", ErrDuplicatePos, p)
		}
	}

	var b strings.Builder
	b.Grow(len(text) + len(sorted)*3)
	next := 0
	for i := 0; i <= len(runes); i++ {
		for next < len(sorted) && sorted[next] == i {
			b.WriteRune(a.runes[rng.Intn(len(a.runes))])
			next++
		}
		if i < len(runes) {
			b.WriteRune(runes[i])
		}
	}
	return b.String(), nil
}

// Insert places default-alphabet code points at the given offsets.
func Insert(text string, positions []int, rng *rand.Rand) (string, error) {
	return DefaultAlphabet().Insert(text, positions, rng)
}

// #endregion insert

// #region strip
// Strip removes every alphabet member from text.
func (a Alphabet) Strip(text string) string {
	return strings.Map(func(r rune) rune {
		if a.Contains(r) {
			return -1
		}
		return r
	}, text)
}

// Strip removes default-alphabet code points from text.
func Strip(text string) string {
	return DefaultAlphabet().Strip(text)
}

// #endregion strip
