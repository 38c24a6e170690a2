// Package zerowidth inserts and finds invisible code points in text.
package zerowidth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// #region defaults
const (
	ZeroWidthSpace        rune = 0x200B
	ZeroWidthNonJoiner    rune = 0x200C
	ZeroWidthJoiner       rune = 0x200D
	ZeroWidthNoBreakSpace rune = 0xFEFF
)

var (
	ErrEmptyAlphabet    = errors.New("alphabet has no code points")
	ErrDuplicateRune    = errors.New("alphabet repeats a code point")
	ErrVisibleCodePoint = errors.New("alphabet code point is printable")
	ErrPositionRange    = errors.New("insert position out of range")
	ErrDuplicatePos     = errors.New("insert position repeated")
)

// #endregion defaults

// #region alphabet
// Alphabet is an ordered, duplicate-free set of invisible code points.
type Alphabet struct {
	runes []rune
	set   map[rune]struct{}
}

// DefaultAlphabet returns {U+200B, U+200C, U+200D, U+FEFF}.
func DefaultAlphabet() Alphabet {
	a, _ := NewAlphabet(ZeroWidthSpace, ZeroWidthNonJoiner, ZeroWidthJoiner, ZeroWidthNoBreakSpace)
	return a
}

// NewAlphabet builds an alphabet in the given order. Printable characters are
// rejected so a misconfigured alphabet cannot make the watermark visible.
func NewAlphabet(runes ...rune) (Alphabet, error) {
	if len(runes) == 0 {
		return Alphabet{}, ErrEmptyAlphabet
	}
	a := Alphabet{
		runes: make([]rune, 0, len(runes)),
		set:   make(map[rune]struct{}, len(runes)),
	}
	for _, r := range runes {
		if _, dup := a.set[r]; dup {
			return Alphabet{}, fmt.Errorf("%w: U+%04X", ErrDuplicateRune, r)
		}
		if isVisible(r) {
			return Alphabet{}, fmt.Errorf("%w: U+%04X", ErrVisibleCodePoint, r)
		}
		a.runes = append(a.runes, r)
		a.set[r] = struct{}{}
	}
	return a, nil
}

// Len returns the number of code points in the alphabet.
func (a Alphabet) Len() int {
	return len(a.runes)
}

// Runes returns a copy of the alphabet in configured order.
func (a Alphabet) Runes() []rune {
	out := make([]rune, len(a.runes))
	copy(out, a.runes)
	return out
}

// Contains reports whether r belongs to the alphabet.
func (a Alphabet) Contains(r rune) bool {
	_, ok := a.set[r]
	return ok
}

// Codes renders the alphabet as "0x200B, 0x200C, ..." for instructions.
func (a Alphabet) Codes() string {
	sorted := a.Runes()
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	codes := make([]string, len(sorted))
	for i, r := range sorted {
		codes[i] = fmt.Sprintf("0x%04X", r)
	}
	return strings.Join(codes, ", ")
}

func isVisible(r rune) bool {
	return unicode.IsGraphic(r)
}

// #endregion alphabet
