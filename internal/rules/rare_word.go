package rules

import (
	"fmt"
	"math/rand"
	"strings"
)

// #region rare-word
const (
	DefaultRareInterval    = 12
	DefaultRareProbability = 0.5
)

// DefaultRareWords are low-frequency English words unlikely to appear in a
// prompt by chance.
var DefaultRareWords = []string{
	"quixotic",
	"halcyon",
	"susurrus",
	"petrichor",
	"lambent",
	"sesquipedalian",
	"defenestrate",
	"crepuscular",
	"ineffable",
	"mellifluous",
}

// RareWord inserts a word from a fixed list after every Kth word with a fixed
// probability.
type RareWord struct {
	interval    int
	probability float64
	words       []string
}

// NewRareWord validates the interval, probability and word list.
func NewRareWord(interval int, probability float64, words []string) (*RareWord, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: rare word interval %d", ErrInvalidRule, interval)
	}
	if probability < 0 || probability > 1 {
		return nil, fmt.Errorf("%w: rare word probability %v", ErrInvalidRule, probability)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: rare word list is empty", ErrInvalidRule)
	}
	for _, w := range words {
		if w == "" || strings.ContainsFunc(w, isSpaceRune) {
			return nil, fmt.Errorf("%w: rare word %q must be a single word", ErrInvalidRule, w)
		}
	}
	owned := make([]string, len(words))
	copy(owned, words)
	return &RareWord{interval: interval, probability: probability, words: owned}, nil
}

// Boundaries returns the word indices at which Apply draws from the generator
// for a text of n words. Index 0 never qualifies.
func (r *RareWord) Boundaries(n int) []int {
	var idx []int
	for i := r.interval; i < n; i += r.interval {
		idx = append(idx, i)
	}
	return idx
}

// Apply walks the words and, at each boundary, draws once to decide whether
// to insert a rare word right after the boundary word.
func (r *RareWord) Apply(text string, rng *rand.Rand) (Result, error) {
	spans := splitWords(text)
	boundaries := r.Boundaries(len(spans))
	if len(boundaries) == 0 {
		return Result{Text: text}, nil
	}

	var b strings.Builder
	b.Grow(len(text) + len(boundaries)*16)
	last := 0
	for _, i := range boundaries {
		if rng.Float64() >= r.probability {
			continue
		}
		word := r.words[rng.Intn(len(r.words))]
		end := spans[i].end
		b.WriteString(text[last:end])
		b.WriteByte(' ')
		b.WriteString(word)
		last = end
	}
	b.WriteString(text[last:])
	return Result{Text: b.String()}, nil
}

// #endregion rare-word
