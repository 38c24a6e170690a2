package rules

import (
	"fmt"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/zerowidth"
)

// #region names
const (
	NameHiddenEcho  = "hidden_echo"
	NameRareWord    = "rare_word"
	NameWordSpacing = "word_spacing"
)

// #endregion names

// #region options
// Options carries the tunables for every known rule.
type Options struct {
	Span            int
	Alphabet        zerowidth.Alphabet
	RareInterval    int
	RareProbability float64
	RareWords       []string
	SpacingPosition int
}

// DefaultOptions returns the stock rule parameters.
func DefaultOptions() Options {
	return Options{
		Span:            DefaultSpan,
		Alphabet:        zerowidth.DefaultAlphabet(),
		RareInterval:    DefaultRareInterval,
		RareProbability: DefaultRareProbability,
		RareWords:       DefaultRareWords,
		SpacingPosition: DefaultSpacingPosition,
	}
}

// #endregion options

// #region build
// Build constructs a pipeline from rule names in the given order.
func Build(names []string, opts Options) (*Pipeline, error) {
	if len(names) == 0 {
		return nil, ErrNoRules
	}
	built := make([]Rule, 0, len(names))
	for _, name := range names {
		r, err := newRule(name, opts)
		if err != nil {
			return nil, err
		}
		built = append(built, r)
	}
	return NewPipeline(built...)
}

func newRule(name string, opts Options) (Rule, error) {
	switch name {
	case NameHiddenEcho:
		return NewHiddenEcho(opts.Span, opts.Alphabet)
	case NameRareWord:
		return NewRareWord(opts.RareInterval, opts.RareProbability, opts.RareWords)
	case NameWordSpacing:
		return NewWordSpacing(opts.SpacingPosition)
	default:
		return nil, fmt.Errorf("%w: unknown rule %q", ErrInvalidRule, name)
	}
}

// #endregion build
