package rules

import (
	"fmt"
	"math/rand"
)

// #region word-spacing
// DefaultSpacingPosition is the word after which extra spaces are added.
const DefaultSpacingPosition = 12

// WordSpacing appends two extra spaces after a fixed word. It consumes no
// randomness.
type WordSpacing struct {
	position int
}

// NewWordSpacing places the spaces after the position-th word (1-based).
func NewWordSpacing(position int) (*WordSpacing, error) {
	if position <= 0 {
		return nil, fmt.Errorf("%w: spacing position %d", ErrInvalidRule, position)
	}
	return &WordSpacing{position: position}, nil
}

// Apply leaves texts with position words or fewer unchanged.
func (w *WordSpacing) Apply(text string, _ *rand.Rand) (Result, error) {
	spans := splitWords(text)
	if len(spans) <= w.position {
		return Result{Text: text}, nil
	}
	end := spans[w.position-1].end
	return Result{Text: text[:end] + "  " + text[end:]}, nil
}

// #endregion word-spacing
