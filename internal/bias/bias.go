// Package bias holds the static, word-level logit bias applied for a whole
// generation. It is unrelated to the per-token greenlist: the same tokens are
// pushed up or down at every step regardless of context.
package bias

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/vocab"
)

// #region limits
// MaxMagnitude is the largest bias a generation backend accepts.
const MaxMagnitude = 100

var ErrEmptyList = errors.New("static bias list is empty")

// #endregion limits

// #region static-list
// StaticList maps literal words to a constant additive bias.
type StaticList struct {
	Words map[string]float64 `json:"words" toml:"words" yaml:"words"`
}

// DefaultStaticList favours a handful of connective words and disfavours very
// common function words.
func DefaultStaticList() StaticList {
	words := map[string]float64{}
	for _, w := range []string{"certainly", "hence", "thus", "furthermore", "indeed", "moreover", "precisely", "purple", "!", "one"} {
		words[w] = 10
	}
	for _, w := range []string{"the", "in", "a", "an", ",", "that"} {
		words[w] = -10
	}
	return StaticList{Words: words}
}

// Compile encodes every word and assigns its bias to each resulting token.
// Words are processed in sorted order so a token shared by two words always
// ends up with the same value. Biases are clamped to [-MaxMagnitude, MaxMagnitude].
func (l StaticList) Compile(ctx context.Context, enc vocab.Encoder) (LogitBias, error) {
	if len(l.Words) == 0 {
		return nil, ErrEmptyList
	}
	words := make([]string, 0, len(l.Words))
	for w := range l.Words {
		words = append(words, w)
	}
	sort.Strings(words)

	out := make(LogitBias)
	for _, w := range words {
		tokens, err := enc.Encode(ctx, w)
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", w, err)
		}
		v := Clamp(l.Words[w])
		for _, t := range tokens {
			out[t] = v
		}
	}
	return out, nil
}

// Clamp bounds v to [-MaxMagnitude, MaxMagnitude].
func Clamp(v float64) float64 {
	return min(MaxMagnitude, max(-MaxMagnitude, v))
}

// #endregion static-list

// #region logit-bias
// LogitBias is a compiled token → bias map.
type LogitBias map[vocab.Token]float64

// Apply returns a copy of logits with the biases added.
func (b LogitBias) Apply(logits []float32) ([]float32, error) {
	out := make([]float32, len(logits))
	copy(out, logits)
	for t, v := range b {
		if err := t.Check(len(logits)); err != nil {
			return nil, fmt.Errorf("logit bias: %w", err)
		}
		out[t] += float32(v)
	}
	return out, nil
}

// Wire renders the map with string keys, the form generation APIs expect.
func (b LogitBias) Wire() map[string]float64 {
	out := make(map[string]float64, len(b))
	for t, v := range b {
		out[strconv.Itoa(int(t))] = v
	}
	return out
}

// #endregion logit-bias
