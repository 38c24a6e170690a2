package sampler

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/greenlist"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/vocab"
)

// #region errors
var (
	ErrEmptyLogits    = errors.New("logits vector is empty")
	ErrEmptyGreenlist = errors.New("greenlist is empty")
	ErrInvalidLogit   = errors.New("logit is NaN or +Inf")
	ErrDegenerate     = errors.New("no token has positive probability")
	ErrInvalidOption  = errors.New("invalid sampler option")
)

// #endregion errors

// #region sampler
// Sampler draws the next token from greenlist-adjusted logits.
type Sampler struct {
	policy      Policy
	temperature float64
	topP        float64
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithTemperature divides logits by t before the policy runs. 0 < t <= 2.
func WithTemperature(t float64) Option {
	return func(s *Sampler) { s.temperature = t }
}

// WithTopP keeps the smallest set of tokens whose mass reaches p. 0 < p <= 1.
func WithTopP(p float64) Option {
	return func(s *Sampler) { s.topP = p }
}

// New builds a sampler. A nil policy means HardMask.
func New(policy Policy, opts ...Option) (*Sampler, error) {
	if policy == nil {
		policy = HardMask{}
	}
	if v, ok := policy.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	s := &Sampler{policy: policy, temperature: 1, topP: 1}
	for _, opt := range opts {
		opt(s)
	}
	if !(s.temperature > 0 && s.temperature <= 2) {
		return nil, fmt.Errorf("%w: temperature %v not in (0, 2]", ErrInvalidOption, s.temperature)
	}
	if !(s.topP > 0 && s.topP <= 1) {
		return nil, fmt.Errorf("%w: top_p %v not in (0, 1]", ErrInvalidOption, s.topP)
	}
	return s, nil
}

// Distribution returns the normalised next-token distribution. The maximum
// adjusted logit is subtracted before exponentiating.
func (s *Sampler) Distribution(logits []float32, gl greenlist.Set) ([]float64, error) {
	if len(logits) == 0 {
		return nil, ErrEmptyLogits
	}
	if gl.Len() == 0 {
		return nil, ErrEmptyGreenlist
	}
	for _, t := range gl.Tokens() {
		if err := t.Check(len(logits)); err != nil {
			return nil, fmt.Errorf("greenlist member: %w", err)
		}
	}

	scaled := make([]float64, len(logits))
	for i, l := range logits {
		v := float64(l)
		if math.IsNaN(v) || math.IsInf(v, 1) {
			return nil, fmt.Errorf("%w: index %d", ErrInvalidLogit, i)
		}
		scaled[i] = v / s.temperature
	}
	if err := s.policy.Adjust(scaled, gl); err != nil {
		return nil, err
	}

	probs, err := softmax(scaled)
	if err != nil {
		return nil, err
	}
	if s.topP < 1 {
		probs = nucleus(probs, s.topP)
	}
	return probs, nil
}

// Next draws one token from Distribution using rng.
func (s *Sampler) Next(logits []float32, gl greenlist.Set, rng *rand.Rand) (vocab.Token, error) {
	probs, err := s.Distribution(logits, gl)
	if err != nil {
		return 0, err
	}
	return draw(probs, rng.Float64()), nil
}

// #endregion sampler

// #region math
func softmax(x []float64) ([]float64, error) {
	maxv := math.Inf(-1)
	for _, v := range x {
		if v > maxv {
			maxv = v
		}
	}
	if math.IsInf(maxv, -1) {
		return nil, ErrDegenerate
	}

	out := make([]float64, len(x))
	var sum float64
	for i, v := range x {
		e := math.Exp(v - maxv)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out, nil
}

// nucleus zeroes every token outside the top-p mass and renormalises.
func nucleus(probs []float64, p float64) []float64 {
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })

	out := make([]float64, len(probs))
	var kept float64
	for _, i := range idx {
		if probs[i] == 0 {
			break
		}
		out[i] = probs[i]
		kept += probs[i]
		if kept >= p {
			break
		}
	}
	for i := range out {
		out[i] /= kept
	}
	return out
}

// draw walks the cumulative distribution. Rounding that leaves u above the
// final sum lands on the last token with non-zero mass.
func draw(probs []float64, u float64) vocab.Token {
	var cum float64
	last := 0
	for i, p := range probs {
		if p == 0 {
			continue
		}
		last = i
		cum += p
		if u < cum {
			return tokenAt(i)
		}
	}
	return tokenAt(last)
}

func tokenAt(i int) vocab.Token {
	return vocab.Token(i)
}

// #endregion math
