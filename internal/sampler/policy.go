// Package sampler turns model logits and a greenlist into a next-token choice.
package sampler

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/greenlist"
)

// #region policy
// Policy rewrites temperature-scaled logits in place before normalisation.
type Policy interface {
	Adjust(logits []float64, gl greenlist.Set) error
}

// HardMask gives every token outside the greenlist probability zero. This is
// the default policy: maximal detectability at some cost in fluency.
type HardMask struct{}

// Adjust sets non-greenlist logits to -Inf.
func (HardMask) Adjust(logits []float64, gl greenlist.Set) error {
	for i := range logits {
		if !gl.Contains(tokenAt(i)) {
			logits[i] = math.Inf(-1)
		}
	}
	return nil
}

// MaxSoftDelta bounds SoftBias.Delta.
const MaxSoftDelta = 100

// SoftBias adds Delta to greenlist logits and leaves the rest alone.
type SoftBias struct {
	Delta float64
}

// Validate bounds Delta to (0, MaxSoftDelta].
func (p SoftBias) Validate() error {
	if !(p.Delta > 0 && p.Delta <= MaxSoftDelta) {
		return fmt.Errorf("%w: soft bias delta %v not in (0, %d]", ErrInvalidOption, p.Delta, MaxSoftDelta)
	}
	return nil
}

// Adjust nudges greenlist logits upward by Delta.
func (p SoftBias) Adjust(logits []float64, gl greenlist.Set) error {
	if err := p.Validate(); err != nil {
		return err
	}
	for _, t := range gl.Tokens() {
		logits[t] += p.Delta
	}
	return nil
}

// Policy names accepted by ParsePolicy.
const (
	PolicyHard = "hard"
	PolicySoft = "soft"
)

// ParsePolicy maps a configured policy name to a Policy. delta is only used
// by the soft policy.
func ParsePolicy(name string, delta float64) (Policy, error) {
	switch name {
	case "", PolicyHard:
		return HardMask{}, nil
	case PolicySoft:
		p := SoftBias{Delta: delta}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown policy %q", ErrInvalidOption, name)
	}
}

// #endregion policy
