// Package rules applies an ordered sequence of prompt watermarking rules to a
// text, all of them drawing from one content-seeded generator.
package rules

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/seed"
)

// #region types
var (
	ErrNoRules     = errors.New("pipeline needs at least one rule")
	ErrNilRule     = errors.New("pipeline rule is nil")
	ErrInvalidRule = errors.New("invalid rule configuration")
)

// Result is what a rule produces. An empty Instruction means the rule only
// rewrote the text.
type Result struct {
	Text        string
	Instruction string
}

// Rule transforms text using the shared generator. Rules keep no state
// between calls.
type Rule interface {
	Apply(text string, rng *rand.Rand) (Result, error)
}

// RuleFunc adapts a plain function to Rule.
type RuleFunc func(text string, rng *rand.Rand) (Result, error)

// Apply calls f.
func (f RuleFunc) Apply(text string, rng *rand.Rand) (Result, error) {
	return f(text, rng)
}

// Artifact is one watermarked input: the original text, the newline-joined
// side instructions, and the final text.
type Artifact struct {
	Original     string
	Instructions string
	Final        string
	Seed         seed.Seed
}

// #endregion types

// #region pipeline
// Pipeline holds rules in the order they are applied.
type Pipeline struct {
	rules []Rule
}

// NewPipeline validates and stores the rule order.
func NewPipeline(rules ...Rule) (*Pipeline, error) {
	if len(rules) == 0 {
		return nil, ErrNoRules
	}
	for i, r := range rules {
		if r == nil {
			return nil, fmt.Errorf("rule %d: %w", i, ErrNilRule)
		}
	}
	owned := make([]Rule, len(rules))
	copy(owned, rules)
	return &Pipeline{rules: owned}, nil
}

// Len returns the number of rules.
func (p *Pipeline) Len() int {
	return len(p.rules)
}

// Embed derives a generator from text and threads it through every rule in
// order. Output depends only on text and the rule sequence.
func (p *Pipeline) Embed(text string) (Artifact, error) {
	s := seed.Derive(text)
	rng := s.Rand()

	var instructions []string
	content := text
	for i, r := range p.rules {
		res, err := r.Apply(content, rng)
		if err != nil {
			return Artifact{}, fmt.Errorf("apply rule %d: %w", i, err)
		}
		if res.Instruction != "" {
			instructions = append(instructions, res.Instruction)
		}
		content = res.Text
	}

	return Artifact{
		Original:     text,
		Instructions: strings.Join(instructions, "\n"),
		Final:        content,
		Seed:         s,
	}, nil
}

// #endregion pipeline
