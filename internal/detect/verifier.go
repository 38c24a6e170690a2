package detect

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/greenlist"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/seed"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/vocab"
)

// DefaultThreshold is the z-score above which a sequence counts as watermarked.
const DefaultThreshold = 4.0

var (
	ErrNoTokens         = errors.New("no tokens to score")
	ErrInvalidThreshold = errors.New("threshold must be positive")
)

// TokenScore is the greenlist hit statistic for one token sequence.
type TokenScore struct {
	Tokens      int     `json:"tokens"`
	Hits        int     `json:"hits"`
	Fraction    float64 `json:"fraction"`
	Expected    float64 `json:"expected"`
	ZScore      float64 `json:"z_score"`
	Watermarked bool    `json:"watermarked"`
}

// TokenVerifier recomputes each position's greenlist and counts hits.
type TokenVerifier struct {
	partitioner *greenlist.Partitioner
	threshold   float64
}

// NewTokenVerifier builds a verifier. A zero threshold selects DefaultThreshold.
func NewTokenVerifier(p *greenlist.Partitioner, threshold float64) (*TokenVerifier, error) {
	if p == nil {
		return nil, errors.New("nil partitioner")
	}
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || math.IsNaN(threshold) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	return &TokenVerifier{partitioner: p, threshold: threshold}, nil
}

// Threshold returns the configured z-score cut-off.
func (v *TokenVerifier) Threshold() float64 {
	return v.threshold
}

// Score checks tokens against greenlists keyed on s. prev is the token that
// preceded tokens[0], normally the last prompt token.
func (v *TokenVerifier) Score(s seed.Seed, prev vocab.Token, tokens []vocab.Token) (TokenScore, error) {
	if len(tokens) == 0 {
		return TokenScore{}, ErrNoTokens
	}
	hits := 0
	for i, t := range tokens {
		gl, err := v.partitioner.Greenlist(prev, s)
		if err != nil {
			return TokenScore{}, fmt.Errorf("greenlist at %d: %w", i, err)
		}
		if gl.Contains(t) {
			hits++
		}
		prev = t
	}

	gamma := v.partitioner.Config().Gamma()
	n := float64(len(tokens))
	score := TokenScore{
		Tokens:   len(tokens),
		Hits:     hits,
		Fraction: float64(hits) / n,
		Expected: gamma,
	}
	// A full-vocabulary greenlist has zero variance and carries no signal.
	if gamma < 1 {
		score.ZScore = (float64(hits) - gamma*n) / math.Sqrt(n*gamma*(1-gamma))
	}
	score.Watermarked = score.ZScore > v.threshold
	return score, nil
}

// VerifyText scores a stored prompt and response pair. Both are tokenized with
// enc; the seed and start token are rebuilt from the prompt the same way the
// generation loop builds them.
func (v *TokenVerifier) VerifyText(ctx context.Context, enc vocab.Encoder, eos vocab.Token, prompt, response string) (TokenScore, error) {
	promptTokens, err := enc.Encode(ctx, prompt)
	if err != nil {
		return TokenScore{}, fmt.Errorf("encode prompt: %w", err)
	}
	tokens, err := enc.Encode(ctx, response)
	if err != nil {
		return TokenScore{}, fmt.Errorf("encode response: %w", err)
	}
	return v.Score(seed.Derive(prompt), greenlist.StartToken(promptTokens, eos), tokens)
}
