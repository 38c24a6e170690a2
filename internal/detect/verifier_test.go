package detect

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/greenlist"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/seed"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/vocab"
)

func newVerifier(t *testing.T, v, k int) (*greenlist.Partitioner, *TokenVerifier) {
	t.Helper()
	p, err := greenlist.NewPartitioner(greenlist.Config{VocabSize: v, K: k})
	require.NoError(t, err)
	tv, err := NewTokenVerifier(p, 0)
	require.NoError(t, err)
	return p, tv
}

// greenWalk picks the smallest greenlist member at every step.
func greenWalk(t *testing.T, p *greenlist.Partitioner, s seed.Seed, prev vocab.Token, n int) []vocab.Token {
	t.Helper()
	out := make([]vocab.Token, 0, n)
	for j := 0; j < n; j++ {
		gl, err := p.Greenlist(prev, s)
		require.NoError(t, err)
		prev = gl.Tokens()[0]
		out = append(out, prev)
	}
	return out
}

// redWalk picks the smallest token outside the greenlist at every step.
func redWalk(t *testing.T, p *greenlist.Partitioner, s seed.Seed, prev vocab.Token, n int) []vocab.Token {
	t.Helper()
	out := make([]vocab.Token, 0, n)
	for j := 0; j < n; j++ {
		gl, err := p.Greenlist(prev, s)
		require.NoError(t, err)
		next := vocab.Token(0)
		for gl.Contains(next) {
			next++
		}
		prev = next
		out = append(out, prev)
	}
	return out
}

func TestTokenVerifier_GreenSequenceIsWatermarked(t *testing.T) {
	p, v := newVerifier(t, 1000, 250)
	s := seed.Derive("verify me")

	score, err := v.Score(s, 7, greenWalk(t, p, s, 7, 64))
	require.NoError(t, err)
	assert.Equal(t, 64, score.Tokens)
	assert.Equal(t, 64, score.Hits)
	assert.InDelta(t, 1.0, score.Fraction, 1e-12)
	assert.InDelta(t, 0.25, score.Expected, 1e-12)
	assert.Greater(t, score.ZScore, DefaultThreshold)
	assert.True(t, score.Watermarked)
}

func TestTokenVerifier_RedSequenceIsNot(t *testing.T) {
	p, v := newVerifier(t, 1000, 250)
	s := seed.Derive("verify me")

	score, err := v.Score(s, 7, redWalk(t, p, s, 7, 64))
	require.NoError(t, err)
	assert.Equal(t, 0, score.Hits)
	assert.Less(t, score.ZScore, 0.0)
	assert.False(t, score.Watermarked)
}

func TestTokenVerifier_WrongSeedLosesSignal(t *testing.T) {
	p, v := newVerifier(t, 1000, 250)
	tokens := greenWalk(t, p, seed.Derive("right"), 3, 200)

	score, err := v.Score(seed.Derive("wrong"), 3, tokens)
	require.NoError(t, err)
	assert.False(t, score.Watermarked)
}

func TestTokenVerifier_FullVocabHasNoSignal(t *testing.T) {
	_, v := newVerifier(t, 8, 8)
	score, err := v.Score(seed.Derive("x"), 0, []vocab.Token{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, score.Hits)
	assert.Equal(t, 0.0, score.ZScore)
	assert.False(t, score.Watermarked)
}

func TestTokenVerifier_Errors(t *testing.T) {
	p, v := newVerifier(t, 10, 5)

	_, err := v.Score(seed.Derive("x"), 0, nil)
	assert.True(t, errors.Is(err, ErrNoTokens))

	_, err = NewTokenVerifier(p, -1)
	assert.True(t, errors.Is(err, ErrInvalidThreshold))

	_, err = v.Score(seed.Derive("x"), 0, []vocab.Token{2, 99, 3})
	assert.Error(t, err)

	custom, err := NewTokenVerifier(p, 2.5)
	require.NoError(t, err)
	assert.Equal(t, 2.5, custom.Threshold())
}

type tableEncoder map[string][]vocab.Token

func (e tableEncoder) Encode(_ context.Context, text string) ([]vocab.Token, error) {
	toks, ok := e[text]
	if !ok {
		return nil, errors.New("unknown text")
	}
	return toks, nil
}

func TestTokenVerifier_VerifyText(t *testing.T) {
	p, v := newVerifier(t, 1000, 250)
	prompt := "tell me about rivers"
	s := seed.Derive(prompt)
	green := greenWalk(t, p, s, 42, 48)

	enc := tableEncoder{prompt: {3, 9, 42}, "green": green, "empty": nil}

	score, err := v.VerifyText(context.Background(), enc, 999, prompt, "green")
	require.NoError(t, err)
	assert.Equal(t, 48, score.Hits)
	assert.True(t, score.Watermarked)

	_, err = v.VerifyText(context.Background(), enc, 999, prompt, "empty")
	assert.ErrorIs(t, err, ErrNoTokens)

	_, err = v.VerifyText(context.Background(), enc, 999, "unseen", "green")
	assert.ErrorContains(t, err, "encode prompt")
}

func TestTokenVerifier_VerifyTextEmptyPromptStartsFromEOS(t *testing.T) {
	p, v := newVerifier(t, 1000, 250)
	s := seed.Derive("")
	green := greenWalk(t, p, s, 999, 32)

	enc := tableEncoder{"": nil, "green": green}
	score, err := v.VerifyText(context.Background(), enc, 999, "", "green")
	require.NoError(t, err)
	assert.Equal(t, 32, score.Hits)
}
