package sampler

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/greenlist"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/seed"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/vocab"
)

func sum(p []float64) float64 {
	var s float64
	for _, v := range p {
		s += v
	}
	return s
}

func TestHardMask_NeverLeavesGreenlist(t *testing.T) {
	s, err := New(HardMask{})
	require.NoError(t, err)

	p, err := greenlist.NewPartitioner(greenlist.Config{VocabSize: 200, K: 50})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(5))
	logits := make([]float32, 200)
	for i := range logits {
		logits[i] = float32(rng.NormFloat64() * 3)
	}
	// Put most of the raw mass on one token and make sure masking still wins.
	logits[0] = 50

	sd := seed.Derive("masking")
	prev := vocab.Token(0)
	for i := 0; i < 500; i++ {
		gl, err := p.Greenlist(prev, sd)
		require.NoError(t, err)
		tok, err := s.Next(logits, gl, rng)
		require.NoError(t, err)
		require.True(t, gl.Contains(tok), "token %d outside greenlist", tok)
		prev = tok
	}
}

func TestDistribution_StableForLargeLogits(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)

	logits := []float32{1e4, -1e4, 5e3, 1e4, 0, 3}
	gl := greenlist.NewSet(0, 0, 2, 3, 5)

	probs, err := s.Distribution(logits, gl)
	require.NoError(t, err)
	for i, v := range probs {
		require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "index %d", i)
	}
	assert.InDelta(t, 1.0, sum(probs), 1e-9)
	assert.Zero(t, probs[1])
	assert.Zero(t, probs[4])
	assert.InDelta(t, 0.5, probs[0], 1e-9)
	assert.InDelta(t, 0.5, probs[3], 1e-9)
}

func TestSoftBias_ShiftsMassTowardGreenlist(t *testing.T) {
	logits := []float32{0, 0, 0, 0}
	gl := greenlist.NewSet(0, 1)

	soft, err := New(SoftBias{Delta: math.Log(3)})
	require.NoError(t, err)
	probs, err := soft.Distribution(logits, gl)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, probs[1], 1e-9)
	assert.InDelta(t, 1.0/6, probs[0], 1e-9)
	assert.InDelta(t, 1.0, sum(probs), 1e-9)
}

func TestNext_EmptyGreenlistFailsFast(t *testing.T) {
	s, err := New(HardMask{})
	require.NoError(t, err)

	_, err = s.Next([]float32{1, 2, 3}, greenlist.Set{}, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrEmptyGreenlist)

	_, err = s.Next(nil, greenlist.NewSet(0, 1), rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrEmptyLogits)
}

func TestDistribution_RejectsBadInput(t *testing.T) {
	s, err := New(HardMask{})
	require.NoError(t, err)

	_, err = s.Distribution([]float32{1, 2}, greenlist.NewSet(0, 5))
	assert.ErrorIs(t, err, vocab.ErrTokenRange)

	_, err = s.Distribution([]float32{float32(math.NaN()), 1}, greenlist.NewSet(0, 1))
	assert.ErrorIs(t, err, ErrInvalidLogit)

	neg := float32(math.Inf(-1))
	_, err = s.Distribution([]float32{neg, 1}, greenlist.NewSet(0, 0))
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestNew_Options(t *testing.T) {
	_, err := New(HardMask{}, WithTemperature(0))
	assert.ErrorIs(t, err, ErrInvalidOption)
	_, err = New(HardMask{}, WithTemperature(2.5))
	assert.ErrorIs(t, err, ErrInvalidOption)
	_, err = New(HardMask{}, WithTopP(0))
	assert.ErrorIs(t, err, ErrInvalidOption)
	_, err = New(SoftBias{Delta: 0})
	assert.ErrorIs(t, err, ErrInvalidOption)
	_, err = New(SoftBias{Delta: 101})
	assert.ErrorIs(t, err, ErrInvalidOption)

	_, err = New(HardMask{}, WithTemperature(0.7), WithTopP(0.95))
	assert.NoError(t, err)
}

func TestTopP_TrimsTail(t *testing.T) {
	s, err := New(HardMask{}, WithTopP(0.5))
	require.NoError(t, err)

	logits := []float32{3, 2, 1, 0}
	probs, err := s.Distribution(logits, greenlist.NewSet(0, 0, 1, 2, 3))
	require.NoError(t, err)

	assert.InDelta(t, 1.0, probs[0], 1e-9)
	assert.Zero(t, probs[1])
	assert.Zero(t, probs[3])
}

func TestTemperature_Sharpens(t *testing.T) {
	gl := greenlist.NewSet(0, 0, 1)
	logits := []float32{1, 0}

	base, err := New(HardMask{})
	require.NoError(t, err)
	cold, err := New(HardMask{}, WithTemperature(0.5))
	require.NoError(t, err)

	pb, err := base.Distribution(logits, gl)
	require.NoError(t, err)
	pc, err := cold.Distribution(logits, gl)
	require.NoError(t, err)
	assert.Greater(t, pc[0], pb[0])
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("", 0)
	require.NoError(t, err)
	assert.IsType(t, HardMask{}, p)

	p, err = ParsePolicy(PolicySoft, 2)
	require.NoError(t, err)
	assert.Equal(t, SoftBias{Delta: 2}, p)

	_, err = ParsePolicy(PolicySoft, 0)
	assert.ErrorIs(t, err, ErrInvalidOption)
	_, err = ParsePolicy("lukewarm", 1)
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestDraw_Boundaries(t *testing.T) {
	probs := []float64{0, 0.25, 0, 0.75}
	assert.Equal(t, vocab.Token(1), draw(probs, 0))
	assert.Equal(t, vocab.Token(3), draw(probs, 0.25))
	assert.Equal(t, vocab.Token(3), draw(probs, 0.9999999999))
	assert.Equal(t, vocab.Token(3), draw(probs, 1.5))
}
