package greenlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/seed"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/vocab"
)

func TestGreenlist_CardinalityAndRange(t *testing.T) {
	cases := []struct {
		name  string
		vocab int
		k     int
	}{
		{"single", 1, 1},
		{"quarter", 100, 25},
		{"half", 1000, 500},
		{"full", 64, 64},
		{"sparse", 50257, 12},
	}
	s := seed.Derive("greenlist cardinality")
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for prev := 0; prev < min(tc.vocab, 20); prev++ {
				set, err := Greenlist(vocab.Token(prev), s, tc.k, tc.vocab)
				require.NoError(t, err)
				require.Equal(t, tc.k, set.Len())

				tokens := set.Tokens()
				for i, tok := range tokens {
					assert.GreaterOrEqual(t, int(tok), 0)
					assert.Less(t, int(tok), tc.vocab)
					assert.True(t, set.Contains(tok))
					if i > 0 {
						assert.Less(t, tokens[i-1], tok)
					}
				}
			}
		})
	}
}

func TestGreenlist_Deterministic(t *testing.T) {
	p, err := NewPartitioner(Config{VocabSize: 32000, K: 8000})
	require.NoError(t, err)

	s := seed.Derive("same prompt")
	for prev := vocab.Token(0); prev < 50; prev++ {
		a, err := p.Greenlist(prev, s)
		require.NoError(t, err)
		b, err := p.Greenlist(prev, s)
		require.NoError(t, err)
		assert.Equal(t, a.Tokens(), b.Tokens())
		assert.Equal(t, prev, a.Prev())
	}
}

func TestGreenlist_KeyedOnPrevAndSeed(t *testing.T) {
	p, err := NewPartitioner(Config{VocabSize: 1000, K: 250})
	require.NoError(t, err)

	s1 := seed.Derive("first")
	s2 := seed.Derive("second")

	a, err := p.Greenlist(7, s1)
	require.NoError(t, err)
	b, err := p.Greenlist(8, s1)
	require.NoError(t, err)
	c, err := p.Greenlist(7, s2)
	require.NoError(t, err)

	assert.NotEqual(t, a.Tokens(), b.Tokens())
	assert.NotEqual(t, a.Tokens(), c.Tokens())
}

func TestGreenlist_RoughlyUniform(t *testing.T) {
	const vocabSize, k, rounds = 20, 5, 4000
	p, err := NewPartitioner(Config{VocabSize: vocabSize, K: k})
	require.NoError(t, err)

	counts := make([]int, vocabSize)
	for i := 0; i < rounds; i++ {
		set, err := p.Greenlist(vocab.Token(i%vocabSize), seed.Seed(uint64(i)*2654435761))
		require.NoError(t, err)
		for _, tok := range set.Tokens() {
			counts[tok]++
		}
	}
	expected := float64(rounds*k) / vocabSize
	for tok, c := range counts {
		assert.InDelta(t, expected, float64(c), expected*0.15, "token %d", tok)
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.ErrorIs(t, Config{VocabSize: 0, K: 0}.Validate(), ErrInvalidVocab)
	assert.ErrorIs(t, Config{VocabSize: 10, K: 0}.Validate(), ErrInvalidK)
	assert.ErrorIs(t, Config{VocabSize: 10, K: 11}.Validate(), ErrInvalidK)
	assert.ErrorIs(t, Config{VocabSize: 10, K: -1}.Validate(), ErrInvalidK)
	assert.NoError(t, Config{VocabSize: 10, K: 10}.Validate())
	assert.InDelta(t, 0.25, Config{VocabSize: 100, K: 25}.Gamma(), 1e-12)
}

func TestGreenlist_PrevOutOfRange(t *testing.T) {
	p, err := NewPartitioner(Config{VocabSize: 10, K: 3})
	require.NoError(t, err)

	_, err = p.Greenlist(10, seed.Derive("x"))
	assert.ErrorIs(t, err, vocab.ErrTokenRange)
	_, err = p.Greenlist(-1, seed.Derive("x"))
	assert.ErrorIs(t, err, vocab.ErrTokenRange)
}

func TestNewSet(t *testing.T) {
	set := NewSet(3, 9, 1, 9, 4)
	assert.Equal(t, []vocab.Token{1, 4, 9}, set.Tokens())
	assert.Equal(t, 3, set.Len())
	assert.False(t, set.Contains(3))
	assert.Equal(t, vocab.Token(3), set.Prev())
}

func TestStartToken(t *testing.T) {
	assert.Equal(t, vocab.Token(63), StartToken(nil, 63))
	assert.Equal(t, vocab.Token(9), StartToken([]vocab.Token{1, 9}, 63))
}
