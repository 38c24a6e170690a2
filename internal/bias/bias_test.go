package bias

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/vocab"
)

// byteEncoder maps each byte of a word to a token.
type byteEncoder struct {
	fail string
}

func (e byteEncoder) Encode(_ context.Context, text string) ([]vocab.Token, error) {
	if e.fail != "" && text == e.fail {
		return nil, errors.New("tokenizer down")
	}
	out := make([]vocab.Token, len(text))
	for i := 0; i < len(text); i++ {
		out[i] = vocab.Token(text[i])
	}
	return out, nil
}

func TestCompile_ClampsAndMaps(t *testing.T) {
	l := StaticList{Words: map[string]float64{"a": 500, "b": -500, "c": 7}}
	got, err := l.Compile(context.Background(), byteEncoder{})
	require.NoError(t, err)

	assert.Equal(t, LogitBias{'a': 100, 'b': -100, 'c': 7}, got)
}

func TestCompile_SharedTokenDeterministic(t *testing.T) {
	l := StaticList{Words: map[string]float64{"ab": 10, "bc": -10}}
	for i := 0; i < 20; i++ {
		got, err := l.Compile(context.Background(), byteEncoder{})
		require.NoError(t, err)
		// "bc" sorts after "ab", so it wins the shared 'b'.
		assert.Equal(t, -10.0, got['b'])
	}
}

func TestCompile_Errors(t *testing.T) {
	_, err := StaticList{}.Compile(context.Background(), byteEncoder{})
	assert.ErrorIs(t, err, ErrEmptyList)

	_, err = StaticList{Words: map[string]float64{"x": 1}}.Compile(context.Background(), byteEncoder{fail: "x"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "encode \"x\""))
}

func TestDefaultStaticList(t *testing.T) {
	l := DefaultStaticList()
	assert.Equal(t, 10.0, l.Words["certainly"])
	assert.Equal(t, -10.0, l.Words["the"])
	assert.Equal(t, -10.0, l.Words[","])
	assert.Len(t, l.Words, 16)
}

func TestApply(t *testing.T) {
	b := LogitBias{1: 2.5, 3: -1}
	logits := []float32{0, 1, 2, 3}

	out, err := b.Apply(logits)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 3.5, 2, 2}, out)
	assert.Equal(t, []float32{0, 1, 2, 3}, logits)

	_, err = LogitBias{9: 1}.Apply(logits)
	assert.ErrorIs(t, err, vocab.ErrTokenRange)
}

func TestWire(t *testing.T) {
	assert.Equal(t, map[string]float64{"42": -3}, LogitBias{42: -3}.Wire())
}
