package records

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderSkipsBlankLines(t *testing.T) {
	in := "{\"prompt\":\"a\"}\n\n   \n{\"prompt\":\"b\"}\n"
	lines, err := NewReader(strings.NewReader(in)).ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, 1, lines[0].Number)
	assert.Equal(t, 4, lines[1].Number)
}

func TestReaderOversizedLineIsMalformed(t *testing.T) {
	huge := strings.Repeat("y", maxLineBytes+10)
	in := "{\"prompt\":\"a\"}\n" + huge + "\n{\"prompt\":\"b\"}\n" + huge

	lines, err := NewReader(strings.NewReader(in)).ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, 4)

	for _, idx := range []int{1, 3} {
		l := lines[idx]
		assert.Equal(t, idx+1, l.Number)
		require.Error(t, l.Err)
		assert.True(t, errors.Is(l.Err, ErrMalformed))

		_, err := DecodePrompt(l)
		var le *LineError
		require.True(t, errors.As(err, &le))
		assert.Equal(t, idx+1, le.Line)

		_, err = Field(l, "prompt")
		assert.True(t, errors.Is(err, ErrMalformed))
	}

	rec, err := DecodePrompt(lines[2])
	require.NoError(t, err)
	assert.Equal(t, "b", rec.Prompt)
}

func TestReaderLastLineWithoutNewline(t *testing.T) {
	lines, err := NewReader(strings.NewReader("{\"prompt\":\"a\"}\n{\"prompt\":\"b\"}")).ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, `{"prompt":"b"}`, string(lines[1].Raw))
}

func TestDecodePrompt(t *testing.T) {
	rec, err := DecodePrompt(Line{Number: 1, Raw: []byte(`{"prompt":"hello","extra":1}`)})
	require.NoError(t, err)
	assert.Equal(t, "hello", rec.Prompt)
}

func TestDecodePromptMalformed(t *testing.T) {
	_, err := DecodePrompt(Line{Number: 3, Raw: []byte(`{"prompt":`)})
	require.Error(t, err)

	var le *LineError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 3, le.Line)
	assert.True(t, errors.Is(err, ErrMalformed))
	assert.Contains(t, err.Error(), "line 3")
}

func TestDecodePromptMissingField(t *testing.T) {
	_, err := DecodePrompt(Line{Number: 2, Raw: []byte(`{"text":"hi"}`)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingField))
}

func TestDecodePromptWrongType(t *testing.T) {
	_, err := DecodePrompt(Line{Number: 2, Raw: []byte(`{"prompt":42}`)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestDecodeResponse(t *testing.T) {
	rec, err := DecodeResponse(Line{Number: 1, Raw: []byte(`{"prompt":"p","response":"r"}`)})
	require.NoError(t, err)
	assert.Equal(t, ResponseRecord{Prompt: "p", Response: "r"}, rec)

	_, err = DecodeResponse(Line{Number: 1, Raw: []byte(`{"prompt":"p"}`)})
	assert.True(t, errors.Is(err, ErrMissingField))
}

func TestField(t *testing.T) {
	l := Line{Number: 5, Raw: []byte(`{"response":"x","n":1}`)}

	v, err := Field(l, "response")
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	_, err = Field(l, "missing")
	assert.True(t, errors.Is(err, ErrMissingField))

	_, err = Field(l, "n")
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestWriterKeepsZeroWidthRaw(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Write(ResponseRecord{Prompt: "a\u200bb", Response: "<ok>"}))

	out := buf.String()
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.Contains(t, out, "a\u200bb")
	assert.Contains(t, out, "<ok>")

	lines, err := NewReader(&buf).ReadAll()
	require.NoError(t, err)
	rec, err := DecodeResponse(lines[0])
	require.NoError(t, err)
	assert.Equal(t, "a\u200bb", rec.Prompt)
}
