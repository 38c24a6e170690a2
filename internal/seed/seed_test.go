package seed

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive_Deterministic(t *testing.T) {
	texts := []string{"", " ", "hello", "hello ", "The quick brown fox", "héllo wörld", "\u200bzero"}
	for _, text := range texts {
		assert.Equal(t, Derive(text), Derive(text), "text %q", text)
	}
}

func TestDerive_MatchesDigestPrefix(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog again and again today"
	sum := sha256.Sum256([]byte(text))
	prefix := hex.EncodeToString(sum[:])[:16]

	s := Derive(text)
	assert.Equal(t, prefix, s.Hex())

	parsed, err := Parse(prefix)
	require.NoError(t, err)
	assert.Equal(t, s, parsed)
}

func TestDerive_WhitespaceMatters(t *testing.T) {
	assert.NotEqual(t, Derive("a b"), Derive("a  b"))
	assert.NotEqual(t, Derive("a b"), Derive("a b\n"))
}

func TestDerive_NearDuplicatesDiffer(t *testing.T) {
	base := "Explain the difference between a process and a thread in operating systems"
	seen := make(map[Seed]string)
	seen[Derive(base)] = base

	runes := []rune(base)
	for i := range runes {
		mutated := make([]rune, len(runes))
		copy(mutated, runes)
		mutated[i] = mutated[i] + 1
		text := string(mutated)

		s := Derive(text)
		prev, dup := seen[s]
		require.False(t, dup, "seed collision between %q and %q", prev, text)
		seen[s] = text
	}

	for i := 0; i < 200; i++ {
		text := fmt.Sprintf("%s %d", base, i)
		s := Derive(text)
		prev, dup := seen[s]
		require.False(t, dup, "seed collision between %q and %q", prev, text)
		seen[s] = text
	}
}

func TestRand_FreshStreamPerCall(t *testing.T) {
	s := Derive("prompt")
	a, b := s.Rand(), s.Rand()
	for i := 0; i < 32; i++ {
		assert.Equal(t, a.Int63(), b.Int63())
	}
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("not-hex")
	assert.Error(t, err)
}

func TestBytes_BigEndian(t *testing.T) {
	s := Seed(0x0102030405060708)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, s.Bytes())
}
