// Package greenlist partitions a vocabulary into a pseudo-random favoured
// subset keyed on the previous token and a content seed.
package greenlist

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"

	"golang.org/x/crypto/hkdf"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/seed"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/vocab"
)

// #region config
var (
	ErrInvalidVocab = errors.New("vocabulary size must be positive")
	ErrInvalidK     = errors.New("greenlist size must satisfy 0 < k <= vocab size")
)

// keySalt separates greenlist keys from any other use of the same seed.
var keySalt = []byte("prompt-token-watermark/greenlist/v1")

// Config fixes the vocabulary size and the number of favoured tokens.
type Config struct {
	VocabSize int `json:"vocab_size" toml:"vocab_size" yaml:"vocab_size"`
	K         int `json:"k" toml:"k" yaml:"k"`
}

// Validate rejects k <= 0, k > vocab size and empty vocabularies.
func (c Config) Validate() error {
	if c.VocabSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidVocab, c.VocabSize)
	}
	if c.K <= 0 || c.K > c.VocabSize {
		return fmt.Errorf("%w: k=%d vocab=%d", ErrInvalidK, c.K, c.VocabSize)
	}
	return nil
}

// Gamma is the expected greenlist hit rate of unwatermarked text, k/V.
func (c Config) Gamma() float64 {
	return float64(c.K) / float64(c.VocabSize)
}

// #endregion config

// #region set
// Set is one greenlist. It is immutable once built.
type Set struct {
	prev    vocab.Token
	tokens  []vocab.Token
	members map[vocab.Token]struct{}
}

// NewSet builds a set from explicit members, mostly for callers that already
// know their greenlist.
func NewSet(prev vocab.Token, tokens ...vocab.Token) Set {
	members := make(map[vocab.Token]struct{}, len(tokens))
	for _, t := range tokens {
		members[t] = struct{}{}
	}
	return newSet(prev, members)
}

func newSet(prev vocab.Token, members map[vocab.Token]struct{}) Set {
	tokens := make([]vocab.Token, 0, len(members))
	for t := range members {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	return Set{prev: prev, tokens: tokens, members: members}
}

// Contains reports membership.
func (s Set) Contains(t vocab.Token) bool {
	_, ok := s.members[t]
	return ok
}

// Len returns the number of members.
func (s Set) Len() int {
	return len(s.tokens)
}

// Prev returns the token the set was keyed on.
func (s Set) Prev() vocab.Token {
	return s.prev
}

// Tokens returns the members in ascending order.
func (s Set) Tokens() []vocab.Token {
	out := make([]vocab.Token, len(s.tokens))
	copy(out, s.tokens)
	return out
}

// StartToken is the token the first generated position is keyed on: the last
// prompt token, or eos for an empty prompt.
func StartToken(prompt []vocab.Token, eos vocab.Token) vocab.Token {
	if len(prompt) == 0 {
		return eos
	}
	return prompt[len(prompt)-1]
}

// #endregion set

// #region partitioner
// Partitioner computes greenlists for one vocabulary and size.
type Partitioner struct {
	cfg Config
}

// NewPartitioner validates cfg.
func NewPartitioner(cfg Config) (*Partitioner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Partitioner{cfg: cfg}, nil
}

// Config returns the partitioner's configuration.
func (p *Partitioner) Config() Config {
	return p.cfg
}

// Greenlist draws k distinct tokens uniformly from [0, V) using a generator
// keyed only on (prev, s). No state survives between calls.
func (p *Partitioner) Greenlist(prev vocab.Token, s seed.Seed) (Set, error) {
	if err := prev.Check(p.cfg.VocabSize); err != nil {
		return Set{}, fmt.Errorf("greenlist prev: %w", err)
	}
	rng, err := keyedRand(prev, s)
	if err != nil {
		return Set{}, err
	}
	return newSet(prev, sampleDistinct(rng, p.cfg.VocabSize, p.cfg.K)), nil
}

// Greenlist is the one-shot form of Partitioner.Greenlist.
func Greenlist(prev vocab.Token, s seed.Seed, k, vocabSize int) (Set, error) {
	p, err := NewPartitioner(Config{VocabSize: vocabSize, K: k})
	if err != nil {
		return Set{}, err
	}
	return p.Greenlist(prev, s)
}

// #endregion partitioner

// #region helpers
// keyedRand expands (seed, prev) through HKDF-SHA256 into a generator seed.
func keyedRand(prev vocab.Token, s seed.Seed) (*rand.Rand, error) {
	var info [8]byte
	binary.BigEndian.PutUint64(info[:], uint64(prev))

	r := hkdf.New(sha256.New, s.Bytes(), keySalt, info[:])
	var key [8]byte
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return nil, fmt.Errorf("derive greenlist key: %w", err)
	}
	return rand.New(rand.NewSource(int64(binary.BigEndian.Uint64(key[:])))), nil
}

// sampleDistinct is Floyd's algorithm: k distinct values from [0, n) in O(k).
func sampleDistinct(rng *rand.Rand, n, k int) map[vocab.Token]struct{} {
	members := make(map[vocab.Token]struct{}, k)
	for j := n - k; j < n; j++ {
		t := vocab.Token(rng.Intn(j + 1))
		if _, taken := members[t]; taken {
			t = vocab.Token(j)
		}
		members[t] = struct{}{}
	}
	return members
}

// #endregion helpers
