// Package seed maps text to the deterministic generator that drives every
// pseudo-random choice made while watermarking that text.
package seed

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/rand"
	"strconv"
)

// #region constants
// prefixLen is the number of hex digits of the digest interpreted as the seed.
const prefixLen = 16

// #endregion constants

// #region seed
// Seed is a content-derived 64-bit value. It depends on nothing but the text it
// was derived from.
type Seed uint64

// Derive hashes the UTF-8 bytes of text with SHA-256 and reads the first
// 16 hex digits of the digest as a base-16 integer.
func Derive(text string) Seed {
	sum := sha256.Sum256([]byte(text))
	digest := hex.EncodeToString(sum[:])
	v, _ := strconv.ParseUint(digest[:prefixLen], 16, 64)
	return Seed(v)
}

// Rand returns a fresh generator positioned at the start of the seed's stream.
// Callers own the returned value; it is never shared between artifacts.
func (s Seed) Rand() *rand.Rand {
	return rand.New(rand.NewSource(int64(s)))
}

// Bytes returns the big-endian encoding of the seed.
func (s Seed) Bytes() []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(s))
	return buf[:]
}

// Hex returns the seed as the 16-digit hex prefix it was parsed from.
func (s Seed) Hex() string {
	return fmt.Sprintf("%016x", uint64(s))
}

// Parse reads a seed previously rendered with Hex.
func Parse(h string) (Seed, error) {
	v, err := strconv.ParseUint(h, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse seed %q: %w", h, err)
	}
	return Seed(v), nil
}

// #endregion seed
