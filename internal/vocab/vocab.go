// Package vocab defines token identities and the tokenizer capabilities the
// watermarking core depends on.
package vocab

import (
	"context"
	"errors"
	"fmt"
)

// #region token
// Token is an index into a model's fixed vocabulary.
type Token int

var ErrTokenRange = errors.New("token outside vocabulary")

// Check returns ErrTokenRange unless 0 <= t < size.
func (t Token) Check(size int) error {
	if t < 0 || int(t) >= size {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrTokenRange, t, size)
	}
	return nil
}

// #endregion token

// #region capabilities
// Encoder turns text into tokens.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]Token, error)
}

// Decoder turns tokens back into text.
type Decoder interface {
	Decode(ctx context.Context, tokens []Token) (string, error)
}

// Tokenizer is a model tokenizer.
type Tokenizer interface {
	Encoder
	Decoder
}

// #endregion capabilities
