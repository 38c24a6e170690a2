// Package generate runs greenlist-watermarked token generation against a
// model that exposes next-token logits.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/bias"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/codec"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/greenlist"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/sampler"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/seed"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/vocab"
)

// #region types
var (
	ErrInvalidConfig = errors.New("invalid generation config")
	ErrLogitsSize    = errors.New("logits length does not match vocabulary")
)

// Stop reasons.
const (
	StopEOS       = "eos"
	StopMaxTokens = "max_tokens"
)

// Config bounds one generation.
type Config struct {
	MaxTokens int
	EOS       vocab.Token
	Bias      bias.LogitBias
}

// Result is one finished generation.
type Result struct {
	Seed   seed.Seed
	Prompt []vocab.Token
	Start  vocab.Token
	Tokens []vocab.Token
	Text   string
	Stop   string
}

// #endregion types

// #region loop
// Loop ties a tokenizer, a logits source, a partitioner and a sampler.
type Loop struct {
	tok     vocab.Tokenizer
	source  codec.LogitsSource
	part    *greenlist.Partitioner
	sampler *sampler.Sampler
	cfg     Config
}

// NewLoop validates the collaborators and limits.
func NewLoop(tok vocab.Tokenizer, source codec.LogitsSource, part *greenlist.Partitioner, smp *sampler.Sampler, cfg Config) (*Loop, error) {
	if tok == nil || source == nil || part == nil || smp == nil {
		return nil, fmt.Errorf("%w: missing collaborator", ErrInvalidConfig)
	}
	if cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("%w: max tokens %d", ErrInvalidConfig, cfg.MaxTokens)
	}
	size := part.Config().VocabSize
	if err := cfg.EOS.Check(size); err != nil {
		return nil, fmt.Errorf("%w: eos: %v", ErrInvalidConfig, err)
	}
	for t := range cfg.Bias {
		if err := t.Check(size); err != nil {
			return nil, fmt.Errorf("%w: bias: %v", ErrInvalidConfig, err)
		}
	}
	return &Loop{tok: tok, source: source, part: part, sampler: smp, cfg: cfg}, nil
}

// Run generates a continuation of prompt. The prompt's content seed keys
// every greenlist and drives all sampling draws.
func (l *Loop) Run(ctx context.Context, prompt string) (Result, error) {
	s := seed.Derive(prompt)
	rng := s.Rand()

	promptTokens, err := l.tok.Encode(ctx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("encode prompt: %w", err)
	}
	res := Result{
		Seed:   s,
		Prompt: promptTokens,
		Start:  greenlist.StartToken(promptTokens, l.cfg.EOS),
		Stop:   StopMaxTokens,
	}

	size := l.part.Config().VocabSize
	seq := append([]vocab.Token(nil), promptTokens...)
	prev := res.Start
	for step := 0; step < l.cfg.MaxTokens; step++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		logits, err := l.source.NextLogits(ctx, seq)
		if err != nil {
			return Result{}, fmt.Errorf("step %d: %w", step, err)
		}
		if len(logits) != size {
			return Result{}, fmt.Errorf("step %d: %w: got %d, want %d", step, ErrLogitsSize, len(logits), size)
		}
		if len(l.cfg.Bias) > 0 {
			if logits, err = l.cfg.Bias.Apply(logits); err != nil {
				return Result{}, fmt.Errorf("step %d: %w", step, err)
			}
		}
		gl, err := l.part.Greenlist(prev, s)
		if err != nil {
			return Result{}, fmt.Errorf("step %d: %w", step, err)
		}
		next, err := l.sampler.Next(logits, gl, rng)
		if err != nil {
			return Result{}, fmt.Errorf("step %d: %w", step, err)
		}
		if next == l.cfg.EOS {
			res.Stop = StopEOS
			break
		}
		res.Tokens = append(res.Tokens, next)
		seq = append(seq, next)
		prev = next
	}

	res.Text, err = l.tok.Decode(ctx, res.Tokens)
	if err != nil {
		return Result{}, fmt.Errorf("decode: %w", err)
	}
	log.Printf("[GEN] seed=%s prompt_tokens=%d generated=%d stop=%s", s.Hex(), len(promptTokens), len(res.Tokens), res.Stop)
	return res, nil
}

// #endregion loop
