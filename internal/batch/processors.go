package batch

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/bias"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/codec"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/detect"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/generate"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/logging"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/rules"
)

// GenerationParams are passed to the generation capability for every item.
type GenerationParams struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	LogitBias   bias.LogitBias
}

// EmbedProcessor watermarks each prompt and sends the side instructions as
// the system message and the watermarked text as the user message.
func EmbedProcessor(p *rules.Pipeline, gen codec.Generator, params GenerationParams) Processor {
	return func(ctx context.Context, prompt string) (Result, error) {
		art, err := p.Embed(prompt)
		if err != nil {
			return Result{}, fmt.Errorf("embed: %w", err)
		}
		text, err := gen.Generate(ctx, codec.Request{
			System:      art.Instructions,
			User:        art.Final,
			MaxTokens:   params.MaxTokens,
			Temperature: params.Temperature,
			TopP:        params.TopP,
			LogitBias:   params.LogitBias,
		})
		if err != nil {
			return Result{Artifact: art}, err
		}
		return Result{
			Response: text,
			Artifact: art,
			Detail: logging.OutcomeDetail{
				Seed:         art.Seed.Hex(),
				Findings:     detect.Detect(art.Final).Count(),
				Instructions: art.Instructions,
			},
		}, nil
	}
}

// TokenProcessor runs the greenlist generation loop on each prompt. When
// verifier is non-nil the response is scored against its own seed.
func TokenProcessor(loop *generate.Loop, verifier *detect.TokenVerifier) Processor {
	return func(ctx context.Context, prompt string) (Result, error) {
		res, err := loop.Run(ctx, prompt)
		if err != nil {
			return Result{}, err
		}
		detail := logging.OutcomeDetail{Seed: res.Seed.Hex(), Tokens: len(res.Tokens)}
		if verifier != nil && len(res.Tokens) > 0 {
			score, err := verifier.Score(res.Seed, res.Start, res.Tokens)
			if err != nil {
				return Result{}, fmt.Errorf("verify: %w", err)
			}
			detail.Hits = score.Hits
			detail.ZScore = score.ZScore
			detail.Watermarked = score.Watermarked
		}
		return Result{
			Response: res.Text,
			Artifact: rules.Artifact{Original: prompt, Final: prompt, Seed: res.Seed},
			Detail:   detail,
		}, nil
	}
}
