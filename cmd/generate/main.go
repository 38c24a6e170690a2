package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/batch"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/bias"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/codec"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/config"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/detect"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/generate"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/greenlist"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/state"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/vocab"
)

// #region main
func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: generate [prompts.jsonl]")
	}
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	input := cfg.Batch.Input
	if flag.NArg() > 0 {
		input = flag.Arg(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, err := codec.NewClient(cfg.Transport.Addr)
	if err != nil {
		log.Fatalf("failed to connect to model service at %s: %v", cfg.Transport.Addr, err)
	}
	defer client.Close()

	part, err := greenlist.NewPartitioner(cfg.Greenlist())
	if err != nil {
		log.Fatalf("greenlist: %v", err)
	}
	smp, err := cfg.Sampler()
	if err != nil {
		log.Fatalf("sampler: %v", err)
	}

	var logitBias bias.LogitBias
	if cfg.Token.StaticBias {
		logitBias, err = cfg.StaticList().Compile(ctx, client)
		if err != nil {
			log.Fatalf("compile static bias: %v", err)
		}
	}

	loop, err := generate.NewLoop(client, client, part, smp, generate.Config{
		MaxTokens: cfg.Generation.MaxTokens,
		EOS:       vocab.Token(cfg.Token.EOS),
		Bias:      logitBias,
	})
	if err != nil {
		log.Fatalf("generation loop: %v", err)
	}
	verifier, err := detect.NewTokenVerifier(part, cfg.Token.Threshold)
	if err != nil {
		log.Fatalf("verifier: %v", err)
	}

	ledger, err := batch.OpenLedgerFile(cfg.Ledger.Path, state.KindGenerate, input, cfg.Hash())
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	defer ledger.Close()

	runner, err := batch.NewRunner(state.KindGenerate, batch.TokenProcessor(loop, verifier),
		batch.WithWorkers(cfg.Batch.Workers),
		batch.WithTimeout(cfg.Timeout()),
		batch.WithLedger(ledger),
	)
	if err != nil {
		log.Fatalf("build runner: %v", err)
	}

	counts, err := runner.RunFile(ctx, input, cfg.Batch.TokenOutput)
	if err != nil {
		if errors.Is(err, batch.ErrInputNotFound) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		log.Fatalf("generate batch: %v", err)
	}
	if err := ledger.Finish(counts); err != nil {
		log.Printf("[LEDGER] finish: %v", err)
	}

	fmt.Printf("Saved %d token-watermarked responses to %s (%d skipped, %d failed)\n",
		counts.Written, cfg.Batch.TokenOutput, counts.Skipped, counts.Failed)
}

// #endregion main
