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
	"github.com/danielpatrickdp/prompt-token-watermark/internal/state"
)

// #region main
func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: embed [prompts.jsonl]")
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

	pipeline, err := cfg.Pipeline()
	if err != nil {
		log.Fatalf("build rules: %v", err)
	}

	client, err := codec.NewClient(cfg.Transport.Addr)
	if err != nil {
		log.Fatalf("failed to connect to model service at %s: %v", cfg.Transport.Addr, err)
	}
	defer client.Close()

	var logitBias bias.LogitBias
	if cfg.Token.StaticBias {
		logitBias, err = cfg.StaticList().Compile(ctx, client)
		if err != nil {
			log.Fatalf("compile static bias: %v", err)
		}
	}

	ledger, err := batch.OpenLedgerFile(cfg.Ledger.Path, state.KindEmbed, input, cfg.Hash())
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	defer ledger.Close()

	params := batch.GenerationParams{
		MaxTokens:   cfg.Generation.MaxTokens,
		Temperature: cfg.Generation.Temperature,
		TopP:        cfg.Generation.TopP,
		LogitBias:   logitBias,
	}
	runner, err := batch.NewRunner(state.KindEmbed, batch.EmbedProcessor(pipeline, client, params),
		batch.WithWorkers(cfg.Batch.Workers),
		batch.WithTimeout(cfg.Timeout()),
		batch.WithLedger(ledger),
	)
	if err != nil {
		log.Fatalf("build runner: %v", err)
	}

	counts, err := runner.RunFile(ctx, input, cfg.Batch.Output)
	if err != nil {
		if errors.Is(err, batch.ErrInputNotFound) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		log.Fatalf("embed batch: %v", err)
	}
	if err := ledger.Finish(counts); err != nil {
		log.Printf("[LEDGER] finish: %v", err)
	}

	fmt.Printf("Finished embedding: %d written, %d skipped, %d failed. Output: %s\n",
		counts.Written, counts.Skipped, counts.Failed, cfg.Batch.Output)
	if id := ledger.RunID(); id != "" {
		fmt.Printf("  Ledger run: %s\n", id)
	}
}

// #endregion main
