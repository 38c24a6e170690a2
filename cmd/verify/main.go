package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/codec"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/config"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/detect"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/greenlist"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/logging"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/records"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/seed"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/state"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/vocab"
)

// #region main
func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: verify [responses.jsonl]")
	}
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	path := cfg.Batch.TokenOutput
	if flag.NArg() > 0 {
		path = flag.Arg(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	part, err := greenlist.NewPartitioner(cfg.Greenlist())
	if err != nil {
		log.Fatalf("greenlist: %v", err)
	}
	verifier, err := detect.NewTokenVerifier(part, cfg.Token.Threshold)
	if err != nil {
		log.Fatalf("verifier: %v", err)
	}

	client, err := codec.NewClient(cfg.Transport.Addr)
	if err != nil {
		log.Fatalf("failed to connect to model service at %s: %v", cfg.Transport.Addr, err)
	}
	defer client.Close()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Error: file '%s' not found.\n", path)
			os.Exit(1)
		}
		log.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var rec *recorder
	if cfg.Ledger.Path != "" {
		store, err := state.NewStore(cfg.Ledger.Path)
		if err != nil {
			log.Fatalf("open ledger: %v", err)
		}
		defer store.Close()
		run, err := store.BeginRun(state.KindVerify, path, cfg.Hash())
		if err != nil {
			log.Fatalf("begin ledger run: %v", err)
		}
		rec = &recorder{store: store, runID: run.RunID}
	}

	fmt.Printf("Verifying file: %s (threshold z > %.2f)\n", path, verifier.Threshold())
	counts, err := verifyAll(ctx, f, client, vocab.Token(cfg.Token.EOS), verifier, rec)
	if err != nil {
		log.Fatalf("verify: %v", err)
	}
	if rec != nil {
		if err := rec.store.FinishRun(rec.runID, counts); err != nil {
			log.Printf("[LEDGER] finish: %v", err)
		}
	}
	fmt.Printf("%d of %d responses watermarked (%d skipped, %d failed)\n",
		counts.Written, counts.Processed, counts.Skipped, counts.Failed)
}

// #endregion main

// #region verify
// verifyAll scores each response line. Written counts watermarked lines,
// Skipped counts unreadable records and Failed counts lines that could not
// be scored.
func verifyAll(ctx context.Context, r io.Reader, enc vocab.Encoder, eos vocab.Token, v *detect.TokenVerifier, rec *recorder) (state.RunCounts, error) {
	var counts state.RunCounts
	lines, err := records.NewReader(r).ReadAll()
	if err != nil {
		return counts, err
	}
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return counts, err
		}
		counts.Processed++
		resp, err := records.DecodeResponse(line)
		if err != nil {
			counts.Skipped++
			fmt.Fprintf(os.Stderr, "Line %d: %v\n", line.Number, err)
			rec.log(line.Number, logging.OutcomeSkipped, err.Error(), logging.OutcomeDetail{})
			continue
		}
		score, err := v.VerifyText(ctx, enc, eos, resp.Prompt, resp.Response)
		if err != nil {
			counts.Failed++
			fmt.Fprintf(os.Stderr, "Line %d: %v\n", line.Number, err)
			rec.log(line.Number, logging.OutcomeFailed, err.Error(), logging.OutcomeDetail{})
			continue
		}

		verdict := "clean"
		outcome := logging.OutcomeClean
		if score.Watermarked {
			verdict = "WATERMARKED"
			outcome = logging.OutcomeFlagged
			counts.Written++
		}
		fmt.Printf("Line %d: %d/%d green (%.3f vs %.3f expected), z=%.2f %s\n",
			line.Number, score.Hits, score.Tokens, score.Fraction, score.Expected, score.ZScore, verdict)
		rec.log(line.Number, outcome, "", logging.OutcomeDetail{
			Seed:        seed.Derive(resp.Prompt).Hex(),
			Tokens:      score.Tokens,
			Hits:        score.Hits,
			ZScore:      score.ZScore,
			Watermarked: score.Watermarked,
		})
	}
	return counts, nil
}

type recorder struct {
	store *state.Store
	runID string
}

func (r *recorder) log(line int, outcome, reason string, detail logging.OutcomeDetail) {
	if r == nil {
		return
	}
	if err := logging.LogOutcome(r.store.DB(), logging.OutcomeEntry{
		RunID:      r.runID,
		Line:       line,
		Stage:      logging.StageVerify,
		Outcome:    outcome,
		Reason:     reason,
		DetailJSON: detail.JSON(),
	}); err != nil {
		log.Printf("[LEDGER] line %d: %v", line, err)
	}
}

// #endregion verify
