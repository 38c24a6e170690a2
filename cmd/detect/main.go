package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/config"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/detect"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/logging"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/state"
)

// #region main
func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: detect [responses.jsonl]")
	}
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	path := cfg.Batch.Output
	if flag.NArg() > 0 {
		path = flag.Arg(0)
	}

	alphabet, err := config.ParseAlphabet(cfg.Embed.Alphabet)
	if err != nil {
		log.Fatalf("alphabet: %v", err)
	}
	s := &scanner{
		detector: detect.NewDetector(alphabet),
		field:    cfg.Batch.Field,
		path:     path,
		hash:     cfg.Hash(),
	}

	if cfg.Ledger.Path != "" {
		store, err := state.NewStore(cfg.Ledger.Path)
		if err != nil {
			log.Fatalf("open ledger: %v", err)
		}
		defer store.Close()
		s.store = store
	}

	if err := s.scan(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Error: file '%s' not found.\n", path)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	if !cfg.Batch.Watch {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	log.Printf("[DETECT] watching %s", path)
	if err := watch(ctx, path, func() {
		if err := s.scan(); err != nil {
			log.Printf("[DETECT] rescan failed: %v", err)
		}
	}); err != nil {
		log.Fatalf("watch %s: %v", path, err)
	}
}

// #endregion main

// #region scan
type scanner struct {
	detector *detect.Detector
	field    string
	path     string
	hash     string
	store    *state.Store
}

// scan reports every flagged line of the file and records the pass in the
// ledger when one is configured.
func (s *scanner) scan() error {
	fmt.Printf("Scanning file: %s\n", s.path)
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	report, err := s.detector.ScanRecords(f, s.field)
	if err != nil {
		return err
	}
	for _, e := range report.Entries {
		if !e.Report.Present() {
			continue
		}
		fmt.Printf("%s - Line %d: Detected %d zero-width character(s) in %s:\n",
			s.path, e.Line, e.Report.Count(), s.field)
		for _, finding := range e.Report.Findings {
			fmt.Printf("  - %s\n", finding)
		}
	}

	if s.store != nil {
		s.record(report)
	}
	return nil
}

func (s *scanner) record(report detect.BatchReport) {
	run, err := s.store.BeginRun(state.KindDetect, s.path, s.hash)
	if err != nil {
		log.Printf("[LEDGER] begin run: %v", err)
		return
	}
	db := s.store.DB()
	for _, e := range report.Outcomes(run.RunID) {
		if err := logging.LogOutcome(db, e); err != nil {
			log.Printf("[LEDGER] line %d: %v", e.Line, err)
		}
	}
	if err := s.store.FinishRun(run.RunID, report.Counts()); err != nil {
		log.Printf("[LEDGER] finish: %v", err)
	}
}

// #endregion scan
