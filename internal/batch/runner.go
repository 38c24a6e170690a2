// Package batch drives line-delimited prompt files through an embedding or
// generation step with a bounded worker pool, writing results in input order.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/logging"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/records"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/rules"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/state"
)

// #region types
var (
	ErrInputNotFound = errors.New("input file not found")
	ErrInvalidRunner = errors.New("invalid batch runner")
)

const (
	DefaultWorkers = 4
	DefaultTimeout = 60 * time.Second
)

// Result is the outcome of processing one prompt.
type Result struct {
	Response string
	Artifact rules.Artifact
	Detail   logging.OutcomeDetail
}

// Processor handles one prompt. It must not share mutable state across calls.
type Processor func(ctx context.Context, prompt string) (Result, error)

// #endregion types

// #region runner
// Runner processes a prompt file.
type Runner struct {
	stage   string
	process Processor
	workers int
	timeout time.Duration
	ledger  *Ledger
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers sets the pool size.
func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = n }
}

// WithTimeout bounds each Processor call.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithLedger records every line outcome in the run ledger.
func WithLedger(l *Ledger) Option {
	return func(r *Runner) { r.ledger = l }
}

// NewRunner builds a runner for one stage.
func NewRunner(stage string, p Processor, opts ...Option) (*Runner, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil processor", ErrInvalidRunner)
	}
	r := &Runner{stage: stage, process: p, workers: DefaultWorkers, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers <= 0 {
		return nil, fmt.Errorf("%w: workers %d", ErrInvalidRunner, r.workers)
	}
	if r.timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout %v", ErrInvalidRunner, r.timeout)
	}
	return r, nil
}

type slot struct {
	line   int
	prompt string
	skip   error
	res    Result
	err    error
}

// Run reads prompt records from in and writes response records to out.
// Malformed lines are skipped, failed items are dropped, and the batch
// continues. Only read and write failures abort the run.
func (r *Runner) Run(ctx context.Context, in io.Reader, out io.Writer) (state.RunCounts, error) {
	var counts state.RunCounts
	tag := "[" + strings.ToUpper(r.stage) + "]"

	lines, err := records.NewReader(in).ReadAll()
	if err != nil {
		return counts, err
	}

	slots := make([]slot, len(lines))
	for i, l := range lines {
		slots[i].line = l.Number
		rec, err := records.DecodePrompt(l)
		if err != nil {
			slots[i].skip = err
			continue
		}
		slots[i].prompt = rec.Prompt
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(r.workers, max(len(slots), 1)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				itemCtx, cancel := context.WithTimeout(ctx, r.timeout)
				slots[i].res, slots[i].err = r.process(itemCtx, slots[i].prompt)
				cancel()
			}
		}()
	}
	for i := range slots {
		if slots[i].skip == nil {
			jobs <- i
		}
	}
	close(jobs)
	wg.Wait()

	w := records.NewWriter(out)
	for _, s := range slots {
		counts.Processed++
		switch {
		case s.skip != nil:
			counts.Skipped++
			log.Printf("%s skip: %v", tag, s.skip)
			r.ledger.skipped(r.stage, s.line, s.skip)
		case s.err != nil:
			counts.Failed++
			log.Printf("%s line %d: failed: %v", tag, s.line, s.err)
			r.ledger.failed(r.stage, s.line, s.err)
		default:
			rec := records.ResponseRecord{Prompt: s.prompt, Response: s.res.Response}
			if err := w.Write(rec); err != nil {
				return counts, err
			}
			counts.Written++
			r.ledger.written(r.stage, s.line, s.res)
		}
	}
	log.Printf("%s processed=%d written=%d skipped=%d failed=%d",
		tag, counts.Processed, counts.Written, counts.Skipped, counts.Failed)
	return counts, nil
}

// RunFile runs the batch from inPath to outPath, creating the output
// directory when needed. A missing input returns ErrInputNotFound.
func (r *Runner) RunFile(ctx context.Context, inPath, outPath string) (state.RunCounts, error) {
	in, err := os.Open(inPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return state.RunCounts{}, fmt.Errorf("%w: %s", ErrInputNotFound, inPath)
		}
		return state.RunCounts{}, fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return state.RunCounts{}, fmt.Errorf("create output dir: %w", err)
		}
	}
	out, err := os.Create(outPath)
	if err != nil {
		return state.RunCounts{}, fmt.Errorf("create output: %w", err)
	}

	counts, runErr := r.Run(ctx, in, out)
	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close output: %w", err)
	}
	return counts, runErr
}

// #endregion runner
