package batch

import (
	"log"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/logging"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/state"
)

// Ledger records one run's line outcomes. A nil *Ledger records nothing.
// Ledger failures are logged and never abort the batch.
type Ledger struct {
	store *state.Store
	run   state.RunRecord
	owned bool
}

// OpenLedger begins a run in store.
func OpenLedger(store *state.Store, kind, inputPath, configHash string) (*Ledger, error) {
	run, err := store.BeginRun(kind, inputPath, configHash)
	if err != nil {
		return nil, err
	}
	log.Printf("[LEDGER] run %s started (%s)", run.RunID, kind)
	return &Ledger{store: store, run: run}, nil
}

// OpenLedgerFile opens the SQLite ledger at path and begins a run. An empty
// path disables the ledger and returns a nil *Ledger.
func OpenLedgerFile(path, kind, inputPath, configHash string) (*Ledger, error) {
	if path == "" {
		return nil, nil
	}
	store, err := state.NewStore(path)
	if err != nil {
		return nil, err
	}
	l, err := OpenLedger(store, kind, inputPath, configHash)
	if err != nil {
		store.Close()
		return nil, err
	}
	l.owned = true
	return l, nil
}

// Close releases a store opened by OpenLedgerFile.
func (l *Ledger) Close() error {
	if l == nil || !l.owned {
		return nil
	}
	return l.store.Close()
}

// RunID returns the ledger run id.
func (l *Ledger) RunID() string {
	if l == nil {
		return ""
	}
	return l.run.RunID
}

// Finish stamps the run with its final counts.
func (l *Ledger) Finish(counts state.RunCounts) error {
	if l == nil {
		return nil
	}
	return l.store.FinishRun(l.run.RunID, counts)
}

func (l *Ledger) written(stage string, line int, res Result) {
	if l == nil {
		return
	}
	art := res.Artifact
	err := l.store.RecordArtifact(state.ArtifactRecord{
		RunID:        l.run.RunID,
		Line:         line,
		SeedHex:      art.Seed.Hex(),
		Original:     art.Original,
		Instructions: art.Instructions,
		Final:        art.Final,
		Response:     res.Response,
		Status:       state.StatusWritten,
	})
	if err != nil {
		log.Printf("[LEDGER] line %d: %v", line, err)
	}
	l.outcome(logging.OutcomeEntry{
		Line:       line,
		Stage:      stage,
		Outcome:    logging.OutcomeWritten,
		DetailJSON: res.Detail.JSON(),
	})
}

func (l *Ledger) skipped(stage string, line int, reason error) {
	if l == nil {
		return
	}
	l.outcome(logging.OutcomeEntry{Line: line, Stage: stage, Outcome: logging.OutcomeSkipped, Reason: reason.Error()})
}

func (l *Ledger) failed(stage string, line int, reason error) {
	if l == nil {
		return
	}
	l.outcome(logging.OutcomeEntry{Line: line, Stage: stage, Outcome: logging.OutcomeFailed, Reason: reason.Error()})
}

func (l *Ledger) outcome(e logging.OutcomeEntry) {
	e.RunID = l.run.RunID
	if err := logging.LogOutcome(l.store.DB(), e); err != nil {
		log.Printf("[LEDGER] line %d: %v", e.Line, err)
	}
}
