// Package detect reports watermark evidence in text: invisible characters at
// the character level and greenlist hit rates at the token level.
package detect

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/logging"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/records"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/state"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/zerowidth"
)

// #region report
// Report lists the invisible characters found in one text.
type Report struct {
	Findings []zerowidth.Finding `json:"findings"`
}

// Present reports whether any finding exists.
func (r Report) Present() bool {
	return len(r.Findings) > 0
}

// Count returns the number of findings.
func (r Report) Count() int {
	return len(r.Findings)
}

// String renders one finding per line, or a single "none" line.
func (r Report) String() string {
	if !r.Present() {
		return "No zero-width characters detected."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Zero-width characters detected: %d\n", len(r.Findings))
	for _, f := range r.Findings {
		b.WriteString(f.String())
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// #endregion report

// #region detector
// Detector scans text against one alphabet.
type Detector struct {
	alphabet zerowidth.Alphabet
}

// NewDetector returns a detector for the given alphabet.
func NewDetector(a zerowidth.Alphabet) *Detector {
	return &Detector{alphabet: a}
}

// Detect scans text and returns every occurrence in order of position.
func (d *Detector) Detect(text string) Report {
	return Report{Findings: d.alphabet.Scan(text)}
}

// Detect scans text with the default alphabet.
func Detect(text string) Report {
	return NewDetector(zerowidth.DefaultAlphabet()).Detect(text)
}

// #endregion detector

// #region batch
// Entry is the scan result of one record line.
type Entry struct {
	Line   int    `json:"line"`
	Report Report `json:"report"`
}

// Skipped is a record line that could not be scanned.
type Skipped struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// BatchReport aggregates a JSONL scan.
type BatchReport struct {
	Field   string    `json:"field"`
	Entries []Entry   `json:"entries"`
	Skipped []Skipped `json:"skipped"`
}

// Flagged counts entries with at least one finding.
func (b BatchReport) Flagged() int {
	n := 0
	for _, e := range b.Entries {
		if e.Report.Present() {
			n++
		}
	}
	return n
}

// TotalFindings sums findings across entries.
func (b BatchReport) TotalFindings() int {
	n := 0
	for _, e := range b.Entries {
		n += e.Report.Count()
	}
	return n
}

// ScanRecords scans one string field of every JSONL record in r. Unparseable
// lines and records without the field are recorded as skipped.
func (d *Detector) ScanRecords(r io.Reader, field string) (BatchReport, error) {
	out := BatchReport{Field: field}
	reader := records.NewReader(r)
	for {
		line, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("scan records: %w", err)
		}
		text, err := records.Field(line, field)
		if err != nil {
			log.Printf("[DETECT] skip: %v", err)
			out.Skipped = append(out.Skipped, Skipped{Line: line.Number, Reason: err.Error()})
			continue
		}
		out.Entries = append(out.Entries, Entry{Line: line.Number, Report: d.Detect(text)})
	}
}

// ScanRecords scans with the default alphabet.
func ScanRecords(r io.Reader, field string) (BatchReport, error) {
	return NewDetector(zerowidth.DefaultAlphabet()).ScanRecords(r, field)
}

// Outcomes maps the scan to ledger rows: flagged or clean per scanned line,
// skipped per unreadable line, in line order.
func (b BatchReport) Outcomes(runID string) []logging.OutcomeEntry {
	out := make([]logging.OutcomeEntry, 0, len(b.Entries)+len(b.Skipped))
	for _, e := range b.Entries {
		outcome := logging.OutcomeClean
		if e.Report.Present() {
			outcome = logging.OutcomeFlagged
		}
		detail := logging.OutcomeDetail{Findings: e.Report.Count()}
		out = append(out, logging.OutcomeEntry{
			RunID:      runID,
			Line:       e.Line,
			Stage:      logging.StageDetect,
			Outcome:    outcome,
			DetailJSON: detail.JSON(),
		})
	}
	for _, sk := range b.Skipped {
		out = append(out, logging.OutcomeEntry{
			RunID:   runID,
			Line:    sk.Line,
			Stage:   logging.StageDetect,
			Outcome: logging.OutcomeSkipped,
			Reason:  sk.Reason,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}

// Counts summarizes the scan for the run ledger. Written counts flagged
// lines; skipped counts unreadable ones.
func (b BatchReport) Counts() state.RunCounts {
	return state.RunCounts{
		Processed: len(b.Entries) + len(b.Skipped),
		Written:   b.Flagged(),
		Skipped:   len(b.Skipped),
	}
}

// #endregion batch
