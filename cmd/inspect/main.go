package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/logging"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the run ledger")
	last := flag.Int("last", 20, "show N most recent runs")
	runID := flag.String("run", "", "show single run detail")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/ledger.db [--last N] [--run id] [--json]")
		os.Exit(2)
	}

	store, err := state.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *runID != "" {
		err = runDetailMode(store, *runID, *jsonOut)
	} else {
		err = runListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	RunID     string          `json:"run_id"`
	Kind      string          `json:"kind"`
	Input     string          `json:"input"`
	Config    string          `json:"config_hash"`
	Counts    state.RunCounts `json:"counts"`
	StartedAt string          `json:"started_at"`
	Duration  string          `json:"duration,omitempty"`
}

func toListRow(r state.RunRecord) listRow {
	row := listRow{
		RunID:     r.RunID,
		Kind:      r.Kind,
		Input:     r.InputPath,
		Config:    r.ConfigHash,
		Counts:    r.Counts,
		StartedAt: r.StartedAt.Format("2006-01-02T15:04:05Z"),
	}
	if r.Finished() {
		row.Duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
	}
	return row
}

func runListMode(store *state.Store, last int, jsonOut bool) error {
	runs, err := store.ListRuns(last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}

	// Store returns newest first; print chronologically.
	rows := make([]listRow, len(runs))
	for i, r := range runs {
		rows[len(runs)-1-i] = toListRow(r)
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-10s  %-9s  %7s  %7s  %7s  %6s  %-10s  %s\n",
		"Run", "Kind", "Lines", "Written", "Skipped", "Failed", "Duration", "Started")
	fmt.Printf("%-10s+-%-9s+-%7s+-%7s+-%7s+-%6s+-%-10s+-%s\n",
		"----------", "---------", "-------", "-------", "-------", "------", "----------", "--------------------")
	for _, r := range rows {
		dur := "open"
		if r.Duration != "" {
			dur = r.Duration
		}
		fmt.Printf("%-10s  %-9s  %7d  %7d  %7d  %6d  %-10s  %s\n",
			shortID(r.RunID), r.Kind, r.Counts.Processed, r.Counts.Written, r.Counts.Skipped, r.Counts.Failed, dur, r.StartedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	Run       listRow          `json:"run"`
	Artifacts []artifactDetail `json:"artifacts"`
	Outcomes  []outcomeDetail  `json:"outcomes"`
}

type artifactDetail struct {
	Line     int    `json:"line"`
	Seed     string `json:"seed"`
	Status   string `json:"status"`
	Original string `json:"original"`
	Final    string `json:"final"`
	Response string `json:"response,omitempty"`
}

type outcomeDetail struct {
	Line    int                    `json:"line"`
	Stage   string                 `json:"stage"`
	Outcome string                 `json:"outcome"`
	Reason  string                 `json:"reason,omitempty"`
	Detail  *logging.OutcomeDetail `json:"detail,omitempty"`
}

func runDetailMode(store *state.Store, runID string, jsonOut bool) error {
	run, err := store.GetRun(runID)
	if err != nil {
		return err
	}
	arts, err := store.ListArtifacts(runID)
	if err != nil {
		return err
	}
	entries, err := logging.ListOutcomes(store.DB(), runID)
	if err != nil {
		return err
	}

	out := detailOutput{Run: toListRow(run)}
	for _, a := range arts {
		out.Artifacts = append(out.Artifacts, artifactDetail{
			Line:     a.Line,
			Seed:     a.SeedHex,
			Status:   a.Status,
			Original: a.Original,
			Final:    a.Final,
			Response: a.Response,
		})
	}
	for _, e := range entries {
		od := outcomeDetail{Line: e.Line, Stage: e.Stage, Outcome: e.Outcome, Reason: e.Reason}
		if e.DetailJSON != "" {
			var d logging.OutcomeDetail
			if err := json.Unmarshal([]byte(e.DetailJSON), &d); err == nil {
				od.Detail = &d
			}
		}
		out.Outcomes = append(out.Outcomes, od)
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Run:      %s\n", run.RunID)
	fmt.Printf("Kind:     %s\n", run.Kind)
	fmt.Printf("Input:    %s\n", run.InputPath)
	fmt.Printf("Config:   %s\n", run.ConfigHash)
	fmt.Printf("Started:  %s\n", out.Run.StartedAt)
	if out.Run.Duration != "" {
		fmt.Printf("Duration: %s\n", out.Run.Duration)
	}
	fmt.Printf("Counts:   %d processed, %d written, %d skipped, %d failed\n",
		run.Counts.Processed, run.Counts.Written, run.Counts.Skipped, run.Counts.Failed)

	fmt.Printf("\n%-6s  %-8s  %-9s  %-17s  %s\n", "Line", "Stage", "Outcome", "Seed", "Detail")
	for _, o := range out.Outcomes {
		seedHex, summary := "-", o.Reason
		if o.Detail != nil {
			if o.Detail.Seed != "" {
				seedHex = o.Detail.Seed
			}
			if summary == "" {
				summary = summarize(o.Stage, *o.Detail)
			}
		}
		fmt.Printf("%-6d  %-8s  %-9s  %-17s  %s\n", o.Line, o.Stage, o.Outcome, seedHex, summary)
	}
	return nil
}

func summarize(stage string, d logging.OutcomeDetail) string {
	switch stage {
	case logging.StageGenerate, logging.StageVerify:
		return fmt.Sprintf("%d/%d green, z=%.2f", d.Hits, d.Tokens, d.ZScore)
	default:
		return fmt.Sprintf("%d zero-width", d.Findings)
	}
}

// #endregion detail-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
