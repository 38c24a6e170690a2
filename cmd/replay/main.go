package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/config"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/replay"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/rules"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the run ledger (DB mode)")
	runID := flag.String("run", "", "run id to replay (default: latest embed run)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/ledger.db [--run id]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(cfg, *fixturePath)
	} else {
		exitCode = runDBMode(cfg, *dbPath, *runID)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region db-mode

func runDBMode(cfg *config.Config, dbPath, runID string) int {
	store, err := state.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()

	var run state.RunRecord
	if runID != "" {
		run, err = store.GetRun(runID)
	} else {
		run, err = store.LatestRun(state.KindEmbed)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "find run: %v\n", err)
		return 2
	}
	if run.Kind != state.KindEmbed {
		fmt.Fprintf(os.Stderr, "run %s is a %s run; only embed runs can be replayed\n", run.RunID, run.Kind)
		return 2
	}

	arts, err := store.ListArtifacts(run.RunID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list artifacts: %v\n", err)
		return 2
	}
	var written []state.ArtifactRecord
	for _, a := range arts {
		if a.Status == state.StatusWritten {
			written = append(written, a)
		}
	}
	if len(written) == 0 {
		fmt.Fprintf(os.Stderr, "no written artifacts in run %s\n", run.RunID)
		return 2
	}

	if h := cfg.Hash(); run.ConfigHash != "" && run.ConfigHash != h {
		fmt.Fprintf(os.Stderr, "warning: run used config %s, current config is %s\n", run.ConfigHash, h)
	}
	p, err := cfg.Pipeline()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build rules: %v\n", err)
		return 2
	}

	fmt.Printf("Replaying run %s (%s, %d artifacts)\n\n", run.RunID, run.InputPath, len(written))
	return printComparison(replay.Replay(p, replay.CasesFromArtifacts(written)))
}

// #endregion db-mode

// #region fixture-mode

func runFixtureMode(cfg *config.Config, path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	var p *rules.Pipeline
	if len(f.Rules) > 0 {
		opts, err := cfg.RuleOptions()
		if err == nil {
			p, err = rules.Build(f.Rules, opts)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "build rules: %v\n", err)
			return 2
		}
	} else if p, err = cfg.Pipeline(); err != nil {
		fmt.Fprintf(os.Stderr, "build rules: %v\n", err)
		return 2
	}

	if f.Description != "" {
		fmt.Printf("%s\n\n", f.Description)
	}
	return printComparison(replay.Replay(p, f.ToCases()))
}

// #endregion fixture-mode

// #region output

// printComparison outputs a comparison table and returns the exit code.
func printComparison(results []replay.ReplayResult) int {
	fmt.Printf("%-6s| %-17s| %-6s| %s\n", "Line", "Seed", "Match", "Detail")
	fmt.Printf("%-6s+%-18s+%-7s+%s\n", "------", "------------------", "-------", "--------------------")

	for _, r := range results {
		match := "DIFF"
		switch {
		case r.Err != nil:
			match = "ERR"
		case r.Match:
			match = "OK"
		}
		fmt.Printf("%-6d| %-17s| %-6s| %s\n", r.Line, r.Artifact.Seed.Hex(), match, r.Reason)
	}

	s := replay.Summarize(results)
	fmt.Printf("\nSummary: %d total, %d match, %d diverge, %d error\n", s.Total, s.Matches, s.Mismatches, s.Errors)

	if s.Mismatches > 0 || s.Errors > 0 {
		return 1
	}
	return 0
}

// #endregion output
