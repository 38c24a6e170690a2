package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/config"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/replay"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the run ledger")
	runID := flag.String("run", "", "embed run to export (default: latest)")
	outPath := flag.String("out", "", "output fixture JSON path")
	description := flag.String("description", "", "fixture description")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/ledger.db --out path/to/fixture.json [--run id]")
		os.Exit(2)
	}

	if err := run(*dbPath, *runID, *outPath, *description); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

func run(dbPath, runID, outPath, description string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := state.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	var rec state.RunRecord
	if runID != "" {
		rec, err = store.GetRun(runID)
	} else {
		rec, err = store.LatestRun(state.KindEmbed)
	}
	if err != nil {
		return err
	}
	if rec.Kind != state.KindEmbed {
		return fmt.Errorf("run %s is a %s run, want %s", rec.RunID, rec.Kind, state.KindEmbed)
	}

	arts, err := store.ListArtifacts(rec.RunID)
	if err != nil {
		return err
	}
	if description == "" {
		description = fmt.Sprintf("exported from run %s (%s)", rec.RunID, rec.InputPath)
	}

	f := replay.FixtureFromArtifacts(description, cfg.Embed.Rules, arts)
	if len(f.Cases) == 0 {
		return fmt.Errorf("run %s has no written artifacts", rec.RunID)
	}
	if err := f.Save(outPath); err != nil {
		return err
	}
	fmt.Printf("Exported %d cases from run %s to %s\n", len(f.Cases), rec.RunID, outPath)
	return nil
}

// #endregion export
