package state

import (
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBeginAndGetRun(t *testing.T) {
	s := tempDB(t)

	run, err := s.BeginRun(KindEmbed, "prompts.jsonl", "abc123")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if run.RunID == "" {
		t.Fatal("expected non-empty run ID")
	}
	if run.Finished() {
		t.Fatal("new run should be open")
	}

	got, err := s.GetRun(run.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Kind != KindEmbed || got.InputPath != "prompts.jsonl" || got.ConfigHash != "abc123" {
		t.Fatalf("unexpected run %+v", got)
	}
	if !got.StartedAt.Equal(run.StartedAt) {
		t.Fatalf("started_at mismatch: %v vs %v", got.StartedAt, run.StartedAt)
	}
}

func TestFinishRun(t *testing.T) {
	s := tempDB(t)
	run, err := s.BeginRun(KindEmbed, "", "")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	counts := RunCounts{Processed: 5, Written: 4, Skipped: 1}
	if err := s.FinishRun(run.RunID, counts); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	got, err := s.GetRun(run.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !got.Finished() {
		t.Fatal("expected finished run")
	}
	if got.Counts != counts {
		t.Fatalf("expected %+v, got %+v", counts, got.Counts)
	}
	if got.InputPath != "" {
		t.Fatalf("expected empty input path, got %q", got.InputPath)
	}
}

func TestRunNotFound(t *testing.T) {
	s := tempDB(t)

	if _, err := s.GetRun("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if err := s.FinishRun("missing", RunCounts{}); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if _, err := s.LatestRun(KindVerify); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestListRunsAndLatest(t *testing.T) {
	s := tempDB(t)

	var ids []string
	for _, kind := range []string{KindEmbed, KindDetect, KindEmbed} {
		run, err := s.BeginRun(kind, "", "")
		if err != nil {
			t.Fatalf("BeginRun: %v", err)
		}
		ids = append(ids, run.RunID)
	}

	runs, err := s.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].RunID != ids[2] {
		t.Fatalf("expected newest first, got %s", runs[0].RunID)
	}

	limited, err := s.ListRuns(1)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 run, got %d", len(limited))
	}

	latest, err := s.LatestRun(KindEmbed)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest.RunID != ids[2] {
		t.Fatalf("expected %s, got %s", ids[2], latest.RunID)
	}
}

func TestRecordAndListArtifacts(t *testing.T) {
	s := tempDB(t)
	run, err := s.BeginRun(KindEmbed, "", "")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	for _, line := range []int{3, 1} {
		err := s.RecordArtifact(ArtifactRecord{
			RunID:        run.RunID,
			Line:         line,
			SeedHex:      "00000000000000ff",
			Original:     "hello",
			Instructions: "echo",
			Final:        "he\u200bllo",
			Response:     "hi",
			Status:       StatusWritten,
		})
		if err != nil {
			t.Fatalf("RecordArtifact line %d: %v", line, err)
		}
	}

	arts, err := s.ListArtifacts(run.RunID)
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(arts) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(arts))
	}
	if arts[0].Line != 1 || arts[1].Line != 3 {
		t.Fatalf("expected line order, got %d, %d", arts[0].Line, arts[1].Line)
	}
	if arts[0].Final != "he\u200bllo" || arts[0].Response != "hi" || arts[0].CreatedAt.IsZero() {
		t.Fatalf("unexpected artifact %+v", arts[0])
	}
}

func TestRecordArtifactConstraints(t *testing.T) {
	s := tempDB(t)
	run, err := s.BeginRun(KindEmbed, "", "")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	rec := ArtifactRecord{RunID: run.RunID, Line: 1, SeedHex: "00", Original: "a", Final: "a", Status: StatusFailed}
	if err := s.RecordArtifact(rec); err != nil {
		t.Fatalf("RecordArtifact: %v", err)
	}
	if err := s.RecordArtifact(rec); err == nil {
		t.Fatal("expected duplicate line to be rejected")
	}

	rec.RunID = "no-such-run"
	if err := s.RecordArtifact(rec); err == nil {
		t.Fatal("expected foreign key violation")
	}
}
