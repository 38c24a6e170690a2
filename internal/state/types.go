package state

import "time"

// #region run-record
// Run kinds.
const (
	KindEmbed    = "embed"
	KindGenerate = "generate"
	KindDetect   = "detect"
	KindVerify   = "verify"
)

// RunCounts tallies per-line outcomes of one batch run.
type RunCounts struct {
	Processed int `json:"processed"`
	Written   int `json:"written"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// RunRecord is one batch invocation.
type RunRecord struct {
	RunID      string
	Kind       string
	InputPath  string
	ConfigHash string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is open
	Counts     RunCounts
}

// Finished reports whether FinishRun has been called.
func (r RunRecord) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// #endregion run-record

// #region artifact-record
// Artifact statuses.
const (
	StatusWritten = "written"
	StatusFailed  = "failed"
)

// ArtifactRecord is one processed input line.
type ArtifactRecord struct {
	RunID        string
	Line         int
	SeedHex      string
	Original     string
	Instructions string
	Final        string
	Response     string
	Status       string
	CreatedAt    time.Time
}

// #endregion artifact-record
