package logging

import (
	"encoding/json"
	"time"
)

// #region outcome-entry
// Stages.
const (
	StageEmbed    = "embed"
	StageGenerate = "generate"
	StageDetect   = "detect"
	StageVerify   = "verify"
)

// Outcomes. Skipped always means the line was not a usable record; flagged
// and clean are the verdicts of the detect and verify stages.
const (
	OutcomeWritten = "written"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
	OutcomeFlagged = "flagged"
	OutcomeClean   = "clean"
)

// OutcomeEntry is a single row in the provenance_log table.
type OutcomeEntry struct {
	RunID      string
	Line       int
	Stage      string
	Outcome    string
	Reason     string
	DetailJSON string
	CreatedAt  time.Time
}

// #endregion outcome-entry

// #region outcome-detail
// OutcomeDetail captures the per-line values needed to audit or replay a
// decision. Serialized into provenance_log.detail_json.
type OutcomeDetail struct {
	Seed         string   `json:"seed,omitempty"`
	Rules        []string `json:"rules,omitempty"`
	Findings     int      `json:"findings"`
	Tokens       int      `json:"tokens,omitempty"`
	Hits         int      `json:"hits,omitempty"`
	ZScore       float64  `json:"z_score,omitempty"`
	Watermarked  bool     `json:"watermarked,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

// JSON renders the detail, or "" when it cannot be encoded.
func (d OutcomeDetail) JSON() string {
	b, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return string(b)
}

// #endregion outcome-detail
