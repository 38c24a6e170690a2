// Package replay re-runs recorded embeddings and reports whether the current
// rule pipeline still reproduces them byte for byte.
package replay

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/detect"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/rules"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/state"
)

// #region types
// Case is one recorded embedding. An empty Final or negative Findings is
// not checked.
type Case struct {
	Line         int
	Prompt       string
	SeedHex      string
	Instructions string
	Final        string
	Findings     int
}

// ReplayResult is the comparison for one case.
type ReplayResult struct {
	Line     int
	Match    bool
	Err      error
	Reason   string
	Artifact rules.Artifact
}

// ReplaySummary aggregates a replay run.
type ReplaySummary struct {
	Total      int
	Matches    int
	Mismatches int
	Errors     int
}

// #endregion types

// #region replay
// Replay embeds every case prompt again and compares the outputs.
func Replay(p *rules.Pipeline, cases []Case) []ReplayResult {
	results := make([]ReplayResult, 0, len(cases))
	for _, c := range cases {
		res := ReplayResult{Line: c.Line}
		art, err := p.Embed(c.Prompt)
		if err != nil {
			res.Err = err
			res.Reason = fmt.Sprintf("embed: %v", err)
			results = append(results, res)
			continue
		}
		res.Artifact = art

		var diffs []string
		if c.SeedHex != "" && art.Seed.Hex() != c.SeedHex {
			diffs = append(diffs, fmt.Sprintf("seed %s != %s", art.Seed.Hex(), c.SeedHex))
		}
		if art.Instructions != c.Instructions {
			diffs = append(diffs, "instructions differ")
		}
		if c.Final != "" && art.Final != c.Final {
			diffs = append(diffs, "final text differs")
		}
		if c.Findings >= 0 {
			if n := detect.Detect(art.Final).Count(); n != c.Findings {
				diffs = append(diffs, fmt.Sprintf("findings %d != %d", n, c.Findings))
			}
		}

		res.Match = len(diffs) == 0
		if res.Match {
			res.Reason = "identical"
		} else {
			res.Reason = strings.Join(diffs, "; ")
		}
		results = append(results, res)
	}
	return results
}

// Summarize counts matches, mismatches and errors.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Err != nil:
			s.Errors++
		case r.Match:
			s.Matches++
		default:
			s.Mismatches++
		}
	}
	return s
}

// CasesFromArtifacts turns ledger artifacts into fully checked cases.
func CasesFromArtifacts(arts []state.ArtifactRecord) []Case {
	out := make([]Case, 0, len(arts))
	for _, a := range arts {
		out = append(out, Case{
			Line:         a.Line,
			Prompt:       a.Original,
			SeedHex:      a.SeedHex,
			Instructions: a.Instructions,
			Final:        a.Final,
			Findings:     -1,
		})
	}
	return out
}

// #endregion replay
