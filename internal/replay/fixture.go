package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/detect"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/state"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string        `json:"description"`
	Rules       []string      `json:"rules"`
	Cases       []FixtureCase `json:"cases"`
}

// FixtureCase is one prompt with its recorded embedding. Final and Findings
// are optional.
type FixtureCase struct {
	Prompt       string `json:"prompt"`
	Seed         string `json:"seed"`
	Instructions string `json:"instructions"`
	Final        string `json:"final,omitempty"`
	Findings     *int   `json:"findings,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToCases converts the fixture entries, numbering them from 1.
func (f *Fixture) ToCases() []Case {
	out := make([]Case, len(f.Cases))
	for i, fc := range f.Cases {
		findings := -1
		if fc.Findings != nil {
			findings = *fc.Findings
		}
		out[i] = Case{
			Line:         i + 1,
			Prompt:       fc.Prompt,
			SeedHex:      fc.Seed,
			Instructions: fc.Instructions,
			Final:        fc.Final,
			Findings:     findings,
		}
	}
	return out
}

// #endregion fixture-loader

// #region fixture-export

// FixtureFromArtifacts builds a fixture from written ledger artifacts. Each
// case records the full final text and its finding count.
func FixtureFromArtifacts(description string, rules []string, arts []state.ArtifactRecord) Fixture {
	f := Fixture{Description: description, Rules: rules}
	for _, a := range arts {
		if a.Status != state.StatusWritten {
			continue
		}
		n := detect.Detect(a.Final).Count()
		f.Cases = append(f.Cases, FixtureCase{
			Prompt:       a.Original,
			Seed:         a.SeedHex,
			Instructions: a.Instructions,
			Final:        a.Final,
			Findings:     &n,
		})
	}
	return f
}

// Save writes the fixture as indented JSON, creating parent directories.
func (f *Fixture) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create fixture dir: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// #endregion fixture-export
