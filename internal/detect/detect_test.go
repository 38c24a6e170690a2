package detect

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/logging"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/rules"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/state"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/zerowidth"
)

func TestDetect_Clean(t *testing.T) {
	r := Detect("plain ascii text")
	assert.False(t, r.Present())
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, "No zero-width characters detected.", r.String())
}

func TestDetect_PositionsAndNames(t *testing.T) {
	r := Detect("a\u200bb\ufeff")
	require.Equal(t, 2, r.Count())
	assert.Equal(t, 1, r.Findings[0].Offset)
	assert.Equal(t, rune(0x200B), r.Findings[0].CodePoint)
	assert.Equal(t, "ZERO WIDTH SPACE", r.Findings[0].Name)
	assert.Equal(t, 3, r.Findings[1].Offset)
	assert.Contains(t, r.String(), "Position 1: U+200B ZERO WIDTH SPACE")
}

func TestDetect_EndToEndCount(t *testing.T) {
	const prompt = "The quick brown fox jumps over the lazy dog again and again today"
	p, err := rules.Build([]string{rules.NameHiddenEcho}, rules.DefaultOptions())
	require.NoError(t, err)

	for _, text := range []string{prompt, "", "short", strings.Repeat("x", 101)} {
		a, err := p.Embed(text)
		require.NoError(t, err)
		want := max(1, utf8.RuneCountInString(text)/rules.DefaultSpan)
		assert.Equal(t, want, Detect(a.Final).Count(), "text %q", text)
	}
}

func TestDetect_CustomAlphabet(t *testing.T) {
	a, err := zerowidth.NewAlphabet(0x2060)
	require.NoError(t, err)
	d := NewDetector(a)

	out, err := a.Insert("abc", []int{1}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, 1, d.Detect(out).Count())
	assert.Equal(t, 0, d.Detect("a\u200bb").Count())
}

func TestScanRecords_SkipsBadLines(t *testing.T) {
	in := strings.Join([]string{
		`{"prompt":"p","response":"clean"}`,
		`{"prompt":"p","response":"mark\u200bed"}`,
		`{"prompt":`,
		`{"prompt":"p"}`,
		`{"prompt":"p","response":"\u200c\u200d"}`,
	}, "\n")

	br, err := ScanRecords(strings.NewReader(in), "response")
	require.NoError(t, err)
	assert.Equal(t, "response", br.Field)
	require.Len(t, br.Entries, 3)
	require.Len(t, br.Skipped, 2)
	assert.Equal(t, 3, br.Skipped[0].Line)
	assert.Equal(t, 4, br.Skipped[1].Line)
	assert.Equal(t, 2, br.Flagged())
	assert.Equal(t, 3, br.TotalFindings())
}

func TestScanRecords_OversizedLineSkipped(t *testing.T) {
	in := `{"response":"a\u200b"}` + "\n" +
		`{"response":"` + strings.Repeat("z", 17<<20) + `"}` + "\n" +
		`{"response":"b"}` + "\n"

	br, err := ScanRecords(strings.NewReader(in), "response")
	require.NoError(t, err)
	require.Len(t, br.Entries, 2)
	require.Len(t, br.Skipped, 1)
	assert.Equal(t, 2, br.Skipped[0].Line)
	assert.Equal(t, 3, br.Entries[1].Line)
}

func TestBatchReport_OutcomesMatchRunnerVocabulary(t *testing.T) {
	in := strings.Join([]string{
		`{"response":"clean"}`,
		`{"response":"mark\u200bed"}`,
		`{"response":`,
	}, "\n")
	br, err := ScanRecords(strings.NewReader(in), "response")
	require.NoError(t, err)

	out := br.Outcomes("run-1")
	require.Len(t, out, 3)
	want := []string{logging.OutcomeClean, logging.OutcomeFlagged, logging.OutcomeSkipped}
	for i, e := range out {
		assert.Equal(t, i+1, e.Line)
		assert.Equal(t, "run-1", e.RunID)
		assert.Equal(t, logging.StageDetect, e.Stage)
		assert.Equal(t, want[i], e.Outcome, "line %d", e.Line)
	}
	assert.Contains(t, out[1].DetailJSON, `"findings":1`)
	assert.NotEmpty(t, out[2].Reason)

	assert.Equal(t, state.RunCounts{Processed: 3, Written: 1, Skipped: 1}, br.Counts())
}
