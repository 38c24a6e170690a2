package eval

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/detect"
)

var ErrNoRecords = errors.New("no scannable records")

// #region eval-harness
// EvalHarness compares detector output on watermarked and vanilla responses.
type EvalHarness struct {
	config   EvalConfig
	detector *detect.Detector
}

// NewEvalHarness creates a harness with the given thresholds and detector.
func NewEvalHarness(config EvalConfig, d *detect.Detector) *EvalHarness {
	return &EvalHarness{config: config, detector: d}
}

// Run scores two already-scanned record sets.
func (h *EvalHarness) Run(watermarked, vanilla detect.BatchReport) (EvalResult, error) {
	if len(watermarked.Entries) == 0 {
		return EvalResult{}, fmt.Errorf("watermarked set: %w", ErrNoRecords)
	}
	if len(vanilla.Entries) == 0 {
		return EvalResult{}, fmt.Errorf("vanilla set: %w", ErrNoRecords)
	}

	var metrics []EvalMetric
	var failReasons []string

	// 1. Detection rate over watermarked responses
	detection := rate(watermarked.Flagged(), len(watermarked.Entries))
	detectionPass := detection >= h.config.MinDetectionRate
	metrics = append(metrics, EvalMetric{Name: "detection_rate", Value: detection, Pass: detectionPass})
	if !detectionPass {
		failReasons = append(failReasons, fmt.Sprintf("detection rate %.4f below %.4f", detection, h.config.MinDetectionRate))
	}

	// 2. False positives over vanilla responses
	fp := rate(vanilla.Flagged(), len(vanilla.Entries))
	fpPass := fp <= h.config.MaxFalsePositiveRate
	metrics = append(metrics, EvalMetric{Name: "false_positive_rate", Value: fp, Pass: fpPass})
	if !fpPass {
		failReasons = append(failReasons, fmt.Sprintf("false positive rate %.4f exceeds %.4f", fp, h.config.MaxFalsePositiveRate))
	}

	// 3. Informational
	metrics = append(metrics,
		EvalMetric{Name: "mean_findings", Value: rate(watermarked.TotalFindings(), len(watermarked.Entries)), Pass: true},
		EvalMetric{Name: "skipped_lines", Value: float64(len(watermarked.Skipped) + len(vanilla.Skipped)), Pass: true},
	)

	reason := "all checks passed"
	if len(failReasons) == 1 {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
	} else if len(failReasons) > 1 {
		reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
	}

	return EvalResult{
		Passed:  len(failReasons) == 0,
		Metrics: metrics,
		Reason:  reason,
	}, nil
}

// RunFiles scans both JSONL files and scores them.
func (h *EvalHarness) RunFiles(watermarkedPath, vanillaPath string) (EvalResult, error) {
	wm, err := h.scanFile(watermarkedPath)
	if err != nil {
		return EvalResult{}, err
	}
	van, err := h.scanFile(vanillaPath)
	if err != nil {
		return EvalResult{}, err
	}
	return h.Run(wm, van)
}

func (h *EvalHarness) scanFile(path string) (detect.BatchReport, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return detect.BatchReport{}, fmt.Errorf("eval input %s: %w", path, err)
		}
		return detect.BatchReport{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return h.detector.ScanRecords(f, h.config.Field)
}

// #endregion eval-harness

// #region helpers
func rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// #endregion helpers
