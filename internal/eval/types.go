package eval

// #region eval-config
// EvalConfig holds the pass thresholds for a detection evaluation.
type EvalConfig struct {
	MinDetectionRate     float64 // fail if fewer watermarked responses are flagged
	MaxFalsePositiveRate float64 // fail if more vanilla responses are flagged
	Field                string  // record field to scan
}

// DefaultEvalConfig returns the stock thresholds.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MinDetectionRate:     0.9,
		MaxFalsePositiveRate: 0.05,
		Field:                "response",
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single measured value.
type EvalMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Pass  bool    `json:"pass"`
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of one evaluation.
type EvalResult struct {
	Passed  bool         `json:"passed"`
	Metrics []EvalMetric `json:"metrics"`
	Reason  string       `json:"reason"`
}

// Metric looks up a metric by name.
func (r EvalResult) Metric(name string) (EvalMetric, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return EvalMetric{}, false
}

// #endregion eval-result
