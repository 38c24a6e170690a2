package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/config"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/detect"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/eval"
)

// #region main
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	defaults := eval.DefaultEvalConfig()

	wmPath := flag.String("watermarked", cfg.Batch.Output, "watermarked responses JSONL")
	vanPath := flag.String("vanilla", cfg.Batch.Vanilla, "vanilla responses JSONL")
	minDetect := flag.Float64("min-detection", defaults.MinDetectionRate, "minimum detection rate")
	maxFP := flag.Float64("max-fp", defaults.MaxFalsePositiveRate, "maximum false positive rate")
	jsonOut := flag.Bool("json", false, "print the result as JSON")
	flag.Parse()

	alphabet, err := config.ParseAlphabet(cfg.Embed.Alphabet)
	if err != nil {
		log.Fatalf("alphabet: %v", err)
	}
	harness := eval.NewEvalHarness(eval.EvalConfig{
		MinDetectionRate:     *minDetect,
		MaxFalsePositiveRate: *maxFP,
		Field:                cfg.Batch.Field,
	}, detect.NewDetector(alphabet))

	result, err := harness.RunFiles(*wmPath, *vanPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			log.Fatalf("encode result: %v", err)
		}
	} else {
		printResult(*wmPath, *vanPath, result)
	}
	if !result.Passed {
		os.Exit(1)
	}
}

// #endregion main

// #region output
func printResult(wmPath, vanPath string, r eval.EvalResult) {
	fmt.Printf("Watermarked: %s\n", wmPath)
	fmt.Printf("Vanilla:     %s\n", vanPath)
	fmt.Println()
	fmt.Printf("%-22s %10s %6s\n", "METRIC", "VALUE", "PASS")
	for _, m := range r.Metrics {
		pass := "ok"
		if !m.Pass {
			pass = "FAIL"
		}
		fmt.Printf("%-22s %10.4f %6s\n", m.Name, m.Value, pass)
	}
	fmt.Println()
	fmt.Println(r.Reason)
}

// #endregion output
