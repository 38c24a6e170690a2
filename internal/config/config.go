// Package config loads the watermark tool configuration from TOML, YAML or
// JSON files with environment overrides.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/bias"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/greenlist"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/rules"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/sampler"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/zerowidth"
)

// EnvConfigPath names the variable holding the config file path.
const EnvConfigPath = "WATERMARK_CONFIG"

// #region types
// Config is the full tool configuration.
type Config struct {
	Embed      EmbedConfig      `json:"embed" toml:"embed" yaml:"embed"`
	Token      TokenConfig      `json:"token" toml:"token" yaml:"token"`
	Generation GenerationConfig `json:"generation" toml:"generation" yaml:"generation"`
	Batch      BatchConfig      `json:"batch" toml:"batch" yaml:"batch"`
	Ledger     LedgerConfig     `json:"ledger" toml:"ledger" yaml:"ledger"`
	Transport  TransportConfig  `json:"transport" toml:"transport" yaml:"transport"`
}

// EmbedConfig drives the prompt-level rule pipeline.
type EmbedConfig struct {
	Rules           []string `json:"rules" toml:"rules" yaml:"rules"`
	Span            int      `json:"span" toml:"span" yaml:"span"`
	Alphabet        []string `json:"alphabet" toml:"alphabet" yaml:"alphabet"`
	RareInterval    int      `json:"rare_interval" toml:"rare_interval" yaml:"rare_interval"`
	RareProbability float64  `json:"rare_probability" toml:"rare_probability" yaml:"rare_probability"`
	RareWords       []string `json:"rare_words" toml:"rare_words" yaml:"rare_words"`
	SpacingPosition int      `json:"spacing_position" toml:"spacing_position" yaml:"spacing_position"`
}

// TokenConfig drives greenlist sampling and verification.
type TokenConfig struct {
	VocabSize  int     `json:"vocab_size" toml:"vocab_size" yaml:"vocab_size"`
	K          int     `json:"k" toml:"k" yaml:"k"`
	Policy     string  `json:"policy" toml:"policy" yaml:"policy"`
	Delta      float64 `json:"delta" toml:"delta" yaml:"delta"`
	EOS        int     `json:"eos" toml:"eos" yaml:"eos"`
	StaticBias bool    `json:"static_bias" toml:"static_bias" yaml:"static_bias"`
	Threshold  float64 `json:"threshold" toml:"threshold" yaml:"threshold"`
	// Temperature and TopP shape the local sampler only; the remote request
	// uses the generation section.
	Temperature float64 `json:"temperature" toml:"temperature" yaml:"temperature"`
	TopP        float64 `json:"top_p" toml:"top_p" yaml:"top_p"`
	// BiasWords replaces the stock static bias list when non-empty.
	BiasWords map[string]float64 `json:"bias_words" toml:"bias_words" yaml:"bias_words"`
}

// GenerationConfig holds request parameters for the model.
type GenerationConfig struct {
	MaxTokens      int     `json:"max_tokens" toml:"max_tokens" yaml:"max_tokens"`
	Temperature    float64 `json:"temperature" toml:"temperature" yaml:"temperature"`
	TopP           float64 `json:"top_p" toml:"top_p" yaml:"top_p"`
	TimeoutSeconds int     `json:"timeout_seconds" toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// BatchConfig holds batch driver paths and pool size.
type BatchConfig struct {
	Input       string `json:"input" toml:"input" yaml:"input"`
	Output      string `json:"output" toml:"output" yaml:"output"`
	TokenOutput string `json:"token_output" toml:"token_output" yaml:"token_output"`
	Vanilla     string `json:"vanilla" toml:"vanilla" yaml:"vanilla"`
	Field       string `json:"field" toml:"field" yaml:"field"`
	Workers     int    `json:"workers" toml:"workers" yaml:"workers"`
	Watch       bool   `json:"watch" toml:"watch" yaml:"watch"`
}

// LedgerConfig points at the SQLite run ledger. An empty path disables it.
type LedgerConfig struct {
	Path string `json:"path" toml:"path" yaml:"path"`
}

// TransportConfig addresses the model-serving sidecar.
type TransportConfig struct {
	Addr string `json:"addr" toml:"addr" yaml:"addr"`
}

// #endregion types

// #region defaults
// Default returns the stock configuration.
func Default() *Config {
	opts := rules.DefaultOptions()
	return &Config{
		Embed: EmbedConfig{
			Rules:           []string{rules.NameHiddenEcho},
			Span:            opts.Span,
			Alphabet:        codes(opts.Alphabet),
			RareInterval:    opts.RareInterval,
			RareProbability: opts.RareProbability,
			RareWords:       append([]string(nil), opts.RareWords...),
			SpacingPosition: opts.SpacingPosition,
		},
		Token: TokenConfig{
			VocabSize: 50257,
			K:         12564,
			Policy:    sampler.PolicyHard,
			Delta:     2.0,
			EOS:       50256,
			Threshold: 4.0,

			Temperature: 0.7,
			TopP:        0.95,
		},
		Generation: GenerationConfig{
			MaxTokens:      256,
			Temperature:    0.7,
			TopP:           0.95,
			TimeoutSeconds: 60,
		},
		Batch: BatchConfig{
			Input:       "prompts/prompts_all.jsonl",
			Output:      "watermarked_responses/prompt_watermarked_responses.jsonl",
			TokenOutput: "watermarked_responses/token_watermarked_responses.jsonl",
			Vanilla:     "vanilla_responses/vanilla_responses.jsonl",
			Field:       "response",
			Workers:     4,
		},
		Transport: TransportConfig{
			Addr: "localhost:50051",
		},
	}
}

func codes(a zerowidth.Alphabet) []string {
	out := make([]string, 0, a.Len())
	for _, r := range a.Runes() {
		out = append(out, fmt.Sprintf("U+%04X", r))
	}
	return out
}

// #endregion defaults

// #region load
// Load reads path, decoding by extension. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config extension %q", filepath.Ext(path))
	}
	return cfg, nil
}

// FromEnv loads the file named by WATERMARK_CONFIG, applies environment
// overrides and validates the result.
func FromEnv() (*Config, error) {
	cfg, err := Load(os.Getenv(EnvConfigPath))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides replaces fields from WATERMARK_* variables.
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv("WATERMARK_TRANSPORT_ADDR"); v != "" {
		c.Transport.Addr = v
	}
	if v := os.Getenv("WATERMARK_LEDGER_PATH"); v != "" {
		c.Ledger.Path = v
	}
	if v := os.Getenv("WATERMARK_BATCH_INPUT"); v != "" {
		c.Batch.Input = v
	}
	if v := os.Getenv("WATERMARK_BATCH_OUTPUT"); v != "" {
		c.Batch.Output = v
	}
	if v := os.Getenv("WATERMARK_TOKEN_POLICY"); v != "" {
		c.Token.Policy = v
	}
	if v := os.Getenv("WATERMARK_DETECT_WATCH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WATERMARK_DETECT_WATCH: %w", err)
		}
		c.Batch.Watch = b
	}
	if v := os.Getenv("WATERMARK_BATCH_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WATERMARK_BATCH_WORKERS: %w", err)
		}
		c.Batch.Workers = n
	}
	if v := os.Getenv("WATERMARK_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WATERMARK_MAX_TOKENS: %w", err)
		}
		c.Generation.MaxTokens = n
	}
	return nil
}

// #endregion load

// #region derived
// RuleOptions converts the embed section into rule parameters.
func (c *Config) RuleOptions() (rules.Options, error) {
	alphabet, err := ParseAlphabet(c.Embed.Alphabet)
	if err != nil {
		return rules.Options{}, err
	}
	return rules.Options{
		Span:            c.Embed.Span,
		Alphabet:        alphabet,
		RareInterval:    c.Embed.RareInterval,
		RareProbability: c.Embed.RareProbability,
		RareWords:       c.Embed.RareWords,
		SpacingPosition: c.Embed.SpacingPosition,
	}, nil
}

// Pipeline builds the configured rule pipeline.
func (c *Config) Pipeline() (*rules.Pipeline, error) {
	opts, err := c.RuleOptions()
	if err != nil {
		return nil, err
	}
	return rules.Build(c.Embed.Rules, opts)
}

// Greenlist returns the partition parameters.
func (c *Config) Greenlist() greenlist.Config {
	return greenlist.Config{VocabSize: c.Token.VocabSize, K: c.Token.K}
}

// Timeout is the per-item generation deadline.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Generation.TimeoutSeconds) * time.Second
}

// Sampler builds the local token sampler from the token section.
func (c *Config) Sampler() (*sampler.Sampler, error) {
	policy, err := sampler.ParsePolicy(c.Token.Policy, c.Token.Delta)
	if err != nil {
		return nil, err
	}
	return sampler.New(policy,
		sampler.WithTemperature(c.Token.Temperature),
		sampler.WithTopP(c.Token.TopP),
	)
}

// StaticList returns the configured static bias words.
func (c *Config) StaticList() bias.StaticList {
	if len(c.Token.BiasWords) == 0 {
		return bias.DefaultStaticList()
	}
	return bias.StaticList{Words: c.Token.BiasWords}
}

// Hash fingerprints the configuration for the run ledger.
func (c *Config) Hash() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// ParseAlphabet reads code points written as "U+200B", "0x200B" or "200B".
// An empty list selects the default alphabet.
func ParseAlphabet(codes []string) (zerowidth.Alphabet, error) {
	if len(codes) == 0 {
		return zerowidth.DefaultAlphabet(), nil
	}
	runes := make([]rune, 0, len(codes))
	for _, code := range codes {
		h := strings.TrimSpace(code)
		h = strings.TrimPrefix(strings.TrimPrefix(h, "U+"), "u+")
		h = strings.TrimPrefix(strings.TrimPrefix(h, "0x"), "0X")
		v, err := strconv.ParseUint(h, 16, 32)
		if err != nil {
			return zerowidth.Alphabet{}, fmt.Errorf("alphabet code %q: %w", code, err)
		}
		runes = append(runes, rune(v))
	}
	return zerowidth.NewAlphabet(runes...)
}

// #endregion derived
