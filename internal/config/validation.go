package config

import (
	"fmt"
	"strings"
)

// ValidationError is one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every invalid field.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every section and returns ValidationErrors on failure.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if _, err := c.Pipeline(); err != nil {
		add("embed", "%v", err)
	}

	if err := c.Greenlist().Validate(); err != nil {
		add("token.k", "%v", err)
	}
	if c.Token.EOS < 0 || c.Token.EOS >= c.Token.VocabSize {
		add("token.eos", "eos %d outside vocabulary of %d", c.Token.EOS, c.Token.VocabSize)
	}
	if c.Token.Threshold <= 0 {
		add("token.threshold", "must be positive, got %v", c.Token.Threshold)
	}
	if _, err := c.Sampler(); err != nil {
		add("token", "sampler: %v", err)
	}

	if c.Generation.MaxTokens <= 0 {
		add("generation.max_tokens", "must be positive, got %d", c.Generation.MaxTokens)
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		add("generation.temperature", "must be in [0, 2], got %v", c.Generation.Temperature)
	}
	if c.Generation.TopP <= 0 || c.Generation.TopP > 1 {
		add("generation.top_p", "must be in (0, 1], got %v", c.Generation.TopP)
	}
	if c.Generation.TimeoutSeconds <= 0 {
		add("generation.timeout_seconds", "must be positive, got %d", c.Generation.TimeoutSeconds)
	}

	if c.Batch.Workers <= 0 {
		add("batch.workers", "must be positive, got %d", c.Batch.Workers)
	}
	if c.Batch.Field == "" {
		add("batch.field", "must not be empty")
	}
	if c.Transport.Addr == "" {
		add("transport.addr", "must not be empty")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
