package codec

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// #region constants

const maxRetries = 2 // 3 total attempts

// retryBackoff is the delay before the first retry; it doubles per attempt.
var retryBackoff = 100 * time.Millisecond

// #endregion

// #region should-retry

// retryable reports whether err is a transient transport failure. Errors
// caused by the caller's own context are never retried.
func retryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}

// withRetry runs fn until it succeeds, fails permanently or exhausts
// maxRetries.
func withRetry(ctx context.Context, method string, fn func() error) error {
	delay := retryBackoff
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if attempt >= maxRetries || !retryable(ctx, err) {
			return err
		}
		log.Printf("[CODEC] %s attempt %d failed: %v; retrying in %s", method, attempt+1, err, delay)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// #endregion
