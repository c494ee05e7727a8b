package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mrz1836/forge/internal/constants"
)

// timeSleep is overridden in tests so backoff does not slow them down.
//
//nolint:gochecknoglobals // Test seam
var timeSleep = time.After

// runWithRetry executes the request with exponential backoff. Only transient
// errors are retried.
func (c *CLIClient) runWithRetry(ctx context.Context, req Request) (string, error) {
	maxAttempts := c.cfg.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = constants.MaxRetryAttempts
	}

	var lastErr error
	backoff := constants.InitialBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, err := c.execute(ctx, req)
		if err == nil {
			if attempt > 1 {
				c.logger.Info().Str("node", req.Node).Int("attempt", attempt).Msg("model call succeeded after retry")
			}
			return text, nil
		}

		if !isRetryable(err) {
			c.logger.Debug().Err(err).Str("node", req.Node).Int("attempt", attempt).Msg("model call failed with non-retryable error")
			return "", err
		}

		lastErr = err
		if attempt < maxAttempts {
			c.logger.Warn().
				Err(err).
				Str("node", req.Node).
				Int("attempt", attempt).
				Int("max_attempts", maxAttempts).
				Dur("backoff", backoff).
				Msg("model call failed, will retry after backoff")

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-timeSleep(backoff):
				backoff *= constants.BackoffMultiplier
			}
		}
	}

	c.logger.Error().Err(lastErr).Str("node", req.Node).Int("max_attempts", maxAttempts).Msg("model call failed after max retries")

	me := AsModelError(req.Node, lastErr)
	return "", &ModelError{
		Node:     req.Node,
		Kind:     me.Kind,
		Attempts: maxAttempts,
		Err:      fmt.Errorf("max retries exceeded: %w", me.Err),
	}
}

// isRetryable reports whether err may succeed on another attempt.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, permanent := range []string{"authentication", "api key", "cli not found", "executable file not found"} {
		if strings.Contains(msg, permanent) {
			return false
		}
	}
	return true
}
