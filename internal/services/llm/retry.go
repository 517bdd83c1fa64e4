package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// retryConfig bounds the rate-limit retry loop around provider calls.
// Reasoning makes one completion per run, so the loop stays short.
type retryConfig struct {
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	multiplier     float64
}

func defaultRetryConfig() retryConfig {
	return retryConfig{
		maxRetries:     2,
		initialBackoff: 5 * time.Second,
		maxBackoff:     60 * time.Second,
		multiplier:     2.0,
	}
}

// isRateLimitError matches 429s and quota exhaustion from either provider
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "quota")
}

// retryDelayPattern matches "Please retry in Xs" and "retryDelay:Xs"
var retryDelayPattern = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// extractRetryDelay parses the API-suggested delay out of a rate-limit
// error message. Returns 0 when none is present.
func extractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}
	matches := retryDelayPattern.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}
	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// backoff computes the wait before retry attempt N. An API-provided delay
// overrides the configured base; the result is capped at maxBackoff.
func (c retryConfig) backoff(attempt int, apiDelay time.Duration) time.Duration {
	base := c.initialBackoff
	if apiDelay > 0 {
		base = apiDelay + time.Second
	}

	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= c.multiplier
	}

	wait := time.Duration(float64(base) * multiplier)
	if wait > c.maxBackoff {
		wait = c.maxBackoff
	}
	return wait
}

// withRetry runs call, retrying only on rate-limit errors up to the
// configured attempt count. Any other error returns immediately.
func withRetry(ctx context.Context, cfg retryConfig, logger arbor.ILogger, call func() (string, error)) (string, error) {
	for attempt := 0; ; attempt++ {
		out, err := call()
		if err == nil {
			return out, nil
		}
		if !isRateLimitError(err) || attempt >= cfg.maxRetries {
			return "", err
		}

		wait := cfg.backoff(attempt, extractRetryDelay(err))
		logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Msg("LLM rate limited, backing off")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
}

// parseTimeout reads a duration string with a 60s default for empty input
func parseTimeout(raw string) (time.Duration, error) {
	if raw == "" {
		return 60 * time.Second, nil
	}
	timeout, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout duration '%s': %w", raw, err)
	}
	return timeout, nil
}
