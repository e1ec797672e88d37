package ai

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"resumecrew/internal/errors"
)

const maxBackoff = 30 * time.Second

// backoff returns 2^(attempt-1) seconds plus up to 10% jitter, capped.
func backoff(attempt int, base time.Duration) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt-1))) * base
	if delay <= 0 || delay > maxBackoff {
		delay = maxBackoff
	}
	if jitterMax := int64(float64(delay) * 0.1); jitterMax > 0 {
		if jitter, err := rand.Int(rand.Reader, big.NewInt(jitterMax)); err == nil {
			delay += time.Duration(jitter.Int64())
		}
	}
	return min(delay, maxBackoff)
}

// withRetry calls fn until it succeeds, fails with a non-retryable error or
// maxRetries retries have been made.
func withRetry[T any](ctx context.Context, logger *errors.Logger, operation string, maxRetries int, base time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff(attempt, base)
			logger.Warn("Retrying AI operation",
				"operation", operation,
				"attempt", attempt,
				"max_retries", maxRetries,
				"backoff", wait,
				"error", lastErr.Error())

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 {
				logger.Info("AI operation succeeded after retry", "operation", operation, "attempts", attempt+1)
			}
			return result, nil
		}
		lastErr = err

		if !isRetryableError(err) {
			break
		}
	}

	return zero, fmt.Errorf("operation '%s' failed: %w", operation, lastErr)
}

// isRetryableError reports network errors and 429/5xx responses.
func isRetryableError(err error) bool {
	if err == nil || stderrors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}

	var genaiErr genai.APIError
	if stderrors.As(err, &genaiErr) {
		return retryableStatus(genaiErr.Code)
	}

	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		return retryableStatus(apiErr.Code)
	}

	return false
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
