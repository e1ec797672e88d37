package ai

import (
	"github.com/sony/gobreaker/v2"
	"google.golang.org/genai"

	"resumecrew/internal/config"
	"resumecrew/internal/errors"
)

// CircuitBreaker guards GenerateContent calls. One breaker is shared by every
// request, so only upstream failures count against it; a caller supplying a
// bad API key must not open the circuit for everyone else.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker[*genai.GenerateContentResponse]
}

// NewCircuitBreaker returns nil when the breaker is disabled. A nil breaker
// executes calls directly.
func NewCircuitBreaker(name string, cfg config.CircuitBreakerConfig, logger *errors.Logger) *CircuitBreaker {
	if !cfg.Enabled {
		return nil
	}
	if logger == nil {
		logger = errors.NewNopLogger()
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && failureRatio >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isRetryableError(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
				"failure_threshold", cfg.FailureThreshold)
		},
	}

	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker[*genai.GenerateContentResponse](settings)}
}

// Execute runs fn under the breaker.
func (b *CircuitBreaker) Execute(fn func() (*genai.GenerateContentResponse, error)) (*genai.GenerateContentResponse, error) {
	if b == nil || b.cb == nil {
		return fn()
	}
	return b.cb.Execute(fn)
}

// Stats reports the breaker state for /stats.
func (b *CircuitBreaker) Stats() map[string]any {
	if b == nil || b.cb == nil {
		return map[string]any{"enabled": false}
	}
	counts := b.cb.Counts()
	return map[string]any{
		"enabled":               true,
		"name":                  b.cb.Name(),
		"state":                 b.cb.State().String(),
		"requests":              counts.Requests,
		"total_failures":        counts.TotalFailures,
		"consecutive_failures":  counts.ConsecutiveFailures,
		"consecutive_successes": counts.ConsecutiveSuccesses,
	}
}

// IsHealthy reports whether calls are currently allowed through.
func (b *CircuitBreaker) IsHealthy() bool {
	if b == nil || b.cb == nil {
		return true
	}
	return b.cb.State() != gobreaker.StateOpen
}
