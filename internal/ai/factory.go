package ai

import (
	"context"
	"fmt"

	"resumecrew/internal/config"
	"resumecrew/internal/crew"
	"resumecrew/internal/errors"
)

// ExecutorFactory builds executors bound to a caller's API key. The circuit
// breaker is created once and shared by every executor it builds.
type ExecutorFactory struct {
	cfg     config.AIConfig
	breaker *CircuitBreaker
	logger  *errors.Logger
	opts    clientOptions
}

// NewExecutorFactory validates the provider and creates the shared breaker.
func NewExecutorFactory(cfg config.AIConfig, logger *errors.Logger) (*ExecutorFactory, error) {
	if cfg.Provider != "gemini" {
		return nil, fmt.Errorf("unsupported AI provider: %s", cfg.Provider)
	}
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	return &ExecutorFactory{
		cfg:     cfg,
		breaker: NewCircuitBreaker("ai-"+cfg.Model, cfg.CircuitBreaker, logger),
		logger:  logger,
	}, nil
}

// NewExecutor returns an executor authenticated with apiKey.
func (f *ExecutorFactory) NewExecutor(ctx context.Context, apiKey string) (crew.Executor, error) {
	return newGeminiExecutor(ctx, f.cfg, apiKey, f.breaker, f.logger, f.opts)
}

// Stats reports the model and breaker state.
func (f *ExecutorFactory) Stats() map[string]any {
	return map[string]any{
		"provider":        f.cfg.Provider,
		"model":           f.cfg.Model,
		"circuit_breaker": f.breaker.Stats(),
	}
}

// IsHealthy is false while the shared breaker is open.
func (f *ExecutorFactory) IsHealthy() bool {
	return f.breaker.IsHealthy()
}
