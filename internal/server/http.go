package server

import (
	"context"
	"time"

	"resumecrew/internal/config"
	"resumecrew/internal/errors"
	"resumecrew/internal/observability"
	"resumecrew/internal/pipeline"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Customizer runs the document pipeline. pipeline.Service implements it.
type Customizer interface {
	Customize(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// HealthReporter exposes the state of the AI backend. ai.ExecutorFactory implements it.
type HealthReporter interface {
	IsHealthy() bool
	Stats() map[string]any
}

// Server holds configuration for the HTTP server
type Server struct {
	Host    string
	Port    string
	Version string

	// TLS Configuration
	TLSConfig config.TLSConfig

	// API Authentication
	APIKeys map[string]bool

	// Timeout configurations
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Request size limit
	MaxRequestSize int64
	MaxUploadSize int64

	// Rate limiting
	RateLimit   *config.RateLimitConfig
	RateLimiter *RateLimiter

	// Server-side credentials make the form's key fields optional
	HasDefaultGeminiKey bool
	HasDefaultSerperKey bool

	Pipeline      Customizer
	AI            HealthReporter
	Observability *observability.ObservabilityManager

	// Logger
	Logger *errors.Logger
}

// ServerConfig holds configuration for creating a Server instance
type ServerConfig struct {
	Host          string
	Port          string
	Version       string
	TLSConfig     config.TLSConfig
	APIKeys       []string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	MaxUploadSize int64
	RateLimit     *config.RateLimitConfig
	DefaultKeys   config.CredentialsConfig
	Pipeline      Customizer
	AI            HealthReporter
	Observability *observability.ObservabilityManager
}

// ServerConfigFrom fills a ServerConfig from the application configuration.
func ServerConfigFrom(appCfg *config.Config, version string) ServerConfig {
	return ServerConfig{
		Host:          appCfg.Server.Host,
		Port:          appCfg.Server.Port,
		Version:       version,
		TLSConfig:     appCfg.Server.TLS,
		APIKeys:       appCfg.Server.APIKeys,
		ReadTimeout:   appCfg.Server.ReadTimeout,
		WriteTimeout:  appCfg.Server.WriteTimeout,
		IdleTimeout:   appCfg.Server.IdleTimeout,
		MaxUploadSize: appCfg.App.MaxUploadSize,
		RateLimit:     &appCfg.Server.RateLimit,
		DefaultKeys:   appCfg.Crew.Credentials,
	}
}

// multipartOverhead is allowed on top of the upload for the text fields and
// multipart framing.
const multipartOverhead = 1 << 20

// NewServer creates a new Server instance from a ServerConfig struct
func NewServer(cfg ServerConfig, logger *errors.Logger) *Server {
	if logger == nil {
		logger = errors.NewNopLogger()
	}

	// Convert API keys slice to map for O(1) lookup
	apiKeyMap := make(map[string]bool)
	for _, key := range cfg.APIKeys {
		if key != "" {
			apiKeyMap[key] = true
		}
	}

	var rateLimiter *RateLimiter
	if cfg.RateLimit != nil && cfg.RateLimit.Enabled {
		rateLimiter = NewRateLimiter(
			cfg.RateLimit.RequestsPerMin,
			cfg.RateLimit.BurstCapacity,
			cfg.RateLimit.Window,
			logger,
		)
	}

	om := cfg.Observability
	if om == nil {
		om, _ = observability.NewObservabilityManager(observability.ObservabilityConfig{ServiceName: "resumecrew"})
	}

	var maxRequest int64
	if cfg.MaxUploadSize > 0 {
		maxRequest = cfg.MaxUploadSize + multipartOverhead
	}

	return &Server{
		Host:                cfg.Host,
		Port:                cfg.Port,
		Version:             cfg.Version,
		TLSConfig:           cfg.TLSConfig,
		APIKeys:             apiKeyMap,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		IdleTimeout:         cfg.IdleTimeout,
		MaxRequestSize:      maxRequest,
		MaxUploadSize:       cfg.MaxUploadSize,
		RateLimit:           cfg.RateLimit,
		RateLimiter:         rateLimiter,
		HasDefaultGeminiKey: cfg.DefaultKeys.GeminiAPIKey != "",
		HasDefaultSerperKey: cfg.DefaultKeys.SerperAPIKey != "",
		Pipeline:            cfg.Pipeline,
		AI:                  cfg.AI,
		Observability:       om,
		Logger:              logger,
	}
}
