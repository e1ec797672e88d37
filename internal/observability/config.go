package observability

import (
	"time"

	"resumecrew/internal/config"
)

// ObservabilityConfig holds configuration for observability
type ObservabilityConfig struct {
	ServiceName        string
	ServiceVersion     string
	ServiceInstance    string
	Enabled            bool
	ConsoleOutput      bool
	SampleRate         float64
	MetricsEnabled     bool
	CollectionInterval time.Duration
	Prometheus         PrometheusConfig
	OTLP               config.OTLPConfig
}

// GetObservabilityConfig creates observability config from provided config
func GetObservabilityConfig(cfg *config.Config, version string) ObservabilityConfig {
	if cfg == nil {
		// Fallback to defaults if config not available
		return ObservabilityConfig{
			ServiceName:        "resumecrew",
			ServiceVersion:     version,
			ServiceInstance:    "resumecrew-1",
			Enabled:            true,
			ConsoleOutput:      false,
			SampleRate:         1.0,
			MetricsEnabled:     true,
			CollectionInterval: 15 * time.Second,
			Prometheus:         GetPrometheusConfig(nil),
		}
	}

	obsConfig := cfg.Observability

	// Use app version if service version not specified
	serviceVersion := obsConfig.ServiceVersion
	if serviceVersion == "" {
		serviceVersion = version
	}
	interval := obsConfig.Metrics.CollectionInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	return ObservabilityConfig{
		ServiceName:        obsConfig.ServiceName,
		ServiceVersion:     serviceVersion,
		ServiceInstance:    obsConfig.ServiceInstance,
		Enabled:            obsConfig.Enabled,
		ConsoleOutput:      obsConfig.ConsoleOutput,
		SampleRate:         obsConfig.SampleRate,
		MetricsEnabled:     obsConfig.Metrics.Enabled,
		CollectionInterval: interval,
		Prometheus:         GetPrometheusConfig(cfg),
		OTLP:               obsConfig.OTLP,
	}
}
