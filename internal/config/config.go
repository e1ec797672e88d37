package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
// Credential precedence, highest first:
// 1. Values submitted with a request
// 2. Vault (if configured)
// 3. Config file
// 4. Environment variables (RESUMECREW_CREW_CREDENTIALS_GEMINIAPIKEY, etc., .env included)
type Config struct {
	AI            AIConfig            `mapstructure:"ai"`
	Crew          CrewConfig          `mapstructure:"crew"`
	Fetch         FetchConfig         `mapstructure:"fetch"`
	Server        ServerConfig        `mapstructure:"server"`
	App           AppConfig           `mapstructure:"app"`
	Vault         VaultConfig         `mapstructure:"vault"`
	Notify        NotifyConfig        `mapstructure:"notify"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// AIConfig holds LLM settings shared by every agent in the crew
type AIConfig struct {
	Provider        string               `mapstructure:"provider"`
	Model           string               `mapstructure:"model"`
	Timeout         time.Duration        `mapstructure:"timeout"`
	MaxRetries      int                  `mapstructure:"maxRetries"`
	Temperature     float32              `mapstructure:"temperature"`
	MaxOutputTokens int32                `mapstructure:"maxOutputTokens"`
	MaxToolSteps    int                  `mapstructure:"maxToolSteps"`
	CircuitBreaker  CircuitBreakerConfig `mapstructure:"circuitBreaker"`
}

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxRequests      uint32        `mapstructure:"maxRequests"`      // Max requests allowed when half-open
	Interval         time.Duration `mapstructure:"interval"`         // Interval to clear counts
	Timeout          time.Duration `mapstructure:"timeout"`          // Open state duration before half-open
	MinRequests      uint32        `mapstructure:"minRequests"`      // Minimum requests before tripping
	FailureThreshold float64       `mapstructure:"failureThreshold"` // Failure ratio threshold (0.0-1.0)
}

// CrewConfig holds the agent pipeline settings
type CrewConfig struct {
	DefinitionFile  string            `mapstructure:"definitionFile"`
	WatchDefinition bool              `mapstructure:"watchDefinition"`
	SearchEndpoint  string            `mapstructure:"searchEndpoint"`
	SearchResults   int               `mapstructure:"searchResults"`
	Credentials     CredentialsConfig `mapstructure:"credentials"`
}

// CredentialsConfig holds server-side fallbacks for the per-request API keys
type CredentialsConfig struct {
	GeminiAPIKey string `mapstructure:"geminiApiKey"`
	SerperAPIKey string `mapstructure:"serperApiKey"`
}

// FetchConfig controls how job postings and profiles are downloaded
type FetchConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	UserAgent       string        `mapstructure:"userAgent"`
	MaxBodyBytes    int64         `mapstructure:"maxBodyBytes"`
	BrowserFallback bool          `mapstructure:"browserFallback"`
	BrowserTimeout  time.Duration `mapstructure:"browserTimeout"`
	MinTextLength   int           `mapstructure:"minTextLength"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string          `mapstructure:"host"`
	Port         string          `mapstructure:"port"`
	ReadTimeout  time.Duration   `mapstructure:"readTimeout"`
	WriteTimeout time.Duration   `mapstructure:"writeTimeout"`
	IdleTimeout  time.Duration   `mapstructure:"idleTimeout"`
	TLS          TLSConfig       `mapstructure:"tls"`
	APIKeys      []string        `mapstructure:"apiKeys"`
	RateLimit    RateLimitConfig `mapstructure:"rateLimit"`
}

// TLSConfig holds TLS/mTLS configuration
type TLSConfig struct {
	Mode     string `mapstructure:"mode"` // "disabled", "server", "mutual"
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
	CAFile   string `mapstructure:"caFile"`

	// PEM content, used when loaded from Vault instead of files
	CertContent string `mapstructure:"certContent"`
	KeyContent  string `mapstructure:"keyContent"`
	CAContent   string `mapstructure:"caContent"`

	MinVersion       string `mapstructure:"minVersion"`       // "1.2" or "1.3"
	ClientAuthPolicy string `mapstructure:"clientAuthPolicy"` // "require", "request", "verify"
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	RequestsPerMin int           `mapstructure:"requestsPerMin"`
	BurstCapacity  int           `mapstructure:"burstCapacity"`
	ByIP           bool          `mapstructure:"byIP"`
	ByAPIKey       bool          `mapstructure:"byAPIKey"`
	Window         time.Duration `mapstructure:"window"`
}

// AppConfig holds general application configuration
type AppConfig struct {
	LogLevel      string `mapstructure:"logLevel"`
	WorkDir       string `mapstructure:"workDir"`
	MaxUploadSize int64  `mapstructure:"maxUploadSize"`
}

// NotifyConfig configures request status events over AMQP
type NotifyConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	URL              string        `mapstructure:"url"`
	Exchange         string        `mapstructure:"exchange"`
	RoutingKeyPrefix string        `mapstructure:"routingKeyPrefix"`
	PublishTimeout   time.Duration `mapstructure:"publishTimeout"`
}

// ObservabilityConfig holds observability configuration
type ObservabilityConfig struct {
	Enabled         bool             `mapstructure:"enabled"`
	ServiceName     string           `mapstructure:"serviceName"`
	ServiceVersion  string           `mapstructure:"serviceVersion"`
	ServiceInstance string           `mapstructure:"serviceInstance"`
	ConsoleOutput   bool             `mapstructure:"consoleOutput"`
	SampleRate      float64          `mapstructure:"sampleRate"`
	Metrics         MetricsConfig    `mapstructure:"metrics"`
	Prometheus      PrometheusConfig `mapstructure:"prometheus"`
	OTLP            OTLPConfig       `mapstructure:"otlp"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	CollectionInterval time.Duration `mapstructure:"collectionInterval"`
}

// PrometheusConfig holds Prometheus configuration
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	Endpoint string            `mapstructure:"endpoint"`
	Insecure bool              `mapstructure:"insecure"`
	Headers  map[string]string `mapstructure:"headers"`
}

// LoadConfig loads configuration from .env, environment variables and an optional config file
func LoadConfig() (*Config, error) {
	log.Println("[CONFIG] Starting configuration loading process")

	if err := godotenv.Load(); err != nil {
		if !stderrors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		log.Println("[CONFIG] Loaded environment from .env")
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RESUMECREW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/resumecrew/")
	v.AddConfigPath("$HOME/.resumecrew")
	v.AddConfigPath(".")

	configFileUsed := ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Println("[CONFIG] No config file found, using defaults and environment variables")
	} else {
		configFileUsed = v.ConfigFileUsed()
		log.Printf("[CONFIG] Loaded config file: %s", configFileUsed)
	}

	return decode(v, configFileUsed)
}

// LoadFromViper builds a Config from an already populated viper instance.
// Used by tests and by commands that read an explicit file.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	return decode(v, v.ConfigFileUsed())
}

func decode(v *viper.Viper, configFileUsed string) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyFallbacks()
	config.logConfigurationSources(configFileUsed)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Println("[CONFIG] Configuration loading completed successfully")
	return &config, nil
}

// Validate checks the configuration for values the application cannot run with
func (c *Config) Validate() error {
	if c.AI.Provider != "gemini" {
		return fmt.Errorf("unsupported AI provider: %s", c.AI.Provider)
	}
	if c.AI.Model == "" {
		return fmt.Errorf("AI model is required")
	}
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("AI timeout must be positive")
	}
	if c.AI.MaxRetries < 0 {
		return fmt.Errorf("AI max retries cannot be negative")
	}
	if c.AI.MaxToolSteps < 1 {
		return fmt.Errorf("AI max tool steps must be at least 1")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.App.MaxUploadSize <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}
	if c.Notify.Enabled && c.Notify.URL == "" {
		return fmt.Errorf("notify URL is required when notifications are enabled")
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("rate limit requests per minute must be positive")
	}
	if err := c.ValidateTLSConfig(); err != nil {
		return fmt.Errorf("TLS configuration error: %w", err)
	}
	return nil
}
