package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/vault/api"

	"resumecrew/internal/errors"
)

// VaultConfig holds Vault connection configuration
type VaultConfig struct {
	Enabled   bool         `mapstructure:"enabled"`
	Address   string       `mapstructure:"address"`
	Token     string       `mapstructure:"token"`
	TokenFile string       `mapstructure:"tokenFile"`
	Namespace string       `mapstructure:"namespace"`
	Secrets   VaultSecrets `mapstructure:"secrets"`
}

// VaultSecrets defines KVv2 paths for each secret. Empty paths are skipped.
type VaultSecrets struct {
	APIKeys   string `mapstructure:"apiKeys"`   // "keys": comma-separated server API keys
	GeminiKey string `mapstructure:"geminiKey"` // "api_key": default Gemini credential
	SerperKey string `mapstructure:"serperKey"` // "api_key": default Serper credential
	TLSCerts  string `mapstructure:"tlsCerts"`  // "cert", "key", "ca": PEM content
}

// secretReader is the subset of VaultClient used to populate a Config.
type secretReader interface {
	GetSecretV2(path string) (*VaultSecret, error)
	GetStringSecret(path, key string) (string, error)
	GetStringSliceSecret(path, key string) ([]string, error)
}

// VaultClient wraps the Vault API client
type VaultClient struct {
	client *api.Client
	logger *errors.Logger
}

// VaultSecret is a secret read from a KVv2 engine
type VaultSecret struct {
	Data    map[string]any
	Version int64
}

// NewVaultClient connects to Vault. It returns nil when Vault is disabled.
func NewVaultClient(cfg VaultConfig, logger *errors.Logger) (*VaultClient, error) {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	if !cfg.Enabled {
		logger.Debug("Vault integration disabled")
		return nil, nil
	}

	apiCfg := api.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	token, err := resolveVaultToken(cfg)
	if err != nil {
		return nil, err
	}
	client.SetToken(token)

	health, err := client.Sys().Health()
	if err != nil {
		logger.LogError(err, "Failed to connect to Vault", "address", apiCfg.Address)
		return nil, fmt.Errorf("failed to connect to vault: %w", err)
	}
	logger.Info("Connected to Vault",
		"address", apiCfg.Address,
		"version", health.Version,
		"sealed", health.Sealed)

	return &VaultClient{client: client, logger: logger}, nil
}

// resolveVaultToken prefers an inline token over a token file
func resolveVaultToken(cfg VaultConfig) (string, error) {
	token := cfg.Token
	if token == "" && cfg.TokenFile != "" {
		raw, err := os.ReadFile(cfg.TokenFile)
		if err != nil {
			return "", fmt.Errorf("failed to read vault token file: %w", err)
		}
		token = strings.TrimSpace(string(raw))
	}
	if token == "" {
		return "", fmt.Errorf("vault token is required when vault is enabled")
	}
	return token, nil
}

// GetSecretV2 reads a KVv2 secret
func (vc *VaultClient) GetSecretV2(path string) (*VaultSecret, error) {
	if vc == nil {
		return nil, fmt.Errorf("vault client not initialized")
	}
	vc.logger.Debug("Reading secret from Vault", "path", path)

	secret, err := vc.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret not found at path: %s", path)
	}
	return parseKV2(secret.Data, path)
}

// parseKV2 unwraps the data/metadata envelope of a KVv2 read
func parseKV2(raw map[string]any, path string) (*VaultSecret, error) {
	data, ok := raw["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secret at %s is not in KVv2 format (missing 'data' field)", path)
	}
	metadata, ok := raw["metadata"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secret at %s is not in KVv2 format (missing 'metadata' field)", path)
	}
	versionRaw, ok := metadata["version"]
	if !ok {
		return nil, fmt.Errorf("secret metadata at %s is missing 'version' field", path)
	}
	version, err := parseVersionValue(versionRaw, path)
	if err != nil {
		return nil, err
	}
	return &VaultSecret{Data: data, Version: version}, nil
}

// parseVersionValue accepts the numeric encodings the Vault API may return
func parseVersionValue(versionRaw any, path string) (int64, error) {
	switch v := versionRaw.(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		version, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("could not parse secret version at %s: %w", path, err)
		}
		return version, nil
	default:
		return 0, fmt.Errorf("unexpected type for version at %s: %T", path, versionRaw)
	}
}

// GetStringSecret reads one string field of a secret
func (vc *VaultClient) GetStringSecret(path, key string) (string, error) {
	secret, err := vc.GetSecretV2(path)
	if err != nil {
		return "", err
	}
	value, err := stringField(secret, path, key)
	if err != nil {
		return "", err
	}
	vc.logger.Debug("String secret retrieved from Vault",
		"path", path,
		"key", key,
		"masked_value", MaskSecret(value))
	return value, nil
}

func stringField(secret *VaultSecret, path, key string) (string, error) {
	value, ok := secret.Data[key]
	if !ok {
		return "", fmt.Errorf("key '%s' not found in secret %s", key, path)
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("value for key '%s' is not a string in secret %s", key, path)
	}
	return s, nil
}

// GetStringSliceSecret reads a comma-separated field as a slice
func (vc *VaultClient) GetStringSliceSecret(path, key string) ([]string, error) {
	value, err := vc.GetStringSecret(path, key)
	if err != nil {
		return nil, err
	}
	return splitAndTrim(value), nil
}

// ApplyVaultSecrets loads the configured secrets from Vault into config
func ApplyVaultSecrets(config *Config, logger *errors.Logger) error {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	if !config.Vault.Enabled {
		return nil
	}
	client, err := NewVaultClient(config.Vault, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vault client: %w", err)
	}
	if err := applySecrets(client, config, logger); err != nil {
		return err
	}
	logger.Info("Secrets applied from Vault")
	return nil
}

func applySecrets(src secretReader, config *Config, logger *errors.Logger) error {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	paths := config.Vault.Secrets

	if paths.APIKeys != "" {
		keys, err := src.GetStringSliceSecret(paths.APIKeys, "keys")
		if err != nil {
			return fmt.Errorf("failed to load API keys from vault: %w", err)
		}
		if len(keys) == 0 {
			logger.Warn("No API keys found in Vault", "path", paths.APIKeys)
		} else {
			config.Server.APIKeys = keys
			logger.Info("API keys loaded from Vault", "count", len(keys))
		}
	}

	credentials := []struct {
		name   string
		path   string
		target *string
	}{
		{"Gemini", paths.GeminiKey, &config.Crew.Credentials.GeminiAPIKey},
		{"Serper", paths.SerperKey, &config.Crew.Credentials.SerperAPIKey},
	}
	for _, c := range credentials {
		if c.path == "" {
			continue
		}
		key, err := src.GetStringSecret(c.path, "api_key")
		if err != nil {
			return fmt.Errorf("failed to load %s API key from vault: %w", c.name, err)
		}
		if key == "" {
			logger.Warn("Empty API key found in Vault", "credential", c.name, "path", c.path)
			continue
		}
		*c.target = key
		logger.Info("Default credential loaded from Vault", "credential", c.name)
	}

	if paths.TLSCerts != "" {
		secret, err := src.GetSecretV2(paths.TLSCerts)
		if err != nil {
			return fmt.Errorf("failed to load TLS certificates from vault: %w", err)
		}
		if err := applyTLSSecret(&config.Server.TLS, secret); err != nil {
			return err
		}
	}
	return nil
}

// applyTLSSecret copies PEM content fields and rejects file-path fields
func applyTLSSecret(tls *TLSConfig, secret *VaultSecret) error {
	for _, field := range []string{"cert_file", "key_file", "ca_file"} {
		if _, ok := secret.Data[field]; ok {
			return fmt.Errorf("vault TLS configuration error: '%s' field is not supported. Store certificate content in '%s' field instead",
				field, strings.TrimSuffix(field, "_file"))
		}
	}
	targets := map[string]*string{
		"cert": &tls.CertContent,
		"key":  &tls.KeyContent,
		"ca":   &tls.CAContent,
	}
	for key, target := range targets {
		if content, ok := secret.Data[key].(string); ok && content != "" {
			*target = content
		}
	}
	return nil
}
