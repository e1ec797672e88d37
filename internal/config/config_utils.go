package config

import (
	"fmt"
	"log"
	"os"
	"strings"
)

func (c *Config) applyFallbacks() {
	c.applyServerAPIKeyFallbacks()
	c.applyCredentialFallbacks()
	c.applyTLSDefaults()
	c.applyObservabilityDefaults()
}

// applyServerAPIKeyFallbacks parses a comma-separated key list from the environment
func (c *Config) applyServerAPIKeyFallbacks() {
	if len(c.Server.APIKeys) == 0 {
		if apiKeysEnv := os.Getenv("RESUMECREW_SERVER_APIKEYS"); apiKeysEnv != "" {
			c.Server.APIKeys = splitAndTrim(apiKeysEnv)
		}
	}
}

// applyCredentialFallbacks accepts the conventional variable names used by the
// Gemini and Serper tooling.
func (c *Config) applyCredentialFallbacks() {
	if c.Crew.Credentials.GeminiAPIKey == "" {
		c.Crew.Credentials.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.Crew.Credentials.SerperAPIKey == "" {
		c.Crew.Credentials.SerperAPIKey = os.Getenv("SERPER_API_KEY")
	}
}

func (c *Config) applyTLSDefaults() {
	if c.Server.TLS.Mode == "" {
		c.Server.TLS.Mode = "disabled"
	}
	if c.Server.TLS.Mode == "mutual" && c.Server.TLS.ClientAuthPolicy == "" {
		c.Server.TLS.ClientAuthPolicy = "require"
	}
	if c.Server.TLS.MinVersion == "" && c.Server.TLS.Mode != "disabled" {
		c.Server.TLS.MinVersion = "1.2"
	}
}

func (c *Config) applyObservabilityDefaults() {
	if c.Observability.ServiceInstance == "" {
		c.Observability.ServiceInstance = generateServiceInstanceID(c.Observability.ServiceName)
	}
}

func generateServiceInstanceID(serviceName string) string {
	if hostname, err := os.Hostname(); err == nil {
		return fmt.Sprintf("%s-%s", serviceName, hostname)
	}
	return fmt.Sprintf("%s-1", serviceName)
}

func splitAndTrim(list string) []string {
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MaskSecret keeps the first and last four characters of long secrets.
func MaskSecret(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) > 8:
		return secret[:4] + "****" + secret[len(secret)-4:]
	default:
		return "****"
	}
}

func configured(secret string) string {
	if secret == "" {
		return "***NOT SET***"
	}
	return "***CONFIGURED***"
}

// logConfigurationSources logs a summary of where configuration came from
func (c *Config) logConfigurationSources(configFileUsed string) {
	log.Println("[CONFIG] === Configuration Sources Summary ===")
	if configFileUsed != "" {
		log.Printf("[CONFIG] Config file: %s", configFileUsed)
	} else {
		log.Println("[CONFIG] Config file: None (using defaults)")
	}

	envVars := []string{
		"RESUMECREW_AI_MODEL",
		"RESUMECREW_SERVER_PORT",
		"RESUMECREW_SERVER_HOST",
		"RESUMECREW_APP_LOGLEVEL",
		"RESUMECREW_APP_WORKDIR",
		"RESUMECREW_VAULT_ENABLED",
		"RESUMECREW_CREW_CREDENTIALS_GEMINIAPIKEY",
		"RESUMECREW_CREW_CREDENTIALS_SERPERAPIKEY",
		"GEMINI_API_KEY",
		"SERPER_API_KEY",
	}
	log.Println("[CONFIG] Environment variables:")
	hasEnvVars := false
	for _, envVar := range envVars {
		if value := os.Getenv(envVar); value != "" {
			if strings.Contains(strings.ToLower(envVar), "key") {
				log.Printf("[CONFIG]   %s=***MASKED***", envVar)
			} else {
				log.Printf("[CONFIG]   %s=%s", envVar, value)
			}
			hasEnvVars = true
		}
	}
	if !hasEnvVars {
		log.Println("[CONFIG]   None set")
	}

	log.Println("[CONFIG] === Key Configuration Values ===")
	log.Printf("[CONFIG] AI Provider: %s, Model: %s", c.AI.Provider, c.AI.Model)
	log.Printf("[CONFIG] Default Gemini key: %s", configured(c.Crew.Credentials.GeminiAPIKey))
	log.Printf("[CONFIG] Default Serper key: %s", configured(c.Crew.Credentials.SerperAPIKey))
	log.Printf("[CONFIG] Crew definition: %s", valueOr(c.Crew.DefinitionFile, "built-in"))
	log.Printf("[CONFIG] Server: %s:%s (TLS %s)", c.Server.Host, c.Server.Port, c.Server.TLS.Mode)
	log.Printf("[CONFIG] Work dir: %s", valueOr(c.App.WorkDir, os.TempDir()))
	log.Printf("[CONFIG] Log Level: %s", c.App.LogLevel)
	log.Printf("[CONFIG] Vault Enabled: %t", c.Vault.Enabled)
	log.Printf("[CONFIG] Notifications Enabled: %t", c.Notify.Enabled)
	log.Printf("[CONFIG] Observability Enabled: %t", c.Observability.Enabled)
	log.Println("[CONFIG] =====================================")
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
