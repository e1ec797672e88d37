package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	setDefaults(v)
	if yaml != "" {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
		v.SetConfigFile(path)
		require.NoError(t, v.ReadInConfig())
	}
	return v
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadFromViper(newTestViper(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.Equal(t, 120*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 6, cfg.AI.MaxToolSteps)
	assert.Equal(t, "https://google.serper.dev/search", cfg.Crew.SearchEndpoint)
	assert.Equal(t, int64(10*1024*1024), cfg.App.MaxUploadSize)
	assert.Equal(t, "disabled", cfg.Server.TLS.Mode)
	assert.Equal(t, "request_updates", cfg.Notify.Exchange)
	assert.NotEmpty(t, cfg.Observability.ServiceInstance)
}

func TestConfigFileOverrides(t *testing.T) {
	cfg, err := LoadFromViper(newTestViper(t, `
ai:
  model: gemini-2.5-pro
  maxToolSteps: 3
crew:
  definitionFile: /etc/resumecrew/crew.yaml
  credentials:
    serperApiKey: serper-from-file
app:
  logLevel: debug
  workDir: /var/lib/resumecrew
server:
  port: "9090"
`))
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-pro", cfg.AI.Model)
	assert.Equal(t, 3, cfg.AI.MaxToolSteps)
	assert.Equal(t, "/etc/resumecrew/crew.yaml", cfg.Crew.DefinitionFile)
	assert.Equal(t, "serper-from-file", cfg.Crew.Credentials.SerperAPIKey)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "/var/lib/resumecrew", cfg.App.WorkDir)
	assert.Equal(t, "9090", cfg.Server.Port)
}

func TestCredentialFallbacks(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gemini-env")
	t.Setenv("SERPER_API_KEY", "serper-env")

	cfg, err := LoadFromViper(newTestViper(t, `
crew:
  credentials:
    geminiApiKey: gemini-file
`))
	require.NoError(t, err)

	assert.Equal(t, "gemini-file", cfg.Crew.Credentials.GeminiAPIKey)
	assert.Equal(t, "serper-env", cfg.Crew.Credentials.SerperAPIKey)
}

func TestServerAPIKeysFromEnv(t *testing.T) {
	t.Setenv("RESUMECREW_SERVER_APIKEYS", " key-a, ,key-b ")

	cfg, err := LoadFromViper(newTestViper(t, ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"key-a", "key-b"}, cfg.Server.APIKeys)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{"unsupported provider", func(c *Config) { c.AI.Provider = "openai" }, "unsupported AI provider"},
		{"zero tool steps", func(c *Config) { c.AI.MaxToolSteps = 0 }, "max tool steps"},
		{"zero upload size", func(c *Config) { c.App.MaxUploadSize = 0 }, "max upload size"},
		{"notify without url", func(c *Config) { c.Notify.Enabled = true }, "notify URL is required"},
		{"bad tls", func(c *Config) { c.Server.TLS.Mode = "server" }, "TLS configuration error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFromViper(newTestViper(t, ""))
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "****", MaskSecret("short"))
	assert.Equal(t, "abcd****wxyz", MaskSecret("abcdefghijklmnopqrstuvwxyz"))
}
