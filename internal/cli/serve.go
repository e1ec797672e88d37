package cli

import (
	"fmt"

	"resumecrew/internal/config"
	"resumecrew/internal/server"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web form server",
	Long: `Start an HTTP server that serves the customization form.

Available endpoints:
- GET /: the customization form
- POST /customize: run the crew and download the zip archive
- GET /health: health check, degraded while the AI circuit breaker is open
- GET /stats: server statistics and rate limiting info

TLS Configuration:
- Use --tls-mode to set TLS mode: disabled, server, mutual
- Use --cert-file and --key-file for TLS certificates
- Use --ca-file for mutual TLS client certificate verification`,
	RunE: runServe,
}

var serveFlagKeys = map[string]string{
	"server.port":         "port",
	"server.host":         "host",
	"server.tls.mode":     "tls-mode",
	"server.tls.certFile": "cert-file",
	"server.tls.keyFile":  "key-file",
	"server.tls.caFile":   "ca-file",
}

func init() {
	serveCmd.Flags().StringP("port", "p", "", "Port to listen on (default from config)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from config)")
	serveCmd.Flags().String("tls-mode", "", "TLS mode: disabled, server, mutual (overrides config)")
	serveCmd.Flags().String("cert-file", "", "Server certificate file (PEM, overrides config)")
	serveCmd.Flags().String("key-file", "", "Server private key file (PEM, overrides config)")
	serveCmd.Flags().String("ca-file", "", "CA certificate file for client cert verification (PEM, overrides config)")
}

// applyServeFlags copies explicitly set flags over the loaded configuration.
func applyServeFlags(flags *pflag.FlagSet, cfg *config.ServerConfig) error {
	v := viper.New()
	for key, flagName := range serveFlagKeys {
		if err := v.BindPFlag(key, flags.Lookup(flagName)); err != nil {
			return err
		}
	}

	set := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	set("server.port", &cfg.Port)
	set("server.host", &cfg.Host)
	set("server.tls.mode", &cfg.TLS.Mode)
	set("server.tls.certFile", &cfg.TLS.CertFile)
	set("server.tls.keyFile", &cfg.TLS.KeyFile)
	set("server.tls.caFile", &cfg.TLS.CAFile)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	if err := applyServeFlags(cmd.Flags(), &cfg.Server); err != nil {
		return err
	}
	if err := cfg.ValidateTLSConfig(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	a.watch(cmd.Context())

	serverCfg := server.ServerConfigFrom(cfg, Version)
	serverCfg.Pipeline = a.service
	serverCfg.AI = a.executors
	serverCfg.Observability = a.obs

	return server.NewServer(serverCfg, logger).Start(cmd.Context())
}
