package cli

import (
	"context"

	"resumecrew/internal/common"
	"resumecrew/internal/config"
	"resumecrew/internal/errors"

	"github.com/spf13/cobra"
)

// Define custom private types for context keys.
type configKeyType struct{}
type loggerKeyType struct{}

var configKey = configKeyType{}
var loggerKey = loggerKeyType{}

var rootCmd = &cobra.Command{
	Use:   "resumecrew",
	Short: "Tailor a resume and prepare interview materials with an AI crew",
	Long: `ResumeCrew takes your resume, a job posting URL and your LinkedIn profile,
runs a crew of AI agents over them and returns a tailored resume and interview
preparation notes as Word documents in a single zip archive.

Run it as a web form with 'serve' or once from the command line with 'customize'.`,
	SilenceUsage: true,
}

func Execute(ctx context.Context, cfg *config.Config, logger *errors.Logger) error {
	ctx = context.WithValue(ctx, configKey, cfg)
	ctx = context.WithValue(ctx, loggerKey, logger)
	rootCmd.SetContext(ctx)
	return rootCmd.Execute()
}

// getConfigFromContext is a helper function to get config from context
func getConfigFromContext(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg
	}
	panic("config not found in context") // Should not happen if properly initialized
}

// getLoggerFromContext is a helper function to get logger from context
func getLoggerFromContext(ctx context.Context) *errors.Logger {
	if logger, ok := ctx.Value(loggerKey).(*errors.Logger); ok {
		return logger
	}
	panic("logger not found in context") // Should not happen if properly initialized
}

// addReportFlags registers --report and --format, shared by every command
// that prints a report.
func addReportFlags(cmd *cobra.Command, cfg *common.CommandConfig) {
	cmd.Flags().StringVar(&cfg.ReportFile, "report", "", "Write the report to this file instead of stdout")
	cmd.Flags().StringVar(&cfg.OutputFormat, "format", "text", "Report format: json or text")

	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return common.GetSupportedFormats(), cobra.ShellCompDirectiveNoFileComp
	})
}

func validateReportFormat(cfg common.CommandConfig) error {
	return common.ValidateOutputFormat(cfg.OutputFormat, common.GetSupportedFormats())
}

func init() {
	rootCmd.AddCommand(customizeCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(packageCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}
