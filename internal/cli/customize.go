package cli

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"resumecrew/internal/common"
	"resumecrew/internal/config"
	"resumecrew/internal/crew"
	"resumecrew/internal/errors"
	"resumecrew/internal/pipeline"
	"resumecrew/internal/types"
	"resumecrew/internal/utils"

	"github.com/spf13/cobra"
)

var customizeCmd = &cobra.Command{
	Use:   "customize --resume <file> --job-url <url> --linkedin-url <url>",
	Short: "Run the crew once and write the zip archive",
	Long: `Run the same pipeline the web form uses, from the command line.
The resume may be a .docx, .pdf, .txt or .md file. API keys default to the
configured crew credentials when the flags are omitted.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return validateReportFormat(customizeConfig.CommandConfig)
	},
	RunE: runCustomize,
}

type customizeOptions struct {
	common.CommandConfig
	JobURL       string
	LinkedInURL  string
	GitHubURL    string
	ResumeFile   string
	OutputFile   string
	GeminiAPIKey string
	SerperAPIKey string
}

var customizeConfig customizeOptions

func init() {
	f := customizeCmd.Flags()
	f.StringVar(&customizeConfig.JobURL, "job-url", "", "Job description URL")
	f.StringVar(&customizeConfig.LinkedInURL, "linkedin-url", "", "LinkedIn profile URL")
	f.StringVar(&customizeConfig.GitHubURL, "github-url", "", "GitHub profile URL (optional)")
	f.StringVar(&customizeConfig.ResumeFile, "resume", "", "Resume file (.docx, .pdf, .txt, .md)")
	f.StringVarP(&customizeConfig.OutputFile, "output", "o", pipeline.ArchiveName, "Path of the zip archive to write")
	f.StringVar(&customizeConfig.GeminiAPIKey, "gemini-api-key", "", "Gemini API key (default from config)")
	f.StringVar(&customizeConfig.SerperAPIKey, "serper-api-key", "", "Serper API key (default from config)")
	addReportFlags(customizeCmd, &customizeConfig.CommandConfig)
}

func (o customizeOptions) request() pipeline.Request {
	return pipeline.Request{
		JobURL:       o.JobURL,
		LinkedInURL:  o.LinkedInURL,
		GitHubURL:    o.GitHubURL,
		GeminiAPIKey: o.GeminiAPIKey,
		SerperAPIKey: o.SerperAPIKey,
	}
}

func defaultCredentials(cfg *config.Config) crew.Credentials {
	return crew.Credentials{
		GeminiAPIKey: cfg.Crew.Credentials.GeminiAPIKey,
		SerperAPIKey: cfg.Crew.Credentials.SerperAPIKey,
	}
}

func runCustomize(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())
	opts := customizeConfig

	if opts.ResumeFile == "" {
		// report every missing input at once, before anything is started
		req := opts.request()
		return pipeline.NewService(pipeline.Options{Defaults: defaultCredentials(cfg)}).Validate(&req)
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	return common.RunFileCommand(cmd.Context(), logger, opts.CommandConfig, []string{opts.ResumeFile},
		func(ctx context.Context, paths []string) (types.CustomizeReport, error) {
			if !utils.IsResumeFile(paths[0]) {
				logger.Warn("Resume has an unrecognized extension, detecting format from content",
					"resume", paths[0],
					"accepted", utils.ResumeExtensions)
			}
			fp := common.NewFileProcessor(logger)
			data, err := fp.ReadFile(paths[0])
			if err != nil {
				return types.CustomizeReport{}, err
			}

			req := opts.request()
			req.Resume = data
			req.ResumeName = filepath.Base(paths[0])
			logger.Info("Starting customization",
				"resume", paths[0],
				"resume_bytes", len(data),
				"job_url", req.JobURL)

			result, err := a.service.Customize(ctx, req)
			if err != nil {
				return types.CustomizeReport{}, err
			}

			report, err := writeArchive(fp, result, opts.OutputFile)
			if err != nil {
				return types.CustomizeReport{}, err
			}
			logger.Info("Customization completed",
				"request_id", report.RequestID,
				"output", report.Output,
				"total_tokens", report.Usage.TotalTokens)
			return report, nil
		})
}

// writeArchive saves the packaged result to path and describes it.
func writeArchive(fp *common.FileProcessor, result *pipeline.Result, path string) (types.CustomizeReport, error) {
	var buf bytes.Buffer
	if _, err := result.Archive.WriteTo(&buf); err != nil {
		return types.CustomizeReport{}, errors.NewIOFailure("failed to read archive", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		return types.CustomizeReport{}, errors.NewIOFailure(fmt.Sprintf("invalid archive for request %s", result.RequestID), err)
	}
	entries := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		entries = append(entries, f.Name)
	}

	if err := fp.ValidateOutputFile(path); err != nil {
		return types.CustomizeReport{}, err
	}
	if err := fp.WriteFile(path, buf.Bytes()); err != nil {
		return types.CustomizeReport{}, err
	}

	return types.CustomizeReport{
		RequestID: result.RequestID,
		Output:    path,
		SizeBytes: int64(buf.Len()),
		Entries:   entries,
		Usage: types.TokenUsage{
			InputTokens:  result.Usage.PromptTokens,
			OutputTokens: result.Usage.CompletionTokens,
			TotalTokens:  result.Usage.TotalTokens,
		},
	}, nil
}
