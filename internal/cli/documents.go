package cli

import (
	"context"
	"os"
	"path/filepath"

	"resumecrew/internal/archive"
	"resumecrew/internal/common"
	"resumecrew/internal/document"
	"resumecrew/internal/errors"
	"resumecrew/internal/pipeline"
	"resumecrew/internal/types"
	"resumecrew/internal/utils"

	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract [resume-file]",
	Short: "Print the plain text of a resume document",
	Long: `Extract the text the crew sees from a .docx, .pdf, .txt or .md resume.
Paragraphs are printed one per line.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return validateReportFormat(extractConfig)
	},
	RunE: runExtract,
}

var convertCmd = &cobra.Command{
	Use:   "convert [text-file]",
	Short: "Convert a text file to a Word document, one paragraph per line",
	Args:  cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return validateReportFormat(convertConfig.CommandConfig)
	},
	RunE: runConvert,
}

var packageCmd = &cobra.Command{
	Use:   "package [file...]",
	Short: "Bundle files into a zip archive",
	Long: `Bundle files into a zip archive. Entries are stored under their base
names in the order given.`,
	Args: cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return validateReportFormat(packageConfig.CommandConfig)
	},
	RunE: runPackage,
}

type outputOptions struct {
	common.CommandConfig
	OutputFile string
}

var (
	extractConfig common.CommandConfig
	convertConfig outputOptions
	packageConfig outputOptions
)

func init() {
	addReportFlags(extractCmd, &extractConfig)

	convertCmd.Flags().StringVarP(&convertConfig.OutputFile, "output", "o", "", "Document to write (default: input name with .docx)")
	addReportFlags(convertCmd, &convertConfig.CommandConfig)

	packageCmd.Flags().StringVarP(&packageConfig.OutputFile, "output", "o", pipeline.ArchiveName, "Zip archive to write")
	addReportFlags(packageCmd, &packageConfig.CommandConfig)
}

func runExtract(cmd *cobra.Command, args []string) error {
	logger := getLoggerFromContext(cmd.Context())

	return common.RunFileCommand(cmd.Context(), logger, extractConfig, args,
		func(_ context.Context, paths []string) (types.ExtractReport, error) {
			data, err := common.NewFileProcessor(logger).ReadFile(paths[0])
			if err != nil {
				return types.ExtractReport{}, err
			}
			name := filepath.Base(paths[0])
			text, err := document.ExtractText(data, name)
			if err != nil {
				return types.ExtractReport{}, err
			}
			format, _ := document.DetectFormat(name, data)
			return types.ExtractReport{
				Source:     paths[0],
				Format:     string(format),
				Paragraphs: len(document.SplitLines(text)),
				Text:       text,
			}, nil
		})
}

func runConvert(cmd *cobra.Command, args []string) error {
	logger := getLoggerFromContext(cmd.Context())
	opts := convertConfig

	return common.RunFileCommand(cmd.Context(), logger, opts.CommandConfig, args,
		func(_ context.Context, paths []string) (types.ArtifactReport, error) {
			docPath := opts.OutputFile
			if docPath == "" {
				docPath = document.DocumentPath(paths[0])
			}
			if err := common.NewFileProcessor(logger).ValidateOutputFile(docPath); err != nil {
				return types.ArtifactReport{}, err
			}
			if err := document.ConvertTo(paths[0], docPath); err != nil {
				return types.ArtifactReport{}, err
			}
			return artifactReport(paths, docPath)
		})
}

func runPackage(cmd *cobra.Command, args []string) error {
	logger := getLoggerFromContext(cmd.Context())
	opts := packageConfig

	return common.RunFileCommand(cmd.Context(), logger, opts.CommandConfig, args,
		func(_ context.Context, paths []string) (types.ArtifactReport, error) {
			for _, p := range paths {
				if !utils.IsWordDocument(p) {
					logger.Warn("Packaging a file that is not a Word document", "file", p)
				}
			}
			zipped, err := archive.Package(paths)
			if err != nil {
				return types.ArtifactReport{}, err
			}
			fp := common.NewFileProcessor(logger)
			if err := fp.ValidateOutputFile(opts.OutputFile); err != nil {
				return types.ArtifactReport{}, err
			}
			data := make([]byte, zipped.Len())
			if _, err := zipped.Read(data); err != nil {
				return types.ArtifactReport{}, errors.NewIOFailure("failed to read archive", err)
			}
			if err := fp.WriteFile(opts.OutputFile, data); err != nil {
				return types.ArtifactReport{}, err
			}
			return artifactReport(paths, opts.OutputFile)
		})
}

func artifactReport(inputs []string, output string) (types.ArtifactReport, error) {
	info, err := os.Stat(output)
	if err != nil {
		return types.ArtifactReport{}, errors.NewIOFailure("failed to stat output", err)
	}
	return types.ArtifactReport{Inputs: inputs, Output: output, SizeBytes: info.Size()}, nil
}
