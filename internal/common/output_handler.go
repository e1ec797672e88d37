package common

import (
	"fmt"
	"io"
	"os"

	"resumecrew/internal/errors"
	"resumecrew/internal/formatters"
)

// CommandConfig holds common configuration for commands
type CommandConfig struct {
	ReportFile   string
	OutputFormat string
}

// OutputHandler handles formatting and writing command reports
type OutputHandler struct {
	fileProcessor *FileProcessor
	registry      *formatters.FormatterRegistry
	logger        *errors.Logger
	stdout        io.Writer
}

// NewOutputHandler creates a new output handler
func NewOutputHandler(logger *errors.Logger) *OutputHandler {
	fp := NewFileProcessor(logger)
	return &OutputHandler{
		fileProcessor: fp,
		registry:      formatters.GlobalRegistry,
		logger:        fp.logger,
		stdout:        os.Stdout,
	}
}

// HandleOutput formats data and writes it to the report file or stdout
func (oh *OutputHandler) HandleOutput(data any, config CommandConfig) error {
	if err := oh.fileProcessor.ValidateOutputFile(config.ReportFile); err != nil {
		return err
	}

	format := config.OutputFormat
	if format == "" {
		format = "text"
	}
	output, err := oh.registry.Format(data, format)
	if err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidFormat,
			fmt.Sprintf("Failed to format output as %s", format), err)
	}

	if config.ReportFile != "" {
		if err := oh.fileProcessor.WriteFile(config.ReportFile, []byte(output)); err != nil {
			return err
		}
		oh.logger.Info("Report written successfully",
			"file", config.ReportFile, "format", format)
		return nil
	}

	_, err = io.WriteString(oh.stdout, output)
	return err
}

// GetSupportedFormats returns all supported output formats
func (oh *OutputHandler) GetSupportedFormats() []string {
	return oh.registry.GetSupportedFormats()
}
