package formatters

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"resumecrew/internal/types"
	"resumecrew/internal/utils"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// GlobalRegistry is the registry the CLI output handler uses.
var GlobalRegistry = NewFormatterRegistry()

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter("json", "any", &JSONFormatter{})
	registry.RegisterFormatter("text", "CustomizeReport", &CustomizeTextFormatter{})
	registry.RegisterFormatter("text", "ExtractReport", &ExtractTextFormatter{})
	registry.RegisterFormatter("text", "ArtifactReport", &ArtifactTextFormatter{})

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats, sorted
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	sort.Strings(formats)
	return formats
}

func getDataType(data any) string {
	switch data.(type) {
	case types.CustomizeReport:
		return "CustomizeReport"
	case types.ExtractReport:
		return "ExtractReport"
	case types.ArtifactReport:
		return "ArtifactReport"
	default:
		return "unknown"
	}
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData) + "\n", nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

// CustomizeTextFormatter summarizes a customization run
type CustomizeTextFormatter struct{}

func (ctf *CustomizeTextFormatter) Format(data any) (string, error) {
	report, ok := data.(types.CustomizeReport)
	if !ok {
		return "", fmt.Errorf("expected CustomizeReport, got %T", data)
	}

	var output strings.Builder
	output.WriteString("=== CUSTOMIZATION COMPLETE ===\n")
	fmt.Fprintf(&output, "Request: %s\n", report.RequestID)
	fmt.Fprintf(&output, "Archive: %s (%s)\n", report.Output, utils.FormatFileSize(report.SizeBytes))
	for _, entry := range report.Entries {
		fmt.Fprintf(&output, "  - %s\n", entry)
	}
	fmt.Fprintf(&output, "Tokens: input=%d, output=%d, total=%d\n",
		report.Usage.InputTokens, report.Usage.OutputTokens, report.Usage.TotalTokens)

	return output.String(), nil
}

func (ctf *CustomizeTextFormatter) SupportedType() string {
	return "CustomizeReport"
}

// ExtractTextFormatter prints the extracted text as-is
type ExtractTextFormatter struct{}

func (etf *ExtractTextFormatter) Format(data any) (string, error) {
	report, ok := data.(types.ExtractReport)
	if !ok {
		return "", fmt.Errorf("expected ExtractReport, got %T", data)
	}
	if report.Text == "" || strings.HasSuffix(report.Text, "\n") {
		return report.Text, nil
	}
	return report.Text + "\n", nil
}

func (etf *ExtractTextFormatter) SupportedType() string {
	return "ExtractReport"
}

// ArtifactTextFormatter prints one line per written artifact
type ArtifactTextFormatter struct{}

func (atf *ArtifactTextFormatter) Format(data any) (string, error) {
	report, ok := data.(types.ArtifactReport)
	if !ok {
		return "", fmt.Errorf("expected ArtifactReport, got %T", data)
	}
	return fmt.Sprintf("Wrote %s (%s) from %s\n",
		report.Output, utils.FormatFileSize(report.SizeBytes), strings.Join(report.Inputs, ", ")), nil
}

func (atf *ArtifactTextFormatter) SupportedType() string {
	return "ArtifactReport"
}
