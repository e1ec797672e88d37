package common

import (
	"fmt"
	"slices"

	"resumecrew/internal/formatters"
)

// ValidateOutputFormat validates format against the supported formats.
// An empty list allows anything.
func ValidateOutputFormat(format string, supportedFormats []string) error {
	if len(supportedFormats) == 0 {
		return nil
	}

	if slices.Contains(supportedFormats, format) {
		return nil
	}

	return fmt.Errorf("unsupported output format '%s'. Supported formats: %v",
		format, supportedFormats)
}

// GetSupportedFormats returns the formats the global registry can render
func GetSupportedFormats() []string {
	return formatters.GlobalRegistry.GetSupportedFormats()
}
