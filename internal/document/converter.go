package document

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"resumecrew/internal/errors"
)

// SplitLines splits text on "\n". A trailing newline yields a trailing empty
// line, and empty text has no lines.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// ReadLines decodes a text file, dropping malformed UTF-8 sequences, and
// returns its lines with surrounding whitespace stripped.
func ReadLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOFailure("failed to read text artifact", err).
			WithContext("path", path)
	}

	lines := SplitLines(strings.ToValidUTF8(string(data), ""))
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return lines, nil
}

// DocumentPath is the docx path Convert writes for a text file.
func DocumentPath(textPath string) string {
	return strings.TrimSuffix(textPath, filepath.Ext(textPath)) + ".docx"
}

// Convert renders a text file as a docx next to it, one paragraph per line,
// and returns the new document's path. The source file is left in place.
func Convert(textPath string) (string, error) {
	out := DocumentPath(textPath)
	if err := ConvertTo(textPath, out); err != nil {
		return "", err
	}
	return out, nil
}

// ConvertTo is Convert with an explicit destination.
func ConvertTo(textPath, docPath string) error {
	lines, err := ReadLines(textPath)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := Write(&buf, lines); err != nil {
		return errors.NewIOFailure("failed to render document", err).
			WithContext("source", textPath)
	}
	if err := os.WriteFile(docPath, buf.Bytes(), 0600); err != nil {
		return errors.NewIOFailure("failed to write document", err).
			WithContext("path", docPath)
	}
	return nil
}
