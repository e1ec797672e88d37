package document

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"

	"resumecrew/internal/errors"
)

// Format identifies an accepted resume encoding.
type Format string

const (
	FormatDocx Format = "docx"
	FormatPDF  Format = "pdf"
	FormatText Format = "text"
)

// DetectFormat picks a format from the file name, falling back to magic bytes.
func DetectFormat(filename string, data []byte) (Format, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".docx":
		return FormatDocx, true
	case ".pdf":
		return FormatPDF, true
	case ".txt", ".md", ".markdown":
		return FormatText, true
	}
	switch {
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		return FormatDocx, true
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return FormatPDF, true
	}
	return "", false
}

// Paragraphs returns the ordered paragraph texts of a docx package.
func Paragraphs(data []byte) ([]string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.NewMalformedDocumentError("not a valid docx document", err)
	}
	defer func() { _ = doc.Close() }()

	paragraphs, err := ParseParagraphs(doc.Editable().GetContent())
	if err != nil {
		return nil, errors.NewMalformedDocumentError("document body is not valid XML", err)
	}
	return paragraphs, nil
}

// ExtractText converts a resume in any accepted format to plain text.
// Docx paragraphs are joined with "\n" in document order.
func ExtractText(data []byte, filename string) (string, error) {
	format, ok := DetectFormat(filename, data)
	if !ok {
		return "", errors.NewMalformedDocumentError("unsupported document format", nil).
			WithContext("filename", filename)
	}

	switch format {
	case FormatDocx:
		paragraphs, err := Paragraphs(data)
		if err != nil {
			return "", err
		}
		return strings.Join(paragraphs, "\n"), nil
	case FormatPDF:
		return pdfText(data)
	default:
		return strings.ToValidUTF8(string(data), ""), nil
	}
}

func pdfText(data []byte) (text string, err error) {
	// the pdf parser panics on some corrupt inputs
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = errors.NewMalformedDocumentError("not a valid pdf document", fmt.Errorf("%v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.NewMalformedDocumentError("not a valid pdf document", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", errors.NewMalformedDocumentError(fmt.Sprintf("unreadable pdf page %d", i), err)
		}
		b.WriteString(pageText)
	}
	return b.String(), nil
}

// Reader extracts resume text and snapshots it to a text file for the crew's tools.
type Reader struct {
	dir string
}

// NewReader writes extracted text files into dir. An empty dir means os.TempDir.
func NewReader(dir string) *Reader {
	return &Reader{dir: dir}
}

// Read extracts the text of an uploaded document and writes it to a new,
// uniquely named file. The caller owns the returned path.
func (r *Reader) Read(data []byte, filename string) (text string, path string, err error) {
	text, err = ExtractText(data, filename)
	if err != nil {
		return "", "", err
	}

	f, err := os.CreateTemp(r.dir, "resume-*.txt")
	if err != nil {
		return "", "", errors.NewIOFailure("failed to create extracted text file", err).
			WithContext("dir", r.dir)
	}
	path = f.Name()

	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", "", errors.NewIOFailure("failed to write extracted text file", err).
			WithContext("path", path)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", "", errors.NewIOFailure("failed to close extracted text file", err).
			WithContext("path", path)
	}
	return text, path, nil
}

// ReadFile is Read for a document already on disk.
func (r *Reader) ReadFile(docPath string) (text string, path string, err error) {
	data, err := os.ReadFile(docPath)
	if err != nil {
		return "", "", errors.NewIOFailure("failed to read document", err).
			WithContext("path", docPath)
	}
	return r.Read(data, filepath.Base(docPath))
}
