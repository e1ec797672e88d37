package document

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/nguyenthenguyen/docx"
)

// The docx library edits existing packages, so new documents start from a
// blank package built once in memory.
var (
	blankOnce sync.Once
	blankDocx []byte
	blankErr  error
)

var blankParts = []struct {
	name string
	body string
}{
	{"[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
		`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
		`<Default Extension="xml" ContentType="application/xml"/>` +
		`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
		`</Types>`},
	{"_rels/.rels", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
		`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
		`</Relationships>`},
	{"word/document.xml", ""},
	{"word/_rels/document.xml.rels", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`},
}

func blankPackage() ([]byte, error) {
	blankOnce.Do(func() {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		for _, part := range blankParts {
			body := part.body
			if part.name == "word/document.xml" {
				body = renderDocumentXML(nil)
			}
			w, err := zw.Create(part.name)
			if err != nil {
				blankErr = err
				return
			}
			if _, err := io.WriteString(w, body); err != nil {
				blankErr = err
				return
			}
		}
		if err := zw.Close(); err != nil {
			blankErr = err
			return
		}
		blankDocx = buf.Bytes()
	})
	return blankDocx, blankErr
}

// Write renders paragraphs as a docx package to w.
func Write(w io.Writer, paragraphs []string) error {
	blank, err := blankPackage()
	if err != nil {
		return fmt.Errorf("build blank document: %w", err)
	}

	tmpl, err := docx.ReadDocxFromMemory(bytes.NewReader(blank), int64(len(blank)))
	if err != nil {
		return fmt.Errorf("load blank document: %w", err)
	}
	defer func() { _ = tmpl.Close() }()

	doc := tmpl.Editable()
	doc.SetContent(renderDocumentXML(paragraphs))

	// docx.Docx.Write ignores short writes, so render into memory first.
	var buf bytes.Buffer
	if err := doc.Write(&buf); err != nil {
		return fmt.Errorf("render document: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}
