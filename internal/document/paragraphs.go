package document

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const (
	wordNamespace   = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	markupNamespace = "http://schemas.openxmlformats.org/markup-compatibility/2006"
)

// ParseParagraphs returns the text of every body-level w:p element in
// word/document.xml, in document order. Paragraphs nested in tables, text
// boxes or other containers are skipped along with their text. Runs are
// concatenated; tabs become "\t" and soft breaks become a single space so a
// paragraph never spans more than one line of extracted text.
func ParseParagraphs(documentXML string) ([]string, error) {
	decoder := xml.NewDecoder(strings.NewReader(documentXML))

	var (
		paragraphs []*strings.Builder
		parents    []xml.Name
		current    = -1 // index of the open body paragraph
		nested     int  // depth of w:p elements inside the current one or outside the body
		inText     int
		skipDepth  int
	)

	isWord := func(name xml.Name, local string) bool {
		return name.Space == wordNamespace && name.Local == local
	}
	collecting := func() bool { return current >= 0 && nested == 0 }

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document.xml: %w", err)
		}

		switch el := token.(type) {
		case xml.StartElement:
			if skipDepth > 0 {
				skipDepth++
				continue
			}
			// mc:Fallback repeats the content of the preceding mc:Choice
			if el.Name.Space == markupNamespace && el.Name.Local == "Fallback" {
				skipDepth = 1
				continue
			}

			switch {
			case isWord(el.Name, "p"):
				if current < 0 && len(parents) > 0 && isWord(parents[len(parents)-1], "body") {
					paragraphs = append(paragraphs, &strings.Builder{})
					current = len(paragraphs) - 1
				} else {
					nested++
				}
			case isWord(el.Name, "t"):
				inText++
			case isWord(el.Name, "tab"):
				if collecting() {
					paragraphs[current].WriteByte('\t')
				}
			case isWord(el.Name, "br"), isWord(el.Name, "cr"):
				if collecting() {
					paragraphs[current].WriteByte(' ')
				}
			}
			parents = append(parents, el.Name)

		case xml.EndElement:
			if skipDepth > 0 {
				skipDepth--
				continue
			}
			if len(parents) > 0 {
				parents = parents[:len(parents)-1]
			}
			switch {
			case isWord(el.Name, "p"):
				if nested > 0 {
					nested--
				} else {
					current = -1
				}
			case isWord(el.Name, "t"):
				if inText > 0 {
					inText--
				}
			}

		case xml.CharData:
			if skipDepth == 0 && inText > 0 && collecting() {
				paragraphs[current].Write(el)
			}
		}
	}

	result := make([]string, len(paragraphs))
	for i, p := range paragraphs {
		result[i] = p.String()
	}
	return result, nil
}

// renderDocumentXML produces a minimal word/document.xml body, one w:p per paragraph.
func renderDocumentXML(paragraphs []string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	b.WriteString(`<w:document xmlns:w="` + wordNamespace + `"><w:body>`)
	for _, p := range paragraphs {
		p = sanitizeXMLText(p)
		if p == "" {
			b.WriteString(`<w:p/>`)
			continue
		}
		b.WriteString(`<w:p><w:r><w:t xml:space="preserve">`)
		// EscapeText only fails on writer errors and strings.Builder never returns one.
		_ = xml.EscapeText(&b, []byte(p))
		b.WriteString(`</w:t></w:r></w:p>`)
	}
	b.WriteString(`<w:sectPr><w:pgSz w:w="12240" w:h="15840"/>`)
	b.WriteString(`<w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440" w:header="720" w:footer="720" w:gutter="0"/>`)
	b.WriteString(`</w:sectPr></w:body></w:document>`)
	return b.String()
}

// sanitizeXMLText drops runes that XML 1.0 cannot carry.
func sanitizeXMLText(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case r < 0x20, r == 0xFFFE, r == 0xFFFF:
			return -1
		case r >= 0xD800 && r <= 0xDFFF:
			return -1
		}
		return r
	}, s)
}
