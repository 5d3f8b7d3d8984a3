package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// extractDOCX reads the OOXML container and concatenates paragraph text
// from word/document.xml with newline separators, in document order.
func extractDOCX(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: not a docx container: %v", ErrExtractionFailed, err)
	}

	content, err := readDocumentXML(reader)
	if err != nil {
		return "", err
	}

	text := parseDocumentXML(content)
	if text == "" {
		return "", fmt.Errorf("%w: docx has no text content", ErrExtractionFailed)
	}
	return text, nil
}

// extractDOC handles legacy .doc uploads. Many are actually OOXML files
// with the wrong extension, so the container parse is tried first; the
// fallback is a lossy plain-text decode of whatever is readable.
func extractDOC(data []byte) (string, error) {
	if text, err := extractDOCX(data); err == nil {
		return text, nil
	}

	text := strings.TrimSpace(strings.ToValidUTF8(string(data), ""))
	if text == "" {
		return "", fmt.Errorf("%w: doc file has no readable text", ErrExtractionFailed)
	}
	return text, nil
}

func readDocumentXML(reader *zip.Reader) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
		return content, nil
	}
	return nil, fmt.Errorf("%w: docx container has no word/document.xml", ErrExtractionFailed)
}

type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

func parseDocumentXML(content []byte) string {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return ""
	}

	var builder strings.Builder
	for i, para := range doc.Body.Paragraphs {
		if i > 0 {
			builder.WriteString("\n")
		}
		for _, r := range para.Runs {
			for _, t := range r.Text {
				builder.WriteString(t.Content)
			}
		}
	}

	return strings.TrimSpace(builder.String())
}
