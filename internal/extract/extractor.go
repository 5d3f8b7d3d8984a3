// Package extract converts raw uploaded bytes into normalized plain
// text. Extraction is a pure function of the input bytes and declared
// content type; it performs no I/O beyond reading its arguments.
package extract

import (
	"errors"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeDOC  = "application/msword"
)

var (
	// ErrUnsupportedFileType is returned for content types outside the
	// four supported families (plain text, PDF, DOCX, legacy DOC).
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrUnsupportedEncoding is returned when a text upload cannot be
	// decoded by any of the supported encodings.
	ErrUnsupportedEncoding = errors.New("unsupported text encoding")

	// ErrExtractionFailed is returned when a format parser cannot
	// produce any text, e.g. a corrupt file or an image-only PDF.
	ErrExtractionFailed = errors.New("no text content could be extracted")
)

type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Extract dispatches on the declared content type and returns the
// normalized plain text of the upload.
func (e *Extractor) Extract(data []byte, contentType string) (string, error) {
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}
	mediaType = strings.ToLower(mediaType)

	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return extractPlainText(data)
	case mediaType == mimePDF:
		return extractPDF(data)
	case mediaType == mimeDOCX:
		return extractDOCX(data)
	case mediaType == mimeDOC:
		return extractDOC(data)
	default:
		return "", fmt.Errorf("%w: %q (supported: text, pdf, docx, doc)", ErrUnsupportedFileType, contentType)
	}
}

// extractPlainText tries the supported encodings in fixed priority
// order: UTF-8, Latin-1, CP1252, ISO-8859-1. Latin-1 accepts any byte
// sequence, so the tail of the chain is a safety net kept for parity
// with the documented contract.
func extractPlainText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrExtractionFailed
	}

	if utf8.Valid(data) {
		return strings.TrimSpace(string(data)), nil
	}

	for _, decode := range fallbackDecoders {
		text, err := decode(data)
		if err != nil {
			continue
		}
		return strings.TrimSpace(text), nil
	}

	return "", ErrUnsupportedEncoding
}
