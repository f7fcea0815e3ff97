// Package extractor implements ports.TextExtractorPort (spec §4.4 step
// 3) for the MIME types the admission layer accepts without an external
// conversion service: plain text, Markdown, and a best-effort HTML
// tag-stripper. No document-conversion library (PDF, DOCX, ...) appears
// anywhere in the example corpus this module was grounded on, so this
// stays on the standard library rather than naming an unverified
// third-party dependency.
package extractor

import (
	"context"
	"io"
	"regexp"
	"strings"

	"github.com/SaintWyss/ragcore/internal/apperrors"
)

// Plaintext extracts text from text/plain, text/markdown, and text/html
// input.
type Plaintext struct{}

// New constructs a Plaintext extractor.
func New() *Plaintext {
	return &Plaintext{}
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// Extract reads all of r and converts it to plain text according to
// mimeType. Any other MIME type, including the PDF and DOCX types that
// document admission accepts, is a validation error, not an internal
// one.
func (Plaintext) Extract(ctx context.Context, r io.Reader, mimeType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to read document body")
	}

	switch {
	case strings.HasPrefix(mimeType, "text/plain"), strings.HasPrefix(mimeType, "text/markdown"):
		return string(data), nil
	case strings.HasPrefix(mimeType, "text/html"):
		return strings.TrimSpace(htmlTag.ReplaceAllString(string(data), " ")), nil
	default:
		return "", apperrors.New(apperrors.ErrorTypeValidation, "unsupported document MIME type: "+mimeType)
	}
}
