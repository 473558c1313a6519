// Package extract pulls plain text out of uploaded documents.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/lectern/internal/document"
)

// ErrUnsupportedKind is returned for source kinds with no text extractor.
// Video sources go through the transcription pipeline instead.
var ErrUnsupportedKind = errors.New("no text extractor for source kind")

// Text extracts plain text from a document file on disk, dispatching on the
// source kind.
func Text(ctx context.Context, kind document.Kind, path string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	switch kind {
	case document.KindPDF:
		return PDF(path)
	case document.KindDocx:
		return Docx(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
}
