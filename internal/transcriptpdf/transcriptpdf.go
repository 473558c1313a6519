// Package transcriptpdf renders video transcripts as PDF documents so a
// transcript can be archived or re-ingested like any other course document.
package transcriptpdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"
)

// Render writes the transcript text to a PDF at outputPath.
//
// Layout: A4 with one-inch margins, a centred title, and one justified
// paragraph per blank-line-separated block of the transcript.
func Render(text, title, outputPath string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("transcript text is empty")
	}
	if title == "" {
		title = "Transcript"
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(25.4, 25.4, 25.4)
	pdf.SetAutoPageBreak(true, 25.4)
	pdf.AddPage()

	// Core fonts are cp1252; transliterate what they cannot encode.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, tr(title), "", "C", false)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		pdf.MultiCell(0, 5.5, tr(block), "", "L", false)
		pdf.Ln(2.5)
	}

	if err := pdf.OutputFileAndClose(outputPath); err != nil {
		return fmt.Errorf("writing pdf %s: %w", outputPath, err)
	}
	return nil
}

// OutputPath builds the conventional transcript PDF path for a source name.
func OutputPath(dir, baseName string) string {
	return filepath.Join(dir, baseName+"_transcript.pdf")
}
