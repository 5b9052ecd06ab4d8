// Package pdf renders Markdown documents to PDF.
package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mandolyte/mdtopdf"
)

// fontStyles are the variants the renderer asks for while drawing text.
var fontStyles = []string{"", "B", "I", "BI"}

// ConvertMarkdownToPDF converts a markdown file to a PDF next to it and
// returns the absolute path of the PDF.
//
// The built-in PDF fonts only cover Latin text. When fontFile is set, that
// TrueType font replaces the default family so ideographs and Hangul render.
func ConvertMarkdownToPDF(markdownPath, fontFile string) (string, error) {
	if !strings.HasSuffix(markdownPath, ".md") {
		return "", fmt.Errorf("input file must have .md extension: %s", markdownPath)
	}

	content, err := os.ReadFile(markdownPath)
	if err != nil {
		return "", fmt.Errorf("os.ReadFile(%s) > %w", markdownPath, err)
	}

	pdfPath := strings.TrimSuffix(markdownPath, ".md") + ".pdf"

	var opts []mdtopdf.RenderOption
	if fontFile != "" {
		opts = append(opts, withFont(fontFile))
	}
	renderer := mdtopdf.NewPdfRenderer("P", "A4", pdfPath, "", opts, mdtopdf.LIGHT)
	if err := renderer.Process(content); err != nil {
		return "", fmt.Errorf("renderer.Process() > %w", err)
	}

	absPath, err := filepath.Abs(pdfPath)
	if err != nil {
		return pdfPath, nil
	}
	return absPath, nil
}

// withFont registers fontFile under the renderer's default family for every
// style, so headings and body text both use it.
func withFont(fontFile string) mdtopdf.RenderOption {
	return func(r *mdtopdf.PdfRenderer) {
		for _, style := range fontStyles {
			r.Pdf.AddUTF8Font("Arial", style, fontFile)
		}
	}
}
