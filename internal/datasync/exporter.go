package datasync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hanjadb/hanjadb/internal/assets"
	"github.com/hanjadb/hanjadb/internal/config"
	"github.com/hanjadb/hanjadb/internal/dictionary"
	"github.com/hanjadb/hanjadb/internal/pdf"
)

const (
	defaultExportName = "hanja"
	studySheetTitle   = "Hanja study sheet"
)

// ExportResult describes a finished export.
type ExportResult struct {
	Path    string
	Records int
}

// Exporter writes every stored record to a file.
type Exporter struct {
	repo dictionary.Repository
	cfg  config.ExportConfig
	now  func() time.Time
}

// NewExporter creates a new Exporter.
func NewExporter(repo dictionary.Repository, cfg config.ExportConfig) *Exporter {
	return &Exporter{
		repo: repo,
		cfg:  cfg,
		now:  time.Now,
	}
}

// Export writes all stored records, ordered by key, to outputPath in the
// given format. An empty outputPath writes hanja.<ext> into the configured
// export directory.
func (e *Exporter) Export(ctx context.Context, format Format, outputPath string) (*ExportResult, error) {
	records, err := e.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stored records: %w", err)
	}

	if outputPath == "" {
		outputPath = filepath.Join(e.cfg.Directory, defaultExportName+format.Extension())
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	switch format {
	case FormatYAML:
		err = writeYAML(outputPath, records)
	case FormatJSON:
		err = writeJSON(outputPath, records)
	case FormatMarkdown:
		err = e.writeMarkdown(outputPath, records)
	case FormatPDF:
		outputPath, err = e.writePDF(outputPath, records)
	default:
		err = fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", format, err)
	}

	slog.Info("records exported", "format", format, "path", outputPath, "records", len(records))
	return &ExportResult{Path: outputPath, Records: len(records)}, nil
}

func (e *Exporter) writeMarkdown(path string, records []dictionary.Record) error {
	sheet := assets.StudySheet{
		Title:   studySheetTitle,
		Date:    e.now(),
		Records: records,
	}
	if e.cfg.Header != "" {
		header, err := os.ReadFile(e.cfg.Header)
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		sheet.Header = strings.TrimSpace(string(header))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return assets.WriteStudySheet(f, e.cfg.Template, sheet)
}

// writePDF renders the study sheet as Markdown next to path and converts it.
func (e *Exporter) writePDF(path string, records []dictionary.Record) (string, error) {
	if e.cfg.FontFile == "" {
		slog.Warn("no export.font_file configured, ideographs and Hangul will not render in the PDF")
	}
	markdownPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".md"
	if err := e.writeMarkdown(markdownPath, records); err != nil {
		return "", err
	}
	pdfPath, err := pdf.ConvertMarkdownToPDF(markdownPath, e.cfg.FontFile)
	if err != nil {
		return "", fmt.Errorf("pdf.ConvertMarkdownToPDF() > %w", err)
	}
	return pdfPath, nil
}

func writeYAML(path string, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	enc := yaml.NewEncoder(f)
	defer func() { _ = enc.Close() }()
	return enc.Encode(data)
}

func writeJSON(path string, data any) error {
	contents, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(contents, '\n'), 0o644)
}
