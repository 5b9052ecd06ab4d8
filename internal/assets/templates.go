// Package assets holds the embedded Markdown templates used by exports.
package assets

import (
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/hanjadb/hanjadb/internal/dictionary"
)

const studySheetTemplateName = "study-sheet.md.go.tmpl"

//go:embed templates/study-sheet.md.go.tmpl
var fallbackStudySheetTemplate string

// StudySheet is the data passed to the study sheet template.
type StudySheet struct {
	Title   string
	Header  string
	Date    time.Time
	Records []dictionary.Record
}

// WriteStudySheet renders data with the template at templatePath, or with
// the embedded template when templatePath is empty or unusable.
func WriteStudySheet(output io.Writer, templatePath string, data StudySheet) error {
	tmpl, err := ParseStudySheetTemplate(templatePath)
	if err != nil {
		return fmt.Errorf("ParseStudySheetTemplate() > %w", err)
	}
	if err := tmpl.Execute(output, data); err != nil {
		return fmt.Errorf("tmpl.Execute() > %w", err)
	}
	return nil
}

func ParseStudySheetTemplate(templatePath string) (*template.Template, error) {
	return parseTemplateWithFallback(templatePath, studySheetTemplateName, fallbackStudySheetTemplate)
}

func parseTemplateWithFallback(templatePath, fallbackName, fallbackTemplate string) (*template.Template, error) {
	funcMap := template.FuncMap{
		"join": strings.Join,
	}

	if templatePath != "" {
		if _, err := os.Stat(templatePath); err == nil {
			tmpl, err := template.New(filepath.Base(templatePath)).
				Funcs(funcMap).
				ParseFiles(templatePath)
			if err == nil {
				return tmpl, nil
			}
			slog.Warn("failed to parse template, using the embedded one",
				"templatePath", templatePath,
				"error", err)
		}
	}

	tmpl, err := template.New(fallbackName).
		Funcs(funcMap).
		Parse(fallbackTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded template: %w", err)
	}
	return tmpl, nil
}
