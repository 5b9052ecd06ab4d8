package cli

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/hanjadb/hanjadb/internal/datasync"
	"github.com/hanjadb/hanjadb/internal/dictionary"
	"github.com/hanjadb/hanjadb/internal/lookup"
)

// RecordPrinter writes records and command results for a terminal.
type RecordPrinter struct {
	stdoutWriter io.Writer
	bold         *color.Color
	italic       *color.Color
	faint        *color.Color
	green        *color.Color
	yellow       *color.Color
	red          *color.Color
}

func NewRecordPrinter(w io.Writer) *RecordPrinter {
	return &RecordPrinter{
		stdoutWriter: w,
		bold:         color.New(color.Bold),
		italic:       color.New(color.Italic),
		faint:        color.New(color.Faint),
		green:        color.New(color.FgGreen),
		yellow:       color.New(color.FgYellow),
		red:          color.New(color.FgRed),
	}
}

// PrintLookup prints a lookup result with where it came from.
func (p *RecordPrinter) PrintLookup(result lookup.Result) error {
	var buf bytes.Buffer
	p.writeRecord(&buf, result.Record)

	origin := "sources"
	switch {
	case result.CacheHit:
		origin = "cache"
	case result.FromStore:
		origin = "store"
	}
	_, _ = p.faint.Fprintf(&buf, "  from %s\n", origin)

	for _, c := range result.Conflicts {
		_, _ = p.yellow.Fprintf(&buf, "  conflict %s\n", c.String())
	}
	if result.StoreErr != nil {
		_, _ = p.red.Fprintf(&buf, "  not stored: %v\n", result.StoreErr)
	}
	return p.flush(&buf)
}

func (p *RecordPrinter) PrintRecord(record dictionary.Record) error {
	var buf bytes.Buffer
	p.writeRecord(&buf, record)
	return p.flush(&buf)
}

// PrintRecords prints one summary line per record.
func (p *RecordPrinter) PrintRecords(records []dictionary.Record) error {
	var buf bytes.Buffer
	if len(records) == 0 {
		_, _ = p.faint.Fprintln(&buf, "no matches")
		return p.flush(&buf)
	}
	for _, r := range records {
		_, _ = fmt.Fprintf(&buf, "%s  %s", p.bold.Sprint(r.Traditional), r.KoreanPronunciation)
		if r.Meaning != "" {
			_, _ = fmt.Fprintf(&buf, "  %s", p.italic.Sprint(r.Meaning))
		}
		buf.WriteString("\n")
	}
	return p.flush(&buf)
}

// PrintValidationFailure lists the rules a merged record broke.
func (p *RecordPrinter) PrintValidationFailure(err *lookup.ValidationFailedError) error {
	var buf bytes.Buffer
	_, _ = p.red.Fprintf(&buf, "%s was found but rejected:\n", p.bold.Sprint(string(err.Key)))
	for _, v := range err.Violations {
		_, _ = fmt.Fprintf(&buf, "  - %s\n", v.String())
	}
	return p.flush(&buf)
}

func (p *RecordPrinter) PrintImportResult(result *datasync.ImportResult, dryRun bool) error {
	var buf bytes.Buffer
	summary := fmt.Sprintf("new: %d, updated: %d, skipped: %d, duplicates: %d, invalid: %d",
		result.New, result.Updated, result.Skipped, result.Duplicates, result.Invalid)
	if dryRun {
		_, _ = p.yellow.Fprintf(&buf, "dry run, nothing written. %s\n", summary)
	} else {
		_, _ = p.green.Fprintf(&buf, "imported. %s\n", summary)
	}
	for _, r := range result.Rejected {
		_, _ = p.red.Fprintf(&buf, "  rejected %q\n", r.Key)
		for _, v := range r.Violations {
			_, _ = fmt.Fprintf(&buf, "    - %s\n", v.String())
		}
	}
	return p.flush(&buf)
}

func (p *RecordPrinter) writeRecord(buf *bytes.Buffer, r dictionary.Record) {
	buf.WriteString(p.bold.Sprint(r.Traditional))
	if r.Simplified != "" && r.Simplified != r.Traditional {
		_, _ = fmt.Fprintf(buf, " (%s)", r.Simplified)
	}
	_, _ = fmt.Fprintf(buf, "  %s", r.KoreanPronunciation)
	if r.ForeignPronunciation != "" {
		_, _ = fmt.Fprintf(buf, " / %s", r.ForeignPronunciation)
	}
	buf.WriteString("\n")

	var details []string
	if r.Radical != "" {
		details = append(details, "radical: "+r.Radical)
	}
	if r.StrokeCount > 0 {
		details = append(details, fmt.Sprintf("strokes: %d", r.StrokeCount))
	}
	if len(details) > 0 {
		_, _ = fmt.Fprintf(buf, "  %s\n", strings.Join(details, "  "))
	}
	if r.Meaning != "" {
		_, _ = fmt.Fprintf(buf, "  meaning: %s\n", p.italic.Sprint(r.Meaning))
	}
	if len(r.Examples) > 0 {
		buf.WriteString("  examples:\n")
		for _, e := range r.Examples {
			_, _ = fmt.Fprintf(buf, "    - %s\n", e)
		}
	}
	if len(r.Sources) > 0 {
		_, _ = p.faint.Fprintf(buf, "  sources: %s\n", strings.Join(r.Sources, ", "))
	}
}

func (p *RecordPrinter) flush(buf *bytes.Buffer) error {
	if _, err := p.stdoutWriter.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write to stdout: %w", err)
	}
	return nil
}
