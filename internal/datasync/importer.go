// Package datasync moves hanja records between files and the store.
package datasync

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hanjadb/hanjadb/internal/dictionary"
	"github.com/hanjadb/hanjadb/internal/normalize"
	"github.com/hanjadb/hanjadb/internal/validate"
)

// ImportSource is recorded as the source of imported records that name none.
const ImportSource = "import"

// ImportResult tracks counts for each import outcome.
type ImportResult struct {
	New        int
	Updated    int
	Skipped    int
	Duplicates int
	Invalid    int
	Rejected   []Rejection
}

// Rejection is an input record that failed validation.
type Rejection struct {
	Key        string
	Violations []validate.Violation
}

// ImportOptions controls import behavior.
type ImportOptions struct {
	DryRun         bool
	UpdateExisting bool
}

// Importer validates records read from YAML and writes them to the store.
type Importer struct {
	repo      dictionary.Repository
	validator *validate.Validator
	writer    io.Writer
}

// NewImporter creates a new Importer. Progress lines go to writer.
func NewImporter(repo dictionary.Repository, validator *validate.Validator, writer io.Writer) *Importer {
	return &Importer{
		repo:      repo,
		validator: validator,
		writer:    writer,
	}
}

// ReadRecords parses a YAML list of records.
func ReadRecords(path string) ([]dictionary.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open import file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []dictionary.Record
	if err := yaml.NewDecoder(f).Decode(&records); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("parse import file %s: %w", path, err)
	}
	return records, nil
}

// Import normalizes and validates every record. Invalid records are reported
// and skipped; the rest are written in one transaction unless DryRun is set.
// Records already stored are left alone unless UpdateExisting is set.
func (imp *Importer) Import(ctx context.Context, records []dictionary.Record, opts ImportOptions) (*ImportResult, error) {
	stored, err := imp.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stored records: %w", err)
	}
	existing := make(map[string]bool, len(stored))
	for _, r := range stored {
		existing[r.Traditional] = true
	}

	var result ImportResult
	seen := make(map[string]bool, len(records))
	toWrite := make([]dictionary.Record, 0, len(records))

	for _, src := range records {
		record := normalizeRecord(src)
		key := record.Traditional

		if violations := imp.validator.Validate(record); len(violations) > 0 {
			messages := make([]string, 0, len(violations))
			for _, v := range violations {
				messages = append(messages, v.String())
			}
			_, _ = fmt.Fprintf(imp.writer, "  [INVALID]  %q: %s\n", key, strings.Join(messages, "; "))
			result.Invalid++
			result.Rejected = append(result.Rejected, Rejection{Key: key, Violations: violations})
			continue
		}

		if seen[key] {
			_, _ = fmt.Fprintf(imp.writer, "  [DUPLICATE]  %q\n", key)
			result.Duplicates++
			continue
		}
		seen[key] = true

		switch {
		case !existing[key]:
			_, _ = fmt.Fprintf(imp.writer, "  [NEW]  %q\n", key)
			result.New++
		case opts.UpdateExisting:
			_, _ = fmt.Fprintf(imp.writer, "  [UPDATE]  %q\n", key)
			result.Updated++
		default:
			_, _ = fmt.Fprintf(imp.writer, "  [SKIP]  %q\n", key)
			result.Skipped++
			continue
		}
		toWrite = append(toWrite, record)
	}

	if opts.DryRun || len(toWrite) == 0 {
		return &result, nil
	}

	mode := dictionary.UpsertInsertIfAbsent
	if opts.UpdateExisting {
		mode = dictionary.UpsertOverwrite
	}
	if err := imp.repo.BatchUpsert(ctx, toWrite, mode); err != nil {
		return nil, fmt.Errorf("batch upsert records: %w", err)
	}
	return &result, nil
}

func normalizeRecord(src dictionary.Record) dictionary.Record {
	p := normalize.Record(src.ToPartial(ImportSource))
	sources := src.Sources
	if len(sources) == 0 {
		sources = []string{ImportSource}
	}
	return dictionary.Record{
		Traditional:          p.Traditional,
		Simplified:           p.Simplified,
		KoreanPronunciation:  p.KoreanPronunciation,
		ForeignPronunciation: p.ForeignPronunciation,
		Radical:              p.Radical,
		StrokeCount:          p.StrokeCount,
		Meaning:              p.Meaning,
		Examples:             p.Examples,
		Sources:              sources,
	}
}
