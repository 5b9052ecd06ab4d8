// Package dictionary defines hanja entry records and their persistence.
package dictionary

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrNotFound is returned by repositories when no entry exists for a key.
var ErrNotFound = errors.New("dictionary entry not found")

// LookupKey identifies one entry, either a single ideograph or a word.
// It is used verbatim as the cache and store key.
type LookupKey string

func (k LookupKey) String() string {
	return string(k)
}

// PartialRecord holds the fields one source reported for a key.
// Zero values mean the source had no data for the field.
type PartialRecord struct {
	Traditional          string
	Simplified           string
	KoreanPronunciation  string
	ForeignPronunciation string
	Radical              string
	StrokeCount          int
	Meaning              string
	Examples             []string
	Source               string
	FetchedAt            time.Time
}

// HasKey reports whether the source recognized the entry at all.
func (p PartialRecord) HasKey() bool {
	return p.Traditional != ""
}

// Record is the merged entry served to callers, cached and stored.
type Record struct {
	Traditional          string   `json:"traditional" yaml:"traditional" validate:"required,ideographs"`
	Simplified           string   `json:"simplified,omitempty" yaml:"simplified,omitempty" validate:"omitempty,ideographs"`
	KoreanPronunciation  string   `json:"korean_pronunciation" yaml:"korean_pronunciation" validate:"required,hangul"`
	ForeignPronunciation string   `json:"foreign_pronunciation,omitempty" yaml:"foreign_pronunciation,omitempty" validate:"omitempty,romanized"`
	Radical              string   `json:"radical,omitempty" yaml:"radical,omitempty" validate:"omitempty,radical"`
	StrokeCount          int      `json:"stroke_count,omitempty" yaml:"stroke_count,omitempty" validate:"omitempty,min=1,max=64"`
	Meaning              string   `json:"meaning,omitempty" yaml:"meaning,omitempty"`
	Examples             []string `json:"examples,omitempty" yaml:"examples,omitempty"`
	Sources              []string `json:"sources,omitempty" yaml:"sources,omitempty"`
}

// IsZero reports whether r is the "no record" result of a merge.
func (r Record) IsZero() bool {
	return r.Traditional == ""
}

// Key returns the store key of the record.
func (r Record) Key() LookupKey {
	return LookupKey(r.Traditional)
}

// Clone returns a deep copy so callers can't mutate shared slices.
func (r Record) Clone() Record {
	r.Examples = slices.Clone(r.Examples)
	r.Sources = slices.Clone(r.Sources)
	return r
}

// HasSource reports whether name contributed to the record.
func (r Record) HasSource(name string) bool {
	return slices.Contains(r.Sources, name)
}

// ToPartial converts a record back into a single-source view, used when
// records enter the pipeline from an import file.
func (r Record) ToPartial(source string) PartialRecord {
	return PartialRecord{
		Traditional:          r.Traditional,
		Simplified:           r.Simplified,
		KoreanPronunciation:  r.KoreanPronunciation,
		ForeignPronunciation: r.ForeignPronunciation,
		Radical:              r.Radical,
		StrokeCount:          r.StrokeCount,
		Meaning:              r.Meaning,
		Examples:             slices.Clone(r.Examples),
		Source:               source,
	}
}

// Conflict records two sources disagreeing on a field. It is only used for
// diagnostics and never changes the merge result.
type Conflict struct {
	Field       string
	Kept        string
	KeptSource  string
	Ignored     string
	IgnoredFrom string
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s: kept %q (%s), ignored %q (%s)", c.Field, c.Kept, c.KeptSource, c.Ignored, c.IgnoredFrom)
}
