// Package merge combines the records of several sources into one.
package merge

import (
	"cmp"
	"slices"
	"strconv"

	"github.com/hanjadb/hanjadb/internal/dictionary"
)

// DefaultMaxExamples bounds the merged examples when no cap is configured.
const DefaultMaxExamples = 3

// Engine merges partial records with a first-wins policy: candidates are
// ordered by source priority and, per field, the first non-empty value is
// kept. Later sources only fill gaps.
type Engine struct {
	rank        map[string]int
	maxExamples int
}

// NewEngine creates an engine for the given source priority, highest first.
func NewEngine(priority []string, maxExamples int) *Engine {
	rank := make(map[string]int, len(priority))
	for i, name := range priority {
		if _, ok := rank[name]; !ok {
			rank[name] = i
		}
	}
	if maxExamples <= 0 {
		maxExamples = DefaultMaxExamples
	}
	return &Engine{rank: rank, maxExamples: maxExamples}
}

// Merge returns the merged record and every field two sources disagreed on.
// The zero Record is returned when no candidate carries a key. The result
// depends only on the set of partials, not on their order in the slice.
func (e *Engine) Merge(partials []dictionary.PartialRecord) (dictionary.Record, []dictionary.Conflict) {
	candidates := make([]dictionary.PartialRecord, 0, len(partials))
	for _, p := range partials {
		if p.HasKey() {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return dictionary.Record{}, nil
	}
	slices.SortStableFunc(candidates, e.compare)

	var conflicts []dictionary.Conflict
	primary := candidates[0]
	matching := make([]dictionary.PartialRecord, 0, len(candidates))
	for _, c := range candidates {
		if c.Traditional != primary.Traditional {
			conflicts = append(conflicts, dictionary.Conflict{
				Field:       "traditional",
				Kept:        primary.Traditional,
				KeptSource:  primary.Source,
				Ignored:     c.Traditional,
				IgnoredFrom: c.Source,
			})
			continue
		}
		matching = append(matching, c)
	}

	m := merger{candidates: matching}
	record := dictionary.Record{
		Traditional:          primary.Traditional,
		Simplified:           m.pick("simplified", func(p dictionary.PartialRecord) string { return p.Simplified }),
		KoreanPronunciation:  m.pick("korean_pronunciation", func(p dictionary.PartialRecord) string { return p.KoreanPronunciation }),
		ForeignPronunciation: m.pick("foreign_pronunciation", func(p dictionary.PartialRecord) string { return p.ForeignPronunciation }),
		Radical:              m.pick("radical", func(p dictionary.PartialRecord) string { return p.Radical }),
		StrokeCount:          m.pickStrokeCount(),
		Meaning:              m.pick("meaning", func(p dictionary.PartialRecord) string { return p.Meaning }),
		Examples:             unionExamples(matching, e.maxExamples),
		Sources:              sources(matching),
	}
	return record, append(conflicts, m.conflicts...)
}

func (e *Engine) compare(a, b dictionary.PartialRecord) int {
	ra, aKnown := e.rank[a.Source]
	rb, bKnown := e.rank[b.Source]
	switch {
	case aKnown && bKnown:
		return cmp.Or(cmp.Compare(ra, rb), cmp.Compare(a.Traditional, b.Traditional))
	case aKnown:
		return -1
	case bKnown:
		return 1
	default:
		return cmp.Or(cmp.Compare(a.Source, b.Source), cmp.Compare(a.Traditional, b.Traditional))
	}
}

type merger struct {
	candidates []dictionary.PartialRecord
	conflicts  []dictionary.Conflict
}

func (m *merger) pick(field string, get func(dictionary.PartialRecord) string) string {
	var kept, keptSource string
	for _, c := range m.candidates {
		v := get(c)
		if v == "" {
			continue
		}
		if kept == "" {
			kept, keptSource = v, c.Source
			continue
		}
		if v != kept {
			m.conflicts = append(m.conflicts, dictionary.Conflict{
				Field:       field,
				Kept:        kept,
				KeptSource:  keptSource,
				Ignored:     v,
				IgnoredFrom: c.Source,
			})
		}
	}
	return kept
}

// pickStrokeCount treats zero as absent; a character always has strokes.
func (m *merger) pickStrokeCount() int {
	kept := m.pick("stroke_count", func(p dictionary.PartialRecord) string {
		if p.StrokeCount <= 0 {
			return ""
		}
		return strconv.Itoa(p.StrokeCount)
	})
	if kept == "" {
		return 0
	}
	n, _ := strconv.Atoi(kept)
	return n
}

func unionExamples(candidates []dictionary.PartialRecord, limit int) []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range candidates {
		for _, line := range c.Examples {
			if line == "" || seen[line] {
				continue
			}
			if len(out) == limit {
				return out
			}
			seen[line] = true
			out = append(out, line)
		}
	}
	return out
}

func sources(candidates []dictionary.PartialRecord) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.Source != "" && !slices.Contains(out, c.Source) {
			out = append(out, c.Source)
		}
	}
	return out
}
