// Package normalize cleans up the text of one source's record before it is
// merged with the others.
package normalize

import (
	"html"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/hanjadb/hanjadb/internal/dictionary"
)

var (
	tagPattern           = regexp.MustCompile(`<[^>]*>`)
	parentheticalPattern = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)
	whitespacePattern    = regexp.MustCompile(`\s+`)
)

// alternativeSeparators split a pronunciation list; only the first entry is kept.
const alternativeSeparators = ",/、;，；"

// Record applies the per-field cleanup rules. It never fails; a field that
// ends up empty is treated as absent by the merge.
func Record(p dictionary.PartialRecord) dictionary.PartialRecord {
	out := p
	out.Traditional = Ideographs(p.Traditional)
	out.Simplified = Ideographs(p.Simplified)
	out.Radical = Ideographs(p.Radical)
	out.KoreanPronunciation = Pronunciation(p.KoreanPronunciation)
	out.ForeignPronunciation = Pronunciation(p.ForeignPronunciation)
	out.Meaning = Text(p.Meaning)
	out.Examples = Examples(p.Examples)
	if out.StrokeCount < 0 {
		out.StrokeCount = 0
	}
	return out
}

// Ideographs trims and NFC-normalizes a key-like field. Inner spaces are
// removed since a word key never contains them.
func Ideographs(s string) string {
	s = norm.NFC.String(Text(s))
	return strings.ReplaceAll(s, " ", "")
}

// Pronunciation strips annotations in parentheses or brackets, keeps the
// first of several listed alternatives and folds full-width letters.
func Pronunciation(s string) string {
	s = Text(s)
	s = parentheticalPattern.ReplaceAllString(s, "")
	if i := strings.IndexAny(s, alternativeSeparators); i >= 0 {
		s = s[:i]
	}
	s = width.Fold.String(s)
	return collapse(s)
}

// Text strips markup, decodes entities and collapses whitespace. Entities
// are decoded until none are left so escaped markup is stripped as well.
func Text(s string) string {
	if s == "" {
		return ""
	}
	for {
		s = tagPattern.ReplaceAllString(s, " ")
		unescaped := html.UnescapeString(s)
		if unescaped == s {
			break
		}
		s = unescaped
	}
	s = norm.NFC.String(s)
	return collapse(s)
}

// Examples cleans every line, splits multi-line entries and drops empty ones.
func Examples(lines []string) []string {
	var out []string
	for _, line := range lines {
		for _, part := range strings.Split(line, "\n") {
			if part = Text(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return slices.Clip(out)
}

func collapse(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}
