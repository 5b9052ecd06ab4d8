package source

import (
	"golang.org/x/net/html"

	"github.com/hanjadb/hanjadb/internal/dictionary"
)

const NameDaum = "daum"

func NewDaum(endpoint string, opts Options) *Scraper {
	return NewScraper(NameDaum, endpoint, ExtractDaum, opts)
}

// ExtractDaum reads the hanja section of a Daum dictionary search page.
func ExtractDaum(doc *html.Node) (dictionary.PartialRecord, bool) {
	info := queryFirst(doc, "div.search_hanja")
	if info == nil {
		return dictionary.PartialRecord{}, false
	}

	record := dictionary.PartialRecord{
		Traditional:          text(queryFirst(info, "span.hanja")),
		Simplified:           text(queryFirst(info, "span.simplified")),
		KoreanPronunciation:  text(queryFirst(info, "span.pronunciation")),
		ForeignPronunciation: text(queryFirst(info, "span.pinyin")),
		Radical:              text(queryFirst(info, "span.radical")),
		StrokeCount:          firstInt(text(queryFirst(info, "span.stroke_count"))),
		Meaning:              text(queryFirst(info, "div.meaning")),
	}
	for _, example := range queryAll(info, "div.example") {
		if line := text(example); line != "" {
			record.Examples = append(record.Examples, line)
		}
	}
	return record, true
}
