package source

import (
	"golang.org/x/net/html"

	"github.com/hanjadb/hanjadb/internal/dictionary"
)

const (
	NameNaver = "naver"

	naverMaxExamples = 3
)

func NewNaver(endpoint string, opts Options) *Scraper {
	return NewScraper(NameNaver, endpoint, ExtractNaver, opts)
}

// ExtractNaver reads the hanja dictionary page of Naver. Naver has no
// separate simplified form, so that field stays empty.
func ExtractNaver(doc *html.Node) (dictionary.PartialRecord, bool) {
	origin := queryFirst(doc, ".origin")
	if origin == nil {
		return dictionary.PartialRecord{}, false
	}

	record := dictionary.PartialRecord{
		Traditional:          text(queryFirst(origin, ".hanja")),
		KoreanPronunciation:  text(queryFirst(origin, ".pronounce .korean")),
		ForeignPronunciation: text(queryFirst(origin, ".pronounce .china")),
		Radical:              text(queryFirst(origin, ".sub_info .radical")),
		StrokeCount:          firstInt(text(queryFirst(origin, ".sub_info .stroke"))),
		Meaning:              text(queryFirst(doc, ".meaning")),
	}

	for _, item := range queryAll(doc, ".example_item") {
		if len(record.Examples) == naverMaxExamples {
			break
		}
		hanja := text(queryFirst(item, ".hanja"))
		korean := text(queryFirst(item, ".korean"))
		if hanja == "" || korean == "" {
			continue
		}
		record.Examples = append(record.Examples, hanja+" "+korean)
	}

	return record, true
}
