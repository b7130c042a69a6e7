package ingest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/classnav/classnav/internal/domain/course"
	"github.com/classnav/classnav/internal/lexicon"
)

// Processor cleans raw course rows and turns them into indexable records.
type Processor struct {
	lex *lexicon.Lexicon
}

// NewProcessor creates a processor using lex for category keyword
// enrichment of the searchable text.
func NewProcessor(lex *lexicon.Lexicon) *Processor {
	return &Processor{lex: lex}
}

// Prepare trims and validates raw rows and builds one record per usable
// course. Rows missing a title or description are dropped.
func (p *Processor) Prepare(raws []RawCourse) []course.Record {
	records := make([]course.Record, 0, len(raws))
	for i, raw := range raws {
		title := strings.TrimSpace(raw.Title)
		description := strings.TrimSpace(raw.Description)
		if title == "" || description == "" {
			continue
		}

		category := strings.TrimSpace(raw.Category)
		rec := course.Record{
			ID:          fmt.Sprintf("%d", i),
			CourseID:    strings.TrimSpace(string(raw.Seq)),
			Title:       title,
			Category:    category,
			Description: description,
			Meta: course.Meta{
				Teacher:  strings.TrimSpace(raw.Teacher),
				Schedule: strings.TrimSpace(string(raw.Schedule)),
				Time:     strings.TrimSpace(raw.Time),
				Fee:      strings.TrimSpace(string(raw.Fee)),
				TrialFee: strings.TrimSpace(string(raw.TrialFee)),
				AgeLimit: strings.TrimSpace(raw.AgeLimit),
				Code:     strings.TrimSpace(raw.Code),
				Room:     strings.TrimSpace(raw.Room),
			},
		}
		if min := strings.TrimSpace(string(raw.MinSize)); min != "" {
			rec.Meta.Extra = map[string]string{"min_size": min}
		}
		if max := strings.TrimSpace(string(raw.MaxSize)); max != "" {
			if rec.Meta.Extra == nil {
				rec.Meta.Extra = map[string]string{}
			}
			rec.Meta.Extra["max_size"] = max
		}
		rec.SearchableText = p.searchableText(&rec)
		records = append(records, rec)
	}
	return records
}

// searchableText assembles the text fed to the embedding model: title,
// category plus its expansion keywords, description, then detail lines.
func (p *Processor) searchableText(rec *course.Record) string {
	var parts []string
	parts = append(parts, "課程名稱: "+rec.Title)

	if rec.Category != "" {
		parts = append(parts, "類別: "+rec.Category)
		if kw := p.lex.CategorySearchTerms(rec.Category); kw != "" {
			parts = append(parts, "相關關鍵詞: "+kw)
		}
	}

	parts = append(parts, "介紹: "+rec.Description)

	var details []string
	for _, d := range []struct{ label, value string }{
		{"授課教師", rec.Meta.Teacher},
		{"年齡限制", rec.Meta.AgeLimit},
		{"上課時間", rec.Meta.Time},
		{"課程費用", rec.Meta.Fee},
		{"體驗費用", rec.Meta.TrialFee},
	} {
		if d.value != "" {
			details = append(details, d.label+": "+d.value)
		}
	}
	if len(details) > 0 {
		parts = append(parts, "詳細資訊: "+strings.Join(details, ", "))
	}

	return strings.Join(parts, "\n")
}

// Categories returns the sorted distinct categories found in records.
func Categories(records []course.Record) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		if rec.Category != "" {
			seen[rec.Category] = struct{}{}
		}
	}
	categories := make([]string, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories
}
