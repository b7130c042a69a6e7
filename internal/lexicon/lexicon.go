// Package lexicon implements the keyword index: a curated mapping from
// semantic category buckets to synonym tokens, loaded from a versioned YAML
// data file rather than compiled into retrieval code.
package lexicon

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// noiseFloor is the minimum keyword match score worth keeping.
const noiseFloor = 0.3

//go:embed data/lexicon.yaml
var defaultData []byte

// Bucket groups the surface forms of one semantic category.
type Bucket struct {
	Tag   string   `yaml:"tag"`
	Terms []string `yaml:"terms"`
}

type fileSchema struct {
	Buckets          []Bucket          `yaml:"buckets"`
	CategoryTriggers []string          `yaml:"category_triggers"`
	Denylist         []string          `yaml:"denylist"`
	SearchTerms      map[string]string `yaml:"search_terms"`
}

// Lexicon holds the category synonym table plus the query-trigger and
// denylist term sets.
type Lexicon struct {
	buckets     []Bucket
	triggers    []string
	denylist    []string
	searchTerms map[string]string
}

// Load reads a lexicon from a YAML file.
func Load(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a lexicon from YAML bytes.
func Parse(data []byte) (*Lexicon, error) {
	var f fileSchema
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	if len(f.Buckets) == 0 {
		return nil, fmt.Errorf("lexicon has no buckets")
	}
	return &Lexicon{
		buckets:     f.Buckets,
		triggers:    f.CategoryTriggers,
		denylist:    f.Denylist,
		searchTerms: f.SearchTerms,
	}, nil
}

// Default returns the lexicon shipped with the binary.
func Default() *Lexicon {
	lex, err := Parse(defaultData)
	if err != nil {
		panic("embedded lexicon is invalid: " + err.Error())
	}
	return lex
}

// Expand scans the query for any synonym from any bucket and returns the
// union of all matching buckets' full synonym sets, so that matching one
// surface form also contributes its siblings to later scoring.
func (l *Lexicon) Expand(query string) []string {
	seen := make(map[string]bool)
	var keywords []string
	for _, b := range l.buckets {
		matched := false
		for _, term := range b.Terms {
			if strings.Contains(query, term) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		for _, term := range b.Terms {
			if !seen[term] {
				seen[term] = true
				keywords = append(keywords, term)
			}
		}
	}
	return keywords
}

// Score computes the keyword match strength of one record against the
// expanded keyword set: |matched|/|keywords| base, +0.2 when a matched
// keyword appears in the category field, +0.1 when at least two distinct
// keywords matched, clamped to 1.0.
func (l *Lexicon) Score(keywords []string, doc, title, category string) float64 {
	if len(keywords) == 0 {
		return 0
	}

	searchable := doc + " " + title + " " + category

	matches := 0
	categoryMatch := false
	for _, kw := range keywords {
		if !strings.Contains(searchable, kw) {
			continue
		}
		matches++
		if strings.Contains(category, kw) {
			categoryMatch = true
		}
	}

	score := float64(matches) / float64(len(keywords))
	if categoryMatch {
		score += 0.2
	}
	if matches >= 2 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// NoiseFloor is the score at or below which keyword matches are discarded.
func (l *Lexicon) NoiseFloor() float64 { return noiseFloor }

// HasCategoryKeyword reports whether the query names any known category term.
func (l *Lexicon) HasCategoryKeyword(query string) bool {
	return len(l.QueryCategoryTerms(query)) > 0
}

// QueryCategoryTerms returns the category-trigger terms present in the query.
func (l *Lexicon) QueryCategoryTerms(query string) []string {
	var terms []string
	for _, t := range l.triggers {
		if strings.Contains(query, t) {
			terms = append(terms, t)
		}
	}
	return terms
}

// CategorySearchTerms returns extra search terms attached to a catalog
// category, used when building a record's searchable text.
func (l *Lexicon) CategorySearchTerms(category string) string {
	return l.searchTerms[category]
}

// Denylist returns the speculative terms that must never survive generation.
func (l *Lexicon) Denylist() []string {
	return l.denylist
}
