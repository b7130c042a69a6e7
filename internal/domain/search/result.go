package search

import "github.com/classnav/classnav/internal/domain/course"

// Source records which retrieval stage produced a result.
type Source string

const (
	// SourceVector marks a dense-retrieval hit scored by cosine similarity.
	SourceVector Source = "vector"
	// SourceKeyword marks a sparse keyword-match hit with a heuristic score.
	SourceKeyword Source = "keyword"
	// SourceCode marks a course-code lookup hit (1.0 exact, 0.95 substring).
	SourceCode Source = "code"
)

// Result is a single transient retrieval hit. Score is always in [0,1];
// higher is better.
type Result struct {
	ID          string
	Title       string
	Category    string
	Description string
	// Searchable is the keyword-match corpus stored with the record.
	Searchable string
	Score      float64
	Source     Source
	Meta       course.Meta
}
