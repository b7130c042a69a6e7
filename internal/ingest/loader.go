// Package ingest loads raw course rows from the configured source and
// prepares them for indexing.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// RawCourse is one course row as exported by the activity center. Field
// names follow the export's column headers.
type RawCourse struct {
	Seq         flexString `json:"項次"`
	Category    string     `json:"大類"`
	Title       string     `json:"課程名稱"`
	Description string     `json:"課程介紹"`
	Room        string     `json:"授課教室"`
	Code        string     `json:"課程代碼"`
	Teacher     string     `json:"授課教師"`
	AgeLimit    string     `json:"年齡限制"`
	Schedule    flexString `json:"上課週次"`
	Time        string     `json:"上課時間"`
	Fee         flexString `json:"課程費用"`
	TrialFee    flexString `json:"體驗費用"`
	MinSize     flexString `json:"開班人數"`
	MaxSize     flexString `json:"滿班人數"`
}

// flexString accepts either a JSON string or a JSON number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// Loader produces raw course rows from a catalog source.
type Loader interface {
	Load(ctx context.Context) ([]RawCourse, error)
}

// FileLoader reads the JSON export file.
type FileLoader struct {
	path   string
	logger *zap.Logger
}

// NewFileLoader creates a loader for a JSON export file.
func NewFileLoader(path string, logger *zap.Logger) *FileLoader {
	return &FileLoader{path: path, logger: logger}
}

// Load reads and decodes the export file.
func (l *FileLoader) Load(_ context.Context) ([]RawCourse, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read course file %s: %w", l.path, err)
	}

	var courses []RawCourse
	if err := json.Unmarshal(raw, &courses); err != nil {
		return nil, fmt.Errorf("decode course file %s: %w", l.path, err)
	}

	l.logger.Info("course file loaded",
		zap.String("path", l.path),
		zap.Int("count", len(courses)),
	)
	return courses, nil
}
