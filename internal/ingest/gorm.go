package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// courseRow mirrors the relational catalog schema.
type courseRow struct {
	ID          uint   `gorm:"primaryKey;column:id"`
	Seq         string `gorm:"column:seq"`
	Category    string `gorm:"column:category"`
	Title       string `gorm:"column:title"`
	Description string `gorm:"column:description"`
	Room        string `gorm:"column:room"`
	Code        string `gorm:"column:code"`
	Teacher     string `gorm:"column:teacher"`
	AgeLimit    string `gorm:"column:age_limit"`
	Schedule    string `gorm:"column:schedule"`
	StartTime   string `gorm:"column:start_time"`
	Fee         string `gorm:"column:fee"`
	TrialFee    string `gorm:"column:trial_fee"`
}

func (courseRow) TableName() string { return "courses" }

// GormLoader reads course rows from a SQLite catalog database.
type GormLoader struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormLoader opens the SQLite catalog at path.
func NewGormLoader(path string, logger *zap.Logger) (*GormLoader, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open catalog database %s: %w", path, err)
	}
	return &GormLoader{db: db, logger: logger}, nil
}

// Load reads every course row from the database.
func (l *GormLoader) Load(ctx context.Context) ([]RawCourse, error) {
	var rows []courseRow
	if err := l.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}

	courses := make([]RawCourse, len(rows))
	for i, row := range rows {
		courses[i] = RawCourse{
			Seq:         flexString(row.Seq),
			Category:    row.Category,
			Title:       row.Title,
			Description: row.Description,
			Room:        row.Room,
			Code:        row.Code,
			Teacher:     row.Teacher,
			AgeLimit:    row.AgeLimit,
			Schedule:    flexString(row.Schedule),
			Time:        row.StartTime,
			Fee:         flexString(row.Fee),
			TrialFee:    flexString(row.TrialFee),
		}
	}

	l.logger.Info("catalog database loaded", zap.Int("count", len(courses)))
	return courses, nil
}
