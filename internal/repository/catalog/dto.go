package catalog

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/classnav/classnav/internal/db"
	"github.com/classnav/classnav/internal/domain/course"
	"github.com/classnav/classnav/internal/domain/search"
)

// Hash field names for stored course documents. Extra metadata columns are
// stored under an "x_" prefix.
const (
	fieldCourseID    = "course_id"
	fieldTitle       = "title"
	fieldCategory    = "category"
	fieldDescription = "description"
	fieldSearchable  = "searchable"
	fieldTeacher     = "teacher"
	fieldSchedule    = "schedule"
	fieldTime        = "time"
	fieldFee         = "fee"
	fieldTrialFee    = "trial_fee"
	fieldAgeLimit    = "age_limit"
	fieldCode        = "code"
	fieldRoom        = "room"
	fieldWeeks       = "weeks"
	fieldVector      = "vector"

	extraPrefix = "x_"
)

// resultFields are the hash fields fetched back for search results.
var resultFields = []string{
	fieldTitle, fieldCategory, fieldDescription, fieldSearchable,
	fieldTeacher, fieldSchedule, fieldTime, fieldFee, fieldTrialFee,
	fieldAgeLimit, fieldCode, fieldRoom, fieldWeeks,
}

// recordToFields flattens a record and its vector into hash fields.
func recordToFields(rec *course.Record, vector []float32) map[string]string {
	meta := rec.Meta.Bounded()

	fields := map[string]string{
		fieldCourseID:    rec.CourseID,
		fieldTitle:       rec.Title,
		fieldCategory:    rec.Category,
		fieldDescription: rec.BoundedDescription(),
		fieldSearchable:  rec.SearchableText,
		fieldVector:      vectorBlob(vector),
	}
	setIfPresent(fields, fieldTeacher, meta.Teacher)
	setIfPresent(fields, fieldSchedule, meta.Schedule)
	setIfPresent(fields, fieldTime, meta.Time)
	setIfPresent(fields, fieldFee, meta.Fee)
	setIfPresent(fields, fieldTrialFee, meta.TrialFee)
	setIfPresent(fields, fieldAgeLimit, meta.AgeLimit)
	setIfPresent(fields, fieldCode, meta.Code)
	setIfPresent(fields, fieldRoom, meta.Room)
	setIfPresent(fields, fieldWeeks, meta.Weeks)
	for k, v := range meta.Extra {
		setIfPresent(fields, extraPrefix+k, v)
	}
	return fields
}

func setIfPresent(fields map[string]string, key, value string) {
	if value != "" {
		fields[key] = value
	}
}

// entryToResult maps one search hit onto a domain result.
func entryToResult(entry db.SearchEntry, id string, source search.Source) search.Result {
	return search.Result{
		ID:          id,
		Title:       entry.Fields[fieldTitle],
		Category:    entry.Fields[fieldCategory],
		Description: entry.Fields[fieldDescription],
		Searchable:  entry.Fields[fieldSearchable],
		Score:       entry.Score,
		Source:      source,
		Meta:        fieldsToMeta(entry.Fields),
	}
}

func fieldsToMeta(fields map[string]string) course.Meta {
	meta := course.Meta{
		Teacher:  fields[fieldTeacher],
		Schedule: fields[fieldSchedule],
		Time:     fields[fieldTime],
		Fee:      fields[fieldFee],
		TrialFee: fields[fieldTrialFee],
		AgeLimit: fields[fieldAgeLimit],
		Code:     fields[fieldCode],
		Room:     fields[fieldRoom],
		Weeks:    fields[fieldWeeks],
	}
	for k, v := range fields {
		if name, ok := strings.CutPrefix(k, extraPrefix); ok {
			if meta.Extra == nil {
				meta.Extra = make(map[string]string)
			}
			meta.Extra[name] = v
		}
	}
	return meta
}

// vectorBlob encodes a vector as the little-endian float32 blob the FT
// vector field expects.
func vectorBlob(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
