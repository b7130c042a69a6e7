package course

import "unicode/utf8"

// Value length bounds applied before storage, matching the index row limits.
const (
	maxDescriptionLen = 500
	maxMetaValueLen   = 100
)

// Meta holds the auxiliary course fields. Named fields cover the columns the
// catalog source is known to carry; Extra keeps unrecognized columns for
// forward compatibility.
type Meta struct {
	Teacher  string            `json:"teacher,omitempty"`
	Schedule string            `json:"schedule,omitempty"` // bracketed day tokens, e.g. "[1][3][5]", or "none"
	Time     string            `json:"time,omitempty"`     // "HH:MM" start time
	Fee      string            `json:"fee,omitempty"`
	TrialFee string            `json:"trial_fee,omitempty"`
	AgeLimit string            `json:"age_limit,omitempty"`
	Code     string            `json:"code,omitempty"`
	Room     string            `json:"room,omitempty"`
	Weeks    string            `json:"weeks,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Bounded returns a copy with every value truncated to the storage limit.
func (m Meta) Bounded() Meta {
	out := Meta{
		Teacher:  truncate(m.Teacher, maxMetaValueLen),
		Schedule: truncate(m.Schedule, maxMetaValueLen),
		Time:     truncate(m.Time, maxMetaValueLen),
		Fee:      truncate(m.Fee, maxMetaValueLen),
		TrialFee: truncate(m.TrialFee, maxMetaValueLen),
		AgeLimit: truncate(m.AgeLimit, maxMetaValueLen),
		Code:     truncate(m.Code, maxMetaValueLen),
		Room:     truncate(m.Room, maxMetaValueLen),
		Weeks:    truncate(m.Weeks, maxMetaValueLen),
	}
	if len(m.Extra) > 0 {
		out.Extra = make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = truncate(v, maxMetaValueLen)
		}
	}
	return out
}

// Record is a catalog entry prepared for indexing.
type Record struct {
	ID             string
	CourseID       string
	Title          string
	Category       string
	Description    string
	SearchableText string
	Meta           Meta
}

// Indexable reports whether the record carries the required display text.
func (r *Record) Indexable() bool {
	return r.Title != "" && r.Description != ""
}

// BoundedDescription returns the description truncated to the storage limit.
func (r *Record) BoundedDescription() string {
	return truncate(r.Description, maxDescriptionLen)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
