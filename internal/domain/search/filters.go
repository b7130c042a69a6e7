package search

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TimeBucket partitions the day by class start time.
type TimeBucket string

const (
	BucketNone      TimeBucket = "none"
	BucketMorning   TimeBucket = "morning"   // before 12:00
	BucketAfternoon TimeBucket = "afternoon" // 12:00–17:59
	BucketEvening   TimeBucket = "evening"   // 18:00 and later
)

// Filters holds structured constraints extracted from a free-text query.
// They are best-effort: unparseable signals simply leave the filter empty.
type Filters struct {
	Weekdays map[int]bool // 0=Sunday .. 6=Saturday
	Time     TimeBucket
	Codes    []string
}

// Empty reports whether no structured constraint was extracted.
func (f Filters) Empty() bool {
	return len(f.Weekdays) == 0 && (f.Time == "" || f.Time == BucketNone) && len(f.Codes) == 0
}

// HasSchedule reports whether a weekday or time constraint is present.
func (f Filters) HasSchedule() bool {
	return len(f.Weekdays) > 0 || (f.Time != "" && f.Time != BucketNone)
}

// WeekdayList returns the weekday set in ascending order, for logging.
func (f Filters) WeekdayList() []int {
	days := make([]int, 0, len(f.Weekdays))
	for d := range f.Weekdays {
		days = append(days, d)
	}
	sort.Ints(days)
	return days
}

var weekdayChars = map[rune]int{
	'日': 0, '天': 0,
	'一': 1, '二': 2, '三': 3, '四': 4, '五': 5, '六': 6,
}

var weekdayPrefixes = []string{"星期", "禮拜", "週", "周"}

var timeBucketTerms = []struct {
	term   string
	bucket TimeBucket
}{
	{"早上", BucketMorning},
	{"上午", BucketMorning},
	{"清晨", BucketMorning},
	{"早晨", BucketMorning},
	{"中午", BucketAfternoon},
	{"下午", BucketAfternoon},
	{"午後", BucketAfternoon},
	{"晚上", BucketEvening},
	{"晚間", BucketEvening},
	{"夜間", BucketEvening},
	{"夜晚", BucketEvening},
}

// ParseFilters extracts weekday, time-of-day, and course-code signals from a
// query. Malformed signals are ignored, never an error.
func ParseFilters(query string) Filters {
	f := Filters{Time: BucketNone}

	f.Weekdays = parseWeekdays(query)

	for _, tb := range timeBucketTerms {
		if strings.Contains(query, tb.term) {
			f.Time = tb.bucket
			break
		}
	}

	f.Codes = parseCodeTokens(query)

	return f
}

// parseWeekdays scans for weekday prefixes followed by a run of day
// characters ("週一", "星期二四", "周一三五"), plus weekday/weekend
// aggregates.
func parseWeekdays(query string) map[int]bool {
	days := make(map[int]bool)

	if strings.Contains(query, "平日") {
		for d := 1; d <= 5; d++ {
			days[d] = true
		}
	}
	if strings.Contains(query, "週末") || strings.Contains(query, "周末") || strings.Contains(query, "假日") {
		days[0] = true
		days[6] = true
	}

	runes := []rune(query)
	for i := 0; i < len(runes); i++ {
		n := matchWeekdayPrefix(runes[i:])
		if n == 0 {
			continue
		}
		j := i + n
		// Consume the run of day characters after the prefix.
		consumed := 0
		for j < len(runes) {
			d, ok := weekdayChars[runes[j]]
			if !ok {
				break
			}
			days[d] = true
			consumed++
			j++
		}
		if consumed > 0 {
			i = j - 1
		}
	}

	if len(days) == 0 {
		return nil
	}
	return days
}

func matchWeekdayPrefix(runes []rune) int {
	s := string(runes)
	for _, p := range weekdayPrefixes {
		if strings.HasPrefix(s, p) {
			return len([]rune(p))
		}
	}
	return 0
}

// parseCodeTokens extracts course-code-like tokens: maximal ASCII
// alphanumeric runs of length >= 3 containing both a letter and a digit.
func parseCodeTokens(query string) []string {
	var codes []string
	var token strings.Builder
	flush := func() {
		if tok := token.String(); isCodeToken(tok) {
			codes = append(codes, strings.ToUpper(tok))
		}
		token.Reset()
	}
	for _, r := range query {
		if isASCIIAlnum(r) {
			token.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return codes
}

func isCodeToken(tok string) bool {
	if len(tok) < 3 {
		return false
	}
	hasLetter, hasDigit := false, false
	for _, r := range tok {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		default:
			hasLetter = true
		}
	}
	return hasLetter && hasDigit
}

func isASCIIAlnum(r rune) bool {
	return r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
}

// MatchSchedule applies the weekday and time-bucket predicates against a
// record's schedule metadata. schedule uses bracketed day tokens
// ("[0]".."[6]"); an empty schedule or the "none" sentinel never matches a
// weekday filter. timeStr is the "HH:MM" class start time.
func (f Filters) MatchSchedule(schedule, timeStr string) bool {
	if len(f.Weekdays) > 0 {
		if schedule == "" || strings.EqualFold(strings.TrimSpace(schedule), "none") {
			return false
		}
		matched := false
		for d := range f.Weekdays {
			if strings.Contains(schedule, fmt.Sprintf("[%d]", d)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if f.Time != "" && f.Time != BucketNone {
		bucket, ok := bucketForTime(timeStr)
		if !ok || bucket != f.Time {
			return false
		}
	}

	return true
}

// bucketForTime parses a leading "HH:MM" and maps it to a day bucket.
func bucketForTime(timeStr string) (TimeBucket, bool) {
	s := strings.TrimSpace(timeStr)
	if len(s) < 5 {
		return BucketNone, false
	}
	hh, err := strconv.Atoi(s[0:2])
	if err != nil || s[2] != ':' {
		return BucketNone, false
	}
	mm, err := strconv.Atoi(s[3:5])
	if err != nil || hh > 23 || mm > 59 {
		return BucketNone, false
	}
	switch {
	case hh < 12:
		return BucketMorning, true
	case hh < 18:
		return BucketAfternoon, true
	default:
		return BucketEvening, true
	}
}
