package search

import (
	"reflect"
	"testing"
)

func TestParseWeekdays(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []int
	}{
		{"single day", "週一瑜珈", []int{1}},
		{"alternate prefix", "星期二的課", []int{2}},
		{"simplified prefix", "周五有氧", []int{5}},
		{"multi-day run", "周一三五的游泳課", []int{1, 3, 5}},
		{"sunday char", "禮拜日", []int{0}},
		{"sunday alt char", "星期天", []int{0}},
		{"weekday aggregate", "平日晚上", []int{1, 2, 3, 4, 5}},
		{"weekend aggregate", "週末的課", []int{0, 6}},
		{"holiday aggregate", "假日親子課程", []int{0, 6}},
		{"no signal", "我想學游泳", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ParseFilters(tt.query)
			got := f.WeekdayList()
			if len(got) == 0 {
				got = nil
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseFilters(%q).WeekdayList() = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestParseTimeBucket(t *testing.T) {
	tests := []struct {
		query string
		want  TimeBucket
	}{
		{"早上的瑜珈", BucketMorning},
		{"上午游泳", BucketMorning},
		{"中午的課", BucketAfternoon},
		{"下午有氧", BucketAfternoon},
		{"晚上跳舞", BucketEvening},
		{"夜間班", BucketEvening},
		{"游泳課", BucketNone},
	}

	for _, tt := range tests {
		if got := ParseFilters(tt.query).Time; got != tt.want {
			t.Errorf("ParseFilters(%q).Time = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestParseCodeTokens(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"114A47 課程", []string{"114A47"}},
		{"我要找 sg01a 的課", []string{"SG01A"}},
		{"abc 123", nil},          // neither token mixes letters and digits
		{"A1", nil},               // too short
		{"報名114A47和115B02", []string{"114A47", "115B02"}},
	}

	for _, tt := range tests {
		got := ParseFilters(tt.query).Codes
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseFilters(%q).Codes = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestMatchScheduleWeekdays(t *testing.T) {
	mon := Filters{Weekdays: map[int]bool{1: true, 3: true, 5: true}}
	if !mon.MatchSchedule("[1][3][5]", "") {
		t.Error("schedule [1][3][5] should match weekday set {1,3,5}")
	}

	tue := Filters{Weekdays: map[int]bool{2: true, 4: true, 6: true}}
	if tue.MatchSchedule("[1][3][5]", "") {
		t.Error("schedule [1][3][5] should not match weekday set {2,4,6}")
	}

	for _, schedule := range []string{"", "none", "None", " none "} {
		if mon.MatchSchedule(schedule, "") {
			t.Errorf("schedule %q should never match a weekday filter", schedule)
		}
	}

	empty := Filters{}
	if !empty.MatchSchedule("", "") {
		t.Error("empty filter should match anything")
	}
}

func TestMatchScheduleTimeBuckets(t *testing.T) {
	tests := []struct {
		time   string
		bucket TimeBucket
		want   bool
	}{
		{"11:59", BucketMorning, true},
		{"11:59", BucketAfternoon, false},
		{"12:00", BucketAfternoon, true},
		{"12:00", BucketMorning, false},
		{"17:59", BucketAfternoon, true},
		{"18:00", BucketEvening, true},
		{"18:00", BucketAfternoon, false},
		{"09:00", BucketMorning, true},
		{"not-a-time", BucketMorning, false},
		{"", BucketEvening, false},
	}

	for _, tt := range tests {
		f := Filters{Time: tt.bucket}
		if got := f.MatchSchedule("", tt.time); got != tt.want {
			t.Errorf("time %q against bucket %q = %v, want %v", tt.time, tt.bucket, got, tt.want)
		}
	}
}

func TestFiltersEmpty(t *testing.T) {
	if !ParseFilters("我想學游泳").Empty() {
		t.Error("query with no structured signal should yield empty filters")
	}
	if ParseFilters("週一早上").Empty() {
		t.Error("weekday+time query should not yield empty filters")
	}
	if ParseFilters("114A47").Empty() {
		t.Error("code query should not yield empty filters")
	}
}
