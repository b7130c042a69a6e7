package chi

import (
	"github.com/classnav/classnav/internal/domain/search"
	"github.com/classnav/classnav/internal/usecase/grounding"
)

type recommendRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

type recommendResponse struct {
	Query           string           `json:"query"`
	Recommendation  grounding.Answer `json:"recommendation"`
	Retrieved       []courseItem     `json:"retrieved_courses"`
	FiltersHonored  bool             `json:"filters_honored"`
	Success         bool             `json:"success"`
}

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

type searchResponse struct {
	Query          string       `json:"query"`
	Results        []courseItem `json:"results"`
	Total          int          `json:"total"`
	FiltersHonored bool         `json:"filters_honored"`
}

type chatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID      string           `json:"session_id"`
	Recommendation grounding.Answer `json:"recommendation"`
	Retrieved      []courseItem     `json:"retrieved_courses"`
	FiltersHonored bool             `json:"filters_honored"`
	Success        bool             `json:"success"`
}

type feedbackRequest struct {
	SessionID       string   `json:"session_id"`
	Kind            string   `json:"kind"`
	Content         string   `json:"content"`
	RejectedCourses []string `json:"rejected_courses,omitempty"`
	Reasons         []string `json:"reasons,omitempty"`
}

type feedbackResponse struct {
	SessionID string   `json:"session_id"`
	FollowUps []string `json:"follow_up_questions,omitempty"`
}

type categoriesResponse struct {
	Categories []string `json:"categories"`
	Total      int      `json:"total"`
}

type categoryCoursesResponse struct {
	Category string       `json:"category"`
	Courses  []courseItem `json:"courses"`
	Total    int          `json:"total"`
}

type courseItem struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Category    string            `json:"category"`
	Description string            `json:"description"`
	Score       float64           `json:"similarity_score"`
	SearchType  string            `json:"search_type"`
	Meta        map[string]string `json:"metadata,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func courseItemsFromResults(results []search.Result) []courseItem {
	items := make([]courseItem, len(results))
	for i, res := range results {
		items[i] = courseItem{
			ID:          res.ID,
			Title:       res.Title,
			Category:    res.Category,
			Description: res.Description,
			Score:       res.Score,
			SearchType:  string(res.Source),
			Meta:        metaFields(res),
		}
	}
	return items
}

func metaFields(res search.Result) map[string]string {
	m := make(map[string]string)
	put := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	put("teacher", res.Meta.Teacher)
	put("schedule", res.Meta.Schedule)
	put("time", res.Meta.Time)
	put("fee", res.Meta.Fee)
	put("trial_fee", res.Meta.TrialFee)
	put("age_limit", res.Meta.AgeLimit)
	put("code", res.Meta.Code)
	put("room", res.Meta.Room)
	put("weeks", res.Meta.Weeks)
	for k, v := range res.Meta.Extra {
		put(k, v)
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
