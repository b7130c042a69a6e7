// Package session defines conversation session types shared between the
// session store and the conversation manager.
package session

import "time"

// MessageKind classifies a conversation entry.
type MessageKind string

const (
	KindUserQuery    MessageKind = "user_query"
	KindUserMessage  MessageKind = "user_message"
	KindUserFeedback MessageKind = "user_feedback"
	KindResponse     MessageKind = "system_response"
)

// FeedbackKind classifies how satisfied the user was with a response.
type FeedbackKind string

const (
	FeedbackDissatisfied       FeedbackKind = "dissatisfied"
	FeedbackPartiallySatisfied FeedbackKind = "partially_satisfied"
	FeedbackSatisfied          FeedbackKind = "satisfied"
)

// Message is one conversation entry. Courses lists the titles recommended
// alongside a response message.
type Message struct {
	Timestamp time.Time   `json:"timestamp"`
	Kind      MessageKind `json:"kind"`
	Content   string      `json:"content"`
	Courses   []string    `json:"courses,omitempty"`
}

// Feedback is one recorded user reaction to a recommendation.
type Feedback struct {
	Timestamp       time.Time    `json:"timestamp"`
	Kind            FeedbackKind `json:"kind"`
	Content         string       `json:"content"`
	RejectedCourses []string     `json:"rejected_courses,omitempty"`
	Reasons         []string     `json:"reasons,omitempty"`
}

// Preferences holds sensitivity flags inferred from feedback reasons.
type Preferences struct {
	TimeSensitive       bool `json:"time_sensitive,omitempty"`
	PriceSensitive      bool `json:"price_sensitive,omitempty"`
	DifficultySensitive bool `json:"difficulty_sensitive,omitempty"`
	LocationSensitive   bool `json:"location_sensitive,omitempty"`
	InstructorSensitive bool `json:"instructor_sensitive,omitempty"`
}

// Session is one conversation, persisted as a single JSON blob.
type Session struct {
	ID              string      `json:"id"`
	CreatedAt       time.Time   `json:"created_at"`
	Messages        []Message   `json:"messages"`
	Preferences     Preferences `json:"preferences"`
	RejectedCourses []string    `json:"rejected_courses,omitempty"`
	Feedback        []Feedback  `json:"feedback,omitempty"`
}

// RecentMessages returns up to n of the newest messages, oldest first.
func (s *Session) RecentMessages(n int) []Message {
	if len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// LatestFeedback returns the most recent feedback entry, or nil.
func (s *Session) LatestFeedback() *Feedback {
	if len(s.Feedback) == 0 {
		return nil
	}
	return &s.Feedback[len(s.Feedback)-1]
}
