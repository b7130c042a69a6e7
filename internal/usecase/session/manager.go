// Package session implements the conversation manager: message history,
// feedback-driven preference tracking, query refinement, and follow-up
// question selection.
package session

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classnav/classnav/internal/domain/session"
)

const maxFollowUps = 3

// repo persists sessions.
type repo interface {
	Get(ctx context.Context, id string) (*session.Session, error)
	Save(ctx context.Context, s *session.Session) error
	Delete(ctx context.Context, id string) error
}

// Manager owns conversation state transitions.
type Manager struct {
	repo   repo
	logger *zap.Logger
}

// NewManager creates a conversation manager.
func NewManager(r repo, logger *zap.Logger) *Manager {
	return &Manager{repo: r, logger: logger}
}

// Create starts a new session. An empty id gets a generated UUID.
func (m *Manager) Create(ctx context.Context, id string) (*session.Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	s := &session.Session{ID: id, CreatedAt: time.Now()}
	if err := m.repo.Save(ctx, s); err != nil {
		return nil, err
	}
	m.logger.Info("session created", zap.String("session_id", s.ID))
	return s, nil
}

// Get loads an existing session.
func (m *Manager) Get(ctx context.Context, id string) (*session.Session, error) {
	return m.repo.Get(ctx, id)
}

// GetOrCreate loads a session or starts one under the given id.
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*session.Session, error) {
	if id != "" {
		if s, err := m.repo.Get(ctx, id); err == nil {
			return s, nil
		}
	}
	return m.Create(ctx, id)
}

// AddMessage appends one conversation entry and persists the session.
func (m *Manager) AddMessage(ctx context.Context, s *session.Session, kind session.MessageKind, content string, courses []string) error {
	s.Messages = append(s.Messages, session.Message{
		Timestamp: time.Now(),
		Kind:      kind,
		Content:   content,
		Courses:   courses,
	})
	return m.repo.Save(ctx, s)
}

// AddFeedback records a user reaction, extends the rejected-course list,
// and updates the preference flags inferred from the stated reasons.
func (m *Manager) AddFeedback(ctx context.Context, s *session.Session, kind session.FeedbackKind, content string, rejected, reasons []string) error {
	s.Feedback = append(s.Feedback, session.Feedback{
		Timestamp:       time.Now(),
		Kind:            kind,
		Content:         content,
		RejectedCourses: rejected,
		Reasons:         reasons,
	})
	s.RejectedCourses = append(s.RejectedCourses, rejected...)
	applyReasons(&s.Preferences, reasons)
	return m.repo.Save(ctx, s)
}

// applyReasons flips the sensitivity flag matching each stated reason.
func applyReasons(p *session.Preferences, reasons []string) {
	for _, reason := range reasons {
		switch {
		case strings.Contains(reason, "時間"):
			p.TimeSensitive = true
		case strings.Contains(reason, "費用"), strings.Contains(reason, "價格"):
			p.PriceSensitive = true
		case strings.Contains(reason, "難度"), strings.Contains(reason, "程度"):
			p.DifficultySensitive = true
		case strings.Contains(reason, "地點"), strings.Contains(reason, "位置"):
			p.LocationSensitive = true
		case strings.Contains(reason, "教師"), strings.Contains(reason, "老師"):
			p.InstructorSensitive = true
		}
	}
}

// Clear removes a session entirely.
func (m *Manager) Clear(ctx context.Context, id string) error {
	return m.repo.Delete(ctx, id)
}

// RefineQuery augments a query with hints from the accumulated preferences.
// The retriever treats the refined string as an ordinary query.
func (m *Manager) RefineQuery(s *session.Session, query string) string {
	refined := query
	if s.Preferences.TimeSensitive {
		refined += " 時間彈性"
	}
	if s.Preferences.PriceSensitive {
		refined += " 經濟實惠"
	}
	if s.Preferences.DifficultySensitive {
		refined += " 適合程度"
	}
	return refined
}

// ShouldFollowUp reports whether the latest feedback warrants a follow-up
// question.
func (m *Manager) ShouldFollowUp(s *session.Session) bool {
	fb := s.LatestFeedback()
	if fb == nil {
		return false
	}
	return fb.Kind == session.FeedbackDissatisfied || fb.Kind == session.FeedbackPartiallySatisfied
}

// FollowUpQuestions picks up to three follow-up questions keyed off the
// feedback wording, with generic fallbacks.
func (m *Manager) FollowUpQuestions(feedback string) []string {
	var questions []string

	if strings.Contains(feedback, "不適合") || strings.Contains(feedback, "不符合") {
		questions = append(questions,
			"能告訴我具體哪方面不符合您的需求嗎？",
			"是時間安排、費用、難度程度，還是其他方面的問題？",
		)
	}
	if strings.Contains(feedback, "時間") {
		questions = append(questions,
			"您比較偏好什麼時段的課程？",
			"是希望平日還是假日的課程？",
		)
	}
	if strings.Contains(feedback, "費用") || strings.Contains(feedback, "貴") {
		questions = append(questions,
			"您希望的課程費用大概在什麼範圍內？",
			"您是否考慮體驗課程或優惠方案？",
		)
	}
	if strings.Contains(feedback, "難度") {
		questions = append(questions,
			"您希望的課程難度如何？初學者、進階還是專業級？",
			"您之前有相關經驗嗎？",
		)
	}

	if len(questions) == 0 {
		questions = []string{
			"能更詳細地描述您理想中的課程嗎？",
			"除了剛才推薦的課程，您還有其他特殊需求嗎？",
			"您最看重課程的哪個方面？例如教學品質、價格、時間彈性等？",
		}
	}

	if len(questions) > maxFollowUps {
		questions = questions[:maxFollowUps]
	}
	return questions
}
