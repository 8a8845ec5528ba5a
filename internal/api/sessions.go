package api

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"study-ai/internal/models"
)

const maxChatHistory = 20

var (
	errSessionNotFound = errors.New("session not found")
	errNoSessionCards  = errors.New("session has no flashcards")
	errNoSessionQuiz   = errors.New("session has no quiz")
	errQuizSubmitted   = errors.New("quiz already submitted")

	errInvalidSelection = errors.New("invalid answer selection")
)

// Session is the per-browser study state: the current flashcard deck and
// position, the current quiz with the user's selections, and the chat transcript.
type Session struct {
	ID         string               `json:"id"`
	Topic      string               `json:"topic,omitempty"`
	Flashcards []models.Flashcard   `json:"flashcards"`
	CardIndex  int                  `json:"cardIndex"`
	Quiz       *models.Quiz         `json:"quiz,omitempty"`
	Answers    map[int]string       `json:"answers"`
	Report     *models.QuizReport   `json:"report,omitempty"`
	Chat       []models.ChatMessage `json:"chat"`
	CreatedAt  time.Time            `json:"createdAt"`
	UpdatedAt  time.Time            `json:"updatedAt"`
}

// SessionManager stores sessions in memory. Every read returns a deep copy.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewSessionManager drops sessions idle for longer than ttl.
func NewSessionManager(ttl time.Duration) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

func (m *SessionManager) Create() *Session {
	now := time.Now().UTC()
	session := &Session{
		ID:         uuid.NewString(),
		Flashcards: []models.Flashcard{},
		Answers:    map[int]string{},
		Chat:       []models.ChatMessage{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	m.mu.Lock()
	m.pruneLocked(now)
	m.sessions[session.ID] = session
	m.mu.Unlock()

	return session.clone()
}

// Get returns a copy of the session. Sessions idle past the ttl are treated as gone.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok || m.expired(session, time.Now().UTC()) {
		return nil, false
	}
	return session.clone(), true
}

func (m *SessionManager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// SetFlashcards replaces the session deck and rewinds to the first card.
func (m *SessionManager) SetFlashcards(id, topic string, cards []models.Flashcard) (*Session, error) {
	return m.update(id, func(s *Session) error {
		s.Topic = topic
		s.Flashcards = append([]models.Flashcard{}, cards...)
		s.CardIndex = 0
		return nil
	})
}

// MoveCard shifts the current card by delta, clamped to the deck bounds.
func (m *SessionManager) MoveCard(id string, delta int) (*Session, error) {
	return m.update(id, func(s *Session) error {
		if len(s.Flashcards) == 0 {
			return errNoSessionCards
		}
		s.CardIndex = min(max(s.CardIndex+delta, 0), len(s.Flashcards)-1)
		return nil
	})
}

func (m *SessionManager) ClearFlashcards(id string) (*Session, error) {
	return m.update(id, func(s *Session) error {
		s.Flashcards = []models.Flashcard{}
		s.CardIndex = 0
		return nil
	})
}

// SetQuiz replaces the session quiz and discards earlier selections and results.
func (m *SessionManager) SetQuiz(id string, quiz models.Quiz) (*Session, error) {
	return m.update(id, func(s *Session) error {
		q := cloneQuiz(quiz)
		s.Topic = quiz.Topic
		s.Quiz = &q
		s.Answers = map[int]string{}
		s.Report = nil
		return nil
	})
}

// SelectAnswer records the option letter chosen for a question. Choosing again replaces it.
func (m *SessionManager) SelectAnswer(id string, question int, option string) (*Session, error) {
	return m.update(id, func(s *Session) error {
		if s.Quiz == nil {
			return errNoSessionQuiz
		}
		if s.Report != nil {
			return errQuizSubmitted
		}
		if question < 0 || question >= len(s.Quiz.Questions) {
			return fmt.Errorf("%w: question %d out of range", errInvalidSelection, question)
		}
		if models.OptionIndex(option) < 0 {
			return fmt.Errorf("%w: option %q must be one of A, B, C, D", errInvalidSelection, option)
		}
		s.Answers[question] = models.OptionLetter(models.OptionIndex(option))
		return nil
	})
}

// GradeFunc scores a quiz given the selected letter per question index.
type GradeFunc func(quiz models.Quiz, answers map[int]string) (models.QuizReport, error)

// SubmitQuiz grades the current quiz and stores the report in one step, so a quiz
// is graded at most once and the report always belongs to the quiz it scores.
func (m *SessionManager) SubmitQuiz(id string, grade GradeFunc) (*Session, error) {
	return m.update(id, func(s *Session) error {
		if s.Quiz == nil {
			return errNoSessionQuiz
		}
		if s.Report != nil {
			return errQuizSubmitted
		}
		report, err := grade(cloneQuiz(*s.Quiz), s.clone().Answers)
		if err != nil {
			return err
		}
		report.Results = append([]models.QuizResult(nil), report.Results...)
		s.Report = &report
		return nil
	})
}

func (m *SessionManager) ClearQuiz(id string) (*Session, error) {
	return m.update(id, func(s *Session) error {
		s.Quiz = nil
		s.Answers = map[int]string{}
		s.Report = nil
		return nil
	})
}

// History returns the chat transcript used as context for the next question.
func (m *SessionManager) History(id string) ([]models.ChatMessage, error) {
	session, ok := m.Get(id)
	if !ok {
		return nil, errSessionNotFound
	}
	return session.Chat, nil
}

// AppendChat adds messages to the transcript, keeping the most recent maxChatHistory.
func (m *SessionManager) AppendChat(id string, messages ...models.ChatMessage) (*Session, error) {
	return m.update(id, func(s *Session) error {
		s.Chat = append(s.Chat, messages...)
		if extra := len(s.Chat) - maxChatHistory; extra > 0 {
			s.Chat = append([]models.ChatMessage{}, s.Chat[extra:]...)
		}
		return nil
	})
}

func (m *SessionManager) update(id string, fn func(s *Session) error) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, errSessionNotFound
	}
	if m.expired(session, time.Now().UTC()) {
		delete(m.sessions, id)
		return nil, errSessionNotFound
	}
	if err := fn(session); err != nil {
		return nil, err
	}
	session.UpdatedAt = time.Now().UTC()
	return session.clone(), nil
}

func (m *SessionManager) pruneLocked(now time.Time) {
	if m.ttl <= 0 {
		return
	}
	for id, session := range m.sessions {
		if m.expired(session, now) {
			delete(m.sessions, id)
		}
	}
}

func (m *SessionManager) expired(session *Session, now time.Time) bool {
	return m.ttl > 0 && now.Sub(session.UpdatedAt) > m.ttl
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Flashcards = append([]models.Flashcard{}, s.Flashcards...)
	c.Chat = append([]models.ChatMessage{}, s.Chat...)
	c.Answers = make(map[int]string, len(s.Answers))
	for k, v := range s.Answers {
		c.Answers[k] = v
	}
	if s.Quiz != nil {
		q := cloneQuiz(*s.Quiz)
		c.Quiz = &q
	}
	if s.Report != nil {
		r := *s.Report
		r.Results = append([]models.QuizResult(nil), s.Report.Results...)
		c.Report = &r
	}
	return &c
}

func cloneQuiz(q models.Quiz) models.Quiz {
	out := models.Quiz{Topic: q.Topic, Questions: make([]models.QuizQuestion, len(q.Questions))}
	for i, question := range q.Questions {
		question.Options = append([]string(nil), question.Options...)
		out.Questions[i] = question
	}
	return out
}
