package models

import (
	"database/sql"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"
)

// OptionCount is the number of choices every quiz question carries.
const OptionCount = 4

// Flashcard is a question/answer pair produced by the response parser.
type Flashcard struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// QuizQuestion is a four-option multiple-choice item. Options are keyed A-D by position.
type QuizQuestion struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation"`
}

type Quiz struct {
	Topic     string         `json:"topic"`
	Questions []QuizQuestion `json:"questions"`
}

// QuizResult is the graded outcome for a single question. It is computed on submit and never stored.
type QuizResult struct {
	Question      string `json:"question"`
	UserAnswer    string `json:"userAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
	Correct       bool   `json:"isCorrect"`
	Explanation   string `json:"explanation"`
}

type QuizReport struct {
	Topic   string       `json:"topic"`
	Results []QuizResult `json:"results"`
	Correct int          `json:"correct"`
	Total   int          `json:"total"`
	Score   int          `json:"score"`
	Grade   string       `json:"grade"`
}

type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// OptionLetter maps a zero-based option index to its letter key.
func OptionLetter(index int) string {
	if index < 0 || index >= 26 {
		return ""
	}
	return string(rune('A' + index))
}

// OptionIndex maps a letter key back to its index, or -1 when it is not one of A-D.
func OptionIndex(letter string) int {
	if len(letter) != 1 {
		return -1
	}
	c := letter[0]
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	idx := int(c - 'A')
	if idx < 0 || idx >= OptionCount {
		return -1
	}
	return idx
}

type Deck struct {
	ID        int64     `json:"id"`
	Topic     string    `json:"topic"`
	Model     string    `json:"model,omitempty"`
	CardCount int       `json:"cardCount"`
	CreatedAt time.Time `json:"createdAt"`
}

type Card struct {
	ID            int64
	DeckID        int64
	Front         string
	Back          string
	Due           sql.NullTime
	Stability     float64
	Difficulty    float64
	ElapsedDays   int
	ScheduledDays int
	Reps          int
	Lapses        int
	State         int
	LastReview    sql.NullTime
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeckTopic     sql.NullString
}

type ReviewLog struct {
	ID            int64
	CardID        int64
	Rating        int
	ScheduledDays int
	ElapsedDays   int
	State         int
	ReviewedAt    time.Time
}

type QuizAttempt struct {
	ID        int64     `json:"id"`
	Topic     string    `json:"topic"`
	Correct   int       `json:"correct"`
	Total     int       `json:"total"`
	Score     int       `json:"score"`
	Grade     string    `json:"grade"`
	CreatedAt time.Time `json:"createdAt"`
}

type Document struct {
	ID           int64
	OriginalName string
	StoredPath   string
	PageCount    int
	Text         string
	UploadedAt   time.Time
}

func (c *Card) ToFSRSCard() fsrs.Card {
	card := fsrs.Card{
		Stability:     c.Stability,
		Difficulty:    c.Difficulty,
		ElapsedDays:   uint64(max(c.ElapsedDays, 0)),
		ScheduledDays: uint64(max(c.ScheduledDays, 0)),
		Reps:          uint64(max(c.Reps, 0)),
		Lapses:        uint64(max(c.Lapses, 0)),
		State:         fsrs.State(max(c.State, 0)),
	}
	if c.Due.Valid {
		card.Due = c.Due.Time
	}
	if c.LastReview.Valid {
		card.LastReview = c.LastReview.Time
	}
	return card
}

func (c *Card) ApplyFSRSCard(f fsrs.Card) {
	c.Due = sql.NullTime{Time: f.Due, Valid: !f.Due.IsZero()}
	c.Stability = f.Stability
	c.Difficulty = f.Difficulty
	c.ElapsedDays = int(f.ElapsedDays)
	c.ScheduledDays = int(f.ScheduledDays)
	c.Reps = int(f.Reps)
	c.Lapses = int(f.Lapses)
	c.State = int(f.State)
	c.LastReview = sql.NullTime{Time: f.LastReview, Valid: !f.LastReview.IsZero()}
}
