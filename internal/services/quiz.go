package services

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"study-ai/internal/models"
)

const (
	GradeExcellent = "excellent"
	GradeGood      = "good"
	GradePoor      = "poor"

	notAnswered   = "Not answered"
	noExplanation = "No explanation provided."
)

// UnansweredError is returned by Grade when some questions have no selection.
type UnansweredError struct {
	Count int
}

func (e *UnansweredError) Error() string {
	if e.Count == 1 {
		return "please answer all questions before submitting (1 unanswered)"
	}
	return fmt.Sprintf("please answer all questions before submitting (%d unanswered)", e.Count)
}

// QuizService grades submitted quizzes and keeps a history of attempts.
type QuizService struct {
	db *sql.DB
}

func NewQuizService(db *sql.DB) *QuizService {
	return &QuizService{db: db}
}

// Evaluate grades a single question. selected is an option letter; an empty or
// unknown letter counts as not answered.
func (s *QuizService) Evaluate(question models.QuizQuestion, selected string) models.QuizResult {
	result := models.QuizResult{
		Question:      question.Question,
		UserAnswer:    notAnswered,
		CorrectAnswer: optionText(question, question.Answer),
		Explanation:   question.Explanation,
	}
	if result.Explanation == "" {
		result.Explanation = noExplanation
	}

	selected = strings.ToUpper(strings.TrimSpace(selected))
	if idx := models.OptionIndex(selected); idx >= 0 && idx < len(question.Options) {
		result.UserAnswer = question.Options[idx]
		result.Correct = selected == strings.ToUpper(question.Answer)
	}
	return result
}

// Grade scores a quiz. answers maps question index to the selected letter and
// must cover every question.
func (s *QuizService) Grade(quiz models.Quiz, answers map[int]string) (models.QuizReport, error) {
	missing := 0
	for i := range quiz.Questions {
		if models.OptionIndex(strings.TrimSpace(answers[i])) < 0 {
			missing++
		}
	}
	if missing > 0 {
		return models.QuizReport{}, &UnansweredError{Count: missing}
	}

	report := models.QuizReport{
		Topic:   quiz.Topic,
		Results: make([]models.QuizResult, 0, len(quiz.Questions)),
		Total:   len(quiz.Questions),
	}
	for i, q := range quiz.Questions {
		result := s.Evaluate(q, answers[i])
		if result.Correct {
			report.Correct++
		}
		report.Results = append(report.Results, result)
	}
	report.Score = scorePercent(report.Correct, report.Total)
	report.Grade = gradeFor(report.Score)
	return report, nil
}

func scorePercent(correct, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}

func gradeFor(score int) string {
	switch {
	case score >= 80:
		return GradeExcellent
	case score >= 60:
		return GradeGood
	default:
		return GradePoor
	}
}

func optionText(q models.QuizQuestion, letter string) string {
	idx := models.OptionIndex(letter)
	if idx < 0 || idx >= len(q.Options) {
		return letter
	}
	return q.Options[idx]
}

// SaveAttempt records a graded quiz.
func (s *QuizService) SaveAttempt(ctx context.Context, report models.QuizReport) (*models.QuizAttempt, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO quiz_attempts (topic, correct, total, score, grade, created_at)
		VALUES (?, ?, ?, ?, ?, ?);
	`, report.Topic, report.Correct, report.Total, report.Score, report.Grade, now)
	if err != nil {
		return nil, fmt.Errorf("insert quiz attempt: %w", err)
	}
	id, _ := res.LastInsertId()

	return &models.QuizAttempt{
		ID:        id,
		Topic:     report.Topic,
		Correct:   report.Correct,
		Total:     report.Total,
		Score:     report.Score,
		Grade:     report.Grade,
		CreatedAt: now,
	}, nil
}

// ListAttempts returns the most recent attempts first.
func (s *QuizService) ListAttempts(ctx context.Context, limit int) ([]models.QuizAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, correct, total, score, grade, created_at
		FROM quiz_attempts
		ORDER BY created_at DESC, id DESC
		LIMIT ?;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list quiz attempts: %w", err)
	}
	defer rows.Close()

	attempts := []models.QuizAttempt{}
	for rows.Next() {
		var a models.QuizAttempt
		if err := rows.Scan(&a.ID, &a.Topic, &a.Correct, &a.Total, &a.Score, &a.Grade, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan quiz attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quiz attempts: %w", err)
	}
	return attempts, nil
}
