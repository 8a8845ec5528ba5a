package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"study-ai/internal/models"
	"study-ai/internal/parser"
)

var (
	ErrTopicRequired   = errors.New("topic is required")
	ErrMessageRequired = errors.New("message is required")
	ErrNoFlashcards    = errors.New("could not extract flashcards from the AI response, try again or change the topic")
	ErrNoQuestions     = errors.New("could not extract quiz questions from the AI response, try again or change the topic")
	ErrEmptyAnswer     = errors.New("the AI returned an empty answer, try rephrasing your question")
)

// ProgressCallback is called during generation to report progress
type ProgressCallback func(step, message string, current, total int)

// GenerateRequest asks for study material about Topic. Context is optional source
// text (for example an uploaded document) the model should base the material on.
type GenerateRequest struct {
	Topic   string
	Context string
}

type FlashcardSet struct {
	Topic      string             `json:"topic"`
	Flashcards []models.Flashcard `json:"flashcards"`
	Raw        string             `json:"flashcards_text"`
	Cached     bool               `json:"cached"`
}

type QuizSet struct {
	models.Quiz
	Raw    string `json:"quiz_text"`
	Cached bool   `json:"cached"`
}

// ChatRequest is one tutoring question. History holds earlier turns of the same session.
type ChatRequest struct {
	Message string
	Context string
	History []models.ChatMessage
}

// StudyService turns topics into parsed flashcards and quizzes and answers tutoring questions.
type StudyService struct {
	ai     *AIService
	cache  ResponseCache
	logger *zap.Logger
}

// NewStudyService wires the generator; cache may be nil to disable caching.
func NewStudyService(ai *AIService, cache ResponseCache, logger *zap.Logger) *StudyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudyService{ai: ai, cache: cache, logger: logger}
}

func (s *StudyService) Model() string {
	return s.ai.Model()
}

// Ping reports whether the language model backend is reachable.
func (s *StudyService) Ping(ctx context.Context) error {
	return s.ai.Ping(ctx)
}

func (s *StudyService) GenerateFlashcards(ctx context.Context, req GenerateRequest) (*FlashcardSet, error) {
	return s.GenerateFlashcardsWithProgress(ctx, req, nil)
}

func (s *StudyService) GenerateFlashcardsWithProgress(ctx context.Context, req GenerateRequest, progress ProgressCallback) (*FlashcardSet, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, ErrTopicRequired
	}

	report(progress, "generate", "Asking the model for flashcards", 10)
	key := cacheKey("flashcards", s.ai.Model(), topic, req.Context)
	raw, cached, err := s.complete(ctx, key, CompletionRequest{
		Prompt:      flashcardPrompt(topic, req.Context),
		Temperature: generationTemperature,
		TopP:        defaultTopP,
	})
	if err != nil {
		return nil, err
	}

	report(progress, "parse", "Extracting flashcards", 80)
	cards := parser.ExtractFlashcards(raw, topic)
	if len(cards) == 0 {
		s.logger.Warn("no flashcards extracted", zap.String("topic", topic), zap.Int("raw_chars", len(raw)))
		return nil, ErrNoFlashcards
	}
	if !cached {
		s.store(ctx, key, raw)
	}

	report(progress, "complete", "Flashcards ready", 100)
	s.logger.Info("flashcards generated", zap.String("topic", topic), zap.Int("count", len(cards)), zap.Bool("cached", cached))
	return &FlashcardSet{Topic: topic, Flashcards: cards, Raw: raw, Cached: cached}, nil
}

func (s *StudyService) GenerateQuiz(ctx context.Context, req GenerateRequest) (*QuizSet, error) {
	return s.GenerateQuizWithProgress(ctx, req, nil)
}

func (s *StudyService) GenerateQuizWithProgress(ctx context.Context, req GenerateRequest, progress ProgressCallback) (*QuizSet, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, ErrTopicRequired
	}

	report(progress, "generate", "Asking the model for quiz questions", 10)
	key := cacheKey("quiz", s.ai.Model(), topic, req.Context)
	raw, cached, err := s.complete(ctx, key, CompletionRequest{
		Prompt:      quizPrompt(topic, req.Context),
		Temperature: generationTemperature,
		TopP:        defaultTopP,
	})
	if err != nil {
		return nil, err
	}

	report(progress, "parse", "Extracting quiz questions", 80)
	quiz := parser.ExtractQuiz(raw, topic)
	if len(quiz.Questions) == 0 {
		s.logger.Warn("no quiz questions extracted", zap.String("topic", topic), zap.Int("raw_chars", len(raw)))
		return nil, ErrNoQuestions
	}
	if !cached {
		s.store(ctx, key, raw)
	}

	report(progress, "complete", "Quiz ready", 100)
	s.logger.Info("quiz generated", zap.String("topic", topic), zap.Int("count", len(quiz.Questions)), zap.Bool("cached", cached))
	return &QuizSet{Quiz: quiz, Raw: raw, Cached: cached}, nil
}

var answerLabel = regexp.MustCompile(`(?i)^answer\s*:\s*`)

// Chat answers a tutoring question. Chat answers are never cached.
func (s *StudyService) Chat(ctx context.Context, req ChatRequest) (string, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return "", ErrMessageRequired
	}

	raw, err := s.ai.Complete(ctx, CompletionRequest{
		System:      tutorSystemPrompt,
		Prompt:      chatPrompt(message, req.Context),
		History:     req.History,
		Temperature: chatTemperature,
		TopP:        defaultTopP,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil {
		return "", err
	}

	answer := strings.TrimSpace(answerLabel.ReplaceAllString(strings.TrimSpace(raw), ""))
	if answer == "" {
		return "", ErrEmptyAnswer
	}
	return answer, nil
}

// complete serves a completion from the cache when possible. Cache failures are
// logged and treated as misses.
func (s *StudyService) complete(ctx context.Context, key string, req CompletionRequest) (string, bool, error) {
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("cache lookup failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			return raw, true, nil
		}
	}

	raw, err := s.ai.Complete(ctx, req)
	if err != nil {
		return "", false, err
	}
	return raw, false, nil
}

// store only runs for completions that parsed into at least one record.
func (s *StudyService) store(ctx context.Context, key, raw string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw); err != nil {
		s.logger.Warn("cache store failed", zap.String("key", key), zap.Error(err))
	}
}

func report(progress ProgressCallback, step, message string, percent int) {
	if progress != nil {
		progress(step, message, percent, 100)
	}
}
