package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"study-ai/internal/models"
)

var (
	// ErrAIUnavailable is returned when the language model backend cannot be reached.
	ErrAIUnavailable = errors.New("AI service is not available")
	// ErrAITimeout is returned when the backend does not answer in time.
	ErrAITimeout = errors.New("AI is taking too long to respond")
)

// CompletionRequest is a backend-neutral completion call. History, when set, is
// sent as prior chat turns before Prompt.
type CompletionRequest struct {
	System      string
	Prompt      string
	History     []models.ChatMessage
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// TextGenerator is an opaque provider of raw completion text.
type TextGenerator interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Ping(ctx context.Context) error
	Model() string
}

// AIService applies timeouts, error classification and logging on top of a TextGenerator.
type AIService struct {
	gen     TextGenerator
	timeout time.Duration
	logger  *zap.Logger
}

func NewAIService(gen TextGenerator, timeout time.Duration, logger *zap.Logger) *AIService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AIService{gen: gen, timeout: timeout, logger: logger}
}

func (s *AIService) disabled() bool {
	return s == nil || s.gen == nil
}

func (s *AIService) Model() string {
	if s.disabled() {
		return ""
	}
	return s.gen.Model()
}

// Ping reports whether the backend is reachable.
func (s *AIService) Ping(ctx context.Context) error {
	if s.disabled() {
		return ErrAIUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.classify(ctx, s.gen.Ping(ctx))
}

// Complete returns the full completion text for req.
func (s *AIService) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if s.disabled() {
		return "", ErrAIUnavailable
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := s.gen.Complete(ctx, req)
	if err != nil {
		err = s.classify(ctx, err)
		s.logger.Warn("completion failed",
			zap.String("model", s.gen.Model()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return "", err
	}

	s.logger.Debug("completion finished",
		zap.String("model", s.gen.Model()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("chars", len(text)),
	)
	return text, nil
}

// classify makes sure timeouts surface as ErrAITimeout even when the backend
// did not wrap the context error itself.
func (s *AIService) classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAITimeout) || errors.Is(err, ErrAIUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrAITimeout, err)
	}
	return err
}

func sanitizeForPrompt(input string, limit int) string {
	collapsed := strings.Join(strings.Fields(strings.TrimSpace(input)), " ")
	if limit <= 0 {
		return collapsed
	}
	runes := []rune(collapsed)
	if len(runes) <= limit {
		return collapsed
	}
	if limit > 3 {
		return string(runes[:limit-3]) + "..."
	}
	return string(runes[:limit])
}
