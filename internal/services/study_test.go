package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"study-ai/internal/models"
)

const flashcardReply = "Q: What is photosynthesis?\nA: Plants turning light into energy.\n\nQ: What gas do plants release?\nA: Oxygen."

func TestGenerateFlashcards(t *testing.T) {
	gen := &fakeGenerator{response: flashcardReply}
	study := newStudy(gen, nil)

	var steps []string
	set, err := study.GenerateFlashcardsWithProgress(context.Background(), GenerateRequest{Topic: "  photosynthesis "}, func(step, _ string, current, total int) {
		steps = append(steps, step)
		assert.Equal(t, 100, total)
	})

	require.NoError(t, err)
	assert.Equal(t, "photosynthesis", set.Topic)
	assert.Equal(t, []models.Flashcard{
		{Question: "What is photosynthesis?", Answer: "Plants turning light into energy."},
		{Question: "What gas do plants release?", Answer: "Oxygen."},
	}, set.Flashcards)
	assert.Equal(t, flashcardReply, set.Raw)
	assert.False(t, set.Cached)
	assert.Equal(t, []string{"generate", "parse", "complete"}, steps)

	req := gen.last()
	assert.Contains(t, req.Prompt, "Create exactly 5 educational flashcards about photosynthesis.")
	assert.Equal(t, 0.3, req.Temperature)
	assert.Equal(t, 0.9, req.TopP)
}

func TestGenerateFlashcardsRequiresTopic(t *testing.T) {
	gen := &fakeGenerator{response: flashcardReply}

	_, err := newStudy(gen, nil).GenerateFlashcards(context.Background(), GenerateRequest{Topic: "   "})

	assert.ErrorIs(t, err, ErrTopicRequired)
	assert.Zero(t, gen.calls())
}

func TestGenerateFlashcardsNothingExtracted(t *testing.T) {
	cache := newMemoryCache()
	gen := &fakeGenerator{response: "ok"}

	_, err := newStudy(gen, cache).GenerateFlashcards(context.Background(), GenerateRequest{Topic: "x"})

	assert.ErrorIs(t, err, ErrNoFlashcards)
	assert.Empty(t, cache.entries)
}

func TestGenerateFlashcardsUsesContext(t *testing.T) {
	gen := &fakeGenerator{response: flashcardReply}

	_, err := newStudy(gen, nil).GenerateFlashcards(context.Background(), GenerateRequest{
		Topic:   "cells",
		Context: "Mitochondria\n\nare the   powerhouse.",
	})

	require.NoError(t, err)
	assert.Contains(t, gen.last().Prompt, "Base the content on this study material:\nMitochondria are the powerhouse.")
}

func TestGenerateFlashcardsCache(t *testing.T) {
	cache := newMemoryCache()
	gen := &fakeGenerator{response: flashcardReply}
	study := newStudy(gen, cache)

	first, err := study.GenerateFlashcards(context.Background(), GenerateRequest{Topic: "Photosynthesis"})
	require.NoError(t, err)
	second, err := study.GenerateFlashcards(context.Background(), GenerateRequest{Topic: "photosynthesis"})
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Flashcards, second.Flashcards)
	assert.Equal(t, 1, gen.calls())
}

func TestGenerateFlashcardsCacheErrorIsAMiss(t *testing.T) {
	cache := newMemoryCache()
	cache.getErr = errBoom
	gen := &fakeGenerator{response: flashcardReply}

	set, err := newStudy(gen, cache).GenerateFlashcards(context.Background(), GenerateRequest{Topic: "x"})

	require.NoError(t, err)
	assert.Len(t, set.Flashcards, 2)
	assert.Equal(t, 1, gen.calls())
}

func TestGenerateQuiz(t *testing.T) {
	gen := &fakeGenerator{response: quizText(3)}

	set, err := newStudy(gen, nil).GenerateQuiz(context.Background(), GenerateRequest{Topic: "samples"})

	require.NoError(t, err)
	assert.Equal(t, "samples", set.Topic)
	require.Len(t, set.Questions, 3)
	assert.Equal(t, "B", set.Questions[0].Answer)
	assert.Contains(t, gen.last().Prompt, "Create exactly 3 multiple choice questions about samples.")
}

func TestGenerateQuizNothingExtracted(t *testing.T) {
	gen := &fakeGenerator{response: "I cannot help with that."}

	_, err := newStudy(gen, nil).GenerateQuiz(context.Background(), GenerateRequest{Topic: "x"})

	assert.ErrorIs(t, err, ErrNoQuestions)
}

func TestGenerateBackendErrors(t *testing.T) {
	unavailable := &fakeGenerator{err: ErrAIUnavailable}
	_, err := newStudy(unavailable, nil).GenerateQuiz(context.Background(), GenerateRequest{Topic: "x"})
	assert.ErrorIs(t, err, ErrAIUnavailable)

	slow := &fakeGenerator{response: flashcardReply, delay: time.Second}
	study := NewStudyService(NewAIService(slow, 20*time.Millisecond, nil), nil, nil)
	_, err = study.GenerateFlashcards(context.Background(), GenerateRequest{Topic: "x"})
	assert.ErrorIs(t, err, ErrAITimeout)
}

func TestChat(t *testing.T) {
	gen := &fakeGenerator{response: "  ANSWER: Plants use sunlight.  "}
	history := []models.ChatMessage{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}}

	answer, err := newStudy(gen, nil).Chat(context.Background(), ChatRequest{
		Message: "What is photosynthesis?",
		Context: "biology",
		History: history,
	})

	require.NoError(t, err)
	assert.Equal(t, "Plants use sunlight.", answer)

	req := gen.last()
	assert.Contains(t, req.Prompt, "STUDENT QUESTION: What is photosynthesis?")
	assert.Contains(t, req.Prompt, "CONTEXT/SUBJECT: biology")
	assert.Equal(t, tutorSystemPrompt, req.System)
	assert.Equal(t, history, req.History)
	assert.Equal(t, 0.7, req.Temperature)
	assert.Equal(t, 200, req.MaxTokens)
}

func TestChatValidation(t *testing.T) {
	_, err := newStudy(&fakeGenerator{}, nil).Chat(context.Background(), ChatRequest{Message: " "})
	assert.ErrorIs(t, err, ErrMessageRequired)

	_, err = newStudy(&fakeGenerator{response: "Answer:"}, nil).Chat(context.Background(), ChatRequest{Message: "hi"})
	assert.ErrorIs(t, err, ErrEmptyAnswer)
}

func TestAIServiceDisabled(t *testing.T) {
	ai := NewAIService(nil, time.Second, nil)

	_, err := ai.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	assert.True(t, errors.Is(err, ErrAIUnavailable))
	assert.ErrorIs(t, ai.Ping(context.Background()), ErrAIUnavailable)
	assert.Empty(t, ai.Model())
}

func TestCacheKey(t *testing.T) {
	a := cacheKey("quiz", "phi3:mini", "Photo  Synthesis", "")
	b := cacheKey("quiz", "phi3:mini", " photo synthesis", "")
	c := cacheKey("quiz", "phi3:mini", "photo synthesis", "extra notes")
	d := cacheKey("flashcards", "phi3:mini", "photo synthesis", "")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Regexp(t, `^study:quiz:phi3:mini:[0-9a-f]{24}$`, a)
}

func TestSanitizeForPrompt(t *testing.T) {
	assert.Equal(t, "a b c", sanitizeForPrompt(" a\n b\t c ", 0))
	assert.Equal(t, "abcdefg...", sanitizeForPrompt("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", sanitizeForPrompt("abcdef", 2))
}
