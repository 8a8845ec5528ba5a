package api

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"study-ai/internal/models"
)

func sampleSessionQuiz() models.Quiz {
	return models.Quiz{
		Topic: "math",
		Questions: []models.QuizQuestion{
			{Question: "1+1?", Options: []string{"1", "2", "3", "4"}, Answer: "B"},
		},
	}
}

func TestSessionSnapshotsAreCopies(t *testing.T) {
	m := NewSessionManager(time.Hour)
	session := m.Create()

	_, err := m.SetFlashcards(session.ID, "plants", []models.Flashcard{{Question: "q1", Answer: "a1"}})
	require.NoError(t, err)

	got, ok := m.Get(session.ID)
	require.True(t, ok)
	got.Flashcards[0].Question = "mutated"
	got.Answers[0] = "A"

	again, _ := m.Get(session.ID)
	assert.Equal(t, "q1", again.Flashcards[0].Question)
	assert.Empty(t, again.Answers)
}

func TestSessionQuizLifecycle(t *testing.T) {
	m := NewSessionManager(time.Hour)
	id := m.Create().ID

	_, err := m.SelectAnswer(id, 0, "A")
	assert.ErrorIs(t, err, errNoSessionQuiz)

	_, err = m.SetQuiz(id, sampleSessionQuiz())
	require.NoError(t, err)

	_, err = m.SelectAnswer(id, 0, "z")
	assert.ErrorIs(t, err, errInvalidSelection)

	session, err := m.SelectAnswer(id, 0, "a")
	require.NoError(t, err)
	assert.Equal(t, "A", session.Answers[0])

	session, err = m.SelectAnswer(id, 0, "b")
	require.NoError(t, err)
	assert.Equal(t, "B", session.Answers[0])

	errGrade := errors.New("grade failed")
	_, err = m.SubmitQuiz(id, func(models.Quiz, map[int]string) (models.QuizReport, error) {
		return models.QuizReport{}, errGrade
	})
	assert.ErrorIs(t, err, errGrade)
	session, _ = m.Get(id)
	assert.Nil(t, session.Report)

	session, err = m.SubmitQuiz(id, func(quiz models.Quiz, answers map[int]string) (models.QuizReport, error) {
		assert.Equal(t, "math", quiz.Topic)
		assert.Equal(t, map[int]string{0: "B"}, answers)
		return models.QuizReport{Topic: quiz.Topic, Correct: 1, Total: 1, Score: 100}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, session.Report)
	assert.Equal(t, 100, session.Report.Score)

	_, err = m.SubmitQuiz(id, func(models.Quiz, map[int]string) (models.QuizReport, error) {
		t.Fatal("graded twice")
		return models.QuizReport{}, nil
	})
	assert.ErrorIs(t, err, errQuizSubmitted)
	_, err = m.SelectAnswer(id, 0, "A")
	assert.ErrorIs(t, err, errQuizSubmitted)

	// a fresh quiz clears the previous report and selections
	session, err = m.SetQuiz(id, sampleSessionQuiz())
	require.NoError(t, err)
	assert.Nil(t, session.Report)
	assert.Empty(t, session.Answers)
}

func TestSessionSubmitQuizOnce(t *testing.T) {
	m := NewSessionManager(time.Hour)
	id := m.Create().ID
	_, err := m.SetQuiz(id, sampleSessionQuiz())
	require.NoError(t, err)

	var (
		wg     sync.WaitGroup
		graded atomic.Int32
		ok     atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.SubmitQuiz(id, func(quiz models.Quiz, _ map[int]string) (models.QuizReport, error) {
				graded.Add(1)
				return models.QuizReport{Topic: quiz.Topic}, nil
			})
			if err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, graded.Load())
	assert.EqualValues(t, 1, ok.Load())
}

func TestSessionExpiresOnRead(t *testing.T) {
	m := NewSessionManager(time.Minute)
	id := m.Create().ID
	m.mu.Lock()
	m.sessions[id].UpdatedAt = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	_, ok := m.Get(id)
	assert.False(t, ok)
	_, err := m.History(id)
	assert.ErrorIs(t, err, errSessionNotFound)
	_, err = m.AppendChat(id, models.ChatMessage{Role: "user", Content: "hi"})
	assert.ErrorIs(t, err, errSessionNotFound)

	m.mu.RLock()
	_, stored := m.sessions[id]
	m.mu.RUnlock()
	assert.False(t, stored)
}

func TestSessionChatHistoryIsBounded(t *testing.T) {
	m := NewSessionManager(time.Hour)
	id := m.Create().ID

	for i := 0; i < maxChatHistory+4; i++ {
		_, err := m.AppendChat(id, models.ChatMessage{Role: "user", Content: string(rune('a' + i))})
		require.NoError(t, err)
	}

	history, err := m.History(id)
	require.NoError(t, err)
	require.Len(t, history, maxChatHistory)
	assert.Equal(t, "e", history[0].Content)

	_, err = m.History("missing")
	assert.ErrorIs(t, err, errSessionNotFound)
}

func TestSessionPrune(t *testing.T) {
	m := NewSessionManager(time.Minute)
	stale := m.Create()
	m.mu.Lock()
	m.sessions[stale.ID].UpdatedAt = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	fresh := m.Create()
	_, ok := m.Get(stale.ID)
	assert.False(t, ok)
	_, ok = m.Get(fresh.ID)
	assert.True(t, ok)
}

func TestJobProgress(t *testing.T) {
	m := NewJobManager(time.Hour)
	id, job := m.CreateJob(JobKindQuiz, "math", "")
	assert.Equal(t, JobStatusPending, job.Status)

	m.MarkProcessing(id)
	m.UpdateProgress(id, "parse", "Extracting", 80, 100)
	job, ok := m.GetJob(id)
	require.True(t, ok)
	assert.Equal(t, JobStatusProcessing, job.Status)
	assert.Equal(t, 80, job.Percent)

	m.MarkFailed(id, "  ")
	job, _ = m.GetJob(id)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "generation failed", job.Error)

	_, ok = m.GetJob("missing")
	assert.False(t, ok)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, percent(0, 10))
	assert.Equal(t, 50, percent(5, 10))
	assert.Equal(t, 100, percent(12, 10))
	assert.Equal(t, 40, percent(40, 0))
	assert.Equal(t, 100, percent(140, 0))
}
