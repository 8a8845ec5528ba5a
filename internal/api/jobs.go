package api

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusComplete   = "complete"
	JobStatusFailed     = "failed"

	JobKindFlashcards = "flashcards"
	JobKindQuiz       = "quiz"
)

// GenerationJob tracks an asynchronous flashcard or quiz generation that the frontend polls.
type GenerationJob struct {
	ID        string    `json:"jobId"`
	Kind      string    `json:"kind"`
	Topic     string    `json:"topic"`
	SessionID string    `json:"sessionId,omitempty"`
	Status    string    `json:"status"`
	Step      string    `json:"step,omitempty"`
	Message   string    `json:"message,omitempty"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Percent   int       `json:"percent"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type JobManager struct {
	mu   sync.RWMutex
	jobs map[string]*GenerationJob
	ttl  time.Duration
}

// NewJobManager keeps finished jobs for ttl before they are dropped.
func NewJobManager(ttl time.Duration) *JobManager {
	return &JobManager{
		jobs: make(map[string]*GenerationJob),
		ttl:  ttl,
	}
}

func (m *JobManager) CreateJob(kind, topic, sessionID string) (string, *GenerationJob) {
	now := time.Now().UTC()
	job := &GenerationJob{
		ID:        uuid.NewString(),
		Kind:      kind,
		Topic:     topic,
		SessionID: sessionID,
		Status:    JobStatusPending,
		Total:     100,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.pruneLocked(now)
	m.jobs[job.ID] = job
	m.mu.Unlock()

	return job.ID, job.clone()
}

func (m *JobManager) GetJob(id string) (*GenerationJob, bool) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

func (m *JobManager) MarkProcessing(id string) {
	m.withJob(id, func(job *GenerationJob) {
		job.Status = JobStatusProcessing
		job.Message = "Starting"
	})
}

func (m *JobManager) UpdateProgress(id, step, message string, current, total int) {
	m.withJob(id, func(job *GenerationJob) {
		job.Status = JobStatusProcessing
		job.Step = step
		job.Message = message
		job.Current = current
		job.Total = total
		job.Percent = percent(current, total)
	})
}

func (m *JobManager) MarkCompleted(id string, result any) {
	m.withJob(id, func(job *GenerationJob) {
		job.Status = JobStatusComplete
		job.Step = "complete"
		job.Message = "Generation complete"
		job.Current = 100
		job.Total = 100
		job.Percent = 100
		job.Result = result
		job.Error = ""
	})
}

func (m *JobManager) MarkFailed(id string, msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "generation failed"
	}
	m.withJob(id, func(job *GenerationJob) {
		job.Status = JobStatusFailed
		job.Step = "error"
		job.Message = msg
		job.Error = msg
		job.Percent = 100
	})
}

func (m *JobManager) withJob(id string, fn func(job *GenerationJob)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
}

// pruneLocked drops finished jobs older than the ttl. Callers hold m.mu.
func (m *JobManager) pruneLocked(now time.Time) {
	if m.ttl <= 0 {
		return
	}
	for id, job := range m.jobs {
		finished := job.Status == JobStatusComplete || job.Status == JobStatusFailed
		if finished && now.Sub(job.UpdatedAt) > m.ttl {
			delete(m.jobs, id)
		}
	}
}

// clone copies the job header. Results are written once on completion and never
// mutated afterwards, so they are shared.
func (job *GenerationJob) clone() *GenerationJob {
	if job == nil {
		return nil
	}
	copyJob := *job
	return &copyJob
}

func percent(current, total int) int {
	if total <= 0 {
		if current <= 0 {
			return 0
		}
		if current > 100 {
			return 100
		}
		return current
	}
	if current <= 0 {
		return 0
	}
	if current >= total {
		return 100
	}
	return int((float64(current) / float64(total)) * 100)
}
