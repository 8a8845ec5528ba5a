package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"study-ai/internal/db"
)

// fakeGenerator returns canned completions and records what it was asked.
type fakeGenerator struct {
	mu       sync.Mutex
	response string
	err      error
	delay    time.Duration
	requests []CompletionRequest
}

func (f *fakeGenerator) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.response, f.err
}

func (f *fakeGenerator) Ping(ctx context.Context) error { return f.err }

func (f *fakeGenerator) Model() string { return "fake:model" }

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeGenerator) last() CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// memoryCache is an in-process ResponseCache.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]string
	getErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]string{}}
}

func (c *memoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *memoryCache) Set(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func newStudy(gen TextGenerator, cache ResponseCache) *StudyService {
	return NewStudyService(NewAIService(gen, time.Second, nil), cache, nil)
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "study.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

var errBoom = errors.New("boom")

func quizText(n int) string {
	out := ""
	for i := 1; i <= n; i++ {
		out += fmt.Sprintf("Q: What is sample question number %d?\nA) one\nB) two\nC) three\nD) four\nANSWER: B\n\n", i)
	}
	return out
}
