package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"
	"go.uber.org/zap"

	"study-ai/internal/models"
	"study-ai/internal/services"
)

const (
	maxMultipartMemory = 8 << 20  // 8 MB
	maxUploadSize      = 32 << 20 // 32 MB
	maxJSONBody        = 1 << 20

	sessionTTL = 12 * time.Hour
	jobTTL     = time.Hour
)

type Server struct {
	mux        *http.ServeMux
	study      *services.StudyService
	flashcards *services.FlashcardService
	quizzes    *services.QuizService
	documents  *services.DocumentService
	sessions   *SessionManager
	jobs       *JobManager
	limiter    *clientLimiter
	logger     *zap.Logger
}

// Options carries the optional knobs of the HTTP layer.
type Options struct {
	Logger *zap.Logger

	// GenerateRate is the per-client budget for model-backed endpoints in
	// requests per second. Zero disables throttling.
	GenerateRate  float64
	GenerateBurst int
}

func NewServer(
	study *services.StudyService,
	flashcards *services.FlashcardService,
	quizzes *services.QuizService,
	documents *services.DocumentService,
	opts Options,
) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		mux:        http.NewServeMux(),
		study:      study,
		flashcards: flashcards,
		quizzes:    quizzes,
		documents:  documents,
		sessions:   NewSessionManager(sessionTTL),
		jobs:       NewJobManager(jobTTL),
		limiter:    newClientLimiter(opts.GenerateRate, opts.GenerateBurst),
		logger:     logger,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return logRequests(s.logger, s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/generate_flashcards", s.throttled(s.handleGenerateFlashcards))
	s.mux.HandleFunc("/api/generate_quiz", s.throttled(s.handleGenerateQuiz))
	s.mux.HandleFunc("/api/chat", s.throttled(s.handleChat))
	s.mux.HandleFunc("/api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("/api/sessions/", s.handleSessionActions)
	s.mux.HandleFunc("/api/decks", s.handleDecks)
	s.mux.HandleFunc("/api/decks/", s.handleDeckActions)
	s.mux.HandleFunc("/api/cards/", s.handleCardActions)
	s.mux.HandleFunc("/api/quiz/attempts", s.handleQuizAttempts)
	s.mux.HandleFunc("/api/documents", s.handleUploadDocument)
	s.mux.HandleFunc("/api/jobs", s.throttled(s.handleCreateJob))
	s.mux.HandleFunc("/api/jobs/", s.handleJobStatus)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	connected := s.study.Ping(r.Context()) == nil
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"ollama_connected": connected,
		"model":            s.study.Model(),
	})
}

type generateRequest struct {
	Topic      string `json:"topic"`
	Context    string `json:"context"`
	DocumentID int64  `json:"documentId"`
	SessionID  string `json:"sessionId"`
}

type flashcardsResponse struct {
	Success bool `json:"success"`
	*services.FlashcardSet
	SessionID string `json:"sessionId,omitempty"`
}

type quizResponse struct {
	Success bool `json:"success"`
	*services.QuizSet
	SessionID string `json:"sessionId,omitempty"`
}

func (s *Server) handleGenerateFlashcards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload generateRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	req, err := s.studyRequest(r.Context(), payload)
	if err != nil {
		s.fail(w, err)
		return
	}

	set, err := s.study.GenerateFlashcards(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	if payload.SessionID != "" {
		if _, err := s.sessions.SetFlashcards(payload.SessionID, set.Topic, set.Flashcards); err != nil {
			s.fail(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, flashcardsResponse{Success: true, FlashcardSet: set, SessionID: payload.SessionID})
}

func (s *Server) handleGenerateQuiz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload generateRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	req, err := s.studyRequest(r.Context(), payload)
	if err != nil {
		s.fail(w, err)
		return
	}

	set, err := s.study.GenerateQuiz(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	if payload.SessionID != "" {
		if _, err := s.sessions.SetQuiz(payload.SessionID, set.Quiz); err != nil {
			s.fail(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, quizResponse{Success: true, QuizSet: set, SessionID: payload.SessionID})
}

// studyRequest validates the session reference and folds an uploaded document
// into the generation context.
func (s *Server) studyRequest(ctx context.Context, payload generateRequest) (services.GenerateRequest, error) {
	req := services.GenerateRequest{
		Topic:   strings.TrimSpace(payload.Topic),
		Context: strings.TrimSpace(payload.Context),
	}
	if req.Topic == "" {
		return req, services.ErrTopicRequired
	}
	if payload.SessionID != "" {
		if _, ok := s.sessions.Get(payload.SessionID); !ok {
			return req, errSessionNotFound
		}
	}
	if payload.DocumentID != 0 {
		doc, err := s.documents.GetByID(ctx, payload.DocumentID)
		if err != nil {
			return req, err
		}
		req.Context = strings.TrimSpace(req.Context + "\n\n" + doc.Text)
	}
	return req, nil
}

type chatRequest struct {
	Message   string `json:"message"`
	Context   string `json:"context"`
	SessionID string `json:"sessionId"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload chatRequest
	if !decodeJSON(w, r, &payload) {
		return
	}

	req := services.ChatRequest{Message: payload.Message, Context: payload.Context}
	if payload.SessionID != "" {
		history, err := s.sessions.History(payload.SessionID)
		if err != nil {
			s.fail(w, err)
			return
		}
		req.History = history
	}

	answer, err := s.study.Chat(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}

	if payload.SessionID != "" {
		now := time.Now().UTC()
		_, err := s.sessions.AppendChat(payload.SessionID,
			models.ChatMessage{Role: "user", Content: strings.TrimSpace(payload.Message), CreatedAt: now},
			models.ChatMessage{Role: "assistant", Content: answer, CreatedAt: now},
		)
		if err != nil {
			s.logger.Warn("append chat history", zap.String("session", payload.SessionID), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"response":  answer,
		"sessionId": payload.SessionID,
	})
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid upload: %v", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	doc, err := s.documents.Create(r.Context(), header.Filename, file)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"documentId": doc.ID,
		"name":       doc.OriginalName,
		"pages":      doc.PageCount,
		"chars":      len([]rune(doc.Text)),
		"uploadedAt": doc.UploadedAt.Format(timeLayout),
	})
}

type jobRequest struct {
	Kind string `json:"kind"`
	generateRequest
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload jobRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	kind := strings.ToLower(strings.TrimSpace(payload.Kind))
	if kind != JobKindFlashcards && kind != JobKindQuiz {
		writeError(w, http.StatusBadRequest, "kind must be flashcards or quiz")
		return
	}
	req, err := s.studyRequest(r.Context(), payload.generateRequest)
	if err != nil {
		s.fail(w, err)
		return
	}

	jobID, job := s.jobs.CreateJob(kind, req.Topic, payload.SessionID)
	go s.runGenerationJob(context.Background(), jobID, kind, req, payload.SessionID)

	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/jobs/"), "/")
	if jobID == "" || strings.Contains(jobID, "/") {
		http.NotFound(w, r)
		return
	}

	job, ok := s.jobs.GetJob(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (s *Server) runGenerationJob(ctx context.Context, jobID, kind string, req services.GenerateRequest, sessionID string) {
	s.jobs.MarkProcessing(jobID)
	progress := func(step, message string, current, total int) {
		s.jobs.UpdateProgress(jobID, step, message, current, total)
	}

	var (
		result any
		err    error
	)
	switch kind {
	case JobKindFlashcards:
		var set *services.FlashcardSet
		set, err = s.study.GenerateFlashcardsWithProgress(ctx, req, progress)
		if err == nil && sessionID != "" {
			_, err = s.sessions.SetFlashcards(sessionID, set.Topic, set.Flashcards)
		}
		result = set
	case JobKindQuiz:
		var set *services.QuizSet
		set, err = s.study.GenerateQuizWithProgress(ctx, req, progress)
		if err == nil && sessionID != "" {
			_, err = s.sessions.SetQuiz(sessionID, set.Quiz)
		}
		result = set
	default:
		err = fmt.Errorf("unsupported job kind: %s", kind)
	}

	if err != nil {
		s.logger.Warn("generation job failed", zap.String("job", jobID), zap.String("kind", kind), zap.Error(err))
		s.jobs.MarkFailed(jobID, err.Error())
		return
	}
	s.jobs.MarkCompleted(jobID, result)
}

// fail maps domain errors onto HTTP statuses. Unknown errors are logged and
// reported as 500.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, errorMessage(err))
}

func errorStatus(err error) int {
	var unanswered *services.UnansweredError
	switch {
	case errors.As(err, &unanswered),
		errors.Is(err, services.ErrTopicRequired),
		errors.Is(err, services.ErrMessageRequired),
		errors.Is(err, services.ErrEmptyDeck),
		errors.Is(err, services.ErrUnsupportedDocument),
		errors.Is(err, errNoSessionCards),
		errors.Is(err, errNoSessionQuiz),
		errors.Is(err, errQuizSubmitted),
		errors.Is(err, errInvalidSelection):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrDeckNotFound),
		errors.Is(err, services.ErrCardNotFound),
		errors.Is(err, services.ErrDocumentNotFound),
		errors.Is(err, errSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrAITimeout):
		return http.StatusRequestTimeout
	case errors.Is(err, services.ErrNoFlashcards),
		errors.Is(err, services.ErrNoQuestions),
		errors.Is(err, services.ErrEmptyAnswer),
		errors.Is(err, services.ErrNoPDFText):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrAIUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrAIUnavailable):
		return "Ollama is not running or the model is unavailable. Start it with 'ollama serve'."
	case errors.Is(err, services.ErrAITimeout):
		return "The model took too long to respond. Try a shorter topic or try again."
	default:
		return err.Error()
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return false
	}
	return true
}

const timeLayout = time.RFC3339

func parseRating(raw string) (fsrs.Rating, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "again", "1":
		return fsrs.Again, nil
	case "hard", "2":
		return fsrs.Hard, nil
	case "good", "3":
		return fsrs.Good, nil
	case "easy", "4":
		return fsrs.Easy, nil
	default:
		return 0, fmt.Errorf("unknown rating %q", raw)
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func nullTimeToString(t sql.NullTime) *string {
	if t.Valid {
		str := t.Time.Format(timeLayout)
		return &str
	}
	return nil
}

func nullString(v sql.NullString) *string {
	if v.Valid {
		str := v.String
		return &str
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
