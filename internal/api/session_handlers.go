package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"study-ai/internal/models"
)

// sessionView adds the card under the cursor to a session snapshot.
type sessionView struct {
	*Session
	CurrentCard *models.Flashcard `json:"currentCard,omitempty"`
	CardTotal   int               `json:"cardTotal"`
}

func newSessionView(session *Session) sessionView {
	view := sessionView{Session: session, CardTotal: len(session.Flashcards)}
	if session.CardIndex >= 0 && session.CardIndex < len(session.Flashcards) {
		card := session.Flashcards[session.CardIndex]
		view.CurrentCard = &card
	}
	return view
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionView(s.sessions.Create()))
}

func (s *Server) handleSessionActions(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	if path == "" {
		http.NotFound(w, r)
		return
	}
	sessionID, action, _ := strings.Cut(path, "/")

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			session, ok := s.sessions.Get(sessionID)
			if !ok {
				s.fail(w, errSessionNotFound)
				return
			}
			writeJSON(w, http.StatusOK, newSessionView(session))
		case http.MethodDelete:
			if !s.sessions.Delete(sessionID) {
				s.fail(w, errSessionNotFound)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodDelete)
		}
	case "flashcards/next", "flashcards/prev":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		delta := 1
		if action == "flashcards/prev" {
			delta = -1
		}
		session, err := s.sessions.MoveCard(sessionID, delta)
		s.respondSession(w, session, err)
	case "flashcards":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, http.MethodDelete)
			return
		}
		session, err := s.sessions.ClearFlashcards(sessionID)
		s.respondSession(w, session, err)
	case "quiz":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, http.MethodDelete)
			return
		}
		session, err := s.sessions.ClearQuiz(sessionID)
		s.respondSession(w, session, err)
	case "quiz/answers":
		s.handleSelectAnswer(w, r, sessionID)
	case "quiz/submit":
		s.handleSubmitQuiz(w, r, sessionID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) respondSession(w http.ResponseWriter, session *Session, err error) {
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(session))
}

type answerRequest struct {
	Question int    `json:"question"`
	Option   string `json:"option"`
}

func (s *Server) handleSelectAnswer(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload answerRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	session, err := s.sessions.SelectAnswer(sessionID, payload.Question, strings.TrimSpace(payload.Option))
	s.respondSession(w, session, err)
}

func (s *Server) handleSubmitQuiz(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	session, err := s.sessions.SubmitQuiz(sessionID, s.quizzes.Grade)
	if err != nil {
		s.fail(w, err)
		return
	}
	report := *session.Report

	response := map[string]any{
		"success": true,
		"report":  report,
	}
	attempt, err := s.quizzes.SaveAttempt(r.Context(), report)
	if err != nil {
		s.logger.Warn("save quiz attempt", zap.String("session", sessionID), zap.Error(err))
	} else {
		response["attemptId"] = attempt.ID
	}

	writeJSON(w, http.StatusOK, response)
}
