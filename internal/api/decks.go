package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"study-ai/internal/models"
	"study-ai/internal/services"
)

type saveDeckRequest struct {
	Topic      string             `json:"topic"`
	Flashcards []models.Flashcard `json:"flashcards"`
	SessionID  string             `json:"sessionId"`
}

func (s *Server) handleDecks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		decks, err := s.flashcards.ListDecks(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"decks": decks})
	case http.MethodPost:
		s.handleSaveDeck(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// handleSaveDeck stores either the posted flashcards or the deck of a session.
func (s *Server) handleSaveDeck(w http.ResponseWriter, r *http.Request) {
	var payload saveDeckRequest
	if !decodeJSON(w, r, &payload) {
		return
	}

	topic := strings.TrimSpace(payload.Topic)
	cards := payload.Flashcards
	if payload.SessionID != "" {
		session, ok := s.sessions.Get(payload.SessionID)
		if !ok {
			s.fail(w, errSessionNotFound)
			return
		}
		if len(session.Flashcards) == 0 {
			s.fail(w, errNoSessionCards)
			return
		}
		cards = session.Flashcards
		if topic == "" {
			topic = session.Topic
		}
	}
	if topic == "" {
		s.fail(w, services.ErrTopicRequired)
		return
	}

	deck, err := s.flashcards.SaveDeck(r.Context(), topic, s.study.Model(), cards)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deck)
}

func (s *Server) handleDeckActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/decks/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	deckID, err := parseID(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid deck id")
		return
	}

	switch parts[1] {
	case "next":
		card, err := s.flashcards.NextCard(r.Context(), deckID)
		if errors.Is(err, services.ErrNoDueCards) {
			writeJSON(w, http.StatusOK, map[string]any{
				"card":    nil,
				"message": "No cards due. Come back later!",
			})
			return
		}
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"card": cardView(card)})
	case "stats":
		stats, err := s.flashcards.DeckStats(r.Context(), deckID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleCardActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/cards/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "review" {
		http.NotFound(w, r)
		return
	}

	cardID, err := parseID(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid card id")
		return
	}

	var payload reviewRequest
	if !decodeJSON(w, r, &payload) {
		return
	}

	rating, err := parseRating(payload.Rating)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	card, logEntry, err := s.flashcards.ReviewCard(r.Context(), cardID, rating)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"card": cardView(card),
		"log": map[string]any{
			"rating":  logEntry.Rating,
			"due_in":  logEntry.ScheduledDays,
			"updated": logEntry.ReviewedAt.Format(timeLayout),
		},
	})
}

type reviewRequest struct {
	Rating string `json:"rating"`
}

func cardView(card *models.Card) map[string]any {
	return map[string]any{
		"id":        card.ID,
		"deckId":    card.DeckID,
		"front":     card.Front,
		"back":      card.Back,
		"due":       nullTimeToString(card.Due),
		"topic":     nullString(card.DeckTopic),
		"state":     card.State,
		"stability": card.Stability,
		"reps":      card.Reps,
		"lapses":    card.Lapses,
	}
}

func (s *Server) handleQuizAttempts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	attempts, err := s.quizzes.ListAttempts(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}
