package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"study-ai/internal/models"
	"study-ai/internal/parser"
)

var (
	// ErrNoDueCards indicates that there are no cards ready to review.
	ErrNoDueCards   = errors.New("no due cards")
	ErrDeckNotFound = errors.New("deck not found")
	ErrCardNotFound = errors.New("card not found")
	ErrEmptyDeck    = errors.New("deck has no flashcards")
)

// DeckStats summarizes the FSRS state of the cards in a deck.
type DeckStats struct {
	Total    int `json:"total"`
	Due      int `json:"due"`
	New      int `json:"new"`
	Learning int `json:"learning"`
	Review   int `json:"review"`
}

// FlashcardService persists generated flashcards as decks and schedules them with FSRS.
type FlashcardService struct {
	db     *sql.DB
	params fsrs.Parameters
}

func NewFlashcardService(db *sql.DB) *FlashcardService {
	params := fsrs.DefaultParam()
	return &FlashcardService{db: db, params: params}
}

const cardColumns = `
	c.id, c.deck_id, c.front, c.back, c.due, c.stability, c.difficulty,
	c.elapsed_days, c.scheduled_days, c.reps, c.lapses, c.state, c.last_review,
	c.created_at, c.updated_at, d.topic`

// SaveDeck stores a set of flashcards under a new deck. Every card starts as new and due now.
// Both sides are normalized and pairs left with an empty side are dropped.
func (s *FlashcardService) SaveDeck(ctx context.Context, topic, model string, cards []models.Flashcard) (*models.Deck, error) {
	cards = cleanFlashcards(cards)
	if len(cards) == 0 {
		return nil, ErrEmptyDeck
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `INSERT INTO decks (topic, model, created_at) VALUES (?, ?, ?);`, topic, model, now)
	if err != nil {
		return nil, fmt.Errorf("insert deck: %w", err)
	}
	deckID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("deck id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cards (deck_id, front, back, due, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?);
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare card insert: %w", err)
	}
	defer stmt.Close()

	for _, card := range cards {
		if _, err = stmt.ExecContext(ctx, deckID, card.Question, card.Answer, now, int(fsrs.New), now, now); err != nil {
			return nil, fmt.Errorf("insert card %q: %w", card.Question, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit deck: %w", err)
	}

	return &models.Deck{
		ID:        deckID,
		Topic:     topic,
		Model:     model,
		CardCount: len(cards),
		CreatedAt: now,
	}, nil
}

func cleanFlashcards(cards []models.Flashcard) []models.Flashcard {
	out := make([]models.Flashcard, 0, len(cards))
	for _, card := range cards {
		card.Question = parser.Normalize(card.Question)
		card.Answer = parser.Normalize(card.Answer)
		if card.Question == "" || card.Answer == "" {
			continue
		}
		out = append(out, card)
	}
	return out
}

func (s *FlashcardService) GetDeck(ctx context.Context, deckID int64) (*models.Deck, error) {
	deck := &models.Deck{}
	err := s.db.QueryRowContext(ctx, `
		SELECT d.id, d.topic, d.model, d.created_at, COUNT(c.id)
		FROM decks d
		LEFT JOIN cards c ON c.deck_id = d.id
		WHERE d.id = ?
		GROUP BY d.id;
	`, deckID).Scan(&deck.ID, &deck.Topic, &deck.Model, &deck.CreatedAt, &deck.CardCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeckNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load deck %d: %w", deckID, err)
	}
	return deck, nil
}

// ListDecks returns every deck, newest first.
func (s *FlashcardService) ListDecks(ctx context.Context) ([]models.Deck, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.topic, d.model, d.created_at, COUNT(c.id)
		FROM decks d
		LEFT JOIN cards c ON c.deck_id = d.id
		GROUP BY d.id
		ORDER BY d.created_at DESC, d.id DESC;
	`)
	if err != nil {
		return nil, fmt.Errorf("list decks: %w", err)
	}
	defer rows.Close()

	decks := []models.Deck{}
	for rows.Next() {
		var deck models.Deck
		if err := rows.Scan(&deck.ID, &deck.Topic, &deck.Model, &deck.CreatedAt, &deck.CardCount); err != nil {
			return nil, fmt.Errorf("scan deck: %w", err)
		}
		decks = append(decks, deck)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decks: %w", err)
	}
	return decks, nil
}

// NextCard returns the next card of a deck to study.
// Priority order: 1) Due cards, earliest first, 2) Oldest unseen card
func (s *FlashcardService) NextCard(ctx context.Context, deckID int64) (*models.Card, error) {
	if _, err := s.GetDeck(ctx, deckID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	card, err := s.fetchCard(ctx, `
		SELECT `+cardColumns+`
		FROM cards c
		JOIN decks d ON c.deck_id = d.id
		WHERE c.deck_id = ? AND c.due IS NOT NULL AND c.due <= ?
		ORDER BY c.due ASC, c.id ASC
		LIMIT 1;
	`, deckID, now)
	if err == nil {
		return card, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	card, err = s.fetchCard(ctx, `
		SELECT `+cardColumns+`
		FROM cards c
		JOIN decks d ON c.deck_id = d.id
		WHERE c.deck_id = ? AND c.state = ?
		ORDER BY c.created_at ASC, c.id ASC
		LIMIT 1;
	`, deckID, int(fsrs.New))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoDueCards
		}
		return nil, err
	}
	return card, nil
}

func (s *FlashcardService) fetchCard(ctx context.Context, query string, args ...any) (*models.Card, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	card := &models.Card{}
	if err := scanCard(row, card); err != nil {
		return nil, err
	}
	return card, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner, card *models.Card) error {
	return row.Scan(
		&card.ID,
		&card.DeckID,
		&card.Front,
		&card.Back,
		&card.Due,
		&card.Stability,
		&card.Difficulty,
		&card.ElapsedDays,
		&card.ScheduledDays,
		&card.Reps,
		&card.Lapses,
		&card.State,
		&card.LastReview,
		&card.CreatedAt,
		&card.UpdatedAt,
		&card.DeckTopic,
	)
}

// ReviewCard updates the scheduling information based on the user's rating.
func (s *FlashcardService) ReviewCard(ctx context.Context, cardID int64, rating fsrs.Rating) (*models.Card, *models.ReviewLog, error) {
	if rating < fsrs.Again || rating > fsrs.Easy {
		return nil, nil, fmt.Errorf("rating %d not supported", rating)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	card := &models.Card{}
	row := tx.QueryRowContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards c
		JOIN decks d ON c.deck_id = d.id
		WHERE c.id = ?;
	`, cardID)
	if err = scanCard(row, card); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrCardNotFound
		}
		return nil, nil, fmt.Errorf("load card %d: %w", cardID, err)
	}

	now := time.Now().UTC()
	scheduling := s.params.Repeat(card.ToFSRSCard(), now)
	info, ok := scheduling[rating]
	if !ok {
		err = fmt.Errorf("rating %d not supported", rating)
		return nil, nil, err
	}
	card.ApplyFSRSCard(info.Card)
	card.UpdatedAt = now

	if _, err = tx.ExecContext(ctx, `
		UPDATE cards
		SET due = ?, stability = ?, difficulty = ?, elapsed_days = ?, scheduled_days = ?,
		    reps = ?, lapses = ?, state = ?, last_review = ?, updated_at = ?
		WHERE id = ?;
	`,
		nullTimePtr(card.Due),
		card.Stability,
		card.Difficulty,
		card.ElapsedDays,
		card.ScheduledDays,
		card.Reps,
		card.Lapses,
		card.State,
		nullTimePtr(card.LastReview),
		card.UpdatedAt,
		card.ID,
	); err != nil {
		return nil, nil, fmt.Errorf("update card %d: %w", card.ID, err)
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO review_logs (card_id, rating, scheduled_days, elapsed_days, state, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?);
	`, card.ID, info.ReviewLog.Rating, info.ReviewLog.ScheduledDays, info.ReviewLog.ElapsedDays, info.ReviewLog.State, now); err != nil {
		return nil, nil, fmt.Errorf("insert review log: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit review: %w", err)
	}

	log := &models.ReviewLog{
		CardID:        card.ID,
		Rating:        int(info.ReviewLog.Rating),
		ScheduledDays: int(info.ReviewLog.ScheduledDays),
		ElapsedDays:   int(info.ReviewLog.ElapsedDays),
		State:         int(info.ReviewLog.State),
		ReviewedAt:    now,
	}

	return card, log, nil
}

// DeckStats counts cards by FSRS state. Relearning cards count as learning.
func (s *FlashcardService) DeckStats(ctx context.Context, deckID int64) (DeckStats, error) {
	if _, err := s.GetDeck(ctx, deckID); err != nil {
		return DeckStats{}, err
	}

	var stats DeckStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN due IS NOT NULL AND due <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state IN (?, ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0)
		FROM cards
		WHERE deck_id = ?;
	`, time.Now().UTC(), int(fsrs.New), int(fsrs.Learning), int(fsrs.Relearning), int(fsrs.Review), deckID,
	).Scan(&stats.Total, &stats.Due, &stats.New, &stats.Learning, &stats.Review)
	if err != nil {
		return DeckStats{}, fmt.Errorf("deck stats %d: %w", deckID, err)
	}
	return stats, nil
}

func nullTimePtr(t sql.NullTime) any {
	if t.Valid {
		return t.Time
	}
	return nil
}
