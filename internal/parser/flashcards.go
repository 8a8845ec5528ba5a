package parser

import (
	"regexp"
	"strings"

	"study-ai/internal/models"
)

const (
	// MaxFlashcards caps the result of ExtractFlashcards regardless of strategy.
	MaxFlashcards = 5
	// maxFallbackFlashcards caps the block and sentence fallbacks.
	maxFallbackFlashcards = 3
	// answerLookahead is how many lines after a question are searched for its answer.
	answerLookahead = 3
)

var (
	questionMarker    = regexp.MustCompile(`(?i)^(?:q\d*[:.\-\s]|question|\d+[:.])`)
	questionKeyword   = regexp.MustCompile(`(?i)what|how|why|when|where|who|explain|define`)
	questionPrefix    = regexp.MustCompile(`(?i)^(?:q\d*[:.\-\s]+|question\s*\d*[:.\-\s]*)`)
	numberPrefix      = regexp.MustCompile(`^\d+[:.]\s*`)
	answerMarker      = regexp.MustCompile(`(?i)^(?:a\d*[:.\-\s]|answer|\d+[:.]\s*[^?]$)`)
	questionLike      = regexp.MustCompile(`(?i)^(?:q|\d+[:.]\s*.*\?)`)
	answerPrefix      = regexp.MustCompile(`(?i)^(?:a\d*[:.\-\s]+|answer\s*[:.\-\s]*)`)
	blockSeparator    = regexp.MustCompile(`\n\s*\n|\d+\.`)
	blockQuestionMark = regexp.MustCompile(`(?i)^q[:.\-\s]\s*`)
	blockAnswerMark   = regexp.MustCompile(`(?i)^a[:.\-\s]\s*`)
	sentenceEnd       = regexp.MustCompile(`[.!?]+`)
)

// ExtractFlashcards pulls up to MaxFlashcards question/answer pairs out of raw model
// output. Strategies run in order and a later one only runs when every earlier one
// found nothing: a line scan pairing questions with answers, then a blank-line block
// split, then a sentence split. The topic is accepted for symmetry with ExtractQuiz.
func ExtractFlashcards(raw, topic string) []models.Flashcard {
	if strings.TrimSpace(raw) == "" {
		return []models.Flashcard{}
	}

	cards := scanQuestionLines(raw)
	if len(cards) == 0 {
		cards = pairBlocks(raw)
	}
	if len(cards) == 0 {
		cards = pairSentences(raw)
	}

	if cards == nil {
		cards = []models.Flashcard{}
	}
	if len(cards) > MaxFlashcards {
		cards = cards[:MaxFlashcards]
	}
	return cards
}

func scanQuestionLines(raw string) []models.Flashcard {
	lines := nonBlankLines(raw, 3)
	cards := make([]models.Flashcard, 0, MaxFlashcards)

	for i := 0; i < len(lines) && len(cards) < MaxFlashcards; i++ {
		line := lines[i]
		if !isQuestionLine(line) {
			continue
		}

		question := strings.TrimSpace(questionPrefix.ReplaceAllString(line, ""))
		question = Normalize(numberPrefix.ReplaceAllString(question, ""))

		answer := ""
		last := min(i+1+answerLookahead, len(lines))
		for j := i + 1; j < last; j++ {
			next := lines[j]
			if !isAnswerLine(next) {
				continue
			}
			answer = strings.TrimSpace(answerPrefix.ReplaceAllString(next, ""))
			answer = Normalize(numberPrefix.ReplaceAllString(answer, ""))
			i = j
			break
		}

		if question == "" || answer == "" {
			continue
		}
		if !strings.HasSuffix(question, "?") && questionKeyword.MatchString(question) {
			question += "?"
		}
		if card, ok := newFlashcard(question, answer); ok {
			cards = append(cards, card)
		}
	}
	return cards
}

func isQuestionLine(line string) bool {
	if strings.HasSuffix(line, "?") || questionMarker.MatchString(line) {
		return true
	}
	return textLen(line) > 15 && questionKeyword.MatchString(line)
}

func isAnswerLine(line string) bool {
	if answerMarker.MatchString(line) {
		return true
	}
	return textLen(line) > 8 && !strings.HasSuffix(line, "?") && !questionLike.MatchString(line)
}

func pairBlocks(raw string) []models.Flashcard {
	var blocks []string
	for _, block := range blockSeparator.Split(raw, -1) {
		if textLen(strings.TrimSpace(block)) > 10 {
			blocks = append(blocks, block)
		}
	}

	var cards []models.Flashcard
	for i := 0; i+1 < len(blocks) && len(cards) < maxFallbackFlashcards; i += 2 {
		question := Normalize(blockQuestionMark.ReplaceAllString(strings.TrimSpace(blocks[i]), ""))
		answer := Normalize(blockAnswerMark.ReplaceAllString(strings.TrimSpace(blocks[i+1]), ""))
		if textLen(question) <= 5 || textLen(answer) <= 5 {
			continue
		}
		if !strings.HasSuffix(question, "?") {
			question += "?"
		}
		if card, ok := newFlashcard(question, answer); ok {
			cards = append(cards, card)
		}
	}
	return cards
}

func pairSentences(raw string) []models.Flashcard {
	var sentences []string
	for _, s := range sentenceEnd.Split(raw, -1) {
		s = strings.TrimSpace(s)
		if textLen(s) > 10 {
			sentences = append(sentences, s)
		}
	}

	var cards []models.Flashcard
	for i := 0; i+1 < len(sentences) && len(cards) < maxFallbackFlashcards; i += 2 {
		question := Normalize(sentences[i])
		if !strings.HasSuffix(question, "?") {
			question += "?"
		}
		if card, ok := newFlashcard(question, sentences[i+1]); ok {
			cards = append(cards, card)
		}
	}
	return cards
}

// newFlashcard normalizes both sides and rejects the pair if either ends up empty.
// Callers normalize before the "?" suffix check so markup never hides a question mark.
func newFlashcard(question, answer string) (models.Flashcard, bool) {
	card := models.Flashcard{Question: Normalize(question), Answer: Normalize(answer)}
	if card.Question == "" || card.Answer == "" {
		return models.Flashcard{}, false
	}
	return card, true
}
