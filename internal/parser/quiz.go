package parser

import (
	"regexp"
	"strings"

	"study-ai/internal/models"
)

var (
	quizQuestionMarker = regexp.MustCompile(`(?i)^(?:q\d*[:.]|\d+\.|question)`)
	quizQuestionPrefix = regexp.MustCompile(`(?i)^(?:q\d*[:.]\s*|\d+\.\s*|question\s*\d*[:.\s]*)`)
	optionMarker       = regexp.MustCompile(`(?i)^(?:[a-d][).\-\s]|option\s*[a-d])`)
	optionPrefix       = regexp.MustCompile(`(?i)^(?:[a-d][).\-\s]\s*|option\s*[a-d][:).\-\s]*)`)
	answerKeyword      = regexp.MustCompile(`(?i)^(?:answer\s*:\s*\(?[a-d]|correct\s*:\s*\(?[a-d]|right.*[a-d])`)
	answerKeywordHead  = regexp.MustCompile(`(?i)^(?:answer\s*:|correct\s*:|right)`)
	standaloneLetter   = regexp.MustCompile(`(?i)\b([a-d])\b`)
	anyLetter          = regexp.MustCompile(`(?i)[a-d]`)
	explanationMarker  = regexp.MustCompile(`(?i)^(?:explanation|note:|reason:)`)
	explanationPrefix  = regexp.MustCompile(`(?i)^(?:explanation\s*[:\-]?|note:|reason:)\s*`)
	notContinuation    = regexp.MustCompile(`(?i)^(?:[a-d]|answer|q|\d)`)
)

// questionBuilder accumulates one quiz question while the scan is inside its block.
type questionBuilder struct {
	question    string
	options     []string
	answer      string
	explanation string
}

// ExtractQuiz scans raw model output once, line by line, and returns the questions
// that survive repair: every returned question has exactly four options and an
// answer letter in A-D. The topic is passed through even when nothing was found.
//
// The answer letter is read after the "ANSWER:"/"CORRECT:" keyword rather than from
// the start of the line, so "ANSWER: C" yields C and not the A inside "ANSWER".
func ExtractQuiz(raw, topic string) models.Quiz {
	quiz := models.Quiz{Topic: topic, Questions: []models.QuizQuestion{}}
	if strings.TrimSpace(raw) == "" {
		return quiz
	}

	var (
		committed []*questionBuilder
		current   *questionBuilder
	)
	commit := func() {
		if current != nil && len(current.options) >= 2 {
			committed = append(committed, current)
		}
	}

	for _, line := range nonBlankLines(raw, 2) {
		switch {
		case quizQuestionMarker.MatchString(line) && textLen(line) > 10:
			commit()
			current = &questionBuilder{
				question: strings.TrimSpace(quizQuestionPrefix.ReplaceAllString(line, "")),
			}

		case current != nil && optionMarker.MatchString(line):
			option := Normalize(optionPrefix.ReplaceAllString(line, ""))
			if textLen(option) > 1 {
				current.options = append(current.options, option)
			}

		case answerKeyword.MatchString(line):
			if letter := answerLetter(line); letter != "" && current != nil {
				current.answer = letter
			}

		case current != nil && explanationMarker.MatchString(line):
			current.explanation = strings.TrimSpace(explanationPrefix.ReplaceAllString(line, ""))

		case current != nil && len(current.options) == 0 && textLen(line) > 10 && !notContinuation.MatchString(line):
			current.question += " " + line
		}
	}
	commit()

	for _, b := range committed {
		if q, ok := b.build(); ok {
			quiz.Questions = append(quiz.Questions, q)
		}
	}
	return quiz
}

// answerLetter returns the uppercased answer letter that follows the answer keyword.
// A standalone letter wins over one embedded in a word.
func answerLetter(line string) string {
	rest := line
	if loc := answerKeywordHead.FindStringIndex(line); loc != nil {
		rest = line[loc[1]:]
	}
	if m := standaloneLetter.FindStringSubmatch(rest); m != nil {
		return strings.ToUpper(m[1])
	}
	if m := anyLetter.FindString(rest); m != "" {
		return strings.ToUpper(m)
	}
	return ""
}

// build pads missing options with placeholders, defaults the answer to A and
// applies the final validity filter.
func (b *questionBuilder) build() (models.QuizQuestion, bool) {
	q := models.QuizQuestion{
		Question:    Normalize(b.question),
		Options:     append([]string(nil), b.options...),
		Answer:      b.answer,
		Explanation: Normalize(b.explanation),
	}
	for len(q.Options) < models.OptionCount {
		q.Options = append(q.Options, "Option "+models.OptionLetter(len(q.Options)))
	}
	if q.Answer == "" {
		q.Answer = "A"
	}

	if q.Question == "" || len(q.Options) != models.OptionCount || models.OptionIndex(q.Answer) < 0 {
		return models.QuizQuestion{}, false
	}
	return q, true
}
