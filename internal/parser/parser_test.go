package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"study-ai/internal/models"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"":                     "",
		"  plain  ":            "plain",
		"**Bold** answer":      "Bold answer",
		"multi\n\nline\t text": "multi line text",
		"a ** b":               "a b",
		"***":                  "*",
		"\u00a0spaced\u00a0":   "spaced",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"**a**",
		"a ** b",
		"****x****",
		"* * *",
		"*\n*",
		"Q: **What** is   it?\n",
		"tabs\tand\r\nreturns",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestExtractFlashcards_QAPairs(t *testing.T) {
	raw := "Q: What is 2+2?\nA: 4\nQ: What is the capital of France?\nA: Paris"

	cards := ExtractFlashcards(raw, "math")

	require.Equal(t, []models.Flashcard{
		{Question: "What is 2+2?", Answer: "4"},
		{Question: "What is the capital of France?", Answer: "Paris"},
	}, cards)
}

func TestExtractFlashcards_NumberedAndMarkdown(t *testing.T) {
	raw := `Here are your flashcards:

1. **What is photosynthesis?**
Answer: The process where plants convert sunlight into energy.

Question 2: Why do leaves look green
A - Chlorophyll reflects green light.`

	cards := ExtractFlashcards(raw, "biology")

	require.Len(t, cards, 2)
	assert.Equal(t, "What is photosynthesis?", cards[0].Question)
	assert.Equal(t, "The process where plants convert sunlight into energy.", cards[0].Answer)
	assert.Equal(t, "Why do leaves look green?", cards[1].Question)
	assert.Equal(t, "Chlorophyll reflects green light.", cards[1].Answer)
}

func TestExtractFlashcards_CapsAtFive(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 7; i++ {
		fmt.Fprintf(&b, "Q: What is item number %d?\nA: It is item %d.\n", i, i)
	}

	cards := ExtractFlashcards(b.String(), "items")

	require.Len(t, cards, MaxFlashcards)
	assert.Equal(t, "What is item number 5?", cards[4].Question)
}

func TestExtractFlashcards_QuestionWithoutAnswerIsSkipped(t *testing.T) {
	raw := "Q: Why is the sky blue?\nA: Rayleigh scattering of sunlight.\nQ: What is gravity?"

	cards := ExtractFlashcards(raw, "physics")

	require.Len(t, cards, 1)
	assert.Equal(t, "Why is the sky blue?", cards[0].Question)
}

func TestExtractFlashcards_BlockFallback(t *testing.T) {
	raw := "Photosynthesis in plants\n\nConverts light into chemical energy\n\nCell membranes\n\nControl what enters the cell"

	cards := ExtractFlashcards(raw, "biology")

	require.Equal(t, []models.Flashcard{
		{Question: "Photosynthesis in plants?", Answer: "Converts light into chemical energy"},
		{Question: "Cell membranes?", Answer: "Control what enters the cell"},
	}, cards)
}

func TestExtractFlashcards_BlockFallbackCapsAtThree(t *testing.T) {
	raw := strings.Join([]string{
		"Mitochondria organelle", "Produces cellular energy",
		"Ribosome particles", "Assemble proteins from amino acids",
		"Nucleus of a cell", "Stores genetic material",
		"Golgi apparatus", "Packages proteins for export",
	}, "\n\n")

	cards := ExtractFlashcards(raw, "cells")

	require.Len(t, cards, maxFallbackFlashcards)
	assert.Equal(t, models.Flashcard{Question: "Mitochondria organelle?", Answer: "Produces cellular energy"}, cards[0])
	assert.Equal(t, models.Flashcard{Question: "Nucleus of a cell?", Answer: "Stores genetic material"}, cards[2])
}

func TestExtractFlashcards_LineScanWinsOverBlocks(t *testing.T) {
	raw := "Q: What is osmosis?\nA: Water moving across a membrane.\n\nSome plain heading text\n\nAnother plain block of text"

	cards := ExtractFlashcards(raw, "biology")

	require.Equal(t, []models.Flashcard{
		{Question: "What is osmosis?", Answer: "Water moving across a membrane."},
	}, cards)
}

func TestExtractFlashcards_SentenceFallback(t *testing.T) {
	raw := "The sun is a star. It gives light to Earth. Plants use sunlight to grow. Animals eat the plants."

	cards := ExtractFlashcards(raw, "nature")

	require.Equal(t, []models.Flashcard{
		{Question: "The sun is a star?", Answer: "It gives light to Earth"},
		{Question: "Plants use sunlight to grow?", Answer: "Animals eat the plants"},
	}, cards)
}

func TestExtractFlashcards_SentenceFallbackCapsAtThree(t *testing.T) {
	raw := strings.Repeat("Plain sentence with enough length. ", 10)

	cards := ExtractFlashcards(raw, "prose")

	assert.Len(t, cards, 3)
}

func TestExtractFlashcards_Degenerate(t *testing.T) {
	for _, raw := range []string{"", "   \n\n  ", "ok", "short. tiny!"} {
		cards := ExtractFlashcards(raw, "x")
		assert.NotNil(t, cards)
		assert.Empty(t, cards, "input %q", raw)
	}
}

func TestExtractFlashcards_Invariants(t *testing.T) {
	inputs := []string{
		"Q: **\nA: **",
		"What?\n?\n???\nexplain how\nwho why when",
		"1. 2. 3. 4. 5. 6.",
		"Question: \nAnswer: ",
		strings.Repeat("Q: Why?\nA: Because it is so.\n", 20),
		"**** ****\n\n**** ****\n\n**** ****",
	}
	for _, raw := range inputs {
		cards := ExtractFlashcards(raw, "")
		assert.LessOrEqual(t, len(cards), MaxFlashcards)
		for _, c := range cards {
			assert.NotEmpty(t, c.Question, "input %q", raw)
			assert.NotEmpty(t, c.Answer, "input %q", raw)
			assert.Equal(t, c.Question, Normalize(c.Question))
			assert.Equal(t, c.Answer, Normalize(c.Answer))
		}
	}
}

func TestExtractQuiz_SingleQuestion(t *testing.T) {
	raw := "Q1. What color is the sky?\nA) Blue\nB) Red\nC) Green\nD) Yellow\nANSWER: A\nEXPLANATION: Rayleigh scattering."

	quiz := ExtractQuiz(raw, "sky")

	assert.Equal(t, "sky", quiz.Topic)
	require.Len(t, quiz.Questions, 1)
	q := quiz.Questions[0]
	assert.Equal(t, "What color is the sky?", q.Question)
	assert.Equal(t, []string{"Blue", "Red", "Green", "Yellow"}, q.Options)
	assert.Equal(t, "A", q.Answer)
	assert.Contains(t, q.Explanation, "Rayleigh scattering")
}

func TestExtractQuiz_PadsOptionsAndDefaultsAnswer(t *testing.T) {
	raw := "Q: Which planet is known as the red planet?\nA) Mars\nB) Venus"

	quiz := ExtractQuiz(raw, "space")

	require.Len(t, quiz.Questions, 1)
	q := quiz.Questions[0]
	assert.Equal(t, []string{"Mars", "Venus", "Option C", "Option D"}, q.Options)
	assert.Equal(t, "A", q.Answer)
	assert.Empty(t, q.Explanation)
}

func TestExtractQuiz_MultipleQuestions(t *testing.T) {
	raw := `1. Which gas do plants
take in from the air?
A) Oxygen
B) Carbon dioxide
C) Nitrogen
D) Helium
ANSWER: B
Explanation: Plants take in CO2 for photosynthesis.

2. What is H2O commonly called?
A. Water
B. Salt
Correct: A`

	quiz := ExtractQuiz(raw, "chemistry")

	require.Len(t, quiz.Questions, 2)

	first := quiz.Questions[0]
	assert.Equal(t, "Which gas do plants take in from the air?", first.Question)
	assert.Equal(t, []string{"Oxygen", "Carbon dioxide", "Nitrogen", "Helium"}, first.Options)
	assert.Equal(t, "B", first.Answer)
	assert.Equal(t, "Plants take in CO2 for photosynthesis.", first.Explanation)

	second := quiz.Questions[1]
	assert.Equal(t, "What is H2O commonly called?", second.Question)
	assert.Equal(t, []string{"Water", "Salt", "Option C", "Option D"}, second.Options)
	assert.Equal(t, "A", second.Answer)
}

func TestExtractQuiz_AnswerLetterForms(t *testing.T) {
	cases := map[string]string{
		"ANSWER: C":            "C",
		"Answer: d":            "D",
		"ANSWER:(B)":           "B",
		"Correct: C) Nitrogen": "C",
		"Right answer is D":    "D",
	}
	for line, want := range cases {
		raw := "Q: Which option is the right one here?\nA) one\nB) two\nC) three\nD) four\n" + line
		quiz := ExtractQuiz(raw, "letters")
		require.Len(t, quiz.Questions, 1, line)
		assert.Equal(t, want, quiz.Questions[0].Answer, line)
	}
}

func TestExtractQuiz_DropsQuestionsWithTooFewOptions(t *testing.T) {
	raw := "Q: A question with only one option?\nA) Lonely\nQ: Another question with two options?\nA) First\nB) Second"

	quiz := ExtractQuiz(raw, "t")

	require.Len(t, quiz.Questions, 1)
	assert.Equal(t, "Another question with two options?", quiz.Questions[0].Question)
}

func TestExtractQuiz_DropsQuestionsWithTooManyOptions(t *testing.T) {
	raw := "Q: Which of these is a primary color?\nA) Red\nB) Blue\nC) Yellow\nD) Green\nD) Purple"

	quiz := ExtractQuiz(raw, "colors")

	assert.Empty(t, quiz.Questions)
}

func TestExtractQuiz_OptionKeywordForm(t *testing.T) {
	raw := "Question 1: What is the largest ocean on Earth?\nOption A: Atlantic\nOption B - Pacific\nOption C Indian\nOption D) Arctic\nANSWER: B"

	quiz := ExtractQuiz(raw, "geo")

	require.Len(t, quiz.Questions, 1)
	assert.Equal(t, "What is the largest ocean on Earth?", quiz.Questions[0].Question)
	assert.Equal(t, []string{"Atlantic", "Pacific", "Indian", "Arctic"}, quiz.Questions[0].Options)
	assert.Equal(t, "B", quiz.Questions[0].Answer)
}

func TestExtractQuiz_Degenerate(t *testing.T) {
	for _, raw := range []string{"", "\n\n", "no markers at all in this text", "ANSWER: B"} {
		quiz := ExtractQuiz(raw, "topic")
		assert.Equal(t, "topic", quiz.Topic)
		assert.NotNil(t, quiz.Questions)
		assert.Empty(t, quiz.Questions, "input %q", raw)
	}
}

func TestExtractQuiz_Invariants(t *testing.T) {
	inputs := []string{
		"Q: **Bold** question here?\nA) **x**\nB) yy\nC)\nD) zz\nANSWER: Z",
		"1. First numbered question\nA) aa\nB) bb\n2. Second numbered question\nA) cc\nB) dd\nC) ee\nRight: C",
		strings.Repeat("Q: Repeated question text?\nA) one\nB) two\n", 5),
	}
	for _, raw := range inputs {
		quiz := ExtractQuiz(raw, "inv")
		for _, q := range quiz.Questions {
			assert.NotEmpty(t, q.Question)
			assert.Len(t, q.Options, models.OptionCount)
			assert.Contains(t, []string{"A", "B", "C", "D"}, q.Answer)
		}
	}
}
