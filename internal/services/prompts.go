package services

import (
	"fmt"
	"strings"
)

const (
	flashcardCount    = 5
	quizQuestionCount = 3

	generationTemperature = 0.3
	chatTemperature       = 0.7
	defaultTopP           = 0.9
	chatMaxTokens         = 200

	maxTopicChars   = 200
	maxContextChars = 4000
	maxChatChars    = 2000
)

const tutorSystemPrompt = "You are a helpful AI tutor. Provide a clear, concise answer to the student's question."

func flashcardPrompt(topic, context string) string {
	topic = sanitizeForPrompt(topic, maxTopicChars)

	var b strings.Builder
	fmt.Fprintf(&b, "Create exactly %d educational flashcards about %s.\n\n", flashcardCount, topic)
	writeContext(&b, context)
	b.WriteString(`IMPORTANT FORMATTING RULES:
- Each flashcard must be exactly 2 lines: Q: question? and A: answer.
- Questions should be clear and test understanding
- Answers should be concise (1-2 sentences max)
- Use simple language
- No extra explanations or notes

EXAMPLE:
Q: What is photosynthesis?
A: The process where plants convert sunlight into energy.

Q: Why is photosynthesis important?
A: It produces oxygen and provides energy for plants.

`)
	fmt.Fprintf(&b, "Now create %d flashcards about %s following the exact format above:", flashcardCount, topic)
	return b.String()
}

func quizPrompt(topic, context string) string {
	topic = sanitizeForPrompt(topic, maxTopicChars)

	var b strings.Builder
	fmt.Fprintf(&b, "Create exactly %d multiple choice questions about %s.\n\n", quizQuestionCount, topic)
	writeContext(&b, context)
	fmt.Fprintf(&b, `IMPORTANT FORMATTING RULES:
- Each question must have exactly 4 options (A, B, C, D)
- One option must be clearly correct
- Options should be plausible but distinct
- Include ANSWER: [letter] after each question
- Include EXPLANATION: one sentence after the answer
- Questions should test different aspects of %s

FORMAT EXAMPLE:
Q: What is the main purpose of photosynthesis?
A) To absorb water from soil
B) To convert sunlight into energy
C) To produce flowers
D) To attract insects
ANSWER: B
EXPLANATION: Plants turn light energy into chemical energy stored as sugar.

Q: Which organelle performs photosynthesis?
A) Mitochondria
B) Nucleus
C) Chloroplast
D) Ribosome
ANSWER: C
EXPLANATION: Chloroplasts contain the chlorophyll that captures light.

`, topic)
	fmt.Fprintf(&b, "Now create %d questions about %s following the exact format above:", quizQuestionCount, topic)
	return b.String()
}

func chatPrompt(message, context string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "STUDENT QUESTION: %s\n", sanitizeForPrompt(message, maxChatChars))
	if context = sanitizeForPrompt(context, maxContextChars); context != "" {
		fmt.Fprintf(&b, "CONTEXT/SUBJECT: %s\n", context)
	}
	b.WriteString(`
GUIDELINES:
- Keep answer under 100 words
- Focus on key concepts
- Use simple, clear language
- Be educational but not overly technical
- If explaining a process, use 2-3 steps max
- End with a quick summary

ANSWER:`)
	return b.String()
}

func writeContext(b *strings.Builder, context string) {
	context = sanitizeForPrompt(context, maxContextChars)
	if context == "" {
		return
	}
	fmt.Fprintf(b, "Base the content on this study material:\n%s\n\n", context)
}
