package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"study-ai/internal/models"
	"study-ai/internal/ollama"
)

// OllamaGenerator talks to the native Ollama API. Single prompts go to
// /api/generate, prompts with history go to /api/chat.
type OllamaGenerator struct {
	client *ollama.Client
	stream bool
}

// NewOllamaGenerator returns a generator over client. With stream set, completions
// are read as NDJSON chunks and concatenated before being returned.
func NewOllamaGenerator(client *ollama.Client, stream bool) *OllamaGenerator {
	return &OllamaGenerator{client: client, stream: stream}
}

func (g *OllamaGenerator) Model() string {
	return g.client.Model()
}

func (g *OllamaGenerator) Ping(ctx context.Context) error {
	return mapOllamaError(g.client.CheckRunning(ctx))
}

func (g *OllamaGenerator) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	opts := &ollama.Options{
		Temperature: req.Temperature,
		TopP:        req.TopP,
		NumPredict:  req.MaxTokens,
	}

	if len(req.History) > 0 {
		messages := make([]ollama.Message, 0, len(req.History)+2)
		if req.System != "" {
			messages = append(messages, ollama.NewSystemMessage(req.System))
		}
		for _, m := range req.History {
			messages = append(messages, ollama.Message{Role: m.Role, Content: m.Content})
		}
		messages = append(messages, ollama.NewUserMessage(req.Prompt))

		resp, err := g.client.Chat(ctx, "", messages, opts)
		if err != nil {
			return "", mapOllamaError(err)
		}
		return resp.Message.Content, nil
	}

	genReq := ollama.GenerateRequest{
		Prompt:  req.Prompt,
		System:  req.System,
		Options: opts,
	}
	if g.stream {
		text, err := g.client.Collect(ctx, genReq)
		return text, mapOllamaError(err)
	}
	resp, err := g.client.Generate(ctx, genReq)
	if err != nil {
		return "", mapOllamaError(err)
	}
	return resp.Response, nil
}

func mapOllamaError(err error) error {
	switch {
	case err == nil:
		return nil
	case ollama.IsTimeout(err):
		return fmt.Errorf("%w: %w", ErrAITimeout, err)
	case ollama.IsNotRunning(err), ollama.IsModelNotFound(err):
		return fmt.Errorf("%w: %w", ErrAIUnavailable, err)
	}
	var clientErr *ollama.ClientError
	if errors.As(err, &clientErr) && clientErr.Type == ollama.ErrTypeServer {
		return fmt.Errorf("%w: %w", ErrAIUnavailable, err)
	}
	return fmt.Errorf("ollama: %w", err)
}

// OpenAIGenerator talks to any OpenAI-compatible chat completions endpoint,
// including Ollama's own /v1 API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

func NewOpenAIGenerator(apiKey, apiEndpoint, model string) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if apiEndpoint != "" {
		cfg.BaseURL = apiEndpoint
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (g *OpenAIGenerator) Model() string {
	return g.model
}

func (g *OpenAIGenerator) Ping(ctx context.Context) error {
	_, err := g.client.ListModels(ctx)
	return mapOpenAIError(err)
}

func (g *OpenAIGenerator) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{Role: openAIRole(m), Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		TopP:        float32(req.TopP),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIRole(m models.ChatMessage) string {
	if m.Role == openai.ChatMessageRoleAssistant {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}

func mapOpenAIError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrAITimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %w", ErrAITimeout, err)
		}
		return fmt.Errorf("%w: %w", ErrAIUnavailable, err)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusNotFound || status >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %w", ErrAIUnavailable, err)
	}
	return fmt.Errorf("openai: %w", err)
}
