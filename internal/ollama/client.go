// Package ollama is a small client for the native Ollama REST API.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "http://127.0.0.1:11434"
	DefaultModel   = "phi3:mini"
)

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL uses an explicit IPv4 address to avoid localhost resolving to ::1.
	BaseURL string
	// Timeout bounds non-streaming requests. Streams are bounded by ctx only.
	Timeout      time.Duration
	DefaultModel string
	// MaxRetries is the number of extra attempts after a connection failure or 5xx.
	MaxRetries int
	RetryDelay time.Duration
}

func DefaultConfig() ClientConfig {
	return ClientConfig{
		BaseURL:      DefaultBaseURL,
		Timeout:      90 * time.Second,
		DefaultModel: DefaultModel,
		MaxRetries:   2,
		RetryDelay:   time.Second,
	}
}

// Client is safe for concurrent use.
type Client struct {
	config       ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient fills zero-valued fields of cfg from DefaultConfig.
func NewClient(cfg ClientConfig) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = def.DefaultModel
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}

	return &Client{
		config:       cfg,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		streamClient: &http.Client{},
	}
}

// Model returns the model used when a request leaves it empty.
func (c *Client) Model() string {
	return c.config.DefaultModel
}

// CheckRunning verifies that Ollama answers on /api/tags.
func (c *Client) CheckRunning(ctx context.Context) error {
	resp, err := c.send(ctx, c.httpClient, http.MethodGet, "/api/tags", nil, 0)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, "health check")
}

func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.send(ctx, c.httpClient, http.MethodGet, "/api/tags", nil, c.config.MaxRetries)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "list models"); err != nil {
		return nil, err
	}

	var result ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return result.Models, nil
}

// Generate runs a single non-streaming completion.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.Model == "" {
		req.Model = c.config.DefaultModel
	}
	req.Stream = false

	resp, err := c.postJSON(ctx, c.httpClient, "/api/generate", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "generate"); err != nil {
		return nil, err
	}

	var result GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return &result, nil
}

// StreamCallback receives each decoded NDJSON line of a streaming generation.
type StreamCallback func(chunk GenerateResponse)

// GenerateStream runs a streaming completion and hands every chunk to cb.
// It returns after the chunk with done=true, or an error if the stream ends early.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest, cb StreamCallback) error {
	if req.Model == "" {
		req.Model = c.config.DefaultModel
	}
	req.Stream = true

	resp, err := c.postJSON(ctx, c.streamClient, "/api/generate", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "generate"); err != nil {
		return err
	}
	return readStream(ctx, resp.Body, cb)
}

// Collect streams a completion and returns the concatenated text of every chunk.
// Partial text is never returned.
func (c *Client) Collect(ctx context.Context, req GenerateRequest) (string, error) {
	var sb strings.Builder
	err := c.GenerateStream(ctx, req, func(chunk GenerateResponse) {
		sb.WriteString(chunk.Response)
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Chat sends a non-streaming /api/chat request.
func (c *Client) Chat(ctx context.Context, model string, messages []Message, opts *Options) (*ChatResponse, error) {
	if model == "" {
		model = c.config.DefaultModel
	}
	reqBody := ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  opts,
	}

	resp, err := c.postJSON(ctx, c.httpClient, "/api/chat", reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "chat"); err != nil {
		return nil, err
	}

	var result ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return &result, nil
}

func (c *Client) postJSON(ctx context.Context, hc *http.Client, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}
	return c.send(ctx, hc, http.MethodPost, path, body, c.config.MaxRetries)
}

// send performs the request with a fixed delay between attempts. Only connection
// failures and 5xx responses are retried. Any other response is returned unread.
func (c *Client) send(ctx context.Context, hc *http.Client, method, path string, body []byte, retries int) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(c.config.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, transportError(ctx.Err())
			case <-timer.C:
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
		if err != nil {
			return nil, &ClientError{Type: ErrTypeUnknown, Message: "failed to create request", Cause: err}
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := hc.Do(req)
		if err != nil {
			lastErr = transportError(err)
			if ctx.Err() != nil || !IsNotRunning(lastErr) {
				return nil, lastErr
			}
			continue
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr = statusError(resp, method+" "+path)
			resp.Body.Close()
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

func checkStatus(resp *http.Response, op string) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	return statusError(resp, op)
}

func statusError(resp *http.Response, op string) error {
	msg := fmt.Sprintf("%s failed: %s", op, resp.Status)
	var apiErr OllamaError
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr); err == nil && apiErr.Error != "" {
		msg = fmt.Sprintf("%s failed: %s", op, apiErr.Error)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &ClientError{Type: ErrTypeModelNotFound, Message: msg}
	case resp.StatusCode >= http.StatusInternalServerError:
		return &ClientError{Type: ErrTypeServer, Message: msg}
	default:
		return &ClientError{Type: ErrTypeInvalidResponse, Message: msg}
	}
}

func readStream(ctx context.Context, r io.Reader, cb StreamCallback) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return transportError(err)
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk struct {
			GenerateResponse
			Error string `json:"error"`
		}
		if err := json.Unmarshal(line, &chunk); err != nil {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode stream chunk", Cause: err}
		}
		if chunk.Error != "" {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: "stream error: " + chunk.Error}
		}
		cb(chunk.GenerateResponse)
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return transportError(err)
	}
	return &ClientError{Type: ErrTypeInvalidResponse, Message: "stream ended before completion"}
}
