// Package openai is a small client for OpenAI-compatible chat completion and
// audio transcription endpoints.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// Config holds one service's credentials. Speech-to-text and text generation
// may point at different providers, so each gets its own Client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Timeout bounds a single request; 0 means 120s.
	Timeout time.Duration
}

// Client talks to one OpenAI-compatible endpoint with one model. It holds no
// per-request state and is safe for concurrent use.
type Client struct {
	client  *resty.Client
	baseURL string
	model   string
}

func New(cfg Config) *Client {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	client := resty.New().
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)

	return &Client{client: client, baseURL: baseURL, model: cfg.Model}
}

// Model returns the model identifier sent with every request.
func (c *Client) Model() string {
	return c.model
}

// APIError is a non-2xx answer from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai: HTTP %d: %s", e.StatusCode, e.Message)
}

type errorEnvelope struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func apiError(resp *resty.Response) error {
	msg := strings.TrimSpace(string(resp.Body()))
	var env errorEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err == nil && env.Error != nil && env.Error.Message != "" {
		msg = env.Error.Message
	}
	if len(msg) > 500 {
		msg = msg[:500]
	}
	if msg == "" {
		msg = resp.Status()
	}
	return &APIError{StatusCode: resp.StatusCode(), Message: msg}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ChatCompletion sends a system and a user message and returns the first
// choice's content.
func (c *Client) ChatCompletion(ctx context.Context, system, user string) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
	}

	var out chatResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post(c.baseURL + "/chat/completions")
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if !resp.IsSuccess() {
		return "", apiError(resp)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai: chat completion returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

type transcriptionResponse struct {
	Text json.RawMessage `json:"text"`
}

// Transcribe uploads the audio file at path and returns its transcript. A
// missing or non-string text field is an empty transcript, not an error.
func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetFile("file", path).
		SetFormData(map[string]string{
			"model":           c.model,
			"response_format": "json",
		}).
		Post(c.baseURL + "/audio/transcriptions")
	if err != nil {
		return "", fmt.Errorf("openai: transcribe %s: %w", filepath.Base(path), err)
	}
	if !resp.IsSuccess() {
		return "", apiError(resp)
	}

	var out transcriptionResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", nil
	}
	var text string
	if err := json.Unmarshal(out.Text, &text); err != nil {
		return "", nil
	}
	return text, nil
}
