// Package vlm implements a budgeted, timed, retried call surface over a
// vision-language chat backend, plus the response parser that turns
// free-form model text into a structured decision.
package vlm

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"sync"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"

	bperr "github.com/kestrelsoft/boardpilot/internal/domain/errors"
)

// Config controls the client's budget/timeout/retry guard.
type Config struct {
	Model            string
	BudgetPerSession int
	MaxRetries       int
	Timeout          time.Duration
	Temperature      float32
	MaxTokens        int
}

func DefaultConfig() Config {
	return Config{
		Model:            openai.GPT4o,
		BudgetPerSession: 50,
		MaxRetries:       2,
		Timeout:          30 * time.Second,
		Temperature:      0.7,
		MaxTokens:        1024,
	}
}

// Client wraps an OpenAI-compatible chat backend with a per-session call
// budget, a per-attempt timeout, and bounded retries. Only successful
// calls consume the budget; a timed-out attempt never does.
type Client struct {
	backend *openai.Client
	cfg     Config

	mu        sync.Mutex
	callsUsed int64
}

func New(apiKey string, cfg Config) *Client {
	return &Client{backend: openai.NewClient(apiKey), cfg: cfg}
}

// NewWithBaseURL points the backend at a non-default endpoint (a local
// proxy or a compatible third-party API).
func NewWithBaseURL(apiKey, baseURL string, cfg Config) *Client {
	c := openai.DefaultConfig(apiKey)
	c.BaseURL = baseURL
	return &Client{backend: openai.NewClientWithConfig(c), cfg: cfg}
}

// CallsUsed reports the current budget consumption.
func (c *Client) CallsUsed() int {
	return int(atomic.LoadInt64(&c.callsUsed))
}

// Chat sends a plain text conversation and returns the assistant's reply.
func (c *Client) Chat(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	return c.call(ctx, messages)
}

// ChatWithImage sends a single-turn prompt alongside an image
// (PNG-encoded and base64-inlined as a data URL) and an optional system
// prompt.
func (c *Client) ChatWithImage(ctx context.Context, prompt string, img image.Image, systemPrompt string) (string, error) {
	dataURL, err := encodeImageDataURL(img)
	if err != nil {
		return "", bperr.NewBackendError(0, fmt.Errorf("encoding screenshot for VLM call: %w", err))
	}

	var messages []openai.ChatCompletionMessage
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
		},
	})

	return c.call(ctx, messages)
}

// call implements the budget→timeout→retry guard shared by Chat and
// ChatWithImage.
func (c *Client) call(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	c.mu.Lock()
	used := c.callsUsed
	budget := c.cfg.BudgetPerSession
	c.mu.Unlock()
	if budget > 0 && used >= int64(budget) {
		return "", bperr.NewBudgetExhaustedError(budget, int(used))
	}

	var lastErr error
	attempts := c.cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		text, err := c.attempt(ctx, messages)
		if err == nil {
			atomic.AddInt64(&c.callsUsed, 1)
			return text, nil
		}
		if _, isTimeout := err.(*bperr.TimeoutError); isTimeout {
			// Timeouts are not retried and never touch the budget.
			return "", err
		}
		lastErr = err
	}
	return "", bperr.NewBackendError(attempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}

	resp, err := c.backend.CreateChatCompletion(attemptCtx, req)
	if err != nil {
		if attemptCtx.Err() != nil {
			return "", bperr.NewTimeoutError(c.cfg.Timeout.String())
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("vlm backend returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func encodeImageDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
