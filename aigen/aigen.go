// Package aigen is the generative answer fallback: an OpenAI-compatible
// Chat Completions client producing short answers to application questions
// from job context.
package aigen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/applyd/question"
)

const systemPrompt = `You answer job application form questions on behalf of a candidate.
Answer concisely in first person. If the question asks for a number, answer with just the number.
If you cannot answer truthfully from the provided context, reply with exactly NO_ANSWER.`

// Config configures the Chat Completions client.
type Config struct {
	// BaseURL without trailing slash, e.g. https://api.openai.com/v1.
	// Any OpenAI-compatible endpoint works.
	BaseURL string
	APIKey  string
	Model   string

	Timeout time.Duration
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client implements question.Answerer over Chat Completions.
type Client struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger
}

var _ question.Answerer = (*Client)(nil)

// New creates a client. The API key is required.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("aigen: api key empty")
	}
	cfg.defaults()
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    cfg.Logger,
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Answer asks the model for an answer grounded in jc. An explicit model
// refusal (NO_ANSWER) returns "" with nil error so the caller skips the
// field instead of retrying.
func (c *Client) Answer(ctx context.Context, q string, jc question.JobContext) (string, error) {
	reqBody := struct {
		Model    string    `json:"model"`
		Messages []message `json:"messages"`
	}{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(q, jc)},
		},
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("aigen: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("aigen: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("aigen: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("aigen: http %d", resp.StatusCode)
	}

	var payload struct {
		Choices []struct {
			Message message `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("aigen: decode response: %w", err)
	}

	for _, choice := range payload.Choices {
		answer := strings.TrimSpace(choice.Message.Content)
		if answer == "" {
			continue
		}
		if answer == "NO_ANSWER" {
			c.log.Debug("aigen: model declined", "question", q)
			return "", nil
		}
		return answer, nil
	}
	return "", errors.New("aigen: no choice content")
}

func buildPrompt(q string, jc question.JobContext) string {
	var b strings.Builder
	b.WriteString("Job application question: ")
	b.WriteString(q)
	b.WriteString("\n\n")
	if jc.Title != "" {
		fmt.Fprintf(&b, "Position: %s\n", jc.Title)
	}
	if jc.Company != "" {
		fmt.Fprintf(&b, "Company: %s\n", jc.Company)
	}
	if jc.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", jc.Location)
	}
	if jc.Description != "" {
		fmt.Fprintf(&b, "\nJob description:\n%s\n", jc.Description)
	}
	return b.String()
}
