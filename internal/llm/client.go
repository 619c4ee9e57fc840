// Package llm is a thin chat-completion client for the evaluation proxy.
// The proxy accepts only a messages array; model selection and auth live on
// the proxy side.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"resilience-sim/internal/model"
)

// Client posts chat transcripts and returns the assistant's reply text.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient builds a client for the given proxy URL. An empty URL yields a
// disabled client; callers check Enabled before use.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a proxy URL is configured.
func (c *Client) Enabled() bool { return c.baseURL != "" }

type chatRequest struct {
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends the transcript and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, messages []model.ConversationMessage) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("llm client disabled: no proxy url configured")
	}

	reqBody := chatRequest{Messages: make([]chatMessage, 0, len(messages))}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, chatMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("llm proxy returned %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty response from llm proxy")
	}
	return parsed.Choices[0].Message.Content, nil
}
