// Package feedback talks to the advisory code-review service. Feedback is
// best-effort: callers store whatever comes back and swallow failures.
package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Provider generates improvement suggestions for submitted code.
type Provider interface {
	Review(ctx context.Context, code, language string) (string, error)
}

// HTTPProvider implements Provider against a chat-completion style API.
type HTTPProvider struct {
	apiURL     string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewHTTPProvider(apiURL, apiKey, model string) *HTTPProvider {
	return &HTTPProvider{
		apiURL: apiURL,
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (p *HTTPProvider) Review(ctx context.Context, code, language string) (string, error) {
	prompt := fmt.Sprintf(
		"Review the following %s solution to a programming challenge. "+
			"Give short, concrete suggestions for improving correctness, readability and efficiency.\n\n%s",
		language, code)

	body, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a concise code reviewer for a programming e-learning platform."},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal feedback request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build feedback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("feedback request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("feedback service returned status %d", resp.StatusCode)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", fmt.Errorf("failed to decode feedback response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("feedback response contained no choices")
	}
	return chat.Choices[0].Message.Content, nil
}

// NoopProvider is used when no feedback service is configured.
type NoopProvider struct{}

func (NoopProvider) Review(ctx context.Context, code, language string) (string, error) {
	return "", nil
}
