package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"newsdigest/internal/ports"
)

// OpenAIClient implements the NLP ports against any OpenAI-compatible chat
// completions endpoint. It is the fallback backend when Gemini is not configured.
type OpenAIClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

var (
	_ ports.TopicScorer = (*OpenAIClient)(nil)
	_ ports.Summarizer  = (*OpenAIClient)(nil)
	_ ports.Translator  = (*OpenAIClient)(nil)
)

// NewOpenAIClient builds a client from endpoint, model, and API key.
func NewOpenAIClient(endpoint, model, apiKey string) *OpenAIClient {
	return &OpenAIClient{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// Score rates the text against every candidate label.
func (c *OpenAIClient) Score(ctx context.Context, text string, labels []string) (map[string]float64, error) {
	raw, err := c.complete(ctx, scorePrompt(truncate(text), labels))
	if err != nil {
		return nil, err
	}
	return parseScores(raw, labels)
}

// Summarize produces a short-form version bounded by the word budget.
func (c *OpenAIClient) Summarize(ctx context.Context, text string, maxWords, minWords int) (string, error) {
	return c.complete(ctx, summaryPrompt(truncate(text), maxWords, minWords))
}

// Translate renders the text in the target locale.
func (c *OpenAIClient) Translate(ctx context.Context, text, targetLocale string) (string, error) {
	return c.complete(ctx, translatePrompt(truncate(text), targetLocale))
}

func (c *OpenAIClient) complete(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("openai client misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("completion error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}

	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}
