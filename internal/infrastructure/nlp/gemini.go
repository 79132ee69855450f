package nlp

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"newsdigest/internal/ports"
)

const maxPromptRunes = 6000

// GeminiClient backs the scoring, summarization, and translation ports with
// the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

var (
	_ ports.TopicScorer = (*GeminiClient)(nil)
	_ ports.Summarizer  = (*GeminiClient)(nil)
	_ ports.Translator  = (*GeminiClient)(nil)
)

// NewGeminiClient builds a client for the given API key and model name.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// Close releases the underlying connection.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Score rates the text against every candidate label.
func (c *GeminiClient) Score(ctx context.Context, text string, labels []string) (map[string]float64, error) {
	raw, err := c.generate(ctx, scorePrompt(truncate(text), labels))
	if err != nil {
		return nil, err
	}
	return parseScores(raw, labels)
}

// Summarize produces a short-form version bounded by the word budget.
func (c *GeminiClient) Summarize(ctx context.Context, text string, maxWords, minWords int) (string, error) {
	return c.generate(ctx, summaryPrompt(truncate(text), maxWords, minWords))
}

// Translate renders the text in the target locale.
func (c *GeminiClient) Translate(ctx context.Context, text, targetLocale string) (string, error) {
	return c.generate(ctx, translatePrompt(truncate(text), targetLocale))
}

func (c *GeminiClient) generate(ctx context.Context, prompt string) (string, error) {
	model := c.client.GenerativeModel(c.model)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from gemini")
	}

	return strings.TrimSpace(fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])), nil
}

// truncate bounds prompt size, cutting on a rune boundary and preferring a
// sentence end.
func truncate(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= maxPromptRunes {
		return text
	}

	runes := []rune(text)
	trimmed := string(runes[:maxPromptRunes])
	if idx := strings.LastIndex(trimmed, ". "); idx > maxPromptRunes/4 {
		trimmed = trimmed[:idx+1]
	}
	return trimmed
}
