package nlp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseScores decodes a model response that is expected to be a JSON object
// mapping label to a 0..1 relevance score. Models habitually wrap JSON in
// markdown fences, so those are stripped first. Labels missing from the
// response score zero; unknown labels are dropped.
func parseScores(raw string, labels []string) (map[string]float64, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if start := strings.Index(cleaned, "{"); start > 0 {
		cleaned = cleaned[start:]
	}
	if end := strings.LastIndex(cleaned, "}"); end >= 0 {
		cleaned = cleaned[:end+1]
	}

	var decoded map[string]float64
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, fmt.Errorf("decode score response: %w", err)
	}

	scores := make(map[string]float64, len(labels))
	for _, label := range labels {
		scores[label] = clamp01(decoded[label])
	}
	return scores, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func scorePrompt(text string, labels []string) string {
	var b strings.Builder
	b.WriteString("Rate how relevant the news text below is to each candidate topic.\n")
	b.WriteString("Respond with a single JSON object mapping every topic to a score between 0 and 1.\n")
	b.WriteString("Do not add commentary or topics outside the list.\n\n")
	b.WriteString("Topics: ")
	b.WriteString(strings.Join(labels, ", "))
	b.WriteString("\n\nText:\n")
	b.WriteString(text)
	return b.String()
}

func summaryPrompt(text string, maxWords, minWords int) string {
	return fmt.Sprintf(
		"Summarize the news text below in %d to %d words. Keep the original language, "+
			"keep proper names unchanged, and reply with the summary only.\n\n%s",
		minWords, maxWords, text)
}

func translatePrompt(text, targetLocale string) string {
	return fmt.Sprintf(
		"Translate the text below into the language with locale code %q. "+
			"Translate naturally, keep proper names and brands unchanged, "+
			"and reply with the translation only.\n\n%s",
		targetLocale, text)
}
