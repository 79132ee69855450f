package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"newsdigest/internal/domain"
	"newsdigest/internal/fetch"
)

// RSSFetcher retrieves and normalizes syndication feeds.
type RSSFetcher struct {
	parser *gofeed.Parser
}

var _ fetch.Fetcher = (*RSSFetcher)(nil)

// NewRSSFetcher wires an HTTP client; a nil client gets a 20s-timeout default.
func NewRSSFetcher(client *http.Client) *RSSFetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = "newsdigest/1.0"
	return &RSSFetcher{parser: parser}
}

// Type identifies the strategy inside the registry.
func (f *RSSFetcher) Type() string {
	return "rss"
}

// Fetch parses the feed and returns one raw item per entry. Entries without a
// link are dropped; a missing publication date falls back to the current time.
func (f *RSSFetcher) Fetch(ctx context.Context, url string) ([]domain.RawItem, error) {
	feed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", url, err)
	}

	items := make([]domain.RawItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry.Link == "" {
			continue
		}

		content := entry.Description
		if content == "" {
			content = entry.Content
		}

		published := time.Now().UTC()
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		}

		items = append(items, domain.RawItem{
			URL:         entry.Link,
			Title:       strings.TrimSpace(entry.Title),
			Content:     strings.TrimSpace(content),
			PublishedAt: published,
		})
	}

	return items, nil
}
