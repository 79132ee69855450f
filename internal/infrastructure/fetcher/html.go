package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"newsdigest/internal/domain"
	"newsdigest/internal/fetch"
)

const defaultMaxParagraphs = 3

// HTMLFetcher extracts a single item from a plain web page: the document title
// plus the first few paragraphs as content.
type HTMLFetcher struct {
	client        *http.Client
	maxParagraphs int
}

var _ fetch.Fetcher = (*HTMLFetcher)(nil)

// NewHTMLFetcher wires an HTTP client; a nil client gets a 20s-timeout default.
func NewHTMLFetcher(client *http.Client) *HTMLFetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HTMLFetcher{client: client, maxParagraphs: defaultMaxParagraphs}
}

// Type identifies the strategy inside the registry.
func (f *HTMLFetcher) Type() string {
	return "html"
}

// Fetch downloads the page and returns one raw item. The page URL doubles as
// the item URL, so repeated runs of the same source dedup to a single article
// until the page address changes.
func (f *HTMLFetcher) Fetch(ctx context.Context, url string) ([]domain.RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "newsdigest/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page %s returned %s", url, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = url
	}

	var paragraphs []string
	doc.Find("p").EachWithBreak(func(i int, p *goquery.Selection) bool {
		if text := strings.TrimSpace(p.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
		return len(paragraphs) < f.maxParagraphs
	})

	return []domain.RawItem{{
		URL:         url,
		Title:       title,
		Content:     strings.Join(paragraphs, "\n"),
		PublishedAt: time.Now().UTC(),
	}}, nil
}
