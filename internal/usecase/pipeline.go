package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"newsdigest/internal/classify"
	"newsdigest/internal/domain"
	"newsdigest/internal/fetch"
	"newsdigest/internal/metrics"
	"newsdigest/internal/ports"
	"newsdigest/internal/retry"
)

const excerptRunes = 500

// Options tunes a pipeline run.
type Options struct {
	FetchConcurrency int
	FetchTimeout     time.Duration
	RequestTimeout   time.Duration
	Retry            retry.Config
	TargetLocale     string
	SummaryMaxWords  int
	SummaryMinWords  int
	TopicThreshold   float64
	OtherThreshold   float64
	// AdvanceCheckedOnFailure makes a failed fetch still count as "checked".
	AdvanceCheckedOnFailure bool
}

// PipelineDeps wires all driven adapters into the ingestion workflow.
type PipelineDeps struct {
	Registry   *fetch.Registry
	Sources    ports.SourceStore
	News       ports.NewsStore
	Queue      ports.QueueStore
	Scorer     ports.TopicScorer
	Summarizer ports.Summarizer
	Translator ports.Translator
	Vocabulary classify.Vocabulary
	Logger     *slog.Logger
	Options    Options
}

// Pipeline implements the fetch -> dedup/ingest -> classify -> route workflow.
// Every stage write is individually idempotent, so a run may be interrupted and
// repeated without corrupting state.
type Pipeline struct {
	registry   *fetch.Registry
	sources    ports.SourceStore
	news       ports.NewsStore
	queue      ports.QueueStore
	scorer     ports.TopicScorer
	summarizer ports.Summarizer
	translator ports.Translator
	vocab      classify.Vocabulary
	logger     *slog.Logger
	opts       Options
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Options.FetchConcurrency < 1 {
		deps.Options.FetchConcurrency = 1
	}
	if deps.Options.TopicThreshold == 0 {
		deps.Options.TopicThreshold = classify.DefaultThreshold
	}
	if deps.Options.OtherThreshold == 0 {
		deps.Options.OtherThreshold = classify.DefaultOtherThreshold
	}
	return &Pipeline{
		registry:   deps.Registry,
		sources:    deps.Sources,
		news:       deps.News,
		queue:      deps.Queue,
		scorer:     deps.Scorer,
		summarizer: deps.Summarizer,
		translator: deps.Translator,
		vocab:      deps.Vocabulary,
		logger:     deps.Logger,
		opts:       deps.Options,
	}
}

// Run executes one full pipeline pass. Only storage failures abort it.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.fetchAndIngest(ctx); err != nil {
		return err
	}
	return p.classifyAndRoute(ctx)
}

// fetchAndIngest pulls every registered source through its fetcher and inserts
// unseen items. Sources are fetched concurrently under a bounded pool so one
// slow source cannot stall the rest; a failing source is logged and skipped.
func (p *Pipeline) fetchAndIngest(ctx context.Context) error {
	sources, err := p.sources.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.FetchConcurrency)

	for _, src := range sources {
		src := src
		fetcher, err := p.registry.Resolve(src.Type)
		if err != nil {
			// Unknown source types are forward-compatible placeholders.
			p.logger.Debug("skipping source with unknown type", "type", src.Type, "url", src.URL)
			continue
		}

		g.Go(func() error {
			return p.processSource(gctx, fetcher, src)
		})
	}

	return g.Wait()
}

func (p *Pipeline) processSource(ctx context.Context, fetcher fetch.Fetcher, src domain.Source) error {
	fctx, cancel := context.WithTimeout(ctx, p.fetchTimeout())
	defer cancel()

	items, err := fetcher.Fetch(fctx, src.URL)
	checkedAt := time.Now().UTC()
	if err != nil {
		metrics.Global.IncFetchFailure()
		p.logger.Warn("source fetch failed", "url", src.URL,
			"error", fmt.Errorf("%w: %v", ErrFetch, err))
		if p.opts.AdvanceCheckedOnFailure {
			return p.sources.TouchSource(ctx, src.ID, checkedAt)
		}
		return nil
	}

	metrics.Global.AddFetched(len(items))

	inserted, duplicates := 0, 0
	for _, raw := range items {
		if raw.URL == "" {
			continue
		}

		ok, err := p.news.InsertNews(ctx, domain.NewsItem{
			SourceID:    src.ID,
			URL:         raw.URL,
			Title:       raw.Title,
			Content:     raw.Content,
			PublishedAt: raw.PublishedAt,
			Hash:        domain.Fingerprint(raw.URL),
		})
		if err != nil {
			return fmt.Errorf("ingest %s: %w", raw.URL, err)
		}
		if ok {
			inserted++
		} else {
			duplicates++
		}
	}

	metrics.Global.AddIngested(inserted)
	metrics.Global.AddDuplicates(duplicates)
	p.logger.Info("source processed", "url", src.URL, "fetched", len(items),
		"inserted", inserted, "duplicates", duplicates)

	return p.sources.TouchSource(ctx, src.ID, checkedAt)
}

// classifyAndRoute scores every still-unclassified item, applies the
// threshold/fallback policy, and enqueues matches. Items whose scoring fails,
// or that clear no threshold, stay unclassified and are picked up again on the
// next run.
func (p *Pipeline) classifyAndRoute(ctx context.Context) error {
	items, err := p.news.UnclassifiedNews(ctx)
	if err != nil {
		return fmt.Errorf("load unclassified news: %w", err)
	}

	for _, item := range items {
		// Interruptible between items; completed writes stay.
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.classifyItem(ctx, item); err != nil {
			return err
		}
	}

	return nil
}

func (p *Pipeline) classifyItem(ctx context.Context, item domain.NewsItem) error {
	text := item.Title + ". " + excerpt(item.Content)

	var scores map[string]float64
	err := retry.WithRetry(ctx, p.opts.Retry, func() error {
		sctx, cancel := context.WithTimeout(ctx, p.requestTimeout())
		defer cancel()
		var serr error
		scores, serr = p.scorer.Score(sctx, text, p.vocab.Labels())
		return serr
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.Global.IncClassificationFailure()
		p.logger.Warn("scoring failed, item stays unclassified", "news_id", item.ID,
			"error", fmt.Errorf("%w: %v", ErrClassification, err))
		return nil
	}

	selected := classify.Select(scores, p.opts.TopicThreshold, p.opts.OtherThreshold)
	if len(selected) == 0 {
		p.logger.Debug("no topic cleared the thresholds", "news_id", item.ID, "url", item.URL)
		return nil
	}

	summary := p.summarize(ctx, item, text)
	summary = p.translate(ctx, item, summary)

	if err := p.news.SaveClassification(ctx, item.ID, domain.Classification{
		Topics:  selected,
		Summary: summary,
	}); err != nil {
		return fmt.Errorf("save classification %d: %w", item.ID, err)
	}
	metrics.Global.IncClassified()

	for _, digest := range p.vocab.Route(selected) {
		if err := p.queue.Enqueue(ctx, item.ID, digest); err != nil {
			return fmt.Errorf("enqueue %d: %w", item.ID, err)
		}
	}

	p.logger.Info("item classified", "news_id", item.ID, "topics", selected)
	return nil
}

// summarize degrades to a raw excerpt when the capability keeps failing; the
// item is still classified and delivered.
func (p *Pipeline) summarize(ctx context.Context, item domain.NewsItem, text string) string {
	var summary string
	err := retry.WithRetry(ctx, p.opts.Retry, func() error {
		sctx, cancel := context.WithTimeout(ctx, p.requestTimeout())
		defer cancel()
		var serr error
		summary, serr = p.summarizer.Summarize(sctx, text, p.opts.SummaryMaxWords, p.opts.SummaryMinWords)
		return serr
	})
	if err != nil || strings.TrimSpace(summary) == "" {
		p.logger.Warn("summarization degraded to excerpt", "news_id", item.ID,
			"error", fmt.Errorf("%w: %v", ErrSummarization, err))
		return excerpt(item.Content)
	}
	return strings.TrimSpace(summary)
}

// translate degrades to the untranslated text on persistent failure.
func (p *Pipeline) translate(ctx context.Context, item domain.NewsItem, text string) string {
	if p.opts.TargetLocale == "" {
		return text
	}

	var translated string
	err := retry.WithRetry(ctx, p.opts.Retry, func() error {
		tctx, cancel := context.WithTimeout(ctx, p.requestTimeout())
		defer cancel()
		var terr error
		translated, terr = p.translator.Translate(tctx, text, p.opts.TargetLocale)
		return terr
	})
	if err != nil || strings.TrimSpace(translated) == "" {
		p.logger.Warn("translation degraded to original language", "news_id", item.ID,
			"error", fmt.Errorf("%w: %v", ErrTranslation, err))
		return text
	}
	return strings.TrimSpace(translated)
}

func (p *Pipeline) fetchTimeout() time.Duration {
	if p.opts.FetchTimeout <= 0 {
		return 30 * time.Second
	}
	return p.opts.FetchTimeout
}

func (p *Pipeline) requestTimeout() time.Duration {
	if p.opts.RequestTimeout <= 0 {
		return 60 * time.Second
	}
	return p.opts.RequestTimeout
}

// excerpt collapses whitespace and cuts at a rune budget, preferring a
// sentence boundary.
func excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= excerptRunes {
		return text
	}

	trimmed := string(runes[:excerptRunes])
	if idx := strings.LastIndex(trimmed, ". "); idx > excerptRunes/4 {
		return trimmed[:idx+1]
	}
	return trimmed
}
