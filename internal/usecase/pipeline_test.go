package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"newsdigest/internal/classify"
	"newsdigest/internal/domain"
	"newsdigest/internal/fetch"
	"newsdigest/internal/retry"
)

type queueKey struct {
	newsID int64
	digest domain.DigestType
}

// memStore is an in-memory stand-in for the SQLite repository implementing the
// source, news, and queue store ports.
type memStore struct {
	mu         sync.Mutex
	sources    []domain.Source
	touched    map[int64]time.Time
	news       []domain.NewsItem
	nextNewsID int64
	hashes     map[string]bool
	classified map[int64]domain.Classification
	queue      map[queueKey]domain.QueueStatus
}

func newMemStore() *memStore {
	return &memStore{
		touched:    map[int64]time.Time{},
		hashes:     map[string]bool{},
		classified: map[int64]domain.Classification{},
		queue:      map[queueKey]domain.QueueStatus{},
	}
}

func (m *memStore) addSource(sourceType, url string) domain.Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := domain.Source{ID: int64(len(m.sources) + 1), Type: sourceType, URL: url}
	m.sources = append(m.sources, src)
	return src
}

func (m *memStore) addNews(url, title, content string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextNewsID++
	m.news = append(m.news, domain.NewsItem{
		ID:      m.nextNewsID,
		URL:     url,
		Title:   title,
		Content: content,
		Hash:    domain.Fingerprint(url),
	})
	m.hashes[domain.Fingerprint(url)] = true
	return m.nextNewsID
}

func (m *memStore) UpsertSource(_ context.Context, sourceType, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sources {
		if s.URL == url {
			m.sources[i].Type = sourceType
			return nil
		}
	}
	m.sources = append(m.sources, domain.Source{ID: int64(len(m.sources) + 1), Type: sourceType, URL: url})
	return nil
}

func (m *memStore) ListSources(context.Context) ([]domain.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Source, len(m.sources))
	copy(out, m.sources)
	return out, nil
}

func (m *memStore) TouchSource(_ context.Context, id int64, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched[id] = checkedAt
	return nil
}

func (m *memStore) InsertNews(_ context.Context, item domain.NewsItem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hashes[item.Hash] {
		return false, nil
	}
	m.hashes[item.Hash] = true
	m.nextNewsID++
	item.ID = m.nextNewsID
	m.news = append(m.news, item)
	return true, nil
}

func (m *memStore) UnclassifiedNews(context.Context) ([]domain.NewsItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.NewsItem
	for _, n := range m.news {
		if _, ok := m.classified[n.ID]; !ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memStore) SaveClassification(_ context.Context, newsID int64, c domain.Classification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.classified[newsID]; ok {
		return nil
	}
	m.classified[newsID] = c
	return nil
}

func (m *memStore) Enqueue(_ context.Context, newsID int64, digest domain.DigestType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := queueKey{newsID: newsID, digest: digest}
	if _, ok := m.queue[key]; ok {
		return nil
	}
	m.queue[key] = domain.StatusReady
	return nil
}

func (m *memStore) ReadyQueue(_ context.Context, digest domain.DigestType) ([]domain.NewsItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.NewsItem
	for _, n := range m.news {
		if m.queue[queueKey{newsID: n.ID, digest: digest}] != domain.StatusReady {
			continue
		}
		if c, ok := m.classified[n.ID]; ok {
			n.Summary = c.Summary
			n.Topics = c.Topics
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *memStore) MarkSent(_ context.Context, digest domain.DigestType, newsIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range newsIDs {
		key := queueKey{newsID: id, digest: digest}
		if m.queue[key] == domain.StatusReady {
			m.queue[key] = domain.StatusSent
		}
	}
	return nil
}

func (m *memStore) queueStatus(newsID int64, digest domain.DigestType) (domain.QueueStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.queue[queueKey{newsID: newsID, digest: digest}]
	return status, ok
}

type stubFetcher struct {
	sourceType string
	items      []domain.RawItem
	err        error
}

func (f *stubFetcher) Type() string { return f.sourceType }

func (f *stubFetcher) Fetch(context.Context, string) ([]domain.RawItem, error) {
	return f.items, f.err
}

type stubScorer struct {
	fn func(text string, labels []string) (map[string]float64, error)
}

func (s *stubScorer) Score(_ context.Context, text string, labels []string) (map[string]float64, error) {
	return s.fn(text, labels)
}

type stubSummarizer struct {
	fn func(text string) (string, error)
}

func (s *stubSummarizer) Summarize(_ context.Context, text string, _, _ int) (string, error) {
	if s.fn == nil {
		return "summary of " + text[:min(20, len(text))], nil
	}
	return s.fn(text)
}

type stubTranslator struct {
	fn func(text string) (string, error)
}

func (s *stubTranslator) Translate(_ context.Context, text, _ string) (string, error) {
	if s.fn == nil {
		return text, nil
	}
	return s.fn(text)
}

func testVocabulary() classify.Vocabulary {
	return classify.Vocabulary{
		Lowbank: []string{"Crypto"},
		General: []string{"Economy"},
	}
}

func fixedScores(scores map[string]float64) *stubScorer {
	return &stubScorer{fn: func(_ string, labels []string) (map[string]float64, error) {
		out := map[string]float64{}
		for _, label := range labels {
			out[label] = scores[label]
		}
		return out, nil
	}}
}

func newTestPipeline(store *memStore, registry *fetch.Registry, scorer *stubScorer, opts Options) *Pipeline {
	if registry == nil {
		registry = fetch.NewRegistry()
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.Config{MaxAttempts: 1}
	}
	return NewPipeline(PipelineDeps{
		Registry:   registry,
		Sources:    store,
		News:       store,
		Queue:      store,
		Scorer:     scorer,
		Summarizer: &stubSummarizer{},
		Translator: &stubTranslator{},
		Vocabulary: testVocabulary(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Options:    opts,
	})
}

func TestRunIngestsClassifiesAndRoutes(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.addSource("rss", "https://example.com/feed")

	registry := fetch.NewRegistry()
	registry.Register(&stubFetcher{sourceType: "rss", items: []domain.RawItem{
		{URL: "https://example.com/btc", Title: "Bitcoin rallies", Content: "Markets moved.", PublishedAt: time.Now()},
	}})

	scorer := fixedScores(map[string]float64{"Crypto": 0.9, "Economy": 0.1})
	p := newTestPipeline(store, registry, scorer, Options{AdvanceCheckedOnFailure: true})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(store.news) != 1 {
		t.Fatalf("expected 1 ingested item, got %d", len(store.news))
	}
	c, ok := store.classified[store.news[0].ID]
	if !ok {
		t.Fatal("expected item to be classified")
	}
	if len(c.Topics) != 1 || c.Topics[0] != "Crypto" {
		t.Fatalf("expected topics [Crypto], got %v", c.Topics)
	}
	if status, ok := store.queueStatus(store.news[0].ID, domain.DigestLowbank); !ok || status != domain.StatusReady {
		t.Fatalf("expected ready lowbank entry, got %v ok=%v", status, ok)
	}
	if _, ok := store.queueStatus(store.news[0].ID, domain.DigestGeneral); ok {
		t.Fatal("expected no general entry for a lowbank-only item")
	}
	if _, ok := store.touched[store.sources[0].ID]; !ok {
		t.Fatal("expected last_checked advanced after a successful fetch")
	}
}

func TestFailingSourceDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	bad := store.addSource("bad", "https://down.example.com/feed")
	good := store.addSource("rss", "https://up.example.com/feed")

	registry := fetch.NewRegistry()
	registry.Register(&stubFetcher{sourceType: "bad", err: errors.New("connection refused")})
	registry.Register(&stubFetcher{sourceType: "rss", items: []domain.RawItem{
		{URL: "https://up.example.com/1", Title: "A", PublishedAt: time.Now()},
	}})

	scorer := fixedScores(map[string]float64{"Economy": 0.8})
	p := newTestPipeline(store, registry, scorer, Options{AdvanceCheckedOnFailure: true})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(store.news) != 1 {
		t.Fatalf("expected the healthy source ingested, got %d items", len(store.news))
	}
	if _, ok := store.touched[good.ID]; !ok {
		t.Fatal("expected healthy source touched")
	}
	if _, ok := store.touched[bad.ID]; !ok {
		t.Fatal("expected failing source touched so it is not retried in a tight loop")
	}
}

func TestFailedFetchKeepsLastCheckedWhenConfigured(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	bad := store.addSource("bad", "https://down.example.com/feed")

	registry := fetch.NewRegistry()
	registry.Register(&stubFetcher{sourceType: "bad", err: errors.New("boom")})

	p := newTestPipeline(store, registry, fixedScores(nil), Options{AdvanceCheckedOnFailure: false})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok := store.touched[bad.ID]; ok {
		t.Fatal("expected failing source left untouched")
	}
}

func TestUnknownSourceTypeSkipped(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.addSource("telegram", "https://t.example.com/channel")

	p := newTestPipeline(store, fetch.NewRegistry(), fixedScores(nil), Options{})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(store.news) != 0 {
		t.Fatalf("expected nothing ingested, got %d items", len(store.news))
	}
	if len(store.touched) != 0 {
		t.Fatal("expected skipped source untouched")
	}
}

func TestDuplicateItemsInSingleFetchCollapse(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.addSource("rss", "https://example.com/feed")

	registry := fetch.NewRegistry()
	registry.Register(&stubFetcher{sourceType: "rss", items: []domain.RawItem{
		{URL: "https://example.com/a", Title: "A", PublishedAt: time.Now()},
		{URL: "https://example.com/a", Title: "A again", PublishedAt: time.Now()},
	}})

	scorer := fixedScores(map[string]float64{"Economy": 0.9})
	p := newTestPipeline(store, registry, scorer, Options{})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(store.news) != 1 {
		t.Fatalf("expected 1 deduplicated item, got %d", len(store.news))
	}
}

func TestScoringFailureLeavesItemUnclassified(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	id := store.addNews("https://example.com/a", "A", "content")

	scorer := &stubScorer{fn: func(string, []string) (map[string]float64, error) {
		return nil, errors.New("model unavailable")
	}}
	p := newTestPipeline(store, nil, scorer, Options{})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok := store.classified[id]; ok {
		t.Fatal("expected item to stay unclassified after a scoring failure")
	}
	if len(store.queue) != 0 {
		t.Fatal("expected no queue entries")
	}
}

func TestNoThresholdClearedLeavesItemUnclassified(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	id := store.addNews("https://example.com/a", "A", "content")

	scorer := fixedScores(map[string]float64{"Crypto": 0.2, "Economy": 0.1, "Other": 0.3})
	p := newTestPipeline(store, nil, scorer, Options{})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok := store.classified[id]; ok {
		t.Fatal("expected no classification persisted below both thresholds")
	}
	if len(store.queue) != 0 {
		t.Fatal("expected no queue entries")
	}
}

func TestOtherFallbackRoutesToGeneralOnly(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	id := store.addNews("https://example.com/a", "A", "content")

	scorer := fixedScores(map[string]float64{"Crypto": 0.45, "Economy": 0.3, "Other": 0.1})
	p := newTestPipeline(store, nil, scorer, Options{})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	c, ok := store.classified[id]
	if !ok {
		t.Fatal("expected fallback classification persisted")
	}
	if len(c.Topics) != 1 || c.Topics[0] != classify.OtherLabel {
		t.Fatalf("expected topics [Other], got %v", c.Topics)
	}
	if _, ok := store.queueStatus(id, domain.DigestGeneral); !ok {
		t.Fatal("expected fallback routed to general")
	}
	if _, ok := store.queueStatus(id, domain.DigestLowbank); ok {
		t.Fatal("expected fallback not routed to lowbank")
	}
}

func TestDualRoutingAcrossVocabularies(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	id := store.addNews("https://example.com/a", "A", "content")

	scorer := fixedScores(map[string]float64{"Crypto": 0.9, "Economy": 0.8})
	p := newTestPipeline(store, nil, scorer, Options{})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, digest := range domain.AllDigests {
		if _, ok := store.queueStatus(id, digest); !ok {
			t.Fatalf("expected entry in %s queue", digest)
		}
	}
}

func TestSummarizationDegradesToExcerpt(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	id := store.addNews("https://example.com/a", "A", "The original   body text.")

	p := NewPipeline(PipelineDeps{
		Registry:   fetch.NewRegistry(),
		Sources:    store,
		News:       store,
		Queue:      store,
		Scorer:     fixedScores(map[string]float64{"Economy": 0.9}),
		Summarizer: &stubSummarizer{fn: func(string) (string, error) { return "", errors.New("quota exceeded") }},
		Translator: &stubTranslator{},
		Vocabulary: testVocabulary(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Options:    Options{Retry: retry.Config{MaxAttempts: 1}},
	})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	c, ok := store.classified[id]
	if !ok {
		t.Fatal("expected item classified despite summarization failure")
	}
	if c.Summary != "The original body text." {
		t.Fatalf("expected whitespace-collapsed excerpt, got %q", c.Summary)
	}
}

func TestTranslationDegradesToOriginal(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	id := store.addNews("https://example.com/a", "A", "body")

	p := NewPipeline(PipelineDeps{
		Registry:   fetch.NewRegistry(),
		Sources:    store,
		News:       store,
		Queue:      store,
		Scorer:     fixedScores(map[string]float64{"Economy": 0.9}),
		Summarizer: &stubSummarizer{fn: func(string) (string, error) { return "short summary", nil }},
		Translator: &stubTranslator{fn: func(string) (string, error) { return "", errors.New("unsupported locale") }},
		Vocabulary: testVocabulary(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Options:    Options{Retry: retry.Config{MaxAttempts: 1}, TargetLocale: "uk"},
	})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if c := store.classified[id]; c.Summary != "short summary" {
		t.Fatalf("expected untranslated summary kept, got %q", c.Summary)
	}
}

func TestRerunAfterClassificationIsStable(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	id := store.addNews("https://example.com/a", "A", "body")

	calls := 0
	scorer := &stubScorer{fn: func(_ string, labels []string) (map[string]float64, error) {
		calls++
		out := map[string]float64{}
		for _, label := range labels {
			if label == "Crypto" {
				out[label] = 0.9
			}
		}
		return out, nil
	}}
	p := newTestPipeline(store, nil, scorer, Options{})

	for i := 0; i < 2; i++ {
		if err := p.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	if calls != 1 {
		t.Fatalf("expected a classified item not to be re-scored, got %d calls", calls)
	}
	if status, _ := store.queueStatus(id, domain.DigestLowbank); status != domain.StatusReady {
		t.Fatalf("expected single ready entry, got %v", status)
	}
}

func TestExcerptCutsAtSentenceBoundary(t *testing.T) {
	t.Parallel()

	sentence := "This is a fairly long sentence that keeps going for a while. "
	text := strings.Repeat(sentence, 20)

	got := excerpt(text)
	if len([]rune(got)) > excerptRunes {
		t.Fatalf("excerpt exceeds budget: %d runes", len([]rune(got)))
	}
	if !strings.HasSuffix(got, ".") {
		t.Fatalf("expected cut at sentence boundary, got %q", got[len(got)-10:])
	}
}

func TestExcerptKeepsShortTextIntact(t *testing.T) {
	t.Parallel()

	if got := excerpt("short  text\nwith   gaps"); got != "short text with gaps" {
		t.Fatalf("unexpected excerpt %q", got)
	}
}
