package ports

import (
	"context"
	"time"

	"newsdigest/internal/domain"
)

// SourceStore keeps the registry of known sources.
type SourceStore interface {
	UpsertSource(ctx context.Context, sourceType, url string) error
	ListSources(ctx context.Context) ([]domain.Source, error)
	TouchSource(ctx context.Context, id int64, checkedAt time.Time) error
}

// NewsStore persists deduplicated news items and their classification.
type NewsStore interface {
	// InsertNews stores the item unless its fingerprint was seen before.
	// A duplicate is reported via inserted=false, never as an error.
	InsertNews(ctx context.Context, item domain.NewsItem) (inserted bool, err error)
	UnclassifiedNews(ctx context.Context) ([]domain.NewsItem, error)
	// SaveClassification writes topics and summary once; an already classified
	// item is left untouched.
	SaveClassification(ctx context.Context, newsID int64, c domain.Classification) error
}

// QueueStore manages per-digest delivery queues.
type QueueStore interface {
	// Enqueue inserts a ready entry for (newsID, digest) if none exists.
	Enqueue(ctx context.Context, newsID int64, digest domain.DigestType) error
	ReadyQueue(ctx context.Context, digest domain.DigestType) ([]domain.NewsItem, error)
	MarkSent(ctx context.Context, digest domain.DigestType, newsIDs []int64) error
}

// SettingsStore holds per-topic-per-digest boolean toggles read by the
// presentation layer. The pipeline itself does not consult them.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (bool, error)
	SetSetting(ctx context.Context, key string, value bool) error
}

// TopicScorer rates how relevant a text is to each candidate label.
type TopicScorer interface {
	Score(ctx context.Context, text string, labels []string) (map[string]float64, error)
}

// Summarizer produces a short-form version of a text bounded by a word budget.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxWords, minWords int) (string, error)
}

// Translator renders a text in the target locale.
type Translator interface {
	Translate(ctx context.Context, text, targetLocale string) (string, error)
}

// Notifier posts a formatted digest message to the delivery channel.
type Notifier interface {
	Post(ctx context.Context, text string) error
}

// Scheduler controls when recurring jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
