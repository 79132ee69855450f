package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"newsdigest/internal/domain"
	"newsdigest/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    type TEXT NOT NULL,
    url TEXT NOT NULL UNIQUE,
    last_checked TIMESTAMP
);

CREATE TABLE IF NOT EXISTS news (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id INTEGER NOT NULL,
    url TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL,
    content TEXT,
    published_at TIMESTAMP NOT NULL,
    summary TEXT,
    topics TEXT,
    hash TEXT NOT NULL UNIQUE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (source_id) REFERENCES sources(id)
);

CREATE INDEX IF NOT EXISTS idx_news_hash ON news(hash);
CREATE INDEX IF NOT EXISTS idx_news_topics ON news(topics);

CREATE TABLE IF NOT EXISTS queue (
    news_id INTEGER NOT NULL,
    digest_type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'ready',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (news_id, digest_type),
    FOREIGN KEY (news_id) REFERENCES news(id)
);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Repository persists pipeline state in SQLite. It implements the source, news,
// queue, and settings store ports.
type Repository struct {
	db *sql.DB
}

var (
	_ ports.SourceStore   = (*Repository)(nil)
	_ ports.NewsStore     = (*Repository)(nil)
	_ ports.QueueStore    = (*Repository)(nil)
	_ ports.SettingsStore = (*Repository)(nil)
)

// NewRepository opens (or creates) the database file and applies the schema.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close releases the underlying connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// UpsertSource registers a source by URL; a re-run updates the type only.
func (r *Repository) UpsertSource(ctx context.Context, sourceType, url string) error {
	query, args, err := sq.Insert("sources").
		Columns("type", "url").
		Values(sourceType, url).
		Suffix("ON CONFLICT(url) DO UPDATE SET type = excluded.type").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert source: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert source %s: %w", url, err)
	}
	return nil
}

// ListSources returns all registered sources in insertion order.
func (r *Repository) ListSources(ctx context.Context) ([]domain.Source, error) {
	query, args, err := sq.Select("id", "type", "url", "last_checked").
		From("sources").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sources: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		var s domain.Source
		var checked sql.NullTime
		if err := rows.Scan(&s.ID, &s.Type, &s.URL, &checked); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		if checked.Valid {
			s.LastChecked = checked.Time
		}
		sources = append(sources, s)
	}

	return sources, rows.Err()
}

// TouchSource advances the last_checked timestamp after a fetch attempt.
func (r *Repository) TouchSource(ctx context.Context, id int64, checkedAt time.Time) error {
	query, args, err := sq.Update("sources").
		Set("last_checked", checkedAt).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch source: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("touch source %d: %w", id, err)
	}
	return nil
}

// InsertNews stores the item unless its fingerprint (or URL) was seen before.
// The conflict-ignore insert is a single atomic statement, so concurrent
// ingestion of the same URL cannot produce two rows.
func (r *Repository) InsertNews(ctx context.Context, item domain.NewsItem) (bool, error) {
	query, args, err := sq.Insert("news").
		Columns("source_id", "url", "title", "content", "published_at", "hash").
		Values(item.SourceID, item.URL, item.Title, item.Content, item.PublishedAt, item.Hash).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert news: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert news %s: %w", item.URL, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert news rows affected: %w", err)
	}
	return affected > 0, nil
}

// UnclassifiedNews returns items the classification stage has not yet written,
// oldest first.
func (r *Repository) UnclassifiedNews(ctx context.Context) ([]domain.NewsItem, error) {
	query, args, err := sq.Select("id", "source_id", "url", "title", "content", "published_at", "hash").
		From("news").
		Where("topics IS NULL").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build unclassified query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query unclassified news: %w", err)
	}
	defer rows.Close()

	var items []domain.NewsItem
	for rows.Next() {
		var n domain.NewsItem
		var content sql.NullString
		if err := rows.Scan(&n.ID, &n.SourceID, &n.URL, &n.Title, &content, &n.PublishedAt, &n.Hash); err != nil {
			return nil, fmt.Errorf("scan news: %w", err)
		}
		n.Content = content.String
		items = append(items, n)
	}

	return items, rows.Err()
}

// SaveClassification persists topics and summary once. An item that already has
// topics is left untouched, which makes re-runs of the classification stage safe.
func (r *Repository) SaveClassification(ctx context.Context, newsID int64, c domain.Classification) error {
	topics, err := json.Marshal(c.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}

	query, args, err := sq.Update("news").
		Set("summary", c.Summary).
		Set("topics", string(topics)).
		Where(sq.Eq{"id": newsID}).
		Where("topics IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build save classification: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save classification %d: %w", newsID, err)
	}
	return nil
}

// Enqueue inserts a ready entry for (newsID, digest) if none exists. A rerun
// never duplicates an entry or resets a sent one back to ready.
func (r *Repository) Enqueue(ctx context.Context, newsID int64, digest domain.DigestType) error {
	query, args, err := sq.Insert("queue").
		Columns("news_id", "digest_type", "status").
		Values(newsID, string(digest), string(domain.StatusReady)).
		Suffix("ON CONFLICT(news_id, digest_type) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build enqueue: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("enqueue news %d for %s: %w", newsID, digest, err)
	}
	return nil
}

// ReadyQueue returns ready entries joined to their news items in insertion
// order (increasing news id).
func (r *Repository) ReadyQueue(ctx context.Context, digest domain.DigestType) ([]domain.NewsItem, error) {
	query, args, err := sq.Select("n.id", "n.url", "n.title", "n.summary", "n.topics").
		From("queue q").
		Join("news n ON n.id = q.news_id").
		Where(sq.Eq{"q.digest_type": string(digest), "q.status": string(domain.StatusReady)}).
		OrderBy("n.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ready queue query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ready queue: %w", err)
	}
	defer rows.Close()

	var items []domain.NewsItem
	for rows.Next() {
		var n domain.NewsItem
		var summary, topics sql.NullString
		if err := rows.Scan(&n.ID, &n.URL, &n.Title, &summary, &topics); err != nil {
			return nil, fmt.Errorf("scan queue row: %w", err)
		}
		n.Summary = summary.String
		if topics.Valid && topics.String != "" {
			if err := json.Unmarshal([]byte(topics.String), &n.Topics); err != nil {
				return nil, fmt.Errorf("decode topics for news %d: %w", n.ID, err)
			}
		}
		items = append(items, n)
	}

	return items, rows.Err()
}

// MarkSent finalizes delivered entries. Only ready rows transition; sent is terminal.
func (r *Repository) MarkSent(ctx context.Context, digest domain.DigestType, newsIDs []int64) error {
	if len(newsIDs) == 0 {
		return nil
	}

	query, args, err := sq.Update("queue").
		Set("status", string(domain.StatusSent)).
		Where(sq.Eq{
			"digest_type": string(digest),
			"status":      string(domain.StatusReady),
			"news_id":     newsIDs,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark sent: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark sent for %s: %w", digest, err)
	}
	return nil
}

// GetSetting reads a boolean toggle; a missing key reads as false.
func (r *Repository) GetSetting(ctx context.Context, key string) (bool, error) {
	query, args, err := sq.Select("value").
		From("settings").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build get setting: %w", err)
	}

	var value int
	switch err := r.db.QueryRowContext(ctx, query, args...).Scan(&value); {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value != 0, nil
}

// SetSetting upserts a boolean toggle.
func (r *Repository) SetSetting(ctx context.Context, key string, value bool) error {
	stored := 0
	if value {
		stored = 1
	}

	query, args, err := sq.Insert("settings").
		Columns("key", "value").
		Values(key, stored).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP").
		ToSql()
	if err != nil {
		return fmt.Errorf("build set setting: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// EnabledCount reports how many of the given topics are toggled on for a digest.
func (r *Repository) EnabledCount(ctx context.Context, digest domain.DigestType, topics []string) (int, error) {
	if len(topics) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(topics))
	for _, topic := range topics {
		keys = append(keys, domain.SettingKey(digest, topic))
	}

	query, args, err := sq.Select("COUNT(*)").
		From("settings").
		Where(sq.Eq{"key": keys}).
		Where(sq.Eq{"value": 1}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build enabled count: %w", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count enabled settings: %w", err)
	}
	return count, nil
}
