package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DigestType names an audience bucket with its own topic vocabulary and queue.
type DigestType string

const (
	DigestLowbank DigestType = "lowbank"
	DigestGeneral DigestType = "general"
)

// AllDigests lists every digest in delivery order.
var AllDigests = []DigestType{DigestLowbank, DigestGeneral}

// QueueStatus enumerates queue entry lifecycle states.
type QueueStatus string

const (
	StatusReady QueueStatus = "ready"
	StatusSent  QueueStatus = "sent"
)

// Source is a registered news origin. LastChecked is zero until the first fetch attempt.
type Source struct {
	ID          int64
	Type        string
	URL         string
	LastChecked time.Time
}

// RawItem is a normalized article produced by a fetcher before ingestion.
type RawItem struct {
	URL         string
	Title       string
	Content     string
	PublishedAt time.Time
}

// NewsItem is a deduplicated article persisted by the ingest stage.
// Summary and Topics stay empty until classification runs.
type NewsItem struct {
	ID          int64
	SourceID    int64
	URL         string
	Title       string
	Content     string
	PublishedAt time.Time
	Summary     string
	Topics      []string
	Hash        string
}

// Classification is the write-once result of the classification stage.
type Classification struct {
	Topics  []string
	Summary string
}

// QueueEntry binds a news item to a digest queue. (NewsID, DigestType) is unique;
// Status moves ready -> sent exactly once and never back.
type QueueEntry struct {
	NewsID     int64
	DigestType DigestType
	Status     QueueStatus
}

// SettingKey builds the per-topic-per-digest toggle key used by the settings table.
func SettingKey(digest DigestType, topic string) string {
	return string(digest) + "_" + topic
}

// Fingerprint derives the dedup hash from the canonical item URL. Titles are
// excluded on purpose: sources edit headlines without publishing a new article.
func Fingerprint(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
