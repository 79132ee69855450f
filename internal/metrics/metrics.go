package metrics

import (
	"sync"
	"time"
)

// Metrics tracks pipeline progress counters for the monitoring endpoints.
type Metrics struct {
	mu sync.RWMutex

	ItemsFetched           int64
	ItemsIngested          int64
	DuplicatesSkipped      int64
	ItemsClassified        int64
	ClassificationFailures int64
	FetchFailures          int64
	DigestsSent            int64
	DeliveryFailures       int64

	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

// Global is the process-wide instance read by the /health and /metrics handlers.
var Global = &Metrics{IsHealthy: true}

func (m *Metrics) AddFetched(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsFetched += int64(n)
}

func (m *Metrics) AddIngested(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsIngested += int64(n)
}

func (m *Metrics) AddDuplicates(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesSkipped += int64(n)
}

func (m *Metrics) IncClassified() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsClassified++
}

func (m *Metrics) IncClassificationFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClassificationFailures++
}

func (m *Metrics) IncFetchFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchFailures++
}

func (m *Metrics) IncDigestSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DigestsSent++
}

func (m *Metrics) IncDeliveryFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeliveryFailures++
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

// GetStats snapshots all counters for JSON serialization.
func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"items_fetched":           m.ItemsFetched,
		"items_ingested":          m.ItemsIngested,
		"duplicates_skipped":      m.DuplicatesSkipped,
		"items_classified":        m.ItemsClassified,
		"classification_failures": m.ClassificationFailures,
		"fetch_failures":          m.FetchFailures,
		"digests_sent":            m.DigestsSent,
		"delivery_failures":       m.DeliveryFailures,
		"last_run_time":           m.LastRunTime.Format(time.RFC3339),
		"last_error_time":         m.LastErrorTime.Format(time.RFC3339),
		"last_error":              m.LastError,
		"is_healthy":              m.IsHealthy,
	}
}
