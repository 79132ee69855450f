package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"newsdigest/internal/domain"
	"newsdigest/internal/metrics"
	"newsdigest/internal/ports"
	"newsdigest/internal/retry"
)

// Sender drains a digest queue into a single delivery-channel message.
// Entries are marked sent only after confirmed delivery, so a failed post is
// retried wholesale on the next invocation: duplicate delivery is acceptable,
// silent loss is not.
type Sender struct {
	queue    ports.QueueStore
	notifier ports.Notifier
	logger   *slog.Logger
	timeout  time.Duration
	retryCfg retry.Config
	now      func() time.Time
	locks    map[domain.DigestType]*sync.Mutex
}

// NewSender wires the queue store and delivery channel.
func NewSender(queue ports.QueueStore, notifier ports.Notifier, logger *slog.Logger, timeout time.Duration, retryCfg retry.Config) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	locks := make(map[domain.DigestType]*sync.Mutex, len(domain.AllDigests))
	for _, digest := range domain.AllDigests {
		locks[digest] = &sync.Mutex{}
	}

	return &Sender{
		queue:    queue,
		notifier: notifier,
		logger:   logger,
		timeout:  timeout,
		retryCfg: retryCfg,
		now:      time.Now,
		locks:    locks,
	}
}

// Send delivers all ready entries for one digest type and returns the number
// of items sent. An empty queue is a no-op. The read-then-mark sequence is a
// critical section per digest type: a second concurrent Send for the same
// digest waits, sees no ready rows, and sends nothing.
func (s *Sender) Send(ctx context.Context, digest domain.DigestType) (int, error) {
	mu, ok := s.locks[digest]
	if !ok {
		return 0, fmt.Errorf("unknown digest type %q", digest)
	}
	mu.Lock()
	defer mu.Unlock()

	items, err := s.queue.ReadyQueue(ctx, digest)
	if err != nil {
		return 0, fmt.Errorf("load ready queue for %s: %w", digest, err)
	}
	if len(items) == 0 {
		s.logger.Debug("digest queue empty", "digest", digest)
		return 0, nil
	}

	message := RenderDigest(items, s.now())

	err = retry.WithRetry(ctx, s.retryCfg, func() error {
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return s.notifier.Post(pctx, message)
	})
	if err != nil {
		metrics.Global.IncDeliveryFailure()
		return 0, fmt.Errorf("%w for %s: %v", ErrDelivery, digest, err)
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	if err := s.queue.MarkSent(ctx, digest, ids); err != nil {
		return 0, fmt.Errorf("mark sent for %s: %w", digest, err)
	}

	metrics.Global.IncDigestSent()
	s.logger.Info("digest delivered", "digest", digest, "items", len(items))
	return len(items), nil
}

// SendAll delivers every digest type in order. A delivery failure on one
// digest does not block the others; the errors are joined.
func (s *Sender) SendAll(ctx context.Context) (int, error) {
	total := 0
	var errs []error
	for _, digest := range domain.AllDigests {
		sent, err := s.Send(ctx, digest)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total += sent
	}
	return total, errors.Join(errs...)
}

// RenderDigest formats the composite message: one Markdown block per item
// separated by blank lines, with a trailing timestamp line.
func RenderDigest(items []domain.NewsItem, now time.Time) string {
	blocks := make([]string, 0, len(items))
	for _, item := range items {
		blocks = append(blocks, renderItem(item))
	}

	var b strings.Builder
	b.WriteString(strings.Join(blocks, "\n\n"))
	b.WriteString(fmt.Sprintf("\n\n_Published at %s_", now.Format("15:04 02.01.2006")))
	return b.String()
}

// markdownEscaper neutralizes the metacharacters Telegram's legacy Markdown
// mode lets a backslash escape. An unbalanced bracket or underscore in a title
// would otherwise make the API reject the whole digest.
var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"`", "\\`",
	"[", "\\[",
)

func renderItem(n domain.NewsItem) string {
	tags := make([]string, 0, len(n.Topics))
	for _, topic := range n.Topics {
		tags = append(tags, "#"+strings.Join(strings.Fields(topic), ""))
	}
	return fmt.Sprintf("[%s](%s)\n%s\n\n%s",
		markdownEscaper.Replace(n.Title), n.URL,
		markdownEscaper.Replace(n.Summary), strings.Join(tags, " "))
}
