package app

import (
	"context"
	"fmt"
	"log/slog"

	"newsdigest/internal/config"
	"newsdigest/internal/domain"
	"newsdigest/internal/fetch"
	"newsdigest/internal/infrastructure/fetcher"
	"newsdigest/internal/infrastructure/nlp"
	"newsdigest/internal/infrastructure/scheduler"
	"newsdigest/internal/infrastructure/storage"
	"newsdigest/internal/infrastructure/telegram"
	"newsdigest/internal/logging"
	"newsdigest/internal/ports"
	"newsdigest/internal/retry"
	"newsdigest/internal/usecase"
)

// Application wires configuration to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	repo      *storage.Repository
	pipeline  *usecase.Pipeline
	sender    *usecase.Sender
	scheduler *usecase.Scheduler
	nlpCloser func() error
}

// New builds a runnable application instance: storage, fetcher registry, NLP
// backend, delivery channel, and the pipeline/sender use cases on top.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	repo, err := storage.NewRepository(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	registry := fetch.NewRegistry()
	registry.Register(fetcher.NewRSSFetcher(nil))
	registry.Register(fetcher.NewHTMLFetcher(nil))

	scorer, summarizer, translator, closer, err := buildNLP(ctx, cfg.NLP)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	retryCfg := retry.Config{
		MaxAttempts: cfg.Pipeline.RetryAttempts,
		Delay:       cfg.Pipeline.RetryDelay(),
		Backoff:     true,
	}

	vocab := cfg.Topics.Vocabulary()

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Registry:   registry,
		Sources:    repo,
		News:       repo,
		Queue:      repo,
		Scorer:     scorer,
		Summarizer: summarizer,
		Translator: translator,
		Vocabulary: vocab,
		Logger:     baseLogger.With("component", "pipeline"),
		Options: usecase.Options{
			FetchConcurrency:        cfg.Pipeline.FetchConcurrency,
			FetchTimeout:            cfg.Pipeline.FetchTimeout(),
			RequestTimeout:          cfg.Pipeline.RequestTimeout(),
			Retry:                   retryCfg,
			TargetLocale:            cfg.NLP.TargetLocale,
			SummaryMaxWords:         cfg.NLP.SummaryMaxWords,
			SummaryMinWords:         cfg.NLP.SummaryMinWords,
			TopicThreshold:          cfg.NLP.TopicThreshold,
			OtherThreshold:          cfg.NLP.OtherThreshold,
			AdvanceCheckedOnFailure: cfg.Pipeline.AdvanceOnFailure(),
		},
	})

	notifier := telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	sender := usecase.NewSender(repo, notifier,
		baseLogger.With("component", "sender"),
		cfg.Pipeline.RequestTimeout(), retryCfg)

	var sched *usecase.Scheduler
	if cfg.Scheduler.Enabled {
		driver := scheduler.NewTickerScheduler(cfg.Scheduler.Interval())
		sched = usecase.NewScheduler(driver, pipeline, sender,
			baseLogger.With("component", "scheduler"))
	}

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		repo:      repo,
		pipeline:  pipeline,
		sender:    sender,
		scheduler: sched,
		nlpCloser: closer,
	}, nil
}

func buildNLP(ctx context.Context, cfg config.NLPConfig) (ports.TopicScorer, ports.Summarizer, ports.Translator, func() error, error) {
	switch cfg.Provider {
	case "openai":
		client := nlp.NewOpenAIClient(cfg.Endpoint, cfg.Model, cfg.APIKey)
		return client, client, client, nil, nil
	case "", "gemini":
		client, err := nlp.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("build gemini client: %w", err)
		}
		return client, client, client, client.Close, nil
	default:
		return nil, nil, nil, nil, fmt.Errorf("unknown nlp provider %q", cfg.Provider)
	}
}

// RegisterSources upserts the configured sources into the registry. Repeated
// startups are idempotent: sources are keyed by URL.
func (a *Application) RegisterSources(ctx context.Context) error {
	for _, src := range a.cfg.Sources {
		if err := a.repo.UpsertSource(ctx, src.Type, src.URL); err != nil {
			return err
		}
	}
	return nil
}

// RunPipeline executes one fetch+ingest+classify+route pass.
func (a *Application) RunPipeline(ctx context.Context) error {
	if err := a.RegisterSources(ctx); err != nil {
		return err
	}
	return a.pipeline.Run(ctx)
}

// SendDigest delivers one digest queue.
func (a *Application) SendDigest(ctx context.Context, digest domain.DigestType) (int, error) {
	return a.sender.Send(ctx, digest)
}

// SendAll delivers every digest queue.
func (a *Application) SendAll(ctx context.Context) (int, error) {
	return a.sender.SendAll(ctx)
}

// RunLoop starts the recurring scheduler and blocks until the context ends.
func (a *Application) RunLoop(ctx context.Context) error {
	if a.scheduler == nil {
		return fmt.Errorf("scheduler is not enabled in configuration")
	}
	if err := a.RegisterSources(ctx); err != nil {
		return err
	}
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return a.scheduler.Stop(context.Background())
}

// Close releases storage and NLP resources.
func (a *Application) Close() error {
	if a.nlpCloser != nil {
		_ = a.nlpCloser()
	}
	return a.repo.Close()
}
