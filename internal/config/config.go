package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"newsdigest/internal/classify"
)

const (
	configPathEnv     = "NEWSDIGEST_CONFIG"
	databasePathEnv   = "NEWSDIGEST_DB_PATH"
	geminiAPIKeyEnv   = "GEMINI_API_KEY"
	nlpAPIKeyEnv      = "NLP_API_KEY"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	NLP        NLPConfig        `yaml:"nlp"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Sources    []SourceConfig   `yaml:"sources"`
	Topics     TopicsConfig     `yaml:"topics"`
}

// DatabaseConfig describes the SQLite file location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PipelineConfig tunes the ingestion run. Timeouts are plain seconds so the
// YAML stays driver-friendly.
type PipelineConfig struct {
	FetchConcurrency   int `yaml:"fetchConcurrency"`
	FetchTimeoutSec    int `yaml:"fetchTimeoutSeconds"`
	RequestTimeoutSec  int `yaml:"requestTimeoutSeconds"`
	RetryAttempts      int `yaml:"retryAttempts"`
	RetryDelaySec      int `yaml:"retryDelaySeconds"`
	// AdvanceCheckedOnFailure controls whether a failed fetch still advances the
	// source's last_checked timestamp. Enabled by default to avoid hot-looping
	// on a broken source.
	AdvanceCheckedOnFailure *bool `yaml:"advanceCheckedOnFailure"`
}

// FetchTimeout is the per-source fetch deadline.
func (p PipelineConfig) FetchTimeout() time.Duration {
	return time.Duration(p.FetchTimeoutSec) * time.Second
}

// RequestTimeout bounds a single NLP or delivery call.
func (p PipelineConfig) RequestTimeout() time.Duration {
	return time.Duration(p.RequestTimeoutSec) * time.Second
}

// RetryDelay is the base delay between retry attempts.
func (p PipelineConfig) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelaySec) * time.Second
}

// AdvanceOnFailure resolves the nullable toggle with its default.
func (p PipelineConfig) AdvanceOnFailure() bool {
	if p.AdvanceCheckedOnFailure == nil {
		return true
	}
	return *p.AdvanceCheckedOnFailure
}

// NLPConfig selects and parameterizes the scoring/summarization/translation backend.
type NLPConfig struct {
	Provider        string  `yaml:"provider"` // "gemini" or "openai"
	GeminiAPIKey    string  `yaml:"geminiApiKey"`
	GeminiModel     string  `yaml:"geminiModel"`
	Endpoint        string  `yaml:"endpoint"` // OpenAI-compatible chat completions URL
	Model           string  `yaml:"model"`
	APIKey          string  `yaml:"apiKey"`
	TargetLocale    string  `yaml:"targetLocale"`
	SummaryMaxWords int     `yaml:"summaryMaxWords"`
	SummaryMinWords int     `yaml:"summaryMinWords"`
	TopicThreshold  float64 `yaml:"topicThreshold"`
	OtherThreshold  float64 `yaml:"otherThreshold"`
}

// TelegramConfig wires all data required to send digests.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// SchedulerConfig defines the recurring run cadence.
type SchedulerConfig struct {
	Enabled     bool `yaml:"enabled"`
	IntervalMin int  `yaml:"intervalMinutes"`
}

// Interval is the scheduler tick period.
func (s SchedulerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMin) * time.Minute
}

// MonitoringConfig enables the /health and /metrics HTTP endpoints.
type MonitoringConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

// LoggingConfig carries the slog level string.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SourceConfig describes a single registered source.
type SourceConfig struct {
	Type string `yaml:"type"`
	URL  string `yaml:"url"`
}

// TopicsConfig holds the per-digest topic vocabularies.
type TopicsConfig struct {
	Lowbank []string `yaml:"lowbank"`
	General []string `yaml:"general"`
}

// Vocabulary converts the configured topic lists into the classification vocabulary.
func (t TopicsConfig) Vocabulary() classify.Vocabulary {
	return classify.Vocabulary{Lowbank: t.Lowbank, General: t.General}
}

// Load reads YAML configuration (if present) over the defaults and applies
// environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			cfg = defaultConfig()
		}
	}

	cfg.applyEnvOverrides()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Telegram.ChatID = v
	}

	if v := os.Getenv(geminiAPIKeyEnv); v != "" {
		c.NLP.GeminiAPIKey = v
	}

	if v := os.Getenv(nlpAPIKeyEnv); v != "" {
		c.NLP.APIKey = v
	}
}

func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{Path: "data/newsdigest.db"},
		Pipeline: PipelineConfig{
			FetchConcurrency:  4,
			FetchTimeoutSec:   30,
			RequestTimeoutSec: 60,
			RetryAttempts:     3,
			RetryDelaySec:     5,
		},
		NLP: NLPConfig{
			Provider:        "gemini",
			GeminiModel:     "gemini-1.5-flash",
			Endpoint:        "https://api.openai.com/v1/chat/completions",
			Model:           "gpt-4o-mini",
			TargetLocale:    "uk",
			SummaryMaxWords: 60,
			SummaryMinWords: 25,
			TopicThreshold:  classify.DefaultThreshold,
			OtherThreshold:  classify.DefaultOtherThreshold,
		},
		Scheduler:  SchedulerConfig{IntervalMin: 360},
		Monitoring: MonitoringConfig{Port: "8080"},
		Logging:    LoggingConfig{Level: "info"},
		Topics: TopicsConfig{
			Lowbank: []string{"Crypto", "Banking", "Fintech"},
			General: []string{"Economy", "Technology", "Politics"},
		},
	}
}
