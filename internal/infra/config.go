package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	LogLevel         string
	Port             string
	DatabaseURL      string
	DBMaxConns       int
	StoragePath      string
	StorageBaseURL   string
	GeminiAPIKey     string
	GeminiModel      string
	GeminiImageModel string
	GeminiBaseURL    string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	KafkaBrokers     string
	KafkaTopic       string
	CORSOrigins      []string
	Locales          []string
	SSEKeepAlive     time.Duration
	Batch            BatchConfig
}

// BatchConfig tunes the batch orchestrator.
type BatchConfig struct {
	MaxSingle          int
	MaxBulk            int
	MaxBMAD            int
	DefaultConcurrency int
	MaxConcurrency     int
	GlobalConcurrency  int
	RetryBudget        int
	RetryBase          time.Duration
	Retention          time.Duration
	MaxRetained        int
	JanitorInterval    time.Duration
	SubscriberBuffer   int
	StageTimeouts      StageTimeouts
}

// StageTimeouts bounds each external capability call.
type StageTimeouts struct {
	Content      time.Duration
	Nutrition    time.Duration
	Image        time.Duration
	ImageStorage time.Duration
	Persistence  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		Port:             port,
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DBMaxConns:       getEnvInt("DB_MAX_CONNS", 10),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:   getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%s/static", port)),
		GeminiAPIKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiImageModel: getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		KafkaBrokers:     os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:       getEnv("KAFKA_PROGRESS_TOPIC", "recipe-batch-progress"),
		CORSOrigins:      getEnvList("CORS_ALLOWED_ORIGINS", "*"),
		Locales:          getEnvList("SUPPORTED_LOCALES", "en,id"),
		SSEKeepAlive:     time.Second * time.Duration(getEnvInt("SSE_KEEPALIVE_SECONDS", 15)),
		Batch: BatchConfig{
			MaxSingle:          getEnvInt("BATCH_MAX_SINGLE", 50),
			MaxBulk:            getEnvInt("BATCH_MAX_BULK", 100),
			MaxBMAD:            getEnvInt("BATCH_MAX_BMAD", 500),
			DefaultConcurrency: getEnvInt("BATCH_DEFAULT_CONCURRENCY", 5),
			MaxConcurrency:     getEnvInt("BATCH_MAX_CONCURRENCY", 10),
			GlobalConcurrency:  getEnvInt("BATCH_GLOBAL_CONCURRENCY", 0),
			RetryBudget:        getEnvInt("BATCH_RETRY_BUDGET", 1),
			RetryBase:          time.Millisecond * time.Duration(getEnvInt("BATCH_RETRY_BASE_MS", 500)),
			Retention:          time.Minute * time.Duration(getEnvInt("BATCH_RETENTION_MINUTES", 60)),
			MaxRetained:        getEnvInt("BATCH_MAX_RETAINED", 1000),
			JanitorInterval:    time.Second * time.Duration(getEnvInt("BATCH_JANITOR_INTERVAL_SECONDS", 60)),
			SubscriberBuffer:   getEnvInt("SUBSCRIBER_BUFFER", 256),
			StageTimeouts: StageTimeouts{
				Content:      time.Second * time.Duration(getEnvInt("STAGE_TIMEOUT_CONTENT_SECONDS", 90)),
				Nutrition:    time.Second * time.Duration(getEnvInt("STAGE_TIMEOUT_NUTRITION_SECONDS", 30)),
				Image:        time.Second * time.Duration(getEnvInt("STAGE_TIMEOUT_IMAGE_SECONDS", 120)),
				ImageStorage: time.Second * time.Duration(getEnvInt("STAGE_TIMEOUT_STORAGE_SECONDS", 30)),
				Persistence:  time.Second * time.Duration(getEnvInt("STAGE_TIMEOUT_PERSISTENCE_SECONDS", 30)),
			},
		},
	}

	if err := cfg.Batch.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (b BatchConfig) validate() error {
	if b.MaxSingle < 1 || b.MaxBulk < 1 || b.MaxBMAD < 1 {
		return fmt.Errorf("batch count ceilings must be positive")
	}
	if b.DefaultConcurrency < 1 {
		return fmt.Errorf("BATCH_DEFAULT_CONCURRENCY must be at least 1")
	}
	if b.MaxConcurrency < b.DefaultConcurrency {
		return fmt.Errorf("BATCH_MAX_CONCURRENCY (%d) is below BATCH_DEFAULT_CONCURRENCY (%d)", b.MaxConcurrency, b.DefaultConcurrency)
	}
	if b.GlobalConcurrency < 0 {
		return fmt.Errorf("BATCH_GLOBAL_CONCURRENCY must not be negative")
	}
	if b.RetryBudget < 0 {
		return fmt.Errorf("BATCH_RETRY_BUDGET must not be negative")
	}
	if b.SubscriberBuffer < 1 {
		return fmt.Errorf("SUBSCRIBER_BUFFER must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return fallback
}
