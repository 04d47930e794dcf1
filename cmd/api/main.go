package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"mealplan/internal/adapter/repo"
	"mealplan/internal/batch"
	"mealplan/internal/domain"
	"mealplan/internal/http/handlers"
	httpapi "mealplan/internal/http/httpapi"
	"mealplan/internal/infra"
	"mealplan/internal/mcptools"
	"mealplan/internal/metrics"
	"mealplan/internal/pipeline"
	"mealplan/internal/progress"
	"mealplan/internal/providers/genai"
	"mealplan/internal/providers/image"
	"mealplan/internal/providers/nutrition"
	"mealplan/internal/queue"
	"mealplan/internal/stage"
	"mealplan/internal/storage"
)

func main() {
	// Muat .env (opsional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)
	ctx := context.Background()

	// Recipes go to Postgres when configured, otherwise stay in memory.
	var recipes domain.RecipeRepository
	if cfg.DatabaseURL != "" {
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()
		pg := repo.NewRecipeRepository(infra.NewSQLRunner(dbpool, infra.Component(logger, "sql")))
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare recipe schema")
		}
		recipes = pg
	} else {
		logger.Warn().Msg("DATABASE_URL not set, recipes are kept in memory")
		recipes = repo.NewMemoryRecipeRepository()
	}

	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare image storage")
	}

	genaiLogger := infra.Component(logger, "genai")
	client, err := genai.NewClient(genai.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		ImageModel: cfg.GeminiImageModel,
		Logger:     &genaiLogger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build genai client")
	}
	if client.Synthetic() {
		logger.Warn().Msg("GEMINI_API_KEY not set, using synthetic recipes and images")
	}

	stages := stage.Set{
		Content:      stage.Content{Writer: client, Locale: firstOr(cfg.Locales, "en")},
		Nutrition:    stage.Nutrition{Checker: nutrition.NewValidator()},
		Image:        stage.ImageSynthesis{Generator: client, AspectRatio: image.DefaultAspectRatio},
		ImageStorage: stage.ImageStorage{Store: store},
		Persistence:  stage.Persistence{Repo: recipes},
	}

	var (
		sink     progress.Sink
		producer *queue.ProgressProducer
	)
	if cfg.KafkaBrokers != "" {
		producer, err = queue.NewProgressProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build progress producer")
		}
		sink = producer
	}

	broadcaster := progress.New(progress.Options{
		Buffer: cfg.Batch.SubscriberBuffer,
		Sink:   sink,
		Logger: logger,
	})
	registry := batch.NewRegistry(batch.RegistryOptions{
		Retention:   cfg.Batch.Retention,
		MaxRetained: cfg.Batch.MaxRetained,
		OnEvict:     broadcaster.Drop,
		Logger:      logger,
	})
	coordinator, err := batch.NewCoordinator(batch.Options{
		Limits: batch.LimitsFromConfig(cfg.Batch),
		Stages: stages,
		Pipeline: pipeline.Options{
			RetryBudget: cfg.Batch.RetryBudget,
			RetryBase:   cfg.Batch.RetryBase,
			Timeouts:    pipeline.TimeoutsFromConfig(cfg.Batch.StageTimeouts),
		},
		Registry:    registry,
		Broadcaster: broadcaster,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build coordinator")
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go registry.RunJanitor(janitorCtx, cfg.Batch.JanitorInterval)

	aggregator := metrics.NewAggregator(registry)
	mcpServer := mcptools.NewServer(mcptools.NewService(coordinator, aggregator))

	app := &handlers.App{
		Batches:    coordinator,
		Aggregator: aggregator,
		Recipes:    recipes,
		Logger:     infra.Component(logger, "http"),
		KeepAlive:  cfg.SSEKeepAlive,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		CORSOrigins:     cfg.CORSOrigins,
		Locales:         cfg.Locales,
		RateLimitPerMin: cfg.RateLimitPerMin,
		StaticDir:       store.BasePath(),
		MCP:             mcptools.NewHTTPHandler(mcpServer),
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	// Aborting batches first ends their event streams so the server can drain.
	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("batches did not drain before shutdown deadline")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	stopJanitor()
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to flush progress producer")
		} else if n := producer.Dropped(); n > 0 {
			logger.Warn().Int("dropped", n).Msg("progress events dropped before reaching kafka")
		}
	}
	logger.Info().Msg("server stopped")
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 {
		return values[0]
	}
	return fallback
}
