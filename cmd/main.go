package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/onebox-mail/onebox/internal/api"
	"github.com/onebox-mail/onebox/internal/cli"
	"github.com/onebox-mail/onebox/internal/config"
	"github.com/onebox-mail/onebox/internal/database"
	"github.com/onebox-mail/onebox/internal/functions"
	"github.com/onebox-mail/onebox/internal/functions/ai"
	"github.com/onebox-mail/onebox/internal/notify"
	"github.com/onebox-mail/onebox/internal/search"
	"github.com/onebox-mail/onebox/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := setupLogger(cfg)

	// Initialize database
	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Check if running CLI command
	if len(os.Args) > 1 {
		cli.Execute(db, cfg)
		return
	}

	// Wire up the pipeline
	chat := ai.NewClient(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIChatModel)
	embedder := ai.NewClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel)
	knowledge := ai.NewKnowledgeBase(db, chat, embedder, logger)
	index := search.NewIndex(db, logger)
	notifier := notify.NewNotifier(cfg.SlackWebhookURL, cfg.ExternalWebhookURL, logger)
	processor := functions.NewProcessor(chat, knowledge, index, logger)

	accountService := services.NewAccountService(db, cfg.GetEncryptionKey())
	stateService := services.NewSyncStateService(db, logger)
	supervisor := services.NewSupervisor(accountService, stateService, processor, notifier, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start pipelines for all active accounts
	if err := supervisor.StartAll(ctx); err != nil {
		logger.Error("failed to start account pipelines", "error", err)
	}

	router := api.SetupRouter(api.Deps{
		Config:     cfg,
		Accounts:   accountService,
		Supervisor: supervisor,
		Index:      index,
		Knowledge:  knowledge,
		Chat:       chat,
		Classifier: chat,
		Logger:     logger,
	})

	logger.Info("starting onebox server", "port", cfg.APIPort, "database", cfg.DatabasePath)
	if err := router.Run(":" + cfg.APIPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupLogger builds the process-wide slog logger from the configuration
func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if strings.ToLower(cfg.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: level})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
