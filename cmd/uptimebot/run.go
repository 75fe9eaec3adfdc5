package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/jmoiron/sqlx"

	"github.com/edgard/uptimebot/internal/bot"
	"github.com/edgard/uptimebot/internal/bot/handlers"
	"github.com/edgard/uptimebot/internal/bot/tasks"
	"github.com/edgard/uptimebot/internal/config"
	"github.com/edgard/uptimebot/internal/database"
	"github.com/edgard/uptimebot/internal/gemini"
	"github.com/edgard/uptimebot/internal/logger"
	"github.com/edgard/uptimebot/internal/metrics"
	"github.com/edgard/uptimebot/internal/storage"
	"github.com/edgard/uptimebot/internal/telegram"
	"github.com/edgard/uptimebot/internal/tracker"
)

// runBot initializes and starts all application components and blocks until
// ctx is cancelled or a component fails.
func runBot(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", configPath, "error", err)
		return err
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)
	metrics.Init()

	db, store, ledgerStore, err := openStores(cfg, log)
	if err != nil {
		log.Error("Failed to open storage", "error", err)
		return err
	}
	defer database.CloseDB(db)

	gemClient, err := gemini.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize Gemini client", "error", err)
		return err
	}

	notifier := telegram.NewNotifier(store, cfg.Report, log)
	trk := tracker.New(tracker.Deps{
		Logger:    log,
		Config:    cfg,
		Extractor: gemClient,
		Store:     ledgerStore,
		Registry:  store,
		Notifier:  notifier,
	})

	hDeps := handlers.HandlerDeps{
		Logger:  log,
		Config:  cfg,
		Tracker: trk,
		Pending: handlers.NewPendingLogins(),
	}
	tDeps := tasks.TaskDeps{
		Logger:   log,
		Store:    store,
		Rollover: trk.Rollover,
		Config:   cfg,
	}

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(handlers.NewMessageHandler(hDeps)),
		tgbot.WithAllowedUpdates(tgbot.AllowedUpdates{"message", "edited_message", "callback_query"}),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return err
	}
	notifier.Bind(tg)

	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return err
	}
	if err := telegram.SetCommands(ctx, tg, cfg.Telegram.Commands); err != nil {
		log.Warn("Failed to publish bot commands", "error", err)
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, cfg.Tracker.Location, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return err
	}
	app := bot.NewBot(log, cfg, trk, tg, sched)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return runErr
	}

	log.Info("Bot stopped gracefully.")
	return nil
}

// openStores opens the SQLite registry and the ledger backend selected by
// storage.backend.
func openStores(cfg *config.Config, log *slog.Logger) (*sqlx.DB, database.Store, storage.LedgerStore, error) {
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database %s: %w", cfg.Database.Path, err)
	}
	store := database.NewStore(db, log)

	if cfg.Storage.Backend != "csv" {
		return db, store, store, nil
	}
	csvStore, err := storage.NewCSVStore(cfg.Storage.CSVDir, log)
	if err != nil {
		database.CloseDB(db)
		return nil, nil, nil, err
	}
	log.Info("Using CSV ledger backend", "dir", cfg.Storage.CSVDir)
	return db, store, csvStore, nil
}
