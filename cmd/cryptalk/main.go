package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"cryptalk/internal/server"
	"cryptalk/pkg/config"
	"cryptalk/pkg/logging"
	"cryptalk/pkg/store"
)

func main() {
	// optional .env for local development; absence is not an error
	_ = godotenv.Load()

	logger := logging.New(logging.LevelFromEnv())
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	st, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		logger.Error("Failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close store", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := server.NewApp(logger, ctx, cfg, st)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
