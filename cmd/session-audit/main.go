// Package main содержит точку входа воркера аудита сессий.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/glassworks-auth/internal/app/audit"
	"github.com/magabrotheeeer/glassworks-auth/internal/config"
	"github.com/magabrotheeeer/glassworks-auth/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	logger := sl.New(cfg.Env, os.Stdout)

	logger.Info("starting session-audit", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := audit.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize session-audit", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("session-audit stopped with error", sl.Err(err))
		os.Exit(1)
	}

	logger.Info("session-audit stopped gracefully")
}
