package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"adswap/internal/adapter/browser"
	"adswap/internal/app"
	"adswap/internal/config"
	"adswap/internal/logger"
)

func main() {
	// Initialize structured logger
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		slog.Error("app exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// 2. Infrastructure
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	// 3. Page context
	opts := &app.Options{}
	if cfg.EnablePage {
		if cfg.PageURL == "" {
			return errors.New("PAGE_URL is required when the page role is enabled")
		}
		b, err := browser.Connect(ctx, cfg.BrowserControlURL)
		if err != nil {
			return err
		}
		defer b.Close()

		page, err := browser.Open(ctx, b, cfg.PageURL)
		if err != nil {
			return err
		}
		defer page.Close()
		log.Info("page opened", "url", page.URL())
		opts.Page = page
	}

	// 4. Roles
	application, err := app.New(cfg, deps.DB, deps.Bus, opts)
	if err != nil {
		return err
	}
	defer application.Close()

	log.Info("adswap starting",
		"transport", cfg.Transport,
		"api", cfg.EnableAPI,
		"orchestrator", cfg.EnableOrchestrator,
		"compute", cfg.EnableCompute,
		"page", cfg.EnablePage,
	)
	return application.Run(ctx)
}
