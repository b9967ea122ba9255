// Package app wires the enabled roles of the binary onto one bus and serves
// the HTTP API.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"adswap/features/detection"
	"adswap/features/stats"
	"adswap/internal/adapter/quotes"
	"adswap/internal/adapter/rulelist"
	"adswap/internal/bus"
	"adswap/internal/classifier"
	"adswap/internal/compute"
	"adswap/internal/config"
	"adswap/internal/content"
	"adswap/internal/decisionlog"
	"adswap/internal/element"
	"adswap/internal/locator"
	"adswap/internal/message"
	"adswap/internal/middleware"
	"adswap/internal/orchestrator"
	"adswap/internal/rules"
	"adswap/internal/settings"
)

// LivePage is a page context's document: replaceable and scannable.
type LivePage interface {
	locator.Page
	detection.Scanner
}

// Options overrides collaborators, mainly for tests. Nil fields use the
// configured defaults.
type Options struct {
	Page         LivePage
	ModelLoader  classifier.Loader
	RuleSource   rules.Source
	QuoteFetcher content.QuoteFetcher
}

type App struct {
	Handler      http.Handler
	Orchestrator *orchestrator.Orchestrator
	Client       *compute.Client
	Worker       *compute.Worker
	Locator      *locator.Locator
	Detection    *detection.Service
	Settings     *settings.Service

	cfg     *config.Config
	page    LivePage
	closers []io.Closer
}

func New(cfg *config.Config, db *sql.DB, b bus.Bus, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}
	a := &App{cfg: cfg, page: opts.Page}

	// Settings
	var repo settings.Repository = settings.NewMemoryRepo()
	if db != nil {
		repo = settings.NewPostgresRepo(db)
	}
	a.Settings = settings.NewService(repo)
	a.Detection = detection.NewService(b)

	if cfg.EnableCompute {
		loader := opts.ModelLoader
		if loader == nil {
			loader = classifier.ModelLoader(cfg.ModelPath)
		}
		a.Worker = compute.NewWorker(classifier.New(loader), b, cfg.ConfidenceThreshold, cfg.ScoreTimeout(), cfg.ReadinessTimeout())
		if err := b.Subscribe(config.TopicPredict, config.ChannelCompute, a.Worker); err != nil {
			return nil, err
		}
	}

	if cfg.EnableOrchestrator {
		if err := a.wireOrchestrator(cfg, b, opts); err != nil {
			a.Close()
			return nil, err
		}
	}

	if cfg.EnablePage {
		if a.page == nil {
			return nil, fmt.Errorf("%w: page role enabled without a page", config.ErrMissingRequired)
		}
		if cfg.PageContextID == "" {
			cfg.PageContextID = uuid.New().String()
		}
		a.Locator = locator.New(a.page, cfg.GeometryTolerance)
		if err := b.Subscribe(config.ReplaceTopic(cfg.PageContextID), config.ChannelPage, a.Locator); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Handler = a.routes()
	return a, nil
}

func (a *App) wireOrchestrator(cfg *config.Config, b bus.Bus, opts *Options) error {
	// A probe waits up to the readiness timeout on the compute side.
	a.Client = compute.NewClient(b, uuid.New().String(), cfg.ScoreTimeout(), cfg.ReadinessTimeout()+time.Second)
	if err := b.Subscribe(a.Client.ReplyTopic(), config.ChannelOrchestrator, a.Client); err != nil {
		return err
	}

	ruleSrc := opts.RuleSource
	if ruleSrc == nil {
		if cfg.RuleListPath != "" {
			ruleSrc = rulelist.NewFileSource(cfg.RuleListPath)
		} else if cfg.RuleListURL != "" {
			ruleSrc = rulelist.NewHTTPSource(cfg.RuleListURL, cfg.RuleFetchTimeout())
		}
	}

	fetcher := opts.QuoteFetcher
	if fetcher == nil && cfg.QuoteURL != "" {
		fetcher = quotes.NewClient(cfg.QuoteURL, cfg.QuoteTimeout())
	}

	var decisions *decisionlog.Logger
	if cfg.DecisionLogPath != "" {
		l, closer, err := decisionlog.NewFile(cfg.DecisionLogPath)
		if err != nil {
			slog.Warn("failed to open decision log, decisions are not recorded", "error", err)
		} else {
			decisions = l
			a.closers = append(a.closers, closer)
		}
	}

	a.Orchestrator = orchestrator.New(a.Client, ruleSrc, content.NewLibrary(fetcher), a.Settings, b, decisions, orchestrator.Options{
		Threshold:        cfg.ConfidenceThreshold,
		RuleOnlyFallback: cfg.RuleOnlyFallback,
		DefaultViewport:  element.Viewport{Width: cfg.DefaultViewportWidth, Height: cfg.DefaultViewportHeight},
		RuleRefresh:      time.Duration(cfg.RuleRefreshMinutes) * time.Minute,
		QuoteRefresh:     time.Duration(cfg.QuoteRefreshMinutes) * time.Minute,
	})
	return b.Subscribe(config.TopicCheckElement, config.ChannelOrchestrator, a.Orchestrator)
}

func (a *App) routes() http.Handler {
	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()

	detectionHandler := detection.NewHandler(a.Detection)
	mux.Handle("POST /detections", middleware.CorrelationID(enableCORS(detectionHandler.Create)))

	settingsHandler := settings.NewHandler(a.Settings)
	mux.Handle("GET /settings", middleware.CorrelationID(enableCORS(settingsHandler.GetSettings)))
	mux.Handle("PUT /settings/{kind}", middleware.CorrelationID(enableCORS(settingsHandler.UpdatePool)))
	mux.Handle("DELETE /settings/{kind}", middleware.CorrelationID(enableCORS(settingsHandler.ResetPool)))

	if a.Orchestrator != nil {
		var placeholders stats.Placeholders
		if a.Locator != nil {
			placeholders = a.Locator.Registry()
		}
		statsHandler := stats.NewHandler(a.Orchestrator, a.Settings, placeholders)
		mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Run starts the enabled roles and blocks until ctx ends or the HTTP server
// fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.Orchestrator != nil {
		if err := a.Orchestrator.Init(ctx); err != nil {
			return err
		}
		defer a.Orchestrator.Close()
	}

	if a.Worker != nil {
		g.Go(func() error {
			// A load failure leaves the classifier Failed; the process keeps serving.
			_ = a.Worker.Initialize(ctx)
			return nil
		})
	}

	if a.Locator != nil && a.cfg.CandidateSelector != "" {
		g.Go(func() error {
			a.scanPage(ctx)
			return nil
		})
	}

	if a.cfg.EnableAPI {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
			Handler:           a.Handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			<-ctx.Done()
			slog.Info("shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			slog.Info("server starting", "port", a.cfg.ServerPort)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	return g.Wait()
}

// scanPage reports the page's candidates once. When the orchestrator runs in
// this process the scan waits for the classifier first, since detections
// that arrive before it is ready are skipped.
func (a *App) scanPage(ctx context.Context) {
	ctx = middleware.WithRole(ctx, message.TargetPage)
	ctx = middleware.WithCorrelationID(ctx, uuid.New().String())

	if a.Client != nil {
		waitCtx, cancel := context.WithTimeout(ctx, 3*(a.cfg.ReadinessTimeout()+time.Second))
		state := a.Client.Readiness().Wait(waitCtx)
		cancel()
		if state != classifier.StateReady {
			slog.WarnContext(ctx, "scanning before classifier is ready", "state", state.String())
		}
	}

	if _, err := a.Detection.ReportScan(ctx, a.page, a.cfg.PageContextID, a.cfg.CandidateSelector); err != nil {
		slog.ErrorContext(ctx, "page scan failed", "error", err)
	}
}

func (a *App) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close resource", "error", err)
		}
	}
	a.closers = nil
}
