// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/raido/internal/api"
	"github.com/starford/raido/internal/catalog"
	"github.com/starford/raido/internal/draft"
	"github.com/starford/raido/internal/forms"
	"github.com/starford/raido/internal/listing"
	"github.com/starford/raido/internal/metrics"
	"github.com/starford/raido/internal/sse"
	"github.com/starford/raido/internal/storage"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("catalog_path", cfg.Catalog.Path),
		slog.String("drafts_backend", cfg.Drafts.Backend),
		slog.Duration("debounce", cfg.Drafts.Debounce),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize draft storage.
	store, err := storage.Open(ctx, cfg.Drafts.StorageOptions())
	if err != nil {
		return fmt.Errorf("init draft storage: %w", err)
	}
	defer store.Close()

	// Load record collections.
	cat, err := catalog.Open(cfg.Catalog.Path, logger)
	if err != nil {
		return fmt.Errorf("init catalog: %w", err)
	}

	m := metrics.New("raido")
	m.SetCollections(cat.Len())

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	list := listing.NewService(cat,
		listing.WithCacheTTL(cfg.Cache.TTL),
		listing.WithMetrics(m),
		listing.WithLogger(logger),
	)

	wsOpts := []forms.WorkspaceOption{
		forms.WithDraftOptions(
			draft.WithLogger(logger),
			draft.WithRetry(cfg.Drafts.MaxRetries, 0),
		),
		forms.WithEvents(func(ev forms.Event) {
			broker.Publish(sse.Event{Type: ev.Type, Key: ev.Key, Data: ev})
		}),
		forms.WithWorkspaceMetrics(m),
		forms.WithWorkspaceLogger(logger),
	}
	if app.submit != nil {
		wsOpts = append(wsOpts, forms.WithSubmit(app.submit))
	}
	ws := forms.NewWorkspace(store, cfg.Drafts.Debounce, wsOpts...)
	defer ws.Close()

	apiRouter := api.NewRouter(list, store, ws, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if cat.Len() == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"no collections loaded"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", m.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Reload fixtures as they change and push the news to SSE clients.
	if cfg.Catalog.Watch {
		g.Go(func() error {
			err := catalog.Watch(gCtx, cat, logger, func(kind, name string) {
				list.Forget(name)
				m.CatalogEvent(kind, cat.Len())
				broker.PublishCollectionEvent(kind, name)
			})
			if err != nil {
				logger.Error("catalog watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
