// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notesync/internal/api"
	"github.com/starford/notesync/internal/backup"
	"github.com/starford/notesync/internal/crypto"
	"github.com/starford/notesync/internal/index"
	"github.com/starford/notesync/internal/mcpserver"
	"github.com/starford/notesync/internal/noteservice"
	"github.com/starford/notesync/internal/notes"
	"github.com/starford/notesync/internal/remote"
	"github.com/starford/notesync/internal/sse"
	"github.com/starford/notesync/internal/storage"
	"github.com/starford/notesync/internal/tracker"
)

// App holds the wired components shared by the server and the one-shot
// commands. Close releases the stores.
type App struct {
	Config  *Config
	Logger  *slog.Logger
	Store   storage.Provider
	Remote  *remote.DB
	Index   *index.Builder
	Tracker *tracker.Tracker
	Repo    *notes.Repository
	Engine  *backup.Engine
	Service *noteservice.Service
	Broker  *sse.Broker

	storeCloser io.Closer
}

// Open applies opts, installs the JSON logger and wires every component.
func Open(ctx context.Context, opts ...Option) (*App, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_backend", cfg.Storage.Backend),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("remote_path", cfg.Remote.Path),
		slog.String("backup_schedule", cfg.Backup.Schedule),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, closer, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := remote.Open(cfg.Remote.Path)
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("init remote: %w", err)
	}

	cipher, err := crypto.New(cfg.Backup.Passphrase, cfg.Backup.Salt, cfg.Backup.Iterations)
	if err != nil {
		_ = closer.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	a := &App{
		Config:      cfg,
		Logger:      logger,
		Store:       store,
		Remote:      db,
		Index:       index.NewBuilder(store, logger),
		Tracker:     tracker.New(store),
		Broker:      sse.NewBroker(2 * time.Second),
		storeCloser: closer,
	}

	var connectivity backup.Connectivity = backup.AlwaysOnline{}
	if cfg.Backup.ProbeAddress != "" {
		connectivity = backup.DialProbe{Address: cfg.Backup.ProbeAddress, Timeout: cfg.Backup.ProbeTimeout}
	}

	lock := &sync.Mutex{}
	a.Engine = backup.NewEngine(backup.Config{
		Store:        store,
		Remote:       db,
		Cipher:       cipher,
		Index:        a.Index,
		Tracker:      a.Tracker,
		Events:       a.Broker,
		Connectivity: connectivity,
		Lock:         lock,
		Logger:       logger,
		AppVersion:   cfg.App.Version,
		Retention:    cfg.Backup.Retention,
		UserID:       cfg.Backup.UserID,
	})
	a.Repo = notes.New(notes.Options{
		Store:   store,
		Index:   a.Index,
		Tracker: a.Tracker,
		Events:  a.Broker,
		Backup:  a.Engine,
		Lock:    lock,
		Logger:  logger,
	})
	a.Service = noteservice.NewService(a.Repo, a.Tracker, a.Engine, logger)

	if err := a.seedSettings(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// seedSettings applies the configured auto-backup default on first start.
// After that the persisted switch wins.
func (a *App) seedSettings(ctx context.Context) error {
	_, ok, err := a.Store.Get(ctx, storage.KeyAutoBackup)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	if ok {
		return nil
	}
	if err := a.Tracker.SetAutoBackup(ctx, a.Config.Backup.AutoEnabled); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	return nil
}

// Close stops background backups, then closes the broker and the stores.
func (a *App) Close() error {
	a.Engine.Close()
	a.Broker.Close()
	return errors.Join(a.Remote.Close(), a.storeCloser.Close())
}

// Run starts the HTTP server, the index watcher and the backup scheduler.
func Run(ctx context.Context, opts ...Option) error {
	a, err := Open(ctx, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.Config
	logger := a.Logger

	// Initial index build so indexed reads work on a store written elsewhere.
	if !a.Index.Build(ctx) {
		logger.Warn("initial index build failed")
	}

	scheduler, err := backup.NewScheduler(cfg.Backup.Schedule, a.Engine, a.Tracker, logger)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	// Trace every bus event at debug level.
	for _, topic := range []sse.Topic{
		sse.TopicNoteCreated, sse.TopicNoteUpdated, sse.TopicNoteDeleted,
		sse.TopicCategoryAdded, sse.TopicCategoryUpdated, sse.TopicCategoryDeleted,
		sse.TopicNotesRefresh, sse.TopicBackupCompleted,
	} {
		cancel := a.Broker.Listen(topic, func(e sse.Event) {
			logger.Debug("event", slog.String("type", string(e.Type)), slog.Any("data", e.Data))
		})
		defer cancel()
	}

	apiRouter := api.NewRouter(a.Service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, a.Broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := a.Remote.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"remote unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Rebuild indices when another process rewrites the notes file.
	if cfg.Storage.Backend == storage.BackendFS && cfg.Storage.Watch {
		g.Go(func() error {
			err := index.Watch(gCtx, a.Index, cfg.Storage.Path, logger, func(kind, key string) {
				a.Broker.Publish(sse.Event{Type: sse.TopicNotesRefresh, Data: map[string]string{"reason": kind, "key": key}})
			})
			if err != nil {
				logger.Warn("index watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Periodic auto-backup.
	g.Go(func() error {
		return scheduler.Run(gCtx)
	})

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

		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools on stdio until stdin closes.
func RunMCP(ctx context.Context, opts ...Option) error {
	a, err := Open(ctx, append([]Option{WithLogOutput(os.Stderr)}, opts...)...)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.Index.Build(ctx) {
		a.Logger.Warn("initial index build failed")
	}
	return mcpserver.New(a.Service, a.Config.App.Version).ServeStdio()
}
