package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CTAG07/markup/pkg/fragments"
	"github.com/CTAG07/markup/pkg/templating"
	"github.com/natefinch/atomic"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const configPath = "./config.json"

func main() {
	baseLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	config, err := LoadConfig(configPath)
	if err != nil {
		baseLogger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(config.Server.LogLevel)}))

	args := os.Args[1:]
	if len(args) > 0 && args[0] == "render" {
		if len(args) != 3 {
			fmt.Fprintln(os.Stderr, "usage: main render <template> <out>")
			os.Exit(2)
		}
		if err = renderOnce(context.Background(), config, logger, args[1], args[2]); err != nil {
			logger.Error("Render failed", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting markup server", "version", Version, "commit", Commit, "build_date", BuildDate)
	if err = run(ctx, config, logger); err != nil {
		logger.Error("An error occurred during server run, shutting down.", "error", err)
		os.Exit(1)
	}
	logger.Info("markup server has shut down.")
}

// app holds everything a render needs: the database, the fragment store and
// the template manager built on top of it.
type app struct {
	db    *sql.DB
	store *fragments.Store
	tm    *templating.TemplateManager
}

func newApp(ctx context.Context, config *Config, logger *slog.Logger) (*app, error) {
	db, err := initDB(config.Server.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err = fragments.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup fragments schema: %w", err)
	}
	store, err := fragments.NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create fragment store: %w", err)
	}
	store.SetLogger(logger)

	if err = importFragments(ctx, store, config.Server.fragmentsPath(), logger); err != nil {
		store.Close()
		_ = db.Close()
		return nil, err
	}

	tm, err := templating.NewTemplateManager(logger, store, config.Templates, config.Server.DataDir)
	if err != nil {
		store.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to create template manager: %w", err)
	}
	return &app{db: db, store: store, tm: tm}, nil
}

func (a *app) Close() error {
	a.store.Close()
	return a.db.Close()
}

// importFragments seeds the store from a YAML file. A missing file is not an
// error.
func importFragments(ctx context.Context, store *fragments.Store, path string, logger *slog.Logger) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("No fragments file, skipping import", "path", path)
			return nil
		}
		return fmt.Errorf("failed to open fragments file: %w", err)
	}
	defer f.Close()

	if _, err = store.Import(ctx, f); err != nil {
		return fmt.Errorf("failed to import %s: %w", path, err)
	}
	return nil
}

// run hosts the HTTP server until ctx is cancelled.
func run(ctx context.Context, config *Config, logger *slog.Logger) error {
	a, err := newApp(ctx, config, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    config.Server.ServerAddr,
		Handler: NewServer(config, logger, a.tm, a.store),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting http server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("OS signal received, initiating shutdown.")
	case err = <-serveErr:
		logger.Error("Http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Http server shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped.")

	logger.Info("Closing database connection.")
	if err := a.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}
	return err
}

// renderOnce renders one template with no data and writes it to out. The file
// is replaced atomically, so readers never see a partial page.
func renderOnce(ctx context.Context, config *Config, logger *slog.Logger, name, out string) error {
	a, err := newApp(ctx, config, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	resolved, ok := a.tm.ResolveName(name)
	if !ok {
		return fmt.Errorf("template %q not found in %s", name, a.tm.GetTemplateDir())
	}
	var buf bytes.Buffer
	if err = a.tm.Execute(ctx, &buf, resolved, map[string]any{}); err != nil {
		return err
	}
	if err = atomic.WriteFile(out, &buf); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	logger.Info("Rendered template", "template", resolved, "out", out, "bytes", buf.Len())
	return nil
}
