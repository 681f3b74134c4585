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
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/starford/orgcal/internal/api"
	"github.com/starford/orgcal/internal/apperr"
	"github.com/starford/orgcal/internal/document"
	"github.com/starford/orgcal/internal/entryservice"
	"github.com/starford/orgcal/internal/event"
	"github.com/starford/orgcal/internal/ics"
	"github.com/starford/orgcal/internal/index"
	"github.com/starford/orgcal/internal/mcpserver"
	"github.com/starford/orgcal/internal/remote"
	"github.com/starford/orgcal/internal/sse"
	"github.com/starford/orgcal/internal/storage"
	"github.com/starford/orgcal/internal/syncer"
)

// runtime holds the components shared by every command.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	loc    *time.Location
	store  *storage.FS
	db     *index.DB
	doc    *document.Store
	syncer *syncer.Syncer // nil when the remote section is not usable
	svc    *entryservice.Service
	events *sse.Broker // set by Run only
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// setup validates the configuration and opens storage, index and document.
// With requireRemote false a missing or invalid remote section leaves the
// runtime without a syncer instead of failing.
func setup(app *application, requireRemote bool) (*runtime, error) {
	cfg := app.config
	if err := cfg.Local(); err != nil {
		return nil, err
	}

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	loc, err := cfg.Sync.Location()
	if err != nil {
		return nil, apperr.NewConfigurationError("sync.timezone", err)
	}

	logger.Info("Configuration loaded",
		slog.String("document_path", cfg.Document.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("timezone", loc.String()),
		slog.Int("horizon_days", cfg.Sync.HorizonDays),
		slog.String("log_level", cfg.App.LogLevel.String()))

	dir := filepath.Dir(cfg.Document.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create document dir: %w", err)
	}
	store, err := storage.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	archive, err := archivePath(store.Root(), cfg.Document.ArchivePath)
	if err != nil {
		return nil, err
	}
	doc, err := document.Open(store, filepath.Base(cfg.Document.Path), archive, loc)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger, loc: loc, store: store, db: db, doc: doc}

	s, err := rt.newSyncer(app)
	switch {
	case err == nil:
		rt.syncer = s
	case requireRemote || !apperr.IsConfiguration(err):
		db.Close()
		return nil, err
	default:
		logger.Warn("remote not configured, sync disabled", slog.String("error", err.Error()))
	}

	var runner entryservice.Runner
	if rt.syncer != nil {
		runner = rt.syncer
	}
	rt.svc = entryservice.NewService(db, runner)
	return rt, nil
}

// archivePath resolves the configured archive file relative to the
// document directory. It must live under that directory.
func archivePath(root, configured string) (string, error) {
	if configured == "" {
		return "", nil
	}
	abs, err := filepath.Abs(configured)
	if err != nil {
		return "", apperr.NewConfigurationError("document.archive_path", err)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperr.NewConfigurationError("document.archive_path",
			errors.New("must be inside the document directory"))
	}
	return filepath.ToSlash(rel), nil
}

func (rt *runtime) newSyncer(app *application) (*syncer.Syncer, error) {
	if err := apperr.NewConfigurationError("remote", rt.cfg.Remote.Validate()); err != nil {
		return nil, err
	}
	clientOpts := []remote.Option{remote.WithLogger(rt.logger)}
	if app.httpClient != nil {
		clientOpts = append(clientOpts, remote.WithHTTPClient(app.httpClient))
	}
	client, err := remote.New(rt.cfg.Remote.Client(), clientOpts...)
	if err != nil {
		return nil, err
	}

	opts := []syncer.Option{
		syncer.WithLogger(rt.logger),
		syncer.AfterPersist(rt.reindex),
	}
	if rt.cfg.Export.ICSPath != "" {
		opts = append(opts, syncer.AfterPersist(rt.exportICS))
	}
	opts = append(opts, syncer.AfterPersist(rt.announce))
	return syncer.New(client, rt.doc, event.New(rt.loc, rt.cfg.Sync.HorizonDays), opts...), nil
}

func (rt *runtime) reindex(_ context.Context, _ *syncer.Result) error {
	return index.Sync(rt.db, rt.store, rt.loc, rt.logger)
}

func (rt *runtime) exportICS(_ context.Context, res *syncer.Result) error {
	events, err := rt.doc.ActiveEvents()
	if err != nil {
		return err
	}
	if err := ics.WriteFile(rt.cfg.Export.ICSPath, events, res.StartedAt); err != nil {
		return err
	}
	rt.logger.Debug("ics exported", slog.String("path", rt.cfg.Export.ICSPath), slog.Int("events", len(events)))
	return nil
}

func (rt *runtime) announce(_ context.Context, res *syncer.Result) error {
	if rt.events != nil {
		rt.events.PublishSync(res)
	}
	return nil
}

func (rt *runtime) close() {
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("close index", slog.String("error", err.Error()))
	}
}

// RunOnce performs a single sync run and returns its summary.
func RunOnce(ctx context.Context, opts ...Option) (*syncer.Result, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	rt, err := setup(app, true)
	if err != nil {
		return nil, err
	}
	defer rt.close()

	if err := index.Sync(rt.db, rt.store, rt.loc, rt.logger); err != nil {
		rt.logger.Warn("initial index sync failed", slog.String("error", err.Error()))
	}
	return rt.svc.Sync(ctx)
}

// RunMCP serves the MCP tools on stdio until the client disconnects.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	rt, err := setup(app, false)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := index.Sync(rt.db, rt.store, rt.loc, rt.logger); err != nil {
		rt.logger.Warn("initial index sync failed", slog.String("error", err.Error()))
	}
	return mcpserver.New(rt.svc, app.version).ServeStdio()
}

// Run starts the long-running service: scheduled sync, HTTP API and index
// watcher.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := setup(app, true)
	if err != nil {
		return err
	}
	defer rt.close()
	cfg, logger := rt.cfg, rt.logger

	// Run initial index sync.
	if err := index.Sync(rt.db, rt.store, rt.loc, logger); err != nil {
		logger.Warn("initial index sync failed", slog.String("error", err.Error()))
	}

	rt.events = sse.NewBroker(2 * time.Second)
	defer rt.events.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	var httpServer *http.Server
	if cfg.App.HTTP.Enabled {
		httpServer = &http.Server{
			Addr:              cfg.App.HTTP.Address(),
			Handler:           api.NewServerRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, rt.events),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	// Keep the index current when the document is edited by hand.
	g.Go(func() error {
		return index.Watch(gCtx, rt.db, rt.store, rt.loc, logger, func(kind, path string) {
			logger.Debug("index changed", slog.String("kind", kind), slog.String("path", path))
			rt.events.PublishFileEvent(kind, path)
		})
	})

	scheduler := cron.New(
		cron.WithLocation(rt.loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
	)
	if cfg.Sync.Schedule != "" {
		if _, err := scheduler.AddFunc(cfg.Sync.Schedule, func() { rt.scheduledSync(gCtx) }); err != nil {
			return apperr.NewConfigurationError("sync.schedule", err)
		}
	}
	scheduler.Start()
	logger.Info("Scheduler started", slog.String("schedule", cfg.Sync.Schedule))

	// First run right away instead of waiting for the first tick.
	g.Go(func() error {
		rt.scheduledSync(gCtx)
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

		<-scheduler.Stop().Done()
		// Ends open event streams so Shutdown does not wait on them.
		rt.events.Close()

		if httpServer != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
		}
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

func (rt *runtime) scheduledSync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	// Failures are logged by the syncer with the run id.
	if _, err := rt.svc.Sync(ctx); errors.Is(err, apperr.ErrSyncInProgress) {
		rt.logger.Info("sync skipped, previous run still in progress")
	}
}
