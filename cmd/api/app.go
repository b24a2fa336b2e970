package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/OneBusAway/go-gtfs"

	"wayfarer.opentransit.org/internal/app"
	"wayfarer.opentransit.org/internal/appconf"
	"wayfarer.opentransit.org/internal/clock"
	"wayfarer.opentransit.org/internal/disruption"
	"wayfarer.opentransit.org/internal/logging"
	"wayfarer.opentransit.org/internal/realtime"
	"wayfarer.opentransit.org/internal/restapi"
	"wayfarer.opentransit.org/internal/timetable"
	"wayfarer.opentransit.org/internal/transit"
)

// ParseAPIKeys splits a comma-separated string of API keys and trims
// whitespace from each key. Returns an empty slice if the input is empty.
func ParseAPIKeys(apiKeysFlag string) []string {
	if apiKeysFlag == "" {
		return []string{}
	}

	keys := strings.Split(apiKeysFlag, ",")
	for i := range keys {
		keys[i] = strings.TrimSpace(keys[i])
	}
	return keys
}

// BuildApplication creates and initializes the Application with all
// dependencies. The dataset comes from the on-disk snapshot when one
// exists, otherwise from the configured static GTFS source.
func BuildApplication(cfg appconf.Config) (*app.Application, error) {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := logging.NewStructuredLogger(os.Stdout, level)
	slog.SetDefault(logger)

	snap, err := loadSnapshot(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}

	store := transit.NewStore()
	store.Publish(snap)

	metrics := realtime.NewMetrics()
	coreApp := &app.Application{
		Config:   cfg,
		Logger:   logger,
		Clock:    clock.SystemClock{},
		Transit:  store,
		Metrics:  metrics,
		Ingestor: realtime.NewIngestor(store, realtime.DefaultConfig(), metrics),
	}
	return coreApp, nil
}

// loadSnapshot restores the last saved snapshot if possible and falls
// back to a fresh build from the static GTFS source.
func loadSnapshot(cfg appconf.Config, logger *slog.Logger) (*transit.Snapshot, error) {
	if cfg.SnapshotPath != "" {
		if _, err := os.Stat(cfg.SnapshotPath); err == nil {
			snap, err := transit.Load(cfg.SnapshotPath)
			if err == nil {
				logger.Info("restored snapshot",
					"path", cfg.SnapshotPath, "version", snap.Version)
				return snap, nil
			}
			logger.Warn("snapshot restore failed, rebuilding from GTFS",
				"path", cfg.SnapshotPath, "error", err.Error())
		}
	}

	if cfg.GtfsURL == "" {
		return nil, fmt.Errorf("no snapshot and no gtfs-url configured")
	}
	data, err := fetchStaticGTFS(cfg.GtfsURL)
	if err != nil {
		return nil, err
	}
	static, err := gtfs.ParseStatic(data, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("parsing GTFS feed: %w", err)
	}
	g, vs, err := timetable.LoadGTFS(static)
	if err != nil {
		return nil, err
	}
	snap := transit.NewSnapshot(g, vs, disruption.NewStore(g.Epoch))

	if cfg.SnapshotPath != "" {
		if err := transit.Save(cfg.SnapshotPath, snap); err != nil {
			logger.Warn("snapshot save failed", "path", cfg.SnapshotPath, "error", err.Error())
		}
	}
	return snap, nil
}

// fetchStaticGTFS reads the zip from an http(s) URL or a local path.
func fetchStaticGTFS(source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		client := &http.Client{Timeout: 5 * time.Minute}
		resp, err := client.Get(source)
		if err != nil {
			return nil, fmt.Errorf("downloading GTFS feed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("GTFS source returned status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("reading GTFS feed: %w", err)
	}
	return data, nil
}

// StartPollers launches one background poller per configured realtime
// feed. They stop when the context is cancelled.
func StartPollers(ctx context.Context, coreApp *app.Application) {
	interval := time.Duration(coreApp.Config.PollSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	for _, feed := range coreApp.Config.Feeds {
		p := realtime.NewPoller(feed.ID, feed.TripUpdatesURL, interval, coreApp.Ingestor, coreApp.Metrics)
		if feed.AuthHeaderName != "" {
			p = p.WithAuthHeader(feed.AuthHeaderName, feed.AuthHeaderValue)
		}
		go p.Run(ctx)
	}
}

// CreateServer creates and configures the HTTP server with routes and
// middleware.
func CreateServer(coreApp *app.Application) *http.Server {
	api := restapi.NewRestAPI(coreApp)

	mux := http.NewServeMux()
	api.SetRoutes(mux)

	// Security headers, then request ids, then request logging outermost.
	handler := api.WithSecurityHeaders(mux)
	handler = restapi.RequestIDMiddleware(handler)
	handler = restapi.NewRequestLoggingMiddleware(coreApp.Logger)(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", coreApp.Config.Port),
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(coreApp.Logger.Handler(), slog.LevelError),
	}
	return srv
}

// Run manages the server lifecycle with graceful shutdown. Feed pollers
// run for as long as the server does; on shutdown the current snapshot
// is saved so the next start restores realtime state.
func Run(srv *http.Server, coreApp *app.Application) error {
	logger := coreApp.Logger
	logger.Info("starting server", "addr", srv.Addr, "env", coreApp.Config.Env.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	StartPollers(ctx, coreApp)

	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	if path := coreApp.Config.SnapshotPath; path != "" {
		if snap := coreApp.Transit.Current(); snap != nil {
			if err := transit.Save(path, snap); err != nil {
				logger.Error("snapshot save failed", "path", path, "error", err.Error())
			}
		}
	}

	logger.Info("server exited")
	return nil
}
