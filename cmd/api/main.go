package main

import (
	"flag"
	"log/slog"
	"os"

	"wayfarer.opentransit.org/internal/appconf"
)

func main() {
	var cfg appconf.Config
	var configPath string
	var apiKeysFlag string
	var envFlag string
	var feed appconf.RealtimeFeed

	// Parse command-line flags
	flag.StringVar(&configPath, "config", "", "Path to a JSON configuration file (replaces the other flags)")
	flag.IntVar(&cfg.Port, "port", 4000, "API server port")
	flag.StringVar(&envFlag, "env", "development", "Environment (development|test|production)")
	flag.StringVar(&apiKeysFlag, "api-keys", "test", "Comma Separated API Keys (test, etc)")
	flag.IntVar(&cfg.RateLimit, "rate-limit", 100, "Requests per second per API key for rate limiting")
	flag.StringVar(&cfg.GtfsURL, "gtfs-url", "", "URL or local path of a static GTFS zip file")
	flag.StringVar(&cfg.SnapshotPath, "snapshot-path", "./wayfarer.snap", "Path of the on-disk snapshot")
	flag.StringVar(&feed.TripUpdatesURL, "trip-updates-url", "", "URL for a GTFS-RT trip updates feed")
	flag.StringVar(&feed.ID, "feed-id", "feed-0", "Identifier of the polled trip updates feed")
	flag.StringVar(&feed.AuthHeaderName, "realtime-auth-header-name", "", "Optional header name for GTFS-RT auth")
	flag.StringVar(&feed.AuthHeaderValue, "realtime-auth-header-value", "", "Optional header value for GTFS-RT auth")
	flag.IntVar(&cfg.PollSeconds, "poll-seconds", 30, "Trip updates poll interval in seconds")
	flag.Parse()

	// Set verbosity flags
	cfg.Verbose = true

	// Parse API keys
	cfg.ApiKeys = ParseAPIKeys(apiKeysFlag)

	// Convert environment flag to enum
	cfg.Env = appconf.EnvFlagToEnvironment(envFlag)

	if feed.TripUpdatesURL != "" {
		cfg.Feeds = append(cfg.Feeds, feed)
	}

	// A config file replaces the flag-built configuration wholesale.
	if configPath != "" {
		jsonCfg, err := appconf.LoadFromFile(configPath)
		if err != nil {
			logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
			logger.Error("failed to load configuration", "path", configPath, "error", err)
			os.Exit(1)
		}
		cfg = jsonCfg.ToAppConfig()
	}

	// Build application with dependencies
	coreApp, err := BuildApplication(cfg)
	if err != nil {
		logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	// Create HTTP server
	srv := CreateServer(coreApp)

	// Run server with graceful shutdown
	if err := Run(srv, coreApp); err != nil {
		coreApp.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
