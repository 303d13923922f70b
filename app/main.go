package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/reviewpilot/syndicate/app/api"
	"github.com/reviewpilot/syndicate/app/cfg"
	"github.com/reviewpilot/syndicate/app/channel"
	"github.com/reviewpilot/syndicate/app/database"
	"github.com/reviewpilot/syndicate/app/feed"
	"github.com/reviewpilot/syndicate/app/schedule"
	"github.com/reviewpilot/syndicate/app/tasks"
)

func main() {
	_ = godotenv.Load()

	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was requested
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Syndicate", "version", appCfg.Version)

	if appCfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:     appCfg.SentryDSN,
			Release: appCfg.Version,
		})
		if err != nil {
			slog.Warn("Failed to initialize Sentry", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	feedRepo := database.NewFeedSourceRepo(db)
	itemRepo := database.NewFeedItemRepo(db)
	jobRepo := database.NewJobRepo(db)
	credRepo := database.NewCredentialRepo(db)

	registry := buildRegistry(appCfg, credRepo)
	coordinator := channel.NewCoordinator(registry)

	seedLoader := feed.NewSeedLoader(appCfg.FeedsDir, feedRepo)
	if err := seedLoader.Run(); err != nil {
		slog.Error("Failed to load feed seeds", "dir", appCfg.FeedsDir, "error", err)
		os.Exit(1)
	}

	schedules := schedule.NewService(feedRepo, itemRepo, jobRepo)
	executor := schedule.NewExecutor(jobRepo, itemRepo, coordinator)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	poller := feed.NewPoller(httpClient, feed.NewParser(), feed.NewContentExtractor(),
		feedRepo, itemRepo, schedules, appCfg.UserAgent)

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount, "interval", appCfg.SchedulerInterval)
	scheduler := tasks.NewScheduler(feedRepo, jobRepo, poller, executor)
	scheduler.Start()
	defer scheduler.Stop()

	apiHandler := api.NewHandler(registry, coordinator, credRepo, feedRepo, itemRepo,
		jobRepo, poller, schedules, scheduler)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey, appCfg.Version)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("HTTP server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler is stopped via defer
	slog.Info("Shutdown complete")
}

// buildRegistry constructs the channel adapters and restores persisted
// credentials. A failed restore leaves the channel disconnected; the
// operator reconnects it through the API.
func buildRegistry(appCfg *cfg.Cfg, credRepo database.CredentialRepository) *channel.Registry {
	registry := channel.NewRegistry()
	registry.Register(channel.NewBluesky(appCfg.BlueskyHost, credRepo))
	registry.Register(channel.NewGoogleBusiness(appCfg.GoogleClientID, appCfg.GoogleClientSecret, credRepo))
	registry.Register(channel.NewLinkedIn(appCfg.LinkedInClientID, appCfg.LinkedInClientSecret, credRepo))

	creds, err := credRepo.ListCredentials()
	if err != nil {
		slog.Warn("Failed to load stored credentials", "error", err)
		return registry
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, cred := range creds {
		adapter, ok := registry.Get(cred.Channel)
		if !ok {
			slog.Warn("Stored credential for unknown channel", "channel", cred.Channel)
			continue
		}
		if err := adapter.Authenticate(ctx, cred); err != nil {
			slog.Warn("Failed to restore channel connection", "channel", cred.Channel, "error", err)
			continue
		}
		slog.Info("Channel connected", "channel", cred.Channel)
	}

	return registry
}
