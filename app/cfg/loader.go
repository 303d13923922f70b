package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./syndicate.db" description:"Path to the SQLite database file"`

	// Application configuration
	FeedsDir          string `long:"feeds-dir" env:"FEEDS_DIR" default:"./feeds" description:"Directory containing feed seed files (optional)"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl           string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers for polling and publishing"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"30" description:"Scheduler tick interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	SentryDSN         string `long:"sentry-dsn" env:"SENTRY_DSN" description:"Sentry DSN for error reporting (optional)"`

	// Channel application credentials
	BlueskyHost          string `long:"bluesky-host" env:"BLUESKY_HOST" default:"https://bsky.social" description:"Bluesky PDS host"`
	GoogleClientID       string `long:"google-client-id" env:"GOOGLE_CLIENT_ID" description:"Google OAuth client ID"`
	GoogleClientSecret   string `long:"google-client-secret" env:"GOOGLE_CLIENT_SECRET" description:"Google OAuth client secret"`
	LinkedInClientID     string `long:"linkedin-client-id" env:"LINKEDIN_CLIENT_ID" description:"LinkedIn OAuth client ID"`
	LinkedInClientSecret string `long:"linkedin-client-secret" env:"LINKEDIN_CLIENT_SECRET" description:"LinkedIn OAuth client secret"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Syndicate/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:               raw.DBPath,
		FeedsDir:             raw.FeedsDir,
		Port:                 raw.Port,
		BaseUrl:              raw.BaseUrl,
		WorkerCount:          raw.WorkerCount,
		SchedulerInterval:    raw.SchedulerInterval,
		APIAccessKey:         raw.APIAccessKey,
		SentryDSN:            raw.SentryDSN,
		BlueskyHost:          raw.BlueskyHost,
		GoogleClientID:       raw.GoogleClientID,
		GoogleClientSecret:   raw.GoogleClientSecret,
		LinkedInClientID:     raw.LinkedInClientID,
		LinkedInClientSecret: raw.LinkedInClientSecret,
		UserAgent:            raw.UserAgent,
		Timezone:             raw.Timezone,
		Debug:                raw.Debug,
		Version:              GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
