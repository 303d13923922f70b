package feed

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/reviewpilot/syndicate/app/database"
)

// SeedLoader registers feed sources from *.yml files in the feeds
// directory at startup. Seeds are idempotent: an existing feed keeps
// its URL and polling state, only its configuration is refreshed.
type SeedLoader struct {
	feedsDir string
	feedRepo database.FeedSourceRepository
}

func NewSeedLoader(feedsDir string, feedRepo database.FeedSourceRepository) *SeedLoader {
	return &SeedLoader{
		feedsDir: feedsDir,
		feedRepo: feedRepo,
	}
}

func (l *SeedLoader) Run() error {
	if _, err := os.Stat(l.feedsDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(l.feedsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		seed, err := l.parseSeed(file)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		err = l.feedRepo.UpsertSeed(seed.Name, seed.URL, seed.Settings.PollingInterval,
			seed.Settings.Template, seed.Channels, seed.Settings.AutoPost)
		if err != nil {
			return fmt.Errorf("failed to register seed %s: %w", seed.Name, err)
		}

		slog.Debug("Feed seed loaded", "feed", seed.Name,
			"polling_interval", seed.Settings.PollingInterval,
			"auto_post", seed.Settings.AutoPost)
	}

	return nil
}

func (l *SeedLoader) parseSeed(file string) (*Seed, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	seed.Name = strings.TrimSuffix(filepath.Base(file), ".yml")

	if seed.Settings.PollingInterval == 0 {
		seed.Settings.PollingInterval = 60
	}

	if err := l.validateSeed(&seed); err != nil {
		return nil, err
	}

	return &seed, nil
}

func (l *SeedLoader) validateSeed(seed *Seed) error {
	if seed.URL == "" {
		return fmt.Errorf("feed URL is required")
	}
	if seed.Settings.PollingInterval < 0 {
		return fmt.Errorf("polling interval must be non-negative")
	}
	if seed.Settings.AutoPost && len(seed.Channels) == 0 {
		return fmt.Errorf("auto_post requires at least one channel")
	}
	return nil
}
