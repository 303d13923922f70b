package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ FeedSourceRepository = (*FeedSourceRepo)(nil)

// FeedSourceRepo handles database operations for feed sources
type FeedSourceRepo struct {
	db *DB
}

func NewFeedSourceRepo(db *DB) *FeedSourceRepo {
	return &FeedSourceRepo{db: db}
}

const feedSourceColumns = `id, name, url, polling_interval, template, channels,
	schedule_interval_days, timezone, active, auto_post, error_count,
	last_error, last_polled_at, created_at, updated_at`

func marshalChannels(channels []string) string {
	if channels == nil {
		channels = []string{}
	}
	data, _ := json.Marshal(channels)
	return string(data)
}

func unmarshalChannels(raw string) []string {
	var channels []string
	if raw == "" {
		return channels
	}
	_ = json.Unmarshal([]byte(raw), &channels)
	return channels
}

func (r *FeedSourceRepo) CreateFeed(feed *FeedSource) error {
	if feed.ID == "" {
		feed.ID = uuid.NewString()
	}

	_, err := r.db.Exec(`
		INSERT INTO feed_sources (id, name, url, polling_interval, template, channels,
			schedule_interval_days, timezone, active, auto_post)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, feed.ID, feed.Name, feed.URL, feed.PollingInterval, feed.Template,
		marshalChannels(feed.Channels), feed.ScheduleIntervalDays, feed.Timezone,
		feed.Active, feed.AutoPost)

	if err != nil {
		return fmt.Errorf("failed to create feed: %w", err)
	}

	return nil
}

func (r *FeedSourceRepo) scanFeed(row interface{ Scan(...any) error }) (*FeedSource, error) {
	var feed FeedSource
	var channels string
	err := row.Scan(
		&feed.ID, &feed.Name, &feed.URL, &feed.PollingInterval, &feed.Template,
		&channels, &feed.ScheduleIntervalDays, &feed.Timezone, &feed.Active,
		&feed.AutoPost, &feed.ErrorCount, &feed.LastError, &feed.LastPolledAt,
		&feed.CreatedAt, &feed.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	feed.Channels = unmarshalChannels(channels)
	return &feed, nil
}

func (r *FeedSourceRepo) GetFeed(id string) (*FeedSource, error) {
	feed, err := r.scanFeed(r.db.QueryRow(
		`SELECT `+feedSourceColumns+` FROM feed_sources WHERE id = ?`, id))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}

	return feed, nil
}

func (r *FeedSourceRepo) GetFeedByName(name string) (*FeedSource, error) {
	feed, err := r.scanFeed(r.db.QueryRow(
		`SELECT `+feedSourceColumns+` FROM feed_sources WHERE name = ?`, name))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed by name: %w", err)
	}

	return feed, nil
}

func (r *FeedSourceRepo) ListFeeds() ([]FeedSource, error) {
	rows, err := r.db.Query(`SELECT ` + feedSourceColumns + ` FROM feed_sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	return r.collectFeeds(rows)
}

// ListFeedsDueForPoll returns active feeds whose polling interval has
// elapsed since their last poll.
func (r *FeedSourceRepo) ListFeedsDueForPoll(now time.Time) ([]FeedSource, error) {
	rows, err := r.db.Query(`
		SELECT `+feedSourceColumns+`
		FROM feed_sources
		WHERE active = 1
		  AND (last_polled_at IS NULL
		       OR datetime(last_polled_at, '+' || polling_interval || ' minutes') <= datetime(?))
		ORDER BY COALESCE(last_polled_at, '1970-01-01')
		LIMIT 50
	`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds due for poll: %w", err)
	}
	defer rows.Close()

	return r.collectFeeds(rows)
}

func (r *FeedSourceRepo) collectFeeds(rows *sql.Rows) ([]FeedSource, error) {
	var feeds []FeedSource
	for rows.Next() {
		feed, err := r.scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, *feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}

	return feeds, nil
}

func (r *FeedSourceRepo) GetFeedCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM feed_sources").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}

// UpdateFeedConfig updates operator-editable configuration. The URL is
// deliberately absent from the statement.
func (r *FeedSourceRepo) UpdateFeedConfig(feed *FeedSource) error {
	_, err := r.db.Exec(`
		UPDATE feed_sources
		SET name = ?, polling_interval = ?, template = ?, channels = ?,
		    schedule_interval_days = ?, timezone = ?, active = ?, auto_post = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, feed.Name, feed.PollingInterval, feed.Template, marshalChannels(feed.Channels),
		feed.ScheduleIntervalDays, feed.Timezone, feed.Active, feed.AutoPost, feed.ID)

	if err != nil {
		return fmt.Errorf("failed to update feed config: %w", err)
	}

	return nil
}

// UpsertSeed registers a feed definition loaded from a seed file. An
// existing feed keeps its URL and polling metadata.
func (r *FeedSourceRepo) UpsertSeed(name, url string, pollingInterval int, template string, channels []string, autoPost bool) error {
	existing, err := r.GetFeedByName(name)
	if err != nil {
		return fmt.Errorf("failed to check existing feed: %w", err)
	}

	if existing != nil {
		existing.PollingInterval = pollingInterval
		if template != "" {
			existing.Template = template
		}
		if channels != nil {
			existing.Channels = channels
		}
		existing.AutoPost = autoPost
		return r.UpdateFeedConfig(existing)
	}

	feed := &FeedSource{
		Name:                 name,
		URL:                  url,
		PollingInterval:      pollingInterval,
		Template:             template,
		Channels:             channels,
		ScheduleIntervalDays: 1,
		Timezone:             "UTC",
		Active:               true,
		AutoPost:             autoPost,
	}
	return r.CreateFeed(feed)
}

func (r *FeedSourceRepo) RecordPollSuccess(id string, polledAt time.Time) error {
	_, err := r.db.Exec(`
		UPDATE feed_sources
		SET last_polled_at = ?, error_count = 0, last_error = '', updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, polledAt.UTC(), id)

	if err != nil {
		return fmt.Errorf("failed to record poll success: %w", err)
	}

	return nil
}

// RecordPollFailure increments the consecutive-error counter. Repeated
// failures surface to the operator through the counter; the feed is never
// auto-disabled.
func (r *FeedSourceRepo) RecordPollFailure(id string, lastError string) error {
	_, err := r.db.Exec(`
		UPDATE feed_sources
		SET error_count = error_count + 1, last_error = ?,
		    last_polled_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, lastError, id)

	if err != nil {
		return fmt.Errorf("failed to record poll failure: %w", err)
	}

	return nil
}

func (r *FeedSourceRepo) ClearPollErrors(id string) error {
	_, err := r.db.Exec(`
		UPDATE feed_sources
		SET error_count = 0, last_error = '', updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, id)

	if err != nil {
		return fmt.Errorf("failed to clear poll errors: %w", err)
	}

	return nil
}
