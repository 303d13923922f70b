package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ JobRepository = (*JobRepo)(nil)

// JobRepo handles database operations for scheduled publish jobs
type JobRepo struct {
	db *DB
}

func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

const jobColumns = `id, feed_id, item_id, content, link, image_url, channels,
	scheduled_at, timezone, status, created_at, updated_at`

// CreateJob persists a job draft together with one pending outcome per
// target channel.
func (r *JobRepo) CreateJob(job *ScheduledJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO scheduled_jobs (id, feed_id, item_id, content, link, image_url, channels, scheduled_at, timezone, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.FeedID, job.ItemID, job.Content, job.Link, job.ImageURL,
		marshalChannels(job.Channels), job.ScheduledAt.UTC(), job.Timezone, job.Status)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	for _, ch := range job.Channels {
		_, err = tx.Exec(`
			INSERT INTO job_outcomes (job_id, channel, status) VALUES (?, ?, ?)
		`, job.ID, ch, OutcomeStatusPending)
		if err != nil {
			return fmt.Errorf("failed to create job outcome: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job: %w", err)
	}

	return nil
}

func (r *JobRepo) scanJob(row interface{ Scan(...any) error }) (*ScheduledJob, error) {
	var job ScheduledJob
	var channels string
	err := row.Scan(
		&job.ID, &job.FeedID, &job.ItemID, &job.Content, &job.Link, &job.ImageURL,
		&channels, &job.ScheduledAt, &job.Timezone, &job.Status,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Channels = unmarshalChannels(channels)
	return &job, nil
}

func (r *JobRepo) GetJob(id string) (*ScheduledJob, error) {
	job, err := r.scanJob(r.db.QueryRow(
		`SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = ?`, id))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	outcomes, err := r.getOutcomes(id)
	if err != nil {
		return nil, err
	}
	job.Outcomes = outcomes

	return job, nil
}

func (r *JobRepo) getOutcomes(jobID string) ([]ChannelOutcome, error) {
	rows, err := r.db.Query(`
		SELECT job_id, channel, status, external_id, error, started_at, completed_at
		FROM job_outcomes
		WHERE job_id = ?
		ORDER BY channel
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []ChannelOutcome
	for rows.Next() {
		var outcome ChannelOutcome
		err := rows.Scan(&outcome.JobID, &outcome.Channel, &outcome.Status,
			&outcome.ExternalID, &outcome.Error, &outcome.StartedAt, &outcome.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		outcomes = append(outcomes, outcome)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcome rows: %w", err)
	}

	return outcomes, nil
}

func (r *JobRepo) ListJobsForFeed(feedID string) ([]ScheduledJob, error) {
	rows, err := r.db.Query(`
		SELECT `+jobColumns+` FROM scheduled_jobs WHERE feed_id = ? ORDER BY scheduled_at
	`, feedID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs for feed: %w", err)
	}
	defer rows.Close()

	return r.collectJobs(rows)
}

func (r *JobRepo) ListDueJobs(now time.Time, limit int) ([]ScheduledJob, error) {
	rows, err := r.db.Query(`
		SELECT `+jobColumns+`
		FROM scheduled_jobs
		WHERE status = ? AND scheduled_at <= ?
		ORDER BY scheduled_at
		LIMIT ?
	`, JobStatusPending, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due jobs: %w", err)
	}
	defer rows.Close()

	return r.collectJobs(rows)
}

func (r *JobRepo) collectJobs(rows *sql.Rows) ([]ScheduledJob, error) {
	var jobs []ScheduledJob
	for rows.Next() {
		job, err := r.scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, *job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}

	return jobs, nil
}

// ClaimJob performs the atomic pending -> processing transition. The
// conditional UPDATE makes double-claiming impossible even with
// overlapping scheduler cycles.
func (r *JobRepo) ClaimJob(id string) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE scheduled_jobs
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, JobStatusProcessing, id, JobStatusPending)

	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}

	return affected > 0, nil
}

// CancelJob transitions pending -> cancelled; a job already claimed or
// finished is reported as not cancellable.
func (r *JobRepo) CancelJob(id string) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE scheduled_jobs
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, JobStatusCancelled, id, JobStatusPending)

	if err != nil {
		return false, fmt.Errorf("failed to cancel job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read cancel result: %w", err)
	}

	return affected > 0, nil
}

func (r *JobRepo) UpdateOutcome(outcome ChannelOutcome) error {
	_, err := r.db.Exec(`
		UPDATE job_outcomes
		SET status = ?, external_id = ?, error = ?, started_at = ?, completed_at = ?
		WHERE job_id = ? AND channel = ?
	`, outcome.Status, outcome.ExternalID, outcome.Error, outcome.StartedAt,
		outcome.CompletedAt, outcome.JobID, outcome.Channel)

	if err != nil {
		return fmt.Errorf("failed to update outcome: %w", err)
	}

	return nil
}

func (r *JobRepo) FinalizeJob(id string, status JobStatus) error {
	_, err := r.db.Exec(`
		UPDATE scheduled_jobs SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, id)

	if err != nil {
		return fmt.Errorf("failed to finalize job: %w", err)
	}

	return nil
}

// DeleteUnpublishedJobsForFeed removes the feed's jobs that have not
// published anything yet. Completed and partially published jobs are
// kept as history.
func (r *JobRepo) DeleteUnpublishedJobsForFeed(feedID string) (int, error) {
	result, err := r.db.Exec(`
		DELETE FROM scheduled_jobs
		WHERE feed_id = ? AND status IN (?, ?)
	`, feedID, JobStatusPending, JobStatusCancelled)

	if err != nil {
		return 0, fmt.Errorf("failed to delete unpublished jobs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read delete result: %w", err)
	}

	return int(affected), nil
}
