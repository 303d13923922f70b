package database

import (
	"time"
)

type FeedItemStatus string

const (
	FeedItemStatusInitialSync FeedItemStatus = "initial_sync"
	FeedItemStatusPending     FeedItemStatus = "pending"
	FeedItemStatusScheduled   FeedItemStatus = "scheduled"
	FeedItemStatusSkipped     FeedItemStatus = "skipped"
	FeedItemStatusFailed      FeedItemStatus = "failed"
)

// Schedulable reports whether an item is available for (re)scheduling.
func (s FeedItemStatus) Schedulable() bool {
	return s == FeedItemStatusInitialSync || s == FeedItemStatusPending
}

type JobStatus string

const (
	JobStatusPending        JobStatus = "pending"
	JobStatusProcessing     JobStatus = "processing"
	JobStatusCompleted      JobStatus = "completed"
	JobStatusPartialSuccess JobStatus = "partial_success"
	JobStatusFailed         JobStatus = "failed"
	JobStatusCancelled      JobStatus = "cancelled"
)

type OutcomeStatus string

const (
	OutcomeStatusPending    OutcomeStatus = "pending"
	OutcomeStatusProcessing OutcomeStatus = "processing"
	OutcomeStatusSuccess    OutcomeStatus = "success"
	OutcomeStatusFailed     OutcomeStatus = "failed"
)

// FeedSource is a configured external feed. The URL is immutable after
// creation; polling metadata is mutated by the poller and configuration
// by the operator.
type FeedSource struct {
	ID                   string
	Name                 string
	URL                  string
	PollingInterval      int // minutes
	Template             string
	Channels             []string
	ScheduleIntervalDays int
	Timezone             string
	Active               bool
	AutoPost             bool
	ErrorCount           int
	LastError            string
	LastPolledAt         *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// FeedItem is one discovered entry, unique per (feed, GUID). Upstream
// edits after discovery are ignored to keep scheduled content stable.
type FeedItem struct {
	ID          string
	FeedID      string
	GUID        string
	Title       string
	Description string
	Link        string
	ImageURL    string
	PublishedAt *time.Time
	Status      FeedItemStatus
	Reason      string
	JobID       *string
	CreatedAt   time.Time
}

// ChannelOutcome is the per-channel result recorded on a scheduled job.
type ChannelOutcome struct {
	JobID       string
	Channel     string
	Status      OutcomeStatus
	ExternalID  string
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// ScheduledJob is a materialized publish task. Content is a rendered
// snapshot, not a live reference to the feed item.
type ScheduledJob struct {
	ID          string
	FeedID      *string
	ItemID      *string
	Content     string
	Link        string
	ImageURL    string
	Channels    []string
	ScheduledAt time.Time
	Timezone    string
	Status      JobStatus
	Outcomes    []ChannelOutcome
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TerminalStatus derives the job's final state from its outcomes:
// completed iff all succeeded, failed iff none did, partial otherwise.
func TerminalStatus(outcomes []ChannelOutcome) JobStatus {
	succeeded, failed := 0, 0
	for _, outcome := range outcomes {
		switch outcome.Status {
		case OutcomeStatusSuccess:
			succeeded++
		case OutcomeStatusFailed:
			failed++
		}
	}

	switch {
	case succeeded > 0 && failed == 0:
		return JobStatusCompleted
	case succeeded > 0:
		return JobStatusPartialSuccess
	default:
		return JobStatusFailed
	}
}
