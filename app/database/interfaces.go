package database

import (
	"time"

	"github.com/reviewpilot/syndicate/app/channel"
)

type FeedSourceRepository interface {
	CreateFeed(feed *FeedSource) error
	GetFeed(id string) (*FeedSource, error)
	GetFeedByName(name string) (*FeedSource, error)
	ListFeeds() ([]FeedSource, error)
	ListFeedsDueForPoll(now time.Time) ([]FeedSource, error)
	GetFeedCount() (int, error)

	// UpdateFeedConfig never touches the URL; it is immutable after creation.
	UpdateFeedConfig(feed *FeedSource) error
	UpsertSeed(name, url string, pollingInterval int, template string, channels []string, autoPost bool) error

	RecordPollSuccess(id string, polledAt time.Time) error
	RecordPollFailure(id string, lastError string) error
	ClearPollErrors(id string) error
}

type FeedItemRepository interface {
	// InsertIfAbsent reconciles one discovered entry: items already stored
	// are left untouched; it reports whether a row was inserted.
	InsertIfAbsent(item *FeedItem) (bool, error)

	GetItem(feedID, itemID string) (*FeedItem, error)
	GetItemsByGUIDs(feedID string, guids []string) ([]FeedItem, error)
	ListItems(feedID string) ([]FeedItem, error)
	CountItems(feedID string) (int, error)
	CountItemsByStatus(feedID string, status FeedItemStatus) (int, error)

	UpdateItemStatus(itemID string, status FeedItemStatus, reason string) error
	MarkItemScheduled(itemID, jobID string) error
	RevertItemSchedule(itemID string, status FeedItemStatus) error

	ResetItems(feedID string) (int, error)
	DeleteFailedItems(feedID string) (int, error)
}

type JobRepository interface {
	CreateJob(job *ScheduledJob) error
	GetJob(id string) (*ScheduledJob, error)
	ListJobsForFeed(feedID string) ([]ScheduledJob, error)
	ListDueJobs(now time.Time, limit int) ([]ScheduledJob, error)

	// ClaimJob atomically transitions pending -> processing; it reports
	// false when the job was already claimed, finished, or cancelled.
	ClaimJob(id string) (bool, error)

	// CancelJob atomically transitions pending -> cancelled, rejecting
	// jobs that are no longer pending.
	CancelJob(id string) (bool, error)

	UpdateOutcome(outcome ChannelOutcome) error
	FinalizeJob(id string, status JobStatus) error
	DeleteUnpublishedJobsForFeed(feedID string) (int, error)
}

type CredentialRepository interface {
	channel.CredentialStore
	GetCredential(channelID string) (*channel.Credential, error)
	ListCredentials() ([]channel.Credential, error)
}
