package schedule

import (
	"cmp"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/reviewpilot/syndicate/app/database"
	"github.com/reviewpilot/syndicate/app/feed"
)

// autoPostHour is the local publish hour for jobs created by the
// auto-post policy, where no operator picked a start time.
const autoPostHour = 9

// ScheduleResult reports one scheduling request: how many jobs were
// materialized and which items could not be scheduled.
type ScheduleResult struct {
	ScheduledCount int                     `json:"scheduled_count"`
	Jobs           []database.ScheduledJob `json:"jobs"`
	Errors         []string                `json:"errors"`
}

// ResetResult reports a feed reset: reverted items and deleted jobs.
type ResetResult struct {
	ItemCount   int `json:"item_count"`
	DeletedJobs int `json:"deleted_jobs"`
}

// ClearResult reports a failed-item sweep: how many rows were removed
// and how many failed items the feed held when the sweep started.
type ClearResult struct {
	ClearedCount int `json:"cleared_count"`
	TotalFailed  int `json:"total_failed"`
}

// Service materializes schedule plans into persisted jobs and manages
// their lifecycle up to execution.
type Service struct {
	feedRepo database.FeedSourceRepository
	itemRepo database.FeedItemRepository
	jobRepo  database.JobRepository
}

func NewService(feedRepo database.FeedSourceRepository, itemRepo database.FeedItemRepository,
	jobRepo database.JobRepository) *Service {
	return &Service{
		feedRepo: feedRepo,
		itemRepo: itemRepo,
		jobRepo:  jobRepo,
	}
}

// ScheduleItems plans and persists one job per schedulable item, in the
// caller's GUID order. Items that are missing or not schedulable are
// reported in the result without failing the rest of the batch. The
// content snapshot is rendered here; later template edits never touch
// already-materialized jobs.
func (s *Service) ScheduleItems(feedID string, itemGUIDs []string, start time.Time,
	intervalDays int, timezone string) (*ScheduleResult, error) {

	source, err := s.feedRepo.GetFeed(feedID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, fmt.Errorf("feed %q not found", feedID)
	}

	if len(source.Channels) == 0 {
		return nil, fmt.Errorf("feed %q has no target channels configured", source.Name)
	}

	tz := cmp.Or(timezone, source.Timezone, "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	items, err := s.itemRepo.GetItemsByGUIDs(feedID, itemGUIDs)
	if err != nil {
		return nil, err
	}

	result := &ScheduleResult{}

	found := make(map[string]bool, len(items))
	var schedulable []database.FeedItem
	for _, item := range items {
		found[item.GUID] = true
		if item.Status.Schedulable() {
			schedulable = append(schedulable, item)
		} else {
			result.Errors = append(result.Errors,
				fmt.Sprintf("item %q is %s, not schedulable", item.GUID, item.Status))
		}
	}
	for _, guid := range itemGUIDs {
		if !found[guid] {
			result.Errors = append(result.Errors, fmt.Sprintf("item %q not found", guid))
		}
	}

	dates, err := Plan(len(schedulable), start, intervalDays, loc, time.Now())
	if err != nil {
		return nil, err
	}

	for i, item := range schedulable {
		job := s.buildJob(source, item, dates[i], tz)

		if err := s.jobRepo.CreateJob(job); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("failed to create job for %q: %v", item.GUID, err))
			continue
		}

		if err := s.itemRepo.MarkItemScheduled(item.ID, job.ID); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("failed to mark %q scheduled: %v", item.GUID, err))
			continue
		}

		result.Jobs = append(result.Jobs, *job)
		result.ScheduledCount++
	}

	slog.Info("Items scheduled", "feed", source.Name,
		"scheduled", result.ScheduledCount, "errors", len(result.Errors))

	return result, nil
}

func (s *Service) buildJob(source *database.FeedSource, item database.FeedItem,
	scheduledAt time.Time, timezone string) *database.ScheduledJob {

	content := feed.RenderTemplate(source.Template, feed.Entry{
		Title:       item.Title,
		Description: item.Description,
		Link:        item.Link,
	})

	return &database.ScheduledJob{
		FeedID:      &source.ID,
		ItemID:      &item.ID,
		Content:     content,
		Link:        item.Link,
		ImageURL:    item.ImageURL,
		Channels:    source.Channels,
		ScheduledAt: scheduledAt,
		Timezone:    timezone,
		Status:      database.JobStatusPending,
	}
}

// ScheduleNewItems implements the poller's auto-post hand-off: newly
// discovered pending items are planned from tomorrow using the feed's
// default interval, template and channels.
func (s *Service) ScheduleNewItems(source *database.FeedSource, itemGUIDs []string) (int, error) {
	tz := cmp.Or(source.Timezone, "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return 0, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	now := time.Now().In(loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), autoPostHour, 0, 0, 0, loc).AddDate(0, 0, 1)
	interval := max(source.ScheduleIntervalDays, 1)

	result, err := s.ScheduleItems(source.ID, itemGUIDs, start, interval, tz)
	if err != nil {
		return 0, err
	}

	if len(result.Errors) > 0 {
		return result.ScheduledCount, fmt.Errorf("%s", strings.Join(result.Errors, "; "))
	}

	return result.ScheduledCount, nil
}

// UnscheduleItem cancels the item's job while it is still pending. A job
// already claimed for processing (or finished) is not cancellable; the
// caller is told so instead of racing the executor. On success the item
// returns to a schedulable status.
func (s *Service) UnscheduleItem(feedID, itemID string) (bool, error) {
	item, err := s.itemRepo.GetItem(feedID, itemID)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, fmt.Errorf("item %q not found", itemID)
	}

	if item.JobID == nil {
		return false, nil
	}

	cancelled, err := s.jobRepo.CancelJob(*item.JobID)
	if err != nil {
		return false, err
	}
	if !cancelled {
		return false, nil
	}

	if err := s.itemRepo.RevertItemSchedule(item.ID, database.FeedItemStatusPending); err != nil {
		return false, err
	}

	slog.Info("Item unscheduled", "item", itemID, "job", *item.JobID)

	return true, nil
}

// UnscheduleJob cancels a job by id under the same pending-only rule
// and reverts the originating item when there is one.
func (s *Service) UnscheduleJob(jobID string) (bool, error) {
	job, err := s.jobRepo.GetJob(jobID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, fmt.Errorf("job %q not found", jobID)
	}

	cancelled, err := s.jobRepo.CancelJob(jobID)
	if err != nil {
		return false, err
	}
	if !cancelled {
		return false, nil
	}

	if job.ItemID != nil {
		if err := s.itemRepo.RevertItemSchedule(*job.ItemID, database.FeedItemStatusPending); err != nil {
			return false, err
		}
	}

	slog.Info("Job unscheduled", "job", jobID)

	return true, nil
}

// ResetFeed recovers a misconfigured feed: every job that has not
// published anything is deleted, all items revert to initial_sync, and
// the poll error counter is cleared.
func (s *Service) ResetFeed(feedID string) (*ResetResult, error) {
	source, err := s.feedRepo.GetFeed(feedID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, fmt.Errorf("feed %q not found", feedID)
	}

	deletedJobs, err := s.jobRepo.DeleteUnpublishedJobsForFeed(feedID)
	if err != nil {
		return nil, err
	}

	itemCount, err := s.itemRepo.ResetItems(feedID)
	if err != nil {
		return nil, err
	}

	if err := s.feedRepo.ClearPollErrors(feedID); err != nil {
		return nil, err
	}

	slog.Info("Feed reset", "feed", source.Name,
		"items", itemCount, "deleted_jobs", deletedJobs)

	return &ResetResult{ItemCount: itemCount, DeletedJobs: deletedJobs}, nil
}

// ClearFailedItems removes only items in failed status; scheduled,
// pending and initial_sync items are untouched. The result carries the
// failed count observed before the sweep alongside the rows removed.
func (s *Service) ClearFailedItems(feedID string) (*ClearResult, error) {
	total, err := s.itemRepo.CountItemsByStatus(feedID, database.FeedItemStatusFailed)
	if err != nil {
		return nil, err
	}

	cleared, err := s.itemRepo.DeleteFailedItems(feedID)
	if err != nil {
		return nil, err
	}

	return &ClearResult{ClearedCount: cleared, TotalFailed: total}, nil
}
