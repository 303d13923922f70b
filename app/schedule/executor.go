package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/reviewpilot/syndicate/app/channel"
	"github.com/reviewpilot/syndicate/app/database"
)

// Publisher dispatches a content item across its target channels and
// returns one result per channel. Satisfied by channel.Coordinator.
type Publisher interface {
	Publish(ctx context.Context, item channel.ContentItem) map[string]channel.PublishResult
}

// Executor runs due jobs. A job is claimed exactly once: the atomic
// pending -> processing transition happens before any channel dispatch,
// so a crash mid-dispatch leaves the job visibly processing instead of
// silently pending again.
type Executor struct {
	jobRepo   database.JobRepository
	itemRepo  database.FeedItemRepository
	publisher Publisher
}

func NewExecutor(jobRepo database.JobRepository, itemRepo database.FeedItemRepository,
	publisher Publisher) *Executor {
	return &Executor{
		jobRepo:   jobRepo,
		itemRepo:  itemRepo,
		publisher: publisher,
	}
}

// Execute claims and runs one job. A job that is no longer pending was
// claimed by a concurrent cycle or cancelled; that is not an error.
// Failed jobs are terminal: re-publication requires an explicit new
// operator action, never a silent retry.
func (e *Executor) Execute(ctx context.Context, jobID string) error {
	claimed, err := e.jobRepo.ClaimJob(jobID)
	if err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}
	if !claimed {
		slog.Debug("Job no longer pending, skipping", "job", jobID)
		return nil
	}

	job, err := e.jobRepo.GetJob(jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("job %q disappeared after claim", jobID)
	}

	started := time.Now().UTC()
	for _, ch := range job.Channels {
		err := e.jobRepo.UpdateOutcome(database.ChannelOutcome{
			JobID:     job.ID,
			Channel:   ch,
			Status:    database.OutcomeStatusProcessing,
			StartedAt: &started,
		})
		if err != nil {
			return fmt.Errorf("failed to mark outcome processing: %w", err)
		}
	}

	results := e.publisher.Publish(ctx, e.buildContentItem(job))

	completed := time.Now().UTC()
	outcomes := make([]database.ChannelOutcome, 0, len(job.Channels))
	var failures []string

	for _, ch := range job.Channels {
		result := results[ch]

		outcome := database.ChannelOutcome{
			JobID:       job.ID,
			Channel:     ch,
			Status:      database.OutcomeStatusSuccess,
			ExternalID:  result.ExternalID,
			StartedAt:   &started,
			CompletedAt: &completed,
		}
		if !result.Success {
			outcome.Status = database.OutcomeStatusFailed
			outcome.Error = result.Error
			failures = append(failures, fmt.Sprintf("%s: %s", ch, result.Error))
		}

		if err := e.jobRepo.UpdateOutcome(outcome); err != nil {
			return fmt.Errorf("failed to record outcome: %w", err)
		}
		outcomes = append(outcomes, outcome)
	}

	final := database.TerminalStatus(outcomes)
	if err := e.jobRepo.FinalizeJob(job.ID, final); err != nil {
		return fmt.Errorf("failed to finalize job: %w", err)
	}

	if final == database.JobStatusFailed && job.ItemID != nil {
		reason := strings.Join(failures, "; ")
		if err := e.itemRepo.UpdateItemStatus(*job.ItemID, database.FeedItemStatusFailed, reason); err != nil {
			return fmt.Errorf("failed to mark item failed: %w", err)
		}
	}

	slog.Info("Job executed", "job", job.ID, "status", final,
		"channels", len(job.Channels), "failures", len(failures))

	return nil
}

// buildContentItem renders the job's stored snapshot into a publishable
// item. The canonical link rides along as a call-to-action; channels
// without action buttons append the URL to the post text.
func (e *Executor) buildContentItem(job *database.ScheduledJob) channel.ContentItem {
	item := channel.ContentItem{
		Body:         job.Content,
		Channels:     job.Channels,
		Status:       channel.ContentStatusScheduled,
		ScheduledFor: &job.ScheduledAt,
	}

	if job.ImageURL != "" {
		item.Media = []channel.Media{{URL: job.ImageURL}}
	}

	if job.Link != "" {
		item.CTA = &channel.CallToAction{Action: "LEARN_MORE", URL: job.Link}
	}

	return item
}
