package tasks

import (
	"context"
	"log/slog"

	"github.com/reviewpilot/syndicate/app/database"
	"github.com/reviewpilot/syndicate/app/feed"
)

type PollFeedTask struct {
	Task
	source *database.FeedSource
	poller *feed.Poller
}

func NewPollFeedTask(source *database.FeedSource, poller *feed.Poller) *PollFeedTask {
	return &PollFeedTask{
		Task:   NewTask(TaskTypePollFeed, source.Name),
		source: source,
		poller: poller,
	}
}

func (t *PollFeedTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result, err := t.poller.Poll(ctx, t.source)
	if err != nil {
		pollsTotal.WithLabelValues("error").Inc()
		return err
	}

	if len(result.Errors) > 0 {
		pollsTotal.WithLabelValues("partial").Inc()
	} else {
		pollsTotal.WithLabelValues("ok").Inc()
	}
	itemsDiscovered.Add(float64(result.Discovered))

	slog.Info("Task completed",
		"type", "PollFeed",
		"feed", t.source.Name,
		"duration", t.GetDuration(),
		"discovered", result.Discovered,
		"scheduled", result.Scheduled,
		"skipped", result.Skipped,
		"errors", len(result.Errors))

	return nil
}
