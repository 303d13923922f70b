package tasks

import (
	"context"
	"log/slog"

	"github.com/reviewpilot/syndicate/app/schedule"
)

type ExecuteJobTask struct {
	Task
	jobID    string
	executor *schedule.Executor
}

func NewExecuteJobTask(jobID string, executor *schedule.Executor) *ExecuteJobTask {
	return &ExecuteJobTask{
		Task:     NewTask(TaskTypeExecuteJob, jobID),
		jobID:    jobID,
		executor: executor,
	}
}

func (t *ExecuteJobTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.executor.Execute(ctx, t.jobID); err != nil {
		jobsExecuted.WithLabelValues("error").Inc()
		return err
	}

	jobsExecuted.WithLabelValues("ok").Inc()

	slog.Info("Task completed",
		"type", "ExecuteJob",
		"job", t.jobID,
		"duration", t.GetDuration())

	return nil
}
