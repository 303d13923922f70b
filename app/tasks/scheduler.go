package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/reviewpilot/syndicate/app/cfg"
	"github.com/reviewpilot/syndicate/app/database"
	"github.com/reviewpilot/syndicate/app/feed"
	"github.com/reviewpilot/syndicate/app/schedule"
)

// dueJobBatchSize bounds how many due jobs one tick picks up; the next
// tick picks up the remainder.
const dueJobBatchSize = 100

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Scheduler drives the background pipeline: every tick it enqueues a
// poll task for each feed whose interval has elapsed and an execute
// task for each due job. Claim semantics in the repositories make
// overlapping ticks safe.
type Scheduler struct {
	feedRepo    database.FeedSourceRepository
	jobRepo     database.JobRepository
	poller      *feed.Poller
	executor    *schedule.Executor
	interval    time.Duration
	workerCount int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

func NewScheduler(feedRepo database.FeedSourceRepository, jobRepo database.JobRepository,
	poller *feed.Poller, executor *schedule.Executor) TaskSchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		feedRepo:    feedRepo,
		jobRepo:     jobRepo,
		poller:      poller,
		executor:    executor,
		interval:    time.Duration(cfg.SchedulerInterval) * time.Second,
		workerCount: cfg.WorkerCount,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueTasks() {
	now := time.Now()

	s.enqueueDuePolls(now)
	s.enqueueDueJobs(now)
}

func (s *Scheduler) enqueueDuePolls(now time.Time) {
	sources, err := s.feedRepo.ListFeedsDueForPoll(now)
	if err != nil {
		slog.Error("Failed to list feeds due for poll", "error", err)
		return
	}

	if len(sources) == 0 {
		slog.Debug("No feeds due for poll")
		return
	}

	slog.Debug("Enqueueing poll tasks", "count", len(sources))

	for i := range sources {
		task := NewPollFeedTask(&sources[i], s.poller)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue PollFeedTask", "feed", sources[i].Name, "error", err)
		}
	}
}

func (s *Scheduler) enqueueDueJobs(now time.Time) {
	jobs, err := s.jobRepo.ListDueJobs(now, dueJobBatchSize)
	if err != nil {
		slog.Error("Failed to list due jobs", "error", err)
		return
	}

	if len(jobs) == 0 {
		slog.Debug("No jobs due for execution")
		return
	}

	slog.Debug("Enqueueing job execution tasks", "count", len(jobs))

	for _, job := range jobs {
		task := NewExecuteJobTask(job.ID, s.executor)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue ExecuteJobTask", "job", job.ID, "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			taskRetries.WithLabelValues(string(task.GetType())).Inc()

			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "subject", task.GetSubject(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			go func() {
				time.Sleep(retryDelay)
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				default:
					if retryErr := s.EnqueueTask(task); retryErr != nil {
						slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
					}
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
			sentry.CaptureException(fmt.Errorf("%s task %s failed after %d retries: %w",
				task.GetType(), task.GetSubject(), task.GetRetryCount(), err))
		}
	}
}
