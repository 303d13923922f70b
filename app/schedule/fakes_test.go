package schedule

import (
	"context"
	"fmt"
	"sync"

	"github.com/reviewpilot/syndicate/app/channel"
	"github.com/reviewpilot/syndicate/app/database"
)

type memFeedRepo struct {
	database.FeedSourceRepository
	feeds         map[string]*database.FeedSource
	clearedErrors []string
}

func newMemFeedRepo(feeds ...*database.FeedSource) *memFeedRepo {
	repo := &memFeedRepo{feeds: make(map[string]*database.FeedSource)}
	for _, f := range feeds {
		repo.feeds[f.ID] = f
	}
	return repo
}

func (m *memFeedRepo) GetFeed(id string) (*database.FeedSource, error) {
	source, ok := m.feeds[id]
	if !ok {
		return nil, nil
	}
	clone := *source
	return &clone, nil
}

func (m *memFeedRepo) ClearPollErrors(id string) error {
	m.clearedErrors = append(m.clearedErrors, id)
	return nil
}

type memItemRepo struct {
	database.FeedItemRepository
	items map[string]*database.FeedItem // keyed by item ID
}

func newMemItemRepo(items ...*database.FeedItem) *memItemRepo {
	repo := &memItemRepo{items: make(map[string]*database.FeedItem)}
	for _, item := range items {
		repo.items[item.ID] = item
	}
	return repo
}

func (m *memItemRepo) GetItem(feedID, itemID string) (*database.FeedItem, error) {
	item, ok := m.items[itemID]
	if !ok || item.FeedID != feedID {
		return nil, nil
	}
	clone := *item
	return &clone, nil
}

func (m *memItemRepo) GetItemsByGUIDs(feedID string, guids []string) ([]database.FeedItem, error) {
	var result []database.FeedItem
	for _, guid := range guids {
		for _, item := range m.items {
			if item.FeedID == feedID && item.GUID == guid {
				result = append(result, *item)
			}
		}
	}
	return result, nil
}

func (m *memItemRepo) MarkItemScheduled(itemID, jobID string) error {
	item, ok := m.items[itemID]
	if !ok {
		return fmt.Errorf("item %q not found", itemID)
	}
	item.Status = database.FeedItemStatusScheduled
	item.JobID = &jobID
	return nil
}

func (m *memItemRepo) RevertItemSchedule(itemID string, status database.FeedItemStatus) error {
	item, ok := m.items[itemID]
	if !ok {
		return fmt.Errorf("item %q not found", itemID)
	}
	item.Status = status
	item.JobID = nil
	return nil
}

func (m *memItemRepo) UpdateItemStatus(itemID string, status database.FeedItemStatus, reason string) error {
	item, ok := m.items[itemID]
	if !ok {
		return fmt.Errorf("item %q not found", itemID)
	}
	item.Status = status
	item.Reason = reason
	return nil
}

func (m *memItemRepo) ResetItems(feedID string) (int, error) {
	count := 0
	for _, item := range m.items {
		if item.FeedID == feedID {
			item.Status = database.FeedItemStatusInitialSync
			item.Reason = ""
			item.JobID = nil
			count++
		}
	}
	return count, nil
}

func (m *memItemRepo) CountItemsByStatus(feedID string, status database.FeedItemStatus) (int, error) {
	count := 0
	for _, item := range m.items {
		if item.FeedID == feedID && item.Status == status {
			count++
		}
	}
	return count, nil
}

func (m *memItemRepo) DeleteFailedItems(feedID string) (int, error) {
	count := 0
	for id, item := range m.items {
		if item.FeedID == feedID && item.Status == database.FeedItemStatusFailed {
			delete(m.items, id)
			count++
		}
	}
	return count, nil
}

type memJobRepo struct {
	database.JobRepository
	jobs map[string]*database.ScheduledJob
	seq  int
}

func newMemJobRepo(jobs ...*database.ScheduledJob) *memJobRepo {
	repo := &memJobRepo{jobs: make(map[string]*database.ScheduledJob)}
	for _, job := range jobs {
		repo.jobs[job.ID] = job
	}
	return repo
}

func (m *memJobRepo) CreateJob(job *database.ScheduledJob) error {
	if job.ID == "" {
		m.seq++
		job.ID = fmt.Sprintf("job-%d", m.seq)
	}
	for _, ch := range job.Channels {
		job.Outcomes = append(job.Outcomes, database.ChannelOutcome{
			JobID: job.ID, Channel: ch, Status: database.OutcomeStatusPending,
		})
	}
	clone := *job
	m.jobs[job.ID] = &clone
	return nil
}

func (m *memJobRepo) GetJob(id string) (*database.ScheduledJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	clone := *job
	return &clone, nil
}

func (m *memJobRepo) ClaimJob(id string) (bool, error) {
	job, ok := m.jobs[id]
	if !ok || job.Status != database.JobStatusPending {
		return false, nil
	}
	job.Status = database.JobStatusProcessing
	return true, nil
}

func (m *memJobRepo) CancelJob(id string) (bool, error) {
	job, ok := m.jobs[id]
	if !ok || job.Status != database.JobStatusPending {
		return false, nil
	}
	job.Status = database.JobStatusCancelled
	return true, nil
}

func (m *memJobRepo) UpdateOutcome(outcome database.ChannelOutcome) error {
	job, ok := m.jobs[outcome.JobID]
	if !ok {
		return fmt.Errorf("job %q not found", outcome.JobID)
	}
	for i, existing := range job.Outcomes {
		if existing.Channel == outcome.Channel {
			job.Outcomes[i] = outcome
			return nil
		}
	}
	job.Outcomes = append(job.Outcomes, outcome)
	return nil
}

func (m *memJobRepo) FinalizeJob(id string, status database.JobStatus) error {
	job, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("job %q not found", id)
	}
	job.Status = status
	return nil
}

func (m *memJobRepo) DeleteUnpublishedJobsForFeed(feedID string) (int, error) {
	count := 0
	for id, job := range m.jobs {
		if job.FeedID == nil || *job.FeedID != feedID {
			continue
		}
		if job.Status == database.JobStatusPending || job.Status == database.JobStatusCancelled {
			delete(m.jobs, id)
			count++
		}
	}
	return count, nil
}

type fakePublisher struct {
	mu      sync.Mutex
	results map[string]channel.PublishResult
	calls   int
}

func (f *fakePublisher) Publish(ctx context.Context, item channel.ContentItem) map[string]channel.PublishResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	results := make(map[string]channel.PublishResult, len(item.Channels))
	for _, ch := range item.Channels {
		if result, ok := f.results[ch]; ok {
			results[ch] = result
		} else {
			results[ch] = channel.PublishResult{Success: true, ExternalID: "ext-" + ch}
		}
	}
	return results
}
