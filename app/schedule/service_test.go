package schedule

import (
	"testing"
	"time"

	"github.com/reviewpilot/syndicate/app/database"
)

func testFeed() *database.FeedSource {
	return &database.FeedSource{
		ID:                   "feed-1",
		Name:                 "test",
		Template:             "{title}\n{link}",
		Channels:             []string{"bluesky", "linkedin"},
		ScheduleIntervalDays: 7,
		Timezone:             "UTC",
	}
}

func testItems() []*database.FeedItem {
	return []*database.FeedItem{
		{ID: "i1", FeedID: "feed-1", GUID: "g1", Title: "First", Link: "https://example.com/1", Status: database.FeedItemStatusInitialSync},
		{ID: "i2", FeedID: "feed-1", GUID: "g2", Title: "Second", Link: "https://example.com/2", Status: database.FeedItemStatusInitialSync},
		{ID: "i3", FeedID: "feed-1", GUID: "g3", Title: "Third", Link: "https://example.com/3", Status: database.FeedItemStatusInitialSync},
	}
}

func tomorrowAt(hour int) time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

func TestScheduleItems(t *testing.T) {
	feedRepo := newMemFeedRepo(testFeed())
	itemRepo := newMemItemRepo(testItems()...)
	jobRepo := newMemJobRepo()
	service := NewService(feedRepo, itemRepo, jobRepo)

	start := tomorrowAt(10)
	result, err := service.ScheduleItems("feed-1", []string{"g1", "g2", "g3"}, start, 7, "UTC")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if result.ScheduledCount != 3 {
		t.Fatalf("Expected 3 scheduled, got %d", result.ScheduledCount)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Expected no errors, got %v", result.Errors)
	}

	for i, job := range result.Jobs {
		expected := start.AddDate(0, 0, i*7)
		if !job.ScheduledAt.Equal(expected) {
			t.Errorf("Job %d: expected date %v, got %v", i, expected, job.ScheduledAt)
		}
		if len(job.Channels) != 2 {
			t.Errorf("Job %d: expected feed's channels, got %v", i, job.Channels)
		}
	}

	if result.Jobs[0].Content != "First\nhttps://example.com/1" {
		t.Errorf("Expected rendered template snapshot, got %q", result.Jobs[0].Content)
	}

	for _, id := range []string{"i1", "i2", "i3"} {
		item := itemRepo.items[id]
		if item.Status != database.FeedItemStatusScheduled {
			t.Errorf("Expected item %s scheduled, got %s", id, item.Status)
		}
		if item.JobID == nil {
			t.Errorf("Expected item %s to reference its job", id)
		}
	}
}

func TestScheduleItemsReportsMissingAndUnschedulable(t *testing.T) {
	items := testItems()
	items[1].Status = database.FeedItemStatusScheduled

	feedRepo := newMemFeedRepo(testFeed())
	itemRepo := newMemItemRepo(items...)
	service := NewService(feedRepo, itemRepo, newMemJobRepo())

	result, err := service.ScheduleItems("feed-1", []string{"g1", "g2", "missing"}, tomorrowAt(10), 1, "UTC")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if result.ScheduledCount != 1 {
		t.Errorf("Expected 1 scheduled, got %d", result.ScheduledCount)
	}
	if len(result.Errors) != 2 {
		t.Errorf("Expected 2 errors (already scheduled, missing), got %v", result.Errors)
	}
}

func TestScheduleItemsRequiresChannels(t *testing.T) {
	source := testFeed()
	source.Channels = nil

	service := NewService(newMemFeedRepo(source), newMemItemRepo(testItems()...), newMemJobRepo())

	_, err := service.ScheduleItems("feed-1", []string{"g1"}, tomorrowAt(10), 1, "UTC")
	if err == nil {
		t.Error("Expected error for feed without channels")
	}
}

func TestScheduleItemsUnknownFeed(t *testing.T) {
	service := NewService(newMemFeedRepo(), newMemItemRepo(), newMemJobRepo())

	_, err := service.ScheduleItems("nope", []string{"g1"}, tomorrowAt(10), 1, "UTC")
	if err == nil {
		t.Error("Expected error for unknown feed")
	}
}

func TestScheduleNewItemsUsesFeedDefaults(t *testing.T) {
	source := testFeed()
	items := testItems()
	for _, item := range items {
		item.Status = database.FeedItemStatusPending
	}

	feedRepo := newMemFeedRepo(source)
	itemRepo := newMemItemRepo(items...)
	jobRepo := newMemJobRepo()
	service := NewService(feedRepo, itemRepo, jobRepo)

	count, err := service.ScheduleNewItems(source, []string{"g1", "g2"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 scheduled, got %d", count)
	}

	job := jobRepo.jobs["job-2"]
	if job == nil {
		t.Fatal("Expected second job to exist")
	}
	first := jobRepo.jobs["job-1"]
	if got := job.ScheduledAt.Sub(first.ScheduledAt); got != 7*24*time.Hour {
		t.Errorf("Expected feed's 7-day interval between jobs, got %v", got)
	}
}

func TestUnscheduleItemPending(t *testing.T) {
	jobID := "job-1"
	item := &database.FeedItem{ID: "i1", FeedID: "feed-1", GUID: "g1",
		Status: database.FeedItemStatusScheduled, JobID: &jobID}
	job := &database.ScheduledJob{ID: jobID, Status: database.JobStatusPending}

	itemRepo := newMemItemRepo(item)
	jobRepo := newMemJobRepo(job)
	service := NewService(newMemFeedRepo(testFeed()), itemRepo, jobRepo)

	ok, err := service.UnscheduleItem("feed-1", "i1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !ok {
		t.Fatal("Expected unschedule of pending job to succeed")
	}

	if jobRepo.jobs[jobID].Status != database.JobStatusCancelled {
		t.Errorf("Expected job cancelled, got %s", jobRepo.jobs[jobID].Status)
	}
	if itemRepo.items["i1"].Status != database.FeedItemStatusPending {
		t.Errorf("Expected item reverted to schedulable status, got %s", itemRepo.items["i1"].Status)
	}
	if itemRepo.items["i1"].JobID != nil {
		t.Error("Expected job back-reference cleared")
	}
}

func TestUnscheduleItemProcessingRejected(t *testing.T) {
	jobID := "job-1"
	item := &database.FeedItem{ID: "i1", FeedID: "feed-1", GUID: "g1",
		Status: database.FeedItemStatusScheduled, JobID: &jobID}
	job := &database.ScheduledJob{ID: jobID, Status: database.JobStatusProcessing}

	itemRepo := newMemItemRepo(item)
	service := NewService(newMemFeedRepo(testFeed()), itemRepo, newMemJobRepo(job))

	ok, err := service.UnscheduleItem("feed-1", "i1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if ok {
		t.Error("Expected unschedule of processing job to be rejected")
	}

	if itemRepo.items["i1"].Status != database.FeedItemStatusScheduled {
		t.Errorf("Expected item to stay scheduled, got %s", itemRepo.items["i1"].Status)
	}
}

func TestResetFeed(t *testing.T) {
	feedID := "feed-1"
	j1, j2 := "job-1", "job-2"
	items := []*database.FeedItem{
		{ID: "i1", FeedID: feedID, GUID: "g1", Status: database.FeedItemStatusScheduled, JobID: &j1},
		{ID: "i2", FeedID: feedID, GUID: "g2", Status: database.FeedItemStatusScheduled, JobID: &j2},
		{ID: "i3", FeedID: feedID, GUID: "g3", Status: database.FeedItemStatusInitialSync},
		{ID: "i4", FeedID: feedID, GUID: "g4", Status: database.FeedItemStatusInitialSync},
		{ID: "i5", FeedID: feedID, GUID: "g5", Status: database.FeedItemStatusInitialSync},
	}
	jobs := []*database.ScheduledJob{
		{ID: j1, FeedID: &feedID, Status: database.JobStatusPending},
		{ID: j2, FeedID: &feedID, Status: database.JobStatusPending},
	}

	feedRepo := newMemFeedRepo(testFeed())
	itemRepo := newMemItemRepo(items...)
	jobRepo := newMemJobRepo(jobs...)
	service := NewService(feedRepo, itemRepo, jobRepo)

	result, err := service.ResetFeed(feedID)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if result.DeletedJobs != 2 {
		t.Errorf("Expected 2 deleted jobs, got %d", result.DeletedJobs)
	}
	if result.ItemCount != 5 {
		t.Errorf("Expected 5 items reverted, got %d", result.ItemCount)
	}

	for id, item := range itemRepo.items {
		if item.Status != database.FeedItemStatusInitialSync {
			t.Errorf("Expected item %s reverted to initial_sync, got %s", id, item.Status)
		}
	}

	if len(feedRepo.clearedErrors) != 1 {
		t.Error("Expected poll error counter cleared")
	}
}

func TestResetFeedKeepsPublishedJobs(t *testing.T) {
	feedID := "feed-1"
	jobs := []*database.ScheduledJob{
		{ID: "job-1", FeedID: &feedID, Status: database.JobStatusCompleted},
		{ID: "job-2", FeedID: &feedID, Status: database.JobStatusPending},
	}

	jobRepo := newMemJobRepo(jobs...)
	service := NewService(newMemFeedRepo(testFeed()), newMemItemRepo(), jobRepo)

	result, err := service.ResetFeed(feedID)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if result.DeletedJobs != 1 {
		t.Errorf("Expected only the pending job deleted, got %d", result.DeletedJobs)
	}
	if _, ok := jobRepo.jobs["job-1"]; !ok {
		t.Error("Expected completed job kept as history")
	}
}

func TestClearFailedItems(t *testing.T) {
	items := []*database.FeedItem{
		{ID: "i1", FeedID: "feed-1", GUID: "g1", Status: database.FeedItemStatusFailed},
		{ID: "i2", FeedID: "feed-1", GUID: "g2", Status: database.FeedItemStatusScheduled},
		{ID: "i3", FeedID: "feed-1", GUID: "g3", Status: database.FeedItemStatusPending},
	}

	itemRepo := newMemItemRepo(items...)
	service := NewService(newMemFeedRepo(testFeed()), itemRepo, newMemJobRepo())

	result, err := service.ClearFailedItems("feed-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if result.ClearedCount != 1 {
		t.Errorf("Expected 1 item removed, got %d", result.ClearedCount)
	}
	if result.TotalFailed != 1 {
		t.Errorf("Expected 1 failed item counted, got %d", result.TotalFailed)
	}
	if len(itemRepo.items) != 2 {
		t.Errorf("Expected 2 items remaining, got %d", len(itemRepo.items))
	}
}

func TestClearFailedItemsNothingToClear(t *testing.T) {
	itemRepo := newMemItemRepo(
		&database.FeedItem{ID: "i1", FeedID: "feed-1", GUID: "g1", Status: database.FeedItemStatusPending},
	)
	service := NewService(newMemFeedRepo(testFeed()), itemRepo, newMemJobRepo())

	result, err := service.ClearFailedItems("feed-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if result.ClearedCount != 0 || result.TotalFailed != 0 {
		t.Errorf("Expected empty sweep, got cleared=%d total=%d", result.ClearedCount, result.TotalFailed)
	}
}
