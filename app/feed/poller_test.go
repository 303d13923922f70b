package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/reviewpilot/syndicate/app/database"
)

type fakeFeedRepo struct {
	database.FeedSourceRepository
	mu        sync.Mutex
	successes int
	failures  int
	lastError string
}

func (f *fakeFeedRepo) RecordPollSuccess(id string, polledAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes++
	return nil
}

func (f *fakeFeedRepo) RecordPollFailure(id string, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures++
	f.lastError = lastError
	return nil
}

type fakeItemRepo struct {
	database.FeedItemRepository
	mu    sync.Mutex
	items map[string]*database.FeedItem // keyed by GUID
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{items: make(map[string]*database.FeedItem)}
}

func (f *fakeItemRepo) InsertIfAbsent(item *database.FeedItem) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.items[item.GUID]; exists {
		return false, nil
	}
	stored := *item
	f.items[item.GUID] = &stored
	return true, nil
}

func (f *fakeItemRepo) CountItems(feedID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items), nil
}

type fakeAutoScheduler struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeAutoScheduler) ScheduleNewItems(source *database.FeedSource, itemGUIDs []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, itemGUIDs)
	return len(itemGUIDs), nil
}

func feedXML(guids ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>Test</title>`)
	for _, guid := range guids {
		b.WriteString(`<item><title>Item ` + guid + `</title>`)
		b.WriteString(`<link>https://example.com/` + guid + `</link>`)
		b.WriteString(`<guid>` + guid + `</guid>`)
		b.WriteString(`<description>Body for ` + guid + `</description></item>`)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func newTestPoller(feedRepo *fakeFeedRepo, itemRepo *fakeItemRepo, scheduler AutoScheduler) *Poller {
	return NewPoller(&http.Client{}, NewParser(), nil, feedRepo, itemRepo, scheduler, "test-agent")
}

func TestPollFirstSyncMarksItemsInitialSync(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedXML("a", "b", "c")))
	}))
	defer server.Close()

	feedRepo := &fakeFeedRepo{}
	itemRepo := newFakeItemRepo()
	scheduler := &fakeAutoScheduler{}
	poller := newTestPoller(feedRepo, itemRepo, scheduler)

	source := &database.FeedSource{
		ID: "feed-1", Name: "test", URL: server.URL,
		AutoPost: true, Channels: []string{"bluesky"},
	}

	result, err := poller.Poll(context.Background(), source)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if result.Discovered != 3 {
		t.Errorf("Expected 3 discovered, got %d", result.Discovered)
	}

	for guid, item := range itemRepo.items {
		if item.Status != database.FeedItemStatusInitialSync {
			t.Errorf("Expected item %s to be initial_sync, got %s", guid, item.Status)
		}
	}

	// First sync never auto-posts, even with the policy enabled.
	if len(scheduler.calls) != 0 {
		t.Errorf("Expected no auto-post on first sync, got %d calls", len(scheduler.calls))
	}

	if feedRepo.successes != 1 {
		t.Errorf("Expected 1 recorded success, got %d", feedRepo.successes)
	}
}

func TestPollDeduplicatesByGUID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedXML("a", "b")))
	}))
	defer server.Close()

	feedRepo := &fakeFeedRepo{}
	itemRepo := newFakeItemRepo()
	poller := newTestPoller(feedRepo, itemRepo, nil)

	source := &database.FeedSource{ID: "feed-1", Name: "test", URL: server.URL}

	if _, err := poller.Poll(context.Background(), source); err != nil {
		t.Fatalf("First poll failed: %v", err)
	}

	result, err := poller.Poll(context.Background(), source)
	if err != nil {
		t.Fatalf("Second poll failed: %v", err)
	}

	if result.Discovered != 0 {
		t.Errorf("Expected 0 discovered on unchanged feed, got %d", result.Discovered)
	}
	if result.Skipped != 2 {
		t.Errorf("Expected 2 skipped, got %d", result.Skipped)
	}
}

func TestPollNewItemsAfterFirstSync(t *testing.T) {
	var payload string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer server.Close()

	feedRepo := &fakeFeedRepo{}
	itemRepo := newFakeItemRepo()
	scheduler := &fakeAutoScheduler{}
	poller := newTestPoller(feedRepo, itemRepo, scheduler)

	source := &database.FeedSource{
		ID: "feed-1", Name: "test", URL: server.URL,
		AutoPost: true, Channels: []string{"bluesky", "linkedin"},
	}

	payload = feedXML("a")
	if _, err := poller.Poll(context.Background(), source); err != nil {
		t.Fatalf("First poll failed: %v", err)
	}

	payload = feedXML("a", "b")
	result, err := poller.Poll(context.Background(), source)
	if err != nil {
		t.Fatalf("Second poll failed: %v", err)
	}

	if result.Discovered != 1 {
		t.Errorf("Expected 1 discovered, got %d", result.Discovered)
	}

	if itemRepo.items["b"].Status != database.FeedItemStatusPending {
		t.Errorf("Expected new item to be pending, got %s", itemRepo.items["b"].Status)
	}

	if len(scheduler.calls) != 1 {
		t.Fatalf("Expected 1 auto-post call, got %d", len(scheduler.calls))
	}
	if len(scheduler.calls[0]) != 1 || scheduler.calls[0][0] != "b" {
		t.Errorf("Expected auto-post for item 'b', got %v", scheduler.calls[0])
	}
	if result.Scheduled != 1 {
		t.Errorf("Expected 1 scheduled, got %d", result.Scheduled)
	}
}

func TestPollNoAutoPostWithoutChannels(t *testing.T) {
	var payload string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer server.Close()

	feedRepo := &fakeFeedRepo{}
	itemRepo := newFakeItemRepo()
	scheduler := &fakeAutoScheduler{}
	poller := newTestPoller(feedRepo, itemRepo, scheduler)

	source := &database.FeedSource{ID: "feed-1", Name: "test", URL: server.URL, AutoPost: true}

	payload = feedXML("a")
	poller.Poll(context.Background(), source)

	payload = feedXML("a", "b")
	poller.Poll(context.Background(), source)

	if len(scheduler.calls) != 0 {
		t.Errorf("Expected no auto-post without channels, got %d calls", len(scheduler.calls))
	}
}

func TestPollFetchFailureRecordedOnFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	feedRepo := &fakeFeedRepo{}
	itemRepo := newFakeItemRepo()
	poller := newTestPoller(feedRepo, itemRepo, nil)

	source := &database.FeedSource{ID: "feed-1", Name: "test", URL: server.URL}

	result, err := poller.Poll(context.Background(), source)
	if err != nil {
		t.Fatalf("Fetch failure should not fail the caller, got: %v", err)
	}

	if len(result.Errors) == 0 {
		t.Error("Expected error recorded in poll result")
	}
	if feedRepo.failures != 1 {
		t.Errorf("Expected 1 recorded failure, got %d", feedRepo.failures)
	}
	if feedRepo.lastError == "" {
		t.Error("Expected last error text recorded")
	}
	if len(itemRepo.items) != 0 {
		t.Errorf("Expected no items stored on fetch failure, got %d", len(itemRepo.items))
	}
}

func TestPollRejectsConcurrentSameFeed(t *testing.T) {
	poller := newTestPoller(&fakeFeedRepo{}, newFakeItemRepo(), nil)

	if !poller.acquire("feed-1") {
		t.Fatal("Expected first acquire to succeed")
	}
	if poller.acquire("feed-1") {
		t.Error("Expected second acquire of the same feed to fail")
	}
	if !poller.acquire("feed-2") {
		t.Error("Expected acquire of a different feed to succeed")
	}

	poller.release("feed-1")
	if !poller.acquire("feed-1") {
		t.Error("Expected acquire to succeed after release")
	}
}
