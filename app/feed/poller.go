package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/reviewpilot/syndicate/app/database"
)

const fetchTimeout = 30 * time.Second

// maxExtractedLength caps backfilled descriptions; channel adapters
// truncate further to their own limits at publish time.
const maxExtractedLength = 1000

// AutoScheduler hands freshly discovered pending items to the schedule
// planner when a feed's auto-post policy is enabled.
type AutoScheduler interface {
	ScheduleNewItems(source *database.FeedSource, itemGUIDs []string) (int, error)
}

// Poller fetches one feed source and reconciles its entries against the
// stored items. Reconciliation is insert-if-absent keyed by (feed, GUID):
// upstream edits after discovery are ignored so scheduled content stays
// stable.
type Poller struct {
	httpClient *http.Client
	parser     *Parser
	extractor  *ContentExtractor
	feedRepo   database.FeedSourceRepository
	itemRepo   database.FeedItemRepository
	scheduler  AutoScheduler
	userAgent  string

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewPoller(httpClient *http.Client, parser *Parser, extractor *ContentExtractor,
	feedRepo database.FeedSourceRepository, itemRepo database.FeedItemRepository,
	scheduler AutoScheduler, userAgent string) *Poller {
	return &Poller{
		httpClient: httpClient,
		parser:     parser,
		extractor:  extractor,
		feedRepo:   feedRepo,
		itemRepo:   itemRepo,
		scheduler:  scheduler,
		userAgent:  userAgent,
		inFlight:   make(map[string]struct{}),
	}
}

// Poll runs one reconciliation cycle for the feed. Polling the same
// feed concurrently with itself is rejected; distinct feeds poll in
// parallel. Fetch and parse failures are recorded on the feed source
// and returned in the result instead of failing the caller.
func (p *Poller) Poll(ctx context.Context, source *database.FeedSource) (*PollResult, error) {
	if !p.acquire(source.ID) {
		return nil, fmt.Errorf("poll already in progress for feed %q", source.Name)
	}
	defer p.release(source.ID)

	result := &PollResult{}

	data, err := p.fetch(ctx, source.URL)
	if err != nil {
		return p.recordFailure(source, result, fmt.Errorf("failed to fetch feed: %w", err))
	}

	_, entries, err := p.parser.Run(data)
	if err != nil {
		return p.recordFailure(source, result, err)
	}

	existing, err := p.itemRepo.CountItems(source.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}

	// On the very first poll every entry lands as initial_sync:
	// available for manual scheduling, never auto-posted. This keeps a
	// newly added feed from flooding channels with historical content.
	firstSync := existing == 0

	status := database.FeedItemStatusPending
	if firstSync {
		status = database.FeedItemStatusInitialSync
	}

	var newGUIDs []string
	for _, entry := range entries {
		if entry.GUID == "" {
			result.Errors = append(result.Errors, "entry without GUID or link skipped")
			continue
		}

		item := p.buildItem(ctx, source.ID, entry, status)

		inserted, err := p.itemRepo.InsertIfAbsent(item)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to store %q: %v", entry.GUID, err))
			continue
		}

		if inserted {
			result.Discovered++
			if status == database.FeedItemStatusPending {
				newGUIDs = append(newGUIDs, entry.GUID)
			}
		} else {
			result.Skipped++
		}
	}

	if err := p.feedRepo.RecordPollSuccess(source.ID, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to record poll success: %w", err)
	}

	if p.autoPostEligible(source, newGUIDs) {
		scheduled, err := p.scheduler.ScheduleNewItems(source, newGUIDs)
		result.Scheduled = scheduled
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("auto-post failed: %v", err))
		}
	}

	slog.Info("Feed polled", "feed", source.Name, "first_sync", firstSync,
		"discovered", result.Discovered, "scheduled", result.Scheduled,
		"skipped", result.Skipped, "errors", len(result.Errors))

	return result, nil
}

func (p *Poller) buildItem(ctx context.Context, feedID string, entry Entry, status database.FeedItemStatus) *database.FeedItem {
	description := entry.Description
	if description == "" && entry.Link != "" && p.extractor != nil {
		if extracted, err := p.extractDescription(ctx, entry.Link); err == nil {
			description = extracted
		} else {
			slog.Debug("Content extraction skipped", "link", entry.Link, "error", err)
		}
	}

	return &database.FeedItem{
		FeedID:      feedID,
		GUID:        entry.GUID,
		Title:       entry.Title,
		Description: description,
		Link:        entry.Link,
		ImageURL:    entry.ImageURL,
		PublishedAt: entry.PublishedAt,
		Status:      status,
	}
}

func (p *Poller) extractDescription(ctx context.Context, link string) (string, error) {
	data, err := p.fetch(ctx, link)
	if err != nil {
		return "", err
	}

	text, err := p.extractor.Run(data, link)
	if err != nil {
		return "", err
	}

	runes := []rune(text)
	if len(runes) > maxExtractedLength {
		text = string(runes[:maxExtractedLength])
	}

	return text, nil
}

func (p *Poller) autoPostEligible(source *database.FeedSource, newGUIDs []string) bool {
	return p.scheduler != nil &&
		source.AutoPost &&
		len(source.Channels) > 0 &&
		len(newGUIDs) > 0
}

func (p *Poller) recordFailure(source *database.FeedSource, result *PollResult, pollErr error) (*PollResult, error) {
	result.Errors = append(result.Errors, pollErr.Error())

	if err := p.feedRepo.RecordPollFailure(source.ID, pollErr.Error()); err != nil {
		return nil, fmt.Errorf("failed to record poll failure: %w", err)
	}

	slog.Warn("Feed poll failed", "feed", source.Name, "error", pollErr)

	return result, nil
}

func (p *Poller) fetch(ctx context.Context, url string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

func (p *Poller) acquire(feedID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, running := p.inFlight[feedID]; running {
		return false
	}
	p.inFlight[feedID] = struct{}{}
	return true
}

func (p *Poller) release(feedID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, feedID)
}
