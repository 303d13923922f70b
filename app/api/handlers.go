package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reviewpilot/syndicate/app/channel"
	"github.com/reviewpilot/syndicate/app/database"
	"github.com/reviewpilot/syndicate/app/feed"
	"github.com/reviewpilot/syndicate/app/schedule"
	"github.com/reviewpilot/syndicate/app/tasks"
)

// scheduleHour is the local publish hour applied when a schedule
// request supplies a bare date.
const scheduleHour = 9

func NewHandler(registry *channel.Registry, coordinator *channel.Coordinator,
	credRepo database.CredentialRepository, feedRepo database.FeedSourceRepository,
	itemRepo database.FeedItemRepository, jobRepo database.JobRepository,
	poller *feed.Poller, schedules *schedule.Service,
	scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		registry:    registry,
		coordinator: coordinator,
		credRepo:    credRepo,
		feedRepo:    feedRepo,
		itemRepo:    itemRepo,
		jobRepo:     jobRepo,
		poller:      poller,
		schedules:   schedules,
		scheduler:   scheduler,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if feedCount, err := h.feedRepo.GetFeedCount(); err == nil {
		health["feeds"] = feedCount
	}

	connected := 0
	for _, id := range h.registry.IDs() {
		if h.registry.Connected(id) {
			connected++
		}
	}
	health["channels"] = len(h.registry.IDs())
	health["channels_connected"] = connected

	c.JSON(http.StatusOK, health)
}

func (h *Handler) ListChannels(c *gin.Context) {
	ids := h.registry.IDs()
	channels := make([]map[string]interface{}, 0, len(ids))

	for _, id := range ids {
		adapter, _ := h.registry.Get(id)
		channels = append(channels, map[string]interface{}{
			"descriptor": adapter.Descriptor(),
			"connected":  adapter.IsAuthenticated(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"channels": channels,
		"total":    len(channels),
	})
}

func (h *Handler) ConnectChannel(c *gin.Context) {
	id := c.Param("id")
	adapter, ok := h.registry.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown channel"})
		return
	}

	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cred := channel.Credential{
		Channel:      id,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		Identifier:   req.Identifier,
		Password:     req.Password,
		AccountID:    req.AccountID,
		LocationID:   req.LocationID,
		AuthorURN:    req.AuthorURN,
	}

	if err := adapter.Authenticate(c.Request.Context(), cred); err != nil {
		slog.Warn("Channel connect failed", "channel", id, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"channel":   id,
		"connected": adapter.IsAuthenticated(),
	})
}

func (h *Handler) RefreshChannel(c *gin.Context) {
	id := c.Param("id")
	adapter, ok := h.registry.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown channel"})
		return
	}

	// A failed restore at startup leaves the adapter disconnected while
	// its credential still sits in the store; retry it before refreshing.
	if !adapter.IsAuthenticated() && h.credRepo != nil {
		if cred, err := h.credRepo.GetCredential(id); err == nil && cred != nil {
			if err := adapter.Authenticate(c.Request.Context(), *cred); err != nil {
				slog.Warn("Stored credential restore failed", "channel", id, "error", err)
			}
		}
	}

	if err := adapter.RefreshAuth(c.Request.Context()); err != nil {
		slog.Warn("Channel refresh failed", "channel", id, "error", err)
		status := http.StatusBadGateway
		if channel.IsReauthRequired(err) {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"channel":   id,
		"connected": adapter.IsAuthenticated(),
	})
}

// Publish performs an ad-hoc publish across the requested channels. The
// response always carries one result per channel; a failing channel
// never hides another's success.
func (h *Handler) Publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item := channel.ContentItem{
		Body:     req.Content,
		Media:    req.Media,
		CTA:      req.CTA,
		Channels: req.Channels,
		Status:   channel.ContentStatusDraft,
	}

	results := h.coordinator.Publish(c.Request.Context(), item)

	succeeded := 0
	for _, result := range results {
		if result.Success {
			succeeded++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"results":   results,
		"succeeded": succeeded,
		"total":     len(results),
	})
}

func (h *Handler) ListFeeds(c *gin.Context) {
	sources, err := h.feedRepo.ListFeeds()
	if err != nil {
		slog.Error("Database error", "operation", "list_feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	feeds := make([]map[string]interface{}, 0, len(sources))
	for _, source := range sources {
		feeds = append(feeds, h.feedInfo(&source))
	}

	c.JSON(http.StatusOK, gin.H{
		"feeds": feeds,
		"total": len(feeds),
	})
}

func (h *Handler) feedInfo(source *database.FeedSource) map[string]interface{} {
	info := map[string]interface{}{
		"id":                     source.ID,
		"name":                   source.Name,
		"url":                    source.URL,
		"polling_interval":       source.PollingInterval,
		"template":               source.Template,
		"channels":               source.Channels,
		"schedule_interval_days": source.ScheduleIntervalDays,
		"timezone":               source.Timezone,
		"active":                 source.Active,
		"auto_post":              source.AutoPost,
		"error_count":            source.ErrorCount,
		"last_error":             source.LastError,
		"last_polled_at":         source.LastPolledAt,
	}

	if count, err := h.itemRepo.CountItems(source.ID); err == nil {
		info["item_count"] = count
	}

	return info
}

func (h *Handler) CreateFeed(c *gin.Context) {
	var req createFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if existing, err := h.feedRepo.GetFeedByName(req.Name); err == nil && existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Feed name already in use"})
		return
	}

	source := &database.FeedSource{
		Name:                 req.Name,
		URL:                  req.URL,
		PollingInterval:      req.PollingIntervalMinutes,
		Template:             req.Template,
		Channels:             req.Channels,
		ScheduleIntervalDays: req.ScheduleIntervalDays,
		Timezone:             req.Timezone,
		Active:               true,
		AutoPost:             req.AutoPost,
	}
	if source.PollingInterval <= 0 {
		source.PollingInterval = 60
	}
	if source.ScheduleIntervalDays <= 0 {
		source.ScheduleIntervalDays = 1
	}
	if source.Timezone == "" {
		source.Timezone = "UTC"
	}

	if err := h.feedRepo.CreateFeed(source); err != nil {
		slog.Error("Database error", "operation", "create_feed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusCreated, h.feedInfo(source))
}

func (h *Handler) loadFeed(c *gin.Context) *database.FeedSource {
	source, err := h.feedRepo.GetFeed(c.Param("id"))
	if err != nil {
		slog.Error("Database error", "operation", "get_feed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil
	}
	if source == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return nil
	}
	return source
}

func (h *Handler) GetFeed(c *gin.Context) {
	source := h.loadFeed(c)
	if source == nil {
		return
	}

	c.JSON(http.StatusOK, h.feedInfo(source))
}

// UpdateFeed applies operator-editable configuration. The URL is
// immutable after creation and never part of the update statement.
func (h *Handler) UpdateFeed(c *gin.Context) {
	source := h.loadFeed(c)
	if source == nil {
		return
	}

	var req updateFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Name != nil {
		source.Name = *req.Name
	}
	if req.PollingIntervalMinutes != nil {
		source.PollingInterval = *req.PollingIntervalMinutes
	}
	if req.Template != nil {
		source.Template = *req.Template
	}
	if req.Channels != nil {
		source.Channels = *req.Channels
	}
	if req.ScheduleIntervalDays != nil {
		source.ScheduleIntervalDays = *req.ScheduleIntervalDays
	}
	if req.Timezone != nil {
		source.Timezone = *req.Timezone
	}
	if req.Active != nil {
		source.Active = *req.Active
	}
	if req.AutoPost != nil {
		source.AutoPost = *req.AutoPost
	}

	if err := h.feedRepo.UpdateFeedConfig(source); err != nil {
		slog.Error("Database error", "operation", "update_feed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, h.feedInfo(source))
}

// PollFeed runs one poll cycle synchronously and returns its result.
// Fetch and parse failures land in the result's errors, not in the HTTP
// status; a concurrent poll of the same feed is a conflict. With
// ?async=true the poll is enqueued on the worker pool instead.
func (h *Handler) PollFeed(c *gin.Context) {
	source := h.loadFeed(c)
	if source == nil {
		return
	}

	if c.Query("async") == "true" {
		task := tasks.NewPollFeedTask(source, h.poller)
		if err := h.scheduler.EnqueueTask(task); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"task_id": task.GetID()})
		return
	}

	result, err := h.poller.Poll(c.Request.Context(), source)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) ListItems(c *gin.Context) {
	source := h.loadFeed(c)
	if source == nil {
		return
	}

	items, err := h.itemRepo.ListItems(source.ID)
	if err != nil {
		slog.Error("Database error", "operation", "list_items", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"total": len(items),
	})
}

func (h *Handler) ListJobs(c *gin.Context) {
	source := h.loadFeed(c)
	if source == nil {
		return
	}

	jobs, err := h.jobRepo.ListJobsForFeed(source.ID)
	if err != nil {
		slog.Error("Database error", "operation", "list_jobs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

func (h *Handler) ScheduleItems(c *gin.Context) {
	source := h.loadFeed(c)
	if source == nil {
		return
	}

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tz := req.Timezone
	if tz == "" {
		tz = source.Timezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid timezone"})
		return
	}

	start, err := scheduleStart(req.StartDate, loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start_date, expected YYYY-MM-DD"})
		return
	}

	result, err := h.schedules.ScheduleItems(source.ID, req.GUIDs, start, req.IntervalDays, tz)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// scheduleStart resolves a bare YYYY-MM-DD date to the publish hour in
// the given zone. Constructing the timestamp with time.Date keeps the
// hour stable across DST transitions, where adding a wall-clock
// duration to midnight drifts by the offset change.
func scheduleStart(date string, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), scheduleHour, 0, 0, 0, loc), nil
}

// UnscheduleItem cancels the job backing a single feed item, under the
// same pending-only rule as job cancellation.
func (h *Handler) UnscheduleItem(c *gin.Context) {
	source := h.loadFeed(c)
	if source == nil {
		return
	}

	cancelled, err := h.schedules.UnscheduleItem(source.ID, c.Param("itemId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if !cancelled {
		c.JSON(http.StatusConflict, gin.H{"error": "Item has no pending job"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

func (h *Handler) UnscheduleJob(c *gin.Context) {
	cancelled, err := h.schedules.UnscheduleJob(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if !cancelled {
		c.JSON(http.StatusConflict, gin.H{"error": "Job is no longer pending"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

func (h *Handler) ResetFeed(c *gin.Context) {
	source := h.loadFeed(c)
	if source == nil {
		return
	}

	result, err := h.schedules.ResetFeed(source.ID)
	if err != nil {
		slog.Error("Feed reset failed", "feed", source.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Reset failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) ClearFailed(c *gin.Context) {
	source := h.loadFeed(c)
	if source == nil {
		return
	}

	result, err := h.schedules.ClearFailedItems(source.ID)
	if err != nil {
		slog.Error("Clear failed items failed", "feed", source.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, result)
}
