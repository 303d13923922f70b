package api

import (
	"github.com/reviewpilot/syndicate/app/channel"
	"github.com/reviewpilot/syndicate/app/database"
	"github.com/reviewpilot/syndicate/app/feed"
	"github.com/reviewpilot/syndicate/app/schedule"
	"github.com/reviewpilot/syndicate/app/tasks"
)

type Handler struct {
	registry    *channel.Registry
	coordinator *channel.Coordinator
	credRepo    database.CredentialRepository
	feedRepo    database.FeedSourceRepository
	itemRepo    database.FeedItemRepository
	jobRepo     database.JobRepository
	poller      *feed.Poller
	schedules   *schedule.Service
	scheduler   tasks.TaskSchedulerInterface
}

type publishRequest struct {
	Content  string                `json:"content" binding:"required"`
	Media    []channel.Media       `json:"media"`
	CTA      *channel.CallToAction `json:"cta"`
	Channels []string              `json:"channels" binding:"required"`
}

type connectRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Identifier   string `json:"identifier"`
	Password     string `json:"password"`
	AccountID    string `json:"account_id"`
	LocationID   string `json:"location_id"`
	AuthorURN    string `json:"author_urn"`
}

type createFeedRequest struct {
	Name                   string   `json:"name" binding:"required"`
	URL                    string   `json:"url" binding:"required"`
	PollingIntervalMinutes int      `json:"polling_interval_minutes"`
	Template               string   `json:"template"`
	Channels               []string `json:"channels"`
	ScheduleIntervalDays   int      `json:"schedule_interval_days"`
	Timezone               string   `json:"timezone"`
	AutoPost               bool     `json:"auto_post"`
}

// updateFeedRequest uses pointers so PATCH can distinguish omitted
// fields from zero values. The URL is absent: immutable after creation.
type updateFeedRequest struct {
	Name                   *string   `json:"name"`
	PollingIntervalMinutes *int      `json:"polling_interval_minutes"`
	Template               *string   `json:"template"`
	Channels               *[]string `json:"channels"`
	ScheduleIntervalDays   *int      `json:"schedule_interval_days"`
	Timezone               *string   `json:"timezone"`
	Active                 *bool     `json:"active"`
	AutoPost               *bool     `json:"auto_post"`
}

type scheduleRequest struct {
	GUIDs        []string `json:"guids" binding:"required"`
	StartDate    string   `json:"start_date" binding:"required"` // YYYY-MM-DD
	IntervalDays int      `json:"interval_days" binding:"required"`
	Timezone     string   `json:"timezone"`
}
