package channel

import (
	"context"
	"time"
)

type ContentStatus string

const (
	ContentStatusDraft     ContentStatus = "draft"
	ContentStatusScheduled ContentStatus = "scheduled"
	ContentStatusPublished ContentStatus = "published"
	ContentStatusFailed    ContentStatus = "failed"
)

// CallToAction is an optional action button attached to a post. Channels
// without native call-to-action support append the URL to the post text.
type CallToAction struct {
	Action string `json:"action"`
	URL    string `json:"url"`
}

type Media struct {
	URL      string `json:"url"`
	MIMEType string `json:"mime_type,omitempty"`
	AltText  string `json:"alt_text,omitempty"`
}

// ContentItem is a unit of publishable content plus its target channels.
// Immutable once dispatched; re-publication creates a new item.
type ContentItem struct {
	Body         string        `json:"body"`
	Media        []Media       `json:"media,omitempty"`
	CTA          *CallToAction `json:"cta,omitempty"`
	Channels     []string      `json:"channels"`
	Status       ContentStatus `json:"status"`
	ScheduledFor *time.Time    `json:"scheduled_for,omitempty"`
}

type ValidationResult struct {
	IsValid     bool     `json:"is_valid"`
	Errors      []string `json:"errors,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// PublishResult is the outcome of one (item, channel) dispatch. Never
// retried automatically; retry is an explicit re-dispatch.
type PublishResult struct {
	Success    bool     `json:"success"`
	ExternalID string   `json:"external_id,omitempty"`
	Error      string   `json:"error,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

type MediaLimit struct {
	MaxBytes  int64    `json:"max_bytes"`
	Formats   []string `json:"formats"`
	MaxWidth  int      `json:"max_width,omitempty"`
	MaxHeight int      `json:"max_height,omitempty"`
}

// Descriptor holds static per-channel capability facts. Content limits
// live here and nowhere else.
type Descriptor struct {
	ID                 string                `json:"id"`
	Name               string                `json:"name"`
	MaxContentLength   int                   `json:"max_content_length"`
	MaxMediaCount      int                   `json:"max_media_count"`
	SupportsMedia      bool                  `json:"supports_media"`
	MediaLimits        map[string]MediaLimit `json:"media_limits,omitempty"`
	SupportsScheduling bool                  `json:"supports_scheduling"`
	PostTypes          []string              `json:"post_types,omitempty"`
}

// Credential is per-channel secret material plus channel-specific identity
// fields. Mutated only by Authenticate/RefreshAuth.
type Credential struct {
	Channel      string     `json:"channel"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`

	// Identity fields; which ones are set depends on the channel.
	Identifier string `json:"identifier,omitempty"` // Bluesky handle or email
	Password   string `json:"password,omitempty"`   // Bluesky app password
	DID        string `json:"did,omitempty"`        // Bluesky decentralized identifier
	AccountID  string `json:"account_id,omitempty"` // Google Business Profile account
	LocationID string `json:"location_id,omitempty"` // Google Business Profile location
	AuthorURN  string `json:"author_urn,omitempty"` // LinkedIn author URN
}

// AuthExpirySkew treats tokens expiring within this window as already
// expired, so a request cannot race expiry mid-flight.
const AuthExpirySkew = 5 * time.Minute

// Expired reports whether the credential is unusable without a refresh.
func (c *Credential) Expired() bool {
	if c == nil || c.AccessToken == "" {
		return true
	}
	if c.ExpiresAt == nil {
		return false
	}
	return time.Now().Add(AuthExpirySkew).After(*c.ExpiresAt)
}

// CredentialStore persists refreshed credentials so a restart does not
// lose a rotated refresh token.
type CredentialStore interface {
	SaveCredential(cred Credential) error
}

// Channel is the shared publishing contract implemented once per external
// platform. Adapters are independent; none depends on another.
type Channel interface {
	Descriptor() Descriptor
	Authenticate(ctx context.Context, cred Credential) error
	IsAuthenticated() bool
	RefreshAuth(ctx context.Context) error
	ValidatePost(item ContentItem) ValidationResult
	OptimizeContent(text string) string
	CreatePost(ctx context.Context, item ContentItem) PublishResult
	UpdatePost(ctx context.Context, externalID string, item ContentItem) PublishResult
	DeletePost(ctx context.Context, externalID string) error
}
