package channel

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/ratelimit"
)

const (
	blueskyMaxContentLength = 300
	blueskyMaxImages        = 4

	// Bluesky access JWTs are short-lived; the server does not report an
	// expiry, so sessions are renewed on this cadence.
	blueskySessionTTL = 2 * time.Hour
)

// Bluesky publishes to the AT Protocol: session auth, blob uploads before
// the post record, and at:// URIs as external post identifiers.
type Bluesky struct {
	host    string
	client  *http.Client
	limiter ratelimit.Limiter
	store   CredentialStore

	// mu is the per-credential lock; holding it across RefreshAuth keeps
	// refresh single-flight, since the PDS invalidates a refresh JWT on use.
	mu   sync.Mutex
	cred *Credential
}

func NewBluesky(host string, store CredentialStore) *Bluesky {
	return &Bluesky{
		host:    strings.TrimRight(host, "/"),
		client:  newHTTPClient(),
		limiter: ratelimit.New(10),
		store:   store,
	}
}

func (b *Bluesky) Descriptor() Descriptor {
	return Descriptor{
		ID:               "bluesky",
		Name:             "Bluesky",
		MaxContentLength: blueskyMaxContentLength,
		MaxMediaCount:    blueskyMaxImages,
		SupportsMedia:    true,
		MediaLimits: map[string]MediaLimit{
			"image": {MaxBytes: 1_000_000, Formats: []string{"image/jpeg", "image/png", "image/webp", "image/gif"}},
		},
		SupportsScheduling: false,
		PostTypes:          []string{"post"},
	}
}

type blueskySession struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	DID        string `json:"did"`
	Handle     string `json:"handle"`
}

func (b *Bluesky) Authenticate(ctx context.Context, cred Credential) error {
	b.limiter.Take()

	var session blueskySession
	err := doJSON(ctx, b.client, "bluesky", http.MethodPost, b.host+"/xrpc/com.atproto.server.createSession", nil,
		map[string]string{"identifier": cred.Identifier, "password": cred.Password}, &session)
	if err != nil {
		if IsTransient(err) {
			return err
		}
		return &AuthError{Channel: "bluesky", Reason: fmt.Sprintf("session creation failed: %v", err), Reauth: true}
	}

	expires := time.Now().Add(blueskySessionTTL)
	b.mu.Lock()
	b.cred = &Credential{
		Channel:      "bluesky",
		AccessToken:  session.AccessJwt,
		RefreshToken: session.RefreshJwt,
		ExpiresAt:    &expires,
		Identifier:   cred.Identifier,
		Password:     cred.Password,
		DID:          session.DID,
	}
	saved := *b.cred
	b.mu.Unlock()

	return b.persist(saved)
}

func (b *Bluesky) IsAuthenticated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.cred.Expired()
}

// RefreshAuth renews the session. A no-op when the credential is still
// valid; falls back to full re-authentication when the refresh JWT is
// rejected, and reports reconnect-required when that fails too.
func (b *Bluesky) RefreshAuth(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cred != nil && !b.cred.Expired() {
		return nil
	}
	if b.cred == nil || b.cred.RefreshToken == "" {
		return &AuthError{Channel: "bluesky", Reason: "no credential available", Reauth: true}
	}

	b.limiter.Take()

	var session blueskySession
	err := doJSON(ctx, b.client, "bluesky", http.MethodPost, b.host+"/xrpc/com.atproto.server.refreshSession",
		map[string]string{"Authorization": "Bearer " + b.cred.RefreshToken}, nil, &session)
	if err != nil {
		if IsTransient(err) {
			return err
		}
		// Silent refresh failed; retry a full session with stored identity.
		if b.cred.Identifier != "" && b.cred.Password != "" {
			var fresh blueskySession
			ferr := doJSON(ctx, b.client, "bluesky", http.MethodPost, b.host+"/xrpc/com.atproto.server.createSession", nil,
				map[string]string{"identifier": b.cred.Identifier, "password": b.cred.Password}, &fresh)
			if ferr == nil {
				session = fresh
				err = nil
			}
		}
		if err != nil {
			return &AuthError{Channel: "bluesky", Reason: fmt.Sprintf("session refresh failed: %v", err), Reauth: true}
		}
	}

	expires := time.Now().Add(blueskySessionTTL)
	b.cred.AccessToken = session.AccessJwt
	b.cred.RefreshToken = session.RefreshJwt
	b.cred.ExpiresAt = &expires
	if session.DID != "" {
		b.cred.DID = session.DID
	}

	return b.persist(*b.cred)
}

func (b *Bluesky) persist(cred Credential) error {
	if b.store == nil {
		return nil
	}
	if err := b.store.SaveCredential(cred); err != nil {
		return fmt.Errorf("failed to persist bluesky credential: %w", err)
	}
	return nil
}

func (b *Bluesky) ValidatePost(item ContentItem) ValidationResult {
	return validateCommon(item, b.Descriptor(), b.appendedLength(item))
}

// appendedLength accounts for the call-to-action URL Bluesky has no
// native field for, which CreatePost appends to the text.
func (b *Bluesky) appendedLength(item ContentItem) int {
	if item.CTA == nil || item.CTA.URL == "" {
		return 0
	}
	return contentLength(item.CTA.URL) + 1
}

func (b *Bluesky) OptimizeContent(text string) string {
	return truncateContent(normalizeContent(text), blueskyMaxContentLength)
}

type blueskyBlob struct {
	Blob map[string]any `json:"blob"`
}

func (b *Bluesky) CreatePost(ctx context.Context, item ContentItem) PublishResult {
	validation := b.ValidatePost(item)
	if !validation.IsValid {
		return PublishResult{
			Success:  false,
			Error:    "validation failed: " + strings.Join(validation.Errors, "; "),
			Warnings: validation.Warnings,
		}
	}

	b.mu.Lock()
	cred := b.cred
	b.mu.Unlock()
	if cred.Expired() {
		if err := b.RefreshAuth(ctx); err != nil {
			return PublishResult{Success: false, Error: err.Error()}
		}
		b.mu.Lock()
		cred = b.cred
		b.mu.Unlock()
	}

	warnings := validation.Warnings

	// Blob uploads happen before the post record. A failed upload drops
	// that attachment with a warning instead of aborting the post.
	var images []map[string]any
	for _, media := range item.Media {
		blob, err := b.uploadBlob(ctx, cred, media)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("media upload failed for %s: %v", media.URL, err))
			continue
		}
		images = append(images, map[string]any{"image": blob, "alt": media.AltText})
	}

	text := b.OptimizeContent(item.Body)
	if item.CTA != nil && item.CTA.URL != "" {
		text = text + "\n" + item.CTA.URL
	}

	record := map[string]any{
		"$type":     "app.bsky.feed.post",
		"text":      text,
		"createdAt": time.Now().UTC().Format(time.RFC3339),
	}
	if len(images) > 0 {
		record["embed"] = map[string]any{
			"$type":  "app.bsky.embed.images",
			"images": images,
		}
	}

	b.limiter.Take()

	var created struct {
		URI string `json:"uri"`
		CID string `json:"cid"`
	}
	err := doJSON(ctx, b.client, "bluesky", http.MethodPost, b.host+"/xrpc/com.atproto.repo.createRecord",
		map[string]string{"Authorization": "Bearer " + cred.AccessToken},
		map[string]any{
			"repo":       cred.DID,
			"collection": "app.bsky.feed.post",
			"record":     record,
		}, &created)
	if err != nil {
		return PublishResult{Success: false, Error: err.Error(), Warnings: warnings}
	}

	return PublishResult{Success: true, ExternalID: created.URI, Warnings: warnings}
}

func (b *Bluesky) uploadBlob(ctx context.Context, cred *Credential, media Media) (map[string]any, error) {
	data, contentType, err := fetchMedia(ctx, b.client, "bluesky", media.URL)
	if err != nil {
		return nil, err
	}
	if media.MIMEType != "" {
		contentType = media.MIMEType
	}
	if limit := b.Descriptor().MediaLimits["image"]; int64(len(data)) > limit.MaxBytes {
		return nil, fmt.Errorf("image exceeds %d byte limit", limit.MaxBytes)
	}

	b.limiter.Take()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.host+"/xrpc/com.atproto.repo.uploadBlob", strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", contentType)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &TransientError{Channel: "bluesky", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("blob upload returned HTTP %d", resp.StatusCode)
	}

	var uploaded blueskyBlob
	if err := decodeJSONBody(resp, &uploaded); err != nil {
		return nil, err
	}

	return uploaded.Blob, nil
}

// UpdatePost is unsupported: published Bluesky posts cannot be edited.
func (b *Bluesky) UpdatePost(ctx context.Context, externalID string, item ContentItem) PublishResult {
	return PublishResult{Success: false, Error: "bluesky does not support editing published posts"}
}

func (b *Bluesky) DeletePost(ctx context.Context, externalID string) error {
	b.mu.Lock()
	cred := b.cred
	b.mu.Unlock()
	if cred.Expired() {
		return &AuthError{Channel: "bluesky", Reason: "channel is not authenticated", Reauth: true}
	}

	rkey, err := blueskyRecordKey(externalID)
	if err != nil {
		return err
	}

	b.limiter.Take()

	return doJSON(ctx, b.client, "bluesky", http.MethodPost, b.host+"/xrpc/com.atproto.repo.deleteRecord",
		map[string]string{"Authorization": "Bearer " + cred.AccessToken},
		map[string]any{
			"repo":       cred.DID,
			"collection": "app.bsky.feed.post",
			"rkey":       rkey,
		}, nil)
}

// blueskyRecordKey extracts the record key from an AT-URI such as
// at://did:plc:abc/app.bsky.feed.post/3l3qo2vuowo2b.
func blueskyRecordKey(uri string) (string, error) {
	parts := strings.Split(strings.TrimPrefix(uri, "at://"), "/")
	if len(parts) != 3 || parts[2] == "" {
		return "", fmt.Errorf("invalid at:// post URI: %s", uri)
	}
	return parts[2], nil
}
