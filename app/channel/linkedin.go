package channel

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/ratelimit"
)

const (
	linkedinMaxContentLength = 3000
	linkedinMaxImages        = 9

	linkedinAPIBase  = "https://api.linkedin.com/v2"
	linkedinTokenURL = "https://www.linkedin.com/oauth/v2/accessToken"
)

// LinkedIn publishes UGC posts on behalf of a member or organization URN.
// Images are registered and uploaded before the post is created.
type LinkedIn struct {
	clientID     string
	clientSecret string
	client       *http.Client
	limiter      ratelimit.Limiter
	store        CredentialStore

	// mu is the per-credential lock; refresh runs single-flight under it.
	mu   sync.Mutex
	cred *Credential
}

func NewLinkedIn(clientID, clientSecret string, store CredentialStore) *LinkedIn {
	return &LinkedIn{
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       newHTTPClient(),
		limiter:      ratelimit.New(5),
		store:        store,
	}
}

func (l *LinkedIn) Descriptor() Descriptor {
	return Descriptor{
		ID:               "linkedin",
		Name:             "LinkedIn",
		MaxContentLength: linkedinMaxContentLength,
		MaxMediaCount:    linkedinMaxImages,
		SupportsMedia:    true,
		MediaLimits: map[string]MediaLimit{
			"image": {MaxBytes: 8_000_000, Formats: []string{"image/jpeg", "image/png", "image/gif"}},
		},
		SupportsScheduling: false,
		PostTypes:          []string{"NONE", "ARTICLE", "IMAGE"},
	}
}

func (l *LinkedIn) Authenticate(ctx context.Context, cred Credential) error {
	if cred.AccessToken == "" {
		return &AuthError{Channel: "linkedin", Reason: "access token is required", Reauth: true}
	}
	if cred.AuthorURN == "" {
		return &ConfigError{Reason: "linkedin: author URN must be specified"}
	}

	cred.Channel = "linkedin"
	l.mu.Lock()
	l.cred = &cred
	l.mu.Unlock()

	return l.persist(cred)
}

func (l *LinkedIn) IsAuthenticated() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.cred.Expired()
}

// RefreshAuth exchanges the refresh token for a new access token. LinkedIn
// only issues refresh tokens to approved applications; without one the
// only recovery is a full reconnect.
func (l *LinkedIn) RefreshAuth(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cred != nil && !l.cred.Expired() {
		return nil
	}
	if l.cred == nil {
		return &AuthError{Channel: "linkedin", Reason: "no credential available", Reauth: true}
	}
	if l.cred.RefreshToken == "" {
		return &AuthError{Channel: "linkedin", Reason: "access token expired and no refresh token is available", Reauth: true}
	}

	l.limiter.Take()

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {l.cred.RefreshToken},
		"client_id":     {l.clientID},
		"client_secret": {l.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, linkedinTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := l.client.Do(req)
	if err != nil {
		return &TransientError{Channel: "linkedin", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &TransientError{Channel: "linkedin", StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return &AuthError{Channel: "linkedin", Reason: fmt.Sprintf("token refresh returned HTTP %d", resp.StatusCode), Reauth: true}
	}

	var token struct {
		AccessToken  string `json:"access_token"`
		ExpiresIn    int    `json:"expires_in"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSONBody(resp, &token); err != nil {
		return err
	}

	expires := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	l.cred.AccessToken = token.AccessToken
	l.cred.ExpiresAt = &expires
	if token.RefreshToken != "" {
		l.cred.RefreshToken = token.RefreshToken
	}

	return l.persist(*l.cred)
}

func (l *LinkedIn) persist(cred Credential) error {
	if l.store == nil {
		return nil
	}
	if err := l.store.SaveCredential(cred); err != nil {
		return fmt.Errorf("failed to persist linkedin credential: %w", err)
	}
	return nil
}

func (l *LinkedIn) ValidatePost(item ContentItem) ValidationResult {
	result := validateCommon(item, l.Descriptor(), l.appendedLength(item))

	if contentLength(normalizeContent(item.Body)) > 1300 {
		result.Suggestions = append(result.Suggestions, "posts under 1300 characters show without a see-more fold")
	}

	return result
}

// appendedLength accounts for the call-to-action URL appended to the
// share text, since UGC posts carry no action button.
func (l *LinkedIn) appendedLength(item ContentItem) int {
	if item.CTA == nil || item.CTA.URL == "" {
		return 0
	}
	return contentLength(item.CTA.URL) + 2
}

func (l *LinkedIn) OptimizeContent(text string) string {
	return truncateContent(normalizeContent(text), linkedinMaxContentLength)
}

func (l *LinkedIn) CreatePost(ctx context.Context, item ContentItem) PublishResult {
	validation := l.ValidatePost(item)
	if !validation.IsValid {
		return PublishResult{
			Success:  false,
			Error:    "validation failed: " + strings.Join(validation.Errors, "; "),
			Warnings: validation.Warnings,
		}
	}

	if err := l.RefreshAuth(ctx); err != nil {
		return PublishResult{Success: false, Error: err.Error()}
	}
	l.mu.Lock()
	cred := *l.cred
	l.mu.Unlock()

	warnings := validation.Warnings

	// Register and upload each image before creating the post; a failed
	// upload drops that attachment with a warning.
	var assets []string
	for _, media := range item.Media {
		asset, err := l.uploadImage(ctx, cred, media)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("media upload failed for %s: %v", media.URL, err))
			continue
		}
		assets = append(assets, asset)
	}

	text := l.OptimizeContent(item.Body)
	if item.CTA != nil && item.CTA.URL != "" {
		text = text + "\n\n" + item.CTA.URL
	}

	shareContent := map[string]any{
		"shareCommentary":    map[string]any{"text": text},
		"shareMediaCategory": "NONE",
	}
	if len(assets) > 0 {
		media := make([]map[string]any, 0, len(assets))
		for _, asset := range assets {
			media = append(media, map[string]any{"status": "READY", "media": asset})
		}
		shareContent["shareMediaCategory"] = "IMAGE"
		shareContent["media"] = media
	}

	payload := map[string]any{
		"author":         cred.AuthorURN,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": shareContent,
		},
		"visibility": map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	l.limiter.Take()

	var created struct {
		ID string `json:"id"`
	}
	err := doJSON(ctx, l.client, "linkedin", http.MethodPost, linkedinAPIBase+"/ugcPosts",
		map[string]string{
			"Authorization":             "Bearer " + cred.AccessToken,
			"X-Restli-Protocol-Version": "2.0.0",
		}, payload, &created)
	if err != nil {
		return PublishResult{Success: false, Error: err.Error(), Warnings: warnings}
	}

	return PublishResult{Success: true, ExternalID: created.ID, Warnings: warnings}
}

func (l *LinkedIn) uploadImage(ctx context.Context, cred Credential, media Media) (string, error) {
	data, _, err := fetchMedia(ctx, l.client, "linkedin", media.URL)
	if err != nil {
		return "", err
	}
	if limit := l.Descriptor().MediaLimits["image"]; int64(len(data)) > limit.MaxBytes {
		return "", fmt.Errorf("image exceeds %d byte limit", limit.MaxBytes)
	}

	l.limiter.Take()

	var registered struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism map[string]struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	err = doJSON(ctx, l.client, "linkedin", http.MethodPost, linkedinAPIBase+"/assets?action=registerUpload",
		map[string]string{"Authorization": "Bearer " + cred.AccessToken},
		map[string]any{
			"registerUploadRequest": map[string]any{
				"recipes": []string{"urn:li:digitalmediaRecipe:feedshare-image"},
				"owner":   cred.AuthorURN,
				"serviceRelationships": []map[string]any{
					{"relationshipType": "OWNER", "identifier": "urn:li:userGeneratedContent"},
				},
			},
		}, &registered)
	if err != nil {
		return "", err
	}

	var uploadURL string
	for _, mechanism := range registered.Value.UploadMechanism {
		if mechanism.UploadURL != "" {
			uploadURL = mechanism.UploadURL
			break
		}
	}
	if uploadURL == "" {
		return "", fmt.Errorf("register upload returned no upload URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", &TransientError{Channel: "linkedin", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("image upload returned HTTP %d", resp.StatusCode)
	}

	return registered.Value.Asset, nil
}

// UpdatePost is unsupported: published UGC posts cannot be edited through
// the API.
func (l *LinkedIn) UpdatePost(ctx context.Context, externalID string, item ContentItem) PublishResult {
	return PublishResult{Success: false, Error: "linkedin does not support editing published posts"}
}

func (l *LinkedIn) DeletePost(ctx context.Context, externalID string) error {
	if err := l.RefreshAuth(ctx); err != nil {
		return err
	}
	l.mu.Lock()
	cred := *l.cred
	l.mu.Unlock()

	l.limiter.Take()

	return doJSON(ctx, l.client, "linkedin", http.MethodDelete, linkedinAPIBase+"/ugcPosts/"+url.PathEscape(externalID),
		map[string]string{
			"Authorization":             "Bearer " + cred.AccessToken,
			"X-Restli-Protocol-Version": "2.0.0",
		}, nil, nil)
}
