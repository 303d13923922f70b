package channel

import (
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
	googleMaxContentLength = 1500
	googleMaxImages        = 10

	googleAPIBase  = "https://mybusiness.googleapis.com/v4"
	googleTokenURL = "https://oauth2.googleapis.com/token"
)

// GoogleBusiness publishes local posts to a Google Business Profile
// location. OAuth2 refresh-token flow; media is referenced by public URL,
// so there is no side-channel upload step.
type GoogleBusiness struct {
	clientID     string
	clientSecret string
	client       *http.Client
	limiter      ratelimit.Limiter
	store        CredentialStore

	// mu is the per-credential lock; refresh runs single-flight under it.
	mu   sync.Mutex
	cred *Credential
}

func NewGoogleBusiness(clientID, clientSecret string, store CredentialStore) *GoogleBusiness {
	return &GoogleBusiness{
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       newHTTPClient(),
		limiter:      ratelimit.New(5),
		store:        store,
	}
}

func (g *GoogleBusiness) Descriptor() Descriptor {
	return Descriptor{
		ID:               "google",
		Name:             "Google Business Profile",
		MaxContentLength: googleMaxContentLength,
		MaxMediaCount:    googleMaxImages,
		SupportsMedia:    true,
		MediaLimits: map[string]MediaLimit{
			"image": {MaxBytes: 5_000_000, Formats: []string{"image/jpeg", "image/png"}, MaxWidth: 3000, MaxHeight: 3000},
		},
		SupportsScheduling: false,
		PostTypes:          []string{"STANDARD", "EVENT", "OFFER", "ALERT"},
	}
}

// Call-to-action types Google Business Profile local posts recognize.
var googleActionTypes = map[string]bool{
	"LEARN_MORE": true,
	"BOOK":       true,
	"ORDER":      true,
	"SHOP":       true,
	"SIGN_UP":    true,
	"CALL":       true,
}

// Authenticate stores the OAuth credential obtained at connect time and
// verifies it by forcing an access-token refresh.
func (g *GoogleBusiness) Authenticate(ctx context.Context, cred Credential) error {
	if cred.RefreshToken == "" {
		return &AuthError{Channel: "google", Reason: "refresh token is required", Reauth: true}
	}
	if cred.AccountID == "" || cred.LocationID == "" {
		return &ConfigError{Reason: "google: account and location must be specified"}
	}

	cred.Channel = "google"
	g.mu.Lock()
	g.cred = &cred
	g.mu.Unlock()

	if cred.Expired() {
		return g.RefreshAuth(ctx)
	}
	return g.persist(cred)
}

func (g *GoogleBusiness) IsAuthenticated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.cred.Expired()
}

func (g *GoogleBusiness) RefreshAuth(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cred != nil && !g.cred.Expired() {
		return nil
	}
	if g.cred == nil || g.cred.RefreshToken == "" {
		return &AuthError{Channel: "google", Reason: "no credential available", Reauth: true}
	}

	g.limiter.Take()

	form := url.Values{
		"client_id":     {g.clientID},
		"client_secret": {g.clientSecret},
		"refresh_token": {g.cred.RefreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return &TransientError{Channel: "google", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &TransientError{Channel: "google", StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		// invalid_grant: the refresh token was revoked or expired, only a
		// full reconnect can recover.
		return &AuthError{Channel: "google", Reason: fmt.Sprintf("token refresh returned HTTP %d", resp.StatusCode), Reauth: true}
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := decodeJSONBody(resp, &token); err != nil {
		return err
	}

	expires := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	g.cred.AccessToken = token.AccessToken
	g.cred.ExpiresAt = &expires

	return g.persist(*g.cred)
}

func (g *GoogleBusiness) persist(cred Credential) error {
	if g.store == nil {
		return nil
	}
	if err := g.store.SaveCredential(cred); err != nil {
		return fmt.Errorf("failed to persist google credential: %w", err)
	}
	return nil
}

func (g *GoogleBusiness) ValidatePost(item ContentItem) ValidationResult {
	result := validateCommon(item, g.Descriptor(), 0)

	g.mu.Lock()
	hasLocation := g.cred != nil && g.cred.LocationID != ""
	g.mu.Unlock()
	if !hasLocation {
		result.IsValid = false
		result.Errors = append(result.Errors, "no business location is configured")
	}

	if item.CTA != nil {
		if item.CTA.Action != "" && !googleActionTypes[item.CTA.Action] {
			result.IsValid = false
			result.Errors = append(result.Errors, fmt.Sprintf("unsupported call-to-action type: %s", item.CTA.Action))
		}
		if item.CTA.Action != "CALL" && item.CTA.URL == "" {
			result.IsValid = false
			result.Errors = append(result.Errors, "call-to-action requires a URL")
		}
	}

	if len(item.Media) == 0 {
		result.Suggestions = append(result.Suggestions, "posts with a photo receive more views on Google")
	}

	return result
}

func (g *GoogleBusiness) OptimizeContent(text string) string {
	return truncateContent(normalizeContent(text), googleMaxContentLength)
}

func (g *GoogleBusiness) CreatePost(ctx context.Context, item ContentItem) PublishResult {
	validation := g.ValidatePost(item)
	if !validation.IsValid {
		return PublishResult{
			Success:  false,
			Error:    "validation failed: " + strings.Join(validation.Errors, "; "),
			Warnings: validation.Warnings,
		}
	}

	if err := g.RefreshAuth(ctx); err != nil {
		return PublishResult{Success: false, Error: err.Error()}
	}
	g.mu.Lock()
	cred := *g.cred
	g.mu.Unlock()

	payload := map[string]any{
		"languageCode": "en",
		"topicType":    "STANDARD",
		"summary":      g.OptimizeContent(item.Body),
	}

	if item.CTA != nil {
		action := map[string]any{"actionType": item.CTA.Action}
		if item.CTA.URL != "" {
			action["url"] = item.CTA.URL
		}
		payload["callToAction"] = action
	}

	if len(item.Media) > 0 {
		media := make([]map[string]any, 0, len(item.Media))
		for _, m := range item.Media {
			media = append(media, map[string]any{"mediaFormat": "PHOTO", "sourceUrl": m.URL})
		}
		payload["media"] = media
	}

	g.limiter.Take()

	var created struct {
		Name string `json:"name"`
	}
	endpoint := fmt.Sprintf("%s/accounts/%s/locations/%s/localPosts", googleAPIBase, cred.AccountID, cred.LocationID)
	err := doJSON(ctx, g.client, "google", http.MethodPost, endpoint,
		map[string]string{"Authorization": "Bearer " + cred.AccessToken}, payload, &created)
	if err != nil {
		return PublishResult{Success: false, Error: err.Error(), Warnings: validation.Warnings}
	}

	return PublishResult{Success: true, ExternalID: created.Name, Warnings: validation.Warnings}
}

func (g *GoogleBusiness) UpdatePost(ctx context.Context, externalID string, item ContentItem) PublishResult {
	validation := g.ValidatePost(item)
	if !validation.IsValid {
		return PublishResult{
			Success:  false,
			Error:    "validation failed: " + strings.Join(validation.Errors, "; "),
			Warnings: validation.Warnings,
		}
	}

	if err := g.RefreshAuth(ctx); err != nil {
		return PublishResult{Success: false, Error: err.Error()}
	}
	g.mu.Lock()
	cred := *g.cred
	g.mu.Unlock()

	g.limiter.Take()

	endpoint := fmt.Sprintf("%s/%s?updateMask=summary", googleAPIBase, externalID)
	payload := map[string]any{"summary": g.OptimizeContent(item.Body), "languageCode": "en", "topicType": "STANDARD"}

	var updated struct {
		Name string `json:"name"`
	}
	err := doJSON(ctx, g.client, "google", http.MethodPatch, endpoint,
		map[string]string{"Authorization": "Bearer " + cred.AccessToken}, payload, &updated)
	if err != nil {
		return PublishResult{Success: false, Error: err.Error()}
	}

	return PublishResult{Success: true, ExternalID: updated.Name}
}

func (g *GoogleBusiness) DeletePost(ctx context.Context, externalID string) error {
	if err := g.RefreshAuth(ctx); err != nil {
		return err
	}
	g.mu.Lock()
	cred := *g.cred
	g.mu.Unlock()

	g.limiter.Take()

	return doJSON(ctx, g.client, "google", http.MethodDelete, fmt.Sprintf("%s/%s", googleAPIBase, externalID),
		map[string]string{"Authorization": "Bearer " + cred.AccessToken}, nil, nil)
}
