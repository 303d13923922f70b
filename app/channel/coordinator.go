package channel

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Coordinator validates and publishes a content item across its target
// channels. It holds no persisted state; per-channel results are
// independent and one channel's failure never suppresses another's.
type Coordinator struct {
	registry *Registry
}

func NewCoordinator(registry *Registry) *Coordinator {
	return &Coordinator{registry: registry}
}

// ValidateAll runs each targeted channel's validation. A channel with no
// registered adapter yields a synthetic "not configured" invalid result.
func (c *Coordinator) ValidateAll(item ContentItem) map[string]ValidationResult {
	results := make(map[string]ValidationResult, len(item.Channels))

	for _, id := range item.Channels {
		adapter, ok := c.registry.Get(id)
		if !ok {
			results[id] = ValidationResult{
				IsValid: false,
				Errors:  []string{"channel is not configured"},
			}
			continue
		}
		results[id] = adapter.ValidatePost(item)
	}

	return results
}

// Publish dispatches the item to every targeted channel and returns one
// result per channel. Channels failing validation or lacking
// authentication are short-circuited to failure results without touching
// the external API; the rest are dispatched concurrently with no early
// cancellation, and the call returns only once every channel has a result.
func (c *Coordinator) Publish(ctx context.Context, item ContentItem) map[string]PublishResult {
	results := make(map[string]PublishResult, len(item.Channels))
	validations := c.ValidateAll(item)

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, id := range item.Channels {
		adapter, ok := c.registry.Get(id)
		if !ok {
			results[id] = PublishResult{Success: false, Error: "channel is not configured"}
			continue
		}

		validation := validations[id]
		if !validation.IsValid {
			results[id] = PublishResult{
				Success:  false,
				Error:    "validation failed: " + strings.Join(validation.Errors, "; "),
				Warnings: validation.Warnings,
			}
			continue
		}

		if !adapter.IsAuthenticated() {
			results[id] = PublishResult{
				Success: false,
				Error:   (&AuthError{Channel: id, Reason: "channel is not authenticated", Reauth: true}).Error(),
			}
			continue
		}

		wg.Add(1)
		go func(id string, adapter Channel) {
			defer wg.Done()

			result := adapter.CreatePost(ctx, item)

			mu.Lock()
			results[id] = result
			mu.Unlock()

			if result.Success {
				slog.Info("Post published", "channel", id, "external_id", result.ExternalID)
			} else {
				slog.Warn("Post failed", "channel", id, "error", result.Error)
			}
		}(id, adapter)
	}

	wg.Wait()

	return results
}
