package channel

import (
	"sort"
	"sync"
)

// Registry holds the configured channel adapters keyed by channel ID.
// Constructed explicitly and injected, so tests can run against fakes.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]Channel),
	}
}

func (r *Registry) Register(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.Descriptor().ID] = ch
}

func (r *Registry) Get(id string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[id]
	return ch, ok
}

// IDs returns registered channel IDs in stable order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Connected reports whether the channel is registered and holds a usable
// credential.
func (r *Registry) Connected(id string) bool {
	ch, ok := r.Get(id)
	return ok && ch.IsAuthenticated()
}
