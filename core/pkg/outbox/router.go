package outbox

import (
	"context"
	"sync"

	"github.com/madcok-co/relay/core/pkg/contracts"
)

// PublishFunc replays one staged row through a topic's publish chain.
type PublishFunc func(ctx context.Context, rec *contracts.OutboxRecord) error

// Router maps type tags to publish functions. Producer clients register
// themselves at startup; the worker dispatches fetched rows through it.
type Router struct {
	mu     sync.RWMutex
	routes map[string]PublishFunc
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]PublishFunc)}
}

// Register binds a tag to its publish function. Last registration wins;
// duplicate tags are already rejected by the topic model.
func (r *Router) Register(tag string, fn PublishFunc) {
	r.mu.Lock()
	r.routes[tag] = fn
	r.mu.Unlock()
}

// Route resolves a tag.
func (r *Router) Route(tag string) (PublishFunc, bool) {
	r.mu.RLock()
	fn, ok := r.routes[tag]
	r.mu.RUnlock()
	return fn, ok
}

// Tags returns the registered tags, unordered.
func (r *Router) Tags() []string {
	r.mu.RLock()
	tags := make([]string, 0, len(r.routes))
	for tag := range r.routes {
		tags = append(tags, tag)
	}
	r.mu.RUnlock()
	return tags
}
