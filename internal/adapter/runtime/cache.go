package runtime

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Factory constructs a collaborator client for a (service, scope) key.
type Factory func(service, scope string) (any, error)

type clientKey struct {
	service string
	scope   string
}

// ClientCache caches collaborator clients keyed by (service_type,
// credentials_scope). Construction is deduplicated per key with
// singleflight; after the first build, reads take only an RLock and the
// cached client is never mutated.
type ClientCache struct {
	mu      sync.RWMutex
	clients map[clientKey]any
	group   singleflight.Group
	build   Factory
}

// NewClientCache creates a cache around the given factory.
func NewClientCache(build Factory) *ClientCache {
	return &ClientCache{
		clients: make(map[clientKey]any),
		build:   build,
	}
}

// Get returns the cached client for the key, building it on first use.
// Concurrent callers for the same key share one construction; a failed
// construction is not cached, so the next caller retries.
func (c *ClientCache) Get(service, scope string) (any, error) {
	key := clientKey{service: service, scope: scope}

	c.mu.RLock()
	client, ok := c.clients[key]
	c.mu.RUnlock()
	if ok {
		return client, nil
	}

	v, err, _ := c.group.Do(service+"\x00"+scope, func() (any, error) {
		c.mu.RLock()
		existing, ok := c.clients[key]
		c.mu.RUnlock()
		if ok {
			return existing, nil
		}

		built, err := c.build(service, scope)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.clients[key] = built
		c.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Len returns the number of cached clients.
func (c *ClientCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.clients)
}
