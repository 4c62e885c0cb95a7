// Package cache provides a small TTL cache for client records on the
// bearer-validation hot path, so the resource-server middleware does not hit
// Postgres for the same client on every request.
package cache

import (
	"sync"
	"time"

	"github.com/taskhivehq/taskhive/internal/oauth"
)

type entry struct {
	client  *oauth.Client
	expires time.Time
}

// ClientCache is a thread-safe in-memory cache of OAuth client records.
type ClientCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]entry
}

// NewClientCache creates a cache with the given TTL per entry.
func NewClientCache(ttl time.Duration) *ClientCache {
	return &ClientCache{
		ttl:   ttl,
		items: make(map[string]entry),
	}
}

// Get returns a cached client if present and fresh.
func (c *ClientCache) Get(clientID string) (*oauth.Client, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[clientID]
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.client, true
}

// Set stores a client record.
func (c *ClientCache) Set(client *oauth.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[client.ClientID] = entry{
		client:  client,
		expires: time.Now().Add(c.ttl),
	}
}

// Invalidate drops a client, e.g. after an owner update or deactivation.
func (c *ClientCache) Invalidate(clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, clientID)
}
