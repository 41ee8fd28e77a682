package usp

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// defaultDNSTTL is how long a resolved address is trusted before the next
// lookup goes to the resolver again.
const defaultDNSTTL = 5 * time.Minute

// DNSCache memoizes hostname resolutions with a per-entry TTL. It is created
// once per [Context] and shared by the Transport's connect path across
// reconnects. Expired entries are evicted lazily, on the next lookup that
// touches them.
type DNSCache struct {
	ttl      time.Duration
	resolver func(ctx context.Context, host string) ([]string, error)

	mu      sync.Mutex
	entries map[string]dnsEntry

	group singleflight.Group
}

type dnsEntry struct {
	addrs     []string
	expiresAt time.Time
}

// NewDNSCache creates an empty cache with the given TTL. A ttl of 0 selects
// [defaultDNSTTL].
func NewDNSCache(ttl time.Duration) *DNSCache {
	if ttl <= 0 {
		ttl = defaultDNSTTL
	}
	return &DNSCache{
		ttl:      ttl,
		resolver: net.DefaultResolver.LookupHost,
		entries:  make(map[string]dnsEntry),
	}
}

// Lookup resolves host, returning a cached address list if a live entry
// exists. Concurrent lookups for the same host are collapsed into a single
// resolver call via singleflight; every caller waiting on that call
// receives the same result.
func (c *DNSCache) Lookup(ctx context.Context, host string) ([]string, error) {
	c.mu.Lock()
	entry, ok := c.entries[host]
	if ok && time.Now().Before(entry.expiresAt) {
		c.mu.Unlock()
		return entry.addrs, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(host, func() (any, error) {
		addrs, err := c.resolver(ctx, host)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[host] = dnsEntry{addrs: addrs, expiresAt: time.Now().Add(c.ttl)}
		c.mu.Unlock()
		return addrs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// Purge evicts every entry, regardless of expiry. Intended for tests.
func (c *DNSCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]dnsEntry)
}
