package quota

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/zenquiem/codex-accounts-switch/log"
)

// DefaultCacheTTL is how long a fetched snapshot stays fresh.
const DefaultCacheTTL = 60 * time.Second

// prober is what the cache needs from the protocol client.
type prober interface {
	Probe(ctx context.Context, codexHome string, extraEnv map[string]string) (*probeResult, error)
}

type cacheEntry struct {
	cachedAt time.Time
	snapshot Snapshot
}

// Cache memoizes probe results per account home for a short TTL. It is an
// explicit object constructed once and handed to callers, not a package
// global.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	client  prober
	entries map[string]cacheEntry

	// swappable in tests
	guessProxyEnv func() map[string]string
	now           func() time.Time
}

// NewCache wraps a client with TTL memoization.
func NewCache(client *Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		ttl:           ttl,
		client:        client,
		entries:       make(map[string]cacheEntry),
		guessProxyEnv: guessLocalProxyEnv,
		now:           time.Now,
	}
}

// Get returns the quota snapshot for an account home. A fresh cached entry
// is returned as a deep copy tagged Cached; otherwise the subprocess is
// probed, with a single proxy-assisted retry when the direct attempt fails
// with a network classification, and the result is written through the cache.
func (c *Cache) Get(ctx context.Context, codexHome string, forceRefresh bool) (*Snapshot, error) {
	key := resolveHome(codexHome)
	now := c.now()

	if !forceRefresh {
		c.mu.Lock()
		entry, ok := c.entries[key]
		c.mu.Unlock()
		if ok && now.Sub(entry.cachedAt) <= c.ttl {
			snapshot := entry.snapshot.Clone()
			snapshot.Cached = true
			return snapshot, nil
		}
	}

	result, err := c.client.Probe(ctx, codexHome, nil)
	source := "app_server_rate_limits"
	if err != nil {
		var probeErr *ProbeError
		if errors.As(err, &probeErr) && probeErr.Kind == KindNetwork {
			if proxyEnv := c.guessProxyEnv(); len(proxyEnv) > 0 {
				log.Info().Str("home", codexHome).Msg("quota probe hit a network failure, retrying via local proxy")
				retryResult, retryErr := c.client.Probe(ctx, codexHome, proxyEnv)
				if retryErr == nil {
					result, err = retryResult, nil
					source = "app_server_rate_limits_local_proxy"
				} else {
					err = retryErr
				}
			}
		}
	}
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		FiveHour:  result.FiveHour,
		Weekly:    result.Weekly,
		Source:    source,
		RawText:   result.RawText,
		FetchedAt: now.UTC().Format(time.RFC3339),
		Cached:    false,
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{cachedAt: now, snapshot: *snapshot.Clone()}
	c.mu.Unlock()
	return snapshot, nil
}

// resolveHome canonicalizes the cache key so two spellings of the same
// account home share one entry.
func resolveHome(codexHome string) string {
	abs, err := filepath.Abs(codexHome)
	if err != nil {
		return codexHome
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
