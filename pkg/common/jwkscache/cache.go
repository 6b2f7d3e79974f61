// Package jwkscache fetches and caches the LMS platform's JWKS so that every
// launch does not cost a network round trip.
package jwkscache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Cache provides JWKS retrieval with in-memory caching.
type Cache interface {
	Get(ctx context.Context, url string) (jwk.Set, error)
	Invalidate(url string)
}

type entry struct {
	set             jwk.Set
	expiry          time.Time
	allowStaleUntil time.Time
}

type memoryCache struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	client     *http.Client
	ttl        time.Duration
	staleGrace time.Duration
}

var (
	defaultOnce sync.Once
	defaultC    Cache
)

// Default returns a process-wide JWKS cache with sensible defaults.
func Default() Cache {
	defaultOnce.Do(func() {
		defaultC = New(10*time.Minute, 1*time.Hour)
	})
	return defaultC
}

// New creates a new in-memory JWKS cache. ttl controls how long a fetched set
// is considered fresh; staleGrace allows serving a stale set when a refresh
// fails transiently.
func New(ttl, staleGrace time.Duration) Cache {
	return &memoryCache{
		entries:    make(map[string]*entry),
		client:     &http.Client{Timeout: 5 * time.Second},
		ttl:        ttl,
		staleGrace: staleGrace,
	}
}

func (c *memoryCache) Invalidate(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, url)
}

func (c *memoryCache) Get(ctx context.Context, url string) (jwk.Set, error) {
	c.mu.RLock()
	e, ok := c.entries[url]
	c.mu.RUnlock()
	if ok && e.set != nil && time.Now().Before(e.expiry) {
		return e.set, nil
	}
	set, err := c.fetch(ctx, url)
	if err != nil {
		// Serve stale if available within the grace window
		if ok && e.set != nil && time.Now().Before(e.allowStaleUntil) {
			return e.set, nil
		}
		return nil, err
	}
	return set, nil
}

func (c *memoryCache) fetch(ctx context.Context, url string) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("jwkscache: unexpected status " + strconv.Itoa(resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1MB
	if err != nil {
		return nil, err
	}
	set, err := jwk.Parse(body)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	c.mu.Lock()
	c.entries[url] = &entry{
		set:             set,
		expiry:          now.Add(c.ttl),
		allowStaleUntil: now.Add(c.ttl + c.staleGrace),
	}
	c.mu.Unlock()
	return set, nil
}
