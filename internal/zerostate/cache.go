// Package zerostate caches prompt suggestions shown on the empty-session
// screen. Suggestions come from the backend once per process; concurrent
// callers share a single in-flight fetch.
package zerostate

import (
	"context"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"

	"github.com/familiar-ai/familiar/internal/logging"
)

// FetchFunc retrieves suggestions from the backend.
type FetchFunc func(ctx context.Context) ([]string, error)

// Cache memoizes one successful suggestion fetch. Errors are swallowed;
// an empty slice just means the zero-state screen shows nothing.
type Cache struct {
	mu       sync.Mutex
	fetch    FetchFunc
	cached   []string
	last     []string
	inflight chan struct{}
}

// NewCache creates a Cache backed by fetch.
func NewCache(fetch FetchFunc) *Cache {
	return &Cache{fetch: fetch}
}

// Prewarm fetches suggestions ahead of need, typically at startup. Silent
// on error. A no-op when suggestions are cached or a fetch is running.
func (c *Cache) Prewarm(ctx context.Context) {
	c.mu.Lock()
	if c.cached != nil || c.inflight != nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	suggestions := c.Get(ctx)
	logging.Debug().Int("count", len(suggestions)).Msg("Suggestion prewarm complete")
}

// Get returns cached suggestions, or fetches them if missing. If a fetch
// is already in flight the caller waits for its result instead of issuing
// a duplicate request. Returns an empty slice on error.
func (c *Cache) Get(ctx context.Context) []string {
	c.mu.Lock()
	if c.cached != nil {
		out := c.cached
		c.mu.Unlock()
		return out
	}
	if ch := c.inflight; ch != nil {
		c.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil
		}
		c.mu.Lock()
		out := c.last
		c.mu.Unlock()
		return out
	}

	ch := make(chan struct{})
	c.inflight = ch
	c.mu.Unlock()

	suggestions, err := c.fetch(ctx)

	c.mu.Lock()
	if err != nil {
		logging.Debug().Err(err).Msg("Suggestion fetch failed")
		c.last = nil
	} else {
		deduped := dedupe(suggestions)
		c.last = deduped
		if len(deduped) > 0 {
			c.cached = deduped
		}
	}
	out := c.last
	c.inflight = nil
	c.mu.Unlock()
	close(ch)

	return out
}

// dedupe drops suggestions that are near-duplicates of an earlier one.
// The backend occasionally returns the same idea with trivial rewording;
// edit distance under a quarter of the shorter string's length counts as
// the same suggestion.
func dedupe(suggestions []string) []string {
	var kept []string
	for _, s := range suggestions {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !isNearDuplicate(s, kept) {
			kept = append(kept, s)
		}
	}
	return kept
}

func isNearDuplicate(candidate string, kept []string) bool {
	lower := strings.ToLower(candidate)
	for _, k := range kept {
		other := strings.ToLower(k)
		threshold := min(len([]rune(lower)), len([]rune(other))) / 4
		if levenshtein.ComputeDistance(lower, other) <= threshold {
			return true
		}
	}
	return false
}
