package zerostate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_FetchesOnce(t *testing.T) {
	var calls int32
	c := NewCache(func(ctx context.Context) ([]string, error) {
		atomic.AddInt32(&calls, 1)
		return []string{"Summarize my notes", "Clean up downloads"}, nil
	})

	ctx := context.Background()
	first := c.Get(ctx)
	second := c.Get(ctx)

	assert.Equal(t, []string{"Summarize my notes", "Clean up downloads"}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCache_SingleFlight(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	c := NewCache(func(ctx context.Context) ([]string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []string{"Organize photos"}, nil
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	results := make([][]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Get(ctx)
		}(i)
	}

	// Give the goroutines time to pile onto the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "concurrent gets share one fetch")
	for _, r := range results {
		assert.Equal(t, []string{"Organize photos"}, r)
	}
}

func TestCache_ErrorReturnsEmptyAndRetries(t *testing.T) {
	var calls int32
	c := NewCache(func(ctx context.Context) ([]string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("sidecar unreachable")
		}
		return []string{"Find large files"}, nil
	})

	ctx := context.Background()
	assert.Empty(t, c.Get(ctx))

	// Errors are not cached; the next call tries again.
	assert.Equal(t, []string{"Find large files"}, c.Get(ctx))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCache_EmptyResultNotCached(t *testing.T) {
	var calls int32
	c := NewCache(func(ctx context.Context) ([]string, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	})

	ctx := context.Background()
	c.Get(ctx)
	c.Get(ctx)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCache_Prewarm(t *testing.T) {
	var calls int32
	c := NewCache(func(ctx context.Context) ([]string, error) {
		atomic.AddInt32(&calls, 1)
		return []string{"Tidy my desktop"}, nil
	})

	ctx := context.Background()
	c.Prewarm(ctx)
	assert.Equal(t, []string{"Tidy my desktop"}, c.Get(ctx))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDedupe(t *testing.T) {
	got := dedupe([]string{
		"Summarize my notes",
		"Summarize my note",  // near-duplicate, one edit away
		"Clean up downloads", // distinct
		"  ",                 // blank
		"clean up Downloads", // case-insensitive duplicate
	})
	assert.Equal(t, []string{"Summarize my notes", "Clean up downloads"}, got)
}

func TestDedupe_KeepsDistinctShortStrings(t *testing.T) {
	// Short strings have a zero threshold, so only exact matches collapse.
	got := dedupe([]string{"ls", "cd", "ls"})
	assert.Equal(t, []string{"ls", "cd"}, got)
}
