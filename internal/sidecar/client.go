package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/familiar-ai/familiar/internal/logging"
	"github.com/familiar-ai/familiar/internal/sse"
)

// DefaultBaseURL is the fixed local address of the sidecar backend.
const DefaultBaseURL = "http://127.0.0.1:8765"

// Client talks to the sidecar over HTTP: one streaming operation for
// prompts plus conventional request/response operations.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// NewClient creates a sidecar client for the given base URL. An empty URL
// selects the default local address.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: baseURL,
		// No overall timeout: the streaming response stays open for the
		// whole turn. Discrete operations bound themselves via context.
		httpc: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string { return c.baseURL }

// EventStream is a cancellable sequence of decoded events from one /query
// request. Iterate with Next/Current; after Next returns false, Err reports
// the terminal transport failure, if any.
type EventStream struct {
	events  chan Event
	current Event
	err     error
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// Next blocks until the next decoded event arrives. It returns false when
// the stream is exhausted, failed, or cancelled.
func (s *EventStream) Next() bool {
	ev, ok := <-s.events
	if !ok {
		return false
	}
	s.current = ev
	return true
}

// Current returns the event produced by the last successful Next.
func (s *EventStream) Current() Event { return s.current }

// Err returns the terminal error, nil for clean completion or cancellation.
// Valid only after Next has returned false.
func (s *EventStream) Err() error {
	<-s.done
	return s.err
}

// Close cancels the underlying HTTP request and releases the connection.
// Safe to call multiple times and concurrently with Next.
func (s *EventStream) Close() {
	s.once.Do(func() {
		s.cancel()
		// Drain so the producer goroutine can exit if it is mid-send.
		go func() {
			for range s.events {
			}
		}()
	})
}

// Stream opens one streaming turn: POST /query with the prompt, decoding
// each SSE record into an event. Records that fail to decode are dropped,
// not surfaced.
func (c *Client) Stream(ctx context.Context, prompt, sessionID string) (*EventStream, error) {
	body, err := json.Marshal(map[string]string{
		"prompt":     prompt,
		"session_id": sessionID,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpc.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, &HTTPError{Status: resp.StatusCode, Message: string(data)}
	}

	stream := &EventStream{
		events: make(chan Event, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer resp.Body.Close()
		readErr := sse.Read(ctx, resp.Body, func(record string) {
			ev, ok := Decode(record)
			if !ok {
				logging.Debug().Str("record", record).Msg("dropped undecodable stream record")
				return
			}
			select {
			case stream.events <- ev:
			case <-ctx.Done():
			}
		})
		stream.err = readErr
		close(stream.done)
		close(stream.events)
	}()

	return stream, nil
}

// WaitUntilReady polls GET /health with exponential backoff until the
// backend reports ready, the retries are exhausted, or ctx is cancelled.
func (c *Client) WaitUntilReady(ctx context.Context, maxElapsed time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = maxElapsed

	return backoff.Retry(func() error {
		health, err := c.HealthCheck(ctx)
		if err != nil {
			return err
		}
		if !health.Ready() {
			return fmt.Errorf("backend %s", health.Status)
		}
		return nil
	}, backoff.WithContext(b, ctx))
}
