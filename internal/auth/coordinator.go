// Package auth coordinates the browser-based claude.ai login flow: start
// login, open the login URL once, poll until the backend reports the
// session is active.
package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/familiar-ai/familiar/internal/logging"
	"github.com/familiar-ai/familiar/pkg/types"
)

// ErrLoginTimeout is returned when polling exhausts its attempts before
// the login completes.
var ErrLoginTimeout = errors.New("claude login did not complete in time")

const (
	// DefaultMaxAttempts bounds login polling at roughly two minutes.
	DefaultMaxAttempts = 120
	// DefaultPollDelay is the fixed delay between poll attempts.
	DefaultPollDelay = time.Second
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// Client is the subset of the sidecar API the coordinator needs.
type Client interface {
	StartLogin(ctx context.Context) (types.AuthState, error)
	Logout(ctx context.Context) (types.AuthState, error)
	FetchAuthStatus(ctx context.Context) (types.AuthState, error)
}

// Coordinator drives one login flow at a time. The open function is
// injected so tests can observe which URL would reach the browser.
type Coordinator struct {
	client Client
	open   func(url string) error

	mu            sync.Mutex
	inProgress    bool
	didOpenLogin  bool
	maxAttempts   int
	pollDelay     time.Duration
	statusHandler func(types.AuthState)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithOpener replaces the browser-open function.
func WithOpener(open func(url string) error) Option {
	return func(c *Coordinator) { c.open = open }
}

// WithPolling overrides the poll attempt budget and delay.
func WithPolling(maxAttempts int, delay time.Duration) Option {
	return func(c *Coordinator) {
		c.maxAttempts = maxAttempts
		c.pollDelay = delay
	}
}

// WithStatusHandler registers a callback invoked with each polled state.
func WithStatusHandler(fn func(types.AuthState)) Option {
	return func(c *Coordinator) { c.statusHandler = fn }
}

// NewCoordinator creates a Coordinator talking to client.
func NewCoordinator(client Client, opts ...Option) *Coordinator {
	c := &Coordinator{
		client:      client,
		open:        openBrowser,
		maxAttempts: DefaultMaxAttempts,
		pollDelay:   DefaultPollDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartLogin asks the backend to begin a login flow and returns its
// initial state, usually carrying the URL the user must visit.
func (c *Coordinator) StartLogin(ctx context.Context) (types.AuthState, error) {
	c.mu.Lock()
	c.inProgress = true
	c.didOpenLogin = false
	c.mu.Unlock()
	defer c.setInProgress(false)

	return c.client.StartLogin(ctx)
}

// SignOut logs out of claude.ai and returns the resulting state.
func (c *Coordinator) SignOut(ctx context.Context) (types.AuthState, error) {
	c.setInProgress(true)
	defer c.setInProgress(false)

	return c.client.Logout(ctx)
}

// RefreshStatus fetches the current authentication state.
func (c *Coordinator) RefreshStatus(ctx context.Context) (types.AuthState, error) {
	return c.client.FetchAuthStatus(ctx)
}

// PollForCompletion polls the backend until the login leaves the pending
// state. The first poll is immediate; each subsequent attempt waits the
// configured delay. Returns ErrLoginTimeout when the attempt budget runs
// out.
func (c *Coordinator) PollForCompletion(ctx context.Context) (types.AuthState, error) {
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.pollDelay):
			case <-ctx.Done():
				return types.AuthState{}, ctx.Err()
			}
		}

		state, err := c.RefreshStatus(ctx)
		if err != nil {
			return types.AuthState{}, err
		}
		if c.statusHandler != nil {
			c.statusHandler(state)
		}

		if !state.IsPending() {
			logging.Info().Bool("active", state.Active).Str("account", state.Account).
				Msg("Claude login polling finished")
			return state, nil
		}
	}

	return types.AuthState{}, ErrLoginTimeout
}

// OpenLoginURL opens the login URL in the browser at most once per flow.
// It prefers the explicit loginUrl field and falls back to the first URL
// embedded in the state's message. Reports whether a URL was opened.
func (c *Coordinator) OpenLoginURL(state types.AuthState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.didOpenLogin {
		return false
	}

	url := state.LoginURL
	if url == "" && !state.Active {
		url = strings.TrimSpace(urlPattern.FindString(state.Message))
	}
	if url == "" {
		return false
	}

	if err := c.open(url); err != nil {
		logging.Warn().Err(err).Str("url", url).Msg("Failed to open login URL")
		return false
	}
	c.didOpenLogin = true
	return true
}

// Reset clears flow state so a fresh login can open the browser again.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.didOpenLogin = false
	c.inProgress = false
	c.mu.Unlock()
}

// InProgress reports whether a login or logout call is running.
func (c *Coordinator) InProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inProgress
}

func (c *Coordinator) setInProgress(v bool) {
	c.mu.Lock()
	c.inProgress = v
	c.mu.Unlock()
}
