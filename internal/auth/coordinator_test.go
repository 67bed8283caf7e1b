package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/familiar-ai/familiar/pkg/types"
)

func boolPtr(v bool) *bool { return &v }

// fakeClient scripts the auth endpoints.
type fakeClient struct {
	startState  types.AuthState
	startErr    error
	logoutState types.AuthState
	statuses    []types.AuthState
	statusErr   error
	statusCalls int
}

func (f *fakeClient) StartLogin(ctx context.Context) (types.AuthState, error) {
	return f.startState, f.startErr
}

func (f *fakeClient) Logout(ctx context.Context) (types.AuthState, error) {
	return f.logoutState, nil
}

func (f *fakeClient) FetchAuthStatus(ctx context.Context) (types.AuthState, error) {
	if f.statusErr != nil {
		return types.AuthState{}, f.statusErr
	}
	i := f.statusCalls
	f.statusCalls++
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return f.statuses[i], nil
}

func TestPollForCompletion_FirstPollImmediate(t *testing.T) {
	client := &fakeClient{
		statuses: []types.AuthState{{Active: true, Account: "user@example.com"}},
	}
	// A long delay would hang the test if the first poll waited.
	c := NewCoordinator(client, WithPolling(3, time.Hour))

	start := time.Now()
	state, err := c.PollForCompletion(context.Background())
	require.NoError(t, err)
	assert.True(t, state.Active)
	assert.Equal(t, "user@example.com", state.Account)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, client.statusCalls)
}

func TestPollForCompletion_ResolvesAfterPending(t *testing.T) {
	client := &fakeClient{
		statuses: []types.AuthState{
			{Pending: boolPtr(true)},
			{Pending: boolPtr(true)},
			{Active: true},
		},
	}
	var seen []types.AuthState
	c := NewCoordinator(client,
		WithPolling(10, time.Millisecond),
		WithStatusHandler(func(s types.AuthState) { seen = append(seen, s) }),
	)

	state, err := c.PollForCompletion(context.Background())
	require.NoError(t, err)
	assert.True(t, state.Active)
	assert.Equal(t, 3, client.statusCalls)
	assert.Len(t, seen, 3)
}

func TestPollForCompletion_Timeout(t *testing.T) {
	client := &fakeClient{
		statuses: []types.AuthState{{Pending: boolPtr(true)}},
	}
	c := NewCoordinator(client, WithPolling(3, time.Millisecond))

	_, err := c.PollForCompletion(context.Background())
	assert.ErrorIs(t, err, ErrLoginTimeout)
	assert.Equal(t, 3, client.statusCalls)
}

func TestPollForCompletion_StatusErrorSurfaces(t *testing.T) {
	client := &fakeClient{statusErr: errors.New("sidecar unreachable")}
	c := NewCoordinator(client, WithPolling(3, time.Millisecond))

	_, err := c.PollForCompletion(context.Background())
	assert.ErrorContains(t, err, "sidecar unreachable")
}

func TestPollForCompletion_ContextCancel(t *testing.T) {
	client := &fakeClient{
		statuses: []types.AuthState{{Pending: boolPtr(true)}},
	}
	c := NewCoordinator(client, WithPolling(100, 50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.PollForCompletion(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenLoginURL_ExplicitURL(t *testing.T) {
	var opened []string
	c := NewCoordinator(&fakeClient{}, WithOpener(func(url string) error {
		opened = append(opened, url)
		return nil
	}))

	state := types.AuthState{LoginURL: "https://claude.ai/login?code=abc"}
	assert.True(t, c.OpenLoginURL(state))
	assert.Equal(t, []string{"https://claude.ai/login?code=abc"}, opened)

	// At most once per flow.
	assert.False(t, c.OpenLoginURL(state))
	assert.Len(t, opened, 1)
}

func TestOpenLoginURL_FallbackFromMessage(t *testing.T) {
	var opened []string
	c := NewCoordinator(&fakeClient{}, WithOpener(func(url string) error {
		opened = append(opened, url)
		return nil
	}))

	state := types.AuthState{Message: "Visit https://claude.ai/oauth/xyz to sign in"}
	assert.True(t, c.OpenLoginURL(state))
	assert.Equal(t, []string{"https://claude.ai/oauth/xyz"}, opened)
}

func TestOpenLoginURL_NoURL(t *testing.T) {
	c := NewCoordinator(&fakeClient{}, WithOpener(func(string) error { return nil }))

	assert.False(t, c.OpenLoginURL(types.AuthState{Message: "still waiting"}))
	// An already-active state never opens a browser from its message.
	assert.False(t, c.OpenLoginURL(types.AuthState{Active: true, Message: "see https://claude.ai"}))
}

func TestOpenLoginURL_ResetAllowsReopen(t *testing.T) {
	var opened int
	c := NewCoordinator(&fakeClient{}, WithOpener(func(string) error {
		opened++
		return nil
	}))

	state := types.AuthState{LoginURL: "https://claude.ai/login"}
	assert.True(t, c.OpenLoginURL(state))
	c.Reset()
	assert.True(t, c.OpenLoginURL(state))
	assert.Equal(t, 2, opened)
}

func TestStartLogin_ClearsOpenFlag(t *testing.T) {
	var opened int
	client := &fakeClient{startState: types.AuthState{LoginURL: "https://claude.ai/login"}}
	c := NewCoordinator(client, WithOpener(func(string) error {
		opened++
		return nil
	}))

	state, err := c.StartLogin(context.Background())
	require.NoError(t, err)
	assert.True(t, c.OpenLoginURL(state))

	// A second StartLogin begins a fresh flow.
	state, err = c.StartLogin(context.Background())
	require.NoError(t, err)
	assert.True(t, c.OpenLoginURL(state))
	assert.Equal(t, 2, opened)
	assert.False(t, c.InProgress())
}
