package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/familiar-ai/familiar/pkg/types"
)

// HTTPError is a non-2xx response from a discrete sidecar operation.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("sidecar error (%d): %s", e.Status, e.Message)
}

// Approval decisions accepted by POST /approve.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Approve answers a pending permission request. A 2xx here only means the
// backend accepted the answer; the actual outcome arrives later as a
// permission_resolution event on the open stream.
func (c *Client) Approve(ctx context.Context, requestID, decision string, remember bool) error {
	payload := map[string]any{
		"request_id": requestID,
		"decision":   decision,
	}
	if remember {
		payload["remember"] = true
	}
	return c.doJSON(ctx, http.MethodPost, "/approve", payload, nil)
}

// FetchSettings retrieves the backend settings document.
func (c *Client) FetchSettings(ctx context.Context) (types.Settings, error) {
	var settings types.Settings
	err := c.doJSON(ctx, http.MethodGet, "/settings", nil, &settings)
	return settings, err
}

// UpdateSettings applies a partial settings update and returns the new
// settings document.
func (c *Client) UpdateSettings(ctx context.Context, update types.SettingsUpdate) (types.Settings, error) {
	var settings types.Settings
	err := c.doJSON(ctx, http.MethodPost, "/settings", update, &settings)
	return settings, err
}

// HealthCheck queries the backend health endpoint.
func (c *Client) HealthCheck(ctx context.Context) (types.Health, error) {
	var health types.Health
	err := c.doJSON(ctx, http.MethodGet, "/health", nil, &health)
	return health, err
}

// StartLogin begins the browser-based claude.ai login flow.
func (c *Client) StartLogin(ctx context.Context) (types.AuthState, error) {
	var state types.AuthState
	err := c.doJSON(ctx, http.MethodPost, "/auth/claude/login", struct{}{}, &state)
	return state, err
}

// Logout ends the claude.ai session.
func (c *Client) Logout(ctx context.Context) (types.AuthState, error) {
	var state types.AuthState
	err := c.doJSON(ctx, http.MethodPost, "/auth/claude/logout", struct{}{}, &state)
	return state, err
}

// FetchAuthStatus returns the current claude.ai auth state.
func (c *Client) FetchAuthStatus(ctx context.Context) (types.AuthState, error) {
	var state types.AuthState
	err := c.doJSON(ctx, http.MethodGet, "/auth/claude/status", nil, &state)
	return state, err
}

// FetchSuggestions retrieves zero-state prompt suggestions.
func (c *Client) FetchSuggestions(ctx context.Context) ([]string, error) {
	var resp struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/zero-state/suggestions", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Suggestions, nil
}

// doJSON performs one request/response operation. A non-2xx status becomes
// an HTTPError carrying the response body as its message; connection
// failures pass through as transport errors.
func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := string(data)
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return &HTTPError{Status: resp.StatusCode, Message: message}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", path, err)
		}
	}
	return nil
}
