package types

// Settings is the sidecar's settings document.
//
// Schema contract: field names mirror the backend's JSON serialization.
type Settings struct {
	HasAPIKey        bool                `json:"hasApiKey"`
	HasClaudeSession bool                `json:"hasClaudeSession"`
	Workspace        string              `json:"workspace,omitempty"`
	WorkspaceDemo    string              `json:"workspaceDemoFile,omitempty"`
	AlwaysAllow      map[string][]string `json:"alwaysAllow,omitempty"`
	DefaultWorkspace string              `json:"defaultWorkspace,omitempty"`
	AuthMode         string              `json:"authMode,omitempty"` // "api_key" | "claude_ai"
	ClaudeAccount    string              `json:"claudeAccountEmail,omitempty"`
}

// IsClaudeLoginMode reports whether browser-based claude.ai auth is in use.
func (s Settings) IsClaudeLoginMode() bool {
	return s.AuthMode == "claude_ai"
}

// IsAuthenticated reports whether the active auth mode has credentials.
func (s Settings) IsAuthenticated() bool {
	if s.IsClaudeLoginMode() {
		return s.HasClaudeSession
	}
	return s.HasAPIKey
}

// ConnectedAccountLabel returns the signed-in account for display, or ""
// when not applicable (API key mode has no account identity).
func (s Settings) ConnectedAccountLabel() string {
	if s.IsClaudeLoginMode() {
		return s.ClaudeAccount
	}
	return ""
}

// SettingsUpdate carries the writable subset of Settings for POST /settings.
// Nil fields are omitted so the backend only touches what the caller set.
type SettingsUpdate struct {
	APIKey    *string `json:"anthropic_api_key,omitempty"`
	Workspace *string `json:"workspace,omitempty"`
	AuthMode  *string `json:"auth_mode,omitempty"`
}

// Health is the backend's GET /health response.
type Health struct {
	Status  string   `json:"status"` // "initializing" | "ready" | "degraded"
	Missing []string `json:"missing,omitempty"`
}

// Ready reports whether the backend finished initialization with all
// prerequisites present.
func (h Health) Ready() bool {
	return h.Status == "ready"
}

// AuthState is the response shape of the /auth/claude endpoints.
type AuthState struct {
	Active   bool   `json:"active"`
	Account  string `json:"account,omitempty"`
	Message  string `json:"message,omitempty"`
	LoginURL string `json:"loginUrl,omitempty"`
	Pending  *bool  `json:"pending,omitempty"`
}

// IsPending reports whether the login flow is still waiting on the browser.
func (a AuthState) IsPending() bool {
	return a.Pending != nil && *a.Pending
}
