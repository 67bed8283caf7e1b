// Package testutil provides a scriptable fake sidecar backend for
// integration tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// Approval records one POST /approve call.
type Approval struct {
	RequestID string `json:"request_id"`
	Decision  string `json:"decision"`
	Remember  bool   `json:"remember"`
}

// TurnScript produces the SSE records for one /query request. send writes
// one record; done closes when the client disconnects.
type TurnScript func(send func(record string), prompt string, done <-chan struct{})

// FakeSidecar is an in-process stand-in for the backend: scriptable
// streaming turns plus canned discrete endpoints.
type FakeSidecar struct {
	srv *httptest.Server

	mu            sync.Mutex
	script        TurnScript
	settings      map[string]any
	health        map[string]any
	suggestions   []string
	authPending   int // polls remaining before login completes
	authAccount   string
	loginURL      string
	approvals     chan Approval
	approveStatus int
	prompts       []string
}

// StartFakeSidecar launches the fake backend. Stop it with Stop.
func StartFakeSidecar() *FakeSidecar {
	f := &FakeSidecar{
		settings:      map[string]any{"hasApiKey": true},
		health:        map[string]any{"status": "ready"},
		approvals:     make(chan Approval, 32),
		approveStatus: http.StatusOK,
		authAccount:   "user@example.com",
		loginURL:      "https://claude.ai/login/test",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/query", f.handleQuery)
	mux.HandleFunc("/approve", f.handleApprove)
	mux.HandleFunc("/settings", f.handleSettings)
	mux.HandleFunc("/health", f.handleJSON(func() any { return f.health }))
	mux.HandleFunc("/zero-state/suggestions", f.handleJSON(func() any {
		return map[string]any{"suggestions": f.suggestions}
	}))
	mux.HandleFunc("/auth/claude/login", f.handleLogin)
	mux.HandleFunc("/auth/claude/logout", f.handleLogout)
	mux.HandleFunc("/auth/claude/status", f.handleAuthStatus)

	f.srv = httptest.NewServer(mux)
	return f
}

// BaseURL returns the fake backend's address.
func (f *FakeSidecar) BaseURL() string { return f.srv.URL }

// Stop shuts the server down.
func (f *FakeSidecar) Stop() { f.srv.Close() }

// ScriptTurn sets the handler for the next /query requests.
func (f *FakeSidecar) ScriptTurn(script TurnScript) {
	f.mu.Lock()
	f.script = script
	f.mu.Unlock()
}

// Approvals exposes recorded /approve calls.
func (f *FakeSidecar) Approvals() <-chan Approval { return f.approvals }

// SetSuggestions sets the zero-state payload.
func (f *FakeSidecar) SetSuggestions(items []string) {
	f.mu.Lock()
	f.suggestions = items
	f.mu.Unlock()
}

// SetSettings replaces the settings document.
func (f *FakeSidecar) SetSettings(doc map[string]any) {
	f.mu.Lock()
	f.settings = doc
	f.mu.Unlock()
}

// SetAuthPending makes the login flow report pending for n status polls
// before turning active.
func (f *FakeSidecar) SetAuthPending(n int) {
	f.mu.Lock()
	f.authPending = n
	f.mu.Unlock()
}

// Prompts returns every prompt received so far.
func (f *FakeSidecar) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func (f *FakeSidecar) handleQuery(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt    string `json:"prompt"`
		SessionID string `json:"session_id"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.prompts = append(f.prompts, body.Prompt)
	script := f.script
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	flusher := w.(http.Flusher)
	send := func(record string) {
		fmt.Fprintf(w, "data: %s\n\n", record)
		flusher.Flush()
	}
	if script != nil {
		script(send, body.Prompt, r.Context().Done())
	}
}

func (f *FakeSidecar) handleApprove(w http.ResponseWriter, r *http.Request) {
	var a Approval
	json.NewDecoder(r.Body).Decode(&a)
	f.approvals <- a

	f.mu.Lock()
	status := f.approveStatus
	f.mu.Unlock()
	w.WriteHeader(status)
}

func (f *FakeSidecar) handleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var update map[string]any
		json.NewDecoder(r.Body).Decode(&update)
		f.mu.Lock()
		if ws, ok := update["workspace"].(string); ok {
			f.settings["workspace"] = ws
		}
		f.mu.Unlock()
	}
	f.handleJSON(func() any { return f.settings })(w, r)
}

func (f *FakeSidecar) handleJSON(payload func() any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(payload())
	}
}

func (f *FakeSidecar) handleLogin(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pending := true
	json.NewEncoder(w).Encode(map[string]any{
		"active":   false,
		"pending":  pending,
		"loginUrl": f.loginURL,
		"message":  "Visit " + f.loginURL + " to sign in",
	})
}

func (f *FakeSidecar) handleLogout(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]any{"active": false})
}

func (f *FakeSidecar) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.authPending > 0 {
		f.authPending--
		pending := true
		json.NewEncoder(w).Encode(map[string]any{"active": false, "pending": pending})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"active": true, "account": f.authAccount})
}
