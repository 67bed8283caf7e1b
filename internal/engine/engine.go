// Package engine holds the session state machine: it owns one streaming
// turn at a time, dispatches decoded events into transcript, tool summary,
// permission and usage state, and publishes every externally visible
// change on the notification bus.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/familiar-ai/familiar/internal/approve"
	"github.com/familiar-ai/familiar/internal/event"
	"github.com/familiar-ai/familiar/internal/logging"
	"github.com/familiar-ai/familiar/internal/reveal"
	"github.com/familiar-ai/familiar/internal/sidecar"
	"github.com/familiar-ai/familiar/internal/store"
	"github.com/familiar-ai/familiar/pkg/types"
)

// Defaults for the engine's timers.
const (
	// DefaultInactivityThreshold is how long a session may sit idle before
	// the sweep archives it.
	DefaultInactivityThreshold = 30 * time.Minute
	// DefaultResolutionTimeout bounds the wait for a permission_resolution
	// event after a successful approve call.
	DefaultResolutionTimeout = 30 * time.Second
)

// Paste preview thresholds. Pasted input past either limit is shown as a
// placeholder instead of flooding the prompt line.
const (
	pastePreviewMaxLines = 20
	pastePreviewMaxChars = 1000
)

const deniedMessage = "Permission denied. The assistant stopped."

// Client is the subset of the sidecar API the engine drives.
type Client interface {
	Stream(ctx context.Context, prompt, sessionID string) (*sidecar.EventStream, error)
	Approve(ctx context.Context, requestID, decision string, remember bool) error
}

// SnapshotStore persists the archived-session snapshot.
type SnapshotStore interface {
	SaveSnapshot(types.SessionSnapshot) error
	LoadSnapshot() (types.SessionSnapshot, error)
	ClearSnapshot() error
}

// Config tunes engine behavior. The zero value selects defaults with the
// typewriter effect enabled.
type Config struct {
	// DisableTypewriter appends assistant text straight to the transcript
	// instead of rate-limiting it through the reveal buffer.
	DisableTypewriter bool
	// TypewriterInterval overrides the reveal drain tick, mainly for tests.
	TypewriterInterval time.Duration
	InactivityThreshold time.Duration
	ResolutionTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.InactivityThreshold <= 0 {
		c.InactivityThreshold = DefaultInactivityThreshold
	}
	if c.ResolutionTimeout <= 0 {
		c.ResolutionTimeout = DefaultResolutionTimeout
	}
	if c.TypewriterInterval <= 0 {
		c.TypewriterInterval = reveal.DefaultInterval
	}
	return c
}

// Engine serializes all session state behind one mutex. The stream reader
// and the reveal drain loop run on their own goroutines and funnel back
// through it; a turn generation counter keeps stale goroutines from
// touching state after cancel-then-replace.
type Engine struct {
	client Client
	store  SnapshotStore
	bus    *event.Bus
	cfg    Config
	now    func() time.Time

	buffer *reveal.Buffer

	mu                     sync.Mutex
	turn                   int64
	sessionID              string
	cancelStream           context.CancelFunc
	stream                 *sidecar.EventStream
	isStreaming            bool
	isProcessingPermission bool
	lastActivityAt         time.Time
	pending                *approve.Request
	toolSummary            *types.ToolSummary
	usage                  types.UsageTotals
	lastUsage              *types.UsageTotals
	transcript             strings.Builder
	errorMsg               string
	promptPreview          string
	snapshot               *types.SessionSnapshot
	settings               types.Settings
	resolutionTimer        *time.Timer
}

// New creates an Engine. The store may be nil when persistence is
// unwanted; archived snapshots then live in memory only.
func New(client Client, snapshots SnapshotStore, bus *event.Bus, cfg Config) *Engine {
	e := &Engine{
		client:    client,
		store:     snapshots,
		bus:       bus,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		sessionID: sidecar.NewSessionID(),
	}
	e.lastActivityAt = e.now()
	e.buffer = reveal.New(e.appendTranscript, reveal.WithInterval(e.cfg.TypewriterInterval))
	return e
}

// SetSettings updates the settings used for always-allow pre-checks.
func (e *Engine) SetSettings(s types.Settings) {
	e.mu.Lock()
	e.settings = s
	e.mu.Unlock()
}

// SessionID returns the backend session identifier for this engine.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// Submit starts a new turn. An empty prompt is a no-op. If a stream is
// already active it is cancelled first; the last submit always wins and
// turns never run concurrently.
func (e *Engine) Submit(ctx context.Context, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil
	}

	e.mu.Lock()
	e.turn++
	gen := e.turn
	cancel, old := e.cancelStream, e.stream
	e.cancelStream, e.stream = nil, nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		old.Close()
	}
	e.buffer.Flush()

	e.mu.Lock()
	e.transcript.Reset()
	e.toolSummary = nil
	e.errorMsg = ""
	e.pending = nil
	e.isProcessingPermission = false
	e.lastUsage = nil
	e.promptPreview = ""
	e.stopResolutionTimerLocked()
	e.isStreaming = true
	e.lastActivityAt = e.now()
	sessionID := e.sessionID
	e.mu.Unlock()

	e.bus.PublishSync(event.Event{Type: event.TranscriptUpdated, Data: event.TranscriptData{}})
	e.bus.PublishSync(event.Event{Type: event.ToolSummaryUpdated, Data: event.ToolSummaryData{}})
	e.bus.PublishSync(event.Event{Type: event.StreamStateChanged, Data: event.StreamStateData{Streaming: true}})

	streamCtx, cancelStream := context.WithCancel(ctx)
	stream, err := e.client.Stream(streamCtx, prompt, sessionID)
	if err != nil {
		cancelStream()
		e.failTurn(gen, fmt.Sprintf("Could not reach the assistant: %v", err))
		return err
	}

	e.mu.Lock()
	if gen != e.turn {
		// A newer submit raced in while the request was opening.
		e.mu.Unlock()
		cancelStream()
		stream.Close()
		return nil
	}
	e.cancelStream = cancelStream
	e.stream = stream
	e.mu.Unlock()

	go e.consume(gen, stream)
	return nil
}

// Cancel stops the active stream. The turn ends without an error message
// and any buffered text is flushed onto the transcript.
func (e *Engine) Cancel() {
	e.mu.Lock()
	e.turn++
	cancel, stream := e.cancelStream, e.stream
	e.cancelStream, e.stream = nil, nil
	wasStreaming := e.isStreaming
	e.isStreaming = false
	e.promptPreview = ""
	e.pending = nil
	e.isProcessingPermission = false
	e.stopResolutionTimerLocked()
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		stream.Close()
	}
	e.buffer.Flush()

	if wasStreaming {
		e.bus.PublishSync(event.Event{Type: event.StreamStateChanged, Data: event.StreamStateData{Streaming: false}})
	}
}

// RespondToPermission answers a pending approval. A no-op while an earlier
// answer is still processing. On failure the processing flag is released
// before returning so the approval control never wedges.
func (e *Engine) RespondToPermission(ctx context.Context, req approve.Request, decision string, remember bool) error {
	e.mu.Lock()
	if e.isProcessingPermission {
		e.mu.Unlock()
		return nil
	}
	e.isProcessingPermission = true
	gen := e.turn
	e.mu.Unlock()

	sent := false
	defer func() {
		if !sent {
			e.mu.Lock()
			e.isProcessingPermission = false
			e.mu.Unlock()
		}
	}()

	if err := e.client.Approve(ctx, req.ID, decision, remember); err != nil {
		e.mu.Lock()
		e.errorMsg = fmt.Sprintf("Could not send the approval: %v", err)
		msg := e.errorMsg
		e.mu.Unlock()
		e.bus.PublishSync(event.Event{Type: event.SessionError, Data: event.ErrorData{Message: msg}})
		return err
	}
	sent = true

	// The decision is sent; drop the pending request optimistically. The
	// processing flag stays up until the resolution event lands, bounded
	// by a timer in case it never does.
	e.mu.Lock()
	cleared := e.pending
	e.pending = nil
	e.startResolutionTimerLocked(gen)
	e.mu.Unlock()

	if cleared != nil {
		e.bus.PublishSync(event.Event{Type: event.PermissionCleared, Data: event.PermissionData{Request: *cleared}})
	}
	return nil
}

// EvaluateInactivityReset archives the session if it has a transcript and
// has been idle past the threshold. Accumulated usage totals survive the
// reset; they are lifetime spend, not conversation state. Returns whether
// an archive happened. Safe to call repeatedly.
func (e *Engine) EvaluateInactivityReset() bool {
	e.mu.Lock()
	if e.transcript.Len() == 0 || e.now().Sub(e.lastActivityAt) < e.cfg.InactivityThreshold {
		e.mu.Unlock()
		return false
	}

	e.turn++
	cancel, stream := e.cancelStream, e.stream
	e.cancelStream, e.stream = nil, nil

	snap := types.SessionSnapshot{
		Transcript:  e.transcript.String(),
		ToolSummary: e.toolSummary,
		UsageTotals: e.usage,
		LastUsage:   e.lastUsage,
		SavedAt:     e.now(),
	}
	e.snapshot = &snap

	e.transcript.Reset()
	e.toolSummary = nil
	e.errorMsg = ""
	e.isStreaming = false
	e.promptPreview = ""
	e.pending = nil
	e.isProcessingPermission = false
	e.stopResolutionTimerLocked()
	// A fresh conversation gets a fresh backend session.
	e.sessionID = sidecar.NewSessionID()
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		stream.Close()
	}
	e.buffer.Flush()

	// Reset again: the flush above may have re-appended leftover backlog.
	e.mu.Lock()
	e.transcript.Reset()
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.SaveSnapshot(snap); err != nil {
			// The in-memory snapshot stays usable for resume either way.
			logging.Warn().Err(err).Msg("Failed to persist session snapshot")
		}
	}

	e.bus.PublishSync(event.Event{Type: event.SessionArchived, Data: event.ArchivedData{SavedAt: snap.SavedAt}})
	return true
}

// ResumePrevious restores the archived snapshot, preferring the in-memory
// copy and falling back to the persisted one. Returns false when there is
// nothing to resume.
func (e *Engine) ResumePrevious() bool {
	e.mu.Lock()
	snap := e.snapshot
	e.mu.Unlock()

	if snap == nil && e.store != nil {
		loaded, err := e.store.LoadSnapshot()
		if err != nil {
			if err != store.ErrNotFound {
				logging.Warn().Err(err).Msg("Failed to load session snapshot")
			}
			return false
		}
		snap = &loaded
	}
	if snap == nil {
		return false
	}

	e.mu.Lock()
	e.transcript.Reset()
	e.transcript.WriteString(snap.Transcript)
	e.toolSummary = snap.ToolSummary
	e.usage = snap.UsageTotals
	e.lastUsage = snap.LastUsage
	e.snapshot = nil
	e.errorMsg = ""
	e.lastActivityAt = e.now()
	full := e.transcript.String()
	usage, lastUsage := e.usage, e.lastUsage
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.ClearSnapshot(); err != nil {
			logging.Warn().Err(err).Msg("Failed to clear persisted snapshot")
		}
	}

	e.bus.PublishSync(event.Event{Type: event.SessionResumed, Data: event.ResumedData{Snapshot: *snap}})
	e.bus.PublishSync(event.Event{Type: event.TranscriptUpdated, Data: event.TranscriptData{Transcript: full}})
	if lastUsage != nil || usage.HasData() {
		last := types.UsageTotals{}
		if lastUsage != nil {
			last = *lastUsage
		}
		e.bus.PublishSync(event.Event{Type: event.UsageUpdated, Data: event.UsageData{Session: usage, LastTurn: last}})
	}
	return true
}

// HandlePaste sets a placeholder preview for oversized pasted input and
// returns it; small pastes return "" and are used verbatim.
func (e *Engine) HandlePaste(text string) string {
	lines := strings.Count(text, "\n") + 1
	if lines <= pastePreviewMaxLines && len(text) <= pastePreviewMaxChars {
		return ""
	}
	preview := fmt.Sprintf("[Pasted %d lines]", lines)
	e.mu.Lock()
	e.promptPreview = preview
	e.mu.Unlock()
	return preview
}

// BeginEditingPrompt clears any paste preview; the user is typing again.
func (e *Engine) BeginEditingPrompt() {
	e.mu.Lock()
	e.promptPreview = ""
	e.mu.Unlock()
}

// consume drains one stream, dispatching each event, then finalizes the
// turn. A stale generation means a newer submit or cancel took over.
func (e *Engine) consume(gen int64, stream *sidecar.EventStream) {
	for stream.Next() {
		e.dispatch(gen, stream.Current())
	}
	err := stream.Err()

	e.mu.Lock()
	if gen != e.turn {
		e.mu.Unlock()
		return
	}
	e.cancelStream, e.stream = nil, nil
	wasStreaming := e.isStreaming
	e.isStreaming = false
	if err != nil && wasStreaming {
		e.errorMsg = fmt.Sprintf("Connection to the assistant was lost: %v", err)
	}
	msg := e.errorMsg
	e.mu.Unlock()

	// A result or error event already finalized the turn and registered
	// its own finish callback; calling Finish again would displace it.
	if !wasStreaming {
		return
	}

	streamErr := err
	e.flushOrFinish(err == nil, func() {
		if streamErr != nil {
			e.bus.PublishSync(event.Event{Type: event.SessionError, Data: event.ErrorData{Message: msg}})
		}
		e.bus.PublishSync(event.Event{Type: event.StreamStateChanged, Data: event.StreamStateData{Streaming: false}})
	})
}

// dispatch applies one decoded event to session state.
func (e *Engine) dispatch(gen int64, ev sidecar.Event) {
	e.mu.Lock()
	if gen != e.turn {
		e.mu.Unlock()
		return
	}
	e.lastActivityAt = e.now()

	switch ev := ev.(type) {
	case sidecar.AssistantText:
		if e.cfg.DisableTypewriter {
			e.transcript.WriteString(ev.Text)
			full := e.transcript.String()
			e.mu.Unlock()
			e.bus.PublishSync(event.Event{Type: event.TranscriptUpdated, Data: event.TranscriptData{Transcript: full, Delta: ev.Text}})
		} else {
			e.mu.Unlock()
			e.buffer.Enqueue(ev.Text)
		}

	case sidecar.ToolUse:
		e.mu.Unlock()
		logging.Debug().Str("tool", ev.ToolName).Msg("Tool started")

	case sidecar.ToolResult:
		if ev.ToolUseID == "" {
			e.mu.Unlock()
			return
		}
		summary := &types.ToolSummary{
			ToolUseID: ev.ToolUseID,
			Path:      ev.Path,
			Snippet:   ev.Snippet,
			Content:   ev.Content,
			IsError:   ev.IsError,
		}
		e.toolSummary = summary
		e.mu.Unlock()
		e.bus.PublishSync(event.Event{Type: event.ToolSummaryUpdated, Data: event.ToolSummaryData{Summary: summary}})

	case sidecar.PermissionRequest:
		e.handlePermissionRequestLocked(ev)

	case sidecar.PermissionResolution:
		e.pending = nil
		e.isProcessingPermission = false
		e.stopResolutionTimerLocked()
		denied := ev.Decision == sidecar.DecisionDeny
		if denied {
			e.errorMsg = deniedMessage
			e.isStreaming = false
		}
		e.mu.Unlock()

		e.bus.PublishSync(event.Event{Type: event.PermissionCleared, Data: event.PermissionData{}})
		if denied {
			e.finishReveal(func() {
				e.bus.PublishSync(event.Event{Type: event.SessionError, Data: event.ErrorData{Message: deniedMessage}})
				e.bus.PublishSync(event.Event{Type: event.StreamStateChanged, Data: event.StreamStateData{Streaming: false}})
			})
		}

	case sidecar.Result:
		delta, ok := types.ParseUsage(ev.Usage, ev.Cost)
		if ok {
			e.usage = e.usage.Add(delta)
			e.lastUsage = &delta
		}
		usage := e.usage
		e.isStreaming = false
		e.mu.Unlock()

		e.finishReveal(func() {
			if ok {
				e.bus.PublishSync(event.Event{Type: event.UsageUpdated, Data: event.UsageData{Session: usage, LastTurn: delta}})
			}
			e.bus.PublishSync(event.Event{Type: event.StreamStateChanged, Data: event.StreamStateData{Streaming: false}})
		})

	case sidecar.System:
		e.mu.Unlock()
		logging.Debug().Str("message", ev.Message).Msg("Backend notice")

	case sidecar.ErrorEvent:
		msg := ev.Message
		if msg == "" {
			msg = "Something went wrong."
		}
		e.errorMsg = msg
		e.isStreaming = false
		e.mu.Unlock()

		e.finishReveal(func() {
			e.bus.PublishSync(event.Event{Type: event.SessionError, Data: event.ErrorData{Message: msg}})
			e.bus.PublishSync(event.Event{Type: event.StreamStateChanged, Data: event.StreamStateData{Streaming: false}})
		})

	default:
		e.mu.Unlock()
	}
}

// handlePermissionRequestLocked is entered with the mutex held and
// releases it. Requests covered by an always-allow grant are answered
// without surfacing; anything else replaces the pending slot.
func (e *Engine) handlePermissionRequestLocked(ev sidecar.PermissionRequest) {
	req, ok := approve.FromEvent(ev)
	if !ok {
		e.mu.Unlock()
		return
	}

	if approve.Allowed(e.settings, req) {
		e.mu.Unlock()
		logging.Info().Str("tool", req.ToolName).Str("path", req.Path).Msg("Auto-approved by always-allow grant")
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := e.client.Approve(ctx, req.ID, sidecar.DecisionAllow, false); err != nil {
				logging.Warn().Err(err).Str("tool", req.ToolName).Msg("Auto-approve failed")
			}
		}()
		return
	}

	e.pending = &req
	e.isProcessingPermission = false
	e.stopResolutionTimerLocked()
	e.mu.Unlock()

	e.bus.PublishSync(event.Event{Type: event.PermissionRequested, Data: event.PermissionData{Request: req}})
}

// failTurn ends a turn that could not start or continue.
func (e *Engine) failTurn(gen int64, msg string) {
	e.mu.Lock()
	if gen != e.turn {
		e.mu.Unlock()
		return
	}
	e.isStreaming = false
	e.errorMsg = msg
	e.mu.Unlock()

	e.bus.PublishSync(event.Event{Type: event.SessionError, Data: event.ErrorData{Message: msg}})
	e.bus.PublishSync(event.Event{Type: event.StreamStateChanged, Data: event.StreamStateData{Streaming: false}})
}

// appendTranscript is the reveal buffer's sink; with the typewriter
// disabled it is called directly from dispatch.
func (e *Engine) appendTranscript(delta string) {
	if delta == "" {
		return
	}
	e.mu.Lock()
	e.transcript.WriteString(delta)
	full := e.transcript.String()
	e.mu.Unlock()

	e.bus.PublishSync(event.Event{Type: event.TranscriptUpdated, Data: event.TranscriptData{Transcript: full, Delta: delta}})
}

// finishReveal lets the drain loop run out the backlog at the adaptive
// rate, running then once the last chunk has been delivered. Turn-end
// notifications go through then so renderers never see the stream drop
// idle while revealed text is still on its way. With the typewriter
// disabled there is nothing buffered and then runs in the caller.
func (e *Engine) finishReveal(then func()) {
	if e.cfg.DisableTypewriter {
		e.buffer.Flush()
		if then != nil {
			then()
		}
		return
	}
	e.buffer.Finish(then)
}

func (e *Engine) flushOrFinish(clean bool, then func()) {
	if clean {
		e.finishReveal(then)
		return
	}
	// On a failed stream, get the remaining text visible immediately.
	e.buffer.Flush()
	if then != nil {
		then()
	}
}

// startResolutionTimerLocked arms the watchdog that releases the
// processing flag if the resolution event never arrives.
func (e *Engine) startResolutionTimerLocked(gen int64) {
	e.stopResolutionTimerLocked()
	e.resolutionTimer = time.AfterFunc(e.cfg.ResolutionTimeout, func() {
		e.mu.Lock()
		if gen != e.turn || !e.isProcessingPermission {
			e.mu.Unlock()
			return
		}
		e.isProcessingPermission = false
		e.pending = nil
		e.errorMsg = "The assistant did not acknowledge the approval."
		msg := e.errorMsg
		e.mu.Unlock()

		e.bus.PublishSync(event.Event{Type: event.SessionError, Data: event.ErrorData{Message: msg}})
	})
}

func (e *Engine) stopResolutionTimerLocked() {
	if e.resolutionTimer != nil {
		e.resolutionTimer.Stop()
		e.resolutionTimer = nil
	}
}
