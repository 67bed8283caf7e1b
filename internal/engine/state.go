package engine

import (
	"github.com/familiar-ai/familiar/internal/approve"
	"github.com/familiar-ai/familiar/pkg/types"
)

// Accessors for the renderer. Each takes the engine lock; values are
// consistent snapshots, not live references.

// Transcript returns the visible transcript so far.
func (e *Engine) Transcript() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transcript.String()
}

// IsStreaming reports whether a turn is in flight.
func (e *Engine) IsStreaming() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isStreaming
}

// IsProcessingPermission reports whether an approval answer is awaiting
// its resolution event.
func (e *Engine) IsProcessingPermission() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isProcessingPermission
}

// PendingPermission returns the live approval request, if any.
func (e *Engine) PendingPermission() *approve.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return nil
	}
	req := *e.pending
	return &req
}

// ToolSummary returns the last tool outcome, if any.
func (e *Engine) ToolSummary() *types.ToolSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.toolSummary == nil {
		return nil
	}
	s := *e.toolSummary
	return &s
}

// Usage returns the accumulated session totals.
func (e *Engine) Usage() types.UsageTotals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.usage
}

// LastUsage returns the most recent turn's totals, if any turn reported
// usage.
func (e *Engine) LastUsage() *types.UsageTotals {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastUsage == nil {
		return nil
	}
	u := *e.lastUsage
	return &u
}

// ErrorMessage returns the user-visible error for the current turn, or "".
func (e *Engine) ErrorMessage() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errorMsg
}

// PromptPreview returns the paste placeholder, or "".
func (e *Engine) PromptPreview() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.promptPreview
}

// HasSnapshot reports whether an archived session is held in memory.
func (e *Engine) HasSnapshot() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot != nil
}
