package event

import (
	"time"

	"github.com/familiar-ai/familiar/internal/approve"
	"github.com/familiar-ai/familiar/pkg/types"
)

// TranscriptData carries a transcript update. Delta is the newly revealed
// text; Transcript is the full transcript after appending it.
type TranscriptData struct {
	Transcript string
	Delta      string
}

// StreamStateData reports whether a turn is in flight.
type StreamStateData struct {
	Streaming bool
}

// ToolSummaryData carries the latest tool activity summary, or nil when it
// was cleared.
type ToolSummaryData struct {
	Summary *types.ToolSummary
}

// PermissionData carries a pending approval request. On PermissionCleared
// the Request is the one that was resolved or replaced.
type PermissionData struct {
	Request approve.Request
}

// UsageData carries token usage after a completed turn.
type UsageData struct {
	Session  types.UsageTotals
	LastTurn types.UsageTotals
}

// ErrorData carries a user-facing session error message.
type ErrorData struct {
	Message string
}

// ArchivedData reports that an idle session was archived.
type ArchivedData struct {
	SavedAt time.Time
}

// ResumedData carries the snapshot restored into the live session.
type ResumedData struct {
	Snapshot types.SessionSnapshot
}

// SuggestionsData carries prompt suggestions for the empty-session screen.
type SuggestionsData struct {
	Suggestions []string
}
