package types

import "time"

// ToolSummary is the last-known outcome of a tool invocation. The engine
// keeps a single slot, replaced by each tool_result event that carries a
// toolUseId.
type ToolSummary struct {
	ToolUseID string `json:"toolUseId"`
	Path      string `json:"path,omitempty"`
	Snippet   string `json:"snippet,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"isError"`
}

// SessionSnapshot is a point-in-time capture of a conversation, taken when
// the inactivity sweep archives the session and offered back on resume.
type SessionSnapshot struct {
	Transcript  string       `json:"transcript"`
	ToolSummary *ToolSummary `json:"toolSummary,omitempty"`
	UsageTotals UsageTotals  `json:"usageTotals"`
	LastUsage   *UsageTotals `json:"lastUsage,omitempty"`
	SavedAt     time.Time    `json:"savedAt"`
}
