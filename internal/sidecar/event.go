// Package sidecar implements the wire client for the local agent backend:
// the typed event decoder for its SSE stream and the discrete JSON
// request/response operations.
package sidecar

import "encoding/json"

// Kind identifies an event on the /query stream.
type Kind string

// The closed set of stream event kinds. Records with any other type value
// are dropped at decode time, which keeps old clients forward compatible
// with new backend event kinds.
const (
	KindAssistantText        Kind = "assistant_text"
	KindToolUse              Kind = "tool_use"
	KindToolResult           Kind = "tool_result"
	KindPermissionRequest    Kind = "permission_request"
	KindPermissionResolution Kind = "permission_resolution"
	KindResult               Kind = "result"
	KindSystem               Kind = "system"
	KindError                Kind = "error"
)

// Event is one decoded unit from the stream. Concrete types carry only the
// fields relevant to their kind; the engine dispatches with a type switch.
type Event interface {
	Kind() Kind
}

// AssistantText is a streamed fragment of assistant output.
type AssistantText struct {
	Text string
}

func (AssistantText) Kind() Kind { return KindAssistantText }

// ToolUse announces the start of a tool invocation.
type ToolUse struct {
	ToolUseID string
	ToolName  string
	Input     map[string]any
}

func (ToolUse) Kind() Kind { return KindToolUse }

// ToolResult reports a completed tool invocation.
type ToolResult struct {
	ToolUseID string
	Path      string
	Snippet   string
	Content   string
	IsError   bool
}

func (ToolResult) Kind() Kind { return KindToolResult }

// PermissionRequest asks the user to approve a tool call. The approval
// answer goes back over POST /approve; the outcome arrives later as a
// PermissionResolution on the same stream.
type PermissionRequest struct {
	RequestID     string
	ToolName      string
	Path          string
	CanonicalPath string
	Diff          string
	Input         map[string]any
}

func (PermissionRequest) Kind() Kind { return KindPermissionRequest }

// PermissionResolution closes the permission handshake.
type PermissionResolution struct {
	RequestID string
	Decision  string
}

func (PermissionResolution) Kind() Kind { return KindPermissionResolution }

// Result ends a turn, optionally carrying usage accounting.
type Result struct {
	Usage map[string]any
	Cost  map[string]any
}

func (Result) Kind() Kind { return KindResult }

// System is an informational backend message.
type System struct {
	Message string
}

func (System) Kind() Kind { return KindSystem }

// ErrorEvent reports a turn-ending backend failure.
type ErrorEvent struct {
	Message string
}

func (ErrorEvent) Kind() Kind { return KindError }

// rawEvent is the superset wire shape; only the fields matching the type
// discriminator are meaningful.
type rawEvent struct {
	Type          string         `json:"type"`
	Text          string         `json:"text"`
	Message       string         `json:"message"`
	RequestID     string         `json:"requestId"`
	ToolName      string         `json:"toolName"`
	Input         map[string]any `json:"input"`
	Decision      string         `json:"decision"`
	Path          string         `json:"path"`
	CanonicalPath string         `json:"canonicalPath"`
	Snippet       string         `json:"snippet"`
	Content       string         `json:"content"`
	Diff          string         `json:"diff"`
	IsError       bool           `json:"isError"`
	ToolUseID     string         `json:"toolUseId"`
	Usage         map[string]any `json:"usage"`
	Cost          map[string]any `json:"cost"`
}

// Decode parses one raw record into a typed event. It is a total function:
// malformed JSON, a missing type field, or an unrecognized kind all return
// (nil, false) and are never escalated to errors.
func Decode(record string) (Event, bool) {
	var raw rawEvent
	if err := json.Unmarshal([]byte(record), &raw); err != nil {
		return nil, false
	}

	switch Kind(raw.Type) {
	case KindAssistantText:
		return AssistantText{Text: raw.Text}, true
	case KindToolUse:
		return ToolUse{ToolUseID: raw.ToolUseID, ToolName: raw.ToolName, Input: raw.Input}, true
	case KindToolResult:
		return ToolResult{
			ToolUseID: raw.ToolUseID,
			Path:      raw.Path,
			Snippet:   raw.Snippet,
			Content:   raw.Content,
			IsError:   raw.IsError,
		}, true
	case KindPermissionRequest:
		return PermissionRequest{
			RequestID:     raw.RequestID,
			ToolName:      raw.ToolName,
			Path:          raw.Path,
			CanonicalPath: raw.CanonicalPath,
			Diff:          raw.Diff,
			Input:         raw.Input,
		}, true
	case KindPermissionResolution:
		return PermissionResolution{RequestID: raw.RequestID, Decision: raw.Decision}, true
	case KindResult:
		return Result{Usage: raw.Usage, Cost: raw.Cost}, true
	case KindSystem:
		return System{Message: raw.Message}, true
	case KindError:
		return ErrorEvent{Message: raw.Message}, true
	default:
		return nil, false
	}
}
