// Package approve models the human-in-the-loop tool approval handshake:
// the pending request presented to the user, preview derivation, and
// remembered always-allow matching.
package approve

import (
	"fmt"
	"sort"
	"strings"

	diffmatchpatch "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/familiar-ai/familiar/internal/sidecar"
)

// Request is one pending tool approval, derived from a permission_request
// stream event. The engine holds at most one live Request; a newer event
// replaces it.
type Request struct {
	ID            string
	ToolName      string
	Path          string
	CanonicalPath string
	Preview       string
	Diff          string
	Input         map[string]any
}

// FromEvent builds a Request from a permission_request event. Events
// missing the correlation id or tool name are unusable and yield false.
func FromEvent(ev sidecar.PermissionRequest) (Request, bool) {
	if ev.RequestID == "" || ev.ToolName == "" {
		return Request{}, false
	}

	input := ev.Input
	path := ev.Path
	if path == "" {
		if p, ok := input["path"].(string); ok {
			path = p
		}
	}

	req := Request{
		ID:            ev.RequestID,
		ToolName:      ev.ToolName,
		Path:          path,
		CanonicalPath: ev.CanonicalPath,
		Preview:       derivePreview(ev.ToolName, input),
		Diff:          ev.Diff,
		Input:         input,
	}
	if req.Diff == "" {
		req.Diff = synthesizeDiff(input)
	}
	return req, true
}

// derivePreview picks the most useful summary of the tool input, first
// match wins: file content, then shell command, then search pattern, then
// the first non-empty string field.
func derivePreview(tool string, input map[string]any) string {
	if content, ok := input["content"].(string); ok && content != "" {
		return content
	}

	lower := strings.ToLower(tool)
	if lower == "bash" {
		if command, ok := input["command"].(string); ok && command != "" {
			return command
		}
	}
	if lower == "grep" || lower == "glob" {
		if pattern, ok := input["pattern"].(string); ok && pattern != "" {
			return "Pattern: " + pattern
		}
	}

	// Deterministic fallback: first non-empty string field by key order.
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := input[k].(string); ok && s != "" {
			return fmt.Sprintf("%s: %s", k, s)
		}
	}
	return ""
}

// synthesizeDiff builds a readable diff for edit-style inputs when the
// backend did not send one.
func synthesizeDiff(input map[string]any) string {
	oldStr, okOld := input["old_string"].(string)
	newStr, okNew := input["new_string"].(string)
	if !okOld || !okNew || oldStr == newStr {
		return ""
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldStr, newStr, true)
	dmp.DiffCleanupSemantic(diffs)

	var sb strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
				sb.WriteString("- " + line + "\n")
			}
		case diffmatchpatch.DiffInsert:
			for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
				sb.WriteString("+ " + line + "\n")
			}
		}
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// ShortSummary renders the request as "tool → path" for compact display.
func (r Request) ShortSummary() string {
	if r.Path != "" {
		return fmt.Sprintf("%s → %s", r.ToolName, r.Path)
	}
	return r.ToolName
}
