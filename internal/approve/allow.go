package approve

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/familiar-ai/familiar/pkg/types"
)

// Allowed reports whether a request is covered by the settings' remembered
// always-allow grants, so the UI can answer it without prompting. Patterns
// are glob-matched against the canonical path when present, else the plain
// path; a tool granted with no patterns is allowed unconditionally.
func Allowed(settings types.Settings, req Request) bool {
	patterns, ok := settings.AlwaysAllow[req.ToolName]
	if !ok {
		return false
	}
	if len(patterns) == 0 {
		return true
	}

	path := req.CanonicalPath
	if path == "" {
		path = req.Path
	}
	if path == "" {
		return false
	}

	for _, pattern := range patterns {
		if matched, err := doublestar.Match(pattern, path); err == nil && matched {
			return true
		}
	}
	return false
}
