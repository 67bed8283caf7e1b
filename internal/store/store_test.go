package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/familiar-ai/familiar/pkg/types"
)

func TestStore_SaveAndLoad(t *testing.T) {
	s := New(t.TempDir())

	snap := types.SessionSnapshot{
		Transcript: "You: hello\nassistant reply",
		ToolSummary: &types.ToolSummary{
			ToolUseID: "tu_1",
			Path:      "/tmp/file.txt",
			Snippet:   "line one",
		},
		UsageTotals: types.UsageTotals{InputTokens: 10, OutputTokens: 5},
		SavedAt:     time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, s.SaveSnapshot(snap))

	loaded, err := s.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, snap.Transcript, loaded.Transcript)
	require.NotNil(t, loaded.ToolSummary)
	assert.Equal(t, "tu_1", loaded.ToolSummary.ToolUseID)
	assert.Equal(t, snap.UsageTotals, loaded.UsageTotals)
	assert.True(t, snap.SavedAt.Equal(loaded.SavedAt))
}

func TestStore_LoadNotFound(t *testing.T) {
	s := New(t.TempDir())

	_, err := s.LoadSnapshot()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Clear(t *testing.T) {
	s := New(t.TempDir())

	require.NoError(t, s.SaveSnapshot(types.SessionSnapshot{Transcript: "x"}))
	require.NoError(t, s.ClearSnapshot())

	_, err := s.LoadSnapshot()
	assert.ErrorIs(t, err, ErrNotFound)

	// Clearing again is not an error.
	assert.NoError(t, s.ClearSnapshot())
}

func TestStore_TrimsOversizeFields(t *testing.T) {
	s := New(t.TempDir())

	snap := types.SessionSnapshot{
		Transcript: strings.Repeat("a", 9000) + strings.Repeat("b", 3000),
		ToolSummary: &types.ToolSummary{
			ToolUseID: "tu_2",
			Snippet:   strings.Repeat("s", 1500),
			Content:   strings.Repeat("c", 2500),
		},
	}
	require.NoError(t, s.SaveSnapshot(snap))

	loaded, err := s.LoadSnapshot()
	require.NoError(t, err)

	// Transcript keeps its tail.
	assert.Len(t, loaded.Transcript, 10000)
	assert.True(t, strings.HasSuffix(loaded.Transcript, "b"))
	assert.Equal(t, strings.Repeat("b", 3000), loaded.Transcript[7000:])

	// Tool fields keep their head.
	assert.Len(t, loaded.ToolSummary.Snippet, 1000)
	assert.Len(t, loaded.ToolSummary.Content, 2000)
}

func TestStore_TrimDoesNotMutateCallerSummary(t *testing.T) {
	s := New(t.TempDir())

	summary := &types.ToolSummary{Content: strings.Repeat("c", 2500)}
	require.NoError(t, s.SaveSnapshot(types.SessionSnapshot{ToolSummary: summary}))

	assert.Len(t, summary.Content, 2500)
}

func TestStore_AtomicWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	require.NoError(t, s.SaveSnapshot(types.SessionSnapshot{Transcript: "x"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temp file left behind: %s", e.Name())
	}
	_, err = os.Stat(filepath.Join(dir, "previous-session.json"))
	assert.NoError(t, err)
}
