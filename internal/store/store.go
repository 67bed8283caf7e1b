// Package store persists the archived-session snapshot as a JSON document
// on disk, so a conversation archived by the inactivity sweep survives a
// restart and can be offered for resume.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/familiar-ai/familiar/internal/logging"
	"github.com/familiar-ai/familiar/pkg/types"
)

var ErrNotFound = errors.New("not found")

const snapshotFile = "previous-session.json"

// Persistence caps. Snapshots are a convenience, not an archive; oversize
// fields are trimmed so the document stays small.
const (
	maxTranscriptRunes = 10000
	maxSnippetRunes    = 1000
	maxContentRunes    = 2000
)

// Store reads and writes snapshot documents under a base directory.
type Store struct {
	basePath string
	lock     *FileLock
}

// New creates a Store rooted at basePath. The directory is created on
// first write.
func New(basePath string) *Store {
	return &Store{
		basePath: basePath,
		lock:     NewFileLock(filepath.Join(basePath, snapshotFile)),
	}
}

func (s *Store) snapshotPath() string {
	return filepath.Join(s.basePath, snapshotFile)
}

// SaveSnapshot writes the snapshot, trimming oversize fields first. The
// write is atomic: a temp file is renamed into place so a crash never
// leaves a half-written document.
func (s *Store) SaveSnapshot(snap types.SessionSnapshot) error {
	trimSnapshot(&snap)

	if err := os.MkdirAll(s.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer s.lock.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	path := s.snapshotPath()
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename snapshot: %w", err)
	}

	logging.Debug().Str("path", path).Int("transcript_len", len(snap.Transcript)).Msg("Snapshot saved")
	return nil
}

// LoadSnapshot reads the persisted snapshot. Returns ErrNotFound when no
// snapshot exists.
func (s *Store) LoadSnapshot() (types.SessionSnapshot, error) {
	var snap types.SessionSnapshot

	data, err := os.ReadFile(s.snapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return snap, ErrNotFound
		}
		return snap, fmt.Errorf("failed to read snapshot: %w", err)
	}

	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// ClearSnapshot removes the persisted snapshot. Clearing a snapshot that
// does not exist is not an error.
func (s *Store) ClearSnapshot() error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer s.lock.Unlock()

	if err := os.Remove(s.snapshotPath()); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// trimSnapshot applies the persistence caps. The transcript keeps its
// suffix since the most recent text matters on resume; tool fields keep
// their prefix.
func trimSnapshot(snap *types.SessionSnapshot) {
	snap.Transcript = tailRunes(snap.Transcript, maxTranscriptRunes)
	if snap.ToolSummary != nil {
		trimmed := *snap.ToolSummary
		trimmed.Snippet = headRunes(trimmed.Snippet, maxSnippetRunes)
		trimmed.Content = headRunes(trimmed.Content, maxContentRunes)
		snap.ToolSummary = &trimmed
	}
}

func tailRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func headRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
