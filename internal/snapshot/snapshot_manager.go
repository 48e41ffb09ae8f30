// Package snapshot periodically checkpoints controller state (job table
// plus WAL sequence watermark) to disk so a restart replays only the WAL
// tail after the last snapshot instead of the whole log. Writes go
// through a temp-file-then-rename so a crash mid-write never leaves a
// half-written snapshot behind; Load falls back to an empty snapshot on
// first startup and rejects a schema version it doesn't recognize.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/falconqueue/taskcore/pkg/types"
)

var (
	ErrCorruptedSnapshot   = errors.New("snapshot file is corrupted")
	ErrIncompatibleVersion = errors.New("snapshot schema version is incompatible")
	ErrSnapshotNotFound    = errors.New("snapshot file not found")
)

// Manager handles snapshot persistence for a single path. The payload
// shape is types.SnapshotData (job table + schema version + WAL watermark).
type Manager struct {
	path string
	mu   sync.Mutex
}

// NewManager creates a snapshot manager instance
func NewManager(path string) *Manager {
	return &Manager{
		path: path,
	}
}

// Write atomically writes snapshot to disk
//
// Atomic write process:
// 1. Write to temp file (.tmp)
// 2. Use os.Rename to atomically replace original
//
// Parameters:
//   - data: Snapshot data (uses pkg/types.SnapshotData)
//
// Returns:
//   - error: Error on write failure
func (m *Manager) Write(data types.SnapshotData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Set version number (currently 1)
	data.SchemaVer = 1

	// Serialize to JSON (indented for readability and debugging)
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Atomic write process
	tmpPath := m.path + ".tmp"

	// 1. Write to temp file
	if err := os.WriteFile(tmpPath, jsonBytes, 0644); err != nil {
		return fmt.Errorf("failed to write temp snapshot: %w", err)
	}

	// 2. Atomic rename (critical step)
	if err := os.Rename(tmpPath, m.path); err != nil {
		// Rename failed, cleanup temp file
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename snapshot: %w", err)
	}

	return nil
}

// Load reads snapshot from disk
//
// Behavior:
//   - Returns empty SnapshotData if file doesn't exist (first startup)
//   - Validates schema version compatibility
//   - Detects corrupted snapshot files
//
// Returns:
//   - types.SnapshotData: Snapshot data
//   - error: Error on load failure or version incompatibility
func (m *Manager) Load() (types.SnapshotData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var data types.SnapshotData

	// Read file
	jsonBytes, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			// First startup, no snapshot, return empty state
			return types.SnapshotData{
				Jobs:      make(map[types.JobID]*types.Job),
				SchemaVer: 1,
				LastSeq:   0,
			}, nil
		}
		return data, fmt.Errorf("failed to read snapshot: %w", err)
	}

	// Deserialize
	if err := json.Unmarshal(jsonBytes, &data); err != nil {
		return data, fmt.Errorf("%w: %v", ErrCorruptedSnapshot, err)
	}

	// Validate version
	if data.SchemaVer != 1 {
		return data, fmt.Errorf("%w: got %d, want 1", ErrIncompatibleVersion, data.SchemaVer)
	}

	// Ensure Jobs map is not nil
	if data.Jobs == nil {
		data.Jobs = make(map[types.JobID]*types.Job)
	}

	return data, nil
}

// Exists checks if snapshot file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// GetPath returns snapshot file path (for testing and debugging)
func (m *Manager) GetPath() string {
	return m.path
}

// WriteWithBackup renames any existing snapshot aside before writing the
// new one, then prunes backups down to keepBackups (newest first). A
// keepBackups <= 0 disables pruning.
func (m *Manager) WriteWithBackup(data types.SnapshotData, keepBackups int) error {
	m.mu.Lock()
	if m.Exists() {
		backupPath := fmt.Sprintf("%s.%s", m.path, time.Now().Format("20060102_150405"))
		if err := os.Rename(m.path, backupPath); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("failed to backup old snapshot: %w", err)
		}
	}
	m.mu.Unlock()

	if err := m.Write(data); err != nil {
		return err
	}

	if keepBackups > 0 {
		m.pruneBackups(keepBackups)
	}
	return nil
}

// pruneBackups removes the oldest backups beyond keepBackups, matched by
// the path.<timestamp> naming WriteWithBackup writes. Glob errors are
// swallowed: a failed prune should not fail the snapshot write that
// triggered it.
func (m *Manager) pruneBackups(keepBackups int) {
	matches, err := filepath.Glob(m.path + ".*")
	if err != nil || len(matches) <= keepBackups {
		return
	}
	sort.Strings(matches)
	for _, stale := range matches[:len(matches)-keepBackups] {
		os.Remove(stale)
	}
}
