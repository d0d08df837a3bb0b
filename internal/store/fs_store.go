package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// FSStore implements the Store interface using filesystem-based persistence.
// Snapshots are stored in a directory structure: <baseDir>/snapshots/<id>/
//
// Writes go through a temp file and rename, so no locks are needed.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{
		baseDir: baseDir,
	}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

// SnapshotDir returns the directory path for a given snapshot ID.
func (fs *FSStore) SnapshotDir(id string) string {
	return filepath.Join(fs.baseDir, "snapshots", id)
}

func (fs *FSStore) snapshotPath(id string) string {
	return filepath.Join(fs.SnapshotDir(id), "snapshot.json")
}

// SaveSnapshot atomically saves a snapshot.
func (fs *FSStore) SaveSnapshot(snapshot *Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	if err := snapshot.Validate(); err != nil {
		return err
	}

	dir := fs.SnapshotDir(snapshot.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	tempPath := fs.snapshotPath(snapshot.ID) + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp snapshot file: %w", err)
	}

	finalPath := fs.snapshotPath(snapshot.ID)
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename snapshot file: %w", err)
	}

	slog.Debug("Snapshot saved", "id", snapshot.ID, "path", finalPath)
	return nil
}

// LoadSnapshot retrieves the snapshot with the given ID.
func (fs *FSStore) LoadSnapshot(id string) (*Snapshot, error) {
	if id == "" {
		return nil, fmt.Errorf("snapshot ID cannot be empty")
	}

	path := fs.snapshotPath(id)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{ID: id}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to deserialize snapshot: %w", err)
	}

	slog.Debug("Snapshot loaded", "id", id, "path", path)
	return &snapshot, nil
}

// ListSnapshots returns metadata for all stored snapshots, oldest first.
func (fs *FSStore) ListSnapshots() ([]SnapshotInfo, error) {
	snapshotsDir := filepath.Join(fs.baseDir, "snapshots")

	entries, err := os.ReadDir(snapshotsDir)
	if os.IsNotExist(err) {
		return []SnapshotInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read snapshots directory: %w", err)
	}

	infos := []SnapshotInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		snapshot, err := fs.LoadSnapshot(entry.Name())
		if err != nil {
			slog.Warn("Failed to load snapshot for listing", "id", entry.Name(), "error", err)
			continue
		}
		infos = append(infos, snapshot.ToInfo())
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Timestamp.Before(infos[j].Timestamp)
	})

	slog.Debug("Listed snapshots", "count", len(infos))
	return infos, nil
}

// DeleteSnapshot removes the snapshot and its directory.
func (fs *FSStore) DeleteSnapshot(id string) error {
	if id == "" {
		return fmt.Errorf("snapshot ID cannot be empty")
	}

	dir := fs.SnapshotDir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &NotFoundError{ID: id}
	} else if err != nil {
		return fmt.Errorf("failed to stat snapshot directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove snapshot directory: %w", err)
	}

	slog.Debug("Snapshot deleted", "id", id, "path", dir)
	return nil
}
