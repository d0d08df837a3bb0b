package store

// Store defines the interface for inventory snapshot persistence.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if a snapshot doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveSnapshot atomically writes a snapshot, overwriting any snapshot
	// with the same ID.
	SaveSnapshot(snapshot *Snapshot) error

	// LoadSnapshot retrieves the snapshot with the given ID.
	LoadSnapshot(id string) (*Snapshot, error)

	// ListSnapshots returns metadata for all stored snapshots, oldest first.
	// Unreadable snapshots are skipped.
	ListSnapshots() ([]SnapshotInfo, error)

	// DeleteSnapshot removes the snapshot directory.
	DeleteSnapshot(id string) error
}

// ErrNotFound is returned when a requested snapshot does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing snapshot error.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return "snapshot not found: " + e.ID
	}
	return "snapshot not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
