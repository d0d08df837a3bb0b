package store

import (
	"fmt"
	"os"
	"time"

	"github.com/cwbudde/clext/internal/gpu"
	"github.com/google/uuid"
)

// Snapshot is a point-in-time record of the OpenCL platforms on a host.
type Snapshot struct {
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	Hostname  string             `json:"hostname"`
	Platforms []gpu.PlatformInfo `json:"platforms"`
}

// SnapshotInfo is the listing form of a snapshot.
type SnapshotInfo struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Hostname  string    `json:"hostname"`
	Platforms int       `json:"platforms"`
	Devices   int       `json:"devices"`
	WithPCIe  int       `json:"withPcie"`
}

// NewSnapshot creates a snapshot with a fresh ID for the local host.
func NewSnapshot(platforms []gpu.PlatformInfo) *Snapshot {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Snapshot{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Hostname:  hostname,
		Platforms: platforms,
	}
}

// Validate checks the snapshot can be persisted.
func (s *Snapshot) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("snapshot ID cannot be empty")
	}
	if _, err := uuid.Parse(s.ID); err != nil {
		return fmt.Errorf("invalid snapshot ID %q: %w", s.ID, err)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("snapshot timestamp cannot be zero")
	}
	return nil
}

// ToInfo summarises the snapshot.
func (s *Snapshot) ToInfo() SnapshotInfo {
	info := SnapshotInfo{
		ID:        s.ID,
		Timestamp: s.Timestamp,
		Hostname:  s.Hostname,
		Platforms: len(s.Platforms),
	}
	for _, platform := range s.Platforms {
		info.Devices += len(platform.Devices)
		for _, device := range platform.Devices {
			if _, ok := device.PCIe(); ok {
				info.WithPCIe++
			}
		}
	}
	return info
}
