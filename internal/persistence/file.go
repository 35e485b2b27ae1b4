package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// FileAdapter stores one JSON file per room on local disk, writing with
// a rename-into-place so a crash mid-write never leaves a torn
// snapshot. Grounded on calvinalkan-agent-task's use of
// github.com/natefinch/atomic (atomic.WriteFile).
type FileAdapter struct {
	dir string
}

// NewFileAdapter roots snapshots under dir, creating it if necessary.
func NewFileAdapter(dir string) (*FileAdapter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: create snapshot dir: %w", err)
	}
	return &FileAdapter{dir: dir}, nil
}

func (a *FileAdapter) path(roomID string) string {
	return filepath.Join(a.dir, roomID+".json")
}

func (a *FileAdapter) Load(ctx context.Context, roomID string) (*Snapshot, error) {
	raw, err := os.ReadFile(a.path(roomID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("persistence: read snapshot %s: %w", roomID, err)
	}
	var snap Snapshot
	err = json.Unmarshal(raw, &snap)
	if err != nil || (snap.Tombstones == nil && snap.Schema == nil) {
		if legacy, lerr := upgradeLegacySnapshot(raw); lerr == nil {
			return legacy, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: decode snapshot %s: %w", roomID, err)
	}
	return &snap, nil
}

func (a *FileAdapter) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("persistence: encode snapshot %s: %w", snap.RoomID, err)
	}
	if err := atomic.WriteFile(a.path(snap.RoomID), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("persistence: write snapshot %s: %w", snap.RoomID, err)
	}
	return nil
}
