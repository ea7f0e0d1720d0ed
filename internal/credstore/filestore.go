package credstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// fileStore persists the credential snapshot as a single TOML document,
// written atomically via a temp-file-then-rename, adapted from the
// teacher's FileBackend but collapsed to one document per spec.md §6's
// TOML persistence layout instead of one file per credential.
type fileStore struct {
	mu        sync.Mutex
	path      string
	lastWrite time.Time
}

// NewFileStore constructs a file-backed Store rooted at path.
func NewFileStore(path string) Store {
	return &fileStore{path: path}
}

func (f *fileStore) Load(ctx context.Context) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := &Snapshot{Version: currentVersion}
	if _, err := os.Stat(f.path); os.IsNotExist(err) {
		return snap, nil
	}
	if _, err := toml.DecodeFile(f.path, snap); err != nil {
		return nil, fmt.Errorf("credstore: decode %s: %w", f.path, err)
	}
	if snap.Version == 0 {
		snap.Version = currentVersion
	}
	return snap, nil
}

func (f *fileStore) Save(ctx context.Context, snap *Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if snap.Version == 0 {
		snap.Version = currentVersion
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("credstore: mkdir %s: %w", dir, err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".credstore-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := toml.NewEncoder(tmp).Encode(snap); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credstore: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("%w: rename: %v", ErrStorageUnavailable, err)
	}
	f.lastWrite = time.Now()
	return nil
}

func (f *fileStore) Health(ctx context.Context) HealthStatus {
	f.mu.Lock()
	defer f.mu.Unlock()

	start := time.Now()
	dir := filepath.Dir(f.path)
	if dir == "" {
		dir = "."
	}
	_, err := os.Stat(dir)
	return HealthStatus{
		Mode:      "toml",
		Healthy:   err == nil,
		Latency:   time.Since(start),
		LastWrite: f.lastWrite,
		Err:       err,
	}
}

func (f *fileStore) Close() error { return nil }
