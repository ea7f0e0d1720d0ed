package credstore

import (
	"context"
	"errors"
	"time"
)

// ErrStorageUnavailable is the sentinel admin handlers check before any
// mutating call, per spec.md §4.A.
var ErrStorageUnavailable = errors.New("credstore: storage backend unavailable")

// HealthStatus reports backend liveness for the admin surface.
type HealthStatus struct {
	Mode      string
	Healthy   bool
	Latency   time.Duration
	LastWrite time.Time
	Err       error
}

// Store persists the full credential snapshot. Implementations: fileStore
// (single TOML document), postgresStore and mongoStore, selected by
// Persistence.Mode.
type Store interface {
	// Load reads the full snapshot. A backend with no prior data returns
	// an empty Snapshot, not an error.
	Load(ctx context.Context) (*Snapshot, error)

	// Save persists the full snapshot, replacing whatever was stored.
	Save(ctx context.Context, snap *Snapshot) error

	// Health reports current backend liveness.
	Health(ctx context.Context) HealthStatus

	// Close releases any held resources (file handles, DB pools).
	Close() error
}

// Open selects a Store implementation by persistence mode, per
// Persistence.Mode ("toml", "postgres", "mongo").
func Open(ctx context.Context, mode, tomlPath, postgresDSN, mongoURI, mongoDB string) (Store, error) {
	switch mode {
	case "", "toml", "file":
		return NewFileStore(tomlPath), nil
	case "postgres":
		return NewPostgresStore(ctx, postgresDSN)
	case "mongo", "mongodb":
		return NewMongoStore(ctx, mongoURI, mongoDB)
	default:
		return nil, errors.New("credstore: unknown persistence mode " + mode)
	}
}
