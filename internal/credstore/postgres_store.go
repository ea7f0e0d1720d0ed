package credstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clewdr-go/internal/credstore/migrations"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

// postgresStore persists the credential snapshot as one JSONB payload per
// row, keyed by credential id, grounded on the teacher's PostgresStorage
// (database/sql + lib/pq) generalized from the teacher's per-field columns
// to a single JSON payload column since this component's record shape
// varies by credential kind.
type postgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a Postgres-backed Store and applies migrations.
func NewPostgresStore(ctx context.Context, dsn string) (Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("credstore: open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", ErrStorageUnavailable, err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := applyPostgresMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("credstore: connected to postgres backend")
	return &postgresStore{db: db}, nil
}

func applyPostgresMigrations(db *sql.DB) error {
	driver, err := pgmigrate.WithInstance(db, &pgmigrate.Config{})
	if err != nil {
		return fmt.Errorf("credstore: migration driver: %w", err)
	}
	source, err := iofs.New(migrations.SQLFiles, "sql")
	if err != nil {
		return fmt.Errorf("credstore: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("credstore: migration instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			log.WithError(errors.Join(srcErr, dbErr)).Warn("credstore: migration close")
		}
	}()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("credstore: migrate up: %w", err)
	}
	return nil
}

func (p *postgresStore) Load(ctx context.Context) (*Snapshot, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT payload FROM credentials ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("credstore: query credentials: %w", err)
	}
	defer rows.Close()

	snap := &Snapshot{Version: currentVersion}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("credstore: scan: %w", err)
		}
		var r Record
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("credstore: unmarshal record: %w", err)
		}
		snap.Credentials = append(snap.Credentials, r)
	}
	return snap, rows.Err()
}

func (p *postgresStore) Save(ctx context.Context, snap *Snapshot) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("credstore: clear credentials: %w", err)
	}
	for _, r := range snap.Credentials {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("credstore: marshal record: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO credentials (id, kind, payload, updated_at) VALUES ($1, $2, $3, now())`,
			r.ID, string(r.Kind), payload); err != nil {
			return fmt.Errorf("credstore: insert credential %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (p *postgresStore) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	err := p.db.PingContext(ctx)
	var lastWrite time.Time
	if err == nil {
		_ = p.db.QueryRowContext(ctx, `SELECT max(updated_at) FROM credentials`).Scan(&lastWrite)
	}
	return HealthStatus{
		Mode:      "postgres",
		Healthy:   err == nil,
		Latency:   time.Since(start),
		LastWrite: lastWrite,
		Err:       err,
	}
}

func (p *postgresStore) Close() error { return p.db.Close() }
