// Package persist is an opt-in audit dump for OrderStore: it snapshots every
// known OrderState to a SQLite file, checksummed per the teacher's
// crash-recovery recipe, for after-the-fact debugging of a live run. It is
// not on the hot path — no command, fill, or risk check depends on it, and
// a write failure here is logged, not fatal to the engine.
package persist

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tradecore/internal/model"
)

// SnapshotSource is the subset of oms.Store a dumper needs.
type SnapshotSource interface {
	Snapshot() []model.OrderState
}

// SQLiteDumper periodically writes a checksummed OrderState snapshot to a
// SQLite file.
type SQLiteDumper struct {
	db *sql.DB
}

// Open creates (or reopens) the dump database at path, enabling WAL mode so
// a crash mid-write leaves the previous snapshot intact.
func Open(path string) (*SQLiteDumper, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("persist: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("persist: ping %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("persist: enable WAL: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS order_snapshot (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		data TEXT NOT NULL,
		checksum BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("persist: create schema: %w", err)
	}
	return &SQLiteDumper{db: db}, nil
}

// Dump marshals every OrderState the source currently holds and overwrites
// the single stored snapshot row with it.
func (d *SQLiteDumper) Dump(ctx context.Context, src SnapshotSource) error {
	states := src.Snapshot()
	data, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("persist: marshal snapshot: %w", err)
	}

	var roundTrip []model.OrderState
	if err := json.Unmarshal(data, &roundTrip); err != nil {
		return fmt.Errorf("persist: snapshot failed round-trip validation: %w", err)
	}

	checksum := sha256.Sum256(data)

	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("persist: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `INSERT OR REPLACE INTO order_snapshot (id, data, checksum, updated_at) VALUES (1, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query, string(data), checksum[:], time.Now().UnixNano()); err != nil {
		return fmt.Errorf("persist: write snapshot: %w", err)
	}
	return tx.Commit()
}

// Load reads back the last-dumped snapshot, verifying its checksum.
func (d *SQLiteDumper) Load(ctx context.Context) ([]model.OrderState, error) {
	const query = `SELECT data, checksum FROM order_snapshot WHERE id = 1`
	var data string
	var stored []byte
	if err := d.db.QueryRowContext(ctx, query).Scan(&data, &stored); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("persist: read snapshot: %w", err)
	}

	computed := sha256.Sum256([]byte(data))
	if len(stored) != len(computed) {
		return nil, fmt.Errorf("persist: checksum length mismatch: expected %d, got %d", len(computed), len(stored))
	}
	for i := range computed {
		if stored[i] != computed[i] {
			return nil, fmt.Errorf("persist: checksum verification failed, dump corrupted")
		}
	}

	var states []model.OrderState
	if err := json.Unmarshal([]byte(data), &states); err != nil {
		return nil, fmt.Errorf("persist: unmarshal snapshot: %w", err)
	}
	return states, nil
}

// Run dumps on the given interval until ctx is cancelled. Intended to run
// as one errgroup goroutine alongside the rest of cmd/engine's wiring.
func (d *SQLiteDumper) Run(ctx context.Context, src SnapshotSource, interval time.Duration, onErr func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Dump(ctx, src); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}

// Close closes the underlying database handle.
func (d *SQLiteDumper) Close() error {
	return d.db.Close()
}
