// Package sqlite is a storage.Store backed by an SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/Sumatoshi-tech/issuetrack/pkg/storage"
)

//go:embed schema.sql
var schema string

const (
	defaultBusyTimeout = 5 * time.Second
	maxRetryElapsed    = 30 * time.Second
)

// Options configures a Store.
type Options struct {
	// BusyTimeout is how long SQLite waits on a locked database.
	BusyTimeout time.Duration
	// Now is the clock of technical dates; nil means time.Now.
	Now func() time.Time
}

// Store is safe for concurrent use. Writes are serialized by SQLite.
type Store struct {
	db       *sql.DB
	now      func() time.Time
	resolver storage.UpdateConflictResolver
	newKey   func() string
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}

	err := os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)",
		path, busy.Milliseconds())

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("ping database: %w", err), db.Close())
	}

	_, err = db.ExecContext(ctx, schema)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("initialize schema: %w", err), db.Close())
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Store{db: db, now: now, newKey: uuid.NewString}, nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	return nil
}

func isBusy(err error) bool {
	return errors.Is(err, sqlite3.BUSY) || errors.Is(err, sqlite3.LOCKED)
}

// inTx runs fn in a transaction, retrying the whole transaction while the
// database is busy.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxRetryElapsed

	return backoff.Retry(func() error {
		err := s.runTx(ctx, fn)
		if err != nil && !isBusy(err) {
			return backoff.Permanent(err)
		}

		return err
	}, backoff.WithContext(bo, ctx))
}

func (s *Store) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	err = fn(tx)
	if err != nil {
		return errors.Join(err, ignoreDone(tx.Rollback()))
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func ignoreDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}

	return err
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
