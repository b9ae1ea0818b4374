// Package localstore implements the agent's embedded per-agent metric
// store: one raw/aggregate table pair per probe kind plus a shared
// send queue, backed by a single SQLite file (modernc.org/sqlite, pure
// Go, no cgo).
package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a single-writer SQLite connection, mirroring the
// teacher's Connection/Repository split but adapted onto SQLite's
// single-writer discipline (spec.md §4.2 concurrency contract).
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex // serializes writers; SQLite allows concurrent readers
}

// Open opens (creating if absent) the SQLite file at path and applies
// pragmas for the single-writer/WAL discipline the store needs.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; readers multiplex through the same handle safely under WAL
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Initialize creates all tables, indexes, and the queue if missing. It
// is idempotent (every statement is CREATE ... IF NOT EXISTS). It runs
// no ALTER TABLE ADD COLUMN migrations: columns missing from a table
// created by an older build are not added, and ignoreDuplicateColumn
// is not called from here.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, create := range allTableCreators {
		if err := create(ctx, s.db); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	if err := createQueueTable(ctx, s.db); err != nil {
		return fmt.Errorf("create send queue: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back on panic or error,
// matching the teacher's Repository.WithTransaction idiom.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}

// StartCheckpointLoop runs PRAGMA wal_checkpoint(PASSIVE) on interval
// until stop is closed, keeping the write-ahead log bounded.
func (s *Store) StartCheckpointLoop(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
				s.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func ignoreDuplicateColumn(err error) error {
	if err == nil {
		return nil
	}
	// modernc.org/sqlite reports this as "duplicate column name: <col>"
	if containsDuplicateColumn(err.Error()) {
		return nil
	}
	return err
}

func containsDuplicateColumn(msg string) bool {
	return len(msg) >= len("duplicate column") && indexOf(msg, "duplicate column") >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
