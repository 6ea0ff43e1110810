package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Store wraps a sqlx.DB opened against a modernc.org/sqlite file.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if absent) the sqlite database at path and runs any
// pending goose migrations embedded in migrationsFS. path may be ":memory:"
// for tests.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("store: set dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a single transaction, committing on success and
// rolling back on any error or panic. The poll executor (4.F) uses this to
// persist a service's entire poll result atomically.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
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

// execer is satisfied by both *sqlx.DB and *sqlx.Tx, letting the table-group
// files below (and pollexec, via DB) take either a transaction or the
// top-level handle.
type execer = sqlx.ExtContext

// DB exposes the pooled handle as an execer, for single-statement writes
// outside of a WithTx block (e.g. recording a poll failure that never
// reached the persistence transaction).
func (s *Store) DB() execer { return s.db }
