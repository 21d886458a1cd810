// Package store is the PostgreSQL persistence layer for the job alert
// pipeline. All access goes through raw SQL against database/sql; the
// pgvector columns are read and written as their text representation.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Store wraps the database handle. One instance is shared by the API
// server and all workers.
type Store struct {
	db *sql.DB
}

// New wraps an existing database handle. Used by tests with sqlmock.
func New(db *sql.DB) *Store { return &Store{db: db} }

// Open connects to Postgres and configures the pool.
func Open(url string, maxOpen, maxIdle int, maxLifetime time.Duration) (*Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the connection pool.
func (s *Store) Close() error { return s.db.Close() }
