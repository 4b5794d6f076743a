// Package store is the persistent relational backing for chats, messages,
// the rule set, rule-fire records, cooldowns and the event log. It owns a
// connection pool and transactional semantics; the Rule Engine and Sync
// Coordinator only ever see the typed operations below, never raw SQL.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jmoiron/sqlx"

	_ "github.com/lib/pq"
)

// Store wraps a Postgres connection pool: open, ping, migrate, wrap.
type Store struct {
	db     *sqlx.DB
	logger *log.Logger
}

// Open connects to Postgres at dsn, runs pending migrations, and returns a
// ready Store. The process is expected to exit non-zero if this fails.
func Open(ctx context.Context, dsn string, logger *log.Logger) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	logger.Info("connected to store")

	logger.Info("running store migrations")
	if err := RunMigrations(db.DB); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	logger.Info("store migrations complete")

	return &Store{db: db, logger: logger}, nil
}

// Close releases pooled connections.
func (s *Store) Close() error {
	return s.db.Close()
}

// Health reports whether the pool can still reach Postgres.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// now returns the Store's own clock. Every server-assigned timestamp
// (updated_at and friends) uses the Store's clock, never the caller's —
// so every write path calls this instead of taking a timestamp
// parameter, and SQL statements use `now()` directly where possible.
func (s *Store) now() time.Time {
	return time.Now().UTC()
}
