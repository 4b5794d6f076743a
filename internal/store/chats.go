package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// UpsertChat inserts or updates a Chat row. last_activity_at is taken from
// the caller's LastActivityAt, while updated_at is always "now" from the
// Store's own clock, never the caller's.
func (s *Store) UpsertChat(ctx context.Context, in ChatUpsert) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (id, kind, display_name, phone_number, enabled, last_activity_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			last_activity_at = EXCLUDED.last_activity_at,
			updated_at       = EXCLUDED.updated_at,
			display_name     = CASE WHEN chats.display_name = '' THEN EXCLUDED.display_name ELSE chats.display_name END
	`, in.ID, in.Kind, in.DisplayName, in.PhoneNumber, in.LastActivityAt, now)
	if err != nil {
		return fmt.Errorf("store: upsert chat: %w", err)
	}
	return nil
}

// SetChatEnabled updates only the operator-controlled enabled flag.
func (s *Store) SetChatEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE chats SET enabled = $1, updated_at = $2 WHERE id = $3`, enabled, s.now(), id)
	if err != nil {
		return fmt.Errorf("store: set chat enabled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: set chat enabled rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListChats returns chats matching filter, most recently active first.
func (s *Store) ListChats(ctx context.Context, filter ChatFilter) ([]Chat, error) {
	var (
		clauses []string
		args    []interface{}
		i       = 1
	)
	if filter.Kind != "" {
		clauses = append(clauses, fmt.Sprintf("kind = $%d", i))
		args = append(args, filter.Kind)
		i++
	}
	if filter.Enabled != nil {
		clauses = append(clauses, fmt.Sprintf("enabled = $%d", i))
		args = append(args, *filter.Enabled)
		i++
	}

	query := "SELECT id, kind, display_name, phone_number, enabled, last_activity_at, updated_at FROM chats"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY last_activity_at DESC NULLS LAST"

	var chats []Chat
	if err := s.db.SelectContext(ctx, &chats, query, args...); err != nil {
		return nil, fmt.Errorf("store: list chats: %w", err)
	}
	return chats, nil
}

// SyncReconcile deletes chats that are absent from the latest sync: rows
// whose updated_at is strictly older than syncStart AND whose id lacks a
// known valid suffix. Returns the number of rows removed.
func (s *Store) SyncReconcile(ctx context.Context, syncStart time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM chats
		WHERE updated_at < $1
		  AND NOT (id LIKE '%@g.us' OR id LIKE '%@s.whatsapp.net' OR id LIKE '%@c.us')
	`, syncStart)
	if err != nil {
		return 0, fmt.Errorf("store: sync reconcile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: sync reconcile rows affected: %w", err)
	}
	return n, nil
}

// UpsertChatsTx upserts many chats in a single transaction, so a sync
// batch's writes either all land or none do.
func (s *Store) UpsertChatsTx(ctx context.Context, chats []ChatUpsert) error {
	if len(chats) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin upsert chats tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	stmt := `
		INSERT INTO chats (id, kind, display_name, phone_number, enabled, last_activity_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			kind             = EXCLUDED.kind,
			display_name     = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE chats.display_name END,
			phone_number     = COALESCE(EXCLUDED.phone_number, chats.phone_number),
			last_activity_at = COALESCE(EXCLUDED.last_activity_at, chats.last_activity_at),
			updated_at       = EXCLUDED.updated_at
	`
	for _, c := range chats {
		if _, err := tx.ExecContext(ctx, stmt, c.ID, c.Kind, c.DisplayName, c.PhoneNumber, c.LastActivityAt, now); err != nil {
			return fmt.Errorf("store: upsert chat %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit upsert chats tx: %w", err)
	}
	return nil
}
