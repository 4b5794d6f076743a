package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const maxSummaryLen = 1000

// InsertEvent appends one EventLogEntry row, one per webhook invocation
// regardless of kind. The summary is truncated to 1000 chars.
func (s *Store) InsertEvent(ctx context.Context, in EventLogInsert) (uuid.UUID, error) {
	summary := truncate(in.Summary, maxSummaryLen)

	id := uuid.New()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_log (id, event_kind, instance_name, chat_id, sender_id, summary, raw_payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, in.EventKind, in.InstanceName, in.ChatID, in.SenderID, summary, in.RawPayload, s.now())
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: insert event: %w", err)
	}
	return id, nil
}

// ListEvents returns a page of event-log entries, newest first.
func (s *Store) ListEvents(ctx context.Context, page Page, filter EventLogFilter) ([]EventLogEntry, error) {
	limit, offset := page.normalized()

	query := `SELECT id, event_kind, instance_name, chat_id, sender_id, summary, raw_payload, received_at
		FROM event_log`
	args := []interface{}{}
	if filter.EventKind != "" {
		query += " WHERE event_kind = $1"
		args = append(args, filter.EventKind)
	}
	query += fmt.Sprintf(" ORDER BY received_at DESC LIMIT %d OFFSET %d", limit, offset)

	var events []EventLogEntry
	if err := s.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	return events, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
