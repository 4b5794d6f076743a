package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// InsertMessage persists a Message row. When in.ProviderMessageID is
// present and already on file, it is a no-op; the returned inserted=false
// lets callers distinguish that from an error.
func (s *Store) InsertMessage(ctx context.Context, in MessageInsert) (id uuid.UUID, inserted bool, err error) {
	if in.ProviderMessageID != nil {
		var exists bool
		if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM messages WHERE provider_message_id = $1)`, *in.ProviderMessageID); err != nil {
			return uuid.Nil, false, fmt.Errorf("store: check duplicate message: %w", err)
		}
		if exists {
			return uuid.Nil, false, nil
		}
	}

	id = uuid.New()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, provider_message_id, chat_id, sender_id, sender_display_name, text, kind, raw_payload, received_at, processed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE)
	`, id, in.ProviderMessageID, in.ChatID, in.SenderID, in.SenderDisplayName, in.Text, in.Kind, in.RawPayload, s.now())
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("store: insert message: %w", err)
	}
	return id, true, nil
}

// MarkMessageProcessed flips the processed flag exactly once per row, after
// the Rule Engine has finished evaluating the message.
func (s *Store) MarkMessageProcessed(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET processed = TRUE WHERE id = $1 AND processed = FALSE`, id)
	if err != nil {
		return fmt.Errorf("store: mark message processed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListMessages returns a page of messages, newest first.
func (s *Store) ListMessages(ctx context.Context, page Page, filter MessageFilter) ([]Message, error) {
	limit, offset := page.normalized()

	query := `SELECT id, provider_message_id, chat_id, sender_id, sender_display_name, text, kind, raw_payload, received_at, processed
		FROM messages`
	args := []interface{}{}
	if filter.ChatID != "" {
		query += " WHERE chat_id = $1"
		args = append(args, filter.ChatID)
	}
	query += fmt.Sprintf(" ORDER BY received_at DESC LIMIT %d OFFSET %d", limit, offset)

	var messages []Message
	if err := s.db.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	return messages, nil
}
