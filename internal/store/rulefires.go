package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// InsertRuleFire appends one RuleFire row. Returns the generated id.
func (s *Store) InsertRuleFire(ctx context.Context, f RuleFire) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rule_fires (id, rule_id, rule_name, message_id, chat_id, sender_id, matched_text, action_results, success, error_message, fired_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, id, f.RuleID, f.RuleName, f.MessageID, f.ChatID, f.SenderID, f.MatchedText, f.ActionResults, f.Success, f.ErrorMessage, s.now())
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: insert rule fire: %w", err)
	}
	return id, nil
}

// ListRuleFires returns a page of rule-fire records, newest first.
func (s *Store) ListRuleFires(ctx context.Context, page Page, filter RuleFireFilter) ([]RuleFire, error) {
	limit, offset := page.normalized()

	query := `SELECT id, rule_id, rule_name, message_id, chat_id, sender_id, matched_text, action_results, success, error_message, fired_at
		FROM rule_fires`
	args := []interface{}{}
	if filter.RuleID != "" {
		query += " WHERE rule_id = $1"
		args = append(args, filter.RuleID)
	}
	query += fmt.Sprintf(" ORDER BY fired_at DESC LIMIT %d OFFSET %d", limit, offset)

	var fires []RuleFire
	if err := s.db.SelectContext(ctx, &fires, query, args...); err != nil {
		return nil, fmt.Errorf("store: list rule fires: %w", err)
	}
	return fires, nil
}
