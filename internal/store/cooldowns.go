package store

import (
	"context"
	"fmt"
	"time"
)

// IsOnCooldown reports whether (ruleID, scopeKey) is still within its
// cooldown window.
func (s *Store) IsOnCooldown(ctx context.Context, ruleID, scopeKey string) (bool, error) {
	var onCooldown bool
	err := s.db.GetContext(ctx, &onCooldown, `
		SELECT EXISTS(
			SELECT 1 FROM cooldowns WHERE rule_id = $1 AND scope_key = $2 AND expires_at > now()
		)
	`, ruleID, scopeKey)
	if err != nil {
		return false, fmt.Errorf("store: is on cooldown: %w", err)
	}
	return onCooldown, nil
}

// SetCooldown sets (rule_id, scope_key) to expire seconds from now. Uses
// a single conditional upsert so a concurrent check-then-set race
// narrows to "last writer wins the expiry" rather than a lost update
// that leaves no cooldown at all.
func (s *Store) SetCooldown(ctx context.Context, ruleID, scopeKey string, seconds int) error {
	expiresAt := time.Now().UTC().Add(time.Duration(seconds) * time.Second)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cooldowns (rule_id, scope_key, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (rule_id, scope_key) DO UPDATE SET expires_at = EXCLUDED.expires_at
	`, ruleID, scopeKey, expiresAt)
	if err != nil {
		return fmt.Errorf("store: set cooldown: %w", err)
	}
	return nil
}

// SweepExpiredCooldowns removes rows whose expiry has passed. Safe to call
// at any time; returns the number of rows removed.
func (s *Store) SweepExpiredCooldowns(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cooldowns WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("store: sweep expired cooldowns: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: sweep expired cooldowns rows affected: %w", err)
	}
	return n, nil
}
