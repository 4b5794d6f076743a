package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetRuleSetYAML returns the current canonical YAML text, or ErrNoRuleSet
// before the first PutRuleSet call.
func (s *Store) GetRuleSetYAML(ctx context.Context) (string, error) {
	row, err := s.getRuleSetRow(ctx)
	if err != nil {
		return "", err
	}
	return row.YAML, nil
}

// GetRuleSet returns the full persisted row (yaml, version, updated_at).
func (s *Store) GetRuleSet(ctx context.Context) (RuleSetRow, error) {
	return s.getRuleSetRow(ctx)
}

func (s *Store) getRuleSetRow(ctx context.Context) (RuleSetRow, error) {
	var row RuleSetRow
	err := s.db.GetContext(ctx, &row, `SELECT yaml, version, updated_at FROM rule_sets WHERE id = 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RuleSetRow{}, ErrNoRuleSet
		}
		return RuleSetRow{}, fmt.Errorf("store: get rule set: %w", err)
	}
	return row, nil
}

// PutRuleSet atomically replaces the singleton RuleSet row. On update,
// newVersion must strictly exceed the stored version, otherwise
// ErrVersionConflict is returned; callers (the Rule Engine) compute
// newVersion as the current version plus one, or 1 when no row exists yet.
func (s *Store) PutRuleSet(ctx context.Context, yamlText string, newVersion int64) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rule_sets (id, yaml, version, updated_at) VALUES (1, $1, $2, now())
		ON CONFLICT (id) DO UPDATE SET
			yaml = EXCLUDED.yaml,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		WHERE EXCLUDED.version > rule_sets.version
	`, yamlText, newVersion)
	if err != nil {
		return fmt.Errorf("store: put rule set: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: put rule set rows affected: %w", err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}
