package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Veraticus/runway/internal/calendar"
	"github.com/Veraticus/runway/internal/common"
	"github.com/Veraticus/runway/internal/model"
	"github.com/shopspring/decimal"
)

// SaveRule inserts or replaces a financial rule.
func (s *SQLiteStorage) SaveRule(ctx context.Context, rule *model.FinancialRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	if rule.EvaluationScope == "" {
		rule.EvaluationScope = model.ScopeAll
	}

	threshold, err := json.Marshal(rule.Threshold)
	if err != nil {
		return fmt.Errorf("failed to encode threshold: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO financial_rules (id, user_id, name, rule_type, severity, evaluation_scope, threshold, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			rule_type = excluded.rule_type,
			severity = excluded.severity,
			evaluation_scope = excluded.evaluation_scope,
			threshold = excluded.threshold,
			is_active = excluded.is_active
	`, rule.ID, rule.UserID, rule.Name, string(rule.RuleType), string(rule.Severity),
		rule.EvaluationScope, string(threshold), rule.IsActive, rule.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", classify(err))
	}
	return nil
}

// ListRules returns a user's rules ordered by id.
func (s *SQLiteStorage) ListRules(ctx context.Context, userID string) ([]model.FinancialRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, rule_type, severity, evaluation_scope, threshold, is_active, created_at
		FROM financial_rules
		WHERE user_id = ?
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", classify(err))
	}
	defer func() { _ = rows.Close() }()

	var rules []model.FinancialRule
	for rows.Next() {
		var (
			r         model.FinancialRule
			typ, sev  string
			threshold string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Name, &typ, &sev, &r.EvaluationScope, &threshold, &r.IsActive, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		r.RuleType = model.RuleType(typ)
		r.Severity = model.Severity(sev)
		r.Threshold = map[string]decimal.Decimal{}
		if err := json.Unmarshal([]byte(threshold), &r.Threshold); err != nil {
			return nil, fmt.Errorf("rule %s has corrupt threshold: %w", r.ID, err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

// DeleteRule removes a rule.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM financial_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("rule %s: %w", id, common.ErrNotFound)
	}
	return nil
}

// SaveEvaluations appends evaluation rows to the audit trail. A blank
// ScenarioID is stored as NULL, marking an evaluation of the base forecast.
func (s *SQLiteStorage) SaveEvaluations(ctx context.Context, evaluations []model.RuleEvaluation) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(evaluations) == 0 {
		return nil
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertEvaluations(ctx, tx, evaluations)
	})
}

func insertEvaluations(ctx context.Context, tx *sql.Tx, evaluations []model.RuleEvaluation) error {
	if len(evaluations) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rule_evaluations (
			rule_id, scenario_id, severity, is_breached, first_breach_week, first_breach_date,
			breach_amount, action_window_weeks, message, evaluated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare evaluation insert: %w", classify(err))
	}
	defer func() { _ = stmt.Close() }()

	for _, ev := range evaluations {
		var scenarioID, breachDate sql.NullString
		if ev.ScenarioID != "" {
			scenarioID = sql.NullString{String: ev.ScenarioID, Valid: true}
		}
		if ev.FirstBreachDate != nil {
			breachDate = sql.NullString{String: calendar.FormatDate(*ev.FirstBreachDate), Valid: true}
		}
		evaluatedAt := ev.EvaluatedAt
		if evaluatedAt.IsZero() {
			evaluatedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			ev.RuleID, scenarioID, string(ev.Severity), ev.IsBreached, ev.FirstBreachWeek, breachDate,
			ev.BreachAmount, ev.ActionWindowWeeks, ev.Message, evaluatedAt,
		); err != nil {
			return fmt.Errorf("failed to save evaluation for rule %s: %w", ev.RuleID, classify(err))
		}
	}
	return nil
}

// CountEvaluations returns how many audit rows exist for a rule and scenario.
// An empty scenarioID counts base-forecast rows.
func (s *SQLiteStorage) CountEvaluations(ctx context.Context, ruleID, scenarioID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM rule_evaluations
		WHERE rule_id = ? AND COALESCE(scenario_id, '') = ?
	`, ruleID, scenarioID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count evaluations: %w", classify(err))
	}
	return n, nil
}
