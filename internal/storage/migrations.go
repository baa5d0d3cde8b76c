package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Events and cash positions",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS events (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					date TEXT NOT NULL,
					amount TEXT NOT NULL,
					direction TEXT NOT NULL CHECK (direction IN ('in', 'out')),
					event_type TEXT NOT NULL DEFAULT '',
					category TEXT NOT NULL DEFAULT '',
					confidence TEXT NOT NULL,
					confidence_reason TEXT NOT NULL DEFAULT '',
					recurrence_pattern TEXT NOT NULL DEFAULT '',
					client_id TEXT NOT NULL DEFAULT '',
					bucket_id TEXT NOT NULL DEFAULT '',
					obligation_id TEXT NOT NULL DEFAULT '',
					gate TEXT NOT NULL DEFAULT '',
					is_recurring BOOLEAN NOT NULL DEFAULT 0,
					source_scenario_id TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_events_user_date ON events(user_id, date)`,
				`CREATE INDEX idx_events_client ON events(client_id)`,
				`CREATE INDEX idx_events_bucket ON events(bucket_id)`,

				`CREATE TABLE IF NOT EXISTS cash_positions (
					user_id TEXT PRIMARY KEY,
					amount TEXT NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Scenarios, deltas and commit ledger",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS scenarios (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					scenario_type TEXT NOT NULL,
					entry_path TEXT NOT NULL,
					stage TEXT NOT NULL,
					params TEXT NOT NULL DEFAULT '{}',
					linked TEXT NOT NULL DEFAULT '{}',
					scope TEXT NOT NULL DEFAULT '{}',
					version INTEGER NOT NULL DEFAULT 1,
					confirmed_at DATETIME,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_scenarios_user ON scenarios(user_id, created_at)`,

				`CREATE TABLE IF NOT EXISTS scenario_deltas (
					scenario_id TEXT PRIMARY KEY,
					delta_id TEXT NOT NULL,
					net_cash_impact TEXT NOT NULL,
					payload TEXT NOT NULL,
					computed_at DATETIME NOT NULL,
					FOREIGN KEY (scenario_id) REFERENCES scenarios(id) ON DELETE CASCADE
				)`,

				`CREATE TABLE IF NOT EXISTS committed_deltas (
					delta_id TEXT PRIMARY KEY,
					scenario_id TEXT NOT NULL,
					events_affected INTEGER NOT NULL,
					committed_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Financial rules and evaluation audit trail",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS financial_rules (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					name TEXT NOT NULL,
					rule_type TEXT NOT NULL,
					severity TEXT NOT NULL,
					evaluation_scope TEXT NOT NULL DEFAULT 'all',
					threshold TEXT NOT NULL DEFAULT '{}',
					is_active BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_financial_rules_user ON financial_rules(user_id)`,

				`CREATE TABLE IF NOT EXISTS rule_evaluations (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					rule_id TEXT NOT NULL,
					scenario_id TEXT,
					severity TEXT NOT NULL,
					is_breached BOOLEAN NOT NULL,
					first_breach_week INTEGER NOT NULL DEFAULT 0,
					first_breach_date TEXT,
					breach_amount TEXT NOT NULL,
					action_window_weeks INTEGER NOT NULL DEFAULT 0,
					message TEXT NOT NULL DEFAULT '',
					evaluated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_rule_evaluations_rule ON rule_evaluations(rule_id, scenario_id)`,
			})
		},
	},
}

// Migrate brings the schema up to ExpectedSchemaVersion. Applied versions are
// tracked with PRAGMA user_version.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
