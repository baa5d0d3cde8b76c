package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/runway/internal/common"
	"github.com/Veraticus/runway/internal/model"
	"github.com/Veraticus/runway/internal/service"
)

const scenarioColumns = `id, user_id, scenario_type, entry_path, stage, params, linked, scope,
	version, confirmed_at, created_at, updated_at`

// CreateScenario inserts a new scenario definition at version 1.
func (s *SQLiteStorage) CreateScenario(ctx context.Context, def *model.ScenarioDefinition) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateScenario(def); err != nil {
		return err
	}

	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now
	def.Version = 1

	params, linked, scope, err := encodeScenario(def)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scenarios (`+scenarioColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, def.ID, def.UserID, string(def.Type), string(def.EntryPath), string(def.Stage),
		params, linked, scope, def.Version, def.ConfirmedAt, def.CreatedAt, def.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create scenario: %w", classify(err))
	}

	slog.Debug("Created scenario", "scenario_id", def.ID, "type", def.Type)
	return nil
}

// GetScenario retrieves a scenario definition by id.
func (s *SQLiteStorage) GetScenario(ctx context.Context, id string) (*model.ScenarioDefinition, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+scenarioColumns+` FROM scenarios WHERE id = ?`, id)
	def, err := scanScenario(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scenario %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return def, nil
}

// UpdateScenario stores def if its Version still matches the stored row, then
// increments def.Version.
func (s *SQLiteStorage) UpdateScenario(ctx context.Context, def *model.ScenarioDefinition) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateScenario(def); err != nil {
		return err
	}

	updatedAt, err := updateScenario(ctx, s.db, def)
	if err != nil {
		return err
	}
	def.Version++
	def.UpdatedAt = updatedAt
	return nil
}

// TransitionScenario writes the definition, the delta change and the
// evaluation rows in one transaction. def.Version only advances once the
// transaction commits.
func (s *SQLiteStorage) TransitionScenario(ctx context.Context, t service.ScenarioTransition) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateScenario(t.Definition); err != nil {
		return err
	}
	if t.Delta != nil {
		if err := validateDelta(t.Delta); err != nil {
			return err
		}
		if t.Delta.ScenarioID != t.Definition.ID {
			return common.NewValidationError("delta.scenario_id", "delta belongs to scenario %s, not %s", t.Delta.ScenarioID, t.Definition.ID)
		}
	}

	var updatedAt time.Time
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		switch {
		case t.Delta != nil:
			err = saveDelta(ctx, tx, t.Delta)
		case t.DropDelta:
			err = deleteDelta(ctx, tx, t.Definition.ID)
		}
		if err != nil {
			return err
		}
		if err := insertEvaluations(ctx, tx, t.Evaluations); err != nil {
			return err
		}
		updatedAt, err = updateScenario(ctx, tx, t.Definition)
		return err
	})
	if err != nil {
		return err
	}

	t.Definition.Version++
	t.Definition.UpdatedAt = updatedAt
	return nil
}

func updateScenario(ctx context.Context, q queryable, def *model.ScenarioDefinition) (time.Time, error) {
	params, linked, scope, err := encodeScenario(def)
	if err != nil {
		return time.Time{}, err
	}
	updatedAt := time.Now().UTC()

	res, err := q.ExecContext(ctx, `
		UPDATE scenarios SET
			stage = ?,
			params = ?,
			linked = ?,
			scope = ?,
			confirmed_at = ?,
			updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`, string(def.Stage), params, linked, scope, def.ConfirmedAt, updatedAt, def.ID, def.Version)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to update scenario: %w", classify(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM scenarios WHERE id = ?)`, def.ID).Scan(&exists); err != nil {
			return time.Time{}, fmt.Errorf("failed to check scenario existence: %w", err)
		}
		if !exists {
			return time.Time{}, fmt.Errorf("scenario %s: %w", def.ID, common.ErrNotFound)
		}
		return time.Time{}, fmt.Errorf("scenario %s at version %d: %w", def.ID, def.Version, common.ErrVersionConflict)
	}
	return updatedAt, nil
}

// ListScenarios returns a user's scenarios, newest first.
func (s *SQLiteStorage) ListScenarios(ctx context.Context, userID string) ([]model.ScenarioDefinition, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scenarioColumns+`
		FROM scenarios
		WHERE user_id = ?
		ORDER BY created_at DESC, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenarios: %w", classify(err))
	}
	defer func() { _ = rows.Close() }()

	var defs []model.ScenarioDefinition
	for rows.Next() {
		def, err := scanScenario(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scenarios: %w", err)
	}
	return defs, nil
}

func encodeScenario(def *model.ScenarioDefinition) (params, linked, scope []byte, err error) {
	if params, err = json.Marshal(nonNilParams(def.Params)); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode params: %w", err)
	}
	if def.Linked == nil {
		linked = []byte("{}")
	} else if linked, err = json.Marshal(def.Linked); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode linked answers: %w", err)
	}
	if scope, err = json.Marshal(def.Scope); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode scope: %w", err)
	}
	return params, linked, scope, nil
}

func nonNilParams(p map[string]string) map[string]string {
	if p == nil {
		return map[string]string{}
	}
	return p
}

func scanScenario(row scanner) (*model.ScenarioDefinition, error) {
	var (
		def                   model.ScenarioDefinition
		typ, entry, stage     string
		params, linked, scope []byte
		confirmedAt           sql.NullTime
	)
	err := row.Scan(&def.ID, &def.UserID, &typ, &entry, &stage, &params, &linked, &scope,
		&def.Version, &confirmedAt, &def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan scenario: %w", err)
	}

	def.Type = model.ScenarioType(typ)
	def.EntryPath = model.EntryPath(entry)
	def.Stage = model.Stage(stage)
	if confirmedAt.Valid {
		t := confirmedAt.Time
		def.ConfirmedAt = &t
	}
	if err := json.Unmarshal(params, &def.Params); err != nil {
		return nil, fmt.Errorf("scenario %s has corrupt params: %w", def.ID, err)
	}
	if err := json.Unmarshal(linked, &def.Linked); err != nil {
		return nil, fmt.Errorf("scenario %s has corrupt linked answers: %w", def.ID, err)
	}
	if err := json.Unmarshal(scope, &def.Scope); err != nil {
		return nil, fmt.Errorf("scenario %s has corrupt scope: %w", def.ID, err)
	}
	if def.Params == nil {
		def.Params = map[string]string{}
	}
	if def.Linked == nil {
		def.Linked = map[model.LinkedType]model.LinkedAnswer{}
	}
	return &def, nil
}

// SaveDelta stores the latest delta for a scenario, replacing any earlier one.
func (s *SQLiteStorage) SaveDelta(ctx context.Context, delta *model.ScenarioDelta) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateDelta(delta); err != nil {
		return err
	}
	return saveDelta(ctx, s.db, delta)
}

func saveDelta(ctx context.Context, q queryable, delta *model.ScenarioDelta) error {
	payload, err := json.Marshal(delta)
	if err != nil {
		return fmt.Errorf("failed to encode delta: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO scenario_deltas (scenario_id, delta_id, net_cash_impact, payload, computed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(scenario_id) DO UPDATE SET
			delta_id = excluded.delta_id,
			net_cash_impact = excluded.net_cash_impact,
			payload = excluded.payload,
			computed_at = excluded.computed_at
	`, delta.ScenarioID, delta.ID, delta.NetCashImpact, payload, delta.ComputedAt)
	if err != nil {
		return fmt.Errorf("failed to save delta: %w", classify(err))
	}
	return nil
}

// GetDelta returns the stored delta for a scenario.
func (s *SQLiteStorage) GetDelta(ctx context.Context, scenarioID string) (*model.ScenarioDelta, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(scenarioID, "scenarioID"); err != nil {
		return nil, err
	}

	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM scenario_deltas WHERE scenario_id = ?`, scenarioID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("delta for scenario %s: %w", scenarioID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delta: %w", classify(err))
	}

	var delta model.ScenarioDelta
	if err := json.Unmarshal(payload, &delta); err != nil {
		return nil, fmt.Errorf("delta for scenario %s is corrupt: %w", scenarioID, err)
	}
	return &delta, nil
}

// DeleteDelta removes the stored delta for a scenario. Deleting a missing delta is not an error.
func (s *SQLiteStorage) DeleteDelta(ctx context.Context, scenarioID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(scenarioID, "scenarioID"); err != nil {
		return err
	}

	return deleteDelta(ctx, s.db, scenarioID)
}

func deleteDelta(ctx context.Context, q queryable, scenarioID string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM scenario_deltas WHERE scenario_id = ?`, scenarioID); err != nil {
		return fmt.Errorf("failed to delete delta: %w", classify(err))
	}
	return nil
}
