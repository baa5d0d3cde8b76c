package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/runway/internal/common"
	"github.com/Veraticus/runway/internal/model"
)

// errEventChanged marks a canonical event that no longer matches the payload a
// delta was computed against.
var errEventChanged = errors.New("event changed since the scenario was applied")

// CommitDelta writes a delta into canonical events in one transaction. Created
// events become canonical, modifications replace the stored row and deletions
// remove it. Every modified or deleted event must still match the payload the
// delta saw; otherwise nothing is written and a *common.CommitConflictError is
// returned. Committing the same delta id twice is a no-op.
func (s *SQLiteStorage) CommitDelta(ctx context.Context, delta *model.ScenarioDelta) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateDelta(delta); err != nil {
		return err
	}

	alreadyCommitted := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM committed_deltas WHERE delta_id = ?)`, delta.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check commit ledger: %w", classify(err))
		}
		if exists {
			alreadyCommitted = true
			return nil
		}

		for _, c := range delta.UpdatedEvents {
			if err := applyChange(ctx, tx, delta.ScenarioID, c); err != nil {
				return err
			}
		}
		for _, c := range delta.CreatedEvents {
			if err := createEvent(ctx, tx, delta.ScenarioID, c.Event); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO committed_deltas (delta_id, scenario_id, events_affected)
			VALUES (?, ?, ?)
		`, delta.ID, delta.ScenarioID, delta.TotalEventsAffected)
		if err != nil {
			return fmt.Errorf("failed to record commit: %w", classify(err))
		}
		return nil
	})
	if err != nil {
		return err
	}

	if alreadyCommitted {
		slog.Info("Delta already committed", "delta_id", delta.ID, "scenario_id", delta.ScenarioID)
		return nil
	}
	slog.Debug("Committed delta",
		"delta_id", delta.ID,
		"scenario_id", delta.ScenarioID,
		"events_affected", delta.TotalEventsAffected)
	return nil
}

// IsCommitted reports whether a delta id has been written.
func (s *SQLiteStorage) IsCommitted(ctx context.Context, deltaID string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM committed_deltas WHERE delta_id = ?)`, deltaID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check commit ledger: %w", classify(err))
	}
	return exists, nil
}

func applyChange(ctx context.Context, tx *sql.Tx, scenarioID string, c model.EventChange) error {
	current, err := getEventTx(ctx, tx, c.OriginalEventID)
	if errors.Is(err, common.ErrNotFound) {
		return &common.CommitConflictError{EventID: c.OriginalEventID, Err: err}
	}
	if err != nil {
		return err
	}
	if c.Previous != nil && !samePayload(*current, *c.Previous) {
		return &common.CommitConflictError{EventID: c.OriginalEventID, Err: errEventChanged}
	}

	switch c.Operation {
	case model.OperationModify:
		e := c.Event
		e.ID = c.OriginalEventID
		e.UserID = current.UserID
		e.ScenarioID = ""
		return upsertEvent(ctx, tx, e, scenarioID)
	case model.OperationDelete:
		if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, c.OriginalEventID); err != nil {
			return fmt.Errorf("failed to delete event %s: %w", c.OriginalEventID, classify(err))
		}
		return nil
	default:
		return fmt.Errorf("unexpected %s operation on event %s", c.Operation, c.OriginalEventID)
	}
}

func createEvent(ctx context.Context, tx *sql.Tx, scenarioID string, e model.Event) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM events WHERE id = ?)`, e.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check event %s: %w", e.ID, classify(err))
	}
	if exists {
		return &common.CommitConflictError{EventID: e.ID, Err: common.ErrDuplicateEntry}
	}
	e.ScenarioID = ""
	return upsertEvent(ctx, tx, e, scenarioID)
}

// samePayload compares the fields a scenario reads when building a delta.
func samePayload(a, b model.Event) bool {
	return a.Date.Equal(b.Date) &&
		a.Amount.Equal(b.Amount) &&
		a.Direction == b.Direction &&
		a.Confidence == b.Confidence
}
