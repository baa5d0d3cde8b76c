package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/runway/internal/calendar"
	"github.com/Veraticus/runway/internal/common"
	"github.com/Veraticus/runway/internal/model"
	"github.com/shopspring/decimal"
)

const eventColumns = `id, user_id, date, amount, direction, event_type, category, confidence,
	confidence_reason, recurrence_pattern, client_id, bucket_id, obligation_id, gate, is_recurring`

// SaveEvents inserts or replaces canonical events.
func (s *SQLiteStorage) SaveEvents(ctx context.Context, events []model.Event) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateEvents(events); err != nil {
		return err
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, e := range events {
			if err := upsertEvent(ctx, tx, e, ""); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Debug("Saved events", "count", len(events))
	return nil
}

func upsertEvent(ctx context.Context, q queryable, e model.Event, sourceScenarioID string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`, source_scenario_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			date = excluded.date,
			amount = excluded.amount,
			direction = excluded.direction,
			event_type = excluded.event_type,
			category = excluded.category,
			confidence = excluded.confidence,
			confidence_reason = excluded.confidence_reason,
			recurrence_pattern = excluded.recurrence_pattern,
			client_id = excluded.client_id,
			bucket_id = excluded.bucket_id,
			obligation_id = excluded.obligation_id,
			gate = excluded.gate,
			is_recurring = excluded.is_recurring,
			source_scenario_id = excluded.source_scenario_id,
			updated_at = CURRENT_TIMESTAMP
	`, eventArgs(e, sourceScenarioID)...)
	if err != nil {
		return fmt.Errorf("failed to save event %s: %w", e.ID, classify(err))
	}
	return nil
}

func eventArgs(e model.Event, sourceScenarioID string) []any {
	return []any{
		e.ID, e.UserID, calendar.FormatDate(e.Date), e.Amount, string(e.Direction),
		e.EventType, e.Category, string(e.Confidence), e.ConfidenceReason,
		string(e.RecurrencePattern), e.ClientID, e.BucketID, e.ObligationID, e.Gate,
		e.IsRecurring, sourceScenarioID,
	}
}

// GetFutureEvents returns canonical events dated on or after asOf, ordered by date then id.
func (s *SQLiteStorage) GetFutureEvents(ctx context.Context, userID string, asOf time.Time) ([]model.Event, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	return queryEvents(ctx, s.db, `
		SELECT `+eventColumns+`
		FROM events
		WHERE user_id = ? AND date >= ?
		ORDER BY date, id
	`, userID, calendar.FormatDate(asOf))
}

// ListEvents returns every event for a user, ordered by date then id.
func (s *SQLiteStorage) ListEvents(ctx context.Context, userID string) ([]model.Event, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	return queryEvents(ctx, s.db, `
		SELECT `+eventColumns+`
		FROM events
		WHERE user_id = ?
		ORDER BY date, id
	`, userID)
}

// GetEvent retrieves one event by id.
func (s *SQLiteStorage) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return getEventTx(ctx, s.db, id)
}

func getEventTx(ctx context.Context, q queryable, id string) (*model.Event, error) {
	row := q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (model.Event, error) {
	var (
		e                                model.Event
		date, direction, confidence, rec string
	)
	err := row.Scan(
		&e.ID, &e.UserID, &date, &e.Amount, &direction, &e.EventType, &e.Category,
		&confidence, &e.ConfidenceReason, &rec, &e.ClientID, &e.BucketID,
		&e.ObligationID, &e.Gate, &e.IsRecurring,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("failed to scan event: %w", err)
	}

	e.Date, err = calendar.ParseDate(date)
	if err != nil {
		return e, fmt.Errorf("event %s has bad date %q: %w", e.ID, date, err)
	}
	e.Direction = model.Direction(direction)
	e.Confidence = model.Confidence(confidence)
	e.RecurrencePattern = model.RecurrencePattern(rec)
	return e, nil
}

func queryEvents(ctx context.Context, q queryable, query string, args ...any) ([]model.Event, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", classify(err))
	}
	defer func() { _ = rows.Close() }()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// SetStartingCash records the cash position forecasts start from.
func (s *SQLiteStorage) SetStartingCash(ctx context.Context, userID string, amount decimal.Decimal) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_positions (user_id, amount, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			amount = excluded.amount,
			updated_at = CURRENT_TIMESTAMP
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to set starting cash: %w", classify(err))
	}
	return nil
}

// GetStartingCash returns the recorded cash position, or zero when none is set.
func (s *SQLiteStorage) GetStartingCash(ctx context.Context, userID string) (decimal.Decimal, error) {
	if err := validateContext(ctx); err != nil {
		return decimal.Zero, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return decimal.Zero, err
	}

	var amount decimal.Decimal
	err := s.db.QueryRowContext(ctx, `SELECT amount FROM cash_positions WHERE user_id = ?`, userID).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get starting cash: %w", classify(err))
	}
	return amount, nil
}
