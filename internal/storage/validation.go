package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/runway/internal/common"
	"github.com/Veraticus/runway/internal/model"
	"github.com/mattn/go-sqlite3"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
	ErrEmptySlice   = errors.New("slice cannot be empty")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateEvents(events []model.Event) error {
	if events == nil {
		return fmt.Errorf("%w: events", ErrNilParameter)
	}
	if len(events) == 0 {
		return fmt.Errorf("%w: events", ErrEmptySlice)
	}
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("event at index %d: %w", i, err)
		}
		if e.UserID == "" {
			return fmt.Errorf("event at index %d: %w: %s missing user id", i, model.ErrInvalidEvent, e.ID)
		}
	}
	return nil
}

func validateScenario(def *model.ScenarioDefinition) error {
	if def == nil {
		return fmt.Errorf("%w: scenario", ErrNilParameter)
	}
	if err := validateString(def.ID, "scenario.id"); err != nil {
		return err
	}
	if err := validateString(def.UserID, "scenario.user_id"); err != nil {
		return err
	}
	if !def.Type.Valid() {
		return common.NewValidationError("scenario_type", "unknown scenario type %q", def.Type)
	}
	return nil
}

func validateDelta(delta *model.ScenarioDelta) error {
	if delta == nil {
		return fmt.Errorf("%w: delta", ErrNilParameter)
	}
	if err := validateString(delta.ID, "delta.id"); err != nil {
		return err
	}
	if err := validateString(delta.ScenarioID, "delta.scenario_id"); err != nil {
		return err
	}
	return delta.Validate()
}

func validateRule(rule *model.FinancialRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := validateString(rule.ID, "rule.id"); err != nil {
		return err
	}
	if err := validateString(rule.UserID, "rule.user_id"); err != nil {
		return err
	}
	return validateString(rule.Name, "rule.name")
}

// classify maps SQLite lock contention onto common.ErrStorageBusy so callers
// can retry with common.WithRetry.
func classify(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %w", common.ErrStorageBusy, err)
		}
	}
	return err
}
