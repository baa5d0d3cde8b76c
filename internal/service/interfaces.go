// Package service defines the interfaces between the scenario pipeline and its
// collaborators: the event store, the baseline forecaster and scenario persistence.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/runway/internal/model"
	"github.com/shopspring/decimal"
)

// EventSource supplies the read-only snapshot handlers and the compositor operate on.
type EventSource interface {
	// GetFutureEvents returns canonical events dated on or after asOf, ordered by date then id.
	GetFutureEvents(ctx context.Context, userID string, asOf time.Time) ([]model.Event, error)
}

// CashSource supplies the cash position a forecast starts from.
type CashSource interface {
	GetStartingCash(ctx context.Context, userID string) (decimal.Decimal, error)
}

// BaselineForecaster computes the canonical forecast every layered forecast is diffed against.
type BaselineForecaster interface {
	ComputeBaseline(ctx context.Context, userID string, asOf time.Time, weeks int) (*model.Forecast, error)
}

// DeltaCommitter writes a delta into canonical event storage. The write is atomic
// and idempotent for a given delta ID.
type DeltaCommitter interface {
	CommitDelta(ctx context.Context, delta *model.ScenarioDelta) error
}

// ScenarioStore persists scenario definitions and their most recent delta.
type ScenarioStore interface {
	CreateScenario(ctx context.Context, def *model.ScenarioDefinition) error
	GetScenario(ctx context.Context, id string) (*model.ScenarioDefinition, error)
	// UpdateScenario stores def if its Version still matches, then increments it.
	UpdateScenario(ctx context.Context, def *model.ScenarioDefinition) error
	ListScenarios(ctx context.Context, userID string) ([]model.ScenarioDefinition, error)

	SaveDelta(ctx context.Context, delta *model.ScenarioDelta) error
	GetDelta(ctx context.Context, scenarioID string) (*model.ScenarioDelta, error)
	DeleteDelta(ctx context.Context, scenarioID string) error

	// TransitionScenario stores a stage change together with the delta and
	// evaluation rows it produced. Either every write lands or none does.
	TransitionScenario(ctx context.Context, t ScenarioTransition) error
}

// ScenarioTransition is one atomic scenario write.
type ScenarioTransition struct {
	// Definition is updated under the same version check as UpdateScenario.
	Definition *model.ScenarioDefinition
	// Delta replaces any stored delta when set.
	Delta *model.ScenarioDelta
	// DropDelta removes the stored delta. It is ignored when Delta is set.
	DropDelta   bool
	Evaluations []model.RuleEvaluation
}

// RuleStore persists user-configured financial rules.
type RuleStore interface {
	SaveRule(ctx context.Context, rule *model.FinancialRule) error
	ListRules(ctx context.Context, userID string) ([]model.FinancialRule, error)
	DeleteRule(ctx context.Context, id string) error
}

// EvaluationStore keeps rule evaluations as an audit trail. Rows are never read
// back as a cache; evaluations are always recomputed.
type EvaluationStore interface {
	SaveEvaluations(ctx context.Context, evaluations []model.RuleEvaluation) error
}

// EventWriter manages canonical events outside the scenario pipeline (imports, manual entry).
type EventWriter interface {
	SaveEvents(ctx context.Context, events []model.Event) error
	SetStartingCash(ctx context.Context, userID string, amount decimal.Decimal) error
}

// Storage is the full persistence contract implemented by the SQLite store.
type Storage interface {
	EventSource
	CashSource
	DeltaCommitter
	ScenarioStore
	RuleStore
	EvaluationStore
	EventWriter

	ListEvents(ctx context.Context, userID string) ([]model.Event, error)
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
