package model

import (
	"slices"
	"strings"
	"time"
)

// ScenarioType is the closed set of scenario kinds.
type ScenarioType string

// Scenario types.
const (
	ScenarioPaymentDelayIn   ScenarioType = "payment_delay_in"
	ScenarioPaymentDelayOut  ScenarioType = "payment_delay_out"
	ScenarioClientLoss       ScenarioType = "client_loss"
	ScenarioClientGain       ScenarioType = "client_gain"
	ScenarioClientChange     ScenarioType = "client_change"
	ScenarioHiring           ScenarioType = "hiring"
	ScenarioFiring           ScenarioType = "firing"
	ScenarioContractorGain   ScenarioType = "contractor_gain"
	ScenarioContractorLoss   ScenarioType = "contractor_loss"
	ScenarioIncreasedExpense ScenarioType = "increased_expense"
	ScenarioDecreasedExpense ScenarioType = "decreased_expense"
)

// AllScenarioTypes lists every scenario type in display order.
func AllScenarioTypes() []ScenarioType {
	return []ScenarioType{
		ScenarioPaymentDelayIn,
		ScenarioPaymentDelayOut,
		ScenarioClientLoss,
		ScenarioClientGain,
		ScenarioClientChange,
		ScenarioHiring,
		ScenarioFiring,
		ScenarioContractorGain,
		ScenarioContractorLoss,
		ScenarioIncreasedExpense,
		ScenarioDecreasedExpense,
	}
}

// Valid reports whether t is a known scenario type.
func (t ScenarioType) Valid() bool {
	return slices.Contains(AllScenarioTypes(), t)
}

// EntryPath records how a scenario was initiated.
type EntryPath string

// Entry paths.
const (
	EntryManual    EntryPath = "manual"
	EntrySuggested EntryPath = "suggested"
)

// Stage is a position in the scenario pipeline.
type Stage string

// Pipeline stages.
const (
	StageSeeded           Stage = "seeded"
	StageCollectingParams Stage = "collecting_params"
	StageCollectingLinked Stage = "collecting_linked"
	StageApplying         Stage = "applying"
	StageEvaluating       Stage = "evaluating"
	StageCommitted        Stage = "committed"
	StageDiscarded        Stage = "discarded"
)

// Terminal reports whether no further transitions are possible.
func (s Stage) Terminal() bool {
	return s == StageCommitted || s == StageDiscarded
}

// ScenarioStatus is the coarse lifecycle status derived from the stage.
type ScenarioStatus string

// Scenario statuses.
const (
	StatusDraft     ScenarioStatus = "draft"
	StatusReady     ScenarioStatus = "ready"
	StatusApplied   ScenarioStatus = "applied"
	StatusCommitted ScenarioStatus = "committed"
	StatusDiscarded ScenarioStatus = "discarded"
)

// Scope selects which clients, expense buckets or events a scenario targets.
// Fields are populated progressively as prompts are answered.
type Scope struct {
	ClientIDs []string `json:"client_ids,omitempty"`
	BucketIDs []string `json:"bucket_ids,omitempty"`
	EventIDs  []string `json:"event_ids,omitempty"`
}

// Scope parameter keys.
const (
	ScopeClientIDs = "scope.client_ids"
	ScopeBucketIDs = "scope.bucket_ids"
	ScopeEventIDs  = "scope.event_ids"
)

// IsScopeKey reports whether key addresses a scope field.
func IsScopeKey(key string) bool {
	return strings.HasPrefix(key, "scope.")
}

// Field returns the list stored under a scope key.
func (s Scope) Field(key string) []string {
	switch key {
	case ScopeClientIDs:
		return s.ClientIDs
	case ScopeBucketIDs:
		return s.BucketIDs
	case ScopeEventIDs:
		return s.EventIDs
	default:
		return nil
	}
}

// Set stores values under a scope key. It reports false for unknown keys.
func (s *Scope) Set(key string, values []string) bool {
	switch key {
	case ScopeClientIDs:
		s.ClientIDs = values
	case ScopeBucketIDs:
		s.BucketIDs = values
	case ScopeEventIDs:
		s.EventIDs = values
	default:
		return false
	}
	return true
}

// LinkedType names a category of secondary effect a scenario can offer.
type LinkedType string

// Linked effect types.
const (
	LinkedReduceContractors    LinkedType = "reduce_contractors"
	LinkedReduceTools          LinkedType = "reduce_tools"
	LinkedReduceProjectCosts   LinkedType = "reduce_project_costs"
	LinkedAdjustDeliveryCosts  LinkedType = "adjust_delivery_costs"
	LinkedRevenueGrowth        LinkedType = "revenue_growth"
	LinkedReducedCapacity      LinkedType = "reduced_capacity"
	LinkedClusteringMitigation LinkedType = "clustering_mitigation"
)

// LinkedAnswer is the user's response to a linked prompt.
type LinkedAnswer struct {
	Params   map[string]string `json:"params,omitempty"`
	Accepted bool              `json:"accepted"`
	Skipped  bool              `json:"skipped"`
}

// Answered reports whether the prompt was accepted or explicitly skipped.
func (a LinkedAnswer) Answered() bool {
	return a.Accepted || a.Skipped
}

// ScenarioDefinition is a scenario's declared intent.
type ScenarioDefinition struct {
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
	ConfirmedAt *time.Time                  `json:"confirmed_at,omitempty"`
	Params      map[string]string           `json:"params"`
	Linked      map[LinkedType]LinkedAnswer `json:"linked"`
	ID          string                      `json:"id"`
	UserID      string                      `json:"user_id"`
	Type        ScenarioType                `json:"scenario_type"`
	EntryPath   EntryPath                   `json:"entry_path"`
	Stage       Stage                       `json:"stage"`
	Scope       Scope                       `json:"scope"`
	Version     int                         `json:"version"`
}

// Status derives the lifecycle status from the pipeline stage.
func (d *ScenarioDefinition) Status() ScenarioStatus {
	switch d.Stage {
	case StageCollectingLinked, StageApplying:
		return StatusReady
	case StageEvaluating:
		return StatusApplied
	case StageCommitted:
		return StatusCommitted
	case StageDiscarded:
		return StatusDiscarded
	default:
		return StatusDraft
	}
}

// Value returns the raw answer stored for key. Scope keys are joined with commas.
func (d *ScenarioDefinition) Value(key string) string {
	if IsScopeKey(key) {
		return strings.Join(d.Scope.Field(key), ",")
	}
	return strings.TrimSpace(d.Params[key])
}

// Has reports whether key resolves to a non-empty value. List-valued scope
// fields count as missing when empty.
func (d *ScenarioDefinition) Has(key string) bool {
	if IsScopeKey(key) {
		return len(d.Scope.Field(key)) > 0
	}
	return strings.TrimSpace(d.Params[key]) != ""
}
