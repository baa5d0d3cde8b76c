package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RuleType identifies a financial rule evaluator.
type RuleType string

// Rule types.
const (
	RuleCashBuffer        RuleType = "cash_buffer"
	RuleRunway            RuleType = "runway"
	RulePaymentClustering RuleType = "payment_clustering"
	RuleConcentration     RuleType = "concentration"
	RuleNegativeWeek      RuleType = "negative_week"
)

// Severity ranks how urgent a breach is.
type Severity string

// Severities, most urgent last.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; higher is more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// ScopeAll marks a rule evaluated against every forecast.
const ScopeAll = "all"

// FinancialRule is a user-configured check run against a forecast.
type FinancialRule struct {
	CreatedAt       time.Time                  `json:"created_at"`
	Threshold       map[string]decimal.Decimal `json:"threshold"`
	ID              string                     `json:"id"`
	UserID          string                     `json:"user_id"`
	Name            string                     `json:"name"`
	RuleType        RuleType                   `json:"rule_type"`
	Severity        Severity                   `json:"severity"`
	EvaluationScope string                     `json:"evaluation_scope"`
	IsActive        bool                       `json:"is_active"`
}

// AppliesTo reports whether the rule should run against a forecast for scenarioID.
// An empty scenarioID denotes the base forecast, which only rules scoped to all see.
func (r FinancialRule) AppliesTo(scenarioID string) bool {
	if !r.IsActive {
		return false
	}
	if r.EvaluationScope == "" || r.EvaluationScope == ScopeAll {
		return true
	}
	return scenarioID != "" && r.EvaluationScope == scenarioID
}

// RuleEvaluation is the outcome of evaluating one rule against one forecast.
// FirstBreachWeek is 0 when the rule is not breached.
type RuleEvaluation struct {
	EvaluatedAt       time.Time       `json:"evaluated_at"`
	FirstBreachDate   *time.Time      `json:"first_breach_date,omitempty"`
	BreachAmount      decimal.Decimal `json:"breach_amount"`
	RuleID            string          `json:"rule_id"`
	RuleName          string          `json:"rule_name"`
	RuleType          RuleType        `json:"rule_type"`
	Severity          Severity        `json:"severity"`
	ScenarioID        string          `json:"scenario_id,omitempty"`
	Message           string          `json:"message"`
	FirstBreachWeek   int             `json:"first_breach_week"`
	ActionWindowWeeks int             `json:"action_window_weeks"`
	IsBreached        bool            `json:"is_breached"`
}
