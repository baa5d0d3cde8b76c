// Package rules evaluates user-configured financial rules against forecasts.
//
// Evaluation is a pure function of a rule and a forecast: nothing is cached and
// EvaluatedAt is left for the caller to stamp when it persists the result.
package rules

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Veraticus/runway/internal/common"
	"github.com/Veraticus/runway/internal/model"
	"github.com/shopspring/decimal"
)

// Engine evaluates rules against forecasts.
type Engine struct{}

// NewEngine creates a rule engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Validate checks that a rule has a known type and severity and the threshold
// keys its type needs.
func Validate(rule model.FinancialRule) error {
	keys, ok := requiredKeys[rule.RuleType]
	if !ok {
		return common.NewValidationError("rule_type", "unknown rule type %q", rule.RuleType)
	}
	if rule.Severity.Rank() == 0 {
		return common.NewValidationError("severity", "unknown severity %q", rule.Severity)
	}
	if strings.TrimSpace(rule.Name) == "" {
		return common.NewValidationError("name", "is required")
	}
	if len(keys) > 0 {
		found := false
		for _, k := range keys {
			if _, ok := rule.Threshold[k]; ok {
				found = true
			}
		}
		if !found {
			return common.NewValidationError("threshold", "%s rules need %s", rule.RuleType, strings.Join(keys, " or "))
		}
	}
	for k, v := range rule.Threshold {
		if v.IsNegative() && k != KeyMinNet && k != KeyMinBalance {
			return common.NewValidationError("threshold."+k, "must not be negative")
		}
	}
	return nil
}

// Evaluate runs one rule against a forecast.
func (e *Engine) Evaluate(rule model.FinancialRule, f *model.Forecast) (model.RuleEvaluation, error) {
	eval, ok := evaluators[rule.RuleType]
	if !ok {
		return model.RuleEvaluation{}, common.NewValidationError("rule_type", "unknown rule type %q", rule.RuleType)
	}
	return eval(rule, f), nil
}

// EvaluateAll runs every active rule in scope for scenarioID against f. An
// empty scenarioID denotes the base forecast. Rules are evaluated
// independently; an invalid rule is skipped without affecting the rest.
// Results are ordered by severity (most urgent first), then by first breach
// week with unbreached rules last, then by rule id.
func (e *Engine) EvaluateAll(rules []model.FinancialRule, f *model.Forecast, scenarioID string) []model.RuleEvaluation {
	out := make([]model.RuleEvaluation, 0, len(rules))
	for _, rule := range rules {
		if !rule.AppliesTo(scenarioID) {
			continue
		}
		ev, err := e.Evaluate(rule, f)
		if err != nil {
			slog.Warn("Skipping rule", "rule_id", rule.ID, "error", err)
			continue
		}
		ev.ScenarioID = scenarioID
		out = append(out, ev)
	}
	Sort(out)
	return out
}

// Sort orders evaluations for presentation.
func Sort(evals []model.RuleEvaluation) {
	sort.SliceStable(evals, func(i, j int) bool {
		a, b := evals[i], evals[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.IsBreached != b.IsBreached {
			return a.IsBreached
		}
		if a.FirstBreachWeek != b.FirstBreachWeek {
			return a.FirstBreachWeek < b.FirstBreachWeek
		}
		return a.RuleID < b.RuleID
	})
}

// Breached returns the breached evaluations.
func Breached(evals []model.RuleEvaluation) []model.RuleEvaluation {
	var out []model.RuleEvaluation
	for _, ev := range evals {
		if ev.IsBreached {
			out = append(out, ev)
		}
	}
	return out
}

func newEvaluation(rule model.FinancialRule, f *model.Forecast) model.RuleEvaluation {
	return model.RuleEvaluation{
		RuleID:       rule.ID,
		RuleName:     rule.Name,
		RuleType:     rule.RuleType,
		Severity:     rule.Severity,
		ScenarioID:   f.ScenarioID,
		BreachAmount: decimal.Zero,
	}
}

// Describe renders a rule's thresholds as key=value pairs in key order.
func Describe(rule model.FinancialRule) string {
	keys := make([]string, 0, len(rule.Threshold))
	for k := range rule.Threshold {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, rule.Threshold[k])
	}
	return strings.Join(parts, " ")
}
