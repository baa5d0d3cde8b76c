package storage

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/runway/internal/common"
	"github.com/Veraticus/runway/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRules_SaveListDelete(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	buffer := &model.FinancialRule{
		ID:        "buffer",
		UserID:    "u1",
		Name:      "Keep a buffer",
		RuleType:  model.RuleCashBuffer,
		Severity:  model.SeverityCritical,
		Threshold: map[string]decimal.Decimal{"min_balance": decimal.RequireFromString("25000.50")},
		IsActive:  true,
	}
	clustering := &model.FinancialRule{
		ID:              "clustering",
		UserID:          "u1",
		Name:            "Spread payments",
		RuleType:        model.RulePaymentClustering,
		Severity:        model.SeverityWarning,
		EvaluationScope: "scn-1",
		Threshold:       map[string]decimal.Decimal{"multiplier": decimal.RequireFromString("2")},
	}
	require.NoError(t, store.SaveRule(ctx, clustering))
	require.NoError(t, store.SaveRule(ctx, buffer))

	buffer.Severity = model.SeverityWarning
	require.NoError(t, store.SaveRule(ctx, buffer))

	rules, err := store.ListRules(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "buffer", rules[0].ID)
	assert.Equal(t, model.SeverityWarning, rules[0].Severity)
	assert.Equal(t, model.ScopeAll, rules[0].EvaluationScope)
	assert.Equal(t, "25000.5", rules[0].Threshold["min_balance"].String())
	assert.True(t, rules[0].IsActive)

	assert.Equal(t, "scn-1", rules[1].EvaluationScope)
	assert.False(t, rules[1].IsActive)

	require.NoError(t, store.DeleteRule(ctx, "buffer"))
	assert.ErrorIs(t, store.DeleteRule(ctx, "buffer"), common.ErrNotFound)

	rules, err = store.ListRules(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestSaveEvaluations(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	breachDate := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	evals := []model.RuleEvaluation{
		{
			RuleID:            "buffer",
			Severity:          model.SeverityCritical,
			IsBreached:        true,
			FirstBreachWeek:   5,
			FirstBreachDate:   &breachDate,
			BreachAmount:      decimal.RequireFromString("1200"),
			ActionWindowWeeks: 4,
			Message:           "below buffer",
		},
		{
			RuleID:       "buffer",
			ScenarioID:   "scn-1",
			Severity:     model.SeverityCritical,
			BreachAmount: decimal.Zero,
			EvaluatedAt:  time.Now().UTC(),
		},
	}
	require.NoError(t, store.SaveEvaluations(ctx, evals))
	require.NoError(t, store.SaveEvaluations(ctx, evals))
	require.NoError(t, store.SaveEvaluations(ctx, nil))

	base, err := store.CountEvaluations(ctx, "buffer", "")
	require.NoError(t, err)
	assert.Equal(t, 2, base)

	layered, err := store.CountEvaluations(ctx, "buffer", "scn-1")
	require.NoError(t, err)
	assert.Equal(t, 2, layered)

	var storedDate string
	require.NoError(t, store.db.QueryRow(`SELECT first_breach_date FROM rule_evaluations WHERE scenario_id IS NULL LIMIT 1`).Scan(&storedDate))
	assert.Equal(t, "2025-02-03", storedDate)
}
