package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Veraticus/runway/internal/common"
	"github.com/Veraticus/runway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRules = `
rules:
  - id: buffer
    name: Keep a buffer
    type: cash_buffer
    severity: critical
    threshold:
      min_balance: "25000"
  - id: crunch
    name: No big weeks
    type: payment_clustering
    scope: scn-42
    active: false
    threshold:
      multiplier: "2.5"
  - id: neg
    name: Net positive
    type: negative_week
`

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader_Load(t *testing.T) {
	l, err := NewLoader(writeRules(t, sampleRules), "user-1")
	require.NoError(t, err)

	rules := l.Rules()
	require.Len(t, rules, 3)

	assert.Equal(t, "buffer", rules[0].ID)
	assert.Equal(t, "user-1", rules[0].UserID)
	assert.Equal(t, model.SeverityCritical, rules[0].Severity)
	assert.Equal(t, model.ScopeAll, rules[0].EvaluationScope)
	assert.True(t, rules[0].IsActive)
	assert.Equal(t, "25000", rules[0].Threshold[KeyMinBalance].String())

	assert.Equal(t, "scn-42", rules[1].EvaluationScope)
	assert.False(t, rules[1].IsActive)

	assert.Equal(t, model.SeverityWarning, rules[2].Severity, "severity defaults to warning")
}

func TestLoader_ReportsEveryInvalidRule(t *testing.T) {
	_, err := NewLoader(writeRules(t, `
rules:
  - id: a
    name: A
    type: negative_week
  - id: b
    name: B
    type: runway
  - id: c
    name: C
    type: cash_buffer
    threshold:
      min_balance: lots
  - id: a
    name: Again
    type: negative_week
`), "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.NotContains(t, err.Error(), "rule 1:")
	assert.Contains(t, err.Error(), "rule 2:")
	assert.Contains(t, err.Error(), "rule 3:")
	assert.Contains(t, err.Error(), "duplicate rule id")
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope.yaml"), "user-1")
	assert.Error(t, err)
}

func TestLoader_Reload(t *testing.T) {
	path := writeRules(t, sampleRules)
	l, err := NewLoader(path, "user-1")
	require.NoError(t, err)

	var notified []model.FinancialRule
	l.OnChange(func(rules []model.FinancialRule) { notified = rules })

	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - id: only
    name: Only
    type: runway
    threshold:
      min_weeks: "8"
`), 0o600))

	rules, err := l.Reload()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Len(t, notified, 1)
	assert.Equal(t, "only", notified[0].ID)
	assert.Len(t, l.Rules(), 1)
}

func TestLoader_ReloadKeepsPreviousOnError(t *testing.T) {
	path := writeRules(t, sampleRules)
	l, err := NewLoader(path, "user-1")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("rules: [unterminated"), 0o600))
	_, err = l.Reload()
	require.Error(t, err)
	assert.Len(t, l.Rules(), 3)
}

func TestLoader_WatchStops(t *testing.T) {
	l, err := NewLoader(writeRules(t, sampleRules), "user-1")
	require.NoError(t, err)

	stop, err := l.Watch()
	require.NoError(t, err)
	stop()
	stop()
}
