package tui

import (
	"testing"
	"time"

	"github.com/Veraticus/runway/internal/forecast"
	"github.com/Veraticus/runway/internal/model"
	"github.com/Veraticus/runway/internal/pipeline"
	"github.com/Veraticus/runway/internal/tui/themes"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult(t *testing.T) *pipeline.ApplyResult {
	t.Helper()
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	acme := model.Event{
		ID: "acme-2", UserID: "u1", Date: start.AddDate(0, 0, 9),
		Amount: decimal.NewFromInt(10000), Direction: model.DirectionIn, Confidence: model.ConfidenceHigh,
	}
	rent := model.Event{
		ID: "rent-1", UserID: "u1", Date: start.AddDate(0, 0, 16),
		Amount: decimal.NewFromInt(8000), Direction: model.DirectionOut, Confidence: model.ConfidenceHigh,
	}

	base := forecast.Build(decimal.NewFromInt(5000), start, 4, []model.Event{acme, rent})
	layered := forecast.Build(decimal.NewFromInt(5000), start, 4, []model.Event{rent})

	delta := model.NewDelta("scn-1")
	delta.Delete(acme, "client acme lost")
	delta.Finalize()

	return &pipeline.ApplyResult{
		Definition:      &model.ScenarioDefinition{ID: "scn-1", Type: model.ScenarioClientLoss, Stage: model.StageEvaluating},
		Delta:           delta,
		BaseForecast:    base,
		LayeredForecast: layered,
		Comparison:      forecast.Compare(base, layered),
		RuleEvaluations: []model.RuleEvaluation{
			{RuleID: "buffer", RuleName: "Keep 5k", Severity: model.SeverityCritical, IsBreached: true, FirstBreachWeek: 2, BreachAmount: decimal.NewFromInt(3000), ActionWindowWeeks: 1},
		},
	}
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	got, ok := next.(Model)
	require.True(t, ok)
	return got, cmd
}

func TestModel_Header(t *testing.T) {
	m := New(testResult(t), themes.Default)
	view := m.View()

	assert.Contains(t, view, "Scenario scn-1")
	assert.Contains(t, view, "client_loss")
	assert.Contains(t, view, "Runway")
	assert.Contains(t, view, "1 rule(s) breached")
	assert.Contains(t, view, "Changes (1)")
}

func TestModel_TabNavigation(t *testing.T) {
	tests := []struct {
		name     string
		keys     []string
		expected Tab
	}{
		{name: "starts on forecast", expected: TabComparison},
		{name: "tab moves right", keys: []string{"tab"}, expected: TabDelta},
		{name: "l moves right", keys: []string{"l", "l"}, expected: TabRules},
		{name: "wraps forward", keys: []string{"tab", "tab", "tab"}, expected: TabComparison},
		{name: "shift+tab wraps backward", keys: []string{"shift+tab"}, expected: TabRules},
		{name: "h moves left", keys: []string{"tab", "h"}, expected: TabComparison},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(testResult(t), themes.Default)
			for _, k := range tt.keys {
				m, _ = update(t, m, keyMsg(k))
			}
			assert.Equal(t, tt.expected, m.ActiveTab())
			assert.True(t, m.tables[tt.expected].Focused())
		})
	}
}

func TestModel_TabContent(t *testing.T) {
	m := New(testResult(t), themes.Default)
	assert.Contains(t, m.View(), "2025-01-13")

	m, _ = update(t, m, keyMsg("tab"))
	view := m.View()
	assert.Contains(t, view, "acme-2")
	assert.Contains(t, view, "delete")
	assert.Contains(t, view, "-$10,000.00")

	m, _ = update(t, m, keyMsg("tab"))
	view = m.View()
	assert.Contains(t, view, "Keep 5k")
	assert.Contains(t, view, "breached")
	assert.Contains(t, view, "$3,000.00")
}

func TestModel_EmptyPanes(t *testing.T) {
	res := testResult(t)
	res.Delta = model.NewDelta("scn-1")
	res.RuleEvaluations = nil

	m := New(res, themes.CatppuccinMocha)
	m, _ = update(t, m, keyMsg("tab"))
	assert.Contains(t, m.View(), "0 events affected")

	m, _ = update(t, m, keyMsg("tab"))
	assert.Contains(t, m.View(), "No rules configured")
	m, _ = update(t, m, keyMsg("shift+tab"))
	m, _ = update(t, m, keyMsg("shift+tab"))
	assert.Contains(t, m.View(), "no rules breached")
}

func TestModel_Quit(t *testing.T) {
	for _, k := range []string{"q", "esc"} {
		t.Run(k, func(t *testing.T) {
			m := New(testResult(t), themes.Default)
			m, cmd := update(t, m, keyMsg(k))
			require.NotNil(t, cmd)
			assert.IsType(t, tea.QuitMsg{}, cmd())
			assert.Empty(t, m.View())
		})
	}
}

func TestModel_WindowResize(t *testing.T) {
	// Table.Height reports the body rows; the bordered header takes two lines.
	const header = 2

	tests := []struct {
		name     string
		width    int
		height   int
		showHelp bool
		want     int
	}{
		{name: "roomy", width: 120, height: 40, want: 40 - chrome - header},
		{name: "help open", width: 120, height: 40, showHelp: true, want: 40 - chrome - 3 - header},
		{name: "tiny keeps a minimum", width: 40, height: 5, want: 3 - header},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(testResult(t), themes.Default)
			if tt.showHelp {
				m, _ = update(t, m, keyMsg("?"))
				require.True(t, m.help.ShowAll)
			}
			m, _ = update(t, m, tea.WindowSizeMsg{Width: tt.width, Height: tt.height})
			for i := range m.tables {
				assert.Equal(t, tt.want, m.tables[i].Height(), "tab %d", i)
			}
			assert.Equal(t, tt.width, m.help.Width)
		})
	}
}

func TestByName(t *testing.T) {
	assert.Equal(t, themes.CatppuccinMocha.Primary, themes.ByName("catppuccin").Primary)
	assert.Equal(t, themes.Default.Primary, themes.ByName("unknown").Primary)
}
