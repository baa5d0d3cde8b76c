// Package tui provides an interactive viewer for an applied scenario: the
// base and layered forecasts side by side, the delta, and rule outcomes.
package tui

import (
	"fmt"
	"strconv"

	"github.com/Veraticus/runway/internal/calendar"
	"github.com/Veraticus/runway/internal/cli"
	"github.com/Veraticus/runway/internal/model"
	"github.com/Veraticus/runway/internal/pipeline"
	"github.com/Veraticus/runway/internal/tui/themes"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
)

// Tab identifies one of the viewer's panes.
type Tab int

const (
	TabComparison Tab = iota
	TabDelta
	TabRules
	tabCount
)

func (t Tab) String() string {
	switch t {
	case TabComparison:
		return "Forecast"
	case TabDelta:
		return "Changes"
	case TabRules:
		return "Rules"
	default:
		return "?"
	}
}

// chrome is the number of lines taken by everything except the table.
const chrome = 9

// Model is the bubbletea model for the comparison viewer.
type Model struct {
	result   *pipeline.ApplyResult
	theme    themes.Theme
	keys     KeyMap
	help     help.Model
	tables   [tabCount]table.Model
	tab      Tab
	width    int
	height   int
	quitting bool
}

// New builds a viewer for an apply result.
func New(res *pipeline.ApplyResult, theme themes.Theme) Model {
	m := Model{
		result: res,
		theme:  theme,
		keys:   DefaultKeyMap(),
		help:   help.New(),
		width:  100,
		height: 30,
	}

	styles := table.DefaultStyles()
	styles.Header = theme.TableHeader
	styles.Selected = theme.Selected

	m.tables[TabComparison] = newTable(styles, comparisonColumns(), comparisonRows(res))
	m.tables[TabDelta] = newTable(styles, deltaColumns(), deltaRows(res.Delta))
	m.tables[TabRules] = newTable(styles, ruleColumns(), ruleRows(res.RuleEvaluations))
	m.resize()
	m.focus(TabComparison)
	return m
}

func newTable(styles table.Styles, cols []table.Column, rows []table.Row) table.Model {
	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
	)
	t.SetStyles(styles)
	return t
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.NextTab):
			m.focus((m.tab + 1) % tabCount)
			return m, nil
		case key.Matches(msg, m.keys.PrevTab):
			m.focus((m.tab + tabCount - 1) % tabCount)
			return m, nil
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.resize()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.tables[m.tab], cmd = m.tables[m.tab].Update(msg)
	return m, cmd
}

// ActiveTab returns the pane currently shown.
func (m Model) ActiveTab() Tab {
	return m.tab
}

func (m *Model) focus(t Tab) {
	m.tables[m.tab].Blur()
	m.tab = t
	m.tables[m.tab].Focus()
}

func (m *Model) resize() {
	h := m.height - chrome
	if m.help.ShowAll {
		h -= 3
	}
	h = max(h, 3)
	for i := range m.tables {
		m.tables[i].SetHeight(h)
		m.tables[i].SetWidth(m.width)
	}
	m.help.Width = m.width
}

func comparisonColumns() []table.Column {
	return []table.Column{
		{Title: "Week", Width: 5},
		{Title: "Starts", Width: 11},
		{Title: "Base", Width: 15},
		{Title: "Scenario", Width: 15},
		{Title: "Change", Width: 15},
	}
}

func comparisonRows(res *pipeline.ApplyResult) []table.Row {
	rows := make([]table.Row, 0, len(res.Comparison.Weeks))
	for _, w := range res.Comparison.Weeks {
		starts := ""
		if wk, ok := res.LayeredForecast.Week(w.WeekNumber); ok {
			starts = calendar.FormatDate(wk.StartDate)
		}
		rows = append(rows, table.Row{
			strconv.Itoa(w.WeekNumber),
			starts,
			cli.FormatMoney(w.BaseEnding),
			cli.FormatMoney(w.LayeredEnding),
			signedMoney(w.Difference.Sign(), cli.FormatMoney(w.Difference.Abs())),
		})
	}
	return rows
}

func signedMoney(sign int, abs string) string {
	switch {
	case sign > 0:
		return "+" + abs
	case sign < 0:
		return "-" + abs
	default:
		return abs
	}
}

func deltaColumns() []table.Column {
	return []table.Column{
		{Title: "Op", Width: 7},
		{Title: "Event", Width: 14},
		{Title: "Date", Width: 11},
		{Title: "Amount", Width: 13},
		{Title: "Impact", Width: 13},
		{Title: "Reason", Width: 32},
	}
}

func deltaRows(d *model.ScenarioDelta) []table.Row {
	if d == nil {
		return nil
	}
	changes := d.Changes()
	rows := make([]table.Row, 0, len(changes))
	for _, c := range changes {
		id := c.Event.ID
		if c.Operation != model.OperationAdd {
			id = c.OriginalEventID
		}
		reason := c.ChangeReason
		if len(c.LinkedChangeIDs()) > 0 {
			reason = cli.LinkIcon + " " + reason
		}
		impact := c.Impact()
		rows = append(rows, table.Row{
			string(c.Operation),
			id,
			calendar.FormatDate(c.Event.Date),
			cli.FormatMoney(c.Event.Signed()),
			signedMoney(impact.Sign(), cli.FormatMoney(impact.Abs())),
			reason,
		})
	}
	return rows
}

func ruleColumns() []table.Column {
	return []table.Column{
		{Title: "Severity", Width: 9},
		{Title: "Rule", Width: 20},
		{Title: "Status", Width: 10},
		{Title: "Week", Width: 5},
		{Title: "Shortfall", Width: 13},
		{Title: "Act within", Width: 10},
	}
}

func ruleRows(evals []model.RuleEvaluation) []table.Row {
	rows := make([]table.Row, 0, len(evals))
	for _, e := range evals {
		status, week, amount, window := "ok", "", "", ""
		if e.IsBreached {
			status = "breached"
			week = strconv.Itoa(e.FirstBreachWeek)
			amount = cli.FormatMoney(e.BreachAmount)
			window = fmt.Sprintf("%d wk", e.ActionWindowWeeks)
		}
		name := e.RuleName
		if name == "" {
			name = e.RuleID
		}
		rows = append(rows, table.Row{string(e.Severity), name, status, week, amount, window})
	}
	return rows
}
