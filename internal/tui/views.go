package tui

import (
	"fmt"
	"strings"

	"github.com/Veraticus/runway/internal/cli"
	"github.com/Veraticus/runway/internal/model"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{
		m.renderHeader(),
		m.renderTabs(),
		m.renderBody(),
		m.help.View(m.keys),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	def := m.result.Definition
	title := m.theme.Title.Render(fmt.Sprintf("%s Scenario %s", cli.RunwayIcon, def.ID))
	subtitle := m.theme.Subtitle.Render(fmt.Sprintf("%s · %s", def.Type, def.Stage))

	c := m.result.Comparison
	runway := fmt.Sprintf("Runway %d → %d weeks (%+d)", c.BaseRunway, c.LayeredRunway, c.RunwayChange)
	switch {
	case c.RunwayChange < 0:
		runway = m.theme.Loss.Render(runway)
	case c.RunwayChange > 0:
		runway = m.theme.Gain.Render(runway)
	}

	stats := []string{
		runway,
		"Net " + m.change(c.NetChange),
		"Lowest " + m.change(c.LowestChange),
		m.breachSummary(),
	}
	box := m.theme.RoundedBox.Render(strings.Join(stats, "   "))
	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle, box)
}

func (m Model) change(d decimal.Decimal) string {
	s := signedMoney(d.Sign(), cli.FormatMoney(d.Abs()))
	switch d.Sign() {
	case -1:
		return m.theme.Loss.Render(s)
	case 1:
		return m.theme.Gain.Render(s)
	default:
		return s
	}
}

func (m Model) breachSummary() string {
	var worst model.Severity
	breached := 0
	for _, e := range m.result.RuleEvaluations {
		if !e.IsBreached {
			continue
		}
		breached++
		if worst == "" || e.Severity.Rank() > worst.Rank() {
			worst = e.Severity
		}
	}
	if breached == 0 {
		return m.theme.Gain.Render("no rules breached")
	}
	msg := fmt.Sprintf("%d rule(s) breached", breached)
	switch worst {
	case model.SeverityCritical:
		return m.theme.Critical.Render(msg)
	case model.SeverityWarning:
		return m.theme.Warning.Render(msg)
	default:
		return m.theme.Info.Render(msg)
	}
}

func (m Model) renderTabs() string {
	tabs := make([]string, 0, tabCount)
	for t := Tab(0); t < tabCount; t++ {
		label := t.String()
		if t == TabDelta && m.result.Delta != nil {
			label = fmt.Sprintf("%s (%d)", label, m.result.Delta.TotalEventsAffected)
		}
		if t == m.tab {
			tabs = append(tabs, m.theme.ActiveTab.Render(label))
		} else {
			tabs = append(tabs, m.theme.InactiveTab.Render(label))
		}
	}
	return "\n" + lipgloss.JoinHorizontal(lipgloss.Top, tabs...) + "\n"
}

func (m Model) renderBody() string {
	switch m.tab {
	case TabDelta:
		if m.result.Delta == nil || m.result.Delta.IsEmpty() {
			return m.theme.Muted.Render("No events matched; 0 events affected.")
		}
	case TabRules:
		if len(m.result.RuleEvaluations) == 0 {
			return m.theme.Muted.Render("No rules configured.")
		}
	}
	return m.tables[m.tab].View()
}
