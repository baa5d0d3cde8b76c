package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Veraticus/runway/internal/calendar"
	"github.com/Veraticus/runway/internal/forecast"
	"github.com/Veraticus/runway/internal/model"
	"github.com/Veraticus/runway/internal/pipeline"
	"github.com/Veraticus/runway/internal/scenario"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(SubtleStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableCellStyle
		})
}

// RenderForecast renders a weekly forecast with its summary.
func RenderForecast(f *model.Forecast) string {
	t := newTable("Week", "Starts", "Cash in", "Cash out", "Net", "Ending")
	for _, w := range f.Weeks {
		ending := FormatMoney(w.EndingBalance)
		if !w.EndingBalance.IsPositive() {
			ending = ErrorStyle.Render(ending)
		}
		t.Row(
			strconv.Itoa(w.WeekNumber),
			calendar.FormatDate(w.StartDate),
			FormatMoney(w.CashIn),
			FormatMoney(w.CashOut),
			FormatChange(w.NetChange),
			ending,
		)
	}
	return t.String() + "\n" + renderSummary(f)
}

func renderSummary(f *model.Forecast) string {
	runway := fmt.Sprintf("%d weeks", f.Summary.RunwayWeeks)
	if f.Summary.RunwayWeeks >= f.Horizon() {
		runway = fmt.Sprintf("beyond %d weeks", f.Horizon())
	}
	lines := []string{
		fmt.Sprintf("Starting cash: %s", BoldStyle.Render(FormatMoney(f.StartingCash))),
		fmt.Sprintf("Total in: %s   Total out: %s", FormatMoney(f.Summary.TotalCashIn), FormatMoney(f.Summary.TotalCashOut)),
		fmt.Sprintf("Lowest balance: %s in week %d", FormatMoney(f.Summary.LowestCashAmount), f.Summary.LowestCashWeek),
		fmt.Sprintf("Runway: %s", BoldStyle.Render(runway)),
	}
	return strings.Join(lines, "\n")
}

// RenderComparison renders base and layered balances side by side.
func RenderComparison(c forecast.Comparison) string {
	t := newTable("Week", "Base", "Scenario", "Change")
	for _, w := range c.Weeks {
		t.Row(
			strconv.Itoa(w.WeekNumber),
			FormatMoney(w.BaseEnding),
			FormatMoney(w.LayeredEnding),
			FormatChange(w.Difference),
		)
	}

	lines := []string{
		fmt.Sprintf("Cash in: %s   Cash out: %s   Net: %s",
			FormatChange(c.CashInChange), FormatChange(c.CashOutChange.Neg()), FormatChange(c.NetChange)),
		fmt.Sprintf("Lowest balance: %s", FormatChange(c.LowestChange)),
		fmt.Sprintf("Runway: %d → %d weeks (%+d)", c.BaseRunway, c.LayeredRunway, c.RunwayChange),
	}
	return t.String() + "\n" + strings.Join(lines, "\n")
}

// RenderDelta lists every change a delta would make.
func RenderDelta(d *model.ScenarioDelta) string {
	if d.IsEmpty() {
		return FormatInfo("No events matched; 0 events affected.")
	}

	t := newTable("Op", "Event", "Date", "Amount", "Impact", "Reason")
	for _, c := range d.Changes() {
		id := c.Event.ID
		if c.Operation != model.OperationAdd {
			id = c.OriginalEventID
		}
		reason := c.ChangeReason
		if len(c.LinkedChangeIDs()) > 0 {
			reason = LinkIcon + " " + reason
		}
		t.Row(
			string(c.Operation),
			id,
			calendar.FormatDate(c.Event.Date),
			FormatMoney(c.Event.Signed()),
			FormatChange(c.Impact()),
			reason,
		)
	}
	footer := fmt.Sprintf("%d events affected, %d deleted. Net cash impact %s",
		d.TotalEventsAffected, len(d.DeletedEventIDs), FormatChange(d.NetCashImpact))
	return t.String() + "\n" + footer
}

// RenderEvaluations renders rule evaluations in their given order.
func RenderEvaluations(evals []model.RuleEvaluation) string {
	if len(evals) == 0 {
		return SubtleStyle.Render("No rules configured.")
	}

	t := newTable("Severity", "Rule", "Status", "Week", "Shortfall", "Act within", "Detail")
	for _, e := range evals {
		status := SuccessStyle.Render(SuccessIcon + " ok")
		week, amount, window := "", "", ""
		if e.IsBreached {
			status = ErrorStyle.Render(ErrorIcon + " breached")
			week = strconv.Itoa(e.FirstBreachWeek)
			amount = FormatMoney(e.BreachAmount)
			window = fmt.Sprintf("%d wk", e.ActionWindowWeeks)
		}
		name := e.RuleName
		if name == "" {
			name = e.RuleID
		}
		t.Row(
			SeverityStyle(e.Severity).Render(string(e.Severity)),
			name,
			status,
			week,
			amount,
			window,
			e.Message,
		)
	}
	return t.String()
}

// RenderApplyResult renders everything an apply produced.
func RenderApplyResult(r *pipeline.ApplyResult) string {
	sections := []string{
		FormatTitle(fmt.Sprintf("Scenario %s (%s)", r.Definition.ID, r.Definition.Type)),
		RenderDelta(r.Delta),
		"",
		BoldStyle.Render(ChartIcon + " Forecast comparison"),
		RenderComparison(r.Comparison),
		"",
		BoldStyle.Render("Rules against this scenario"),
		RenderEvaluations(r.RuleEvaluations),
	}
	if breached := countBreached(r.BaseRuleEvaluations); breached > 0 {
		sections = append(sections, SubtleStyle.Render(fmt.Sprintf("%d rule(s) already breached without this scenario", breached)))
	}
	return strings.Join(sections, "\n")
}

func countBreached(evals []model.RuleEvaluation) int {
	n := 0
	for _, e := range evals {
		if e.IsBreached {
			n++
		}
	}
	return n
}

// RenderScenario shows a definition and what it still needs.
func RenderScenario(def *model.ScenarioDefinition, res pipeline.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ID:      %s\n", def.ID)
	fmt.Fprintf(&b, "Type:    %s\n", def.Type)
	fmt.Fprintf(&b, "Stage:   %s (%s)\n", BoldStyle.Render(string(def.Stage)), def.Status())
	fmt.Fprintf(&b, "Entry:   %s\n", def.EntryPath)

	for _, key := range []string{model.ScopeClientIDs, model.ScopeBucketIDs, model.ScopeEventIDs} {
		if def.Has(key) {
			fmt.Fprintf(&b, "%s: %s\n", key, def.Value(key))
		}
	}

	keys := make([]string, 0, len(def.Params))
	for k := range def.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, def.Params[k])
	}

	linked := make([]string, 0, len(def.Linked))
	for lt := range def.Linked {
		linked = append(linked, string(lt))
	}
	sort.Strings(linked)
	for _, lt := range linked {
		a := def.Linked[model.LinkedType(lt)]
		switch {
		case a.Accepted:
			fmt.Fprintf(&b, "%s %s: accepted %v\n", LinkIcon, lt, a.Params)
		case a.Skipped:
			fmt.Fprintf(&b, "%s %s: skipped\n", LinkIcon, lt)
		}
	}

	if len(res.RemainingPrompts) > 0 {
		b.WriteString(WarningStyle.Render("Needs:"))
		b.WriteString("\n")
		for _, p := range res.RemainingPrompts {
			fmt.Fprintf(&b, "  %s  %s\n", p.Key, SubtleStyle.Render(p.Label))
		}
	}
	var pending []string
	for _, p := range res.LinkedPrompts {
		if len(pending) == 0 || pending[len(pending)-1] != string(p.LinkedType) {
			pending = append(pending, string(p.LinkedType))
		}
	}
	if len(pending) > 0 {
		fmt.Fprintf(&b, "%s %s\n", WarningStyle.Render("Linked prompts to answer or skip:"), strings.Join(pending, ", "))
	}
	return RenderBox("Scenario", strings.TrimRight(b.String(), "\n"))
}

// RenderEvents lists events in date order.
func RenderEvents(events []model.Event) string {
	t := newTable("ID", "Date", "Amount", "Category", "Client", "Confidence")
	for _, e := range events {
		t.Row(
			e.ID,
			calendar.FormatDate(e.Date),
			FormatMoney(e.Signed()),
			e.Category,
			e.ClientID,
			string(e.Confidence),
		)
	}
	return t.String()
}

// RenderRules lists configured rules.
func RenderRules(rules []model.FinancialRule, describe func(model.FinancialRule) string) string {
	t := newTable("ID", "Name", "Type", "Severity", "Scope", "Threshold", "Active")
	for _, r := range rules {
		active := SuccessStyle.Render(SuccessIcon)
		if !r.IsActive {
			active = SubtleStyle.Render("-")
		}
		t.Row(r.ID, r.Name, string(r.RuleType), SeverityStyle(r.Severity).Render(string(r.Severity)), r.EvaluationScope, describe(r), active)
	}
	return t.String()
}

// RenderScenarios lists scenario definitions, newest activity first as given.
func RenderScenarios(defs []model.ScenarioDefinition) string {
	if len(defs) == 0 {
		return SubtleStyle.Render("No scenarios yet.")
	}
	t := newTable("ID", "Type", "Stage", "Status", "Updated")
	for _, d := range defs {
		t.Row(d.ID, string(d.Type), string(d.Stage), string(d.Status()), d.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return t.String()
}

// RenderScenarioTypes lists every registered scenario type with what it asks for.
func RenderScenarioTypes(reg *scenario.Registry) string {
	t := newTable("Type", "Asks for", "Linked follow-ups")
	for _, st := range reg.Types() {
		h, err := reg.Handler(st)
		if err != nil {
			continue
		}
		keys := make([]string, 0, len(h.RequiredParams()))
		for _, p := range h.RequiredParams() {
			keys = append(keys, p.Key)
		}
		linked := make([]string, 0, len(h.LinkedPromptTypes()))
		for _, lt := range h.LinkedPromptTypes() {
			linked = append(linked, string(lt))
		}
		t.Row(string(st), strings.Join(keys, ", "), strings.Join(linked, ", "))
	}
	return t.String()
}
