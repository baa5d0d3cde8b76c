package rules

import (
	"fmt"
	"sort"

	"github.com/Veraticus/runway/internal/model"
	"github.com/shopspring/decimal"
)

// Threshold keys.
const (
	KeyMinBalance       = "min_balance"
	KeyMinWeeks         = "min_weeks"
	KeyMaxWeeklyOutflow = "max_weekly_outflow"
	KeyMultiplier       = "multiplier"
	KeyMaxSharePct      = "max_share_pct"
	KeyMinNet           = "min_net"
)

type evaluator func(rule model.FinancialRule, f *model.Forecast) model.RuleEvaluation

var evaluators = map[model.RuleType]evaluator{
	model.RuleCashBuffer:        evalCashBuffer,
	model.RuleRunway:            evalRunway,
	model.RulePaymentClustering: evalPaymentClustering,
	model.RuleConcentration:     evalConcentration,
	model.RuleNegativeWeek:      evalNegativeWeek,
}

// requiredKeys lists, per rule type, threshold keys of which at least one must be set.
var requiredKeys = map[model.RuleType][]string{
	model.RuleCashBuffer:        {KeyMinBalance},
	model.RuleRunway:            {KeyMinWeeks},
	model.RulePaymentClustering: {KeyMaxWeeklyOutflow, KeyMultiplier},
	model.RuleConcentration:     {KeyMaxSharePct},
	model.RuleNegativeWeek:      nil,
}

// breach fills in the timing fields for a breach at week w.
func breach(ev *model.RuleEvaluation, w model.WeekForecast, amount decimal.Decimal) {
	date := w.StartDate
	ev.IsBreached = true
	ev.FirstBreachWeek = w.WeekNumber
	ev.FirstBreachDate = &date
	ev.BreachAmount = amount
	ev.ActionWindowWeeks = w.WeekNumber - 1
}

func evalCashBuffer(rule model.FinancialRule, f *model.Forecast) model.RuleEvaluation {
	ev := newEvaluation(rule, f)
	minBalance := rule.Threshold[KeyMinBalance]
	for _, w := range f.Weeks {
		if w.EndingBalance.LessThan(minBalance) {
			breach(&ev, w, minBalance.Sub(w.EndingBalance))
			ev.Message = fmt.Sprintf("Balance falls to %s in week %d, %s below the %s buffer",
				w.EndingBalance.StringFixed(2), w.WeekNumber, ev.BreachAmount.StringFixed(2), minBalance.StringFixed(2))
			return ev
		}
	}
	ev.Message = fmt.Sprintf("Balance stays above %s", minBalance.StringFixed(2))
	return ev
}

func evalRunway(rule model.FinancialRule, f *model.Forecast) model.RuleEvaluation {
	ev := newEvaluation(rule, f)
	minWeeks := int(rule.Threshold[KeyMinWeeks].IntPart())
	for _, w := range f.Weeks {
		if w.EndingBalance.IsPositive() {
			continue
		}
		if w.WeekNumber <= minWeeks {
			breach(&ev, w, w.EndingBalance.Abs())
			ev.Message = fmt.Sprintf("Cash runs out in week %d, inside the %d-week minimum", w.WeekNumber, minWeeks)
			return ev
		}
		break
	}
	ev.Message = fmt.Sprintf("Runway of %d weeks meets the %d-week minimum", f.Summary.RunwayWeeks, minWeeks)
	return ev
}

// clusteringLimit is the tighter of the absolute limit and the multiple of mean weekly outflow.
func clusteringLimit(rule model.FinancialRule, f *model.Forecast) (decimal.Decimal, bool) {
	limit, hasLimit := rule.Threshold[KeyMaxWeeklyOutflow]
	mult, hasMult := rule.Threshold[KeyMultiplier]
	if hasMult && len(f.Weeks) > 0 {
		mean := f.Summary.TotalCashOut.Div(decimal.NewFromInt(int64(len(f.Weeks))))
		relative := mean.Mul(mult).Round(2)
		if !hasLimit || relative.LessThan(limit) {
			limit, hasLimit = relative, true
		}
	}
	return limit, hasLimit
}

func evalPaymentClustering(rule model.FinancialRule, f *model.Forecast) model.RuleEvaluation {
	ev := newEvaluation(rule, f)
	limit, ok := clusteringLimit(rule, f)
	if !ok {
		ev.Message = "No outflow limit configured"
		return ev
	}
	for _, w := range f.Weeks {
		if w.CashOut.GreaterThan(limit) {
			breach(&ev, w, w.CashOut.Sub(limit))
			ev.Message = fmt.Sprintf("Week %d pays out %s, %s over the %s limit",
				w.WeekNumber, w.CashOut.StringFixed(2), ev.BreachAmount.StringFixed(2), limit.StringFixed(2))
			return ev
		}
	}
	ev.Message = fmt.Sprintf("No week pays out more than %s", limit.StringFixed(2))
	return ev
}

func evalConcentration(rule model.FinancialRule, f *model.Forecast) model.RuleEvaluation {
	ev := newEvaluation(rule, f)
	maxPct := rule.Threshold[KeyMaxSharePct]
	total := f.Summary.TotalCashIn
	if !total.IsPositive() {
		ev.Message = "No inflows to assess"
		return ev
	}

	byClient := make(map[string]decimal.Decimal)
	firstWeek := make(map[string]model.WeekForecast)
	for _, w := range f.Weeks {
		for _, e := range w.Events {
			if e.Direction != model.DirectionIn || e.ClientID == "" {
				continue
			}
			if _, seen := firstWeek[e.ClientID]; !seen {
				firstWeek[e.ClientID] = w
			}
			byClient[e.ClientID] = byClient[e.ClientID].Add(e.Amount)
		}
	}

	clients := make([]string, 0, len(byClient))
	for c := range byClient {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool {
		a, b := byClient[clients[i]], byClient[clients[j]]
		if !a.Equal(b) {
			return a.GreaterThan(b)
		}
		return clients[i] < clients[j]
	})
	if len(clients) == 0 {
		ev.Message = "No client inflows to assess"
		return ev
	}

	top := clients[0]
	share := byClient[top].Mul(hundred).Div(total).Round(2)
	allowed := total.Mul(maxPct).Div(hundred).Round(2)
	if share.GreaterThan(maxPct) {
		breach(&ev, firstWeek[top], byClient[top].Sub(allowed))
		ev.Message = fmt.Sprintf("Client %s is %s%% of inflows, above the %s%% cap", top, share, maxPct)
		return ev
	}
	ev.Message = fmt.Sprintf("Largest client %s is %s%% of inflows", top, share)
	return ev
}

func evalNegativeWeek(rule model.FinancialRule, f *model.Forecast) model.RuleEvaluation {
	ev := newEvaluation(rule, f)
	minNet := rule.Threshold[KeyMinNet]
	for _, w := range f.Weeks {
		if w.NetChange.LessThan(minNet) {
			breach(&ev, w, minNet.Sub(w.NetChange))
			ev.Message = fmt.Sprintf("Week %d nets %s, below %s", w.WeekNumber, w.NetChange.StringFixed(2), minNet.StringFixed(2))
			return ev
		}
	}
	ev.Message = fmt.Sprintf("Every week nets at least %s", minNet.StringFixed(2))
	return ev
}

var hundred = decimal.NewFromInt(100)
