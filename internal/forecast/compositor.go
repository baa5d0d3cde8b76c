// Package forecast builds weekly cash forecasts and layers scenario deltas onto them.
package forecast

import (
	"sort"
	"time"

	"github.com/Veraticus/runway/internal/calendar"
	"github.com/Veraticus/runway/internal/model"
	"github.com/shopspring/decimal"
)

// Build partitions events into weeks starting at start and folds balances from
// startingCash. Events outside [start, start+7*weeks) are ignored.
func Build(startingCash decimal.Decimal, start time.Time, weeks int, events []model.Event) *model.Forecast {
	start = calendar.Day(start)
	if weeks < 0 {
		weeks = 0
	}

	f := &model.Forecast{
		StartingCash:      startingCash,
		ForecastStartDate: start,
		Weeks:             make([]model.WeekForecast, weeks),
	}

	for i := range f.Weeks {
		ws := start.AddDate(0, 0, 7*i)
		f.Weeks[i] = model.WeekForecast{
			WeekNumber: i + 1,
			StartDate:  ws,
			EndDate:    ws.AddDate(0, 0, 6),
			CashIn:     decimal.Zero,
			CashOut:    decimal.Zero,
		}
	}

	for _, e := range sortedEvents(events) {
		idx := weekIndex(start, e.Date)
		if idx < 0 || idx >= weeks {
			continue
		}
		w := &f.Weeks[idx]
		if e.Direction == model.DirectionIn {
			w.CashIn = w.CashIn.Add(e.Amount)
		} else {
			w.CashOut = w.CashOut.Add(e.Amount)
		}
		w.Events = append(w.Events, e)
	}

	balance := startingCash
	totalIn, totalOut := decimal.Zero, decimal.Zero
	for i := range f.Weeks {
		w := &f.Weeks[i]
		w.StartingBalance = balance
		w.NetChange = w.CashIn.Sub(w.CashOut)
		w.EndingBalance = w.StartingBalance.Add(w.NetChange)
		balance = w.EndingBalance
		totalIn = totalIn.Add(w.CashIn)
		totalOut = totalOut.Add(w.CashOut)
	}

	f.Summary = summarize(f.Weeks, startingCash)
	f.Summary.TotalCashIn = totalIn
	f.Summary.TotalCashOut = totalOut
	return f
}

// summarize finds the lowest week (earliest wins ties) and the runway: the first
// week whose ending balance is zero or below, else the horizon length.
func summarize(weeks []model.WeekForecast, startingCash decimal.Decimal) model.ForecastSummary {
	s := model.ForecastSummary{
		LowestCashAmount: startingCash,
		RunwayWeeks:      len(weeks),
	}
	if len(weeks) == 0 {
		return s
	}

	s.LowestCashWeek = weeks[0].WeekNumber
	s.LowestCashAmount = weeks[0].EndingBalance
	runwayFound := false
	for _, w := range weeks {
		if w.EndingBalance.LessThan(s.LowestCashAmount) {
			s.LowestCashAmount = w.EndingBalance
			s.LowestCashWeek = w.WeekNumber
		}
		if !runwayFound && !w.EndingBalance.IsPositive() {
			s.RunwayWeeks = w.WeekNumber
			runwayFound = true
		}
	}
	return s
}

func weekIndex(start, date time.Time) int {
	d := calendar.Day(date)
	if d.Before(start) {
		return -1
	}
	days := int(d.Sub(start).Hours() / 24)
	return days / 7
}

func sortedEvents(events []model.Event) []model.Event {
	out := append([]model.Event(nil), events...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Overlay applies a delta to a canonical event set: deleted ids are removed,
// modified ids are replaced by their new payload and created events appended.
// When an id is both modified and deleted, the delete wins.
func Overlay(events []model.Event, delta *model.ScenarioDelta) []model.Event {
	if delta == nil {
		return sortedEvents(events)
	}

	deleted := make(map[string]bool, len(delta.DeletedEventIDs))
	for _, id := range delta.DeletedEventIDs {
		deleted[id] = true
	}
	modified := make(map[string]model.Event)
	for _, c := range delta.UpdatedEvents {
		switch c.Operation {
		case model.OperationDelete:
			deleted[c.OriginalEventID] = true
		case model.OperationModify:
			modified[c.OriginalEventID] = c.Event
		}
	}

	out := make([]model.Event, 0, len(events)+len(delta.CreatedEvents))
	for _, e := range events {
		if deleted[e.ID] {
			continue
		}
		if m, ok := modified[e.ID]; ok {
			out = append(out, m)
			continue
		}
		out = append(out, e)
	}
	for _, c := range delta.CreatedEvents {
		out = append(out, c.Event)
	}
	return sortedEvents(out)
}

// Layered builds the scenario forecast: the same start, starting cash and horizon
// as base, computed over events with delta overlaid.
func Layered(base *model.Forecast, events []model.Event, delta *model.ScenarioDelta) *model.Forecast {
	f := Build(base.StartingCash, base.ForecastStartDate, base.Horizon(), Overlay(events, delta))
	f.UserID = base.UserID
	if delta != nil {
		f.ScenarioID = delta.ScenarioID
	}
	return f
}
