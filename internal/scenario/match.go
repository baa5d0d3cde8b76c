package scenario

import (
	"time"

	"github.com/Veraticus/runway/internal/calendar"
	"github.com/Veraticus/runway/internal/model"
	"github.com/shopspring/decimal"
)

// MaxToleranceMatches caps how many events one tolerance match may touch: two
// years of a weekly series.
const MaxToleranceMatches = 104

// Relative tolerances for matching a declared monthly figure against a series.
var (
	PayrollTolerance    = decimal.RequireFromString("0.10")
	ContractorTolerance = decimal.RequireFromString("0.15")
	ExpenseTolerance    = decimal.RequireFromString("0.10")
)

type seriesGroup struct {
	first   time.Time
	key     string
	events  []model.Event
	monthly decimal.Decimal
}

// seriesKey groups events that come from the same upstream schedule. Events
// without a bucket are grouped by their shape.
func seriesKey(e model.Event) string {
	if e.BucketID != "" {
		return "bucket:" + e.BucketID
	}
	if e.ObligationID != "" {
		return "obligation:" + e.ObligationID
	}
	return e.Category + "|" + string(e.RecurrencePattern) + "|" + e.Amount.String()
}

func cadenceOf(p model.RecurrencePattern) calendar.Cadence {
	switch p {
	case model.RecurrenceWeekly:
		return calendar.CadenceWeekly
	case model.RecurrenceBiweekly:
		return calendar.CadenceBiweekly
	case model.RecurrenceQuarterly:
		return calendar.CadenceQuarterly
	default:
		return calendar.CadenceMonthly
	}
}

func recurrenceFor(c calendar.Cadence) (bool, model.RecurrencePattern) {
	switch c {
	case calendar.CadenceWeekly:
		return true, model.RecurrenceWeekly
	case calendar.CadenceBiweekly:
		return true, model.RecurrenceBiweekly
	case calendar.CadenceMonthly:
		return true, model.RecurrenceMonthly
	case calendar.CadenceQuarterly:
		return true, model.RecurrenceQuarterly
	default:
		return false, model.RecurrenceNone
	}
}

// matchByTolerance picks the one series among candidates whose monthly
// equivalent lies closest to monthly and within tolerance of it. Ties go to the
// series that starts first, then to the lower key. At most MaxToleranceMatches
// events are returned. Candidates must be sorted by date.
func matchByTolerance(candidates []model.Event, monthly, tolerance decimal.Decimal) []model.Event {
	if !monthly.IsPositive() {
		return nil
	}

	byKey := make(map[string]*seriesGroup)
	var order []*seriesGroup
	for _, e := range candidates {
		k := seriesKey(e)
		s, ok := byKey[k]
		if !ok {
			s = &seriesGroup{
				key:     k,
				first:   e.Date,
				monthly: calendar.MonthlyEquivalent(e.Amount, cadenceOf(e.RecurrencePattern)),
			}
			byKey[k] = s
			order = append(order, s)
		}
		s.events = append(s.events, e)
	}

	var best *seriesGroup
	var bestDiff decimal.Decimal
	for _, s := range order {
		diff := s.monthly.Sub(monthly).Abs().Div(monthly)
		if diff.GreaterThan(tolerance) {
			continue
		}
		if best == nil || diff.LessThan(bestDiff) ||
			(diff.Equal(bestDiff) && (s.first.Before(best.first) || (s.first.Equal(best.first) && s.key < best.key))) {
			best, bestDiff = s, diff
		}
	}
	if best == nil {
		return nil
	}
	if len(best.events) > MaxToleranceMatches {
		return best.events[:MaxToleranceMatches]
	}
	return best.events
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// generated returns a new scenario-owned event.
func generated(snap *Snapshot, def *model.ScenarioDefinition, date time.Time, amount decimal.Decimal, dir model.Direction) model.Event {
	e := model.Event{
		ID:         newEventID(),
		UserID:     snap.UserID,
		ScenarioID: def.ID,
		Date:       calendar.Day(date),
		Amount:     amount,
		Direction:  dir,
		Confidence: model.ConfidenceMedium,
	}
	if dir == model.DirectionIn {
		e.EventType = model.EventTypeExpectedRevenue
	} else {
		e.EventType = model.EventTypeExpectedExpense
	}
	return e
}

// touched returns a copy of e marked as changed by the scenario.
func touched(e model.Event, def *model.ScenarioDefinition) model.Event {
	e.ScenarioID = def.ID
	return e
}

// seriesEnd turns an inclusive end date into the exclusive bound used for
// generated series, capped at the horizon.
func seriesEnd(snap *Snapshot, end time.Time) time.Time {
	if end.IsZero() {
		return snap.HorizonEnd
	}
	if e := calendar.Day(end).AddDate(0, 0, 1); e.Before(snap.HorizonEnd) {
		return e
	}
	return snap.HorizonEnd
}

// addSeries creates one copy of tmpl per occurrence of cadence from start
// before end, skipping dates outside the horizon. It returns the count added.
func addSeries(d *model.ScenarioDelta, snap *Snapshot, tmpl model.Event, start, end time.Time, cadence calendar.Cadence, reason string) int {
	tmpl.IsRecurring, tmpl.RecurrencePattern = recurrenceFor(cadence)
	n := 0
	for _, date := range calendar.Occurrences(start, end, cadence) {
		if !snap.InHorizon(date) {
			continue
		}
		e := tmpl
		e.ID = newEventID()
		e.Date = date
		d.Add(e, reason)
		n++
	}
	return n
}
