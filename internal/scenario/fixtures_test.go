package scenario

import (
	"fmt"
	"time"

	"github.com/Veraticus/runway/internal/calendar"
	"github.com/Veraticus/runway/internal/model"
	"github.com/shopspring/decimal"
)

var asOf = calendar.Date(2025, time.January, 6)

const horizonWeeks = 13

func day(week, d int) time.Time {
	return asOf.AddDate(0, 0, 7*(week-1)+d)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(s string) time.Time {
	t, err := calendar.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func series(prefix string, dir model.Direction, amount, category string, pattern model.RecurrencePattern, dates ...string) []model.Event {
	out := make([]model.Event, len(dates))
	for i, d := range dates {
		out[i] = model.Event{
			ID:                fmt.Sprintf("%s-%d", prefix, i+1),
			UserID:            "u1",
			Date:              date(d),
			Amount:            dec(amount),
			Direction:         dir,
			Category:          category,
			Confidence:        model.ConfidenceHigh,
			IsRecurring:       pattern != model.RecurrenceNone,
			RecurrencePattern: pattern,
		}
	}
	return out
}

func withClient(events []model.Event, client string) []model.Event {
	for i := range events {
		events[i].ClientID = client
		events[i].EventType = model.EventTypeExpectedRevenue
	}
	return events
}

func withBucket(events []model.Event, bucket string) []model.Event {
	for i := range events {
		events[i].BucketID = bucket
		events[i].EventType = model.EventTypeExpectedExpense
	}
	return events
}

// fixtureEvents is a small business: two retainer clients, two salaries, a
// biweekly contractor, a tools subscription and recurring project costs.
func fixtureEvents() []model.Event {
	var out []model.Event
	out = append(out, withClient(series("acme", model.DirectionIn, "10000", model.CategoryRetainer, model.RecurrenceMonthly,
		"2025-01-15", "2025-02-15", "2025-03-15"), "acme")...)
	out = append(out, withClient(series("globex", model.DirectionIn, "4000", model.CategoryRetainer, model.RecurrenceMonthly,
		"2025-01-20", "2025-02-20", "2025-03-20"), "globex")...)
	out = append(out, withBucket(series("alice", model.DirectionOut, "6000", model.CategoryPayroll, model.RecurrenceMonthly,
		"2025-01-31", "2025-02-28", "2025-03-31"), "payroll-alice")...)
	out = append(out, withBucket(series("bob", model.DirectionOut, "9000", model.CategoryPayroll, model.RecurrenceMonthly,
		"2025-01-31", "2025-02-28", "2025-03-31"), "payroll-bob")...)
	out = append(out, withBucket(series("dev", model.DirectionOut, "2000", model.CategoryContractors, model.RecurrenceBiweekly,
		"2025-01-10", "2025-01-24", "2025-02-07", "2025-02-21", "2025-03-07", "2025-03-21", "2025-04-04"), "ctr-dev")...)
	out = append(out, withBucket(series("saas", model.DirectionOut, "500", model.CategoryTools, model.RecurrenceMonthly,
		"2025-01-12", "2025-02-12", "2025-03-12"), "tools-saas")...)
	out = append(out, withBucket(series("proj", model.DirectionOut, "1500", model.CategoryProjectCosts, model.RecurrenceMonthly,
		"2025-01-25", "2025-02-25", "2025-03-25"), "proj")...)
	return out
}

func fixtureSnapshot() *Snapshot {
	return NewSnapshot("u1", asOf, horizonWeeks, fixtureEvents())
}

func definition(t model.ScenarioType, params map[string]string, scope model.Scope) *model.ScenarioDefinition {
	return &model.ScenarioDefinition{
		ID:     "scn-1",
		UserID: "u1",
		Type:   t,
		Params: params,
		Scope:  scope,
		Linked: map[model.LinkedType]model.LinkedAnswer{},
		Stage:  model.StageCollectingParams,
	}
}

func idsOf(changes []model.EventChange) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		if c.Operation == model.OperationAdd {
			out[i] = c.Event.ID
		} else {
			out[i] = c.OriginalEventID
		}
	}
	return out
}
