package scenario

import (
	"fmt"
	"time"

	"github.com/Veraticus/runway/internal/calendar"
	"github.com/Veraticus/runway/internal/model"
	"github.com/shopspring/decimal"
)

var expenseCadences = []calendar.Cadence{
	calendar.CadenceOneOff,
	calendar.CadenceWeekly,
	calendar.CadenceBiweekly,
	calendar.CadenceMonthly,
	calendar.CadenceQuarterly,
}

var bucketScopeSpec = model.ParamSpec{Key: model.ScopeBucketIDs, Label: "Which expense buckets?", Type: model.AnswerIDList}

// increasedExpenseHandler raises existing expenses or adds new ones.
type increasedExpenseHandler struct{}

type increaseParams struct {
	start    time.Time
	end      time.Time
	amount   decimal.Decimal
	category string
	gate     string
	cadence  calendar.Cadence
	ids      []string
}

func (increasedExpenseHandler) Type() model.ScenarioType { return model.ScenarioIncreasedExpense }

func (increasedExpenseHandler) RequiredParams() []model.ParamSpec {
	return []model.ParamSpec{
		{Key: "amount", Label: "Amount per payment", Type: model.AnswerAmount},
		{Key: "start_date", Label: "First payment date", Type: model.AnswerDate},
		{Key: "category", Label: "Expense category", Type: model.AnswerText},
	}
}

func (increasedExpenseHandler) OptionalParams() []model.ParamSpec {
	return []model.ParamSpec{
		{Key: "cadence", Label: "How often?", Type: model.AnswerChoice, Choices: cadenceChoices(expenseCadences...)},
		{Key: "end_date", Label: "Last payment date", Type: model.AnswerDate},
		{Key: "gate", Label: "Only if this condition holds", Type: model.AnswerText},
		bucketScopeSpec,
	}
}

func (increasedExpenseHandler) LinkedPromptTypes() []model.LinkedType { return nil }

func (increasedExpenseHandler) decode(def *model.ScenarioDefinition) (increaseParams, error) {
	r := newReader(def)
	var p increaseParams
	p.amount, _ = r.amount("amount", true)
	p.start, _ = r.date("start_date", true)
	p.category = r.text("category", true)
	p.cadence = r.cadence("cadence", calendar.CadenceOneOff, expenseCadences...)
	p.end, _ = r.date("end_date", false)
	p.gate = r.text("gate", false)
	p.ids = r.ids(model.ScopeBucketIDs, false)
	if !p.end.IsZero() && !p.start.IsZero() && p.end.Before(p.start) {
		r.fail("end_date", "must not be before start_date")
	}
	return p, r.err()
}

func (h increasedExpenseHandler) Validate(def *model.ScenarioDefinition) error {
	_, err := h.decode(def)
	return err
}

func (h increasedExpenseHandler) Anchor(def *model.ScenarioDefinition) time.Time {
	p, _ := h.decode(def)
	return p.start
}

func (h increasedExpenseHandler) Apply(snap *Snapshot, def *model.ScenarioDefinition) (*model.ScenarioDelta, error) {
	p, err := h.decode(def)
	if err != nil {
		return nil, err
	}

	d := model.NewDelta(def.ID)
	if len(p.ids) > 0 {
		set := idSet(p.ids)
		end := seriesEnd(snap, p.end)
		for _, e := range snap.Select(p.start, func(e model.Event) bool {
			return e.Direction == model.DirectionOut && set[e.BucketID] && e.Date.Before(end)
		}) {
			raised := touched(e, def)
			raised.Amount = e.Amount.Add(p.amount)
			raised.Confidence = model.MinConfidence(e.Confidence, model.ConfidenceMedium)
			raised.ConfidenceReason = "scenario_increased_expense"
			if p.gate != "" {
				raised.Gate = p.gate
			}
			d.Modify(e, raised, fmt.Sprintf("%s raised by %s", e.BucketID, p.amount))
		}
		d.Finalize()
		return d, nil
	}

	tmpl := generated(snap, def, p.start, p.amount, model.DirectionOut)
	tmpl.Category = p.category
	tmpl.Gate = p.gate
	tmpl.ConfidenceReason = "scenario_increased_expense"
	reason := "new " + p.category + " expense"
	if p.gate != "" {
		reason += " gated on " + p.gate
	}
	addSeries(d, snap, tmpl, p.start, seriesEnd(snap, p.end), p.cadence, reason)
	d.Finalize()
	return d, nil
}

// decreasedExpenseHandler trims or cancels existing expenses.
type decreasedExpenseHandler struct{}

type decreaseParams struct {
	start     time.Time
	monthly   decimal.Decimal
	reduction decimal.Decimal
	fee       decimal.Decimal
	category  string
	ids       []string
}

func (decreasedExpenseHandler) Type() model.ScenarioType { return model.ScenarioDecreasedExpense }

func (decreasedExpenseHandler) RequiredParams() []model.ParamSpec {
	return []model.ParamSpec{
		{Key: "start_date", Label: "Saving starts on", Type: model.AnswerDate},
		{Key: "category", Label: "Expense category", Type: model.AnswerText},
	}
}

func (decreasedExpenseHandler) OptionalParams() []model.ParamSpec {
	return []model.ParamSpec{
		bucketScopeSpec,
		{Key: "monthly_amount", Label: "Current monthly cost (used to find the expense)", Type: model.AnswerAmount},
		{Key: "reduction_amount", Label: "Reduction per payment (blank cancels it)", Type: model.AnswerAmount},
		{Key: "termination_fee", Label: "One-off termination fee", Type: model.AnswerAmount},
	}
}

// ConditionalParams needs the current monthly cost to find the expense when no
// buckets are scoped.
func (h decreasedExpenseHandler) ConditionalParams(def *model.ScenarioDefinition) []model.ParamSpec {
	if len(def.Scope.BucketIDs) > 0 {
		return nil
	}
	spec, _ := Spec(h, "monthly_amount")
	return []model.ParamSpec{spec}
}

func (decreasedExpenseHandler) LinkedPromptTypes() []model.LinkedType { return nil }

func (decreasedExpenseHandler) decode(def *model.ScenarioDefinition) (decreaseParams, error) {
	r := newReader(def)
	var p decreaseParams
	p.start, _ = r.date("start_date", true)
	p.category = r.text("category", true)
	p.ids = r.ids(model.ScopeBucketIDs, false)
	p.monthly, _ = r.amount("monthly_amount", false)
	p.reduction, _ = r.amount("reduction_amount", false)
	p.fee, _ = r.amount("termination_fee", false)
	if _, given := r.raw("monthly_amount"); len(p.ids) == 0 && !given {
		r.fail("monthly_amount", "is required when no expense buckets are scoped")
	}
	return p, r.err()
}

func (h decreasedExpenseHandler) Validate(def *model.ScenarioDefinition) error {
	_, err := h.decode(def)
	return err
}

func (h decreasedExpenseHandler) Anchor(def *model.ScenarioDefinition) time.Time {
	p, _ := h.decode(def)
	return p.start
}

func (h decreasedExpenseHandler) Apply(snap *Snapshot, def *model.ScenarioDefinition) (*model.ScenarioDelta, error) {
	p, err := h.decode(def)
	if err != nil {
		return nil, err
	}

	var matches []model.Event
	if len(p.ids) > 0 {
		set := idSet(p.ids)
		matches = snap.Select(p.start, func(e model.Event) bool {
			return e.Direction == model.DirectionOut && set[e.BucketID]
		})
	} else {
		candidates := snap.Select(p.start, func(e model.Event) bool {
			return e.Direction == model.DirectionOut && e.Category == p.category
		})
		matches = matchByTolerance(candidates, p.monthly, ExpenseTolerance)
	}

	d := model.NewDelta(def.ID)
	for _, e := range matches {
		if !p.reduction.IsPositive() {
			d.Delete(e, "expense cancelled")
			continue
		}
		remaining := e.Amount.Sub(p.reduction)
		if !remaining.IsPositive() {
			d.Delete(e, fmt.Sprintf("reduction of %s removes the payment", p.reduction))
			continue
		}
		reduced := touched(e, def)
		reduced.Amount = remaining
		d.Modify(e, reduced, fmt.Sprintf("reduced by %s", p.reduction))
	}

	if p.fee.IsPositive() && snap.InHorizon(p.start) {
		e := generated(snap, def, p.start, p.fee, model.DirectionOut)
		e.Category = model.CategoryFees
		e.Confidence = model.ConfidenceHigh
		e.ConfidenceReason = "scenario_termination_fee"
		d.Add(e, "termination fee for "+p.category)
	}

	d.Finalize()
	return d, nil
}
