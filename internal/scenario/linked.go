package scenario

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/Veraticus/runway/internal/calendar"
	"github.com/Veraticus/runway/internal/common"
	"github.com/Veraticus/runway/internal/model"
	"github.com/shopspring/decimal"
)

// CategoryRevenueGrowth tags inflows created by the revenue growth effect.
const CategoryRevenueGrowth = "revenue_growth"

var defaultDeliveryCategories = []string{model.CategoryContractors, model.CategoryProjectCosts}

// LinkedInput is what a linked effect is applied to. Snapshot already has the
// primary delta layered on, and Anchor is the primary scenario's anchor date.
type LinkedInput struct {
	Anchor     time.Time
	Snapshot   *Snapshot
	Definition *model.ScenarioDefinition
	Primary    *model.ScenarioDelta
	Params     map[string]string
}

// LinkedEffect is a secondary change offered alongside a primary scenario.
type LinkedEffect struct {
	check    func(r *paramReader)
	apply    func(in LinkedInput, r *paramReader) *model.ScenarioDelta
	Type     model.LinkedType
	Label    string
	Params   []model.ParamSpec
	Optional []model.ParamSpec
}

// Prompts returns one prompt per parameter, tagged with the effect type.
func (e LinkedEffect) Prompts() []model.PromptRequest {
	out := make([]model.PromptRequest, 0, len(e.Params)+len(e.Optional))
	for _, p := range e.Params {
		req := p.Prompt()
		req.LinkedType = e.Type
		out = append(out, req)
	}
	for _, p := range e.Optional {
		req := p.Prompt()
		req.LinkedType = e.Type
		req.Optional = true
		out = append(out, req)
	}
	return out
}

// Validate checks that params carries every required key, no unknown keys and
// well-formed values.
func (e LinkedEffect) Validate(params map[string]string) error {
	var errs []error
	for _, p := range e.Params {
		if _, ok := params[p.Key]; !ok {
			errs = append(errs, common.NewValidationError(p.Key, "is required"))
		}
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	specs := slices.Concat(e.Params, e.Optional)
	for _, k := range keys {
		i := slices.IndexFunc(specs, func(p model.ParamSpec) bool { return p.Key == k })
		if i < 0 {
			errs = append(errs, common.NewValidationError(k, "is not a parameter of %s", e.Type))
			continue
		}
		if err := CheckAnswer(specs[i], params[k]); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if e.check != nil {
		r := newLinkedReader(params)
		e.check(r)
		return r.err()
	}
	return nil
}

// Apply validates the parameters and computes the effect's delta.
func (e LinkedEffect) Apply(in LinkedInput) (*model.ScenarioDelta, error) {
	if err := e.Validate(in.Params); err != nil {
		return nil, err
	}
	r := newLinkedReader(in.Params)
	d := e.apply(in, r)
	if err := r.err(); err != nil {
		return nil, err
	}
	d.Finalize()
	return d, nil
}

var (
	lagSpec       = model.ParamSpec{Key: "lag_weeks", Label: "Weeks after the scenario date before it takes effect", Type: model.AnswerInteger}
	reductionSpec = model.ParamSpec{Key: "monthly_reduction", Label: "Monthly reduction", Type: model.AnswerAmount}
)

func builtinLinkedEffects() []LinkedEffect {
	return []LinkedEffect{
		costReduction(model.LinkedReduceContractors, model.CategoryContractors, "Cut contractor spend"),
		costReduction(model.LinkedReduceTools, model.CategoryTools, "Cut tools and software spend"),
		costReduction(model.LinkedReduceProjectCosts, model.CategoryProjectCosts, "Cut project costs"),
		{
			Type:     model.LinkedAdjustDeliveryCosts,
			Label:    "Adjust delivery costs",
			Params:   []model.ParamSpec{{Key: "monthly_delta", Label: "Monthly change in delivery costs (negative to cut)", Type: model.AnswerSignedAmount}},
			Optional: []model.ParamSpec{lagSpec, {Key: "categories", Label: "Cost categories", Type: model.AnswerIDList}},
			check: func(r *paramReader) {
				if d, ok := r.signedAmount("monthly_delta", true); ok && d.IsZero() {
					r.fail("monthly_delta", "must not be zero")
				}
			},
			apply: applyDeliveryCosts,
		},
		{
			Type:     model.LinkedRevenueGrowth,
			Label:    "Expect revenue growth from this hire",
			Params:   []model.ParamSpec{{Key: "monthly_amount", Label: "Additional monthly revenue", Type: model.AnswerAmount}},
			Optional: []model.ParamSpec{lagSpec},
			apply:    applyRevenueGrowth,
		},
		{
			Type:     model.LinkedReducedCapacity,
			Label:    "Expect lower revenue from reduced capacity",
			Params:   []model.ParamSpec{reductionSpec},
			Optional: []model.ParamSpec{lagSpec},
			apply: func(in LinkedInput, r *paramReader) *model.ScenarioDelta {
				monthly, _ := r.amount("monthly_reduction", true)
				events := in.Snapshot.Select(effectStart(in, r), func(e model.Event) bool {
					return e.Direction == model.DirectionIn
				})
				return distributeReduction(in.Definition, events, monthly, "reduced capacity")
			},
		},
		{
			Type:   model.LinkedClusteringMitigation,
			Label:  "Spread delayed payments into weekly installments",
			Params: []model.ParamSpec{{Key: "installments", Label: "Number of weekly installments", Type: model.AnswerInteger}},
			check: func(r *paramReader) {
				if n, ok := r.integer("installments", true); ok && n < 2 {
					r.fail("installments", "must be at least 2")
				}
			},
			apply: applyClusteringMitigation,
		},
	}
}

func costReduction(t model.LinkedType, category, label string) LinkedEffect {
	return LinkedEffect{
		Type:     t,
		Label:    label,
		Params:   []model.ParamSpec{reductionSpec},
		Optional: []model.ParamSpec{lagSpec},
		apply: func(in LinkedInput, r *paramReader) *model.ScenarioDelta {
			monthly, _ := r.amount("monthly_reduction", true)
			events := in.Snapshot.Select(effectStart(in, r), func(e model.Event) bool {
				return e.Direction == model.DirectionOut && e.Category == category
			})
			return distributeReduction(in.Definition, events, monthly, string(t))
		},
	}
}

// effectStart is the anchor plus the optional lag, never before the snapshot.
func effectStart(in LinkedInput, r *paramReader) time.Time {
	lag, _ := r.integer("lag_weeks", false)
	anchor := in.Anchor
	if anchor.IsZero() {
		anchor = in.Snapshot.AsOf
	}
	return in.Snapshot.start(calendar.AddWeeks(anchor, lag))
}

// distributeReduction takes monthly off each calendar month's events, split in
// proportion to each event's amount. The last event of a month absorbs rounding.
// Events driven to zero or below are deleted.
func distributeReduction(def *model.ScenarioDefinition, events []model.Event, monthly decimal.Decimal, reason string) *model.ScenarioDelta {
	d := model.NewDelta(def.ID)
	if !monthly.IsPositive() {
		return d
	}

	var months []string
	byMonth := make(map[string][]model.Event)
	for _, e := range events {
		k := calendar.MonthKey(e.Date)
		if _, ok := byMonth[k]; !ok {
			months = append(months, k)
		}
		byMonth[k] = append(byMonth[k], e)
	}

	for _, k := range months {
		group := byMonth[k]
		total := decimal.Zero
		for _, e := range group {
			total = total.Add(e.Amount)
		}
		if !total.IsPositive() {
			continue
		}

		allocated := decimal.Zero
		for i, e := range group {
			share := monthly.Mul(e.Amount).Div(total).Round(2)
			if i == len(group)-1 {
				share = decimal.Max(monthly.Sub(allocated), decimal.Zero)
			}
			allocated = allocated.Add(share)

			remaining := e.Amount.Sub(share)
			if !remaining.IsPositive() {
				d.Delete(e, fmt.Sprintf("%s: %s removes the payment", reason, share))
				continue
			}
			reduced := touched(e, def)
			reduced.Amount = remaining
			reduced.Confidence = model.MinConfidence(e.Confidence, model.ConfidenceMedium)
			d.Modify(e, reduced, fmt.Sprintf("%s: reduced by %s", reason, share))
		}
	}
	return d
}

func applyDeliveryCosts(in LinkedInput, r *paramReader) *model.ScenarioDelta {
	delta, _ := r.signedAmount("monthly_delta", true)
	categories := r.list("categories")
	if len(categories) == 0 {
		categories = defaultDeliveryCategories
	}
	start := effectStart(in, r)

	if delta.IsNegative() {
		events := in.Snapshot.Select(start, func(e model.Event) bool {
			return e.Direction == model.DirectionOut && slices.Contains(categories, e.Category)
		})
		return distributeReduction(in.Definition, events, delta.Neg(), "delivery costs")
	}

	d := model.NewDelta(in.Definition.ID)
	tmpl := generated(in.Snapshot, in.Definition, start, delta, model.DirectionOut)
	tmpl.Category = categories[0]
	tmpl.ConfidenceReason = "scenario_delivery_costs"
	addSeries(d, in.Snapshot, tmpl, start, in.Snapshot.HorizonEnd, calendar.CadenceMonthly, "additional delivery costs")
	return d
}

func applyRevenueGrowth(in LinkedInput, r *paramReader) *model.ScenarioDelta {
	monthly, _ := r.amount("monthly_amount", true)
	start := effectStart(in, r)

	d := model.NewDelta(in.Definition.ID)
	tmpl := generated(in.Snapshot, in.Definition, start, monthly, model.DirectionIn)
	tmpl.Category = CategoryRevenueGrowth
	tmpl.Confidence = model.ConfidenceLow
	tmpl.ConfidenceReason = "scenario_revenue_growth"
	addSeries(d, in.Snapshot, tmpl, start, in.Snapshot.HorizonEnd, calendar.CadenceMonthly, "revenue growth")
	return d
}

// applyClusteringMitigation spreads every event the primary delta moved into
// equal weekly installments starting on its new date.
func applyClusteringMitigation(in LinkedInput, r *paramReader) *model.ScenarioDelta {
	n, _ := r.integer("installments", true)
	d := model.NewDelta(in.Definition.ID)
	if in.Primary == nil || n < 2 {
		return d
	}

	current := make(map[string]model.Event, len(in.Snapshot.Events))
	for _, e := range in.Snapshot.Events {
		current[e.ID] = e
	}

	count := decimal.NewFromInt(int64(n))
	for _, c := range in.Primary.UpdatedEvents {
		if c.Operation != model.OperationModify {
			continue
		}
		lump, ok := current[c.OriginalEventID]
		if !ok || !lump.Amount.IsPositive() {
			continue
		}

		each := lump.Amount.Div(count).RoundDown(2)
		last := lump.Amount.Sub(each.Mul(decimal.NewFromInt(int64(n - 1))))

		first := lump
		first.Amount = each
		d.Modify(lump, first, fmt.Sprintf("installment 1 of %d", n))

		for i := 1; i < n; i++ {
			part := lump
			part.ID = newEventID()
			part.Date, _ = in.Snapshot.Clamp(calendar.AddWeeks(lump.Date, i))
			part.Amount = each
			part.IsRecurring = false
			part.RecurrencePattern = model.RecurrenceNone
			if i == n-1 {
				part.Amount = last
			}
			d.Add(part, fmt.Sprintf("installment %d of %d", i+1, n))
		}
	}
	return d
}
