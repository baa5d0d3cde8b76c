package scenario

import (
	"fmt"
	"time"

	"github.com/Veraticus/runway/internal/calendar"
	"github.com/Veraticus/runway/internal/model"
	"github.com/shopspring/decimal"
)

// delayHandler shifts matching events of one direction later by a number of
// weeks. Inflows are scoped by client, outflows by expense bucket.
type delayHandler struct {
	typ       model.ScenarioType
	direction model.Direction
	scopeKey  string
}

type delayParams struct {
	effective   time.Time
	ids         []string
	pct         decimal.Decimal
	weeks       int
	occurrences int
	partial     bool
}

func newDelayHandler(t model.ScenarioType) *delayHandler {
	if t == model.ScenarioPaymentDelayOut {
		return &delayHandler{typ: t, direction: model.DirectionOut, scopeKey: model.ScopeBucketIDs}
	}
	return &delayHandler{typ: t, direction: model.DirectionIn, scopeKey: model.ScopeClientIDs}
}

func (h *delayHandler) Type() model.ScenarioType { return h.typ }

func (h *delayHandler) RequiredParams() []model.ParamSpec {
	label := "Which clients' payments are delayed?"
	if h.direction == model.DirectionOut {
		label = "Which expense buckets are you delaying?"
	}
	return []model.ParamSpec{
		{Key: "delay_weeks", Label: "How many weeks late?", Type: model.AnswerInteger},
		{Key: h.scopeKey, Label: label, Type: model.AnswerIDList},
	}
}

func (h *delayHandler) OptionalParams() []model.ParamSpec {
	return []model.ParamSpec{
		{Key: "is_partial", Label: "Is part of the payment made on time?", Type: model.AnswerBool},
		{Key: "partial_payment_pct", Label: "What percentage is paid on time?", Type: model.AnswerPercent},
		{Key: "effective_date", Label: "Delay payments due from which date?", Type: model.AnswerDate},
		{Key: "occurrences", Label: "How many upcoming payments per source are affected? (0 = all)", Type: model.AnswerInteger},
	}
}

// ConditionalParams asks for the on-time percentage once a payment is marked
// partial.
func (h *delayHandler) ConditionalParams(def *model.ScenarioDefinition) []model.ParamSpec {
	if partial, err := ParseBool(def.Params["is_partial"]); err != nil || !partial {
		return nil
	}
	spec, _ := Spec(h, "partial_payment_pct")
	return []model.ParamSpec{spec}
}

func (h *delayHandler) LinkedPromptTypes() []model.LinkedType {
	return []model.LinkedType{model.LinkedClusteringMitigation}
}

func (h *delayHandler) decode(def *model.ScenarioDefinition) (delayParams, error) {
	r := newReader(def)
	var p delayParams

	if weeks, ok := r.integer("delay_weeks", true); ok {
		if weeks == 0 {
			r.fail("delay_weeks", "must be at least 1")
		}
		p.weeks = weeks
	}
	p.ids = r.ids(h.scopeKey, true)
	p.partial = r.boolean("is_partial")
	pct, hasPct := r.percent("partial_payment_pct", false)
	if p.partial {
		switch {
		case !hasPct:
			r.fail("partial_payment_pct", "is required when is_partial is set")
		case !pct.IsPositive() || !pct.LessThan(hundred):
			r.fail("partial_payment_pct", "must be greater than 0 and less than 100")
		default:
			p.pct = pct
		}
	}
	p.effective, _ = r.date("effective_date", false)
	p.occurrences, _ = r.integer("occurrences", false)

	return p, r.err()
}

func (h *delayHandler) Validate(def *model.ScenarioDefinition) error {
	_, err := h.decode(def)
	return err
}

func (h *delayHandler) Anchor(def *model.ScenarioDefinition) time.Time {
	p, _ := h.decode(def)
	return p.effective
}

func (h *delayHandler) scoped(e model.Event) string {
	if h.direction == model.DirectionOut {
		return e.BucketID
	}
	return e.ClientID
}

func (h *delayHandler) Apply(snap *Snapshot, def *model.ScenarioDefinition) (*model.ScenarioDelta, error) {
	p, err := h.decode(def)
	if err != nil {
		return nil, err
	}

	set := idSet(p.ids)
	matches := snap.Select(snap.start(p.effective), func(e model.Event) bool {
		return e.Direction == h.direction && set[h.scoped(e)]
	})
	matches = firstPerSource(matches, p.occurrences)

	tag := fmt.Sprintf("delayed_%d_weeks", p.weeks)
	d := model.NewDelta(def.ID)
	for _, e := range matches {
		shifted := touched(e, def)
		shifted.Confidence = e.Confidence.Downgrade()
		shifted.ConfidenceReason = tag
		var clamped bool
		if shifted.Date, clamped = snap.Clamp(calendar.AddWeeks(e.Date, p.weeks)); clamped {
			shifted.ConfidenceReason = tag + "_beyond_horizon"
		}

		if p.partial {
			paid := e.Amount.Mul(p.pct).Div(hundred).Round(2)
			part := touched(e, def)
			part.ID = newEventID()
			part.Amount = paid
			part.IsRecurring = false
			part.RecurrencePattern = model.RecurrenceNone
			d.Add(part, fmt.Sprintf("%s%% of %s paid on time", p.pct, e.ID))
			shifted.Amount = e.Amount.Sub(paid)
		}

		d.Modify(e, shifted, fmt.Sprintf("payment delayed %d weeks", p.weeks))
	}

	d.Finalize()
	return d, nil
}

// firstPerSource keeps the first n events of each source. n of 0 keeps all.
func firstPerSource(events []model.Event, n int) []model.Event {
	if n <= 0 {
		return events
	}
	seen := make(map[string]int)
	var out []model.Event
	for _, e := range events {
		k := e.SourceKey()
		if seen[k] >= n {
			continue
		}
		seen[k]++
		out = append(out, e)
	}
	return out
}
