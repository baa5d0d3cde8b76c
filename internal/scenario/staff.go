package scenario

import (
	"fmt"
	"time"

	"github.com/Veraticus/runway/internal/calendar"
	"github.com/Veraticus/runway/internal/model"
	"github.com/shopspring/decimal"
)

var staffCadences = []calendar.Cadence{
	calendar.CadenceWeekly,
	calendar.CadenceBiweekly,
	calendar.CadenceMonthly,
}

// costGainHandler adds a recurring people cost: a hire on payroll or a new contractor.
type costGainHandler struct {
	typ      model.ScenarioType
	category string
}

type costGainParams struct {
	start      time.Time
	monthly    decimal.Decimal
	onboarding decimal.Decimal
	role       string
	cadence    calendar.Cadence
}

func newCostGainHandler(t model.ScenarioType) *costGainHandler {
	if t == model.ScenarioContractorGain {
		return &costGainHandler{typ: t, category: model.CategoryContractors}
	}
	return &costGainHandler{typ: t, category: model.CategoryPayroll}
}

func (h *costGainHandler) Type() model.ScenarioType { return h.typ }

func (h *costGainHandler) RequiredParams() []model.ParamSpec {
	return []model.ParamSpec{
		{Key: "monthly_cost", Label: "Fully loaded monthly cost", Type: model.AnswerAmount},
		{Key: "start_date", Label: "Start date", Type: model.AnswerDate},
	}
}

func (h *costGainHandler) OptionalParams() []model.ParamSpec {
	return []model.ParamSpec{
		{Key: "cadence", Label: "Pay cadence", Type: model.AnswerChoice, Choices: cadenceChoices(staffCadences...)},
		{Key: "onboarding_cost", Label: "One-off onboarding cost", Type: model.AnswerAmount},
		{Key: "role", Label: "Role", Type: model.AnswerText},
	}
}

func (h *costGainHandler) LinkedPromptTypes() []model.LinkedType {
	return []model.LinkedType{model.LinkedRevenueGrowth}
}

func (h *costGainHandler) decode(def *model.ScenarioDefinition) (costGainParams, error) {
	r := newReader(def)
	var p costGainParams
	p.monthly, _ = r.amount("monthly_cost", true)
	p.start, _ = r.date("start_date", true)
	p.cadence = r.cadence("cadence", calendar.CadenceMonthly, staffCadences...)
	p.onboarding, _ = r.amount("onboarding_cost", false)
	p.role = r.text("role", false)
	return p, r.err()
}

func (h *costGainHandler) Validate(def *model.ScenarioDefinition) error {
	_, err := h.decode(def)
	return err
}

func (h *costGainHandler) Anchor(def *model.ScenarioDefinition) time.Time {
	p, _ := h.decode(def)
	return p.start
}

func (h *costGainHandler) Apply(snap *Snapshot, def *model.ScenarioDefinition) (*model.ScenarioDelta, error) {
	p, err := h.decode(def)
	if err != nil {
		return nil, err
	}

	who := p.role
	if who == "" {
		who = h.category
	}

	d := model.NewDelta(def.ID)
	if p.onboarding.IsPositive() && snap.InHorizon(p.start) {
		e := generated(snap, def, p.start, p.onboarding, model.DirectionOut)
		e.Category = model.CategoryOnboarding
		e.Confidence = model.ConfidenceHigh
		e.ConfidenceReason = "scenario_onboarding"
		d.Add(e, "onboarding for "+who)
	}

	tmpl := generated(snap, def, p.start, calendar.Apportion(p.monthly, p.cadence), model.DirectionOut)
	tmpl.Category = h.category
	tmpl.ConfidenceReason = "scenario_" + string(h.typ)
	addSeries(d, snap, tmpl, p.start, snap.HorizonEnd, p.cadence, fmt.Sprintf("%s %s from %s", h.typ, who, calendar.FormatDate(p.start)))

	d.Finalize()
	return d, nil
}

// costLossHandler removes a recurring people cost.
type costLossHandler struct {
	typ       model.ScenarioType
	category  string
	tolerance decimal.Decimal
}

type costLossParams struct {
	end       time.Time
	ids       []string
	monthly   decimal.Decimal
	severance decimal.Decimal
}

func newCostLossHandler(t model.ScenarioType) *costLossHandler {
	if t == model.ScenarioContractorLoss {
		return &costLossHandler{typ: t, category: model.CategoryContractors, tolerance: ContractorTolerance}
	}
	return &costLossHandler{typ: t, category: model.CategoryPayroll, tolerance: PayrollTolerance}
}

func (h *costLossHandler) Type() model.ScenarioType { return h.typ }

func (h *costLossHandler) RequiredParams() []model.ParamSpec {
	return []model.ParamSpec{
		{Key: "end_date", Label: "Last day", Type: model.AnswerDate},
		{Key: "monthly_cost", Label: "Monthly cost being removed", Type: model.AnswerAmount},
	}
}

func (h *costLossHandler) OptionalParams() []model.ParamSpec {
	return []model.ParamSpec{
		{Key: model.ScopeBucketIDs, Label: "Which expense buckets carry this cost?", Type: model.AnswerIDList},
		{Key: "severance_amount", Label: "One-off severance or notice payment", Type: model.AnswerAmount},
	}
}

func (h *costLossHandler) LinkedPromptTypes() []model.LinkedType {
	return []model.LinkedType{model.LinkedReducedCapacity}
}

func (h *costLossHandler) decode(def *model.ScenarioDefinition) (costLossParams, error) {
	r := newReader(def)
	var p costLossParams
	p.end, _ = r.date("end_date", true)
	p.monthly, _ = r.amount("monthly_cost", true)
	p.ids = r.ids(model.ScopeBucketIDs, false)
	p.severance, _ = r.amount("severance_amount", false)
	return p, r.err()
}

func (h *costLossHandler) Validate(def *model.ScenarioDefinition) error {
	_, err := h.decode(def)
	return err
}

func (h *costLossHandler) Anchor(def *model.ScenarioDefinition) time.Time {
	p, _ := h.decode(def)
	return p.end
}

func (h *costLossHandler) Apply(snap *Snapshot, def *model.ScenarioDefinition) (*model.ScenarioDelta, error) {
	p, err := h.decode(def)
	if err != nil {
		return nil, err
	}

	var matches []model.Event
	if len(p.ids) > 0 {
		set := idSet(p.ids)
		matches = snap.Select(p.end, func(e model.Event) bool {
			return e.Direction == model.DirectionOut && set[e.BucketID]
		})
	} else {
		candidates := snap.Select(p.end, func(e model.Event) bool {
			return e.Direction == model.DirectionOut && e.Category == h.category
		})
		matches = matchByTolerance(candidates, p.monthly, h.tolerance)
	}

	d := model.NewDelta(def.ID)
	for _, e := range matches {
		d.Delete(e, fmt.Sprintf("%s: cost ends %s", h.typ, calendar.FormatDate(p.end)))
	}

	if p.severance.IsPositive() && snap.InHorizon(p.end) {
		e := generated(snap, def, p.end, p.severance, model.DirectionOut)
		e.Category = model.CategorySeverance
		e.Confidence = model.ConfidenceHigh
		e.ConfidenceReason = "scenario_severance"
		d.Add(e, "severance")
	}

	d.Finalize()
	return d, nil
}
