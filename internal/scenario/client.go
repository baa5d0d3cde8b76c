package scenario

import (
	"fmt"
	"time"

	"github.com/Veraticus/runway/internal/calendar"
	"github.com/Veraticus/runway/internal/model"
	"github.com/shopspring/decimal"
)

var clientScopeSpec = model.ParamSpec{Key: model.ScopeClientIDs, Label: "Which clients?", Type: model.AnswerIDList}

// clientLossHandler removes a client's future revenue.
type clientLossHandler struct{}

func (clientLossHandler) Type() model.ScenarioType { return model.ScenarioClientLoss }

func (clientLossHandler) RequiredParams() []model.ParamSpec {
	return []model.ParamSpec{
		clientScopeSpec,
		{Key: "effective_date", Label: "When does the client stop paying?", Type: model.AnswerDate},
	}
}

func (clientLossHandler) OptionalParams() []model.ParamSpec { return nil }

func (clientLossHandler) LinkedPromptTypes() []model.LinkedType {
	return []model.LinkedType{
		model.LinkedReduceContractors,
		model.LinkedReduceTools,
		model.LinkedReduceProjectCosts,
	}
}

func (clientLossHandler) decode(def *model.ScenarioDefinition) ([]string, time.Time, error) {
	r := newReader(def)
	ids := r.ids(model.ScopeClientIDs, true)
	effective, _ := r.date("effective_date", true)
	return ids, effective, r.err()
}

func (h clientLossHandler) Validate(def *model.ScenarioDefinition) error {
	_, _, err := h.decode(def)
	return err
}

func (h clientLossHandler) Anchor(def *model.ScenarioDefinition) time.Time {
	_, effective, _ := h.decode(def)
	return effective
}

func (h clientLossHandler) Apply(snap *Snapshot, def *model.ScenarioDefinition) (*model.ScenarioDelta, error) {
	ids, effective, err := h.decode(def)
	if err != nil {
		return nil, err
	}

	set := idSet(ids)
	d := model.NewDelta(def.ID)
	for _, e := range snap.Select(effective, func(e model.Event) bool {
		return e.Direction == model.DirectionIn && set[e.ClientID]
	}) {
		d.Delete(e, fmt.Sprintf("client %s lost from %s", e.ClientID, calendar.FormatDate(effective)))
	}
	d.Finalize()
	return d, nil
}

// clientGainHandler adds revenue from a new client.
type clientGainHandler struct{}

type clientGainParams struct {
	start   time.Time
	end     time.Time
	monthly decimal.Decimal
	name    string
	cadence calendar.Cadence
}

var revenueCadences = []calendar.Cadence{
	calendar.CadenceWeekly,
	calendar.CadenceBiweekly,
	calendar.CadenceMonthly,
	calendar.CadenceQuarterly,
}

func (clientGainHandler) Type() model.ScenarioType { return model.ScenarioClientGain }

func (clientGainHandler) RequiredParams() []model.ParamSpec {
	return []model.ParamSpec{
		{Key: "client_name", Label: "Client name", Type: model.AnswerText},
		{Key: "monthly_amount", Label: "Expected monthly revenue", Type: model.AnswerAmount},
		{Key: "start_date", Label: "First payment date", Type: model.AnswerDate},
	}
}

func (clientGainHandler) OptionalParams() []model.ParamSpec {
	return []model.ParamSpec{
		{Key: "cadence", Label: "How often do they pay?", Type: model.AnswerChoice, Choices: cadenceChoices(revenueCadences...)},
		{Key: "end_date", Label: "Last payment date", Type: model.AnswerDate},
	}
}

func (clientGainHandler) LinkedPromptTypes() []model.LinkedType {
	return []model.LinkedType{model.LinkedAdjustDeliveryCosts}
}

func (clientGainHandler) decode(def *model.ScenarioDefinition) (clientGainParams, error) {
	r := newReader(def)
	var p clientGainParams
	p.name = r.text("client_name", true)
	p.monthly, _ = r.amount("monthly_amount", true)
	p.start, _ = r.date("start_date", true)
	p.cadence = r.cadence("cadence", calendar.CadenceMonthly, revenueCadences...)
	p.end, _ = r.date("end_date", false)
	if !p.end.IsZero() && !p.start.IsZero() && p.end.Before(p.start) {
		r.fail("end_date", "must not be before start_date")
	}
	return p, r.err()
}

func (h clientGainHandler) Validate(def *model.ScenarioDefinition) error {
	_, err := h.decode(def)
	return err
}

func (h clientGainHandler) Anchor(def *model.ScenarioDefinition) time.Time {
	p, _ := h.decode(def)
	return p.start
}

func (h clientGainHandler) Apply(snap *Snapshot, def *model.ScenarioDefinition) (*model.ScenarioDelta, error) {
	p, err := h.decode(def)
	if err != nil {
		return nil, err
	}

	d := model.NewDelta(def.ID)
	tmpl := generated(snap, def, p.start, calendar.Apportion(p.monthly, p.cadence), model.DirectionIn)
	tmpl.Category = model.CategoryRetainer
	tmpl.ConfidenceReason = "scenario_new_client"
	addSeries(d, snap, tmpl, p.start, seriesEnd(snap, p.end), p.cadence, "new client "+p.name)
	d.Finalize()
	return d, nil
}

// clientChangeHandler moves a client's future revenue up or down.
type clientChangeHandler struct{}

type clientChangeParams struct {
	effective time.Time
	ids       []string
	delta     decimal.Decimal
}

func (clientChangeHandler) Type() model.ScenarioType { return model.ScenarioClientChange }

func (clientChangeHandler) RequiredParams() []model.ParamSpec {
	return []model.ParamSpec{
		clientScopeSpec,
		{Key: "effective_date", Label: "When does the change take effect?", Type: model.AnswerDate},
		{Key: "delta_amount", Label: "Change per payment (negative for a downsell)", Type: model.AnswerSignedAmount},
	}
}

func (clientChangeHandler) OptionalParams() []model.ParamSpec { return nil }

func (clientChangeHandler) LinkedPromptTypes() []model.LinkedType {
	return []model.LinkedType{model.LinkedAdjustDeliveryCosts}
}

func (clientChangeHandler) decode(def *model.ScenarioDefinition) (clientChangeParams, error) {
	r := newReader(def)
	var p clientChangeParams
	p.ids = r.ids(model.ScopeClientIDs, true)
	p.effective, _ = r.date("effective_date", true)
	if delta, ok := r.signedAmount("delta_amount", true); ok {
		if delta.IsZero() {
			r.fail("delta_amount", "must not be zero")
		}
		p.delta = delta
	}
	return p, r.err()
}

func (h clientChangeHandler) Validate(def *model.ScenarioDefinition) error {
	_, err := h.decode(def)
	return err
}

func (h clientChangeHandler) Anchor(def *model.ScenarioDefinition) time.Time {
	p, _ := h.decode(def)
	return p.effective
}

func (h clientChangeHandler) Apply(snap *Snapshot, def *model.ScenarioDefinition) (*model.ScenarioDelta, error) {
	p, err := h.decode(def)
	if err != nil {
		return nil, err
	}

	set := idSet(p.ids)
	d := model.NewDelta(def.ID)
	for _, e := range snap.Select(p.effective, func(e model.Event) bool {
		return e.Direction == model.DirectionIn && set[e.ClientID]
	}) {
		changed := touched(e, def)
		changed.Amount = decimal.Max(e.Amount.Add(p.delta), decimal.Zero)
		changed.Confidence = model.MinConfidence(e.Confidence, model.ConfidenceMedium)
		changed.ConfidenceReason = "scenario_client_change"
		d.Modify(e, changed, fmt.Sprintf("client %s payment changed by %s", e.ClientID, p.delta))
	}
	d.Finalize()
	return d, nil
}
