package scenario

import (
	"testing"

	"github.com/Veraticus/runway/internal/common"
	"github.com/Veraticus/runway/internal/forecast"
	"github.com/Veraticus/runway/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// applyWithLinked runs a primary handler and one linked effect the way the
// orchestrator does: the effect sees the layered snapshot and is merged in.
func applyWithLinked(t *testing.T, def *model.ScenarioDefinition, lt model.LinkedType, params map[string]string) (*Snapshot, *model.ScenarioDelta, *model.ScenarioDelta) {
	t.Helper()
	reg := NewRegistry()
	h, err := reg.Handler(def.Type)
	require.NoError(t, err)
	effect, err := reg.Linked(lt)
	require.NoError(t, err)

	snap := fixtureSnapshot()
	primary, err := h.Apply(snap, def)
	require.NoError(t, err)

	linked, err := effect.Apply(LinkedInput{
		Anchor:     h.Anchor(def),
		Snapshot:   snap.Layer(primary),
		Definition: def,
		Primary:    primary,
		Params:     params,
	})
	require.NoError(t, err)

	merged := cloneDelta(primary)
	merged.Merge(linked, "lc-1")
	merged.Finalize()
	require.NoError(t, merged.Validate())
	return snap, linked, merged
}

func cloneDelta(d *model.ScenarioDelta) *model.ScenarioDelta {
	c := *d
	c.CreatedEvents = append([]model.EventChange(nil), d.CreatedEvents...)
	c.UpdatedEvents = append([]model.EventChange(nil), d.UpdatedEvents...)
	c.DeletedEventIDs = append([]string(nil), d.DeletedEventIDs...)
	return &c
}

func amountsByID(changes []model.EventChange) map[string]string {
	out := make(map[string]string)
	for _, c := range changes {
		id := c.OriginalEventID
		if c.Operation == model.OperationAdd {
			id = c.Event.ID
		}
		out[id] = c.Event.Amount.String()
	}
	return out
}

func TestClientLoss_ReduceContractors(t *testing.T) {
	def := definition(model.ScenarioClientLoss, map[string]string{"effective_date": "2025-02-01"},
		model.Scope{ClientIDs: []string{"acme"}})

	snap, linked, merged := applyWithLinked(t, def, model.LinkedReduceContractors,
		map[string]string{"monthly_reduction": "1000"})

	assert.Equal(t, map[string]string{
		"dev-3": "1500",
		"dev-4": "1500",
		"dev-5": "1500",
		"dev-6": "1500",
		"dev-7": "1000",
	}, amountsByID(linked.UpdatedEvents))
	assert.Equal(t, "3000", linked.NetCashImpact.String())

	assert.Equal(t, []string{"acme-2", "acme-3"}, merged.DeletedEventIDs)
	assert.Equal(t, "-17000", merged.NetCashImpact.String())
	for _, c := range merged.UpdatedEvents {
		if c.Operation == model.OperationModify {
			assert.Equal(t, "lc-1", c.LinkedChangeID)
		}
	}

	base := forecast.Build(decimal.NewFromInt(5000), asOf, horizonWeeks, snap.Events)
	cmp := forecast.Compare(base, forecast.Layered(base, snap.Events, merged))
	assert.True(t, cmp.NetChange.Equal(merged.NetCashImpact))
}

func TestClientLoss_ReduceToolsDeletesAndLags(t *testing.T) {
	def := definition(model.ScenarioClientLoss, map[string]string{"effective_date": "2025-02-01"},
		model.Scope{ClientIDs: []string{"acme"}})

	_, linked, _ := applyWithLinked(t, def, model.LinkedReduceTools,
		map[string]string{"monthly_reduction": "600", "lag_weeks": "2"})

	assert.Equal(t, []string{"saas-3"}, linked.DeletedEventIDs)
	assert.Empty(t, linked.CreatedEvents)
}

func TestDelay_ClusteringMitigation(t *testing.T) {
	def := definition(model.ScenarioPaymentDelayIn, map[string]string{"delay_weeks": "2"},
		model.Scope{ClientIDs: []string{"acme"}})

	_, linked, merged := applyWithLinked(t, def, model.LinkedClusteringMitigation,
		map[string]string{"installments": "3"})

	assert.Len(t, linked.UpdatedEvents, 3)
	assert.Len(t, linked.CreatedEvents, 6)
	assert.True(t, linked.NetCashImpact.IsZero())

	// Each 10000 lump becomes 3333.33 + 3333.33 + 3333.34.
	total := decimal.Zero
	for _, c := range merged.Changes() {
		if c.Event.ClientID == "acme" {
			total = total.Add(c.Event.Amount)
		}
	}
	assert.Equal(t, "30000", total.String())

	require.Len(t, merged.UpdatedEvents, 3)
	first := merged.UpdatedEvents[0]
	assert.Equal(t, "acme-1", first.OriginalEventID)
	assert.Equal(t, "3333.33", first.Event.Amount.String())
	assert.Equal(t, "10000", first.Previous.Amount.String())
	assert.Equal(t, date("2025-01-29"), first.Event.Date)

	var last model.Event
	for _, c := range merged.CreatedEvents {
		if c.Event.Date.Equal(date("2025-02-12")) {
			last = c.Event
		}
	}
	assert.Equal(t, "3333.34", last.Amount.String())
	assert.True(t, merged.NetCashImpact.IsZero())
}

func TestHiring_RevenueGrowth(t *testing.T) {
	def := definition(model.ScenarioHiring, map[string]string{"monthly_cost": "5000", "start_date": "2025-02-03"}, model.Scope{})

	_, linked, _ := applyWithLinked(t, def, model.LinkedRevenueGrowth,
		map[string]string{"monthly_amount": "7000", "lag_weeks": "4"})

	require.Len(t, linked.CreatedEvents, 2)
	for _, c := range linked.CreatedEvents {
		assert.Equal(t, model.DirectionIn, c.Event.Direction)
		assert.Equal(t, model.ConfidenceLow, c.Event.Confidence)
		assert.Equal(t, CategoryRevenueGrowth, c.Event.Category)
	}
	assert.Equal(t, date("2025-03-03"), linked.CreatedEvents[0].Event.Date)
	assert.Equal(t, date("2025-04-03"), linked.CreatedEvents[1].Event.Date)
}

func TestFiring_ReducedCapacity(t *testing.T) {
	def := definition(model.ScenarioFiring, map[string]string{"end_date": "2025-02-01", "monthly_cost": "6000"}, model.Scope{})

	_, linked, _ := applyWithLinked(t, def, model.LinkedReducedCapacity,
		map[string]string{"monthly_reduction": "1400"})

	assert.Equal(t, map[string]string{
		"acme-2":   "9000",
		"globex-2": "3600",
		"acme-3":   "9000",
		"globex-3": "3600",
	}, amountsByID(linked.UpdatedEvents))
	assert.Equal(t, "-2800", linked.NetCashImpact.String())
}

func TestAdjustDeliveryCosts(t *testing.T) {
	gain := definition(model.ScenarioClientGain, map[string]string{
		"client_name": "Initech", "monthly_amount": "3000", "start_date": "2025-02-03",
	}, model.Scope{})

	t.Run("increase adds monthly cost", func(t *testing.T) {
		_, linked, _ := applyWithLinked(t, gain, model.LinkedAdjustDeliveryCosts,
			map[string]string{"monthly_delta": "800", "categories": "contractors"})

		require.Len(t, linked.CreatedEvents, 3)
		for _, c := range linked.CreatedEvents {
			assert.Equal(t, model.CategoryContractors, c.Event.Category)
			assert.Equal(t, "800", c.Event.Amount.String())
		}
	})

	t.Run("decrease spreads across categories", func(t *testing.T) {
		_, linked, _ := applyWithLinked(t, gain, model.LinkedAdjustDeliveryCosts,
			map[string]string{"monthly_delta": "-400"})

		got := amountsByID(linked.UpdatedEvents)
		assert.Equal(t, "1854.55", got["dev-3"])
		assert.Equal(t, "1854.55", got["dev-4"])
		assert.Equal(t, "1390.9", got["proj-2"])
		assert.Equal(t, "1600", got["dev-7"])
		assert.Equal(t, "1200", linked.NetCashImpact.String())
	})
}

func TestLinkedEffect_Validate(t *testing.T) {
	reg := NewRegistry()
	clustering, err := reg.Linked(model.LinkedClusteringMitigation)
	require.NoError(t, err)
	reduce, err := reg.Linked(model.LinkedReduceContractors)
	require.NoError(t, err)

	tests := []struct {
		params map[string]string
		name   string
		effect LinkedEffect
		field  string
	}{
		{name: "too few installments", effect: clustering, params: map[string]string{"installments": "1"}, field: "installments"},
		{name: "missing required", effect: reduce, params: map[string]string{"lag_weeks": "2"}, field: "monthly_reduction"},
		{name: "unknown key", effect: reduce, params: map[string]string{"monthly_reduction": "10", "vibes": "good"}, field: "vibes"},
		{name: "negative amount", effect: reduce, params: map[string]string{"monthly_reduction": "-10"}, field: "monthly_reduction"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.effect.Validate(tt.params)
			var verr *common.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	assert.NoError(t, reduce.Validate(map[string]string{"monthly_reduction": "10", "lag_weeks": "0"}))
}

func TestLinkedEffect_Prompts(t *testing.T) {
	effect, err := NewRegistry().Linked(model.LinkedReduceProjectCosts)
	require.NoError(t, err)

	prompts := effect.Prompts()
	require.Len(t, prompts, 2)
	assert.Equal(t, "monthly_reduction", prompts[0].Key)
	assert.False(t, prompts[0].Optional)
	assert.Equal(t, "lag_weeks", prompts[1].Key)
	assert.True(t, prompts[1].Optional)
	for _, p := range prompts {
		assert.Equal(t, model.LinkedReduceProjectCosts, p.LinkedType)
	}
}
