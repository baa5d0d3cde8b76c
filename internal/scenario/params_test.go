package scenario

import (
	"fmt"
	"testing"

	"github.com/Veraticus/runway/internal/common"
	"github.com/Veraticus/runway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAnswer(t *testing.T) {
	choice := model.ParamSpec{Key: "cadence", Type: model.AnswerChoice, Choices: []string{"weekly", "monthly"}}

	tests := []struct {
		spec    model.ParamSpec
		raw     string
		wantErr bool
	}{
		{spec: model.ParamSpec{Key: "a", Type: model.AnswerAmount}, raw: "$1,250.50"},
		{spec: model.ParamSpec{Key: "a", Type: model.AnswerAmount}, raw: "-5", wantErr: true},
		{spec: model.ParamSpec{Key: "a", Type: model.AnswerAmount}, raw: "lots", wantErr: true},
		{spec: model.ParamSpec{Key: "s", Type: model.AnswerSignedAmount}, raw: "-$300"},
		{spec: model.ParamSpec{Key: "n", Type: model.AnswerInteger}, raw: "3"},
		{spec: model.ParamSpec{Key: "n", Type: model.AnswerInteger}, raw: "-1", wantErr: true},
		{spec: model.ParamSpec{Key: "n", Type: model.AnswerInteger}, raw: "2.5", wantErr: true},
		{spec: model.ParamSpec{Key: "p", Type: model.AnswerPercent}, raw: "12.5"},
		{spec: model.ParamSpec{Key: "p", Type: model.AnswerPercent}, raw: "101", wantErr: true},
		{spec: model.ParamSpec{Key: "d", Type: model.AnswerDate}, raw: "2025-02-29", wantErr: true},
		{spec: model.ParamSpec{Key: "d", Type: model.AnswerDate}, raw: "2024-02-29"},
		{spec: model.ParamSpec{Key: "b", Type: model.AnswerBool}, raw: "Yes"},
		{spec: model.ParamSpec{Key: "b", Type: model.AnswerBool}, raw: "maybe", wantErr: true},
		{spec: model.ParamSpec{Key: "ids", Type: model.AnswerIDList}, raw: "a, b"},
		{spec: model.ParamSpec{Key: "ids", Type: model.AnswerIDList}, raw: " , ", wantErr: true},
		{spec: choice, raw: "monthly"},
		{spec: choice, raw: "daily", wantErr: true},
		{spec: model.ParamSpec{Key: "t", Type: model.AnswerText}, raw: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%q", tt.spec.Type, tt.raw), func(t *testing.T) {
			err := CheckAnswer(tt.spec, tt.raw)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, common.ErrValidation)
			var verr *common.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.spec.Key, verr.Field)
		})
	}
}

func TestParseIDList_DropsDuplicates(t *testing.T) {
	ids, err := ParseIDList("acme, globex,acme,,")
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "globex"}, ids)
}

func TestParamReader_CollectsAllErrors(t *testing.T) {
	def := definition(model.ScenarioHiring, map[string]string{"cadence": "daily"}, model.Scope{})
	err := newCostGainHandler(model.ScenarioHiring).Validate(def)
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "monthly_cost")
	assert.Contains(t, msg, "start_date")
	assert.Contains(t, msg, "cadence")
}

func TestMatchByTolerance(t *testing.T) {
	t.Run("ties go to the earlier series", func(t *testing.T) {
		early := withBucket(series("early", model.DirectionOut, "1050", model.CategoryPayroll, model.RecurrenceMonthly,
			"2025-01-10", "2025-02-10"), "b-early")
		late := withBucket(series("late", model.DirectionOut, "950", model.CategoryPayroll, model.RecurrenceMonthly,
			"2025-01-20", "2025-02-20"), "b-late")
		candidates := append(append([]model.Event(nil), late...), early...)
		sortEvents(candidates)

		got := matchByTolerance(candidates, dec("1000"), PayrollTolerance)
		assert.Equal(t, []string{"early-1", "early-2"}, eventIDs(got))
	})

	t.Run("weekly series normalised to monthly", func(t *testing.T) {
		weekly := withBucket(series("wk", model.DirectionOut, "1200", model.CategoryPayroll, model.RecurrenceWeekly,
			"2025-01-10", "2025-01-17"), "b-wk")
		got := matchByTolerance(weekly, dec("5200"), PayrollTolerance)
		assert.Len(t, got, 2)
	})

	t.Run("nothing within tolerance", func(t *testing.T) {
		events := withBucket(series("x", model.DirectionOut, "1000", model.CategoryPayroll, model.RecurrenceMonthly, "2025-01-10"), "b")
		assert.Empty(t, matchByTolerance(events, dec("2000"), PayrollTolerance))
		assert.Empty(t, matchByTolerance(events, dec("0"), PayrollTolerance))
	})

	t.Run("capped", func(t *testing.T) {
		var many []model.Event
		for i := 0; i < MaxToleranceMatches+20; i++ {
			many = append(many, model.Event{
				ID:                fmt.Sprintf("w%03d", i),
				Date:              asOf.AddDate(0, 0, 7*i),
				Amount:            dec("100"),
				Direction:         model.DirectionOut,
				BucketID:          "b",
				RecurrencePattern: model.RecurrenceWeekly,
			})
		}
		got := matchByTolerance(many, dec("433.33"), PayrollTolerance)
		assert.Len(t, got, MaxToleranceMatches)
		assert.Equal(t, "w000", got[0].ID)
	})
}

func eventIDs(events []model.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}
