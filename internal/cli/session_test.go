package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/runway/internal/forecast"
	"github.com/Veraticus/runway/internal/model"
	"github.com/Veraticus/runway/internal/pipeline"
	"github.com/Veraticus/runway/internal/scenario"
	"github.com/Veraticus/runway/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(t *testing.T) *pipeline.Orchestrator {
	t.Helper()
	db := testutil.SetupTestDB(t).WithCash("u1", "10000")
	return pipeline.NewWithConfig(db.Storage, forecast.NewBaseline(db.Storage, db.Storage), scenario.NewRegistry(), pipeline.Config{
		Now:           func() time.Time { return time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC) },
		ForecastWeeks: 13,
	})
}

func TestSession_Collect(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()
	def, _, err := o.Seed(ctx, "u1", model.ScenarioClientLoss, model.EntryManual)
	require.NoError(t, err)

	input := strings.Join([]string{
		"acme",
		"2025-02-31", // rejected locally, asked again
		"2025-02-01",
		"y", "1000", "", // contractors, no lag
		"n", // tools
		"n", // project costs
	}, "\n") + "\n"

	var out bytes.Buffer
	res, err := NewSession(o, NewPrompter(strings.NewReader(input), &out)).Collect(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageApplying, res.Stage)
	assert.True(t, res.Ready())

	got, _, err := o.Get(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, got.Scope.ClientIDs)
	assert.Equal(t, "2025-02-01", got.Params["effective_date"])
	assert.True(t, got.Linked[model.LinkedReduceContractors].Accepted)
	assert.Equal(t, "1000", got.Linked[model.LinkedReduceContractors].Params["monthly_reduction"])
	assert.True(t, got.Linked[model.LinkedReduceTools].Skipped)
	assert.True(t, got.Linked[model.LinkedReduceProjectCosts].Skipped)

	_, err = o.Apply(ctx, def.ID)
	require.NoError(t, err)
}

func TestSession_ResumesWhereItStopped(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()
	def, _, err := o.Seed(ctx, "u1", model.ScenarioClientLoss, model.EntryManual)
	require.NoError(t, err)

	// Input runs out after the first answer.
	_, err = NewSession(o, NewPrompter(strings.NewReader("acme\n"), &bytes.Buffer{})).Collect(ctx, def.ID)
	require.Error(t, err)

	got, res, err := o.Get(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, got.Scope.ClientIDs)
	assert.Equal(t, model.StageCollectingParams, res.Stage)

	input := "2025-02-01\nn\nn\nn\n"
	res, err = NewSession(o, NewPrompter(strings.NewReader(input), &bytes.Buffer{})).Collect(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageApplying, res.Stage)
}
