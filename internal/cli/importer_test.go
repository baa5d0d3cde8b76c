package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/Veraticus/runway/internal/model"
	"github.com/Veraticus/runway/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventImporter_Import(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	csv := `id,date,amount,direction,category,client_id,recurrence,confidence
acme-1,2025-02-15,"10,000.00",in,retainer,acme,monthly,
rent-1,2025-02-01,8000,out,rent,,,medium
,2025-03-01,-250,,tools,,one_off,low
`
	var progress bytes.Buffer
	n, err := NewEventImporter(db.Storage, "u1", &progress).Import(ctx, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Contains(t, progress.String(), "Importing events")

	events, err := db.Storage.ListEvents(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, events, 3)

	byCategory := make(map[string]model.Event)
	for _, e := range events {
		byCategory[e.Category] = e
	}

	acme := byCategory["retainer"]
	assert.Equal(t, "acme-1", acme.ID)
	assert.Equal(t, "10000", acme.Amount.String())
	assert.Equal(t, model.DirectionIn, acme.Direction)
	assert.Equal(t, model.ConfidenceHigh, acme.Confidence)
	assert.True(t, acme.IsRecurring)
	assert.Equal(t, model.EventTypeExpectedRevenue, acme.EventType)

	assert.Equal(t, model.ConfidenceMedium, byCategory["rent"].Confidence)

	tools := byCategory["tools"]
	assert.NotEmpty(t, tools.ID)
	assert.Equal(t, model.DirectionOut, tools.Direction)
	assert.Equal(t, "250", tools.Amount.String())
	assert.False(t, tools.IsRecurring)
}

func TestEventImporter_RejectsBadFiles(t *testing.T) {
	tests := []struct {
		name     string
		csv      string
		contains []string
	}{
		{
			name:     "missing column",
			csv:      "date,amount\n2025-01-01,5\n",
			contains: []string{"direction"},
		},
		{
			name: "every bad row is reported",
			csv: `date,amount,direction,confidence,recurrence
2025-02-30,5,in,,
2025-02-01,lots,out,,
2025-02-01,5,sideways,,
2025-02-01,5,in,certain,
2025-02-01,5,in,,hourly
2025-02-01,-5,in,,
2025-02-01,5,in,,
`,
			contains: []string{"line 2:", "line 3:", "line 4:", "line 5:", "line 6:", "line 7:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.SetupTestDB(t)
			ctx := context.Background()

			n, err := NewEventImporter(db.Storage, "u1", nil).Import(ctx, strings.NewReader(tt.csv))
			require.Error(t, err)
			assert.Zero(t, n)
			for _, s := range tt.contains {
				assert.Contains(t, err.Error(), s)
			}
			assert.NotContains(t, err.Error(), "line 8:")

			events, err := db.Storage.ListEvents(ctx, "u1")
			require.NoError(t, err)
			assert.Empty(t, events, "nothing is imported from a bad file")
		})
	}
}

func TestEventImporter_EmptyFile(t *testing.T) {
	db := testutil.SetupTestDB(t)
	n, err := NewEventImporter(db.Storage, "u1", nil).Import(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEventImporter_Add(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	im := NewEventImporter(db.Storage, "u1", nil)

	e, err := im.Add(ctx, map[string]string{"date": "2025-02-01", "amount": "-1200", "category": "software"})
	require.NoError(t, err)
	assert.Equal(t, model.DirectionOut, e.Direction)
	assert.Equal(t, "1200", e.Amount.String())

	got, err := db.Storage.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "software", got.Category)

	_, err = im.Add(ctx, map[string]string{"amount": "5"})
	assert.ErrorIs(t, err, ErrMissingColumn)
}
