package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/runway/internal/calendar"
	"github.com/Veraticus/runway/internal/model"
	"github.com/Veraticus/runway/internal/service"
)

var _ service.BaselineForecaster = (*Baseline)(nil)

// Baseline computes the canonical forecast from the event store.
type Baseline struct {
	events service.EventSource
	cash   service.CashSource
}

// NewBaseline creates a baseline forecaster.
func NewBaseline(events service.EventSource, cash service.CashSource) *Baseline {
	return &Baseline{events: events, cash: cash}
}

// ComputeBaseline forecasts weeks weeks of canonical events starting at asOf.
func (b *Baseline) ComputeBaseline(ctx context.Context, userID string, asOf time.Time, weeks int) (*model.Forecast, error) {
	start := calendar.Day(asOf)

	cash, err := b.cash.GetStartingCash(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load starting cash: %w", err)
	}

	events, err := b.events.GetFutureEvents(ctx, userID, start)
	if err != nil {
		return nil, fmt.Errorf("failed to load future events: %w", err)
	}

	canonical := events[:0:0]
	for _, e := range events {
		if e.IsCanonical() {
			canonical = append(canonical, e)
		}
	}

	f := Build(cash, start, weeks, canonical)
	f.UserID = userID

	slog.Debug("Computed baseline forecast",
		"user_id", userID,
		"weeks", weeks,
		"events", len(canonical),
		"runway_weeks", f.Summary.RunwayWeeks)

	return f, nil
}
