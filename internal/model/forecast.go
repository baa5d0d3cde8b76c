package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WeekForecast is one fixed seven-day bucket of a forecast.
type WeekForecast struct {
	StartDate       time.Time       `json:"start_date"`
	EndDate         time.Time       `json:"end_date"`
	StartingBalance decimal.Decimal `json:"starting_balance"`
	CashIn          decimal.Decimal `json:"cash_in"`
	CashOut         decimal.Decimal `json:"cash_out"`
	NetChange       decimal.Decimal `json:"net_change"`
	EndingBalance   decimal.Decimal `json:"ending_balance"`
	Events          []Event         `json:"events,omitempty"`
	WeekNumber      int             `json:"week_number"`
}

// ForecastSummary aggregates a forecast.
type ForecastSummary struct {
	LowestCashAmount decimal.Decimal `json:"lowest_cash_amount"`
	TotalCashIn      decimal.Decimal `json:"total_cash_in"`
	TotalCashOut     decimal.Decimal `json:"total_cash_out"`
	LowestCashWeek   int             `json:"lowest_cash_week"`
	RunwayWeeks      int             `json:"runway_weeks"`
}

// Forecast is a weekly cash projection.
type Forecast struct {
	ForecastStartDate time.Time       `json:"forecast_start_date"`
	StartingCash      decimal.Decimal `json:"starting_cash"`
	UserID            string          `json:"user_id"`
	ScenarioID        string          `json:"scenario_id,omitempty"`
	Weeks             []WeekForecast  `json:"weeks"`
	Summary           ForecastSummary `json:"summary"`
}

// Horizon returns the number of weeks covered.
func (f *Forecast) Horizon() int {
	return len(f.Weeks)
}

// EndDate returns the first day after the forecast horizon.
func (f *Forecast) EndDate() time.Time {
	return f.ForecastStartDate.AddDate(0, 0, 7*len(f.Weeks))
}

// Week returns the week with the given 1-based number.
func (f *Forecast) Week(n int) (WeekForecast, bool) {
	if n < 1 || n > len(f.Weeks) {
		return WeekForecast{}, false
	}
	return f.Weeks[n-1], true
}
