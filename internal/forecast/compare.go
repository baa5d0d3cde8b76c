package forecast

import (
	"github.com/Veraticus/runway/internal/model"
	"github.com/shopspring/decimal"
)

// WeekDifference is the per-week change a scenario causes.
type WeekDifference struct {
	BaseEnding    decimal.Decimal `json:"base_ending"`
	LayeredEnding decimal.Decimal `json:"layered_ending"`
	Difference    decimal.Decimal `json:"difference"`
	WeekNumber    int             `json:"week_number"`
}

// Comparison summarises a layered forecast against its base.
type Comparison struct {
	CashInChange  decimal.Decimal  `json:"cash_in_change"`
	CashOutChange decimal.Decimal  `json:"cash_out_change"`
	NetChange     decimal.Decimal  `json:"net_change"`
	LowestChange  decimal.Decimal  `json:"lowest_change"`
	Weeks         []WeekDifference `json:"weeks"`
	BaseRunway    int              `json:"base_runway"`
	LayeredRunway int              `json:"layered_runway"`
	RunwayChange  int              `json:"runway_change"`
}

// Compare diffs two forecasts with the same horizon week by week.
func Compare(base, layered *model.Forecast) Comparison {
	c := Comparison{
		CashInChange:  layered.Summary.TotalCashIn.Sub(base.Summary.TotalCashIn),
		CashOutChange: layered.Summary.TotalCashOut.Sub(base.Summary.TotalCashOut),
		LowestChange:  layered.Summary.LowestCashAmount.Sub(base.Summary.LowestCashAmount),
		BaseRunway:    base.Summary.RunwayWeeks,
		LayeredRunway: layered.Summary.RunwayWeeks,
	}
	c.NetChange = c.CashInChange.Sub(c.CashOutChange)
	c.RunwayChange = c.LayeredRunway - c.BaseRunway

	n := min(len(base.Weeks), len(layered.Weeks))
	c.Weeks = make([]WeekDifference, n)
	for i := 0; i < n; i++ {
		b, l := base.Weeks[i], layered.Weeks[i]
		c.Weeks[i] = WeekDifference{
			WeekNumber:    b.WeekNumber,
			BaseEnding:    b.EndingBalance,
			LayeredEnding: l.EndingBalance,
			Difference:    l.EndingBalance.Sub(b.EndingBalance),
		}
	}
	return c
}
