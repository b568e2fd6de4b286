package accounting

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	DirectionUp   = "up"
	DirectionDown = "down"
	DirectionFlat = "flat"
)

// PeriodTotals is the reduced summary compared between two periods.
type PeriodTotals struct {
	Revenue       decimal.Decimal `json:"revenue"`
	Cost          decimal.Decimal `json:"cost"`
	GrossProfit   decimal.Decimal `json:"gross_profit"`
	NetProfit     decimal.Decimal `json:"net_profit"`
	TotalExpense  decimal.Decimal `json:"total_expense"`
	TotalDeposits decimal.Decimal `json:"total_deposits"`
}

func totalsOf(s Summary) PeriodTotals {
	return PeriodTotals{
		Revenue:       s.Revenue,
		Cost:          s.Cost,
		GrossProfit:   s.GrossProfit,
		NetProfit:     s.NetProfit,
		TotalExpense:  s.TotalExpense,
		TotalDeposits: s.TotalDeposits,
	}
}

// Delta is the change of one metric between two periods. When the previous
// value is zero there is no meaningful percentage and NewData is set instead.
type Delta struct {
	Percent   *decimal.Decimal `json:"percent,omitempty"`
	NewData   bool             `json:"new_data"`
	Direction string           `json:"direction"`
}

type Comparison struct {
	PreviousLabel string           `json:"previous_label"`
	CurrentLabel  string           `json:"current_label"`
	Previous      PeriodTotals     `json:"previous"`
	Current       PeriodTotals     `json:"current"`
	Deltas        map[string]Delta `json:"deltas"`
}

var hundred = decimal.NewFromInt(100)

func PercentDelta(previous, current decimal.Decimal) Delta {
	d := Delta{Direction: direction(previous, current)}
	if previous.IsZero() {
		d.NewData = true
		return d
	}
	pct := current.Sub(previous).Abs().Div(previous.Abs()).Mul(hundred).Round(2)
	d.Percent = &pct
	return d
}

func direction(previous, current decimal.Decimal) string {
	switch current.Cmp(previous) {
	case 1:
		return DirectionUp
	case -1:
		return DirectionDown
	default:
		return DirectionFlat
	}
}

// Compare aggregates the previous full calendar month and the current
// month-to-date independently and reports their deltas.
func Compare(ctx context.Context, now time.Time, in Input) (Comparison, error) {
	current, err := ResolveWindow(Period{Selector: SelectorMonth}, now)
	if err != nil {
		return Comparison{}, err
	}
	previous := previousMonth(now)

	var prevResult, currResult Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := Aggregate(gctx, previous, Input{Sales: in.Sales, Expenses: in.Expenses, Wallets: in.Wallets})
		prevResult = res
		return err
	})
	g.Go(func() error {
		res, err := Aggregate(gctx, current, Input{Sales: in.Sales, Expenses: in.Expenses, Wallets: in.Wallets})
		currResult = res
		return err
	})
	if err := g.Wait(); err != nil {
		return Comparison{}, err
	}

	return compareTotals(previous.Label, current.Label, totalsOf(prevResult.Summary), totalsOf(currResult.Summary)), nil
}

func compareTotals(prevLabel, currLabel string, prev, curr PeriodTotals) Comparison {
	return Comparison{
		PreviousLabel: prevLabel,
		CurrentLabel:  currLabel,
		Previous:      prev,
		Current:       curr,
		Deltas: map[string]Delta{
			"revenue":        PercentDelta(prev.Revenue, curr.Revenue),
			"cost":           PercentDelta(prev.Cost, curr.Cost),
			"gross_profit":   PercentDelta(prev.GrossProfit, curr.GrossProfit),
			"net_profit":     PercentDelta(prev.NetProfit, curr.NetProfit),
			"total_expense":  PercentDelta(prev.TotalExpense, curr.TotalExpense),
			"total_deposits": PercentDelta(prev.TotalDeposits, curr.TotalDeposits),
		},
	}
}
