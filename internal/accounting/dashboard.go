package accounting

import (
	"context"
	"time"
)

type Dashboard struct {
	Window     Window      `json:"window"`
	Summary    Summary     `json:"summary"`
	Excluded   int         `json:"excluded"`
	Rankings   Rankings    `json:"rankings"`
	Comparison *Comparison `json:"comparison,omitempty"`
}

// BuildDashboard resolves the period against now and runs the aggregation,
// the rankings and, for the month period only, the month comparison.
func BuildDashboard(ctx context.Context, period Period, now time.Time, in Input) (Dashboard, error) {
	window, err := ResolveWindow(period, now)
	if err != nil {
		return Dashboard{}, err
	}

	result, err := Aggregate(ctx, window, in)
	if err != nil {
		return Dashboard{}, err
	}

	dash := Dashboard{
		Window:   result.Window,
		Summary:  result.Summary,
		Excluded: result.Excluded,
		Rankings: Rank(result.Products, DefaultRankingLimit),
	}

	if window.Selector == SelectorMonth {
		cmp, err := Compare(ctx, now, Input{Sales: in.Sales, Expenses: in.Expenses, Wallets: in.Wallets})
		if err != nil {
			return Dashboard{}, err
		}
		dash.Comparison = &cmp
	}
	return dash, nil
}

// SnapshotBounds is the span of events BuildDashboard reads for period. For
// the month period it reaches back to the start of the previous month so
// the comparison has its data.
func SnapshotBounds(period Period, now time.Time) (Window, error) {
	window, err := ResolveWindow(period, now)
	if err != nil {
		return Window{}, err
	}
	if window.Selector == SelectorMonth {
		window.Start = previousMonth(now).Start
	}
	return window, nil
}
