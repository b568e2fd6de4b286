package accounting

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"canteenpos/backend/internal/domain"
)

// cancelCheckInterval is how many records are folded between context checks.
const cancelCheckInterval = 256

type Input struct {
	Sales    []domain.SaleEvent
	Expenses []domain.ExpenseEvent
	Wallets  []domain.WalletSnapshot
	// Reporter, when set, receives data-quality issues found while folding.
	// It never changes the computed figures.
	Reporter Reporter
}

const (
	IssueExcluded        = "excluded_sale"
	IssueDefaultedField  = "defaulted_field"
	IssueUnknownKind     = "unknown_kind"
	IssueNonPositiveCost = "non_positive_expense"
)

type Issue struct {
	Code    string `json:"code"`
	EventID string `json:"event_id"`
	Detail  string `json:"detail"`
}

type Reporter interface {
	Report(issue Issue)
}

type ReporterFunc func(issue Issue)

func (f ReporterFunc) Report(issue Issue) { f(issue) }

// DailyProfitPoint is one day's purchase income minus line-item cost, less
// that day's expenses. Deposits are excluded, so the points sum to NetProfit.
type DailyProfitPoint struct {
	Date   civil.Date      `json:"date"`
	Profit decimal.Decimal `json:"profit"`
}

type Summary struct {
	Revenue            decimal.Decimal    `json:"revenue"`
	Cost               decimal.Decimal    `json:"cost"`
	GrossProfit        decimal.Decimal    `json:"gross_profit"`
	NetProfit          decimal.Decimal    `json:"net_profit"`
	TotalExpense       decimal.Decimal    `json:"total_expense"`
	TotalDeposits      decimal.Decimal    `json:"total_deposits"`
	TotalWalletBalance decimal.Decimal    `json:"total_wallet_balance"`
	CashFlow           decimal.Decimal    `json:"cash_flow"`
	SaleCount          int                `json:"sale_count"`
	DailyProfit        []DailyProfitPoint `json:"daily_profit"`
}

// ProductTotals accumulates one product across the eligible sales of a
// window. Seq is the order in which the product was first seen.
type ProductTotals struct {
	Name     string
	Quantity int64
	Profit   decimal.Decimal
	Seq      int
}

// Result is one aggregation run. Excluded counts the in-window sales the
// classifier rejected; it is kept out of Summary so excluded events stay inert.
type Result struct {
	Window   Window          `json:"window"`
	Summary  Summary         `json:"summary"`
	Excluded int             `json:"excluded"`
	Products []ProductTotals `json:"-"`
}

type accumulator struct {
	revenue  decimal.Decimal
	cost     decimal.Decimal
	deposits decimal.Decimal
	expense  decimal.Decimal
	wallets  decimal.Decimal
	sales    int
	excluded int
	products map[string]*ProductTotals
	order    []string
	daily    map[civil.Date]decimal.Decimal
	reporter Reporter
}

func newAccumulator(reporter Reporter) *accumulator {
	return &accumulator{
		products: make(map[string]*ProductTotals),
		daily:    make(map[civil.Date]decimal.Decimal),
		reporter: reporter,
	}
}

func (a *accumulator) report(issue Issue) {
	if a.reporter != nil {
		a.reporter.Report(issue)
	}
}

// Aggregate folds the snapshot into a summary for window. Inputs are read
// only. On cancellation the partial totals are discarded.
func Aggregate(ctx context.Context, window Window, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	acc := newAccumulator(in.Reporter)
	loc := window.Start.Location()

	for i, event := range in.Sales {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}
		if !window.Contains(event.CreatedAt) {
			continue
		}
		acc.addSale(event, loc)
	}

	for i, expense := range in.Expenses {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}
		if !window.ContainsDate(expense.Date) {
			continue
		}
		acc.addExpense(expense)
	}

	for _, wallet := range in.Wallets {
		acc.wallets = acc.wallets.Add(wallet.Balance)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return acc.result(window), nil
}

func (a *accumulator) addSale(event domain.SaleEvent, loc *time.Location) {
	verdict := ClassifyWithReason(event)
	if verdict.Class == Excluded {
		a.excluded++
		a.report(Issue{Code: IssueExcluded, EventID: event.ID, Detail: verdict.Reason})
		return
	}

	var income decimal.Decimal
	switch event.Kind {
	case domain.SaleKindPurchase:
		income = event.Amount.Abs()
		a.revenue = a.revenue.Add(income)
	case domain.SaleKindDeposit:
		a.deposits = a.deposits.Add(event.Amount)
	default:
		a.report(Issue{Code: IssueUnknownKind, EventID: event.ID, Detail: event.Kind})
		return
	}
	a.sales++

	items, defaulted := extractLineItems(event.ItemsPayload)
	for _, field := range defaulted {
		a.report(Issue{Code: IssueDefaultedField, EventID: event.ID, Detail: field})
	}

	saleCost := decimal.Zero
	for _, item := range items {
		saleCost = saleCost.Add(item.Cost())
		if item.Name == "" {
			continue
		}
		totals, ok := a.products[item.Name]
		if !ok {
			totals = &ProductTotals{Name: item.Name, Seq: len(a.order)}
			a.products[item.Name] = totals
			a.order = append(a.order, item.Name)
		}
		totals.Quantity += int64(item.Quantity)
		totals.Profit = totals.Profit.Add(item.Profit())
	}
	a.cost = a.cost.Add(saleCost)

	day := civil.DateOf(event.CreatedAt.In(loc))
	a.daily[day] = a.daily[day].Add(income.Sub(saleCost))
}

func (a *accumulator) addExpense(expense domain.ExpenseEvent) {
	if !expense.Amount.IsPositive() {
		a.report(Issue{Code: IssueNonPositiveCost, EventID: expense.ID, Detail: expense.Amount.String()})
	}
	a.expense = a.expense.Add(expense.Amount)
	a.daily[expense.Date] = a.daily[expense.Date].Sub(expense.Amount)
}

func (a *accumulator) result(window Window) Result {
	gross := a.revenue.Sub(a.cost)
	summary := Summary{
		Revenue:            a.revenue,
		Cost:               a.cost,
		GrossProfit:        gross,
		NetProfit:          gross.Sub(a.expense),
		TotalExpense:       a.expense,
		TotalDeposits:      a.deposits,
		TotalWalletBalance: a.wallets,
		CashFlow:           a.revenue.Add(a.deposits).Sub(a.expense),
		SaleCount:          a.sales,
		DailyProfit:        make([]DailyProfitPoint, 0, len(a.daily)),
	}

	for day, profit := range a.daily {
		summary.DailyProfit = append(summary.DailyProfit, DailyProfitPoint{Date: day, Profit: profit})
	}
	sort.Slice(summary.DailyProfit, func(i, j int) bool {
		return summary.DailyProfit[i].Date.Before(summary.DailyProfit[j].Date)
	})

	products := make([]ProductTotals, 0, len(a.order))
	for _, name := range a.order {
		products = append(products, *a.products[name])
	}

	return Result{Window: window, Summary: summary, Excluded: a.excluded, Products: products}
}
