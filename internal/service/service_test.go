package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"canteenpos/backend/internal/accounting"
	"canteenpos/backend/internal/domain"
	"canteenpos/backend/internal/logging"
	"canteenpos/backend/internal/store"
	"canteenpos/backend/internal/store/memory"
)

const testTenant = "school-1"

var fixedNow = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memory.Store, *bytes.Buffer) {
	t.Helper()
	repo := memory.New()
	_, err := repo.UpsertWallet(context.Background(), domain.WalletSnapshot{
		TenantID:  testTenant,
		OwnerID:   "st-1",
		OwnerKind: domain.OwnerKindStudent,
		Balance:   decimal.NewFromInt(50),
	})
	if err != nil {
		t.Fatalf("seed wallet: %v", err)
	}

	var logs bytes.Buffer
	clock := fixedNow
	svc := New(repo, Options{
		DefaultTenantID: testTenant,
		Location:        time.UTC,
		Logger:          logging.New("debug", &logs),
		Now:             func() time.Time { return clock },
	})
	return svc, repo, &logs
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: domain.RoleCashier, TenantID: testTenant})
}

func line(name string, qty int, cost string, price string) domain.SaleLine {
	return domain.SaleLine{Name: name, Quantity: qty, UnitCost: decimal.RequireFromString(cost), UnitPrice: decimal.RequireFromString(price)}
}

func TestRecordSaleDebitsWalletAndIsReported(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := cashierCtx()

	resp, err := svc.RecordSale(ctx, domain.SaleRequest{
		RegisterID: "reg-1",
		OwnerID:    "st-1",
		Items:      []domain.SaleLine{line("Tost", 2, "5", "15")},
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if !resp.Sale.Amount.Equal(decimal.NewFromInt(-30)) {
		t.Fatalf("expected amount -30, got %s", resp.Sale.Amount)
	}
	if resp.Wallet == nil || !resp.Wallet.Balance.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected wallet balance 20, got %+v", resp.Wallet)
	}
	if accounting.Classify(resp.Sale) != accounting.Eligible {
		t.Fatalf("expected register sale to be eligible")
	}

	dash, err := svc.Dashboard(ctx, "", "today", "", "")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if !dash.Summary.Revenue.Equal(decimal.NewFromInt(30)) || !dash.Summary.Cost.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected summary %+v", dash.Summary)
	}
	if len(dash.Rankings.ByProfit) != 1 || dash.Rankings.ByProfit[0].Value.StringFixed(2) != "20.00" {
		t.Fatalf("unexpected profit ranking %+v", dash.Rankings.ByProfit)
	}
	if !dash.Summary.TotalWalletBalance.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected wallet total 20, got %s", dash.Summary.TotalWalletBalance)
	}
}

func TestRecordSaleValidatesInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := cashierCtx()

	cases := []domain.SaleRequest{
		{Items: []domain.SaleLine{line("Tost", 1, "5", "15")}},
		{RegisterID: "reg-1"},
		{RegisterID: "reg-1", Items: []domain.SaleLine{line("", 1, "5", "15")}},
		{RegisterID: "reg-1", Items: []domain.SaleLine{line("Tost", 0, "5", "15")}},
		{RegisterID: "reg-1", Items: []domain.SaleLine{line("Tost", 1, "-5", "15")}},
	}
	for i, req := range cases {
		if _, err := svc.RecordSale(ctx, req); !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("case %d: expected invalid input, got %v", i, err)
		}
	}

	_, err := svc.RecordSale(ctx, domain.SaleRequest{RegisterID: "reg-1", OwnerID: "ghost", Items: []domain.SaleLine{line("Tost", 1, "5", "15")}})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected unknown wallet to be rejected, got %v", err)
	}
}

func TestDeliveredMobileOrderStaysOutOfReports(t *testing.T) {
	svc, repo, logs := newTestService(t)
	ctx := cashierCtx()

	resp, err := svc.MarkOrderDelivered(ctx, domain.DeliveryRequest{
		OrderID: "order-77",
		OwnerID: "st-1",
		Items:   []domain.SaleLine{line("Tost", 3, "5", "15")},
	})
	if err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if resp.Sale.RegisterID != "" || !resp.Sale.Amount.Equal(decimal.NewFromInt(-45)) {
		t.Fatalf("unexpected delivery event %+v", resp.Sale)
	}
	wallet, _ := repo.GetWallet(context.Background(), testTenant, "st-1")
	if !wallet.Balance.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("delivery must not touch the wallet, got %s", wallet.Balance)
	}

	dash, err := svc.Dashboard(ctx, "", "today", "", "")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if !dash.Summary.Revenue.IsZero() || dash.Excluded != 1 || len(dash.Rankings.ByQuantity) != 0 {
		t.Fatalf("expected delivery to be excluded, got %+v excluded=%d", dash.Summary, dash.Excluded)
	}
	if !strings.Contains(logs.String(), "report data issue") {
		t.Fatalf("expected excluded event to be logged, got %q", logs.String())
	}
}

func TestRecordDepositCreditsWallet(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := cashierCtx()

	resp, err := svc.RecordDeposit(ctx, domain.DepositRequest{RegisterID: "reg-1", OwnerID: "st-1", Amount: decimal.NewFromInt(100)})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !resp.Wallet.Balance.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected 150, got %s", resp.Wallet.Balance)
	}
	if _, err := svc.RecordDeposit(ctx, domain.DepositRequest{RegisterID: "reg-1", OwnerID: "st-1", Amount: decimal.NewFromInt(-1)}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected negative deposit to be rejected, got %v", err)
	}

	dash, err := svc.Dashboard(ctx, "", "week", "", "")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if !dash.Summary.TotalDeposits.Equal(decimal.NewFromInt(100)) || !dash.Summary.Revenue.IsZero() {
		t.Fatalf("unexpected summary %+v", dash.Summary)
	}
}

func TestRecordExpenseDefaultsToToday(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := cashierCtx()

	resp, err := svc.RecordExpense(ctx, domain.ExpenseRequest{Amount: decimal.NewFromInt(25)})
	if err != nil {
		t.Fatalf("expense: %v", err)
	}
	if resp.Expense.Date.String() != "2024-03-15" || resp.Expense.Category != "general" {
		t.Fatalf("unexpected expense %+v", resp.Expense)
	}
	if _, err := svc.RecordExpense(ctx, domain.ExpenseRequest{Amount: decimal.NewFromInt(5), Date: "15/03/2024"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected bad date to be rejected, got %v", err)
	}
	if _, err := svc.RecordExpense(ctx, domain.ExpenseRequest{Amount: decimal.NewFromInt(30), Date: "2024-03-01"}); err != nil {
		t.Fatalf("dated expense: %v", err)
	}

	dash, err := svc.Dashboard(ctx, "", "custom", "2024-03-01", "2024-03-15")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if !dash.Summary.TotalExpense.Equal(decimal.NewFromInt(55)) || !dash.Summary.NetProfit.Equal(decimal.NewFromInt(-55)) {
		t.Fatalf("unexpected summary %+v", dash.Summary)
	}
}

func TestDashboardMonthIncludesComparison(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := cashierCtx()

	_, err := repo.CreateSaleEvent(context.Background(), domain.SaleEvent{
		ID:         "feb-sale",
		TenantID:   testTenant,
		Amount:     decimal.NewFromInt(-200),
		Kind:       domain.SaleKindPurchase,
		CreatedAt:  time.Date(2024, time.February, 20, 9, 0, 0, 0, time.UTC),
		RegisterID: "reg-1",
	})
	if err != nil {
		t.Fatalf("seed february sale: %v", err)
	}
	if _, err := svc.RecordSale(ctx, domain.SaleRequest{RegisterID: "reg-1", Items: []domain.SaleLine{line("Tost", 20, "5", "15")}}); err != nil {
		t.Fatalf("record sale: %v", err)
	}

	dash, err := svc.Dashboard(ctx, "", "month", "", "")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dash.Comparison == nil {
		t.Fatalf("expected comparison for month period")
	}
	delta := dash.Comparison.Deltas["revenue"]
	if delta.Percent == nil || delta.Percent.String() != "50" || delta.Direction != accounting.DirectionUp {
		t.Fatalf("unexpected revenue delta %+v", delta)
	}
	if !dash.Summary.Revenue.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected month revenue 300, got %s", dash.Summary.Revenue)
	}
}

func TestDashboardRejectsBadPeriods(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := cashierCtx()

	if _, err := svc.Dashboard(ctx, "", "fortnight", "", ""); !errors.Is(err, accounting.ErrUnknownSelector) {
		t.Fatalf("expected unknown selector, got %v", err)
	}
	if _, err := svc.Dashboard(ctx, "", "custom", "2024-03-10", "2024-03-01"); !errors.Is(err, accounting.ErrInvalidRange) {
		t.Fatalf("expected invalid range, got %v", err)
	}
	if _, err := svc.Dashboard(ctx, "", "custom", "yesterday", "2024-03-01"); !errors.Is(err, accounting.ErrInvalidRange) {
		t.Fatalf("expected invalid range for unparsable date, got %v", err)
	}
}

func TestActorIsPinnedToTenant(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.ListWallets(cashierCtx(), "other-school"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cross-tenant read to be forbidden, got %v", err)
	}
	resp, err := svc.ListWallets(cashierCtx(), "")
	if err != nil {
		t.Fatalf("list wallets: %v", err)
	}
	if len(resp.Wallets) != 1 || !resp.TotalBalance.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected wallets %+v", resp)
	}
}

func TestDashboardWarnsWhenSnapshotIsTruncated(t *testing.T) {
	repo := memory.New()
	var logs bytes.Buffer
	svc := New(repo, Options{
		DefaultTenantID: testTenant,
		MaxEvents:       1,
		Location:        time.UTC,
		Logger:          logging.New("info", &logs),
		Now:             func() time.Time { return fixedNow },
	})
	for i := 0; i < 2; i++ {
		if _, err := svc.RecordSale(context.Background(), domain.SaleRequest{RegisterID: "reg-1", Items: []domain.SaleLine{line("Su", 1, "0.5", "1")}}); err != nil {
			t.Fatalf("record sale: %v", err)
		}
	}

	if _, err := svc.Dashboard(context.Background(), "", "today", "", ""); err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if !strings.Contains(logs.String(), "report snapshot truncated") {
		t.Fatalf("expected truncation warning, got %q", logs.String())
	}
}

func TestDashboardKeepsNewestEventsWhenTruncated(t *testing.T) {
	repo := memory.New()
	svc := New(repo, Options{
		DefaultTenantID: testTenant,
		MaxEvents:       3,
		Location:        time.UTC,
		Logger:          logging.New("info", &bytes.Buffer{}),
		Now:             func() time.Time { return fixedNow },
	})

	sales := []struct {
		id string
		at time.Time
	}{
		{"feb-1", time.Date(2024, time.February, 5, 9, 0, 0, 0, time.UTC)},
		{"feb-2", time.Date(2024, time.February, 12, 9, 0, 0, 0, time.UTC)},
		{"feb-3", time.Date(2024, time.February, 19, 9, 0, 0, 0, time.UTC)},
		{"mar-1", time.Date(2024, time.March, 15, 8, 0, 0, 0, time.UTC)},
		{"mar-2", time.Date(2024, time.March, 15, 9, 0, 0, 0, time.UTC)},
	}
	for _, sale := range sales {
		_, err := repo.CreateSaleEvent(context.Background(), domain.SaleEvent{
			ID:         sale.id,
			TenantID:   testTenant,
			Amount:     decimal.NewFromInt(-10),
			Kind:       domain.SaleKindPurchase,
			CreatedAt:  sale.at,
			RegisterID: "reg-1",
		})
		if err != nil {
			t.Fatalf("seed %s: %v", sale.id, err)
		}
	}

	dash, err := svc.Dashboard(context.Background(), "", "month", "", "")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if !dash.Summary.Revenue.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected current month revenue 20, got %s", dash.Summary.Revenue)
	}
	if dash.Comparison == nil || !dash.Comparison.Previous.Revenue.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected only the newest february sale to survive the cut, got %+v", dash.Comparison)
	}
}

// walletFailingRepo accepts plain sale events but fails every wallet write.
type walletFailingRepo struct {
	*memory.Store
}

func (walletFailingRepo) RecordWalletEvent(context.Context, domain.SaleEvent) (*domain.SaleEvent, *domain.WalletSnapshot, error) {
	return nil, nil, errors.New("could not serialize access due to concurrent update")
}

func TestFailedWalletWriteLeavesNoEventBehind(t *testing.T) {
	_, repo, _ := newTestService(t)
	svc := New(walletFailingRepo{repo}, Options{
		DefaultTenantID: testTenant,
		Location:        time.UTC,
		Logger:          logging.New("info", &bytes.Buffer{}),
		Now:             func() time.Time { return fixedNow },
	})
	ctx := cashierCtx()

	if _, err := svc.RecordSale(ctx, domain.SaleRequest{RegisterID: "reg-1", OwnerID: "st-1", Items: []domain.SaleLine{line("Tost", 1, "5", "15")}}); err == nil {
		t.Fatalf("expected sale to fail when the wallet cannot be debited")
	}
	if _, err := svc.RecordDeposit(ctx, domain.DepositRequest{RegisterID: "reg-1", OwnerID: "st-1", Amount: decimal.NewFromInt(20)}); err == nil {
		t.Fatalf("expected deposit to fail when the wallet cannot be credited")
	}

	events, err := repo.ListSaleEvents(context.Background(), testTenant, fixedNow.Add(-time.Hour), fixedNow.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no stored events after failed wallet writes, got %d", len(events))
	}
	wallet, err := repo.GetWallet(context.Background(), testTenant, "st-1")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if !wallet.Balance.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected untouched balance 50, got %s", wallet.Balance)
	}
}

func TestSaleForUnknownWalletIsNotRecorded(t *testing.T) {
	svc, repo, _ := newTestService(t)

	_, err := svc.RecordSale(cashierCtx(), domain.SaleRequest{RegisterID: "reg-1", OwnerID: "st-404", Items: []domain.SaleLine{line("Tost", 1, "5", "15")}})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	events, _ := repo.ListSaleEvents(context.Background(), testTenant, fixedNow.Add(-time.Hour), fixedNow.Add(time.Hour), 0)
	if len(events) != 0 {
		t.Fatalf("expected no stored events, got %d", len(events))
	}
}
