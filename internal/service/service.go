package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"canteenpos/backend/internal/accounting"
	"canteenpos/backend/internal/domain"
	"canteenpos/backend/internal/logging"
	"canteenpos/backend/internal/store"
	"canteenpos/backend/internal/xid"
)

// ErrForbidden is returned when an actor reaches for another tenant's data.
var ErrForbidden = errors.New("forbidden")

const defaultMaxEvents = 50000

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DefaultTenantID string
	// MaxEvents bounds how many sale and expense rows one report reads.
	MaxEvents int
	Location  *time.Location
	Logger    *logrus.Logger
	Now       func() time.Time
}

type Service struct {
	repo            store.Repository
	defaultTenantID string
	maxEvents       int
	loc             *time.Location
	log             *logrus.Logger
	now             func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.DefaultTenantID == "" {
		opts.DefaultTenantID = "main-canteen"
	}
	if opts.MaxEvents < 1 {
		opts.MaxEvents = defaultMaxEvents
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = logging.L()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:            repo,
		defaultTenantID: opts.DefaultTenantID,
		maxEvents:       opts.MaxEvents,
		loc:             opts.Location,
		log:             opts.Logger,
		now:             opts.Now,
	}
}

// resolveTenant picks the tenant a call operates on. Authenticated actors
// are pinned to their own tenant.
func (s *Service) resolveTenant(ctx context.Context, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	actor, ok := ActorFromContext(ctx)
	if ok && actor.TenantID != "" {
		if requested != "" && requested != actor.TenantID {
			return "", fmt.Errorf("%w: tenant %s", ErrForbidden, requested)
		}
		return actor.TenantID, nil
	}
	if requested == "" {
		return s.defaultTenantID, nil
	}
	return requested, nil
}

// posPayload is the items payload written for register sales. The source
// marker lets the report engine recognise them even without a register.
type posPayload struct {
	Source string            `json:"source"`
	Note   string            `json:"note,omitempty"`
	Items  []domain.SaleLine `json:"items"`
}

type deliveryPayload struct {
	Source  string            `json:"source"`
	Note    string            `json:"note"`
	OrderID string            `json:"order_id"`
	Items   []domain.SaleLine `json:"items"`
}

// RecordSale stores a register sale and debits the owner's wallet when one
// is named. The stored amount is negative. Event and debit are written
// together so a failed debit never leaves a recorded sale behind.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	tenantID, err := s.resolveTenant(ctx, req.TenantID)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	req.RegisterID = strings.TrimSpace(req.RegisterID)
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	if req.RegisterID == "" {
		return domain.SaleResponse{}, fmt.Errorf("%w: register_id is required", store.ErrInvalidInput)
	}

	items, total, err := normalizeLines(req.Items)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if len(items) == 0 {
		return domain.SaleResponse{}, fmt.Errorf("%w: at least one item is required", store.ErrInvalidInput)
	}

	payload, err := json.Marshal(posPayload{Source: accounting.SourcePOS, Note: strings.TrimSpace(req.Note), Items: items})
	if err != nil {
		return domain.SaleResponse{}, err
	}

	event := domain.SaleEvent{
		ID:           xid.New("sale"),
		TenantID:     tenantID,
		Amount:       total.Neg(),
		Kind:         domain.SaleKindPurchase,
		CreatedAt:    s.now().UTC(),
		ItemsPayload: payload,
		RegisterID:   req.RegisterID,
		OwnerID:      req.OwnerID,
	}
	if req.OwnerID == "" {
		created, err := s.repo.CreateSaleEvent(ctx, event)
		if err != nil {
			return domain.SaleResponse{}, err
		}
		return domain.SaleResponse{Sale: *created}, nil
	}

	created, wallet, err := s.repo.RecordWalletEvent(ctx, event)
	if err != nil {
		logging.LogError(s.log, "service", "RecordSale", "debit wallet", map[string]string{"sale_id": event.ID, "owner_id": req.OwnerID}, err)
		return domain.SaleResponse{}, fmt.Errorf("debit wallet %s: %w", req.OwnerID, err)
	}
	return domain.SaleResponse{Sale: *created, Wallet: wallet}, nil
}

// RecordDeposit tops up a wallet at a register.
func (s *Service) RecordDeposit(ctx context.Context, req domain.DepositRequest) (domain.SaleResponse, error) {
	tenantID, err := s.resolveTenant(ctx, req.TenantID)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	req.RegisterID = strings.TrimSpace(req.RegisterID)
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	if req.RegisterID == "" || req.OwnerID == "" {
		return domain.SaleResponse{}, fmt.Errorf("%w: register_id and owner_id are required", store.ErrInvalidInput)
	}
	if !req.Amount.IsPositive() {
		return domain.SaleResponse{}, fmt.Errorf("%w: deposit amount must be positive", store.ErrInvalidInput)
	}

	payload, err := json.Marshal(posPayload{Source: accounting.SourcePOS, Items: []domain.SaleLine{}})
	if err != nil {
		return domain.SaleResponse{}, err
	}

	created, wallet, err := s.repo.RecordWalletEvent(ctx, domain.SaleEvent{
		ID:           xid.New("dep"),
		TenantID:     tenantID,
		Amount:       req.Amount.Round(2),
		Kind:         domain.SaleKindDeposit,
		CreatedAt:    s.now().UTC(),
		ItemsPayload: payload,
		RegisterID:   req.RegisterID,
		OwnerID:      req.OwnerID,
	})
	if err != nil {
		logging.LogError(s.log, "service", "RecordDeposit", "credit wallet", map[string]string{"owner_id": req.OwnerID}, err)
		return domain.SaleResponse{}, fmt.Errorf("credit wallet %s: %w", req.OwnerID, err)
	}
	return domain.SaleResponse{Sale: *created, Wallet: wallet}, nil
}

// MarkOrderDelivered records the fulfilment of a mobile pre-order. The
// order was paid when it was placed, so the wallet is left untouched and the
// event carries the mobile-order markers that keep it out of the reports.
func (s *Service) MarkOrderDelivered(ctx context.Context, req domain.DeliveryRequest) (domain.SaleResponse, error) {
	tenantID, err := s.resolveTenant(ctx, req.TenantID)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.OrderID == "" {
		return domain.SaleResponse{}, fmt.Errorf("%w: order_id is required", store.ErrInvalidInput)
	}
	if req.Amount.IsNegative() {
		return domain.SaleResponse{}, fmt.Errorf("%w: amount must not be negative", store.ErrInvalidInput)
	}

	items, total, err := normalizeLines(req.Items)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if !req.Amount.IsZero() {
		total = req.Amount.Round(2)
	}

	payload, err := json.Marshal(deliveryPayload{
		Source:  accounting.SourceMobileOrder,
		Note:    accounting.DeliveryConfirmationNote,
		OrderID: req.OrderID,
		Items:   items,
	})
	if err != nil {
		return domain.SaleResponse{}, err
	}

	created, err := s.repo.CreateSaleEvent(ctx, domain.SaleEvent{
		ID:           xid.New("sale"),
		TenantID:     tenantID,
		Amount:       total.Neg(),
		Kind:         domain.SaleKindPurchase,
		CreatedAt:    s.now().UTC(),
		ItemsPayload: payload,
		OrderID:      req.OrderID,
		OwnerID:      strings.TrimSpace(req.OwnerID),
	})
	if err != nil {
		return domain.SaleResponse{}, err
	}
	return domain.SaleResponse{Sale: *created}, nil
}

func (s *Service) RecordExpense(ctx context.Context, req domain.ExpenseRequest) (domain.ExpenseResponse, error) {
	tenantID, err := s.resolveTenant(ctx, req.TenantID)
	if err != nil {
		return domain.ExpenseResponse{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.ExpenseResponse{}, fmt.Errorf("%w: expense amount must be positive", store.ErrInvalidInput)
	}

	day := civil.DateOf(s.now().In(s.loc))
	if strings.TrimSpace(req.Date) != "" {
		parsed, err := civil.ParseDate(strings.TrimSpace(req.Date))
		if err != nil {
			return domain.ExpenseResponse{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
		}
		day = parsed
	}

	created, err := s.repo.CreateExpense(ctx, domain.ExpenseEvent{
		ID:       xid.New("exp"),
		TenantID: tenantID,
		Amount:   req.Amount.Round(2),
		Date:     day,
		Category: defaultString(strings.TrimSpace(req.Category), "general"),
		Note:     strings.TrimSpace(req.Note),
	})
	if err != nil {
		return domain.ExpenseResponse{}, err
	}
	return domain.ExpenseResponse{Expense: *created}, nil
}

func (s *Service) ListWallets(ctx context.Context, tenantID string) (domain.WalletListResponse, error) {
	tenantID, err := s.resolveTenant(ctx, tenantID)
	if err != nil {
		return domain.WalletListResponse{}, err
	}
	wallets, err := s.repo.ListWallets(ctx, tenantID)
	if err != nil {
		return domain.WalletListResponse{}, err
	}

	total := decimal.Zero
	for _, wallet := range wallets {
		total = total.Add(wallet.Balance)
	}
	return domain.WalletListResponse{Wallets: wallets, TotalBalance: total}, nil
}

// Dashboard loads a fresh snapshot for the period and reports on it. Results
// are never cached: every call reflects the events stored at call time.
func (s *Service) Dashboard(ctx context.Context, tenantID string, selector string, start string, end string) (accounting.Dashboard, error) {
	tenantID, err := s.resolveTenant(ctx, tenantID)
	if err != nil {
		return accounting.Dashboard{}, err
	}

	period, err := parsePeriod(selector, start, end)
	if err != nil {
		return accounting.Dashboard{}, err
	}

	now := s.now().In(s.loc)
	bounds, err := accounting.SnapshotBounds(period, now)
	if err != nil {
		return accounting.Dashboard{}, err
	}
	firstDay, lastDay := bounds.Days()

	sales, err := s.repo.ListSaleEvents(ctx, tenantID, bounds.Start, bounds.End, s.maxEvents)
	if err != nil {
		return accounting.Dashboard{}, fmt.Errorf("load sales: %w", err)
	}
	expenses, err := s.repo.ListExpenses(ctx, tenantID, firstDay, lastDay, s.maxEvents)
	if err != nil {
		return accounting.Dashboard{}, fmt.Errorf("load expenses: %w", err)
	}
	wallets, err := s.repo.ListWallets(ctx, tenantID)
	if err != nil {
		return accounting.Dashboard{}, fmt.Errorf("load wallets: %w", err)
	}

	fields := logrus.Fields{"module": "service", "tenant_id": tenantID, "period": string(period.Selector)}
	if len(sales) >= s.maxEvents || len(expenses) >= s.maxEvents {
		s.log.WithFields(fields).WithField("max_events", s.maxEvents).Warn("report snapshot truncated")
	}

	issues := 0
	reporter := accounting.ReporterFunc(func(issue accounting.Issue) {
		issues++
		s.log.WithFields(fields).WithFields(logrus.Fields{
			"code":     issue.Code,
			"event_id": issue.EventID,
			"detail":   issue.Detail,
		}).Debug("report data issue")
	})

	dash, err := accounting.BuildDashboard(ctx, period, now, accounting.Input{
		Sales:    sales,
		Expenses: expenses,
		Wallets:  wallets,
		Reporter: reporter,
	})
	if err != nil {
		return accounting.Dashboard{}, err
	}
	if issues > 0 {
		s.log.WithFields(fields).WithField("issues", issues).Info("report built with data issues")
	}
	return dash, nil
}

func parsePeriod(selector string, start string, end string) (accounting.Period, error) {
	sel, err := accounting.ParseSelector(selector)
	if err != nil {
		return accounting.Period{}, err
	}
	period := accounting.Period{Selector: sel}
	if sel != accounting.SelectorCustom {
		return period, nil
	}

	if period.Start, err = civil.ParseDate(strings.TrimSpace(start)); err != nil {
		return accounting.Period{}, fmt.Errorf("%w: start must be YYYY-MM-DD", accounting.ErrInvalidRange)
	}
	if period.End, err = civil.ParseDate(strings.TrimSpace(end)); err != nil {
		return accounting.Period{}, fmt.Errorf("%w: end must be YYYY-MM-DD", accounting.ErrInvalidRange)
	}
	return period, nil
}

// normalizeLines validates the lines and returns them with their total.
func normalizeLines(lines []domain.SaleLine) ([]domain.SaleLine, decimal.Decimal, error) {
	out := make([]domain.SaleLine, 0, len(lines))
	total := decimal.Zero
	for _, line := range lines {
		line.Name = strings.TrimSpace(line.Name)
		if line.Name == "" || line.Quantity < 1 {
			return nil, decimal.Zero, fmt.Errorf("%w: items need a name and a positive quantity", store.ErrInvalidInput)
		}
		if line.UnitCost.IsNegative() || line.UnitPrice.IsNegative() {
			return nil, decimal.Zero, fmt.Errorf("%w: item prices must not be negative", store.ErrInvalidInput)
		}
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
		out = append(out, line)
	}
	return out, total.Round(2), nil
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
