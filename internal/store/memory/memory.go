package memory

import (
	"context"
	"encoding/json"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"canteenpos/backend/internal/domain"
	"canteenpos/backend/internal/logging"
	"canteenpos/backend/internal/store"
	"canteenpos/backend/internal/xid"
)

// DefaultTenantID is the canteen the seeded demo data belongs to.
const DefaultTenantID = "main-canteen"

type Store struct {
	mu              sync.RWMutex
	sales           []domain.SaleEvent
	expenses        []domain.ExpenseEvent
	wallets         map[string]map[string]domain.WalletSnapshot
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		sales:           make([]domain.SaleEvent, 0, 64),
		expenses:        make([]domain.ExpenseEvent, 0, 16),
		wallets:         make(map[string]map[string]domain.WalletSnapshot),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD,
// falling back to dev defaults with a warning.
func seedUsers(tenantID string) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logging.L().WithField("module", "memory-store").Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logging.L().WithField("module", "memory-store").Fatalf("failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			TenantID:  tenantID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store holding a small demo canteen: two wallets, a few
// register sales over the last days, one delivered mobile order and two
// expenses.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers(DefaultTenantID)

	now := time.Now()
	today := civil.DateOf(now)
	at := func(daysAgo int, hour int) time.Time {
		return today.AddDays(-daysAgo).In(now.Location()).Add(time.Duration(hour) * time.Hour).UTC()
	}
	payload := func(v any) json.RawMessage {
		raw, _ := json.Marshal(v)
		return raw
	}

	s.wallets[DefaultTenantID] = map[string]domain.WalletSnapshot{
		"st-001": {TenantID: DefaultTenantID, OwnerID: "st-001", OwnerName: "Ayşe Demir", OwnerKind: domain.OwnerKindStudent, Balance: decimal.RequireFromString("42.50"), UpdatedAt: now.UTC()},
		"sf-001": {TenantID: DefaultTenantID, OwnerID: "sf-001", OwnerName: "Mehmet Kaya", OwnerKind: domain.OwnerKindStaff, Balance: decimal.RequireFromString("120.00"), UpdatedAt: now.UTC()},
	}

	s.sales = append(s.sales,
		domain.SaleEvent{
			ID: xid.New("sale"), TenantID: DefaultTenantID, Kind: domain.SaleKindDeposit,
			Amount: decimal.NewFromInt(100), CreatedAt: at(3, 8), RegisterID: "reg-1", OwnerID: "st-001",
		},
		domain.SaleEvent{
			ID: xid.New("sale"), TenantID: DefaultTenantID, Kind: domain.SaleKindPurchase,
			Amount: decimal.NewFromInt(-30), CreatedAt: at(2, 10), RegisterID: "reg-1", OwnerID: "st-001",
			ItemsPayload: payload(map[string]any{"source": "pos", "items": []map[string]any{
				{"name": "Tost", "quantity": 2, "buying_price": "5", "selling_price": "15"},
			}}),
		},
		domain.SaleEvent{
			ID: xid.New("sale"), TenantID: DefaultTenantID, Kind: domain.SaleKindPurchase,
			Amount: decimal.RequireFromString("-12.50"), CreatedAt: at(1, 12), RegisterID: "reg-2",
			ItemsPayload: payload([]map[string]any{
				{"name": "Simit", "quantity": 3, "buying_price": "1.50", "selling_price": "2.50"},
				{"name": "Ayran", "quantity": 1, "buying_price": "2", "selling_price": "5"},
			}),
		},
		domain.SaleEvent{
			ID: xid.New("sale"), TenantID: DefaultTenantID, Kind: domain.SaleKindPurchase,
			Amount: decimal.NewFromInt(-45), CreatedAt: at(1, 13), OrderID: "order-1001", OwnerID: "sf-001",
			ItemsPayload: payload(map[string]any{"source": "mobile_order", "note": "mobile order delivered", "items": []map[string]any{
				{"name": "Tost", "quantity": 3, "buying_price": "5", "selling_price": "15"},
			}}),
		},
	)

	s.expenses = append(s.expenses,
		domain.ExpenseEvent{ID: xid.New("exp"), TenantID: DefaultTenantID, Amount: decimal.NewFromInt(40), Date: today.AddDays(-2), Category: "supplies", Note: "bread delivery"},
		domain.ExpenseEvent{ID: xid.New("exp"), TenantID: DefaultTenantID, Amount: decimal.NewFromInt(15), Date: today, Category: "utilities"},
	)
	return s
}

func (s *Store) CreateSaleEvent(_ context.Context, event domain.SaleEvent) (*domain.SaleEvent, error) {
	if event.ID == "" || event.TenantID == "" || event.CreatedAt.IsZero() {
		return nil, store.ErrInvalidInput
	}
	if event.Kind != domain.SaleKindPurchase && event.Kind != domain.SaleKindDeposit {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sales {
		if existing.ID == event.ID {
			return nil, store.ErrConflict
		}
	}
	event = cloneSale(event)
	s.sales = append(s.sales, event)
	created := cloneSale(event)
	return &created, nil
}

func (s *Store) FindSaleEvent(_ context.Context, tenantID string, id string) (*domain.SaleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, event := range s.sales {
		if event.TenantID == tenantID && event.ID == id {
			found := cloneSale(event)
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

// ListSaleEvents returns the tenant's events with from <= created_at <= to,
// oldest first. When limit cuts the result the newest events are kept.
func (s *Store) ListSaleEvents(_ context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.SaleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SaleEvent, 0)
	for _, event := range s.sales {
		if event.TenantID != tenantID || event.CreatedAt.Before(from) || event.CreatedAt.After(to) {
			continue
		}
		out = append(out, cloneSale(event))
	}
	slices.SortStableFunc(out, func(a, b domain.SaleEvent) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.ExpenseEvent) (*domain.ExpenseEvent, error) {
	if expense.ID == "" || expense.TenantID == "" || !expense.Date.IsValid() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.expenses {
		if existing.ID == expense.ID {
			return nil, store.ErrConflict
		}
	}
	s.expenses = append(s.expenses, expense)
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(_ context.Context, tenantID string, from civil.Date, to civil.Date, limit int) ([]domain.ExpenseEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ExpenseEvent, 0)
	for _, expense := range s.expenses {
		if expense.TenantID != tenantID || expense.Date.Before(from) || expense.Date.After(to) {
			continue
		}
		out = append(out, expense)
	}
	slices.SortStableFunc(out, func(a, b domain.ExpenseEvent) int {
		switch {
		case a.Date.Before(b.Date):
			return -1
		case a.Date.After(b.Date):
			return 1
		}
		return 0
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Store) ListWallets(_ context.Context, tenantID string) ([]domain.WalletSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wallets := make([]domain.WalletSnapshot, 0, len(s.wallets[tenantID]))
	for _, wallet := range s.wallets[tenantID] {
		wallets = append(wallets, wallet)
	}
	slices.SortFunc(wallets, func(a, b domain.WalletSnapshot) int {
		return strings.Compare(a.OwnerID, b.OwnerID)
	})
	return wallets, nil
}

func (s *Store) GetWallet(_ context.Context, tenantID string, ownerID string) (*domain.WalletSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wallet, ok := s.wallets[tenantID][ownerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &wallet, nil
}

func (s *Store) UpsertWallet(_ context.Context, wallet domain.WalletSnapshot) (*domain.WalletSnapshot, error) {
	if wallet.TenantID == "" || wallet.OwnerID == "" {
		return nil, store.ErrInvalidInput
	}
	if wallet.OwnerKind != domain.OwnerKindStudent && wallet.OwnerKind != domain.OwnerKindStaff {
		return nil, store.ErrInvalidInput
	}
	if wallet.UpdatedAt.IsZero() {
		wallet.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.wallets[wallet.TenantID] == nil {
		s.wallets[wallet.TenantID] = make(map[string]domain.WalletSnapshot)
	}
	s.wallets[wallet.TenantID][wallet.OwnerID] = wallet
	saved := wallet
	return &saved, nil
}

// RecordWalletEvent stores the event and adds its amount to the owner's
// wallet under one lock. Balances may go negative; credit limits are not
// enforced here.
func (s *Store) RecordWalletEvent(_ context.Context, event domain.SaleEvent) (*domain.SaleEvent, *domain.WalletSnapshot, error) {
	if event.ID == "" || event.TenantID == "" || event.OwnerID == "" || event.CreatedAt.IsZero() {
		return nil, nil, store.ErrInvalidInput
	}
	if event.Kind != domain.SaleKindPurchase && event.Kind != domain.SaleKindDeposit {
		return nil, nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wallet, ok := s.wallets[event.TenantID][event.OwnerID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	for _, existing := range s.sales {
		if existing.ID == event.ID {
			return nil, nil, store.ErrConflict
		}
	}

	event = cloneSale(event)
	s.sales = append(s.sales, event)
	wallet.Balance = wallet.Balance.Add(event.Amount)
	wallet.UpdatedAt = event.CreatedAt.UTC()
	s.wallets[event.TenantID][event.OwnerID] = wallet

	created := cloneSale(event)
	saved := wallet
	return &created, &saved, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneSale(src domain.SaleEvent) domain.SaleEvent {
	dup := src
	if src.ItemsPayload != nil {
		dup.ItemsPayload = append(json.RawMessage(nil), src.ItemsPayload...)
	}
	return dup
}
