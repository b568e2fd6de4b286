package store

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"

	"canteenpos/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

// Repository is the snapshot source for reporting and the sink for the
// recording operations. List calls return events ordered by time ascending
// and never more than limit rows; a cut result keeps the newest rows.
type Repository interface {
	CreateSaleEvent(ctx context.Context, event domain.SaleEvent) (*domain.SaleEvent, error)
	FindSaleEvent(ctx context.Context, tenantID string, id string) (*domain.SaleEvent, error)
	ListSaleEvents(ctx context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.SaleEvent, error)

	CreateExpense(ctx context.Context, expense domain.ExpenseEvent) (*domain.ExpenseEvent, error)
	ListExpenses(ctx context.Context, tenantID string, from civil.Date, to civil.Date, limit int) ([]domain.ExpenseEvent, error)

	ListWallets(ctx context.Context, tenantID string) ([]domain.WalletSnapshot, error)
	GetWallet(ctx context.Context, tenantID string, ownerID string) (*domain.WalletSnapshot, error)
	UpsertWallet(ctx context.Context, wallet domain.WalletSnapshot) (*domain.WalletSnapshot, error)
	// RecordWalletEvent stores a sale or deposit and applies its amount to
	// the owner's wallet as one unit: either both happen or neither does.
	RecordWalletEvent(ctx context.Context, event domain.SaleEvent) (*domain.SaleEvent, *domain.WalletSnapshot, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
