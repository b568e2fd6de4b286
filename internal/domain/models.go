package domain

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// SaleEvent is one append-only monetary event recorded against a tenant.
// Purchases carry a negative amount (money leaving the customer's wallet),
// deposits a positive one.
type SaleEvent struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	Amount       decimal.Decimal `json:"amount"`
	Kind         string          `json:"kind"`
	CreatedAt    time.Time       `json:"created_at"`
	ItemsPayload json.RawMessage `json:"items_payload,omitempty"`
	RegisterID   string          `json:"register_id,omitempty"`
	OrderID      string          `json:"order_id,omitempty"`
	OwnerID      string          `json:"owner_id,omitempty"`
}

type ExpenseEvent struct {
	ID       string          `json:"id"`
	TenantID string          `json:"tenant_id"`
	Amount   decimal.Decimal `json:"amount"`
	Date     civil.Date      `json:"date"`
	Category string          `json:"category"`
	Note     string          `json:"note,omitempty"`
}

type WalletSnapshot struct {
	TenantID  string          `json:"tenant_id"`
	OwnerID   string          `json:"owner_id"`
	OwnerName string          `json:"owner_name,omitempty"`
	OwnerKind string          `json:"owner_kind"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type SaleLine struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitCost  decimal.Decimal `json:"buying_price"`
	UnitPrice decimal.Decimal `json:"selling_price"`
}

type SaleRequest struct {
	TenantID   string     `json:"tenant_id"`
	RegisterID string     `json:"register_id"`
	OwnerID    string     `json:"owner_id,omitempty"`
	Note       string     `json:"note,omitempty"`
	Items      []SaleLine `json:"items"`
}

type DepositRequest struct {
	TenantID   string          `json:"tenant_id"`
	RegisterID string          `json:"register_id"`
	OwnerID    string          `json:"owner_id"`
	Amount     decimal.Decimal `json:"amount"`
}

type DeliveryRequest struct {
	TenantID string          `json:"tenant_id"`
	OrderID  string          `json:"order_id"`
	OwnerID  string          `json:"owner_id,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Items    []SaleLine      `json:"items"`
}

type ExpenseRequest struct {
	TenantID string          `json:"tenant_id"`
	Amount   decimal.Decimal `json:"amount"`
	Date     string          `json:"date"`
	Category string          `json:"category"`
	Note     string          `json:"note,omitempty"`
}

type SaleResponse struct {
	Sale   SaleEvent       `json:"sale"`
	Wallet *WalletSnapshot `json:"wallet,omitempty"`
}

type ExpenseResponse struct {
	Expense ExpenseEvent `json:"expense"`
}

type WalletListResponse struct {
	Wallets      []WalletSnapshot `json:"wallets"`
	TotalBalance decimal.Decimal  `json:"total_balance"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	TenantID    string `json:"tenant_id"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
	TenantID string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	TenantID  string
	Active    bool
	CreatedAt time.Time
}

const (
	SaleKindPurchase = "purchase"
	SaleKindDeposit  = "deposit"
)

const (
	OwnerKindStudent = "student"
	OwnerKindStaff   = "staff"
)

const (
	RoleCashier = "cashier"
	RoleAdmin   = "admin"
)

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	TenantID  string    `json:"tenant_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
