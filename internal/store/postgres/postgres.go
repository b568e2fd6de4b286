package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"canteenpos/backend/internal/domain"
	"canteenpos/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate creates the tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const saleColumns = `id, tenant_id, amount, kind, created_at, items_payload, register_id, order_id, owner_id`

func (s *Store) CreateSaleEvent(ctx context.Context, event domain.SaleEvent) (*domain.SaleEvent, error) {
	if event.ID == "" || event.TenantID == "" || event.CreatedAt.IsZero() {
		return nil, store.ErrInvalidInput
	}
	if event.Kind != domain.SaleKindPurchase && event.Kind != domain.SaleKindDeposit {
		return nil, store.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sale_events (`+saleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, event.ID, event.TenantID, event.Amount, event.Kind, event.CreatedAt.UTC(),
		nullJSON(event.ItemsPayload), nullIfEmpty(event.RegisterID), nullIfEmpty(event.OrderID), nullIfEmpty(event.OwnerID))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := event
	created.CreatedAt = event.CreatedAt.UTC()
	return &created, nil
}

func (s *Store) FindSaleEvent(ctx context.Context, tenantID string, id string) (*domain.SaleEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sale_events
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)

	event, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &event, nil
}

// ListSaleEvents returns events oldest first. When limit cuts the result the
// newest rows are the ones kept.
func (s *Store) ListSaleEvents(ctx context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.SaleEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM (
			SELECT `+saleColumns+`
			FROM sale_events
			WHERE tenant_id = $1 AND created_at >= $2 AND created_at <= $3
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		) newest
		ORDER BY created_at ASC, id ASC
	`, tenantID, from.UTC(), to.UTC(), limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.SaleEvent, 0, 128)
	for rows.Next() {
		event, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (domain.SaleEvent, error) {
	var (
		event                      domain.SaleEvent
		payload                    []byte
		registerID, orderID, owner sql.NullString
	)
	if err := row.Scan(&event.ID, &event.TenantID, &event.Amount, &event.Kind, &event.CreatedAt, &payload, &registerID, &orderID, &owner); err != nil {
		return domain.SaleEvent{}, err
	}
	event.CreatedAt = event.CreatedAt.UTC()
	if len(payload) > 0 {
		event.ItemsPayload = payload
	}
	event.RegisterID = registerID.String
	event.OrderID = orderID.String
	event.OwnerID = owner.String
	return event, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.ExpenseEvent) (*domain.ExpenseEvent, error) {
	if expense.ID == "" || expense.TenantID == "" || !expense.Date.IsValid() {
		return nil, store.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expense_events (id, tenant_id, amount, spent_on, category, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, expense.ID, expense.TenantID, expense.Amount, dateValue(expense.Date), strings.TrimSpace(expense.Category), strings.TrimSpace(expense.Note))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(ctx context.Context, tenantID string, from civil.Date, to civil.Date, limit int) ([]domain.ExpenseEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, amount, spent_on, category, note
		FROM (
			SELECT id, tenant_id, amount, spent_on, category, note
			FROM expense_events
			WHERE tenant_id = $1 AND spent_on BETWEEN $2 AND $3
			ORDER BY spent_on DESC, id DESC
			LIMIT $4
		) newest
		ORDER BY spent_on ASC, id ASC
	`, tenantID, dateValue(from), dateValue(to), limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.ExpenseEvent, 0, 32)
	for rows.Next() {
		var (
			expense domain.ExpenseEvent
			spentOn time.Time
		)
		if err := rows.Scan(&expense.ID, &expense.TenantID, &expense.Amount, &spentOn, &expense.Category, &expense.Note); err != nil {
			return nil, err
		}
		expense.Date = civil.DateOf(spentOn.UTC())
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

const walletColumns = `tenant_id, owner_id, owner_name, owner_kind, balance, updated_at`

func (s *Store) ListWallets(ctx context.Context, tenantID string) ([]domain.WalletSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE tenant_id = $1
		ORDER BY owner_id ASC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	wallets := make([]domain.WalletSnapshot, 0, 64)
	for rows.Next() {
		wallet, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, wallet)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return wallets, nil
}

func (s *Store) GetWallet(ctx context.Context, tenantID string, ownerID string) (*domain.WalletSnapshot, error) {
	wallet, err := scanWallet(s.db.QueryRowContext(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE tenant_id = $1 AND owner_id = $2
	`, tenantID, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

func (s *Store) UpsertWallet(ctx context.Context, wallet domain.WalletSnapshot) (*domain.WalletSnapshot, error) {
	if wallet.TenantID == "" || wallet.OwnerID == "" {
		return nil, store.ErrInvalidInput
	}
	if wallet.OwnerKind != domain.OwnerKindStudent && wallet.OwnerKind != domain.OwnerKindStaff {
		return nil, store.ErrInvalidInput
	}
	if wallet.UpdatedAt.IsZero() {
		wallet.UpdatedAt = time.Now().UTC()
	}

	saved, err := scanWallet(s.db.QueryRowContext(ctx, `
		INSERT INTO wallets (`+walletColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (tenant_id, owner_id)
		DO UPDATE SET owner_name = EXCLUDED.owner_name, owner_kind = EXCLUDED.owner_kind,
			balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at
		RETURNING `+walletColumns+`
	`, wallet.TenantID, wallet.OwnerID, wallet.OwnerName, wallet.OwnerKind, wallet.Balance, wallet.UpdatedAt.UTC()))
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// RecordWalletEvent inserts the event and applies its amount to the wallet
// in one serializable transaction. The balance moves in a single UPDATE so
// concurrent registers cannot lose each other's writes.
func (s *Store) RecordWalletEvent(ctx context.Context, event domain.SaleEvent) (*domain.SaleEvent, *domain.WalletSnapshot, error) {
	if event.ID == "" || event.TenantID == "" || event.OwnerID == "" || event.CreatedAt.IsZero() {
		return nil, nil, store.ErrInvalidInput
	}
	if event.Kind != domain.SaleKindPurchase && event.Kind != domain.SaleKindDeposit {
		return nil, nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	wallet, err := scanWallet(tx.QueryRowContext(ctx, `
		UPDATE wallets
		SET balance = balance + $3, updated_at = $4
		WHERE tenant_id = $1 AND owner_id = $2
		RETURNING `+walletColumns+`
	`, event.TenantID, event.OwnerID, event.Amount, event.CreatedAt.UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sale_events (`+saleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, event.ID, event.TenantID, event.Amount, event.Kind, event.CreatedAt.UTC(),
		nullJSON(event.ItemsPayload), nullIfEmpty(event.RegisterID), nullIfEmpty(event.OrderID), event.OwnerID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, store.ErrConflict
		}
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	created := event
	created.CreatedAt = event.CreatedAt.UTC()
	return &created, &wallet, nil
}

func scanWallet(row rowScanner) (domain.WalletSnapshot, error) {
	var wallet domain.WalletSnapshot
	if err := row.Scan(&wallet.TenantID, &wallet.OwnerID, &wallet.OwnerName, &wallet.OwnerKind, &wallet.Balance, &wallet.UpdatedAt); err != nil {
		return domain.WalletSnapshot{}, err
	}
	wallet.UpdatedAt = wallet.UpdatedAt.UTC()
	return wallet, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, tenant_id, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, user.Username, user.Password, user.Role, user.TenantID, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, tenant_id, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.TenantID, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// limitOrAll maps a non-positive limit to SQL NULL, which LIMIT treats as no limit.
func limitOrAll(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func dateValue(d civil.Date) time.Time {
	return d.In(time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullJSON(raw []byte) any {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	return string(raw)
}
