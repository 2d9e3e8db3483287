package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bankos/internal/core"

	_ "modernc.org/sqlite"
)

// Repository is the durable relational state behind the pipeline: customers,
// accounts, the transaction ledger and the decision_history read model.
type Repository struct {
	db *sql.DB

	// Per-account write locks. The store is embedded, so ledger writes for
	// the same account serialize here instead of on a database row lock.
	accountLocks sync.Map
}

func NewRepository(dbPath string) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" && !strings.HasPrefix(dbPath, "file:") {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable. Used by readiness checks.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ListCustomers returns all customer profiles, newest first.
func (r *Repository) ListCustomers(ctx context.Context) ([]core.Customer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, display_name, status, life_stage, created_at, updated_at
		FROM customers ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []core.Customer
	for rows.Next() {
		var c core.Customer
		if err := rows.Scan(&c.ID, &c.DisplayName, &c.Status, &c.LifeStage, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return customers, nil
}

// CreateCustomer inserts a new customer profile. A missing ID gets a
// generated UUID; a missing status defaults to PENDING.
func (r *Repository) CreateCustomer(ctx context.Context, c core.Customer) (core.Customer, error) {
	if err := c.Validate(); err != nil {
		return core.Customer{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = core.StatusPending
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customers (id, display_name, status, life_stage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.DisplayName, c.Status, c.LifeStage, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return core.Customer{}, fmt.Errorf("insert customer: %w", err)
	}

	slog.InfoContext(ctx, "Customer created", "customer_id", c.ID, "status", c.Status)
	return c, nil
}

func (r *Repository) GetCustomer(ctx context.Context, id string) (core.Customer, error) {
	var c core.Customer
	err := r.db.QueryRowContext(ctx, `
		SELECT id, display_name, status, life_stage, created_at, updated_at
		FROM customers WHERE id = ?`, id).
		Scan(&c.ID, &c.DisplayName, &c.Status, &c.LifeStage, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Customer{}, core.ErrCustomerNotFound
	}
	if err != nil {
		return core.Customer{}, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

// TouchCustomer bumps updated_at, recording downstream activity against the
// profile. Unknown customers are a no-op: decision events may refer to
// customers this store has never seen.
func (r *Repository) TouchCustomer(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE customers SET updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch customer: %w", err)
	}
	return nil
}

// CreateAccount opens an account for an existing customer. Missing status
// defaults to ACTIVE, missing currency to USD; the opening balance may be
// non-zero for seeded demo accounts.
func (r *Repository) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if a.Status == "" {
		a.Status = core.StatusActive
	}
	if a.Currency == "" {
		a.Currency = "USD"
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	if _, err := r.GetCustomer(ctx, a.CustomerID); err != nil {
		return core.Account{}, err
	}

	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, customer_id, product_type, status, balance_cents, currency, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CustomerID, a.ProductType, a.Status, a.Balance.Cents, a.Currency, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return core.Account{}, fmt.Errorf("insert account: %w", err)
	}

	slog.InfoContext(ctx, "Account opened",
		"account_id", a.ID,
		"customer_id", a.CustomerID,
		"product_type", a.ProductType,
		"balance_cents", a.Balance.Cents)
	return a, nil
}

func (r *Repository) GetAccount(ctx context.Context, id string) (core.Account, error) {
	var a core.Account
	err := r.db.QueryRowContext(ctx, `
		SELECT id, customer_id, product_type, status, balance_cents, currency, created_at, updated_at
		FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.CustomerID, &a.ProductType, &a.Status, &a.Balance.Cents, &a.Currency, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.ErrAccountNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *Repository) ListAccountsByCustomer(ctx context.Context, customerID string) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, customer_id, product_type, status, balance_cents, currency, created_at, updated_at
		FROM accounts WHERE customer_id = ? ORDER BY created_at ASC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []core.Account{}
	for rows.Next() {
		var a core.Account
		if err := rows.Scan(&a.ID, &a.CustomerID, &a.ProductType, &a.Status, &a.Balance.Cents, &a.Currency, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// InsertDecisionOutcome appends one decision_history row. The table is
// append-only with a generated row id, so redelivered events produce
// duplicate rows rather than conflicts.
func (r *Repository) InsertDecisionOutcome(ctx context.Context, d core.DecisionOutcome) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.Outcome == "" {
		d.Outcome = core.OutcomeRecommended
	}
	if d.Metadata == nil {
		d.Metadata = map[string]any{}
	}
	metadata, err := json.Marshal(d.Metadata)
	if err != nil {
		return fmt.Errorf("marshal outcome metadata: %w", err)
	}
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO decision_history (customer_id, domain, action, outcome, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.CustomerID, d.Domain, d.Action, d.Outcome, string(metadata), createdAt)
	if err != nil {
		return fmt.Errorf("insert decision outcome: %w", err)
	}

	slog.InfoContext(ctx, "Decision outcome recorded",
		"customer_id", d.CustomerID,
		"domain", d.Domain,
		"action", d.Action,
		"outcome", d.Outcome)
	return nil
}

func (r *Repository) ListDecisionHistory(ctx context.Context, customerID string, limit int) ([]core.DecisionOutcome, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT customer_id, domain, action, outcome, metadata, created_at
		FROM decision_history
		WHERE customer_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list decision history: %w", err)
	}
	defer rows.Close()

	history := []core.DecisionOutcome{}
	for rows.Next() {
		var d core.DecisionOutcome
		var metadata string
		if err := rows.Scan(&d.CustomerID, &d.Domain, &d.Action, &d.Outcome, &metadata, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan decision outcome: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &d.Metadata); err != nil {
			d.Metadata = map[string]any{}
		}
		history = append(history, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decision history: %w", err)
	}
	return history, nil
}
