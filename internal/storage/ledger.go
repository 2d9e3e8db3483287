package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bankos/internal/core"
)

// lockAccount returns the mutex guarding ledger writes for one account.
// Locks are created on first use and never released for the process
// lifetime; the set of hot accounts is bounded by the demo's data volume.
func (r *Repository) lockAccount(accountID string) *sync.Mutex {
	v, _ := r.accountLocks.LoadOrStore(accountID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// ApplyTransaction validates and applies a single credit or debit: it reads
// the current balance, computes balance_after, writes the transaction row
// and the updated account balance in one database transaction.
//
// Writes against the same account serialize on a per-account lock, so
// balance_after values form a gap-free sequence per account; writes against
// different accounts proceed independently. Debits may overdraw: there is
// no balance floor.
func (r *Repository) ApplyTransaction(ctx context.Context, accountID string, typ core.TransactionType, amount core.Money, description string) (core.Transaction, error) {
	if err := typ.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := amount.Validate(); err != nil {
		return core.Transaction{}, err
	}

	mu := r.lockAccount(accountID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRowContext(ctx,
		`SELECT balance_cents FROM accounts WHERE id = ?`, accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrAccountNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("read account balance: %w", err)
	}

	now := time.Now().UTC()
	record := core.Transaction{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		Type:         typ,
		Amount:       amount,
		BalanceAfter: core.Money{Cents: balance + typ.Signed(amount).Cents},
		Description:  description,
		CreatedAt:    now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, type, amount_cents, balance_after_cents, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.AccountID, string(record.Type), record.Amount.Cents,
		record.BalanceAfter.Cents, record.Description, record.CreatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = ?, updated_at = ? WHERE id = ?`,
		record.BalanceAfter.Cents, now, accountID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update account balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.Transaction{}, fmt.Errorf("commit ledger transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction applied",
		"transaction_id", record.ID,
		"account_id", accountID,
		"transaction_type", string(typ),
		"amount_cents", amount.Cents,
		"balance_after_cents", record.BalanceAfter.Cents)
	return record, nil
}

func (r *Repository) ListTransactionsByAccount(ctx context.Context, accountID string, limit int) ([]core.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return r.queryTransactions(ctx, `
		SELECT id, account_id, type, amount_cents, balance_after_cents, description, created_at
		FROM transactions
		WHERE account_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, accountID, limit)
}

// ListRecentTransactionsByCustomer returns the newest transactions across
// all of a customer's accounts, for the customer-truth view.
func (r *Repository) ListRecentTransactionsByCustomer(ctx context.Context, customerID string, limit int) ([]core.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	return r.queryTransactions(ctx, `
		SELECT t.id, t.account_id, t.type, t.amount_cents, t.balance_after_cents, t.description, t.created_at
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE a.customer_id = ?
		ORDER BY t.created_at DESC
		LIMIT ?`, customerID, limit)
}

func (r *Repository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	transactions := []core.Transaction{}
	for rows.Next() {
		var t core.Transaction
		var typ string
		if err := rows.Scan(&t.ID, &t.AccountID, &typ, &t.Amount.Cents, &t.BalanceAfter.Cents, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = core.TransactionType(typ)
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return transactions, nil
}
