package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"bankos/internal/core"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "bankos_test.db"))
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedAccount(t *testing.T, repo *Repository, balanceCents int64) core.Account {
	t.Helper()
	ctx := context.Background()
	customer, err := repo.CreateCustomer(ctx, core.Customer{DisplayName: "Alice Johnson", Status: core.StatusActive})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	account, err := repo.CreateAccount(ctx, core.Account{
		CustomerID:  customer.ID,
		ProductType: "CHECKING",
		Balance:     core.Money{Cents: balanceCents},
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return account
}

func TestApplyTransactionCreditDebitScenario(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	account := seedAccount(t, repo, 10000) // 100.00

	credit, err := repo.ApplyTransaction(ctx, account.ID, core.Credit, core.Money{Cents: 5000}, "Salary")
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if credit.BalanceAfter.Cents != 15000 {
		t.Errorf("credit balance_after = %d, want 15000", credit.BalanceAfter.Cents)
	}

	debit, err := repo.ApplyTransaction(ctx, account.ID, core.Debit, core.Money{Cents: 3000}, "Bill pay")
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if debit.BalanceAfter.Cents != 12000 {
		t.Errorf("debit balance_after = %d, want 12000", debit.BalanceAfter.Cents)
	}

	got, err := repo.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.Balance.Cents != 12000 {
		t.Errorf("account balance = %d, want 12000", got.Balance.Cents)
	}

	history, err := repo.ListTransactionsByAccount(ctx, account.ID, 10)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("transaction count = %d, want 2", len(history))
	}
}

func TestApplyTransactionOverdraftAllowed(t *testing.T) {
	repo := newTestRepo(t)
	account := seedAccount(t, repo, 1000)

	tx, err := repo.ApplyTransaction(context.Background(), account.ID, core.Debit, core.Money{Cents: 5000}, "ATM")
	if err != nil {
		t.Fatalf("overdrawing debit should succeed: %v", err)
	}
	if tx.BalanceAfter.Cents != -4000 {
		t.Errorf("balance_after = %d, want -4000", tx.BalanceAfter.Cents)
	}
}

func TestApplyTransactionRejectsInvalidInput(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	account := seedAccount(t, repo, 10000)

	tests := []struct {
		name    string
		typ     core.TransactionType
		cents   int64
		wantErr error
	}{
		{"zero amount", core.Credit, 0, core.ErrInvalidAmount},
		{"negative amount", core.Debit, -500, core.ErrInvalidAmount},
		{"unknown type", core.TransactionType("TRANSFER"), 500, core.ErrInvalidType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.ApplyTransaction(ctx, account.ID, tt.typ, core.Money{Cents: tt.cents}, "")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}

	// A rejected transaction must leave the balance untouched
	got, err := repo.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.Balance.Cents != 10000 {
		t.Errorf("balance after rejected writes = %d, want 10000", got.Balance.Cents)
	}
}

func TestApplyTransactionUnknownAccount(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.ApplyTransaction(ctx, "missing", core.Credit, core.Money{Cents: 100}, "")
	if !errors.Is(err, core.ErrAccountNotFound) {
		t.Fatalf("got %v, want ErrAccountNotFound", err)
	}

	// No orphan transaction row may exist
	rows, err := repo.ListTransactionsByAccount(ctx, "missing", 10)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("found %d transaction rows for unknown account", len(rows))
	}
}

func TestRunningBalanceInvariant(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	const initial = int64(25000)
	account := seedAccount(t, repo, initial)

	amounts := []int64{100, 2350, 75, 999, 5000, 1, 42, 7500, 300, 8}
	running := initial
	for i, cents := range amounts {
		typ := core.Credit
		if i%3 == 0 {
			typ = core.Debit
		}
		tx, err := repo.ApplyTransaction(ctx, account.ID, typ, core.Money{Cents: cents}, "")
		if err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
		running += typ.Signed(core.Money{Cents: cents}).Cents
		if tx.BalanceAfter.Cents != running {
			t.Fatalf("position %d: balance_after = %d, want %d", i, tx.BalanceAfter.Cents, running)
		}
	}

	got, err := repo.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.Balance.Cents != running {
		t.Errorf("final balance = %d, want %d", got.Balance.Cents, running)
	}
}

func TestConcurrentSameAccountSerializes(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	account := seedAccount(t, repo, 0)

	const workers = 20
	var wg sync.WaitGroup
	results := make([]core.Transaction, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = repo.ApplyTransaction(ctx, account.ID, core.Credit, core.Money{Cents: 100}, "concurrent")
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, workers)
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if seen[results[i].BalanceAfter.Cents] {
			t.Fatalf("duplicate balance_after %d: interleaved read-modify-write", results[i].BalanceAfter.Cents)
		}
		seen[results[i].BalanceAfter.Cents] = true
	}

	got, err := repo.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.Balance.Cents != workers*100 {
		t.Errorf("final balance = %d, want %d", got.Balance.Cents, workers*100)
	}
}

func TestConcurrentDifferentAccountsProceed(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	first := seedAccount(t, repo, 0)
	second := seedAccount(t, repo, 0)

	const perAccount = 10
	var wg sync.WaitGroup
	for _, id := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(accountID string) {
			defer wg.Done()
			for i := 0; i < perAccount; i++ {
				if _, err := repo.ApplyTransaction(ctx, accountID, core.Credit, core.Money{Cents: 50}, ""); err != nil {
					t.Errorf("apply on %s: %v", accountID, err)
					return
				}
			}
		}(id)
	}
	wg.Wait()

	for _, id := range []string{first.ID, second.ID} {
		got, err := repo.GetAccount(ctx, id)
		if err != nil {
			t.Fatalf("get account: %v", err)
		}
		if got.Balance.Cents != perAccount*50 {
			t.Errorf("account %s balance = %d, want %d", id, got.Balance.Cents, perAccount*50)
		}
	}
}

func TestDecisionHistoryAppendOnly(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	customer, err := repo.CreateCustomer(ctx, core.Customer{DisplayName: "Bob Smith"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	outcome := core.DecisionOutcome{
		CustomerID: customer.ID,
		Domain:     "health",
		Action:     "savings_nudge",
		Metadata:   map[string]any{"score": 0.82},
	}
	if err := repo.InsertDecisionOutcome(ctx, outcome); err != nil {
		t.Fatalf("insert outcome: %v", err)
	}
	// Redelivery of the same event appends a second row; that is the
	// documented at-least-once trade-off, not a conflict.
	if err := repo.InsertDecisionOutcome(ctx, outcome); err != nil {
		t.Fatalf("insert duplicate outcome: %v", err)
	}

	history, err := repo.ListDecisionHistory(ctx, customer.ID, 10)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history rows = %d, want 2", len(history))
	}
	for _, d := range history {
		if d.Outcome != core.OutcomeRecommended {
			t.Errorf("outcome = %q, want default %q", d.Outcome, core.OutcomeRecommended)
		}
		if d.Metadata["score"] != 0.82 {
			t.Errorf("metadata round trip lost score: %v", d.Metadata)
		}
	}
}

func TestDecisionOutcomeRequiresFields(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.InsertDecisionOutcome(context.Background(), core.DecisionOutcome{CustomerID: "c1", Domain: "health"})
	if !errors.Is(err, core.ErrEmptyAction) {
		t.Fatalf("got %v, want ErrEmptyAction", err)
	}
}

func TestTouchCustomer(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	customer, err := repo.CreateCustomer(ctx, core.Customer{DisplayName: "Carol Williams"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	if err := repo.TouchCustomer(ctx, customer.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, err := repo.GetCustomer(ctx, customer.ID)
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if got.UpdatedAt.Before(customer.UpdatedAt) {
		t.Errorf("updated_at went backwards: %v -> %v", customer.UpdatedAt, got.UpdatedAt)
	}

	// Touching a customer this store has never seen is a no-op
	if err := repo.TouchCustomer(ctx, "missing"); err != nil {
		t.Fatalf("touch unknown customer: %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetAccount(ctx, "nope"); !errors.Is(err, core.ErrAccountNotFound) {
		t.Errorf("GetAccount: got %v, want ErrAccountNotFound", err)
	}
	if _, err := repo.GetCustomer(ctx, "nope"); !errors.Is(err, core.ErrCustomerNotFound) {
		t.Errorf("GetCustomer: got %v, want ErrCustomerNotFound", err)
	}
}
