package services

import (
	"context"

	"bankos/internal/core"
)

// Ledger abstracts the storage operations the write path needs.
type Ledger interface {
	ApplyTransaction(ctx context.Context, accountID string, typ core.TransactionType, amount core.Money, description string) (core.Transaction, error)
	CreateCustomer(ctx context.Context, c core.Customer) (core.Customer, error)
	CreateAccount(ctx context.Context, a core.Account) (core.Account, error)
}

// TruthReader abstracts the read-side queries behind the customer-truth view.
type TruthReader interface {
	GetCustomer(ctx context.Context, id string) (core.Customer, error)
	ListAccountsByCustomer(ctx context.Context, customerID string) ([]core.Account, error)
	ListRecentTransactionsByCustomer(ctx context.Context, customerID string, limit int) ([]core.Transaction, error)
	ListDecisionHistory(ctx context.Context, customerID string, limit int) ([]core.DecisionOutcome, error)
}

// Publisher emits domain events to the event log.
type Publisher interface {
	Publish(ctx context.Context, topic, eventType string, payload any) error
}

// Notifier forwards behavioral events to the CDP, best effort.
type Notifier interface {
	Track(ctx context.Context, userID, event string, properties map[string]any)
}
