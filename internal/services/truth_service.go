package services

import (
	"context"
	"fmt"

	"bankos/internal/core"
)

// TruthService composes the customer-truth view: current ledger state
// joined with the decision history read model. Pure reads, no side effects.
type TruthService struct {
	store          TruthReader
	recentTxLimit  int
	decisionsLimit int
}

func NewTruthService(store TruthReader) *TruthService {
	return &TruthService{
		store:          store,
		recentTxLimit:  20,
		decisionsLimit: 50,
	}
}

// GetCustomerTruth returns the aggregated view for one customer. A missing
// customer is ErrCustomerNotFound; zero accounts or zero decisions are a
// valid, partial view rather than an error.
func (s *TruthService) GetCustomerTruth(ctx context.Context, customerID string) (core.CustomerTruth, error) {
	customer, err := s.store.GetCustomer(ctx, customerID)
	if err != nil {
		return core.CustomerTruth{}, err
	}

	accounts, err := s.store.ListAccountsByCustomer(ctx, customerID)
	if err != nil {
		return core.CustomerTruth{}, fmt.Errorf("load accounts: %w", err)
	}

	transactions, err := s.store.ListRecentTransactionsByCustomer(ctx, customerID, s.recentTxLimit)
	if err != nil {
		return core.CustomerTruth{}, fmt.Errorf("load recent transactions: %w", err)
	}

	history, err := s.store.ListDecisionHistory(ctx, customerID, s.decisionsLimit)
	if err != nil {
		return core.CustomerTruth{}, fmt.Errorf("load decision history: %w", err)
	}

	return core.CustomerTruth{
		Customer:           customer,
		Accounts:           accounts,
		RecentTransactions: transactions,
		DecisionHistory:    history,
	}, nil
}
