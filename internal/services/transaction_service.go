package services

import (
	"context"
	"fmt"
	"log/slog"

	"bankos/internal/core"
	"bankos/internal/event"
)

// TransactionService is the request-facing write path: it applies a credit
// or debit to the ledger and coordinates event emission around the commit.
type TransactionService struct {
	ledger    Ledger
	publisher Publisher
	cdp       Notifier
}

func NewTransactionService(ledger Ledger, publisher Publisher, cdp Notifier) *TransactionService {
	return &TransactionService{
		ledger:    ledger,
		publisher: publisher,
		cdp:       cdp,
	}
}

// CreateTransaction applies the transaction and publishes
// transaction.completed. The ledger write is the source of truth: a failed
// publish is logged and the committed transaction is returned anyway, while
// a failed ledger write surfaces to the caller and emits nothing.
func (s *TransactionService) CreateTransaction(ctx context.Context, accountID string, typ core.TransactionType, amount core.Money, description string) (core.Transaction, error) {
	tx, err := s.ledger.ApplyTransaction(ctx, accountID, typ, amount, description)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("apply transaction: %w", err)
	}

	s.publish(ctx, event.TopicTransactions, event.TypeTransactionCompleted, tx)

	if s.cdp != nil {
		// Best-effort CDP forward, detached from the request lifetime
		go s.cdp.Track(context.WithoutCancel(ctx), accountID, "transaction_completed", map[string]any{
			"transaction_id": tx.ID,
			"type":           string(tx.Type),
			"amount":         tx.Amount.String(),
			"balance_after":  tx.BalanceAfter.String(),
		})
	}

	return tx, nil
}

// RegisterCustomer creates a customer profile and announces it.
func (s *TransactionService) RegisterCustomer(ctx context.Context, c core.Customer) (core.Customer, error) {
	created, err := s.ledger.CreateCustomer(ctx, c)
	if err != nil {
		return core.Customer{}, fmt.Errorf("create customer: %w", err)
	}
	s.publish(ctx, event.TopicCustomers, event.TypeClientCreated, created)
	return created, nil
}

// OpenAccount opens an account for an existing customer and announces it.
func (s *TransactionService) OpenAccount(ctx context.Context, a core.Account) (core.Account, error) {
	opened, err := s.ledger.CreateAccount(ctx, a)
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	s.publish(ctx, event.TopicAccounts, event.TypeAccountOpened, opened)
	return opened, nil
}

// PublishOutcome feeds a decision outcome into the writeback loop via the
// event log. Unlike ledger writes there is no local commit first; a
// transport failure here does surface, since the event is the operation.
func (s *TransactionService) PublishOutcome(ctx context.Context, outcome core.DecisionOutcome) error {
	if err := outcome.Validate(); err != nil {
		return err
	}
	if s.publisher == nil {
		return event.ErrPublish
	}
	if err := s.publisher.Publish(ctx, event.TopicOutcomes, event.TypeDecisionOutcome, outcome); err != nil {
		return fmt.Errorf("publish decision outcome: %w", err)
	}
	return nil
}

// publish emits best-effort: failures are logged, never returned. The
// transport owns redelivery once a publish succeeds; before that the
// committed row is the recovery point.
func (s *TransactionService) publish(ctx context.Context, topic, eventType string, payload any) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "Event transport not available, skipping publish",
			"topic", topic, "event_type", eventType)
		return
	}
	if err := s.publisher.Publish(ctx, topic, eventType, payload); err != nil {
		slog.ErrorContext(ctx, "Failed to publish domain event",
			"topic", topic,
			"event_type", eventType,
			"error", err)
	}
}
