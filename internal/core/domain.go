package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Credit TransactionType = "CREDIT"
	Debit  TransactionType = "DEBIT"
)

const (
	StatusActive  = "ACTIVE"
	StatusClosed  = "CLOSED"
	StatusPending = "PENDING"
)

const (
	OutcomeRecommended = "recommended"
	OutcomeAccepted    = "accepted"
	OutcomeDismissed   = "dismissed"
)

type (
	TransactionType string

	Money struct {
		Cents int64
	}

	Customer struct {
		ID          string    `json:"id"`
		DisplayName string    `json:"displayName"`
		Status      string    `json:"status"`
		LifeStage   string    `json:"lifeStage,omitempty"`
		CreatedAt   time.Time `json:"createdAt"`
		UpdatedAt   time.Time `json:"updatedAt"`
	}

	Account struct {
		ID          string    `json:"id"`
		CustomerID  string    `json:"clientId"`
		ProductType string    `json:"productType"`
		Status      string    `json:"status"`
		Balance     Money     `json:"balance"`
		Currency    string    `json:"currency"`
		CreatedAt   time.Time `json:"createdAt"`
		UpdatedAt   time.Time `json:"updatedAt"`
	}

	Transaction struct {
		ID           string          `json:"id"`
		AccountID    string          `json:"accountId"`
		Type         TransactionType `json:"type"`
		Amount       Money           `json:"amount"`
		BalanceAfter Money           `json:"balanceAfter"`
		Description  string          `json:"description,omitempty"`
		CreatedAt    time.Time       `json:"createdAt"`
	}

	// DecisionOutcome is a single observed decision event destined for the
	// decision_history read model. Its wire form is snake_case: decision
	// events arrive from collaborators that speak that dialect.
	DecisionOutcome struct {
		CustomerID string         `json:"customer_id"`
		Domain     string         `json:"domain"`
		Action     string         `json:"action"`
		Outcome    string         `json:"outcome,omitempty"`
		Metadata   map[string]any `json:"metadata,omitempty"`
		CreatedAt  time.Time      `json:"created_at,omitempty"`
	}

	// CustomerTruth is the aggregated read-only view of a customer: profile,
	// account summaries, recent ledger activity and decision history.
	CustomerTruth struct {
		Customer
		Accounts           []Account         `json:"accounts"`
		RecentTransactions []Transaction     `json:"recentTransactions"`
		DecisionHistory    []DecisionOutcome `json:"decisionHistory"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrEmptyDisplayName = errors.New("empty display name")
	ErrEmptyProductType = errors.New("empty product type")
	ErrEmptyCustomerID  = errors.New("empty customer id")
	ErrEmptyAccountID   = errors.New("empty account id")
	ErrAccountNotFound  = errors.New("account not found")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrEmptyDomain      = errors.New("empty decision domain")
	ErrEmptyAction      = errors.New("empty decision action")
)

// Signed returns the amount with the sign implied by the transaction type:
// positive for credits, negative for debits.
func (t TransactionType) Signed(amount Money) Money {
	if t == Debit {
		return Money{Cents: -amount.Cents}
	}
	return Money{Cents: amount.Cents}
}

func (t TransactionType) Validate() error {
	switch t {
	case Credit, Debit:
		return nil
	default:
		return ErrInvalidType
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (c Customer) Validate() error {
	if strings.TrimSpace(c.DisplayName) == "" {
		return ErrEmptyDisplayName
	}
	if len(c.DisplayName) > 200 {
		return errors.New("display name too long (max 200 characters)")
	}
	return nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.CustomerID) == "" {
		return ErrEmptyCustomerID
	}
	if strings.TrimSpace(a.ProductType) == "" {
		return ErrEmptyProductType
	}
	if len(a.Currency) != 3 {
		return errors.New("currency must be a 3-letter ISO code")
	}
	return nil
}

// Validate checks a decision outcome before it reaches the read model.
// Outcome itself is free-form; customer, domain and action are required.
func (d DecisionOutcome) Validate() error {
	if strings.TrimSpace(d.CustomerID) == "" {
		return ErrEmptyCustomerID
	}
	if strings.TrimSpace(d.Domain) == "" {
		return ErrEmptyDomain
	}
	if strings.TrimSpace(d.Action) == "" {
		return ErrEmptyAction
	}
	return nil
}
