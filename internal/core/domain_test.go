package core

import (
	"errors"
	"strings"
	"testing"
)

func TestTransactionTypeValidate(t *testing.T) {
	if err := Credit.Validate(); err != nil {
		t.Errorf("CREDIT should be valid: %v", err)
	}
	if err := Debit.Validate(); err != nil {
		t.Errorf("DEBIT should be valid: %v", err)
	}
	if err := TransactionType("TRANSFER").Validate(); !errors.Is(err, ErrInvalidType) {
		t.Errorf("TRANSFER should fail with ErrInvalidType, got %v", err)
	}
	if err := TransactionType("").Validate(); !errors.Is(err, ErrInvalidType) {
		t.Errorf("empty type should fail with ErrInvalidType, got %v", err)
	}
}

func TestTransactionTypeSigned(t *testing.T) {
	if got := Credit.Signed(Money{Cents: 500}); got.Cents != 500 {
		t.Errorf("credit signed = %d, want 500", got.Cents)
	}
	if got := Debit.Signed(Money{Cents: 500}); got.Cents != -500 {
		t.Errorf("debit signed = %d, want -500", got.Cents)
	}
}

func TestAccountValidate(t *testing.T) {
	valid := Account{CustomerID: "c1", ProductType: "CHECKING", Currency: "USD"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid account rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Account)
		wantErr error
	}{
		{"missing customer", func(a *Account) { a.CustomerID = " " }, ErrEmptyCustomerID},
		{"missing product type", func(a *Account) { a.ProductType = "" }, ErrEmptyProductType},
		{"bad currency", func(a *Account) { a.Currency = "US" }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid
			tt.mutate(&a)
			err := a.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCustomerValidate(t *testing.T) {
	if err := (Customer{DisplayName: "Alice Johnson"}).Validate(); err != nil {
		t.Fatalf("valid customer rejected: %v", err)
	}
	if err := (Customer{DisplayName: "  "}).Validate(); !errors.Is(err, ErrEmptyDisplayName) {
		t.Fatalf("blank name should fail, got %v", err)
	}
	long := Customer{DisplayName: strings.Repeat("x", 201)}
	if err := long.Validate(); err == nil {
		t.Fatal("overlong name should fail")
	}
}

func TestDecisionOutcomeValidate(t *testing.T) {
	valid := DecisionOutcome{CustomerID: "c1", Domain: "health", Action: "nudge"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid outcome rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*DecisionOutcome)
		wantErr error
	}{
		{"missing customer", func(d *DecisionOutcome) { d.CustomerID = "" }, ErrEmptyCustomerID},
		{"missing domain", func(d *DecisionOutcome) { d.Domain = "" }, ErrEmptyDomain},
		{"missing action", func(d *DecisionOutcome) { d.Action = "" }, ErrEmptyAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mutate(&d)
			if err := d.Validate(); !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}
