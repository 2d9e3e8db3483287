// Package seed populates a fresh database with demo customers, accounts
// and ledger activity, so the read surface has something to show.
package seed

import (
	"context"
	"fmt"
	"math/rand"

	"bankos/internal/core"
	"bankos/internal/log"
	"bankos/internal/storage"
)

type profile struct {
	name      string
	lifeStage string
	products  []string
	opening   int64 // cents
}

var profiles = []profile{
	{"Alice Johnson", "EARLY_CAREER", []string{"CHECKING", "SAVINGS"}, 250_000},
	{"Bob Smith", "FAMILY", []string{"CHECKING", "SAVINGS", "CREDIT"}, 780_000},
	{"Cara Diaz", "STUDENT", []string{"CHECKING"}, 45_000},
	{"Dana Cruz", "RETIREMENT", []string{"SAVINGS", "INVESTMENT"}, 1_950_000},
	{"Eve Chan", "EARLY_CAREER", []string{"CHECKING", "SAVINGS"}, 320_000},
}

var descriptions = []string{
	"payroll", "groceries", "rent", "utilities", "transfer in",
	"dining", "subscription", "fuel", "pharmacy", "refund",
}

// Run creates the demo customers with their accounts and applies a spread
// of credits and debits through the ledger, so every seeded balance is the
// product of a real transaction trail.
func Run(ctx context.Context, repo *storage.Repository, transactionsPerAccount int, logger *log.Logger) error {
	logger = logger.WithComponent(log.ComponentSeed)
	rng := rand.New(rand.NewSource(42))

	for _, p := range profiles {
		customer, err := repo.CreateCustomer(ctx, core.Customer{
			DisplayName: p.name,
			Status:      "ACTIVE",
			LifeStage:   p.lifeStage,
		})
		if err != nil {
			return fmt.Errorf("seed customer %q: %w", p.name, err)
		}

		for _, product := range p.products {
			account, err := repo.CreateAccount(ctx, core.Account{
				CustomerID:  customer.ID,
				ProductType: product,
				Balance:     core.Money{Cents: p.opening},
			})
			if err != nil {
				return fmt.Errorf("seed %s account for %q: %w", product, p.name, err)
			}

			for i := 0; i < transactionsPerAccount; i++ {
				typ := core.Credit
				if rng.Intn(2) == 0 {
					typ = core.Debit
				}
				amount := core.Money{Cents: int64(rng.Intn(20_000) + 500)}
				description := descriptions[rng.Intn(len(descriptions))]

				if _, err := repo.ApplyTransaction(ctx, account.ID, typ, amount, description); err != nil {
					return fmt.Errorf("seed transaction on %s: %w", account.ID, err)
				}
			}

			logger.Info("Seeded account",
				log.FieldCustomerID, customer.ID,
				log.FieldAccountID, account.ID,
				"product_type", product)
		}

		if err := seedDecisionHistory(ctx, repo, customer.ID, rng); err != nil {
			return err
		}
	}

	logger.Info("Seed complete", "customers", len(profiles))
	return nil
}

func seedDecisionHistory(ctx context.Context, repo *storage.Repository, customerID string, rng *rand.Rand) error {
	decisions := []core.DecisionOutcome{
		{CustomerID: customerID, Domain: "finance", Action: "savings_nudge", Outcome: core.OutcomeRecommended},
		{CustomerID: customerID, Domain: "finance", Action: "card_upgrade", Outcome: core.OutcomeDismissed},
		{CustomerID: customerID, Domain: "health", Action: "checkup_reminder", Outcome: core.OutcomeAccepted},
	}
	for _, d := range decisions[:1+rng.Intn(len(decisions))] {
		d.Metadata = map[string]any{"score": float64(rng.Intn(100)) / 100}
		if err := repo.InsertDecisionOutcome(ctx, d); err != nil {
			return fmt.Errorf("seed decision history for %s: %w", customerID, err)
		}
	}
	return nil
}
