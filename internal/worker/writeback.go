// Package worker hosts the writeback consumer: it drains decision outcome
// events from the broker and appends them to the decision_history read model.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"bankos/internal/core"
	"bankos/internal/event"
	"bankos/internal/log"
)

// OutcomeStore is the slice of the repository the writeback needs.
type OutcomeStore interface {
	InsertDecisionOutcome(ctx context.Context, d core.DecisionOutcome) error
	TouchCustomer(ctx context.Context, id string) error
}

// Tracker records that an outcome was observed. Implementations must not
// block the caller; failures are theirs to log.
type Tracker interface {
	Notify(ctx context.Context, customerID, domain, action string)
}

// Writeback appends decision outcomes to storage as they arrive. It is the
// consuming half of the outcomes topic: the handler it exposes plugs
// directly into event.Client.Consume.
type Writeback struct {
	store   OutcomeStore
	tracker Tracker
	logger  *log.Logger
}

func NewWriteback(store OutcomeStore, tracker Tracker, logger *log.Logger) *Writeback {
	return &Writeback{
		store:   store,
		tracker: tracker,
		logger:  logger.WithComponent(log.ComponentWriteback),
	}
}

// HandleOutcome processes one decision outcome envelope.
//
// Malformed payloads are skipped with a warning and acked: redelivering a
// message that can never decode would wedge the queue. Storage failures are
// returned so the delivery is requeued; with at-least-once semantics a
// redelivered outcome lands as a second decision_history row, which the
// append-only model accepts.
func (w *Writeback) HandleOutcome(ctx context.Context, envelope *event.Envelope) error {
	outcome, err := decodeOutcome(envelope.Payload)
	if err != nil {
		w.logger.WarnContext(ctx, "skipping undecodable outcome event",
			log.FieldEventType, envelope.Type,
			log.FieldError, err.Error())
		return nil
	}

	if err := w.store.InsertDecisionOutcome(ctx, outcome); err != nil {
		return fmt.Errorf("insert decision outcome: %w", err)
	}

	w.logger.InfoContext(ctx, "decision outcome recorded",
		log.FieldCustomerID, outcome.CustomerID,
		log.FieldDomain, outcome.Domain,
		log.FieldAction, outcome.Action,
		log.FieldOutcome, outcome.Outcome)

	// An accepted outcome also bumps the customer profile. A failure here
	// requeues the whole delivery; the extra decision_history row a
	// redelivery appends is accepted, same as any other duplicate.
	if outcome.Outcome == core.OutcomeAccepted {
		if err := w.store.TouchCustomer(ctx, outcome.CustomerID); err != nil {
			return fmt.Errorf("touch customer %s: %w", outcome.CustomerID, err)
		}
	}

	if w.tracker != nil {
		go w.tracker.Notify(context.WithoutCancel(ctx), outcome.CustomerID, outcome.Domain, outcome.Action)
	}
	return nil
}

// decodeOutcome unmarshals a decision outcome payload and validates the
// fields the read model cannot live without. Anything missing makes the
// event poison, not retryable.
func decodeOutcome(payload json.RawMessage) (core.DecisionOutcome, error) {
	var outcome core.DecisionOutcome
	if err := json.Unmarshal(payload, &outcome); err != nil {
		return core.DecisionOutcome{}, fmt.Errorf("decode payload: %w", err)
	}
	if err := outcome.Validate(); err != nil {
		return core.DecisionOutcome{}, err
	}
	return outcome, nil
}
