package event

import (
	"encoding/json"
	"time"
)

// Topics carried by the bankos exchange. Each topic is a durable queue
// bound under its own name, so delivery order within a topic is FIFO.
const (
	TopicCustomers    = "bank.customers"
	TopicAccounts     = "bank.accounts"
	TopicTransactions = "bank.transactions"
	TopicOutcomes     = "decisions.outcomes"
)

// Event types published on the topics above.
const (
	TypeClientCreated        = "client.created"
	TypeAccountOpened        = "account.opened"
	TypeTransactionCompleted = "transaction.completed"
	TypeDecisionOutcome      = "decision.outcome"
)

// Envelope is the wire format of a domain event: the event type, the
// committed entity as an opaque payload, and the emission timestamp.
// Envelopes are appended, never mutated.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope wraps a payload that is already JSON.
func NewEnvelope(eventType string, payload json.RawMessage) *Envelope {
	return &Envelope{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the envelope to JSON bytes
func (e *Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EnvelopeFromJSON creates an envelope from JSON bytes
func EnvelopeFromJSON(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// keyFromPayload picks the ordering key for an event: the payload's own id
// when present, falling back to the customer or account identifier. An
// empty key is allowed; such events only join the topic-wide order.
func keyFromPayload(payload json.RawMessage) string {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return ""
	}
	for _, name := range []string{"id", "client_id", "clientId", "customer_id", "customerId", "account_id", "accountId"} {
		if v, ok := fields[name].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
