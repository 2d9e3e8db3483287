package log

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldClientIP     = "client_ip"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldUserAgent    = "user_agent"
	FieldError        = "error"
	FieldTopic        = "topic"
	FieldEventType    = "event_type"
	FieldEventKey     = "event_key"
	FieldCustomerID   = "customer_id"
	FieldAccountID    = "account_id"
	FieldTxID         = "transaction_id"
	FieldTxType       = "transaction_type"
	FieldAmountCents  = "amount_cents"
	FieldBalanceAfter = "balance_after_cents"
	FieldDomain       = "domain"
	FieldAction       = "action"
	FieldOutcome      = "outcome"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentStorage   = "storage"
	ComponentEvent     = "event"
	ComponentWriteback = "writeback"
	ComponentTruth     = "truth"
	ComponentCDP       = "cdp"
	ComponentTracking  = "tracking"
	ComponentSeed      = "seed"
)
