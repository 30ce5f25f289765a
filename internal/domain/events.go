package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// Provider event types the reconciler acts on.
const (
	EventCheckoutSessionCompleted    = "checkout.session.completed"
	EventCheckoutAsyncPaymentSuccess = "checkout.session.async_payment_succeeded"
	EventAccountUpdated              = "account.updated"
)

// PaymentStatusUnpaid marks a completed session whose delayed payment method
// has not settled yet.
const PaymentStatusUnpaid = "unpaid"

// ErrMalformedEvent is returned by verifiers when the signature is valid but
// the payload cannot be decoded into an event.
var ErrMalformedEvent = errors.New("malformed event payload")

// ProviderEvent is a verified webhook notification. Object holds the raw
// `data.object` payload whose shape depends on Type.
type ProviderEvent struct {
	ID       string
	Type     string
	Object   json.RawMessage
	Livemode bool
	Created  time.Time
}

// OrderPaidEvent is published after a checkout session is reconciled.
type OrderPaidEvent struct {
	OrderID         string            `json:"order_id"`
	SessionID       string            `json:"session_id"`
	PaymentIntentID string            `json:"payment_intent_id,omitempty"`
	SellerID        string            `json:"seller_id,omitempty"`
	ProductIDs      []string          `json:"product_ids,omitempty"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	OccurredAt      time.Time         `json:"occurred_at"`
}

// SellerAccountUpdatedEvent is published after capability flags are merged.
type SellerAccountUpdatedEvent struct {
	AccountID        string    `json:"account_id"`
	ChargesEnabled   *bool     `json:"charges_enabled,omitempty"`
	PayoutsEnabled   *bool     `json:"payouts_enabled,omitempty"`
	DetailsSubmitted *bool     `json:"details_submitted,omitempty"`
	TransfersActive  *bool     `json:"transfers_active,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// DeadLetterEvent records a verified event that could not be correlated to
// local state and will not be retried.
type DeadLetterEvent struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	Reason     string          `json:"reason"`
	Object     json.RawMessage `json:"object,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}
