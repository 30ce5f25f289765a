package stripeclient

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"github.com/surfspotter/payments-service/internal/domain"
)

// WebhookVerifier checks the Stripe-Signature header against the exact
// request bytes before decoding the event.
type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

// NewWebhookVerifier creates a verifier. A zero tolerance uses Stripe's
// default of five minutes.
func NewWebhookVerifier(secret string, tolerance time.Duration) *WebhookVerifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &WebhookVerifier{secret: secret, tolerance: tolerance}
}

// Verify authenticates payload and decodes it into a ProviderEvent.
func (v *WebhookVerifier) Verify(payload []byte, signatureHeader string) (domain.ProviderEvent, error) {
	if err := webhook.ValidatePayloadWithTolerance(payload, signatureHeader, v.secret, v.tolerance); err != nil {
		return domain.ProviderEvent{}, err
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return domain.ProviderEvent{}, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
	if event.Type == "" || event.Data == nil {
		return domain.ProviderEvent{}, fmt.Errorf("%w: missing type or data", domain.ErrMalformedEvent)
	}

	return domain.ProviderEvent{
		ID:       event.ID,
		Type:     string(event.Type),
		Object:   event.Data.Raw,
		Livemode: event.Livemode,
		Created:  time.Unix(event.Created, 0).UTC(),
	}, nil
}
