/**
 * @description
 * Core business logic for marketplace checkout and settlement: creating hosted
 * checkout sessions with a platform fee split, onboarding sellers onto
 * connected accounts, and reconciling provider webhooks into local state.
 * Every collaborator is injected through the interfaces below.
 */
package app

import (
	"context"
	"time"

	"github.com/surfspotter/payments-service/internal/domain"
)

// PaymentProvider is the subset of the payments provider API the service uses.
type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, req domain.SessionRequest) (*domain.CheckoutSession, error)
	CreateConnectedAccount(ctx context.Context, req domain.ConnectedAccountRequest) (string, error)
	CreateOnboardingLink(ctx context.Context, req domain.OnboardingLinkRequest) (string, error)
	RetrievePlatformAccount(ctx context.Context) (*domain.PlatformAccount, error)
}

// EventVerifier authenticates a raw webhook payload against its signature
// header and decodes it.
type EventVerifier interface {
	Verify(payload []byte, signatureHeader string) (domain.ProviderEvent, error)
}

// Catalog resolves products referenced by a cart.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// SellerDirectory reads and merges seller records.
type SellerDirectory interface {
	GetSeller(ctx context.Context, id string) (*domain.Seller, error)
	UpsertSeller(ctx context.Context, s domain.Seller) (*domain.Seller, error)
	UpdateAccountCapabilities(ctx context.Context, caps domain.AccountCapabilities) error
}

// OrderLedger records paid orders.
type OrderLedger interface {
	MarkOrderPaid(ctx context.Context, p domain.OrderPayment) error
}

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// EventDeduplicator claims webhook event ids for a retention window.
type EventDeduplicator interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
	// Extend resets the expiry of a held claim to ttl from now.
	Extend(ctx context.Context, key string, ttl time.Duration) error
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// Exchange and routing keys for published marketplace events.
const (
	EventsExchange          = "marketplace.events"
	RoutingKeyOrderPaid     = "order.paid"
	RoutingKeySellerUpdated = "seller.account_updated"
	RoutingKeyDeadLetter    = "webhook.dead_letter"
)

// UnknownSellerPolicy decides what onboarding does for an unknown seller id.
type UnknownSellerPolicy string

const (
	// PolicyRegister creates a placeholder seller record.
	PolicyRegister UnknownSellerPolicy = "register"
	// PolicyReject fails with NotFoundError.
	PolicyReject UnknownSellerPolicy = "reject"
)

type noopPublisher struct{}

func (noopPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}
