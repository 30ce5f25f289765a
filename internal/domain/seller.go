package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Seller is a photographer who receives the seller share of an order.
type Seller struct {
	ID               string    `json:"id"`
	Name             string    `json:"name,omitempty"`
	Email            string    `json:"email,omitempty"`
	PaymentAccountID string    `json:"payment_account_id,omitempty"`
	ChargesEnabled   bool      `json:"charges_enabled"`
	PayoutsEnabled   bool      `json:"payouts_enabled"`
	DetailsSubmitted bool      `json:"details_submitted"`
	TransfersActive  bool      `json:"transfers_active"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CanReceiveTransfers reports whether the provider has enabled the account
// for destination charges.
func (s Seller) CanReceiveTransfers() bool {
	return s.ChargesEnabled || s.TransfersActive
}

// Onboarded reports whether the seller has a payment account at all.
func (s Seller) Onboarded() bool {
	return s.PaymentAccountID != ""
}

// AccountCapabilities is a snapshot of capability flags reported by the
// provider for one connected account. Nil fields were absent from the event
// and must be left untouched.
type AccountCapabilities struct {
	AccountID        string `json:"account_id"`
	ChargesEnabled   *bool  `json:"charges_enabled,omitempty"`
	PayoutsEnabled   *bool  `json:"payouts_enabled,omitempty"`
	DetailsSubmitted *bool  `json:"details_submitted,omitempty"`
	// TransfersActive mirrors capabilities.transfers == "active".
	TransfersActive *bool `json:"transfers_active,omitempty"`
}

// Product is a catalog photo.
type Product struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	SellerID    string          `json:"seller_id"`
	DownloadURL string          `json:"download_url,omitempty"`
}

// ConnectedAccountRequest describes a payable account to create for a seller.
type ConnectedAccountRequest struct {
	SellerID     string
	Email        string
	Country      string
	BusinessType string
}

// OnboardingLinkRequest asks the provider for a single-use setup link.
type OnboardingLinkRequest struct {
	AccountID  string
	RefreshURL string
	ReturnURL  string
}

// PlatformAccount is the provider's view of the platform's own account.
type PlatformAccount struct {
	ID       string `json:"account"`
	Type     string `json:"type"`
	Livemode bool   `json:"livemode"`
}
