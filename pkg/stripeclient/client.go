/**
 * @description
 * Stripe adapter for checkout sessions, Express connected accounts and
 * onboarding links. Each Client owns its own stripe-go API instance, so the
 * global stripe.Key is never touched and tests can point the backends at a
 * local server.
 *
 * @dependencies
 * - github.com/stripe/stripe-go/v81: official Stripe SDK.
 */
package stripeclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/surfspotter/payments-service/internal/domain"
)

// Config configures a Client.
type Config struct {
	SecretKey string
	// APIURL overrides the Stripe API base URL, e.g. for stripe-mock.
	APIURL  string
	Timeout time.Duration
}

// Client calls the Stripe API.
type Client struct {
	api      *client.API
	livemode bool
}

// New creates a Client. Network retries are disabled; the caller decides
// whether a failed provider call is worth repeating.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	backendConfig := func() *stripe.BackendConfig {
		bc := &stripe.BackendConfig{
			HTTPClient:        httpClient,
			MaxNetworkRetries: stripe.Int64(0),
		}
		if cfg.APIURL != "" {
			bc.URL = stripe.String(strings.TrimSuffix(cfg.APIURL, "/"))
		}
		return bc
	}

	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig()),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig()),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig()),
	}

	return &Client{
		api:      client.New(cfg.SecretKey, backends),
		livemode: strings.HasPrefix(cfg.SecretKey, "sk_live_") || strings.HasPrefix(cfg.SecretKey, "rk_live_"),
	}
}

// CreateCheckoutSession creates a hosted checkout session. Correlation
// metadata is copied onto the payment intent as well as the session.
func (c *Client) CreateCheckoutSession(ctx context.Context, req domain.SessionRequest) (*domain.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(req.Mode),
		Currency:   stripe.String(req.Currency),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx

	for _, line := range req.LineItems {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(line.Name),
		}
		if len(line.Metadata) > 0 {
			product.Metadata = line.Metadata
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				UnitAmount:  stripe.Int64(line.UnitAmount),
				ProductData: product,
			},
			Quantity: stripe.Int64(line.Quantity),
		})
	}

	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	intent := &stripe.CheckoutSessionPaymentIntentDataParams{}
	if len(req.Metadata) > 0 {
		intent.Metadata = req.Metadata
	}
	if req.ApplicationFeeAmount != nil {
		intent.ApplicationFeeAmount = stripe.Int64(*req.ApplicationFeeAmount)
	}
	if req.TransferDestination != "" {
		intent.TransferData = &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
			Destination: stripe.String(req.TransferDestination),
		}
	}
	if intent.Metadata != nil || intent.ApplicationFeeAmount != nil || intent.TransferData != nil {
		params.PaymentIntentData = intent
	}

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, wrapError("create checkout session", err)
	}
	return &domain.CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// CreateConnectedAccount creates an Express account with the transfers
// capability requested and returns its id.
func (c *Client) CreateConnectedAccount(ctx context.Context, req domain.ConnectedAccountRequest) (string, error) {
	params := &stripe.AccountParams{
		Type: stripe.String(string(stripe.AccountTypeExpress)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{
				Requested: stripe.Bool(true),
			},
		},
	}
	if req.Country != "" {
		params.Country = stripe.String(req.Country)
	}
	if req.BusinessType != "" {
		params.BusinessType = stripe.String(req.BusinessType)
	}
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	params.AddMetadata(domain.MetadataSellerID, req.SellerID)
	params.Context = ctx

	acct, err := c.api.Accounts.New(params)
	if err != nil {
		return "", wrapError("create connected account", err)
	}
	return acct.ID, nil
}

// CreateOnboardingLink creates a single-use account_onboarding link.
func (c *Client) CreateOnboardingLink(ctx context.Context, req domain.OnboardingLinkRequest) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(req.AccountID),
		RefreshURL: stripe.String(req.RefreshURL),
		ReturnURL:  stripe.String(req.ReturnURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	}
	params.Context = ctx

	link, err := c.api.AccountLinks.New(params)
	if err != nil {
		return "", wrapError("create account link", err)
	}
	return link.URL, nil
}

// RetrievePlatformAccount fetches the account that owns the secret key.
func (c *Client) RetrievePlatformAccount(ctx context.Context) (*domain.PlatformAccount, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	acct, err := c.api.Accounts.GetByID("", params)
	if err != nil {
		return nil, wrapError("retrieve platform account", err)
	}
	return &domain.PlatformAccount{ID: acct.ID, Type: string(acct.Type), Livemode: c.livemode}, nil
}

// Error is a Stripe API failure with the fields operators need to triage it.
type Error struct {
	Op         string
	Type       string
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// ErrorType returns the Stripe error type, e.g. "invalid_request_error".
func (e *Error) ErrorType() string { return e.Type }

// ErrorCode returns the Stripe error code, if any.
func (e *Error) ErrorCode() string { return e.Code }

func wrapError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		msg := se.Msg
		if msg == "" {
			msg = err.Error()
		}
		return &Error{
			Op:         op,
			Type:       string(se.Type),
			Code:       string(se.Code),
			Message:    msg,
			HTTPStatus: se.HTTPStatusCode,
			Err:        err,
		}
	}
	return fmt.Errorf("stripe %s: %w", op, err)
}
