package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/surfspotter/payments-service/internal/domain"
	"github.com/surfspotter/payments-service/internal/store"
	"github.com/surfspotter/payments-service/pkg/logkey"
)

// OnboardingConfig holds connected-account settings.
type OnboardingConfig struct {
	SiteURL       string
	Country       string
	BusinessType  string
	UnknownSeller UnknownSellerPolicy
}

// OnboardingService gives sellers a connected account and a setup link.
type OnboardingService struct {
	provider PaymentProvider
	sellers  SellerDirectory
	cfg      OnboardingConfig
	logger   *slog.Logger
}

// NewOnboardingService creates a new onboarding service.
func NewOnboardingService(provider PaymentProvider, sellers SellerDirectory, cfg OnboardingConfig, logger *slog.Logger) *OnboardingService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UnknownSeller == "" {
		cfg.UnknownSeller = PolicyRegister
	}
	cfg.SiteURL = strings.TrimSuffix(cfg.SiteURL, "/")
	return &OnboardingService{provider: provider, sellers: sellers, cfg: cfg, logger: logger}
}

// Onboard ensures the seller has a connected account and returns a fresh
// onboarding URL for it.
func (s *OnboardingService) Onboard(ctx context.Context, sellerID string) (string, error) {
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return "", &ValidationError{Reason: "missing seller id"}
	}

	seller, err := s.sellers.GetSeller(ctx, sellerID)
	switch {
	case errors.Is(err, store.ErrSellerNotFound):
		if s.cfg.UnknownSeller == PolicyReject {
			return "", &NotFoundError{Entity: "seller", ID: sellerID}
		}
		seller, err = s.sellers.UpsertSeller(ctx, domain.Seller{ID: sellerID})
		if err != nil {
			return "", fmt.Errorf("register seller %s: %w", sellerID, err)
		}
		s.logger.Info("registered placeholder seller", slog.String(logkey.SellerID, sellerID))
	case err != nil:
		return "", fmt.Errorf("resolve seller %s: %w", sellerID, err)
	}

	if !seller.Onboarded() {
		accountID, err := s.provider.CreateConnectedAccount(ctx, domain.ConnectedAccountRequest{
			SellerID:     seller.ID,
			Email:        seller.Email,
			Country:      s.cfg.Country,
			BusinessType: s.cfg.BusinessType,
		})
		if err != nil {
			return "", &ProviderError{Op: "create connected account", Err: err}
		}

		seller, err = s.sellers.UpsertSeller(ctx, domain.Seller{ID: seller.ID, PaymentAccountID: accountID})
		if err != nil {
			return "", fmt.Errorf("save account %s for seller %s: %w", accountID, sellerID, err)
		}
		s.logger.Info("connected account created",
			slog.String(logkey.SellerID, sellerID),
			slog.String(logkey.AccountID, accountID))
	}

	return s.link(ctx, seller)
}

// RequestLink issues a new onboarding link for a seller that already has a
// connected account. It is safe to call repeatedly.
func (s *OnboardingService) RequestLink(ctx context.Context, sellerID string) (string, error) {
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return "", &ValidationError{Reason: "missing seller id"}
	}
	seller, err := s.sellers.GetSeller(ctx, sellerID)
	if err != nil {
		if errors.Is(err, store.ErrSellerNotFound) {
			return "", &NotFoundError{Entity: "seller", ID: sellerID}
		}
		return "", fmt.Errorf("resolve seller %s: %w", sellerID, err)
	}
	if !seller.Onboarded() {
		return "", &PreconditionError{Reason: fmt.Sprintf("seller %s has no connected account yet", sellerID)}
	}
	return s.link(ctx, seller)
}

func (s *OnboardingService) link(ctx context.Context, seller *domain.Seller) (string, error) {
	url, err := s.provider.CreateOnboardingLink(ctx, domain.OnboardingLinkRequest{
		AccountID:  seller.PaymentAccountID,
		RefreshURL: s.cfg.SiteURL + "/onboarding/refresh",
		ReturnURL:  s.cfg.SiteURL + "/onboarding/return",
	})
	if err != nil {
		s.logger.Error("onboarding link creation failed",
			slog.String(logkey.SellerID, seller.ID),
			slog.String(logkey.AccountID, seller.PaymentAccountID),
			slog.String(logkey.ERROR, err.Error()))
		return "", &ProviderError{Op: "create onboarding link", Err: err}
	}
	return url, nil
}
