package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/surfspotter/payments-service/internal/domain"
	"github.com/surfspotter/payments-service/internal/store"
	"github.com/surfspotter/payments-service/pkg/logkey"
)

// Strategy selects how a cart is priced.
type Strategy string

const (
	// StrategyGeneric prices lines from the request amounts with no split.
	StrategyGeneric Strategy = "generic"
	// StrategyMarketplace prices lines from the catalog and splits proceeds
	// between the platform and the product's seller.
	StrategyMarketplace Strategy = "marketplace"
)

// StrategyFor picks the strategy for a request: carts referencing catalog
// products use the marketplace strategy, carts of ad-hoc lines the generic
// one. Mixing both in one cart is rejected.
func StrategyFor(req domain.OrderRequest) (Strategy, error) {
	withProduct := 0
	for _, item := range req.Items {
		if strings.TrimSpace(item.ProductID) != "" {
			withProduct++
		}
	}
	switch {
	case withProduct == 0:
		return StrategyGeneric, nil
	case withProduct == len(req.Items):
		return StrategyMarketplace, nil
	default:
		return "", &ValidationError{Reason: "items must either all reference a productId or none"}
	}
}

// CheckoutConfig holds pricing settings.
type CheckoutConfig struct {
	DefaultCurrency        string
	PlatformFeeBasisPoints int
}

// CheckoutService creates hosted checkout sessions.
type CheckoutService struct {
	provider PaymentProvider
	catalog  Catalog
	sellers  SellerDirectory
	cfg      CheckoutConfig
	validate *validator.Validate
	logger   *slog.Logger
	newID    func() string
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(provider PaymentProvider, catalog Catalog, sellers SellerDirectory, cfg CheckoutConfig, logger *slog.Logger) *CheckoutService {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.DefaultCurrency = strings.ToLower(cfg.DefaultCurrency)
	return &CheckoutService{
		provider: provider,
		catalog:  catalog,
		sellers:  sellers,
		cfg:      cfg,
		validate: newValidator(),
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// CreateSession validates the order, prices it and requests exactly one
// checkout session from the provider.
func (s *CheckoutService) CreateSession(ctx context.Context, req domain.OrderRequest) (*domain.CheckoutSession, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, describeValidation(err)
	}

	strategy, err := StrategyFor(req)
	if err != nil {
		return nil, err
	}

	var sessionReq domain.SessionRequest
	switch strategy {
	case StrategyMarketplace:
		sessionReq, err = s.marketplaceSession(ctx, req)
	default:
		sessionReq, err = s.genericSession(req)
	}
	if err != nil {
		return nil, err
	}

	session, err := s.provider.CreateCheckoutSession(ctx, sessionReq)
	if err != nil {
		s.logger.Error("checkout session creation failed",
			slog.String(logkey.OrderID, sessionReq.Metadata[domain.MetadataOrderID]),
			slog.String("strategy", string(strategy)),
			slog.String(logkey.ERROR, err.Error()))
		return nil, &ProviderError{Op: "create checkout session", Err: err}
	}

	s.logger.Info("checkout session created",
		slog.String(logkey.SessionID, session.ID),
		slog.String(logkey.OrderID, sessionReq.Metadata[domain.MetadataOrderID]),
		slog.String("strategy", string(strategy)),
		slog.Int("line_items", len(sessionReq.LineItems)))
	return session, nil
}

func (s *CheckoutService) genericSession(req domain.OrderRequest) (domain.SessionRequest, error) {
	lines := make([]domain.LineItem, 0, len(req.Items))
	amounts := make([]lineAmount, 0, len(req.Items))
	for i, item := range req.Items {
		if strings.TrimSpace(item.Name) == "" {
			return domain.SessionRequest{}, validationf("items[%d].name is required", i)
		}
		if item.Amount == nil {
			return domain.SessionRequest{}, validationf("items[%d].amount is required", i)
		}
		line := domain.LineItem{
			Name:       item.Name,
			UnitAmount: *item.Amount,
			Quantity:   item.QuantityOrDefault(),
			Metadata:   maps.Clone(item.Metadata),
		}
		lines = append(lines, line)
		amounts = append(amounts, lineAmount{unit: line.UnitAmount, quantity: line.Quantity})
	}
	if _, err := grossAmount(amounts); err != nil {
		return domain.SessionRequest{}, &ValidationError{Reason: err.Error()}
	}

	metadata := make(map[string]string, len(req.Items[0].Metadata)+2)
	maps.Copy(metadata, req.Items[0].Metadata)
	for _, key := range domain.ReservedMetadataKeys {
		delete(metadata, key)
	}
	metadata[domain.MetadataOrderID] = s.newID()
	metadata[domain.MetadataCheckoutMode] = domain.CheckoutModeGeneric

	return domain.SessionRequest{
		Mode:       domain.CheckoutModePayment,
		Currency:   s.currency(req.Currency, ""),
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		LineItems:  lines,
		Metadata:   metadata,
	}, nil
}

func (s *CheckoutService) marketplaceSession(ctx context.Context, req domain.OrderRequest) (domain.SessionRequest, error) {
	lines := make([]domain.LineItem, 0, len(req.Items))
	amounts := make([]lineAmount, 0, len(req.Items))
	productIDs := make([]string, 0, len(req.Items))
	var sellerID, productCurrency string

	for i, item := range req.Items {
		productID := strings.TrimSpace(item.ProductID)
		product, err := s.catalog.GetProduct(ctx, productID)
		if err != nil {
			if errors.Is(err, store.ErrProductNotFound) {
				return domain.SessionRequest{}, &NotFoundError{Entity: "product", ID: productID}
			}
			return domain.SessionRequest{}, fmt.Errorf("resolve product %s: %w", productID, err)
		}

		if sellerID == "" {
			sellerID = product.SellerID
		} else if product.SellerID != sellerID {
			return domain.SessionRequest{}, validationf("items[%d]: all products in one checkout must belong to the same seller", i)
		}
		currency := strings.ToLower(product.Currency)
		if productCurrency == "" {
			productCurrency = currency
		} else if currency != productCurrency {
			return domain.SessionRequest{}, validationf("items[%d]: all products in one checkout must share a currency", i)
		}

		unit, err := ToMinorUnits(product.Price)
		if err != nil || unit <= 0 {
			return domain.SessionRequest{}, validationf("product %s has no payable price", productID)
		}

		name := item.Name
		if strings.TrimSpace(name) == "" {
			name = product.Title
		}
		metadata := maps.Clone(item.Metadata)
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata[domain.MetadataProductID] = productID

		line := domain.LineItem{
			Name:       name,
			UnitAmount: unit,
			Quantity:   item.QuantityOrDefault(),
			Metadata:   metadata,
		}
		lines = append(lines, line)
		amounts = append(amounts, lineAmount{unit: unit, quantity: line.Quantity})
		productIDs = append(productIDs, productID)
	}

	currency := s.currency(req.Currency, productCurrency)
	if productCurrency != "" && currency != productCurrency {
		return domain.SessionRequest{}, validationf("currency %q does not match the catalog currency %q", currency, productCurrency)
	}

	seller, err := s.payableSeller(ctx, sellerID)
	if err != nil {
		return domain.SessionRequest{}, err
	}

	gross, err := grossAmount(amounts)
	if err != nil {
		return domain.SessionRequest{}, &ValidationError{Reason: err.Error()}
	}

	sessionReq := domain.SessionRequest{
		Mode:       domain.CheckoutModePayment,
		Currency:   currency,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		LineItems:  lines,
		Metadata: map[string]string{
			domain.MetadataOrderID:      s.newID(),
			domain.MetadataSellerID:     seller.ID,
			domain.MetadataProductID:    productIDs[0],
			domain.MetadataProductIDs:   strings.Join(productIDs, ","),
			domain.MetadataCheckoutMode: domain.CheckoutModeMarketplace,
		},
		TransferDestination: seller.PaymentAccountID,
	}
	if fee := ApplicationFee(gross, s.cfg.PlatformFeeBasisPoints); fee > 0 {
		sessionReq.ApplicationFeeAmount = &fee
	}
	return sessionReq, nil
}

// payableSeller returns the seller if it can receive a transfer right now.
func (s *CheckoutService) payableSeller(ctx context.Context, sellerID string) (*domain.Seller, error) {
	if sellerID == "" {
		return nil, &PreconditionError{Reason: "product has no seller"}
	}
	seller, err := s.sellers.GetSeller(ctx, sellerID)
	if err != nil {
		if errors.Is(err, store.ErrSellerNotFound) {
			return nil, &NotFoundError{Entity: "seller", ID: sellerID}
		}
		return nil, fmt.Errorf("resolve seller %s: %w", sellerID, err)
	}
	if !seller.Onboarded() {
		return nil, &PreconditionError{Reason: fmt.Sprintf("seller %s is not onboarded for payouts", sellerID)}
	}
	if !seller.CanReceiveTransfers() {
		return nil, &PreconditionError{Reason: fmt.Sprintf("seller %s has not completed onboarding", sellerID)}
	}
	return seller, nil
}

func (s *CheckoutService) currency(requested, fallback string) string {
	if c := strings.ToLower(strings.TrimSpace(requested)); c != "" {
		return c
	}
	if fallback != "" {
		return fallback
	}
	return s.cfg.DefaultCurrency
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// describeValidation turns validator output into a ValidationError naming the
// first offending field.
func describeValidation(err error) error {
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) || len(vErrs) == 0 {
		return &ValidationError{Reason: err.Error()}
	}
	vErr := vErrs[0]
	field := strings.TrimPrefix(vErr.Namespace(), "OrderRequest.")
	switch vErr.Tag() {
	case "required":
		return validationf("%s is required", field)
	case "min":
		return validationf("%s must contain at least %s entry", field, vErr.Param())
	case "gt":
		return validationf("%s must be greater than %s", field, vErr.Param())
	case "gte":
		return validationf("%s must be at least %s", field, vErr.Param())
	case "url":
		return validationf("%s must be an absolute URL", field)
	default:
		return validationf("%s is invalid", field)
	}
}
