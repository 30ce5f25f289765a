package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/surfspotter/payments-service/internal/domain"
)

// DemoSeller and DemoProduct are the records the demo storefront links to.
var (
	DemoSeller = domain.Seller{ID: "photog_1", Name: "Alice Example"}

	DemoProduct = domain.Product{
		ID:          "photo_1",
		Title:       "Sunset Over Zürich",
		Price:       decimal.NewFromInt(25),
		Currency:    "chf",
		SellerID:    "photog_1",
		DownloadURL: "https://example.com/download/photo_1.zip",
	}
)

type seedTarget interface {
	UpsertSeller(ctx context.Context, s domain.Seller) (*domain.Seller, error)
	UpsertProduct(ctx context.Context, p domain.Product) (*domain.Product, error)
}

// SeedDemoData loads the demo seller and product.
func SeedDemoData(ctx context.Context, target seedTarget) error {
	if _, err := target.UpsertSeller(ctx, DemoSeller); err != nil {
		return fmt.Errorf("seed seller %s: %w", DemoSeller.ID, err)
	}
	if _, err := target.UpsertProduct(ctx, DemoProduct); err != nil {
		return fmt.Errorf("seed product %s: %w", DemoProduct.ID, err)
	}
	return nil
}
