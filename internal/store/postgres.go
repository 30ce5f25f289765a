package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/surfspotter/payments-service/internal/domain"
)

// PostgresDirectory is the Postgres-backed seller directory, catalog and
// order ledger.
type PostgresDirectory struct {
	db *pgxpool.Pool
}

// NewPostgresDirectory creates a new directory.
func NewPostgresDirectory(db *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

const sellerColumns = `id, COALESCE(name, ''), COALESCE(email, ''), COALESCE(payment_account_id, ''),
	charges_enabled, payouts_enabled, details_submitted, transfers_active, updated_at`

func scanSeller(row pgx.Row) (*domain.Seller, error) {
	var s domain.Seller
	if err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Email,
		&s.PaymentAccountID,
		&s.ChargesEnabled,
		&s.PayoutsEnabled,
		&s.DetailsSubmitted,
		&s.TransfersActive,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSeller returns the seller with the given id.
func (r *PostgresDirectory) GetSeller(ctx context.Context, id string) (*domain.Seller, error) {
	seller, err := scanSeller(r.db.QueryRow(ctx, "SELECT "+sellerColumns+" FROM sellers WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSellerNotFound
		}
		return nil, err
	}
	return seller, nil
}

// UpsertSeller inserts the seller or merges its non-empty profile fields
// into the existing row. Capability columns are left untouched.
func (r *PostgresDirectory) UpsertSeller(ctx context.Context, s domain.Seller) (*domain.Seller, error) {
	query := `
		INSERT INTO sellers (id, name, email, payment_account_id)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (id) DO UPDATE SET
			name               = COALESCE(EXCLUDED.name, sellers.name),
			email              = COALESCE(EXCLUDED.email, sellers.email),
			payment_account_id = COALESCE(EXCLUDED.payment_account_id, sellers.payment_account_id),
			updated_at         = NOW()
		RETURNING ` + sellerColumns
	seller, err := scanSeller(r.db.QueryRow(ctx, query, s.ID, s.Name, s.Email, s.PaymentAccountID))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert seller %s: %w", s.ID, err)
	}
	return seller, nil
}

// UpdateAccountCapabilities merges the flags present in caps into the seller
// that owns the payment account.
func (r *PostgresDirectory) UpdateAccountCapabilities(ctx context.Context, caps domain.AccountCapabilities) error {
	query := `
		UPDATE sellers SET
			charges_enabled   = COALESCE($2, charges_enabled),
			payouts_enabled   = COALESCE($3, payouts_enabled),
			details_submitted = COALESCE($4, details_submitted),
			transfers_active  = COALESCE($5, transfers_active),
			updated_at        = NOW()
		WHERE payment_account_id = $1
	`
	tag, err := r.db.Exec(ctx, query, caps.AccountID, caps.ChargesEnabled, caps.PayoutsEnabled, caps.DetailsSubmitted, caps.TransfersActive)
	if err != nil {
		return fmt.Errorf("failed to update capabilities for %s: %w", caps.AccountID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSellerNotFound
	}
	return nil
}

// UpsertProduct stores a catalog product.
func (r *PostgresDirectory) UpsertProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	query := `
		INSERT INTO products (id, title, price, currency, seller_id, download_url)
		VALUES ($1, $2, $3::NUMERIC, $4, $5, NULLIF($6, ''))
		ON CONFLICT (id) DO UPDATE SET
			title        = EXCLUDED.title,
			price        = EXCLUDED.price,
			currency     = EXCLUDED.currency,
			seller_id    = EXCLUDED.seller_id,
			download_url = EXCLUDED.download_url
	`
	if _, err := r.db.Exec(ctx, query, p.ID, p.Title, p.Price.String(), p.Currency, p.SellerID, p.DownloadURL); err != nil {
		return nil, fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
	}
	return &p, nil
}

// GetProduct returns the catalog product with the given id.
func (r *PostgresDirectory) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, title, price::TEXT, currency, seller_id, COALESCE(download_url, '')
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Title, &price, &p.Currency, &p.SellerID, &p.DownloadURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	p.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q for product %s: %w", price, id, err)
	}
	return &p, nil
}

// MarkOrderPaid records the payment once per order id and once per checkout
// session; a conflict on either key leaves the first record in place.
func (r *PostgresDirectory) MarkOrderPaid(ctx context.Context, payment domain.OrderPayment) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if len(payment.ProductIDs) > 0 {
			var found int
			if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM products WHERE id = ANY($1)", payment.ProductIDs).Scan(&found); err != nil {
				return fmt.Errorf("failed to resolve products: %w", err)
			}
			if found != len(uniqueStrings(payment.ProductIDs)) {
				return ErrProductNotFound
			}
		}

		var sellerID *string
		if payment.SellerID != "" {
			var exists bool
			if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM sellers WHERE id = $1)", payment.SellerID).Scan(&exists); err != nil {
				return fmt.Errorf("failed to resolve seller: %w", err)
			}
			if !exists {
				return ErrSellerNotFound
			}
			sellerID = &payment.SellerID
		}

		paidAt := payment.PaidAt
		if paidAt.IsZero() {
			paidAt = time.Now().UTC()
		}
		productIDs := payment.ProductIDs
		if productIDs == nil {
			productIDs = []string{}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO paid_orders (
				order_id, session_id, payment_intent_id, seller_id, product_ids,
				amount_total, currency, event_id, paid_at
			)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)
			ON CONFLICT DO NOTHING
		`, payment.OrderID, payment.SessionID, payment.PaymentIntentID, sellerID, productIDs,
			payment.AmountTotal, payment.Currency, payment.EventID, paidAt)
		if err != nil {
			return fmt.Errorf("failed to record paid order %s: %w", payment.OrderID, err)
		}
		return nil
	})
}

// GetOrder returns a paid order.
func (r *PostgresDirectory) GetOrder(ctx context.Context, orderID string) (*domain.OrderPayment, error) {
	var o domain.OrderPayment
	err := r.db.QueryRow(ctx, `
		SELECT order_id, session_id, COALESCE(payment_intent_id, ''), COALESCE(seller_id, ''),
		       product_ids, amount_total, currency, event_id, paid_at
		FROM paid_orders
		WHERE order_id = $1
	`, orderID).Scan(&o.OrderID, &o.SessionID, &o.PaymentIntentID, &o.SellerID,
		&o.ProductIDs, &o.AmountTotal, &o.Currency, &o.EventID, &o.PaidAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
