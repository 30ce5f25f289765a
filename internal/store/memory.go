package store

import (
	"context"
	"sync"
	"time"

	"github.com/surfspotter/payments-service/internal/domain"
)

// MemoryDirectory keeps sellers, products and paid orders in process memory.
type MemoryDirectory struct {
	mu       sync.RWMutex
	sellers  map[string]domain.Seller
	products map[string]domain.Product
	orders   map[string]domain.OrderPayment
	now      func() time.Time
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		sellers:  make(map[string]domain.Seller),
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.OrderPayment),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetSeller returns the seller with the given id.
func (d *MemoryDirectory) GetSeller(ctx context.Context, id string) (*domain.Seller, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seller, ok := d.sellers[id]
	if !ok {
		return nil, ErrSellerNotFound
	}
	return &seller, nil
}

// UpsertSeller merges the non-empty profile fields of s into the stored
// record, creating it when absent. Capability flags are never written here.
func (d *MemoryDirectory) UpsertSeller(ctx context.Context, s domain.Seller) (*domain.Seller, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	current, ok := d.sellers[s.ID]
	if !ok {
		current = domain.Seller{ID: s.ID}
	}
	if s.Name != "" {
		current.Name = s.Name
	}
	if s.Email != "" {
		current.Email = s.Email
	}
	if s.PaymentAccountID != "" {
		current.PaymentAccountID = s.PaymentAccountID
	}
	current.UpdatedAt = d.now()
	d.sellers[s.ID] = current

	return &current, nil
}

// UpdateAccountCapabilities overwrites only the flags present in caps on the
// seller owning caps.AccountID.
func (d *MemoryDirectory) UpdateAccountCapabilities(ctx context.Context, caps domain.AccountCapabilities) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, seller := range d.sellers {
		if seller.PaymentAccountID != caps.AccountID {
			continue
		}
		if caps.ChargesEnabled != nil {
			seller.ChargesEnabled = *caps.ChargesEnabled
		}
		if caps.PayoutsEnabled != nil {
			seller.PayoutsEnabled = *caps.PayoutsEnabled
		}
		if caps.DetailsSubmitted != nil {
			seller.DetailsSubmitted = *caps.DetailsSubmitted
		}
		if caps.TransfersActive != nil {
			seller.TransfersActive = *caps.TransfersActive
		}
		seller.UpdatedAt = d.now()
		d.sellers[id] = seller
		return nil
	}
	return ErrSellerNotFound
}

// UpsertProduct stores a catalog product.
func (d *MemoryDirectory) UpsertProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.products[p.ID] = p
	return &p, nil
}

// GetProduct returns the catalog product with the given id.
func (d *MemoryDirectory) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	product, ok := d.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &product, nil
}

// MarkOrderPaid records the payment once per order id and once per checkout
// session. Every referenced product and seller must exist.
func (d *MemoryDirectory) MarkOrderPaid(ctx context.Context, payment domain.OrderPayment) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, productID := range payment.ProductIDs {
		if _, ok := d.products[productID]; !ok {
			return ErrProductNotFound
		}
	}
	if payment.SellerID != "" {
		if _, ok := d.sellers[payment.SellerID]; !ok {
			return ErrSellerNotFound
		}
	}

	if _, exists := d.orders[payment.OrderID]; exists {
		return nil
	}
	for _, order := range d.orders {
		if payment.SessionID != "" && order.SessionID == payment.SessionID {
			return nil
		}
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = d.now()
	}
	d.orders[payment.OrderID] = payment
	return nil
}

// GetOrder returns a paid order.
func (d *MemoryDirectory) GetOrder(ctx context.Context, orderID string) (*domain.OrderPayment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	order, ok := d.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &order, nil
}
