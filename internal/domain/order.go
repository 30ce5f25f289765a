/**
 * @description
 * Domain models for marketplace checkout. An OrderRequest is built per call
 * from the browser cart and is never persisted by this service; the payments
 * provider owns the resulting checkout session until the webhook confirms it.
 */
package domain

import "time"

// Correlation metadata keys attached to every checkout session so that the
// asynchronous completion event can be matched to local records.
const (
	MetadataOrderID    = "order_id"
	MetadataSellerID   = "seller_id"
	MetadataProductID  = "product_id"
	MetadataProductIDs = "product_ids"
	// MetadataLegacyPhotoID is the key older cart builds used for the photo id.
	// It names a storefront photo, not a catalog product.
	MetadataLegacyPhotoID = "photoId"
	// MetadataCheckoutMode is set by the service, never by the cart.
	// Sessions marked CheckoutModeGeneric carry no catalog references.
	MetadataCheckoutMode = "checkout_mode"
)

// Checkout mode markers stored under MetadataCheckoutMode.
const (
	CheckoutModeGeneric     = "generic"
	CheckoutModeMarketplace = "marketplace"
)

// ReservedMetadataKeys are written by the service and dropped from cart
// supplied metadata.
var ReservedMetadataKeys = []string{
	MetadataOrderID,
	MetadataSellerID,
	MetadataProductID,
	MetadataProductIDs,
	MetadataCheckoutMode,
}

// CheckoutModePayment is the single-payment session mode.
const CheckoutModePayment = "payment"

// OrderRequest is the checkout payload sent by the cart.
type OrderRequest struct {
	Items      []OrderItem `json:"items" validate:"required,min=1,dive"`
	SuccessURL string      `json:"successUrl" validate:"required,url"`
	CancelURL  string      `json:"cancelUrl" validate:"required,url"`
	Currency   string      `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
}

// OrderItem is one cart line. Generic lines carry Amount, catalog lines carry
// ProductID.
type OrderItem struct {
	Name      string            `json:"name,omitempty" validate:"omitempty,max=250"`
	Amount    *int64            `json:"amount,omitempty" validate:"omitempty,gt=0"`
	ProductID string            `json:"productId,omitempty"`
	Quantity  *int64            `json:"quantity,omitempty" validate:"omitempty,gte=1"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// QuantityOrDefault returns the requested quantity, defaulting to one.
func (i OrderItem) QuantityOrDefault() int64 {
	if i.Quantity == nil {
		return 1
	}
	return *i.Quantity
}

// LineItem is a priced line ready to be sent to the provider.
type LineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int64
	Metadata   map[string]string
}

// SessionRequest is the provider-agnostic description of a hosted checkout
// session. ApplicationFeeAmount and TransferDestination are set together for
// marketplace orders and are both empty for generic ones.
type SessionRequest struct {
	Mode                 string
	Currency             string
	SuccessURL           string
	CancelURL            string
	LineItems            []LineItem
	Metadata             map[string]string
	ApplicationFeeAmount *int64
	TransferDestination  string
}

// CheckoutSession is what the provider returns for a created session.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// OrderPayment carries the correlation keys extracted from a completed
// checkout session.
type OrderPayment struct {
	OrderID         string    `json:"order_id"`
	SessionID       string    `json:"session_id"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	SellerID        string    `json:"seller_id,omitempty"`
	ProductIDs      []string  `json:"product_ids,omitempty"`
	AmountTotal     int64     `json:"amount_total"`
	Currency        string    `json:"currency"`
	EventID         string    `json:"event_id"`
	PaidAt          time.Time `json:"paid_at"`
}
