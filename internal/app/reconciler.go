package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surfspotter/payments-service/internal/domain"
	"github.com/surfspotter/payments-service/internal/store"
	"github.com/surfspotter/payments-service/pkg/logkey"
)

// Reconciliation results reported in an Outcome.
const (
	ResultHandled    = "handled"
	ResultIgnored    = "ignored"
	ResultDuplicate  = "duplicate"
	ResultDeadLetter = "dead_letter"
)

const (
	// defaultClaimLease bounds how long an in-flight claim blocks redelivery
	// when the process dies before the outcome is known.
	defaultClaimLease = 5 * time.Minute
	// claimCleanupTimeout bounds release and extend calls, which outlive the
	// request context.
	claimCleanupTimeout = 5 * time.Second
)

// Outcome describes what happened to one verified webhook delivery. Every
// outcome is acknowledged to the provider.
type Outcome struct {
	EventID   string
	EventType string
	Result    string
	Reason    string
}

// Reconciler verifies provider webhooks and applies them to local state.
type Reconciler struct {
	verifier  EventVerifier
	sellers   SellerDirectory
	orders    OrderLedger
	dedupe    EventDeduplicator
	publisher EventPublisher
	retention time.Duration
	lease     time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewReconciler creates a reconciler. dedupe and publisher may be nil.
func NewReconciler(verifier EventVerifier, sellers SellerDirectory, orders OrderLedger, dedupe EventDeduplicator, publisher EventPublisher, retention time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	lease := defaultClaimLease
	if retention > 0 && retention < lease {
		lease = retention
	}
	return &Reconciler{
		verifier:  verifier,
		sellers:   sellers,
		orders:    orders,
		dedupe:    dedupe,
		publisher: publisher,
		retention: retention,
		lease:     lease,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleEvent authenticates payload against signatureHeader and dispatches it.
// A SignatureError or ValidationError means the payload was rejected and never
// dispatched. Any other error is transient and the provider should retry.
func (r *Reconciler) HandleEvent(ctx context.Context, payload []byte, signatureHeader string) (*Outcome, error) {
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, &SignatureError{}
	}
	event, err := r.verifier.Verify(payload, signatureHeader)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedEvent) {
			return nil, &ValidationError{Reason: err.Error()}
		}
		return nil, &SignatureError{Err: err}
	}

	outcome := &Outcome{EventID: event.ID, EventType: event.Type}
	log := r.logger.With(slog.String(logkey.EventID, event.ID), slog.String(logkey.EventType, event.Type))

	if !r.claim(ctx, log, event.ID) {
		outcome.Result = ResultDuplicate
		log.Info("duplicate webhook delivery acknowledged")
		return outcome, nil
	}

	handled, err := r.dispatch(ctx, event)
	switch {
	case err == nil && handled:
		outcome.Result = ResultHandled
		log.Info("webhook event reconciled")
	case err == nil:
		outcome.Result = ResultIgnored
		log.Debug("webhook event ignored")
	case isPermanent(err):
		outcome.Result = ResultDeadLetter
		outcome.Reason = err.Error()
		log.Error("webhook event could not be correlated", slog.String(logkey.ERROR, err.Error()))
		r.deadLetter(ctx, log, event, err)
	default:
		log.Error("webhook event processing failed", slog.String(logkey.ERROR, err.Error()))
		r.release(ctx, log, event.ID)
		return nil, err
	}
	r.extend(ctx, log, event.ID)
	return outcome, nil
}

// claim reports whether this delivery should be processed. The claim is held
// for the in-flight lease only; extend widens it to the retention window once
// the outcome is final. Dedupe store failures fail open; dispatch branches are
// idempotent on their own.
func (r *Reconciler) claim(ctx context.Context, log *slog.Logger, eventID string) bool {
	if r.dedupe == nil || eventID == "" {
		return true
	}
	ok, err := r.dedupe.Claim(ctx, eventID, r.lease)
	if err != nil {
		log.Warn("event dedupe claim failed, processing anyway", slog.String(logkey.ERROR, err.Error()))
		return true
	}
	return ok
}

// release drops the claim even when ctx is already cancelled, otherwise the
// provider's retry would be acknowledged as a duplicate.
func (r *Reconciler) release(ctx context.Context, log *slog.Logger, eventID string) {
	if r.dedupe == nil || eventID == "" {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), claimCleanupTimeout)
	defer cancel()
	if err := r.dedupe.Release(cleanupCtx, eventID); err != nil {
		log.Warn("event dedupe release failed", slog.String(logkey.ERROR, err.Error()))
	}
}

func (r *Reconciler) extend(ctx context.Context, log *slog.Logger, eventID string) {
	if r.dedupe == nil || eventID == "" || r.retention <= r.lease {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), claimCleanupTimeout)
	defer cancel()
	if err := r.dedupe.Extend(cleanupCtx, eventID, r.retention); err != nil {
		log.Warn("event dedupe extend failed", slog.String(logkey.ERROR, err.Error()))
	}
}

func (r *Reconciler) dispatch(ctx context.Context, event domain.ProviderEvent) (bool, error) {
	switch event.Type {
	case domain.EventCheckoutSessionCompleted, domain.EventCheckoutAsyncPaymentSuccess:
		return r.handleSessionCompleted(ctx, event)
	case domain.EventAccountUpdated:
		return true, r.handleAccountUpdated(ctx, event)
	default:
		return false, nil
	}
}

type checkoutSessionObject struct {
	ID            string            `json:"id"`
	Metadata      map[string]string `json:"metadata"`
	PaymentIntent json.RawMessage   `json:"payment_intent"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
}

func (r *Reconciler) handleSessionCompleted(ctx context.Context, event domain.ProviderEvent) (bool, error) {
	var session checkoutSessionObject
	if err := json.Unmarshal(event.Object, &session); err != nil {
		return false, &CorrelationError{EventID: event.ID, Reason: "undecodable checkout session: " + err.Error()}
	}
	if event.Type == domain.EventCheckoutSessionCompleted && session.PaymentStatus == domain.PaymentStatusUnpaid {
		// Settled later by checkout.session.async_payment_succeeded.
		return false, nil
	}

	orderID := strings.TrimSpace(session.Metadata[domain.MetadataOrderID])
	if orderID == "" {
		return false, &CorrelationError{EventID: event.ID, Reason: "checkout session " + session.ID + " carries no order_id metadata"}
	}

	payment := domain.OrderPayment{
		OrderID:         orderID,
		SessionID:       session.ID,
		PaymentIntentID: objectID(session.PaymentIntent),
		AmountTotal:     session.AmountTotal,
		Currency:        session.Currency,
		EventID:         event.ID,
		PaidAt:          r.now(),
	}
	if session.Metadata[domain.MetadataCheckoutMode] != domain.CheckoutModeGeneric {
		payment.SellerID = session.Metadata[domain.MetadataSellerID]
		payment.ProductIDs = productIDs(session.Metadata)
	}
	if err := r.orders.MarkOrderPaid(ctx, payment); err != nil {
		return false, fmt.Errorf("mark order %s paid: %w", orderID, err)
	}

	if err := r.publisher.Publish(ctx, EventsExchange, RoutingKeyOrderPaid, domain.OrderPaidEvent{
		OrderID:         payment.OrderID,
		SessionID:       payment.SessionID,
		PaymentIntentID: payment.PaymentIntentID,
		SellerID:        payment.SellerID,
		ProductIDs:      payment.ProductIDs,
		AmountTotal:     payment.AmountTotal,
		Currency:        payment.Currency,
		Metadata:        session.Metadata,
		OccurredAt:      payment.PaidAt,
	}); err != nil {
		return false, fmt.Errorf("publish order.paid for %s: %w", orderID, err)
	}
	return true, nil
}

type accountObject struct {
	ID               string `json:"id"`
	ChargesEnabled   *bool  `json:"charges_enabled"`
	PayoutsEnabled   *bool  `json:"payouts_enabled"`
	DetailsSubmitted *bool  `json:"details_submitted"`
	Capabilities     *struct {
		Transfers *string `json:"transfers"`
	} `json:"capabilities"`
}

// transfersActive is nil when the snapshot does not mention the capability.
func (a accountObject) transfersActive() *bool {
	if a.Capabilities == nil || a.Capabilities.Transfers == nil {
		return nil
	}
	active := *a.Capabilities.Transfers == "active"
	return &active
}

func (r *Reconciler) handleAccountUpdated(ctx context.Context, event domain.ProviderEvent) error {
	var account accountObject
	if err := json.Unmarshal(event.Object, &account); err != nil {
		return &CorrelationError{EventID: event.ID, Reason: "undecodable account: " + err.Error()}
	}
	if account.ID == "" {
		return &CorrelationError{EventID: event.ID, Reason: "account payload carries no id"}
	}

	caps := domain.AccountCapabilities{
		AccountID:        account.ID,
		ChargesEnabled:   account.ChargesEnabled,
		PayoutsEnabled:   account.PayoutsEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
		TransfersActive:  account.transfersActive(),
	}
	if err := r.sellers.UpdateAccountCapabilities(ctx, caps); err != nil {
		return fmt.Errorf("update capabilities for %s: %w", account.ID, err)
	}

	if err := r.publisher.Publish(ctx, EventsExchange, RoutingKeySellerUpdated, domain.SellerAccountUpdatedEvent{
		AccountID:        caps.AccountID,
		ChargesEnabled:   caps.ChargesEnabled,
		PayoutsEnabled:   caps.PayoutsEnabled,
		DetailsSubmitted: caps.DetailsSubmitted,
		TransfersActive:  caps.TransfersActive,
		OccurredAt:       r.now(),
	}); err != nil {
		return fmt.Errorf("publish seller.account_updated for %s: %w", account.ID, err)
	}
	return nil
}

func (r *Reconciler) deadLetter(ctx context.Context, log *slog.Logger, event domain.ProviderEvent, cause error) {
	err := r.publisher.Publish(ctx, EventsExchange, RoutingKeyDeadLetter, domain.DeadLetterEvent{
		EventID:    event.ID,
		EventType:  event.Type,
		Reason:     cause.Error(),
		Object:     event.Object,
		OccurredAt: r.now(),
	})
	if err != nil {
		log.Error("dead letter publish failed", slog.String(logkey.ERROR, err.Error()))
	}
}

// isPermanent reports errors a redelivery cannot fix.
func isPermanent(err error) bool {
	var corr *CorrelationError
	return errors.As(err, &corr) ||
		errors.Is(err, store.ErrSellerNotFound) ||
		errors.Is(err, store.ErrProductNotFound) ||
		errors.Is(err, store.ErrOrderNotFound)
}

// objectID reads an expandable reference, which is either an id string or an
// object carrying an id.
func objectID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}

// productIDs reads catalog references. Storefront keys such as photoId are
// not catalog ids and are left in the event metadata instead.
func productIDs(metadata map[string]string) []string {
	if joined := metadata[domain.MetadataProductIDs]; joined != "" {
		var ids []string
		for _, id := range strings.Split(joined, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		return ids
	}
	if id := strings.TrimSpace(metadata[domain.MetadataProductID]); id != "" {
		return []string{id}
	}
	return nil
}
