package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/surfspotter/payments-service/internal/domain"
	"github.com/surfspotter/payments-service/internal/store"
	"github.com/surfspotter/payments-service/pkg/idempotency"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type providerStub struct {
	mu sync.Mutex

	sessionReqs []domain.SessionRequest
	session     *domain.CheckoutSession
	sessionErr  error

	accountReqs []domain.ConnectedAccountRequest
	accountID   string
	accountErr  error

	linkReqs []domain.OnboardingLinkRequest
	linkURL  string
	linkErr  error

	platform    *domain.PlatformAccount
	platformErr error
}

func (p *providerStub) CreateCheckoutSession(ctx context.Context, req domain.SessionRequest) (*domain.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionReqs = append(p.sessionReqs, req)
	if p.sessionErr != nil {
		return nil, p.sessionErr
	}
	return p.session, nil
}

func (p *providerStub) CreateConnectedAccount(ctx context.Context, req domain.ConnectedAccountRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accountReqs = append(p.accountReqs, req)
	return p.accountID, p.accountErr
}

func (p *providerStub) CreateOnboardingLink(ctx context.Context, req domain.OnboardingLinkRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.linkReqs = append(p.linkReqs, req)
	return p.linkURL, p.linkErr
}

func (p *providerStub) RetrievePlatformAccount(ctx context.Context) (*domain.PlatformAccount, error) {
	return p.platform, p.platformErr
}

// recordingDirectory wraps the memory directory and records capability and
// order writes.
type recordingDirectory struct {
	*store.MemoryDirectory

	mu       sync.Mutex
	caps     []domain.AccountCapabilities
	payments []domain.OrderPayment
	failNext error
	// cancelOnPay cancels the caller's context during the next MarkOrderPaid,
	// the way a client disconnect aborts an in-flight query.
	cancelOnPay context.CancelFunc
}

func newRecordingDirectory() *recordingDirectory {
	return &recordingDirectory{MemoryDirectory: store.NewMemoryDirectory()}
}

func (d *recordingDirectory) UpdateAccountCapabilities(ctx context.Context, caps domain.AccountCapabilities) error {
	d.mu.Lock()
	d.caps = append(d.caps, caps)
	d.mu.Unlock()
	return d.MemoryDirectory.UpdateAccountCapabilities(ctx, caps)
}

func (d *recordingDirectory) MarkOrderPaid(ctx context.Context, p domain.OrderPayment) error {
	d.mu.Lock()
	if err := d.failNext; err != nil {
		d.failNext = nil
		d.mu.Unlock()
		return err
	}
	if cancel := d.cancelOnPay; cancel != nil {
		d.cancelOnPay = nil
		d.mu.Unlock()
		cancel()
		return ctx.Err()
	}
	d.payments = append(d.payments, p)
	d.mu.Unlock()
	return d.MemoryDirectory.MarkOrderPaid(ctx, p)
}

type publishedEvent struct {
	Exchange   string
	RoutingKey string
	Body       interface{}
}

type publisherStub struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{Exchange: exchange, RoutingKey: routingKey, Body: body})
	return nil
}

func (p *publisherStub) routingKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.events))
	for _, e := range p.events {
		keys = append(keys, e.RoutingKey)
	}
	return keys
}

type failingDedupe struct{}

func (failingDedupe) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return false, errors.New("redis: connection refused")
}
func (failingDedupe) Release(ctx context.Context, key string) error { return nil }
func (failingDedupe) Extend(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}
func (failingDedupe) Purge(ctx context.Context, now time.Time) (int64, error) {
	return 0, errors.New("redis: connection refused")
}

// trackingDedupe fails calls made on a done context and records the TTLs it
// was asked for.
type trackingDedupe struct {
	*idempotency.MemoryStore

	mu         sync.Mutex
	claimTTLs  []time.Duration
	extendTTLs []time.Duration
}

func newTrackingDedupe() *trackingDedupe {
	return &trackingDedupe{MemoryStore: idempotency.NewMemoryStore()}
}

func (d *trackingDedupe) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.Lock()
	d.claimTTLs = append(d.claimTTLs, ttl)
	d.mu.Unlock()
	return d.MemoryStore.Claim(ctx, key, ttl)
}

func (d *trackingDedupe) Release(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.MemoryStore.Release(ctx, key)
}

func (d *trackingDedupe) Extend(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	d.extendTTLs = append(d.extendTTLs, ttl)
	d.mu.Unlock()
	return d.MemoryStore.Extend(ctx, key, ttl)
}

func int64Ptr(v int64) *int64 { return &v }

func boolPtr(v bool) *bool { return &v }
