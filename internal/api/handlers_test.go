package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"
	"github.com/surfspotter/payments-service/internal/app"
	"github.com/surfspotter/payments-service/internal/domain"
	"github.com/surfspotter/payments-service/internal/store"
	"github.com/surfspotter/payments-service/pkg/idempotency"
	"github.com/surfspotter/payments-service/pkg/metrics"
	"github.com/surfspotter/payments-service/pkg/stripeclient"
)

const testWebhookSecret = "whsec_api_test"

type fakeProvider struct {
	mu           sync.Mutex
	sessionCalls int
	accountCalls int
	linkCalls    int
	lastSession  domain.SessionRequest
	sessionErr   error
}

func (p *fakeProvider) CreateCheckoutSession(ctx context.Context, req domain.SessionRequest) (*domain.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionCalls++
	p.lastSession = req
	if p.sessionErr != nil {
		return nil, p.sessionErr
	}
	return &domain.CheckoutSession{ID: "sess_1", URL: "https://pay/sess_1"}, nil
}

func (p *fakeProvider) CreateConnectedAccount(ctx context.Context, req domain.ConnectedAccountRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accountCalls++
	return "acct_9", nil
}

func (p *fakeProvider) CreateOnboardingLink(ctx context.Context, req domain.OnboardingLinkRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.linkCalls++
	return "https://onboard/" + req.AccountID, nil
}

func (p *fakeProvider) RetrievePlatformAccount(ctx context.Context) (*domain.PlatformAccount, error) {
	return &domain.PlatformAccount{ID: "acct_platform", Type: "standard"}, nil
}

type testServer struct {
	router   http.Handler
	provider *fakeProvider
	dir      *store.MemoryDirectory
	registry *prometheus.Registry
}

func newTestServer(t *testing.T, internalKey string) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider := &fakeProvider{}
	dir := store.NewMemoryDirectory()
	registry := prometheus.NewRegistry()

	h := NewHandler(Services{
		Checkout: app.NewCheckoutService(provider, dir, dir, app.CheckoutConfig{DefaultCurrency: "eur", PlatformFeeBasisPoints: 1500}, logger),
		Onboarding: app.NewOnboardingService(provider, dir, app.OnboardingConfig{
			SiteURL: "https://surfspotter.example", Country: "CH", BusinessType: "individual",
		}, logger),
		Reconciler: app.NewReconciler(
			stripeclient.NewWebhookVerifier(testWebhookSecret, 0),
			dir, dir, idempotency.NewMemoryStore(), nil, time.Hour, logger,
		),
		Diagnostics:     app.NewDiagnostics(provider, "sk_test_51Habcdefghijkl1234", "https://surfspotter.example"),
		Metrics:         metrics.New(registry),
		Logger:          logger,
		WebhookMaxBytes: 4096,
	})

	return &testServer{
		router:   NewRouter(h, RouterConfig{InternalAPIKey: internalKey, Gatherer: registry}),
		provider: provider,
		dir:      dir,
		registry: registry,
	}
}

func (s *testServer) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCheckoutScenarioA(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(http.MethodPost, "/api/stripe/checkout",
		`{"items":[{"name":"Sunset Shot","amount":900,"quantity":1}],"successUrl":"https://x/ok","cancelUrl":"https://x/no"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":"sess_1","url":"https://pay/sess_1"}`, rec.Body.String())
	assert.Equal(t, 1, s.provider.sessionCalls)
}

func TestCheckoutRejections(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
	}{
		{name: "wrong verb", method: http.MethodGet, wantStatus: http.StatusMethodNotAllowed},
		{name: "zero items", method: http.MethodPost, body: `{"items":[],"successUrl":"https://x/ok","cancelUrl":"https://x/no"}`, wantStatus: http.StatusBadRequest},
		{name: "items not an array", method: http.MethodPost, body: `{"items":"photo","successUrl":"https://x/ok","cancelUrl":"https://x/no"}`, wantStatus: http.StatusBadRequest},
		{name: "missing urls", method: http.MethodPost, body: `{"items":[{"name":"a","amount":1}]}`, wantStatus: http.StatusBadRequest},
		{name: "unknown product", method: http.MethodPost, body: `{"items":[{"productId":"nope"}],"successUrl":"https://x/ok","cancelUrl":"https://x/no"}`, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, "")
			rec := s.do(tt.method, "/api/stripe/checkout", tt.body, nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotEmpty(t, decodeBody(t, rec)["error"])
			assert.Equal(t, 0, s.provider.sessionCalls, "provider must not be called")
		})
	}
}

func TestCheckoutSellerNotOnboardedIsConflict(t *testing.T) {
	s := newTestServer(t, "")
	require.NoError(t, store.SeedDemoData(context.Background(), s.dir))

	rec := s.do(http.MethodPost, "/api/stripe/checkout",
		`{"items":[{"productId":"photo_1"}],"successUrl":"https://x/ok","cancelUrl":"https://x/no"}`, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "not onboarded")
	assert.Equal(t, 0, s.provider.sessionCalls)
}

func TestCheckoutProviderFailureIsRelayed(t *testing.T) {
	s := newTestServer(t, "")
	s.provider.sessionErr = errors.New("Invalid currency: xyz")

	rec := s.do(http.MethodPost, "/api/stripe/checkout",
		`{"currency":"xyz","items":[{"name":"a","amount":100}],"successUrl":"https://x/ok","cancelUrl":"https://x/no"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Invalid currency: xyz", decodeBody(t, rec)["error"])
}

func TestOnboardScenarioB(t *testing.T) {
	s := newTestServer(t, "")
	require.NoError(t, store.SeedDemoData(context.Background(), s.dir))

	rec := s.do(http.MethodPost, "/api/stripe/onboard?photographerId=photog_1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"url":"https://onboard/acct_9"}`, rec.Body.String())

	seller, err := s.dir.GetSeller(context.Background(), "photog_1")
	require.NoError(t, err)
	assert.Equal(t, "acct_9", seller.PaymentAccountID)

	rec = s.do(http.MethodPost, "/api/stripe/onboard/photog_1/link", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, s.provider.accountCalls)
	assert.Equal(t, 2, s.provider.linkCalls)

	rec = s.do(http.MethodGet, "/metrics", "", nil)
	assert.Contains(t, rec.Body.String(), `payments_onboarding_links_total{action="onboard",result="created"} 1`)
	assert.Contains(t, rec.Body.String(), `payments_onboarding_links_total{action="link",result="created"} 1`)
}

func TestOnboardRejections(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(http.MethodPost, "/api/stripe/onboard", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/stripe/onboard/photog_1", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = s.do(http.MethodPost, "/api/stripe/onboard/ghost/link", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func signedHeader(payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	}).Header
}

func TestWebhookScenarioC(t *testing.T) {
	s := newTestServer(t, "")
	_, err := s.dir.UpsertSeller(context.Background(), domain.Seller{ID: "photog_1", PaymentAccountID: "acct_9"})
	require.NoError(t, err)

	payload := []byte(`{"id":"evt_1","object":"event","type":"account.updated","data":{"object":{"id":"acct_9","charges_enabled":true}}}`)
	rec := s.do(http.MethodPost, "/api/stripe/webhook", string(payload), map[string]string{SignatureHeader: signedHeader(payload)})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())

	seller, err := s.dir.GetSeller(context.Background(), "photog_1")
	require.NoError(t, err)
	assert.True(t, seller.ChargesEnabled)

	// Now checkout-able.
	_, err = s.dir.UpsertProduct(context.Background(), store.DemoProduct)
	require.NoError(t, err)
	rec = s.do(http.MethodPost, "/api/stripe/checkout",
		`{"items":[{"productId":"photo_1"}],"successUrl":"https://x/ok","cancelUrl":"https://x/no"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "acct_9", s.provider.lastSession.TransferDestination)
	require.NotNil(t, s.provider.lastSession.ApplicationFeeAmount)
	assert.Equal(t, int64(375), *s.provider.lastSession.ApplicationFeeAmount)
}

func TestWebhookRejections(t *testing.T) {
	payload := []byte(`{"id":"evt_2","object":"event","type":"account.updated","data":{"object":{"id":"acct_9","charges_enabled":false}}}`)
	tampered := []byte(strings.Replace(string(payload), "false", "true", 1))

	tests := []struct {
		name       string
		body       []byte
		header     string
		wantStatus int
	}{
		{name: "missing signature", body: payload, header: "", wantStatus: http.StatusBadRequest},
		{name: "tampered body", body: tampered, header: signedHeader(payload), wantStatus: http.StatusBadRequest},
		{name: "oversized body", body: []byte(strings.Repeat("x", 5000)), header: "t=1,v1=abc", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, "")
			headers := map[string]string{}
			if tt.header != "" {
				headers[SignatureHeader] = tt.header
			}
			rec := s.do(http.MethodPost, "/api/stripe/webhook", string(tt.body), headers)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.True(t, strings.HasPrefix(rec.Body.String(), "Webhook Error: "), rec.Body.String())
			assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
		})
	}
}

func TestWebhookAcceptsNonJSONContentType(t *testing.T) {
	s := newTestServer(t, "")
	payload := []byte(`{"id":"evt_3","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set(SignatureHeader, signedHeader(payload))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set(SignatureHeader, signedHeader(payload))
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "duplicate delivery is acknowledged")
}

func TestWebhookWrongVerb(t *testing.T) {
	s := newTestServer(t, "")
	rec := s.do(http.MethodGet, "/api/stripe/webhook", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDiagnosticsRequireInternalKey(t *testing.T) {
	s := newTestServer(t, "ops-key")

	rec := s.do(http.MethodGet, "/api/debug/env", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/api/debug/env", "", map[string]string{"X-Internal-API-Key": "ops-key"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"hasStripeKey":true,"stripeKeyPreview":"sk_tes…1234","stripeKeyLength":27,"siteUrl":"https://surfspotter.example"}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/stripe/selftest", "", map[string]string{"X-Internal-API-Key": "ops-key"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"account":"acct_platform","livemode":false,"type":"standard"}`, rec.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, "")
	s.do(http.MethodPost, "/api/stripe/checkout", `{"items":[]}`, nil)

	rec := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `payments_http_requests_total{code="400",method="POST",route="/api/stripe/checkout"} 1`)
	assert.Contains(t, rec.Body.String(), `payments_checkout_sessions_total{mode="generic",result="invalid"} 1`)
}
