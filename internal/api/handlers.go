/**
 * @description
 * HTTP handlers for the payments service: checkout session creation,
 * connected-account onboarding and operator diagnostics. Webhook handling
 * lives in webhook.go because it must read the raw request body.
 */
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/surfspotter/payments-service/internal/app"
	"github.com/surfspotter/payments-service/internal/domain"
	"github.com/surfspotter/payments-service/pkg/logkey"
	"github.com/surfspotter/payments-service/pkg/metrics"
)

// Handler holds the application services that handlers will interact with.
type Handler struct {
	checkout    *app.CheckoutService
	onboarding  *app.OnboardingService
	reconciler  *app.Reconciler
	diagnostics *app.Diagnostics
	metrics     *metrics.ServerMetrics
	logger      *slog.Logger

	webhookMaxBytes int64
}

// Services bundles what NewHandler needs.
type Services struct {
	Checkout        *app.CheckoutService
	Onboarding      *app.OnboardingService
	Reconciler      *app.Reconciler
	Diagnostics     *app.Diagnostics
	Metrics         *metrics.ServerMetrics
	Logger          *slog.Logger
	WebhookMaxBytes int64
}

// NewHandler creates a new Handler with the given services.
func NewHandler(s Services) *Handler {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBytes := s.WebhookMaxBytes
	if maxBytes <= 0 {
		maxBytes = 65536
	}
	return &Handler{
		checkout:        s.Checkout,
		onboarding:      s.Onboarding,
		reconciler:      s.Reconciler,
		diagnostics:     s.Diagnostics,
		metrics:         s.Metrics,
		logger:          logger,
		webhookMaxBytes: maxBytes,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type urlResponse struct {
	URL string `json:"url"`
}

func (h *Handler) handleCreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.ObserveCheckout("unknown", "invalid")
		respondWithError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	mode := "unknown"
	if strategy, err := app.StrategyFor(req); err == nil {
		mode = string(strategy)
	}

	session, err := h.checkout.CreateSession(r.Context(), req)
	if err != nil {
		h.metrics.ObserveCheckout(mode, resultLabel(err))
		h.writeError(w, r, err)
		return
	}

	h.metrics.ObserveCheckout(mode, "created")
	respondWithJSON(w, http.StatusOK, session)
}

func (h *Handler) handleOnboard(w http.ResponseWriter, r *http.Request) {
	url, err := h.onboarding.Onboard(r.Context(), sellerIDFromRequest(r))
	if err != nil {
		h.metrics.ObserveOnboarding("onboard", resultLabel(err))
		h.writeError(w, r, err)
		return
	}
	h.metrics.ObserveOnboarding("onboard", "created")
	respondWithJSON(w, http.StatusOK, urlResponse{URL: url})
}

func (h *Handler) handleOnboardingLink(w http.ResponseWriter, r *http.Request) {
	url, err := h.onboarding.RequestLink(r.Context(), chi.URLParam(r, "sellerID"))
	if err != nil {
		h.metrics.ObserveOnboarding("link", resultLabel(err))
		h.writeError(w, r, err)
		return
	}
	h.metrics.ObserveOnboarding("link", "created")
	respondWithJSON(w, http.StatusOK, urlResponse{URL: url})
}

func (h *Handler) handleSelfTest(w http.ResponseWriter, r *http.Request) {
	result := h.diagnostics.SelfTest(r.Context())
	if !result.OK {
		h.logger.Error("provider self-test failed",
			slog.String(logkey.TraceID, middleware.GetReqID(r.Context())),
			slog.String(logkey.ERROR, result.Error))
		respondWithJSON(w, http.StatusInternalServerError, result)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleDebugEnv(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.diagnostics.Env())
}

// sellerIDFromRequest accepts the seller id as a path segment or as the
// photographerId query parameter older storefront builds send.
func sellerIDFromRequest(r *http.Request) string {
	if id := chi.URLParam(r, "sellerID"); id != "" {
		return id
	}
	q := r.URL.Query()
	if id := q.Get("photographerId"); id != "" {
		return id
	}
	return q.Get("sellerId")
}

// statusFor maps application errors to HTTP status codes.
func statusFor(err error) int {
	var (
		validation   *app.ValidationError
		notFound     *app.NotFoundError
		precondition *app.PreconditionError
		signature    *app.SignatureError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &signature):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &precondition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func resultLabel(err error) string {
	switch statusFor(err) {
	case http.StatusBadRequest:
		return "invalid"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "precondition"
	default:
		return "failed"
	}
}

// writeError answers with {"error": message}. Provider messages are relayed
// unchanged; other internal errors are not exposed.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()

	var provider *app.ProviderError
	if status == http.StatusInternalServerError && !errors.As(err, &provider) {
		message = http.StatusText(http.StatusInternalServerError)
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String(logkey.TraceID, middleware.GetReqID(r.Context())),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String(logkey.ERROR, err.Error()))

	respondWithError(w, status, message)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, errorResponse{Error: strings.TrimSpace(message)})
}

// respondWithJSON writes JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
