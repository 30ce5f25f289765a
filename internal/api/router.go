/**
 * @description
 * HTTP router setup for the payments service using go-chi/chi. Routes are
 * declared in a table; a route marked rawBody skips the JSON content-type
 * guard and request size middleware and reads its own body.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/surfspotter/payments-service/pkg/metrics"
)

const maxJSONBodyBytes = 1 << 20

// RouterConfig configures NewRouter.
type RouterConfig struct {
	InternalAPIKey string
	AllowedOrigins []string
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
}

type route struct {
	method   string
	pattern  string
	handler  http.HandlerFunc
	rawBody  bool
	internal bool
}

func (h *Handler) routes() []route {
	return []route{
		{method: http.MethodPost, pattern: "/api/stripe/checkout", handler: h.handleCreateCheckoutSession},
		{method: http.MethodPost, pattern: "/api/stripe/onboard", handler: h.handleOnboard},
		{method: http.MethodPost, pattern: "/api/stripe/onboard/{sellerID}", handler: h.handleOnboard},
		{method: http.MethodPost, pattern: "/api/stripe/onboard/{sellerID}/link", handler: h.handleOnboardingLink},
		{method: http.MethodPost, pattern: "/api/stripe/webhook", handler: h.handleWebhook, rawBody: true},
		{method: http.MethodGet, pattern: "/api/stripe/selftest", handler: h.handleSelfTest, internal: true},
		{method: http.MethodGet, pattern: "/api/debug/env", handler: h.handleDebugEnv, internal: true},
	}
}

// NewRouter creates a new Chi router and registers the payments routes.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Internal-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Payments service is healthy"))
	})
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))
	}

	for _, rt := range h.routes() {
		r.Group(func(r chi.Router) {
			if rt.internal {
				r.Use(InternalAuthMiddleware(cfg.InternalAPIKey))
			}
			if !rt.rawBody {
				r.Use(middleware.AllowContentType("application/json"))
				r.Use(middleware.RequestSize(maxJSONBodyBytes))
			}
			r.Method(rt.method, rt.pattern, rt.handler)
		})
	}

	return r
}
