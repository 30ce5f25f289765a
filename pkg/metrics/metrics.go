// Package metrics exposes Prometheus instrumentation for the HTTP surface and
// for webhook reconciliation outcomes.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "payments"

// ServerMetrics groups the collectors registered by the service.
type ServerMetrics struct {
	requests        *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	webhookOutcomes *prometheus.CounterVec
	checkouts       *prometheus.CounterVec
	onboardings     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *ServerMetrics {
	m := &ServerMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		webhookOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Webhook events by type and reconciliation result.",
		}, []string{"type", "result"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_sessions_total",
			Help:      "Checkout session attempts by mode and result.",
		}, []string{"mode", "result"}),
		onboardings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "onboarding_links_total",
			Help:      "Onboarding link requests by action and result.",
		}, []string{"action", "result"}),
	}
	reg.MustRegister(m.requests, m.latency, m.webhookOutcomes, m.checkouts, m.onboardings)
	return m
}

// ObserveWebhook records one reconciled webhook delivery.
func (m *ServerMetrics) ObserveWebhook(eventType, result string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.webhookOutcomes.WithLabelValues(eventType, result).Inc()
}

// ObserveCheckout records one checkout attempt.
func (m *ServerMetrics) ObserveCheckout(mode, result string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(mode, result).Inc()
}

// ObserveOnboarding records one onboarding or link refresh attempt.
func (m *ServerMetrics) ObserveOnboarding(action, result string) {
	if m == nil {
		return
	}
	m.onboardings.WithLabelValues(action, result).Inc()
}

// Middleware records request counts and latency labelled by chi route pattern.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.latency.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
