package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/surfspotter/payments-service/internal/app"
	"github.com/surfspotter/payments-service/pkg/logkey"
)

// SignatureHeader carries the provider's webhook signature.
const SignatureHeader = "Stripe-Signature"

type webhookAck struct {
	Received bool `json:"received"`
}

// handleWebhook reads the exact request bytes, since the signature is
// computed over them, and hands them to the reconciler.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetReqID(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.webhookMaxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		msg := "cannot read request body"
		if errors.As(err, &tooLarge) {
			msg = "request body too large"
		}
		h.logger.Warn("webhook body rejected", slog.String(logkey.TraceID, traceID), slog.String(logkey.ERROR, err.Error()))
		h.metrics.ObserveWebhook("", "rejected")
		http.Error(w, "Webhook Error: "+msg, http.StatusBadRequest)
		return
	}

	outcome, err := h.reconciler.HandleEvent(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		if statusFor(err) == http.StatusBadRequest {
			h.logger.Warn("webhook rejected", slog.String(logkey.TraceID, traceID), slog.String(logkey.ERROR, err.Error()))
			h.metrics.ObserveWebhook("", "rejected")
			http.Error(w, "Webhook Error: "+err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("webhook processing failed", slog.String(logkey.TraceID, traceID), slog.String(logkey.ERROR, err.Error()))
		h.metrics.ObserveWebhook("", "failed")
		http.Error(w, "Webhook Error: processing failed", http.StatusInternalServerError)
		return
	}

	if outcome.Result == app.ResultDeadLetter {
		h.logger.Error("webhook dead-lettered",
			slog.String(logkey.TraceID, traceID),
			slog.String(logkey.EventID, outcome.EventID),
			slog.String("reason", outcome.Reason))
	}
	h.metrics.ObserveWebhook(outcome.EventType, outcome.Result)
	respondWithJSON(w, http.StatusOK, webhookAck{Received: true})
}
