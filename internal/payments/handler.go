package payments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/burdenmint/burdenmint/internal/api"
)

const maxWebhookBody = 64 << 10

// Enqueuer hands a confirmed payment to the certificate pipeline.
type Enqueuer interface {
	Enqueue(ctx context.Context, ev PaidEvent) error
}

type WebhookHandler struct {
	provider Provider
	dedupe   Deduper
	queue    Enqueuer
}

func NewWebhookHandler(provider Provider, dedupe Deduper, queue Enqueuer) *WebhookHandler {
	if dedupe == nil {
		dedupe = NewMemoryDeduper()
	}
	return &WebhookHandler{provider: provider, dedupe: dedupe, queue: queue}
}

type webhookResponse struct {
	OK     bool   `json:"ok"`
	Status string `json:"status,omitempty"`
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid payload"))
		return
	}

	ev, err := h.provider.ParseWebhook(r.Header, body)
	switch {
	case errors.Is(err, ErrIgnoredEvent):
		api.JSON(w, http.StatusOK, webhookResponse{OK: true, Status: "ignored"})
		return
	case errors.Is(err, ErrInvalidSignature):
		slog.Warn("payment webhook signature rejected", "provider", h.provider.Name(), "error", err)
		api.HandleError(w, api.ErrUnauthorized)
		return
	case err != nil:
		slog.Warn("payment webhook payload rejected", "provider", h.provider.Name(), "error", err)
		api.HandleError(w, api.NewBadRequestError("invalid payload"))
		return
	}

	key := ev.Provider + ":" + ev.InvoiceID
	first, err := h.dedupe.Claim(r.Context(), key)
	if err != nil {
		// Fail open.
		slog.Warn("payment webhook dedupe unavailable", "invoice_id", ev.InvoiceID, "error", err)
		first = true
	}
	if !first {
		slog.Info("payment webhook duplicate", "invoice_id", ev.InvoiceID)
		api.JSON(w, http.StatusOK, webhookResponse{OK: true, Status: "duplicate"})
		return
	}

	if err := h.queue.Enqueue(r.Context(), *ev); err != nil {
		slog.Error("enqueueing certificate job", "invoice_id", ev.InvoiceID, "user_id", ev.UserID, "error", err)
		_ = h.dedupe.Release(r.Context(), key)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	slog.Info("payment confirmed", "provider", ev.Provider, "invoice_id", ev.InvoiceID, "user_id", ev.UserID)
	api.JSON(w, http.StatusOK, webhookResponse{OK: true, Status: "queued"})
}
