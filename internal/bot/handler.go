package bot

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/burdenmint/burdenmint/internal/api"
	"github.com/burdenmint/burdenmint/internal/auth"
	"github.com/burdenmint/burdenmint/internal/middleware"
)

const maxSubmitBody = 16 << 10

// Notifier pushes a text message into the user's chat.
type Notifier interface {
	SendText(ctx context.Context, to, body string) error
}

type SubmitRequest struct {
	Token    string `json:"token" validate:"required"`
	Burden   string `json:"burden" validate:"required"`
	PhotoURL string `json:"photo_url" validate:"omitempty,url"`
}

type SubmitResponse struct {
	Success   bool   `json:"success"`
	InvoiceID string `json:"invoice_id"`
	PayURL    string `json:"pay_url"`
}

type Handler struct {
	svc      *Service
	notifier Notifier
	validate *validator.Validate
}

// NewHandler serves form submissions. notifier may be nil.
func NewHandler(svc *Service, notifier Notifier) *Handler {
	return &Handler{svc: svc, notifier: notifier, validate: validator.New()}
}

// Submit accepts the web form, opens an invoice for the chat user named by the
// token and also posts the pay link into their chat.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := api.DecodeJSON(w, r, &req, maxSubmitBody); err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	userID, err := h.svc.ChatUser(req.Token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidFormToken) {
			api.HandleError(w, api.ErrInvalidToken)
			return
		}
		api.HandleError(w, err)
		return
	}

	inv, err := h.svc.RequestInvoice(r.Context(), userID, req.Burden, req.PhotoURL)
	switch {
	case errors.Is(err, ErrEmptyBurden), errors.Is(err, ErrBurdenTooLong), errors.Is(err, ErrInvalidPhotoURL):
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	case err != nil:
		slog.Error("creating invoice", "user_id", userID, "error", err, "request_id", middleware.GetRequestID(r.Context()))
		api.HandleError(w, api.NewUpstreamError("payment service unavailable"))
		return
	}

	if h.notifier != nil {
		if err := h.notifier.SendText(r.Context(), userID, PayMessage(inv)); err != nil {
			slog.Warn("posting pay link to chat", "user_id", userID, "error", err)
		}
	}

	api.JSON(w, http.StatusOK, SubmitResponse{Success: true, InvoiceID: inv.ID, PayURL: inv.PayURL})
}
