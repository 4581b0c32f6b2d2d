// Package generation serves the free and paid image generation endpoints.
package generation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/burdenmint/burdenmint/internal/api"
	"github.com/burdenmint/burdenmint/internal/certificate"
	"github.com/burdenmint/burdenmint/internal/imagegen"
	"github.com/burdenmint/burdenmint/internal/metrics"
	"github.com/burdenmint/burdenmint/internal/middleware"
	"github.com/burdenmint/burdenmint/internal/prompts"
	"github.com/burdenmint/burdenmint/internal/quota"
)

const (
	maxFreeBody = 16 << 10
	maxPaidBody = 16 << 20

	dataURIPrefix = "data:image/png;base64,"
)

// QuotaTracker is the subset of quota.Service the handlers use.
type QuotaTracker interface {
	CheckAndConsume(ctx context.Context, userID string) (quota.Result, error)
	Peek(ctx context.Context, userID string) (quota.Result, error)
}

type PromptSelector interface {
	Select(burden string, tier string) (string, prompts.Tier)
}

type Handler struct {
	quota    QuotaTracker
	prompts  PromptSelector
	images   imagegen.Generator
	validate *validator.Validate
}

func NewHandler(q QuotaTracker, p PromptSelector, images imagegen.Generator) *Handler {
	return &Handler{
		quota:    q,
		prompts:  p,
		images:   images,
		validate: validator.New(),
	}
}

// GenerateFree consumes one free generation and returns a text-to-image result.
func (h *Handler) GenerateFree(w http.ResponseWriter, r *http.Request) {
	var req FreeRequest
	if err := api.DecodeJSON(w, r, &req, maxFreeBody); err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	userID := req.UserID.String()
	res, err := h.quota.CheckAndConsume(r.Context(), userID)
	if err != nil {
		slog.Error("checking free quota", "error", err, "user_id", userID, "request_id", middleware.GetRequestID(r.Context()))
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if !res.Allowed {
		metrics.QuotaRejectionsTotal.Inc()
		api.JSON(w, http.StatusTooManyRequests, QuotaExceededResponse{
			Success:       false,
			Error:         "daily free limit reached",
			RemainingFree: 0,
			ResetsAt:      res.ResetsAt,
		})
		return
	}

	prompt, _ := h.prompts.Select(req.Burden, string(prompts.DefaultTier))
	img, err := h.images.TextToImage(r.Context(), prompt)
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues("free", "error").Inc()
		h.upstreamFailure(w, r, "free", err)
		return
	}
	metrics.GenerationsTotal.WithLabelValues("free", "ok").Inc()

	api.JSON(w, http.StatusOK, FreeResponse{
		Success:       true,
		Image:         dataURIPrefix + base64.StdEncoding.EncodeToString(img),
		Prompt:        prompt,
		RemainingFree: res.Remaining,
	})
}

// GeneratePaid restyles the user's picture with the plan's prompt list.
func (h *Handler) GeneratePaid(w http.ResponseWriter, r *http.Request) {
	var req PaidRequest
	if err := api.DecodeJSON(w, r, &req, maxPaidBody); err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}
	if strings.TrimSpace(req.Image) == "" {
		api.HandleError(w, api.NewBadRequestError("image is required"))
		return
	}

	initImage, err := prepareInitImage(req.Image)
	if err != nil {
		api.HandleError(w, api.NewBadRequestError(err.Error()))
		return
	}

	prompt, tier := h.prompts.Select(req.Burden, req.Plan)
	img, err := h.images.ImageToImage(r.Context(), prompt, initImage)
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues("paid", "error").Inc()
		h.upstreamFailure(w, r, "paid", err)
		return
	}
	metrics.GenerationsTotal.WithLabelValues("paid", "ok").Inc()

	api.JSON(w, http.StatusOK, PaidResponse{
		Success: true,
		Image:   dataURIPrefix + base64.StdEncoding.EncodeToString(img),
		Prompt:  prompt,
		Plan:    string(tier),
	})
}

// CheckLimit reports the remaining free generations without consuming one.
func (h *Handler) CheckLimit(w http.ResponseWriter, r *http.Request) {
	var req CheckLimitRequest
	if err := api.DecodeJSON(w, r, &req, maxFreeBody); err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	res, err := h.quota.Peek(r.Context(), req.UserID.String())
	if err != nil {
		slog.Error("peeking free quota", "error", err, "user_id", req.UserID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, LimitResponse{
		Success:       true,
		RemainingFree: res.Remaining,
		Limit:         res.Limit,
		ResetsAt:      res.ResetsAt,
	})
}

func (h *Handler) upstreamFailure(w http.ResponseWriter, r *http.Request, mode string, err error) {
	slog.Error("image generation failed", "mode", mode, "error", err, "request_id", middleware.GetRequestID(r.Context()))

	var upErr *imagegen.UpstreamError
	switch {
	case errors.As(err, &upErr):
		api.HandleError(w, api.NewUpstreamError(upErr.Message))
	case errors.Is(err, imagegen.ErrUpstream):
		api.HandleError(w, api.NewUpstreamError("image generation service unavailable"))
	default:
		api.HandleError(w, err)
	}
}

// prepareInitImage decodes a base64 picture and centre-crops it to the canvas as PNG.
func prepareInitImage(encoded string) ([]byte, error) {
	if i := strings.Index(encoded, ","); strings.HasPrefix(encoded, "data:") && i >= 0 {
		encoded = encoded[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, errors.New("image is not valid base64")
	}
	img, err := certificate.Decode(raw)
	if errors.Is(err, certificate.ErrImageTooLarge) {
		return nil, fmt.Errorf("image must be at most %d pixels", certificate.MaxSourcePixels)
	}
	if err != nil {
		return nil, errors.New("image could not be decoded")
	}
	return certificate.EncodePNG(certificate.Fill(img, certificate.CanvasSize, certificate.CanvasSize))
}
