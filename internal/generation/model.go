package generation

import (
	"time"

	"github.com/burdenmint/burdenmint/internal/quota"
)

type FreeRequest struct {
	UserID quota.UserID `json:"user_id" validate:"required"`
	Burden string       `json:"burden" validate:"required,max=200"`
}

type PaidRequest struct {
	UserID quota.UserID `json:"user_id" validate:"required"`
	Burden string       `json:"burden" validate:"required,max=200"`
	Plan   string       `json:"plan" validate:"max=32"`
	// Image is the user's picture as raw base64 or a data URI.
	Image string `json:"image"`
}

type CheckLimitRequest struct {
	UserID quota.UserID `json:"user_id" validate:"required"`
}

type FreeResponse struct {
	Success       bool   `json:"success"`
	Image         string `json:"image"`
	Prompt        string `json:"prompt"`
	RemainingFree int    `json:"remaining_free"`
}

type PaidResponse struct {
	Success bool   `json:"success"`
	Image   string `json:"image"`
	Prompt  string `json:"prompt"`
	Plan    string `json:"plan"`
}

type LimitResponse struct {
	Success       bool      `json:"success"`
	RemainingFree int       `json:"remaining_free"`
	Limit         int       `json:"limit"`
	ResetsAt      time.Time `json:"resets_at"`
}

type QuotaExceededResponse struct {
	Success       bool      `json:"success"`
	Error         string    `json:"error"`
	RemainingFree int       `json:"remaining_free"`
	ResetsAt      time.Time `json:"resets_at"`
}
