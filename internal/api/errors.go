package api

import (
	"errors"
	"log/slog"
	"net/http"
)

type AppError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrBadRequest     = &AppError{Code: http.StatusBadRequest, Message: "bad request"}
	ErrUnauthorized   = &AppError{Code: http.StatusUnauthorized, Message: "unauthorized"}
	ErrNotFound       = &AppError{Code: http.StatusNotFound, Message: "not found"}
	ErrTooManyRequest = &AppError{Code: http.StatusTooManyRequests, Message: "too many requests"}
	ErrInternalServer = &AppError{Code: http.StatusInternalServerError, Message: "internal server error"}
	ErrInvalidToken   = &AppError{Code: http.StatusUnauthorized, Message: "invalid or expired token"}
	ErrInvalidJSON    = &AppError{Code: http.StatusBadRequest, Message: "invalid JSON body"}
)

func NewBadRequestError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewNotFoundError(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: msg}
}

func NewValidationError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

// NewUpstreamError reports a failed call to a remote dependency.
func NewUpstreamError(msg string) *AppError {
	return &AppError{Code: http.StatusBadGateway, Message: msg}
}

func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		JSONErrorMessage(w, appErr.Code, appErr.Message)
		return
	}
	slog.Error("unhandled error", "error", err)
	JSONErrorMessage(w, http.StatusInternalServerError, "internal server error")
}
