package api

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// JSON writes v as the whole response body.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func JSONError(w http.ResponseWriter, status int, err error) {
	JSONErrorMessage(w, status, err.Error())
}

func JSONErrorMessage(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Success: false, Error: message})
}

// DecodeJSON reads a JSON body of at most maxBytes into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &AppError{Code: http.StatusRequestEntityTooLarge, Message: "request body too large"}
		}
		return ErrInvalidJSON
	}
	return nil
}
