// Package payments creates invoices and verifies paid-invoice webhooks.
package payments

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid invoice payload")
	// ErrIgnoredEvent marks a well-formed webhook that does not announce a payment.
	ErrIgnoredEvent = errors.New("webhook event ignored")
	ErrProvider     = errors.New("payment provider failure")
)

type InvoiceRequest struct {
	UserID      string
	Burden      string
	Amount      string
	Description string
}

type Invoice struct {
	ID     string
	PayURL string
}

// PaidEvent is a confirmed payment decoded from a provider webhook.
type PaidEvent struct {
	Provider  string `json:"provider"`
	InvoiceID string `json:"invoice_id"`
	UserID    string `json:"user_id"`
	Burden    string `json:"burden"`
}

type Provider interface {
	Name() string
	CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error)
	// ParseWebhook verifies and decodes a webhook. Non-payment events return ErrIgnoredEvent.
	ParseWebhook(header http.Header, body []byte) (*PaidEvent, error)
}

// EncodePayload builds the opaque invoice payload "{user_id}:{burden}".
func EncodePayload(userID, burden string) string {
	return userID + ":" + burden
}

// DecodePayload splits a payload on the first ':'. The burden may itself contain colons.
func DecodePayload(payload string) (userID, burden string, err error) {
	userID, burden, ok := strings.Cut(payload, ":")
	if !ok || userID == "" {
		return "", "", ErrInvalidPayload
	}
	return userID, burden, nil
}
