package nats

import (
	"time"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// StreamCertificates holds paid certificate jobs until a worker takes them.
const StreamCertificates = "MINT_CERTIFICATES"

// Subject constants.
const (
	SubjectCertificatesAll      = "mint.certificates.>"
	SubjectCertificateRequested = "mint.certificates.requested"
)

// CertificateRequested is published once per paid invoice.
type CertificateRequested struct {
	JobID       string    `json:"job_id"`
	Provider    string    `json:"provider"`
	InvoiceID   string    `json:"invoice_id"`
	UserID      string    `json:"user_id"`
	Burden      string    `json:"burden"`
	RequestedAt time.Time `json:"requested_at"`
}
