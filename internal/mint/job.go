// Package mint turns a paid invoice into a delivered certificate.
package mint

import (
	"github.com/google/uuid"

	"github.com/burdenmint/burdenmint/internal/payments"
)

// Job is one paid certificate. The invoice id is printed as the holder id.
type Job struct {
	ID        string
	Provider  string
	InvoiceID string
	UserID    string
	Burden    string
}

// NewJob derives a job from a paid event. The id is stable per invoice.
func NewJob(ev payments.PaidEvent) Job {
	return Job{
		ID:        uuid.NewSHA1(uuid.NameSpaceURL, []byte(ev.Provider+":"+ev.InvoiceID)).String(),
		Provider:  ev.Provider,
		InvoiceID: ev.InvoiceID,
		UserID:    ev.UserID,
		Burden:    ev.Burden,
	}
}
