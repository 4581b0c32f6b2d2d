package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed methods for publishing events to NATS JetStream.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishCertificateRequested queues a paid certificate job. The job id doubles
// as the JetStream message id so a republished job is dropped by the server.
func (p *Publisher) PublishCertificateRequested(ctx context.Context, ev CertificateRequested) error {
	return p.publish(ctx, SubjectCertificateRequested, ev, jetstream.WithMsgID(ev.JobID))
}

func (p *Publisher) publish(ctx context.Context, subject string, data any, opts ...jetstream.PublishOpt) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	_, err = p.js.Publish(ctx, subject, payload, opts...)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
