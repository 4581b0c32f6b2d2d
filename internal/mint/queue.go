package mint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/burdenmint/burdenmint/internal/nats"
	"github.com/burdenmint/burdenmint/internal/payments"
)

const consumerName = "certificate-worker"

// Runner executes a single job.
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// InlineQueue runs each job on its own goroutine in this process.
type InlineQueue struct {
	base    context.Context
	runner  Runner
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewInlineQueue(base context.Context, runner Runner, timeout time.Duration) *InlineQueue {
	return &InlineQueue{base: base, runner: runner, timeout: timeout}
}

func (q *InlineQueue) Enqueue(_ context.Context, ev payments.PaidEvent) error {
	job := NewJob(ev)
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		runJob(q.base, q.runner, q.timeout, job)
	}()
	return nil
}

// Wait blocks until every enqueued job has finished.
func (q *InlineQueue) Wait() {
	q.wg.Wait()
}

// EventPublisher is satisfied by *nats.Publisher.
type EventPublisher interface {
	PublishCertificateRequested(ctx context.Context, ev inats.CertificateRequested) error
}

// NATSQueue hands jobs to the JetStream certificate stream.
type NATSQueue struct {
	publisher EventPublisher
}

func NewNATSQueue(publisher EventPublisher) *NATSQueue {
	return &NATSQueue{publisher: publisher}
}

func (q *NATSQueue) Enqueue(ctx context.Context, ev payments.PaidEvent) error {
	job := NewJob(ev)
	err := q.publisher.PublishCertificateRequested(ctx, inats.CertificateRequested{
		JobID:       job.ID,
		Provider:    job.Provider,
		InvoiceID:   job.InvoiceID,
		UserID:      job.UserID,
		Burden:      job.Burden,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("queueing certificate job: %w", err)
	}
	return nil
}

// Consumer pulls certificate jobs from JetStream and runs them. Every message
// is acked once processed; failed jobs are reported to the user, not retried.
type Consumer struct {
	consumerMgr *inats.ConsumerManager
	runner      Runner
	timeout     time.Duration
}

func NewConsumer(consumerMgr *inats.ConsumerManager, runner Runner, timeout time.Duration) *Consumer {
	return &Consumer{consumerMgr: consumerMgr, runner: runner, timeout: timeout}
}

// Start begins the consume loop. It returns when ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamCertificates, consumerName, inats.SubjectCertificateRequested, c.timeout+30*time.Second)
	if err != nil {
		return err
	}

	slog.Info("certificate worker started", "consumer", consumerName)

	for {
		msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("fetching certificate jobs", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.processMessage(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg jetstream.Msg) {
	job, err := decodeJob(msg.Data())
	if err != nil {
		slog.Error("unmarshaling certificate job", "error", err)
		_ = msg.Term()
		return
	}

	runJob(ctx, c.runner, c.timeout, job)
	_ = msg.Ack()
}

func decodeJob(data []byte) (Job, error) {
	var ev inats.CertificateRequested
	if err := json.Unmarshal(data, &ev); err != nil {
		return Job{}, err
	}
	if ev.JobID == "" || ev.UserID == "" {
		return Job{}, errors.New("certificate job missing id or user")
	}
	return Job{
		ID:        ev.JobID,
		Provider:  ev.Provider,
		InvoiceID: ev.InvoiceID,
		UserID:    ev.UserID,
		Burden:    ev.Burden,
	}, nil
}

func runJob(ctx context.Context, runner Runner, timeout time.Duration, job Job) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic in certificate job", "job_id", job.ID, "panic", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_ = runner.Run(ctx, job)
}
