package mint

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inats "github.com/burdenmint/burdenmint/internal/nats"
	"github.com/burdenmint/burdenmint/internal/payments"
)

type recordingRunner struct {
	mu    sync.Mutex
	jobs  []Job
	panic bool
}

func (r *recordingRunner) Run(_ context.Context, job Job) error {
	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	r.mu.Unlock()
	if r.panic {
		panic("boom")
	}
	return nil
}

type fakePublisher struct {
	events []inats.CertificateRequested
	err    error
}

func (p *fakePublisher) PublishCertificateRequested(_ context.Context, ev inats.CertificateRequested) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

var paid = payments.PaidEvent{Provider: "cryptopay", InvoiceID: "INV-7", UserID: "bob@example.org", Burden: "debt: a lot"}

func TestNewJob_StablePerInvoice(t *testing.T) {
	a := NewJob(paid)
	b := NewJob(paid)
	assert.Equal(t, a.ID, b.ID)

	other := paid
	other.InvoiceID = "INV-8"
	assert.NotEqual(t, a.ID, NewJob(other).ID)
	assert.Equal(t, "debt: a lot", a.Burden)
}

func TestInlineQueue_RunsJobs(t *testing.T) {
	r := &recordingRunner{}
	q := NewInlineQueue(context.Background(), r, time.Second)

	require.NoError(t, q.Enqueue(context.Background(), paid))
	q.Wait()

	require.Len(t, r.jobs, 1)
	assert.Equal(t, "INV-7", r.jobs[0].InvoiceID)
	assert.Equal(t, "bob@example.org", r.jobs[0].UserID)
}

func TestInlineQueue_RecoversPanics(t *testing.T) {
	r := &recordingRunner{panic: true}
	q := NewInlineQueue(context.Background(), r, time.Second)

	require.NoError(t, q.Enqueue(context.Background(), paid))
	q.Wait()
	assert.Len(t, r.jobs, 1)
}

func TestNATSQueue_PublishesEvent(t *testing.T) {
	pub := &fakePublisher{}
	q := NewNATSQueue(pub)

	require.NoError(t, q.Enqueue(context.Background(), paid))
	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, NewJob(paid).ID, ev.JobID)
	assert.Equal(t, "INV-7", ev.InvoiceID)
	assert.False(t, ev.RequestedAt.IsZero())

	pub.err = errors.New("no responders")
	assert.Error(t, q.Enqueue(context.Background(), paid))
}

type fakeMsg struct {
	jetstream.Msg
	data   []byte
	acked  bool
	termed bool
}

func (m *fakeMsg) Data() []byte { return m.data }
func (m *fakeMsg) Ack() error   { m.acked = true; return nil }
func (m *fakeMsg) Term() error  { m.termed = true; return nil }

func TestConsumer_ProcessMessage(t *testing.T) {
	r := &recordingRunner{}
	c := NewConsumer(nil, r, time.Second)

	t.Run("valid job is run and acked", func(t *testing.T) {
		data, err := json.Marshal(inats.CertificateRequested{JobID: "j1", InvoiceID: "INV-1", UserID: "carol@example.org", Burden: "grief"})
		require.NoError(t, err)
		msg := &fakeMsg{data: data}

		c.processMessage(context.Background(), msg)
		assert.True(t, msg.acked)
		require.Len(t, r.jobs, 1)
		assert.Equal(t, "grief", r.jobs[0].Burden)
	})

	t.Run("garbage is terminated", func(t *testing.T) {
		msg := &fakeMsg{data: []byte("{")}
		c.processMessage(context.Background(), msg)
		assert.True(t, msg.termed)
		assert.False(t, msg.acked)
	})

	t.Run("job without user is terminated", func(t *testing.T) {
		msg := &fakeMsg{data: []byte(`{"job_id":"j2"}`)}
		c.processMessage(context.Background(), msg)
		assert.True(t, msg.termed)
	})
}
