package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burdenmint/burdenmint/internal/auth"
	"github.com/burdenmint/burdenmint/internal/payments"
)

const testSecret = "form-secret-that-is-at-least-32-chars!"

type fakeProvider struct {
	requests []payments.InvoiceRequest
	err      error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) CreateInvoice(_ context.Context, req payments.InvoiceRequest) (*payments.Invoice, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.requests = append(p.requests, req)
	return &payments.Invoice{ID: "INV-1", PayURL: "https://pay.example.com/INV-1"}, nil
}

func (p *fakeProvider) ParseWebhook(http.Header, []byte) (*payments.PaidEvent, error) {
	return nil, payments.ErrIgnoredEvent
}

type fakeNotifier struct {
	to, body string
}

func (n *fakeNotifier) SendText(_ context.Context, to, body string) error {
	n.to, n.body = to, body
	return nil
}

func newTestService(provider payments.Provider, photos PhotoRegistry) *Service {
	return NewService(Options{
		Tokens:      auth.NewFormTokens(testSecret, time.Hour),
		FormURL:     "https://mint.example.com/form?lang=en",
		Provider:    provider,
		Photos:      photos,
		Amount:      "1",
		Description: "Certificate of Release",
	})
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		body string
		want Command
	}{
		{"/start", Command{Kind: CommandStart}},
		{"start", Command{Kind: CommandStart}},
		{"  /HELP ", Command{Kind: CommandHelp}},
		{"/burden fear of the dark", Command{Kind: CommandSubmit, Burden: "fear of the dark"}},
		{"/burden", Command{Kind: CommandSubmit}},
		{`{"burden":"old debts","photo_url":"https://x.test/p.jpg"}`, Command{Kind: CommandSubmit, Burden: "old debts", PhotoURL: "https://x.test/p.jpg"}},
		{`{"burden":`, Command{Kind: CommandUnknown}},
		{"hello there", Command{Kind: CommandUnknown}},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCommand(tt.body))
		})
	}
}

func TestService_FormLinkRoundTrip(t *testing.T) {
	svc := newTestService(&fakeProvider{}, nil)

	link, err := svc.FormLink("alice@example.org")
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "en", u.Query().Get("lang"))

	user, err := svc.ChatUser(u.Query().Get("token"))
	require.NoError(t, err)
	assert.Equal(t, "alice@example.org", user)
}

func TestService_RequestInvoice(t *testing.T) {
	provider := &fakeProvider{}
	photos := NewMemoryPhotoRegistry(time.Hour)
	svc := newTestService(provider, photos)
	ctx := context.Background()

	inv, err := svc.RequestInvoice(ctx, "alice@example.org", "  my: colon burden ", "https://x.test/me.png")
	require.NoError(t, err)
	assert.Equal(t, "INV-1", inv.ID)

	require.Len(t, provider.requests, 1)
	assert.Equal(t, "my: colon burden", provider.requests[0].Burden)
	assert.Equal(t, "alice@example.org", provider.requests[0].UserID)

	got, err := photos.PhotoURL(ctx, "alice@example.org")
	require.NoError(t, err)
	assert.Equal(t, "https://x.test/me.png", got)

	_, err = svc.RequestInvoice(ctx, "alice@example.org", "   ", "")
	assert.ErrorIs(t, err, ErrEmptyBurden)

	_, err = svc.RequestInvoice(ctx, "alice@example.org", strings.Repeat("é", MaxBurdenLength+1), "")
	assert.ErrorIs(t, err, ErrBurdenTooLong)

	for _, photo := range []string{
		"ftp://x.test/me.png",
		"http://localhost:8080/me.png",
		"http://127.0.0.1/me.png",
		"http://169.254.169.254/latest/meta-data/",
		"http://10.0.0.5/me.png",
		"http://[::1]/me.png",
	} {
		_, err = svc.RequestInvoice(ctx, "alice@example.org", "ok", photo)
		assert.ErrorIs(t, err, ErrInvalidPhotoURL, photo)
	}

	assert.Len(t, provider.requests, 1, "rejected submissions must not reach the provider")
}

func TestService_Reply(t *testing.T) {
	provider := &fakeProvider{}
	svc := newTestService(provider, nil)
	ctx := context.Background()

	assert.Contains(t, svc.Reply(ctx, "bob@example.org", "/start"), "https://mint.example.com/form?")
	assert.Equal(t, HelpText, svc.Reply(ctx, "bob@example.org", "/help"))
	assert.Contains(t, svc.Reply(ctx, "bob@example.org", "/burden grief"), "https://pay.example.com/INV-1")
	assert.Contains(t, svc.Reply(ctx, "bob@example.org", "/burden"), "burden is required")
	assert.Contains(t, svc.Reply(ctx, "bob@example.org", "what"), "/help")

	provider.err = errors.New("down")
	assert.Contains(t, svc.Reply(ctx, "bob@example.org", "/burden grief"), "unavailable")
}

func TestRedisPhotoRegistry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	reg := NewRedisPhotoRegistry(rdb, time.Hour)
	ctx := context.Background()

	got, err := reg.PhotoURL(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, reg.Remember(ctx, "carol", "https://x.test/c.png"))
	got, err = reg.PhotoURL(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, "https://x.test/c.png", got)

	mr.FastForward(2 * time.Hour)
	got, err = reg.PhotoURL(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, reg.Remember(ctx, "carol", "https://x.test/c.png"))
	require.NoError(t, reg.Remember(ctx, "carol", ""))
	got, err = reg.PhotoURL(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryPhotoRegistry_Expires(t *testing.T) {
	reg := NewMemoryPhotoRegistry(time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, reg.Remember(ctx, "dave", "https://x.test/d.png"))
	now = now.Add(2 * time.Minute)
	got, err := reg.PhotoURL(ctx, "dave")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryPhotoRegistry_SweepsExpiredOnWrite(t *testing.T) {
	reg := NewMemoryPhotoRegistry(time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }
	ctx := context.Background()

	for _, user := range []string{"u1", "u2", "u3"} {
		require.NoError(t, reg.Remember(ctx, user, "https://x.test/"+user+".png"))
	}
	now = now.Add(2 * time.Minute)
	require.NoError(t, reg.Remember(ctx, "u4", "https://x.test/u4.png"))

	reg.mu.Lock()
	defer reg.mu.Unlock()
	assert.Len(t, reg.photos, 1)
	assert.Contains(t, reg.photos, "u4")
}

func submit(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/bot/submit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Submit(rec, req)
	return rec
}

func TestHandler_Submit(t *testing.T) {
	provider := &fakeProvider{}
	svc := newTestService(provider, nil)
	notifier := &fakeNotifier{}
	h := NewHandler(svc, notifier)

	token, err := svc.opts.Tokens.Issue("erin@example.org")
	require.NoError(t, err)

	t.Run("valid submission", func(t *testing.T) {
		rec := submit(t, h, `{"token":"`+token+`","burden":"loneliness","photo_url":"https://x.test/e.jpg"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp SubmitResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "https://pay.example.com/INV-1", resp.PayURL)
		assert.Equal(t, "erin@example.org", notifier.to)
		assert.Contains(t, notifier.body, resp.PayURL)
	})

	t.Run("bad token", func(t *testing.T) {
		rec := submit(t, h, `{"token":"nope","burden":"loneliness"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing burden", func(t *testing.T) {
		rec := submit(t, h, `{"token":"`+token+`"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad photo url", func(t *testing.T) {
		rec := submit(t, h, `{"token":"`+token+`","burden":"x","photo_url":"not a url"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("provider down", func(t *testing.T) {
		provider.err = errors.New("down")
		defer func() { provider.err = nil }()
		rec := submit(t, h, `{"token":"`+token+`","burden":"x"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}
