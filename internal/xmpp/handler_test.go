package xmpp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gosrc.io/xmpp"
	"gosrc.io/xmpp/stanza"

	"github.com/burdenmint/burdenmint/internal/filecache"
)

type fakeSender struct {
	xmpp.Sender
	mu      sync.Mutex
	packets []stanza.Packet
	err     error
}

func (s *fakeSender) Send(p stanza.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.packets = append(s.packets, p)
	return nil
}

func (s *fakeSender) messages() []stanza.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []stanza.Message
	for _, p := range s.packets {
		if m, ok := p.(stanza.Message); ok {
			out = append(out, m)
		}
	}
	return out
}

type echoBot struct {
	userID string
	panic  bool
}

func (b *echoBot) Reply(_ context.Context, userID, body string) string {
	if b.panic {
		panic("boom")
	}
	b.userID = userID
	return "echo: " + body
}

func TestBareJID(t *testing.T) {
	tests := []struct {
		jid  string
		want string
	}{
		{"alice@example.org/phone", "alice@example.org"},
		{"Alice@Example.org", "alice@example.org"},
		{"example.org", "example.org"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.jid, func(t *testing.T) {
			assert.Equal(t, tt.want, BareJID(tt.jid))
		})
	}
}

func TestHandler_HandleMessage(t *testing.T) {
	bot := &echoBot{}
	h := NewHandler(bot)
	s := &fakeSender{}

	h.HandleMessage(s, stanza.Message{
		Attrs: stanza.Attrs{From: "alice@example.org/phone", To: "mint.example.org", Type: "chat"},
		Body:  "/start",
	})

	assert.Equal(t, "alice@example.org", bot.userID)
	msgs := s.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "echo: /start", msgs[0].Body)
	assert.Equal(t, "alice@example.org/phone", msgs[0].To)
	assert.Equal(t, "mint.example.org", msgs[0].From)
}

func TestHandler_IgnoresEmptyAndErrorMessages(t *testing.T) {
	h := NewHandler(&echoBot{})
	s := &fakeSender{}

	h.HandleMessage(s, stanza.Message{Attrs: stanza.Attrs{From: "a@x", To: "m.x"}})
	h.HandleMessage(s, stanza.Message{Attrs: stanza.Attrs{From: "a@x", To: "m.x", Type: "error"}, Body: "bounce"})
	assert.Empty(t, s.messages())
}

func TestHandler_RecoversPanics(t *testing.T) {
	h := NewHandler(&echoBot{panic: true})
	s := &fakeSender{}

	h.HandleMessage(s, stanza.Message{Attrs: stanza.Attrs{From: "a@x", To: "m.x", Type: "chat"}, Body: "hi"})
	msgs := s.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Body, "Internal error")
}

func TestHandler_ApprovesSubscriptions(t *testing.T) {
	h := NewHandler(&echoBot{})
	s := &fakeSender{}

	h.HandlePresence(s, stanza.Presence{Attrs: stanza.Attrs{From: "a@x", To: "m.x", Type: "subscribe"}})
	require.Len(t, s.packets, 1)
	pres, ok := s.packets[0].(stanza.Presence)
	require.True(t, ok)
	assert.Equal(t, "a@x", pres.To)
}

func TestDeliverer_SendFile(t *testing.T) {
	store := filecache.NewMemoryStore(time.Hour)
	s := &fakeSender{}
	d := NewDeliverer(s, "mint.example.org", store, "https://mint.example.org/")

	path := filepath.Join(t.TempDir(), "certificate-1.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\nrest"), 0o600))

	require.NoError(t, d.SendFile(context.Background(), "alice@example.org", path, "Your certificate"))

	msgs := s.messages()
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Extensions, 1)
	oob, ok := msgs[0].Extensions[0].(stanza.OOB)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(oob.URL, "https://mint.example.org/api/files/"))
	assert.Contains(t, msgs[0].Body, oob.URL)

	// The link resolves through the file cache handler.
	id := strings.TrimPrefix(oob.URL, "https://mint.example.org/api/files/")
	r := chi.NewRouter()
	r.Get("/api/files/{fileID}", filecache.Handler(store))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files/"+id, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
}

func TestDeliverer_Errors(t *testing.T) {
	store := filecache.NewMemoryStore(time.Hour)
	s := &fakeSender{err: errors.New("not connected")}
	d := NewDeliverer(s, "mint.example.org", store, "https://mint.example.org")

	assert.Error(t, d.SendText(context.Background(), "a@x", "hi"))
	assert.Error(t, d.SendFile(context.Background(), "a@x", "/nonexistent.png", "c"))
}
