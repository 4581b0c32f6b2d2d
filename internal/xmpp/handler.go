package xmpp

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"gosrc.io/xmpp"
	"gosrc.io/xmpp/stanza"
)

const replyTimeout = 20 * time.Second

// Replier answers one chat message from userID.
type Replier interface {
	Reply(ctx context.Context, userID, body string) string
}

// Handler processes incoming XMPP stanzas and answers them through the bot.
type Handler struct {
	bot Replier
}

// NewHandler creates a new XMPP stanza handler.
func NewHandler(bot Replier) *Handler {
	return &Handler{bot: bot}
}

// HandleMessage answers incoming <message> stanzas. The chat user id is the
// sender's bare JID.
func (h *Handler) HandleMessage(s xmpp.Sender, p stanza.Packet) {
	msg, ok := p.(stanza.Message)
	if !ok {
		return
	}

	if msg.Body == "" || msg.Type == "error" {
		return
	}

	slog.Debug("XMPP message received",
		"from", msg.From,
		"to", msg.To,
		"type", string(msg.Type),
	)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic handling XMPP message", "panic", rec, "from", msg.From)
			h.send(s, msg.To, msg.From, "Internal error processing your message")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	reply := h.bot.Reply(ctx, BareJID(msg.From), msg.Body)
	h.send(s, msg.To, msg.From, reply)
}

// HandlePresence processes incoming <presence> stanzas, auto-approving subscribe requests.
func (h *Handler) HandlePresence(s xmpp.Sender, p stanza.Packet) {
	pres, ok := p.(stanza.Presence)
	if !ok {
		return
	}

	slog.Debug("XMPP presence received",
		"from", pres.From,
		"to", pres.To,
		"type", string(pres.Type),
	)

	if pres.Type == "subscribe" {
		reply := stanza.Presence{
			Attrs: stanza.Attrs{
				From: pres.To,
				To:   pres.From,
				Type: "subscribed",
			},
		}
		if err := s.Send(reply); err != nil {
			slog.Error("sending presence subscribed reply", "error", err)
		}
	}
}

// HandleIQ processes incoming <iq> stanzas.
func (h *Handler) HandleIQ(_ xmpp.Sender, p stanza.Packet) {
	iq, ok := p.(*stanza.IQ)
	if !ok {
		return
	}
	slog.Debug("XMPP IQ received", "from", iq.From, "to", iq.To, "type", string(iq.Type))
}

func (h *Handler) send(s xmpp.Sender, from, to, body string) {
	msg := stanza.Message{
		Attrs: stanza.Attrs{
			From: from,
			To:   to,
			Type: "chat",
		},
		Body: body,
	}
	if err := s.Send(msg); err != nil {
		slog.Error("sending XMPP reply", "error", err, "to", to)
	}
}

// BareJID strips the resource part from a JID: "user@host/phone" -> "user@host".
func BareJID(jid string) string {
	bare, _, _ := strings.Cut(jid, "/")
	return strings.ToLower(bare)
}
