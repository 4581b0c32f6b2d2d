// Package bot implements the chat front-end: form links, invoices and help.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/burdenmint/burdenmint/internal/auth"
	"github.com/burdenmint/burdenmint/internal/metrics"
	"github.com/burdenmint/burdenmint/internal/netguard"
	"github.com/burdenmint/burdenmint/internal/payments"
)

const MaxBurdenLength = 200

var (
	ErrEmptyBurden     = errors.New("burden is required")
	ErrBurdenTooLong   = fmt.Errorf("burden must be at most %d characters", MaxBurdenLength)
	ErrInvalidPhotoURL = errors.New("photo_url must be a public http or https URL")
)

const HelpText = `Burden Mint turns what weighs on you into a certificate of release.

/start  get a link to the form
/burden <text>  order a certificate for <text>
/help  show this message`

type Options struct {
	Tokens      *auth.FormTokens
	FormURL     string
	Provider    payments.Provider
	Photos      PhotoRegistry
	Amount      string
	Description string
}

type Service struct {
	opts Options
}

func NewService(opts Options) *Service {
	if opts.Photos == nil {
		opts.Photos = NewMemoryPhotoRegistry(24 * time.Hour)
	}
	return &Service{opts: opts}
}

// FormLink returns the web form URL carrying a signed token for userID.
func (s *Service) FormLink(userID string) (string, error) {
	token, err := s.opts.Tokens.Issue(userID)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(s.opts.FormURL)
	if err != nil {
		return "", fmt.Errorf("parsing form url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ChatUser resolves a form token back to the chat user that requested it.
func (s *Service) ChatUser(token string) (string, error) {
	claims, err := s.opts.Tokens.Validate(token)
	if err != nil {
		return "", err
	}
	return claims.ChatUser, nil
}

// RequestInvoice validates a submission, remembers its photo and opens an
// invoice whose payload is "{user_id}:{burden}".
func (s *Service) RequestInvoice(ctx context.Context, userID, burden, photoURL string) (*payments.Invoice, error) {
	burden = strings.TrimSpace(burden)
	if burden == "" {
		return nil, ErrEmptyBurden
	}
	if utf8.RuneCountInString(burden) > MaxBurdenLength {
		return nil, ErrBurdenTooLong
	}
	if photoURL != "" && !validPhotoURL(photoURL) {
		return nil, ErrInvalidPhotoURL
	}

	if err := s.opts.Photos.Remember(ctx, userID, photoURL); err != nil {
		slog.Warn("remembering photo, continuing without it", "user_id", userID, "error", err)
	}

	inv, err := s.opts.Provider.CreateInvoice(ctx, payments.InvoiceRequest{
		UserID:      userID,
		Burden:      burden,
		Amount:      s.opts.Amount,
		Description: s.opts.Description,
	})
	if err != nil {
		return nil, err
	}

	metrics.InvoicesCreatedTotal.WithLabelValues(s.opts.Provider.Name()).Inc()
	slog.Info("invoice created", "provider", s.opts.Provider.Name(), "invoice_id", inv.ID, "user_id", userID)
	return inv, nil
}

// Reply handles one chat message and returns the text to send back.
func (s *Service) Reply(ctx context.Context, userID, body string) string {
	cmd := ParseCommand(body)
	switch cmd.Kind {
	case CommandStart:
		link, err := s.FormLink(userID)
		if err != nil {
			slog.Error("issuing form link", "user_id", userID, "error", err)
			return "Sorry, something went wrong. Please try again later."
		}
		return "Welcome. Tell us what you want to let go of here: " + link
	case CommandHelp:
		return HelpText
	case CommandSubmit:
		inv, err := s.RequestInvoice(ctx, userID, cmd.Burden, cmd.PhotoURL)
		switch {
		case errors.Is(err, ErrEmptyBurden), errors.Is(err, ErrBurdenTooLong), errors.Is(err, ErrInvalidPhotoURL):
			return "Sorry, " + err.Error() + "."
		case err != nil:
			slog.Error("creating invoice", "user_id", userID, "error", err)
			return "Sorry, the payment service is unavailable. Please try again later."
		}
		return PayMessage(inv)
	}
	return "I did not understand that. Send /start to begin or /help for commands."
}

// PayMessage is the chat text that carries an invoice link.
func PayMessage(inv *payments.Invoice) string {
	return "Your certificate is ready to be minted. Pay here and it will be delivered to this chat: " + inv.PayURL
}

func validPhotoURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return netguard.PublicHost(u.Hostname())
}
