package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	StripeSignatureHeader   = "Stripe-Signature"
	stripePayloadKey        = "payload"
	stripeCheckoutCompleted = "checkout.session.completed"
)

type StripeOptions struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	UnitAmount    int64
	SuccessURL    string
	// Backend overrides the API backend. Tests point it at an httptest server.
	Backend stripe.Backend
}

// Stripe sells certificates through Checkout Sessions. The invoice payload
// travels in the session metadata.
type Stripe struct {
	opts     StripeOptions
	sessions *session.Client
}

func NewStripe(opts StripeOptions) *Stripe {
	if opts.Currency == "" {
		opts.Currency = string(stripe.CurrencyUSD)
	}
	backend := opts.Backend
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &Stripe{
		opts:     opts,
		sessions: &session.Client{B: backend, Key: opts.SecretKey},
	}
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(s.opts.Currency),
					UnitAmount: stripe.Int64(s.opts.UnitAmount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(req.UserID),
		SuccessURL:        stripe.String(s.opts.SuccessURL),
	}
	params.Context = ctx
	params.AddMetadata(stripePayloadKey, EncodePayload(req.UserID, req.Burden))

	sess, err := s.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: creating checkout session: %v", ErrProvider, err)
	}
	return &Invoice{ID: sess.ID, PayURL: sess.URL}, nil
}

func (s *Stripe) ParseWebhook(header http.Header, body []byte) (*PaidEvent, error) {
	event, err := webhook.ConstructEventWithOptions(
		body,
		header.Get(StripeSignatureHeader),
		s.opts.WebhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if event.Type != stripeCheckoutCompleted {
		return nil, ErrIgnoredEvent
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, ErrIgnoredEvent
	}

	userID, burden, err := DecodePayload(sess.Metadata[stripePayloadKey])
	if err != nil {
		return nil, err
	}
	return &PaidEvent{
		Provider:  s.Name(),
		InvoiceID: sess.ID,
		UserID:    userID,
		Burden:    burden,
	}, nil
}
