package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	CryptoPayBaseURL         = "https://pay.crypt.bot/api"
	CryptoPaySignatureHeader = "Crypto-Pay-Api-Signature"
	cryptoPayTokenHeader     = "Crypto-Pay-API-Token"
	cryptoPayInvoicePaid     = "invoice_paid"
)

type CryptoPayOptions struct {
	Token      string
	BaseURL    string
	Asset      string
	HTTPClient *http.Client
}

// CryptoPay talks to the Crypto Pay API.
type CryptoPay struct {
	opts CryptoPayOptions
	http *http.Client
}

func NewCryptoPay(opts CryptoPayOptions) *CryptoPay {
	if opts.BaseURL == "" {
		opts.BaseURL = CryptoPayBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Asset == "" {
		opts.Asset = "USDT"
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &CryptoPay{opts: opts, http: hc}
}

func (c *CryptoPay) Name() string { return "cryptopay" }

type cryptoPayInvoice struct {
	InvoiceID     int64  `json:"invoice_id"`
	Status        string `json:"status"`
	BotInvoiceURL string `json:"bot_invoice_url"`
	PayURL        string `json:"pay_url"`
	Payload       string `json:"payload"`
}

type cryptoPayResponse struct {
	OK     bool             `json:"ok"`
	Result cryptoPayInvoice `json:"result"`
	Error  *struct {
		Code int    `json:"code"`
		Name string `json:"name"`
	} `json:"error"`
}

func (c *CryptoPay) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	body, err := json.Marshal(map[string]any{
		"asset":       c.opts.Asset,
		"amount":      req.Amount,
		"description": req.Description,
		"payload":     EncodePayload(req.UserID, req.Burden),
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling invoice request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/createInvoice", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating invoice request: %w", err)
	}
	httpReq.Header.Set(cryptoPayTokenHeader, c.opts.Token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: createInvoice: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("%w: reading createInvoice response: %v", ErrProvider, err)
	}

	var out cryptoPayResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: createInvoice status %d: %s", ErrProvider, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if !out.OK {
		name := "unknown error"
		if out.Error != nil {
			name = out.Error.Name
		}
		return nil, fmt.Errorf("%w: createInvoice: %s", ErrProvider, name)
	}

	payURL := out.Result.BotInvoiceURL
	if payURL == "" {
		payURL = out.Result.PayURL
	}
	return &Invoice{ID: strconv.FormatInt(out.Result.InvoiceID, 10), PayURL: payURL}, nil
}

type cryptoPayUpdate struct {
	UpdateID   int64            `json:"update_id"`
	UpdateType string           `json:"update_type"`
	Payload    cryptoPayInvoice `json:"payload"`
}

// ParseWebhook checks the HMAC-SHA256 signature keyed by SHA256(token) and decodes invoice_paid updates.
func (c *CryptoPay) ParseWebhook(header http.Header, body []byte) (*PaidEvent, error) {
	if !c.validSignature(header.Get(CryptoPaySignatureHeader), body) {
		return nil, ErrInvalidSignature
	}

	var upd cryptoPayUpdate
	if err := json.Unmarshal(body, &upd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if upd.UpdateType != cryptoPayInvoicePaid {
		return nil, ErrIgnoredEvent
	}

	userID, burden, err := DecodePayload(upd.Payload.Payload)
	if err != nil {
		return nil, err
	}
	return &PaidEvent{
		Provider:  c.Name(),
		InvoiceID: strconv.FormatInt(upd.Payload.InvoiceID, 10),
		UserID:    userID,
		Burden:    burden,
	}, nil
}

func (c *CryptoPay) validSignature(signature string, body []byte) bool {
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return false
	}
	secret := sha256.Sum256([]byte(c.opts.Token))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
