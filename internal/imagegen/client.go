// Package imagegen is a client for a Stability-style image generation REST API.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/burdenmint/burdenmint/internal/metrics"
)

const (
	DefaultBaseURL = "https://api.stability.ai"
	DefaultEngine  = "stable-diffusion-xl-1024-v1-0"
	DefaultTimeout = 60 * time.Second

	// maxErrorBody caps how much of an upstream error body is kept.
	maxErrorBody = 2048
	maxImageBody = 32 << 20
)

var (
	ErrUpstream      = errors.New("image generation upstream failure")
	ErrMissingAPIKey = errors.New("image generation api key missing")
)

// UpstreamError carries the remote status and message. It matches ErrUpstream.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("image generation failed with status %d: %s", e.Status, e.Message)
}

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Generator is what the HTTP handlers and the certificate pipeline need.
type Generator interface {
	TextToImage(ctx context.Context, prompt string) ([]byte, error)
	ImageToImage(ctx context.Context, prompt string, initImage []byte) ([]byte, error)
}

type Options struct {
	BaseURL       string
	APIKey        string
	Engine        string
	Timeout       time.Duration
	Width         int
	Height        int
	Steps         int
	CFGScale      float64
	ImageStrength float64
	HTTPClient    *http.Client
}

type Client struct {
	opts Options
	http *http.Client
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Engine == "" {
		opts.Engine = DefaultEngine
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Width == 0 {
		opts.Width = 1024
	}
	if opts.Height == 0 {
		opts.Height = 1024
	}
	if opts.Steps == 0 {
		opts.Steps = 30
	}
	if opts.CFGScale == 0 {
		opts.CFGScale = 7
	}
	if opts.ImageStrength == 0 {
		opts.ImageStrength = 0.35
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{opts: opts, http: hc}
}

type textPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

type textToImageRequest struct {
	TextPrompts []textPrompt `json:"text_prompts"`
	CFGScale    float64      `json:"cfg_scale"`
	Height      int          `json:"height"`
	Width       int          `json:"width"`
	Samples     int          `json:"samples"`
	Steps       int          `json:"steps"`
}

// TextToImage renders prompt and returns the PNG bytes.
func (c *Client) TextToImage(ctx context.Context, prompt string) ([]byte, error) {
	body, err := json.Marshal(textToImageRequest{
		TextPrompts: []textPrompt{{Text: prompt, Weight: 1}},
		CFGScale:    c.opts.CFGScale,
		Height:      c.opts.Height,
		Width:       c.opts.Width,
		Samples:     1,
		Steps:       c.opts.Steps,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling text-to-image request: %w", err)
	}
	return c.do(ctx, "text-to-image", "application/json", bytes.NewReader(body))
}

// ImageToImage renders prompt using initImage (PNG) as the starting point.
func (c *Client) ImageToImage(ctx context.Context, prompt string, initImage []byte) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("init_image", "init.png")
	if err != nil {
		return nil, fmt.Errorf("creating init_image part: %w", err)
	}
	if _, err := part.Write(initImage); err != nil {
		return nil, fmt.Errorf("writing init_image part: %w", err)
	}

	fields := map[string]string{
		"init_image_mode":         "IMAGE_STRENGTH",
		"image_strength":          strconv.FormatFloat(c.opts.ImageStrength, 'f', -1, 64),
		"text_prompts[0][text]":   prompt,
		"text_prompts[0][weight]": "1",
		"cfg_scale":               strconv.FormatFloat(c.opts.CFGScale, 'f', -1, 64),
		"samples":                 "1",
		"steps":                   strconv.Itoa(c.opts.Steps),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("writing field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	return c.do(ctx, "image-to-image", mw.FormDataContentType(), &buf)
}

func (c *Client) do(ctx context.Context, op, contentType string, body io.Reader) ([]byte, error) {
	if c.opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/generation/%s/%s", c.opts.BaseURL, c.opts.Engine, op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "image/png")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.UpstreamDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %s request: %v", ErrUpstream, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &UpstreamError{Status: resp.StatusCode, Message: upstreamMessage(raw)}
	}

	img, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBody))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s response: %v", ErrUpstream, op, err)
	}
	if len(img) == 0 {
		return nil, &UpstreamError{Status: resp.StatusCode, Message: "empty image body"}
	}
	return img, nil
}

// upstreamMessage extracts the "message" field of a JSON error body when present.
func upstreamMessage(raw []byte) string {
	var payload struct {
		Message string `json:"message"`
		Name    string `json:"name"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		return http.StatusText(http.StatusBadGateway)
	}
	return msg
}
