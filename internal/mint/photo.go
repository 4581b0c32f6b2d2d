package mint

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/go-oss/image/imageutil"

	"github.com/burdenmint/burdenmint/internal/certificate"
	"github.com/burdenmint/burdenmint/internal/netguard"
)

const (
	maxPhotoSize      = 10 << 20
	maxPhotoRedirects = 3
)

var ErrPhotoTooLarge = fmt.Errorf("photo exceeds %d bytes", maxPhotoSize)

// PhotoFetcher downloads a user photo from a public host. JPEG input is
// decoded with its EXIF orientation applied and the metadata discarded.
type PhotoFetcher struct {
	client *http.Client
}

func NewPhotoFetcher(timeout time.Duration) *PhotoFetcher {
	return newPhotoFetcher(timeout, netguard.Control)
}

func newPhotoFetcher(timeout time.Duration, control func(network, address string, c syscall.RawConn) error) *PhotoFetcher {
	dialer := &net.Dialer{Timeout: 10 * time.Second, Control: control}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
	return &PhotoFetcher{client: &http.Client{
		Timeout:       timeout,
		Transport:     transport,
		CheckRedirect: checkPhotoRedirect,
	}}
}

func checkPhotoRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxPhotoRedirects {
		return fmt.Errorf("stopped after %d redirects", maxPhotoRedirects)
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
	}
	return nil
}

func (f *PhotoFetcher) Fetch(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building photo request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching photo: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading photo: %w", err)
	}
	if len(data) > maxPhotoSize {
		return nil, ErrPhotoTooLarge
	}

	if _, err := certificate.CheckSize(data); err != nil {
		return nil, fmt.Errorf("checking photo: %w", err)
	}

	img, err := imageutil.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding photo: %w", err)
	}
	return img.Image, nil
}
