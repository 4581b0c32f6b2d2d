package mint

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/burdenmint/burdenmint/internal/certificate"
	"github.com/burdenmint/burdenmint/internal/imagegen"
	"github.com/burdenmint/burdenmint/internal/metrics"
	"github.com/burdenmint/burdenmint/internal/prompts"
)

const failureNotice = "Something went wrong while minting your certificate. Please contact support with invoice "

// Deliverer sends text and files back to a chat user.
type Deliverer interface {
	SendText(ctx context.Context, to, body string) error
	SendFile(ctx context.Context, to, path, caption string) error
}

// PhotoLookup returns the photo URL a user submitted, or "" when there is none.
type PhotoLookup interface {
	PhotoURL(ctx context.Context, userID string) (string, error)
}

type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (image.Image, error)
}

type PromptSelector interface {
	Select(burden, tier string) (string, prompts.Tier)
}

type Options struct {
	Images     imagegen.Generator
	Prompts    PromptSelector
	Compositor *certificate.Compositor
	Photos     PhotoLookup
	Fetcher    ImageFetcher
	Deliverer  Deliverer
	Tier       string
	AudioPath  string
	TempDir    string
}

// Pipeline renders and delivers paid certificates. It is safe for concurrent use.
type Pipeline struct {
	opts Options
}

func NewPipeline(opts Options) *Pipeline {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Pipeline{opts: opts}
}

// Run executes job end to end. On failure the user is told and the error returned.
func (p *Pipeline) Run(ctx context.Context, job Job) error {
	log := slog.With("job_id", job.ID, "invoice_id", job.InvoiceID, "user_id", job.UserID)

	if err := p.run(ctx, job, log); err != nil {
		metrics.CertificatesTotal.WithLabelValues("failed").Inc()
		log.Error("certificate job failed", "error", err)
		if nerr := p.opts.Deliverer.SendText(ctx, job.UserID, failureNotice+job.InvoiceID+"."); nerr != nil {
			log.Warn("notifying user of failed job", "error", nerr)
		}
		return err
	}

	metrics.CertificatesTotal.WithLabelValues("delivered").Inc()
	log.Info("certificate delivered")
	return nil
}

func (p *Pipeline) run(ctx context.Context, job Job, log *slog.Logger) error {
	prompt, tier := p.opts.Prompts.Select(job.Burden, p.opts.Tier)

	raw, err := p.opts.Images.TextToImage(ctx, prompt)
	if err != nil {
		return fmt.Errorf("generating background: %w", err)
	}
	background, err := certificate.Decode(raw)
	if err != nil {
		return fmt.Errorf("reading background: %w", err)
	}

	out, err := p.opts.Compositor.Compose(certificate.Request{
		Background: background,
		Photo:      p.photo(ctx, job.UserID, log),
		BurdenText: job.Burden,
		RankLabel:  RankLabel(tier),
		HolderID:   job.InvoiceID,
	})
	if err != nil {
		return fmt.Errorf("composing certificate: %w", err)
	}

	path, err := p.writeTemp(out)
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("removing certificate temp file", "path", path, "error", err)
		}
	}()

	if err := p.opts.Deliverer.SendFile(ctx, job.UserID, path, "Your certificate of release"); err != nil {
		return fmt.Errorf("delivering certificate: %w", err)
	}

	p.sendAudio(ctx, job.UserID, log)
	return nil
}

// photo returns nil whenever the user has no usable photo.
func (p *Pipeline) photo(ctx context.Context, userID string, log *slog.Logger) image.Image {
	if p.opts.Photos == nil || p.opts.Fetcher == nil {
		return nil
	}
	url, err := p.opts.Photos.PhotoURL(ctx, userID)
	if err != nil {
		log.Warn("looking up photo", "error", err)
		return nil
	}
	if url == "" {
		return nil
	}
	img, err := p.opts.Fetcher.Fetch(ctx, url)
	if err != nil {
		log.Warn("fetching photo, composing without it", "error", err)
		return nil
	}
	return img
}

func (p *Pipeline) writeTemp(data []byte) (string, error) {
	f, err := os.CreateTemp(p.opts.TempDir, "certificate-*.png")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	return path, nil
}

func (p *Pipeline) sendAudio(ctx context.Context, to string, log *slog.Logger) {
	if p.opts.AudioPath == "" {
		return
	}
	if _, err := os.Stat(p.opts.AudioPath); err != nil {
		log.Warn("audio clip unavailable", "path", p.opts.AudioPath, "error", err)
		return
	}
	if err := p.opts.Deliverer.SendFile(ctx, to, p.opts.AudioPath, filepath.Base(p.opts.AudioPath)); err != nil {
		log.Warn("sending audio clip", "error", err)
	}
}

// RankLabel is the line printed under the title for a tier.
func RankLabel(tier prompts.Tier) string {
	return strings.ToUpper(string(tier)) + " RELEASE"
}
