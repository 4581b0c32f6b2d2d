// Package certificate composites the "certificate of release" image.
package certificate

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
)

const (
	CanvasSize = 1024

	// Photo frame: 420x420 placed so its centre sits at (512, 472).
	PhotoSize    = 420
	PhotoOffsetX = 302
	PhotoOffsetY = 262

	Title = "CERTIFICATE OF RELEASE"

	// MaxSourcePixels caps the declared size of any decoded input image.
	MaxSourcePixels = 4096 * 4096

	shadowOffset = 3
	textMargin   = 64
	minTextSize  = 18
)

var (
	ErrNoBackground  = errors.New("certificate background is required")
	ErrImageTooLarge = fmt.Errorf("image exceeds %d pixels", MaxSourcePixels)
)

var (
	Gold      = color.RGBA{R: 0xE8, G: 0xC5, B: 0x47, A: 0xFF}
	White     = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	MutedGray = color.RGBA{R: 0xA8, G: 0xA8, B: 0xB0, A: 0xFF}
	Shadow    = color.RGBA{R: 0x10, G: 0x0C, B: 0x08, A: 0xFF}
)

// Label is a line of text centre-anchored at (CanvasSize/2, Y).
type Label struct {
	Y     int
	Size  float64
	Color color.Color
}

var (
	TitleLabel  = Label{Y: 130, Size: 58, Color: Gold}
	RankLabel   = Label{Y: 200, Size: 38, Color: Gold}
	BurdenLabel = Label{Y: 790, Size: 46, Color: White}
	HolderLabel = Label{Y: 900, Size: 26, Color: MutedGray}
)

// Request is everything a certificate shows. Photo may be nil.
type Request struct {
	Background image.Image
	Photo      image.Image
	BurdenText string
	RankLabel  string
	HolderID   string
}

// Compositor renders certificates. It is safe for concurrent use.
type Compositor struct {
	font *opentype.Font
}

// NewCompositor loads the decorative font at fontPath. Any failure falls back
// to the built-in face; construction never fails.
func NewCompositor(fontPath string) *Compositor {
	return &Compositor{font: loadFont(fontPath)}
}

// Compose renders req and encodes it as PNG.
func (c *Compositor) Compose(req Request) ([]byte, error) {
	img, err := c.Render(req)
	if err != nil {
		return nil, err
	}
	return EncodePNG(img)
}

// Render draws the certificate onto a CanvasSize square.
func (c *Compositor) Render(req Request) (*image.RGBA, error) {
	if req.Background == nil {
		return nil, ErrNoBackground
	}

	canvas := Fill(req.Background, CanvasSize, CanvasSize)

	if req.Photo != nil {
		photo := Fill(req.Photo, PhotoSize, PhotoSize)
		frame := image.Rect(PhotoOffsetX, PhotoOffsetY, PhotoOffsetX+PhotoSize, PhotoOffsetY+PhotoSize)
		draw.DrawMask(canvas, frame, photo, image.Point{}, circleMask{diameter: PhotoSize}, image.Point{}, draw.Over)
	}

	faces := newFaceSet(c.font)
	defer faces.Close()

	drawLabel(canvas, faces, TitleLabel, Title)
	drawLabel(canvas, faces, RankLabel, strings.ToUpper(req.RankLabel))
	drawLabel(canvas, faces, BurdenLabel, req.BurdenText)
	drawLabel(canvas, faces, HolderLabel, req.HolderID)

	return canvas, nil
}

// Fill scales src to cover a w x h box and centre-crops the overflow.
func Fill(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return dst
	}

	// Crop src to the target aspect ratio first.
	crop := b
	if b.Dx()*h > b.Dy()*w {
		cw := b.Dy() * w / h
		crop.Min.X = b.Min.X + (b.Dx()-cw)/2
		crop.Max.X = crop.Min.X + cw
	} else {
		ch := b.Dx() * h / w
		crop.Min.Y = b.Min.Y + (b.Dy()-ch)/2
		crop.Max.Y = crop.Min.Y + ch
	}

	if crop.Dx() == w && crop.Dy() == h {
		draw.Draw(dst, dst.Bounds(), src, crop.Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst
}

// drawLabel draws text twice: a dark shadow offset by shadowOffset, then the
// foreground. Text wider than the canvas margin is shrunk, then truncated.
func drawLabel(dst draw.Image, faces *faceSet, l Label, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	face, text := fit(faces, l.Size, text, CanvasSize-2*textMargin)
	d := &font.Drawer{Dst: dst, Face: face}

	m := face.Metrics()
	x := fixed.I(CanvasSize/2) - d.MeasureString(text)/2
	y := fixed.I(l.Y) + (m.Ascent-m.Descent)/2

	d.Src = image.NewUniform(Shadow)
	d.Dot = fixed.Point26_6{X: x + fixed.I(shadowOffset), Y: y + fixed.I(shadowOffset)}
	d.DrawString(text)

	d.Src = image.NewUniform(l.Color)
	d.Dot = fixed.Point26_6{X: x, Y: y}
	d.DrawString(text)
}

func fit(faces *faceSet, size float64, text string, maxWidth int) (font.Face, string) {
	limit := fixed.I(maxWidth)

	face := faces.face(size)
	for faces.scalable() && size > minTextSize && font.MeasureString(face, text) > limit {
		size -= 2
		face = faces.face(size)
	}

	if font.MeasureString(face, text) <= limit {
		return face, text
	}
	runes := []rune(text)
	for len(runes) > 0 && font.MeasureString(face, string(runes)+"...") > limit {
		runes = runes[:len(runes)-1]
	}
	return face, string(runes) + "..."
}

// circleMask is an opaque disc inscribed in a diameter x diameter square.
type circleMask struct {
	diameter int
}

func (m circleMask) ColorModel() color.Model { return color.AlphaModel }

func (m circleMask) Bounds() image.Rectangle { return image.Rect(0, 0, m.diameter, m.diameter) }

func (m circleMask) At(x, y int) color.Color {
	r := float64(m.diameter) / 2
	dx := float64(x) + 0.5 - r
	dy := float64(y) + 0.5 - r
	if dx*dx+dy*dy <= r*r {
		return color.Alpha{A: 0xFF}
	}
	return color.Alpha{}
}

// CheckSize reads only the image header and rejects images whose declared
// dimensions exceed MaxSourcePixels. It returns the registered format name.
func CheckSize(data []byte) (string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decoding image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxSourcePixels {
		return "", fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	return format, nil
}

// Decode decodes a PNG, JPEG or WebP image after checking its declared size.
func Decode(data []byte) (image.Image, error) {
	if _, err := CheckSize(data); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}
