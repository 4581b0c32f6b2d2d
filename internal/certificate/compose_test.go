package certificate

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bg = color.RGBA{R: 20, G: 30, B: 60, A: 255}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func sameRGB(a, b color.Color) bool {
	ar, ag, ab, _ := a.RGBA()
	br, bgr, bb, _ := b.RGBA()
	return ar>>8 == br>>8 && ag>>8 == bgr>>8 && ab>>8 == bb>>8
}

// bandHasInk reports whether any pixel within +-half rows of y differs from the background.
func bandHasInk(img image.Image, y, half int) bool {
	for yy := y - half; yy <= y+half; yy++ {
		for x := textMargin; x < CanvasSize-textMargin; x++ {
			if !sameRGB(img.At(x, yy), bg) {
				return true
			}
		}
	}
	return false
}

func fullRequest() Request {
	return Request{
		Background: solid(CanvasSize, CanvasSize, bg),
		BurdenText: "fear of public speaking",
		RankLabel:  "legendary",
		HolderID:   "INV-000123",
	}
}

func TestCompose_DimensionsWithoutPhoto(t *testing.T) {
	c := NewCompositor("")
	out, err := c.Compose(fullRequest())
	require.NoError(t, err)

	img := decodePNG(t, out)
	assert.Equal(t, image.Rect(0, 0, CanvasSize, CanvasSize), img.Bounds())
}

func TestCompose_DimensionsWithPhoto(t *testing.T) {
	c := NewCompositor("")
	req := fullRequest()
	req.Photo = solid(PhotoSize, PhotoSize, color.RGBA{R: 200, A: 255})

	out, err := c.Compose(req)
	require.NoError(t, err)

	img := decodePNG(t, out)
	assert.Equal(t, image.Rect(0, 0, CanvasSize, CanvasSize), img.Bounds())

	// Centre of the frame shows the photo, its corner shows the background.
	centre := img.At(PhotoOffsetX+PhotoSize/2, PhotoOffsetY+PhotoSize/2)
	assert.True(t, sameRGB(centre, color.RGBA{R: 200, A: 255}), "centre %v", centre)
	corner := img.At(PhotoOffsetX+2, PhotoOffsetY+2)
	assert.True(t, sameRGB(corner, bg), "corner %v", corner)
}

func TestCompose_ResizesInputs(t *testing.T) {
	c := NewCompositor("")
	req := fullRequest()
	req.Background = solid(512, 768, bg)
	req.Photo = solid(640, 480, color.RGBA{G: 200, A: 255})

	img, err := c.Render(req)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, CanvasSize, CanvasSize), img.Bounds())
}

func TestCompose_MissingFontStillRendersLabels(t *testing.T) {
	c := NewCompositor(filepath.Join(t.TempDir(), "does-not-exist.ttf"))
	img, err := c.Render(fullRequest())
	require.NoError(t, err)

	for name, l := range map[string]Label{
		"title":  TitleLabel,
		"rank":   RankLabel,
		"burden": BurdenLabel,
		"holder": HolderLabel,
	} {
		assert.True(t, bandHasInk(img, l.Y, 20), "%s label not rendered", name)
	}

	// Foreground colour of the title is present somewhere in its band.
	found := false
	for y := TitleLabel.Y - 30; y <= TitleLabel.Y+30 && !found; y++ {
		for x := 0; x < CanvasSize; x++ {
			if sameRGB(img.At(x, y), Gold) {
				found = true
				break
			}
		}
	}
	assert.True(t, found, "title not drawn in gold")
}

func TestCompose_BitmapFallbackRendersLabels(t *testing.T) {
	c := &Compositor{}
	img, err := c.Render(fullRequest())
	require.NoError(t, err)

	for _, l := range []Label{TitleLabel, RankLabel, BurdenLabel, HolderLabel} {
		assert.True(t, bandHasInk(img, l.Y, 12))
	}
}

func TestCompose_LongBurdenFitsCanvas(t *testing.T) {
	c := NewCompositor("")
	req := fullRequest()
	req.BurdenText = "the weight of every unanswered email, every postponed dentist appointment and every unfinished side project"

	img, err := c.Render(req)
	require.NoError(t, err)

	// Nothing spills into the side margins on the burden row.
	for y := BurdenLabel.Y - 20; y <= BurdenLabel.Y+20; y++ {
		for x := 0; x < textMargin-shadowOffset; x++ {
			assert.True(t, sameRGB(img.At(x, y), bg), "ink at (%d,%d)", x, y)
		}
	}
}

func TestCompose_NoBackground(t *testing.T) {
	_, err := NewCompositor("").Compose(Request{BurdenText: "x"})
	assert.ErrorIs(t, err, ErrNoBackground)
}

func TestFill_CentreCrops(t *testing.T) {
	// Left half red, right half blue, twice as wide as tall.
	src := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= 100 {
				c = color.RGBA{B: 255, A: 255}
			}
			src.Set(x, y, c)
		}
	}

	dst := Fill(src, 100, 100)
	assert.Equal(t, image.Rect(0, 0, 100, 100), dst.Bounds())
	assert.True(t, sameRGB(dst.At(10, 50), color.RGBA{R: 255, A: 255}))
	assert.True(t, sameRGB(dst.At(90, 50), color.RGBA{B: 255, A: 255}))
}

func TestDecode_RoundTripsPNG(t *testing.T) {
	data, err := EncodePNG(solid(8, 8, bg))
	require.NoError(t, err)
	img, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	_, err = Decode([]byte("not an image"))
	assert.Error(t, err)
}

// pngHeader returns a PNG signature and IHDR chunk declaring w x h pixels and no image data.
func pngHeader(w, h uint32) []byte {
	var ihdr [13]byte
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 0 // grayscale

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr[:]...)
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestDecode_RejectsOversizedImages(t *testing.T) {
	_, err := Decode(pngHeader(12000, 12000))
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = CheckSize(pngHeader(4097, 4096))
	assert.ErrorIs(t, err, ErrImageTooLarge)

	format, err := CheckSize(pngHeader(4096, 4096))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}
