package certificate

import (
	"log/slog"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
)

// loadFont returns the decorative font at path, the built-in Go Bold when that
// fails, and nil when neither parses. A nil font means basicfont is used.
func loadFont(path string) *opentype.Font {
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			f, perr := opentype.Parse(data)
			if perr == nil {
				return f
			}
			err = perr
		}
		slog.Warn("certificate: decorative font unavailable, using built-in", "path", path, "error", err)
	}

	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		slog.Error("certificate: built-in font failed to parse, using bitmap face", "error", err)
		return nil
	}
	return f
}

// faceSet creates faces lazily for one Compose call. opentype faces are not
// safe for concurrent use, so a set is never shared between calls.
type faceSet struct {
	font  *opentype.Font
	faces map[float64]font.Face
}

func newFaceSet(f *opentype.Font) *faceSet {
	return &faceSet{font: f, faces: make(map[float64]font.Face)}
}

func (s *faceSet) face(size float64) font.Face {
	if s.font == nil {
		return basicfont.Face7x13
	}
	if f, ok := s.faces[size]; ok {
		return f
	}
	f, err := opentype.NewFace(s.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		slog.Warn("certificate: creating font face failed, using bitmap face", "size", size, "error", err)
		return basicfont.Face7x13
	}
	s.faces[size] = f
	return f
}

// scalable reports whether changing the size changes the rendered width.
func (s *faceSet) scalable() bool { return s.font != nil }

func (s *faceSet) Close() {
	for _, f := range s.faces {
		f.Close()
	}
}
