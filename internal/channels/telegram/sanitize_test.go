package telegram

import (
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"
	"testing"
)

// writeTempPNG writes a solid-color PNG of the given dimensions and returns its path.
func writeTempPNG(t *testing.T, w, h int) string {
	t.Helper()
	f, err := os.CreateTemp("", "sanitize_test_*.png")
	if err != nil {
		t.Fatalf("create temp image file: %v", err)
	}
	defer f.Close()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 200, B: 30, A: 255})
		}
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode temp png: %v", err)
	}
	return f.Name()
}

func TestSanitizeImage_SmallImageUntouchedDimensions(t *testing.T) {
	src := writeTempPNG(t, 100, 80)
	defer os.Remove(src)

	out, err := sanitizeImage(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer os.Remove(out)

	if _, err := os.Stat(out); err != nil {
		t.Fatalf("sanitized output missing: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("expected original file %s to be removed", src)
	}

	decoded, err := decodePNGOrJPEGBounds(out)
	if err != nil {
		t.Fatalf("decode sanitized output: %v", err)
	}
	if decoded.Dx() != 100 || decoded.Dy() != 80 {
		t.Errorf("expected untouched 100x80 dimensions, got %dx%d", decoded.Dx(), decoded.Dy())
	}
}

func TestSanitizeImage_OversizedImageIsScaledDown(t *testing.T) {
	src := writeTempPNG(t, maxVisionImageDim+400, maxVisionImageDim+200)
	defer os.Remove(src)

	out, err := sanitizeImage(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer os.Remove(out)

	decoded, err := decodePNGOrJPEGBounds(out)
	if err != nil {
		t.Fatalf("decode sanitized output: %v", err)
	}
	if decoded.Dx() > maxVisionImageDim || decoded.Dy() > maxVisionImageDim {
		t.Errorf("expected dimensions capped at %d, got %dx%d", maxVisionImageDim, decoded.Dx(), decoded.Dy())
	}
}

func TestSanitizeImage_MissingFile(t *testing.T) {
	_, err := sanitizeImage("/nonexistent/path/does-not-exist.png")
	if err == nil {
		t.Fatal("expected error for missing source file, got nil")
	}
}

// decodePNGOrJPEGBounds opens an image file with the standard decoder and
// returns its bounds, used here only to assert on sanitizeImage's output
// dimensions without depending on imaging internals.
func decodePNGOrJPEGBounds(path string) (image.Rectangle, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Rectangle{}, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return image.Rectangle{}, err
	}
	return image.Rect(0, 0, cfg.Width, cfg.Height), nil
}
