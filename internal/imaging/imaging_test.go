package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func createTestJPEG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{255, 0, 0, 255})
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func createTestPNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{0, 0, 255, 255})
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func TestProcessJPEG(t *testing.T) {
	data := createTestJPEG(100, 100)
	result, err := Process(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Process JPEG: %v", err)
	}
	if result.MIME != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", result.MIME)
	}
	if len(result.Data) == 0 {
		t.Error("expected non-empty data")
	}
}

func TestProcessPNG(t *testing.T) {
	data := createTestPNG(100, 100)
	result, err := Process(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Process PNG: %v", err)
	}
	if result.MIME != "image/jpeg" {
		t.Errorf("expected image/jpeg (always outputs JPEG), got %s", result.MIME)
	}
}

func TestProcessDownscale(t *testing.T) {
	data := createTestJPEG(2048, 1024)
	result, err := Process(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Process large image: %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(result.Data))
	if err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != MaxDimension || bounds.Dy() != MaxDimension/2 {
		t.Errorf("expected %dx%d, got %dx%d", MaxDimension, MaxDimension/2, bounds.Dx(), bounds.Dy())
	}
}

func TestProcessSmallImageNotUpscaled(t *testing.T) {
	data := createTestJPEG(50, 50)
	result, err := Process(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Process small image: %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(result.Data))
	if err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 50 || bounds.Dy() != 50 {
		t.Errorf("small image should not be resized: got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestProcessRejectsUnsupported(t *testing.T) {
	inputs := map[string][]byte{
		"text": []byte("not an image"),
		"gif":  []byte("GIF89a..."),
	}
	for name, data := range inputs {
		_, err := Process(bytes.NewReader(data))
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("%s: expected ErrUnsupportedFormat, got %v", name, err)
		}
	}
}

func TestSniffWebP(t *testing.T) {
	header := []byte("RIFF\x24\x00\x00\x00WEBPVP8 ")
	mime, err := Sniff(append(header, make([]byte, 32)...))
	if err != nil {
		t.Fatalf("Sniff: %v", err)
	}
	if mime != "image/webp" {
		t.Errorf("expected image/webp, got %s", mime)
	}
}

func TestAllowed(t *testing.T) {
	tests := map[string]bool{
		"image/jpeg":               true,
		"image/jpg":                true,
		"image/png":                true,
		"image/webp":               true,
		"IMAGE/PNG":                true,
		"image/jpeg; charset=bin":  true,
		"image/gif":                false,
		"image/heic":               false,
		"application/octet-stream": false,
		"":                         false,
	}
	for mime, want := range tests {
		if got := Allowed(mime); got != want {
			t.Errorf("Allowed(%q) = %v, want %v", mime, got, want)
		}
	}
}

func TestOrientationWithoutExif(t *testing.T) {
	if got := Orientation(createTestPNG(4, 4)); got != 1 {
		t.Errorf("expected orientation 1, got %d", got)
	}
}

func TestOrientRotatesClockwise(t *testing.T) {
	// 3x2 source with a marker pixel at the top-left corner.
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	marker := color.RGBA{255, 255, 255, 255}
	src.Set(0, 0, marker)

	out := orient(src, 6)
	if b := out.Bounds(); b.Dx() != 2 || b.Dy() != 3 {
		t.Fatalf("expected 2x3 after rotation, got %dx%d", b.Dx(), b.Dy())
	}
	// Top-left moves to top-right under a clockwise quarter turn.
	if got := color.RGBAModel.Convert(out.At(1, 0)); got != marker {
		t.Errorf("expected marker at (1,0), got %v", got)
	}
}

func TestOrientIdentity(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	if out := orient(src, 1); out != image.Image(src) {
		t.Error("expected orientation 1 to return the source image")
	}
}

func TestDataURLRoundTrip(t *testing.T) {
	data := createTestPNG(2, 2)
	url := DataURL("image/png", data)

	mime, decoded, err := ParseDataURL(url)
	if err != nil {
		t.Fatalf("ParseDataURL: %v", err)
	}
	if mime != "image/png" || !bytes.Equal(decoded, data) {
		t.Errorf("round trip mismatch: mime=%s len=%d", mime, len(decoded))
	}

	for _, bad := range []string{"https://example.com/a.png", "data:image/png,raw", "data:image/png;base64,%%%"} {
		if _, _, err := ParseDataURL(bad); err == nil {
			t.Errorf("ParseDataURL(%q): expected error", bad)
		}
	}
}
