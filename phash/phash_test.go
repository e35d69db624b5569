package phash_test

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"trendgallery/phash"
)

// gradientImage returns a deterministic test image with enough structure
// for the DCT hash to be stable across encoders.
func gradientImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: uint8((x + y) * 255 / (w + h)),
				A: 255,
			})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestFingerprintFormat(t *testing.T) {
	data := encodePNG(t, gradientImage(64, 64))

	hash, err := phash.Fingerprint(data)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if len(hash) != 16 {
		t.Fatalf("expected 16 hex chars, got %d (%q)", len(hash), hash)
	}
	for _, c := range hash {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			t.Fatalf("expected lowercase hex, got %q", hash)
		}
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	data := encodePNG(t, gradientImage(64, 64))

	h1, err := phash.Fingerprint(data)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	h2, err := phash.Fingerprint(data)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("same bytes hashed differently: %q vs %q", h1, h2)
	}
}

func TestFingerprintDecodeError(t *testing.T) {
	_, err := phash.Fingerprint([]byte("definitely not an image"))
	if !errors.Is(err, phash.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestRecompressionIsNearDuplicate(t *testing.T) {
	img := gradientImage(128, 128)
	pngHash, err := phash.Fingerprint(encodePNG(t, img))
	if err != nil {
		t.Fatalf("Fingerprint png: %v", err)
	}
	jpegHash, err := phash.Fingerprint(encodeJPEG(t, img, 90))
	if err != nil {
		t.Fatalf("Fingerprint jpeg: %v", err)
	}

	if !phash.IsDuplicate(pngHash, jpegHash, phash.DefaultThreshold) {
		d, _ := phash.Distance(pngHash, jpegHash)
		t.Fatalf("90%%-quality recompression not within threshold: distance=%d", d)
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"0000000000000000", "0000000000000000", 0},
		{"0000000000000000", "0000000000000001", 1},
		{"0000000000000000", "ffffffffffffffff", 64},
		{"00000000000000ff", "0000000000000000", 8},
	}
	for _, tt := range tests {
		got, err := phash.Distance(tt.a, tt.b)
		if err != nil {
			t.Fatalf("Distance(%q, %q): %v", tt.a, tt.b, err)
		}
		if got != tt.want {
			t.Errorf("Distance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDistanceBadHash(t *testing.T) {
	if _, err := phash.Distance("not-hex", "0000000000000000"); err == nil {
		t.Fatal("expected error for unparsable hash")
	}
}

func TestIsDuplicateThresholdBoundary(t *testing.T) {
	// Distance between these is exactly 5.
	a := "000000000000001f"
	b := "0000000000000000"

	if !phash.IsDuplicate(a, b, 5) {
		t.Error("distance 5 with threshold 5 should be a duplicate")
	}
	if phash.IsDuplicate(a, b, 4) {
		t.Error("distance 5 with threshold 4 should not be a duplicate")
	}
	if phash.IsDuplicate("bad", b, 5) {
		t.Error("unparsable hash should never be a duplicate")
	}
}
