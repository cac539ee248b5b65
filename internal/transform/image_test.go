package transform

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	xwebp "golang.org/x/image/webp"
)

// gradient returns a deterministic test image.
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image, q int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func encodePNG(t *testing.T, img image.Image, level png.CompressionLevel) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: level}
	if err := enc.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// ///////////////////////////////////////////////
// OptimizeImage
// ///////////////////////////////////////////////

func TestOptimizeImage(t *testing.T) {
	img := gradient(64, 64)
	bestPNG := encodePNG(t, img, png.BestCompression)

	var gifBuf bytes.Buffer
	if err := gif.Encode(&gifBuf, img, nil); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		file      string
		in        []byte
		wantSame  bool // output must equal input
		wantSmall bool // output must be strictly smaller
		wantErr   bool
	}{
		{name: "jpeg re-encoded smaller", file: "photo.jpg", in: encodeJPEG(t, img, 100), wantSmall: true},
		{name: "jpeg extension upper", file: "PHOTO.JPEG", in: encodeJPEG(t, img, 100), wantSmall: true},
		{name: "png recompressed", file: "a/b.png", in: encodePNG(t, img, png.NoCompression), wantSmall: true},
		{name: "already optimal png kept", file: "b.png", in: bestPNG, wantSame: true},
		{name: "gif never grows", file: "anim.gif", in: gifBuf.Bytes()},
		{name: "svg minified", file: "logo.svg", in: []byte("<svg xmlns=\"http://www.w3.org/2000/svg\">\n  <!-- c -->\n  <circle cx=\"5\" cy=\"5\" r=\"4\"/>\n</svg>\n"), wantSmall: true},
		{name: "unknown passes through", file: "notes.bmp", in: []byte("BM...."), wantSame: true},
		{name: "corrupt jpeg", file: "broken.jpg", in: []byte("not a jpeg"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := OptimizeImage(tt.file, tt.in, 80)
			if (err != nil) != tt.wantErr {
				t.Fatalf("OptimizeImage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(out) > len(tt.in) {
				t.Errorf("output grew: %d > %d", len(out), len(tt.in))
			}
			if tt.wantSame && !bytes.Equal(out, tt.in) {
				t.Error("expected original bytes back")
			}
			if tt.wantSmall && len(out) >= len(tt.in) {
				t.Errorf("expected smaller output: %d >= %d", len(out), len(tt.in))
			}
		})
	}
}

func TestOptimizeImage_Deterministic(t *testing.T) {
	in := encodeJPEG(t, gradient(32, 32), 100)
	a, err := OptimizeImage("x.jpg", in, 80)
	if err != nil {
		t.Fatal(err)
	}
	b, err := OptimizeImage("x.jpg", in, 80)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("re-encoding the same input produced different bytes")
	}
}

// ///////////////////////////////////////////////
// ToWebP
// ///////////////////////////////////////////////

func TestToWebP(t *testing.T) {
	img := gradient(40, 30)

	tests := []struct {
		name string
		in   []byte
	}{
		{"from jpeg", encodeJPEG(t, img, 90)},
		{"from png", encodePNG(t, img, png.DefaultCompression)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ToWebP(tt.in, 70)
			if err != nil {
				t.Fatalf("ToWebP: %v", err)
			}
			if len(out) < 12 || string(out[:4]) != "RIFF" || string(out[8:12]) != "WEBP" {
				t.Fatalf("output is not a WebP container: % x", out[:min(len(out), 12)])
			}
			decoded, err := xwebp.Decode(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("decode webp: %v", err)
			}
			if got := decoded.Bounds().Size(); got != image.Pt(40, 30) {
				t.Errorf("decoded size = %v, want 40x30", got)
			}
		})
	}
}

func TestToWebP_QualityAffectsSize(t *testing.T) {
	in := encodePNG(t, gradient(64, 64), png.DefaultCompression)
	low, err := ToWebP(in, 10)
	if err != nil {
		t.Fatal(err)
	}
	high, err := ToWebP(in, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(low) >= len(high) {
		t.Errorf("quality 10 (%d bytes) should be smaller than quality 100 (%d bytes)", len(low), len(high))
	}
}

func TestToWebP_Invalid(t *testing.T) {
	if _, err := ToWebP([]byte("garbage"), 70); err == nil {
		t.Error("expected decode error")
	}
}
