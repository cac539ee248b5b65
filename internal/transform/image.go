package transform

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path"
	"strings"

	"github.com/gen2brain/webp"
	"golang.org/x/image/draw"
)

// ///////////////////////////////////////////////
// Raster Optimization
// ///////////////////////////////////////////////

// OptimizeImage re-encodes name's data in its own format and returns
// whichever of the original and the re-encoded bytes is smaller. SVG files
// are minified. Unknown extensions pass through unchanged.
func OptimizeImage(name string, data []byte, jpegQuality int) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg":
		out, err = reencode(data, func(b *bytes.Buffer, img image.Image) error {
			return jpeg.Encode(b, img, &jpeg.Options{Quality: jpegQuality})
		})
	case ".png":
		out, err = reencode(data, func(b *bytes.Buffer, img image.Image) error {
			enc := png.Encoder{CompressionLevel: png.BestCompression}
			return enc.Encode(b, img)
		})
	case ".gif":
		out, err = reencodeGIF(data)
	case ".svg":
		out, err = MinifySVG(data)
	default:
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("optimize %s: %w", name, err)
	}
	if len(out) >= len(data) {
		return data, nil
	}
	return out, nil
}

func reencode(data []byte, encode func(*bytes.Buffer, image.Image) error) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	var buf bytes.Buffer
	if err := encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

// reencodeGIF keeps every frame and the loop count of animated GIFs.
func reencodeGIF(data []byte) ([]byte, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

// ///////////////////////////////////////////////
// WebP
// ///////////////////////////////////////////////

// ToWebP decodes a JPEG or PNG and encodes it as lossy WebP at quality.
func ToWebP(data []byte, quality int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	b := src.Bounds()
	img := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Copy(img, image.Point{}, src, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, webp.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return buf.Bytes(), nil
}
