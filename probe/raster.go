package probe

import (
	"bytes"
	"fmt"
	"image"

	// Raster decoders.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// PixelBuffer is a decoded raster read back as 4 bytes per pixel, row-major,
// non-premultiplied RGBA.
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []byte
}

// Len returns the number of bytes in the buffer.
func (b *PixelBuffer) Len() int { return len(b.Pix) }

// At returns the byte at offset i.
func (b *PixelBuffer) At(i int) byte { return b.Pix[i] }

// Decode parses data into an image. maxPixels bounds width*height before the
// full decode runs; zero disables the bound.
func Decode(data []byte, maxPixels int64) (image.Image, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode config: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, format, fmt.Errorf("decode: empty %s raster %dx%d", format, cfg.Width, cfg.Height)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, format, fmt.Errorf("decode: %dx%d %s exceeds %d pixels", cfg.Width, cfg.Height, format, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, fmt.Errorf("decode %s: %w", format, err)
	}
	return img, format, nil
}

// Rasterize draws img at 1:1 onto a fresh surface of exactly its size and
// returns the surface's pixel buffer.
func Rasterize(img image.Image) *PixelBuffer {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &PixelBuffer{Width: b.Dx(), Height: b.Dy(), Pix: dst.Pix}
}
