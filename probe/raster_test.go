package probe

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func nrgba2x2(pix []byte) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	copy(img.Pix, pix)
	return img
}

func TestRasterize_PNGRoundTrip(t *testing.T) {
	pix := []byte{
		255, 0, 0, 255,
		0, 255, 0, 128,
		0, 0, 255, 255,
		255, 255, 255, 255,
	}
	img, format, err := Decode(encodePNG(t, nrgba2x2(pix)), 0)
	require.NoError(t, err)
	assert.Equal(t, "png", format)

	buf := Rasterize(img)
	assert.Equal(t, 2, buf.Width)
	assert.Equal(t, 2, buf.Height)
	assert.Equal(t, pix, buf.Pix)
}

func TestRasterize_OffsetBounds(t *testing.T) {
	src := image.NewNRGBA(image.Rect(10, 20, 12, 21))
	src.SetNRGBA(10, 20, color.NRGBA{A: 255})
	src.SetNRGBA(11, 20, color.NRGBA{A: 7})

	buf := Rasterize(src)
	require.Equal(t, 2*1*4, buf.Len())
	assert.Equal(t, byte(255), buf.At(3))
	assert.Equal(t, byte(7), buf.At(7))
}

func TestRasterize_JPEGIsOpaque(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range src.Pix {
		src.Pix[i] = 0x80
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, nil))

	img, format, err := Decode(buf.Bytes(), 0)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.False(t, HasTransparency(Rasterize(img)))
}

func TestRasterize_GIFTransparentIndex(t *testing.T) {
	pal := color.Palette{color.RGBA{A: 0}, color.RGBA{R: 255, A: 255}}
	src := image.NewPaletted(image.Rect(0, 0, 2, 2), pal)
	src.SetColorIndex(0, 0, 1)
	src.SetColorIndex(1, 0, 1)
	src.SetColorIndex(0, 1, 1)
	src.SetColorIndex(1, 1, 0)

	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, src, nil))

	img, format, err := Decode(buf.Bytes(), 0)
	require.NoError(t, err)
	assert.Equal(t, "gif", format)
	assert.Equal(t, 3, FirstTranslucent(Rasterize(img)))
}

func TestDecode_RejectsSVG(t *testing.T) {
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="2" height="2"><rect width="2" height="2"/></svg>`)
	_, _, err := Decode(svg, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, image.ErrFormat)
}

func TestDecode_RejectsTruncated(t *testing.T) {
	data := encodePNG(t, image.NewNRGBA(image.Rect(0, 0, 16, 16)))
	_, _, err := Decode(data[:len(data)/2], 0)
	require.Error(t, err)
}

func TestDecode_MaxPixels(t *testing.T) {
	data := encodePNG(t, image.NewNRGBA(image.Rect(0, 0, 10, 10)))

	_, _, err := Decode(data, 99)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 99 pixels")

	_, _, err = Decode(data, 100)
	require.NoError(t, err)
}
