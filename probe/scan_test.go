package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasTransparency_SecondPixelHalfAlpha(t *testing.T) {
	buf := &PixelBuffer{Width: 2, Height: 2, Pix: []byte{
		255, 0, 0, 255,
		0, 255, 0, 128,
		0, 0, 255, 255,
		255, 255, 255, 255,
	}}
	assert.True(t, HasTransparency(buf))
	assert.Equal(t, 1, FirstTranslucent(buf))
}

func TestHasTransparency_AllOpaque(t *testing.T) {
	buf := &PixelBuffer{Width: 2, Height: 2, Pix: []byte{
		255, 0, 0, 255,
		0, 255, 0, 255,
		0, 0, 255, 255,
		255, 255, 255, 255,
	}}
	assert.False(t, HasTransparency(buf))
	assert.Equal(t, -1, FirstTranslucent(buf))
}

func TestHasTransparency_Empty(t *testing.T) {
	assert.False(t, HasTransparency(&PixelBuffer{}))
}

func TestHasTransparency_AnyPosition(t *testing.T) {
	const w, h = 5, 3
	for k := 0; k < w*h; k++ {
		buf := opaqueBuffer(w, h)
		buf.Pix[k*4+3] = 254
		require.Equal(t, k, FirstTranslucent(buf), "pixel %d", k)
	}
}

func TestHasTransparency_ColorBytesIgnored(t *testing.T) {
	// Low color values must not be mistaken for alpha.
	buf := &PixelBuffer{Width: 2, Height: 1, Pix: []byte{0, 0, 0, 255, 1, 2, 3, 255}}
	assert.False(t, HasTransparency(buf))
}

// strictSamples fails the test when any byte past the limit is read, or
// when a non-alpha byte is read at all.
type strictSamples struct {
	t     *testing.T
	pix   []byte
	limit int
	reads int
}

func (s *strictSamples) Len() int { return len(s.pix) }

func (s *strictSamples) At(i int) byte {
	s.t.Helper()
	s.reads++
	if i%4 != 3 {
		s.t.Fatalf("read non-alpha byte at offset %d", i)
	}
	if i > s.limit {
		s.t.Fatalf("read offset %d past first translucent pixel (limit %d)", i, s.limit)
	}
	return s.pix[i]
}

func TestFirstTranslucent_ShortCircuits(t *testing.T) {
	const w, h, k = 64, 64, 37
	buf := opaqueBuffer(w, h)
	buf.Pix[k*4+3] = 0
	s := &strictSamples{t: t, pix: buf.Pix, limit: k*4 + 3}

	require.Equal(t, k, FirstTranslucent(s))
	assert.Equal(t, k+1, s.reads)
}

func opaqueBuffer(w, h int) *PixelBuffer {
	pix := make([]byte, w*h*4)
	for i := 3; i < len(pix); i += 4 {
		pix[i] = Opaque
	}
	return &PixelBuffer{Width: w, Height: h, Pix: pix}
}
