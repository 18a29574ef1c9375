package probe

// Opaque is the alpha value of a fully opaque 8-bit pixel.
const Opaque = 0xff

// Samples is a read-only RGBA byte sequence.
type Samples interface {
	Len() int
	At(i int) byte
}

// FirstTranslucent returns the index of the first pixel whose alpha byte is
// below Opaque, or -1 when every pixel is opaque. It reads alpha bytes only
// (offset 3, stride 4) and stops at the first hit.
func FirstTranslucent(s Samples) int {
	n := s.Len()
	for i := 3; i < n; i += 4 {
		if s.At(i) < Opaque {
			return i / 4
		}
	}
	return -1
}

// HasTransparency reports whether any pixel in s is not fully opaque.
func HasTransparency(s Samples) bool {
	return FirstTranslucent(s) >= 0
}
