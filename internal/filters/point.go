package filters

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/glasscanvas/internal/imgbuf"
)

// Invert returns the bitwise complement of every sample.
func Invert(src *imgbuf.Buffer) *imgbuf.Buffer {
	out := imgbuf.New(src.Width, src.Height, src.Order)
	for i, v := range src.Pix {
		out.Pix[i] = ^v
	}
	return out
}

// ScaleOffset computes clamp(round(alpha*v + beta)) per sample, rounding half
// away from zero. Negative intermediates clamp to 0.
func ScaleOffset(src *imgbuf.Buffer, alpha, beta float64) *imgbuf.Buffer {
	var lut [256]uint8
	for v := range lut {
		r := math.Round(alpha*float64(v) + beta)
		switch {
		case r < 0:
			lut[v] = 0
		case r > 255:
			lut[v] = 255
		default:
			lut[v] = uint8(r)
		}
	}
	out := imgbuf.New(src.Width, src.Height, src.Order)
	for i, v := range src.Pix {
		out.Pix[i] = lut[v]
	}
	return out
}

// SepiaMatrix maps (R, G, B) to (R', G', B'); row i produces output channel i.
var SepiaMatrix = [3][3]float64{
	{0.393, 0.769, 0.189},
	{0.349, 0.686, 0.168},
	{0.272, 0.534, 0.131},
}

// Sepia applies SepiaMatrix to a color buffer. The output keeps the input's
// channel order.
func Sepia(src *imgbuf.Buffer) *imgbuf.Buffer {
	if src.Order == imgbuf.Gray {
		src = src.ToBGR()
	}
	ri, bi := 2, 0
	if src.Order == imgbuf.RGB {
		ri, bi = 0, 2
	}
	out := imgbuf.New(src.Width, src.Height, src.Order)
	m := &SepiaMatrix
	for i := 0; i < len(src.Pix); i += 3 {
		r := float64(src.Pix[i+ri])
		g := float64(src.Pix[i+1])
		b := float64(src.Pix[i+bi])
		out.Pix[i+ri] = clampU8(m[0][0]*r + m[0][1]*g + m[0][2]*b)
		out.Pix[i+1] = clampU8(m[1][0]*r + m[1][1]*g + m[1][2]*b)
		out.Pix[i+bi] = clampU8(m[2][0]*r + m[2][1]*g + m[2][2]*b)
	}
	return out
}

// Divide computes clamp(round(a*scale/b)) per sample; b == 0 yields 0.
func Divide(a, b *imgbuf.Buffer, scale float64) (*imgbuf.Buffer, error) {
	if err := sameShape(a, b); err != nil {
		return nil, err
	}
	out := imgbuf.New(a.Width, a.Height, a.Order)
	for i, num := range a.Pix {
		den := b.Pix[i]
		if den == 0 {
			continue
		}
		out.Pix[i] = clampU8(float64(num) * scale / float64(den))
	}
	return out, nil
}

// AndMask keeps the samples of src where mask is non-zero, bitwise: each
// sample becomes src & mask. A single-channel mask applies to all channels.
func AndMask(src, mask *imgbuf.Buffer) (*imgbuf.Buffer, error) {
	if mask.Order != imgbuf.Gray {
		return nil, fmt.Errorf("mask must be single channel, got %s", mask.Order)
	}
	if src.Width != mask.Width || src.Height != mask.Height {
		return nil, fmt.Errorf("mask size %dx%d does not match image %dx%d",
			mask.Width, mask.Height, src.Width, src.Height)
	}
	ch := src.Channels()
	out := imgbuf.New(src.Width, src.Height, src.Order)
	for i, v := range src.Pix {
		out.Pix[i] = v & mask.Pix[i/ch]
	}
	return out, nil
}

func sameShape(a, b *imgbuf.Buffer) error {
	if a.Width != b.Width || a.Height != b.Height || a.Order != b.Order {
		return fmt.Errorf("buffer mismatch: %dx%d %s vs %dx%d %s",
			a.Width, a.Height, a.Order, b.Width, b.Height, b.Order)
	}
	return nil
}
