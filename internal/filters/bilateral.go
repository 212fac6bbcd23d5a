package filters

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/glasscanvas/internal/imgbuf"
)

// Bilateral is an edge-preserving smoothing filter. Neighbors within a
// circular window of diameter d are weighted by spatial distance (sigmaSpace)
// and by the L1 distance of their color to the center (sigmaColor).
func Bilateral(src *imgbuf.Buffer, d int, sigmaColor, sigmaSpace float64) (*imgbuf.Buffer, error) {
	if sigmaColor <= 0 {
		sigmaColor = 1
	}
	if sigmaSpace <= 0 {
		sigmaSpace = 1
	}
	var radius int
	if d <= 0 {
		radius = int(math.Round(sigmaSpace * 1.5))
	} else {
		radius = d / 2
	}
	if radius < 1 {
		radius = 1
	}
	if src.Empty() {
		return nil, fmt.Errorf("bilateral filter on empty buffer")
	}

	ch := src.Channels()
	w, h := src.Width, src.Height
	colorCoeff := -0.5 / (sigmaColor * sigmaColor)
	spaceCoeff := -0.5 / (sigmaSpace * sigmaSpace)

	colorWeight := make([]float64, 256*ch)
	for i := range colorWeight {
		colorWeight[i] = math.Exp(float64(i*i) * colorCoeff)
	}

	type tap struct {
		dx, dy int
		w      float64
	}
	var taps []tap
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			r := math.Sqrt(float64(dx*dx + dy*dy))
			if r > float64(radius) {
				continue
			}
			taps = append(taps, tap{dx: dx, dy: dy, w: math.Exp(r * r * spaceCoeff)})
		}
	}

	out := imgbuf.New(w, h, src.Order)
	sum := make([]float64, ch)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			center := src.Pix[(y*w+x)*ch : (y*w+x+1)*ch]
			for c := range sum {
				sum[c] = 0
			}
			var wsum float64
			for _, t := range taps {
				nx := BorderReflect101.index(x+t.dx, w)
				ny := BorderReflect101.index(y+t.dy, h)
				p := src.Pix[(ny*w+nx)*ch : (ny*w+nx+1)*ch]
				diff := 0
				for c := 0; c < ch; c++ {
					diff += absInt(int(p[c]) - int(center[c]))
				}
				wt := t.w * colorWeight[diff]
				for c := 0; c < ch; c++ {
					sum[c] += wt * float64(p[c])
				}
				wsum += wt
			}
			o := out.Pix[(y*w+x)*ch : (y*w+x+1)*ch]
			for c := 0; c < ch; c++ {
				o[c] = clampU8(sum[c] / wsum)
			}
		}
	}
	return out, nil
}
