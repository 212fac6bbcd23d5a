package filters

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/glasscanvas/internal/imgbuf"
)

// MeanShiftCriteria stops the per-pixel shift after MaxIter iterations or
// once the combined spatial and color shift drops to Epsilon.
type MeanShiftCriteria struct {
	MaxIter int
	Epsilon float64
}

// DefaultMeanShiftCriteria returns 5 iterations or a shift of 1.
func DefaultMeanShiftCriteria() MeanShiftCriteria {
	return MeanShiftCriteria{MaxIter: 5, Epsilon: 1}
}

// MeanShift posterizes a 3-channel buffer. Each pixel repeatedly moves to the
// centroid of the pixels within a (2*sp+1) square window whose color lies
// within distance sr, and takes the color it converges to.
func MeanShift(src *imgbuf.Buffer, sp, sr float64, crit MeanShiftCriteria) (*imgbuf.Buffer, error) {
	if src.Channels() != 3 {
		return nil, fmt.Errorf("mean shift needs a 3 channel buffer, got %s", src.Order)
	}
	if crit.MaxIter <= 0 {
		crit.MaxIter = 5
	}
	if crit.Epsilon < 0 {
		crit.Epsilon = 0
	}
	eps := int(math.Round(crit.Epsilon * crit.Epsilon))
	radius := int(math.Round(sp))
	sr2 := int(math.Round(sr * sr))

	w, h := src.Width, src.Height
	out := imgbuf.New(w, h, src.Order)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := (y*w + x) * 3
			c0, c1, c2 := int(src.Pix[o]), int(src.Pix[o+1]), int(src.Pix[o+2])
			x0, y0 := x, y

			for iter := 0; iter < crit.MaxIter; iter++ {
				minx, maxx := max(x0-radius, 0), min(x0+radius, w-1)
				miny, maxy := max(y0-radius, 0), min(y0+radius, h-1)

				var count, sx, sy, s0, s1, s2 int
				for ny := miny; ny <= maxy; ny++ {
					row := src.Pix[ny*w*3:]
					for nx := minx; nx <= maxx; nx++ {
						t0, t1, t2 := int(row[nx*3]), int(row[nx*3+1]), int(row[nx*3+2])
						d0, d1, d2 := t0-c0, t1-c1, t2-c2
						if d0*d0+d1*d1+d2*d2 <= sr2 {
							s0 += t0
							s1 += t1
							s2 += t2
							sx += nx
							sy += ny
							count++
						}
					}
				}
				if count == 0 {
					break
				}

				inv := 1 / float64(count)
				x1 := int(math.Round(float64(sx) * inv))
				y1 := int(math.Round(float64(sy) * inv))
				n0 := int(math.Round(float64(s0) * inv))
				n1 := int(math.Round(float64(s1) * inv))
				n2 := int(math.Round(float64(s2) * inv))

				d0, d1, d2 := n0-c0, n1-c1, n2-c2
				stop := (x0 == x1 && y0 == y1) ||
					absInt(x1-x0)+absInt(y1-y0)+d0*d0+d1*d1+d2*d2 <= eps

				x0, y0 = x1, y1
				c0, c1, c2 = n0, n1, n2
				if stop {
					break
				}
			}
			out.Pix[o] = uint8(c0)
			out.Pix[o+1] = uint8(c1)
			out.Pix[o+2] = uint8(c2)
		}
	}
	return out, nil
}
