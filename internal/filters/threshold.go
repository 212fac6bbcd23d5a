package filters

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/glasscanvas/internal/imgbuf"
)

// BoxMean returns the rounded mean of every block x block neighborhood,
// computed from an integral image with replicated borders.
func BoxMean(src *imgbuf.Buffer, block int) (*imgbuf.Buffer, error) {
	if src.Order != imgbuf.Gray {
		return nil, fmt.Errorf("box mean needs a single channel buffer, got %s", src.Order)
	}
	if block <= 0 || block%2 == 0 {
		return nil, fmt.Errorf("block size must be odd and positive, got %d", block)
	}
	w, h := src.Width, src.Height
	r := block / 2
	pw, ph := w+2*r, h+2*r

	// integral[(y)*(pw+1)+x] = sum of padded[0:y, 0:x]
	integral := make([]int64, (pw+1)*(ph+1))
	for y := 0; y < ph; y++ {
		sy := BorderReplicate.index(y-r, h)
		var rowSum int64
		for x := 0; x < pw; x++ {
			sx := BorderReplicate.index(x-r, w)
			rowSum += int64(src.Pix[sy*w+sx])
			integral[(y+1)*(pw+1)+x+1] = integral[y*(pw+1)+x+1] + rowSum
		}
	}

	area := float64(block * block)
	out := imgbuf.New(w, h, imgbuf.Gray)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, y0, x1, y1 := x, y, x+block, y+block
			s := integral[y1*(pw+1)+x1] - integral[y0*(pw+1)+x1] -
				integral[y1*(pw+1)+x0] + integral[y0*(pw+1)+x0]
			out.Pix[y*w+x] = clampU8(float64(s) / area)
		}
	}
	return out, nil
}

// AdaptiveMeanThreshold sets a pixel to maxValue when it exceeds the mean of
// its block x block neighborhood minus c, and to 0 otherwise.
func AdaptiveMeanThreshold(src *imgbuf.Buffer, maxValue uint8, block int, c float64) (*imgbuf.Buffer, error) {
	mean, err := BoxMean(src, block)
	if err != nil {
		return nil, err
	}
	delta := int(math.Ceil(c))
	out := imgbuf.New(src.Width, src.Height, imgbuf.Gray)
	for i, v := range src.Pix {
		if int(v)-int(mean.Pix[i]) > -delta {
			out.Pix[i] = maxValue
		}
	}
	return out, nil
}
