package filters

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/glasscanvas/internal/imgbuf"
	"github.com/MeKo-Tech/glasscanvas/internal/mempool"
)

// Fixed kernels used for small apertures when sigma is not given.
var smallGaussianKernels = map[int][]float64{
	1: {1},
	3: {0.25, 0.5, 0.25},
	5: {0.0625, 0.25, 0.375, 0.25, 0.0625},
	7: {0.03125, 0.109375, 0.21875, 0.28125, 0.21875, 0.109375, 0.03125},
}

// GaussianSigma returns the sigma derived from an aperture size.
func GaussianSigma(ksize int) float64 {
	return 0.3*((float64(ksize)-1)*0.5-1) + 0.8
}

// GaussianKernel returns a normalized 1D Gaussian kernel of odd size ksize.
// sigma <= 0 derives it from ksize.
func GaussianKernel(ksize int, sigma float64) ([]float64, error) {
	if ksize <= 0 || ksize%2 == 0 {
		return nil, fmt.Errorf("gaussian kernel size must be odd and positive, got %d", ksize)
	}
	if sigma <= 0 {
		if k, ok := smallGaussianKernels[ksize]; ok {
			return append([]float64(nil), k...), nil
		}
		sigma = GaussianSigma(ksize)
	}

	k := make([]float64, ksize)
	scale := -0.5 / (sigma * sigma)
	var sum float64
	for i := range k {
		x := float64(i - (ksize-1)/2)
		k[i] = math.Exp(scale * x * x)
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k, nil
}

// GaussianBlur smooths every channel with a separable ksize x ksize kernel
// and reflect-101 borders.
func GaussianBlur(src *imgbuf.Buffer, ksize int, sigma float64) (*imgbuf.Buffer, error) {
	k, err := GaussianKernel(ksize, sigma)
	if err != nil {
		return nil, err
	}
	return separable(src, k, BorderReflect101), nil
}

func separable(src *imgbuf.Buffer, k []float64, border BorderMode) *imgbuf.Buffer {
	w, h, ch := src.Width, src.Height, src.Channels()
	r := len(k) / 2
	tmp := mempool.Float64.Get(len(src.Pix))
	defer mempool.Float64.Put(tmp)

	xs := make([]int, w+2*r)
	for i := range xs {
		xs[i] = border.index(i-r, w)
	}
	for y := 0; y < h; y++ {
		row := src.Pix[y*w*ch : (y+1)*w*ch]
		for x := 0; x < w; x++ {
			for c := 0; c < ch; c++ {
				var acc float64
				for i, kv := range k {
					acc += kv * float64(row[xs[x+i]*ch+c])
				}
				tmp[(y*w+x)*ch+c] = acc
			}
		}
	}

	ys := make([]int, h+2*r)
	for i := range ys {
		ys[i] = border.index(i-r, h)
	}
	out := imgbuf.New(w, h, src.Order)
	stride := w * ch
	for y := 0; y < h; y++ {
		for j := 0; j < stride; j++ {
			var acc float64
			for i, kv := range k {
				acc += kv * tmp[ys[y+i]*stride+j]
			}
			out.Pix[y*stride+j] = clampU8(acc)
		}
	}
	return out
}
