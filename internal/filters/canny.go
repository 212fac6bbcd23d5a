package filters

import (
	"fmt"

	"github.com/MeKo-Tech/glasscanvas/internal/imgbuf"
	"github.com/MeKo-Tech/glasscanvas/internal/mempool"
)

// Sobel returns the 3x3 horizontal and vertical derivatives of a gray
// buffer using replicated borders.
func Sobel(src *imgbuf.Buffer) (dx, dy []int32) {
	w, h := src.Width, src.Height
	dx = make([]int32, w*h)
	dy = make([]int32, w*h)
	at := func(x, y int) int32 {
		x = BorderReplicate.index(x, w)
		y = BorderReplicate.index(y, h)
		return int32(src.Pix[y*w+x])
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			tl, t, tr := at(x-1, y-1), at(x, y-1), at(x+1, y-1)
			l, r := at(x-1, y), at(x+1, y)
			bl, b, br := at(x-1, y+1), at(x, y+1), at(x+1, y+1)
			dx[y*w+x] = (tr + 2*r + br) - (tl + 2*l + bl)
			dy[y*w+x] = (bl + 2*b + br) - (tl + 2*t + tr)
		}
	}
	return dx, dy
}

const (
	cannyNotEdge = iota
	cannyWeak
	cannyStrong
)

// Canny detects edges in a single-channel buffer with an L1 gradient
// magnitude, non-maximum suppression and hysteresis between low and high.
// Edges are 255, everything else 0.
func Canny(src *imgbuf.Buffer, low, high int) (*imgbuf.Buffer, error) {
	if src.Order != imgbuf.Gray {
		return nil, fmt.Errorf("canny needs a single channel buffer, got %s", src.Order)
	}
	if low > high {
		low, high = high, low
	}
	w, h := src.Width, src.Height
	dx, dy := Sobel(src)

	mag := mempool.Int32.Get(w * h)
	defer mempool.Int32.Put(mag)
	for i := range mag {
		mag[i] = abs32(dx[i]) + abs32(dy[i])
	}
	magAt := func(x, y int) int32 {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return mag[y*w+x]
	}

	// tan(22.5deg) in Q15.
	const tg22 = 13573
	state := mempool.Uint8.Get(w * h)
	defer mempool.Uint8.Put(state)
	var stack []int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			m := mag[i]
			if m <= int32(low) {
				continue
			}
			xs := int64(abs32(dx[i]))
			ys := int64(abs32(dy[i])) << 15
			tg22x := xs * tg22

			var isMax bool
			switch {
			case ys < tg22x:
				isMax = m > magAt(x-1, y) && m >= magAt(x+1, y)
			case ys > tg22x+(xs<<16):
				isMax = m > magAt(x, y-1) && m >= magAt(x, y+1)
			default:
				s := 1
				if (dx[i] ^ dy[i]) < 0 {
					s = -1
				}
				isMax = m > magAt(x-s, y-1) && m > magAt(x+s, y+1)
			}
			if !isMax {
				continue
			}
			if m > int32(high) {
				state[i] = cannyStrong
				stack = append(stack, i)
			} else {
				state[i] = cannyWeak
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		for ny := y - 1; ny <= y+1; ny++ {
			for nx := x - 1; nx <= x+1; nx++ {
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if state[j] == cannyWeak {
					state[j] = cannyStrong
					stack = append(stack, j)
				}
			}
		}
	}

	out := imgbuf.New(w, h, imgbuf.Gray)
	for i, s := range state {
		if s == cannyStrong {
			out.Pix[i] = 255
		}
	}
	return out, nil
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
