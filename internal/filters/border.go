// Package filters holds the pixel-level operations behind the pipeline's
// stylistic modes. Every function is pure: it reads its input buffer and
// returns a freshly allocated result.
package filters

// BorderMode selects how coordinates outside the image are mapped back inside.
type BorderMode int

const (
	// BorderReflect101 mirrors without repeating the edge pixel (gfedcb|abcdefgh|gfedcba).
	BorderReflect101 BorderMode = iota
	// BorderReplicate repeats the edge pixel (aaaaaa|abcdefgh|hhhhhhh).
	BorderReplicate
)

// index maps p into [0, n).
func (m BorderMode) index(p, n int) int {
	if p >= 0 && p < n {
		return p
	}
	if n == 1 {
		return 0
	}
	if m == BorderReplicate {
		if p < 0 {
			return 0
		}
		return n - 1
	}
	for p < 0 || p >= n {
		if p < 0 {
			p = -p
		} else {
			p = 2*n - 2 - p
		}
	}
	return p
}

func clampU8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
