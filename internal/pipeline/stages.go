package pipeline

import (
	"image"
	"image/color"
	"log/slog"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/glasscanvas/internal/filters"
	"github.com/MeKo-Tech/glasscanvas/internal/imgbuf"
)

// Stage names a step of the render, used in timings and errors.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageRotate    Stage = "rotate"
	StageCrop      Stage = "crop"
	StageAdjust    Stage = "adjust"
	StageStyle     Stage = "style"
	StageGrid      Stage = "grid"
)

// Grid line colors.
var (
	GridColor     = color.RGBA{R: 100, G: 255, B: 100, A: 255}
	GridGrayLevel = uint8(180)
)

// Normalize converts a decoded image into the canonical BGR buffer, first
// fitting it into maxDim x maxDim when maxDim > 0.
func Normalize(img image.Image, maxDim int) *imgbuf.Buffer {
	b := img.Bounds()
	if maxDim > 0 && (b.Dx() > maxDim || b.Dy() > maxDim) {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
		fit := img.Bounds()
		slog.Info("Source downscaled",
			"from_width", b.Dx(), "from_height", b.Dy(),
			"width", fit.Dx(), "height", fit.Dy(),
			"max_dimension", maxDim)
	}
	return imgbuf.FromImage(img)
}

// Rotate turns the buffer clockwise by k quarter turns. k is taken mod 4;
// k == 0 returns src itself.
func Rotate(src *imgbuf.Buffer, k int) *imgbuf.Buffer {
	k = ((k % 4) + 4) % 4
	if k == 0 {
		return src
	}
	w, h, ch := src.Width, src.Height, src.Channels()
	ow, oh := h, w
	if k == 2 {
		ow, oh = w, h
	}
	out := imgbuf.New(ow, oh, src.Order)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var nx, ny int
			switch k {
			case 1:
				nx, ny = h-1-y, x
			case 2:
				nx, ny = w-1-x, h-1-y
			case 3:
				nx, ny = y, w-1-x
			}
			s := (y*w + x) * ch
			d := (ny*ow + nx) * ch
			copy(out.Pix[d:d+ch], src.Pix[s:s+ch])
		}
	}
	return out
}

// CropBounds returns the pixel rectangle kept by c, and false when the
// rectangle is empty.
func CropBounds(w, h int, c Crop) (image.Rectangle, bool) {
	x0 := int(float64(w) * c.Left / 100)
	x1 := int(float64(w) * (1 - c.Right/100))
	y0 := int(float64(h) * c.Top / 100)
	y1 := int(float64(h) * (1 - c.Bottom/100))
	r := image.Rect(x0, y0, x1, y1)
	if x0 >= x1 || y0 >= y1 {
		return r, false
	}
	return r, true
}

// CropImage trims percentages of each side. An empty resulting rectangle
// leaves src unchanged, as does a zero crop.
func CropImage(src *imgbuf.Buffer, c Crop) *imgbuf.Buffer {
	r, ok := CropBounds(src.Width, src.Height, c)
	if !ok || r == image.Rect(0, 0, src.Width, src.Height) {
		return src
	}
	ch := src.Channels()
	out := imgbuf.New(r.Dx(), r.Dy(), src.Order)
	rowLen := r.Dx() * ch
	for y := r.Min.Y; y < r.Max.Y; y++ {
		s := src.Offset(r.Min.X, y)
		copy(out.Pix[(y-r.Min.Y)*rowLen:], src.Pix[s:s+rowLen])
	}
	return out
}

// AdjustBrightnessContrast computes clamp(round(contrast*v + brightness)).
// The neutral setting returns src itself.
func AdjustBrightnessContrast(src *imgbuf.Buffer, brightness int, contrast float64) *imgbuf.Buffer {
	if brightness == 0 && contrast == 1 {
		return src
	}
	return filters.ScaleOffset(src, contrast, float64(brightness))
}

// DrawGrid draws n-1 evenly spaced one pixel lines in each direction on a
// copy of src.
func DrawGrid(src *imgbuf.Buffer, n int) *imgbuf.Buffer {
	if n < MinGridSize {
		n = DefaultGridSize
	}
	out := src.Clone()
	if out.Empty() {
		return out
	}
	w, h := out.Width, out.Height
	var sample []uint8
	if out.Order == imgbuf.Gray {
		sample = []uint8{GridGrayLevel}
	} else {
		sample = imgbuf.Filled(1, 1, GridColor).ToBGR().Pix
		if out.Order == imgbuf.RGB {
			sample = []uint8{GridColor.R, GridColor.G, GridColor.B}
		}
	}
	ch := len(sample)
	for i := 1; i < n; i++ {
		x := int(float64(w) * float64(i) / float64(n))
		for y := 0; y < h; y++ {
			copy(out.Pix[out.Offset(x, y):out.Offset(x, y)+ch], sample)
		}
		y := int(float64(h) * float64(i) / float64(n))
		for x := 0; x < w; x++ {
			copy(out.Pix[out.Offset(x, y):out.Offset(x, y)+ch], sample)
		}
	}
	return out
}
