//go:build gocv

package pipeline

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/MeKo-Tech/glasscanvas/internal/filters"
	"github.com/MeKo-Tech/glasscanvas/internal/imgbuf"
)

// OpenCVBackend is the name of the gocv backed backend.
const OpenCVBackend = "opencv"

func init() {
	RegisterBackend(OpenCVBackend, func() Backend {
		var table [styleCount]StyleFunc
		table[StyleGrayscale] = cvGrayscale
		table[StyleMagicOutline] = cvMagicOutline
		table[StylePencilSketch] = cvPencilSketch
		table[StyleCrayonDrawing] = cvCrayonDrawing
		table[StyleNegative] = cvNegative
		// Original, Abstract and Sepia run on the native table.
		return tableBackend{name: OpenCVBackend, table: table}
	})
}

func toMat(b *imgbuf.Buffer) (gocv.Mat, error) {
	mt := gocv.MatTypeCV8UC3
	if b.Order == imgbuf.Gray {
		mt = gocv.MatTypeCV8UC1
	}
	return gocv.NewMatFromBytes(b.Height, b.Width, mt, b.Pix)
}

func fromMat(m gocv.Mat, order imgbuf.Order) (*imgbuf.Buffer, error) {
	if m.Empty() {
		return nil, fmt.Errorf("opencv returned an empty matrix")
	}
	if m.Channels() != order.Channels() {
		return nil, fmt.Errorf("opencv returned %d channels, want %d", m.Channels(), order.Channels())
	}
	return &imgbuf.Buffer{Width: m.Cols(), Height: m.Rows(), Order: order, Pix: m.ToBytes()}, nil
}

func cvGray(src *imgbuf.Buffer) (gocv.Mat, error) {
	in, err := toMat(src)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer in.Close()
	gray := gocv.NewMat()
	gocv.CvtColor(in, &gray, gocv.ColorBGRToGray)
	return gray, nil
}

func cvGrayscale(src *imgbuf.Buffer, _ Params) (*imgbuf.Buffer, error) {
	gray, err := cvGray(src)
	defer gray.Close()
	if err != nil {
		return nil, err
	}
	return fromMat(gray, imgbuf.Gray)
}

func cvMagicOutline(src *imgbuf.Buffer, p Params) (*imgbuf.Buffer, error) {
	gray, err := cvGray(src)
	defer gray.Close()
	if err != nil {
		return nil, err
	}
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(outlineBlurSize, outlineBlurSize), 0, 0, gocv.BorderDefault)

	low, high := p.EdgeThresholds()
	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(blurred, &edges, float32(low), float32(high))

	inverted := gocv.NewMat()
	defer inverted.Close()
	gocv.BitwiseNot(edges, &inverted)
	return fromMat(inverted, imgbuf.Gray)
}

func cvPencilSketch(src *imgbuf.Buffer, _ Params) (*imgbuf.Buffer, error) {
	gray, err := cvGray(src)
	defer gray.Close()
	if err != nil {
		return nil, err
	}
	inverted := gocv.NewMat()
	defer inverted.Close()
	gocv.BitwiseNot(gray, &inverted)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(inverted, &blurred, image.Pt(sketchBlurSize, sketchBlurSize), 0, 0, gocv.BorderDefault)

	g, err := fromMat(gray, imgbuf.Gray)
	if err != nil {
		return nil, err
	}
	b, err := fromMat(blurred, imgbuf.Gray)
	if err != nil {
		return nil, err
	}
	return pencilDodge(g, b)
}

func cvCrayonDrawing(src *imgbuf.Buffer, _ Params) (*imgbuf.Buffer, error) {
	in, err := toMat(src)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	smooth := gocv.NewMat()
	defer smooth.Close()
	gocv.BilateralFilter(in, &smooth, crayonDiameter, crayonSigmaColor, crayonSigmaSpace)

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(smooth, &gray, gocv.ColorBGRToGray)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.AdaptiveThreshold(gray, &mask, thresholdMaxValue, gocv.AdaptiveThresholdMean, gocv.ThresholdBinary, crayonBlockSize, crayonC)

	s, err := fromMat(smooth, imgbuf.BGR)
	if err != nil {
		return nil, err
	}
	m, err := fromMat(mask, imgbuf.Gray)
	if err != nil {
		return nil, err
	}
	return filters.AndMask(s, m)
}

func cvNegative(src *imgbuf.Buffer, _ Params) (*imgbuf.Buffer, error) {
	in, err := toMat(src)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	out := gocv.NewMat()
	defer out.Close()
	gocv.BitwiseNot(in, &out)
	return fromMat(out, imgbuf.BGR)
}
