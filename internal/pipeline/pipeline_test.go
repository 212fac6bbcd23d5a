package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/glasscanvas/internal/filters"
	"github.com/MeKo-Tech/glasscanvas/internal/imgbuf"
)

func randomBuffer(w, h int, seed int64) *imgbuf.Buffer {
	r := rand.New(rand.NewSource(seed))
	b := imgbuf.New(w, h, imgbuf.BGR)
	r.Read(b.Pix)
	return b
}

func gray128(w, h int) *imgbuf.Buffer {
	return imgbuf.Filled(w, h, color.RGBA{R: 128, G: 128, B: 128, A: 255})
}

func withStyle(s Style) Params {
	p := DefaultParams()
	p.Style = s
	return p
}

func TestNegativeScenario(t *testing.T) {
	out, err := Process(gray128(100, 100), withStyle(StyleNegative))
	require.NoError(t, err)
	assert.Equal(t, 100, out.Width)
	assert.Equal(t, 100, out.Height)
	assert.Equal(t, imgbuf.BGR, out.Order)
	for _, v := range out.Pix {
		require.Equal(t, uint8(127), v)
	}
}

func TestGrayscaleScenario(t *testing.T) {
	out, err := Process(gray128(100, 100), withStyle(StyleGrayscale))
	require.NoError(t, err)
	assert.Equal(t, imgbuf.Gray, out.Order)
	assert.Equal(t, 1, out.Channels())
	assert.Len(t, out.Pix, 100*100)
	for _, v := range out.Pix {
		require.Equal(t, uint8(128), v)
	}
}

func TestGrayscaleFromSingleChannelInput(t *testing.T) {
	src := imgbuf.New(7, 5, imgbuf.Gray)
	out, err := Process(src, withStyle(StyleGrayscale))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Channels())
	assert.Equal(t, 7, out.Width)
}

func TestCropScenario(t *testing.T) {
	p := DefaultParams()
	p.Crop = Crop{Left: 10, Right: 10}
	out, err := Process(randomBuffer(100, 100, 1), p)
	require.NoError(t, err)
	assert.Equal(t, 80, out.Width)
	assert.Equal(t, 100, out.Height)
}

func TestCropKeepsPixels(t *testing.T) {
	src := randomBuffer(10, 10, 2)
	out := CropImage(src, Crop{Left: 20, Top: 30, Right: 10, Bottom: 10})
	require.Equal(t, 7, out.Width)
	require.Equal(t, 6, out.Height)
	assert.Equal(t, src.Pix[src.Offset(2, 3):src.Offset(2, 3)+3], out.Pix[:3])
	assert.Equal(t, src.Pix[src.Offset(8, 8):src.Offset(8, 8)+3], out.Pix[out.Offset(6, 5):out.Offset(6, 5)+3])
}

func TestGridScenario(t *testing.T) {
	src := imgbuf.New(90, 90, imgbuf.BGR)
	out := DrawGrid(src, 3)
	green := []uint8{GridColor.B, GridColor.G, GridColor.R}
	black := []uint8{0, 0, 0}

	px := func(x, y int) []uint8 { o := out.Offset(x, y); return out.Pix[o : o+3] }
	for y := 0; y < 90; y++ {
		for x := 0; x < 90; x++ {
			onLine := x == 30 || x == 60 || y == 30 || y == 60
			if onLine {
				require.Equal(t, green, px(x, y), "(%d,%d)", x, y)
			} else {
				require.Equal(t, black, px(x, y), "(%d,%d)", x, y)
			}
		}
	}
	assert.Equal(t, black, src.Pix[src.Offset(30, 0):src.Offset(30, 0)+3], "grid must draw on a copy")
}

func TestGridOnGray(t *testing.T) {
	out := DrawGrid(imgbuf.New(9, 9, imgbuf.Gray), 3)
	assert.Equal(t, GridGrayLevel, out.Pix[3])
	assert.Equal(t, GridGrayLevel, out.Pix[6*9])
	assert.Equal(t, uint8(0), out.Pix[0])
}

func TestProcessWithGridAfterGrayscale(t *testing.T) {
	p := withStyle(StyleGrayscale)
	p.ShowGrid = true
	out, err := Process(gray128(30, 30), p)
	require.NoError(t, err)
	assert.Equal(t, GridGrayLevel, out.Pix[10])
	assert.Equal(t, uint8(128), out.Pix[0])
}

func TestRotate(t *testing.T) {
	src := imgbuf.New(3, 2, imgbuf.Gray)
	copy(src.Pix, []uint8{
		1, 2, 3,
		4, 5, 6,
	})
	assert.Same(t, src, Rotate(src, 0))
	assert.Same(t, src, Rotate(src, 8))

	cw := Rotate(src, 1)
	assert.Equal(t, 2, cw.Width)
	assert.Equal(t, 3, cw.Height)
	assert.Equal(t, []uint8{4, 1, 5, 2, 6, 3}, cw.Pix)

	assert.Equal(t, []uint8{6, 5, 4, 3, 2, 1}, Rotate(src, 2).Pix)
	assert.Equal(t, []uint8{3, 6, 2, 5, 1, 4}, Rotate(src, 3).Pix)
	assert.True(t, Rotate(src, -1).Equal(Rotate(src, 3)))
}

func TestNeutralAdjustIsIdentity(t *testing.T) {
	src := randomBuffer(8, 8, 3)
	assert.Same(t, src, AdjustBrightnessContrast(src, 0, 1.0))
	out, err := Process(src, DefaultParams())
	require.NoError(t, err)
	assert.True(t, src.Equal(out))
}

func TestAdjustClamps(t *testing.T) {
	out := AdjustBrightnessContrast(gray128(2, 2), 100, 3.0)
	assert.Equal(t, uint8(255), out.Pix[0])
	out = AdjustBrightnessContrast(gray128(2, 2), -100, 0.5)
	assert.Equal(t, uint8(0), out.Pix[0])
	out = AdjustBrightnessContrast(gray128(2, 2), 10, 1.5)
	assert.Equal(t, uint8(202), out.Pix[0])
}

func TestSepiaExtremes(t *testing.T) {
	white := imgbuf.Filled(4, 4, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	out, err := Process(white, withStyle(StyleSepia))
	require.NoError(t, err)
	assert.Equal(t, []uint8{239, 255, 255}, out.Pix[:3])

	out, err = Process(imgbuf.New(4, 4, imgbuf.BGR), withStyle(StyleSepia))
	require.NoError(t, err)
	for _, v := range out.Pix {
		require.Equal(t, uint8(0), v)
	}
}

func TestFlatImagesThroughEveryStyle(t *testing.T) {
	src := gray128(24, 24)
	for _, s := range Styles() {
		t.Run(s.Slug(), func(t *testing.T) {
			out, err := Process(src, withStyle(s))
			require.NoError(t, err)
			assert.Equal(t, 24, out.Width)
			assert.Equal(t, 24, out.Height)
			if s.SingleChannel() {
				assert.Equal(t, imgbuf.Gray, out.Order)
			} else {
				assert.Equal(t, imgbuf.BGR, out.Order)
			}

			if s == StyleSepia {
				assert.Equal(t, []uint8{120, 154, 173}, out.Pix[:3])
				return
			}
			var want uint8
			switch s {
			case StyleMagicOutline, StylePencilSketch:
				want = 255
			case StyleNegative:
				want = 127
			default:
				want = 128
			}
			for _, v := range out.Pix {
				require.Equal(t, want, v)
			}
		})
	}
}

// splitGray returns a BGR buffer whose columns left of split are lo and the
// rest hi.
func splitGray(w, h, split int, lo, hi uint8) *imgbuf.Buffer {
	b := imgbuf.New(w, h, imgbuf.BGR)
	for y := range h {
		for x := range w {
			v := hi
			if x < split {
				v = lo
			}
			i := b.Offset(x, y)
			b.Pix[i], b.Pix[i+1], b.Pix[i+2] = v, v, v
		}
	}
	return b
}

func TestPencilSketchDodgeAtEdge(t *testing.T) {
	src := splitGray(40, 20, 20, 60, 200)
	out, err := Process(src, withStyle(StylePencilSketch))
	require.NoError(t, err)
	require.Equal(t, imgbuf.BGR, out.Order)

	gray := src.ToGray()
	blurred, err := filters.GaussianBlur(filters.Invert(gray), 21, 0)
	require.NoError(t, err)

	// Next to the edge the blur mixes both sides, so the dodge does not
	// saturate and the formula is observable.
	x, y := 19, 10
	g := float64(gray.Pix[y*gray.Width+x])
	bv := float64(blurred.Pix[y*blurred.Width+x])
	require.Less(t, bv, 255.0)
	want := uint8(math.Min(255, math.Round(g*256/(255-bv))))
	require.Greater(t, want, uint8(0))
	require.Less(t, want, uint8(255))

	i := out.Offset(x, y)
	assert.Equal(t, []uint8{want, want, want}, out.Pix[i:i+3])

	// Far from the edge the dodge saturates to white.
	i = out.Offset(0, 10)
	assert.Equal(t, []uint8{255, 255, 255}, out.Pix[i:i+3])
}

func TestCrayonDrawingMasksDarkDetail(t *testing.T) {
	src := imgbuf.Filled(30, 30, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	for y := 14; y <= 16; y++ {
		for x := 14; x <= 16; x++ {
			i := src.Offset(x, y)
			src.Pix[i], src.Pix[i+1], src.Pix[i+2] = 20, 20, 20
		}
	}

	out, err := Process(src, withStyle(StyleCrayonDrawing))
	require.NoError(t, err)
	require.Equal(t, imgbuf.BGR, out.Order)

	i := out.Offset(15, 15)
	assert.Equal(t, []uint8{0, 0, 0}, out.Pix[i:i+3], "dark detail falls below the local mean")
	i = out.Offset(0, 0)
	assert.Equal(t, []uint8{200, 200, 200}, out.Pix[i:i+3], "flat background passes the mask")
}

func TestProcessUsesNativeBackend(t *testing.T) {
	assert.Equal(t, NativeBackend, defaultPipeline.BackendName())
	assert.Contains(t, Backends(), NativeBackend)

	out, err := Process(gray128(3, 2), DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, gray128(3, 2).Pix, out.Pix)
}

func TestMagicOutlineDrawsDarkEdges(t *testing.T) {
	src := imgbuf.New(30, 30, imgbuf.BGR)
	for y := 0; y < 30; y++ {
		for x := 15; x < 30; x++ {
			o := src.Offset(x, y)
			src.Pix[o], src.Pix[o+1], src.Pix[o+2] = 255, 255, 255
		}
	}
	out, err := Process(src, withStyle(StyleMagicOutline))
	require.NoError(t, err)

	dark := 0
	for y := 0; y < 30; y++ {
		if out.Pix[y*30+14] == 0 || out.Pix[y*30+15] == 0 {
			dark++
		}
		assert.Equal(t, uint8(255), out.Pix[y*30+2])
		assert.Equal(t, uint8(255), out.Pix[y*30+27])
	}
	assert.Equal(t, 30, dark)
}

func TestEdgeThresholds(t *testing.T) {
	p := DefaultParams()
	low, high := p.EdgeThresholds()
	assert.Equal(t, 50, low)
	assert.Equal(t, 150, high)

	p.EdgeLow, p.EdgeHigh = 200, 100
	low, high = p.EdgeThresholds()
	assert.Equal(t, 100, low)
	assert.Equal(t, 200, high)

	p.EdgeLow, p.EdgeHigh = -5, 30
	low, high = p.EdgeThresholds()
	assert.Equal(t, 0, low)
	assert.Equal(t, 30, high)
}

func TestSwappedThresholdsRenderAlike(t *testing.T) {
	src := randomBuffer(20, 20, 4)
	a := withStyle(StyleMagicOutline)
	a.EdgeLow, a.EdgeHigh = 40, 120
	b := a
	b.EdgeLow, b.EdgeHigh = 120, 40

	outA, err := Process(src, a)
	require.NoError(t, err)
	outB, err := Process(src, b)
	require.NoError(t, err)
	assert.True(t, outA.Equal(outB))
}

func TestRenderIsDeterministic(t *testing.T) {
	src := randomBuffer(32, 24, 5)
	p := DefaultParams()
	p.Rotation = 3
	p.Crop = Crop{Left: 5, Top: 12.5}
	p.Brightness = -20
	p.Contrast = 1.4
	p.Style = StyleCrayonDrawing
	p.ShowGrid = true

	a, err := Process(src, p)
	require.NoError(t, err)
	b, err := Process(src.Clone(), p)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestRenderTimingsAndResult(t *testing.T) {
	pl, err := NewBuilder().Build()
	require.NoError(t, err)
	assert.Equal(t, NativeBackend, pl.BackendName())

	p := withStyle(StyleSepia)
	p.Rotation = 1
	p.ShowGrid = true
	res, err := pl.Render(context.Background(), randomBuffer(10, 6, 6), p)
	require.NoError(t, err)

	assert.Equal(t, 6, res.Width)
	assert.Equal(t, 10, res.Height)
	assert.Equal(t, 3, res.Channels)
	assert.Contains(t, res.Timings, StageRotate)
	assert.Contains(t, res.Timings, StageStyle)
	assert.Contains(t, res.Timings, StageGrid)
	assert.NotContains(t, res.Timings, StageCrop)
	assert.Contains(t, res.TimingsMillis(), "style")
}

func TestRunFitsLargeSources(t *testing.T) {
	pl, err := NewBuilder().WithMaxDimension(40).Build()
	require.NoError(t, err)

	img := image.NewNRGBA(image.Rect(0, 0, 100, 50))
	res, err := pl.Run(context.Background(), img, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 40, res.Width)
	assert.Equal(t, 20, res.Height)
	assert.Contains(t, res.Timings, StageNormalize)

	_, err = pl.Run(context.Background(), nil, DefaultParams())
	assert.Error(t, err)
}

func TestRenderHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := defaultPipeline.Render(ctx, gray128(4, 4), DefaultParams())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenderEmptySource(t *testing.T) {
	_, err := Process(imgbuf.New(0, 0, imgbuf.BGR), DefaultParams())
	assert.Error(t, err)
}

func TestStagePanicBecomesStageError(t *testing.T) {
	var table [styleCount]StyleFunc
	table[StyleNegative] = func(*imgbuf.Buffer, Params) (*imgbuf.Buffer, error) {
		panic("boom")
	}
	table[StyleSepia] = func(*imgbuf.Buffer, Params) (*imgbuf.Buffer, error) {
		return nil, errors.New("sepia broke")
	}
	RegisterBackend("faulty-test", func() Backend { return tableBackend{name: "faulty-test", table: table} })

	pl, err := NewBuilder().WithBackend("faulty-test").Build()
	require.NoError(t, err)

	_, err = pl.Render(context.Background(), gray128(4, 4), withStyle(StyleNegative))
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageStyle, se.Stage)
	assert.Contains(t, se.Error(), "boom")

	_, err = pl.Render(context.Background(), gray128(4, 4), withStyle(StyleSepia))
	require.ErrorAs(t, err, &se)
	assert.EqualError(t, se.Unwrap(), "sepia broke")

	out, err := pl.Render(context.Background(), gray128(4, 4), withStyle(StyleGrayscale))
	require.NoError(t, err)
	assert.Equal(t, imgbuf.Gray, out.Image.Order)
}

func TestUnknownBackend(t *testing.T) {
	_, err := NewBuilder().WithBackend("does-not-exist").Build()
	assert.ErrorIs(t, err, ErrUnknownBackend)
	assert.Contains(t, Backends(), NativeBackend)
}

func TestPipelineProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("four rotations in one direction are identity", prop.ForAll(
		func(w, h int, seed int64, k int) bool {
			src := randomBuffer(w, h, seed)
			out := src
			for i := 0; i < 4; i++ {
				out = Rotate(out, k)
			}
			return out.Equal(src)
		},
		gen.IntRange(1, 12), gen.IntRange(1, 12), gen.Int64(), gen.IntRange(-3, 3),
	))

	properties.Property("rotating k then -k is identity", prop.ForAll(
		func(w, h int, seed int64, k int) bool {
			src := randomBuffer(w, h, seed)
			return Rotate(Rotate(src, k), -k).Equal(src)
		},
		gen.IntRange(1, 12), gen.IntRange(1, 12), gen.Int64(), gen.IntRange(-7, 7),
	))

	properties.Property("zero crop is identity", prop.ForAll(
		func(w, h int, seed int64) bool {
			src := randomBuffer(w, h, seed)
			return CropImage(src, Crop{}).Equal(src)
		},
		gen.IntRange(1, 40), gen.IntRange(1, 40), gen.Int64(),
	))

	properties.Property("degenerate crop returns the input", prop.ForAll(
		func(w, h, left, extra int, vertical bool) bool {
			src := randomBuffer(w, h, int64(w*h))
			c := Crop{Left: float64(left), Right: float64(100 - left + extra)}
			if vertical {
				c = Crop{Top: float64(left), Bottom: float64(100 - left + extra)}
			}
			return CropImage(src, c) == src
		},
		gen.IntRange(1, 64), gen.IntRange(1, 64), gen.IntRange(0, 100), gen.IntRange(0, 20), gen.Bool(),
	))

	properties.Property("negative twice is identity", prop.ForAll(
		func(w, h int, seed int64) bool {
			src := randomBuffer(w, h, seed)
			once, err := Process(src, withStyle(StyleNegative))
			if err != nil {
				return false
			}
			twice, err := Process(once, withStyle(StyleNegative))
			return err == nil && twice.Equal(src)
		},
		gen.IntRange(1, 16), gen.IntRange(1, 16), gen.Int64(),
	))

	properties.Property("grayscale always yields one channel", prop.ForAll(
		func(w, h int, seed int64, gray bool) bool {
			src := randomBuffer(w, h, seed)
			if gray {
				src = src.ToGray()
			}
			out, err := Process(src, withStyle(StyleGrayscale))
			return err == nil && out.Channels() == 1 && len(out.Pix) == w*h
		},
		gen.IntRange(1, 16), gen.IntRange(1, 16), gen.Int64(), gen.Bool(),
	))

	properties.Property("valid params never fail on cheap styles", prop.ForAll(
		func(seed int64, rot, crop, bright int, contrast float64, style int, grid bool) bool {
			p := DefaultParams()
			p.Rotation = rot
			p.Crop = Crop{Left: float64(crop), Right: float64(50 - crop), Top: float64(crop)}
			p.Brightness = bright
			p.Contrast = contrast
			p.Style = []Style{StyleOriginal, StyleGrayscale, StyleSepia, StyleNegative}[style]
			p.ShowGrid = grid
			if p.Validate() != nil {
				return false
			}
			_, err := Process(randomBuffer(9, 7, seed), p)
			return err == nil
		},
		gen.Int64(), gen.IntRange(-8, 8), gen.IntRange(0, 50), gen.IntRange(-100, 100),
		gen.Float64Range(0.5, 3.0), gen.IntRange(0, 3), gen.Bool(),
	))

	properties.TestingRun(t)
}
