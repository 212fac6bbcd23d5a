package support

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/glasscanvas/internal/codec"
)

// gradient paints a deterministic test photo.
func gradient(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x * 255 / max(width-1, 1)),
				G: uint8(y * 255 / max(height-1, 1)),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

func encodeTestImage(name string, width, height int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(&buf, gradient(width, height), &jpeg.Options{Quality: 95})
	default:
		err = png.Encode(&buf, gradient(width, height))
	}
	return buf.Bytes(), err
}

func (testCtx *TestContext) aTestImageOfSize(name string, width, height int) error {
	data, err := encodeTestImage(name, width, height)
	if err != nil {
		return fmt.Errorf("failed to encode test image: %w", err)
	}
	path := testCtx.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (testCtx *TestContext) aCorruptImage(name string) error {
	path := testCtx.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("definitely not an image"), 0o600)
}

// aDirectoryWithTestImages writes n small PNGs named img1.png ... imgN.png.
func (testCtx *TestContext) aDirectoryWithTestImages(dir string, n int) error {
	for i := 1; i <= n; i++ {
		if err := testCtx.aTestImageOfSize(filepath.Join(dir, fmt.Sprintf("img%d.png", i)), 16, 12); err != nil {
			return err
		}
	}
	return nil
}

func (testCtx *TestContext) theImageShouldBe(name string, width, height int) error {
	img, _, err := codec.LoadImage(testCtx.path(name))
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", name, err)
	}
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return fmt.Errorf("image %s is %dx%d, expected %dx%d", name, b.Dx(), b.Dy(), width, height)
	}
	return nil
}

func (testCtx *TestContext) theImageShouldBeFormat(name, format string) error {
	data, err := os.ReadFile(testCtx.path(name))
	if err != nil {
		return err
	}
	if format == "pdf" {
		if !bytes.HasPrefix(data, []byte("%PDF-")) {
			return fmt.Errorf("%s is not a PDF", name)
		}
		return nil
	}
	_, got, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	if got != format {
		return fmt.Errorf("image %s is %s, expected %s", name, got, format)
	}
	return nil
}

// theImageShouldBeGray checks that every pixel has equal channels.
func (testCtx *TestContext) theImageShouldBeGray(name string) error {
	img, _, err := codec.LoadImage(testCtx.path(name))
	if err != nil {
		return err
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r != g || g != bl {
				return fmt.Errorf("pixel (%d,%d) of %s is not gray", x, y, name)
			}
		}
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldBeADataURI() error {
	out := strings.TrimSpace(testCtx.LastOutput)
	idx := strings.LastIndex(out, "data:image/png;base64,")
	if idx < 0 {
		return fmt.Errorf("no data URI in output: %.200s", out)
	}
	uri, _, _ := strings.Cut(out[idx:], "\n")
	if _, err := codec.ParseDataURI(strings.TrimSpace(uri)); err != nil {
		return fmt.Errorf("data URI does not decode: %w", err)
	}
	return nil
}

// RegisterImageSteps registers steps that create and inspect images.
func (testCtx *TestContext) RegisterImageSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a test image "([^"]*)" of size (\d+)x(\d+)$`, testCtx.aTestImageOfSize)
	sc.Step(`^a corrupt image "([^"]*)"$`, testCtx.aCorruptImage)
	sc.Step(`^a directory "([^"]*)" with (\d+) test images$`, testCtx.aDirectoryWithTestImages)
	sc.Step(`^the image "([^"]*)" should be (\d+)x(\d+)$`, testCtx.theImageShouldBe)
	sc.Step(`^the file "([^"]*)" should be a (png|jpeg|pdf) file$`, testCtx.theImageShouldBeFormat)
	sc.Step(`^the image "([^"]*)" should be grayscale$`, testCtx.theImageShouldBeGray)
	sc.Step(`^the output should be a PNG data URI$`, testCtx.theOutputShouldBeADataURI)
}
