package cmd

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/glasscanvas/internal/codec"
	"github.com/MeKo-Tech/glasscanvas/internal/pipeline"
	"github.com/MeKo-Tech/glasscanvas/internal/testutil"
)

func TestProcessCommand_DefaultOutputName(t *testing.T) {
	dir := isolateEnv(t)
	writePhoto(t, filepath.Join(dir, "photo.png"), 12, 8)

	_, stderr, err := runCLI(t, nil, "process", "photo.png")
	require.NoError(t, err)

	out := filepath.Join(dir, "photo_original.png")
	require.True(t, testutil.FileExists(out))
	img := testutil.LoadImage(t, out)
	assert.Equal(t, 12, img.Bounds().Dx())
	assert.Equal(t, 8, img.Bounds().Dy())
	assert.Contains(t, stderr, "Wrote photo_original.png (12x8, Original)")
}

func TestProcessCommand_PreviewBoundDoesNotShrinkOutput(t *testing.T) {
	dir := isolateEnv(t)
	writeConfig(t, dir, "pipeline:\n  max_dimension: 16\n")
	writePhoto(t, filepath.Join(dir, "photo.png"), 40, 20)

	_, _, err := runCLI(t, nil, "process", "photo.png", "-o", "full.png")
	require.NoError(t, err)
	img := testutil.LoadImage(t, filepath.Join(dir, "full.png"))
	assert.Equal(t, image.Rect(0, 0, 40, 20), img.Bounds())

	_, _, err = runCLI(t, nil, "process", "photo.png", "--max-dimension", "20", "-o", "fit.png")
	require.NoError(t, err)
	img = testutil.LoadImage(t, filepath.Join(dir, "fit.png"))
	assert.Equal(t, image.Rect(0, 0, 20, 10), img.Bounds())
}

func TestProcessCommand_RotateStyleAndInferredFormat(t *testing.T) {
	dir := isolateEnv(t)
	writePhoto(t, filepath.Join(dir, "photo.png"), 12, 8)

	_, _, err := runCLI(t, nil, "process", "photo.png", "-r", "1", "--style", "magic outline", "-o", "out.jpg")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "out.jpg"))
	require.NoError(t, err)
	img, meta, err := codec.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", meta.Format)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 12, img.Bounds().Dy())
}

func TestProcessCommand_DataURIToStdout(t *testing.T) {
	dir := isolateEnv(t)
	writePhoto(t, filepath.Join(dir, "photo.png"), 6, 6)

	stdout, _, err := runCLI(t, nil, "process", "photo.png", "--style", "sepia", "--format", "datauri", "-o", "-")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "data:image/png;base64,"))

	img, err := codec.ParseDataURI(strings.TrimSpace(stdout))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 6, 6), img.Bounds())
}

func TestProcessCommand_StdinToStdout(t *testing.T) {
	isolateEnv(t)
	var in bytes.Buffer
	require.NoError(t, png.Encode(&in, testutil.GradientImage(10, 4)))

	stdout, _, err := runCLI(t, &in, "process", "-", "--crop-left", "50")
	require.NoError(t, err)

	img, err := png.Decode(strings.NewReader(stdout))
	require.NoError(t, err)
	assert.Equal(t, 5, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())
}

func TestProcessCommand_Timings(t *testing.T) {
	dir := isolateEnv(t)
	writePhoto(t, filepath.Join(dir, "photo.png"), 8, 8)

	_, stderr, err := runCLI(t, nil, "process", "photo.png", "--style", "pencil-sketch", "--timings")
	require.NoError(t, err)
	assert.Contains(t, stderr, "total")
	assert.True(t, testutil.FileExists(filepath.Join(dir, "photo_pencil-sketch.png")))
}

func TestProcessCommand_ConfigDefaultsAndFlagOverride(t *testing.T) {
	dir := isolateEnv(t)
	writePhoto(t, filepath.Join(dir, "photo.png"), 8, 8)
	writeConfig(t, dir, "defaults:\n  style: negative\n")

	_, _, err := runCLI(t, nil, "process", "photo.png")
	require.NoError(t, err)
	assert.True(t, testutil.FileExists(filepath.Join(dir, "photo_negative.png")))

	_, _, err = runCLI(t, nil, "process", "photo.png", "--style", "grayscale")
	require.NoError(t, err)
	assert.True(t, testutil.FileExists(filepath.Join(dir, "photo_grayscale.png")))
}

func TestProcessCommand_Errors(t *testing.T) {
	dir := isolateEnv(t)
	writePhoto(t, filepath.Join(dir, "photo.png"), 8, 8)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("nope"), 0o600))

	t.Run("out of range knob", func(t *testing.T) {
		_, _, err := runCLI(t, nil, "process", "photo.png", "--crop-top", "75")
		var perr *pipeline.ParamError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "crop.top", perr.Field)
	})

	t.Run("not a number", func(t *testing.T) {
		_, _, err := runCLI(t, nil, "process", "photo.png", "--crop-left", "NaN")
		var perr *pipeline.ParamError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "crop.left", perr.Field)

		_, _, err = runCLI(t, nil, "process", "photo.png", "--contrast", "NaN")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "contrast")
		assert.False(t, testutil.FileExists(filepath.Join(dir, "photo_original.png")))
	})

	t.Run("unknown style", func(t *testing.T) {
		_, _, err := runCLI(t, nil, "process", "photo.png", "--style", "watercolor")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "watercolor")
	})

	t.Run("corrupt input", func(t *testing.T) {
		_, _, err := runCLI(t, nil, "process", "broken.png")
		require.True(t, errors.Is(err, codec.ErrUnsupportedImage), "got %v", err)
	})

	t.Run("missing argument", func(t *testing.T) {
		_, _, err := runCLI(t, nil, "process")
		assert.Error(t, err)
	})
}
