package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/glasscanvas/internal/codec"
	"github.com/MeKo-Tech/glasscanvas/internal/pipeline"
	"github.com/MeKo-Tech/glasscanvas/internal/testutil"
)

// recordingProgress counts callback invocations.
type recordingProgress struct {
	mu       sync.Mutex
	started  int
	last     int
	errors   int
	complete bool
}

func (r *recordingProgress) OnStart(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = total
}

func (r *recordingProgress) OnProgress(current, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = current
}

func (r *recordingProgress) OnComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.complete = true
}

func (r *recordingProgress) OnError(int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors++
}

func setupInputs(t *testing.T) (inDir, outDir string) {
	t.Helper()
	inDir = testutil.CreateTempDir(t)
	outDir = filepath.Join(testutil.CreateTempDir(t), "out")
	testutil.SaveImage(t, testutil.GradientImage(12, 8), filepath.Join(inDir, "b.png"))
	testutil.SaveImage(t, testutil.GradientImage(10, 10), filepath.Join(inDir, "c.jpg"))
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "a_broken.png"), []byte("not an image"), 0o600))
	return inDir, outDir
}

func TestProcessBatch_ContinueOnError(t *testing.T) {
	inDir, outDir := setupInputs(t)
	progress := &recordingProgress{}

	cfg := DefaultConfig()
	cfg.OutputDir = outDir
	cfg.Workers = 2
	cfg.ContinueOnError = true
	cfg.Params.Style = pipeline.StyleGrayscale
	cfg.Params.Rotation = 1
	cfg.Progress = progress

	result, err := ProcessBatch(context.Background(), []string{inDir}, cfg)
	require.NoError(t, err)
	require.Len(t, result.Items, 3)

	broken := result.Items[0]
	assert.True(t, broken.Failed())
	assert.ErrorIs(t, broken.Err, codec.ErrUnsupportedImage)
	assert.Empty(t, broken.Output)

	b := result.Items[1]
	require.NoError(t, b.Err)
	assert.Equal(t, filepath.Join(outDir, "b_grayscale.png"), b.Output)
	assert.Equal(t, 8, b.Width)
	assert.Equal(t, 12, b.Height)
	img := testutil.LoadImage(t, b.Output)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 12, img.Bounds().Dy())

	assert.True(t, testutil.FileExists(filepath.Join(outDir, "c_grayscale.png")))

	stats := result.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 2, stats.WorkerCount)

	assert.Equal(t, 3, progress.started)
	assert.Equal(t, 3, progress.last)
	assert.Equal(t, 1, progress.errors)
	assert.True(t, progress.complete)
}

func TestProcessBatch_StopsOnFirstError(t *testing.T) {
	inDir, outDir := setupInputs(t)

	cfg := DefaultConfig()
	cfg.OutputDir = outDir
	cfg.Workers = 1

	result, err := ProcessBatch(context.Background(), []string{inDir}, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, codec.ErrUnsupportedImage)
	assert.Contains(t, err.Error(), "a_broken.png")
	require.NotNil(t, result)

	stats := result.Stats()
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 2, stats.Processed+stats.Skipped)
}

func TestProcessBatch_FormatsAndExtensions(t *testing.T) {
	inDir := testutil.CreateTempDir(t)
	testutil.SaveImage(t, testutil.CheckerImage(16, 16, 4), filepath.Join(inDir, "checker.png"))

	for format, ext := range map[string]string{"jpeg": "jpg", "jpg": "jpg", "pdf": "pdf", "PNG": "png"} {
		t.Run(format, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.OutputDir = testutil.CreateTempDir(t)
			cfg.Format = format
			cfg.Params.Style = pipeline.StyleMagicOutline

			result, err := ProcessBatch(context.Background(), []string{inDir}, cfg)
			require.NoError(t, err)
			require.Len(t, result.Items, 1)
			assert.Equal(t, filepath.Join(cfg.OutputDir, "checker_magic-outline."+ext), result.Items[0].Output)
			assert.Positive(t, result.Items[0].Bytes)
		})
	}
}

func TestProcessBatch_Errors(t *testing.T) {
	inDir := testutil.CreateTempDir(t)
	outDir := testutil.CreateTempDir(t)

	t.Run("no images", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.OutputDir = outDir
		_, err := ProcessBatch(context.Background(), []string{inDir}, cfg)
		assert.ErrorIs(t, err, ErrNoImages)
	})

	t.Run("missing output dir", func(t *testing.T) {
		_, err := ProcessBatch(context.Background(), []string{inDir}, DefaultConfig())
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := ProcessBatch(context.Background(), []string{inDir}, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("unknown format", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.OutputDir = outDir
		cfg.Format = "gif"
		_, err := ProcessBatch(context.Background(), []string{inDir}, cfg)
		assert.ErrorIs(t, err, codec.ErrUnknownFormat)
	})

	t.Run("invalid params", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.OutputDir = outDir
		cfg.Params.Contrast = 7
		_, err := ProcessBatch(context.Background(), []string{inDir}, cfg)
		var pe *pipeline.ParamError
		assert.True(t, errors.As(err, &pe))
	})

	t.Run("unknown backend", func(t *testing.T) {
		testutil.SaveImage(t, testutil.GradientImage(4, 4), filepath.Join(inDir, "x.png"))
		cfg := DefaultConfig()
		cfg.OutputDir = outDir
		cfg.Backend = "nope"
		_, err := ProcessBatch(context.Background(), []string{inDir}, cfg)
		assert.ErrorIs(t, err, pipeline.ErrUnknownBackend)
	})

	t.Run("missing input", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.OutputDir = outDir
		_, err := ProcessBatch(context.Background(), []string{"/nonexistent/file.png"}, cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot access")
	})
}

func TestProcessBatch_Canceled(t *testing.T) {
	inDir, outDir := setupInputs(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultConfig()
	cfg.OutputDir = outDir
	cfg.ContinueOnError = true

	result, err := ProcessBatch(ctx, []string{inDir}, cfg)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, 3, result.Stats().Skipped)
}

func TestPlanJobs(t *testing.T) {
	jobs := planJobs([]string{"/a/photo.png", "/b/photo.jpg", "/c/photo.webp", "/c/other.png"}, "out", pipeline.StyleSepia, "png")
	require.Len(t, jobs, 4)
	assert.Equal(t, filepath.Join("out", "photo_sepia.png"), jobs[0].output)
	assert.Equal(t, filepath.Join("out", "photo_sepia-2.png"), jobs[1].output)
	assert.Equal(t, filepath.Join("out", "photo_sepia-3.png"), jobs[2].output)
	assert.Equal(t, filepath.Join("out", "other_sepia.png"), jobs[3].output)
	assert.Equal(t, 3, jobs[3].index)
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "cat_pencil-sketch.jpg", outputName("/pics/cat.jpeg", pipeline.StylePencilSketch, "jpg"))
	assert.Equal(t, "archive.tar_original.png", outputName("archive.tar.gz", pipeline.StyleOriginal, "png"))
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputDir = "out"
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.Workers = -1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = *cfg
	bad.JPEGQuality = 101
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}
