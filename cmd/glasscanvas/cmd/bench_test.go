package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/glasscanvas/internal/benchmark"
	"github.com/MeKo-Tech/glasscanvas/internal/pipeline"
)

func TestBenchCommand_JSONForSelectedStyles(t *testing.T) {
	dir := isolateEnv(t)
	photo := filepath.Join(dir, "photo.png")
	writePhoto(t, photo, 32, 24)

	out, stderr, err := runCLI(t, nil, "bench", photo,
		"-n", "2", "--styles", "sepia,magic-outline", "--backends", "native", "-f", "json")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Benchmarking 32x24 source, 2 iterations per case")

	var results []benchmark.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, pipeline.StyleSepia, results[0].Style)
	assert.Equal(t, pipeline.StyleMagicOutline, results[1].Style)
	for _, r := range results {
		assert.Equal(t, "native", r.Backend)
		assert.Equal(t, 2, r.Iterations)
		assert.Empty(t, r.Error)
	}
}

func TestBenchCommand_TextTable(t *testing.T) {
	isolateEnv(t)
	out, _, err := runCLI(t, nil, "bench", "-n", "1", "--styles", "negative", "--backends", "native")
	require.NoError(t, err)
	assert.Contains(t, out, "BACKEND")
	assert.Contains(t, out, "native")
	assert.Contains(t, out, "negative")
}

func TestBenchCommand_Errors(t *testing.T) {
	isolateEnv(t)

	_, _, err := runCLI(t, nil, "bench", "--styles", "watercolor")
	require.ErrorIs(t, err, pipeline.ErrUnknownStyle)

	_, _, err = runCLI(t, nil, "bench", "-n", "0", "--styles", "negative")
	require.Error(t, err)

	_, _, err = runCLI(t, nil, "bench", "-f", "xml")
	require.Error(t, err)

	_, _, err = runCLI(t, nil, "bench", "missing.png")
	require.Error(t, err)
}
