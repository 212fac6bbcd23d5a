package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/glasscanvas/internal/testutil"
)

// isolateEnv points HOME and XDG_CONFIG_HOME at an empty directory and makes
// it the working directory, so no stray config file is picked up.
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Chdir(dir)
	return dir
}

// runCLI executes a fresh command tree and returns what it wrote.
func runCLI(t *testing.T, stdin io.Reader, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "glasscanvas.yaml"), []byte(content), 0o600))
}

func writePhoto(t *testing.T, path string, width, height int) {
	t.Helper()
	testutil.SaveImage(t, testutil.GradientImage(width, height), path)
}

func TestRootCommand(t *testing.T) {
	root := NewRootCommand()
	assert.Equal(t, "glasscanvas", root.Use)
	assert.NotEmpty(t, root.Short)
	assert.NotEmpty(t, root.Long)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, expected := range []string{"process", "batch", "serve", "styles", "bench", "config"} {
		assert.Contains(t, names, expected, "Expected subcommand '%s' not found", expected)
	}
}

func TestRootCommandHelp(t *testing.T) {
	isolateEnv(t)
	out, _, err := runCLI(t, nil, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "traceable line art")
	assert.Contains(t, out, "Available Commands:")
	assert.Contains(t, out, "Usage:")
}

func TestRootCommandVersion(t *testing.T) {
	isolateEnv(t)
	out, _, err := runCLI(t, nil, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "glasscanvas version ")
}

func TestRootCommandInvalidFlag(t *testing.T) {
	isolateEnv(t)
	_, _, err := runCLI(t, nil, "--no-such-flag")
	assert.Error(t, err)
}

func TestRootCommandMissingConfigFile(t *testing.T) {
	isolateEnv(t)
	_, _, err := runCLI(t, nil, "--config", "missing.yaml", "styles")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file does not exist")
}

func TestRootCommandInvalidConfig(t *testing.T) {
	dir := isolateEnv(t)
	writeConfig(t, dir, "log_level: chatty\n")
	_, _, err := runCLI(t, nil, "styles")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}

func TestRootCommandVerboseLogsDebug(t *testing.T) {
	dir := isolateEnv(t)
	writePhoto(t, filepath.Join(dir, "photo.png"), 6, 4)

	_, stderr, err := runCLI(t, nil, "-v", "process", "photo.png")
	require.NoError(t, err)
	assert.Contains(t, stderr, `"level":"DEBUG"`)
	assert.Contains(t, stderr, `"msg":"Input decoded"`)

	_, stderr, err = runCLI(t, nil, "process", "photo.png", "-o", "quiet.png")
	require.NoError(t, err)
	assert.NotContains(t, stderr, `"level":"DEBUG"`)
}
