package dump

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildmesh/enginecore/internal/core"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveBaseDir_RelativeDebugPathResolvesAgainstCWD(t *testing.T) {
	dir := t.TempDir()
	restore := chdir(t, dir)
	defer restore()

	t.Setenv("DEBUG_PATH", "dumps")
	base := resolveBaseDir()
	assert.Equal(t, filepath.Join(dir, "dumps", buildLogsSubdir), base)
}

func TestResolveBaseDir_AbsentFallsBackToTempDir(t *testing.T) {
	t.Setenv("DEBUG_PATH", "")
	base := resolveBaseDir()
	assert.Equal(t, filepath.Join(os.TempDir(), buildLogsSubdir), base)
}

func TestEnabled_TruthyValues(t *testing.T) {
	t.Setenv("DEBUG_ENGINE", "true")
	assert.True(t, Enabled())

	t.Setenv("DEBUG_ENGINE", "")
	assert.False(t, Enabled())
}

func TestWriter_WriteFailureProducesNamedFileWithChain(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DEBUG_PATH", "")
	w := &Writer{BaseDir: dir, logger: discardLogger()}

	inner := core.NewBuildError(core.ErrorKindInvalidProjectFile, "bad xml")
	outer := core.NewBuildError(core.ErrorKindInternalError, "submission failed")
	outer.Inner = inner

	ts := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	path, err := w.WriteFailure(outer, ts)
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(path), "BUILD_")
	assert.Contains(t, filepath.Base(path), "_failure.txt")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "submission failed")
	assert.Contains(t, content, "bad xml")
	assert.Contains(t, content, core.ErrorKindInternalError.ErrorCode())
}

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() { os.Chdir(old) }
}
