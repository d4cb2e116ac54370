// Package dump writes the debug dump file an internal error produces,
// reusing pkg/logger's lumberjack.Logger file-output conventions for a
// one-shot diagnostic artifact instead of a rotated log stream.
package dump

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/buildmesh/enginecore/internal/core"
)

// buildLogsSubdir is the fixed subdirectory the engine appends under
// DEBUG_PATH.
const buildLogsSubdir = ".BUILD_LOGS"

// Writer writes dump files under a resolved base directory.
type Writer struct {
	BaseDir string
	logger  *slog.Logger
}

// NewWriter resolves DEBUG_PATH (relative values resolved against the
// current directory, absent falls back to the process temp directory)
// and appends the fixed .BUILD_LOGS subdirectory.
func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{BaseDir: resolveBaseDir(), logger: logger.With("component", "dump")}
}

func resolveBaseDir() string {
	path := os.Getenv("DEBUG_PATH")
	if path == "" {
		return filepath.Join(os.TempDir(), buildLogsSubdir)
	}
	if !filepath.IsAbs(path) {
		if cwd, err := os.Getwd(); err == nil {
			path = filepath.Join(cwd, path)
		}
	}
	return filepath.Join(path, buildLogsSubdir)
}

// Enabled reports whether DEBUG_ENGINE carries a truthy value.
func Enabled() bool {
	switch os.Getenv("DEBUG_ENGINE") {
	case "1", "true", "True", "TRUE":
		return true
	default:
		return false
	}
}

// WriteFailure writes a BUILD_<timestamp>_failure.txt file describing
// err, returning the path written. ts is passed in (rather than read
// from time.Now internally) so callers control the exact file name in
// tests.
func (w *Writer) WriteFailure(err *core.BuildError, ts time.Time) (string, error) {
	if mkErr := os.MkdirAll(w.BaseDir, 0o755); mkErr != nil {
		return "", fmt.Errorf("create dump directory %s: %w", w.BaseDir, mkErr)
	}

	name := fmt.Sprintf("BUILD_%s_failure.txt", ts.UTC().Format("20060102T150405.000000000Z"))
	path := filepath.Join(w.BaseDir, name)

	content := renderFailure(err)
	if writeErr := os.WriteFile(path, []byte(content), 0o644); writeErr != nil {
		return "", fmt.Errorf("write dump file %s: %w", path, writeErr)
	}

	w.logger.Error("internal error dump written", "path", path, "error_kind", err.Kind.String())
	return path, nil
}

func renderFailure(err *core.BuildError) string {
	var b []byte
	cur := err
	depth := 0
	for cur != nil {
		b = append(b, []byte(fmt.Sprintf("[%d] kind=%s code=%s message=%s\n", depth, cur.Kind.String(), cur.Kind.ErrorCode(), cur.Message))...)
		if cur.StackTrace != "" {
			b = append(b, []byte(fmt.Sprintf("    stack:\n%s\n", cur.StackTrace))...)
		}
		cur = cur.Inner
		depth++
	}
	return string(b)
}
