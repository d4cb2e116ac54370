package configcache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/buildmesh/enginecore/internal/core"
)

// FileSpillBackend persists evaluated projects as gob-encoded files
// under a temp root. This is the Standard-profile backend.
type FileSpillBackend struct {
	tempRoot string
	encode   func(core.ProjectInstance) ([]byte, error)
	decode   func([]byte) (core.ProjectInstance, error)
}

// NewFileSpillBackend creates a backend rooted at tempRoot. encode/decode
// let the caller supply the evaluator's own serialization for
// ProjectInstance, since that type is an external collaborator the core does not otherwise know how to (de)serialize.
func NewFileSpillBackend(tempRoot string, encode func(core.ProjectInstance) ([]byte, error), decode func([]byte) (core.ProjectInstance, error)) *FileSpillBackend {
	return &FileSpillBackend{tempRoot: tempRoot, encode: encode, decode: decode}
}

// quoteTempRoot preserves tempRoot's bytes verbatim up to a path
// separator: a temp root containing characters that are
// unsafe for a path component is escaped rather than rejected, but the
// resulting path must still begin with the configured root string.
func quoteTempRoot(tempRoot string) string {
	// The only transformation applied is collapsing characters that
	// cannot appear inside a single path *component* (the OS path
	// separator itself) so an opaque root string never accidentally
	// introduces extra directory levels; everything else, however odd,
	// passes through untouched.
	return strings.ReplaceAll(tempRoot, string(filepath.Separator), "_")
}

func (b *FileSpillBackend) path(submission string, id core.ConfigurationId) string {
	root := quoteTempRoot(b.tempRoot)
	name := "CONFIG_CACHE_" + submission + "_" + strconv.Itoa(int(id)) + ".bin"
	return filepath.Join(b.tempRoot, root+"."+name)
}

// ResultCachePath implements the temp file naming convention
// TEMP_ROOT/RESULTS_CACHE_<submission>_<config>.bin, for naming a
// results-cache spill file (see resultscache.Cache.SerializeToFile).
func ResultCachePath(tempRoot, submission string, id core.ConfigurationId) string {
	name := fmt.Sprintf("RESULTS_CACHE_%s_%d.bin", submission, id)
	return filepath.Join(tempRoot, name)
}

// Store writes project to disk for id under an unspecified, stable
// submission bucket (callers that need per-submission isolation should
// wrap FileSpillBackend per submission; the configuration cache itself
// is keyed only by ConfigurationId).
func (b *FileSpillBackend) Store(id core.ConfigurationId, project core.ProjectInstance) error {
	if b.encode == nil {
		return core.NewInternalError("configcache: FileSpillBackend has no encoder configured")
	}
	if err := os.MkdirAll(b.tempRoot, 0o700); err != nil {
		return fmt.Errorf("configcache: create temp root %q: %w", b.tempRoot, err)
	}
	data, err := b.encode(project)
	if err != nil {
		return fmt.Errorf("configcache: encode configuration %d: %w", id, err)
	}
	return os.WriteFile(b.path("cache", id), data, 0o600)
}

// Retrieve reads project back from disk for id.
func (b *FileSpillBackend) Retrieve(id core.ConfigurationId) (core.ProjectInstance, error) {
	if b.decode == nil {
		return nil, core.NewInternalError("configcache: FileSpillBackend has no decoder configured")
	}
	data, err := os.ReadFile(b.path("cache", id))
	if err != nil {
		return nil, fmt.Errorf("configcache: read spilled configuration %d: %w", id, err)
	}
	return b.decode(data)
}

// Remove deletes the spilled file for id, if any. Missing files are not
// an error: Remove is used for best-effort cleanup.
func (b *FileSpillBackend) Remove(id core.ConfigurationId) error {
	err := os.Remove(b.path("cache", id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("configcache: remove spilled configuration %d: %w", id, err)
	}
	return nil
}

// gobProjectRecord is a minimal, self-contained ProjectInstance encoding
// used by tests and by deployments that do not need the real evaluator's
// richer serialization.
type gobProjectRecord struct {
	Path    string
	Initial []string
	Default []string
}

func (r *gobProjectRecord) FullPath() string          { return r.Path }
func (r *gobProjectRecord) InitialTargets() []string   { return r.Initial }
func (r *gobProjectRecord) DefaultTargets() []string   { return r.Default }

// EncodeGobProject and DecodeGobProject are a ready-made encode/decode
// pair for FileSpillBackend covering the common case where
// ProjectInstance only needs its path and declared targets preserved
// across a spill/retrieve round-trip.
func EncodeGobProject(p core.ProjectInstance) ([]byte, error) {
	rec := gobProjectRecord{Path: p.FullPath(), Initial: p.InitialTargets(), Default: p.DefaultTargets()}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeGobProject(data []byte) (core.ProjectInstance, error) {
	var rec gobProjectRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
