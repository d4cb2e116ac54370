package configcache

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/buildmesh/enginecore/internal/core"
)

// SQLiteSpillBackend is a pure-Go on-disk alternative to FileSpillBackend
// for Lite-profile deployments that want spilled configurations queryable
// rather than one opaque file per configuration.
// Encode/decode are the same evaluator-supplied pair FileSpillBackend
// uses; the two backends are interchangeable because SpillBackend is an
// interface.
type SQLiteSpillBackend struct {
	db     *sql.DB
	encode func(core.ProjectInstance) ([]byte, error)
	decode func([]byte) (core.ProjectInstance, error)
}

// NewSQLiteSpillBackend opens (creating if absent) a sqlite database at
// path and ensures its single table exists.
func NewSQLiteSpillBackend(path string, encode func(core.ProjectInstance) ([]byte, error), decode func([]byte) (core.ProjectInstance, error)) (*SQLiteSpillBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("configcache: open sqlite spill database %q: %w", path, err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS spilled_configurations (
		id INTEGER PRIMARY KEY,
		project_data BLOB NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("configcache: create sqlite spill schema: %w", err)
	}
	return &SQLiteSpillBackend{db: db, encode: encode, decode: decode}, nil
}

// Store writes project's encoding under id, replacing any prior entry.
func (b *SQLiteSpillBackend) Store(id core.ConfigurationId, project core.ProjectInstance) error {
	if b.encode == nil {
		return core.NewInternalError("configcache: SQLiteSpillBackend has no encoder configured")
	}
	data, err := b.encode(project)
	if err != nil {
		return fmt.Errorf("configcache: encode configuration %d: %w", id, err)
	}
	_, err = b.db.Exec(`INSERT INTO spilled_configurations (id, project_data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET project_data = excluded.project_data`, int32(id), data)
	if err != nil {
		return fmt.Errorf("configcache: store spilled configuration %d: %w", id, err)
	}
	return nil
}

// Retrieve reads project back for id.
func (b *SQLiteSpillBackend) Retrieve(id core.ConfigurationId) (core.ProjectInstance, error) {
	if b.decode == nil {
		return nil, core.NewInternalError("configcache: SQLiteSpillBackend has no decoder configured")
	}
	var data []byte
	err := b.db.QueryRow(`SELECT project_data FROM spilled_configurations WHERE id = ?`, int32(id)).Scan(&data)
	if err != nil {
		return nil, fmt.Errorf("configcache: read spilled configuration %d: %w", id, err)
	}
	return b.decode(data)
}

// Remove deletes the spilled row for id, if any.
func (b *SQLiteSpillBackend) Remove(id core.ConfigurationId) error {
	if _, err := b.db.Exec(`DELETE FROM spilled_configurations WHERE id = ?`, int32(id)); err != nil {
		return fmt.Errorf("configcache: remove spilled configuration %d: %w", id, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (b *SQLiteSpillBackend) Close() error {
	return b.db.Close()
}
