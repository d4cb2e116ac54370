// Package configcache interns BuildRequestConfiguration values by a
// case-insensitive (project_full_path, global_properties, tools_version)
// equality, and owns the optional spill of a configuration's evaluated
// ProjectInstance to disk. Its map+RWMutex shape and its Lite/Standard
// spill-backend split generalize an in-memory store with a
// profile-driven backend switch.
package configcache

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/buildmesh/enginecore/internal/core"
)

// SpillBackend persists an evaluated ProjectInstance out of process
// memory and retrieves it again. Standard deployments use the filesystem
// spill in spill.go; Lite deployments use the SQLite spill in
// sqlitespill.go when one is configured, and otherwise do not spill.
type SpillBackend interface {
	Store(id core.ConfigurationId, project core.ProjectInstance) error
	Retrieve(id core.ConfigurationId) (core.ProjectInstance, error)
	Remove(id core.ConfigurationId) error
}

// Cache interns BuildRequestConfiguration objects.
type Cache struct {
	mu      sync.RWMutex
	byID    map[core.ConfigurationId]*core.BuildRequestConfiguration
	byHash  map[uint64][]core.ConfigurationId // hash bucket -> candidate ids, for Equal-based lookup
	nextID  int32
	spill   SpillBackend
	logger  *slog.Logger
}

// New creates an empty Cache. spill may be nil, in which case
// is_cacheable configurations are simply never evicted from memory.
func New(spill SpillBackend, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		byID:   make(map[core.ConfigurationId]*core.BuildRequestConfiguration),
		byHash: make(map[uint64][]core.ConfigurationId),
		spill:  spill,
		logger: logger.With("component", "configcache"),
	}
}

// Intern returns the existing id for an equal configuration, or assigns
// and stores a new positive one. The caller's config is
// stored as-is; callers that need to keep using their own pointer should
// clone beforehand if they plan to mutate it further.
func (c *Cache) Intern(config *core.BuildRequestConfiguration) core.ConfigurationId {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := config.Hash()
	for _, candidate := range c.byHash[h] {
		existing := c.byID[candidate]
		if existing != nil && existing.Equal(config) {
			return candidate
		}
	}

	id := c.allocateID()
	config.Id = id
	c.byID[id] = config
	c.byHash[h] = append(c.byHash[h], id)

	c.logger.Debug("interned configuration",
		"configuration_id", id,
		"project", config.ProjectFullPath,
		"tools_version", config.ToolsVersion,
	)
	return id
}

// allocateID hands out a fresh positive id. Negative ids (remote,
// worker-allocated) are never produced here; they are reconciled by
// Reconcile when a worker's packet arrives.
func (c *Cache) allocateID() core.ConfigurationId {
	next := atomic.AddInt32(&c.nextID, 1)
	return core.ConfigurationId(next)
}

// Reconcile replaces a remote (negative) id with the canonical positive
// id the central cache assigns it: translation replaces negative,
// node-local ids with the canonical positive one.
func (c *Cache) Reconcile(remoteID core.ConfigurationId, config *core.BuildRequestConfiguration) core.ConfigurationId {
	canonical := c.Intern(config)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Debug("reconciled remote configuration id", "remote_id", remoteID, "canonical_id", canonical)
	return canonical
}

// Get returns the configuration for id, if present.
func (c *Cache) Get(id core.ConfigurationId) (*core.BuildRequestConfiguration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.byID[id]
	return cfg, ok
}

// Has reports whether id is known to the cache.
func (c *Cache) Has(id core.ConfigurationId) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.byID[id]
	return ok
}

// CloneWithNewID produces a shallow copy of config under newID and
// stores it under that id, failing with InternalError if newID is the
// unassigned sentinel.
func (c *Cache) CloneWithNewID(config *core.BuildRequestConfiguration, newID core.ConfigurationId) (*core.BuildRequestConfiguration, error) {
	clone, err := config.CloneWithNewId(newID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[newID] = clone
	c.byHash[clone.Hash()] = append(c.byHash[clone.Hash()], newID)
	return clone, nil
}

// Enumerate returns every interned configuration, ordered by
// ConfigurationId ascending.
func (c *Cache) Enumerate() []*core.BuildRequestConfiguration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*core.BuildRequestConfiguration, 0, len(c.byID))
	for _, cfg := range c.byID {
		out = append(out, cfg)
	}
	sortConfigsByID(out)
	return out
}

func sortConfigsByID(configs []*core.BuildRequestConfiguration) {
	for i := 1; i < len(configs); i++ {
		for j := i; j > 0 && configs[j-1].Id > configs[j].Id; j-- {
			configs[j-1], configs[j] = configs[j], configs[j-1]
		}
	}
}

// Spill evicts config's evaluated ProjectInstance to the configured
// SpillBackend when the configuration is cacheable, leaving the
// in-memory object's Project field nil. It is a no-op if the
// configuration is not cacheable or no backend is configured.
func (c *Cache) Spill(id core.ConfigurationId) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg, ok := c.byID[id]
	if !ok {
		return core.NewInternalError("configcache: spill requested for unknown configuration %d", id)
	}
	if !cfg.IsCacheable || c.spill == nil || cfg.Project == nil {
		return nil
	}
	if err := c.spill.Store(id, cfg.Project); err != nil {
		return fmt.Errorf("configcache: spill configuration %d: %w", id, err)
	}
	cfg.Project = nil
	return nil
}

// RetrieveFromCache inverts Spill: if the configuration's Project is
// currently nil and a backend is configured, it is loaded back in and
// attached.
func (c *Cache) RetrieveFromCache(id core.ConfigurationId) (core.ProjectInstance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg, ok := c.byID[id]
	if !ok {
		return nil, core.NewInternalError("configcache: retrieve requested for unknown configuration %d", id)
	}
	if cfg.Project != nil {
		return cfg.Project, nil
	}
	if c.spill == nil {
		return nil, core.NewInternalError("configcache: configuration %d has no attached project and no spill backend is configured", id)
	}
	project, err := c.spill.Retrieve(id)
	if err != nil {
		return nil, fmt.Errorf("configcache: retrieve configuration %d: %w", id, err)
	}
	cfg.Project = project
	return project, nil
}
