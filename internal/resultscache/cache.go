// Package resultscache is the map from ConfigurationId to merged
// BuildResult, with partial-satisfaction queries and filter
// subsumption. Its in-memory store keeps a golang-lru recency tracker
// alongside it, and an optional remote tier (Redis, Standard profile)
// has its copies deleted when entries are compacted.
package resultscache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/buildmesh/enginecore/internal/core"
)

// SatisfyStatus is the outcome of a partial-satisfaction query.
type SatisfyStatus int

const (
	NotSatisfied SatisfyStatus = iota
	Satisfied
)

func (s SatisfyStatus) String() string {
	if s == Satisfied {
		return "Satisfied"
	}
	return "NotSatisfied"
}

// Response is the result of satisfy_request.
type Response struct {
	Status SatisfyStatus
	Result *core.BuildResult
}

// RemoteBackend is the Standard-profile remote tier (Redis). The Cache
// itself only calls Delete, from Compact; it does not Load from the
// remote tier on a local miss or Store to it on Add.
type RemoteBackend interface {
	Load(id core.ConfigurationId) (*core.BuildResult, bool, error)
	Store(id core.ConfigurationId, result *core.BuildResult) error
	Delete(id core.ConfigurationId) error
}

// Cache is the per-process results cache.
type Cache struct {
	mu     sync.RWMutex
	byID   map[core.ConfigurationId]*core.BuildResult
	recent *lru.Cache[core.ConfigurationId, struct{}] // tracks recently added ids under a size bound
	remote RemoteBackend
	logger *slog.Logger

	// History is the optional Standard-profile submission-history sink.
	// When set, every Add that carries a submission id is mirrored to
	// it on a best-effort basis.
	History *SubmissionHistorySink
}

// New creates a Cache. maxEntries, when positive, sizes an LRU tracker
// of recently added configuration ids (0 disables the tracker); the
// Cache does not evict entries when that size is exceeded.
// remote may be nil (Lite profile: no cross-node sharing).
func New(maxEntries int, remote RemoteBackend, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		byID:   make(map[core.ConfigurationId]*core.BuildResult),
		remote: remote,
		logger: logger.With("component", "resultscache"),
	}
	if maxEntries > 0 {
		tracker, err := lru.New[core.ConfigurationId, struct{}](maxEntries)
		if err != nil {
			// Only returns an error for a non-positive size, already
			// excluded above.
			panic(err)
		}
		c.recent = tracker
	}
	return c
}

// Add stores result, cloning it if no result exists yet for its
// configuration, or merging it into the existing one otherwise. A nil
// or target-less, exception-less result is a no-op. Merging across
// configurations never happens here because result always targets its
// own ConfigurationID; callers merging a foreign result into a
// specific slot must use Merge directly.
func (c *Cache) Add(result *core.BuildResult) error {
	if result == nil {
		return nil
	}
	if result.TargetCount() == 0 && result.Exception == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.byID[result.ConfigurationID]
	if !ok {
		c.byID[result.ConfigurationID] = result.Clone()
		c.touch(result.ConfigurationID)
		c.recordHistory(result)
		return nil
	}
	merged, err := Merge(existing, result)
	if err != nil {
		return err
	}
	c.byID[result.ConfigurationID] = merged
	c.touch(result.ConfigurationID)
	c.recordHistory(merged)
	return nil
}

func (c *Cache) recordHistory(result *core.BuildResult) {
	if c.History == nil || result.SubmissionID == "" {
		return
	}
	c.History.Record(context.Background(), result)
}

func (c *Cache) touch(id core.ConfigurationId) {
	if c.recent != nil {
		c.recent.Add(id, struct{}{})
	}
}

// GetResultForConfiguration returns the raw merged result for id.
func (c *Cache) GetResultForConfiguration(id core.ConfigurationId) (*core.BuildResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	return r, true
}

// GetResultForRequest returns the stored result restricted to request's
// targets, or nil if the configuration is absent. It fails with
// InternalError if the configuration is present but any requested
// target is missing.
func (c *Cache) GetResultForRequest(request *core.BuildRequest) (*core.BuildResult, error) {
	c.mu.RLock()
	stored, ok := c.byID[request.ConfigurationID]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return stored.Restrict(request.Targets)
}

// SatisfyRequest checks whether the cache already holds everything
// request demands. skippedResultsOK controls whether a Skipped target
// counts as satisfying demand for it: when true, a
// cached Skipped target counts as satisfying demand for that target;
// when false, a Skipped entry causes NotSatisfied.
func (c *Cache) SatisfyRequest(request *core.BuildRequest, skippedResultsOK bool) (*Response, error) {
	c.mu.RLock()
	stored, ok := c.byID[request.ConfigurationID]
	c.mu.RUnlock()
	if !ok {
		return &Response{Status: NotSatisfied}, nil
	}

	if !request.Flags.IsSubsetOf(stored.BuiltWithFlags) {
		return &Response{Status: NotSatisfied}, nil
	}

	for _, name := range request.Targets.Names() {
		tr, found := stored.TargetResult(name)
		if !found {
			return &Response{Status: NotSatisfied}, nil
		}
		if tr.ResultCode() == core.ResultCodeSkipped && !skippedResultsOK {
			return &Response{Status: NotSatisfied}, nil
		}
	}

	if request.Flags.Has(core.FlagProvideProjectStateAfterBuild) && stored.BuiltWithState == nil &&
		!stored.BuiltWithFlags.Has(core.FlagProvideProjectStateAfterBuild) {
		return &Response{Status: NotSatisfied}, nil
	}
	if request.Flags.Has(core.FlagProvideSubsetOfStateAfterBuild) {
		if !request.RequestedProjectState.IsSubsetOf(stored.BuiltWithState) {
			return &Response{Status: NotSatisfied}, nil
		}
	}

	restricted, err := stored.Restrict(request.Targets)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.touch(request.ConfigurationID)
	c.mu.Unlock()
	return &Response{Status: Satisfied, Result: restricted}, nil
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[core.ConfigurationId]*core.BuildResult)
	if c.recent != nil {
		c.recent.Purge()
	}
}

// Enumerate returns every cached result ordered by ConfigurationId
// ascending.
func (c *Cache) Enumerate() []*core.BuildResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]core.ConfigurationId, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*core.BuildResult, len(ids))
	for i, id := range ids {
		out[i] = c.byID[id]
	}
	return out
}

// Compact keeps only the lowest-numbered ConfigurationId among the
// given candidates and drops the rest; this is the smallest-id
// retention rule used when spilling the cache for on-disk
// serialization. The Cache has no capacity-driven eviction alongside
// it; entries are dropped only by explicit requests such as this one.
func (c *Cache) Compact(ids []core.ConfigurationId) error {
	if len(ids) == 0 {
		return nil
	}
	keep := ids[0]
	for _, id := range ids[1:] {
		if id < keep {
			keep = id
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if id == keep {
			continue
		}
		delete(c.byID, id)
		if c.remote != nil {
			if err := c.remote.Delete(id); err != nil {
				return fmt.Errorf("resultscache: compact: evict remote copy of configuration %d: %w", id, err)
			}
		}
	}
	return nil
}
