package resultscache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/buildmesh/enginecore/internal/core"
)

type persistedTarget struct {
	Name       string
	ResultCode int
	ActionCode int
}

type persistedResult struct {
	ConfigurationID int32
	SubmissionID    string
	Targets         []persistedTarget
}

// SerializeToFile spills the cache to path at TEMP_ROOT/RESULTS_CACHE_*,
// compacting as it goes: only the single lowest ConfigurationId among
// the cache's current entries is written; the rest are dropped both
// from the file and, per Compact, from this in-memory cache, since an
// on-disk spill is this cache's substitute for unbounded in-memory
// retention, not an additional copy.
func (c *Cache) SerializeToFile(path string) error {
	c.mu.Lock()
	ids := make([]core.ConfigurationId, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}
	if err := c.Compact(ids); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	var keepID core.ConfigurationId
	var keep *core.BuildResult
	for id, r := range c.byID {
		keepID, keep = id, r
		break
	}
	if keep == nil {
		return nil
	}

	rec := persistedResult{ConfigurationID: int32(keepID), SubmissionID: keep.SubmissionID}
	for _, name := range keep.TargetNames() {
		tr, _ := keep.TargetResult(name)
		rec.Targets = append(rec.Targets, persistedTarget{
			Name:       name,
			ResultCode: int(tr.ResultCode()),
			ActionCode: int(tr.WorkUnitResult.ActionCode),
		})
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return fmt.Errorf("resultscache: encode spill file %q: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("resultscache: write spill file %q: %w", path, err)
	}
	return nil
}

// LoadFromFile replaces the cache's contents with the single result
// spilled at path by a prior SerializeToFile call.
func (c *Cache) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("resultscache: read spill file %q: %w", path, err)
	}
	var rec persistedResult
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return fmt.Errorf("resultscache: decode spill file %q: %w", path, err)
	}

	result := core.NewBuildResult(core.ConfigurationId(rec.ConfigurationID))
	result.SubmissionID = rec.SubmissionID
	for _, t := range rec.Targets {
		result.AddTargetResult(t.Name, &core.TargetResult{WorkUnitResult: core.WorkUnitResult{
			ResultCode: core.ResultCode(t.ResultCode),
			ActionCode: core.ActionCode(t.ActionCode),
		}})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = map[core.ConfigurationId]*core.BuildResult{result.ConfigurationID: result}
	if c.recent != nil {
		c.recent.Purge()
		c.recent.Add(result.ConfigurationID, struct{}{})
	}
	return nil
}
