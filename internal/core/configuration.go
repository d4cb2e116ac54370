// Package core holds the engine's data model: configurations, requests,
// results, and the error kinds used to report failures across the
// coordinator/worker boundary.
package core

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
)

var structValidate = validator.New()

// ConfigurationId identifies a BuildRequestConfiguration. Zero is the
// "unassigned" sentinel. Negative values are node-local allocations made
// by a worker node before the central coordinator has interned the
// configuration and handed back a canonical positive id.
type ConfigurationId int32

// InvalidConfigurationId is the "unassigned" sentinel.
const InvalidConfigurationId ConfigurationId = 0

// IsRemote reports whether the id was allocated locally on a worker node
// and has not yet been reconciled against the central configuration cache.
func (id ConfigurationId) IsRemote() bool { return id < 0 }

// IsValid reports whether the id is anything other than the sentinel.
func (id ConfigurationId) IsValid() bool { return id != InvalidConfigurationId }

// GlobalProperties is an ordered name->value mapping compared
// name-insensitively. Order is preserved for deterministic hashing and
// round-tripping, but two GlobalProperties with the same entries in a
// different order still compare equal.
type GlobalProperties struct {
	names  []string
	values map[string]string // lower-cased name -> value
}

// NewGlobalProperties builds a GlobalProperties from an ordered slice of
// name/value pairs. Later entries with a name already seen overwrite the
// earlier value but keep the original position.
func NewGlobalProperties(pairs [][2]string) *GlobalProperties {
	gp := &GlobalProperties{values: make(map[string]string, len(pairs))}
	for _, p := range pairs {
		gp.Set(p[0], p[1])
	}
	return gp
}

// Set assigns a property, case-insensitively on the name.
func (g *GlobalProperties) Set(name, value string) {
	key := strings.ToLower(name)
	if _, exists := g.values[key]; !exists {
		g.names = append(g.names, name)
	}
	g.values[key] = value
}

// Get returns the value and whether the name is present.
func (g *GlobalProperties) Get(name string) (string, bool) {
	v, ok := g.values[strings.ToLower(name)]
	return v, ok
}

// Len returns the number of distinct properties.
func (g *GlobalProperties) Len() int { return len(g.values) }

// MarshalJSON renders properties as an ordered name->value object, for
// the debug HTTP API's cache-enumeration endpoints.
func (g *GlobalProperties) MarshalJSON() ([]byte, error) {
	if g == nil {
		return []byte("null"), nil
	}
	var buf strings.Builder
	buf.WriteByte('{')
	for i, name := range g.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		v, _ := g.Get(name)
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return []byte(buf.String()), nil
}

// Names returns property names in insertion order.
func (g *GlobalProperties) Names() []string {
	out := make([]string, len(g.names))
	copy(out, g.names)
	return out
}

// Equal reports order-independent, name-insensitive equality. Values are
// compared with ordinal (case-sensitive) semantics: global property
// *names* are case-insensitive per spec, but values are data and are
// compared verbatim.
func (g *GlobalProperties) Equal(o *GlobalProperties) bool {
	if g == nil || o == nil {
		return g == o
	}
	if len(g.values) != len(o.values) {
		return false
	}
	for k, v := range g.values {
		ov, ok := o.values[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// Hash returns an order-independent hash: the XOR of each entry's hash,
// so permutations of the same set hash identically.
func (g *GlobalProperties) Hash() uint64 {
	var h uint64
	for k, v := range g.values {
		h ^= fnv1a(k) * 31 + fnv1a(v)
	}
	return h
}

// Clone returns a deep copy.
func (g *GlobalProperties) Clone() *GlobalProperties {
	if g == nil {
		return nil
	}
	out := &GlobalProperties{
		names:  append([]string(nil), g.names...),
		values: make(map[string]string, len(g.values)),
	}
	for k, v := range g.values {
		out.values[k] = v
	}
	return out
}

func fnv1a(s string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	low := strings.ToLower(s)
	for i := 0; i < len(low); i++ {
		h ^= uint64(low[i])
		h *= prime64
	}
	return h
}

// ProjectInstance is the opaque, already-evaluated project handed to the
// core by the (out of scope) evaluator. The core never inspects its
// contents beyond the accessors it exposes.
type ProjectInstance interface {
	FullPath() string
	InitialTargets() []string
	DefaultTargets() []string
}

// BuildRequestConfiguration is the identity of a project build context:
// (project_full_path, global_properties, tools_version), plus the
// mutable state attached to a live build.
type BuildRequestConfiguration struct {
	Id ConfigurationId

	ProjectFullPath  string `validate:"required"`
	GlobalProperties *GlobalProperties
	ToolsVersion     string `validate:"required"`

	// Project is the attached evaluated project, or nil if it has been
	// spilled to the cache (see configcache.Cache.RetrieveFromCache).
	Project ProjectInstance

	IsCacheable         bool
	IsLoaded            bool
	IsActivelyBuilding  bool
	WasGeneratedByNode  bool
}

// Validate checks the struct-tag invariants a configuration must
// satisfy before it is interned or sent across the wire. It does
// not revalidate GlobalProperties, which has no tag-expressible shape.
func (c *BuildRequestConfiguration) Validate() error {
	if err := structValidate.Struct(c); err != nil {
		return NewInternalError("invalid build request configuration: %v", err)
	}
	return nil
}

// Equal implements configuration identity: case-insensitive comparison
// of (project_full_path, global_properties, tools_version).
func (c *BuildRequestConfiguration) Equal(o *BuildRequestConfiguration) bool {
	if c == nil || o == nil {
		return c == o
	}
	if !strings.EqualFold(c.ProjectFullPath, o.ProjectFullPath) {
		return false
	}
	if !strings.EqualFold(c.ToolsVersion, o.ToolsVersion) {
		return false
	}
	return c.GlobalProperties.Equal(o.GlobalProperties)
}

// Hash combines a case-insensitive hash of the path, an order-independent
// hash of the global properties, and a case-insensitive hash of the tools
// version. Two equal configurations are guaranteed to hash to the same
// bucket.
func (c *BuildRequestConfiguration) Hash() uint64 {
	h := fnv1a(c.ProjectFullPath)
	h = h*31 + fnv1a(c.ToolsVersion)
	if c.GlobalProperties != nil {
		h ^= c.GlobalProperties.Hash()
	}
	return h
}

// CloneWithNewId returns a shallow copy of c under a different id. The
// evaluated Project pointer is shared, not deep-copied.
func (c *BuildRequestConfiguration) CloneWithNewId(newID ConfigurationId) (*BuildRequestConfiguration, error) {
	if newID == InvalidConfigurationId {
		return nil, NewInternalError("clone_with_new_id: new id must not be the unassigned sentinel")
	}
	clone := *c
	clone.Id = newID
	clone.GlobalProperties = c.GlobalProperties.Clone()
	return &clone, nil
}
