package configcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildmesh/enginecore/internal/core"
)

func newTestConfig(path string, props [][2]string) *core.BuildRequestConfiguration {
	return &core.BuildRequestConfiguration{
		ProjectFullPath:  path,
		GlobalProperties: core.NewGlobalProperties(props),
		ToolsVersion:     "Current",
	}
}

func TestCache_InternDedupesEqualConfigurations(t *testing.T) {
	c := New(nil, nil)

	a := newTestConfig("C:\\proj\\a.csproj", [][2]string{{"Configuration", "Debug"}})
	b := newTestConfig("c:\\proj\\A.csproj", [][2]string{{"configuration", "Debug"}})

	id1 := c.Intern(a)
	id2 := c.Intern(b)
	assert.Equal(t, id1, id2, "case-insensitive equal configurations must intern to the same id")
	assert.Equal(t, 1, len(c.Enumerate()))
}

func TestCache_InternDistinguishesDifferentProperties(t *testing.T) {
	c := New(nil, nil)

	a := newTestConfig("a.csproj", [][2]string{{"Configuration", "Debug"}})
	b := newTestConfig("a.csproj", [][2]string{{"Configuration", "Release"}})

	id1 := c.Intern(a)
	id2 := c.Intern(b)
	assert.NotEqual(t, id1, id2)
}

func TestCache_DistinctConfigurationsAreRetainedSeparately(t *testing.T) {
	// Two configs that are not Equal must both be retained as distinct
	// entries, each retrievable by its own id.
	c := New(nil, nil)
	a := newTestConfig("a.csproj", nil)
	b := newTestConfig("b.csproj", nil)

	id1 := c.Intern(a)
	id2 := c.Intern(b)
	assert.NotEqual(t, id1, id2)

	got1, ok := c.Get(id1)
	require.True(t, ok)
	assert.Equal(t, "a.csproj", got1.ProjectFullPath)

	got2, ok := c.Get(id2)
	require.True(t, ok)
	assert.Equal(t, "b.csproj", got2.ProjectFullPath)
}

func TestCache_CloneWithNewID_RejectsSentinel(t *testing.T) {
	c := New(nil, nil)
	cfg := newTestConfig("a.csproj", nil)
	c.Intern(cfg)

	_, err := c.CloneWithNewID(cfg, core.InvalidConfigurationId)
	require.Error(t, err)
	assert.Equal(t, core.ErrorKindInternalError, core.ClassifyError(err))
}

func TestCache_CloneWithNewID_LeavesOriginalUntouched(t *testing.T) {
	c := New(nil, nil)
	cfg := newTestConfig("a.csproj", nil)
	id := c.Intern(cfg)

	clone, err := c.CloneWithNewID(cfg, core.ConfigurationId(99))
	require.NoError(t, err)
	assert.Equal(t, core.ConfigurationId(99), clone.Id)
	assert.Equal(t, id, cfg.Id)

	got, ok := c.Get(core.ConfigurationId(99))
	require.True(t, ok)
	assert.Same(t, clone, got)
}

func TestCache_Enumerate_OrdersAscendingByID(t *testing.T) {
	c := New(nil, nil)
	c.Intern(newTestConfig("c.csproj", nil))
	c.Intern(newTestConfig("a.csproj", nil))
	c.Intern(newTestConfig("b.csproj", nil))

	enumerated := c.Enumerate()
	require.Len(t, enumerated, 3)
	for i := 1; i < len(enumerated); i++ {
		assert.Less(t, enumerated[i-1].Id, enumerated[i].Id)
	}
}

func TestCache_SpillAndRetrieve_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	backend := NewFileSpillBackend(dir, EncodeGobProject, DecodeGobProject)
	c := New(backend, nil)

	cfg := newTestConfig("a.csproj", nil)
	cfg.IsCacheable = true
	cfg.Project = &gobProjectRecord{Path: "a.csproj", Initial: []string{"Build"}, Default: []string{"Build"}}
	id := c.Intern(cfg)

	require.NoError(t, c.Spill(id))
	got, ok := c.Get(id)
	require.True(t, ok)
	assert.Nil(t, got.Project, "spill must clear the in-memory project reference")

	project, err := c.RetrieveFromCache(id)
	require.NoError(t, err)
	assert.Equal(t, "a.csproj", project.FullPath())
	assert.Equal(t, []string{"Build"}, project.InitialTargets())

	got, _ = c.Get(id)
	assert.NotNil(t, got.Project, "retrieve must reattach the project to the cached configuration")
}

func TestCache_Spill_NoOpWhenNotCacheable(t *testing.T) {
	dir := t.TempDir()
	backend := NewFileSpillBackend(dir, EncodeGobProject, DecodeGobProject)
	c := New(backend, nil)

	cfg := newTestConfig("a.csproj", nil)
	cfg.IsCacheable = false
	cfg.Project = &gobProjectRecord{Path: "a.csproj"}
	id := c.Intern(cfg)

	require.NoError(t, c.Spill(id))
	got, _ := c.Get(id)
	assert.NotNil(t, got.Project, "non-cacheable configurations are never spilled")
}

func TestCache_RetrieveFromCache_ErrorsWithoutBackendOrProject(t *testing.T) {
	c := New(nil, nil)
	cfg := newTestConfig("a.csproj", nil)
	id := c.Intern(cfg)

	_, err := c.RetrieveFromCache(id)
	require.Error(t, err)
	assert.Equal(t, core.ErrorKindInternalError, core.ClassifyError(err))
}
