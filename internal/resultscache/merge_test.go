package resultscache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildmesh/enginecore/internal/core"
)

func TestMerge_NilExistingReturnsClone(t *testing.T) {
	incoming := core.NewBuildResult(1)
	incoming.AddTargetResult("foo", successTR())

	merged, err := Merge(nil, incoming)
	require.NoError(t, err)
	assert.Equal(t, 1, merged.TargetCount())
	assert.NotSame(t, incoming, merged)
}

func TestMerge_EmptyIncomingIsNoOp(t *testing.T) {
	existing := core.NewBuildResult(1)
	existing.AddTargetResult("foo", successTR())

	merged, err := Merge(existing, core.NewBuildResult(1))
	require.NoError(t, err)
	assert.Equal(t, 1, merged.TargetCount())
}

func TestMerge_NewExceptionWinsOverNoExistingException(t *testing.T) {
	existing := core.NewBuildResult(1)
	existing.AddTargetResult("foo", successTR())

	incoming := core.NewBuildResult(1)
	incoming.Exception = core.NewInternalError("evaluation crashed")

	merged, err := Merge(existing, incoming)
	require.NoError(t, err)
	require.NotNil(t, merged.Exception)
	assert.Contains(t, merged.Exception.Message, "evaluation crashed")
}

func TestMerge_ExistingExceptionSurvivesExceptionlessIncoming(t *testing.T) {
	existing := core.NewBuildResult(1)
	existing.Exception = core.NewInternalError("first failure")
	existing.AddTargetResult("foo", successTR())

	incoming := core.NewBuildResult(1)
	incoming.AddTargetResult("bar", successTR())

	merged, err := Merge(existing, incoming)
	require.NoError(t, err)
	require.NotNil(t, merged.Exception)
	assert.Contains(t, merged.Exception.Message, "first failure")
}

func TestMerge_NewerExceptionWinsWhenBothCarryOne(t *testing.T) {
	// Newer wins when both the existing and incoming result carry an
	// exception, rather than keeping whichever was recorded first.
	existing := core.NewBuildResult(1)
	existing.Exception = core.NewInternalError("older")
	incoming := core.NewBuildResult(1)
	incoming.Exception = core.NewInternalError("newer")
	incoming.AddTargetResult("t", successTR())

	merged, err := Merge(existing, incoming)
	require.NoError(t, err)
	assert.Contains(t, merged.Exception.Message, "newer")
}

// TestMerge_ProjectStateAfterBuild_UnionsPropertiesAndItems merges two results that each
// carry a partial post-build project state and checks the union of
// their properties and items.
func TestMerge_ProjectStateAfterBuild_UnionsPropertiesAndItems(t *testing.T) {
	existing := core.NewBuildResult(1)
	existing.AddTargetResult("foo", successTR())
	existing.ProjectStateAfterBuild = &core.ProjectStateAfterBuild{
		Properties: map[string]string{"A": "1", "B": "2"},
		Items:      map[string][]*core.TaskItem{"Compile": {core.NewTaskItem("a.cs", nil)}},
		Filter:     &core.RequestedProjectState{PropertyFilters: []string{"A", "B"}},
	}

	incoming := core.NewBuildResult(1)
	incoming.AddTargetResult("bar", successTR())
	incoming.ProjectStateAfterBuild = &core.ProjectStateAfterBuild{
		Properties: map[string]string{"B": "3", "C": "4"},
		Items:      map[string][]*core.TaskItem{"Compile": {core.NewTaskItem("b.cs", nil)}},
		Filter:     &core.RequestedProjectState{PropertyFilters: []string{"B", "C"}},
	}

	merged, err := Merge(existing, incoming)
	require.NoError(t, err)
	ps := merged.ProjectStateAfterBuild
	require.NotNil(t, ps)
	assert.Equal(t, "1", ps.Properties["A"])
	assert.Equal(t, "3", ps.Properties["B"], "new wins on property collision")
	assert.Equal(t, "4", ps.Properties["C"])
	require.Len(t, ps.Items["Compile"], 1)
	assert.Equal(t, "b.cs", ps.Items["Compile"][0].Spec, "new wins on item-type collision")

	assert.True(t, (&core.RequestedProjectState{PropertyFilters: []string{"A"}}).IsSubsetOf(ps.Filter))
	assert.True(t, (&core.RequestedProjectState{PropertyFilters: []string{"C"}}).IsSubsetOf(ps.Filter))
}

func TestMerge_BuiltWithFlagsAreUnioned(t *testing.T) {
	existing := core.NewBuildResult(1)
	existing.AddTargetResult("foo", successTR())
	existing.BuiltWithFlags = core.FlagSkipNonexistentTargets

	incoming := core.NewBuildResult(1)
	incoming.AddTargetResult("bar", successTR())
	incoming.BuiltWithFlags = core.FlagFailOnUnresolvedSdk

	merged, err := Merge(existing, incoming)
	require.NoError(t, err)
	assert.True(t, merged.BuiltWithFlags.Has(core.FlagSkipNonexistentTargets))
	assert.True(t, merged.BuiltWithFlags.Has(core.FlagFailOnUnresolvedSdk))
}
