package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRequestedProjectState_Subsumption checks that a request's property
// filter is satisfied by a cached filter that is a superset of it.
func TestRequestedProjectState_Subsumption(t *testing.T) {
	cached := &RequestedProjectState{PropertyFilters: []string{"P1", "P2"}}
	reqP1 := &RequestedProjectState{PropertyFilters: []string{"P1"}}
	reqP3 := &RequestedProjectState{PropertyFilters: []string{"P3"}}

	assert.True(t, reqP1.IsSubsetOf(cached))
	assert.False(t, reqP3.IsSubsetOf(cached))
}

func TestRequestedProjectState_NilFilterMeansAll(t *testing.T) {
	all := &RequestedProjectState{}
	specific := &RequestedProjectState{PropertyFilters: []string{"P1"}}

	assert.True(t, specific.IsSubsetOf(all), "a concrete filter is a subset of the all-properties filter")
	assert.False(t, all.IsSubsetOf(specific), "all-properties is not a subset of a concrete filter")
}

// TestRequestedProjectState_AsymmetricSubset checks that if a is a
// proper subset of b, b is not a subset of a.
func TestRequestedProjectState_AsymmetricSubset(t *testing.T) {
	a := &RequestedProjectState{PropertyFilters: []string{"P1"}}
	b := &RequestedProjectState{PropertyFilters: []string{"P1", "P2"}}

	assert.True(t, a.IsSubsetOf(b))
	assert.False(t, b.IsSubsetOf(a))
}

func TestRequestedProjectState_ItemFilterSubsumption(t *testing.T) {
	cached := &RequestedProjectState{ItemFilters: map[string][]string{
		"Compile": {"Link", "DependentUpon"},
	}}
	req := &RequestedProjectState{ItemFilters: map[string][]string{
		"Compile": {"Link"},
	}}
	missingType := &RequestedProjectState{ItemFilters: map[string][]string{
		"Reference": {"HintPath"},
	}}

	assert.True(t, req.IsSubsetOf(cached))
	assert.False(t, missingType.IsSubsetOf(cached), "item-type absent from the cached filter is a miss")
}

func TestRequestedProjectState_AllMetadataIsSuperset(t *testing.T) {
	cached := &RequestedProjectState{ItemFilters: map[string][]string{"Compile": nil}}
	req := &RequestedProjectState{ItemFilters: map[string][]string{"Compile": {"Link"}}}
	assert.True(t, req.IsSubsetOf(cached))
}

func TestRequestedProjectState_UnionIsSupersetOfBoth(t *testing.T) {
	a := &RequestedProjectState{
		PropertyFilters: []string{"P1"},
		ItemFilters:     map[string][]string{"Compile": {"Link"}},
	}
	b := &RequestedProjectState{
		PropertyFilters: []string{"P2"},
		ItemFilters:     map[string][]string{"Reference": {"HintPath"}},
	}

	merged := a.Union(b)
	assert.True(t, a.IsSubsetOf(merged))
	assert.True(t, b.IsSubsetOf(merged))
}

func TestRequestedProjectState_UnionWithAllStaysAll(t *testing.T) {
	all := &RequestedProjectState{}
	specific := &RequestedProjectState{PropertyFilters: []string{"P1"}}
	merged := all.Union(specific)
	assert.Nil(t, merged.PropertyFilters, "union with the all-filter must remain all")
}

func TestProjectStateAfterBuild_MergeNewWinsOnItemsUnionsProperties(t *testing.T) {
	old := &ProjectStateAfterBuild{
		Properties: map[string]string{"A": "1", "B": "2"},
		Items:      map[string][]*TaskItem{"Compile": {NewTaskItem("a.cs", nil)}},
	}
	incoming := &ProjectStateAfterBuild{
		Properties: map[string]string{"B": "3", "C": "4"},
		Items:      map[string][]*TaskItem{"Compile": {NewTaskItem("b.cs", nil)}},
	}

	merged := old.Merge(incoming)
	assert.Equal(t, "1", merged.Properties["A"])
	assert.Equal(t, "3", merged.Properties["B"], "new wins on property collision")
	assert.Equal(t, "4", merged.Properties["C"])
	assert.Len(t, merged.Items["Compile"], 1)
	assert.Equal(t, "b.cs", merged.Items["Compile"][0].Spec, "new wins on item-type collision")
}
