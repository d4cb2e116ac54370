package core

import "strings"

// RequestedProjectState is a filter describing which post-build
// properties and item/metadata to materialize.
//
// PropertyFilters nil means "all properties" (the universal superset).
// ItemFilters maps item-type (name-insensitive) to a metadata-name list;
// a nil metadata list means "all metadata" for that item type, which is
// likewise a superset of any concrete list. An item-type absent from
// ItemFilters is not requested at all.
type RequestedProjectState struct {
	PropertyFilters []string          // nil == all
	ItemFilters     map[string][]string // item-type -> metadata names (nil slice == all)
}

func lowerSet(names []string) map[string]struct{} {
	if names == nil {
		return nil
	}
	s := make(map[string]struct{}, len(names))
	for _, n := range names {
		s[strings.ToLower(n)] = struct{}{}
	}
	return s
}

// stringListSubset reports whether a is a subset of b: nil means "all"
// (a superset of everything); otherwise ordinary set containment,
// name-insensitively.
func stringListSubset(a, b []string) bool {
	if b == nil {
		return true // b is "all metadata" / "all properties"
	}
	if a == nil {
		// a is "all", b is a concrete (proper) subset unless b is also nil,
		// which was handled above. a can only be <= b if b is also "all".
		return false
	}
	bset := lowerSet(b)
	for _, v := range a {
		if _, ok := bset[strings.ToLower(v)]; !ok {
			return false
		}
	}
	return true
}

// IsSubsetOf reports whether A is a subset of B: A's property filter
// is a subset of B's (nil meaning "all"), and for every item-type in
// A, B names that item-type too with a superset metadata filter.
func (a *RequestedProjectState) IsSubsetOf(b *RequestedProjectState) bool {
	if a == nil {
		return true
	}
	if b == nil {
		// b requests nothing extra; a is a subset of b only if a also
		// requests nothing (property filter empty/nil-all is "everything",
		// which cannot be a subset of "nothing" unless a is literally empty).
		return len(a.PropertyFilters) == 0 && len(a.ItemFilters) == 0
	}
	if !stringListSubset(a.PropertyFilters, b.PropertyFilters) {
		return false
	}
	for itemType, aMeta := range a.ItemFilters {
		bMeta, ok := lookupItemFilter(b.ItemFilters, itemType)
		if !ok {
			return false
		}
		if !stringListSubset(aMeta, bMeta) {
			return false
		}
	}
	return true
}

func lookupItemFilter(filters map[string][]string, itemType string) ([]string, bool) {
	for k, v := range filters {
		if strings.EqualFold(k, itemType) {
			return v, true
		}
	}
	return nil, false
}

// Union returns the superset union of a and b: nil "all" dominates, and
// per item-type the metadata lists are unioned the same way.
func (a *RequestedProjectState) Union(b *RequestedProjectState) *RequestedProjectState {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	out := &RequestedProjectState{ItemFilters: make(map[string][]string)}
	out.PropertyFilters = unionStringLists(a.PropertyFilters, b.PropertyFilters)

	seen := make(map[string]bool)
	record := func(itemType string, meta []string, other []string, otherPresent bool) {
		key := strings.ToLower(itemType)
		if seen[key] {
			return
		}
		seen[key] = true
		if !otherPresent {
			// The other side never mentioned this item-type: nothing to
			// union with, so the filter is exactly this side's list.
			out.ItemFilters[itemType] = meta
			return
		}
		out.ItemFilters[itemType] = unionStringLists(meta, other)
	}
	for itemType, meta := range a.ItemFilters {
		other, ok := lookupItemFilter(b.ItemFilters, itemType)
		record(itemType, meta, other, ok)
	}
	for itemType, meta := range b.ItemFilters {
		other, ok := lookupItemFilter(a.ItemFilters, itemType)
		record(itemType, meta, other, ok)
	}
	return out
}

// unionStringLists returns the union of a and b, name-insensitively
// deduplicated; nil ("all") on either side dominates and yields nil.
func unionStringLists(a, b []string) []string {
	if a == nil || b == nil {
		return nil
	}
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	add := func(list []string) {
		for _, v := range list {
			key := strings.ToLower(v)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, v)
		}
	}
	add(a)
	add(b)
	return out
}

// ProjectStateAfterBuild is an immutable filtered snapshot of the
// post-build project, computed once on result publication.
type ProjectStateAfterBuild struct {
	Properties map[string]string
	Items      map[string][]*TaskItem // item-type -> items
	Filter     *RequestedProjectState
}

// Merge combines the receiver (existing) with incoming: new wins on
// item collision, properties are unioned (new wins on collision), and
// the filters are unioned into a superset.
func (p *ProjectStateAfterBuild) Merge(incoming *ProjectStateAfterBuild) *ProjectStateAfterBuild {
	if p == nil {
		return incoming
	}
	if incoming == nil {
		return p
	}
	out := &ProjectStateAfterBuild{
		Properties: make(map[string]string, len(p.Properties)+len(incoming.Properties)),
		Items:      make(map[string][]*TaskItem, len(p.Items)+len(incoming.Items)),
	}
	for k, v := range p.Properties {
		out.Properties[k] = v
	}
	for k, v := range incoming.Properties {
		out.Properties[k] = v // new wins
	}
	for k, v := range p.Items {
		out.Items[k] = append([]*TaskItem(nil), v...)
	}
	for k, v := range incoming.Items {
		out.Items[k] = append([]*TaskItem(nil), v...) // new wins on the whole item-type bucket
	}
	out.Filter = p.Filter.Union(incoming.Filter)
	return out
}
