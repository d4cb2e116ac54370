package resultscache

import "github.com/buildmesh/enginecore/internal/core"

// Merge combines incoming into existing and returns the merged result
// (existing is not mutated; a clone is produced). Merging results from
// different configurations is an InternalError. A nil or
// empty-and-exceptionless incoming result is a no-op, returning a
// clone of existing unchanged.
func Merge(existing, incoming *core.BuildResult) (*core.BuildResult, error) {
	if existing == nil {
		return incoming.Clone(), nil
	}
	if incoming == nil {
		return existing.Clone(), nil
	}
	if incoming.TargetCount() == 0 && incoming.Exception == nil {
		return existing.Clone(), nil
	}
	if existing.ConfigurationID != incoming.ConfigurationID {
		return nil, core.NewInternalError(
			"resultscache: cannot merge result for configuration %d into configuration %d",
			incoming.ConfigurationID, existing.ConfigurationID,
		)
	}

	merged := existing.Clone()

	// Union results by target; AddTargetResult already applies the
	// "concrete beats Skipped, never regresses" overwrite rule.
	for _, name := range incoming.TargetNames() {
		tr, _ := incoming.TargetResult(name)
		merged.AddTargetResult(name, tr.Clone())
	}

	// A captured exception on the incoming side always wins when
	// present; an incoming result with no exception never clears an
	// existing one. When both sides carry an exception, the newer one
	// (incoming) wins.
	if incoming.Exception != nil {
		merged.Exception = incoming.Exception
	}

	if incoming.InitialTargets != nil {
		merged.InitialTargets = append([]string(nil), incoming.InitialTargets...)
	}
	if incoming.DefaultTargets != nil {
		merged.DefaultTargets = append([]string(nil), incoming.DefaultTargets...)
	}
	merged.CircularDependency = merged.CircularDependency || incoming.CircularDependency

	// Merge project-state-after-build and union the filters it was
	// produced under into a superset of both.
	if existing.ProjectStateAfterBuild != nil || incoming.ProjectStateAfterBuild != nil {
		merged.ProjectStateAfterBuild = existing.ProjectStateAfterBuild.Merge(incoming.ProjectStateAfterBuild)
	}
	merged.BuiltWithState = existing.BuiltWithState.Union(incoming.BuiltWithState)
	merged.BuiltWithFlags = existing.BuiltWithFlags | incoming.BuiltWithFlags

	return merged, nil
}
