package core

import "strings"

// ResultCode is a per-target outcome.
type ResultCode int

const (
	ResultCodeSuccess ResultCode = iota
	ResultCodeFailure
	ResultCodeSkipped
)

func (c ResultCode) String() string {
	switch c {
	case ResultCodeSuccess:
		return "Success"
	case ResultCodeFailure:
		return "Failure"
	case ResultCodeSkipped:
		return "Skipped"
	default:
		return "Unknown"
	}
}

// ActionCode tells the caller whether execution should continue past a
// failing target.
type ActionCode int

const (
	ActionContinue ActionCode = iota
	ActionStop
)

// WorkUnitResult is (result_code, action_code, optional exception).
type WorkUnitResult struct {
	ResultCode ResultCode
	ActionCode ActionCode
	Exception  *BuildError
}

// TaskItem is a single produced item: a spec string plus case-insensitive
// metadata.
type TaskItem struct {
	Spec     string
	Metadata map[string]string // case-insensitive keys: store lower-cased
}

// NewTaskItem builds a TaskItem, lower-casing metadata keys so lookups
// are name-insensitive.
func NewTaskItem(spec string, metadata map[string]string) *TaskItem {
	m := make(map[string]string, len(metadata))
	for k, v := range metadata {
		m[strings.ToLower(k)] = v
	}
	return &TaskItem{Spec: spec, Metadata: m}
}

// GetMetadata looks up metadata name-insensitively.
func (t *TaskItem) GetMetadata(name string) (string, bool) {
	v, ok := t.Metadata[strings.ToLower(name)]
	return v, ok
}

// Clone returns a deep copy of t.
func (t *TaskItem) Clone() *TaskItem {
	if t == nil {
		return nil
	}
	m := make(map[string]string, len(t.Metadata))
	for k, v := range t.Metadata {
		m[k] = v
	}
	return &TaskItem{Spec: t.Spec, Metadata: m}
}

// TargetResult is the per-target outcome of a build.
type TargetResult struct {
	WorkUnitResult WorkUnitResult
	Items          []*TaskItem
}

// ResultCode is a convenience accessor onto WorkUnitResult.ResultCode.
func (t *TargetResult) ResultCode() ResultCode { return t.WorkUnitResult.ResultCode }

// Exception is a convenience accessor onto WorkUnitResult.Exception.
func (t *TargetResult) Exception() *BuildError { return t.WorkUnitResult.Exception }

// failsOverallResult reports whether this target flips its owning
// BuildResult's overall result to Failure: result_code
// is Failure AND action_code is Stop. Notably a Success target carrying
// an exception does NOT fail the overall result.
func (t *TargetResult) failsOverallResult() bool {
	return t.ResultCode() == ResultCodeFailure && t.WorkUnitResult.ActionCode == ActionStop
}

// Clone returns a deep copy of t.
func (t *TargetResult) Clone() *TargetResult {
	if t == nil {
		return nil
	}
	items := make([]*TaskItem, len(t.Items))
	for i, it := range t.Items {
		items[i] = it.Clone()
	}
	return &TargetResult{WorkUnitResult: t.WorkUnitResult, Items: items}
}

// targetResults is an append-only, name-insensitive map of target name ->
// *TargetResult that preserves first-insertion order for deterministic
// enumeration.
type targetResults struct {
	order []string // original-cased names, first occurrence
	byKey map[string]*TargetResult
}

func newTargetResults() *targetResults {
	return &targetResults{byKey: make(map[string]*TargetResult)}
}

func (tr *targetResults) key(name string) string { return strings.ToLower(name) }

// set stores result for name, honoring an append-only / overwrite
// rule: a re-added target overwrites the existing entry only if the new
// result is "at least as complete" — here, anything beats Skipped, and a
// concrete result never regresses to Skipped.
func (tr *targetResults) set(name string, result *TargetResult) {
	k := tr.key(name)
	existing, ok := tr.byKey[k]
	if !ok {
		tr.order = append(tr.order, name)
		tr.byKey[k] = result
		return
	}
	if existing.ResultCode() == ResultCodeSkipped && result.ResultCode() != ResultCodeSkipped {
		tr.byKey[k] = result
		return
	}
	if existing.ResultCode() != ResultCodeSkipped && result.ResultCode() != ResultCodeSkipped {
		tr.byKey[k] = result
	}
	// existing is concrete, result is Skipped: keep existing.
}

func (tr *targetResults) get(name string) (*TargetResult, bool) {
	if tr == nil {
		return nil, false
	}
	r, ok := tr.byKey[tr.key(name)]
	return r, ok
}

func (tr *targetResults) names() []string {
	if tr == nil {
		return nil
	}
	out := make([]string, len(tr.order))
	copy(out, tr.order)
	return out
}

func (tr *targetResults) len() int {
	if tr == nil {
		return 0
	}
	return len(tr.order)
}

func (tr *targetResults) clone() *targetResults {
	out := newTargetResults()
	for _, name := range tr.order {
		out.set(name, tr.byKey[tr.key(name)].Clone())
	}
	return out
}

// BuildResult is the reply to a BuildRequest.
type BuildResult struct {
	ConfigurationID       ConfigurationId
	GlobalRequestID       GlobalRequestId
	ParentGlobalRequestID GlobalRequestId
	NodeRequestID         int64
	SubmissionID          string

	results *targetResults

	InitialTargets     []string
	DefaultTargets     []string
	CircularDependency bool
	Exception          *BuildError

	ProjectStateAfterBuild *ProjectStateAfterBuild
	// BuiltWithFlags and BuiltWithState record the flags/filter the result
	// was produced under, used by satisfy_request subset checks.
	BuiltWithFlags RequestFlags
	BuiltWithState *RequestedProjectState
}

// NewBuildResult constructs an empty result for configurationID.
func NewBuildResult(configurationID ConfigurationId) *BuildResult {
	return &BuildResult{ConfigurationID: configurationID, results: newTargetResults()}
}

// AddTargetResult records result for targetName, honoring the append-only
// overwrite rule.
func (r *BuildResult) AddTargetResult(targetName string, result *TargetResult) {
	if r.results == nil {
		r.results = newTargetResults()
	}
	r.results.set(targetName, result)
}

// TargetResult looks up a target's result name-insensitively.
func (r *BuildResult) TargetResult(targetName string) (*TargetResult, bool) {
	return r.results.get(targetName)
}

// TargetNames returns the recorded target names in first-insertion order.
func (r *BuildResult) TargetNames() []string { return r.results.names() }

// TargetCount returns the number of recorded targets.
func (r *BuildResult) TargetCount() int { return r.results.len() }

// HasException reports whether any exception was captured, whether or
// not targets were recorded.
func (r *BuildResult) HasException() bool { return r.Exception != nil }

// OverallResult computes the overall-result rule: Failure iff some
// included target is Failure with ActionStop; Skipped never flips it;
// an uncaptured BuildResult-level Exception with no targets is also a
// Failure (an aborted build).
func (r *BuildResult) OverallResult() ResultCode {
	if r.results.len() == 0 {
		if r.Exception != nil {
			return ResultCodeFailure
		}
		return ResultCodeSuccess
	}
	for _, name := range r.results.names() {
		t, _ := r.results.get(name)
		if t.failsOverallResult() {
			return ResultCodeFailure
		}
	}
	return ResultCodeSuccess
}

// Restrict returns a new BuildResult containing only the named targets.
// It returns an InternalError
// if any requested target is absent.
func (r *BuildResult) Restrict(targets *TargetNameSet) (*BuildResult, error) {
	out := NewBuildResult(r.ConfigurationID)
	out.GlobalRequestID = r.GlobalRequestID
	out.ParentGlobalRequestID = r.ParentGlobalRequestID
	out.NodeRequestID = r.NodeRequestID
	out.SubmissionID = r.SubmissionID
	out.InitialTargets = r.InitialTargets
	out.DefaultTargets = r.DefaultTargets
	out.CircularDependency = r.CircularDependency
	out.Exception = r.Exception
	out.ProjectStateAfterBuild = r.ProjectStateAfterBuild
	out.BuiltWithFlags = r.BuiltWithFlags
	out.BuiltWithState = r.BuiltWithState

	for _, name := range targets.Names() {
		tr, ok := r.results.get(name)
		if !ok {
			return nil, NewInternalError("results cache: requested target %q has no recorded result for configuration %d", name, r.ConfigurationID)
		}
		out.AddTargetResult(name, tr.Clone())
	}
	return out, nil
}

// Clone returns a deep copy of r.
func (r *BuildResult) Clone() *BuildResult {
	if r == nil {
		return nil
	}
	out := *r
	out.results = r.results.clone()
	out.InitialTargets = append([]string(nil), r.InitialTargets...)
	out.DefaultTargets = append([]string(nil), r.DefaultTargets...)
	if r.ProjectStateAfterBuild != nil {
		cp := *r.ProjectStateAfterBuild
		out.ProjectStateAfterBuild = &cp
	}
	return &out
}
