package core

import (
	"strings"

	"github.com/google/uuid"
)

// NewSubmissionID generates a fresh submission identifier for a
// top-level BuildRequest. Coordinator-issued submissions get one of
// these; requests it fans out internally reuse their parent's.
func NewSubmissionID() string {
	return uuid.NewString()
}

// RequestFlags is a bit set of optional behaviors a BuildRequest may opt into.
type RequestFlags uint32

const (
	FlagReplaceExistingProjectInstance RequestFlags = 1 << iota
	FlagProvideProjectStateAfterBuild
	FlagProvideSubsetOfStateAfterBuild
	FlagClearCachesAfterBuild
	FlagSkipNonexistentTargets
	FlagIgnoreMissingEmptyAndInvalidImports
	FlagFailOnUnresolvedSdk
)

// Has reports whether every bit in want is set in f.
func (f RequestFlags) Has(want RequestFlags) bool { return f&want == want }

// IsSubsetOf reports whether f requires nothing that o does not also
// require — used by satisfy_request to compare a request's flags
// against the flags a cached result was produced with.
func (f RequestFlags) IsSubsetOf(o RequestFlags) bool { return f&^o == 0 }

// GlobalRequestId is assigned by the central engine; equal values denote
// identical requests.
type GlobalRequestId int64

// NoParentRequest is the sentinel parent id for a top-level request.
const NoParentRequest GlobalRequestId = -1

// TargetNameSet is an ordered, name-insensitive set of target names.
type TargetNameSet struct {
	ordered []string
	index   map[string]int // lower-cased name -> position in ordered
}

// NewTargetNameSet builds a TargetNameSet preserving first-seen order and
// de-duplicating name-insensitively.
func NewTargetNameSet(names []string) *TargetNameSet {
	s := &TargetNameSet{index: make(map[string]int, len(names))}
	for _, n := range names {
		s.Add(n)
	}
	return s
}

// Add appends a target name if not already present (name-insensitive).
func (s *TargetNameSet) Add(name string) {
	key := strings.ToLower(name)
	if _, ok := s.index[key]; ok {
		return
	}
	s.index[key] = len(s.ordered)
	s.ordered = append(s.ordered, name)
}

// Contains reports name-insensitive membership.
func (s *TargetNameSet) Contains(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[strings.ToLower(name)]
	return ok
}

// Names returns the set in insertion order.
func (s *TargetNameSet) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Len returns the number of distinct targets.
func (s *TargetNameSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ordered)
}

// IsSubsetOf reports whether every target in s is also in o.
func (s *TargetNameSet) IsSubsetOf(o *TargetNameSet) bool {
	if s == nil || s.Len() == 0 {
		return true
	}
	for _, n := range s.ordered {
		if !o.Contains(n) {
			return false
		}
	}
	return true
}

// BuildRequest is a demand for results.
type BuildRequest struct {
	SubmissionID           string
	NodeRequestID          int64
	GlobalRequestID        GlobalRequestId
	ParentGlobalRequestID  GlobalRequestId
	ConfigurationID        ConfigurationId
	Targets                *TargetNameSet
	Flags                  RequestFlags
	RequestedProjectState  *RequestedProjectState // nil unless a state-filter flag is set
}

// Validate checks the structural invariants a BuildRequest must satisfy
// before it is admitted by the request engine.
func (r *BuildRequest) Validate() error {
	if !r.ConfigurationID.IsValid() {
		return NewInternalError("build request carries the unassigned configuration id")
	}
	if r.Targets == nil || r.Targets.Len() == 0 {
		return NewInternalError("build request names no targets")
	}
	if r.Flags.Has(FlagProvideSubsetOfStateAfterBuild) && r.RequestedProjectState == nil {
		return NewInternalError("ProvideSubsetOfStateAfterBuild requires a non-nil RequestedProjectState")
	}
	return nil
}

// WantsProjectState reports whether the request asked for any form of
// post-build project-state materialization.
func (r *BuildRequest) WantsProjectState() bool {
	return r.Flags.Has(FlagProvideProjectStateAfterBuild) || r.Flags.Has(FlagProvideSubsetOfStateAfterBuild)
}
