package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func success() WorkUnitResult {
	return WorkUnitResult{ResultCode: ResultCodeSuccess, ActionCode: ActionContinue}
}

func failStop() WorkUnitResult {
	return WorkUnitResult{ResultCode: ResultCodeFailure, ActionCode: ActionStop}
}

// TestOverallResult_MixedTargetsOnlyFailsOnStop mixes a plain success,
// a success that still carries a non-fatal exception, and a stopping
// failure, and checks that only the stopping failure flips the
// overall result.
func TestOverallResult_MixedTargetsOnlyFailsOnStop(t *testing.T) {
	r := NewBuildResult(1)
	r.AddTargetResult("foo", &TargetResult{WorkUnitResult: success()})
	r.AddTargetResult("bar", &TargetResult{WorkUnitResult: WorkUnitResult{
		ResultCode: ResultCodeSuccess,
		ActionCode: ActionContinue,
		Exception:  NewBuildError(ErrorKindTaskExecutionFailure, "non-fatal warning"),
	}})
	r.AddTargetResult("baz", &TargetResult{WorkUnitResult: failStop()})

	assert.Equal(t, ResultCodeFailure, r.OverallResult())

	foo, ok := r.TargetResult("FOO")
	require.True(t, ok)
	assert.Equal(t, ResultCodeSuccess, foo.ResultCode())

	bar, ok := r.TargetResult("bar")
	require.True(t, ok)
	assert.Equal(t, ResultCodeSuccess, bar.ResultCode(), "Success-with-exception must not flip overall result")

	baz, ok := r.TargetResult("Baz")
	require.True(t, ok)
	assert.Equal(t, ResultCodeFailure, baz.ResultCode())

	_, ok = r.TargetResult("nonexistent")
	assert.False(t, ok)
}

// TestOverallResult_FailsIffAnyStoppingFailure checks the overall-result
// rule over a handful of target-result shapes: the result is Failure
// if and only if some target stopped with a failure.
func TestOverallResult_FailsIffAnyStoppingFailure(t *testing.T) {
	cases := []struct {
		name     string
		results  map[string]WorkUnitResult
		wantFail bool
	}{
		{"all success", map[string]WorkUnitResult{"a": success()}, false},
		{"failure but continue", map[string]WorkUnitResult{"a": {ResultCode: ResultCodeFailure, ActionCode: ActionContinue}}, false},
		{"failure and stop", map[string]WorkUnitResult{"a": failStop()}, true},
		{"skipped only", map[string]WorkUnitResult{"a": {ResultCode: ResultCodeSkipped, ActionCode: ActionContinue}}, false},
		{"mixed", map[string]WorkUnitResult{"a": success(), "b": failStop()}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewBuildResult(1)
			for name, wur := range tc.results {
				r.AddTargetResult(name, &TargetResult{WorkUnitResult: wur})
			}
			assert.Equal(t, tc.wantFail, r.OverallResult() == ResultCodeFailure)
		})
	}
}

func TestBuildResult_AbortedBuildIsFailure(t *testing.T) {
	r := NewBuildResult(1)
	r.Exception = NewInternalError("project evaluation crashed")
	assert.Equal(t, ResultCodeFailure, r.OverallResult())
	assert.Zero(t, r.TargetCount())
}

func TestBuildResult_AppendOnlyOverwriteRule(t *testing.T) {
	r := NewBuildResult(1)
	r.AddTargetResult("t", &TargetResult{WorkUnitResult: WorkUnitResult{ResultCode: ResultCodeSkipped}})
	r.AddTargetResult("t", &TargetResult{WorkUnitResult: success()})
	got, ok := r.TargetResult("t")
	require.True(t, ok)
	assert.Equal(t, ResultCodeSuccess, got.ResultCode(), "concrete result must replace Skipped")

	// A later Skipped must not regress a concrete result.
	r.AddTargetResult("t", &TargetResult{WorkUnitResult: WorkUnitResult{ResultCode: ResultCodeSkipped}})
	got, _ = r.TargetResult("t")
	assert.Equal(t, ResultCodeSuccess, got.ResultCode())
}

func TestBuildResult_Restrict(t *testing.T) {
	r := NewBuildResult(1)
	r.AddTargetResult("foo", &TargetResult{WorkUnitResult: success()})
	r.AddTargetResult("bar", &TargetResult{WorkUnitResult: failStop()})

	restricted, err := r.Restrict(NewTargetNameSet([]string{"foo"}))
	require.NoError(t, err)
	assert.Equal(t, 1, restricted.TargetCount())
	assert.Equal(t, ResultCodeSuccess, restricted.OverallResult())

	_, err = r.Restrict(NewTargetNameSet([]string{"missing"}))
	require.Error(t, err)
	assert.Equal(t, ErrorKindInternalError, ClassifyError(err))
}

func TestBuildResult_CloneIsIndependent(t *testing.T) {
	r := NewBuildResult(1)
	r.AddTargetResult("foo", &TargetResult{WorkUnitResult: success(), Items: []*TaskItem{NewTaskItem("a.txt", nil)}})

	clone := r.Clone()
	clone.AddTargetResult("bar", &TargetResult{WorkUnitResult: failStop()})

	assert.Equal(t, 1, r.TargetCount())
	assert.Equal(t, 2, clone.TargetCount())
}
