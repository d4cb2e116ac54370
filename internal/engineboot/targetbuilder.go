package engineboot

import (
	"context"

	"github.com/buildmesh/enginecore/internal/core"
)

// noopTargetBuilder is a stand-in for the evaluator/task-execution
// collaborator the engine drives but does not implement. It marks every requested target
// Success with no work performed, which is enough to exercise request
// coalescing, routing, and the results cache end to end; a real
// deployment supplies its own core.TargetBuilder wired to an evaluator
// and internal/taskhost for out-of-process tasks.
type noopTargetBuilder struct{}

func (noopTargetBuilder) BuildTargets(ctx context.Context, cancel <-chan struct{}, configuration *core.BuildRequestConfiguration, request *core.BuildRequest) (*core.BuildTargetsOutcome, error) {
	result := core.NewBuildResult(request.ConfigurationID)
	result.GlobalRequestID = request.GlobalRequestID
	result.ParentGlobalRequestID = request.ParentGlobalRequestID
	for _, name := range request.Targets.Names() {
		result.AddTargetResult(name, &core.TargetResult{WorkUnitResult: core.WorkUnitResult{
			ResultCode: core.ResultCodeSuccess,
		}})
	}
	return &core.BuildTargetsOutcome{Result: result}, nil
}

func (noopTargetBuilder) Continue(ctx context.Context, cancel <-chan struct{}, pending map[core.GlobalRequestId]*core.BuildResult) (*core.BuildTargetsOutcome, error) {
	return &core.BuildTargetsOutcome{Result: core.NewBuildResult(0)}, nil
}

// NoopTargetBuilderFactory is the default requestengine.TargetBuilderFactory
// used when no evaluator is wired in.
func NoopTargetBuilderFactory(req *core.BuildRequest, configuration *core.BuildRequestConfiguration) core.TargetBuilder {
	return noopTargetBuilder{}
}
