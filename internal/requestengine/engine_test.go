package requestengine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildmesh/enginecore/internal/configcache"
	"github.com/buildmesh/enginecore/internal/core"
	"github.com/buildmesh/enginecore/internal/requestbuilder"
	"github.com/buildmesh/enginecore/internal/resultscache"
)

// instantSuccess is a TargetBuilder that completes immediately with a
// Success result for every target on the request, counting its own
// invocations.
type instantSuccess struct {
	calls *int64
}

func (s *instantSuccess) BuildTargets(ctx context.Context, cancel <-chan struct{}, configuration *core.BuildRequestConfiguration, request *core.BuildRequest) (*core.BuildTargetsOutcome, error) {
	if s.calls != nil {
		atomic.AddInt64(s.calls, 1)
	}
	res := core.NewBuildResult(request.ConfigurationID)
	for _, name := range request.Targets.Names() {
		res.AddTargetResult(name, &core.TargetResult{WorkUnitResult: core.WorkUnitResult{ResultCode: core.ResultCodeSuccess}})
	}
	return &core.BuildTargetsOutcome{Result: res}, nil
}

func (s *instantSuccess) Continue(ctx context.Context, cancel <-chan struct{}, pending map[core.GlobalRequestId]*core.BuildResult) (*core.BuildTargetsOutcome, error) {
	return &core.BuildTargetsOutcome{Result: core.NewBuildResult(0)}, nil
}

// oneSubrequest yields a single subrequest on its first call, then
// completes with a success result built from the subrequest's outcome.
type oneSubrequest struct {
	sub *core.BuildRequest
}

func (o *oneSubrequest) BuildTargets(ctx context.Context, cancel <-chan struct{}, configuration *core.BuildRequestConfiguration, request *core.BuildRequest) (*core.BuildTargetsOutcome, error) {
	return &core.BuildTargetsOutcome{SubRequests: []*core.BuildRequest{o.sub}}, nil
}

func (o *oneSubrequest) Continue(ctx context.Context, cancel <-chan struct{}, pending map[core.GlobalRequestId]*core.BuildResult) (*core.BuildTargetsOutcome, error) {
	res := core.NewBuildResult(o.sub.ConfigurationID)
	if sr, ok := pending[o.sub.GlobalRequestID]; ok {
		for _, name := range sr.TargetNames() {
			tr, _ := sr.TargetResult(name)
			res.AddTargetResult(name, tr)
		}
	}
	return &core.BuildTargetsOutcome{Result: res}, nil
}

func newTestEngine(t *testing.T, factory TargetBuilderFactory) *Engine {
	t.Helper()
	cc := configcache.New(nil, nil)
	rc := resultscache.New(0, nil, nil)
	return New(cc, rc, NewRouter(), factory, nil, nil)
}

func TestEngine_Submit_NoSubrequests(t *testing.T) {
	e := newTestEngine(t, func(req *core.BuildRequest, cfg *core.BuildRequestConfiguration) core.TargetBuilder {
		return &instantSuccess{}
	})
	cfg := &core.BuildRequestConfiguration{ProjectFullPath: "a.csproj", GlobalProperties: core.NewGlobalProperties(nil), ToolsVersion: "Current"}
	req := &core.BuildRequest{Targets: core.NewTargetNameSet([]string{"Build"})}

	result, err := e.Submit(context.Background(), req, cfg)
	require.NoError(t, err)
	assert.Equal(t, core.ResultCodeSuccess, result.OverallResult())

	cached, ok := e.ResultsCache.GetResultForConfiguration(result.ConfigurationID)
	require.True(t, ok)
	assert.Equal(t, 1, cached.TargetCount(), "top-level result must be deposited into the results cache")
	assert.NotEmpty(t, req.SubmissionID, "submit must assign a submission id when the caller leaves it blank")
}

func TestEngine_Subrequest_SatisfiedFromCacheNeverInvokesFactory(t *testing.T) {
	var leafCalls int64
	leafCfg := &core.BuildRequestConfiguration{ProjectFullPath: "leaf.csproj", GlobalProperties: core.NewGlobalProperties(nil), ToolsVersion: "Current"}

	e := newTestEngine(t, func(req *core.BuildRequest, cfg *core.BuildRequestConfiguration) core.TargetBuilder {
		return &instantSuccess{calls: &leafCalls}
	})
	leafID := e.ConfigCache.Intern(leafCfg)

	// Pre-populate the results cache as if the leaf had already been built.
	pre := core.NewBuildResult(leafID)
	pre.AddTargetResult("Compile", &core.TargetResult{WorkUnitResult: core.WorkUnitResult{ResultCode: core.ResultCodeSuccess}})
	require.NoError(t, e.ResultsCache.Add(pre))

	sub := &core.BuildRequest{ConfigurationID: leafID, Targets: core.NewTargetNameSet([]string{"Compile"})}
	e.Factory = func(req *core.BuildRequest, cfg *core.BuildRequestConfiguration) core.TargetBuilder {
		if req.ConfigurationID == leafID {
			return &instantSuccess{calls: &leafCalls}
		}
		return &oneSubrequest{sub: sub}
	}

	topCfg := &core.BuildRequestConfiguration{ProjectFullPath: "top.csproj", GlobalProperties: core.NewGlobalProperties(nil), ToolsVersion: "Current"}
	topReq := &core.BuildRequest{Targets: core.NewTargetNameSet([]string{"Build"})}

	result, err := e.Submit(context.Background(), topReq, topCfg)
	require.NoError(t, err)
	assert.Equal(t, core.ResultCodeSuccess, result.OverallResult())
	assert.Equal(t, int64(0), atomic.LoadInt64(&leafCalls), "a cache-satisfied subrequest must never invoke the target builder factory")

	compile, ok := result.TargetResult("Compile")
	require.True(t, ok)
	assert.Equal(t, core.ResultCodeSuccess, compile.ResultCode())
}

// gatedSuccess blocks inside BuildTargets until gate is closed, so a test
// can guarantee a second, duplicate dispatch lands while the first build
// is still in flight.
type gatedSuccess struct {
	calls *int64
	gate  chan struct{}
}

func (g *gatedSuccess) BuildTargets(ctx context.Context, cancel <-chan struct{}, configuration *core.BuildRequestConfiguration, request *core.BuildRequest) (*core.BuildTargetsOutcome, error) {
	atomic.AddInt64(g.calls, 1)
	<-g.gate
	res := core.NewBuildResult(request.ConfigurationID)
	for _, name := range request.Targets.Names() {
		res.AddTargetResult(name, &core.TargetResult{WorkUnitResult: core.WorkUnitResult{ResultCode: core.ResultCodeSuccess}})
	}
	return &core.BuildTargetsOutcome{Result: res}, nil
}

func (g *gatedSuccess) Continue(ctx context.Context, cancel <-chan struct{}, pending map[core.GlobalRequestId]*core.BuildResult) (*core.BuildTargetsOutcome, error) {
	return &core.BuildTargetsOutcome{Result: core.NewBuildResult(0)}, nil
}

func TestEngine_Subrequest_CoalescesDuplicateDemand(t *testing.T) {
	var leafCalls int64
	gate := make(chan struct{})
	e := newTestEngine(t, func(req *core.BuildRequest, cfg *core.BuildRequestConfiguration) core.TargetBuilder {
		return &gatedSuccess{calls: &leafCalls, gate: gate}
	})
	leafCfg := &core.BuildRequestConfiguration{ProjectFullPath: "leaf.csproj", GlobalProperties: core.NewGlobalProperties(nil), ToolsVersion: "Current"}
	leafID := e.ConfigCache.Intern(leafCfg)

	req1 := &core.BuildRequest{ConfigurationID: leafID, Targets: core.NewTargetNameSet([]string{"Compile"})}
	req2 := &core.BuildRequest{ConfigurationID: leafID, Targets: core.NewTargetNameSet([]string{"Compile"})}

	noop := &instantSuccess{}
	b1 := requestbuilder.New(100, &core.BuildRequest{ConfigurationID: 1, Targets: core.NewTargetNameSet([]string{"x"})}, nil, noop, e, nil, nil, nil)
	b2 := requestbuilder.New(101, &core.BuildRequest{ConfigurationID: 1, Targets: core.NewTargetNameSet([]string{"x"})}, nil, noop, e, nil, nil, nil)

	e.DispatchSubrequests(b1, []*core.BuildRequest{req1})

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&leafCalls) == 1
	}, time.Second, time.Millisecond, "first dispatch must start the leaf build")

	// req2 names the identical configuration+targets while the first
	// build is still blocked on gate: it must be coalesced onto req1's
	// in-flight GlobalRequestID rather than starting a second build.
	e.DispatchSubrequests(b2, []*core.BuildRequest{req2})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&leafCalls), "a duplicate subrequest must not start a second build while the first is in flight")

	close(gate)
	require.Eventually(t, func() bool {
		_, ok := e.ResultsCache.GetResultForConfiguration(leafID)
		return ok
	}, time.Second, time.Millisecond)
}
