// Package requestbuilder implements the per-request state machine:
// Ready → Active → Waiting → Complete, with suspension at subrequest
// dispatch and cooperative, bounded cancellation. Suspension is
// expressed as explicit message passing over Go channels rather than
// coroutine/async-await suspension, generalizing a goroutine+channel
// event-bus shape to a single in-flight request instead of a fan-out
// pub/sub topic.
package requestbuilder

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/buildmesh/enginecore/internal/core"
)

// State is a Request Builder's position in its state machine.
type State int

const (
	StateReady State = iota
	StateActive
	StateWaiting
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateActive:
		return "Active"
	case StateWaiting:
		return "Waiting"
	case StateComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Dispatcher is the engine-side collaborator a Builder calls to publish
// the "new_build_requests" event. The engine is expected to
// eventually call DeliverResult on b for each request, once per
// GlobalRequestID, as results become available (including a speculative
// cache hit resolved without any network round trip).
type Dispatcher interface {
	DispatchSubrequests(b *Builder, requests []*core.BuildRequest)
}

// DefaultCancelTimeout is the nominal bound given to the target
// builder to finalize after cancel().
const DefaultCancelTimeout = 300 * time.Millisecond

type ChainKey struct {
	configID core.ConfigurationId
	targets  string
}

func NewChainKey(configID core.ConfigurationId, targets *core.TargetNameSet) ChainKey {
	names := append([]string(nil), targets.Names()...)
	sort.Strings(names)
	return ChainKey{configID: configID, targets: strings.ToLower(strings.Join(names, ";"))}
}

// Builder drives a single BuildRequest to completion.
type Builder struct {
	GlobalRequestID core.GlobalRequestId
	Request         *core.BuildRequest
	Configuration   *core.BuildRequestConfiguration
	TargetBuilder   core.TargetBuilder
	Dispatcher      Dispatcher
	CWD             *CWDGuard
	Logger          *slog.Logger
	CancelTimeout   time.Duration

	chain []ChainKey // ancestry inherited from the parent builder, this request appended

	mu          sync.Mutex
	state       State
	pending     map[core.GlobalRequestId]*core.BuildResult
	outstanding map[core.GlobalRequestId]bool
	resumeCh    chan struct{}

	cancelOnce sync.Once
	cancelCh   chan struct{}
}

// New creates a Builder for request against configuration, inheriting
// parentChain for circular-dependency detection.
func New(globalRequestID core.GlobalRequestId, request *core.BuildRequest, configuration *core.BuildRequestConfiguration, tb core.TargetBuilder, dispatcher Dispatcher, cwd *CWDGuard, parentChain []ChainKey, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	if cwd == nil {
		cwd = NewCWDGuard(nil)
	}
	chain := append(append([]ChainKey(nil), parentChain...), NewChainKey(request.ConfigurationID, request.Targets))
	return &Builder{
		GlobalRequestID: globalRequestID,
		Request:         request,
		Configuration:   configuration,
		TargetBuilder:   tb,
		Dispatcher:      dispatcher,
		CWD:             cwd,
		Logger:          logger.With("global_request_id", int64(globalRequestID), "configuration_id", int32(request.ConfigurationID)),
		CancelTimeout:   DefaultCancelTimeout,
		chain:           chain,
		state:           StateReady,
		pending:         make(map[core.GlobalRequestId]*core.BuildResult),
	}
}

// ChainFor returns the ancestry a child builder spawned from b should
// inherit (this builder's own chain).
func (b *Builder) ChainFor() []ChainKey { return b.chain }

func (b *Builder) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// State returns the builder's current state.
func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Cancel requests cooperative cancellation. It is idempotent and
// safe to call from any goroutine, any number of times.
func (b *Builder) Cancel() {
	b.cancelOnce.Do(func() {
		b.mu.Lock()
		if b.cancelCh == nil {
			b.cancelCh = make(chan struct{})
		}
		close(b.cancelCh)
		b.mu.Unlock()
	})
}

func (b *Builder) cancelChannel() chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancelCh == nil {
		b.cancelCh = make(chan struct{})
	}
	return b.cancelCh
}

// DeliverResult records the result of a dispatched subrequest. Once
// every outstanding subrequest for the current Waiting period has a
// result, the builder is released to resume.
func (b *Builder) DeliverResult(id core.GlobalRequestId, result *core.BuildResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[id] = result
	delete(b.outstanding, id)
	if len(b.outstanding) == 0 && b.resumeCh != nil {
		close(b.resumeCh)
		b.resumeCh = nil
	}
}

// Run drives the builder through Active/Waiting cycles to Complete and
// returns the final BuildResult. Run must be called exactly once.
func (b *Builder) Run(ctx context.Context) *core.BuildResult {
	b.setState(StateActive)

	doneCh := make(chan *core.BuildResult, 1)
	go func() {
		doneCh <- b.drive(ctx)
	}()

	select {
	case result := <-doneCh:
		b.setState(StateComplete)
		return result
	case <-b.cancelChannel():
		select {
		case result := <-doneCh:
			b.setState(StateComplete)
			return result
		case <-time.After(b.timeout()):
			b.Logger.Warn("request builder did not finalize within the cancellation bound; synthesizing failure")
			b.setState(StateComplete)
			return b.syntheticCancelResult()
		}
	}
}

func (b *Builder) timeout() time.Duration {
	if b.CancelTimeout <= 0 {
		return DefaultCancelTimeout
	}
	return b.CancelTimeout
}

func (b *Builder) drive(ctx context.Context) *core.BuildResult {
	var dir string
	if b.Configuration != nil {
		dir = projectDir(b.Configuration.ProjectFullPath)
	}

	var result *core.BuildResult
	err := b.CWD.WithDirectory(dir, func() error {
		r, e := b.loop(ctx)
		result = r
		return e
	})
	if err != nil {
		result = syntheticFromError(b.Request.ConfigurationID, err)
	}
	return result
}

func (b *Builder) loop(ctx context.Context) (*core.BuildResult, error) {
	outcome, err := b.TargetBuilder.BuildTargets(ctx, b.cancelChannel(), b.Configuration, b.Request)
	for {
		if err != nil {
			return nil, err
		}
		if len(outcome.SubRequests) == 0 {
			return outcome.Result, nil
		}

		circular, remaining := b.partitionCircular(outcome.SubRequests)
		if len(circular) > 0 {
			b.Logger.Warn("circular dependency detected; unwinding", "circular_count", len(circular))
			return b.syntheticCircularResult(), nil
		}

		b.setState(StateWaiting)
		resumeCh := make(chan struct{})
		b.mu.Lock()
		b.outstanding = make(map[core.GlobalRequestId]bool, len(remaining))
		b.resumeCh = nil
		b.mu.Unlock()

		// The dispatcher may assign GlobalRequestIDs and deliver results
		// synchronously, so the outstanding set is recorded once it returns.
		b.Dispatcher.DispatchSubrequests(b, remaining)

		b.mu.Lock()
		for _, r := range remaining {
			if _, done := b.pending[r.GlobalRequestID]; !done {
				b.outstanding[r.GlobalRequestID] = true
			}
		}
		if len(b.outstanding) == 0 {
			close(resumeCh)
		} else {
			b.resumeCh = resumeCh
		}
		b.mu.Unlock()

		select {
		case <-resumeCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		b.setState(StateActive)
		b.mu.Lock()
		pendingCopy := make(map[core.GlobalRequestId]*core.BuildResult, len(b.pending))
		for k, v := range b.pending {
			pendingCopy[k] = v
		}
		b.mu.Unlock()

		outcome, err = b.TargetBuilder.Continue(ctx, b.cancelChannel(), pendingCopy)
	}
}

func (b *Builder) partitionCircular(requests []*core.BuildRequest) (circular, remaining []*core.BuildRequest) {
	for _, r := range requests {
		key := NewChainKey(r.ConfigurationID, r.Targets)
		onChain := false
		for _, c := range b.chain {
			if c == key {
				onChain = true
				break
			}
		}
		if onChain {
			circular = append(circular, r)
		} else {
			remaining = append(remaining, r)
		}
	}
	return circular, remaining
}

func (b *Builder) syntheticCircularResult() *core.BuildResult {
	res := core.NewBuildResult(b.Request.ConfigurationID)
	res.GlobalRequestID = b.GlobalRequestID
	res.ParentGlobalRequestID = b.Request.ParentGlobalRequestID
	res.CircularDependency = true
	for _, name := range b.Request.Targets.Names() {
		res.AddTargetResult(name, &core.TargetResult{WorkUnitResult: core.WorkUnitResult{
			ResultCode: core.ResultCodeFailure,
			ActionCode: core.ActionStop,
		}})
	}
	return res
}

func (b *Builder) syntheticCancelResult() *core.BuildResult {
	res := core.NewBuildResult(b.Request.ConfigurationID)
	res.GlobalRequestID = b.GlobalRequestID
	res.ParentGlobalRequestID = b.Request.ParentGlobalRequestID
	for _, name := range b.Request.Targets.Names() {
		res.AddTargetResult(name, &core.TargetResult{WorkUnitResult: core.WorkUnitResult{
			ResultCode: core.ResultCodeFailure,
			ActionCode: core.ActionStop,
		}})
	}
	return res
}

// syntheticFromError wraps an error escaping the target builder into a
// failed, exception-carrying BuildResult.
func syntheticFromError(configID core.ConfigurationId, err error) *core.BuildResult {
	res := core.NewBuildResult(configID)
	res.Exception = core.AsBuildError(err)
	return res
}

func projectDir(projectFullPath string) string {
	idx := strings.LastIndexAny(projectFullPath, `/\`)
	if idx < 0 {
		return ""
	}
	return projectFullPath[:idx]
}
