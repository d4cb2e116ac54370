package requestengine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/buildmesh/enginecore/internal/configcache"
	"github.com/buildmesh/enginecore/internal/core"
	"github.com/buildmesh/enginecore/internal/requestbuilder"
	"github.com/buildmesh/enginecore/internal/resultscache"
)

// LocalNodeID names the in-process node that runs builders directly
// rather than forwarding over NodeTransport.
const LocalNodeID = "__local__"

// TargetBuilderFactory constructs the external target-builder
// collaborator for a locally-executed request.
type TargetBuilderFactory func(req *core.BuildRequest, configuration *core.BuildRequestConfiguration) core.TargetBuilder

// NodeTransport forwards a BuildRequest to a worker node.
type NodeTransport interface {
	Send(ctx context.Context, nodeID string, req *core.BuildRequest) error
}

type coalesceKey string

func keyFor(configID core.ConfigurationId, targets *core.TargetNameSet) coalesceKey {
	names := append([]string(nil), targets.Names()...)
	return coalesceKey(fmt.Sprintf("%d|%s", configID, strings.ToLower(strings.Join(names, ";"))))
}

// Engine is the request multiplexer.
type Engine struct {
	ConfigCache  *configcache.Cache
	ResultsCache *resultscache.Cache
	Router       *Router
	Factory      TargetBuilderFactory
	Transport    NodeTransport
	Logger       *slog.Logger
	CWD          *requestbuilder.CWDGuard

	nextGlobalID int64

	mu          sync.Mutex
	activeByKey map[coalesceKey]core.GlobalRequestId
	keyByID     map[core.GlobalRequestId]coalesceKey
	waiters     map[core.GlobalRequestId][]*requestbuilder.Builder
	chainByID   map[core.GlobalRequestId][]requestbuilder.ChainKey
	nodeByID    map[core.GlobalRequestId]string
	builders    map[core.GlobalRequestId]*requestbuilder.Builder
}

// New creates an Engine. factory and transport may be nil if the engine
// will only ever run top-level requests with no subrequest fan-out.
func New(configCache *configcache.Cache, resultsCache *resultscache.Cache, router *Router, factory TargetBuilderFactory, transport NodeTransport, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if router == nil {
		router = NewRouter()
	}
	router.RegisterNode(LocalNodeID, 1<<30) // the in-proc node is never backpressured by this router
	return &Engine{
		ConfigCache:  configCache,
		ResultsCache: resultsCache,
		Router:       router,
		Factory:      factory,
		Transport:    transport,
		Logger:       logger.With("component", "requestengine"),
		CWD:          requestbuilder.NewCWDGuard(nil),
		activeByKey:  make(map[coalesceKey]core.GlobalRequestId),
		keyByID:      make(map[core.GlobalRequestId]coalesceKey),
		waiters:      make(map[core.GlobalRequestId][]*requestbuilder.Builder),
		chainByID:    make(map[core.GlobalRequestId][]requestbuilder.ChainKey),
		nodeByID:     make(map[core.GlobalRequestId]string),
		builders:     make(map[core.GlobalRequestId]*requestbuilder.Builder),
	}
}

// AllocateGlobalRequestID hands out a fresh, monotonically-increasing
// GlobalRequestId.
func (e *Engine) AllocateGlobalRequestID() core.GlobalRequestId {
	return core.GlobalRequestId(atomic.AddInt64(&e.nextGlobalID, 1))
}

// ActiveBuilders returns the global request ids of builders currently
// in flight, for the debug HTTP API's introspection endpoint. The
// returned slice is a snapshot, not a live view.
func (e *Engine) ActiveBuilders() []core.GlobalRequestId {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]core.GlobalRequestId, 0, len(e.builders))
	for id := range e.builders {
		ids = append(ids, id)
	}
	return ids
}

// Submit admits a top-level request:
// configuration is interned, the request is validated, and a builder
// runs it to completion synchronously. The caller already owns
// configuration's identity (submissionID tagging happens by the
// caller's choice of SubmissionID on the request).
func (e *Engine) Submit(ctx context.Context, request *core.BuildRequest, configuration *core.BuildRequestConfiguration) (*core.BuildResult, error) {
	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	if request.SubmissionID == "" {
		request.SubmissionID = core.NewSubmissionID()
	}
	request.ConfigurationID = e.ConfigCache.Intern(configuration)
	if request.GlobalRequestID == 0 {
		request.GlobalRequestID = e.AllocateGlobalRequestID()
	}
	request.ParentGlobalRequestID = core.NoParentRequest
	if err := request.Validate(); err != nil {
		return nil, err
	}

	cfg, _ := e.ConfigCache.Get(request.ConfigurationID)
	tb := e.Factory(request, cfg)
	b := requestbuilder.New(request.GlobalRequestID, request, cfg, tb, e, e.CWD, nil, e.Logger)

	e.mu.Lock()
	e.builders[request.GlobalRequestID] = b
	e.mu.Unlock()

	result := b.Run(ctx)
	if err := e.ResultsCache.Add(result); err != nil {
		e.Logger.Error("failed to deposit top-level result into results cache", "error", err)
	}

	e.mu.Lock()
	delete(e.builders, request.GlobalRequestID)
	e.mu.Unlock()

	return result, nil
}

// DispatchSubrequests implements requestbuilder.Dispatcher: the
// engine's side of handling a builder's subrequests.
func (e *Engine) DispatchSubrequests(b *requestbuilder.Builder, requests []*core.BuildRequest) {
	for _, req := range requests {
		e.dispatchOne(b, req)
	}
}

func (e *Engine) dispatchOne(b *requestbuilder.Builder, req *core.BuildRequest) {
	if req.GlobalRequestID == 0 {
		req.GlobalRequestID = e.AllocateGlobalRequestID()
	}
	key := keyFor(req.ConfigurationID, req.Targets)

	e.mu.Lock()
	if existingID, ok := e.activeByKey[key]; ok {
		req.GlobalRequestID = existingID
		e.waiters[existingID] = append(e.waiters[existingID], b)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	resp, err := e.ResultsCache.SatisfyRequest(req, false)
	if err != nil {
		e.Logger.Error("results cache satisfy_request failed", "error", err)
	} else if resp.Status == resultscache.Satisfied {
		b.DeliverResult(req.GlobalRequestID, resp.Result)
		return
	}

	nodeID, ok := e.Router.PickNode(req.ConfigurationID)
	if !ok {
		nodeID = LocalNodeID
	}

	e.mu.Lock()
	e.activeByKey[key] = req.GlobalRequestID
	e.keyByID[req.GlobalRequestID] = key
	e.chainByID[req.GlobalRequestID] = b.ChainFor()
	e.nodeByID[req.GlobalRequestID] = nodeID
	e.waiters[req.GlobalRequestID] = append(e.waiters[req.GlobalRequestID], b)
	e.mu.Unlock()

	if e.Router.Dispatch(nodeID, req) {
		e.startRequest(nodeID, req)
	}
}

func (e *Engine) startRequest(nodeID string, req *core.BuildRequest) {
	if nodeID == LocalNodeID {
		go e.runLocal(req)
		return
	}
	if e.Transport == nil {
		e.completeRequest(req.GlobalRequestID, e.syntheticTransportFailure(req, fmt.Errorf("no transport configured for node %q", nodeID)), nodeID)
		return
	}
	if err := e.Transport.Send(context.Background(), nodeID, req); err != nil {
		e.completeRequest(req.GlobalRequestID, e.syntheticTransportFailure(req, err), nodeID)
	}
	// On success, the result arrives later via HandleBuildResult.
}

func (e *Engine) runLocal(req *core.BuildRequest) {
	cfg, ok := e.ConfigCache.Get(req.ConfigurationID)
	if !ok {
		e.completeRequest(req.GlobalRequestID, e.syntheticConfigMissing(req), LocalNodeID)
		return
	}

	e.mu.Lock()
	chain := e.chainByID[req.GlobalRequestID]
	e.mu.Unlock()

	tb := e.Factory(req, cfg)
	b := requestbuilder.New(req.GlobalRequestID, req, cfg, tb, e, e.CWD, chain, e.Logger)

	e.mu.Lock()
	e.builders[req.GlobalRequestID] = b
	e.mu.Unlock()

	result := b.Run(context.Background())
	e.completeRequest(req.GlobalRequestID, result, LocalNodeID)
}

// HandleBuildResult routes a BuildResult arriving from a worker node:
// it is matched to its waiting builder by
// global_request_id; absent a waiter it is still deposited into the
// results cache for possible later reuse (speculative deposit).
func (e *Engine) HandleBuildResult(nodeID string, result *core.BuildResult) {
	e.completeRequest(result.GlobalRequestID, result, nodeID)
}

func (e *Engine) completeRequest(id core.GlobalRequestId, result *core.BuildResult, nodeID string) {
	if err := e.ResultsCache.Add(result); err != nil {
		e.Logger.Error("failed to deposit subrequest result into results cache", "error", err, "global_request_id", int64(id))
	}

	e.mu.Lock()
	waiters := e.waiters[id]
	delete(e.waiters, id)
	if key, ok := e.keyByID[id]; ok {
		delete(e.activeByKey, key)
		delete(e.keyByID, id)
	}
	delete(e.chainByID, id)
	delete(e.nodeByID, id)
	delete(e.builders, id)
	e.mu.Unlock()

	for _, w := range waiters {
		w.DeliverResult(id, result)
	}

	if nodeID == "" {
		return
	}
	if next := e.Router.Complete(nodeID); next != nil {
		e.startRequest(nodeID, next)
	}
}

func (e *Engine) syntheticTransportFailure(req *core.BuildRequest, cause error) *core.BuildResult {
	res := core.NewBuildResult(req.ConfigurationID)
	res.GlobalRequestID = req.GlobalRequestID
	res.ParentGlobalRequestID = req.ParentGlobalRequestID
	res.Exception = core.AsBuildError(fmt.Errorf("requestengine: %w", cause))
	for _, name := range req.Targets.Names() {
		res.AddTargetResult(name, &core.TargetResult{WorkUnitResult: core.WorkUnitResult{
			ResultCode: core.ResultCodeFailure,
			ActionCode: core.ActionStop,
		}})
	}
	return res
}

func (e *Engine) syntheticConfigMissing(req *core.BuildRequest) *core.BuildResult {
	return e.syntheticTransportFailure(req, core.NewInternalError("configuration %d is not present in the config cache", req.ConfigurationID))
}
