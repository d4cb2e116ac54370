// Package requestengine is the multiplexer: it holds the pool of
// active requestbuilder.Builders, interns submissions' configurations,
// routes cache misses to a local builder or a worker node, and applies
// per-node backpressure. Its node-bookkeeping and FIFO-queue shape
// generalize a pub/sub fan-out bus to a pinned-or-least-loaded
// scheduling decision instead of topic fan-out.
package requestengine

import (
	"sync"

	"github.com/buildmesh/enginecore/internal/core"
)

// NodeState tracks one worker (or the local in-proc node)'s capacity
// and queued subrequests for backpressure.
type NodeState struct {
	ID         string
	MaxCPUCount int

	mu        sync.Mutex
	active    int
	queue     []*core.BuildRequest
	hasConfig map[core.ConfigurationId]bool
}

func newNodeState(id string, maxCPUCount int) *NodeState {
	return &NodeState{ID: id, MaxCPUCount: maxCPUCount, hasConfig: make(map[core.ConfigurationId]bool)}
}

// Saturated reports whether the node is already running MaxCPUCount
// concurrent requests.
func (n *NodeState) Saturated() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active >= n.MaxCPUCount
}

func (n *NodeState) load() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active + len(n.queue)
}

// Router picks a node for a configuration and enforces the per-node FIFO
// backpressure queue.
type Router struct {
	mu    sync.Mutex
	nodes map[string]*NodeState
	order []string // registration order, for deterministic least-loaded tie-breaking
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{nodes: make(map[string]*NodeState)}
}

// RegisterNode adds a node with the given maximum concurrency.
func (r *Router) RegisterNode(id string, maxCPUCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[id]; ok {
		return
	}
	r.nodes[id] = newNodeState(id, maxCPUCount)
	r.order = append(r.order, id)
}

// MarkConfigPresent records that nodeID's config cache already
// contains configID, which pins future routing of that configuration
// to nodeID.
func (r *Router) MarkConfigPresent(nodeID string, configID core.ConfigurationId) {
	r.mu.Lock()
	n, ok := r.nodes[nodeID]
	r.mu.Unlock()
	if !ok {
		return
	}
	n.mu.Lock()
	n.hasConfig[configID] = true
	n.mu.Unlock()
}

// PickNode returns the node configID should route to: a pinned node if
// one already holds that configuration, otherwise the least-loaded
// node. The second return is false if no nodes are registered.
func (r *Router) PickNode(configID core.ConfigurationId) (string, bool) {
	r.mu.Lock()
	order := append([]string(nil), r.order...)
	nodes := make(map[string]*NodeState, len(r.nodes))
	for k, v := range r.nodes {
		nodes[k] = v
	}
	r.mu.Unlock()

	for _, id := range order {
		n := nodes[id]
		n.mu.Lock()
		pinned := n.hasConfig[configID]
		n.mu.Unlock()
		if pinned {
			return id, true
		}
	}

	var best string
	bestLoad := -1
	for _, id := range order {
		load := nodes[id].load()
		if bestLoad == -1 || load < bestLoad {
			bestLoad = load
			best = id
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

// Dispatch reports whether req may start immediately on nodeID. If the
// node is saturated, req is queued FIFO and Dispatch returns false; the
// caller must not start the request now. If the node can accept it, the
// node's active count is incremented and Dispatch returns true.
func (r *Router) Dispatch(nodeID string, req *core.BuildRequest) bool {
	r.mu.Lock()
	n := r.nodes[nodeID]
	r.mu.Unlock()
	if n == nil {
		return true // unknown node: caller handles however it sees fit
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.active >= n.MaxCPUCount {
		n.queue = append(n.queue, req)
		return false
	}
	n.active++
	return true
}

// Complete reports that one of nodeID's in-flight requests finished. If
// the FIFO queue has a waiting request, it is popped, nodeID's active
// count stays incremented for it, and it is returned for the caller to
// start; otherwise nil is returned and the active count is decremented.
func (r *Router) Complete(nodeID string) *core.BuildRequest {
	r.mu.Lock()
	n := r.nodes[nodeID]
	r.mu.Unlock()
	if n == nil {
		return nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.active--
	if len(n.queue) == 0 {
		return nil
	}
	next := n.queue[0]
	n.queue = n.queue[1:]
	n.active++
	return next
}

// QueueDepth returns the number of requests currently queued for nodeID,
// for tests and diagnostics.
func (r *Router) QueueDepth(nodeID string) int {
	r.mu.Lock()
	n := r.nodes[nodeID]
	r.mu.Unlock()
	if n == nil {
		return 0
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}
