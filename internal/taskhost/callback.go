package taskhost

import (
	"sync"
	"sync/atomic"

	"github.com/buildmesh/enginecore/internal/core"
)

// RequestID identifies one in-flight coordinator callback.
type RequestID int64

// Response is what a task host callback eventually resolves to: either a
// payload or a failure (coordinator-side error, not a build error).
type Response struct {
	Payload any
	Err     error
}

// CallbackRegistry is the coordinator's thread-safe request_id -> pending
// completion map. insert/remove/complete
// are atomic with respect to each other; request_id allocation is a single
// atomic increment so concurrent allocators never collide.
type CallbackRegistry struct {
	next    int64
	mu      sync.Mutex
	pending map[RequestID]chan Response
	logger  Logger
}

// Logger is the minimal logging surface the registry needs, satisfied by
// *slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
}

// NewCallbackRegistry creates an empty registry.
func NewCallbackRegistry(logger Logger) *CallbackRegistry {
	return &CallbackRegistry{pending: make(map[RequestID]chan Response), logger: logger}
}

// Allocate hands out a fresh request_id via atomic increment.
func (r *CallbackRegistry) Allocate() RequestID {
	return RequestID(atomic.AddInt64(&r.next, 1))
}

// Register installs a pending completion for id and returns the channel the
// caller should block on for the matching response.
func (r *CallbackRegistry) Register(id RequestID) <-chan Response {
	ch := make(chan Response, 1)
	r.mu.Lock()
	r.pending[id] = ch
	r.mu.Unlock()
	return ch
}

// Resolve fulfills the pending completion for id, if one is registered. It
// atomically removes the entry first so a duplicate or racing response
// packet cannot double-deliver. Unknown ids are dropped with a warning.
func (r *CallbackRegistry) Resolve(id RequestID, resp Response) {
	r.mu.Lock()
	ch, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()

	if !ok {
		if r.logger != nil {
			r.logger.Warn("dropped callback response for unknown request_id", "request_id", int64(id))
		}
		return
	}
	ch <- resp
}

// Abandon removes a pending completion without resolving it, used when the
// owning builder is torn down (cancellation, node death) before a response
// ever arrives.
func (r *CallbackRegistry) Abandon(id RequestID) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// Pending reports the number of outstanding callbacks, for diagnostics and
// tests.
func (r *CallbackRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// HandshakeCapabilities records what a connected node advertised when it
// joined the build.
type HandshakeCapabilities struct {
	SupportsCallbacks bool
}

// CallbackClient is the task-host side of a coordinator callback: it
// allocates a request_id, sends the call, and blocks for the response.
// Absent callback support it synthesizes E-CALLBACK-UNSUPPORTED instead of
// ever reaching the wire.
type CallbackClient struct {
	Registry     *CallbackRegistry
	Capabilities HandshakeCapabilities
	Send         func(id RequestID, method string, args any) error
	Logger       *TaskHostLogger
}

// Call performs one coordinator callback named method. zero is the value
// returned when callbacks are unsupported (e.g. false, 0, "").
func (c *CallbackClient) Call(method string, args any, zero any) (any, *core.BuildError) {
	if !c.Capabilities.SupportsCallbacks {
		err := core.NewCallbackUnsupported(method)
		if c.Logger != nil {
			c.Logger.LogError(err)
		}
		return zero, err
	}

	id := c.Registry.Allocate()
	ch := c.Registry.Register(id)
	if err := c.Send(id, method, args); err != nil {
		c.Registry.Abandon(id)
		return zero, core.AsBuildError(err)
	}

	resp := <-ch
	if resp.Err != nil {
		return zero, core.AsBuildError(resp.Err)
	}
	return resp.Payload, nil
}

// TaskHostLogger is the narrow logging seam CallbackClient uses to report
// E-CALLBACK-UNSUPPORTED without taking a hard dependency on slog.
type TaskHostLogger struct {
	Warn func(msg string, args ...any)
}

// LogError logs a BuildError at warning level with its stable error code.
func (l *TaskHostLogger) LogError(err *core.BuildError) {
	if l == nil || l.Warn == nil || err == nil {
		return
	}
	l.Warn(err.Message, "error_code", err.Kind.ErrorCode())
}
