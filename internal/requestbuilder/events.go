package requestbuilder

import (
	"context"

	"github.com/buildmesh/enginecore/internal/core"
)

// NewBuildRequestsEvent pairs a Builder with the subrequests its target
// builder yielded: the same two values a Builder passes directly to
// Dispatcher.DispatchSubrequests, synchronously from its own driving
// goroutine. The Builder itself does not construct this struct.
type NewBuildRequestsEvent struct {
	Builder  *Builder
	Requests []*core.BuildRequest
}

// BuildRequestCompletedEvent is raised once a Builder reaches Complete.
// Run returns the same Result synchronously; this type exists for
// callers (e.g. the request engine) that prefer to observe completions
// as discrete events pushed onto a channel rather than awaiting Run's
// return value directly.
type BuildRequestCompletedEvent struct {
	Builder *Builder
	Result  *core.BuildResult
}

// RunAndNotify runs b to completion and pushes a
// BuildRequestCompletedEvent onto events before returning the result.
// events may be nil, in which case this is equivalent to b.Run(ctx).
func RunAndNotify(ctx context.Context, b *Builder, events chan<- BuildRequestCompletedEvent) *core.BuildResult {
	result := b.Run(ctx)
	if events != nil {
		events <- BuildRequestCompletedEvent{Builder: b, Result: result}
	}
	return result
}
