// Package taskhost models the out-of-process task host: the
// coordinator-side lifecycle of a spawned external process that runs one
// user task, the monotonic request_id-correlated callback channel it may
// use to call back into the coordinator mid-task, and the bounded-exit
// handshake after it reports completion. The callback channel
// generalizes request/response correlation over a pub/sub bus into a
// single-shot, per-call completion channel.
package taskhost

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/buildmesh/enginecore/internal/core"
)

var structValidate = validator.New()

// TaskCompleteType is the outcome a task host reports via
// TaskHostTaskComplete.
type TaskCompleteType int

const (
	TaskCompleteSuccess TaskCompleteType = iota
	TaskCompleteFailure
	TaskCompleteCrashedDuringInitialization
	TaskCompleteCrashedDuringExecution
)

func (t TaskCompleteType) String() string {
	switch t {
	case TaskCompleteSuccess:
		return "Success"
	case TaskCompleteFailure:
		return "Failure"
	case TaskCompleteCrashedDuringInitialization:
		return "CrashedDuringInitialization"
	case TaskCompleteCrashedDuringExecution:
		return "CrashedDuringExecution"
	default:
		return "Unknown"
	}
}

// TaskHostConfiguration is handed to the spawned process on launch.
type TaskHostConfiguration struct {
	TaskName         string `validate:"required"`
	AssemblyLocation string `validate:"required"`
	GlobalProperties *core.GlobalProperties
	Line             int `validate:"min=0"`
	Column           int `validate:"min=0"`
	ContinueOnError  bool
	Culture          string
	Parameters       []TaskParameter
}

// Validate checks the struct-tag invariants a TaskHostConfiguration
// must satisfy before it is handed to a spawned process.
func (c *TaskHostConfiguration) Validate() error {
	if err := structValidate.Struct(c); err != nil {
		return core.NewInternalError("invalid task host configuration: %v", err)
	}
	return nil
}

// TaskParameter is one ordered input parameter.
type TaskParameter struct {
	Name  string
	Value any
}

// TaskCompletion is the decoded TaskHostTaskComplete packet body.
type TaskCompletion struct {
	Type                         TaskCompleteType
	OutputParameters             map[string]any
	Exception                    *core.BuildError
	ExceptionMessageResourceName string
}

// Validate enforces the mutual-exclusion rules a TaskCompletion must
// satisfy, returning an InternalError on violation.
func (c *TaskCompletion) Validate() error {
	crashed := c.Type == TaskCompleteCrashedDuringInitialization || c.Type == TaskCompleteCrashedDuringExecution
	hasException := c.Exception != nil
	hasResourceName := c.ExceptionMessageResourceName != ""

	if crashed {
		if hasException == hasResourceName {
			return core.NewInternalError("task completion of type %s must carry exactly one of exception or exception_message_resource_name", c.Type)
		}
		return nil
	}

	if hasException || hasResourceName {
		return core.NewInternalError("task completion of type %s must not carry an exception", c.Type)
	}
	return nil
}

// NodeReuseSettings controls whether the bounded-exit rule applies to
// a given host.
type NodeReuseSettings struct {
	Enabled   bool
	ExitBound time.Duration
}

func (s NodeReuseSettings) exitBound() time.Duration {
	if s.ExitBound > 0 {
		return s.ExitBound
	}
	return DefaultExitBound
}

// Host owns one spawned task host process end to end: launch, the
// callback channel available to it mid-task, the completion it reports,
// and the post-completion exit handshake.
type Host struct {
	Process    *Process
	Callbacks  *CallbackRegistry
	NodeReuse  NodeReuseSettings
	logger     *slog.Logger
}

// NewHost wraps an already-spawned Process with its callback registry and
// node-reuse policy.
func NewHost(process *Process, callbacks *CallbackRegistry, reuse NodeReuseSettings, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	if callbacks == nil {
		callbacks = NewCallbackRegistry(logger)
	}
	return &Host{Process: process, Callbacks: callbacks, NodeReuse: reuse, logger: logger.With("component", "taskhost")}
}

// Configure validates a TaskHostConfiguration before it is serialized and
// sent to the spawned process. Callers invoke this once,
// immediately before the handoff.
func (h *Host) Configure(cfg *TaskHostConfiguration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	pid := 0
	if h.Process != nil {
		pid = h.Process.Pid()
	}
	h.logger.Info("configuring task host", "task_name", cfg.TaskName, "pid", pid)
	return nil
}

// Complete processes a TaskHostTaskComplete packet: validates it, converts
// it into a TargetResult-shaped WorkUnitResult outcome, and, unless node
// reuse is enabled, waits for the process to exit within the configured
// bound, terminating it forcibly if it overstays.
func (h *Host) Complete(ctx context.Context, completion *TaskCompletion) (*core.WorkUnitResult, error) {
	if err := completion.Validate(); err != nil {
		return nil, err
	}

	result := h.toWorkUnitResult(completion)

	if !h.NodeReuse.Enabled && h.Process != nil {
		bound := h.NodeReuse.exitBound()
		if !h.Process.WaitForExit(bound) {
			if err := h.Process.Terminate(); err != nil {
				h.logger.Warn("failed to force-terminate overstaying task host process", "error", err, "pid", h.Process.Pid())
			}
		}
	}

	return result, nil
}

func (h *Host) toWorkUnitResult(c *TaskCompletion) *core.WorkUnitResult {
	switch c.Type {
	case TaskCompleteSuccess:
		return &core.WorkUnitResult{ResultCode: core.ResultCodeSuccess}
	case TaskCompleteFailure:
		return &core.WorkUnitResult{ResultCode: core.ResultCodeFailure}
	case TaskCompleteCrashedDuringInitialization, TaskCompleteCrashedDuringExecution:
		exc := c.Exception
		if exc == nil {
			exc = core.NewBuildError(core.ErrorKindTaskHostCrash, c.ExceptionMessageResourceName)
		} else if exc.Kind == core.ErrorKindNone {
			exc.Kind = core.ErrorKindTaskHostCrash
		}
		return &core.WorkUnitResult{ResultCode: core.ResultCodeFailure, Exception: exc}
	default:
		return &core.WorkUnitResult{ResultCode: core.ResultCodeFailure, Exception: core.NewInternalError("unrecognized task completion type %d", int(c.Type))}
	}
}

// CrashException builds the TaskHostCrash BuildError carrying captured
// stderr lines, used when the process dies without ever sending
// TaskHostTaskComplete.
func CrashException(lastStderrLines []string) *core.BuildError {
	msg := "task host process exited unexpectedly"
	if len(lastStderrLines) > 0 {
		msg = fmt.Sprintf("%s:\n%s", msg, joinLines(lastStderrLines))
	}
	return core.NewBuildError(core.ErrorKindTaskHostCrash, msg)
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
