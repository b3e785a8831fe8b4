// Package executor implements the task orchestration state machine: it
// receives inbound requests, resolves the target agent, acquires a pooled
// execution session, runs the agent to completion (or cancellation) and
// reconciles the result into durable task state.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agentharness/agentharness/a2a"
	"github.com/agentharness/agentharness/agent"
	"github.com/agentharness/agentharness/client"
	"github.com/agentharness/agentharness/convert"
	"github.com/agentharness/agentharness/logging"
	"github.com/agentharness/agentharness/pool"
	"github.com/agentharness/agentharness/task"
	"github.com/agentharness/agentharness/telemetry"
	"github.com/agentharness/agentharness/tracing"
)

// AnonymousCaller is the principal recorded when the transport performs no
// authentication.
const AnonymousCaller = "anonymous"

var (
	// ErrInvalidRequest rejects requests missing a task id, context id or
	// message. Returned before any task mutation.
	ErrInvalidRequest = errors.New("invalid request: task id, context id and message are required")
	// ErrTaskTerminal rejects requests against a failed or canceled task.
	ErrTaskTerminal = errors.New("task is in a terminal state")
	// ErrAccessDenied rejects cancellation by a caller that does not own the
	// task.
	ErrAccessDenied = errors.New("access denied")
)

// EventQueue receives outbound messages produced while handling a request.
type EventQueue interface {
	Enqueue(msg a2a.Message)
}

// QueueFunc adapts a function to the EventQueue interface.
type QueueFunc func(msg a2a.Message)

// Enqueue implements EventQueue.
func (f QueueFunc) Enqueue(msg a2a.Message) { f(msg) }

// MemoryQueue buffers enqueued messages in order. Safe for concurrent use.
type MemoryQueue struct {
	mu       sync.Mutex
	messages []a2a.Message
}

// Enqueue implements EventQueue.
func (q *MemoryQueue) Enqueue(msg a2a.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
}

// Messages returns a snapshot of the enqueued messages.
func (q *MemoryQueue) Messages() []a2a.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]a2a.Message, len(q.messages))
	copy(out, q.messages)
	return out
}

// Request is one inbound task request as handed over by the transport.
type Request struct {
	TaskID    string
	ContextID string
	Message   *a2a.Message
	// Metadata may carry a "skillId" routing hint.
	Metadata map[string]any
	// Caller is the authenticated principal, or empty for anonymous.
	Caller string
}

func (r Request) skillHint() string {
	if r.Metadata == nil {
		return ""
	}
	s, _ := r.Metadata["skillId"].(string)
	return s
}

func (r Request) principal() string {
	if r.Caller == "" {
		return AnonymousCaller
	}
	return r.Caller
}

// Options holds configuration overrides for an Executor.
type Options struct {
	// CancelWait bounds how long Cancel waits for an in-flight execution to
	// acknowledge the cancellation signal.
	CancelWait time.Duration
	// TelemetryCallbacks are forwarded to every client handed to agent runs.
	TelemetryCallbacks []telemetry.Callback
	// StepLogger receives intermediate step events from agent runs.
	StepLogger telemetry.StepLogger
	// Logger for orchestration events.
	Logger logging.Logger
}

// inflight tracks one running execution keyed by task id. cancel signals the
// cooperative cancellation token; done is closed when the execution unwinds.
type inflight struct {
	contextID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// Executor is the top-level task state machine. Public methods are safe for
// concurrent use; within one task execution proceeds strictly sequentially.
type Executor struct {
	registry *agent.Registry
	store    task.Store
	pool     *pool.Pool

	cancelWait         time.Duration
	telemetryCallbacks []telemetry.Callback
	stepLogger         telemetry.StepLogger
	logger             logging.Logger

	mu      sync.Mutex
	running map[string]*inflight
}

// New constructs an Executor with optional overrides.
func New(registry *agent.Registry, store task.Store, sessionPool *pool.Pool, optFns ...func(o *Options)) *Executor {
	opts := Options{
		CancelWait: 5 * time.Second,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Executor{
		registry:           registry,
		store:              store,
		pool:               sessionPool,
		cancelWait:         opts.CancelWait,
		telemetryCallbacks: opts.TelemetryCallbacks,
		stepLogger:         opts.StepLogger,
		logger:             opts.Logger,
		running:            make(map[string]*inflight),
	}
}

// Handle runs one inbound request to completion. Orchestration errors inside
// the task phase are converted into a terminal failed state plus an outbound
// message; only request-shape, terminal-state and store errors surface to
// the transport.
func (e *Executor) Handle(ctx context.Context, req Request, queue EventQueue) error {
	if req.TaskID == "" || req.ContextID == "" || req.Message == nil {
		return ErrInvalidRequest
	}
	caller := req.principal()

	e.logger.Info("starting task execution", "task_id", req.TaskID, "context_id", req.ContextID, "caller", caller)

	tsk, err := e.store.Get(ctx, req.TaskID)
	switch {
	case errors.Is(err, task.ErrNotFound):
		tsk = &a2a.Task{
			ID:        req.TaskID,
			ContextID: req.ContextID,
			OwnerID:   caller,
			Status:    a2a.TaskStatus{State: a2a.TaskStateWorking, Timestamp: time.Now().UTC()},
			History:   []a2a.Message{*req.Message},
		}
		if err := e.store.Save(ctx, tsk); err != nil {
			return fmt.Errorf("create task %s: %w", req.TaskID, err)
		}
	case err != nil:
		return fmt.Errorf("load task %s: %w", req.TaskID, err)
	default:
		if tsk.Status.State.Terminal() {
			return fmt.Errorf("%w: %s is %s", ErrTaskTerminal, tsk.ID, tsk.Status.State)
		}
		if tsk.OwnerID != "" && tsk.OwnerID != caller {
			e.logger.Warn("task owner mismatch", "task_id", req.TaskID, "caller", caller)
			e.failTask(ctx, tsk, "Access denied: task belongs to another principal.", queue)
			return nil
		}
		// A new inbound message reopens the exchange.
		tsk.Status = a2a.TaskStatus{State: a2a.TaskStateWorking, Timestamp: time.Now().UTC()}
		tsk.History = append(tsk.History, *req.Message)
		if err := e.store.Save(ctx, tsk); err != nil {
			return fmt.Errorf("reopen task %s: %w", req.TaskID, err)
		}
	}

	ag := e.registry.Resolve(req.skillHint())
	if ag == nil {
		e.logger.Error("task failed: no agents registered", "task_id", req.TaskID)
		e.failTask(ctx, tsk,
			"Error: No agents registered. Configure at least one agent before handling tasks.", queue)
		return nil
	}
	e.logger.Debug("using agent for task", "task_id", req.TaskID, "agent_name", ag.Config.Name)

	runCtx, cancel := context.WithCancel(ctx)
	fl := &inflight{contextID: req.ContextID, cancel: cancel, done: make(chan struct{})}
	e.mu.Lock()
	e.running[req.TaskID] = fl
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		delete(e.running, req.TaskID)
		e.mu.Unlock()
		close(fl.done)
	}()

	engineCfg := ag.Config.EngineConfig()
	session, isNew, err := e.pool.GetOrCreate(runCtx, req.ContextID, engineCfg)
	if err != nil {
		if runCtx.Err() != nil {
			return nil
		}
		e.logger.Error("failed to open execution session", "task_id", req.TaskID, "error", err)
		e.pool.Remove(req.ContextID)
		e.failTask(ctx, tsk, "An error occurred: "+errorCategory(err), queue)
		return nil
	}
	e.logger.Debug("session acquired", "task_id", req.TaskID, "is_new", isNew)

	prompt := convert.TextFromParts(req.Message.Parts)
	actx := &agent.Context{
		TaskID:         req.TaskID,
		ContextID:      req.ContextID,
		MessageHistory: historyMessages(tsk.History[:len(tsk.History)-1]),
	}
	cl := client.New(session, func(o *client.Options) {
		o.TaskID = req.TaskID
		o.ContextID = req.ContextID
		o.Model = engineCfg.Model
		o.TelemetryCallbacks = e.telemetryCallbacks
		o.StepLogger = e.stepLogger
		o.Logger = e.logger
	})

	spanCtx, span := tracing.StartAgentSpan(runCtx, ag.Config.Name, engineCfg.Model)
	var result any
	if ag.Func != nil {
		e.logger.Debug("executing custom agent loop", "task_id", req.TaskID, "agent_name", ag.Config.Name)
		result, err = ag.Func(spanCtx, prompt, actx, cl)
	} else {
		e.logger.Debug("executing default agent run", "task_id", req.TaskID, "agent_name", ag.Config.Name)
		result, err = cl.Run(spanCtx, prompt)
	}
	span.End(err)
	if err != nil {
		if runCtx.Err() != nil {
			// Cancellation observed at a suspension point; Cancel owns the
			// state transition and session release.
			e.logger.Info("execution interrupted by cancellation", "task_id", req.TaskID)
			return nil
		}
		e.logger.Error("task failed with execution error", "task_id", req.TaskID, "context_id", req.ContextID, "error", err)
		e.pool.Remove(req.ContextID)
		e.failTask(ctx, tsk, "An error occurred: "+errorCategory(err), queue)
		return nil
	}

	artifacts := buildArtifacts(result)
	response := convert.MessageFromText(a2a.RoleAgent, resultText(result))
	response.TaskID = req.TaskID
	response.ContextID = req.ContextID

	// Only the new assistant message is appended; the inbound user message
	// is already in history from task creation/reopen.
	tsk.History = append(tsk.History, response)
	tsk.Artifacts = append(tsk.Artifacts, artifacts...)
	tsk.Status = a2a.TaskStatus{State: a2a.TaskStateCompleted, Timestamp: time.Now().UTC()}
	if err := e.store.Save(ctx, tsk); err != nil {
		e.pool.Remove(req.ContextID)
		return fmt.Errorf("persist task %s: %w", req.TaskID, err)
	}
	queue.Enqueue(response)

	// The pooled session stays alive for the next turn of this conversation;
	// TTL eviction reclaims it if no further turn arrives.
	e.logger.Info("task completed successfully", "task_id", req.TaskID, "artifact_count", len(artifacts))
	return nil
}

// Cancel requests cooperative termination of the task's in-flight execution,
// releases the pooled session and transitions the task to canceled. With no
// execution in flight it still performs the authorization check and session
// release. A task already in a terminal state is rejected with
// ErrTaskTerminal.
func (e *Executor) Cancel(ctx context.Context, taskID, caller string, queue EventQueue) error {
	if taskID == "" {
		return ErrInvalidRequest
	}
	if caller == "" {
		caller = AnonymousCaller
	}

	tsk, err := e.store.Get(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", taskID, err)
	}
	if tsk.Status.State.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTaskTerminal, tsk.ID, tsk.Status.State)
	}
	if tsk.OwnerID != "" && tsk.OwnerID != caller {
		e.logger.Warn("cancel denied: task owner mismatch", "task_id", taskID, "caller", caller)
		return ErrAccessDenied
	}

	e.logger.Info("cancelling task", "task_id", taskID)

	e.mu.Lock()
	fl := e.running[taskID]
	e.mu.Unlock()

	if fl != nil {
		fl.cancel()
		select {
		case <-fl.done:
		case <-time.After(e.cancelWait):
			e.logger.Warn("timed out waiting for cancellation acknowledgement", "task_id", taskID, "wait", e.cancelWait)
		}
	}

	e.pool.Remove(tsk.ContextID)

	notice := convert.MessageFromText(a2a.RoleAgent, "Task canceled.")
	notice.TaskID = taskID
	notice.ContextID = tsk.ContextID
	tsk.Status = a2a.TaskStatus{State: a2a.TaskStateCanceled, Message: &notice, Timestamp: time.Now().UTC()}
	if err := e.store.Save(ctx, tsk); err != nil {
		return fmt.Errorf("persist canceled task %s: %w", taskID, err)
	}
	queue.Enqueue(notice)
	return nil
}

// failTask marks the task failed with an error notice and enqueues it. The
// notice carries only a category label; conversation history is left
// untouched.
func (e *Executor) failTask(ctx context.Context, tsk *a2a.Task, message string, queue EventQueue) {
	notice := convert.MessageFromText(a2a.RoleAgent, message)
	notice.TaskID = tsk.ID
	notice.ContextID = tsk.ContextID
	tsk.Status = a2a.TaskStatus{State: a2a.TaskStateFailed, Message: &notice, Timestamp: time.Now().UTC()}
	if err := e.store.Save(ctx, tsk); err != nil {
		e.logger.Error("failed to persist failed task state", "task_id", tsk.ID, "error", err)
	}
	queue.Enqueue(notice)
}

// errorCategory maps an execution error onto a stable category label. The
// raw error text is logged internally but never echoed to the caller.
func errorCategory(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	default:
		return "ExecutionError"
	}
}

func historyMessages(history []a2a.Message) []agent.HistoryMessage {
	out := make([]agent.HistoryMessage, 0, len(history))
	for _, m := range history {
		role := "assistant"
		if m.Role == a2a.RoleUser {
			role = "user"
		}
		out = append(out, agent.HistoryMessage{Role: role, Content: convert.TextFromParts(m.Parts)})
	}
	return out
}

// buildArtifacts converts an execution result to protocol artifacts.
func buildArtifacts(result any) []a2a.Artifact {
	switch r := result.(type) {
	case nil:
		return nil
	case string:
		return []a2a.Artifact{convert.TextArtifact(r, "result")}
	case []a2a.Artifact:
		return r
	default:
		return []a2a.Artifact{convert.TextArtifact(fmt.Sprintf("%v", r), "result")}
	}
}

func resultText(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", result)
}
