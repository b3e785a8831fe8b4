// Package agentharness provides a high-level façade over the task
// orchestrator and its services (session pool, task store, registry &
// logging) enabling rapid construction of conversational agent servers.
// Most applications interact with this package by:
//  1. Creating a Harness via New() (optionally overriding the engine,
//     task store and pool tuning)
//  2. Registering one or more agents (default single-call or custom loop)
//  3. Handling tasks directly (Handle/Cancel) or serving them over HTTP
//     (Server)
//
// All defaults are safe for local development and testing; production
// deployments typically supply a durable task store, a real engine and a
// structured logger.
package agentharness

import (
	"context"
	"sync"
	"time"

	"github.com/agentharness/agentharness/a2a"
	"github.com/agentharness/agentharness/agent"
	"github.com/agentharness/agentharness/engine"
	"github.com/agentharness/agentharness/executor"
	"github.com/agentharness/agentharness/logging"
	"github.com/agentharness/agentharness/pool"
	"github.com/agentharness/agentharness/server"
	"github.com/agentharness/agentharness/task"
	"github.com/agentharness/agentharness/telemetry"
)

// Options configures the Harness instance.
type Options struct {
	// Engine executes agent turns. Required for real deployments; tests
	// typically inject engine.MockEngine.
	Engine engine.Engine

	// TaskStore persists task state (defaults to in-memory).
	TaskStore task.Store

	// SessionTTL bounds how long an idle pooled session is kept.
	SessionTTL time.Duration
	// EvictionInterval between background pool sweeps.
	EvictionInterval time.Duration
	// CancelWait bounds how long Cancel waits for an in-flight execution
	// to acknowledge cancellation.
	CancelWait time.Duration

	// TelemetryCallbacks observe completed executions.
	TelemetryCallbacks []telemetry.Callback
	// StepLogger observes intermediate execution steps.
	StepLogger telemetry.StepLogger

	// Server identity for the discovery card.
	Name        string
	Description string
	Version     string
	URL         string
	// JWTSecret enables bearer-token authentication on the HTTP surface.
	JWTSecret []byte

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Harness is the high-level façade aggregating the orchestrator and its
// services. Register agents first; the runtime is assembled on first use and
// registration is rejected afterwards.
type Harness struct {
	opts   Options
	logger logging.Logger

	mu     sync.Mutex
	agents []*agent.Agent

	buildOnce sync.Once
	registry  *agent.Registry
	pool      *pool.Pool
	exec      *executor.Executor
}

// New creates a new Harness with optional overrides. Any unset service is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Harness {
	opts := Options{
		TaskStore:        task.NewInMemoryStore(),
		SessionTTL:       15 * time.Minute,
		EvictionInterval: time.Minute,
		CancelWait:       5 * time.Second,
		Name:             "agentharness",
		Version:          "0.1.0",
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Engine == nil {
		opts.Engine = engine.NewMockEngine()
	}
	return &Harness{opts: opts, logger: opts.Logger}
}

// Agent registers an agent with the default single-call behavior.
func (h *Harness) Agent(cfg agent.Config) error {
	return h.AgentLoop(cfg, nil)
}

// AgentLoop registers an agent with a custom execution loop. The config is
// validated here so startup fails fast on misconfiguration.
func (h *Harness) AgentLoop(cfg agent.Config, fn agent.Func) error {
	a, err := agent.New(cfg, fn)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.agents = append(h.agents, a)
	h.logger.Info("registered agent", "agent_name", cfg.Name, "skill_count", len(cfg.Skills))
	return nil
}

// build assembles registry, pool and executor exactly once.
func (h *Harness) build() {
	h.buildOnce.Do(func() {
		h.mu.Lock()
		agents := h.agents
		h.mu.Unlock()

		h.registry = agent.NewRegistry(h.logger, agents...)
		h.pool = pool.New(h.opts.Engine, func(o *pool.Options) {
			o.TTL = h.opts.SessionTTL
			o.EvictionInterval = h.opts.EvictionInterval
			o.Logger = h.logger
		})
		h.pool.Start()
		h.exec = executor.New(h.registry, h.opts.TaskStore, h.pool, func(o *executor.Options) {
			o.CancelWait = h.opts.CancelWait
			o.TelemetryCallbacks = h.opts.TelemetryCallbacks
			o.StepLogger = h.opts.StepLogger
			o.Logger = h.logger
		})
	})
}

// Executor returns the assembled orchestrator, building the runtime on first
// call.
func (h *Harness) Executor() *executor.Executor {
	h.build()
	return h.exec
}

// Handle runs one task request through the orchestrator and returns the
// resulting task snapshot.
func (h *Harness) Handle(ctx context.Context, req executor.Request) (*a2a.Task, error) {
	h.build()
	queue := &executor.MemoryQueue{}
	if err := h.exec.Handle(ctx, req, queue); err != nil {
		return nil, err
	}
	return h.opts.TaskStore.Get(ctx, req.TaskID)
}

// Cancel requests cancellation of a task and returns the resulting snapshot.
func (h *Harness) Cancel(ctx context.Context, taskID, caller string) (*a2a.Task, error) {
	h.build()
	queue := &executor.MemoryQueue{}
	if err := h.exec.Cancel(ctx, taskID, caller, queue); err != nil {
		return nil, err
	}
	return h.opts.TaskStore.Get(ctx, taskID)
}

// Server assembles the HTTP surface over the orchestrator.
func (h *Harness) Server() *server.Server {
	h.build()
	return server.New(h.exec, h.opts.TaskStore, h.registry, func(o *server.Options) {
		o.Name = h.opts.Name
		o.Description = h.opts.Description
		o.Version = h.opts.Version
		o.URL = h.opts.URL
		o.JWTSecret = h.opts.JWTSecret
		o.Logger = h.logger
	})
}

// Shutdown releases all pooled sessions and stops background loops. Safe to
// call before the runtime was ever built.
func (h *Harness) Shutdown() {
	if h.pool != nil {
		h.pool.Shutdown()
	}
}
