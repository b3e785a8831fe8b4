// Package telemetry provides cost/usage metrics callbacks and intermediate
// step logging for agent execution.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/agentharness/agentharness/logging"
)

// ExecutionMetrics captures accounting from the engine's terminal result.
type ExecutionMetrics struct {
	TaskID           string
	ContextID        string
	TotalCostUSD     float64
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
	DurationMS       int64
	NumTurns         int
	Status           string // "success" or "error"
	Timestamp        time.Time
}

// Callback receives metrics when an execution completes. Implementations
// must not block for long; they run on the request path.
type Callback interface {
	OnComplete(ctx context.Context, metrics ExecutionMetrics) error
}

// CostTracker is a built-in callback accumulating cost with threshold
// warnings. Safe for concurrent use.
type CostTracker struct {
	WarnThresholdUSD  float64
	ErrorThresholdUSD float64

	mu         sync.Mutex
	totalCost  float64
	executions []ExecutionMetrics
	logger     logging.Logger
}

// NewCostTracker constructs a tracker with the given thresholds.
func NewCostTracker(warnUSD, errorUSD float64, logger logging.Logger) *CostTracker {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &CostTracker{WarnThresholdUSD: warnUSD, ErrorThresholdUSD: errorUSD, logger: logger}
}

// OnComplete implements Callback.
func (t *CostTracker) OnComplete(_ context.Context, metrics ExecutionMetrics) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.executions = append(t.executions, metrics)
	t.totalCost += metrics.TotalCostUSD
	switch {
	case t.totalCost > t.ErrorThresholdUSD:
		t.logger.Error("cost threshold exceeded", "total_cost_usd", t.totalCost, "threshold", t.ErrorThresholdUSD)
	case t.totalCost > t.WarnThresholdUSD:
		t.logger.Warn("cost threshold warning", "total_cost_usd", t.totalCost, "threshold", t.WarnThresholdUSD)
	}
	return nil
}

// TotalCostUSD returns the accumulated cost across executions.
func (t *CostTracker) TotalCostUSD() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalCost
}

// Executions returns a snapshot of recorded metrics.
func (t *CostTracker) Executions() []ExecutionMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ExecutionMetrics, len(t.executions))
	copy(out, t.executions)
	return out
}

// StepType categorizes an intermediate execution step.
type StepType string

const (
	// StepToolCall records a tool invocation requested by the model.
	StepToolCall StepType = "tool_call"
	// StepAssistantMessage records an assistant text block.
	StepAssistantMessage StepType = "assistant_message"
	// StepTurnComplete records the end of one engine round-trip.
	StepTurnComplete StepType = "turn_complete"
)

// StepEvent is a single step during execution.
type StepEvent struct {
	Type StepType
	Turn int
	Data map[string]any
}

// StepLogger receives intermediate step events.
type StepLogger interface {
	LogStep(ctx context.Context, event StepEvent) error
}

// LoggerStepLogger writes steps to a logging.Logger.
type LoggerStepLogger struct {
	Logger logging.Logger
}

// LogStep implements StepLogger.
func (l *LoggerStepLogger) LogStep(_ context.Context, event StepEvent) error {
	switch event.Type {
	case StepToolCall:
		l.Logger.Info("tool call", "turn", event.Turn, "tool_name", event.Data["name"], "tool_id", event.Data["id"])
	case StepAssistantMessage:
		text, _ := event.Data["text"].(string)
		if len(text) > 100 {
			text = text[:100]
		}
		l.Logger.Info("assistant message", "turn", event.Turn, "text_preview", text)
	case StepTurnComplete:
		l.Logger.Info("turn complete", "turn", event.Turn, "cost_usd", event.Data["cost_usd"], "usage", event.Data["usage"])
	}
	return nil
}

// RecordingStepLogger accumulates steps in memory; useful in tests.
type RecordingStepLogger struct {
	mu    sync.Mutex
	steps []StepEvent
}

// LogStep implements StepLogger.
func (r *RecordingStepLogger) LogStep(_ context.Context, event StepEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, event)
	return nil
}

// Steps returns a snapshot of recorded steps.
func (r *RecordingStepLogger) Steps() []StepEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StepEvent, len(r.steps))
	copy(out, r.steps)
	return out
}
