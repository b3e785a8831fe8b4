// Package client provides a thin wrapper over an engine session with a
// simplified API for agent execution. A Client is bound to one pooled
// session; the orchestrator hands it to custom loops so multiple Run calls
// share conversational memory.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/agentharness/agentharness/engine"
	"github.com/agentharness/agentharness/logging"
	"github.com/agentharness/agentharness/telemetry"
	"github.com/agentharness/agentharness/tracing"
)

// Event is a streaming execution event surfaced by Stream. Concrete event
// types implement the unexported isEvent marker enabling a closed set.
type Event interface{ isEvent() }

// TextEvent carries an assistant text block.
type TextEvent struct {
	Text string
}

func (TextEvent) isEvent() {}

// ToolEvent carries a tool invocation requested by the model.
type ToolEvent struct {
	ToolName  string
	ToolInput map[string]any
}

func (ToolEvent) isEvent() {}

// DoneEvent terminates a stream with the final text and optional structured
// output.
type DoneEvent struct {
	FinalText        string
	StructuredOutput any
}

func (DoneEvent) isEvent() {}

// Options configures a Client.
type Options struct {
	TaskID             string
	ContextID          string
	Model              string
	TelemetryCallbacks []telemetry.Callback
	StepLogger         telemetry.StepLogger
	Logger             logging.Logger
}

// Client wraps an engine session. It is not safe for concurrent Run/Stream
// calls on the same instance; execution within one task is sequential.
type Client struct {
	session engine.Session
	opts    Options
}

// New binds a client to a session with optional overrides.
func New(session engine.Session, optFns ...func(o *Options)) *Client {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Client{session: session, opts: opts}
}

// Session returns the underlying engine session.
func (c *Client) Session() engine.Session { return c.session }

// Run executes a full round-trip and returns the final text, or the
// structured output when the engine produced one. The raw engine error is
// wrapped so callers see a stable category prefix.
func (c *Client) Run(ctx context.Context, prompt string) (any, error) {
	ctx, span := tracing.StartChatSpan(ctx, c.opts.Model)

	start := time.Now()
	var finalText string
	var structured any
	turn := 0

	respCh, errCh := c.session.Submit(ctx, prompt)
	for resp := range respCh {
		switch {
		case resp.Block != nil:
			c.logBlock(ctx, resp.Block, turn)
			if tb, ok := resp.Block.(engine.TextBlock); ok {
				finalText = tb.Text
			}
		case resp.Result != nil:
			c.logTurnComplete(ctx, resp.Result, turn)
			c.emitTelemetry(ctx, resp.Result, start)
			span.RecordUsage(resp.Result.Usage.InputTokens, resp.Result.Usage.OutputTokens)
			if resp.Result.FinalText != "" {
				finalText = resp.Result.FinalText
			}
			structured = resp.Result.StructuredOutput
			turn++
		}
	}
	if err := <-errCh; err != nil {
		c.opts.Logger.Error("engine execution failed", "task_id", c.opts.TaskID, "error", err)
		wrapped := fmt.Errorf("agent execution failed: %w", err)
		span.End(wrapped)
		return nil, wrapped
	}
	span.End(nil)

	if structured != nil {
		return structured, nil
	}
	return finalText, nil
}

// Stream executes with streaming, yielding events as execution progresses.
// The returned channels are closed when the round-trip completes; the error
// channel carries at most one terminal error.
func (c *Client) Stream(ctx context.Context, prompt string) (<-chan Event, <-chan error) {
	out := make(chan Event, 16)
	errOut := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errOut)

		ctx, span := tracing.StartChatSpan(ctx, c.opts.Model)
		var spanErr error
		defer func() { span.End(spanErr) }()

		start := time.Now()
		var finalText string
		turn := 0

		respCh, errCh := c.session.Submit(ctx, prompt)
		for resp := range respCh {
			switch {
			case resp.Block != nil:
				c.logBlock(ctx, resp.Block, turn)
				switch b := resp.Block.(type) {
				case engine.TextBlock:
					finalText = b.Text
					select {
					case <-ctx.Done():
						spanErr = ctx.Err()
						errOut <- spanErr
						return
					case out <- TextEvent{Text: b.Text}:
					}
				case engine.ToolUseBlock:
					select {
					case <-ctx.Done():
						spanErr = ctx.Err()
						errOut <- spanErr
						return
					case out <- ToolEvent{ToolName: b.Name, ToolInput: b.Input}:
					}
				}
			case resp.Result != nil:
				c.logTurnComplete(ctx, resp.Result, turn)
				c.emitTelemetry(ctx, resp.Result, start)
				span.RecordUsage(resp.Result.Usage.InputTokens, resp.Result.Usage.OutputTokens)
				if resp.Result.FinalText != "" {
					finalText = resp.Result.FinalText
				}
				out <- DoneEvent{FinalText: finalText, StructuredOutput: resp.Result.StructuredOutput}
				turn++
			}
		}
		if err := <-errCh; err != nil {
			c.opts.Logger.Error("engine streaming failed", "task_id", c.opts.TaskID, "error", err)
			spanErr = fmt.Errorf("agent streaming failed: %w", err)
			errOut <- spanErr
		}
	}()

	return out, errOut
}

func (c *Client) logBlock(ctx context.Context, block engine.ContentBlock, turn int) {
	if c.opts.StepLogger == nil {
		return
	}
	var ev *telemetry.StepEvent
	switch b := block.(type) {
	case engine.TextBlock:
		ev = &telemetry.StepEvent{Type: telemetry.StepAssistantMessage, Turn: turn, Data: map[string]any{"text": b.Text}}
	case engine.ToolUseBlock:
		ev = &telemetry.StepEvent{Type: telemetry.StepToolCall, Turn: turn, Data: map[string]any{"name": b.Name, "id": b.ID, "input": b.Input}}
	}
	if ev == nil {
		return
	}
	if err := c.opts.StepLogger.LogStep(ctx, *ev); err != nil {
		c.opts.Logger.Warn("step logging failed", "step_type", ev.Type, "error", err)
	}
}

func (c *Client) logTurnComplete(ctx context.Context, result *engine.Result, turn int) {
	if c.opts.StepLogger == nil {
		return
	}
	ev := telemetry.StepEvent{Type: telemetry.StepTurnComplete, Turn: turn, Data: map[string]any{
		"cost_usd": result.Usage.TotalCostUSD,
		"usage":    result.Usage,
	}}
	if err := c.opts.StepLogger.LogStep(ctx, ev); err != nil {
		c.opts.Logger.Warn("step logging failed", "step_type", ev.Type, "error", err)
	}
}

func (c *Client) emitTelemetry(ctx context.Context, result *engine.Result, start time.Time) {
	if len(c.opts.TelemetryCallbacks) == 0 {
		return
	}
	status := "success"
	if result.IsError {
		status = "error"
	}
	durationMS := result.DurationMS
	if durationMS == 0 {
		durationMS = time.Since(start).Milliseconds()
	}
	metrics := telemetry.ExecutionMetrics{
		TaskID:           c.opts.TaskID,
		ContextID:        c.opts.ContextID,
		TotalCostUSD:     result.Usage.TotalCostUSD,
		InputTokens:      result.Usage.InputTokens,
		OutputTokens:     result.Usage.OutputTokens,
		CacheReadTokens:  result.Usage.CacheReadTokens,
		CacheWriteTokens: result.Usage.CacheWriteTokens,
		DurationMS:       durationMS,
		NumTurns:         result.NumTurns,
		Status:           status,
		Timestamp:        time.Now().UTC(),
	}
	for _, cb := range c.opts.TelemetryCallbacks {
		if err := cb.OnComplete(ctx, metrics); err != nil {
			c.opts.Logger.Warn("telemetry callback failed", "task_id", c.opts.TaskID, "error", err)
		}
	}
}
