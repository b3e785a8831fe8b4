// Package engine abstracts the language-model execution engine behind an
// open/submit/close session contract. Sessions are stateful: conversational
// memory accumulates across Submit calls on the same session, which is what
// makes pooled session reuse worthwhile.
package engine

import "context"

// Config carries the engine configuration derived from an agent. Only a
// subset of these fields affects conversational behavior; see the pool's
// fingerprint for the exact set.
type Config struct {
	SystemPrompt   string
	AllowedTools   []string
	Model          string
	MaxTurns       int
	MCPServers     map[string]any
	SettingSources []string
	OutputFormat   map[string]any
}

// ContentBlock is a polymorphic unit of engine-side message content.
type ContentBlock interface{ isContentBlock() }

// TextBlock is plain assistant or user text.
type TextBlock struct {
	Text string
}

func (TextBlock) isContentBlock() {}

// ToolUseBlock is a tool invocation requested by the model.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]any
}

func (ToolUseBlock) isContentBlock() {}

// ToolResultBlock carries the outcome of a prior tool invocation.
type ToolResultBlock struct {
	ToolUseID string
	Content   any
}

func (ToolResultBlock) isContentBlock() {}

// Message holds a role plus ordered content blocks in the engine's shape.
type Message struct {
	Role    string
	Content []ContentBlock
}

// Usage captures token and cost accounting for one submit round-trip.
type Usage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
	TotalCostUSD     float64
}

// Result is the terminal element of a submit stream.
type Result struct {
	FinalText        string
	StructuredOutput any
	Usage            Usage
	NumTurns         int
	DurationMS       int64
	IsError          bool
}

// Response is one element of the stream produced by Submit. Either Block is
// non-nil (streamed content) or Result is non-nil (terminal element, exactly
// once per submit).
type Response struct {
	Block  ContentBlock
	Result *Result
}

// Session is a stateful execution handle. Implementations must preserve
// conversational memory across Submit calls and release all resources in
// Close. Close must be safe to call more than once.
type Session interface {
	// Submit sends a prompt and returns the response stream plus a terminal
	// error channel (buffered size 1). Both channels are closed when the
	// round-trip completes or ctx is cancelled.
	Submit(ctx context.Context, prompt string) (<-chan Response, <-chan error)

	Close() error
}

// Engine opens execution sessions from configuration.
type Engine interface {
	Open(ctx context.Context, cfg Config) (Session, error)
}
