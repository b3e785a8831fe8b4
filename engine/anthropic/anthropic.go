// Package anthropic provides an execution engine backed by the Anthropic
// Messages API. Each session keeps the accumulated message history so a
// pooled session carries conversational memory across submissions.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentharness/agentharness/engine"
)

// Options configures the Anthropic engine adapter (temperature, max tokens,
// API key). Extend via functional options to preserve stability.
type Options struct {
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Engine opens Anthropic backed sessions behind the generic engine.Engine
// interface.
type Engine struct {
	client *anthropic.Client
	opts   Options
}

// NewEngine creates a new Anthropic engine using the official client.
func NewEngine(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Engine{client: &client, opts: opts}
}

// NewEngineFromClient creates a new Anthropic engine from an existing client.
func NewEngineFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{client: client, opts: opts}
}

// Open implements engine.Engine.
func (e *Engine) Open(_ context.Context, cfg engine.Config) (engine.Session, error) {
	if cfg.Model == "" {
		return nil, errors.New("anthropic engine: model is required")
	}
	return &session{client: e.client, cfg: cfg, opts: e.opts}, nil
}

// session is one live conversation against the Messages API. A mutex
// serializes submissions; history grows one user/assistant pair per turn.
type session struct {
	client *anthropic.Client
	cfg    engine.Config
	opts   Options

	mu      sync.Mutex
	history []anthropic.MessageParam
	closed  bool
}

// Submit implements engine.Session. It appends the prompt to the session
// history, performs one Messages round-trip and emits the response content
// blocks followed by a final Result.
func (s *session) Submit(ctx context.Context, prompt string) (<-chan engine.Response, <-chan error) {
	out := make(chan engine.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		s.mu.Lock()
		defer s.mu.Unlock()

		if s.closed {
			errCh <- errors.New("anthropic engine: session is closed")
			return
		}

		start := time.Now()
		s.history = append(s.history, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))

		params := anthropic.MessageNewParams{
			Model:       anthropic.Model(s.cfg.Model),
			Messages:    s.history,
			MaxTokens:   s.opts.MaxTokens,
			Temperature: anthropic.Float(s.opts.Temperature),
		}
		if s.cfg.SystemPrompt != "" {
			params.System = []anthropic.TextBlockParam{{Text: s.cfg.SystemPrompt}}
		}

		resp, err := s.client.Messages.New(ctx, params)
		if err != nil {
			// Roll back the appended prompt so a retry does not duplicate it.
			s.history = s.history[:len(s.history)-1]
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}

		var texts []string
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				textBlock := block.AsText()
				if textBlock.Text == "" {
					continue
				}
				texts = append(texts, textBlock.Text)
				out <- engine.Response{Block: engine.TextBlock{Text: textBlock.Text}}
			case "tool_use":
				toolBlock := block.AsToolUse()
				out <- engine.Response{Block: engine.ToolUseBlock{
					ID:    toolBlock.ID,
					Name:  toolBlock.Name,
					Input: decodeInput(toolBlock.Input),
				}}
			}
		}

		s.history = append(s.history, resp.ToParam())

		finalText := strings.Join(texts, "\n")
		result := &engine.Result{
			FinalText:  finalText,
			NumTurns:   1,
			DurationMS: time.Since(start).Milliseconds(),
			Usage: engine.Usage{
				InputTokens:      resp.Usage.InputTokens,
				OutputTokens:     resp.Usage.OutputTokens,
				CacheReadTokens:  resp.Usage.CacheReadInputTokens,
				CacheWriteTokens: resp.Usage.CacheCreationInputTokens,
			},
		}
		if s.cfg.OutputFormat != nil {
			var structured map[string]any
			if err := json.Unmarshal([]byte(finalText), &structured); err == nil {
				result.StructuredOutput = structured
			}
		}
		out <- engine.Response{Result: result}
	}()

	return out, errCh
}

// Close implements engine.Session.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.history = nil
	return nil
}

func decodeInput(input any) map[string]any {
	if input == nil {
		return nil
	}
	data, err := json.Marshal(input)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}
