// Package openai provides an execution engine backed by the OpenAI Chat
// Completions API, mirroring the Anthropic adapter's session semantics.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openai/openai-go"

	"github.com/agentharness/agentharness/engine"
)

// Options configure the OpenAI engine adapter. Fields mirror a subset of
// Chat Completion parameters intentionally kept minimal.
type Options struct {
	Temperature         float64
	MaxCompletionTokens int64
}

// Engine opens OpenAI backed sessions behind the generic engine.Engine
// interface.
type Engine struct {
	client *openai.Client
	opts   Options
}

// NewEngine creates a new OpenAI engine using the official client.
func NewEngine(optFns ...func(o *Options)) *Engine {
	client := openai.NewClient()
	return NewEngineFromClient(&client, optFns...)
}

// NewEngineFromClient creates a new OpenAI engine from an existing client.
func NewEngineFromClient(client *openai.Client, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{client: client, opts: opts}
}

// Open implements engine.Engine.
func (e *Engine) Open(_ context.Context, cfg engine.Config) (engine.Session, error) {
	if cfg.Model == "" {
		return nil, errors.New("openai engine: model is required")
	}
	s := &session{client: e.client, cfg: cfg, opts: e.opts}
	if cfg.SystemPrompt != "" {
		s.history = append(s.history, openai.SystemMessage(cfg.SystemPrompt))
	}
	return s, nil
}

// session is one live conversation against the Chat Completions API.
type session struct {
	client *openai.Client
	cfg    engine.Config
	opts   Options

	mu      sync.Mutex
	history []openai.ChatCompletionMessageParamUnion
	closed  bool
}

// Submit implements engine.Session.
func (s *session) Submit(ctx context.Context, prompt string) (<-chan engine.Response, <-chan error) {
	out := make(chan engine.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		s.mu.Lock()
		defer s.mu.Unlock()

		if s.closed {
			errCh <- errors.New("openai engine: session is closed")
			return
		}

		start := time.Now()
		s.history = append(s.history, openai.UserMessage(prompt))

		params := openai.ChatCompletionNewParams{
			Messages:            s.history,
			Model:               s.cfg.Model,
			Temperature:         openai.Float(s.opts.Temperature),
			MaxCompletionTokens: openai.Int(s.opts.MaxCompletionTokens),
		}

		resp, err := s.client.Chat.Completions.New(ctx, params)
		if err != nil {
			s.history = s.history[:len(s.history)-1]
			errCh <- fmt.Errorf("openai api error: %w", err)
			return
		}
		if len(resp.Choices) == 0 {
			s.history = s.history[:len(s.history)-1]
			errCh <- errors.New("openai api error: no choices returned")
			return
		}

		msg := resp.Choices[0].Message
		if msg.Content != "" {
			out <- engine.Response{Block: engine.TextBlock{Text: msg.Content}}
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if tc.Function.Arguments != "" {
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
			}
			out <- engine.Response{Block: engine.ToolUseBlock{
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: input,
			}}
		}

		s.history = append(s.history, msg.ToParam())

		result := &engine.Result{
			FinalText:  msg.Content,
			NumTurns:   1,
			DurationMS: time.Since(start).Milliseconds(),
			Usage: engine.Usage{
				InputTokens:  resp.Usage.PromptTokens,
				OutputTokens: resp.Usage.CompletionTokens,
			},
		}
		if s.cfg.OutputFormat != nil {
			var structured map[string]any
			if err := json.Unmarshal([]byte(msg.Content), &structured); err == nil {
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
