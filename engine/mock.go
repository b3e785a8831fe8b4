package engine

import (
	"context"
	"fmt"
	"sync"
)

// MockEngine is a lightweight in-memory Engine useful for tests & examples.
// It records opens, closes and submitted prompts, serves canned responses
// and can be made to fail or block for cancellation tests.
type MockEngine struct {
	mu        sync.Mutex
	responses map[string]string
	sessions  []*MockSession

	// OpenErr, when set, is returned by Open.
	OpenErr error
	// SubmitErr, when set, is surfaced on the error channel of every Submit.
	SubmitErr error
	// BlockSubmit makes Submit wait for ctx cancellation before finishing,
	// simulating a long engine round-trip.
	BlockSubmit bool
}

// NewMockEngine constructs an empty mock engine.
func NewMockEngine() *MockEngine {
	return &MockEngine{responses: make(map[string]string)}
}

// AddResponse registers a deterministic canned completion for a prompt.
func (m *MockEngine) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Open implements Engine.
func (m *MockEngine) Open(_ context.Context, cfg Config) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	s := &MockSession{engine: m, Config: cfg}
	m.sessions = append(m.sessions, s)
	return s, nil
}

// Opens returns the number of sessions opened so far.
func (m *MockEngine) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sessions returns all sessions opened so far, in order.
func (m *MockEngine) Sessions() []*MockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockSession, len(m.sessions))
	copy(out, m.sessions)
	return out
}

// MockSession is the session type produced by MockEngine.
type MockSession struct {
	engine *MockEngine
	Config Config

	mu      sync.Mutex
	prompts []string
	closed  bool
}

// Submit implements Session. It echoes the canned response (or a default)
// as a single text block followed by the terminal result.
func (s *MockSession) Submit(ctx context.Context, prompt string) (<-chan Response, <-chan error) {
	out := make(chan Response, 4)
	errCh := make(chan error, 1)

	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	go func() {
		defer close(out)
		defer close(errCh)

		s.engine.mu.Lock()
		submitErr := s.engine.SubmitErr
		block := s.engine.BlockSubmit
		text, ok := s.engine.responses[prompt]
		s.engine.mu.Unlock()

		if block {
			<-ctx.Done()
			errCh <- ctx.Err()
			return
		}
		if submitErr != nil {
			errCh <- submitErr
			return
		}
		if !ok {
			text = fmt.Sprintf("Mock response to: %s", prompt)
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		case out <- Response{Block: TextBlock{Text: text}}:
		}
		out <- Response{Result: &Result{FinalText: text, NumTurns: 1}}
	}()

	return out, errCh
}

// Prompts returns the prompts submitted on this session, in order.
func (s *MockSession) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.prompts))
	copy(out, s.prompts)
	return out
}

// Close implements Session.
func (s *MockSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *MockSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
