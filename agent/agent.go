// Package agent defines registered agents, their skills and engine
// configuration, plus the read-only context handed to custom execution
// loops. Agents are registered once at startup; the registry built from them
// is immutable and read-only at request time.
package agent

import (
	"context"
	"fmt"

	"github.com/agentharness/agentharness/client"
	"github.com/agentharness/agentharness/engine"
)

// DefaultModel is used when an agent config does not name a model.
const DefaultModel = "claude-sonnet-4-20250514"

// Skill is a named capability advertised by an agent, used for
// request-to-agent routing and the discovery card.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

// Config holds the declarative configuration of an agent.
type Config struct {
	Name           string
	Description    string
	Skills         []Skill
	SystemPrompt   string
	Tools          []string
	MaxTurns       int
	Model          string
	MCPServers     map[string]any
	SettingSources []string
	OutputFormat   map[string]any
}

// EngineConfig derives the execution engine configuration from the agent
// config, applying the model default.
func (c Config) EngineConfig() engine.Config {
	model := c.Model
	if model == "" {
		model = DefaultModel
	}
	return engine.Config{
		SystemPrompt:   c.SystemPrompt,
		AllowedTools:   c.Tools,
		Model:          model,
		MaxTurns:       c.MaxTurns,
		MCPServers:     c.MCPServers,
		SettingSources: c.SettingSources,
		OutputFormat:   c.OutputFormat,
	}
}

// HistoryMessage is one prior conversational turn in the flattened text
// shape handed to custom loops.
type HistoryMessage struct {
	Role    string
	Content string
}

// Context is the read-only execution context passed to custom agent loops.
type Context struct {
	TaskID         string
	ContextID      string
	MessageHistory []HistoryMessage
}

// Func is a custom execution loop. It receives the prompt text extracted
// from the inbound message, the read-only context and a client bound to the
// pooled engine session, and returns the final result (string or structured
// value).
type Func func(ctx context.Context, prompt string, actx *Context, cl *client.Client) (any, error)

// Agent pairs a validated config with an optional custom execution loop.
// A nil Func means the default single-call behavior.
type Agent struct {
	Config Config
	Func   Func
}

// ValidationError reports an invalid agent configuration field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid agent config: %s: %s", e.Field, e.Message)
}

// New validates cfg and constructs an Agent. Invariants are checked at
// construction time so a registered agent can always be executed.
func New(cfg Config, fn Func) (*Agent, error) {
	if cfg.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if len(cfg.Skills) == 0 {
		return nil, &ValidationError{Field: "skills", Message: "must declare at least one skill"}
	}
	for i, s := range cfg.Skills {
		if s.ID == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("skills[%d].id", i), Message: "must not be empty"}
		}
		if s.Name == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("skills[%d].name", i), Message: "must not be empty"}
		}
	}
	if cfg.MaxTurns < 0 {
		return nil, &ValidationError{Field: "maxTurns", Message: "must be positive when set"}
	}
	return &Agent{Config: cfg, Func: fn}, nil
}
