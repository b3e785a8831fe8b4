// Package a2a defines the task-protocol data model: tasks, messages, parts
// and artifacts. Types here are plain values with explicit JSON mapping so
// they survive durable stores and the HTTP transport unchanged. The Part
// union is closed; external payloads enter through PartFromJSON, the single
// boundary parser, so internal code never branches on raw shapes.
package a2a

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author side of a message. Only the two enum values
// below are valid.
type Role string

const (
	// RoleUser marks messages authored by the calling principal.
	RoleUser Role = "user"
	// RoleAgent marks messages authored by an agent.
	RoleAgent Role = "agent"
)

// Valid reports whether the role is one of the two allowed values.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAgent }

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	// TaskStateWorking is the initial and only non-terminal state.
	TaskStateWorking TaskState = "working"
	// TaskStateCompleted marks a successfully finished exchange. A completed
	// task may be reopened by a new inbound message on the same task id.
	TaskStateCompleted TaskState = "completed"
	// TaskStateFailed is terminal.
	TaskStateFailed TaskState = "failed"
	// TaskStateCanceled is terminal.
	TaskStateCanceled TaskState = "canceled"
)

// Terminal reports whether the state permits no further requests.
// Completed is deliberately excluded: a new inbound message reopens a
// completed task for the next conversational turn.
func (s TaskState) Terminal() bool {
	return s == TaskStateFailed || s == TaskStateCanceled
}

// Part is a polymorphic segment of message content. Concrete part types
// implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text     string
	Metadata map[string]any
}

func (TextPart) isPart() {}

// DataPart is a structured data segment. For tool traffic the payload
// carries either a "tool_use" object (id, name, input) or a "tool_result"
// object (tool_use_id, content).
type DataPart struct {
	Data     map[string]any
	Metadata map[string]any
}

func (DataPart) isPart() {}

// partEnvelope is the wire shape of a part with a kind discriminator.
type partEnvelope struct {
	Kind     string         `json:"kind"`
	Text     string         `json:"text,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MarshalJSON emits the kind-discriminated wire shape.
func (p TextPart) MarshalJSON() ([]byte, error) {
	return json.Marshal(partEnvelope{Kind: "text", Text: p.Text, Metadata: p.Metadata})
}

// MarshalJSON emits the kind-discriminated wire shape.
func (p DataPart) MarshalJSON() ([]byte, error) {
	return json.Marshal(partEnvelope{Kind: "data", Data: p.Data, Metadata: p.Metadata})
}

// PartFromJSON parses one wire part into the Part union. Unrecognized kinds
// yield (nil, nil): they are dropped at the boundary rather than failing the
// whole message. Malformed JSON is an error.
func PartFromJSON(raw json.RawMessage) (Part, error) {
	var env partEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed part: %w", err)
	}
	switch env.Kind {
	case "text":
		return TextPart{Text: env.Text, Metadata: env.Metadata}, nil
	case "data":
		return DataPart{Data: env.Data, Metadata: env.Metadata}, nil
	default:
		return nil, nil
	}
}

func partsFromJSON(raws []json.RawMessage) ([]Part, error) {
	parts := make([]Part, 0, len(raws))
	for _, raw := range raws {
		p, err := PartFromJSON(raw)
		if err != nil {
			return nil, err
		}
		if p != nil {
			parts = append(parts, p)
		}
	}
	return parts, nil
}

// Message holds a role plus ordered parts. TaskID and ContextID are set on
// inbound transport messages to address the task; they are informational on
// outbound messages.
type Message struct {
	MessageID string
	Role      Role
	Parts     []Part
	TaskID    string
	ContextID string
	Metadata  map[string]any
}

// NewMessage constructs a message with a fresh id.
func NewMessage(role Role, parts ...Part) Message {
	return Message{MessageID: NewID(), Role: role, Parts: parts}
}

type messageJSON struct {
	Kind      string            `json:"kind"`
	MessageID string            `json:"messageId"`
	Role      Role              `json:"role"`
	Parts     []json.RawMessage `json:"parts"`
	TaskID    string            `json:"taskId,omitempty"`
	ContextID string            `json:"contextId,omitempty"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
}

// MarshalJSON implements the wire encoding with kind-discriminated parts.
func (m Message) MarshalJSON() ([]byte, error) {
	raws, err := rawParts(m.Parts)
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageJSON{
		Kind:      "message",
		MessageID: m.MessageID,
		Role:      m.Role,
		Parts:     raws,
		TaskID:    m.TaskID,
		ContextID: m.ContextID,
		Metadata:  m.Metadata,
	})
}

// UnmarshalJSON implements the wire decoding, parsing parts through
// PartFromJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var mj messageJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return err
	}
	parts, err := partsFromJSON(mj.Parts)
	if err != nil {
		return err
	}
	*m = Message{
		MessageID: mj.MessageID,
		Role:      mj.Role,
		Parts:     parts,
		TaskID:    mj.TaskID,
		ContextID: mj.ContextID,
		Metadata:  mj.Metadata,
	}
	return nil
}

func rawParts(parts []Part) ([]json.RawMessage, error) {
	raws := make([]json.RawMessage, 0, len(parts))
	for _, p := range parts {
		b, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		raws = append(raws, b)
	}
	return raws, nil
}

// Artifact is an ordered-parts result object attached to a task.
type Artifact struct {
	ArtifactID string
	Name       string
	Parts      []Part
}

type artifactJSON struct {
	ArtifactID string            `json:"artifactId"`
	Name       string            `json:"name,omitempty"`
	Parts      []json.RawMessage `json:"parts"`
}

// MarshalJSON implements the wire encoding.
func (a Artifact) MarshalJSON() ([]byte, error) {
	raws, err := rawParts(a.Parts)
	if err != nil {
		return nil, err
	}
	return json.Marshal(artifactJSON{ArtifactID: a.ArtifactID, Name: a.Name, Parts: raws})
}

// UnmarshalJSON implements the wire decoding.
func (a *Artifact) UnmarshalJSON(data []byte) error {
	var aj artifactJSON
	if err := json.Unmarshal(data, &aj); err != nil {
		return err
	}
	parts, err := partsFromJSON(aj.Parts)
	if err != nil {
		return err
	}
	*a = Artifact{ArtifactID: aj.ArtifactID, Name: aj.Name, Parts: parts}
	return nil
}

// TaskStatus pairs the lifecycle state with an optional status message
// (e.g. the error notice attached when a task fails).
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Task is one durable unit of conversational work. History is append-only
// from the orchestrator's perspective; OwnerID is set at creation and never
// changes. An empty OwnerID marks a legacy/untracked task that any caller
// may address.
type Task struct {
	ID        string         `json:"id"`
	ContextID string         `json:"contextId"`
	OwnerID   string         `json:"ownerId,omitempty"`
	Status    TaskStatus     `json:"status"`
	History   []Message      `json:"history"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Clone returns a copy with independent history and artifact slices so
// stores can hand out snapshots safely.
func (t *Task) Clone() *Task {
	clone := *t
	clone.History = make([]Message, len(t.History))
	copy(clone.History, t.History)
	clone.Artifacts = make([]Artifact, len(t.Artifacts))
	copy(clone.Artifacts, t.Artifacts)
	return &clone
}

// NewID generates a new unique identifier for messages, artifacts and tasks.
func NewID() string { return uuid.NewString() }
