// Package convert maps between the task protocol's message representation
// and the execution engine's content-block representation. All functions are
// pure and stateless; unrecognized structured payloads are dropped silently
// on the engine-bound path rather than failing the pipeline.
package convert

import (
	"fmt"
	"strings"

	"github.com/agentharness/agentharness/a2a"
	"github.com/agentharness/agentharness/engine"
)

const (
	keyToolUse    = "tool_use"
	keyToolResult = "tool_result"
)

// RoleToEngine maps a protocol role onto the engine's role vocabulary.
// The mapping is a strict two-value enum: user stays user, agent becomes
// assistant.
func RoleToEngine(role a2a.Role) string {
	if role == a2a.RoleUser {
		return "user"
	}
	return "assistant"
}

// RoleFromEngine is the inverse of RoleToEngine.
func RoleFromEngine(role string) a2a.Role {
	if role == "user" {
		return a2a.RoleUser
	}
	return a2a.RoleAgent
}

// PartsFromBlocks converts engine content blocks to protocol parts,
// preserving order. Text becomes a text part; tool invocations and results
// become data parts with tool_use / tool_result payloads.
func PartsFromBlocks(blocks []engine.ContentBlock) []a2a.Part {
	parts := make([]a2a.Part, 0, len(blocks))
	for _, block := range blocks {
		switch b := block.(type) {
		case engine.TextBlock:
			parts = append(parts, a2a.TextPart{Text: b.Text})
		case engine.ToolUseBlock:
			parts = append(parts, a2a.DataPart{Data: map[string]any{
				keyToolUse: map[string]any{
					"id":    b.ID,
					"name":  b.Name,
					"input": b.Input,
				},
			}})
		case engine.ToolResultBlock:
			parts = append(parts, a2a.DataPart{Data: map[string]any{
				keyToolResult: map[string]any{
					"tool_use_id": b.ToolUseID,
					"content":     b.Content,
				},
			}})
		}
	}
	return parts
}

// MessageFromText builds a protocol message with a single text part.
func MessageFromText(role a2a.Role, text string) a2a.Message {
	return a2a.NewMessage(role, a2a.TextPart{Text: text})
}

// MessageFromBlocks builds a protocol message from engine content blocks.
func MessageFromBlocks(role a2a.Role, blocks []engine.ContentBlock) a2a.Message {
	return a2a.NewMessage(role, PartsFromBlocks(blocks)...)
}

// blockFromData converts a data part's payload to an engine block. Returns
// nil when the payload does not carry a recognized tool structure.
func blockFromData(data map[string]any) engine.ContentBlock {
	if raw, ok := data[keyToolUse]; ok {
		tu, ok := raw.(map[string]any)
		if !ok {
			return nil
		}
		input, _ := tu["input"].(map[string]any)
		return engine.ToolUseBlock{
			ID:    stringValue(tu["id"]),
			Name:  stringValue(tu["name"]),
			Input: input,
		}
	}
	if raw, ok := data[keyToolResult]; ok {
		tr, ok := raw.(map[string]any)
		if !ok {
			return nil
		}
		return engine.ToolResultBlock{
			ToolUseID: stringValue(tr["tool_use_id"]),
			Content:   tr["content"],
		}
	}
	return nil
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// HistoryToEngineMessages converts protocol message history to the engine's
// message shape. Messages whose parts yield no convertible blocks are
// omitted entirely.
func HistoryToEngineMessages(history []a2a.Message) []engine.Message {
	messages := make([]engine.Message, 0, len(history))
	for _, msg := range history {
		blocks := make([]engine.ContentBlock, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case a2a.TextPart:
				blocks = append(blocks, engine.TextBlock{Text: p.Text})
			case a2a.DataPart:
				if b := blockFromData(p.Data); b != nil {
					blocks = append(blocks, b)
				}
			}
		}
		if len(blocks) > 0 {
			messages = append(messages, engine.Message{Role: RoleToEngine(msg.Role), Content: blocks})
		}
	}
	return messages
}

// TextFromParts concatenates the content of all text parts, newline-joined,
// ignoring data parts. Returns the empty string when there is no text.
func TextFromParts(parts []a2a.Part) string {
	var texts []string
	for _, part := range parts {
		if tp, ok := part.(a2a.TextPart); ok {
			texts = append(texts, tp.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// TextArtifact wraps a text result into a protocol artifact.
func TextArtifact(text, name string) a2a.Artifact {
	if name == "" {
		name = "result"
	}
	return a2a.Artifact{
		ArtifactID: a2a.NewID(),
		Name:       name,
		Parts:      []a2a.Part{a2a.TextPart{Text: text}},
	}
}
