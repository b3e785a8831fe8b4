package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentharness/agentharness/a2a"
	"github.com/agentharness/agentharness/engine"
)

func TestRoleMapping(t *testing.T) {
	assert.Equal(t, "user", RoleToEngine(a2a.RoleUser))
	assert.Equal(t, "assistant", RoleToEngine(a2a.RoleAgent))
	assert.Equal(t, a2a.RoleUser, RoleFromEngine("user"))
	assert.Equal(t, a2a.RoleAgent, RoleFromEngine("assistant"))
}

func TestTextFromParts(t *testing.T) {
	parts := []a2a.Part{
		a2a.TextPart{Text: "a"},
		a2a.DataPart{Data: map[string]any{"k": "v"}},
		a2a.TextPart{Text: "b"},
	}
	assert.Equal(t, "a\nb", TextFromParts(parts))
	assert.Equal(t, "", TextFromParts(nil))
	assert.Equal(t, "", TextFromParts([]a2a.Part{a2a.DataPart{Data: map[string]any{}}}))
}

func TestPartsFromBlocks_ToolUse(t *testing.T) {
	blocks := []engine.ContentBlock{
		engine.TextBlock{Text: "thinking"},
		engine.ToolUseBlock{ID: "t1", Name: "search", Input: map[string]any{"q": "go"}},
		engine.ToolResultBlock{ToolUseID: "t1", Content: "results"},
	}

	parts := PartsFromBlocks(blocks)
	require.Len(t, parts, 3)

	tp, ok := parts[0].(a2a.TextPart)
	require.True(t, ok)
	assert.Equal(t, "thinking", tp.Text)

	dp, ok := parts[1].(a2a.DataPart)
	require.True(t, ok)
	tu, ok := dp.Data["tool_use"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "t1", tu["id"])
	assert.Equal(t, "search", tu["name"])

	dp2, ok := parts[2].(a2a.DataPart)
	require.True(t, ok)
	tr, ok := dp2.Data["tool_result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "t1", tr["tool_use_id"])
	assert.Equal(t, "results", tr["content"])
}

func TestHistoryToEngineMessages_RoundTrip(t *testing.T) {
	blocks := []engine.ContentBlock{
		engine.ToolUseBlock{ID: "t1", Name: "search", Input: map[string]any{"q": "go"}},
	}
	history := []a2a.Message{
		MessageFromText(a2a.RoleUser, "find go docs"),
		MessageFromBlocks(a2a.RoleAgent, blocks),
	}

	messages := HistoryToEngineMessages(history)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "assistant", messages[1].Role)

	require.Len(t, messages[1].Content, 1)
	tu, ok := messages[1].Content[0].(engine.ToolUseBlock)
	require.True(t, ok)
	assert.Equal(t, "t1", tu.ID)
	assert.Equal(t, "search", tu.Name)
	assert.Equal(t, map[string]any{"q": "go"}, tu.Input)
}

func TestHistoryToEngineMessages_DropsUnconvertible(t *testing.T) {
	history := []a2a.Message{
		MessageFromText(a2a.RoleUser, "hi"),
		a2a.NewMessage(a2a.RoleAgent, a2a.DataPart{Data: map[string]any{"custom": "payload"}}),
	}

	messages := HistoryToEngineMessages(history)
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].Role)
}

func TestTextArtifact(t *testing.T) {
	a := TextArtifact("report body", "report")
	assert.NotEmpty(t, a.ArtifactID)
	assert.Equal(t, "report", a.Name)
	assert.Equal(t, "report body", TextFromParts(a.Parts))

	defaulted := TextArtifact("x", "")
	assert.Equal(t, "result", defaulted.Name)
}
