package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAgent(t *testing.T, name string, skillIDs ...string) *Agent {
	t.Helper()
	skills := make([]Skill, len(skillIDs))
	for i, id := range skillIDs {
		skills[i] = Skill{ID: id, Name: id}
	}
	a, err := New(Config{Name: name, Skills: skills}, nil)
	require.NoError(t, err)
	return a
}

func TestRegistry_Resolve(t *testing.T) {
	chat := mustAgent(t, "Chat", "chat")
	code := mustAgent(t, "Code", "code-review", "code-gen")
	reg := NewRegistry(nil, chat, code)

	assert.Same(t, code, reg.Resolve("code-review"))
	assert.Same(t, code, reg.Resolve("code-gen"))
	assert.Same(t, chat, reg.Resolve("chat"))
}

func TestRegistry_FallbackToDefault(t *testing.T) {
	chat := mustAgent(t, "Chat", "chat")
	reg := NewRegistry(nil, chat)

	assert.Same(t, chat, reg.Resolve(""))
	assert.Same(t, chat, reg.Resolve("unknown-skill"))
}

func TestRegistry_DuplicateSkillFirstWins(t *testing.T) {
	first := mustAgent(t, "First", "chat")
	second := mustAgent(t, "Second", "chat")
	reg := NewRegistry(nil, first, second)

	assert.Same(t, first, reg.Resolve("chat"))
}

func TestRegistry_Empty(t *testing.T) {
	reg := NewRegistry(nil)
	assert.Nil(t, reg.Resolve("anything"))
	assert.Nil(t, reg.Default())
	assert.Empty(t, reg.Skills())
}

func TestRegistry_Skills(t *testing.T) {
	chat := mustAgent(t, "Chat", "chat")
	code := mustAgent(t, "Code", "code-review")
	reg := NewRegistry(nil, chat, code)

	skills := reg.Skills()
	require.Len(t, skills, 2)
	assert.Equal(t, "chat", skills[0].ID)
	assert.Equal(t, "code-review", skills[1].ID)
}
