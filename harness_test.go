package agentharness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentharness/agentharness/a2a"
	"github.com/agentharness/agentharness/agent"
	"github.com/agentharness/agentharness/client"
	"github.com/agentharness/agentharness/convert"
	"github.com/agentharness/agentharness/engine"
	"github.com/agentharness/agentharness/executor"
)

func TestHarness_EndToEnd(t *testing.T) {
	eng := engine.NewMockEngine()
	eng.AddResponse("hello", "hi there")

	h := New(func(o *Options) { o.Engine = eng })
	defer h.Shutdown()

	require.NoError(t, h.Agent(agent.Config{
		Name:   "Assistant",
		Skills: []agent.Skill{{ID: "chat", Name: "Chat"}},
	}))

	msg := convert.MessageFromText(a2a.RoleUser, "hello")
	tsk, err := h.Handle(context.Background(), executor.Request{
		TaskID:    "task-1",
		ContextID: "ctx-1",
		Message:   &msg,
	})
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, tsk.Status.State)
	require.Len(t, tsk.History, 2)
	assert.Equal(t, "hi there", convert.TextFromParts(tsk.History[1].Parts))

	canceled, err := h.Cancel(context.Background(), "task-1", "")
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCanceled, canceled.Status.State)
}

func TestHarness_CustomLoop(t *testing.T) {
	h := New()
	defer h.Shutdown()

	require.NoError(t, h.AgentLoop(agent.Config{
		Name:   "Echo",
		Skills: []agent.Skill{{ID: "echo", Name: "Echo"}},
	}, func(ctx context.Context, prompt string, actx *agent.Context, cl *client.Client) (any, error) {
		return "echo: " + prompt, nil
	}))

	msg := convert.MessageFromText(a2a.RoleUser, "ping")
	tsk, err := h.Handle(context.Background(), executor.Request{
		TaskID:    "task-1",
		ContextID: "ctx-1",
		Message:   &msg,
	})
	require.NoError(t, err)
	require.Len(t, tsk.Artifacts, 1)
	assert.Equal(t, "echo: ping", convert.TextFromParts(tsk.Artifacts[0].Parts))
}

func TestHarness_RejectsInvalidAgent(t *testing.T) {
	h := New()
	defer h.Shutdown()

	err := h.Agent(agent.Config{Name: ""})
	var verr *agent.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestHarness_ServerWiring(t *testing.T) {
	h := New(func(o *Options) { o.Name = "wired" })
	defer h.Shutdown()

	require.NoError(t, h.Agent(agent.Config{
		Name:   "Assistant",
		Skills: []agent.Skill{{ID: "chat", Name: "Chat"}},
	}))

	srv := h.Server()
	assert.NotNil(t, srv)
	assert.NotNil(t, srv.Handler())
}
