package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentharness/agentharness/a2a"
	"github.com/agentharness/agentharness/agent"
	"github.com/agentharness/agentharness/engine"
	"github.com/agentharness/agentharness/executor"
	"github.com/agentharness/agentharness/pool"
	"github.com/agentharness/agentharness/task"
)

func newTestServer(t *testing.T, optFns ...func(o *Options)) (*Server, *task.InMemoryStore) {
	t.Helper()

	a, err := agent.New(agent.Config{
		Name:        "Assistant",
		Description: "Test assistant",
		Skills:      []agent.Skill{{ID: "chat", Name: "Chat", Description: "General chat"}},
	}, nil)
	require.NoError(t, err)

	eng := engine.NewMockEngine()
	eng.AddResponse("hello", "hi there")
	store := task.NewInMemoryStore()
	p := pool.New(eng)
	t.Cleanup(p.Shutdown)

	registry := agent.NewRegistry(nil, a)
	exec := executor.New(registry, store, p)
	return New(exec, store, registry, optFns...), store
}

func postRPC(t *testing.T, srv *Server, body string, headers map[string]string) (*httptest.ResponseRecorder, rpcResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	var resp rpcResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func sendBody(taskID, contextID, text string) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{
		"kind":"message","messageId":"m1","role":"user","taskId":%q,"contextId":%q,
		"parts":[{"kind":"text","text":%q}]}}}`, taskID, contextID, text)
}

func decodeTask(t *testing.T, result any) *a2a.Task {
	t.Helper()
	data, err := json.Marshal(result)
	require.NoError(t, err)
	var tsk a2a.Task
	require.NoError(t, json.Unmarshal(data, &tsk))
	return &tsk
}

func TestAgentCard(t *testing.T) {
	srv, _ := newTestServer(t, func(o *Options) {
		o.Name = "test-harness"
		o.Description = "A test harness"
		o.Version = "1.2.3"
		o.URL = "http://example.test"
	})

	req := httptest.NewRequest(http.MethodGet, AgentCardPath, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var card AgentCard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &card))
	assert.Equal(t, "test-harness", card.Name)
	assert.Equal(t, "1.2.3", card.Version)
	assert.Equal(t, "http://example.test", card.URL)
	require.Len(t, card.Skills, 1)
	assert.Equal(t, "chat", card.Skills[0].ID)
	assert.Contains(t, card.Capabilities, "streaming")
	assert.Equal(t, []string{"text/plain"}, card.DefaultInputModes)
}

func TestMessageSend(t *testing.T) {
	srv, _ := newTestServer(t)

	w, resp := postRPC(t, srv, sendBody("task-1", "ctx-1", "hello"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Nil(t, resp.Error)

	tsk := decodeTask(t, resp.Result)
	assert.Equal(t, "task-1", tsk.ID)
	assert.Equal(t, a2a.TaskStateCompleted, tsk.Status.State)
	require.Len(t, tsk.History, 2)
}

func TestMessageSend_GeneratesIDs(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{
		"kind":"message","messageId":"m1","role":"user",
		"parts":[{"kind":"text","text":"hello"}]}}}`
	_, resp := postRPC(t, srv, body, nil)
	require.Nil(t, resp.Error)

	tsk := decodeTask(t, resp.Result)
	assert.NotEmpty(t, tsk.ID)
	assert.NotEmpty(t, tsk.ContextID)
}

func TestTasksGet(t *testing.T) {
	srv, _ := newTestServer(t)

	_, resp := postRPC(t, srv, sendBody("task-1", "ctx-1", "hello"), nil)
	require.Nil(t, resp.Error)

	_, got := postRPC(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tasks/get","params":{"id":"task-1"}}`, nil)
	require.Nil(t, got.Error)
	tsk := decodeTask(t, got.Result)
	assert.Equal(t, "task-1", tsk.ID)
	assert.Equal(t, a2a.TaskStateCompleted, tsk.Status.State)
}

func TestTasksGet_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	_, resp := postRPC(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tasks/get","params":{"id":"missing"}}`, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeTaskNotFound, resp.Error.Code)
}

func TestTasksCancel(t *testing.T) {
	srv, _ := newTestServer(t)

	_, resp := postRPC(t, srv, sendBody("task-1", "ctx-1", "hello"), nil)
	require.Nil(t, resp.Error)

	_, canceled := postRPC(t, srv, `{"jsonrpc":"2.0","id":3,"method":"tasks/cancel","params":{"id":"task-1"}}`, nil)
	require.Nil(t, canceled.Error)
	tsk := decodeTask(t, canceled.Result)
	assert.Equal(t, a2a.TaskStateCanceled, tsk.Status.State)
}

func TestRPC_MethodNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	_, resp := postRPC(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tasks/unknown"}`, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestRPC_InvalidVersion(t *testing.T) {
	srv, _ := newTestServer(t)
	_, resp := postRPC(t, srv, `{"jsonrpc":"1.0","id":1,"method":"tasks/get"}`, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidRequest, resp.Error.Code)
}

func signToken(t *testing.T, secret []byte, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestAuth_RequiredWhenSecretSet(t *testing.T) {
	secret := []byte("test-secret")
	srv, _ := newTestServer(t, func(o *Options) { o.JWTSecret = secret })

	w, _ := postRPC(t, srv, sendBody("task-1", "ctx-1", "hello"), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = postRPC(t, srv, sendBody("task-1", "ctx-1", "hello"), map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_CallerBecomesOwner(t *testing.T) {
	secret := []byte("test-secret")
	srv, store := newTestServer(t, func(o *Options) { o.JWTSecret = secret })

	headers := map[string]string{"Authorization": "Bearer " + signToken(t, secret, "alice")}
	w, resp := postRPC(t, srv, sendBody("task-1", "ctx-1", "hello"), headers)
	require.Equal(t, http.StatusOK, w.Code)
	require.Nil(t, resp.Error)

	tsk, err := store.Get(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", tsk.OwnerID)
}

func TestAuth_ForeignTaskHidden(t *testing.T) {
	secret := []byte("test-secret")
	srv, _ := newTestServer(t, func(o *Options) { o.JWTSecret = secret })

	aliceHeaders := map[string]string{"Authorization": "Bearer " + signToken(t, secret, "alice")}
	bobHeaders := map[string]string{"Authorization": "Bearer " + signToken(t, secret, "bob")}

	_, resp := postRPC(t, srv, sendBody("task-1", "ctx-1", "hello"), aliceHeaders)
	require.Nil(t, resp.Error)

	_, got := postRPC(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tasks/get","params":{"id":"task-1"}}`, bobHeaders)
	require.NotNil(t, got.Error)
	assert.Equal(t, codeTaskNotFound, got.Error.Code)

	_, canceled := postRPC(t, srv, `{"jsonrpc":"2.0","id":3,"method":"tasks/cancel","params":{"id":"task-1"}}`, bobHeaders)
	require.NotNil(t, canceled.Error)
	assert.Equal(t, codeAccessDenied, canceled.Error.Code)
}

func TestTasksCancel_AlreadyCanceled(t *testing.T) {
	srv, _ := newTestServer(t)

	_, resp := postRPC(t, srv, sendBody("task-1", "ctx-1", "hello"), nil)
	require.Nil(t, resp.Error)

	_, first := postRPC(t, srv, `{"jsonrpc":"2.0","id":3,"method":"tasks/cancel","params":{"id":"task-1"}}`, nil)
	require.Nil(t, first.Error)

	_, second := postRPC(t, srv, `{"jsonrpc":"2.0","id":4,"method":"tasks/cancel","params":{"id":"task-1"}}`, nil)
	require.NotNil(t, second.Error)
	assert.Equal(t, codeTaskTerminal, second.Error.Code)
}
