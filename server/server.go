// Package server exposes the orchestrator over HTTP: a discovery card at the
// well-known path and a JSON-RPC endpoint carrying message/send, tasks/get
// and tasks/cancel. Caller identity is taken from an optional JWT bearer
// token; without a configured secret all requests run as the anonymous
// principal.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/agentharness/agentharness/a2a"
	"github.com/agentharness/agentharness/agent"
	"github.com/agentharness/agentharness/executor"
	"github.com/agentharness/agentharness/logging"
	"github.com/agentharness/agentharness/task"
)

// AgentCardPath is the well-known discovery endpoint.
const AgentCardPath = "/.well-known/agent-card.json"

// JSON-RPC error codes. The -32000 range carries protocol specific errors.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeTaskNotFound   = -32001
	codeTaskTerminal   = -32002
	codeAccessDenied   = -32003
)

const callerContextKey = "caller"

// AgentCard is the public discovery document describing this harness.
type AgentCard struct {
	Name               string            `json:"name"`
	Description        string            `json:"description,omitempty"`
	Version            string            `json:"version"`
	URL                string            `json:"url,omitempty"`
	Capabilities       map[string]bool   `json:"capabilities"`
	Skills             []agent.Skill     `json:"skills"`
	DefaultInputModes  []string          `json:"defaultInputModes"`
	DefaultOutputModes []string          `json:"defaultOutputModes"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// Options configures a Server.
type Options struct {
	Name        string
	Description string
	Version     string
	URL         string
	// JWTSecret enables bearer-token authentication when non-empty. The
	// token's subject claim becomes the caller principal.
	JWTSecret []byte
	Logger    logging.Logger
}

// Server binds the orchestrator to a gin HTTP engine.
type Server struct {
	exec      *executor.Executor
	store     task.Store
	registry  *agent.Registry
	card      AgentCard
	jwtSecret []byte
	logger    logging.Logger
	router    *gin.Engine
}

// New assembles the HTTP surface over an executor, task store and registry.
func New(exec *executor.Executor, store task.Store, registry *agent.Registry, optFns ...func(o *Options)) *Server {
	opts := Options{
		Name:    "agentharness",
		Version: "0.1.0",
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	s := &Server{
		exec:     exec,
		store:    store,
		registry: registry,
		card: AgentCard{
			Name:               opts.Name,
			Description:        opts.Description,
			Version:            opts.Version,
			URL:                opts.URL,
			Capabilities:       map[string]bool{"streaming": false, "pushNotifications": false},
			Skills:             registry.Skills(),
			DefaultInputModes:  []string{"text/plain"},
			DefaultOutputModes: []string{"text/plain"},
		},
		jwtSecret: opts.JWTSecret,
		logger:    opts.Logger,
	}
	if s.card.Skills == nil {
		s.card.Skills = []agent.Skill{}
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET(AgentCardPath, s.handleAgentCard)
	router.POST("/", s.authenticate, s.handleRPC)
	s.router = router
	return s
}

// Handler returns the underlying HTTP handler, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error {
	s.logger.Info("starting http server", "addr", addr)
	return s.router.Run(addr)
}

func (s *Server) handleAgentCard(c *gin.Context) {
	c.JSON(http.StatusOK, s.card)
}

// authenticate resolves the caller principal. With no secret configured every
// request is anonymous; with a secret a valid bearer token is mandatory.
func (s *Server) authenticate(c *gin.Context) {
	if len(s.jwtSecret) == 0 {
		c.Set(callerContextKey, "")
		c.Next()
		return
	}

	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(header[len(prefix):], &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		s.logger.Warn("rejected request with invalid token", "error", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if claims.Subject == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token has no subject"})
		return
	}
	c.Set(callerContextKey, claims.Subject)
	c.Next()
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

func rpcOK(id, result any) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func rpcFail(id any, code int, message string) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}}
}

func (s *Server) handleRPC(c *gin.Context) {
	var req rpcRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, rpcFail(nil, codeParseError, "parse error"))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		c.JSON(http.StatusOK, rpcFail(req.ID, codeInvalidRequest, "invalid request"))
		return
	}

	caller := c.GetString(callerContextKey)

	var resp rpcResponse
	switch req.Method {
	case "message/send":
		resp = s.messageSend(c, req, caller)
	case "tasks/get":
		resp = s.tasksGet(c, req, caller)
	case "tasks/cancel":
		resp = s.tasksCancel(c, req, caller)
	default:
		resp = rpcFail(req.ID, codeMethodNotFound, "method not found: "+req.Method)
	}
	c.JSON(http.StatusOK, resp)
}

type sendParams struct {
	Message  a2a.Message    `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *Server) messageSend(c *gin.Context, req rpcRequest, caller string) rpcResponse {
	var params sendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return rpcFail(req.ID, codeInvalidParams, "invalid params: "+err.Error())
	}
	msg := params.Message
	if msg.TaskID == "" {
		msg.TaskID = a2a.NewID()
	}
	if msg.ContextID == "" {
		msg.ContextID = a2a.NewID()
	}
	if msg.Role == "" {
		msg.Role = a2a.RoleUser
	}

	queue := &executor.MemoryQueue{}
	err := s.exec.Handle(c.Request.Context(), executor.Request{
		TaskID:    msg.TaskID,
		ContextID: msg.ContextID,
		Message:   &msg,
		Metadata:  params.Metadata,
		Caller:    caller,
	}, queue)
	switch {
	case errors.Is(err, executor.ErrInvalidRequest):
		return rpcFail(req.ID, codeInvalidParams, err.Error())
	case errors.Is(err, executor.ErrTaskTerminal):
		return rpcFail(req.ID, codeTaskTerminal, "task cannot be continued")
	case err != nil:
		s.logger.Error("message/send failed", "task_id", msg.TaskID, "error", err)
		return rpcFail(req.ID, codeInternalError, "internal error")
	}

	tsk, err := s.store.Get(c.Request.Context(), msg.TaskID)
	if err != nil {
		s.logger.Error("failed to load task after send", "task_id", msg.TaskID, "error", err)
		return rpcFail(req.ID, codeInternalError, "internal error")
	}
	return rpcOK(req.ID, tsk)
}

type taskParams struct {
	ID string `json:"id"`
}

func (s *Server) tasksGet(c *gin.Context, req rpcRequest, caller string) rpcResponse {
	var params taskParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" {
		return rpcFail(req.ID, codeInvalidParams, "invalid params: task id is required")
	}

	tsk, err := s.store.Get(c.Request.Context(), params.ID)
	if errors.Is(err, task.ErrNotFound) {
		return rpcFail(req.ID, codeTaskNotFound, "task not found")
	}
	if err != nil {
		s.logger.Error("tasks/get failed", "task_id", params.ID, "error", err)
		return rpcFail(req.ID, codeInternalError, "internal error")
	}
	// Foreign tasks are indistinguishable from missing ones.
	if tsk.OwnerID != "" && caller != "" && tsk.OwnerID != caller {
		return rpcFail(req.ID, codeTaskNotFound, "task not found")
	}
	return rpcOK(req.ID, tsk)
}

func (s *Server) tasksCancel(c *gin.Context, req rpcRequest, caller string) rpcResponse {
	var params taskParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" {
		return rpcFail(req.ID, codeInvalidParams, "invalid params: task id is required")
	}

	queue := &executor.MemoryQueue{}
	err := s.exec.Cancel(c.Request.Context(), params.ID, caller, queue)
	switch {
	case errors.Is(err, task.ErrNotFound):
		return rpcFail(req.ID, codeTaskNotFound, "task not found")
	case errors.Is(err, executor.ErrTaskTerminal):
		return rpcFail(req.ID, codeTaskTerminal, "task cannot be canceled")
	case errors.Is(err, executor.ErrAccessDenied):
		return rpcFail(req.ID, codeAccessDenied, "access denied")
	case err != nil:
		s.logger.Error("tasks/cancel failed", "task_id", params.ID, "error", err)
		return rpcFail(req.ID, codeInternalError, "internal error")
	}

	tsk, err := s.store.Get(c.Request.Context(), params.ID)
	if err != nil {
		s.logger.Error("failed to load task after cancel", "task_id", params.ID, "error", err)
		return rpcFail(req.ID, codeInternalError, "internal error")
	}
	return rpcOK(req.ID, tsk)
}
