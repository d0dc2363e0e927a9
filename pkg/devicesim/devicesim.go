// Package devicesim implements an HTTP device simulator speaking the same
// /ubus JSON-RPC dialect as the real hardware. It backs integration tests
// and lets the CLI run against localhost.
package devicesim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oasis-home/oasisctl/internal/models"
	"github.com/oasis-home/oasisctl/pkg/config"
	"github.com/oasis-home/oasisctl/pkg/oasis"
	"github.com/oasis-home/oasisctl/pkg/telemetry"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ubus status codes the simulator emits
const (
	statusOK           = 0
	statusAccessDenied = 6
)

// Server represents the simulated device
type Server struct {
	config *config.Config
	logger *logrus.Logger
	state  *deviceState
	engine *gin.Engine
	server *http.Server
}

// New creates a new simulator instance
func New(cfg *config.Config, logger *logrus.Logger) (*Server, error) {
	if cfg.Sim.Username == "" || cfg.Sim.Password == "" {
		return nil, fmt.Errorf("simulator needs sim.username and sim.password")
	}

	// Set gin mode based on log level
	if logger.Level == logrus.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create gin engine
	engine := gin.New()

	// Add middleware
	engine.Use(gin.Recovery())
	engine.Use(ginLogger(logger))

	// Add OpenTelemetry middleware if telemetry is enabled
	if cfg.Telemetry.Enabled {
		engine.Use(otelgin.Middleware("oasis-devicesim"))
	}

	// Add CORS middleware
	engine.Use(corsMiddleware())

	ttl := time.Duration(cfg.Sim.SessionTTLSec) * time.Second
	server := &Server{
		config: cfg,
		logger: logger,
		state:  newDeviceState(cfg.Sim.Username, cfg.Sim.Password, ttl),
		engine: engine,
	}

	// Setup routes
	server.setupRoutes()

	return server, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Sim.Port),
		Handler: s.engine,
	}

	s.logger.Infof("Starting device simulator on port %d", s.config.Sim.Port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Engine returns the gin engine for testing purposes
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// ExpireSessions invalidates every issued session so the next call with an
// old token answers access denied
func (s *Server) ExpireSessions() {
	s.state.expireAll()
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health check
	s.engine.GET("/alive", s.handleAlive)

	// The single ubus endpoint all device calls go through
	s.engine.POST("/ubus", s.handleUbus)
}

// handleAlive handles health check requests
func (s *Server) handleAlive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleUbus decodes the JSON-RPC envelope and dispatches on the
// (object, method) pair carried in params
func (s *Server) handleUbus(c *gin.Context) {
	tracer := otel.Tracer("oasis-devicesim")
	ctx, span := tracer.Start(c.Request.Context(), "handle_ubus")
	defer span.End()

	var req models.JSONRPCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusOK, rpcError(nil, -32700, "parse error"))
		return
	}

	id := req.ID
	if req.JSONRPC != models.JSONRPCVersion || req.Method != models.RPCMethodCall || len(req.Params) != 4 {
		c.JSON(http.StatusOK, rpcError(&id, -32600, "invalid request"))
		return
	}

	var sessionID, object, method string
	if json.Unmarshal(req.Params[0], &sessionID) != nil ||
		json.Unmarshal(req.Params[1], &object) != nil ||
		json.Unmarshal(req.Params[2], &method) != nil {
		c.JSON(http.StatusOK, rpcError(&id, -32602, "invalid params"))
		return
	}
	args := req.Params[3]

	span.SetAttributes(
		attribute.String("ubus.object", object),
		attribute.String("ubus.method", method),
	)

	// Report call metadata in traces and logs
	if s.config.Telemetry.Enabled {
		telemetry.ReportJSON(ctx, s.logger, "ubus_call", map[string]interface{}{
			"object": object,
			"method": method,
		})
	}

	result := s.dispatch(sessionID, object, method, args)
	c.JSON(http.StatusOK, models.JSONRPCResponse{
		JSONRPC: models.JSONRPCVersion,
		ID:      &id,
		Result:  result,
	})
}

// dispatch routes one decoded call to its handler. Everything except login
// requires a live session.
func (s *Server) dispatch(sessionID, object, method string, args json.RawMessage) []json.RawMessage {
	if object == oasis.ObjectSession && method == oasis.MethodLogin {
		return s.handleLogin(args)
	}

	if !s.state.authorize(sessionID) {
		return resultCode(statusAccessDenied)
	}

	switch {
	case object == oasis.ObjectOasis && method == oasis.MethodBaseInfo:
		return s.handleBaseInfo()
	case object == oasis.ObjectOasis && method == oasis.MethodSelectAISvc:
		return s.handleSelectAIService(args)
	case object == oasis.ObjectChat && method == oasis.MethodSend:
		return s.handleChatSend(args)
	case object == oasis.ObjectChat && method == oasis.MethodList:
		return s.handleChatList()
	case object == oasis.ObjectChat && method == oasis.MethodLoad:
		return s.handleChatLoad(args)
	case object == oasis.ObjectToolEdge && method == oasis.MethodToolList:
		return s.handleToolList()
	case object == oasis.ObjectToolEdge && method == oasis.MethodFuncCalling:
		return s.handleFunctionCalling(args)
	case object == oasis.ObjectToolManager && method == oasis.MethodToolEnable:
		return s.handleSetToolEnable(args, "1")
	case object == oasis.ObjectToolManager && method == oasis.MethodToolDisable:
		return s.handleSetToolEnable(args, "0")
	case object == oasis.ObjectService && method == oasis.MethodOperate:
		return s.handleOperate(args)
	case object == oasis.ObjectSystem && method == oasis.MethodInfo:
		return s.handleSystemInfo()
	default:
		s.logger.Warnf("Unknown ubus call %s.%s", object, method)
		return resultCode(statusAccessDenied)
	}
}

func (s *Server) handleLogin(args json.RawMessage) []json.RawMessage {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(args, &creds); err != nil {
		return resultCode(statusAccessDenied)
	}

	token, ok := s.state.login(creds.Username, creds.Password)
	if !ok {
		s.logger.Warnf("Rejected login for %q", creds.Username)
		return resultCode(statusAccessDenied)
	}

	return resultWith(statusOK, gin.H{
		"ubus_rpc_session": token,
		"timeout":          s.config.Sim.SessionTTLSec,
		"expires":          s.config.Sim.SessionTTLSec,
	})
}

func (s *Server) handleBaseInfo() []json.RawMessage {
	s.state.mu.Lock()
	sysmsg := append([]models.Sysmsg(nil), s.state.sysmsg...)
	services := append([]models.AIService(nil), s.state.services...)
	s.state.mu.Unlock()

	return resultWith(statusOK, gin.H{
		"sysmsg":  sysmsg,
		"service": services,
	})
}

func (s *Server) handleSelectAIService(args json.RawMessage) []json.RawMessage {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(args, &req); err != nil || req.ID == "" {
		return resultCode(statusAccessDenied)
	}

	s.state.mu.Lock()
	s.state.selected = req.ID
	s.state.mu.Unlock()
	return resultWith(statusOK, gin.H{})
}

func (s *Server) handleChatSend(args json.RawMessage) []json.RawMessage {
	var req struct {
		ID        string `json:"id"`
		SysmsgKey string `json:"sysmsg_key"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return resultCode(statusAccessDenied)
	}

	reply := "You said: " + req.Message
	c := s.state.appendChat(req.ID, req.Message, reply)

	result := models.SendResult{
		ID:      c.ID,
		Title:   c.Title,
		Content: reply,
	}

	// Canned extras so clients can exercise the full result surface
	lower := strings.ToLower(req.Message)
	if strings.Contains(lower, "weather") {
		result.ToolInfo = json.RawMessage(`{"name":"get_weather"}`)
	}
	if strings.Contains(lower, "uci") {
		result.UCIParseTbl = json.RawMessage(`{"uci_notify":true,"uci_list":{"set":[{"param":"network.lan.proto='static'"}]}}`)
	}
	if strings.Contains(lower, "reboot") {
		result.Reboot = true
	}

	return resultWith(statusOK, result)
}

// handleChatList answers with the payload encoded as a JSON string, the
// way some device firmwares double-encode it
func (s *Server) handleChatList() []json.RawMessage {
	return resultWithEncoded(statusOK, gin.H{"item": s.state.listChats()})
}

func (s *Server) handleChatLoad(args json.RawMessage) []json.RawMessage {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return resultCode(statusAccessDenied)
	}

	messages, ok := s.state.loadChat(req.ID)
	if !ok {
		return resultCode(statusAccessDenied)
	}
	return resultWithEncoded(statusOK, gin.H{"messages": messages})
}

func (s *Server) handleToolList() []json.RawMessage {
	return resultWith(statusOK, gin.H{"tools": s.state.toolTable()})
}

func (s *Server) handleSetToolEnable(args json.RawMessage, enable string) []json.RawMessage {
	var req struct {
		Tool string `json:"tool"`
	}
	if err := json.Unmarshal(args, &req); err != nil || !s.state.setToolEnable(req.Tool, enable) {
		return resultCode(statusAccessDenied)
	}
	return resultWith(statusOK, gin.H{})
}

func (s *Server) handleFunctionCalling(args json.RawMessage) []json.RawMessage {
	var req struct {
		Tool  string `json:"tool"`
		Param string `json:"param"`
	}
	if err := json.Unmarshal(args, &req); err != nil || req.Tool == "" {
		return resultCode(statusAccessDenied)
	}

	switch req.Tool {
	case "restart_service":
		service := "network"
		var param struct {
			Service string `json:"service"`
		}
		if json.Unmarshal([]byte(req.Param), &param) == nil && param.Service != "" {
			service = param.Service
		}
		return resultWith(statusOK, gin.H{"result": "ok", "restart_service": service})
	case "shutdown":
		return resultWith(statusOK, gin.H{"result": "ok", "shutdown": true})
	default:
		return resultWith(statusOK, gin.H{"result": "ok", "echo": req.Param})
	}
}

func (s *Server) handleOperate(args json.RawMessage) []json.RawMessage {
	var req struct {
		Cmd     string `json:"cmd"`
		Service string `json:"service"`
	}
	if err := json.Unmarshal(args, &req); err != nil || req.Cmd == "" {
		return resultCode(statusAccessDenied)
	}

	s.logger.Infof("Operate %s on %s", req.Cmd, req.Service)
	return resultWith(statusOK, gin.H{"result": "ok"})
}

// handleSystemInfo mirrors the standard ubus system.info answer using live
// host figures
func (s *Server) handleSystemInfo() []json.RawMessage {
	info := gin.H{"localtime": time.Now().Unix()}

	if uptime, err := host.Uptime(); err == nil {
		info["uptime"] = uptime
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info["memory"] = gin.H{
			"total":     vm.Total,
			"free":      vm.Free,
			"available": vm.Available,
		}
	}

	return resultWith(statusOK, info)
}

// resultCode builds a status-only ubus result
func resultCode(code int) []json.RawMessage {
	return []json.RawMessage{json.RawMessage(strconv.Itoa(code))}
}

// resultWith builds a [code, payload] ubus result
func resultWith(code int, payload any) []json.RawMessage {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return resultCode(statusAccessDenied)
	}
	return append(resultCode(code), encoded)
}

// resultWithEncoded stringifies the payload before placing it in the
// result, reproducing the double-encoded variant seen in the wild
func resultWithEncoded(code int, payload any) []json.RawMessage {
	inner, err := json.Marshal(payload)
	if err != nil {
		return resultCode(statusAccessDenied)
	}
	outer, err := json.Marshal(string(inner))
	if err != nil {
		return resultCode(statusAccessDenied)
	}
	return append(resultCode(code), outer)
}

// rpcError builds a JSON-RPC level error envelope
func rpcError(id *int64, code int, message string) models.JSONRPCResponse {
	return models.JSONRPCResponse{
		JSONRPC: models.JSONRPCVersion,
		ID:      id,
		Error:   &models.JSONRPCError{Code: code, Message: message},
	}
}

// ginLogger creates a gin logger middleware using logrus
func ginLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		// Process request
		c.Next()

		// Calculate latency
		latency := time.Since(start)

		// Get status code
		statusCode := c.Writer.Status()

		// Build log entry
		entry := logger.WithFields(logrus.Fields{
			"status":     statusCode,
			"method":     c.Request.Method,
			"path":       path,
			"ip":         c.ClientIP(),
			"latency":    latency,
			"user_agent": c.Request.UserAgent(),
		})

		if raw != "" {
			entry = entry.WithField("query", raw)
		}

		// Log based on status code
		if statusCode >= 500 {
			entry.Error("Server error")
		} else if statusCode >= 400 {
			entry.Warn("Client error")
		} else {
			entry.Info("Request completed")
		}
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
