// Package oasis provides typed wrappers for every known (object, method)
// pair of the device's ubus API.
package oasis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oasis-home/oasisctl/internal/models"
	"github.com/oasis-home/oasisctl/pkg/rpc"
)

// ubus object and method names understood by the device
const (
	ObjectSession     = "session"
	MethodLogin       = "login"
	ObjectOasis       = "oasis"
	MethodBaseInfo    = "base_info"
	MethodSelectAISvc = "select_ai_service"
	ObjectChat        = "oasis.chat"
	MethodSend        = "send"
	MethodList        = "list"
	MethodLoad        = "load"
	ObjectToolEdge    = "oasis.tool.edge"
	MethodToolList    = "tool_list"
	MethodFuncCalling = "function_calling"
	ObjectToolManager = "oasis.tool.manager"
	MethodToolEnable  = "set_tool_enabled"
	MethodToolDisable = "set_tool_disabled"
	ObjectService     = "oasis.service"
	MethodOperate     = "operate"
	ObjectSystem      = "system"
	MethodInfo        = "info"
)

// AuthError indicates a login exchange that completed at the RPC level but
// did not yield a usable session token
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// API is the typed surface over the raw RPC client
type API struct {
	client *rpc.Client
}

// NewAPI wraps an RPC client
func NewAPI(client *rpc.Client) *API {
	return &API{client: client}
}

// Client exposes the underlying RPC client (the session manager re-points
// its base URL on login)
func (a *API) Client() *rpc.Client {
	return a.client
}

// Login authenticates with the well-known null session id and returns the
// session token the device issued
func (a *API) Login(ctx context.Context, username, password string) (string, error) {
	raw, err := a.client.Call(ctx, rpc.NullSessionID, ObjectSession, MethodLogin, map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", err
	}

	var payload struct {
		Session string `json:"ubus_rpc_session"`
	}
	if err := rpc.DecodePayload(raw, &payload); err != nil {
		return "", &AuthError{Reason: "unreadable login payload"}
	}
	if payload.Session == "" {
		return "", &AuthError{Reason: "login payload has no ubus_rpc_session"}
	}
	return payload.Session, nil
}

// BaseInfo fetches the system-message profiles and AI services the device
// offers. Entries without a key/identifier are skipped; missing titles and
// names fall back to the key.
func (a *API) BaseInfo(ctx context.Context, sessionID string) (*models.BaseInfo, error) {
	raw, err := a.client.Call(ctx, sessionID, ObjectOasis, MethodBaseInfo, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Sysmsg []struct {
			Key   string `json:"key"`
			Title string `json:"title"`
		} `json:"sysmsg"`
		Service []struct {
			Identifier string `json:"identifier"`
			Name       string `json:"name"`
			Model      string `json:"model"`
		} `json:"service"`
	}
	if err := rpc.DecodePayload(raw, &payload); err != nil {
		return nil, err
	}

	info := &models.BaseInfo{}
	for _, m := range payload.Sysmsg {
		if m.Key == "" {
			continue
		}
		title := m.Title
		if title == "" {
			title = m.Key
		}
		info.Sysmsg = append(info.Sysmsg, models.Sysmsg{Key: m.Key, Title: title})
	}
	for _, s := range payload.Service {
		if s.Identifier == "" {
			continue
		}
		name := s.Name
		if name == "" {
			name = s.Identifier
		}
		info.Services = append(info.Services, models.AIService{ID: s.Identifier, Name: name, Model: s.Model})
	}
	return info, nil
}

// SelectAIService switches the backend model used for subsequent chats
func (a *API) SelectAIService(ctx context.Context, sessionID string, svc models.AIService) error {
	_, err := a.client.Call(ctx, sessionID, ObjectOasis, MethodSelectAISvc, map[string]string{
		"id":    svc.ID,
		"name":  svc.Name,
		"model": svc.Model,
	})
	return err
}

// Send delivers one chat message. An empty chatID asks the device to start
// a new conversation; the assigned id comes back in the result.
func (a *API) Send(ctx context.Context, sessionID, chatID, message, sysmsgKey string) (*models.SendResult, error) {
	raw, err := a.client.Call(ctx, sessionID, ObjectChat, MethodSend, map[string]string{
		"id":         chatID,
		"sysmsg_key": sysmsgKey,
		"message":    message,
	})
	if err != nil {
		return nil, err
	}

	var result models.SendResult
	if err := rpc.DecodePayload(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListChats returns the stored conversation summaries
func (a *API) ListChats(ctx context.Context, sessionID string) ([]models.ChatSummary, error) {
	raw, err := a.client.Call(ctx, sessionID, ObjectChat, MethodList, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Item []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"item"`
	}
	if err := rpc.DecodePayload(raw, &payload); err != nil {
		return nil, err
	}

	var out []models.ChatSummary
	for _, it := range payload.Item {
		if strings.TrimSpace(it.ID) == "" {
			continue
		}
		out = append(out, models.ChatSummary{ID: it.ID, Title: it.Title})
	}
	return out, nil
}

// LoadChat returns the transcript of one conversation
func (a *API) LoadChat(ctx context.Context, sessionID, chatID string) ([]models.ChatMessage, error) {
	raw, err := a.client.Call(ctx, sessionID, ObjectChat, MethodLoad, map[string]string{"id": chatID})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	if err := rpc.DecodePayload(raw, &payload); err != nil {
		return nil, err
	}

	var out []models.ChatMessage
	for _, m := range payload.Messages {
		if m.Role == "" {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// ToolList returns the device-side tools. The device encodes tools as a
// name-keyed object with enable as "1"/"true" strings.
func (a *API) ToolList(ctx context.Context, sessionID string) ([]models.ToolInfo, error) {
	raw, err := a.client.Call(ctx, sessionID, ObjectToolEdge, MethodToolList, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Tools map[string]struct {
			Name     string          `json:"name"`
			Server   string          `json:"server"`
			Enable   json.RawMessage `json:"enable"`
			Property []string        `json:"property"`
			Required []string        `json:"required"`
		} `json:"tools"`
	}
	if err := rpc.DecodePayload(raw, &payload); err != nil {
		return nil, err
	}

	var out []models.ToolInfo
	for _, t := range payload.Tools {
		if t.Name == "" {
			continue
		}
		out = append(out, models.ToolInfo{
			Name:       t.Name,
			Server:     t.Server,
			Enabled:    parseEnableFlag(t.Enable),
			Properties: t.Property,
			Required:   t.Required,
		})
	}
	return out, nil
}

// parseEnableFlag accepts "1", "true" (any case), or a plain boolean
func parseEnableFlag(raw json.RawMessage) bool {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s == "1" || strings.EqualFold(s, "true")
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	return false
}

// SetToolEnabled flips a tool's enable gate on the device
func (a *API) SetToolEnabled(ctx context.Context, sessionID, name string, enabled bool) error {
	method := MethodToolDisable
	if enabled {
		method = MethodToolEnable
	}
	_, err := a.client.Call(ctx, sessionID, ObjectToolManager, method, map[string]string{"tool": name})
	return err
}

// FunctionCalling invokes a device tool directly and returns the raw JSON
// result for display
func (a *API) FunctionCalling(ctx context.Context, sessionID, tool, param string) (string, error) {
	raw, err := a.client.Call(ctx, sessionID, ObjectToolEdge, MethodFuncCalling, map[string]string{
		"tool":  tool,
		"param": param,
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// OperateService runs a service-management command (restart, shutdown) on
// the device
func (a *API) OperateService(ctx context.Context, sessionID, service, cmd string) (string, error) {
	raw, err := a.client.Call(ctx, sessionID, ObjectService, MethodOperate, map[string]string{
		"cmd":     cmd,
		"service": service,
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// SystemInfo reports the device's uptime and memory figures, mirroring the
// standard ubus system.info method
func (a *API) SystemInfo(ctx context.Context, sessionID string) (map[string]any, error) {
	raw, err := a.client.Call(ctx, sessionID, ObjectSystem, MethodInfo, nil)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := rpc.DecodePayload(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
