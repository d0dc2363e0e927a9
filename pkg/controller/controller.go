// Package controller owns the application state and orchestrates the
// session manager, discovery engine and payload parsers behind it. All
// state mutations go through one owner; consumers subscribe to snapshot
// notifications instead of sharing mutable cells.
package controller

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/oasis-home/oasisctl/internal/models"
	"github.com/oasis-home/oasisctl/pkg/credstore"
	"github.com/oasis-home/oasisctl/pkg/discovery"
	"github.com/oasis-home/oasisctl/pkg/oasis"
	"github.com/oasis-home/oasisctl/pkg/payload"
	"github.com/oasis-home/oasisctl/pkg/session"
	"github.com/sirupsen/logrus"
)

// Controller serializes every mutation of the reactive state
type Controller struct {
	api      *oasis.API
	sessions *session.Manager
	engine   *discovery.Engine
	creds    credstore.Store
	logger   *logrus.Logger

	mu          sync.Mutex
	state       State
	lastFailed  string
	autoLoginOK bool
	subscribers []chan State
}

// New wires a controller over its collaborators. creds may be nil when no
// persistence is wanted.
func New(api *oasis.API, sessions *session.Manager, engine *discovery.Engine, creds credstore.Store, logger *logrus.Logger) *Controller {
	return &Controller{
		api:      api,
		sessions: sessions,
		engine:   engine,
		creds:    creds,
		logger:   logger,
		state:    State{SelectedSysmsg: models.DefaultSysmsgKey},
	}
}

// State returns a snapshot of the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe registers for state snapshots. Slow consumers miss
// intermediate snapshots rather than blocking the controller.
func (c *Controller) Subscribe() <-chan State {
	ch := make(chan State, 16)
	c.mu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.mu.Unlock()
	return ch
}

// update applies fn to the owned state and fans the new snapshot out
func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	snapshot := c.state.clone()
	subs := c.subscribers
	c.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// Login authenticates and then best-effort loads base info and chat
// history; follow-up failures never fail the login itself.
func (c *Controller) Login(ctx context.Context, host, username, password string) error {
	c.update(func(s *State) { s.Login = LoginLoading; s.LoginError = "" })

	if _, err := c.sessions.Login(ctx, host, username, password); err != nil {
		msg := MapError(err)
		c.logger.WithError(err).Error("login failed")
		c.update(func(s *State) {
			s.Login = LoginFailed
			s.LoginError = msg
			s.Messages = append(s.Messages, Message{Content: msg})
		})
		return err
	}

	if c.creds != nil {
		if err := c.creds.Save(models.Credentials{Host: host, Username: username, Password: password}); err != nil {
			c.logger.WithError(err).Warn("failed to persist credentials")
		}
	}

	c.bootstrapAfterLogin(ctx)
	c.update(func(s *State) { s.Login = LoginSuccess })
	return nil
}

// bootstrapAfterLogin fetches base info and history. Best effort only.
func (c *Controller) bootstrapAfterLogin(ctx context.Context) {
	sid := c.sessions.SessionID()

	info, err := c.api.BaseInfo(ctx, sid)
	if err != nil {
		c.logger.WithError(err).Warn("base_info fetch failed after login")
	} else {
		c.update(func(s *State) {
			s.Sysmsg = info.Sysmsg
			s.SelectedSysmsg = pickSysmsgKey(info.Sysmsg)
			s.Services = info.Services
			if s.SelectedService == "" && len(info.Services) > 0 {
				s.SelectedService = info.Services[0].ID
			}
		})
	}

	c.RefreshHistory(ctx)
}

// pickSysmsgKey prefers the distinguished default profile, then the first
// one offered
func pickSysmsgKey(list []models.Sysmsg) string {
	for _, m := range list {
		if m.Key == models.DefaultSysmsgKey {
			return m.Key
		}
	}
	if len(list) > 0 {
		return list[0].Key
	}
	return models.DefaultSysmsgKey
}

// TryAutoLogin attempts one silent login from stored credentials. Called
// at startup; does nothing when already logged in or once attempted.
func (c *Controller) TryAutoLogin(ctx context.Context) bool {
	c.mu.Lock()
	if c.autoLoginOK || c.creds == nil || c.state.Login == LoginLoading || c.state.Login == LoginSuccess {
		c.mu.Unlock()
		return false
	}
	c.autoLoginOK = true
	c.mu.Unlock()

	creds, ok, err := c.creds.Load()
	if err != nil || !ok {
		return false
	}
	return c.Login(ctx, creds.Host, creds.Username, creds.Password) == nil
}

// Discover runs a device scan and publishes the outcome. An empty scan is
// reported as a distinct "no devices" condition, not a hard failure.
func (c *Controller) Discover(ctx context.Context) {
	c.update(func(s *State) { s.Discovery = DiscoverySearching; s.DiscoveryError = "" })

	devices, err := c.engine.Discover(ctx)
	if err != nil {
		c.logger.WithError(err).Error("discovery failed")
		c.update(func(s *State) {
			s.Discovery = DiscoveryFailed
			s.DiscoveryError = MapError(err)
		})
		return
	}
	if len(devices) == 0 {
		c.update(func(s *State) {
			s.Discovery = DiscoveryFailed
			s.DiscoveryError = "No devices found."
		})
		return
	}
	c.update(func(s *State) {
		s.Discovery = DiscoveryDone
		s.Devices = devices
	})
}

// ClearDiscoveryState resets the scan state to idle
func (c *Controller) ClearDiscoveryState() {
	c.update(func(s *State) {
		s.Discovery = DiscoveryIdle
		s.DiscoveryError = ""
		s.Devices = nil
	})
}

// SendMessage appends the user message optimistically, sends it, and
// applies the parsed reply. On failure the session manager's single
// re-login retry runs first; only a second failure marks the message as
// last-failed and surfaces an error.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if !c.sessions.Authenticated() {
		return session.ErrNotAuthenticated
	}

	c.update(func(s *State) {
		s.Messages = append(s.Messages, Message{Content: text, IsUser: true})
		s.Sending = true
	})

	var result *models.SendResult
	err := c.sessions.WithRetryOnExpiry(ctx, func(ctx context.Context, sid string) error {
		r, sendErr := c.api.Send(ctx, sid, c.currentChatID(), text, c.currentSysmsgKey())
		if sendErr != nil {
			return sendErr
		}
		result = r
		return nil
	})
	if err != nil {
		msg := MapError(err)
		c.logger.WithError(err).Error("send failed")
		c.mu.Lock()
		c.lastFailed = text
		c.mu.Unlock()
		c.update(func(s *State) {
			s.Sending = false
			s.LastError = msg
			s.Messages = append(s.Messages, Message{Content: msg})
		})
		return err
	}

	c.applySendResult(result)
	c.update(func(s *State) { s.Sending = false })
	c.RefreshHistory(ctx)
	return nil
}

// RetryLastFailed re-sends the message recorded by the last failed send.
// No automatic retries happen beyond this user-initiated one.
func (c *Controller) RetryLastFailed(ctx context.Context) error {
	c.mu.Lock()
	text := c.lastFailed
	c.mu.Unlock()
	if text == "" || !c.sessions.Authenticated() {
		return nil
	}

	c.update(func(s *State) { s.Sending = true })
	result, err := c.api.Send(ctx, c.sessions.SessionID(), c.currentChatID(), text, c.currentSysmsgKey())
	if err != nil {
		msg := MapError(err)
		c.logger.WithError(err).Error("retry failed")
		c.update(func(s *State) { s.Sending = false; s.LastError = msg })
		return err
	}

	c.mu.Lock()
	c.lastFailed = ""
	c.mu.Unlock()
	c.applySendResult(result)
	c.update(func(s *State) { s.Sending = false })
	c.RefreshHistory(ctx)
	return nil
}

// applySendResult folds one send payload into the state: chat id/title,
// the assistant reply (suppressing echoed tool-call JSON), a formatted UCI
// proposal if present, and the reboot banner.
func (c *Controller) applySendResult(result *models.SendResult) {
	label := payload.ParseToolLabel(result.ToolInfo)
	text := result.Content
	if fromText := payload.ExtractToolNamesFromContent(text); fromText != nil {
		if label == nil {
			label = fromText
		}
		text = ""
	}

	proposal := payload.FormatUCIProposal(result.UCIParseTbl)

	c.update(func(s *State) {
		if result.ID != "" {
			s.ChatID = result.ID
		}
		if result.Title != "" {
			s.ChatTitle = result.Title
		}

		reply := Message{Content: text}
		if label != nil {
			reply.ToolUsed = true
			reply.ToolLabel = *label
		}
		s.Messages = append(s.Messages, reply)

		if proposal != nil {
			s.Messages = append(s.Messages, Message{Content: *proposal})
		}
		if result.Reboot {
			s.RebootBanner = true
		}
	})
}

// RefreshHistory reloads the chat summaries, best effort
func (c *Controller) RefreshHistory(ctx context.Context) {
	if !c.sessions.Authenticated() {
		return
	}
	items, err := c.api.ListChats(ctx, c.sessions.SessionID())
	if err != nil {
		c.logger.WithError(err).Warn("history fetch failed")
		c.update(func(s *State) { s.LastError = MapError(err) })
		return
	}
	c.update(func(s *State) { s.History = items })
}

// LoadChat replaces the transcript with a stored conversation and makes it
// current
func (c *Controller) LoadChat(ctx context.Context, chatID, title string) error {
	if !c.sessions.Authenticated() {
		return session.ErrNotAuthenticated
	}
	msgs, err := c.api.LoadChat(ctx, c.sessions.SessionID(), chatID)
	if err != nil {
		c.logger.WithError(err).Error("chat load failed")
		c.update(func(s *State) { s.LastError = MapError(err) })
		return err
	}

	c.update(func(s *State) {
		s.Messages = nil
		for _, m := range msgs {
			if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
				continue
			}
			s.Messages = append(s.Messages, Message{Content: m.Content, IsUser: m.Role == models.RoleUser})
		}
		s.ChatID = chatID
		if title != "" {
			s.ChatTitle = title
		}
	})
	return nil
}

// StartNewChat clears the transcript and detaches from the current chat id
func (c *Controller) StartNewChat() {
	c.mu.Lock()
	c.lastFailed = ""
	c.mu.Unlock()
	c.update(func(s *State) {
		s.Messages = nil
		s.ChatID = ""
		s.ChatTitle = ""
	})
}

// SelectSysmsg picks the system-message profile for subsequent sends
func (c *Controller) SelectSysmsg(key string) {
	c.update(func(s *State) { s.SelectedSysmsg = key })
}

// SelectAIService switches the backend model on the device
func (c *Controller) SelectAIService(ctx context.Context, id string) error {
	if !c.sessions.Authenticated() {
		return session.ErrNotAuthenticated
	}

	var svc *models.AIService
	c.mu.Lock()
	for i := range c.state.Services {
		if c.state.Services[i].ID == id {
			svc = &c.state.Services[i]
			break
		}
	}
	c.mu.Unlock()
	if svc == nil {
		c.update(func(s *State) { s.LastError = "Unknown AI service: " + id })
		return nil
	}

	c.update(func(s *State) { s.SelectedService = id })
	if err := c.api.SelectAIService(ctx, c.sessions.SessionID(), *svc); err != nil {
		c.logger.WithError(err).Error("select AI service failed")
		c.update(func(s *State) { s.LastError = MapError(err) })
		return err
	}
	return nil
}

// RefreshTools reloads the tool list from the device
func (c *Controller) RefreshTools(ctx context.Context) error {
	if !c.sessions.Authenticated() {
		return session.ErrNotAuthenticated
	}
	c.update(func(s *State) { s.ToolsLoading = true })
	tools, err := c.api.ToolList(ctx, c.sessions.SessionID())
	if err != nil {
		c.logger.WithError(err).Error("tool list fetch failed")
		c.update(func(s *State) { s.ToolsLoading = false; s.LastError = MapError(err) })
		return err
	}
	c.update(func(s *State) { s.ToolsLoading = false; s.Tools = tools })
	return nil
}

// SetToolEnabled flips a tool optimistically and rolls the flag back when
// the device rejects the change; the flag is only trusted once the device
// confirmed it.
func (c *Controller) SetToolEnabled(ctx context.Context, name string, enabled bool) error {
	if !c.sessions.Authenticated() {
		return session.ErrNotAuthenticated
	}

	c.update(func(s *State) { setToolFlag(s.Tools, name, enabled) })

	if err := c.api.SetToolEnabled(ctx, c.sessions.SessionID(), name, enabled); err != nil {
		c.logger.WithError(err).Error("tool toggle failed")
		c.update(func(s *State) {
			setToolFlag(s.Tools, name, !enabled)
			s.LastError = MapError(err)
		})
		return err
	}

	// Re-fetch so the list reflects confirmed device state
	return c.RefreshTools(ctx)
}

func setToolFlag(tools []models.ToolInfo, name string, enabled bool) {
	for i := range tools {
		if tools[i].Name == name {
			tools[i].Enabled = enabled
		}
	}
}

// ExecuteFunctionCalling invokes a device tool directly. Side-effect
// triggers found in the result become confirmation affordances, never
// direct execution.
func (c *Controller) ExecuteFunctionCalling(ctx context.Context, tool string, params map[string]string) error {
	if !c.sessions.Authenticated() {
		return session.ErrNotAuthenticated
	}

	param := "{}"
	if len(params) > 0 {
		if encoded, err := json.Marshal(params); err == nil {
			param = string(encoded)
		}
	}

	result, err := c.api.FunctionCalling(ctx, c.sessions.SessionID(), tool, param)
	if err != nil {
		c.logger.WithError(err).Error("function calling failed")
		c.update(func(s *State) { s.LastError = MapError(err) })
		return err
	}

	acts := payload.ScanActionsInText(result)
	c.update(func(s *State) {
		s.FunctionResult = result
		if acts.RestartService != "" {
			s.PendingRestart = acts.RestartService
		}
		if acts.Shutdown {
			s.PendingShutdown = true
		}
	})
	return nil
}

// ConfirmRestart executes the pending service restart the user approved
func (c *Controller) ConfirmRestart(ctx context.Context) error {
	c.mu.Lock()
	target := c.state.PendingRestart
	c.mu.Unlock()
	if target == "" || !c.sessions.Authenticated() {
		return nil
	}

	_, err := c.api.OperateService(ctx, c.sessions.SessionID(), target, "restart")
	if err != nil {
		c.logger.WithError(err).Error("service restart failed")
		c.update(func(s *State) { s.LastError = MapError(err) })
		return err
	}
	c.update(func(s *State) { s.PendingRestart = "" })
	return nil
}

// ConfirmShutdown executes the pending system shutdown the user approved
func (c *Controller) ConfirmShutdown(ctx context.Context) error {
	c.mu.Lock()
	pending := c.state.PendingShutdown
	c.mu.Unlock()
	if !pending || !c.sessions.Authenticated() {
		return nil
	}

	_, err := c.api.OperateService(ctx, c.sessions.SessionID(), "system", "shutdown")
	if err != nil {
		c.logger.WithError(err).Error("shutdown failed")
		c.update(func(s *State) { s.LastError = MapError(err) })
		return err
	}
	c.update(func(s *State) { s.PendingShutdown = false })
	return nil
}

// DismissRestart drops the pending restart confirmation
func (c *Controller) DismissRestart() {
	c.update(func(s *State) { s.PendingRestart = "" })
}

// DismissShutdown drops the pending shutdown confirmation
func (c *Controller) DismissShutdown() {
	c.update(func(s *State) { s.PendingShutdown = false })
}

// DismissRebootBanner hides the reboot notice
func (c *Controller) DismissRebootBanner() {
	c.update(func(s *State) { s.RebootBanner = false })
}

// ConsumeError clears the surfaced error once the UI displayed it
func (c *Controller) ConsumeError() {
	c.update(func(s *State) { s.LastError = "" })
}

// Logout drops the session, clears stored credentials and resets all state
func (c *Controller) Logout() {
	c.sessions.Logout()
	if c.creds != nil {
		if err := c.creds.Clear(); err != nil {
			c.logger.WithError(err).Warn("failed to clear stored credentials")
		}
	}

	c.mu.Lock()
	c.lastFailed = ""
	c.mu.Unlock()
	c.update(func(s *State) {
		*s = State{SelectedSysmsg: models.DefaultSysmsgKey}
	})
}

func (c *Controller) currentChatID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.ChatID
}

func (c *Controller) currentSysmsgKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.SelectedSysmsg
}
