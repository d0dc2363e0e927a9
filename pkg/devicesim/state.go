package devicesim

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oasis-home/oasisctl/internal/models"
)

// toolEntry mirrors the device's tool table representation, with the
// enable gate stored as the "0"/"1" string the wire format uses
type toolEntry struct {
	Name     string   `json:"name"`
	Server   string   `json:"server"`
	Enable   string   `json:"enable"`
	Property []string `json:"property,omitempty"`
	Required []string `json:"required,omitempty"`
}

type chat struct {
	ID       string
	Title    string
	Messages []models.ChatMessage
}

// deviceState holds everything the simulated device remembers across calls
type deviceState struct {
	mu sync.Mutex

	username   string
	password   string
	sessionTTL time.Duration
	sessions   map[string]time.Time

	sysmsg   []models.Sysmsg
	services []models.AIService
	selected string

	tools map[string]*toolEntry

	chats     map[string]*chat
	chatOrder []string
}

func newDeviceState(username, password string, ttl time.Duration) *deviceState {
	return &deviceState{
		username:   username,
		password:   password,
		sessionTTL: ttl,
		sessions:   make(map[string]time.Time),
		sysmsg: []models.Sysmsg{
			{Key: "default", Title: "Standard assistant"},
			{Key: "network", Title: "Network troubleshooting"},
		},
		services: []models.AIService{
			{ID: "openai", Name: "OpenAI", Model: "gpt-4o-mini"},
			{ID: "local", Name: "Local LLM", Model: "qwen2.5"},
		},
		selected: "openai",
		tools: map[string]*toolEntry{
			"get_weather": {
				Name:     "get_weather",
				Server:   "edge",
				Enable:   "1",
				Property: []string{"city:string:City name"},
				Required: []string{"city"},
			},
			"restart_service": {
				Name:     "restart_service",
				Server:   "edge",
				Enable:   "0",
				Property: []string{"service:string:Service to restart"},
				Required: []string{"service"},
			},
		},
		chats: make(map[string]*chat),
	}
}

// newToken issues a 32 character hex session id, matching the ubus format
func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (d *deviceState) login(username, password string) (string, bool) {
	if username != d.username || password != d.password {
		return "", false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	token := newToken()
	d.sessions[token] = time.Now().Add(d.sessionTTL)
	return token, true
}

// authorize checks a session id and drops it once expired
func (d *deviceState) authorize(sessionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	expiry, ok := d.sessions[sessionID]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(d.sessions, sessionID)
		return false
	}
	return true
}

// expireAll invalidates every live session. Used to exercise re-login
// behavior in clients.
func (d *deviceState) expireAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions = make(map[string]time.Time)
}

// appendChat records one user/assistant exchange, creating the chat when
// the id is empty or unknown
func (d *deviceState) appendChat(id, message, reply string) *chat {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.chats[id]
	if id == "" || !ok {
		c = &chat{ID: newToken(), Title: chatTitle(message)}
		d.chats[c.ID] = c
		d.chatOrder = append(d.chatOrder, c.ID)
	}
	c.Messages = append(c.Messages,
		models.ChatMessage{Role: models.RoleUser, Content: message},
		models.ChatMessage{Role: models.RoleAssistant, Content: reply},
	)
	return c
}

// chatTitle derives a short title from the opening message
func chatTitle(message string) string {
	const maxTitle = 24
	runes := []rune(strings.TrimSpace(message))
	if len(runes) > maxTitle {
		runes = runes[:maxTitle]
	}
	return string(runes)
}

func (d *deviceState) listChats() []models.ChatSummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.ChatSummary, 0, len(d.chatOrder))
	for _, id := range d.chatOrder {
		out = append(out, models.ChatSummary{ID: id, Title: d.chats[id].Title})
	}
	return out
}

func (d *deviceState) loadChat(id string) ([]models.ChatMessage, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.chats[id]
	if !ok {
		return nil, false
	}
	return append([]models.ChatMessage(nil), c.Messages...), true
}

func (d *deviceState) setToolEnable(name, enable string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tools[name]
	if !ok {
		return false
	}
	t.Enable = enable
	return true
}

func (d *deviceState) toolTable() map[string]toolEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]toolEntry, len(d.tools))
	for name, t := range d.tools {
		out[name] = *t
	}
	return out
}
