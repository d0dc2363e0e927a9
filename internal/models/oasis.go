package models

import "encoding/json"

// Credentials holds everything needed to (re-)authenticate against a device
type Credentials struct {
	Host     string `json:"host"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Valid reports whether the credentials are complete enough to attempt a login
func (c Credentials) Valid() bool {
	return c.Host != "" && c.Username != "" && c.Password != ""
}

// AIService represents a selectable backend model advertised by the device
type AIService struct {
	ID    string `json:"identifier"`
	Name  string `json:"name"`
	Model string `json:"model,omitempty"`
}

// Label returns the display label for the service ("name (model)" when a
// model is known)
func (s AIService) Label() string {
	if s.Model == "" {
		return s.Name
	}
	return s.Name + " (" + s.Model + ")"
}

// Sysmsg represents a system-message profile; the key "default" is
// distinguished by the device
type Sysmsg struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

// DefaultSysmsgKey is the profile the device falls back to
const DefaultSysmsgKey = "default"

// BaseInfo is the device's answer to (oasis, base_info)
type BaseInfo struct {
	Sysmsg   []Sysmsg
	Services []AIService
}

// ToolInfo describes a device-side tool invocable by the AI backend.
// Properties entries use the device's "name:type:desc" convention.
type ToolInfo struct {
	Name       string   `json:"name"`
	Server     string   `json:"server"`
	Enabled    bool     `json:"enabled"`
	Properties []string `json:"properties,omitempty"`
	Required   []string `json:"required,omitempty"`
}

// ChatMessage is a single transcript entry
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles used by the device
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatSummary identifies a stored conversation
type ChatSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// DiscoveredDevice is one device found by the local-network scan, keyed by
// name for deduplication across service types
type DiscoveredDevice struct {
	Name string `json:"name"`
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// SendResult is the payload of (oasis.chat, send). UCIParseTbl and ToolInfo
// are server-controlled and loosely typed; they stay raw until the payload
// parsers take a best-effort pass at them.
type SendResult struct {
	ID          string          `json:"id,omitempty"`
	Title       string          `json:"title,omitempty"`
	Content     string          `json:"content"`
	UCIParseTbl json.RawMessage `json:"uci_parse_tbl,omitempty"`
	Reboot      bool            `json:"reboot,omitempty"`
	ToolInfo    json.RawMessage `json:"tool_info,omitempty"`
}
