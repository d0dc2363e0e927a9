package controller

import "github.com/oasis-home/oasisctl/internal/models"

// LoginState tracks the login lifecycle
type LoginState int

const (
	LoginIdle LoginState = iota
	LoginLoading
	LoginSuccess
	LoginFailed
)

// DiscoveryState tracks the device scan lifecycle
type DiscoveryState int

const (
	DiscoveryIdle DiscoveryState = iota
	DiscoverySearching
	DiscoveryDone
	DiscoveryFailed
)

// Message is one chat transcript entry as shown to the user
type Message struct {
	Content   string
	IsUser    bool
	ToolUsed  bool
	ToolLabel string
}

// State is the complete reactive state the UI consumes. Consumers receive
// value snapshots; only the controller mutates the owned copy.
type State struct {
	Login      LoginState
	LoginError string

	Discovery      DiscoveryState
	DiscoveryError string
	Devices        []models.DiscoveredDevice

	Messages  []Message
	ChatID    string
	ChatTitle string
	Sending   bool

	Sysmsg         []models.Sysmsg
	SelectedSysmsg string

	Services        []models.AIService
	SelectedService string

	Tools        []models.ToolInfo
	ToolsLoading bool

	History []models.ChatSummary

	RebootBanner    bool
	PendingRestart  string
	PendingShutdown bool
	FunctionResult  string

	LastError string
}

// clone produces the snapshot handed to subscribers; slices are copied so
// later mutations cannot leak out
func (s *State) clone() State {
	out := *s
	out.Devices = append([]models.DiscoveredDevice(nil), s.Devices...)
	out.Messages = append([]Message(nil), s.Messages...)
	out.Sysmsg = append([]models.Sysmsg(nil), s.Sysmsg...)
	out.Services = append([]models.AIService(nil), s.Services...)
	out.Tools = append([]models.ToolInfo(nil), s.Tools...)
	out.History = append([]models.ChatSummary(nil), s.History...)
	return out
}
