package api

import "github.com/mattjoyce/livebridge/internal/events"

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status             string `json:"status"`
	UptimeSeconds      int64  `json:"uptime_seconds"`
	CommandsRegistered int    `json:"commands_registered"`
	Connections        int    `json:"connections"`
	JournalEnabled     bool   `json:"journal_enabled"`
}

// CommandInfo is one entry of GET /commands.
type CommandInfo struct {
	Name  string `json:"name"`
	Class string `json:"class"`
}

// CommandsResponse is returned by GET /commands.
type CommandsResponse struct {
	Commands []CommandInfo `json:"commands"`
}

// EventsResponse is returned by GET /events.
type EventsResponse struct {
	Events []events.Event `json:"events"`
}
