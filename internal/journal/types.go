package journal

import "time"

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusUnknown   Status = "unknown_command"
)

// Entry is one dispatched command as seen by the host.
type Entry struct {
	ID        string        `json:"id"`
	Command   string        `json:"command"`
	Class     string        `json:"class,omitempty"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	Remote    string        `json:"remote,omitempty"`
	StartedAt time.Time     `json:"started_at"`
}
