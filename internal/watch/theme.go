// Package watch is a live terminal view of a running host, fed by the
// status API: health polling plus the command.completed event stream.
package watch

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/livebridge/internal/journal"
)

// Theme holds every style the view uses.
type Theme struct {
	Succeeded lipgloss.Style
	Failed    lipgloss.Style
	TimedOut  lipgloss.Style
	Unknown   lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style
}

func DefaultTheme() Theme {
	accent := lipgloss.Color("#5FAFD7")
	return Theme{
		Succeeded: lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD75F")),
		Failed:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")),
		TimedOut:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00")),
		Unknown:   lipgloss.NewStyle().Foreground(lipgloss.Color("#AF87FF")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#EEEEEE")).
			Padding(0, 1),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")),
		Highlight: lipgloss.NewStyle().Foreground(accent),
	}
}

// ForStatus picks the style of a journal status string.
func (t Theme) ForStatus(status string) lipgloss.Style {
	switch journal.Status(status) {
	case journal.StatusSucceeded:
		return t.Succeeded
	case journal.StatusFailed:
		return t.Failed
	case journal.StatusTimedOut:
		return t.TimedOut
	case journal.StatusUnknown:
		return t.Unknown
	default:
		return t.Dim
	}
}
