package watch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/livebridge/internal/journal"
)

const busiestShown = 5

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to livebridge..."
	}
	inner := max(20, m.width-4)

	parts := []string{
		m.renderHeader(inner),
		m.renderTotals(inner),
		m.theme.Border.Width(inner).Render(m.table.View()),
		m.renderBusiest(inner),
	}
	if m.lastErr != "" {
		parts = append(parts, m.theme.Failed.Render(" ! "+m.lastErr))
	}
	parts = append(parts, m.theme.Dim.Render(" [q] quit  [up/down] scroll  [c] clear"))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderHeader(width int) string {
	state := m.theme.Failed.Render("OFFLINE")
	if m.connected {
		state = m.theme.Succeeded.Render("CONNECTED")
	}

	journalState := "off"
	if m.health.JournalEnabled {
		journalState = "on"
	}

	last := "none yet"
	if !m.lastEvent.IsZero() {
		last = formatAge(time.Since(m.lastEvent)) + " ago"
	}

	title := lipgloss.JoinHorizontal(lipgloss.Center,
		m.theme.Title.Render("LIVEBRIDGE WATCH"),
		m.spinner.View(),
		" ",
		state,
	)
	facts := m.theme.Dim.Render(fmt.Sprintf(
		"uptime %s | commands %d | connections %d | journal %s | last event %s",
		formatAge(time.Duration(m.health.UptimeSeconds)*time.Second),
		m.health.CommandsRegistered,
		m.health.Connections,
		journalState,
		last,
	))
	return m.theme.Border.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, facts))
}

func (m Model) renderTotals(width int) string {
	statuses := []journal.Status{
		journal.StatusSucceeded,
		journal.StatusFailed,
		journal.StatusTimedOut,
		journal.StatusUnknown,
	}
	cells := make([]string, 0, len(statuses))
	for _, s := range statuses {
		cells = append(cells, m.theme.ForStatus(string(s)).Render(
			fmt.Sprintf("%s %d", strings.ReplaceAll(string(s), "_", " "), m.byStatus[string(s)]),
		))
	}
	return m.theme.Border.Width(width).Render(strings.Join(cells, "   "))
}

func (m Model) renderBusiest(width int) string {
	stats := make([]*commandStats, 0, len(m.byCmd))
	for _, st := range m.byCmd {
		stats = append(stats, st)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].total != stats[j].total {
			return stats[i].total > stats[j].total
		}
		return stats[i].name < stats[j].name
	})

	lines := []string{m.theme.Highlight.Render("Busiest commands")}
	if len(stats) == 0 {
		lines = append(lines, m.theme.Dim.Render("no completions seen"))
	}
	for i, st := range stats {
		if i == busiestShown {
			break
		}
		line := fmt.Sprintf("%-24s %5d calls  avg %dms", st.name, st.total, st.totalMS/int64(st.total))
		if st.failed > 0 {
			line += m.theme.Failed.Render(fmt.Sprintf("  %d not ok", st.failed))
		}
		lines = append(lines, line)
	}
	return m.theme.Border.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
