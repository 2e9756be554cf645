package watch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/livebridge/internal/api"
	"github.com/mattjoyce/livebridge/internal/events"
	"github.com/mattjoyce/livebridge/internal/journal"
)

const (
	maxRecent      = 200
	healthInterval = 5 * time.Second
	reconnectDelay = 3 * time.Second
	// chromeLines is the height of everything around the table.
	chromeLines = 20
)

// --- Messages ---

type eventMsg events.Event

type healthMsg api.HealthzResponse

type healthErrMsg struct{ err error }

type streamEndedMsg struct {
	lastID int64
	err    error
}

type reconnectMsg struct{}

// completion is one command.completed event as listed in the table.
type completion struct {
	At time.Time
	events.CommandCompleted
}

type commandStats struct {
	name    string
	total   int
	failed  int
	totalMS int64
}

// Model is the bubbletea model of the watch view.
type Model struct {
	ctx    context.Context
	client *Client
	theme  Theme

	width  int
	height int

	health    api.HealthzResponse
	connected bool
	lastErr   string
	lastEvent time.Time

	incoming chan events.Event
	lastID   int64

	recent   []completion
	byStatus map[string]int
	byCmd    map[string]*commandStats

	table   table.Model
	spinner spinner.Model
}

// New creates the view. Background work stops when ctx is done.
func New(ctx context.Context, client *Client) Model {
	theme := DefaultTheme()

	t := table.New(
		table.WithColumns(columns(80)),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	st := table.DefaultStyles()
	st.Header = st.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	st.Selected = st.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("24")).
		Bold(false)
	t.SetStyles(st)

	return Model{
		ctx:      ctx,
		client:   client,
		theme:    theme,
		incoming: make(chan events.Event, 64),
		byStatus: make(map[string]int),
		byCmd:    make(map[string]*commandStats),
		table:    t,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(theme.Highlight)),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.follow(m.lastID),
		m.receive(),
		m.fetchHealth,
		m.spinner.Tick,
	)
}

// follow streams events into m.incoming until the stream ends.
func (m Model) follow(lastID int64) tea.Cmd {
	return func() tea.Msg {
		id, err := m.client.Stream(m.ctx, lastID, m.incoming)
		return streamEndedMsg{lastID: id, err: err}
	}
}

// receive waits for the next streamed event.
func (m Model) receive() tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-m.incoming:
			return eventMsg(ev)
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m Model) fetchHealth() tea.Msg {
	h, err := m.client.Health(m.ctx)
	if err != nil {
		return healthErrMsg{err: err}
	}
	return healthMsg(h)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "c":
			m.clear()
			return m, nil
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetColumns(columns(msg.Width - 6))
		m.table.SetHeight(max(3, msg.Height-chromeLines))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		ev := events.Event(msg)
		m.lastID = max(m.lastID, ev.ID)
		m.connected = true
		m.lastErr = ""
		m.record(ev)
		return m, m.receive()

	case healthMsg:
		// A host that restarted numbers its events from 1 again.
		if msg.UptimeSeconds < m.health.UptimeSeconds {
			m.lastID = 0
		}
		m.health = api.HealthzResponse(msg)
		m.connected = true
		return m, tea.Tick(healthInterval, func(time.Time) tea.Msg { return m.fetchHealth() })

	case healthErrMsg:
		m.connected = false
		m.lastErr = msg.err.Error()
		return m, tea.Tick(healthInterval, func(time.Time) tea.Msg { return m.fetchHealth() })

	case streamEndedMsg:
		m.lastID = max(m.lastID, msg.lastID)
		m.connected = false
		m.lastErr = "event stream closed, reconnecting"
		if msg.err != nil && !errors.Is(msg.err, io.EOF) {
			m.lastErr = "event stream: " + msg.err.Error()
		}
		if m.ctx.Err() != nil {
			return m, nil
		}
		return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, m.follow(m.lastID)
	}

	return m, nil
}

// record folds one event into the counters and the table.
func (m *Model) record(ev events.Event) {
	if ev.Type != events.TypeCommandCompleted {
		return
	}
	var cc events.CommandCompleted
	if err := json.Unmarshal(ev.Data, &cc); err != nil || cc.Command == "" {
		return
	}

	m.lastEvent = ev.At
	m.recent = append([]completion{{At: ev.At, CommandCompleted: cc}}, m.recent...)
	if len(m.recent) > maxRecent {
		m.recent = m.recent[:maxRecent]
	}

	m.byStatus[cc.Status]++
	st := m.byCmd[cc.Command]
	if st == nil {
		st = &commandStats{name: cc.Command}
		m.byCmd[cc.Command] = st
	}
	st.total++
	st.totalMS += cc.DurationMS
	if cc.Status != string(journal.StatusSucceeded) {
		st.failed++
	}

	m.table.SetRows(rows(m.recent))
}

func (m *Model) clear() {
	m.recent = nil
	m.byStatus = make(map[string]int)
	m.byCmd = make(map[string]*commandStats)
	m.table.SetRows(nil)
}

func columns(width int) []table.Column {
	cols := []table.Column{
		{Title: "Time", Width: 8},
		{Title: "Command", Width: 24},
		{Title: "Class", Width: 12},
		{Title: "Status", Width: 15},
		{Title: "ms", Width: 6},
	}
	used := 0
	for _, c := range cols {
		used += c.Width + 2
	}
	return append(cols, table.Column{Title: "Message", Width: max(10, width-used)})
}

func rows(recent []completion) []table.Row {
	out := make([]table.Row, 0, len(recent))
	for _, c := range recent {
		out = append(out, table.Row{
			c.At.Format("15:04:05"),
			c.Command,
			c.Class,
			c.Status,
			strconv.FormatInt(c.DurationMS, 10),
			c.Message,
		})
	}
	return out
}
