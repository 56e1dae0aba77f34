package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/texgate/internal/events"
)

const (
	maxEventLog    = 50
	healthInterval = 5 * time.Second
	reconnectDelay = 3 * time.Second
)

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	health      HealthState
	compiles    *compileTracker
	eventLog    []events.Event
	lastEventID int64

	ticker   Ticker
	activity Activity
	spinner  spinner.Model
	table    table.Model
	theme    Theme

	hubEvents chan events.Event
	now       func() time.Time

	lastError string
}

// New creates a new watch TUI model.
func New(apiURL, apiKey string) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		compiles:  newCompileTracker(),
		eventLog:  make([]events.Event, 0),
		hubEvents: make(chan events.Event, 100),
		ticker:    NewTicker(),
		spinner:   sp,
		table:     newCompileTable(),
		theme:     NewDefaultTheme(),
		now:       time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL, m.apiKey) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		m.spinner.Tick,
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(max(20, m.width-6))
		m.table.SetHeight(max(5, m.height/3))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		m.ticker.Tick()
		m.activity.Decay(m.now())
		m.table.SetRows(m.compiles.rows(m.now()))
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)
		if e.ID > m.lastEventID {
			m.lastEventID = e.ID
		}

		// Newest first.
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}

		m.activity.OnEvent(m.now())
		m.compiles.apply(e)
		m.table.SetRows(m.compiles.rows(m.now()))

		m.health.Connected = true
		m.lastError = ""

		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health.Service = msg.Service
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.ActiveWorkspaces = msg.ActiveWorkspaces
		m.health.EngineVersion = msg.Engine.Version
		m.health.EngineAvailable = msg.Engine.Available
		m.health.Connected = true
		m.health.LastCheck = m.now()
		m.lastError = ""

		return m, tea.Tick(healthInterval, func(time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		if msg.err != nil {
			m.lastError = fmt.Sprintf("event stream: %v; reconnecting...", msg.err)
		}
		// The pending receiveNextEvent keeps reading the same channel.
		return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.lastEventID, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(healthInterval, func(time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to " + m.apiURL + "..."
	}

	now := m.now()
	header := renderHeader(m.health, m.compiles.stats, m.ticker, m.activity, m.theme, m.width, now)

	title := "COMPILES"
	if n := len(m.compiles.active); n > 0 {
		title = fmt.Sprintf("COMPILES %s %d in flight", m.spinner.View(), n)
	}
	compiles := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left, m.theme.Title.Render(title), m.table.View()),
	)
	eventStream := renderEventStream(m.eventLog, m.theme, m.width)

	parts := []string{header, compiles, eventStream}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(" ⚠ "+m.lastError))
	}
	parts = append(parts, m.theme.Dim.Render(" [q] Quit • [↑/↓] Scroll compiles"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
