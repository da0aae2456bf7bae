package watch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/devdeck/internal/client"
	"github.com/mattjoyce/devdeck/internal/detect"
	"github.com/mattjoyce/devdeck/internal/events"
	"github.com/mattjoyce/devdeck/internal/ports"
	"github.com/mattjoyce/devdeck/internal/supervisor"
)

// Model is the main BubbleTea model for the dashboard.
type Model struct {
	client *client.Client

	width  int
	height int

	// State
	health      HealthState
	projects    []supervisor.Project
	visible     []supervisor.Project
	filter      detect.Type
	eventLog    []events.Event
	lastEventID int64

	// Live indicators
	ticker  Ticker
	spinner Spinner

	// UI state
	theme     Theme
	table     table.Model
	logs      logPane
	portInput textinput.Model
	starting  string // project whose port is being edited
	notice    string

	// Communication
	hubEvents    chan events.Event
	logLines     chan logLineMsg
	cancelFollow context.CancelFunc

	lastError string
}

// New creates a dashboard bound to a devdeck API client.
func New(c *client.Client) *Model {
	theme := NewDefaultTheme()

	ti := textinput.New()
	ti.Placeholder = "port"
	ti.CharLimit = 5
	ti.Width = 6

	return &Model{
		client:    c,
		eventLog:  make([]events.Event, 0),
		hubEvents: make(chan events.Event, 100),
		logLines:  make(chan logLineMsg, 256),
		ticker:    NewTicker(),
		spinner:   NewSpinner(),
		theme:     theme,
		table:     newProjectTable(theme),
		logs:      newLogPane(),
		portInput: ti,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.client, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		receiveNextLog(m.logLines),
		fetchProjects(m.client),
		fetchHealth(m.client),
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.starting != "" {
			return m.updatePortInput(msg)
		}
		return m.updateKeys(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()

	case tickMsg:
		m.ticker.Tick()
		m.spinner.Decay()
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case projectsMsg:
		m.projects = []supervisor.Project(msg)
		m.refreshTable()
		m.health.Connected = true
		m.lastError = ""

	case eventMsg:
		e := events.Event(msg)
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}
		if e.ID > m.lastEventID {
			m.lastEventID = e.ID
		}
		m.spinner.OnEvent()
		m.health.Connected = true

		cmds := []tea.Cmd{receiveNextEvent(m.hubEvents)}
		if e.Type != events.ProjectsRescanned {
			cmds = append(cmds, fetchProjects(m.client))
		}
		return m, tea.Batch(cmds...)

	case logLineMsg:
		if msg.project == m.logs.project {
			m.logs.append(msg.line)
		}
		return m, receiveNextLog(m.logLines)

	case logStreamEndedMsg:
		if msg.project == m.logs.project && msg.err != nil {
			m.lastError = fmt.Sprintf("log stream for %s ended: %v", msg.project, msg.err)
		}

	case actionDoneMsg:
		if msg.err != nil {
			m.lastError = fmt.Sprintf("%s %s: %v", msg.verb, msg.project, msg.err)
			return m, nil
		}
		m.lastError = ""
		if msg.verb == "start" {
			m.notice = fmt.Sprintf("started %s on port %d", msg.project, msg.port)
		} else {
			m.notice = "stopped " + msg.project
		}
		return m, fetchProjects(m.client)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.Connected = true
		m.health.LastCheck = time.Now()

		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.client)()
		})

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, tea.Batch(subscribeToEvents(m.client, m.lastEventID, m.hubEvents), fetchProjects(m.client))

	case errMsg:
		m.health.Connected = false
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.client)()
		})
	}

	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.cancelFollow != nil {
			m.cancelFollow()
		}
		return m, tea.Quit
	case "r":
		return m, fetchProjects(m.client)
	case "f":
		m.filter = nextFilter(m.filter)
		m.refreshTable()
		return m, nil
	case "enter", "l":
		p, ok := m.selected()
		if !ok {
			return m, nil
		}
		cmd := m.follow(p.ID)
		return m, cmd
	case "s":
		p, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.starting = p.ID
		m.portInput.SetValue(strconv.Itoa(p.Port))
		m.portInput.CursorEnd()
		cmd := m.portInput.Focus()
		return m, cmd
	case "x":
		p, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m, stopProject(m.client, p.ID)
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.logs.view, cmd = m.logs.view.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) updatePortInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.starting = ""
		m.portInput.Blur()
		return m, nil
	case "enter":
		id := m.starting
		port, err := strconv.Atoi(strings.TrimSpace(m.portInput.Value()))
		if err != nil || !ports.Valid(port) {
			m.lastError = fmt.Sprintf("invalid port %q", m.portInput.Value())
			return m, nil
		}
		m.starting = ""
		m.portInput.Blur()
		m.lastError = ""
		cmd := tea.Batch(startProject(m.client, id, port), m.follow(id))
		return m, cmd
	}

	var cmd tea.Cmd
	m.portInput, cmd = m.portInput.Update(msg)
	return m, cmd
}

// follow switches the log pane to id, replacing any previous stream.
func (m *Model) follow(id string) tea.Cmd {
	if m.logs.project == id && m.cancelFollow != nil {
		return nil
	}
	if m.cancelFollow != nil {
		m.cancelFollow()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelFollow = cancel
	m.logs.reset(id)
	return followLogs(ctx, m.client, id, m.logLines)
}

func (m *Model) selected() (supervisor.Project, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.visible) {
		return supervisor.Project{}, false
	}
	return m.visible[i], true
}

func (m *Model) refreshTable() {
	var keep string
	if p, ok := m.selected(); ok {
		keep = p.ID
	}
	m.visible = filterProjects(m.projects, m.filter)
	m.table.SetRows(projectRows(m.visible))

	cursor := 0
	for i, p := range m.visible {
		if p.ID == keep {
			cursor = i
			break
		}
	}
	m.table.SetCursor(cursor)
}

func (m *Model) layout() {
	if m.height == 0 {
		return
	}
	// header 5, events 8, help 2, margins 2, borders for two panes 4
	free := max(6, m.height-21)
	m.table.SetHeight(max(3, free/2))
	m.logs.resize(m.width-8, free-free/2)
}

func (m Model) View() string {
	if m.width == 0 {
		return "Starting devdeck dashboard..."
	}

	header := renderHeader(m.health, computeStats(m.projects), m.filter, m.ticker, m.spinner, m.theme, m.width)
	projects := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left, m.theme.Title.Render("PROJECTS"), m.table.View()),
	)
	logs := m.logs.render(m.theme, m.width)
	eventStream := renderEventStream(m.eventLog, m.theme, m.width, 5)

	parts := []string{header, projects, logs, eventStream}
	if m.starting != "" {
		parts = append(parts, fmt.Sprintf(" Start %s on port %s  %s",
			m.theme.Highlight.Render(m.starting), m.portInput.View(), m.theme.Dim.Render("[enter] start • [esc] cancel")))
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	} else if m.notice != "" {
		parts = append(parts, m.theme.Dim.Render(" "+m.notice))
	}

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Select • [s] Start • [x] Stop • [enter] Logs • [f] Filter • [r] Refresh")
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
