package watch

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/devdeck/internal/api"
	"github.com/mattjoyce/devdeck/internal/client"
	"github.com/mattjoyce/devdeck/internal/events"
	"github.com/mattjoyce/devdeck/internal/supervisor"
)

// --- Message types ---

type eventMsg events.Event

type healthMsg api.HealthzResponse

type projectsMsg []supervisor.Project

type logLineMsg struct {
	project string
	line    string
}

type logStreamEndedMsg struct {
	project string
	err     error
}

type actionDoneMsg struct {
	verb    string
	project string
	port    int
	err     error
}

type tickMsg time.Time

type errMsg error

type sseDisconnectedMsg struct{}
type reconnectMsg struct{}

const requestTimeout = 5 * time.Second

// --- Commands ---

// subscribeToEvents feeds the SSE stream into ch, resuming after lastID.
// Returns sseDisconnectedMsg when the connection drops.
func subscribeToEvents(c *client.Client, lastID int64, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		_ = c.Events(context.Background(), lastID, func(e events.Event) { ch <- e })
		return sseDisconnectedMsg{}
	}
}

// receiveNextEvent waits for the next event from the channel.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

// followLogs streams one project's output into ch until ctx is cancelled.
func followLogs(ctx context.Context, c *client.Client, id string, ch chan<- logLineMsg) tea.Cmd {
	return func() tea.Msg {
		err := c.FollowLogs(ctx, id, func(line string) {
			select {
			case ch <- logLineMsg{project: id, line: line}:
			case <-ctx.Done():
			}
		})
		return logStreamEndedMsg{project: id, err: err}
	}
}

func receiveNextLog(ch <-chan logLineMsg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

func fetchProjects(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		projects, err := c.Projects(ctx)
		if err != nil {
			return errMsg(err)
		}
		return projectsMsg(projects)
	}
}

func fetchHealth(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		h, err := c.Health(ctx)
		if err != nil {
			return errMsg(err)
		}
		return healthMsg(h)
	}
}

func startProject(c *client.Client, id string, port int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		resp, err := c.Start(ctx, id, port)
		return actionDoneMsg{verb: "start", project: id, port: resp.Port, err: err}
	}
}

func stopProject(c *client.Client, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return actionDoneMsg{verb: "stop", project: id, err: c.Stop(ctx, id)}
	}
}
