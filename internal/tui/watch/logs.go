package watch

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
)

const maxLogLines = 500

// logPane shows the followed project's output, pinned to the bottom
// unless the user scrolled up.
type logPane struct {
	project string
	lines   []string
	view    viewport.Model
}

func newLogPane() logPane {
	return logPane{view: viewport.New(80, 10)}
}

func (p *logPane) reset(project string) {
	p.project = project
	p.lines = p.lines[:0]
	p.view.SetContent("")
	p.view.GotoTop()
}

func (p *logPane) append(line string) {
	follow := p.view.AtBottom()
	p.lines = append(p.lines, line)
	if len(p.lines) > maxLogLines {
		p.lines = p.lines[len(p.lines)-maxLogLines:]
	}
	p.view.SetContent(strings.Join(p.lines, "\n"))
	if follow {
		p.view.GotoBottom()
	}
}

func (p *logPane) resize(width, height int) {
	p.view.Width = max(10, width)
	p.view.Height = max(3, height)
}

func (p logPane) render(theme Theme, width int) string {
	title := "LOGS"
	if p.project != "" {
		title += " · " + p.project
	}
	body := p.view.View()
	if p.project == "" {
		body = theme.Dim.Render("  Select a project and press enter to follow its output")
	} else if len(p.lines) == 0 {
		body = theme.Dim.Render("  Waiting for output...")
	}
	content := lipgloss.JoinVertical(lipgloss.Left, theme.Title.Render(title), body)
	return theme.Border.Width(width - 4).Render(content)
}
