package watch

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tidwall/gjson"

	"github.com/mattjoyce/devdeck/internal/events"
)

const maxEventLog = 50

func renderEventStream(eventLog []events.Event, theme Theme, width, rows int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENTS"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= rows {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left, theme.Title.Render("EVENTS"), eventsText)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Local().Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case events.ProjectStarted:
		typeStyle = theme.StatusStarted
	case events.ProjectExited:
		typeStyle = theme.StatusFailed
	case events.ProjectStopped:
		typeStyle = theme.StatusOffline
	case events.ProjectDiscovered:
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	return fmt.Sprintf("%s %s %s", ts, typeStyle.Render(fmt.Sprintf("%-20s", e.Type)), describeEvent(e))
}

// describeEvent renders the interesting payload fields of a lifecycle event.
func describeEvent(e events.Event) string {
	doc := gjson.ParseBytes(e.Data)

	var parts []string
	if id := doc.Get("project_id"); id.Exists() {
		parts = append(parts, id.String())
	}
	if t := doc.Get("type"); t.Exists() {
		parts = append(parts, "["+t.String()+"]")
	}
	if port := doc.Get("port"); port.Exists() {
		parts = append(parts, fmt.Sprintf(":%d", port.Int()))
	}
	if code := doc.Get("exit_code"); code.Exists() {
		parts = append(parts, fmt.Sprintf("exit=%d", code.Int()))
	}
	if known := doc.Get("projects"); known.Exists() {
		parts = append(parts, fmt.Sprintf("projects=%d", known.Int()))
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}
	return strings.Join(parts, " ")
}
