package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/devdeck/internal/detect"
	"github.com/mattjoyce/devdeck/internal/supervisor"
)

// HealthState tracks server health from /healthz polling.
type HealthState struct {
	Status        string
	UptimeSeconds int64
	Connected     bool
	LastCheck     time.Time
}

// Stats are the dashboard's project counters.
type Stats struct {
	Total   int
	Online  int
	Offline int
}

func computeStats(projects []supervisor.Project) Stats {
	s := Stats{Total: len(projects)}
	for _, p := range projects {
		if p.Online() {
			s.Online++
		}
	}
	s.Offline = s.Total - s.Online
	return s
}

func renderHeader(health HealthState, stats Stats, filter detect.Type, ticker Ticker, spinner Spinner, theme Theme, width int) string {
	innerWidth := width - 4

	statusText := theme.StatusOnline.Render("CONNECTED")
	if !health.Connected {
		statusText = theme.StatusFailed.Render("CONNECTING")
	} else if health.Status != "ok" && health.Status != "" {
		statusText = theme.StatusFailed.Render("DEGRADED")
	}

	uptime := formatDuration(time.Duration(health.UptimeSeconds) * time.Second)

	lastEventStr := "never"
	if !spinner.LastEvent().IsZero() {
		lastEventStr = fmt.Sprintf("%s ago", time.Since(spinner.LastEvent()).Round(time.Second))
	}

	tickerStr := theme.Highlight.Render(ticker.Current())
	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := fmt.Sprintf(" DEVDECK %s", tickerStr)

	pad := max(1, innerWidth-lipgloss.Width(titleText)-lipgloss.Width(clock)-4)
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	filterText := "all"
	if filter != "" {
		filterText = string(filter)
	}
	statsLine := fmt.Sprintf(" %s  up %s  Total: %d  %s  %s  Filter: %s",
		statusText,
		uptime,
		stats.Total,
		theme.StatusOnline.Render(fmt.Sprintf("Online: %d", stats.Online)),
		theme.StatusOffline.Render(fmt.Sprintf("Offline: %d", stats.Offline)),
		theme.Highlight.Render(filterText),
	)

	activityLine := fmt.Sprintf(" Last event: %s %s", lastEventStr, spinner.Render(theme))

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, activityLine)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
