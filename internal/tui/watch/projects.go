package watch

import (
	"strconv"

	"github.com/charmbracelet/bubbles/table"

	"github.com/mattjoyce/devdeck/internal/detect"
	"github.com/mattjoyce/devdeck/internal/supervisor"
)

func newProjectTable(theme Theme) table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Project", Width: 28},
			{Title: "Type", Width: 8},
			{Title: "Port", Width: 6},
			{Title: "PID", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	t.SetStyles(theme.Table)
	return t
}

// filterProjects keeps projects of type t; the empty type keeps everything.
func filterProjects(projects []supervisor.Project, t detect.Type) []supervisor.Project {
	if t == "" {
		return projects
	}
	out := make([]supervisor.Project, 0, len(projects))
	for _, p := range projects {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}

// nextFilter cycles all → each type tag → all.
func nextFilter(current detect.Type) detect.Type {
	types := detect.Types()
	if current == "" {
		return types[0]
	}
	for i, t := range types {
		if t == current && i+1 < len(types) {
			return types[i+1]
		}
	}
	return ""
}

func projectRows(projects []supervisor.Project) []table.Row {
	rows := make([]table.Row, 0, len(projects))
	for _, p := range projects {
		status := "○"
		pid := "-"
		if p.Online() {
			status = "●"
			if p.PID != nil {
				pid = strconv.Itoa(*p.PID)
			}
		}
		rows = append(rows, table.Row{status, p.ID, string(p.Type), strconv.Itoa(p.Port), pid})
	}
	return rows
}
