package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	flag "github.com/spf13/pflag"

	"github.com/mattjoyce/devdeck/internal/client"
	"github.com/mattjoyce/devdeck/internal/tui/watch"
)

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	addr, token := clientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}

	m := watch.New(client.New(*addr, *token))
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Dashboard error: %v\n", err)
		return 1
	}
	return 0
}
