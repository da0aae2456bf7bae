package main

import (
	"fmt"
	"io"
	"os"
)

const version = "0.1.0"

// Environment defaults for the client commands.
const (
	envAddr  = "DEVDECK_ADDR"
	envToken = "DEVDECK_TOKEN"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	if len(argv) < 1 {
		printUsage(os.Stderr)
		return 1
	}

	cmd := argv[0]
	args := argv[1:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "project":
		return runProjectNoun(args)
	case "config":
		return runConfigNoun(args)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(args)
	case "watch":
		return runWatch(args)
	case "doctor":
		return runConfigCheck(args)
	case "version":
		fmt.Printf("devdeck version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `devdeck - discover, run and watch local dev projects

Usage:
  devdeck <noun> <action> [flags]

Core Resources (Nouns):
  system    Supervisor lifecycle
  project   Discovered projects and their processes
  config    Configuration validation and inspection

System Commands:
  system start         Run the supervisor and API in the foreground

Project Commands:
  project list         Rescan and list projects
  project show <id>    Show one project
  project start <id>   Start a project (--port N)
  project stop <id>    Stop a project and its process tree
  project logs <id>    Print captured output (--follow to stream)
  project runs <id>    Show recorded runs

Config Commands:
  config check         Validate configuration and toolchain
  config show [path]   Print the effective configuration

General:
  watch                Terminal dashboard
  version              Show version information
  help                 Show this help message

Use 'devdeck <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	switch action := args[0]; action {
	case "start":
		return runStart(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runProjectNoun(args []string) int {
	if len(args) < 1 {
		printProjectNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printProjectNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "list", "ls":
		return runProjectList(actionArgs)
	case "show":
		return runProjectShow(actionArgs)
	case "start":
		return runProjectStart(actionArgs)
	case "stop":
		return runProjectStop(actionArgs)
	case "logs":
		return runProjectLogs(actionArgs)
	case "runs":
		return runProjectRuns(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown project action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	switch action := args[0]; action {
	case "check":
		return runConfigCheck(args[1:])
	case "show":
		return runConfigShow(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func printSystemNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: devdeck system start [--config PATH] [--root DIR] [--listen ADDR]")
}

func printProjectNounHelp(w io.Writer) {
	fmt.Fprint(w, `Usage: devdeck project <list|show|start|stop|logs|runs> [id] [flags]

Flags (all actions):
  --addr ADDR     API address (default $DEVDECK_ADDR or 127.0.0.1:8765)
  --token TOKEN   Bearer token (default $DEVDECK_TOKEN)
`)
}

func printConfigNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: devdeck config <check|show> [--config PATH] [--json]")
}
