package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/mattjoyce/devdeck/internal/client"
	"github.com/mattjoyce/devdeck/internal/history"
	"github.com/mattjoyce/devdeck/internal/supervisor"
)

const clientTimeout = 15 * time.Second

func clientFlags(fs *flag.FlagSet) (addr, token *string) {
	defAddr := os.Getenv(envAddr)
	if defAddr == "" {
		defAddr = client.DefaultAddr
	}
	addr = fs.String("addr", defAddr, "API address")
	token = fs.String("token", os.Getenv(envToken), "Bearer token")
	return addr, token
}

// projectArg returns the single positional project id.
func projectArg(fs *flag.FlagSet, action string) (string, bool) {
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: devdeck project %s <id>\n", action)
		return "", false
	}
	return fs.Arg(0), true
}

func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}

func apiFailure(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

func runProjectList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	addr, token := clientFlags(fs)
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()
	projects, err := client.New(*addr, *token).Projects(ctx)
	if err != nil {
		return apiFailure(err)
	}
	if *jsonOut {
		return printJSON(projects)
	}
	printProjects(projects)
	return 0
}

func printProjects(projects []supervisor.Project) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tPORT\tPID")
	for _, p := range projects {
		pid := "-"
		if p.PID != nil {
			pid = strconv.Itoa(*p.PID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", p.ID, p.Type, p.Status, p.Port, pid)
	}
	_ = tw.Flush()
}

func runProjectShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	addr, token := clientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}
	id, ok := projectArg(fs, "show")
	if !ok {
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()
	p, err := client.New(*addr, *token).Project(ctx, id)
	if err != nil {
		return apiFailure(err)
	}
	return printJSON(p)
}

func runProjectStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	addr, token := clientFlags(fs)
	port := fs.IntP("port", "p", 0, "Port to bind (default: the project's last port)")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}
	id, ok := projectArg(fs, "start")
	if !ok {
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()
	resp, err := client.New(*addr, *token).Start(ctx, id, *port)
	if err != nil {
		return apiFailure(err)
	}
	fmt.Printf("%s %s on port %d\n", id, resp.Status, resp.Port)
	return 0
}

func runProjectStop(args []string) int {
	fs := flag.NewFlagSet("stop", flag.ContinueOnError)
	addr, token := clientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}
	id, ok := projectArg(fs, "stop")
	if !ok {
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()
	if err := client.New(*addr, *token).Stop(ctx, id); err != nil {
		return apiFailure(err)
	}
	fmt.Printf("%s stopped\n", id)
	return 0
}

func runProjectLogs(args []string) int {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	addr, token := clientFlags(fs)
	follow := fs.BoolP("follow", "f", false, "Stream new output until interrupted")
	since := fs.Uint64("since", 0, "Only lines from this cursor onward")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}
	id, ok := projectArg(fs, "logs")
	if !ok {
		return 1
	}
	c := client.New(*addr, *token)

	if *follow {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := c.FollowLogs(ctx, id, func(line string) { fmt.Println(line) }); err != nil {
			return apiFailure(err)
		}
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()
	resp, err := c.Logs(ctx, id, *since)
	if err != nil {
		return apiFailure(err)
	}
	for _, line := range resp.Lines {
		fmt.Println(line)
	}
	return 0
}

func runProjectRuns(args []string) int {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	addr, token := clientFlags(fs)
	limit := fs.Int("limit", history.DefaultListLimit, "Maximum runs to show")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}
	id, ok := projectArg(fs, "runs")
	if !ok {
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()
	runs, err := client.New(*addr, *token).Runs(ctx, id, *limit)
	if err != nil {
		return apiFailure(err)
	}
	if *jsonOut {
		return printJSON(runs)
	}
	printRuns(runs)
	return 0
}

func printRuns(runs []history.Run) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tPORT\tPID\tENDED\tREASON\tEXIT")
	for _, r := range runs {
		ended, reason, exit := "-", "running", "-"
		if r.EndedAt != nil {
			ended = r.EndedAt.Local().Format(time.DateTime)
			reason = r.EndReason
		}
		if r.ExitCode != nil {
			exit = strconv.Itoa(*r.ExitCode)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Port, r.PID, ended, reason, exit)
	}
	_ = tw.Flush()
}
