package main

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"

	"github.com/mattjoyce/devdeck/internal/api"
	"github.com/mattjoyce/devdeck/internal/api/mocks"
	"github.com/mattjoyce/devdeck/internal/detect"
	"github.com/mattjoyce/devdeck/internal/history"
	"github.com/mattjoyce/devdeck/internal/logbuf"
	"github.com/mattjoyce/devdeck/internal/supervisor"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	// Drain concurrently so large output cannot fill the pipe.
	outCh := make(chan string, 1)
	errCh := make(chan string, 1)
	go func() { b, _ := io.ReadAll(stdoutR); outCh <- string(b) }()
	go func() { b, _ := io.ReadAll(stderrR); errCh <- string(b) }()

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdout, stderr := <-outCh, <-errCh
	_ = stdoutR.Close()
	_ = stderrR.Close()
	return code, stdout, stderr
}

func writeConfig(t *testing.T, body string) (dir, path string) {
	t.Helper()
	t.Setenv("PROJECT_PATH", "")
	t.Setenv("EXCLUDE_APPS", "")

	dir = t.TempDir()
	app := filepath.Join(dir, "apps", "site")
	if err := os.MkdirAll(app, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(app, "index.html"), []byte("<html></html>"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	path = filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir, path
}

func TestRunWithoutArgsPrintsUsage(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int { return run(nil) })
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Usage:") {
		t.Errorf("stderr missing usage: %q", stderr)
	}
}

func TestRunVersionAndHelp(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int { return run([]string{"version"}) })
	if code != 0 || !strings.Contains(stdout, "devdeck version "+version) {
		t.Fatalf("version: code=%d stdout=%q", code, stdout)
	}

	code, stdout, _ = captureOutputWithExitCode(t, func() int { return run([]string{"help"}) })
	if code != 0 || !strings.Contains(stdout, "project start <id>") {
		t.Fatalf("help: code=%d stdout=%q", code, stdout)
	}
}

func TestRunUnknownCommands(t *testing.T) {
	for _, argv := range [][]string{{"bogus"}, {"project", "bogus"}, {"config", "bogus"}, {"system", "bogus"}, {"project"}} {
		code, _, _ := captureOutputWithExitCode(t, func() int { return run(argv) })
		if code != 1 {
			t.Errorf("%v: exit code = %d, want 1", argv, code)
		}
	}
}

func TestNounHelp(t *testing.T) {
	for _, argv := range [][]string{{"project", "help"}, {"config", "--help"}, {"system", "-h"}} {
		code, stdout, _ := captureOutputWithExitCode(t, func() int { return run(argv) })
		if code != 0 || !strings.Contains(stdout, "Usage: devdeck") {
			t.Errorf("%v: code=%d stdout=%q", argv, code, stdout)
		}
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	_, path := writeConfig(t, "scan:\n  root: ./apps\napi:\n  auth:\n    api_key: hunter2\n")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigShow([]string{"--config", path})
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%q", code, stderr)
	}
	if strings.Contains(stdout, "hunter2") {
		t.Errorf("api key leaked:\n%s", stdout)
	}
	if !strings.Contains(stdout, "api_key: '********'") && !strings.Contains(stdout, `api_key: "********"`) {
		t.Errorf("masked key missing:\n%s", stdout)
	}
}

func TestConfigShowPathAsJSON(t *testing.T) {
	dir, path := writeConfig(t, "scan:\n  root: ./apps\n")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigShow([]string{"-c", path, "--json", "scan.root"})
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%q", code, stderr)
	}
	want := `"` + filepath.Join(dir, "apps") + `"`
	if strings.TrimSpace(stdout) != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}

	code, _, _ = captureOutputWithExitCode(t, func() int {
		return runConfigShow([]string{"-c", path, "scan.nope"})
	})
	if code != 1 {
		t.Errorf("missing path exit code = %d, want 1", code)
	}
}

func TestConfigCheck(t *testing.T) {
	_, path := writeConfig(t, "scan:\n  root: ./apps\nstate:\n  history: false\n")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", path})
	})
	if code != 0 {
		t.Fatalf("exit code = %d\nstdout=%s\nstderr=%s", code, stdout, stderr)
	}
	if !strings.Contains(stdout, "Configuration valid") || !strings.Contains(stdout, "1 project(s) found") {
		t.Errorf("unexpected report:\n%s", stdout)
	}
}

func TestConfigCheckMissingRoot(t *testing.T) {
	_, path := writeConfig(t, "scan:\n  root: ./nowhere\nstate:\n  history: false\n")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", path, "--json"})
	})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stdout, `"valid": false`) {
		t.Errorf("unexpected JSON:\n%s", stdout)
	}
}

func newAPIServer(t *testing.T) (*mocks.MockProjectSupervisor, *mocks.MockRunLister, string) {
	t.Helper()
	ctrl := gomock.NewController(t)
	sup := mocks.NewMockProjectSupervisor(ctrl)
	runs := mocks.NewMockRunLister(ctrl)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	srv := httptest.NewServer(api.New(api.Config{}, sup, api.Deps{Runs: runs}, logger).Handler())
	t.Cleanup(srv.Close)
	return sup, runs, srv.URL
}

func TestProjectList(t *testing.T) {
	sup, _, addr := newAPIServer(t)
	pid := 77
	sup.EXPECT().Rescan().Return([]supervisor.Project{
		{ID: "site", Type: detect.TypeStatic, Status: supervisor.StatusOnline, Port: 8080, PID: &pid},
		{ID: "api", Type: detect.TypePython, Status: supervisor.StatusOffline, Port: 8000},
	})

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runProjectList([]string{"--addr", addr})
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%q", code, stderr)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got:\n%s", stdout)
	}
	if !strings.Contains(lines[1], "site") || !strings.Contains(lines[1], "77") || !strings.Contains(lines[1], "online") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "api") || !strings.Contains(lines[2], "-") {
		t.Errorf("row 2 = %q", lines[2])
	}
}

func TestProjectStartAndStop(t *testing.T) {
	sup, _, addr := newAPIServer(t)
	pid := 5
	sup.EXPECT().Start(gomock.Any(), "site", 3001).
		Return(supervisor.Project{ID: "site", Status: supervisor.StatusOnline, Port: 3001, PID: &pid}, nil)
	sup.EXPECT().Stop(gomock.Any(), "site").Return(nil)
	sup.EXPECT().Start(gomock.Any(), "ghost", 0).Return(supervisor.Project{}, supervisor.ErrNotFound)

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runProjectStart([]string{"site", "--addr", addr, "--port", "3001"})
	})
	if code != 0 || strings.TrimSpace(stdout) != "site started on port 3001" {
		t.Fatalf("start: code=%d stdout=%q", code, stdout)
	}

	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runProjectStop([]string{"--addr", addr, "site"})
	})
	if code != 0 || strings.TrimSpace(stdout) != "site stopped" {
		t.Fatalf("stop: code=%d stdout=%q", code, stdout)
	}

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runProjectStart([]string{"--addr", addr, "ghost"})
	})
	if code != 1 || !strings.Contains(stderr, "404") {
		t.Fatalf("ghost: code=%d stderr=%q", code, stderr)
	}
}

func TestProjectStartRequiresID(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runProjectStart([]string{"--addr", "127.0.0.1:1"})
	})
	if code != 1 || !strings.Contains(stderr, "Usage: devdeck project start <id>") {
		t.Fatalf("code=%d stderr=%q", code, stderr)
	}
}

func TestProjectLogsAndRuns(t *testing.T) {
	sup, runs, addr := newAPIServer(t)
	buf := logbuf.New(10)
	buf.Append("ready in 300ms")
	buf.Append("GET / 200")
	sup.EXPECT().Project("site").Return(supervisor.Project{ID: "site"}, nil).Times(2)
	sup.EXPECT().LogBuffer("site").Return(buf)

	exit := 0
	ended := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	runs.EXPECT().ListRuns(gomock.Any(), "site", 2).Return([]history.Run{
		{ID: "r2", ProjectID: "site", Port: 8080, PID: 9, StartedAt: ended.Add(-time.Hour)},
		{ID: "r1", ProjectID: "site", Port: 8080, PID: 8, StartedAt: ended.Add(-2 * time.Hour), EndedAt: &ended, EndReason: history.ReasonStopped, ExitCode: &exit},
	}, nil)

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runProjectLogs([]string{"--addr", addr, "site"})
	})
	if code != 0 || stdout != "ready in 300ms\nGET / 200\n" {
		t.Fatalf("logs: code=%d stdout=%q", code, stdout)
	}

	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runProjectRuns([]string{"--addr", addr, "--limit", "2", "site"})
	})
	if code != 0 {
		t.Fatalf("runs: code=%d", code)
	}
	if !strings.Contains(stdout, "running") || !strings.Contains(stdout, "stopped") {
		t.Errorf("runs output:\n%s", stdout)
	}
}

func TestFlagHelpIsSuccess(t *testing.T) {
	code, _, _ := captureOutputWithExitCode(t, func() int { return runProjectList([]string{"--help"}) })
	if code != 0 {
		t.Errorf("--help exit code = %d, want 0", code)
	}
	code, _, _ = captureOutputWithExitCode(t, func() int { return runProjectList([]string{"--nope"}) })
	if code != 1 {
		t.Errorf("unknown flag exit code = %d, want 1", code)
	}
}
