//go:build unix

package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/devdeck/internal/detect"
	"github.com/mattjoyce/devdeck/internal/events"
	"github.com/mattjoyce/devdeck/internal/history"
	"github.com/mattjoyce/devdeck/internal/ports"
)

type fakeRecorder struct {
	mu     sync.Mutex
	starts []history.Run
	ends   map[string]string
	codes  map[string]*int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{ends: map[string]string{}, codes: map[string]*int{}}
}

func (f *fakeRecorder) RecordStart(_ context.Context, run history.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, run)
	return nil
}

func (f *fakeRecorder) RecordEnd(_ context.Context, runID, reason string, exitCode *int, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends[runID] = reason
	f.codes[runID] = exitCode
	return nil
}

func (f *fakeRecorder) end(runID string) (string, *int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reason, ok := f.ends[runID]
	return reason, f.codes[runID], ok
}

func (f *fakeRecorder) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

// fixtureRoot lays out the app-a (vite) and app-b (FastAPI) projects plus
// an excluded directory and one with no recognisable type.
func fixtureRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "app-a", "package.json"), `{"devDependencies":{"vite":"^5.0.0"}}`)
	writeFile(t, filepath.Join(root, "app-b", "main.py"), "from fastapi import FastAPI\napp = FastAPI()\n")
	writeFile(t, filepath.Join(root, "node_modules", "package.json"), `{}`)
	writeFile(t, filepath.Join(root, "notes", "README.md"), "nothing to run")
	writeFile(t, filepath.Join(root, "loose.txt"), "file at root")
	return root
}

type harness struct {
	sup      *Supervisor
	hub      *events.Hub
	recorder *fakeRecorder
	spawns   atomic.Int32
}

// newHarness wires a Supervisor whose commands run script under sh instead
// of a real dev server.
func newHarness(t *testing.T, root, script string) *harness {
	t.Helper()
	h := &harness{hub: events.NewHub(64), recorder: newFakeRecorder()}
	h.sup = New(Config{Root: root, Exclude: []string{"node_modules"}, LogCapacity: 100}, Deps{
		Events:  h.hub,
		History: h.recorder,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	h.sup.portBusy = func(int) bool { return false }
	h.sup.build = func(Project, int) (Command, error) {
		h.spawns.Add(1)
		return Command{Name: "sh", Args: []string{"-c", script}}, nil
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.sup.StopAll(ctx)
	})
	return h
}

func waitStatus(t *testing.T, s *Supervisor, id string, want Status) Project {
	t.Helper()
	var last Project
	require.Eventually(t, func() bool {
		p, err := s.Project(id)
		require.NoError(t, err)
		last = p
		return p.Status == want
	}, 5*time.Second, 10*time.Millisecond, "project %s never reached %s", id, want)
	return last
}

func TestRescanScenario(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixtureRoot(t), "sleep 30")

	projects := h.sup.Rescan()
	require.Len(t, projects, 2)

	assert.Equal(t, "app-a", projects[0].ID)
	assert.Equal(t, detect.TypeVite, projects[0].Type)
	assert.Equal(t, 5173, projects[0].Port)
	assert.Equal(t, StatusOffline, projects[0].Status)
	assert.Nil(t, projects[0].PID)
	assert.True(t, filepath.IsAbs(projects[0].Path))

	assert.Equal(t, "app-b", projects[1].ID)
	assert.Equal(t, detect.TypePython, projects[1].Type)
	assert.Equal(t, 8000, projects[1].Port)
	assert.Equal(t, StatusOffline, projects[1].Status)

	started, err := h.sup.Start(context.Background(), "app-a", 5173)
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, started.Status)
	require.NotNil(t, started.PID)
	assert.Equal(t, 5173, started.Port)
	assert.True(t, processAlive(*started.PID))

	pid := *started.PID
	require.NoError(t, h.sup.Stop(context.Background(), "app-a"))

	stopped, err := h.sup.Project("app-a")
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, stopped.Status)
	assert.Nil(t, stopped.PID)
	assert.Equal(t, 5173, stopped.Port)
	require.Eventually(t, func() bool { return !processAlive(pid) }, 5*time.Second, 10*time.Millisecond)
}

func TestRescanIsIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixtureRoot(t), "sleep 30")

	first, err := json.Marshal(h.sup.Rescan())
	require.NoError(t, err)
	second, err := json.Marshal(h.sup.Rescan())
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.Contains(t, string(first), `"pid":null`)
}

func TestRescanMissingRoot(t *testing.T) {
	t.Parallel()
	h := newHarness(t, filepath.Join(t.TempDir(), "missing"), "true")
	projects := h.sup.Rescan()
	assert.NotNil(t, projects)
	assert.Empty(t, projects)
}

func TestRescanPreservesOnlineProject(t *testing.T) {
	t.Parallel()
	root := fixtureRoot(t)
	h := newHarness(t, root, "sleep 30")
	h.sup.Rescan()

	started, err := h.sup.Start(context.Background(), "app-b", 9001)
	require.NoError(t, err)

	// Reclassify app-b on disk; status, pid and port must survive.
	writeFile(t, filepath.Join(root, "app-b", "package.json"), `{"dependencies":{"next":"14"}}`)
	var again Project
	for _, p := range h.sup.Rescan() {
		if p.ID == "app-b" {
			again = p
		}
	}
	assert.Equal(t, detect.TypeNextJS, again.Type)
	assert.Equal(t, StatusOnline, again.Status)
	assert.Equal(t, 9001, again.Port)
	require.NotNil(t, again.PID)
	assert.Equal(t, *started.PID, *again.PID)
}

func TestRescanKeepsVanishedProjects(t *testing.T) {
	t.Parallel()
	root := fixtureRoot(t)
	h := newHarness(t, root, "true")
	require.Len(t, h.sup.Rescan(), 2)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "app-a")))
	assert.Len(t, h.sup.Rescan(), 2)
}

func TestRescanPublishesDiscoveryOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixtureRoot(t), "true")
	h.sup.Rescan()
	h.sup.Rescan()

	discovered := 0
	rescans := 0
	for _, ev := range h.hub.SnapshotSince(0) {
		switch ev.Type {
		case events.ProjectDiscovered:
			discovered++
		case events.ProjectsRescanned:
			rescans++
		}
	}
	assert.Equal(t, 2, discovered)
	assert.Equal(t, 2, rescans)
}

func TestStartUnknownProject(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixtureRoot(t), "true")
	_, err := h.sup.Start(context.Background(), "nope", 3000)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.sup.Project("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStartInvalidPort(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixtureRoot(t), "true")
	h.sup.Rescan()
	_, err := h.sup.Start(context.Background(), "app-a", 70000)
	assert.ErrorIs(t, err, ErrInvalidPort)
	assert.Zero(t, h.spawns.Load())
}

func TestStartUsesRememberedPort(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixtureRoot(t), "sleep 30")
	h.sup.Rescan()
	p, err := h.sup.Start(context.Background(), "app-b", 0)
	require.NoError(t, err)
	assert.Equal(t, 8000, p.Port)
}

func TestStartPortInUseLeavesRegistryUnchanged(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixtureRoot(t), "sleep 30")
	h.sup.portBusy = ports.IsBusy
	h.sup.Rescan()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	before, err := json.Marshal(h.sup.Projects())
	require.NoError(t, err)

	_, err = h.sup.Start(context.Background(), "app-a", port)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPortInUse)
	assert.Contains(t, err.Error(), fmt.Sprint(port))

	after, err := json.Marshal(h.sup.Projects())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
	assert.Zero(t, h.spawns.Load())
}

func TestStartUnsupportedType(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "reqs", "requirements.txt"), "flask\n")

	s := New(Config{Root: root}, Deps{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	s.portBusy = func(int) bool { return false }
	s.Rescan()

	_, err := s.Start(context.Background(), "reqs", 8000)
	assert.ErrorIs(t, err, ErrUnsupportedType)
	p, err := s.Project("reqs")
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, p.Status)
}

func TestStartSpawnFailureLeavesProjectOffline(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixtureRoot(t), "true")
	h.sup.build = func(Project, int) (Command, error) {
		return Command{Name: filepath.Join(t.TempDir(), "does-not-exist")}, nil
	}
	h.sup.Rescan()

	_, err := h.sup.Start(context.Background(), "app-a", 5173)
	require.Error(t, err)
	p, err := h.sup.Project("app-a")
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, p.Status)
	assert.Nil(t, p.PID)
}

func TestConcurrentStartSpawnsOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixtureRoot(t), "sleep 30")
	h.sup.Rescan()

	const callers = 16
	var wg sync.WaitGroup
	pids := make([]int, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := h.sup.Start(context.Background(), "app-a", 5173)
			errs[i] = err
			if p.PID != nil {
				pids[i] = *p.PID
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), h.spawns.Load())
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, pids[0], pids[i])
	}
}

func TestStopWithoutProcessIsNoop(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixtureRoot(t), "true")
	h.sup.Rescan()

	before := h.sup.Projects()
	require.NoError(t, h.sup.Stop(context.Background(), "app-a"))
	require.NoError(t, h.sup.Stop(context.Background(), "unknown"))
	assert.Equal(t, before, h.sup.Projects())
}

func TestStopKillFailureKeepsProjectOnline(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixtureRoot(t), "sleep 30")
	h.sup.Rescan()
	_, err := h.sup.Start(context.Background(), "app-a", 5173)
	require.NoError(t, err)

	realKill := h.sup.kill
	h.sup.kill = func(int) error { return fmt.Errorf("operation not permitted") }
	err = h.sup.Stop(context.Background(), "app-a")
	require.Error(t, err)

	p, err := h.sup.Project("app-a")
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, p.Status)

	h.sup.kill = realKill
	require.NoError(t, h.sup.Stop(context.Background(), "app-a"))
}

func TestStopRecordsStoppedRun(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixtureRoot(t), "echo ready; sleep 30")
	h.sup.Rescan()
	_, err := h.sup.Start(context.Background(), "app-a", 5173)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.recorder.startCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, h.sup.Stop(context.Background(), "app-a"))

	runID := h.recorder.starts[0].ID
	require.Eventually(t, func() bool {
		_, _, ok := h.recorder.end(runID)
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	reason, _, _ := h.recorder.end(runID)
	assert.Equal(t, history.ReasonStopped, reason)

	var sawStopped, sawExited bool
	for _, ev := range h.hub.SnapshotSince(0) {
		sawStopped = sawStopped || ev.Type == events.ProjectStopped
		sawExited = sawExited || ev.Type == events.ProjectExited
	}
	assert.True(t, sawStopped)
	assert.False(t, sawExited)
}

func TestReaderDetectsCrash(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixtureRoot(t), "echo booting; echo 'fatal: boom' 1>&2; exit 3")
	h.sup.Rescan()

	_, err := h.sup.Start(context.Background(), "app-b", 8000)
	require.NoError(t, err)

	p := waitStatus(t, h.sup, "app-b", StatusOffline)
	assert.Nil(t, p.PID)
	assert.Equal(t, 8000, p.Port)

	assert.Equal(t, []string{"booting", "fatal: boom"}, h.sup.LogBuffer("app-b").Lines())

	require.Eventually(t, func() bool {
		if h.recorder.startCount() != 1 {
			return false
		}
		_, _, ok := h.recorder.end(h.recorder.starts[0].ID)
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	reason, code, _ := h.recorder.end(h.recorder.starts[0].ID)
	assert.Equal(t, history.ReasonExited, reason)
	require.NotNil(t, code)
	assert.Equal(t, 3, *code)

	var exited *events.Event
	for _, ev := range h.hub.SnapshotSince(0) {
		if ev.Type == events.ProjectExited {
			exited = &ev
		}
	}
	require.NotNil(t, exited)
	var change events.ProjectChange
	require.NoError(t, json.Unmarshal(exited.Data, &change))
	assert.Equal(t, "app-b", change.ProjectID)
	require.NotNil(t, change.ExitCode)
	assert.Equal(t, 3, *change.ExitCode)
}

func TestStartResetsLogBuffer(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixtureRoot(t), "echo first; echo run")
	h.sup.Rescan()

	_, err := h.sup.Start(context.Background(), "app-a", 5173)
	require.NoError(t, err)
	waitStatus(t, h.sup, "app-a", StatusOffline)
	buf := h.sup.LogBuffer("app-a")
	require.Eventually(t, func() bool { return buf.Len() == 2 }, 5*time.Second, 10*time.Millisecond)

	h.sup.build = func(Project, int) (Command, error) {
		return Command{Name: "sh", Args: []string{"-c", "echo second; sleep 30"}}, nil
	}
	_, err = h.sup.Start(context.Background(), "app-a", 5173)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return buf.Len() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"second"}, buf.Lines())
}

func TestLogsSurviveStop(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixtureRoot(t), "echo hello; sleep 30")
	h.sup.Rescan()
	_, err := h.sup.Start(context.Background(), "app-a", 5173)
	require.NoError(t, err)

	buf := h.sup.LogBuffer("app-a")
	require.Eventually(t, func() bool { return buf.Len() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, h.sup.Stop(context.Background(), "app-a"))
	assert.Equal(t, []string{"hello"}, buf.Lines())
}

func TestLogBufferSkipsBlankLinesAndTrimsCR(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixtureRoot(t), `printf 'one\r\n\n\ntwo\nthree'`)
	h.sup.Rescan()
	_, err := h.sup.Start(context.Background(), "app-a", 5173)
	require.NoError(t, err)
	waitStatus(t, h.sup, "app-a", StatusOffline)

	buf := h.sup.LogBuffer("app-a")
	require.Eventually(t, func() bool { return buf.Len() == 3 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"one", "two", "three"}, buf.Lines())
}

func TestLogBufferIsSharedPerProject(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixtureRoot(t), "true")
	assert.Same(t, h.sup.LogBuffer("app-a"), h.sup.LogBuffer("app-a"))
	assert.NotSame(t, h.sup.LogBuffer("app-a"), h.sup.LogBuffer("app-b"))
	assert.Equal(t, 100, h.sup.LogBuffer("app-a").Cap())
}

func TestStopAll(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixtureRoot(t), "sleep 30")
	h.sup.Rescan()
	_, err := h.sup.Start(context.Background(), "app-a", 5173)
	require.NoError(t, err)
	_, err = h.sup.Start(context.Background(), "app-b", 8000)
	require.NoError(t, err)

	known, online := h.sup.Counts()
	assert.Equal(t, 2, known)
	assert.Equal(t, 2, online)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.sup.StopAll(ctx))

	_, online = h.sup.Counts()
	assert.Zero(t, online)
	for _, p := range h.sup.Projects() {
		assert.Equal(t, StatusOffline, p.Status)
	}
}

func TestProjectsReturnsCopies(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixtureRoot(t), "sleep 30")
	h.sup.Rescan()
	_, err := h.sup.Start(context.Background(), "app-a", 5173)
	require.NoError(t, err)

	snap := h.sup.Projects()
	*snap[0].PID = -1
	snap[0].Status = StatusOffline

	p, err := h.sup.Project("app-a")
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, p.Status)
	assert.NotEqual(t, -1, *p.PID)
}
