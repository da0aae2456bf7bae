package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/devdeck/internal/detect"
	"github.com/mattjoyce/devdeck/internal/events"
	"github.com/mattjoyce/devdeck/internal/history"
	"github.com/mattjoyce/devdeck/internal/log"
	"github.com/mattjoyce/devdeck/internal/logbuf"
	"github.com/mattjoyce/devdeck/internal/metrics"
	"github.com/mattjoyce/devdeck/internal/ports"
)

// Config controls discovery and process launch.
type Config struct {
	Root        string
	Exclude     []string
	LogCapacity int
	Toolchain   Toolchain
}

// RunRecorder persists the start and end of every spawned process.
type RunRecorder interface {
	RecordStart(ctx context.Context, run history.Run) error
	RecordEnd(ctx context.Context, runID, reason string, exitCode *int, at time.Time) error
}

// Deps are optional collaborators. Nil fields are skipped.
type Deps struct {
	Events  *events.Hub
	History RunRecorder
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// proc is one spawned child. It is owned by the process table until Stop
// removes it or its reader observes the exit.
type proc struct {
	projectID string
	project   Project
	command   Command
	cmd       *exec.Cmd
	pid       int
	runID     string
	startedAt time.Time
	done      chan struct{}

	// Set by Stop. The reader drops output after it.
	stopped atomic.Bool
}

// Supervisor is the project registry plus the live process table.
type Supervisor struct {
	root        string
	exclude     map[string]struct{}
	logCapacity int
	toolchain   Toolchain

	events  *events.Hub
	history RunRecorder
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	projects map[string]*Project
	procs    map[string]*proc

	logsMu sync.RWMutex
	logs   map[string]*logbuf.Buffer

	portBusy func(port int) bool
	build    func(p Project, port int) (Command, error)
	kill     func(pid int) error
}

// New creates a Supervisor with an empty registry. Call Rescan to populate it.
func New(cfg Config, deps Deps) *Supervisor {
	root := cfg.Root
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	exclude := make(map[string]struct{}, len(cfg.Exclude))
	for _, name := range cfg.Exclude {
		exclude[name] = struct{}{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.WithComponent("supervisor")
	}
	capacity := cfg.LogCapacity
	if capacity <= 0 {
		capacity = logbuf.DefaultCapacity
	}

	s := &Supervisor{
		root:        root,
		exclude:     exclude,
		logCapacity: capacity,
		toolchain:   cfg.Toolchain.withDefaults(),
		events:      deps.Events,
		history:     deps.History,
		metrics:     deps.Metrics,
		logger:      logger,
		projects:    make(map[string]*Project),
		procs:       make(map[string]*proc),
		logs:        make(map[string]*logbuf.Buffer),
		portBusy:    ports.IsBusy,
		kill:        killTree,
	}
	s.build = func(p Project, port int) (Command, error) {
		return BuildCommand(p, port, s.toolchain)
	}
	return s
}

// Root returns the absolute scan root.
func (s *Supervisor) Root() string {
	return s.root
}

// Rescan walks the root's immediate subdirectories, merges what it finds into
// the registry and returns the full snapshot sorted by id. Known projects keep
// their status, pid and port. A missing or unreadable root yields an empty
// result and leaves the registry untouched.
func (s *Supervisor) Rescan() []Project {
	found, ok := s.scan()
	if !ok {
		return []Project{}
	}

	s.mu.Lock()
	var discovered []Project
	for _, c := range found {
		if p, exists := s.projects[c.ID]; exists {
			p.Name = c.Name
			p.Path = c.Path
			p.Type = c.Type
			continue
		}
		c.Status = StatusOffline
		c.Port = ports.Default(c.Type)
		p := c
		s.projects[c.ID] = &p
		discovered = append(discovered, p)
	}
	snapshot := s.snapshotLocked()
	known, online := s.countsLocked()
	s.mu.Unlock()

	for _, p := range discovered {
		s.logger.Info("project discovered", "project_id", p.ID, "type", p.Type, "port", p.Port)
		s.publish(events.ProjectDiscovered, events.ProjectChange{ProjectID: p.ID, Type: string(p.Type), Port: p.Port})
	}
	s.publish(events.ProjectsRescanned, map[string]int{"projects": known, "discovered": len(discovered)})
	s.metrics.SetProjects(known, online)
	return snapshot
}

func (s *Supervisor) scan() ([]Project, bool) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		s.logger.Warn("scan root unreadable", "root", s.root, "error", err)
		return nil, false
	}

	found := make([]Project, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if _, skip := s.exclude[name]; skip {
			continue
		}
		dir := filepath.Join(s.root, name)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		t, ok := detect.Detect(dir)
		if !ok {
			continue
		}
		found = append(found, Project{ID: name, Name: name, Path: dir, Type: t})
	}
	return found, true
}

// Projects returns the current registry without rescanning, sorted by id.
func (s *Supervisor) Projects() []Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Project returns a copy of one project.
func (s *Supervisor) Project(id string) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return Project{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return p.clone(), nil
}

// Counts returns the number of known and online projects.
func (s *Supervisor) Counts() (known, online int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countsLocked()
}

func (s *Supervisor) snapshotLocked() []Project {
	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Supervisor) countsLocked() (known, online int) {
	return len(s.projects), len(s.procs)
}

// LogBuffer returns the buffer for id, creating it on first use.
func (s *Supervisor) LogBuffer(id string) *logbuf.Buffer {
	s.logsMu.RLock()
	buf, ok := s.logs[id]
	s.logsMu.RUnlock()
	if ok {
		return buf
	}

	s.logsMu.Lock()
	defer s.logsMu.Unlock()
	if buf, ok := s.logs[id]; ok {
		return buf
	}
	buf = logbuf.New(s.logCapacity)
	s.logs[id] = buf
	return buf
}

// Start launches the project on port. Port 0 means the project's remembered
// port. Starting an online project is a no-op that returns its current state.
// The spawn is not tied to ctx: abandoning the request does not undo it.
func (s *Supervisor) Start(ctx context.Context, id string, port int) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return Project{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if p.Status == StatusOnline {
		return p.clone(), nil
	}
	if port == 0 {
		port = p.Port
	}
	if port == 0 {
		port = ports.Default(p.Type)
	}
	if !ports.Valid(port) {
		return Project{}, fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	if s.portBusy(port) {
		s.metrics.StartAttempt(string(p.Type), metrics.ResultPortInUse)
		return Project{}, fmt.Errorf("start %s: %w: %d", id, ErrPortInUse, port)
	}
	command, err := s.build(p.clone(), port)
	if err != nil {
		s.metrics.StartAttempt(string(p.Type), metrics.ResultUnsupported)
		return Project{}, fmt.Errorf("start %s: %w", id, err)
	}

	cmd, out, err := spawn(p.Path, command)
	if err != nil {
		s.metrics.StartAttempt(string(p.Type), metrics.ResultSpawnFailed)
		return Project{}, fmt.Errorf("start %s: %w", id, err)
	}

	pid := cmd.Process.Pid
	p.Status = StatusOnline
	p.PID = &pid
	p.Port = port

	pr := &proc{
		projectID: id,
		project:   p.clone(),
		command:   command,
		cmd:       cmd,
		pid:       pid,
		runID:     history.NewRunID(),
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	s.procs[id] = pr

	buf := s.LogBuffer(id)
	buf.Reset()
	go s.drain(pr, out, buf)

	s.logger.InfoContext(ctx, "project started", "project_id", id, "pid", pid, "port", port, "command", command.String())
	s.publish(events.ProjectStarted, events.ProjectChange{ProjectID: id, Type: string(p.Type), Port: port, PID: pid})
	s.metrics.StartAttempt(string(p.Type), metrics.ResultStarted)
	s.metrics.SetProjects(s.countsLocked())
	return p.clone(), nil
}

// spawn starts the child in dir in its own process group with stdout and
// stderr merged into the returned reader.
func spawn(dir string, c Command) (*exec.Cmd, io.ReadCloser, error) {
	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), c.Env...)
	setProcessGroup(cmd)

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("create output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, nil, fmt.Errorf("spawn %s: %w", c.Name, err)
	}
	// The child holds its own copy; closing ours lets the reader see EOF.
	_ = pw.Close()
	return cmd, pr, nil
}

// Stop kills the project's process tree. Projects without a live process,
// including unknown ids, are a no-op. If the kill fails the project stays
// online.
func (s *Supervisor) Stop(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pr, ok := s.procs[id]
	if !ok {
		return nil
	}
	if err := s.kill(pr.pid); err != nil {
		return fmt.Errorf("stop %s: %w", id, err)
	}

	pr.stopped.Store(true)
	delete(s.procs, id)
	if p, ok := s.projects[id]; ok {
		p.Status = StatusOffline
		p.PID = nil
	}

	s.logger.InfoContext(ctx, "project stopped", "project_id", id, "pid", pr.pid)
	s.publish(events.ProjectStopped, events.ProjectChange{ProjectID: id, Type: string(pr.project.Type), Port: pr.project.Port, PID: pr.pid})
	s.metrics.Stopped(string(pr.project.Type))
	s.metrics.SetProjects(s.countsLocked())
	return nil
}

// StopAll stops every live project and waits for their readers to finish
// or ctx to end.
func (s *Supervisor) StopAll(ctx context.Context) error {
	s.mu.Lock()
	live := make([]*proc, 0, len(s.procs))
	for _, pr := range s.procs {
		live = append(live, pr)
	}
	s.mu.Unlock()

	var firstErr error
	for _, pr := range live {
		if err := s.Stop(ctx, pr.projectID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, pr := range live {
		select {
		case <-pr.done:
		case <-ctx.Done():
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			return firstErr
		}
	}
	return firstErr
}

func (s *Supervisor) publish(eventType string, data any) {
	if s.events == nil {
		return
	}
	s.events.Publish(eventType, data)
}
