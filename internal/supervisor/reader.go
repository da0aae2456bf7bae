package supervisor

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mattjoyce/devdeck/internal/events"
	"github.com/mattjoyce/devdeck/internal/history"
	"github.com/mattjoyce/devdeck/internal/logbuf"
)

// historyTimeout bounds each run-history write.
const historyTimeout = 5 * time.Second

// drain is the reader for one child. It owns out and pr.cmd.Wait.
func (s *Supervisor) drain(pr *proc, out io.ReadCloser, buf *logbuf.Buffer) {
	defer close(pr.done)
	s.recordStart(pr)

	r := bufio.NewReader(out)
	for {
		line, err := r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line != "" && !pr.stopped.Load() {
			buf.Append(line)
			s.metrics.LogLine()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.logger.Warn("read child output", "project_id", pr.projectID, "error", err)
			}
			break
		}
	}
	_ = out.Close()

	waitErr := pr.cmd.Wait()
	code := exitCode(pr.cmd)

	s.mu.Lock()
	crashed := s.procs[pr.projectID] == pr
	if crashed {
		delete(s.procs, pr.projectID)
		if p, ok := s.projects[pr.projectID]; ok {
			p.Status = StatusOffline
			p.PID = nil
		}
	}
	known, online := s.countsLocked()
	s.mu.Unlock()

	reason := history.ReasonStopped
	if crashed {
		reason = history.ReasonExited
		s.logger.Warn("project exited", "project_id", pr.projectID, "pid", pr.pid, "exit_code", code, "error", waitErr)
		s.publish(events.ProjectExited, events.ProjectChange{
			ProjectID: pr.projectID,
			Type:      string(pr.project.Type),
			Port:      pr.project.Port,
			PID:       pr.pid,
			ExitCode:  code,
		})
		s.metrics.Exited(string(pr.project.Type))
		s.metrics.SetProjects(known, online)
	}
	s.recordEnd(pr, reason, code)
}

func exitCode(cmd *exec.Cmd) *int {
	if cmd.ProcessState == nil {
		return nil
	}
	code := cmd.ProcessState.ExitCode()
	return &code
}

func (s *Supervisor) recordStart(pr *proc) {
	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	err := s.history.RecordStart(ctx, history.Run{
		ID:        pr.runID,
		ProjectID: pr.projectID,
		Type:      string(pr.project.Type),
		Port:      pr.project.Port,
		PID:       pr.pid,
		Command:   pr.command.String(),
		StartedAt: pr.startedAt,
	})
	if err != nil {
		s.logger.Warn("record run start", "project_id", pr.projectID, "run_id", pr.runID, "error", err)
	}
}

func (s *Supervisor) recordEnd(pr *proc, reason string, code *int) {
	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := s.history.RecordEnd(ctx, pr.runID, reason, code, time.Now()); err != nil {
		s.logger.Warn("record run end", "project_id", pr.projectID, "run_id", pr.runID, "error", err)
	}
}
