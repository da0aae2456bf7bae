//go:build !unix

package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

// killTree kills pid only; there is no portable tree walk here.
func killTree(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill process %d: %w", pid, err)
	}
	return nil
}
