//go:build unix

package supervisor

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killTree SIGKILLs every descendant of pid (deepest first), then the
// process group led by pid, then pid itself. Processes that are already
// gone are not an error.
func killTree(pid int) error {
	kids := descendants(pid)
	for i := len(kids) - 1; i >= 0; i-- {
		if err := unix.Kill(kids[i], unix.SIGKILL); err != nil && !gone(err) {
			return fmt.Errorf("kill descendant %d: %w", kids[i], err)
		}
	}
	// A group whose members are all zombies reports EPERM on darwin.
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !gone(err) && !errors.Is(err, unix.EPERM) {
		return fmt.Errorf("kill process group %d: %w", pid, err)
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !gone(err) {
		return fmt.Errorf("kill process %d: %w", pid, err)
	}
	return nil
}

func gone(err error) bool {
	return errors.Is(err, unix.ESRCH)
}
