//go:build unix

package procctl

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func (c *Controller) Suspend(pid int) error {
	if err := unix.Kill(pid, unix.SIGSTOP); err != nil {
		return fmt.Errorf("suspend pid %d: %w", pid, err)
	}
	return nil
}

func (c *Controller) Resume(pid int) error {
	if err := unix.Kill(pid, unix.SIGCONT); err != nil {
		return fmt.Errorf("resume pid %d: %w", pid, err)
	}
	return nil
}

// Terminate continues the process first: a stopped process would otherwise
// sit in limbo until the kill is delivered on resume.
func (c *Controller) Terminate(pid int) error {
	_ = unix.Kill(pid, unix.SIGCONT)
	if err := unix.Kill(pid, unix.SIGKILL); err != nil {
		return fmt.Errorf("terminate pid %d: %w", pid, err)
	}
	return nil
}
