//go:build unix

package procctl

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func startSleeper(t *testing.T) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
		}
	})
	return cmd
}

func TestSuspendResumeTerminate(t *testing.T) {
	cmd := startSleeper(t)
	c := New()
	pid := cmd.Process.Pid

	require.NoError(t, c.Suspend(pid))
	require.NoError(t, c.Resume(pid))
	require.NoError(t, c.Terminate(pid))

	err := cmd.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signal: killed")
	cmd.Process = nil
}

func TestTerminateWhileSuspended(t *testing.T) {
	cmd := startSleeper(t)
	c := New()
	pid := cmd.Process.Pid

	require.NoError(t, c.Suspend(pid))
	// Terminate must land even though the process is stopped.
	require.NoError(t, c.Terminate(pid))

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("suspended process was never killed")
	}
	cmd.Process = nil
}

func TestOperationsOnDeadPIDFail(t *testing.T) {
	cmd := startSleeper(t)
	pid := cmd.Process.Pid
	require.NoError(t, cmd.Process.Kill())
	_, _ = cmd.Process.Wait()
	cmd.Process = nil

	// The pid is now reaped; signalling it must surface ESRCH.
	c := New()
	err := c.Suspend(pid)
	require.Error(t, err)
	assert.ErrorIs(t, err, unix.ESRCH)
}
