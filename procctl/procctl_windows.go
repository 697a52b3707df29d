//go:build windows

package procctl

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// NtSuspendProcess/NtResumeProcess are undocumented but stable since XP.
// They are resolved at call time so merely loading this package never
// fails on a system where ntdll lacks them.
var (
	ntdll                = windows.NewLazySystemDLL("ntdll.dll")
	procNtSuspendProcess = ntdll.NewProc("NtSuspendProcess")
	procNtResumeProcess  = ntdll.NewProc("NtResumeProcess")
)

func (c *Controller) Suspend(pid int) error {
	return callNtProcess(procNtSuspendProcess, "suspend", pid)
}

func (c *Controller) Resume(pid int) error {
	return callNtProcess(procNtResumeProcess, "resume", pid)
}

func callNtProcess(proc *windows.LazyProc, op string, pid int) error {
	if err := proc.Find(); err != nil {
		return fmt.Errorf("%s pid %d: %w", op, pid, err)
	}
	h, err := windows.OpenProcess(windows.PROCESS_SUSPEND_RESUME, false, uint32(pid))
	if err != nil {
		return fmt.Errorf("%s pid %d: open process: %w", op, pid, err)
	}
	defer windows.CloseHandle(h)

	status, _, _ := proc.Call(uintptr(h))
	if status != 0 {
		return fmt.Errorf("%s pid %d: NTSTATUS 0x%08x", op, pid, status)
	}
	return nil
}

// Terminate resumes the process first so a suspended target does not
// linger while the termination is queued.
func (c *Controller) Terminate(pid int) error {
	h, err := windows.OpenProcess(windows.PROCESS_SUSPEND_RESUME|windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return fmt.Errorf("terminate pid %d: open process: %w", pid, err)
	}
	defer windows.CloseHandle(h)

	if procNtResumeProcess.Find() == nil {
		procNtResumeProcess.Call(uintptr(h))
	}
	if err := windows.TerminateProcess(h, 1); err != nil {
		return fmt.Errorf("terminate pid %d: %w", pid, err)
	}
	return nil
}
