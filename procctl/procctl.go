// Package procctl suspends, resumes, and terminates external processes by
// pid. On Unix this is plain job-control signalling; on Windows it reaches
// for the undocumented ntdll suspend calls because the Win32 API has no
// whole-process equivalent.
package procctl

// Controller operates on processes owned by this daemon's workers. It
// satisfies the scheduler's Controller interface.
type Controller struct{}

func New() *Controller {
	return &Controller{}
}
