package ffmpeg

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// checkResources verifies that the host has enough headroom to start
// another encode. A probe failure is logged but never blocks the job.
func (r *Runner) checkResources() error {
	p, err := cpu.Percent(time.Second, false)
	if err != nil {
		r.logger.Warn("could not get CPU usage", zap.Error(err))
	} else if len(p) > 0 && p[0] > (100.0-r.cfg.ThrottleCPU) {
		return fmt.Errorf("not enough idle CPU: current usage %.2f%%, idle threshold %.2f%%", p[0], r.cfg.ThrottleCPU)
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		r.logger.Warn("could not get memory usage", zap.Error(err))
	} else if vm.Available < uint64(r.cfg.ThrottleFreeMem) {
		return fmt.Errorf("not enough free memory: available %d, required %d", vm.Available, uint64(r.cfg.ThrottleFreeMem))
	}

	d, err := disk.Usage(os.TempDir())
	if err != nil {
		r.logger.Warn("could not get disk usage", zap.String("path", os.TempDir()), zap.Error(err))
	} else if d.Free < uint64(r.cfg.ThrottleFreeDisk) {
		return fmt.Errorf("not enough free disk space: available %d, required %d", d.Free, uint64(r.cfg.ThrottleFreeDisk))
	}
	return nil
}
