package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"convertd/config"
	"convertd/events"
	"convertd/task"
)

// Runner executes conversion tasks against the external encoder binaries.
// It satisfies the scheduler's Runner interface.
type Runner struct {
	cfg    *config.Config
	prober *Prober
	bus    *events.Bus
	logger *zap.Logger
}

func NewRunner(cfg *config.Config, prober *Prober, bus *events.Bus, logger *zap.Logger) (*Runner, error) {
	if _, err := exec.LookPath(cfg.FFmpegBin); err != nil {
		return nil, fmt.Errorf("ffmpeg binary not found or not in PATH: %s", cfg.FFmpegBin)
	}
	return &Runner{cfg: cfg, prober: prober, bus: bus, logger: logger}, nil
}

// Run executes one task end to end, reporting every spawned process
// through the started callback. Upscale tasks take the multi-stage path.
func (r *Runner) Run(ctx context.Context, t *task.Task, started func(pid int)) error {
	if t.UsesUpscale() {
		return r.runUpscale(ctx, t, started)
	}

	if err := r.checkResources(); err != nil {
		return fmt.Errorf("insufficient system resources: %w", err)
	}

	outputPath := BuildOutputPath(t.InputPath, t.Config.Container, t.OutputName)
	args, err := BuildArgs(t.InputPath, outputPath, &t.Config)
	if err != nil {
		return err
	}

	tracker := &timeProgress{expected: r.resolveExpectedDuration(ctx, t)}

	r.logger.Info("starting encode",
		zap.String("task", t.ID),
		zap.String("output", outputPath),
		zap.Strings("args", args))

	r.bus.Publish(events.Started(t.ID))
	r.bus.Publish(events.Progress(t.ID, 0))

	err = r.runStage(ctx, "encoder", r.cfg.FFmpegBin, args, started, func(line string) {
		r.bus.Publish(events.Log(t.ID, line))
		if pct, ok := tracker.observe(line); ok {
			r.bus.Publish(events.Progress(t.ID, pct))
		}
	})
	if err != nil {
		// Drop whatever partial output the failed encode left behind.
		os.Remove(outputPath)
		return err
	}

	r.bus.Publish(events.Completed(t.ID, outputPath))
	return nil
}

// resolveExpectedDuration computes how many seconds of media the encode is
// expected to process, accounting for the trim window. Zero means unknown;
// progress then falls back to the duration printed by the encoder itself.
func (r *Runner) resolveExpectedDuration(ctx context.Context, t *task.Task) float64 {
	var probeDuration string
	if meta, err := r.prober.Probe(ctx, t.InputPath); err == nil {
		probeDuration = meta.Duration
	}
	return expectedDuration(&t.Config, probeDuration)
}

func expectedDuration(cfg *task.ConversionConfig, probeDuration string) float64 {
	start := 0.0
	if s, ok := ParseTime(cfg.StartTime); ok {
		start = s
	}
	full := 0.0
	if d, ok := ParseTime(probeDuration); ok {
		full = d
	}
	end := full
	if e, ok := ParseTime(cfg.EndTime); ok {
		end = e
	}
	return math.Max(end-start, 0)
}

// runStage spawns one external process and streams its diagnostic output
// line by line. The encoder rewrites progress lines with bare carriage
// returns, so both CR and LF terminate a line.
func (r *Runner) runStage(ctx context.Context, name, bin string, args []string, started func(pid int), onLine func(line string)) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%s: attach stderr: %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s failed to start: %w", name, err)
	}
	started(cmd.Process.Pid)

	if err := scanLines(stderr, onLine); err != nil {
		// The process may still exit cleanly; progress and log delivery
		// were truncated, which is worth a trace but not a failure.
		r.logger.Warn("diagnostic stream read failed",
			zap.String("stage", name), zap.Error(err))
	}

	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return fmt.Errorf("%s exited with code %d", name, exitErr.ExitCode())
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// scanLines feeds trimmed, non-empty diagnostic lines to onLine and
// reports any read error from the underlying stream.
func scanLines(rd io.Reader, onLine func(line string)) error {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanCRLF)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		onLine(line)
	}
	return scanner.Err()
}

// scanCRLF splits on either carriage return or newline.
func scanCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
