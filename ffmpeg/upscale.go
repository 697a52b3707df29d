package ffmpeg

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"convertd/events"
	"convertd/task"
)

// ResolveUpscaleMode maps a requested mode onto the scale factor and the
// model name the upscaler loads.
func ResolveUpscaleMode(mode string) (int, string, error) {
	switch mode {
	case "esrgan-2x":
		return 2, "realesr-animevideov3-x2", nil
	case "esrgan-4x":
		return 4, "realesr-animevideov3-x4", nil
	}
	return 0, "", fmt.Errorf("%w: invalid upscale mode: %s", task.ErrInvalidInput, mode)
}

// ComputeUpscaleThreads sizes the upscaler's load:proc:save thread triple.
// Inference concurrency is bounded by VRAM pressure at the output size;
// the I/O threads scale with CPU count.
func ComputeUpscaleThreads(width, height, scale int) string {
	outputPixels := uint64(width) * uint64(scale) * uint64(height) * uint64(scale)

	var proc int
	switch {
	case outputPixels > 8_294_400: // beyond 4K output
		proc = 1
	case outputPixels > 2_073_600: // beyond 1080p output
		proc = 2
	default:
		proc = 4
	}

	io := (runtime.NumCPU() + 1) / 2
	if io < 1 {
		io = 1
	}
	if io > 4 {
		io = 4
	}
	return fmt.Sprintf("%d:%d:%d", io, proc, io)
}

// validateUpscaleRuntime confirms the upscaler binary and the model files
// for the requested mode are actually present before any frames are
// extracted.
func (r *Runner) validateUpscaleRuntime(mode string) (int, string, error) {
	scale, model, err := ResolveUpscaleMode(mode)
	if err != nil {
		return 0, "", err
	}

	param := filepath.Join(r.cfg.ModelsDir, model+".param")
	bin := filepath.Join(r.cfg.ModelsDir, model+".bin")
	if !isRegularFile(param) || !isRegularFile(bin) {
		return 0, "", fmt.Errorf("%w: upscaling models for %q are missing, expected %s and %s",
			task.ErrInvalidInput, mode, param, bin)
	}

	if _, err := exec.LookPath(r.cfg.UpscalerBin); err != nil {
		return 0, "", fmt.Errorf("%w: upscaler binary not found or not in PATH: %s",
			task.ErrInvalidInput, r.cfg.UpscalerBin)
	}
	return scale, model, nil
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// runUpscale executes the three-stage pipeline: extract frames to PNG,
// upscale them, then re-encode against the original source for audio and
// subtitles. Each stage reports its own process and maps progress into a
// fixed slice of the overall scale.
func (r *Runner) runUpscale(ctx context.Context, t *task.Task, started func(pid int)) error {
	if err := r.checkResources(); err != nil {
		return fmt.Errorf("insufficient system resources: %w", err)
	}

	scale, model, err := r.validateUpscaleRuntime(t.Config.MLUpscale)
	if err != nil {
		return err
	}

	outputPath := BuildOutputPath(t.InputPath, t.Config.Container, t.OutputName)

	meta, err := r.prober.Probe(ctx, t.InputPath)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}

	fps := 30.0
	if meta.FrameRate != nil {
		fps = *meta.FrameRate
	}
	totalFrames := int(math.Ceil(expectedDuration(&t.Config, meta.Duration) * fps))

	tempDir := task.TempDirFor(t.ID)
	if _, err := os.Stat(tempDir); err == nil {
		os.RemoveAll(tempDir)
	}
	inputFramesDir := filepath.Join(tempDir, "input")
	outputFramesDir := filepath.Join(tempDir, "output")
	if err := os.MkdirAll(inputFramesDir, 0o755); err != nil {
		return fmt.Errorf("create frame directory: %w", err)
	}
	if err := os.MkdirAll(outputFramesDir, 0o755); err != nil {
		return fmt.Errorf("create frame directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	r.logger.Info("starting upscale pipeline",
		zap.String("task", t.ID),
		zap.String("model", model),
		zap.Int("scale", scale),
		zap.Int("estimatedFrames", totalFrames))

	r.bus.Publish(events.Started(t.ID))
	r.bus.Publish(events.Progress(t.ID, 0))

	// Stage 1: frame extraction.
	decArgs := r.buildDecodeArgs(t, fps, inputFramesDir)
	err = r.runStage(ctx, "frame extraction", r.cfg.FFmpegBin, decArgs, started, func(line string) {
		r.bus.Publish(events.Log(t.ID, "[DECODE] "+line))
		if totalFrames > 0 {
			if m := frameRegex.FindStringSubmatch(line); m != nil {
				if frame, err := strconv.Atoi(m[1]); err == nil {
					r.bus.Publish(events.Progress(t.ID, decodeBand.At(float64(frame)/float64(totalFrames))))
				}
			}
		}
	})
	if err != nil {
		return fmt.Errorf("frame extraction failed: %w", err)
	}

	// The estimate from duration*fps can drift; the PNGs on disk are the
	// truth for the remaining stages.
	if actual := countPNGs(inputFramesDir); actual > 0 {
		totalFrames = actual
	}

	// Stage 2: upscaling. The upscaler prints one marker line per finished
	// frame and floods percentage lines we keep out of the log stream.
	upscalerArgs := []string{
		"-v",
		"-i", inputFramesDir,
		"-o", outputFramesDir,
		"-s", strconv.Itoa(scale),
		"-f", "png",
		"-m", r.cfg.ModelsDir,
		"-n", model,
		"-j", ComputeUpscaleThreads(orDefault(meta.Width, 1920), orDefault(meta.Height, 1080), scale),
		"-g", "0",
		"-t", "0",
	}

	completedFrames := 0
	lastProgress := upscaleBand.Lo
	var lastLine string
	err = r.runStage(ctx, "upscaler", r.cfg.UpscalerBin, upscalerArgs, started, func(line string) {
		lastLine = line

		percentageLine := strings.HasSuffix(line, "%") && len(line) > 0 && line[0] >= '0' && line[0] <= '9'
		if !percentageLine {
			r.bus.Publish(events.Log(t.ID, "[UPSCALE] "+line))
		}

		if strings.Contains(line, "→") || strings.Contains(line, "->") {
			completedFrames++
			if totalFrames == 0 {
				return
			}
			if pct := upscaleBand.At(float64(completedFrames) / float64(totalFrames)); pct > lastProgress {
				lastProgress = pct
				r.bus.Publish(events.Progress(t.ID, pct))
			}
		}
	})
	if err != nil {
		return fmt.Errorf("upscaling failed: %w (last output: %s)", err, lastLine)
	}

	// Stage 3: re-encode the upscaled frames, pulling audio, subtitles,
	// and metadata back in from the source file.
	encArgs := buildUpscaleEncodeArgs(outputFramesDir, t.InputPath, outputPath, fps, &t.Config, meta.PixelFormat)
	err = r.runStage(ctx, "encoder", r.cfg.FFmpegBin, encArgs, started, func(line string) {
		r.bus.Publish(events.Log(t.ID, "[ENCODE] "+line))
		if totalFrames > 0 {
			if m := frameRegex.FindStringSubmatch(line); m != nil {
				if frame, err := strconv.Atoi(m[1]); err == nil {
					// Hold 100 until the encoder actually exits cleanly.
					pct := math.Min(encodeBand.At(float64(frame)/float64(totalFrames)), 99)
					r.bus.Publish(events.Progress(t.ID, pct))
				}
			}
		}
	})
	if err != nil {
		os.Remove(outputPath)
		return err
	}

	r.bus.Publish(events.Completed(t.ID, outputPath))
	return nil
}

// buildDecodeArgs assembles the frame-extraction command: optional
// hardware-assisted decode, the trim window, every filter except scaling,
// and a constant frame rate so the PNG sequence has no gaps or drift.
func (r *Runner) buildDecodeArgs(t *task.Task, fps float64, inputFramesDir string) []string {
	var args []string

	if t.Config.HWDecode {
		switch {
		case IsNvencCodec(t.Config.VideoCodec):
			args = append(args, "-hwaccel", "cuda")
		case IsVideoToolboxCodec(t.Config.VideoCodec):
			args = append(args, "-hwaccel", "videotoolbox")
		}
	}

	if t.Config.StartTime != "" {
		args = append(args, "-ss", t.Config.StartTime)
	}
	args = append(args, "-i", t.InputPath)
	args = appendTrimTail(args, &t.Config)

	if filters := buildVideoFilters(&t.Config, false); len(filters) > 0 {
		args = append(args, "-vf", strings.Join(filters, ","))
	}

	args = append(args,
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-vsync", "cfr",
		filepath.Join(inputFramesDir, "frame_%08d.png"),
	)
	return args
}

// buildUpscaleEncodeArgs assembles the final encode: input 0 is the PNG
// sequence, input 1 the original source contributing audio, subtitles,
// and metadata.
func buildUpscaleEncodeArgs(outputFramesDir, sourcePath, outputPath string, fps float64, cfg *task.ConversionConfig, pixelFormat string) []string {
	args := []string{
		"-framerate", strconv.FormatFloat(fps, 'f', -1, 64),
		"-start_number", "1",
		"-i", filepath.Join(outputFramesDir, "frame_%08d.png"),
	}

	if cfg.StartTime != "" {
		args = append(args, "-ss", cfg.StartTime)
	}
	args = append(args, "-i", sourcePath)

	switch cfg.Metadata.Mode {
	case task.MetadataClean:
		args = append(args, "-map_metadata", "-1")
	case task.MetadataReplace:
		args = append(args, "-map_metadata", "-1")
		args = appendMetadataFlags(args, &cfg.Metadata)
	default:
		args = append(args, "-map_metadata", "1")
		args = appendMetadataFlags(args, &cfg.Metadata)
	}

	args = append(args, "-map", "0:v:0")

	if len(cfg.SelectedAudioTracks) > 0 {
		for _, idx := range cfg.SelectedAudioTracks {
			args = append(args, "-map", fmt.Sprintf("1:%d", idx))
		}
	} else {
		args = append(args, "-map", "1:a?")
	}

	burningSubtitles := strings.TrimSpace(cfg.SubtitleBurnPath) != ""
	if len(cfg.SelectedSubtitleTracks) > 0 {
		for _, idx := range cfg.SelectedSubtitleTracks {
			args = append(args, "-map", fmt.Sprintf("1:%d", idx))
		}
	} else if !burningSubtitles {
		args = append(args, "-map", "1:s?")
	}

	args = appendVideoCodecArgs(args, cfg)
	args = appendAudioCodecArgs(args, cfg)

	if filters := buildAudioFilters(cfg); len(filters) > 0 {
		args = append(args, "-af", strings.Join(filters, ","))
	}

	if len(cfg.SelectedSubtitleTracks) > 0 || !burningSubtitles {
		args = append(args, "-c:s", "copy")
	}

	args = appendFPSArgs(args, cfg)

	// Preserve high bit-depth sources; everything else lands on yuv420p
	// for playback compatibility.
	if strings.Contains(pixelFormat, "10") || strings.Contains(pixelFormat, "12") {
		args = append(args, "-pix_fmt", pixelFormat)
	} else {
		args = append(args, "-pix_fmt", "yuv420p")
	}

	args = append(args, "-shortest", "-y", outputPath)
	return args
}

func countPNGs(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			n++
		}
	}
	return n
}

func orDefault(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
