package ffmpeg

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"convertd/task"
)

// BuildArgs assembles the complete single-invocation encoder command line
// for a task: trim window, metadata handling, stream mapping, codec
// parameters, filter chains, and any validated extra arguments, ending
// with -y and the output path.
func BuildArgs(input, output string, cfg *task.ConversionConfig) ([]string, error) {
	var args []string

	if cfg.StartTime != "" {
		args = append(args, "-ss", cfg.StartTime)
	}

	args = append(args, "-i", input)
	args = appendTrimTail(args, cfg)
	args = appendMetadataMode(args, cfg)

	audioOnly := IsAudioOnlyContainer(cfg.Container)

	if audioOnly {
		args = append(args, "-vn")
	} else {
		args = appendVideoCodecArgs(args, cfg)

		if filters := buildVideoFilters(cfg, true); len(filters) > 0 {
			args = append(args, "-vf", strings.Join(filters, ","))
		}
		args = appendFPSArgs(args, cfg)
	}

	if (len(cfg.SelectedAudioTracks) > 0 || len(cfg.SelectedSubtitleTracks) > 0) && !audioOnly {
		args = append(args, "-map", "0:v:0")
	}

	for _, idx := range cfg.SelectedAudioTracks {
		args = append(args, "-map", fmt.Sprintf("0:%d", idx))
	}
	if len(cfg.SelectedAudioTracks) > 0 {
		args = appendAudioCodecArgs(args, cfg)
	}

	if len(cfg.SelectedSubtitleTracks) > 0 {
		for _, idx := range cfg.SelectedSubtitleTracks {
			args = append(args, "-map", fmt.Sprintf("0:%d", idx))
		}
	} else if !audioOnly {
		args = append(args, "-map", "0:s?")
	}

	if cfg.SubtitleBurnPath == "" {
		// Burned subtitles are rendered into the video; otherwise pass the
		// subtitle streams through untouched.
		args = append(args, "-c:s", "copy")
	}

	if filters := buildAudioFilters(cfg); len(filters) > 0 {
		args = append(args, "-af", strings.Join(filters, ","))
	}

	extra, err := SplitExtraArgs(cfg.ExtraArgs)
	if err != nil {
		return nil, err
	}
	args = append(args, extra...)

	args = append(args, "-y", output)
	return args, nil
}

// appendTrimTail emits the post-input end-of-window flags. With both ends
// set, -ss already shifted the origin so the window becomes a -t duration;
// with only an end it stays an absolute -to.
func appendTrimTail(args []string, cfg *task.ConversionConfig) []string {
	if cfg.EndTime == "" {
		return args
	}
	if cfg.StartTime != "" {
		start, okS := ParseTime(cfg.StartTime)
		end, okE := ParseTime(cfg.EndTime)
		if okS && okE {
			if d := end - start; d > 0 {
				args = append(args, "-t", fmt.Sprintf("%.3f", d))
			}
		}
		return args
	}
	return append(args, "-to", cfg.EndTime)
}

func appendMetadataMode(args []string, cfg *task.ConversionConfig) []string {
	switch cfg.Metadata.Mode {
	case task.MetadataClean:
		args = append(args, "-map_metadata", "-1")
	case task.MetadataReplace:
		args = append(args, "-map_metadata", "-1")
		args = appendMetadataFlags(args, &cfg.Metadata)
	default:
		args = appendMetadataFlags(args, &cfg.Metadata)
	}
	return args
}

func appendMetadataFlags(args []string, md *task.MetadataConfig) []string {
	fields := []struct{ key, value string }{
		{"title", md.Title},
		{"artist", md.Artist},
		{"album", md.Album},
		{"genre", md.Genre},
		{"date", md.Date},
		{"comment", md.Comment},
	}
	for _, f := range fields {
		if f.value != "" {
			args = append(args, "-metadata", f.key+"="+f.value)
		}
	}
	return args
}

func appendVideoCodecArgs(args []string, cfg *task.ConversionConfig) []string {
	nvenc := IsNvencCodec(cfg.VideoCodec)
	videotoolbox := IsVideoToolboxCodec(cfg.VideoCodec)

	args = append(args, "-c:v", cfg.VideoCodec)

	switch {
	case cfg.VideoBitrateMode == "bitrate":
		args = append(args, "-b:v", cfg.VideoBitrate+"k")
	case nvenc:
		// NVENC has no CRF; map the 0-100 quality slider onto its 1-51
		// constant-quality scale.
		cq := int(math.Round(52 - float64(cfg.Quality)/2))
		if cq < 1 {
			cq = 1
		}
		if cq > 51 {
			cq = 51
		}
		args = append(args, "-rc:v", "vbr", "-cq:v", strconv.Itoa(cq))
	case videotoolbox:
		args = append(args, "-q:v", strconv.Itoa(cfg.Quality))
	default:
		args = append(args, "-crf", strconv.Itoa(cfg.CRF))
	}

	if !videotoolbox {
		preset := cfg.Preset
		if nvenc {
			preset = MapNvencPreset(preset)
		}
		args = append(args, "-preset", preset)
	}

	if nvenc {
		if cfg.NvencSpatialAQ {
			args = append(args, "-spatial_aq", "1")
		}
		if cfg.NvencTemporalAQ {
			args = append(args, "-temporal_aq", "1")
		}
	}
	if videotoolbox && cfg.VideoToolboxAllowSW {
		args = append(args, "-allow_sw", "1")
	}
	return args
}

func appendAudioCodecArgs(args []string, cfg *task.ConversionConfig) []string {
	if len(cfg.SelectedAudioTracks) > 0 {
		args = append(args, "-c:a", cfg.AudioCodec)
		switch cfg.AudioCodec {
		case "flac", "alac", "pcm_s16le":
			// Lossless codecs take no bitrate.
		default:
			args = append(args, "-b:a", cfg.AudioBitrate+"k")
		}
	}

	switch cfg.AudioChannels {
	case "stereo":
		args = append(args, "-ac", "2")
	case "mono":
		args = append(args, "-ac", "1")
	}
	return args
}

func appendFPSArgs(args []string, cfg *task.ConversionConfig) []string {
	if cfg.FPS != "original" {
		args = append(args, "-r", cfg.FPS)
	}
	return args
}

// BuildOutputPath derives where the converted file lands. A custom output
// name is placed next to the input, gaining the container extension when
// it has none; otherwise the input path is suffixed with _converted.
func BuildOutputPath(inputPath, container, outputName string) string {
	name := strings.TrimSpace(outputName)
	if name == "" {
		return fmt.Sprintf("%s_converted.%s", inputPath, container)
	}

	out := filepath.Join(filepath.Dir(inputPath), name)
	if filepath.Ext(out) == "" {
		out += "." + container
	}
	return out
}

// ValidateTask rejects a task before it reaches the queue: the input must
// be an existing regular file, custom dimensions must be sane, an explicit
// bitrate must be positive, the upscale mode must be known, and extra
// arguments must split cleanly without shell metacharacters.
func ValidateTask(t *task.Task) error {
	info, err := os.Stat(t.InputPath)
	if err != nil {
		return fmt.Errorf("%w: input file does not exist: %s", task.ErrInvalidInput, t.InputPath)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: input path is not a file: %s", task.ErrInvalidInput, t.InputPath)
	}

	cfg := &t.Config
	if cfg.Resolution == "custom" {
		wStr := cfg.CustomWidth
		hStr := cfg.CustomHeight
		if wStr == "" {
			wStr = "-1"
		}
		if hStr == "" {
			hStr = "-1"
		}
		w, err := strconv.Atoi(wStr)
		if err != nil {
			return fmt.Errorf("%w: invalid custom width: %s", task.ErrInvalidInput, wStr)
		}
		h, err := strconv.Atoi(hStr)
		if err != nil {
			return fmt.Errorf("%w: invalid custom height: %s", task.ErrInvalidInput, hStr)
		}
		if w == 0 || h == 0 {
			return fmt.Errorf("%w: resolution dimensions cannot be zero", task.ErrInvalidInput)
		}
		if w < -1 || h < -1 {
			return fmt.Errorf("%w: resolution dimensions cannot be negative (except -1 for auto)", task.ErrInvalidInput)
		}
	}

	if cfg.VideoBitrateMode == "bitrate" && !IsAudioOnlyContainer(cfg.Container) {
		bitrate, err := strconv.ParseFloat(cfg.VideoBitrate, 64)
		if err != nil {
			return fmt.Errorf("%w: invalid video bitrate: %s", task.ErrInvalidInput, cfg.VideoBitrate)
		}
		if bitrate <= 0 {
			return fmt.Errorf("%w: video bitrate must be positive", task.ErrInvalidInput)
		}
	}

	if t.UsesUpscale() {
		if _, _, err := ResolveUpscaleMode(cfg.MLUpscale); err != nil {
			return err
		}
	}

	if cfg.ExtraArgs != "" {
		extra, err := SplitExtraArgs(cfg.ExtraArgs)
		if err != nil {
			return err
		}
		if err := ValidateExtraArgs(extra); err != nil {
			return err
		}
	}

	return nil
}
