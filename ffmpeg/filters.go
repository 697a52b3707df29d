package ffmpeg

import (
	"fmt"
	"math"
	"strings"

	"convertd/task"
)

const volumeEpsilon = 0.01

// buildVideoFilters assembles the -vf chain in a fixed order: flips,
// rotation, crop, subtitle burn, then scaling. The upscale pipeline passes
// includeScale=false because scaling is the upscaler's job there.
func buildVideoFilters(cfg *task.ConversionConfig, includeScale bool) []string {
	var filters []string

	if cfg.FlipHorizontal {
		filters = append(filters, "hflip")
	}
	if cfg.FlipVertical {
		filters = append(filters, "vflip")
	}

	switch cfg.Rotation {
	case "90":
		filters = append(filters, "transpose=1")
	case "180":
		filters = append(filters, "transpose=1,transpose=1")
	case "270":
		filters = append(filters, "transpose=2")
	}

	if cfg.Crop != nil && cfg.Crop.Enabled {
		w := int(math.Round(math.Max(cfg.Crop.Width, 1)))
		h := int(math.Round(math.Max(cfg.Crop.Height, 1)))
		x := int(math.Round(math.Max(cfg.Crop.X, 0)))
		y := int(math.Round(math.Max(cfg.Crop.Y, 0)))
		filters = append(filters, fmt.Sprintf("crop=%d:%d:%d:%d", w, h, x, y))
	}

	if cfg.SubtitleBurnPath != "" {
		// The subtitles filter parses its argument itself; backslashes and
		// colons must be escaped before ffmpeg sees them.
		escaped := strings.ReplaceAll(cfg.SubtitleBurnPath, `\`, "/")
		escaped = strings.ReplaceAll(escaped, ":", `\:`)
		filters = append(filters, fmt.Sprintf("subtitles='%s'", escaped))
	}

	if includeScale && cfg.Resolution != "original" {
		filters = append(filters, buildScaleFilter(cfg))
	}

	return filters
}

func buildScaleFilter(cfg *task.ConversionConfig) string {
	var algorithm string
	switch cfg.ScalingAlgorithm {
	case "lanczos":
		algorithm = ":flags=lanczos"
	case "bilinear":
		algorithm = ":flags=bilinear"
	case "nearest":
		algorithm = ":flags=neighbor"
	case "bicubic":
		algorithm = ":flags=bicubic"
	}

	if cfg.Resolution == "custom" {
		w := cfg.CustomWidth
		h := cfg.CustomHeight
		if w == "" {
			w = "-1"
		}
		if h == "" {
			h = "-1"
		}
		switch {
		case w != "-1" && h != "-1":
			// Both dimensions fixed: fit inside and pad to the exact frame.
			return fmt.Sprintf(
				"scale=%s:%s:force_original_aspect_ratio=decrease%s,pad=%s:%s:(ow-iw)/2:(oh-ih)/2",
				w, h, algorithm, w, h)
		case w == "-1" && h == "-1":
			return "scale=-1:-1"
		default:
			return fmt.Sprintf("scale=%s:%s%s", w, h, algorithm)
		}
	}

	switch cfg.Resolution {
	case "1080p":
		return "scale=-2:1080" + algorithm
	case "720p":
		return "scale=-2:720" + algorithm
	case "480p":
		return "scale=-2:480" + algorithm
	default:
		return "scale=-1:-1"
	}
}

// buildAudioFilters assembles the -af chain: loudness normalization first,
// then a volume adjustment when it deviates from 100%.
func buildAudioFilters(cfg *task.ConversionConfig) []string {
	var filters []string

	if cfg.AudioNormalize {
		filters = append(filters, "loudnorm=I=-16:TP=-1.5:LRA=11")
	}

	if math.Abs(cfg.AudioVolume-100) > volumeEpsilon {
		filters = append(filters, fmt.Sprintf("volume=%.2f", cfg.AudioVolume/100))
	}

	return filters
}
