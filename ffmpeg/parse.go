// Package ffmpeg drives the external encoder, prober, and frame upscaler,
// and parses their diagnostic output into progress reports.
package ffmpeg

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	frameRegex    = regexp.MustCompile(`frame=\s*(\d+)`)
	durationRegex = regexp.MustCompile(`Duration:\s*(\d+(?::\d+){0,3}(?:\.\d+)?)`)
	timeRegex     = regexp.MustCompile(`time=\s*(\d+(?::\d+){0,3}(?:\.\d+)?)`)
)

// ParseTime converts an encoder timestamp to seconds. One part is bare
// seconds, two is MM:SS, three is HH:MM:SS. Anything else is rejected.
func ParseTime(s string) (float64, bool) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		v, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0, false
		}
		return v, true
	case 2:
		m, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0, false
		}
		sec, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return 0, false
		}
		return m*60 + sec, true
	case 3:
		h, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0, false
		}
		m, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return 0, false
		}
		sec, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return 0, false
		}
		return h*3600 + m*60 + sec, true
	default:
		return 0, false
	}
}

// ParseFrameRate converts a prober rate string to frames per second. Both
// the rational "num/den" form and a plain decimal are accepted; a zero
// denominator, "N/A", and empty input are rejected.
func ParseFrameRate(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "n/a") {
		return 0, false
	}

	if num, den, found := strings.Cut(s, "/"); found {
		numerator, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
		if err != nil {
			return 0, false
		}
		denominator, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err != nil || denominator == 0 {
			return 0, false
		}
		return numerator / denominator, true
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseBitrate converts a prober bits-per-second field to kbps. Missing,
// "N/A", and non-positive values are rejected.
func ParseBitrate(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "n/a") {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v / 1000, true
}

// IsAudioOnlyContainer reports whether the target container carries no
// video stream at all.
func IsAudioOnlyContainer(container string) bool {
	switch strings.ToLower(container) {
	case "mp3", "wav", "flac", "aac", "m4a":
		return true
	}
	return false
}

func IsNvencCodec(codec string) bool {
	switch codec {
	case "h264_nvenc", "hevc_nvenc", "av1_nvenc":
		return true
	}
	return false
}

func IsVideoToolboxCodec(codec string) bool {
	switch codec {
	case "h264_videotoolbox", "hevc_videotoolbox":
		return true
	}
	return false
}

// MapNvencPreset translates the x264-style preset names clients send into
// the nearest preset NVENC understands.
func MapNvencPreset(preset string) string {
	switch preset {
	case "fast", "medium", "slow", "default",
		"p1", "p2", "p3", "p4", "p5", "p6", "p7":
		return preset
	case "ultrafast", "superfast", "veryfast", "faster":
		return "fast"
	case "slower", "veryslow":
		return "slow"
	default:
		return "medium"
	}
}
