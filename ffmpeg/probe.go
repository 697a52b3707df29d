package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"convertd/config"
)

// AudioTrack describes one audio stream found by the prober.
type AudioTrack struct {
	Index       int      `json:"index"`
	Codec       string   `json:"codec"`
	Channels    string   `json:"channels"`
	Label       string   `json:"label,omitempty"`
	Language    string   `json:"language,omitempty"`
	BitrateKbps *float64 `json:"bitrateKbps,omitempty"`
	SampleRate  string   `json:"sampleRate,omitempty"`
}

// SubtitleTrack describes one subtitle stream found by the prober.
type SubtitleTrack struct {
	Index    int    `json:"index"`
	Codec    string `json:"codec"`
	Language string `json:"language,omitempty"`
	Label    string `json:"label,omitempty"`
}

// ProbeMetadata is the condensed view of a media file that clients and the
// upscale pipeline consume.
type ProbeMetadata struct {
	Duration         string            `json:"duration,omitempty"`
	Bitrate          string            `json:"bitrate,omitempty"`
	VideoCodec       string            `json:"videoCodec,omitempty"`
	AudioCodec       string            `json:"audioCodec,omitempty"`
	Width            int               `json:"width,omitempty"`
	Height           int               `json:"height,omitempty"`
	Resolution       string            `json:"resolution,omitempty"`
	FrameRate        *float64          `json:"frameRate,omitempty"`
	VideoBitrateKbps *float64          `json:"videoBitrateKbps,omitempty"`
	PixelFormat      string            `json:"pixelFormat,omitempty"`
	ColorSpace       string            `json:"colorSpace,omitempty"`
	ColorRange       string            `json:"colorRange,omitempty"`
	ColorPrimaries   string            `json:"colorPrimaries,omitempty"`
	Profile          string            `json:"profile,omitempty"`
	Tags             map[string]string `json:"tags,omitempty"`
	AudioTracks      []AudioTrack      `json:"audioTracks"`
	SubtitleTracks   []SubtitleTrack   `json:"subtitleTracks"`
}

type ffprobeOutput struct {
	Format struct {
		Duration string            `json:"duration"`
		BitRate  string            `json:"bit_rate"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	Index          int    `json:"index"`
	CodecType      string `json:"codec_type"`
	CodecName      string `json:"codec_name"`
	Profile        string `json:"profile"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	PixFmt         string `json:"pix_fmt"`
	ColorSpace     string `json:"color_space"`
	ColorRange     string `json:"color_range"`
	ColorPrimaries string `json:"color_primaries"`
	AvgFrameRate   string `json:"avg_frame_rate"`
	BitRate        string `json:"bit_rate"`
	Channels       int    `json:"channels"`
	SampleRate     string `json:"sample_rate"`
	Tags           struct {
		Title    string `json:"title"`
		Language string `json:"language"`
	} `json:"tags"`
}

// Prober shells out to ffprobe and condenses its JSON report.
type Prober struct {
	bin string
}

func NewProber(cfg *config.Config) (*Prober, error) {
	if _, err := exec.LookPath(cfg.FFprobeBin); err != nil {
		return nil, fmt.Errorf("ffprobe binary not found or not in PATH: %s", cfg.FFprobeBin)
	}
	return &Prober{bin: cfg.FFprobeBin}, nil
}

func (p *Prober) Probe(ctx context.Context, filePath string) (*ProbeMetadata, error) {
	cmd := exec.CommandContext(ctx, p.bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		filePath,
	)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("probe failed: %s", string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("probe failed: %w", err)
	}
	return parseProbeOutput(out)
}

func parseProbeOutput(raw []byte) (*ProbeMetadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("probe output is not valid JSON: %w", err)
	}

	meta := &ProbeMetadata{
		Duration:       probe.Format.Duration,
		Bitrate:        probe.Format.BitRate,
		Tags:           probe.Format.Tags,
		AudioTracks:    []AudioTrack{},
		SubtitleTracks: []SubtitleTrack{},
	}

	for i := range probe.Streams {
		s := &probe.Streams[i]
		switch s.CodecType {
		case "video":
			if meta.VideoCodec != "" {
				continue // first video stream wins
			}
			meta.VideoCodec = s.CodecName
			meta.PixelFormat = s.PixFmt
			meta.ColorSpace = s.ColorSpace
			meta.ColorRange = s.ColorRange
			meta.ColorPrimaries = s.ColorPrimaries
			meta.Profile = s.Profile
			if s.Width > 0 && s.Height > 0 {
				meta.Width = s.Width
				meta.Height = s.Height
				meta.Resolution = fmt.Sprintf("%dx%d", s.Width, s.Height)
			}
			if fps, ok := ParseFrameRate(s.AvgFrameRate); ok {
				meta.FrameRate = &fps
			}
			if kbps, ok := ParseBitrate(s.BitRate); ok {
				meta.VideoBitrateKbps = &kbps
			}
		case "audio":
			track := AudioTrack{
				Index:      s.Index,
				Codec:      s.CodecName,
				Channels:   "?",
				Label:      s.Tags.Title,
				Language:   s.Tags.Language,
				SampleRate: s.SampleRate,
			}
			if track.Codec == "" {
				track.Codec = "unknown"
			}
			if s.Channels > 0 {
				track.Channels = strconv.Itoa(s.Channels)
			}
			if kbps, ok := ParseBitrate(s.BitRate); ok {
				track.BitrateKbps = &kbps
			}
			meta.AudioTracks = append(meta.AudioTracks, track)
		case "subtitle":
			track := SubtitleTrack{
				Index:    s.Index,
				Codec:    s.CodecName,
				Language: s.Tags.Language,
				Label:    s.Tags.Title,
			}
			if track.Codec == "" {
				track.Codec = "unknown"
			}
			meta.SubtitleTracks = append(meta.SubtitleTracks, track)
		}
	}

	if len(meta.AudioTracks) > 0 {
		meta.AudioCodec = meta.AudioTracks[0].Codec
	}

	// No per-stream video bitrate: estimate it as container bitrate minus
	// the audio tracks' share.
	if meta.VideoBitrateKbps == nil {
		if containerKbps, ok := ParseBitrate(meta.Bitrate); ok {
			var audioSum float64
			for _, track := range meta.AudioTracks {
				if track.BitrateKbps != nil {
					audioSum += *track.BitrateKbps
				}
			}
			if containerKbps > audioSum {
				v := containerKbps - audioSum
				meta.VideoBitrateKbps = &v
			}
		}
	}

	return meta, nil
}
