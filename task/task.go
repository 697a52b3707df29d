// convertd/task/task.go
package task

import (
	"os"
	"path/filepath"
)

// Task describes one conversion request. It is immutable once enqueued;
// identity is the client-assigned ID.
type Task struct {
	ID         string           `json:"id"`
	InputPath  string           `json:"inputPath"`
	OutputName string           `json:"outputName,omitempty"`
	Config     ConversionConfig `json:"config"`
}

// UsesUpscale reports whether the task runs the multi-stage frame pipeline
// instead of a single encoder invocation.
func (t *Task) UsesUpscale() bool {
	return t.Config.MLUpscale != "" && t.Config.MLUpscale != "none"
}

// ConversionConfig is the full transcoding parameter bundle. The scheduler
// treats it as opaque; only the workers and the argument builder read it.
type ConversionConfig struct {
	Container              string         `json:"container"`
	VideoCodec             string         `json:"videoCodec"`
	VideoBitrateMode       string         `json:"videoBitrateMode"`
	VideoBitrate           string         `json:"videoBitrate"`
	AudioCodec             string         `json:"audioCodec"`
	AudioBitrate           string         `json:"audioBitrate"`
	AudioChannels          string         `json:"audioChannels"`
	AudioVolume            float64        `json:"audioVolume"`
	AudioNormalize         bool           `json:"audioNormalize"`
	SelectedAudioTracks    []int          `json:"selectedAudioTracks"`
	SelectedSubtitleTracks []int          `json:"selectedSubtitleTracks"`
	SubtitleBurnPath       string         `json:"subtitleBurnPath,omitempty"`
	Resolution             string         `json:"resolution"`
	CustomWidth            string         `json:"customWidth,omitempty"`
	CustomHeight           string         `json:"customHeight,omitempty"`
	ScalingAlgorithm       string         `json:"scalingAlgorithm"`
	FPS                    string         `json:"fps"`
	CRF                    int            `json:"crf"`
	Quality                int            `json:"quality"`
	Preset                 string         `json:"preset"`
	StartTime              string         `json:"startTime,omitempty"`
	EndTime                string         `json:"endTime,omitempty"`
	Metadata               MetadataConfig `json:"metadata"`
	Rotation               string         `json:"rotation"`
	FlipHorizontal         bool           `json:"flipHorizontal"`
	FlipVertical           bool           `json:"flipVertical"`
	Crop                   *CropConfig    `json:"crop,omitempty"`
	MLUpscale              string         `json:"mlUpscale,omitempty"`
	HWDecode               bool           `json:"hwDecode"`
	NvencSpatialAQ         bool           `json:"nvencSpatialAq"`
	NvencTemporalAQ        bool           `json:"nvencTemporalAq"`
	VideoToolboxAllowSW    bool           `json:"videotoolboxAllowSw"`
	ExtraArgs              string         `json:"extraArgs,omitempty"`
}

// DefaultConversionConfig mirrors the client-side defaults so that absent
// JSON fields resolve to sensible values rather than zero values.
func DefaultConversionConfig() ConversionConfig {
	return ConversionConfig{
		Container:        "mp4",
		VideoCodec:       "libx264",
		VideoBitrateMode: "crf",
		VideoBitrate:     "5000",
		AudioCodec:       "aac",
		AudioBitrate:     "192",
		AudioChannels:    "original",
		AudioVolume:      100,
		Resolution:       "original",
		ScalingAlgorithm: "lanczos",
		FPS:              "original",
		CRF:              23,
		Quality:          50,
		Preset:           "medium",
		Rotation:         "0",
	}
}

type CropConfig struct {
	Enabled bool    `json:"enabled"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

type MetadataMode string

const (
	MetadataPreserve MetadataMode = "preserve"
	MetadataClean    MetadataMode = "clean"
	MetadataReplace  MetadataMode = "replace"
)

type MetadataConfig struct {
	Mode    MetadataMode `json:"mode"`
	Title   string       `json:"title,omitempty"`
	Artist  string       `json:"artist,omitempty"`
	Album   string       `json:"album,omitempty"`
	Genre   string       `json:"genre,omitempty"`
	Date    string       `json:"date,omitempty"`
	Comment string       `json:"comment,omitempty"`
}

// TempDirFor names the task-scoped scratch directory used by the upscale
// pipeline. The name is deterministic so Cancel can locate it without a
// process handle.
func TempDirFor(id string) string {
	return filepath.Join(os.TempDir(), "frame_upscale_"+id)
}

// CleanupTempDir removes the task's scratch directory, tolerating absence.
func CleanupTempDir(id string) {
	dir := TempDirFor(id)
	if _, err := os.Stat(dir); err == nil {
		_ = os.RemoveAll(dir)
	}
}
