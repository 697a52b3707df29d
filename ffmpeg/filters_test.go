package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"convertd/task"
)

func TestVideoFiltersEmptyByDefault(t *testing.T) {
	cfg := task.DefaultConversionConfig()
	assert.Empty(t, buildVideoFilters(&cfg, true))
}

func TestVideoFiltersFlips(t *testing.T) {
	cfg := task.DefaultConversionConfig()
	cfg.FlipHorizontal = true
	cfg.FlipVertical = true
	assert.Equal(t, []string{"hflip", "vflip"}, buildVideoFilters(&cfg, true))
}

func TestVideoFiltersRotation(t *testing.T) {
	cfg := task.DefaultConversionConfig()
	cfg.Rotation = "90"
	assert.Equal(t, []string{"transpose=1"}, buildVideoFilters(&cfg, true))

	cfg.Rotation = "180"
	assert.Equal(t, []string{"transpose=1,transpose=1"}, buildVideoFilters(&cfg, true))
}

func TestVideoFiltersCrop(t *testing.T) {
	cfg := task.DefaultConversionConfig()
	cfg.Crop = &task.CropConfig{Enabled: true, X: 10, Y: 20, Width: 100, Height: 200}
	assert.Equal(t, []string{"crop=100:200:10:20"}, buildVideoFilters(&cfg, true))

	// Disabled crop contributes nothing.
	cfg.Crop.Enabled = false
	assert.Empty(t, buildVideoFilters(&cfg, true))
}

func TestVideoFiltersSubtitleBurnEscaping(t *testing.T) {
	cfg := task.DefaultConversionConfig()
	cfg.SubtitleBurnPath = `C:\media\subs.srt`
	filters := buildVideoFilters(&cfg, true)
	assert.Equal(t, []string{`subtitles='C\:/media/subs.srt'`}, filters)
}

func TestVideoFiltersScale(t *testing.T) {
	cfg := task.DefaultConversionConfig()
	cfg.Resolution = "720p"
	assert.Equal(t, []string{"scale=-2:720:flags=lanczos"}, buildVideoFilters(&cfg, true))

	// The upscale pipeline handles scaling itself.
	assert.Empty(t, buildVideoFilters(&cfg, false))
}

func TestVideoFiltersCustomScalePads(t *testing.T) {
	cfg := task.DefaultConversionConfig()
	cfg.Resolution = "custom"
	cfg.CustomWidth = "1280"
	cfg.CustomHeight = "720"
	filters := buildVideoFilters(&cfg, true)
	assert.Equal(t,
		[]string{"scale=1280:720:force_original_aspect_ratio=decrease:flags=lanczos,pad=1280:720:(ow-iw)/2:(oh-ih)/2"},
		filters)
}

func TestVideoFiltersCustomScaleSingleAxis(t *testing.T) {
	cfg := task.DefaultConversionConfig()
	cfg.Resolution = "custom"
	cfg.CustomWidth = "1280"
	cfg.CustomHeight = "-1"
	assert.Equal(t, []string{"scale=1280:-1:flags=lanczos"}, buildVideoFilters(&cfg, true))
}

func TestAudioFiltersNormalize(t *testing.T) {
	cfg := task.DefaultConversionConfig()
	cfg.AudioNormalize = true
	assert.Equal(t, []string{"loudnorm=I=-16:TP=-1.5:LRA=11"}, buildAudioFilters(&cfg))
}

func TestAudioFiltersVolume(t *testing.T) {
	cfg := task.DefaultConversionConfig()
	cfg.AudioVolume = 150
	assert.Equal(t, []string{"volume=1.50"}, buildAudioFilters(&cfg))

	// 100% within epsilon is a no-op.
	cfg.AudioVolume = 100.005
	assert.Empty(t, buildAudioFilters(&cfg))
}
