package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const probeFixture = `{
  "streams": [
    {
      "index": 0,
      "codec_type": "video",
      "codec_name": "h264",
      "profile": "High",
      "width": 1920,
      "height": 1080,
      "pix_fmt": "yuv420p10le",
      "color_space": "bt709",
      "avg_frame_rate": "30000/1001",
      "bit_rate": "N/A"
    },
    {
      "index": 1,
      "codec_type": "audio",
      "codec_name": "aac",
      "channels": 2,
      "sample_rate": "48000",
      "bit_rate": "192000",
      "tags": {"title": "Main", "language": "eng"}
    },
    {
      "index": 2,
      "codec_type": "audio",
      "codec_name": "ac3",
      "channels": 6,
      "bit_rate": "384000"
    },
    {
      "index": 3,
      "codec_type": "subtitle",
      "codec_name": "subrip",
      "tags": {"language": "eng"}
    }
  ],
  "format": {
    "duration": "3600.5",
    "bit_rate": "5576000",
    "tags": {"title": "A Film"}
  }
}`

func TestParseProbeOutput(t *testing.T) {
	meta, err := parseProbeOutput([]byte(probeFixture))
	require.NoError(t, err)

	assert.Equal(t, "3600.5", meta.Duration)
	assert.Equal(t, "h264", meta.VideoCodec)
	assert.Equal(t, "High", meta.Profile)
	assert.Equal(t, "yuv420p10le", meta.PixelFormat)
	assert.Equal(t, "1920x1080", meta.Resolution)
	require.NotNil(t, meta.FrameRate)
	assert.InDelta(t, 29.97, *meta.FrameRate, 0.01)

	require.Len(t, meta.AudioTracks, 2)
	assert.Equal(t, "aac", meta.AudioTracks[0].Codec)
	assert.Equal(t, "2", meta.AudioTracks[0].Channels)
	assert.Equal(t, "Main", meta.AudioTracks[0].Label)
	assert.Equal(t, "eng", meta.AudioTracks[0].Language)
	require.NotNil(t, meta.AudioTracks[0].BitrateKbps)
	assert.Equal(t, 192.0, *meta.AudioTracks[0].BitrateKbps)
	assert.Equal(t, "aac", meta.AudioCodec)

	require.Len(t, meta.SubtitleTracks, 1)
	assert.Equal(t, "subrip", meta.SubtitleTracks[0].Codec)

	// Stream-level video bitrate is N/A, so it falls back to container
	// bitrate minus the audio sum: 5576 - (192 + 384) = 5000.
	require.NotNil(t, meta.VideoBitrateKbps)
	assert.InDelta(t, 5000.0, *meta.VideoBitrateKbps, 1e-9)
}

func TestParseProbeOutputAudioOnly(t *testing.T) {
	raw := `{
	  "streams": [
	    {"index": 0, "codec_type": "audio", "codec_name": "mp3", "channels": 2, "bit_rate": "320000"}
	  ],
	  "format": {"duration": "180.0", "bit_rate": "320000"}
	}`
	meta, err := parseProbeOutput([]byte(raw))
	require.NoError(t, err)

	assert.Empty(t, meta.VideoCodec)
	assert.Equal(t, "mp3", meta.AudioCodec)
	assert.Nil(t, meta.FrameRate)
	// Container bitrate does not exceed the audio sum, so no video estimate.
	assert.Nil(t, meta.VideoBitrateKbps)
}

func TestParseProbeOutputRejectsGarbage(t *testing.T) {
	_, err := parseProbeOutput([]byte("not json"))
	assert.Error(t, err)
}
