package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBandAt(t *testing.T) {
	assert.Equal(t, 0.0, decodeBand.At(0))
	assert.Equal(t, 5.0, decodeBand.At(1))
	assert.Equal(t, 5.0, decodeBand.At(2)) // overshoot clamps to the band ceiling
	assert.Equal(t, 47.5, upscaleBand.At(0.5))
	assert.Equal(t, 90.0, encodeBand.At(0))
	assert.Equal(t, 100.0, encodeBand.At(1))
	assert.Equal(t, 90.0, encodeBand.At(-1))
}

func TestBandsAreContiguous(t *testing.T) {
	assert.Equal(t, decodeBand.Hi, upscaleBand.Lo)
	assert.Equal(t, upscaleBand.Hi, encodeBand.Lo)
}

func TestTimeProgressWithExpectedDuration(t *testing.T) {
	p := &timeProgress{expected: 100}

	got, ok := p.observe("frame= 250 fps= 50 q=28.0 size=1024kB time=00:00:50.00 bitrate=167.8kbits/s")
	assert.True(t, ok)
	assert.InDelta(t, 50.0, got, 1e-9)

	// Position past the expected total caps at 100.
	got, ok = p.observe("time=00:02:30.00 bitrate=167.8kbits/s")
	assert.True(t, ok)
	assert.Equal(t, 100.0, got)
}

func TestTimeProgressDiscoversDuration(t *testing.T) {
	p := &timeProgress{}

	// No total known yet: position lines produce nothing.
	_, ok := p.observe("time=00:00:10.00 bitrate=167.8kbits/s")
	assert.False(t, ok)

	_, ok = p.observe("  Duration: 00:01:40.00, start: 0.000000, bitrate: 1205 kb/s")
	assert.False(t, ok)

	got, ok := p.observe("time=00:00:50.00 bitrate=167.8kbits/s")
	assert.True(t, ok)
	assert.InDelta(t, 50.0, got, 1e-9)

	// A later Duration header must not displace the discovered total.
	_, _ = p.observe("  Duration: 00:10:00.00, start: 0.000000")
	got, ok = p.observe("time=00:01:40.00")
	assert.True(t, ok)
	assert.Equal(t, 100.0, got)
}

func TestTimeProgressIgnoresNonPositionLines(t *testing.T) {
	p := &timeProgress{expected: 60}
	_, ok := p.observe("Stream #0:0(und): Video: h264, yuv420p, 1920x1080")
	assert.False(t, ok)
}
