package ffmpeg

import "math"

// Band maps a stage-local completion fraction onto a slice of the overall
// 0-100 progress scale. The upscale pipeline reports three consecutive
// bands so the client sees one monotonic number across stages.
type Band struct {
	Lo, Hi float64
}

var (
	decodeBand  = Band{0, 5}
	upscaleBand = Band{5, 90}
	encodeBand  = Band{90, 100}
)

// At converts a stage fraction to overall percent, clamped to the band.
func (b Band) At(frac float64) float64 {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return b.Lo + frac*(b.Hi-b.Lo)
}

// timeProgress derives single-stage percent from encoder time= lines.
// When no trim window gives an expected duration up front, the total is
// discovered from the first Duration: header in the same stream and then
// held for the rest of the run.
type timeProgress struct {
	expected   float64
	discovered float64
}

// observe inspects one diagnostic line and reports percent when the line
// carries a usable position and a total duration is known.
func (p *timeProgress) observe(line string) (float64, bool) {
	if p.expected <= 0 && p.discovered <= 0 {
		if m := durationRegex.FindStringSubmatch(line); m != nil {
			if d, ok := ParseTime(m[1]); ok {
				p.discovered = d
			}
		}
	}

	m := timeRegex.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	current, ok := ParseTime(m[1])
	if !ok {
		return 0, false
	}

	total := p.expected
	if total <= 0 {
		total = p.discovered
	}
	if total <= 0 {
		return 0, false
	}
	return math.Min(current/total*100, 100), true
}
