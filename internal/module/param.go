package module

import "math"

// rampDuration is the glide time for scalar parameter changes; short enough
// to feel immediate, long enough to avoid zipper noise.
const rampDuration = 0.015

// Param is a smoothed scalar parameter sampled per frame inside the
// production context. A scalar change glides to its target over a short
// ramp; a breakpoint envelope is sampled against a per-trigger clock.
type Param struct {
	sampleRate int

	current   float64
	target    float64
	step      float64
	remaining int

	env    [][2]float64
	envPos int
}

func NewParam(sampleRate int, initial float64) *Param {
	return &Param{sampleRate: sampleRate, current: initial, target: initial}
}

// Set glides the parameter to v over the ramp duration.
func (p *Param) Set(v float64) {
	p.env = nil
	p.target = v
	p.remaining = int(rampDuration * float64(p.sampleRate))
	if p.remaining <= 0 {
		p.remaining = 1
	}
	p.step = (v - p.current) / float64(p.remaining)
}

// SetNow jumps the parameter to v without smoothing.
func (p *Param) SetNow(v float64) {
	p.env = nil
	p.current = v
	p.target = v
	p.remaining = 0
}

// SetEnvelope replaces the parameter with a breakpoint envelope. The
// envelope clock starts at zero and is restarted by Trigger.
func (p *Param) SetEnvelope(points [][2]float64) {
	p.env = points
	p.envPos = 0
}

// Apply installs a configured value.
func (p *Param) Apply(v Value) {
	if v.Envelope != nil {
		p.SetEnvelope(v.Envelope)
		return
	}
	p.SetNow(v.Scalar)
}

// Trigger restarts the envelope clock, if an envelope is installed.
func (p *Param) Trigger() {
	p.envPos = 0
}

// Next advances the parameter by one frame and returns its value.
func (p *Param) Next() float64 {
	if p.env != nil {
		v := sampleEnvelope(p.env, float64(p.envPos)/float64(p.sampleRate))
		p.envPos++
		p.current = v
		return v
	}
	if p.remaining > 0 {
		p.current += p.step
		p.remaining--
		if p.remaining == 0 {
			p.current = p.target
		}
	}
	return p.current
}

// Value returns the current value without advancing.
func (p *Param) Value() float64 { return p.current }

// EnvelopeDuration returns the envelope length in seconds, or 0.
func (p *Param) EnvelopeDuration() float64 {
	if len(p.env) == 0 {
		return 0
	}
	return p.env[len(p.env)-1][0]
}

func sampleEnvelope(points [][2]float64, t float64) float64 {
	if t <= points[0][0] {
		return points[0][1]
	}
	for i := 1; i < len(points); i++ {
		if t <= points[i][0] {
			t0, v0 := points[i-1][0], points[i-1][1]
			t1, v1 := points[i][0], points[i][1]
			if t1 <= t0 {
				return v1
			}
			return v0 + (v1-v0)*(t-t0)/(t1-t0)
		}
	}
	return points[len(points)-1][1]
}

// DecibelToAmplitude converts a decibel value to a linear gain factor.
func DecibelToAmplitude(db float64) float64 {
	return math.Pow(10, db/20)
}
