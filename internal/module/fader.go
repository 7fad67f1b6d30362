package module

type faderState uint8

const (
	faderIdle faderState = iota
	faderRising
	faderHold
	faderFalling
)

// Fader is a linear gain envelope stepped per frame inside the production
// context. It guarantees click-free starts and stops: gain only ever moves
// by bounded per-frame increments. A new Rise or Fall cleanly supersedes an
// in-flight one, dropping any pending completion callback.
type Fader struct {
	gain      float64
	step      float64
	remaining int
	state     faderState
	onZero    func()
}

// Rise ramps the gain to unity over the given number of frames.
func (f *Fader) Rise(frames int) {
	f.onZero = nil
	if frames <= 0 || f.gain >= 1 {
		f.gain = 1
		f.state = faderHold
		return
	}
	f.state = faderRising
	f.remaining = frames
	f.step = (1 - f.gain) / float64(frames)
}

// Fall ramps the gain to zero over the given number of frames, then invokes
// onZero once. A later Rise or Fall cancels a pending onZero.
func (f *Fader) Fall(frames int, onZero func()) {
	if frames <= 0 || f.gain <= 0 {
		f.gain = 0
		f.state = faderIdle
		f.onZero = nil
		if onZero != nil {
			onZero()
		}
		return
	}
	f.state = faderFalling
	f.remaining = frames
	f.step = f.gain / float64(frames)
	f.onZero = onZero
}

// Next advances the envelope by one frame and returns the gain. Ramps count
// frames instead of comparing accumulated gain, so the terminal value is hit
// exactly and onZero fires on the declared frame.
func (f *Fader) Next() float64 {
	switch f.state {
	case faderRising:
		f.gain += f.step
		f.remaining--
		if f.remaining <= 0 {
			f.gain = 1
			f.state = faderHold
		}
	case faderFalling:
		f.gain -= f.step
		f.remaining--
		if f.remaining <= 0 {
			f.gain = 0
			f.state = faderIdle
			if f.onZero != nil {
				done := f.onZero
				f.onZero = nil
				done()
			}
		}
	}
	return f.gain
}

// Gain returns the current gain without advancing.
func (f *Fader) Gain() float64 { return f.gain }

// Silent reports whether the envelope sits at zero with no ramp in flight.
func (f *Fader) Silent() bool { return f.state == faderIdle && f.gain <= 0 }
