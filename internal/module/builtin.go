package module

import (
	"fmt"
	"math"
)

func init() {
	Register("sine", newSine)
	Register("amplification", newAmplification)
	Register("audio_input", newAudioInput)
}

// Sine is a mono test-tone generator with smoothed frequency and gain.
type Sine struct {
	ctx       Context
	frequency *Param
	decibel   *Param
	phase     float64
}

func newSine(ctx Context) (Module, error) {
	return &Sine{
		ctx:       ctx,
		frequency: NewParam(ctx.SampleRate, 440),
		decibel:   NewParam(ctx.SampleRate, -6),
	}, nil
}

func (s *Sine) Configure(values map[string]Value) error {
	for name, v := range values {
		switch name {
		case "frequency":
			s.frequency.Apply(v)
		case "decibel":
			s.decibel.Apply(v)
		default:
			return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
		}
	}
	return nil
}

func (s *Sine) SetParameter(name string, value float64) error {
	switch name {
	case "frequency":
		s.frequency.Set(value)
	case "decibel":
		s.decibel.Set(value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	return nil
}

func (s *Sine) ChannelCount() int { return 1 }

// Duration reports the decibel envelope length when one is installed, so an
// envelope-shaped tone bounds its cue's duration.
func (s *Sine) Duration() float64 { return s.decibel.EnvelopeDuration() }

func (s *Sine) Trigger() {
	s.frequency.Trigger()
	s.decibel.Trigger()
}

func (s *Sine) Process(_, out [][]float32) error {
	dst := out[0]
	step := 2 * math.Pi / float64(s.ctx.SampleRate)
	for i := range dst {
		amp := DecibelToAmplitude(s.decibel.Next())
		dst[i] = float32(math.Sin(s.phase) * amp)
		s.phase += step * s.frequency.Next()
		if s.phase > 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
	return nil
}

// Amplification scales its routed input bus by a smoothed gain. It is the
// pass-through for physical inputs into the mix bus.
type Amplification struct {
	ctx      Context
	decibel  *Param
	channels int
}

func newAmplification(ctx Context) (Module, error) {
	return &Amplification{
		ctx:      ctx,
		decibel:  NewParam(ctx.SampleRate, 0),
		channels: 1,
	}, nil
}

func (a *Amplification) Configure(values map[string]Value) error {
	for name, v := range values {
		switch name {
		case "decibel":
			a.decibel.Apply(v)
		case "channel_count":
			n := int(v.Scalar)
			if n < 1 {
				return fmt.Errorf("channel_count must be positive, got %d", n)
			}
			a.channels = n
		default:
			return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
		}
	}
	return nil
}

func (a *Amplification) SetParameter(name string, value float64) error {
	if name != "decibel" {
		return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	a.decibel.Set(value)
	return nil
}

func (a *Amplification) ChannelCount() int      { return a.channels }
func (a *Amplification) InputChannelCount() int { return a.channels }

func (a *Amplification) Trigger() { a.decibel.Trigger() }

func (a *Amplification) Process(in, out [][]float32) error {
	scaleInput(in, out, a.decibel)
	return nil
}

// AudioInput forwards physical input channels into the mix bus, scaled by a
// smoothed gain. It is the module type that makes the device inputs audible.
type AudioInput struct {
	decibel  *Param
	channels int
}

func newAudioInput(ctx Context) (Module, error) {
	return &AudioInput{
		decibel:  NewParam(ctx.SampleRate, 0),
		channels: 2,
	}, nil
}

func (a *AudioInput) Configure(values map[string]Value) error {
	for name, v := range values {
		switch name {
		case "decibel":
			a.decibel.Apply(v)
		case "channel_count":
			n := int(v.Scalar)
			if n < 1 {
				return fmt.Errorf("channel_count must be positive, got %d", n)
			}
			a.channels = n
		default:
			return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
		}
	}
	return nil
}

func (a *AudioInput) SetParameter(name string, value float64) error {
	if name != "decibel" {
		return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	a.decibel.Set(value)
	return nil
}

func (a *AudioInput) ChannelCount() int      { return a.channels }
func (a *AudioInput) InputChannelCount() int { return a.channels }

func (a *AudioInput) Trigger() { a.decibel.Trigger() }

func (a *AudioInput) Process(in, out [][]float32) error {
	scaleInput(in, out, a.decibel)
	return nil
}

// scaleInput copies the routed input bus to out under a per-frame smoothed
// decibel gain. Output channels without a routed input stay silent.
func scaleInput(in, out [][]float32, decibel *Param) {
	frames := len(out[0])
	for i := 0; i < frames; i++ {
		amp := float32(DecibelToAmplitude(decibel.Next()))
		for c := range out {
			if c < len(in) {
				out[c][i] = in[c][i] * amp
			} else {
				out[c][i] = 0
			}
		}
	}
}
