package module

import (
	"fmt"

	"github.com/cuebox-audio/cuebox/internal/channel"
)

// ID addresses one instantiated module: a type name plus a replication
// index that is unique within the type.
type ID struct {
	Type        string
	Replication int
}

func (id ID) String() string { return fmt.Sprintf("%s.%d", id.Type, id.Replication) }

// Slot is one instantiated module together with its fade envelope, routing
// tables and persistent playback state. A slot is created once at graph
// build time; stopping it suspends audio production but never resets the
// wrapped module's internal state, so a later start resumes where the stop
// happened. Only an explicit jump moves the playback position.
//
// All mutating methods run in the production context, at block boundaries.
type Slot struct {
	ID       ID
	Module   Module
	AutoStop bool

	FadeInFrames  int
	FadeOutFrames int
	DipFrames     int // jump-while-active crossfade bound

	// OutTable routes the module's output channels onto the mix bus.
	// InTable routes physical input channels onto the module's input bus,
	// and is nil for pure generators.
	OutTable channel.Table
	InTable  channel.Table

	fader  Fader
	active bool
}

// Active reports whether the slot currently produces audio (including the
// fade-out tail after a stop).
func (s *Slot) Active() bool { return s.active }

// Start begins audio production with a fade-in. Starting an already active
// slot only re-triggers envelope parameters.
func (s *Slot) Start() {
	if t, ok := s.Module.(Triggerable); ok {
		t.Trigger()
	}
	if s.active && !s.fader.Silent() {
		s.fader.Rise(s.FadeInFrames)
		return
	}
	s.active = true
	s.fader.Rise(s.FadeInFrames)
}

// Stop fades the slot out and suspends production once the gain reaches
// zero. Internal module state (read position) is preserved.
func (s *Slot) Stop() {
	if !s.active {
		return
	}
	s.fader.Fall(s.FadeOutFrames, func() {
		s.active = false
	})
}

// JumpTo moves the playback position. While active the seek happens at the
// bottom of a short gain dip so the discontinuity stays inside the fade
// bound; while suspended it only updates the stored position.
func (s *Slot) JumpTo(seconds float64) {
	seeker, ok := s.Module.(Seeker)
	if !ok {
		return
	}
	if !s.active {
		seeker.JumpTo(seconds)
		return
	}
	s.fader.Fall(s.DipFrames, func() {
		seeker.JumpTo(seconds)
		s.fader.Rise(s.DipFrames)
	})
}

// Render produces one faded block into out. It returns an error when the
// wrapped module fails, in which case out is untouched and the caller
// substitutes silence.
func (s *Slot) Render(in, out [][]float32) error {
	if len(out) == 0 {
		return nil
	}
	if err := s.Module.Process(in, out); err != nil {
		// the fade still advances, so a stopping slot reaches onZero
		// and suspends even while its module keeps failing
		for i := 0; i < len(out[0]); i++ {
			s.fader.Next()
		}
		return err
	}
	frames := len(out[0])
	for i := 0; i < frames; i++ {
		g := float32(s.fader.Next())
		for c := range out {
			out[c][i] *= g
		}
	}
	return nil
}

// Duration reports the wrapped module's duration, or 0 when unknown.
func (s *Slot) Duration() float64 {
	if d, ok := s.Module.(DurationReporter); ok {
		return d.Duration()
	}
	return 0
}
