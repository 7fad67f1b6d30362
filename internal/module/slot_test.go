package module

import (
	"errors"
	"testing"
)

// fakeSource is a seekable constant-signal source that tracks its read
// position in seconds.
type fakeSource struct {
	sampleRate int
	pos        float64
	fail       error
}

func (f *fakeSource) Configure(map[string]Value) error   { return nil }
func (f *fakeSource) SetParameter(string, float64) error { return nil }
func (f *fakeSource) ChannelCount() int                  { return 1 }
func (f *fakeSource) JumpTo(seconds float64)             { f.pos = seconds }
func (f *fakeSource) Duration() float64                  { return 60 }

func (f *fakeSource) Process(_, out [][]float32) error {
	if f.fail != nil {
		return f.fail
	}
	for i := range out[0] {
		out[0][i] = 1
	}
	f.pos += float64(len(out[0])) / float64(f.sampleRate)
	return nil
}

func newTestSlot(src *fakeSource) *Slot {
	return &Slot{
		ID:            ID{Type: "fake", Replication: 0},
		Module:        src,
		AutoStop:      true,
		FadeInFrames:  4,
		FadeOutFrames: 4,
		DipFrames:     2,
	}
}

func render(t *testing.T, s *Slot, frames int) []float32 {
	t.Helper()
	out := [][]float32{make([]float32, frames)}
	if err := s.Render(nil, out); err != nil {
		t.Fatalf("render: %v", err)
	}
	return out[0]
}

func TestSlotStopPreservesPosition(t *testing.T) {
	src := &fakeSource{sampleRate: 100}
	s := newTestSlot(src)
	s.Start()
	render(t, s, 100) // one second
	s.Stop()
	for s.Active() {
		render(t, s, 10)
	}
	posAtStop := src.pos

	s.Start()
	if src.pos != posAtStop {
		t.Fatalf("start moved the position from %v to %v", posAtStop, src.pos)
	}
	render(t, s, 10)
	if src.pos <= posAtStop {
		t.Fatal("resumed playback did not advance from the stop position")
	}
}

func TestSlotStartFadesIn(t *testing.T) {
	src := &fakeSource{sampleRate: 100}
	s := newTestSlot(src)
	s.Start()
	out := render(t, s, 8)
	if out[0] >= 1 {
		t.Fatalf("first frame %v, want a fade-in below unity", out[0])
	}
	for i := 1; i < 4; i++ {
		if out[i] < out[i-1] {
			t.Fatalf("fade-in not monotonic at frame %d", i)
		}
	}
	if out[7] != 1 {
		t.Fatalf("frame past the fade = %v, want 1", out[7])
	}
}

func TestSlotStopFadesOutThenSuspends(t *testing.T) {
	src := &fakeSource{sampleRate: 100}
	s := newTestSlot(src)
	s.Start()
	render(t, s, 8)
	s.Stop()
	if !s.Active() {
		t.Fatal("slot suspended before the fade-out finished")
	}
	out := render(t, s, 8)
	for i := 1; i <= 4; i++ {
		if out[i] > out[i-1] {
			t.Fatalf("fade-out not monotonic at frame %d", i)
		}
	}
	if out[4] != 0 {
		t.Fatalf("gain after fade-out = %v, want 0", out[4])
	}
	if s.Active() {
		t.Fatal("slot still active after the fade-out reached zero")
	}
}

func TestSlotJumpWhileSuspendedSeeksDirectly(t *testing.T) {
	src := &fakeSource{sampleRate: 100}
	s := newTestSlot(src)
	s.JumpTo(12.5)
	if src.pos != 12.5 {
		t.Fatalf("position = %v, want 12.5", src.pos)
	}
}

func TestSlotJumpWhileActiveSeeksInsideDip(t *testing.T) {
	src := &fakeSource{sampleRate: 100}
	s := newTestSlot(src)
	s.Start()
	render(t, s, 8)
	s.JumpTo(30)
	if src.pos >= 30 {
		t.Fatal("seek happened before the gain dip reached zero")
	}
	out := render(t, s, 8)
	if src.pos < 30 {
		t.Fatalf("position = %v, seek never happened", src.pos)
	}
	if !s.Active() {
		t.Fatal("jump deactivated the slot")
	}
	// gain dips to zero at frame DipFrames-1, then rises again
	if out[1] != 0 {
		t.Fatalf("dip bottom = %v, want 0", out[1])
	}
	if out[7] != 1 {
		t.Fatalf("gain after dip = %v, want 1", out[7])
	}
}

func TestSlotRenderPropagatesModuleError(t *testing.T) {
	src := &fakeSource{sampleRate: 100, fail: errors.New("device gone")}
	s := newTestSlot(src)
	s.Start()
	out := [][]float32{make([]float32, 4)}
	if err := s.Render(nil, out); err == nil {
		t.Fatal("module error swallowed")
	}
}

func TestSlotFailingModuleStillFadesOut(t *testing.T) {
	src := &fakeSource{sampleRate: 100}
	s := newTestSlot(src)
	s.Start()
	render(t, s, 8)
	src.fail = errors.New("device gone")
	s.Stop()
	out := [][]float32{make([]float32, 8)}
	if err := s.Render(nil, out); err == nil {
		t.Fatal("module error swallowed")
	}
	if s.Active() {
		t.Fatal("fade-out stalled on the failing module")
	}
}

func TestSlotDuration(t *testing.T) {
	s := newTestSlot(&fakeSource{sampleRate: 100})
	if s.Duration() != 60 {
		t.Fatalf("duration = %v, want 60", s.Duration())
	}
	plain := &Slot{ID: ID{Type: "sine"}, Module: &Sine{ctx: Context{SampleRate: 100}, frequency: NewParam(100, 440), decibel: NewParam(100, 0)}}
	if plain.Duration() != 0 {
		t.Fatalf("generator duration = %v, want 0", plain.Duration())
	}
}
