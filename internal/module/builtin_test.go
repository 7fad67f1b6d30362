package module

import (
	"math"
	"testing"
)

func blockEnergy(samples []float32) float64 {
	var e float64
	for _, s := range samples {
		e += float64(s) * float64(s)
	}
	return e
}

func TestRegistryKnowsBuiltins(t *testing.T) {
	for _, name := range []string{"sine", "amplification", "audio_input", "sound_file_player"} {
		if !Known(name) {
			t.Errorf("builtin %q not registered", name)
		}
	}
	if Known("nope") {
		t.Error("unregistered name reported as known")
	}
	if _, err := New("nope", Context{SampleRate: 44100, BufferSize: 64}); err == nil {
		t.Error("New accepted an unknown type")
	}
}

func TestSineProducesEnergy(t *testing.T) {
	ctx := Context{SampleRate: 44100, BufferSize: 441}
	m, err := New("sine", ctx)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out := [][]float32{make([]float32, ctx.BufferSize)}
	if err := m.Process(nil, out); err != nil {
		t.Fatalf("process: %v", err)
	}
	if blockEnergy(out[0]) == 0 {
		t.Fatal("sine produced silence")
	}
	for _, s := range out[0] {
		if math.Abs(float64(s)) > 1 {
			t.Fatalf("sample %v outside [-1, 1]", s)
		}
	}
}

func TestSineDecibelIsMonotonic(t *testing.T) {
	ctx := Context{SampleRate: 44100, BufferSize: 441}
	energyAt := func(db float64) float64 {
		m, _ := New("sine", ctx)
		if err := m.Configure(map[string]Value{"decibel": Scalar(db)}); err != nil {
			t.Fatalf("configure: %v", err)
		}
		out := [][]float32{make([]float32, ctx.BufferSize)}
		if err := m.Process(nil, out); err != nil {
			t.Fatalf("process: %v", err)
		}
		return blockEnergy(out[0])
	}
	quiet, loud := energyAt(-30), energyAt(-6)
	if loud <= quiet {
		t.Fatalf("energy at -6 dB (%v) not above -30 dB (%v)", loud, quiet)
	}
}

func TestSineRejectsUnknownParameter(t *testing.T) {
	m, _ := New("sine", Context{SampleRate: 44100, BufferSize: 64})
	if err := m.Configure(map[string]Value{"frequenzy": Scalar(220)}); err == nil {
		t.Fatal("unknown parameter accepted")
	}
	if err := m.SetParameter("wobble", 1); err == nil {
		t.Fatal("unknown runtime parameter accepted")
	}
}

func TestAmplificationRoutesInput(t *testing.T) {
	ctx := Context{SampleRate: 44100, BufferSize: 4}
	m, err := New("amplification", ctx)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := m.Configure(map[string]Value{"channel_count": Scalar(2)}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	in := [][]float32{{1, 1, 1, 1}} // only one input channel routed
	out := [][]float32{make([]float32, 4), make([]float32, 4)}
	if err := m.Process(in, out); err != nil {
		t.Fatalf("process: %v", err)
	}
	if out[0][0] != 1 {
		t.Fatalf("routed channel = %v, want unity pass-through", out[0][0])
	}
	if out[1][0] != 0 {
		t.Fatalf("unrouted channel = %v, want silence", out[1][0])
	}
}

func TestSineEnvelopeBoundsDuration(t *testing.T) {
	m, _ := New("sine", Context{SampleRate: 1000, BufferSize: 32})
	if d := m.(*Sine).Duration(); d != 0 {
		t.Fatalf("duration without an envelope = %v, want 0", d)
	}
	if err := m.Configure(map[string]Value{"decibel": Env([][2]float64{{0, -60}, {1.5, 0}})}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if d := m.(*Sine).Duration(); d != 1.5 {
		t.Fatalf("duration = %v, want 1.5", d)
	}
}

func TestAudioInputForwardsDeviceChannels(t *testing.T) {
	ctx := Context{SampleRate: 44100, BufferSize: 4}
	m, err := New("audio_input", ctx)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	in := [][]float32{{0.5, 0.5, 0.5, 0.5}, {-0.5, -0.5, -0.5, -0.5}}
	out := [][]float32{make([]float32, 4), make([]float32, 4)}
	if err := m.Process(in, out); err != nil {
		t.Fatalf("process: %v", err)
	}
	if out[0][0] != 0.5 || out[1][0] != -0.5 {
		t.Fatalf("pass-through = %v / %v, want 0.5 / -0.5", out[0][0], out[1][0])
	}
	if err := m.Configure(map[string]Value{"channel_count": Scalar(0)}); err == nil {
		t.Fatal("zero channel_count accepted")
	}
}

func TestReplicatedInstancesAreIndependent(t *testing.T) {
	ctx := Context{SampleRate: 44100, BufferSize: 441}
	a, _ := New("sine", ctx)
	b, _ := New("sine", ctx)
	if err := a.SetParameter("decibel", -60); err != nil {
		t.Fatalf("set: %v", err)
	}
	outA := [][]float32{make([]float32, ctx.BufferSize)}
	outB := [][]float32{make([]float32, ctx.BufferSize)}
	if err := a.Process(nil, outA); err != nil {
		t.Fatalf("process a: %v", err)
	}
	if err := b.Process(nil, outB); err != nil {
		t.Fatalf("process b: %v", err)
	}
	if blockEnergy(outA[0]) >= blockEnergy(outB[0]) {
		t.Fatal("parameter change on one instance affected its sibling")
	}
}
