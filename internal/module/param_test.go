package module

import (
	"math"
	"testing"
)

func TestParamGlidesToTarget(t *testing.T) {
	p := NewParam(1000, 0)
	p.Set(1)
	// ramp is 15 frames at 1 kHz
	var last float64
	for i := 0; i < 15; i++ {
		v := p.Next()
		if v < last {
			t.Fatalf("glide not monotonic at frame %d: %v < %v", i, v, last)
		}
		last = v
	}
	if last != 1 {
		t.Fatalf("after ramp got %v, want 1", last)
	}
	if p.Next() != 1 {
		t.Fatal("value moved past target")
	}
}

func TestParamSetNowIsImmediate(t *testing.T) {
	p := NewParam(48000, 3)
	p.SetNow(-7)
	if got := p.Next(); got != -7 {
		t.Fatalf("got %v, want -7", got)
	}
}

func TestParamEnvelopeInterpolatesLinearly(t *testing.T) {
	p := NewParam(10, 0)
	p.SetEnvelope([][2]float64{{0, 0}, {1, 10}})
	// at 10 Hz the 6th frame sits at t=0.5
	var v float64
	for i := 0; i <= 5; i++ {
		v = p.Next()
	}
	if math.Abs(v-5) > 1e-9 {
		t.Fatalf("midpoint = %v, want 5", v)
	}
	for i := 0; i < 20; i++ {
		v = p.Next()
	}
	if v != 10 {
		t.Fatalf("past the last breakpoint got %v, want 10", v)
	}
}

func TestParamTriggerRestartsEnvelope(t *testing.T) {
	p := NewParam(10, 0)
	p.SetEnvelope([][2]float64{{0, 1}, {1, 0}})
	for i := 0; i < 30; i++ {
		p.Next()
	}
	p.Trigger()
	if got := p.Next(); got != 1 {
		t.Fatalf("after trigger got %v, want 1", got)
	}
}

func TestEnvelopeDuration(t *testing.T) {
	p := NewParam(10, 0)
	if p.EnvelopeDuration() != 0 {
		t.Fatal("scalar param reports a duration")
	}
	p.SetEnvelope([][2]float64{{0, 0}, {2.5, 1}})
	if p.EnvelopeDuration() != 2.5 {
		t.Fatalf("duration = %v, want 2.5", p.EnvelopeDuration())
	}
}

func TestDecibelToAmplitude(t *testing.T) {
	if got := DecibelToAmplitude(0); got != 1 {
		t.Fatalf("0 dB = %v, want 1", got)
	}
	if got := DecibelToAmplitude(-20); math.Abs(got-0.1) > 1e-12 {
		t.Fatalf("-20 dB = %v, want 0.1", got)
	}
	if DecibelToAmplitude(-10) <= DecibelToAmplitude(-20) {
		t.Fatal("amplitude not monotonic in decibel")
	}
}
