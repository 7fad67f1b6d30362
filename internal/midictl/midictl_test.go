package midictl

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/cuebox-audio/cuebox/internal/config"
	"github.com/cuebox-audio/cuebox/internal/graph"
	"github.com/cuebox-audio/cuebox/internal/module"
)

// midiTone records the last applied parameter value so scaling can be
// asserted directly.
type midiTone struct {
	gain float64
	sets int
}

func (m *midiTone) Configure(values map[string]module.Value) error {
	for name, v := range values {
		if name != "gain" {
			return module.ErrUnknownParameter
		}
		m.gain = v.Scalar
	}
	return nil
}

func (m *midiTone) SetParameter(name string, value float64) error {
	if name != "gain" {
		return module.ErrUnknownParameter
	}
	m.gain = value
	m.sets++
	return nil
}

func (m *midiTone) ChannelCount() int { return 1 }

func (m *midiTone) Process(_, out [][]float32) error {
	for i := range out[0] {
		out[0][i] = float32(m.gain)
	}
	return nil
}

func init() {
	module.Register("miditone", func(module.Context) (module.Module, error) {
		return &midiTone{}, nil
	})
}

const routerConfig = `
[configure.audio]
sampling_rate = 1000
buffer_size = 16
channel_count = 1

[configure.input]
midi_control_list = [[20, 0], [21, 0], [22, 3]]

[configure.module.miditone.0.default_dict]
gain = { value = 0.0, midi_control_index = 1, midi_range = [-40.0, 8.0] }
`

type rig struct {
	g   *graph.Graph
	r   *Router
	out [][]float32
}

func newRig(t *testing.T, doc string) *rig {
	t.Helper()
	cfg, err := config.Load([]byte(doc))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	g, err := graph.Build(cfg, log)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	r, err := NewRouter(cfg, g, log)
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	return &rig{g: g, r: r, out: [][]float32{make([]float32, 16)}}
}

func (r *rig) apply() {
	r.g.Render(nil, r.out)
}

func (r *rig) tone() *midiTone {
	s, _ := r.g.Slot(module.ID{Type: "miditone", Replication: 0})
	return s.Module.(*midiTone)
}

func TestRouterCollectsBindings(t *testing.T) {
	r := newRig(t, routerConfig)
	bindings := r.r.Bindings(1)
	if len(bindings) != 1 {
		t.Fatalf("got %d bindings at index 1, want 1", len(bindings))
	}
	b := bindings[0]
	if b.Param != "gain" || b.Low != -40 || b.High != 8 {
		t.Fatalf("binding = %+v", b)
	}
	if len(r.r.Bindings(0)) != 0 {
		t.Fatal("unbound index reports bindings")
	}
}

func TestRouterRejectsIndexPastControlList(t *testing.T) {
	doc := `
[configure.input]
midi_control_list = [[20, 0]]

[configure.module.miditone.0.default_dict]
gain = { value = 0.0, midi_control_index = 5 }
`
	cfg, err := config.Load([]byte(doc))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	g, err := graph.Build(cfg, log)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	_, err = NewRouter(cfg, g, log)
	var cerr *config.Error
	if !errors.As(err, &cerr) {
		t.Fatalf("got %v, want *config.Error", err)
	}
}

func TestScaleHitsRangeEndpoints(t *testing.T) {
	b := Binding{Low: -40, High: 8}
	if got := b.Scale(0); got != -40 {
		t.Fatalf("Scale(0) = %v, want -40", got)
	}
	if got := b.Scale(1); got != 8 {
		t.Fatalf("Scale(1) = %v, want 8", got)
	}
	if got := b.Scale(0.5); got != -16 {
		t.Fatalf("Scale(0.5) = %v, want the linear midpoint -16", got)
	}
}

func TestHandleControlAppliesScaledValue(t *testing.T) {
	r := newRig(t, routerConfig)
	r.r.HandleControl(1, 1)
	if got := r.tone().gain; got != 0 {
		t.Fatalf("value applied before the block boundary: %v", got)
	}
	r.apply()
	if got := r.tone().gain; got != 8 {
		t.Fatalf("gain = %v, want 8", got)
	}
	r.r.HandleControl(1, 0)
	r.apply()
	if got := r.tone().gain; got != -40 {
		t.Fatalf("gain = %v, want -40", got)
	}
}

func TestHandleControlIgnoresRepeats(t *testing.T) {
	r := newRig(t, routerConfig)
	r.r.HandleControl(1, 0.5)
	r.r.HandleControl(1, 0.5)
	r.r.HandleControl(1, 0.5)
	r.apply()
	if got := r.tone().sets; got != 1 {
		t.Fatalf("parameter set %d times for one controller position, want 1", got)
	}
}

func TestHandleControlDropsBadEvents(t *testing.T) {
	r := newRig(t, routerConfig)
	r.r.HandleControl(99, 0.5)
	r.r.HandleControl(-1, 0.5)
	r.r.HandleControl(1, 1.5)  // bound index, raw outside [0, 1]
	r.r.HandleControl(1, -0.5) // bound index, raw outside [0, 1]
	r.r.HandleControl(0, 0.5)  // declared but unbound
	r.apply()
	if got := r.tone().sets; got != 0 {
		t.Fatalf("dropped events still reached the module (%d sets)", got)
	}
}

func TestControlIndexMatchesControllerAndChannel(t *testing.T) {
	r := newRig(t, routerConfig)
	if got := r.r.controlIndex(21, 0); got != 1 {
		t.Fatalf("controlIndex(21, 0) = %d, want 1", got)
	}
	if got := r.r.controlIndex(22, 3); got != 2 {
		t.Fatalf("controlIndex(22, 3) = %d, want 2", got)
	}
	if got := r.r.controlIndex(22, 0); got != -1 {
		t.Fatalf("controlIndex(22, 0) = %d, want -1 for a channel mismatch", got)
	}
}
