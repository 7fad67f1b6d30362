// Package midictl maps incoming MIDI control changes onto module
// parameters. The control list declared in the configuration gives every
// (controller, channel) pair a stable index; parameters bind to those
// indices and declare the value range the 0..1 controller position scales
// into.
package midictl

import (
	"fmt"
	"log/slog"
	"strconv"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/cuebox-audio/cuebox/internal/config"
	"github.com/cuebox-audio/cuebox/internal/graph"
	"github.com/cuebox-audio/cuebox/internal/module"
)

// EventError reports a control event that could not be applied. Such
// events are logged and dropped; they never stop the transport.
type EventError struct {
	Index int
	Msg   string
}

func (e *EventError) Error() string {
	return fmt.Sprintf("control event %d: %s", e.Index, e.Msg)
}

// Binding ties one control index to one module parameter.
type Binding struct {
	Slot  module.ID
	Param string
	Low   float64
	High  float64
}

// Scale maps a normalized controller position into the binding's range.
func (b Binding) Scale(raw float64) float64 {
	return b.Low + raw*(b.High-b.Low)
}

// Router dispatches control events to parameter bindings. It is driven
// from the control context.
type Router struct {
	g        *graph.Graph
	log      *slog.Logger
	bindings map[int][]Binding
	controls [][2]int // (controller, channel) per index
	lastRaw  map[int]float64
}

// NewRouter collects every MIDI-bound parameter from the module
// declarations. A binding whose control index lies outside the declared
// control list is a configuration error.
func NewRouter(cfg *config.Root, g *graph.Graph, log *slog.Logger) (*Router, error) {
	r := &Router{
		g:        g,
		log:      log,
		bindings: map[int][]Binding{},
		controls: cfg.Configure.Input.MidiControlList,
		lastRaw:  map[int]float64{},
	}
	for typeName, replications := range cfg.Configure.Module {
		for replKey, sc := range replications {
			repl, err := strconv.Atoi(replKey)
			if err != nil {
				continue // rejected during graph build
			}
			keyPath := config.SlotKey(typeName, repl) + ".default_dict"
			specs, err := sc.DefaultDict.Params(keyPath)
			if err != nil {
				return nil, err
			}
			for name, spec := range specs {
				if spec.MidiControlIndex < 0 {
					continue
				}
				if spec.MidiControlIndex >= len(r.controls) {
					return nil, &config.Error{
						Key: keyPath + "." + name + ".midi_control_index",
						Msg: fmt.Sprintf("index %d outside the declared midi_control_list (%d entries)",
							spec.MidiControlIndex, len(r.controls)),
					}
				}
				r.bindings[spec.MidiControlIndex] = append(r.bindings[spec.MidiControlIndex], Binding{
					Slot:  module.ID{Type: typeName, Replication: repl},
					Param: name,
					Low:   spec.MidiLow,
					High:  spec.MidiHigh,
				})
			}
		}
	}
	return r, nil
}

// Bindings returns the bindings registered for one control index.
func (r *Router) Bindings(index int) []Binding { return r.bindings[index] }

// HandleControl applies one control event: raw is the normalized 0..1
// controller position. Events with an out-of-range index or raw value are
// logged and dropped; events for declared but unbound indices are ignored.
// Repeats of the last seen position are idempotent.
func (r *Router) HandleControl(index int, raw float64) {
	if index < 0 || index >= len(r.controls) {
		r.drop(&EventError{Index: index, Msg: "index outside the declared control list"})
		return
	}
	if raw < 0 || raw > 1 {
		r.drop(&EventError{Index: index, Msg: fmt.Sprintf("raw value %v outside [0, 1]", raw)})
		return
	}
	if last, seen := r.lastRaw[index]; seen && last == raw {
		return
	}
	r.lastRaw[index] = raw
	bindings, ok := r.bindings[index]
	if !ok {
		r.log.Debug("control event without a binding", "index", index)
		return
	}
	for _, b := range bindings {
		if err := r.g.SetParameter(b.Slot, b.Param, b.Scale(raw)); err != nil {
			r.drop(&EventError{Index: index, Msg: err.Error()})
		}
	}
}

func (r *Router) drop(err *EventError) {
	r.log.Warn("control event dropped", "index", err.Index, "reason", err.Msg)
}

// controlIndex finds the control list position of a (controller, channel)
// pair, or -1 when the pair is not declared.
func (r *Router) controlIndex(cc, ch int) int {
	for i, pair := range r.controls {
		if pair[0] == cc && pair[1] == ch {
			return i
		}
	}
	return -1
}

// Listen attaches the router to a MIDI input port. Control change values
// are normalized to 0..1 over the 7-bit controller range. The returned
// function stops the listener.
func (r *Router) Listen(in drivers.In) (func(), error) {
	stop, err := midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
		var ch, cc, val uint8
		if !msg.GetControlChange(&ch, &cc, &val) {
			return
		}
		index := r.controlIndex(int(cc), int(ch))
		if index < 0 {
			r.log.Debug("unmapped control change", "channel", ch, "controller", cc)
			return
		}
		r.HandleControl(index, float64(val)/127)
	}, midi.HandleError(func(listenErr error) {
		r.log.Warn("midi listener error", "error", listenErr)
	}))
	if err != nil {
		return nil, err
	}
	return stop, nil
}
