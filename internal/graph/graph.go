// Package graph owns the live module graph: every instantiated slot, the
// resolved channel routes onto the mix bus, and the output stage mapping the
// mix bus onto physical channels. Render is the single production-context
// entry point; all mutations arrive through the op queue and are applied at
// block boundaries only.
package graph

import (
	"fmt"
	"log/slog"

	"github.com/cuebox-audio/cuebox/internal/channel"
	"github.com/cuebox-audio/cuebox/internal/module"
)

// RoutingError marks a channel mapping that resolves outside the valid
// range. It is fatal at graph build time.
type RoutingError struct {
	Context string
	Err     error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing %s: %v", e.Context, e.Err)
}

func (e *RoutingError) Unwrap() error { return e.Err }

// ModuleError reports a slot that failed to produce audio. The slot falls
// back to silence; the rest of the graph is unaffected.
type ModuleError struct {
	Slot module.ID
	Err  error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module %s: %v", e.Slot, e.Err)
}

func (e *ModuleError) Unwrap() error { return e.Err }

// opQueueSize bounds the number of control-context operations that can be
// pending between two processing blocks.
const opQueueSize = 256

type slotBuffers struct {
	in  [][]float32
	out [][]float32
}

// Graph is the addressable set of module slots plus their resolved routes.
type Graph struct {
	ctx module.Context
	log *slog.Logger

	slots map[module.ID]*module.Slot
	order []*module.Slot

	busChannels int
	outTable    channel.Table
	master      *module.Param // output decibel

	ops     chan func()
	scratch map[module.ID]*slotBuffers
	mixBus  [][]float32
	failed  map[module.ID]bool
}

// New builds an empty graph. busChannels is the mix bus width, outChannels
// the physical output count; outputMapping routes bus onto physical
// channels and may be nil for identity.
func New(ctx module.Context, log *slog.Logger, busChannels, outChannels int, outputMapping channel.Mapping, masterDecibel float64) (*Graph, error) {
	if outputMapping == nil {
		outputMapping = channel.Identity(min(busChannels, outChannels))
	}
	table, err := outputMapping.Resolve(busChannels, outChannels)
	if err != nil {
		return nil, &RoutingError{Context: "configure.output.channel_mapping", Err: err}
	}
	g := &Graph{
		ctx:         ctx,
		log:         log,
		slots:       map[module.ID]*module.Slot{},
		busChannels: busChannels,
		outTable:    table,
		master:      module.NewParam(ctx.SampleRate, masterDecibel),
		ops:         make(chan func(), opQueueSize),
		scratch:     map[module.ID]*slotBuffers{},
		failed:      map[module.ID]bool{},
		mixBus:      newBlock(busChannels, ctx.BufferSize),
	}
	return g, nil
}

func newBlock(channels, frames int) [][]float32 {
	b := make([][]float32, channels)
	for i := range b {
		b[i] = make([]float32, frames)
	}
	return b
}

// AddSlot registers a slot and pre-allocates its scratch buffers. Slot ids
// must be unique.
func (g *Graph) AddSlot(s *module.Slot) error {
	if _, dup := g.slots[s.ID]; dup {
		return fmt.Errorf("duplicate module slot %s", s.ID)
	}
	bufs := &slotBuffers{out: newBlock(s.Module.ChannelCount(), g.ctx.BufferSize)}
	if c, ok := s.Module.(module.InputConsumer); ok {
		bufs.in = newBlock(c.InputChannelCount(), g.ctx.BufferSize)
	}
	g.slots[s.ID] = s
	g.order = append(g.order, s)
	g.scratch[s.ID] = bufs
	return nil
}

// Context returns the audio context the graph was built against.
func (g *Graph) Context() module.Context { return g.ctx }

// Slot looks up a slot by id.
func (g *Graph) Slot(id module.ID) (*module.Slot, bool) {
	s, ok := g.slots[id]
	return s, ok
}

// Slots returns every slot in registration order.
func (g *Graph) Slots() []*module.Slot { return g.order }

// BusChannels returns the mix bus width.
func (g *Graph) BusChannels() int { return g.busChannels }

// Do publishes an operation to be applied by the production context at the
// next block boundary. It returns once the operation is queued.
func (g *Graph) Do(fn func()) {
	g.ops <- fn
}

// SetParameter publishes a scalar parameter change for one slot. Unknown
// slots are rejected immediately; unknown parameter names are logged from
// the production context and otherwise ignored.
func (g *Graph) SetParameter(id module.ID, name string, value float64) error {
	s, ok := g.slots[id]
	if !ok {
		return fmt.Errorf("unknown module slot %s", id)
	}
	g.Do(func() {
		if err := s.Module.SetParameter(name, value); err != nil {
			g.log.Warn("parameter change dropped",
				"slot", s.ID.String(), "parameter", name, "error", err)
		}
	})
	return nil
}

// SetMasterDecibel publishes a master output gain change.
func (g *Graph) SetMasterDecibel(db float64) {
	g.Do(func() { g.master.Set(db) })
}

// Render produces one block of physical output. in carries the physical
// input channels (may be nil), out the physical output channels; both are
// sized to the configured buffer. Render never allocates and never blocks
// on the control context.
func (g *Graph) Render(in, out [][]float32) {
	g.drainOps()

	zero(g.mixBus)
	for _, s := range g.order {
		if !s.Active() {
			continue
		}
		bufs := g.scratch[s.ID]
		if bufs.in != nil {
			zero(bufs.in)
			if in != nil && s.InTable != nil {
				s.InTable.Apply(in, bufs.in)
			}
		}
		if err := s.Render(bufs.in, bufs.out); err != nil {
			if !g.failed[s.ID] {
				g.failed[s.ID] = true
				g.log.Error("module slot muted", "slot", s.ID.String(),
					"error", (&ModuleError{Slot: s.ID, Err: err}).Error())
			}
			continue
		}
		g.failed[s.ID] = false
		s.OutTable.Apply(bufs.out, g.mixBus)
	}

	zero(out)
	g.outTable.Apply(g.mixBus, out)
	frames := g.ctx.BufferSize
	for i := 0; i < frames; i++ {
		amp := float32(module.DecibelToAmplitude(g.master.Next()))
		for c := range out {
			if i < len(out[c]) {
				out[c][i] *= amp
			}
		}
	}
}

func (g *Graph) drainOps() {
	for {
		select {
		case fn := <-g.ops:
			fn()
		default:
			return
		}
	}
}

func zero(block [][]float32) {
	for _, ch := range block {
		for i := range ch {
			ch[i] = 0
		}
	}
}
